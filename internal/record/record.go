package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// APIVersion is stamped into every record and therefore into its hash.
const APIVersion = "v1.0"

// UnknownDevice is used when the caller does not identify the device.
const UnknownDevice = "UNKNOWN"

// SensorData is the caller-supplied measurement block.
type SensorData struct {
	Location    string         `json:"location,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Humidity    *float64       `json:"humidity,omitempty"`
	Pressure    *float64       `json:"pressure,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`
}

// Metadata describes the device that produced the reading.
type Metadata struct {
	DeviceID  string `json:"deviceId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Request is one data-commitment request as received from a caller.
type Request struct {
	ProductID  string      `json:"productId"`
	SensorData *SensorData `json:"sensorData"`
	Metadata   Metadata    `json:"metadata"`
}

// Readings are the measured values committed with a record.
type Readings struct {
	Temperature *float64       `json:"temperature"`
	Humidity    *float64       `json:"humidity"`
	Pressure    *float64       `json:"pressure"`
	Custom      map[string]any `json:"custom"`
}

// DataRecord is immutable once hashed. Only DataHash goes on-chain.
type DataRecord struct {
	ProductID   string   `json:"productId"`
	DeviceID    string   `json:"deviceId"`
	Location    string   `json:"location"`
	Readings    Readings `json:"readings"`
	CertifiedBy string   `json:"certifiedBy"`
	Timestamp   int64    `json:"timestamp"`
	APIVersion  string   `json:"apiVersion"`
	DataHash    string   `json:"dataHash"`
}

// Build assembles a record for the given certifier and hashes it.
func Build(req Request, certifiedBy string, at time.Time) (DataRecord, error) {
	rec := DataRecord{
		ProductID:   req.ProductID,
		DeviceID:    req.Metadata.DeviceID,
		Location:    "N/A",
		CertifiedBy: certifiedBy,
		Timestamp:   at.UnixMilli(),
		APIVersion:  APIVersion,
	}
	if rec.DeviceID == "" {
		rec.DeviceID = UnknownDevice
	}
	if sd := req.SensorData; sd != nil {
		if sd.Location != "" {
			rec.Location = sd.Location
		}
		rec.Readings = Readings{
			Temperature: sd.Temperature,
			Humidity:    sd.Humidity,
			Pressure:    sd.Pressure,
			Custom:      sd.Custom,
		}
	}
	if rec.Readings.Custom == nil {
		rec.Readings.Custom = map[string]any{}
	}

	hash, err := rec.ComputeHash()
	if err != nil {
		return DataRecord{}, err
	}
	rec.DataHash = hash
	return rec, nil
}

// Canonical returns the record content (DataHash excluded) as JSON with
// object keys sorted at every depth.
func (r DataRecord) Canonical() ([]byte, error) {
	content := r
	content.DataHash = ""

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	delete(tree, "dataHash")

	// encoding/json writes map keys in sorted order
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize record: %w", err)
	}
	return out, nil
}

// ComputeHash returns the 0x-prefixed keccak-256 digest of Canonical.
func (r DataRecord) ComputeHash() (string, error) {
	canonical, err := r.Canonical()
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hash(canonical).Hex(), nil
}

// HashBytes returns DataHash as raw bytes for use as transaction data.
func (r DataRecord) HashBytes() []byte {
	return common.HexToHash(r.DataHash).Bytes()
}
