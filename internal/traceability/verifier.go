package traceability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/septivank/ledger-relay-gateway/internal/anomaly"
	"github.com/septivank/ledger-relay-gateway/internal/validator"
	"go.uber.org/zap"
)

// Chain sources.
const (
	SourceRecords = "records"
	SourceDemo    = "demo"
)

// Checkpoint is one committed reading along a product's route.
type Checkpoint struct {
	Timestamp     int64    `json:"timestamp"`
	Location      string   `json:"location"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	Pressure      *float64 `json:"pressure,omitempty"`
	CertifiedBy   string   `json:"certifiedBy"`
	DeviceID      string   `json:"deviceId,omitempty"`
	DataHash      string   `json:"dataHash,omitempty"`
	TxHash        string   `json:"txHash,omitempty"`
	Status        string   `json:"status,omitempty"`
	Anomaly       bool     `json:"anomaly,omitempty"`
	AnomalyReason string   `json:"anomalyReason,omitempty"`
}

// Chain is the ordered traceability history of a product.
type Chain struct {
	ProductID       string       `json:"productId"`
	Verified        bool         `json:"verified"`
	Checkpoints     []Checkpoint `json:"checkpoints"`
	CarbonFootprint string       `json:"carbonFootprint,omitempty"`
	Certifications  []string     `json:"certifications,omitempty"`
	OnChainProof    string       `json:"onChainProof"`
	Source          string       `json:"source"`
}

// Verifier rebuilds traceability chains from committed records. It never
// charges quota.
type Verifier struct {
	store           Store
	ledgerAvailable bool
	detector        *anomaly.Detector
	logger          *zap.Logger
}

// NewVerifier creates a verifier. ledgerAvailable is fixed at startup and
// selects the demo chain for products with no records.
func NewVerifier(store Store, ledgerAvailable bool, detector *anomaly.Detector, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Verifier{store: store, ledgerAvailable: ledgerAvailable, detector: detector, logger: logger}
}

// Verify returns the chain for productID.
func (v *Verifier) Verify(ctx context.Context, productID string) (Chain, error) {
	if strings.TrimSpace(productID) == "" {
		return Chain{}, validator.Invalid("productId", "required", "productId is required")
	}

	commitments, err := v.store.ListByProduct(ctx, productID)
	if err != nil {
		return Chain{}, fmt.Errorf("failed to load records for %s: %w", productID, err)
	}

	if len(commitments) == 0 {
		if !v.ledgerAvailable {
			return DemoChain(productID), nil
		}
		return Chain{
			ProductID:    productID,
			Verified:     false,
			Checkpoints:  []Checkpoint{},
			OnChainProof: OnChainProof(productID),
			Source:       SourceRecords,
		}, nil
	}

	sort.SliceStable(commitments, func(i, j int) bool {
		a, b := commitments[i].Record, commitments[j].Record
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.DataHash < b.DataHash
	})

	verified := true
	checkpoints := make([]Checkpoint, 0, len(commitments))
	for _, c := range commitments {
		rec := c.Record
		if hash, err := rec.ComputeHash(); err != nil || hash != rec.DataHash {
			v.logger.Warn("record content does not match its hash",
				zap.String("product_id", productID),
				zap.String("data_hash", rec.DataHash),
			)
			verified = false
		}
		checkpoints = append(checkpoints, Checkpoint{
			Timestamp:   rec.Timestamp,
			Location:    rec.Location,
			Temperature: rec.Readings.Temperature,
			Humidity:    rec.Readings.Humidity,
			Pressure:    rec.Readings.Pressure,
			CertifiedBy: rec.CertifiedBy,
			DeviceID:    rec.DeviceID,
			DataHash:    rec.DataHash,
			TxHash:      c.TxHash,
			Status:      c.Status,
		})
	}
	v.flagAnomalies(checkpoints)

	return Chain{
		ProductID:    productID,
		Verified:     verified,
		Checkpoints:  checkpoints,
		OnChainProof: OnChainProof(productID),
		Source:       SourceRecords,
	}, nil
}

func (v *Verifier) flagAnomalies(checkpoints []Checkpoint) {
	var temps, humidity, pressure []float64
	for i := range checkpoints {
		cp := &checkpoints[i]
		var reasons []string
		if t := cp.Temperature; t != nil {
			if ok, reason := v.detector.DetectSpike(*t, temps); ok {
				reasons = append(reasons, "temperature: "+reason)
			}
			temps = append(temps, *t)
		}
		if h := cp.Humidity; h != nil {
			if ok, reason := v.detector.DetectAnomaly(*h, humidity); ok {
				reasons = append(reasons, "humidity: "+reason)
			}
			humidity = append(humidity, *h)
		}
		if p := cp.Pressure; p != nil {
			if ok, reason := v.detector.DetectAnomaly(*p, pressure); ok {
				reasons = append(reasons, "pressure: "+reason)
			}
			pressure = append(pressure, *p)
		}
		if len(reasons) > 0 {
			cp.Anomaly = true
			cp.AnomalyReason = strings.Join(reasons, "; ")
		}
	}
}

// OnChainProof derives the proof reference from the digits of productID,
// right-padded with zeros to 32 bytes of hex.
func OnChainProof(productID string) string {
	var b strings.Builder
	for _, r := range productID {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 64 {
		digits += strings.Repeat("0", 64-len(digits))
	}
	return "0x" + digits
}

// demoEpoch anchors the demo chain so repeated calls are identical.
var demoEpoch = time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)

const demoCertifier = "Walmart Supply Chain"

// DemoChain is served when no ledger is connected and nothing was recorded.
func DemoChain(productID string) Chain {
	temp := func(v float64) *float64 { return &v }
	return Chain{
		ProductID: productID,
		Verified:  true,
		Checkpoints: []Checkpoint{
			{
				Timestamp:   demoEpoch.Add(-7 * 24 * time.Hour).UnixMilli(),
				Location:    "Granja Orgánica Los Andes, Chile",
				Temperature: temp(4.2),
				CertifiedBy: demoCertifier,
			},
			{
				Timestamp:   demoEpoch.Add(-3 * 24 * time.Hour).UnixMilli(),
				Location:    "Centro de Distribución Santiago",
				Temperature: temp(3.8),
				CertifiedBy: demoCertifier,
			},
			{
				Timestamp:   demoEpoch.Add(-time.Hour).UnixMilli(),
				Location:    "Walmart Supercenter Madrid",
				Temperature: temp(4.0),
				CertifiedBy: demoCertifier,
			},
		},
		CarbonFootprint: "12.4 kg CO2",
		Certifications:  []string{"Organic", "Fair Trade", "ISO 22000"},
		OnChainProof:    OnChainProof(productID),
		Source:          SourceDemo,
	}
}
