package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/septivank/ledger-relay-gateway/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimestampToleranceMinutes = 5

var receivedAt = time.Date(2025, 12, 29, 10, 32, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func problemCodes(t *testing.T, err error) []string {
	t.Helper()
	var verr *Error
	require.True(t, errors.As(err, &verr))
	codes := make([]string, 0, len(verr.Problems))
	for _, p := range verr.Problems {
		codes = append(codes, p.Field+"/"+p.Code)
	}
	return codes
}

func TestValidateRequest_Valid(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	err := v.ValidateRequest(record.Request{
		ProductID:  "SKU-1",
		SensorData: &record.SensorData{Temperature: ptr(4.1), Humidity: ptr(60)},
		Metadata:   record.Metadata{DeviceID: "d1", Timestamp: "29/12/2025 10:30:00"},
	}, receivedAt)

	assert.NoError(t, err)
}

func TestValidateRequest_MissingFields(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	err := v.ValidateRequest(record.Request{}, receivedAt)

	require.ErrorIs(t, err, ErrInvalid)
	assert.ElementsMatch(t, []string{"productId/required", "sensorData/required"}, problemCodes(t, err))
}

func TestValidateRequest_OutOfRangeReadings(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	err := v.ValidateRequest(record.Request{
		ProductID:  "SKU-1",
		SensorData: &record.SensorData{Humidity: ptr(140), Pressure: ptr(-3)},
	}, receivedAt)

	assert.ElementsMatch(t,
		[]string{"sensorData.humidity/out_of_range", "sensorData.pressure/negative"},
		problemCodes(t, err))
}

func TestValidateRequest_TimestampOutsideTolerance(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	err := v.ValidateRequest(record.Request{
		ProductID:  "SKU-1",
		SensorData: &record.SensorData{},
		Metadata:   record.Metadata{Timestamp: "29/12/2025 10:00:00"},
	}, receivedAt)

	assert.Equal(t, []string{"metadata.timestamp/out_of_tolerance"}, problemCodes(t, err))
}

func TestValidateRequest_BadTimestamp(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	err := v.ValidateRequest(record.Request{
		ProductID:  "SKU-1",
		SensorData: &record.SensorData{},
		Metadata:   record.Metadata{Timestamp: "yesterday"},
	}, receivedAt)

	assert.Equal(t, []string{"metadata.timestamp/invalid_format"}, problemCodes(t, err))
}

func TestValidateRequest_ProductIDWhitespace(t *testing.T) {
	v := NewValidator(testTimestampToleranceMinutes)

	err := v.ValidateRequest(record.Request{ProductID: " SKU-1", SensorData: &record.SensorData{}}, receivedAt)

	assert.Equal(t, []string{"productId/whitespace"}, problemCodes(t, err))
}

func TestValidateBatchSize(t *testing.T) {
	assert.NoError(t, ValidateBatchSize(3, 10))
	assert.ErrorIs(t, ValidateBatchSize(0, 10), ErrInvalid)
	assert.ErrorIs(t, ValidateBatchSize(11, 10), ErrInvalid)
}
