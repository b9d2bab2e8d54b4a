package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/septivank/ledger-relay-gateway/internal/record"
	"github.com/septivank/ledger-relay-gateway/tools/timeparser"
)

// MaxProductIDLength bounds product identifiers.
const MaxProductIDLength = 128

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("validation error")

// Problem describes one invalid field.
type Problem struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error collects the problems found in a request.
type Error struct {
	Problems []Problem
}

func (e *Error) Error() string {
	if len(e.Problems) == 0 {
		return ErrInvalid.Error()
	}
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Message)
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *Error) Unwrap() error { return ErrInvalid }

func (e *Error) add(field, code, message string) {
	e.Problems = append(e.Problems, Problem{Field: field, Code: code, Message: message})
}

func (e *Error) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// Invalid builds a single-problem validation error.
func Invalid(field, code, message string) error {
	e := &Error{}
	e.add(field, code, message)
	return e
}

// Validator handles request validation with configurable parameters
type Validator struct {
	timestampToleranceMinutes int
}

// NewValidator creates a new validator with the specified tolerance
func NewValidator(timestampToleranceMinutes int) *Validator {
	return &Validator{
		timestampToleranceMinutes: timestampToleranceMinutes,
	}
}

// ValidateRequest checks a data-commitment request before any quota is charged.
func (v *Validator) ValidateRequest(req record.Request, receivedAt time.Time) error {
	verr := &Error{}

	productID := strings.TrimSpace(req.ProductID)
	switch {
	case productID == "":
		verr.add("productId", "required", "productId is required")
	case len(productID) > MaxProductIDLength:
		verr.add("productId", "too_long", fmt.Sprintf("productId exceeds %d characters", MaxProductIDLength))
	case productID != req.ProductID:
		verr.add("productId", "whitespace", "productId must not have surrounding whitespace")
	}

	if req.SensorData == nil {
		verr.add("sensorData", "required", "sensorData is required")
	} else {
		if h := req.SensorData.Humidity; h != nil && (*h < 0 || *h > 100) {
			verr.add("sensorData.humidity", "out_of_range", "humidity must be between 0 and 100")
		}
		if p := req.SensorData.Pressure; p != nil && *p < 0 {
			verr.add("sensorData.pressure", "negative", "negative value detected")
		}
		for key := range req.SensorData.Custom {
			if strings.TrimSpace(key) == "" {
				verr.add("sensorData.custom", "empty_key", "custom reading names cannot be empty")
				break
			}
		}
	}

	if ts := req.Metadata.Timestamp; ts != "" {
		readingTime, err := timeparser.ParseReadingTimestamp(ts)
		if err != nil {
			verr.add("metadata.timestamp", "invalid_format", fmt.Sprintf("invalid timestamp format: %v", err))
		} else if !timeparser.IsWithinTolerance(readingTime, receivedAt, v.timestampToleranceMinutes) {
			verr.add("metadata.timestamp", "out_of_tolerance",
				fmt.Sprintf("timestamp outside tolerance window (±%d minutes)", v.timestampToleranceMinutes))
		}
	}

	return verr.orNil()
}

// ValidateBatchSize checks the operation count of a batch request.
func ValidateBatchSize(count, max int) error {
	switch {
	case count == 0:
		return Invalid("operations", "required", "operations array is required")
	case count > max:
		return Invalid("operations", "too_many", fmt.Sprintf("a batch accepts at most %d operations", max))
	}
	return nil
}
