package timeparser

import (
	"testing"
	"time"
)

func TestParseReadingTimestamp_RFC3339(t *testing.T) {
	result, err := ParseReadingTimestamp("2026-03-01T10:30:45Z")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2026, 3, 1, 10, 30, 45, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseReadingTimestamp_DayFirst(t *testing.T) {
	result, err := ParseReadingTimestamp("29/12/2025 10:30:45")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseReadingTimestamp_EpochSecondsAndMillis(t *testing.T) {
	expected := time.Date(2026, 3, 1, 10, 30, 45, 0, time.UTC)

	secs, err := ParseReadingTimestamp("1772361045")
	if err != nil {
		t.Fatalf("Failed to parse seconds: %v", err)
	}
	if !secs.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, secs)
	}

	millis, err := ParseReadingTimestamp("1772361045000")
	if err != nil {
		t.Fatalf("Failed to parse millis: %v", err)
	}
	if !millis.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, millis)
	}
}

func TestParseReadingTimestamp_Invalid(t *testing.T) {
	for _, value := range []string{"", "invalid-date-string", "-5"} {
		if _, err := ParseReadingTimestamp(value); err == nil {
			t.Errorf("Expected error for %q", value)
		}
	}
}

func TestIsWithinTolerance_WithinRange(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 33, 0, 0, time.UTC)

	if !IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp to be within tolerance")
	}
}

func TestIsWithinTolerance_OutsideRange(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 20, 0, 0, time.UTC)

	if IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp to be outside tolerance")
	}
}
