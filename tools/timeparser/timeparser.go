package timeparser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// unixMillisCutoff separates second and millisecond epoch values.
const unixMillisCutoff = 1e11

// ParseReadingTimestamp parses a device-reported timestamp. Accepted forms are
// RFC3339, "YYYY-MM-DD HH:mm:ss", DD/MM/YYYY HH:mm:ss and a unix epoch in
// seconds or milliseconds.
func ParseReadingTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, fmt.Errorf("non-positive epoch timestamp %d", n)
		}
		if n >= unixMillisCutoff {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	formats := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"02/01/2006 15:04:05",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", value, lastErr)
}

// IsWithinTolerance checks if the reading timestamp is within tolerance of received time
func IsWithinTolerance(readingTime, receivedTime time.Time, toleranceMinutes int) bool {
	diff := readingTime.Sub(receivedTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceMinutes)*time.Minute
}
