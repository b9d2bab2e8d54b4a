package anomaly

import (
	"fmt"
	"math"
)

// Detector flags checkpoint readings that jump away from the rolling
// average of the readings before them.
type Detector struct {
	spikeThreshold            float64
	minDataPointsForDetection int
}

// NewDetector creates a detector. A reading is a spike when its magnitude
// exceeds spikeThreshold times the rolling average magnitude.
func NewDetector(spikeThreshold float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		spikeThreshold:            spikeThreshold,
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// DetectAnomaly checks a reading that can never be negative, such as
// humidity or pressure.
func (d *Detector) DetectAnomaly(value float64, history []float64) (bool, string) {
	if value < 0 {
		return true, "negative value"
	}
	return d.DetectSpike(value, history)
}

// DetectSpike checks a signed reading, such as temperature, against the
// rolling average of history.
func (d *Detector) DetectSpike(value float64, history []float64) (bool, string) {
	if d == nil || len(history) == 0 || len(history) < d.minDataPointsForDetection {
		return false, ""
	}

	sum := 0.0
	for _, v := range history {
		sum += math.Abs(v)
	}
	average := sum / float64(len(history))

	if average > 0 && math.Abs(value) > d.spikeThreshold*average {
		return true, fmt.Sprintf("sudden spike detected: value %.2f exceeds %.1fx rolling average %.2f",
			value, d.spikeThreshold, average)
	}
	return false, ""
}
