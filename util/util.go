// Package util contains misc internal utilities.
package util

import (
	"time"
)

// Limiter holds a min and max value and can check if a value is between them
type Limiter struct {
	// Max is the maximum value that is considered in-range
	Max float64 `json:"max" yaml:"Max"`

	// Min is the minimum value that is considered in-range
	Min float64 `json:"min" yaml:"Min"`
}

// Check returns true if Min <= value <= Max.  A zero value Limiter is
// considered unconfigured and passes everything.
func (l Limiter) Check(v float64) bool {
	if l.Min == 0 && l.Max == 0 {
		return true
	}
	return l.Min <= v && v <= l.Max
}

// Clamp returns the value clipped to the range [low, high]
func Clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// Mean returns the arithmetic mean of a slice.  Zero length input returns zero.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}
