// Package allan computes overlapped Allan deviations of frequency-type data.
//
// The estimator is the standard overlapped form for N samples y taken at a
// fixed rate, evaluated at an averaging time tau = m/rate:
//
//	sigma²(tau) = sum(D[j]²) / (2 m² (N - 2m + 1))
//
// where D[j] is the sum of the m consecutive first differences y[i+m]-y[i]
// starting at j, for j = 0 .. N-2m.
package allan

import (
	"errors"
	"math"
)

// ErrInsufficientSampleTime indicates the record is too short to evaluate
// the requested averaging time.  Callers watching a growing record should
// treat this as "not yet", not a failure.
var ErrInsufficientSampleTime = errors.New("record too short for requested averaging time")

// ErrInsufficientSamplingRate indicates the sample rate is too low to
// resolve the requested averaging time at all.  More data will not help.
var ErrInsufficientSamplingRate = errors.New("sample rate too low to resolve requested averaging time")

// OADev computes the overlapped Allan deviation of data sampled at rate Hz
// for each averaging time in taus, in seconds.  The deviations are returned
// in the same order as taus.
func OADev(data []float64, rate float64, taus []float64) ([]float64, error) {
	devs := make([]float64, len(taus))
	for i, tau := range taus {
		d, err := oadevAt(data, rate, tau)
		if err != nil {
			return nil, err
		}
		devs[i] = d
	}
	return devs, nil
}

func oadevAt(data []float64, rate, tau float64) (float64, error) {
	m := int(tau*rate + 0.5)
	if m < 1 {
		return 0, ErrInsufficientSamplingRate
	}
	n := len(data)
	terms := n - 2*m + 1
	if terms < 1 {
		return 0, ErrInsufficientSampleTime
	}
	// D is the running sum of m consecutive first differences; slide it
	// across the record rather than recomputing per term
	var D float64
	for i := 0; i < m; i++ {
		D += data[i+m] - data[i]
	}
	acc := D * D
	for j := 1; j < terms; j++ {
		D += data[j+2*m-1] - 2*data[j+m-1] + data[j-1]
		acc += D * D
	}
	avar := acc / (2 * float64(m) * float64(m) * float64(terms))
	return math.Sqrt(avar), nil
}

// OctaveTaus returns the octave-spaced averaging times (1, 2, 4, ... sample
// periods) that n samples at rate Hz can support.  The result is empty when
// the record cannot support even one octave.
func OctaveTaus(n int, rate float64) []float64 {
	var taus []float64
	for m := 1; n-2*m+1 >= 1; m *= 2 {
		taus = append(taus, float64(m)/rate)
	}
	return taus
}
