package daq

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"golang.org/x/time/rate"
)

// Sim is a software ADC which produces gaussian noise about a bias point.
// It paces sample production at the requested rate so that timing-sensitive
// callers behave as they would against hardware.  The zero value is not
// usable, create one with NewSim.
type Sim struct {
	mu sync.Mutex

	rng *rand.Rand

	// Bias is the mean output in volts
	Bias float64

	// Noise is the standard deviation of the output in volts
	Noise float64

	// Drift is an optional linear ramp in volts per second, used to mimic
	// an unconverged bias
	Drift float64

	// MaxRate is the highest sample rate the simulator will accept in Hz.
	// Zero means unlimited.
	MaxRate float64

	elapsed float64

	// Pace disables rate limiting when false, tests that only care about
	// values run much faster that way
	Pace bool
}

// NewSim returns a simulated ADC with the given bias and noise level,
// seeded deterministically
func NewSim(bias, noise float64, seed int64) *Sim {
	return &Sim{
		rng:   rand.New(rand.NewSource(seed)),
		Bias:  bias,
		Noise: noise,
		Pace:  true,
	}
}

func (s *Sim) sample(dt float64) float64 {
	v := s.Bias + s.Noise*s.rng.NormFloat64() + s.Drift*s.elapsed
	s.elapsed += dt
	return v
}

// Read acquires seconds*rate samples, pacing at the sample rate when
// Pace is true
func (s *Sim) Read(ctx context.Context, seconds, hz float64) ([]float64, error) {
	if hz <= 0 || (s.MaxRate > 0 && hz > s.MaxRate) {
		return nil, ErrSampleRate
	}
	n := int(math.Round(seconds * hz))
	dt := 1 / hz
	var lim *rate.Limiter
	if s.Pace {
		lim = rate.NewLimiter(rate.Limit(hz), 1)
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return out, err
			}
		} else if ctx.Err() != nil {
			return out, ctx.Err()
		}
		s.mu.Lock()
		out = append(out, s.sample(dt))
		s.mu.Unlock()
	}
	return out, nil
}

// Stream produces chunks of chunkSize samples until the context is canceled
func (s *Sim) Stream(ctx context.Context, hz float64, chunkSize int) (<-chan Chunk, error) {
	if hz <= 0 || (s.MaxRate > 0 && hz > s.MaxRate) {
		return nil, ErrSampleRate
	}
	ch := make(chan Chunk)
	dt := 1 / hz
	var lim *rate.Limiter
	if s.Pace {
		lim = rate.NewLimiter(rate.Limit(hz), 1)
	}
	go func() {
		defer close(ch)
		for {
			buf := make([]float64, 0, chunkSize)
			for i := 0; i < chunkSize; i++ {
				if lim != nil {
					if err := lim.Wait(ctx); err != nil {
						return
					}
				} else if ctx.Err() != nil {
					return
				}
				s.mu.Lock()
				buf = append(buf, s.sample(dt))
				s.mu.Unlock()
			}
			select {
			case ch <- Chunk{Data: buf}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
