// Package daq provides interfaces and helpers for analog data acquisition
package daq

import (
	"context"
	"errors"
)

// ErrSampleRate is returned when a requested sample rate is outside the
// range a device can honor
var ErrSampleRate = errors.New("sample rate not achievable by this device")

// ADC is a single channel analog to digital converter
type ADC interface {
	// Read acquires approximately seconds*rate samples at the given rate
	// in Hz and returns them in volts.  It blocks for the duration of the
	// acquisition unless the context is canceled first.
	Read(ctx context.Context, seconds, rate float64) ([]float64, error)
}

// Chunk is one block of samples from a streaming acquisition.  Err is
// non-nil on the final chunk if the stream ended abnormally.
type Chunk struct {
	Data []float64
	Err  error
}

// Streamer is an ADC which can acquire open-endedly, delivering fixed-size
// chunks on a channel until the context is canceled
type Streamer interface {
	// Stream begins an acquisition at the given rate in Hz, sending
	// chunkSize samples at a time on the returned channel.  The channel is
	// closed when the context is canceled or the device faults.
	Stream(ctx context.Context, rate float64, chunkSize int) (<-chan Chunk, error)
}

// StreamFromReader adapts an ADC without native streaming support by
// issuing back to back finite reads of chunkSize samples
func StreamFromReader(ctx context.Context, a ADC, rate float64, chunkSize int) (<-chan Chunk, error) {
	if rate <= 0 {
		return nil, ErrSampleRate
	}
	ch := make(chan Chunk)
	seconds := float64(chunkSize) / rate
	go func() {
		defer close(ch)
		for {
			if ctx.Err() != nil {
				return
			}
			data, err := a.Read(ctx, seconds, rate)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				ch <- Chunk{Err: err}
				return
			}
			select {
			case ch <- Chunk{Data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
