package daq

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestSimReadProducesRequestedSampleCount(t *testing.T) {
	s := NewSim(1.5, 0.01, 1)
	s.Pace = false
	data, err := s.Read(context.Background(), 2, 100)
	if err != nil {
		t.Fatalf("read errored, %v", err)
	}
	if len(data) != 200 {
		t.Errorf("expected 200 samples, got %d", len(data))
	}
}

func TestSimReadMeanNearBias(t *testing.T) {
	s := NewSim(2.0, 0.05, 1)
	s.Pace = false
	data, err := s.Read(context.Background(), 10, 100)
	if err != nil {
		t.Fatalf("read errored, %v", err)
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))
	if math.Abs(mean-2.0) > 0.01 {
		t.Errorf("mean %f too far from bias 2.0", mean)
	}
}

func TestSimRejectsBadRates(t *testing.T) {
	s := NewSim(0, 1, 1)
	s.MaxRate = 100
	_, err := s.Read(context.Background(), 1, 0)
	if err != ErrSampleRate {
		t.Errorf("zero rate should be rejected, got %v", err)
	}
	_, err = s.Read(context.Background(), 1, 1000)
	if err != ErrSampleRate {
		t.Errorf("rate above MaxRate should be rejected, got %v", err)
	}
}

func TestSimStreamDeliversChunksUntilCanceled(t *testing.T) {
	s := NewSim(0, 1, 1)
	s.Pace = false
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Stream(ctx, 1000, 50)
	if err != nil {
		t.Fatalf("stream errored, %v", err)
	}
	for i := 0; i < 3; i++ {
		chunk, ok := <-ch
		if !ok {
			t.Fatal("stream closed early")
		}
		if chunk.Err != nil {
			t.Fatalf("chunk carried error, %v", chunk.Err)
		}
		if len(chunk.Data) != 50 {
			t.Errorf("expected chunk of 50, got %d", len(chunk.Data))
		}
	}
	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancel")
		}
	}
}

func TestStreamFromReaderChunksFiniteReads(t *testing.T) {
	s := NewSim(0, 1, 1)
	s.Pace = false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := StreamFromReader(ctx, s, 100, 10)
	if err != nil {
		t.Fatalf("stream errored, %v", err)
	}
	chunk := <-ch
	if chunk.Err != nil {
		t.Fatalf("chunk carried error, %v", chunk.Err)
	}
	if len(chunk.Data) != 10 {
		t.Errorf("expected chunk of 10, got %d", len(chunk.Data))
	}
}

func TestSimPacesAtSampleRate(t *testing.T) {
	s := NewSim(0, 1, 1)
	start := time.Now()
	_, err := s.Read(context.Background(), 0.1, 100)
	if err != nil {
		t.Fatalf("read errored, %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("paced read of 0.1s finished in %v, pacing not applied", elapsed)
	}
}
