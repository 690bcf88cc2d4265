package util_test

import (
	"testing"
	"time"

	"github.com/fog-lab/gyrolab/util"
)

func TestClampHigh(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = 20.
	)
	clamped := util.Clamp(input, low, high)
	if clamped == input {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestClampLow(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = -1.
	)
	clamped := util.Clamp(input, low, high)
	if clamped == input {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestSecsToDuration(t *testing.T) {
	var dur time.Duration = 123456789
	secs := dur.Seconds()
	out := util.SecsToDuration(secs)
	if out != dur {
		t.Errorf("expected SecsToDuration to round trip, output %v != expected %v", out, dur)
	}
}

func TestLimiterInRange(t *testing.T) {
	l := util.Limiter{Min: -5, Max: 5}
	if !l.Check(0) {
		t.Error("expected 0 to be within [-5, 5]")
	}
	if l.Check(6) {
		t.Error("expected 6 to be outside [-5, 5]")
	}
	if l.Check(-6) {
		t.Error("expected -6 to be outside [-5, 5]")
	}
}

func TestLimiterZeroValuePassesEverything(t *testing.T) {
	l := util.Limiter{}
	for _, v := range []float64{-1e9, 0, 1e9} {
		if !l.Check(v) {
			t.Errorf("expected unconfigured limiter to pass %f", v)
		}
	}
}

func TestMean(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	if m := util.Mean(data); m != 2.5 {
		t.Errorf("expected mean of 2.5, got %f", m)
	}
	if m := util.Mean(nil); m != 0 {
		t.Errorf("expected zero mean on empty input, got %f", m)
	}
}
