package gyro

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fog-lab/gyrolab/allan"
)

// ErrDriftUnresolvable indicates the tombstone sample rate is too low
// for the convergence monitor to ever separate noise from drift.
var ErrDriftUnresolvable = errors.New("sample rate too low to resolve drift floor")

// Tombstone is a no-rotation baseline recording, a time series of scaled
// rotation rate samples in degrees per hour plus the settings that
// produced it.
type Tombstone struct {
	// Rate is the sample rate in Hz
	Rate float64

	// Start is when acquisition began
	Start time.Time

	// ScaleFactor converts lock-in volts to degrees per hour
	ScaleFactor float64

	mu   sync.RWMutex
	data []float64

	// async plumbing; nil for synchronous records
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}
	err     error
}

// Data returns a snapshot of the raw samples in volts collected so far.
func (t *Tombstone) Data() []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]float64, len(t.data))
	copy(out, t.data)
	return out
}

// Scaled returns a snapshot of the samples converted to degrees per hour.
func (t *Tombstone) Scaled() []float64 {
	out := t.Data()
	for i := range out {
		out[i] *= t.ScaleFactor
	}
	return out
}

// Len returns the number of samples collected so far.
func (t *Tombstone) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// Duration returns the time span the record covers.
func (t *Tombstone) Duration() time.Duration {
	if t.Rate == 0 {
		return 0
	}
	return time.Duration(float64(t.Len()) / t.Rate * float64(time.Second))
}

// appendLive adds a chunk unless the record has been stopped.  The stop
// check and the append share the record mutex, so an append racing Stop
// either lands before Stop returns or not at all.
func (t *Tombstone) appendLive(chunk []float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped.Load() {
		return false
	}
	t.data = append(t.data, chunk...)
	return true
}

// Stop ends an asynchronous acquisition.  It is idempotent and safe to
// call from any goroutine; no samples are written after it returns and
// the collector and checker wind down promptly.  Stop on a synchronous
// record is a no-op.
func (t *Tombstone) Stop() {
	if t.stopped.CompareAndSwap(false, true) {
		// wait out any append in flight
		t.mu.Lock()
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}

// Stopped reports whether the acquisition has been told to stop.
func (t *Tombstone) Stopped() bool {
	return t.stopped.Load()
}

// Done returns a channel closed when both background goroutines of an
// asynchronous acquisition have exited.  It returns a closed channel
// for synchronous records.
func (t *Tombstone) Done() <-chan struct{} {
	if t.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return t.done
}

// Err reports why an asynchronous acquisition ended, nil for a normal
// convergence or an operator stop.  Call after Done is closed.
func (t *Tombstone) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

func (t *Tombstone) setErr(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
}

// Devs computes the overlapped Allan deviation of the scaled record at
// octave-spaced averaging times.  The two return slices are parallel.
func (t *Tombstone) Devs() ([]float64, []float64, error) {
	scaled := t.Scaled()
	taus := allan.OctaveTaus(len(scaled), t.Rate)
	if len(taus) == 0 {
		return nil, nil, allan.ErrInsufficientSampleTime
	}
	devs, err := allan.OADev(scaled, t.Rate, taus)
	if err != nil {
		return nil, nil, err
	}
	return taus, devs, nil
}

// ARW returns the angular random walk in degrees per root hour, the
// Allan deviation at one second of averaging divided by 60.
func (t *Tombstone) ARW() (float64, error) {
	devs, err := allan.OADev(t.Scaled(), t.Rate, []float64{1})
	if err != nil {
		return 0, err
	}
	return devs[0] / 60, nil
}

// TombstoneOptions configures a tombstone run.  The zero value requests
// an open-ended asynchronous run with the workflow defaults.
type TombstoneOptions struct {
	// Duration is the recording length.  Zero requests an open-ended
	// run terminated by the convergence monitor.
	Duration time.Duration

	// Rate is the sample rate in Hz, default 10
	Rate float64

	// Autophase runs the autophase routine first
	Autophase bool

	// NoHome skips returning the stage to home before recording
	NoHome bool

	// ScaleFactor in (°/h)/V.  Zero runs a calibration; the cached
	// bench value can be passed explicitly to skip it.
	ScaleFactor float64

	// Sensitivity passes through to the scale factor calibration
	Sensitivity float64

	// MaxDuration caps an open-ended run, default 24 h
	MaxDuration time.Duration

	// CheckPeriod is how often the convergence monitor recomputes the
	// Allan deviation, default 5 s
	CheckPeriod time.Duration

	// ThresholdDB is the max-over-min deviation ratio in decibels at
	// which the record is considered converged, default 5
	ThresholdDB float64

	// DriftFloorTau is the averaging time in seconds beyond which
	// deviations count as drift, default 10
	DriftFloorTau float64
}

func (o *TombstoneOptions) fill() {
	if o.Rate <= 0 {
		o.Rate = 10
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 24 * time.Hour
	}
	if o.CheckPeriod <= 0 {
		o.CheckPeriod = 5 * time.Second
	}
	if o.ThresholdDB <= 0 {
		o.ThresholdDB = 5
	}
	if o.DriftFloorTau <= 0 {
		o.DriftFloorTau = 10
	}
}

// Tombstone records a no-rotation baseline.  With a fixed duration the
// call blocks for the full recording.  With no duration it returns
// immediately and fills the record in the background until the Allan
// deviation curve shows a resolved drift floor, the max duration
// elapses, or Stop is called.
func (b *Bench) Tombstone(ctx context.Context, opt TombstoneOptions) (*Tombstone, error) {
	opt.fill()

	if !opt.NoHome {
		if err := b.Home(); err != nil {
			return nil, fmt.Errorf("homing stage: %w", err)
		}
	}
	if opt.Autophase {
		if err := b.Autophase(ctx, 0, 0); err != nil {
			return nil, err
		}
	}
	sf := opt.ScaleFactor
	if sf == 0 {
		var err error
		sf, err = b.ScaleFactor(ctx, ScaleFactorOptions{Sensitivity: opt.Sensitivity})
		if err != nil {
			return nil, err
		}
	}

	tmb := &Tombstone{Rate: opt.Rate, Start: time.Now(), ScaleFactor: sf}

	if opt.Duration > 0 {
		data, err := b.ADC.Read(ctx, opt.Duration.Seconds(), opt.Rate)
		if err != nil {
			return nil, err
		}
		tmb.data = data
		return tmb, nil
	}

	// open-ended: a collector goroutine appends one second chunks and a
	// checker goroutine watches the Allan deviation curve.  The record's
	// Stop cancels the shared context; each goroutine also stops the
	// record on its own exit conditions.
	runCtx, cancel := context.WithCancel(ctx)
	tmb.cancel = cancel
	tmb.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		wg.Wait()
		cancel()
		close(tmb.done)
	}()
	go func() {
		defer wg.Done()
		b.collect(runCtx, tmb, opt)
	}()
	go func() {
		defer wg.Done()
		b.checkConvergence(runCtx, tmb, opt)
	}()
	return tmb, nil
}

// collect appends one second reads to the record until told to stop or
// the max duration elapses.
func (b *Bench) collect(ctx context.Context, tmb *Tombstone, opt TombstoneOptions) {
	maxSamples := int(opt.MaxDuration.Seconds() * opt.Rate)
	for tmb.Len() < maxSamples {
		if tmb.Stopped() || ctx.Err() != nil {
			return
		}
		chunk, err := b.ADC.Read(ctx, 1, opt.Rate)
		if err != nil {
			if ctx.Err() == nil {
				tmb.setErr(fmt.Errorf("tombstone read: %w", err))
			}
			tmb.Stop()
			return
		}
		if !tmb.appendLive(chunk) {
			return
		}
	}
	tmb.Stop()
}

// checkConvergence periodically computes the Allan deviation of the
// record so far and stops the run once the longest averaging times sit
// a threshold above the deviation minimum, meaning the drift floor has
// been resolved.
func (b *Bench) checkConvergence(ctx context.Context, tmb *Tombstone, opt TombstoneOptions) {
	// a sample period longer than the drift floor can never place the
	// deviation minimum below it
	if 1/opt.Rate >= opt.DriftFloorTau {
		tmb.setErr(ErrDriftUnresolvable)
		tmb.Stop()
		return
	}
	tick := time.NewTicker(opt.CheckPeriod)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		if tmb.Stopped() {
			return
		}
		taus, devs, err := tmb.Devs()
		switch {
		case errors.Is(err, allan.ErrInsufficientSampleTime):
			// expected until enough data accumulates
			continue
		case errors.Is(err, allan.ErrInsufficientSamplingRate):
			tmb.setErr(ErrDriftUnresolvable)
			tmb.Stop()
			return
		case err != nil:
			tmb.setErr(err)
			tmb.Stop()
			return
		}
		driftIdx := -1
		for i, tau := range taus {
			if tau >= opt.DriftFloorTau {
				driftIdx = i
				break
			}
		}
		if driftIdx < 0 {
			// no averaging time past the drift floor yet
			continue
		}
		floor := math.Inf(1)
		for _, d := range devs {
			if d < floor {
				floor = d
			}
		}
		peak := math.Inf(-1)
		for _, d := range devs[driftIdx:] {
			if d > peak {
				peak = d
			}
		}
		if floor > 0 && 10*math.Log10(peak/floor) > opt.ThresholdDB {
			tmb.Stop()
			return
		}
	}
}
