// Package gyro automates characterization of fiber optic gyroscopes.
//
// A Bench ties together the three instruments a characterization run
// touches: the rotation stage the gyro is mounted on, the lock-in
// amplifier demodulating the interferometer output, and the DAQ
// digitizing the lock-in's analog out.  The workflow operations
// (Autophase, ScaleFactor, Tombstone, ARW) sequence those instruments
// the same way an operator at the bench would.
package gyro

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"time"

	"github.com/fog-lab/gyrolab/daq"
	"github.com/fog-lab/gyrolab/util"
)

// Stage moves the rotation stage the gyro is mounted on.  Moves block
// until motion completes.
type Stage interface {
	// Angle returns the absolute position of the stage in degrees
	Angle() (float64, error)

	// MoveTo rotates to an absolute angle in degrees
	MoveTo(float64) error

	// CW rotates clockwise through an angle in degrees
	CW(float64) error

	// CCW rotates counterclockwise through an angle in degrees
	CCW(float64) error

	// Velocity returns the move speed in degrees per second
	Velocity() (float64, error)

	// SetVelocity sets the move speed in degrees per second
	SetVelocity(float64) error

	// Home moves the stage to its zero position
	Home() error

	// Stop aborts a move in progress
	Stop() error
}

// LockIn is the subset of lock-in amplifier control the workflow uses.
type LockIn interface {
	// SetSensitivity configures the sensitivity in volts rms
	SetSensitivity(float64) error

	// GetSensitivity retrieves the sensitivity in volts rms
	GetSensitivity() (float64, error)

	// SetTimeConstant configures the filter time constant in seconds
	SetTimeConstant(float64) error

	// GetTimeConstant retrieves the filter time constant in seconds
	GetTimeConstant() (float64, error)

	// Autophase zeroes the Y quadrature, placing the signal entirely in X
	Autophase() error
}

// lineComments matches // comments in descriptor files
var lineComments = regexp.MustCompile(`//.*`)

// Gyro describes the fiber coil under test.  Descriptors are immutable
// after load.
type Gyro struct {
	// Name labels the coil, e.g. "kvothe"
	Name string `json:"name"`

	// Length is the fiber length in meters
	Length float64 `json:"length"`

	// Pitch is the angle between the coil normal and the stage normal
	// in degrees
	Pitch float64 `json:"pitch"`

	// Diameter is the coil diameter in meters
	Diameter float64 `json:"diameter"`

	// Radius is the coil radius in meters.  Descriptors may specify
	// either Diameter or Radius; the other is derived.
	Radius float64 `json:"radius"`

	// Sensitivity is the lock-in sensitivity in volts to use during
	// scale factor calibration, 0.3 if absent
	Sensitivity float64 `json:"sensitivity"`
}

// LoadGyro reads a gyro descriptor from a JSON file.  Line comments
// introduced by // are permitted and stripped before decoding.
func LoadGyro(path string) (Gyro, error) {
	var g Gyro
	b, err := os.ReadFile(path)
	if err != nil {
		return g, err
	}
	return ParseGyro(b)
}

// ParseGyro decodes a gyro descriptor from JSON-with-comments text.
func ParseGyro(b []byte) (Gyro, error) {
	var g Gyro
	b = lineComments.ReplaceAll(b, nil)
	if err := json.Unmarshal(b, &g); err != nil {
		return g, fmt.Errorf("decoding gyro descriptor: %w", err)
	}
	switch {
	case g.Diameter != 0 && g.Radius == 0:
		g.Radius = g.Diameter / 2
	case g.Radius != 0 && g.Diameter == 0:
		g.Diameter = g.Radius * 2
	}
	return g, nil
}

// Bench is the set of instruments a characterization run drives.
type Bench struct {
	Gyro  Gyro
	Stage Stage
	LIA   LockIn
	ADC   daq.ADC

	// Settle is the pause between starting a stage move and trusting
	// the lock-in output, one second at the hardware bench.  Tests
	// against simulated instruments shorten it.
	Settle time.Duration

	// scaleFactor caches the last calibration result in (°/h)/V
	scaleFactor float64
}

// NewBench returns a bench with the hardware settle time.
func NewBench(g Gyro, stage Stage, lia LockIn, adc daq.ADC) *Bench {
	return &Bench{Gyro: g, Stage: stage, LIA: lia, ADC: adc, Settle: time.Second}
}

// Home returns the stage to its zero position.  The zero should be
// calibrated to rotational east or west so the parked gyro sees no
// component of the earth rate.
func (b *Bench) Home() error {
	return b.Stage.Home()
}

// sleep pauses for d or until the context is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Autophase places the rotation signal entirely in the lock-in's X
// quadrature.  The stage jogs counterclockwise at the given velocity in
// degrees per second while the lock-in autophases against the parked
// sensitivity, then everything is restored and the stage returns to its
// starting angle.
func (b *Bench) Autophase(ctx context.Context, sensitivity, velocity float64) error {
	if sensitivity <= 0 {
		sensitivity = 0.03
	}
	if velocity <= 0 {
		velocity = 1
	}
	prevSens, err := b.LIA.GetSensitivity()
	if err != nil {
		return fmt.Errorf("reading sensitivity: %w", err)
	}
	prevVel, err := b.Stage.Velocity()
	if err != nil {
		return fmt.Errorf("reading stage velocity: %w", err)
	}
	start, err := b.Stage.Angle()
	if err != nil {
		return fmt.Errorf("reading stage angle: %w", err)
	}
	if err := b.Stage.SetVelocity(velocity); err != nil {
		return err
	}
	if err := b.LIA.SetSensitivity(sensitivity); err != nil {
		return err
	}

	moveDone := make(chan error, 1)
	go func() { moveDone <- b.Stage.CCW(2) }()
	if err := sleep(ctx, b.Settle); err != nil {
		b.Stage.Stop()
		<-moveDone
		return err
	}
	phaseErr := b.LIA.Autophase()

	// restore before surfacing any error so the bench is not left in
	// the calibration state
	restoreErr := firstErr(
		b.LIA.SetSensitivity(prevSens),
		<-moveDone,
		b.Stage.SetVelocity(prevVel),
		b.Stage.MoveTo(start),
	)
	if phaseErr != nil {
		return fmt.Errorf("autophase: %w", phaseErr)
	}
	return restoreErr
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ScaleFactorOptions configures a scale factor calibration.  The zero
// value selects the bench defaults.
type ScaleFactorOptions struct {
	// Sensitivity is the lock-in sensitivity in volts during the spin,
	// defaulting to the descriptor's value or 0.3
	Sensitivity float64

	// Velocity is the stage speed in degrees per second, default 1
	Velocity float64

	// Pitch overrides the descriptor's coil pitch in degrees
	Pitch float64
}

// ScaleFactor calibrates the conversion from lock-in volts to rotation
// rate.  The stage spins counterclockwise and then clockwise at a known
// velocity while the DAQ records the lock-in output; the separation of
// the two means, projected through the coil pitch and normalized by the
// spin rate, gives the factor S in (degrees/hour) per volt such that
// Omega[t] = S * V[t].
func (b *Bench) ScaleFactor(ctx context.Context, opt ScaleFactorOptions) (float64, error) {
	sens := opt.Sensitivity
	if sens <= 0 {
		sens = b.Gyro.Sensitivity
	}
	if sens <= 0 {
		sens = 0.3
	}
	velocity := opt.Velocity
	if velocity <= 0 {
		velocity = 1
	}
	pitch := opt.Pitch
	if pitch == 0 {
		pitch = b.Gyro.Pitch
	}

	prevSens, err := b.LIA.GetSensitivity()
	if err != nil {
		return 0, fmt.Errorf("reading sensitivity: %w", err)
	}
	prevTC, err := b.LIA.GetTimeConstant()
	if err != nil {
		return 0, fmt.Errorf("reading time constant: %w", err)
	}
	prevVel, err := b.Stage.Velocity()
	if err != nil {
		return 0, fmt.Errorf("reading stage velocity: %w", err)
	}

	const integrationTime = 0.01
	if err := b.LIA.SetSensitivity(sens); err != nil {
		return 0, err
	}
	if err := b.LIA.SetTimeConstant(integrationTime); err != nil {
		return 0, err
	}
	if err := b.Stage.SetVelocity(velocity); err != nil {
		return 0, err
	}
	rate := math.Floor(1 / integrationTime)

	spin := func(move func(float64) error) ([]float64, error) {
		moveDone := make(chan error, 1)
		go func() { moveDone <- move(velocity * 4.5) }()
		if err := sleep(ctx, b.Settle); err != nil {
			b.Stage.Stop()
			<-moveDone
			return nil, err
		}
		data, readErr := b.ADC.Read(ctx, 3, rate)
		if err := <-moveDone; err != nil {
			return nil, fmt.Errorf("calibration spin: %w", err)
		}
		return data, readErr
	}

	ccw, ccwErr := spin(b.Stage.CCW)
	var cw []float64
	cwErr := ccwErr
	if ccwErr == nil {
		cw, cwErr = spin(b.Stage.CW)
	}

	restoreErr := firstErr(
		b.LIA.SetTimeConstant(prevTC),
		b.LIA.SetSensitivity(prevSens),
		b.Stage.SetVelocity(prevVel),
	)
	if cwErr != nil {
		return 0, cwErr
	}
	if restoreErr != nil {
		return 0, restoreErr
	}

	voltSecondsPerDegree := (util.Mean(ccw) - util.Mean(cw)) / 2 /
		math.Cos(pitch*math.Pi/180) / velocity
	voltHoursPerDegree := voltSecondsPerDegree / 3600
	if voltHoursPerDegree == 0 {
		return 0, fmt.Errorf("calibration saw no separation between spin directions")
	}
	s := 1 / voltHoursPerDegree
	b.scaleFactor = s
	return s, nil
}

// CachedScaleFactor returns the result of the last calibration, or zero
// if none has run.
func (b *Bench) CachedScaleFactor() float64 {
	return b.scaleFactor
}

// ARW measures the angular random walk in degrees per root hour from a
// short stationary recording: the Allan deviation at one second of
// averaging, converted from degrees/hour to degrees/root-hour.
func (b *Bench) ARW(ctx context.Context, seconds, rate, scaleFactor float64) (float64, error) {
	if seconds <= 0 {
		seconds = 60
	}
	if rate <= 0 {
		rate = 100
	}
	if scaleFactor == 0 {
		var err error
		scaleFactor, err = b.ScaleFactor(ctx, ScaleFactorOptions{})
		if err != nil {
			return 0, err
		}
	}
	data, err := b.ADC.Read(ctx, seconds, rate)
	if err != nil {
		return 0, err
	}
	tmb := &Tombstone{data: data, Rate: rate, Start: time.Now(), ScaleFactor: scaleFactor}
	return tmb.ARW()
}
