package newmark

import (
	"sync"
	"time"

	"github.com/fog-lab/gyrolab/util"
)

// SimStage is a software rotation stage.  Moves take the time they would on
// hardware given the velocity setpoint, unless Instant is true.
type SimStage struct {
	mu sync.Mutex

	angle    float64
	velocity float64

	// Limits bounds the absolute angle of the stage in degrees
	Limits util.Limiter

	// Instant makes moves complete immediately, tests run much faster
	// that way
	Instant bool
}

// NewSimStage returns a simulated stage at zero degrees moving at one
// degree per second with the hardware default travel limits
func NewSimStage() *SimStage {
	return &SimStage{velocity: 1, Limits: util.Limiter{Min: -10, Max: 10}}
}

// Angle returns the absolute position of the stage in degrees
func (s *SimStage) Angle() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle, nil
}

// MoveTo rotates the stage to an absolute angle in degrees
func (s *SimStage) MoveTo(deg float64) error {
	s.mu.Lock()
	if !s.Limits.Check(deg) {
		s.mu.Unlock()
		return errUnsafe
	}
	travel := deg - s.angle
	vel := s.velocity
	instant := s.Instant
	s.mu.Unlock()
	if !instant && vel > 0 {
		if travel < 0 {
			travel = -travel
		}
		time.Sleep(time.Duration(travel / vel * float64(time.Second)))
	}
	s.mu.Lock()
	s.angle = deg
	s.mu.Unlock()
	return nil
}

// CW rotates the stage clockwise through an angle in degrees
func (s *SimStage) CW(deg float64) error {
	s.mu.Lock()
	target := s.angle + deg
	s.mu.Unlock()
	return s.MoveTo(target)
}

// CCW rotates the stage counterclockwise through an angle in degrees
func (s *SimStage) CCW(deg float64) error {
	return s.CW(-deg)
}

// Velocity returns the angular velocity setpoint in degrees per second
func (s *SimStage) Velocity() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.velocity, nil
}

// SetVelocity configures the angular velocity in degrees per second
func (s *SimStage) SetVelocity(dps float64) error {
	if dps > maxVelocity {
		return errUnsafe
	}
	s.mu.Lock()
	s.velocity = dps
	s.mu.Unlock()
	return nil
}

// Home rotates the stage to zero degrees
func (s *SimStage) Home() error {
	return s.MoveTo(0)
}

// Stop is a no-op on the simulated stage
func (s *SimStage) Stop() error {
	return nil
}
