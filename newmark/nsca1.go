// Package newmark provides an interface to Newmark Systems motion controllers
package newmark

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/util"
)

// ticksPerDegree is the stepper resolution of the NSC-A1
const ticksPerDegree = 1e4

// maxVelocity is the highest angular velocity we allow in degrees per second
const maxVelocity = 10

// errUnsafe is returned when a move would exceed the software travel limits
var errUnsafe = errors.New("rotating that far is too dangerous, aborted")

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set
func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        9600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 1 * time.Second}
}

// NSCA1 is an interface to the Newmark NSC-A1 single axis stepper motor
// controller driving a rotation stage
type NSCA1 struct {
	pool *comm.Pool

	// Channel is the controller channel the stage is wired to
	Channel int

	// Limits bounds the absolute angle of the stage in degrees
	Limits util.Limiter

	// PollInterval is the delay between motor status queries while waiting
	// for a move to complete
	PollInterval time.Duration
}

// NewNSCA1 returns a new NSCA1 with the default travel limits of plus or
// minus 10 degrees.  addr is a device file or COM port.
func NewNSCA1(addr string, channel int) *NSCA1 {
	maker := comm.SerialConnMaker(makeSerConf(addr))
	pool := comm.NewPool(1, time.Minute, maker)
	return &NSCA1{
		pool:         pool,
		Channel:      channel,
		Limits:       util.Limiter{Min: -10, Max: 10},
		PollInterval: 50 * time.Millisecond,
	}
}

// Cmd sends a raw command to the controller, padded with the channel and
// carriage return, and returns the reply
func (n *NSCA1) Cmd(cmd string) (string, error) {
	conn, err := n.pool.Get()
	if err != nil {
		return "", err
	}
	defer func() { n.pool.ReturnWithError(conn, err) }()
	wrap := comm.NewTerminator(conn, '\r', '\r')
	_, err = io.WriteString(wrap, fmt.Sprintf("@%02d%s", n.Channel, cmd))
	if err != nil {
		return "", err
	}
	buf := make([]byte, 64)
	nb, err := wrap.Read(buf)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf[:nb])), nil
}

func (n *NSCA1) cmdInt(cmd string) (int, error) {
	resp, err := n.Cmd(cmd)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp)
}

// Identification returns the controller's identifying string
func (n *NSCA1) Identification() (string, error) {
	return n.Cmd("ID")
}

// Angle returns the absolute position of the stage in degrees
func (n *NSCA1) Angle() (float64, error) {
	ticks, err := n.cmdInt("PX")
	if err != nil {
		return 0, err
	}
	return float64(ticks) / ticksPerDegree, nil
}

// Velocity returns the angular velocity setpoint in degrees per second
func (n *NSCA1) Velocity() (float64, error) {
	ticks, err := n.cmdInt("HSPD")
	if err != nil {
		return 0, err
	}
	return float64(ticks) / ticksPerDegree, nil
}

// SetVelocity configures the angular velocity setpoint in degrees per second
func (n *NSCA1) SetVelocity(dps float64) error {
	if dps > maxVelocity {
		return fmt.Errorf("max speed allowed is 10 deg per sec, got %G", dps)
	}
	_, err := n.Cmd(fmt.Sprintf("HSPD=%d", int(dps*ticksPerDegree)))
	return err
}

// Moving queries if the motor is currently in motion
func (n *NSCA1) Moving() (bool, error) {
	status, err := n.cmdInt("MST")
	if err != nil {
		return false, err
	}
	return status != 0, nil
}

// waitUntilIdle polls the motor status until the move completes
func (n *NSCA1) waitUntilIdle() error {
	for {
		moving, err := n.Moving()
		if err != nil {
			return err
		}
		if !moving {
			return nil
		}
		time.Sleep(n.PollInterval)
	}
}

// MoveTo rotates the stage to an absolute angle in degrees, blocking until
// the move completes
func (n *NSCA1) MoveTo(deg float64) error {
	if !n.Limits.Check(deg) {
		return errUnsafe
	}
	_, err := n.Cmd("ABS")
	if err != nil {
		return err
	}
	_, err = n.Cmd(fmt.Sprintf("X%d", int(deg*ticksPerDegree)))
	if err != nil {
		return err
	}
	return n.waitUntilIdle()
}

// CW rotates the stage clockwise through an angle in degrees, blocking
// until the move completes
func (n *NSCA1) CW(deg float64) error {
	pos, err := n.Angle()
	if err != nil {
		return err
	}
	if !n.Limits.Check(pos + deg) {
		return errUnsafe
	}
	_, err = n.Cmd("INC")
	if err != nil {
		return err
	}
	_, err = n.Cmd(fmt.Sprintf("X%d", int(deg*ticksPerDegree)))
	if err != nil {
		return err
	}
	return n.waitUntilIdle()
}

// CCW rotates the stage counterclockwise through an angle in degrees,
// blocking until the move completes
func (n *NSCA1) CCW(deg float64) error {
	return n.CW(-deg)
}

// Home rotates the stage to zero degrees
func (n *NSCA1) Home() error {
	return n.MoveTo(0)
}

// Stop halts motion immediately
func (n *NSCA1) Stop() error {
	_, err := n.Cmd("STOP")
	return err
}
