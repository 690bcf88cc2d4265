package srs

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/scpi"
)

// sensitivities are the discrete full-scale sensitivities of the SR844 in
// volts rms, indexed by the SENS command argument
var sensitivities = []float64{
	100e-9,
	300e-9,
	1e-6,
	3e-6,
	10e-6,
	30e-6,
	100e-6,
	300e-6,
	1e-3,
	3e-3,
	10e-3,
	30e-3,
	100e-3,
	300e-3,
	1,
}

// timeConstants are the discrete filter time constants of the SR844 in
// seconds, indexed by the OFLT command argument.  See page 115 of the manual.
var timeConstants = []float64{
	100e-6,
	300e-6,
	1e-3,
	3e-3,
	10e-3,
	30e-3,
	100e-3,
	300e-3,
	1,
	3,
	10,
	30,
	100,
	300,
	1e3,
	3e3,
	10e3,
	30e3,
}

const autogainTimeout = 15 * time.Second

// SR844 is an interface to the Stanford Research Systems SR844 RF lock-in
// amplifier
type SR844 struct {
	scpi.SCPI
}

// NewSR844 creates a new SR844 instance communicating over TCP
func NewSR844(addr string) *SR844 {
	return NewSR844From(comm.BackingOffTCPConnMaker(addr, 3*time.Second))
}

// NewSR844From creates a new SR844 instance on an arbitrary transport,
// e.g. a Prologix GPIB bridge
func NewSR844From(maker comm.CreationFunc) *SR844 {
	pool := comm.NewPool(1, time.Hour, maker)
	return &SR844{scpi.SCPI{Pool: pool}}
}

// indexOf scans a table for an exact match, the instrument only accepts
// values from its menus
func indexOf(table []float64, v float64) (int, error) {
	for i, t := range table {
		if t == v {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%G is not one of the values supported by the instrument", v)
}

// SetSensitivity configures the full-scale sensitivity in volts rms.
// The value must be one of the discrete sensitivities of the instrument.
func (s *SR844) SetSensitivity(vrms float64) error {
	idx, err := indexOf(sensitivities, vrms)
	if err != nil {
		return err
	}
	return s.Write("SENS " + strconv.Itoa(idx))
}

// GetSensitivity returns the full-scale sensitivity in volts rms
func (s *SR844) GetSensitivity() (float64, error) {
	idx, err := s.ReadInt("SENS?")
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= len(sensitivities) {
		return 0, fmt.Errorf("sensitivity index %d out of range", idx)
	}
	return sensitivities[idx], nil
}

// SetTimeConstant configures the filter time constant in seconds.
// The value must be one of the discrete time constants of the instrument.
func (s *SR844) SetTimeConstant(seconds float64) error {
	idx, err := indexOf(timeConstants, seconds)
	if err != nil {
		return err
	}
	return s.Write("OFLT " + strconv.Itoa(idx))
}

// GetTimeConstant returns the filter time constant in seconds
func (s *SR844) GetTimeConstant() (float64, error) {
	idx, err := s.ReadInt("OFLT?")
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= len(timeConstants) {
		return 0, fmt.Errorf("time constant index %d out of range", idx)
	}
	return timeConstants[idx], nil
}

// SetPhase sets the detection phase in degrees relative to the reference.
// The instrument rounds to 0.01 degrees and wraps into (-180, 180].
func (s *SR844) SetPhase(deg float64) error {
	if deg < -360 || deg > 360 {
		return fmt.Errorf("phase must be between -360 and 360 degrees, got %G", deg)
	}
	return s.Write("PHAS " + scpi.FmtFloat(deg))
}

// GetPhase returns the detection phase in degrees
func (s *SR844) GetPhase() (float64, error) {
	return s.ReadFloat("PHAS?")
}

// Autophase adjusts the reference phase so the current measurement has a Y
// value of zero and an X value equal to the signal magnitude R
func (s *SR844) Autophase() error {
	return s.Write("APHS")
}

// Autogain runs the auto gain function and polls the status byte until the
// instrument reports the operation complete
func (s *SR844) Autogain() error {
	err := s.Write("AGAN")
	if err != nil {
		return err
	}
	deadline := time.Now().Add(autogainTimeout)
	for {
		busy, err := s.ReadInt("*STB?1")
		if err != nil {
			return err
		}
		if busy == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("autogain did not complete within %v", autogainTimeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// liaStatus names the condition bits of the LIA status register, see page
// 134 of the manual.  Bits 2 and 12-15 are unused.
var liaStatus = []struct {
	bit  uint
	name string
}{
	{0, "reference unlock"},
	{1, "reference frequency out of range"},
	{3, "data storage triggered"},
	{4, "signal input overload"},
	{5, "IF amplifier overload"},
	{6, "time constant filter overload"},
	{7, "reference frequency changed over 1%"},
	{8, "channel 1 output overload"},
	{9, "channel 2 output overload"},
	{10, "aux input overload"},
	{11, "ratio input underflow"},
}

// RawStatus returns the LIA status register as a 16 bit field
func (s *SR844) RawStatus() (uint16, error) {
	i, err := s.ReadInt("LIAS?")
	return uint16(i), err
}

// Status reads the LIA status register and decodes its named condition
// bits.  Unused register bits are dropped.
func (s *SR844) Status() (map[string]bool, error) {
	reg, err := s.RawStatus()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(liaStatus))
	for _, b := range liaStatus {
		out[b.name] = reg&(1<<b.bit) != 0
	}
	return out, nil
}
