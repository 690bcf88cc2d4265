// Package srs provides interfaces to Stanford Research Systems test and
// measurement equipment
package srs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/scpi"
)

// limits from the DS345 user manual
const (
	ds345MinFreq      = 1e-6
	ds345MaxFreqSine  = 30.2e6
	ds345MaxFreqRamp  = 100e3
	ds345MaxPhaseMag  = 360
	ds345MaxOffsetMag = 5
)

// DS345 is an interface to the Stanford Research Systems DS345 30 MHz
// synthesized function generator
type DS345 struct {
	scpi.SCPI
}

// NewDS345 creates a new DS345 instance communicating over TCP
func NewDS345(addr string) *DS345 {
	return NewDS345From(comm.BackingOffTCPConnMaker(addr, 3*time.Second))
}

// NewDS345From creates a new DS345 instance on an arbitrary transport,
// e.g. a Prologix GPIB bridge
func NewDS345From(maker comm.CreationFunc) *DS345 {
	pool := comm.NewPool(1, time.Hour, maker)
	return &DS345{scpi.SCPI{Pool: pool}}
}

// SetFunction configures the output function used by the generator
func (d *DS345) SetFunction(fcn string) error {
	return d.Write("FUNC " + fcn)
}

// GetFunction returns the current function type used by the generator
func (d *DS345) GetFunction() (string, error) {
	return d.ReadString("FUNC?")
}

// SetFrequency configures the output frequency of the generator in Hz.
// The manual forbids changing the frequency while generating noise, and
// bounds it by waveform type otherwise.
func (d *DS345) SetFrequency(hz float64) error {
	fcn, err := d.GetFunction()
	if err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(fcn, "NOIS"):
		return errors.New("frequency must remain at 10 MHz while generating noise")
	case hz < ds345MinFreq:
		return fmt.Errorf("minimum frequency is 1 uHz, got %G", hz)
	case (strings.HasPrefix(fcn, "SIN") || strings.HasPrefix(fcn, "SQ")) && hz > ds345MaxFreqSine:
		return fmt.Errorf("maximum frequency is 30.2 MHz for %s waves, got %G", fcn, hz)
	case strings.HasPrefix(fcn, "RAMP") && hz > ds345MaxFreqRamp:
		return fmt.Errorf("maximum frequency is 100 kHz for ramp waves, got %G", hz)
	}
	return d.Write("FREQ " + scpi.FmtFloat(hz))
}

// GetFrequency returns the frequency of the generator in Hz
func (d *DS345) GetFrequency() (float64, error) {
	return d.ReadFloat("FREQ?")
}

// SetVoltage configures the output amplitude of the signal in Vpp
func (d *DS345) SetVoltage(volts float64) error {
	return d.Write("AMPL " + scpi.FmtFloat(volts) + "VP")
}

// GetVoltage returns the output amplitude of the generator in Vpp.
// The device replies with a unit suffix, e.g. "1.00VP", which is stripped.
func (d *DS345) GetVoltage() (float64, error) {
	resp, err := d.ReadString("AMPL?")
	if err != nil {
		return 0, err
	}
	resp = strings.TrimSuffix(resp, "VP")
	return strconv.ParseFloat(resp, 64)
}

// SetOffset configures the DC offset of the output in volts.  The output
// amplifier clips beyond plus or minus 5 volts.
func (d *DS345) SetOffset(volts float64) error {
	if volts < -ds345MaxOffsetMag || volts > ds345MaxOffsetMag {
		return fmt.Errorf("offset must be between -5 and 5 volts, got %G", volts)
	}
	return d.Write("OFFS " + scpi.FmtFloat(volts))
}

// GetOffset returns the DC offset of the output in volts
func (d *DS345) GetOffset() (float64, error) {
	return d.ReadFloat("OFFS?")
}

// SetPhase configures the output phase in degrees relative to the reference.
// The manual forbids setting phase while generating noise and bounds it to
// plus or minus 360 degrees.
func (d *DS345) SetPhase(deg float64) error {
	fcn, err := d.GetFunction()
	if err != nil {
		return err
	}
	if strings.HasPrefix(fcn, "NOIS") {
		return errors.New("cannot set phase while generating noise")
	}
	if deg < -ds345MaxPhaseMag || deg > ds345MaxPhaseMag {
		return fmt.Errorf("phase must be between -360 and 360 degrees, got %G", deg)
	}
	return d.Write("PHSE " + scpi.FmtFloat(deg))
}

// GetPhase returns the output phase of the generator in degrees
func (d *DS345) GetPhase() (float64, error) {
	return d.ReadFloat("PHSE?")
}

// EnableOutput is a no-op; the DS345 output is always on
func (d *DS345) EnableOutput() error {
	return nil
}

// DisableOutput sets the output amplitude to zero
func (d *DS345) DisableOutput() error {
	return d.SetVoltage(0)
}

// GetOutput queries if the generator is outputting, true unless the
// amplitude is zero
func (d *DS345) GetOutput() (bool, error) {
	v, err := d.GetVoltage()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Upload loads a waveform, normalized to [-1, 1], into volatile memory
func (d *DS345) Upload(points []float64) error {
	if len(points) == 0 {
		return errors.New("waveform is empty")
	}
	strs := make([]string, len(points))
	for i, p := range points {
		if p < -1 || p > 1 {
			return fmt.Errorf("waveform values must be between -1 and 1, index %d is %G", i, p)
		}
		strs[i] = scpi.FmtFloat(p)
	}
	return d.Write("DATA VOLATILE, " + strings.Join(strs, ", "))
}

// SaveAs copies volatile memory to a named waveform slot
func (d *DS345) SaveAs(name string) error {
	return d.Write("DATA:COPY " + name)
}
