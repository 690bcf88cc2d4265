// Package agilent provides an interface to Agilent test and measurement equipment
package agilent

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/scpi"
)

// limits from the 33250A user manual
const (
	minFreq      = 1e-6
	maxFreqSine  = 80e6
	minFreqPulse = 500e-6
	maxFreqPulse = 50e6
)

// FunctionGenerator is an interface to the Agilent 33250A 80 MHz arbitrary
// waveform generator
type FunctionGenerator struct {
	scpi.SCPI
}

// NewFunctionGenerator creates a new FunctionGenerator instance with the
// communication set up
func NewFunctionGenerator(addr string) *FunctionGenerator {
	maker := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &FunctionGenerator{scpi.SCPI{Pool: pool, Handshaking: true}}
}

// SetFunction configures the output function used by the generator,
// one of SIN, SQU, RAMP, PULS, NOIS, DC, USER
func (f *FunctionGenerator) SetFunction(fcn string) error {
	fcn = strings.ToUpper(fcn)
	switch {
	case strings.HasPrefix(fcn, "USER "):
		// a named arbitrary waveform, FUNC:USER <name>
		return f.Write("FUNC:" + fcn)
	case fcn == "SIN", fcn == "SQU", fcn == "RAMP", fcn == "PULS", fcn == "NOIS", fcn == "DC", fcn == "USER":
		return f.Write("FUNC " + fcn)
	default:
		return fmt.Errorf("%s is not a recognized waveform", fcn)
	}
}

// GetFunction returns the current function type used by the generator
func (f *FunctionGenerator) GetFunction() (string, error) {
	fcn, err := f.ReadString("FUNC?")
	if err != nil {
		return "", err
	}
	if fcn == "USER" {
		name, err := f.ReadString("FUNC:USER?")
		if err != nil {
			return "", err
		}
		return "USER " + name, nil
	}
	return fcn, nil
}

// SetFrequency configures the output frequency of the generator in Hz,
// bounded by waveform type per the manual
func (f *FunctionGenerator) SetFrequency(hz float64) error {
	fcn, err := f.GetFunction()
	if err != nil {
		return err
	}
	switch {
	case hz < minFreq:
		return fmt.Errorf("minimum frequency is 1 uHz, got %G", hz)
	case (strings.HasPrefix(fcn, "SIN") || strings.HasPrefix(fcn, "SQU")) && hz > maxFreqSine:
		return fmt.Errorf("maximum frequency is 80 MHz for %s waves, got %G", fcn, hz)
	case strings.HasPrefix(fcn, "PULS") && (hz < minFreqPulse || hz > maxFreqPulse):
		return fmt.Errorf("frequency must be between 500 uHz and 50 MHz for pulse waves, got %G", hz)
	}
	return f.Write("FREQ " + scpi.FmtFloat(hz))
}

// GetFrequency returns the frequency of the generator in Hz
func (f *FunctionGenerator) GetFrequency() (float64, error) {
	return f.ReadFloat("FREQ?")
}

// SetVoltage configures the output amplitude of the signal in Vpp
func (f *FunctionGenerator) SetVoltage(volts float64) error {
	return f.Write("VOLT " + scpi.FmtFloat(volts))
}

// GetVoltage returns the output amplitude of the generator in Vpp
func (f *FunctionGenerator) GetVoltage() (float64, error) {
	return f.ReadFloat("VOLT?")
}

// SetPhase configures the output phase in degrees relative to the 10 MHz
// reference clock
func (f *FunctionGenerator) SetPhase(deg float64) error {
	err := f.Write("UNIT:ANGL DEG")
	if err != nil {
		return err
	}
	return f.Write("PHAS " + scpi.FmtFloat(deg))
}

// GetPhase returns the output phase of the generator in degrees
func (f *FunctionGenerator) GetPhase() (float64, error) {
	unit, err := f.ReadString("UNIT:ANGL?")
	if err != nil {
		return 0, err
	}
	deg, err := f.ReadFloat("PHAS?")
	if err != nil {
		return 0, err
	}
	if strings.Contains(unit, "RAD") {
		deg *= 180 / math.Pi
	}
	return deg, nil
}

// SetDutyCycle configures the square wave duty cycle in percent
func (f *FunctionGenerator) SetDutyCycle(pct float64) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("duty cycle must be between 0 and 100 percent, got %G", pct)
	}
	return f.Write("FUNCtion:SQUare:DCYCLe " + scpi.FmtFloat(pct))
}

// GetDutyCycle returns the square wave duty cycle in percent
func (f *FunctionGenerator) GetDutyCycle() (float64, error) {
	return f.ReadFloat("FUNCtion:SQUare:DCYCLe?")
}

// EnableOutput begins outputting the signal on the output connector
func (f *FunctionGenerator) EnableOutput() error {
	return f.Write("OUTPUT ON")
}

// DisableOutput ceases output on the output connector
func (f *FunctionGenerator) DisableOutput() error {
	return f.Write("OUTPUT OFF")
}

// GetOutput queries if the generator output is active
func (f *FunctionGenerator) GetOutput() (bool, error) {
	resp, err := f.ReadString("OUTPUT?")
	if err != nil {
		return false, err
	}
	switch {
	case strings.Contains(resp, "1"):
		return true, nil
	case strings.Contains(resp, "0"):
		return false, nil
	default:
		return false, fmt.Errorf("could not determine output state from %q", resp)
	}
}

// Upload loads a waveform, normalized to [-1, 1], into volatile memory
func (f *FunctionGenerator) Upload(points []float64) error {
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
	return f.Write("DATA VOLATILE, " + strings.Join(strs, ", "))
}

// SaveAs copies volatile memory to a named waveform slot
func (f *FunctionGenerator) SaveAs(name string) error {
	return f.Write("DATA:COPY " + name)
}
