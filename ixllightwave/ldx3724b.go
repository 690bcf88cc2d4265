// Package ixllightwave provides an interface to ILX Lightwave laser diode controllers
package ixllightwave

import (
	"time"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/scpi"
)

// the controller terminates with <CR> <NL> <END> and accepts <NL>

// LDX3724B is an interface to the ILX Lightwave LDX-3724B laser diode
// controller
type LDX3724B struct {
	scpi.SCPI
}

// NewLDX3724B creates a new LDX3724B instance with the communication set up
func NewLDX3724B(addr string) *LDX3724B {
	maker := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &LDX3724B{scpi.SCPI{Pool: pool}}
}

// SetEmission turns the laser output on or off
func (l *LDX3724B) SetEmission(on bool) error {
	if on {
		return l.Write("LAS:OUT 1")
	}
	return l.Write("LAS:OUT 0")
}

// GetEmission queries if the laser is currently outputting
func (l *LDX3724B) GetEmission() (bool, error) {
	return l.ReadBool("LAS:OUT?")
}

// SetCurrent sets the laser diode current setpoint in mA
func (l *LDX3724B) SetCurrent(ma float64) error {
	return l.Write("LAS:LDI " + scpi.FmtFloat(ma))
}

// GetCurrent retrieves the laser diode current setpoint in mA
func (l *LDX3724B) GetCurrent() (float64, error) {
	return l.ReadFloat("LAS:LDI?")
}

// MeasureCurrent reads the actual laser diode current in mA
func (l *LDX3724B) MeasureCurrent() (float64, error) {
	return l.ReadFloat("LAS:MDI?")
}

// SetTemperature sets the TEC setpoint in Celsius
func (l *LDX3724B) SetTemperature(c float64) error {
	return l.Write("TEC:T " + scpi.FmtFloat(c))
}

// GetTemperature retrieves the TEC setpoint in Celsius
func (l *LDX3724B) GetTemperature() (float64, error) {
	return l.ReadFloat("TEC:T?")
}
