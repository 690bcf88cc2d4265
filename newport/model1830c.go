// Package newport provides an interface to Newport optical test equipment
package newport

import (
	"strconv"
	"time"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/scpi"
)

// Model1830C is an interface to the Newport 1830-C optical power meter
type Model1830C struct {
	scpi.SCPI
}

// NewModel1830C creates a new Model1830C instance communicating over TCP
func NewModel1830C(addr string) *Model1830C {
	return NewModel1830CFrom(comm.BackingOffTCPConnMaker(addr, 3*time.Second))
}

// NewModel1830CFrom creates a new Model1830C instance on an arbitrary
// transport, e.g. a Prologix GPIB bridge
func NewModel1830CFrom(maker comm.CreationFunc) *Model1830C {
	pool := comm.NewPool(1, time.Hour, maker)
	return &Model1830C{scpi.SCPI{Pool: pool}}
}

// GetPower returns the measured power in watts
func (m *Model1830C) GetPower() (float64, error) {
	return m.ReadFloat("D?")
}

// SetWavelength configures the calibration wavelength in nanometers
func (m *Model1830C) SetWavelength(nm float64) error {
	return m.Write("W" + scpi.FmtFloat(nm))
}

// GetWavelength retrieves the calibration wavelength in nanometers
func (m *Model1830C) GetWavelength() (float64, error) {
	return m.ReadFloat("W?")
}

// SetUnits selects the display units, 1 for watts, 3 for dBm
func (m *Model1830C) SetUnits(code int) error {
	return m.Write("U" + strconv.Itoa(code))
}

// SetAttenuator engages or disengages the front panel attenuator
func (m *Model1830C) SetAttenuator(on bool) error {
	if on {
		return m.Write("A1")
	}
	return m.Write("A0")
}

// GetAttenuator queries if the attenuator is engaged
func (m *Model1830C) GetAttenuator() (bool, error) {
	return m.ReadBool("A?")
}
