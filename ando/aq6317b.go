// Package ando provides an interface to ANDO optical test equipment
package ando

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/scpi"
)

// AQ6317B is an interface to the ANDO AQ6317B optical spectrum analyzer
type AQ6317B struct {
	scpi.SCPI
}

// NewAQ6317B creates a new AQ6317B instance with the communication set up
func NewAQ6317B(addr string) *AQ6317B {
	return NewAQ6317BFrom(comm.BackingOffTCPConnMaker(addr, 3*time.Second))
}

// NewAQ6317BFrom creates a new AQ6317B instance on an arbitrary transport,
// e.g. a Prologix GPIB bridge
func NewAQ6317BFrom(maker comm.CreationFunc) *AQ6317B {
	pool := comm.NewPool(1, time.Hour, maker)
	return &AQ6317B{scpi.SCPI{Pool: pool}}
}

// parseTrace converts the analyzer's comma separated trace response to
// floats.  The first two fields are bookkeeping (status and sample count)
// and are dropped.
func parseTrace(raw string) ([]float64, error) {
	pieces := strings.Split(strings.TrimRight(raw, "\r\n"), ",")
	if len(pieces) < 3 {
		return nil, fmt.Errorf("trace response too short, %q", raw)
	}
	pieces = pieces[2:]
	out := make([]float64, len(pieces))
	for i, p := range pieces {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// GetSpectrum performs a single read of the instrument, returning the
// wavelengths in nanometers and the optical power in dBm
func (a *AQ6317B) GetSpectrum() ([]float64, []float64, error) {
	powerRaw, err := a.ReadString("LDATB")
	if err != nil {
		return nil, nil, err
	}
	power, err := parseTrace(powerRaw)
	if err != nil {
		return nil, nil, err
	}
	wvlRaw, err := a.ReadString("WDATB")
	if err != nil {
		return nil, nil, err
	}
	wvl, err := parseTrace(wvlRaw)
	if err != nil {
		return nil, nil, err
	}
	if len(wvl) != len(power) {
		return nil, nil, fmt.Errorf("wavelength and power traces disagree in length, %d vs %d", len(wvl), len(power))
	}
	return wvl, power, nil
}
