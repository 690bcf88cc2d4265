//go:build !cgo

package main

import (
	"errors"

	"github.com/fog-lab/gyrolab/daq"
)

func newNI9215(node ObjSetup) (daq.ADC, error) {
	return nil, errors.New("ni9215 nodes require a build with cgo and the NI-DAQmx driver")
}
