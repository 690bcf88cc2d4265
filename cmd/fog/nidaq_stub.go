//go:build !cgo

package main

import (
	"errors"

	"github.com/fog-lab/gyrolab/daq"
)

func buildNI9215(dev string) (daq.ADC, error) {
	return nil, errors.New("ni9215 requires a build with cgo and the NI-DAQmx driver")
}
