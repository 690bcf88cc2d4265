//go:build cgo

package main

import (
	"github.com/fog-lab/gyrolab/daq"
	"github.com/fog-lab/gyrolab/nidaq"
)

func buildNI9215(dev string) (daq.ADC, error) {
	if dev == "" {
		dev = "Dev1"
	}
	return nidaq.NewNI9215(dev), nil
}
