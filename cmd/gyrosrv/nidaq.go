//go:build cgo

package main

import (
	"github.com/fog-lab/gyrolab/daq"
	"github.com/fog-lab/gyrolab/nidaq"
)

// newNI9215 opens an NI 9215 node through the NI-DAQmx driver.
func newNI9215(node ObjSetup) (daq.ADC, error) {
	dev := argString(node.Args, "Dev")
	if dev == "" {
		dev = "Dev1"
	}
	d := nidaq.NewNI9215(dev)
	if mv := argFloat(node.Args, "MaxVoltage", 0); mv != 0 {
		d.MaxVoltage = mv
	}
	return d, nil
}
