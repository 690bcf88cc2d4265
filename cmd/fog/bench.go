package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gotmc/libusb"
	"github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"

	"github.com/fog-lab/gyrolab/daq"
	"github.com/fog-lab/gyrolab/dlog"
	"github.com/fog-lab/gyrolab/gyro"
	"github.com/fog-lab/gyrolab/mccdaq"
	"github.com/fog-lab/gyrolab/newmark"
	"github.com/fog-lab/gyrolab/srs"
)

// buildBench assembles the instruments named by the persistent flags.
func buildBench() (*gyro.Bench, *logrus.Logger, error) {
	var g gyro.Gyro
	if flagGyro != "" {
		var err error
		g, err = gyro.LoadGyro(flagGyro)
		if err != nil {
			return nil, nil, err
		}
	}

	log := dlog.Discard()
	if flagLog != "" {
		var err error
		log, err = dlog.Open(flagLog)
		if err != nil {
			return nil, nil, err
		}
	}

	var stage gyro.Stage
	switch {
	case flagRot == "":
		sim := newmark.NewSimStage()
		sim.Instant = true
		stage = sim
	case strings.HasPrefix(flagRot, "http"):
		stage = newmark.NewRemoteStage(flagRot)
	default:
		stage = newmark.NewNSCA1(flagRot, 1)
	}

	var lia gyro.LockIn
	if flagLIA != "" {
		lia = srs.NewSR844(flagLIA)
	} else {
		lia = &simLockIn{sens: 0.3, tc: 0.1}
	}

	adc, err := buildDAQ(flagDAQ)
	if err != nil {
		return nil, nil, err
	}

	b := gyro.NewBench(g, stage, lia, adc)
	if flagRot == "" {
		b.Settle = time.Millisecond
	}
	return b, log, nil
}

// buildDAQ resolves the --daq flag, e.g. "sim", "usb1608fs:01D86CA2",
// "ni9215:Dev1".
func buildDAQ(spec string) (daq.ADC, error) {
	name, arg := spec, ""
	if i := strings.IndexByte(spec, ':'); i >= 0 {
		name, arg = spec[:i], spec[i+1:]
	}
	switch strings.ToLower(name) {
	case "sim":
		sim := daq.NewSim(0, 0.01, time.Now().UnixNano())
		sim.Pace = false
		return sim, nil
	case "usb1608fs":
		ctx, err := libusb.NewContext()
		if err != nil {
			return nil, err
		}
		var d *mccdaq.DAQ
		if arg != "" {
			d, err = mccdaq.NewDAQBySerial(ctx, arg)
		} else {
			d, err = mccdaq.NewDAQ(ctx)
		}
		if err != nil {
			return nil, err
		}
		return mccdaq.NewAnalogInput(d, 0)
	case "ni9215":
		return buildNI9215(arg)
	default:
		return nil, fmt.Errorf("unknown DAQ %q", name)
	}
}

// simLockIn lets sim-only runs proceed without lock-in hardware.
type simLockIn struct {
	sens, tc float64
}

func (s *simLockIn) SetSensitivity(v float64) error   { s.sens = v; return nil }
func (s *simLockIn) GetSensitivity() (float64, error) { return s.sens, nil }
func (s *simLockIn) SetTimeConstant(v float64) error  { s.tc = v; return nil }
func (s *simLockIn) GetTimeConstant() (float64, error) {
	return s.tc, nil
}
func (s *simLockIn) Autophase() error { return nil }

// startSpinner begins a terminal spinner with the given message, or
// returns nil in quiet mode.
func startSpinner(msg string) *yacspin.Spinner {
	if flagQuiet {
		return nil
	}
	cfg := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[59],
		Suffix:            " " + msg,
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopFailCharacter: "✗",
		StopColors:        []string{"fgGreen"},
		StopFailColors:    []string{"fgRed"},
	}
	spin, err := yacspin.New(cfg)
	if err != nil {
		return nil
	}
	if err := spin.Start(); err != nil {
		return nil
	}
	return spin
}

func stopSpinner(s *yacspin.Spinner, ok bool) {
	if s == nil {
		return
	}
	if ok {
		s.Stop()
	} else {
		s.StopFail()
	}
}
