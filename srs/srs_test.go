package srs

import (
	"bufio"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/scpi"
)

// scriptedDevice answers queries from a canned table and records every
// command it receives
type scriptedDevice struct {
	mu        sync.Mutex
	addr      string
	responses map[string]string
	received  []string
}

func newScriptedDevice(t *testing.T, responses map[string]string) *scriptedDevice {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	sd := &scriptedDevice{addr: ln.Addr().String(), responses: responses}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				// frame by the \n terminator; back-to-back commands may
				// coalesce into a single Read
				sc := bufio.NewScanner(conn)
				for sc.Scan() {
					cmd := sc.Text()
					sd.mu.Lock()
					sd.received = append(sd.received, cmd)
					resp, ok := sd.responses[cmd]
					sd.mu.Unlock()
					if ok {
						io.WriteString(conn, resp+"\n")
					}
				}
			}()
		}
	}()
	return sd
}

func (sd *scriptedDevice) sawCommand(cmd string) bool {
	// a bare write returns before the reader goroutine observes the
	// command, so poll briefly rather than checking once
	deadline := time.Now().Add(2 * time.Second)
	for {
		sd.mu.Lock()
		for _, c := range sd.received {
			if c == cmd {
				sd.mu.Unlock()
				return true
			}
		}
		sd.mu.Unlock()
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func ds345For(sd *scriptedDevice) *DS345 {
	maker := comm.BackingOffTCPConnMaker(sd.addr, time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &DS345{scpi.SCPI{Pool: pool}}
}

func sr844For(sd *scriptedDevice) *SR844 {
	maker := comm.BackingOffTCPConnMaker(sd.addr, time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &SR844{scpi.SCPI{Pool: pool}}
}

func TestDS345SetFrequencyObeysLimits(t *testing.T) {
	cases := []struct {
		descr string
		fcn   string
		hz    float64
		ok    bool
	}{
		{"sine in range", "SIN", 1e6, true},
		{"sine too high", "SIN", 31e6, false},
		{"square too high", "SQU", 31e6, false},
		{"ramp too high", "RAMP", 200e3, false},
		{"ramp in range", "RAMP", 50e3, true},
		{"below minimum", "SIN", 1e-9, false},
		{"noise rejects any", "NOIS", 100, false},
	}
	for _, tc := range cases {
		t.Run(tc.descr, func(t *testing.T) {
			sd := newScriptedDevice(t, map[string]string{"FUNC?": tc.fcn})
			d := ds345For(sd)
			err := d.SetFrequency(tc.hz)
			if tc.ok && err != nil {
				t.Errorf("expected success, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}

func TestDS345VoltageRoundTripStripsUnits(t *testing.T) {
	sd := newScriptedDevice(t, map[string]string{"AMPL?": "2.5VP"})
	d := ds345For(sd)
	v, err := d.GetVoltage()
	if err != nil {
		t.Fatal(err)
	}
	if v != 2.5 {
		t.Errorf("expected 2.5, got %f", v)
	}
	err = d.SetVoltage(1.5)
	if err != nil {
		t.Fatal(err)
	}
	if !sd.sawCommand("AMPL 1.5VP") {
		t.Errorf("device did not receive AMPL command, saw %v", sd.received)
	}
}

func TestDS345SetPhaseObeysLimits(t *testing.T) {
	sd := newScriptedDevice(t, map[string]string{"FUNC?": "SIN"})
	d := ds345For(sd)
	if err := d.SetPhase(90); err != nil {
		t.Errorf("in range phase errored, %v", err)
	}
	if err := d.SetPhase(400); err == nil {
		t.Error("phase beyond 360 should error")
	}
	sd2 := newScriptedDevice(t, map[string]string{"FUNC?": "NOIS"})
	d2 := ds345For(sd2)
	if err := d2.SetPhase(10); err == nil {
		t.Error("phase during noise should error")
	}
}

func TestDS345UploadValidatesRange(t *testing.T) {
	sd := newScriptedDevice(t, nil)
	d := ds345For(sd)
	if err := d.Upload([]float64{0, 0.5, 1.5}); err == nil {
		t.Error("out of range point should error")
	}
	if err := d.Upload(nil); err == nil {
		t.Error("empty waveform should error")
	}
	if err := d.Upload([]float64{-1, 0, 1}); err != nil {
		t.Errorf("valid waveform errored, %v", err)
	}
	if !sd.sawCommand("DATA VOLATILE, -1, 0, 1") {
		t.Errorf("device did not receive upload, saw %v", sd.received)
	}
}

func TestSR844SensitivityMapsThroughTable(t *testing.T) {
	sd := newScriptedDevice(t, map[string]string{"SENS?": "12"})
	s := sr844For(sd)
	v, err := s.GetSensitivity()
	if err != nil {
		t.Fatal(err)
	}
	if v != 100e-3 {
		t.Errorf("index 12 should be 100 mVrms, got %G", v)
	}
	err = s.SetSensitivity(300e-6)
	if err != nil {
		t.Fatal(err)
	}
	if !sd.sawCommand("SENS 7") {
		t.Errorf("300 uVrms should map to index 7, saw %v", sd.received)
	}
	if err := s.SetSensitivity(123e-6); err == nil {
		t.Error("off-menu sensitivity should error")
	}
}

func TestSR844TimeConstantMapsThroughTable(t *testing.T) {
	sd := newScriptedDevice(t, map[string]string{"OFLT?": "8"})
	s := sr844For(sd)
	v, err := s.GetTimeConstant()
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("index 8 should be 1 second, got %G", v)
	}
	err = s.SetTimeConstant(30e3)
	if err != nil {
		t.Fatal(err)
	}
	if !sd.sawCommand("OFLT 17") {
		t.Errorf("30 ks should map to index 17, saw %v", sd.received)
	}
	if err := s.SetTimeConstant(2); err == nil {
		t.Error("off-menu time constant should error")
	}
}

func TestSR844AutogainPollsUntilClear(t *testing.T) {
	sd := newScriptedDevice(t, map[string]string{"*STB?1": "0"})
	s := sr844For(sd)
	if err := s.Autogain(); err != nil {
		t.Fatalf("autogain errored, %v", err)
	}
	if !sd.sawCommand("AGAN") {
		t.Errorf("device did not receive AGAN, saw %v", sd.received)
	}
}

func TestDS345OffsetObeysLimits(t *testing.T) {
	sd := newScriptedDevice(t, map[string]string{"OFFS?": "0.25"})
	d := ds345For(sd)
	if err := d.SetOffset(6); err == nil {
		t.Error("offset beyond 5 volts should error")
	}
	if err := d.SetOffset(1.5); err != nil {
		t.Fatal(err)
	}
	if !sd.sawCommand("OFFS 1.5") {
		t.Errorf("device did not receive OFFS, saw %v", sd.received)
	}
	v, err := d.GetOffset()
	if err != nil {
		t.Fatal(err)
	}
	if v != 0.25 {
		t.Errorf("expected 0.25, got %f", v)
	}
}

func TestSR844StatusDecodesBits(t *testing.T) {
	// bits 0 and 4 set
	sd := newScriptedDevice(t, map[string]string{"LIAS?": "17"})
	s := sr844For(sd)
	status, err := s.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !status["reference unlock"] {
		t.Error("bit 0 should decode as a reference unlock")
	}
	if !status["signal input overload"] {
		t.Error("bit 4 should decode as a signal input overload")
	}
	if status["aux input overload"] {
		t.Error("bit 10 should be clear")
	}
	if _, ok := status["unused"]; ok {
		t.Error("unused register bits should be dropped")
	}
}

func TestSR844PhaseLimits(t *testing.T) {
	sd := newScriptedDevice(t, nil)
	s := sr844For(sd)
	if err := s.SetPhase(-180); err != nil {
		t.Errorf("in range phase errored, %v", err)
	}
	if err := s.SetPhase(-361); err == nil {
		t.Error("phase beyond -360 should error")
	}
}
