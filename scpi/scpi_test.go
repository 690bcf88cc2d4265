package scpi_test

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/scpi"
)

// scriptedDevice answers queries from a canned table and acks sets with +0
func scriptedDevice(t *testing.T, responses map[string]string) string {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				buf := make([]byte, 1500)
				for {
					n, err := conn.Read(buf)
					if err != nil {
						return
					}
					cmd := strings.TrimRight(string(buf[:n]), "\n")
					if resp, ok := responses[cmd]; ok {
						io.WriteString(conn, resp+"\n")
					} else if strings.Contains(cmd, "?") {
						io.WriteString(conn, "+0,\"No error\"\n")
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func newSCPI(t *testing.T, addr string, handshaking bool) *scpi.SCPI {
	maker := comm.BackingOffTCPConnMaker(addr, time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &scpi.SCPI{Pool: pool, Handshaking: handshaking}
}

func TestReadFloat(t *testing.T) {
	addr := scriptedDevice(t, map[string]string{"FREQ?": "1.25E+03"})
	s := newSCPI(t, addr, false)
	f, err := s.ReadFloat("FREQ?")
	if err != nil {
		t.Fatal(err)
	}
	if f != 1250 {
		t.Errorf("expected 1250, got %f", f)
	}
}

func TestHandshakingWriteHappyPath(t *testing.T) {
	addr := scriptedDevice(t, map[string]string{
		"*CLS; FREQ 100 ;:SYSTem:ERRor?": "+0,\"No error\"",
	})
	s := newSCPI(t, addr, true)
	if err := s.Write("FREQ 100"); err != nil {
		t.Errorf("expected no error on acked write, got %v", err)
	}
}

func TestHandshakingWriteSurfacesDeviceError(t *testing.T) {
	addr := scriptedDevice(t, map[string]string{
		"*CLS; FREQ -1 ;:SYSTem:ERRor?": "-222,\"Data out of range\"",
	})
	s := newSCPI(t, addr, true)
	err := s.Write("FREQ -1")
	if err == nil {
		t.Fatal("expected device error to be surfaced")
	}
	if !strings.Contains(err.Error(), "-222") {
		t.Errorf("expected error to carry the device code, got %v", err)
	}
}

func TestHandshakingReadStripsErrorField(t *testing.T) {
	addr := scriptedDevice(t, map[string]string{
		"*CLS; PHAS? ;:SYSTem:ERRor?": "12.5;+0,\"No error\"",
	})
	s := newSCPI(t, addr, true)
	f, err := s.ReadFloat("PHAS?")
	if err != nil {
		t.Fatal(err)
	}
	if f != 12.5 {
		t.Errorf("expected 12.5, got %f", f)
	}
}

func TestRawRoutesQueriesAndCommands(t *testing.T) {
	addr := scriptedDevice(t, map[string]string{"*IDN?": "ACME,FAKE100,0,1.0"})
	s := newSCPI(t, addr, true)
	resp, err := s.Raw("*IDN?")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp, "ACME") {
		t.Errorf("expected identification string, got %q", resp)
	}
	if !s.Handshaking {
		t.Error("expected handshaking to be restored after Raw")
	}
}
