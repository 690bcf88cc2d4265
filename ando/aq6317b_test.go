package ando

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/scpi"
)

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
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func TestParseTraceDropsBookkeepingFields(t *testing.T) {
	data, err := parseTrace("0,3,-52.1,-48.9,-60.0\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(data))
	}
	if data[0] != -52.1 || data[2] != -60.0 {
		t.Errorf("bad parse, got %v", data)
	}
}

func TestParseTraceRejectsShortResponse(t *testing.T) {
	if _, err := parseTrace("0,0"); err == nil {
		t.Error("short trace should error")
	}
}

func TestGetSpectrum(t *testing.T) {
	addr := scriptedDevice(t, map[string]string{
		"LDATB": "0,2,-50.0,-40.0",
		"WDATB": "0,2,1549.9,1550.1",
	})
	maker := comm.BackingOffTCPConnMaker(addr, time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	a := &AQ6317B{scpi.SCPI{Pool: pool}}
	wvl, pwr, err := a.GetSpectrum()
	if err != nil {
		t.Fatal(err)
	}
	if len(wvl) != 2 || len(pwr) != 2 {
		t.Fatalf("expected 2 points, got %d and %d", len(wvl), len(pwr))
	}
	if wvl[0] != 1549.9 || pwr[1] != -40.0 {
		t.Errorf("bad spectrum, wvl %v pwr %v", wvl, pwr)
	}
}

func TestGetSpectrumLengthMismatch(t *testing.T) {
	addr := scriptedDevice(t, map[string]string{
		"LDATB": "0,2,-50.0,-40.0",
		"WDATB": "0,1,1550.0",
	})
	maker := comm.BackingOffTCPConnMaker(addr, time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	a := &AQ6317B{scpi.SCPI{Pool: pool}}
	if _, _, err := a.GetSpectrum(); err == nil {
		t.Error("mismatched trace lengths should error")
	}
}
