package newport

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

// scriptedMeter answers queries from a canned table and records every
// command it receives
type scriptedMeter struct {
	mu        sync.Mutex
	addr      string
	responses map[string]string
	received  []string
}

func newScriptedMeter(t *testing.T, responses map[string]string) *scriptedMeter {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	sm := &scriptedMeter{addr: ln.Addr().String(), responses: responses}
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
					sm.mu.Lock()
					sm.received = append(sm.received, cmd)
					resp, ok := sm.responses[cmd]
					sm.mu.Unlock()
					if ok {
						io.WriteString(conn, resp+"\n")
					}
				}
			}()
		}
	}()
	return sm
}

func (sm *scriptedMeter) sawCommand(cmd string) bool {
	// a bare write returns before the reader goroutine observes the
	// command, so poll briefly rather than checking once
	deadline := time.Now().Add(2 * time.Second)
	for {
		sm.mu.Lock()
		for _, c := range sm.received {
			if c == cmd {
				sm.mu.Unlock()
				return true
			}
		}
		sm.mu.Unlock()
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func meterFor(sm *scriptedMeter) *Model1830C {
	maker := comm.BackingOffTCPConnMaker(sm.addr, time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &Model1830C{scpi.SCPI{Pool: pool}}
}

func TestModel1830CPower(t *testing.T) {
	sm := newScriptedMeter(t, map[string]string{"D?": "1.5E-3"})
	m := meterFor(sm)
	p, err := m.GetPower()
	if err != nil {
		t.Fatal(err)
	}
	if p != 1.5e-3 {
		t.Errorf("expected 1.5 mW, got %G", p)
	}
}

func TestModel1830CAttenuator(t *testing.T) {
	sm := newScriptedMeter(t, map[string]string{"A?": "1"})
	m := meterFor(sm)
	if err := m.SetAttenuator(true); err != nil {
		t.Fatal(err)
	}
	if !sm.sawCommand("A1") {
		t.Errorf("engaging should send A1, saw %v", sm.received)
	}
	if err := m.SetAttenuator(false); err != nil {
		t.Fatal(err)
	}
	if !sm.sawCommand("A0") {
		t.Errorf("disengaging should send A0, saw %v", sm.received)
	}
	on, err := m.GetAttenuator()
	if err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Error("A? of 1 should report engaged")
	}
}
