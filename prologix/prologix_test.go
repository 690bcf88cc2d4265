package prologix

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fog-lab/gyrolab/comm"
)

// loopback is a fake Prologix controller which records writes and plays
// back a canned response stream
type loopback struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.out.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.in.Write(p) }
func (l *loopback) Close() error                { return nil }

func newAdapter(t *testing.T, lb *loopback, addr int) *Adapter {
	a, err := NewAdapter(lb, addr)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestNewAdapterConfiguresController(t *testing.T) {
	lb := &loopback{}
	newAdapter(t, lb, 11)
	got := lb.in.String()
	for _, want := range []string{"++addr 11\n", "++mode 1\n", "++auto 0\n", "++eoi 1\n", "++clr\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("configuration missing %q, sent %q", want, got)
		}
	}
}

func TestNewAdapterRejectsBadAddress(t *testing.T) {
	if _, err := NewAdapter(&loopback{}, 31); err == nil {
		t.Error("address above 30 should error")
	}
	if _, err := NewAdapter(&loopback{}, -1); err == nil {
		t.Error("negative address should error")
	}
}

func TestQuerySendsReadEOI(t *testing.T) {
	lb := &loopback{}
	a := newAdapter(t, lb, 5)
	lb.out.WriteString("1.25E+03\n")
	resp, err := a.Query("FREQ?")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "1.25E+03" {
		t.Errorf("expected trimmed response, got %q", resp)
	}
	if !strings.Contains(lb.in.String(), "FREQ?\n++read eoi\n") {
		t.Errorf("query did not trigger a controller read, sent %q", lb.in.String())
	}
}

func TestQueryFloat(t *testing.T) {
	lb := &loopback{}
	a := newAdapter(t, lb, 5)
	lb.out.WriteString("2.5\n")
	f, err := a.QueryFloat("VOLT?")
	if err != nil {
		t.Fatal(err)
	}
	if f != 2.5 {
		t.Errorf("expected 2.5, got %f", f)
	}
}

func TestSetAddressRetargets(t *testing.T) {
	lb := &loopback{}
	a := newAdapter(t, lb, 5)
	if err := a.SetAddress(22); err != nil {
		t.Fatal(err)
	}
	if a.Address() != 22 {
		t.Errorf("expected address 22, got %d", a.Address())
	}
	if !strings.Contains(lb.in.String(), "++addr 22\n") {
		t.Error("controller was not retargeted")
	}
	if err := a.SetAddress(99); err == nil {
		t.Error("invalid address should error")
	}
}

func TestCreationFuncOpensLazily(t *testing.T) {
	maker := CreationFunc("/dev/nonexistent-prologix", 5)
	if maker == nil {
		t.Fatal("maker is nil")
	}
	if _, err := maker(); err == nil {
		t.Error("opening a nonexistent port should error")
	}
}

func TestAdapterServesAsPooledConnection(t *testing.T) {
	lb := &loopback{}
	maker := func() (io.ReadWriteCloser, error) { return NewAdapter(lb, 7) }
	pool := comm.NewPool(1, time.Hour, maker)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Put(conn)
	if _, err := io.WriteString(conn, "*IDN?\n"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(lb.in.String(), "*IDN?\n") {
		t.Errorf("pooled adapter did not forward the command, sent %q", lb.in.String())
	}
}

func TestCloseReturnsToLocal(t *testing.T) {
	lb := &loopback{}
	a := newAdapter(t, lb, 5)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(lb.in.String(), "++loc\n") {
		t.Error("close did not return bus to local control")
	}
}
