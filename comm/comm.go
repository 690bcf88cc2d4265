/*Package comm provides connection pooling and framing for communication with
lab hardware.

Most instrument packages in this module boil down to:
 1. build a CreationFunc for the transport (TCP, serial, or a GPIB adapter)
 2. wrap it in a Pool so connections are shared and reclaimed when idle
 3. wrap leased connections in a Terminator (and usually a Timeout) so that
    message framing and deadlines are handled in one place

The instrument type then only deals in command strings.
*/
package comm

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// BackingOffTCPConnMaker returns a CreationFunc which dials addr with an
// exponential backoff.  Devices with lazy network stacks do not like being
// connection thrashed, so failures other than refusals are retried for up
// to 3 seconds.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			if err != nil {
				errS := strings.ToLower(err.Error())
				if strings.Contains(errS, "refused") {
					return backoff.Permanent(err)
				}
				return err
			}
			return nil
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, fmt.Errorf("connection failure to %s: %w", addr, err)
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc which opens the serial port
// described by cfg
func SerialConnMaker(cfg *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(cfg)
	}
}

// Terminator wraps a ReadWriter, appending the Tx terminator to each write
// and scanning reads up to (and stripping) the Rx terminator
type Terminator struct {
	rw io.ReadWriter

	rx, tx byte
}

// NewTerminator returns a Terminator wrapping rw with the given Rx and Tx
// termination bytes
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, rx: rx, tx: tx}
}

// Write sends b to the underlying ReadWriter with the Tx terminator appended
func (t *Terminator) Write(b []byte) (int, error) {
	b2 := make([]byte, len(b)+1)
	copy(b2, b)
	b2[len(b)] = t.tx
	n, err := t.rw.Write(b2)
	if n == len(b2) {
		n--
	}
	return n, err
}

// Read scans the underlying ReadWriter up to the Rx terminator, strips it,
// and copies the remainder into b.  The usual io.Reader contract applies.
func (t *Terminator) Read(b []byte) (int, error) {
	buf, err := bufio.NewReader(t.rw).ReadBytes(t.rx)
	if err != nil {
		return 0, err
	}
	if len(buf) > 0 && buf[len(buf)-1] == t.rx {
		buf = buf[:len(buf)-1]
	}
	n := copy(b, buf)
	return n, nil
}

// deadliner is a connection which supports deadlines, e.g. net.Conn
type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Timeout wraps a ReadWriter, refreshing the read and write deadlines of the
// underlying connection before each operation.  If the underlying connection
// does not support deadlines (e.g. a serial port, which carries its own
// timeout in its config) it is passed through unchanged.
type Timeout struct {
	rw io.ReadWriter

	dl deadliner

	timeout time.Duration
}

// NewTimeout returns a ReadWriter which applies timeout to each Read and Write
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (io.ReadWriter, error) {
	if t, ok := rw.(*Terminator); ok {
		inner, err := NewTimeout(t.rw, timeout)
		if err != nil {
			return nil, err
		}
		return NewTerminator(inner, t.rx, t.tx), nil
	}
	dl, ok := rw.(deadliner)
	if !ok {
		return rw, nil
	}
	return &Timeout{rw: rw, dl: dl, timeout: timeout}, nil
}

func (t *Timeout) Read(b []byte) (int, error) {
	err := t.dl.SetReadDeadline(time.Now().Add(t.timeout))
	if err != nil {
		return 0, err
	}
	return t.rw.Read(b)
}

func (t *Timeout) Write(b []byte) (int, error) {
	err := t.dl.SetWriteDeadline(time.Now().Add(t.timeout))
	if err != nil {
		return 0, err
	}
	return t.rw.Write(b)
}
