// Package prologix drives a Prologix GPIB-USB controller, letting GPIB-only
// instruments sit behind a serial port
package prologix

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gotmc/query"
	"go.bug.st/serial"
	"go.uber.org/multierr"

	"github.com/fog-lab/gyrolab/comm"
)

// Adapter is a GPIB controller-in-charge.  It satisfies io.ReadWriter for
// raw traffic and query.Queryer for ASCII queries, so instrument wrappers
// can be layered on top of it.
type Adapter struct {
	rw   io.ReadWriteCloser
	buf  *bufio.Reader
	addr int
}

// NewAdapter configures a Prologix controller over an open connection and
// addresses the instrument at the given primary GPIB address (0-30)
func NewAdapter(rw io.ReadWriteCloser, gpibAddr int) (*Adapter, error) {
	if gpibAddr < 0 || gpibAddr > 30 {
		return nil, fmt.Errorf("invalid primary address %d, must be 0-30", gpibAddr)
	}
	a := &Adapter{rw: rw, buf: bufio.NewReader(rw), addr: gpibAddr}
	cmds := []string{
		"savecfg 0",       // do not wear out the EPROM with our settings
		fmt.Sprintf("addr %d", gpibAddr),
		"mode 1",          // controller-in-charge
		"auto 0",          // no read-after-write, we ask explicitly
		"eoi 1",           // assert EOI with the last character
		"eos 0",           // CR+LF GPIB termination
		"read_tmo_ms 500",
		"eot_char 10",     // append a line feed when EOI is detected
		"eot_enable 1",
		"clr",             // selected device clear
	}
	for _, cmd := range cmds {
		if err := a.CommandController(cmd); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// CreationFunc returns a comm.CreationFunc which opens the controller's
// virtual COM port and targets the instrument at gpibAddr, so a GPIB
// instrument can sit behind a comm.Pool like any network device.
// Instruments on one bus share the port by opening it lazily through
// their pools; idle reclamation hands it back.
func CreationFunc(port string, gpibAddr int) comm.CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return OpenVCP(port, gpibAddr)
	}
}

// OpenVCP opens the controller's virtual COM port and configures it
func OpenVCP(port string, gpibAddr int) (*Adapter, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: 115200})
	if err != nil {
		return nil, err
	}
	a, err := NewAdapter(p, gpibAddr)
	if err != nil {
		return nil, multierr.Append(err, p.Close())
	}
	return a, nil
}

// Address returns the primary GPIB address of the instrument in use
func (a *Adapter) Address() int {
	return a.addr
}

// SetAddress retargets the controller at another primary GPIB address,
// letting one adapter serve several instruments on the bus
func (a *Adapter) SetAddress(gpibAddr int) error {
	if gpibAddr < 0 || gpibAddr > 30 {
		return fmt.Errorf("invalid primary address %d, must be 0-30", gpibAddr)
	}
	err := a.CommandController(fmt.Sprintf("addr %d", gpibAddr))
	if err != nil {
		return err
	}
	a.addr = gpibAddr
	return nil
}

// Read reads raw bytes from the instrument
func (a *Adapter) Read(p []byte) (int, error) {
	return a.buf.Read(p)
}

// Write writes raw bytes to the instrument
func (a *Adapter) Write(p []byte) (int, error) {
	return a.rw.Write(p)
}

// Command sends an ASCII command to the instrument, formatting according to
// a format specifier if arguments are provided
func (a *Adapter) Command(format string, args ...interface{}) error {
	cmd := format
	if len(args) > 0 {
		cmd = fmt.Sprintf(format, args...)
	}
	_, err := fmt.Fprintf(a.rw, "%s\n", strings.TrimSpace(cmd))
	return err
}

// Query sends an ASCII command to the instrument and reads back one line.
// Read-after-write is off, so the controller is told to read explicitly.
func (a *Adapter) Query(cmd string) (string, error) {
	err := a.Command(cmd)
	if err != nil {
		return "", err
	}
	err = a.CommandController("read eoi")
	if err != nil {
		return "", err
	}
	s, err := a.buf.ReadString('\n')
	if err == io.EOF {
		return s, nil
	}
	return strings.TrimRight(s, "\r\n"), err
}

// QueryFloat queries the instrument and parses the reply as a float64
func (a *Adapter) QueryFloat(cmd string) (float64, error) {
	return query.Float64(a, cmd)
}

// QueryInt queries the instrument and parses the reply as an int
func (a *Adapter) QueryInt(cmd string) (int, error) {
	return query.Int(a, cmd)
}

// QueryBool queries the instrument and parses the reply as a bool
func (a *Adapter) QueryBool(cmd string) (bool, error) {
	return query.Bool(a, cmd)
}

// CommandController sends a command to the Prologix controller itself,
// prefixed with ++ so it is not forwarded over GPIB
func (a *Adapter) CommandController(cmd string) error {
	_, err := fmt.Fprintf(a.rw, "++%s\n", strings.ToLower(strings.TrimSpace(cmd)))
	return err
}

// QueryController sends a command to the controller and reads one line back
func (a *Adapter) QueryController(cmd string) (string, error) {
	err := a.CommandController(cmd)
	if err != nil {
		return "", err
	}
	s, err := a.buf.ReadString('\n')
	return strings.TrimRight(s, "\r\n"), err
}

// Version returns the controller's firmware version string
func (a *Adapter) Version() (string, error) {
	return a.QueryController("ver")
}

// Close returns the bus to local control and closes the underlying port
func (a *Adapter) Close() error {
	return multierr.Append(a.CommandController("loc"), a.rw.Close())
}
