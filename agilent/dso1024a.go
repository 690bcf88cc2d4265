package agilent

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fog-lab/gyrolab/comm"
	"github.com/fog-lab/gyrolab/oscilloscope"
	"github.com/fog-lab/gyrolab/scpi"
)

// settleAfterSingle is how long the scope needs after a SINGLE trigger
// before the waveform registers are coherent
const settleAfterSingle = 2 * time.Second

// Scope is an interface to the Agilent DSO1024A oscilloscope
type Scope struct {
	scpi.SCPI
}

// NewScope creates a new Scope instance with the communication set up
func NewScope(addr string) *Scope {
	maker := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &Scope{scpi.SCPI{Pool: pool}}
}

// SetScale configures the vertical scale of a channel in volts per division
func (s *Scope) SetScale(channel string, voltsPerDiv float64) error {
	return s.Write(fmt.Sprintf(":CHANnel%s:SCALe %s", channel, scpi.FmtFloat(voltsPerDiv)))
}

// GetScale retrieves the vertical scale of a channel in volts per division
func (s *Scope) GetScale(channel string) (float64, error) {
	return s.ReadFloat(fmt.Sprintf(":CHANnel%s:SCALe?", channel))
}

// SetTimebase configures the horizontal timebase in seconds per division
func (s *Scope) SetTimebase(secondsPerDiv float64) error {
	return s.Write(":TIMebase:SCALe " + scpi.FmtFloat(secondsPerDiv))
}

// GetTimebase retrieves the horizontal timebase in seconds per division
func (s *Scope) GetTimebase() (float64, error) {
	return s.ReadFloat(":TIMebase:SCALe?")
}

// Single triggers a single acquisition
func (s *Scope) Single() error {
	return s.Write(":SINGLE")
}

// Run resumes continuous acquisition
func (s *Scope) Run() error {
	return s.Write(":RUN")
}

// Stop halts acquisition
func (s *Scope) Stop() error {
	return s.Write(":STOP")
}

// parseASCIIBlock splits an IEEE 488.2 definite-length block of comma
// separated ASCII values into floats.  The header is "#" followed by one
// digit giving the length of the byte count that follows it.
func parseASCIIBlock(raw string) ([]float64, error) {
	if strings.HasPrefix(raw, "#") {
		if len(raw) < 2 {
			return nil, fmt.Errorf("malformed block header %q", raw)
		}
		nDigits := int(raw[1] - '0')
		if nDigits < 0 || nDigits > 9 || len(raw) < 2+nDigits {
			return nil, fmt.Errorf("malformed block header %q", raw[:2])
		}
		raw = raw[2+nDigits:]
	}
	pieces := strings.Split(raw, ",")
	out := make([]float64, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// AcquireWaveform captures a single triggered waveform from the given
// channels, then returns the scope to run mode
func (s *Scope) AcquireWaveform(channels []string) (oscilloscope.Waveform, error) {
	var wav oscilloscope.Waveform
	err := s.Write("ACQuire:TYPE NORMAL")
	if err != nil {
		return wav, err
	}
	err = s.Single()
	if err != nil {
		return wav, err
	}
	time.Sleep(settleAfterSingle)
	wav.Channels = make(map[string]oscilloscope.Channel, len(channels))
	for _, ch := range channels {
		err = s.Write("WAVeform:SOURce CHAN" + ch)
		if err != nil {
			return wav, err
		}
		err = s.Write("WAVeform:FORMat ASCII")
		if err != nil {
			return wav, err
		}
		xinc, err := s.ReadFloat("WAV:XINC?")
		if err != nil {
			return wav, err
		}
		raw, err := s.ReadString("WAVeform:DATA?")
		if err != nil {
			return wav, err
		}
		data, err := parseASCIIBlock(raw)
		if err != nil {
			return wav, err
		}
		wav.DT = xinc
		// in ASCII format the scope emits volts directly, so the
		// channel carries identity scaling
		wav.Channels[ch] = oscilloscope.Channel{Data: data, Scale: 1}
	}
	err = s.Run()
	return wav, err
}
