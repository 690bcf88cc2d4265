package mccdaq

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fog-lab/gyrolab/daq"
	"github.com/fog-lab/gyrolab/util"
)

const (
	// maxScanRate is the fastest internal pacer rate in Hz
	maxScanRate = 100000

	// pacerClock is the base rate of the 32-bit pacer timer
	pacerClock = 40e6
)

// analog input option bits, see Options
const (
	optImmediateTransfer = 1 << 0
	optInternalPacerOn   = 1 << 1
	optStallInhibited    = 1 << 7
)

// AnalogInput acquires samples from one channel of a DAQ.  It satisfies
// daq.ADC, reading calibrated voltages via the device's internal pacer.
type AnalogInput struct {
	// DAQ is the device the input reads from
	DAQ *DAQ

	// Channel is the input channel in use, 0-7
	Channel int

	// Range is the full scale input range
	Range VoltageRange
}

// NewAnalogInput returns an analog input on the given channel at the
// widest input range.
func NewAnalogInput(d *DAQ, channel int) (*AnalogInput, error) {
	if channel < 0 || channel >= numChannels {
		return nil, fmt.Errorf("channel must be 0-%d, got %d", numChannels-1, channel)
	}
	return &AnalogInput{DAQ: d, Channel: channel, Range: Range10V}, nil
}

// setScanRanges writes the per-channel input range configuration.  Every
// channel gets this input's range; only one is enabled during a scan.
func (ai *AnalogInput) setScanRanges() error {
	ranges := make([]byte, numChannels)
	for i := range ranges {
		ranges[i] = byte(ai.Range)
	}
	return ai.DAQ.sendCommand(commandAnalogConfig, ranges)
}

// packScanData builds the 10 byte scan configuration written with the
// start scan command
func packScanData(numScans int, frequency float64, channels, options byte) []byte {
	data := make([]byte, 10)
	binary.LittleEndian.PutUint32(data[0:4], uint32(numScans))
	binary.LittleEndian.PutUint32(data[4:8], uint32(pacerPeriod(frequency)))
	data[8] = channels
	data[9] = options
	return data
}

// pacerPeriod converts a sample frequency in Hz to pacer timer counts
func pacerPeriod(frequency float64) int {
	if frequency <= 0 {
		return 0
	}
	frequency = util.Clamp(frequency, 0, maxScanRate)
	return int(math.Round(pacerClock/frequency - 1))
}

func (ai *AnalogInput) startScan(numScans int, frequency float64) error {
	// a scan start while one is running stalls the bus, so always stop
	// and drain first
	if err := ai.stopScan(); err != nil {
		return fmt.Errorf("stopping prior scan: %w", err)
	}
	if err := ai.clearScanBuffer(); err != nil {
		return fmt.Errorf("clearing scan FIFO: %w", err)
	}
	if err := ai.setScanRanges(); err != nil {
		return fmt.Errorf("writing input ranges: %w", err)
	}
	channels := byte(1 << uint(ai.Channel))
	options := byte(optInternalPacerOn)
	data := packScanData(numScans, frequency, channels, options)
	if err := ai.DAQ.sendCommand(commandAnalogStartScan, data); err != nil {
		return fmt.Errorf("starting analog scan: %w", err)
	}
	return nil
}

func (ai *AnalogInput) stopScan() error {
	return ai.DAQ.sendCommand(commandAnalogStopScan, nil)
}

func (ai *AnalogInput) clearScanBuffer() error {
	return ai.DAQ.sendCommand(commandAnalogClearBuffer, nil)
}

// readScan reads numScans samples from the bulk endpoint.  Block transfers
// arrive in 64 byte packets; the read size is padded up to a packet
// boundary and the surplus discarded.
func (ai *AnalogInput) readScan(numScans int) ([]byte, error) {
	want := numScans * bytesPerWord
	padded := want
	if rem := padded % maxBulkPacketSize; rem != 0 {
		padded += maxBulkPacketSize - rem
	}
	data := make([]byte, padded)
	got := 0
	for got < want {
		n, err := ai.DAQ.bulkRead(data[got:])
		if err != nil {
			return nil, fmt.Errorf("bulk scan read: %w", err)
		}
		got += n
	}
	status, err := ai.DAQ.Status()
	if err != nil {
		return nil, fmt.Errorf("reading status after scan: %w", err)
	}
	// reads that land exactly on a packet boundary are followed by a zero
	// length packet once the scan has stopped
	if want%maxBulkPacketSize == 0 && status&statusScanRunning == 0 {
		flush := make([]byte, bytesPerWord)
		_, _ = ai.DAQ.bulkRead(flush)
	}
	if status&statusScanOverrun != 0 {
		ai.stopScan()
		ai.clearScanBuffer()
		return nil, fmt.Errorf("analog input scan overrun")
	}
	return data[:want], nil
}

// Read acquires seconds*rate samples at the given rate in Hz and returns
// calibrated voltages.
func (ai *AnalogInput) Read(ctx context.Context, seconds, rate float64) ([]float64, error) {
	if rate <= 0 || rate > maxScanRate {
		return nil, daq.ErrSampleRate
	}
	numScans := int(math.Round(seconds * rate))
	if numScans < 1 {
		return nil, fmt.Errorf("requested acquisition contains no samples")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ai.startScan(numScans, rate); err != nil {
		return nil, err
	}
	defer ai.stopScan()
	raw, err := ai.readScan(numScans)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slope := ai.DAQ.cal.Slope[ai.Range][ai.Channel]
	intercept := ai.DAQ.cal.Intercept[ai.Range][ai.Channel]
	out := make([]float64, numScans)
	for i := range out {
		v, err := VoltsFromWord(raw[i*bytesPerWord:(i+1)*bytesPerWord], ai.Range, slope, intercept)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
