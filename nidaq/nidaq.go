//go:build cgo

/*Package nidaq provides an interface to National Instruments NI 9215
analog input modules through the NI-DAQmx driver library.

Each acquisition is a self-contained DAQmx task: the task is created,
a voltage channel added, the sample clock configured, the finite read
performed, and the task torn down.  This trades a little per-read setup
cost for not having to track driver state between reads.

Basic usage:

 d := nidaq.NewNI9215("Dev1")
 data, err := d.Read(ctx, 1, 10000) // one second at 10 kHz
*/
package nidaq

/*
#cgo LDFLAGS: -lnidaqmx
#include <stdlib.h>
#include <NIDAQmx.h>
*/
import "C"
import (
	"context"
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/fog-lab/gyrolab/daq"
)

// emptyStr is passed for the unused task and channel name parameters
var emptyStr = C.CString("")

const (
	// the module digitizes ±10V regardless of the configured scale
	inputSpan = 10

	// maxSampleRate is the NI 9215's aggregate conversion limit in Hz
	maxSampleRate = 100000
)

// NI9215 is a four channel, 16-bit simultaneous sampling analog input
// module.  Reads acquire from channel ai0.  It satisfies daq.ADC.
type NI9215 struct {
	// Dev is the DAQmx device name, e.g. "Dev1"
	Dev string

	// MaxVoltage rescales readings, mapping the module's 10V full scale
	// onto this value.  Use 10 (the default from NewNI9215) for volts.
	MaxVoltage float64
}

// NewNI9215 returns an NI9215 on the given DAQmx device name with no
// rescaling applied.
func NewNI9215(dev string) *NI9215 {
	return &NI9215{Dev: dev, MaxVoltage: inputSpan}
}

// dmxErr converts a DAQmx status code to an error with the driver's
// extended message, or nil if the call succeeded.
func dmxErr(code C.int32) error {
	if code == 0 {
		return nil
	}
	buf := make([]C.char, 2048)
	C.DAQmxGetExtendedErrorInfo(&buf[0], C.uInt32(len(buf)))
	return fmt.Errorf("DAQmx error %d: %s", int(code), C.GoString(&buf[0]))
}

// Identification reads the product type string of the device.
func (n *NI9215) Identification() (string, error) {
	cdev := C.CString(n.Dev)
	defer C.free(unsafe.Pointer(cdev))
	buf := make([]C.char, 64)
	err := dmxErr(C.DAQmxGetDevProductType(cdev, &buf[0], C.uInt32(len(buf))))
	if err != nil {
		return "", err
	}
	return C.GoString(&buf[0]), nil
}

// Read acquires seconds*rate samples from ai0 at the given rate in Hz.
// The context deadline, if sooner than the acquisition length plus a
// few seconds of margin, bounds the driver-side timeout.
func (n *NI9215) Read(ctx context.Context, seconds, rate float64) ([]float64, error) {
	if rate <= 0 || rate > maxSampleRate {
		return nil, daq.ErrSampleRate
	}
	nsamp := int(math.Round(seconds * rate))
	if nsamp < 2 {
		return nil, fmt.Errorf("DAQmx requires at least 2 samples per finite read")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := seconds + 5
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl).Seconds(); rem < timeout {
			timeout = rem
		}
	}

	var task C.TaskHandle
	if err := dmxErr(C.DAQmxCreateTask(emptyStr, &task)); err != nil {
		return nil, err
	}
	// StopTask before ClearTask is harmless when the task never started
	defer func() {
		C.DAQmxStopTask(task)
		C.DAQmxClearTask(task)
	}()

	chans := C.CString(n.Dev + "/ai0")
	defer C.free(unsafe.Pointer(chans))
	err := dmxErr(C.DAQmxCreateAIVoltageChan(
		task, chans, emptyStr,
		C.DAQmx_Val_Cfg_Default, -inputSpan, inputSpan,
		C.DAQmx_Val_Volts, nil))
	if err != nil {
		return nil, err
	}
	err = dmxErr(C.DAQmxCfgSampClkTiming(
		task, emptyStr, C.float64(rate),
		C.DAQmx_Val_Rising, C.DAQmx_Val_FiniteSamps, C.uInt64(nsamp)))
	if err != nil {
		return nil, err
	}
	if err = dmxErr(C.DAQmxStartTask(task)); err != nil {
		return nil, err
	}

	data := make([]float64, nsamp)
	var nread C.int32
	err = dmxErr(C.DAQmxReadAnalogF64(
		task, C.int32(nsamp), C.float64(timeout),
		C.DAQmx_Val_GroupByChannel,
		(*C.float64)(unsafe.Pointer(&data[0])),
		C.uInt32(nsamp), &nread, nil))
	if err != nil {
		return nil, err
	}
	if int(nread) != nsamp {
		return nil, fmt.Errorf("short read, wanted %d samples, got %d", nsamp, int(nread))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if n.MaxVoltage != inputSpan && n.MaxVoltage != 0 {
		scale := n.MaxVoltage / inputSpan
		for i := range data {
			data[i] *= scale
		}
	}
	return data, nil
}
