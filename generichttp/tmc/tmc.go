// Package tmc provides an HTTP interface to test and measurement devices
package tmc

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fog-lab/gyrolab/generichttp"
	"github.com/fog-lab/gyrolab/generichttp/ascii"
)

// FunctionGenerator describes an interface to a function generator
type FunctionGenerator interface {
	// SetFunction sets the output function (SIN, SQU, RAMP, ...)
	SetFunction(string) error

	// GetFunction returns the current function type used
	GetFunction() (string, error)

	// SetFrequency configures the frequency of the output waveform in Hz
	SetFrequency(float64) error

	// GetFrequency gets the frequency of the output waveform in Hz
	GetFrequency() (float64, error)

	// SetVoltage configures the voltage of the output waveform in Vpp
	SetVoltage(float64) error

	// GetVoltage retrieves the voltage of the output waveform in Vpp
	GetVoltage() (float64, error)

	// EnableOutput begins outputting the signal on the output connector
	EnableOutput() error

	// DisableOutput ceases output on the output connector
	DisableOutput() error

	// GetOutput queries if the generator output is active
	GetOutput() (bool, error)
}

// PhaseController is a device which can set the phase of its output relative
// to a synchronization reference
type PhaseController interface {
	// SetPhase sets the output phase in degrees
	SetPhase(float64) error

	// GetPhase retrieves the output phase in degrees
	GetPhase() (float64, error)
}

// OffsetController is a device which can control the DC offset of its
// output
type OffsetController interface {
	// SetOffset sets the DC offset of the output in volts
	SetOffset(float64) error

	// GetOffset retrieves the DC offset of the output in volts
	GetOffset() (float64, error)
}

// DutyCycleController is a device which can control the duty cycle of a
// square output
type DutyCycleController interface {
	// SetDutyCycle sets the square wave duty cycle in percent
	SetDutyCycle(float64) error

	// GetDutyCycle retrieves the square wave duty cycle in percent
	GetDutyCycle() (float64, error)
}

// ArbitraryWaveformer can upload user-defined waveforms to volatile memory
// and save them by name
type ArbitraryWaveformer interface {
	// Upload loads a waveform, normalized to [-1, 1], into volatile memory
	Upload([]float64) error

	// SaveAs copies volatile memory to a named waveform slot
	SaveAs(string) error
}

// HTTPFunctionGenerator wraps a function generator in an HTTP route table
type HTTPFunctionGenerator struct {
	FG FunctionGenerator

	RouteTable generichttp.RouteTable
}

// NewHTTPFunctionGenerator wraps a function generator, binding optional
// capabilities if the concrete type supports them
func NewHTTPFunctionGenerator(fg FunctionGenerator) HTTPFunctionGenerator {
	w := HTTPFunctionGenerator{FG: fg}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/function"}:  generichttp.GetString(fg.GetFunction),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/function"}: generichttp.SetString(fg.SetFunction),

		generichttp.MethodPath{Method: http.MethodGet, Path: "/frequency"}:  generichttp.GetFloat(fg.GetFrequency),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/frequency"}: generichttp.SetFloat(fg.SetFrequency),

		generichttp.MethodPath{Method: http.MethodGet, Path: "/voltage"}:  generichttp.GetFloat(fg.GetVoltage),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/voltage"}: generichttp.SetFloat(fg.SetVoltage),

		generichttp.MethodPath{Method: http.MethodGet, Path: "/output"}:  generichttp.GetBool(fg.GetOutput),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/output"}: setOutput(fg),
	}
	if ph, ok := fg.(PhaseController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/phase"}] = generichttp.GetFloat(ph.GetPhase)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/phase"}] = generichttp.SetFloat(ph.SetPhase)
	}
	if oc, ok := fg.(OffsetController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/offset"}] = generichttp.GetFloat(oc.GetOffset)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/offset"}] = generichttp.SetFloat(oc.SetOffset)
	}
	if dc, ok := fg.(DutyCycleController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/duty-cycle"}] = generichttp.GetFloat(dc.GetDutyCycle)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/duty-cycle"}] = generichttp.SetFloat(dc.SetDutyCycle)
	}
	if arb, ok := fg.(ArbitraryWaveformer); ok {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/waveform/upload"}] = uploadWaveform(arb)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/waveform/save-as"}] = generichttp.SetString(arb.SaveAs)
	}
	if raw, ok := fg.(ascii.RawCommunicator); ok {
		ascii.InjectRawComm(rt, raw)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPFunctionGenerator) RT() generichttp.RouteTable {
	return h.RouteTable
}

func setOutput(fg FunctionGenerator) http.HandlerFunc {
	return generichttp.SetBool(func(on bool) error {
		if on {
			return fg.EnableOutput()
		}
		return fg.DisableOutput()
	})
}

type waveformT struct {
	Points []float64 `json:"points"`
}

func uploadWaveform(arb ArbitraryWaveformer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var wf waveformT
		err := json.NewDecoder(r.Body).Decode(&wf)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = arb.Upload(wf.Points)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// LockIn describes an interface to a lock-in amplifier
type LockIn interface {
	// SetSensitivity configures the sensitivity in volts rms
	SetSensitivity(float64) error

	// GetSensitivity retrieves the sensitivity in volts rms
	GetSensitivity() (float64, error)

	// SetTimeConstant configures the filter time constant in seconds
	SetTimeConstant(float64) error

	// GetTimeConstant retrieves the filter time constant in seconds
	GetTimeConstant() (float64, error)

	// SetPhase configures the reference phase in degrees
	SetPhase(float64) error

	// GetPhase retrieves the reference phase in degrees
	GetPhase() (float64, error)

	// Autophase zeroes the Y quadrature, placing the signal entirely in X
	Autophase() error
}

// AutoGainer is a lock-in which can automatically choose its gain
type AutoGainer interface {
	Autogain() error
}

// StatusReporter is a lock-in which can decode its status register into
// named condition flags
type StatusReporter interface {
	Status() (map[string]bool, error)
}

// HTTPLockIn wraps a lock-in amplifier in an HTTP route table
type HTTPLockIn struct {
	L LockIn

	RouteTable generichttp.RouteTable
}

// NewHTTPLockIn wraps a lock-in amplifier in an HTTP interface
func NewHTTPLockIn(l LockIn) HTTPLockIn {
	w := HTTPLockIn{L: l}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/sensitivity"}:  generichttp.GetFloat(l.GetSensitivity),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/sensitivity"}: generichttp.SetFloat(l.SetSensitivity),

		generichttp.MethodPath{Method: http.MethodGet, Path: "/time-constant"}:  generichttp.GetFloat(l.GetTimeConstant),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/time-constant"}: generichttp.SetFloat(l.SetTimeConstant),

		generichttp.MethodPath{Method: http.MethodGet, Path: "/phase"}:  generichttp.GetFloat(l.GetPhase),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/phase"}: generichttp.SetFloat(l.SetPhase),

		generichttp.MethodPath{Method: http.MethodPost, Path: "/autophase"}: func(w http.ResponseWriter, r *http.Request) {
			if err := l.Autophase(); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		},
	}
	if sr, ok := l.(StatusReporter); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}] = func(w http.ResponseWriter, r *http.Request) {
			status, err := sr.Status()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if err := json.NewEncoder(w).Encode(status); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
	if ag, ok := l.(AutoGainer); ok {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autogain"}] = func(w http.ResponseWriter, r *http.Request) {
			if err := ag.Autogain(); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}
	if raw, ok := l.(ascii.RawCommunicator); ok {
		ascii.InjectRawComm(rt, raw)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPLockIn) RT() generichttp.RouteTable {
	return h.RouteTable
}

// SpectrumAnalyzer describes an interface to an optical or RF spectrum analyzer
type SpectrumAnalyzer interface {
	// GetSpectrum performs a single read of the instrument, returning the
	// abscissa (wavelength or frequency) and ordinate (power) arrays
	GetSpectrum() ([]float64, []float64, error)
}

// Spectrum is the JSON representation of a spectrum read
type Spectrum struct {
	// Wavelength in nanometers
	Wavelength []float64 `json:"wavelength"`

	// Power in dBm
	Power []float64 `json:"power"`
}

// HTTPSpectrumAnalyzer wraps a spectrum analyzer in an HTTP route table
type HTTPSpectrumAnalyzer struct {
	SA SpectrumAnalyzer

	RouteTable generichttp.RouteTable
}

// NewHTTPSpectrumAnalyzer wraps a spectrum analyzer in an HTTP interface
func NewHTTPSpectrumAnalyzer(sa SpectrumAnalyzer) HTTPSpectrumAnalyzer {
	w := HTTPSpectrumAnalyzer{SA: sa}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/spectrum"}:     getSpectrum(sa),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/spectrum.csv"}: getSpectrumCSV(sa),
	}
	if raw, ok := sa.(ascii.RawCommunicator); ok {
		ascii.InjectRawComm(rt, raw)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPSpectrumAnalyzer) RT() generichttp.RouteTable {
	return h.RouteTable
}

func getSpectrum(sa SpectrumAnalyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wvl, pwr, err := sa.GetSpectrum()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err = json.NewEncoder(w).Encode(Spectrum{Wavelength: wvl, Power: pwr})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func getSpectrumCSV(sa SpectrumAnalyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wvl, pwr, err := sa.GetSpectrum()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		cw := csv.NewWriter(w)
		cw.Write([]string{"wavelength_nm", "power_dbm"})
		for i := range wvl {
			cw.Write([]string{
				strconv.FormatFloat(wvl[i], 'G', -1, 64),
				strconv.FormatFloat(pwr[i], 'G', -1, 64)})
		}
		cw.Flush()
	}
}

// PowerMeter describes an interface to an optical power meter
type PowerMeter interface {
	// GetPower returns the measured power in watts
	GetPower() (float64, error)
}

// Attenuator is a power meter with a switchable input attenuator
type Attenuator interface {
	// SetAttenuator engages or disengages the attenuator
	SetAttenuator(bool) error

	// GetAttenuator queries if the attenuator is engaged
	GetAttenuator() (bool, error)
}

// WavelengthSelector is a power meter which can be told its working wavelength
type WavelengthSelector interface {
	// SetWavelength configures the calibration wavelength in nanometers
	SetWavelength(float64) error

	// GetWavelength retrieves the calibration wavelength in nanometers
	GetWavelength() (float64, error)
}

// HTTPPowerMeter wraps a power meter in an HTTP route table
type HTTPPowerMeter struct {
	PM PowerMeter

	RouteTable generichttp.RouteTable
}

// NewHTTPPowerMeter wraps a power meter in an HTTP interface
func NewHTTPPowerMeter(pm PowerMeter) HTTPPowerMeter {
	w := HTTPPowerMeter{PM: pm}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/power"}: generichttp.GetFloat(pm.GetPower),
	}
	if wl, ok := pm.(WavelengthSelector); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/wavelength"}] = generichttp.GetFloat(wl.GetWavelength)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/wavelength"}] = generichttp.SetFloat(wl.SetWavelength)
	}
	if at, ok := pm.(Attenuator); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/attenuator"}] = generichttp.GetBool(at.GetAttenuator)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/attenuator"}] = generichttp.SetBool(at.SetAttenuator)
	}
	if raw, ok := pm.(ascii.RawCommunicator); ok {
		ascii.InjectRawComm(rt, raw)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPPowerMeter) RT() generichttp.RouteTable {
	return h.RouteTable
}
