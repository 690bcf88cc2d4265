// Package oscilloscope provides type and interface definitions for oscilloscopes
package oscilloscope

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"go/types"
	"io"
	"net/http"
	"strconv"

	"github.com/fog-lab/gyrolab/generichttp"
	"github.com/fog-lab/gyrolab/generichttp/ascii"
)

// Waveform describes a waveform recording from a scope
type Waveform struct {
	// DT is the temporal sample spacing in seconds
	DT float64 `json:"dt"`

	// Channels holds named data streams
	Channels map[string]Channel `json:"channels"`
}

// Channel represents a stream of data from an ADC.  To convert to physical
// units, compute (data-reference)*scale + offset
type Channel struct {
	// Data is the raw buffer, []uint8, []int16, or []float64
	Data Data `json:"data"`

	// Scale is the size of a single increment in Data's native dtype
	Scale float64 `json:"scale"`

	// Offset is the offset applied to the data
	Offset float64 `json:"offset"`

	// Reference is the reference value for the given channel in DN
	Reference float64 `json:"reference"`
}

// Data is a moniker for an empty interface, expected to be a slice of a
// concrete numerical type
type Data interface{}

// Physical computes the data scaled to real units
func (c Channel) Physical() []float64 {
	switch v := c.Data.(type) {
	case []uint8:
		ret := make([]float64, len(v))
		for i := 0; i < len(v); i++ {
			ret[i] = ((float64(v[i]) - c.Reference) * c.Scale) + c.Offset
		}
		return ret
	case []int16:
		ret := make([]float64, len(v))
		for i := 0; i < len(v); i++ {
			ret[i] = ((float64(v[i]) - c.Reference) * c.Scale) + c.Offset
		}
		return ret
	case []float64:
		ret := make([]float64, len(v))
		for i := 0; i < len(v); i++ {
			ret[i] = ((v[i] - c.Reference) * c.Scale) + c.Offset
		}
		return ret
	default:
		panic("attempt to convert non numerical data to physical units")
	}
}

// EncodeCSV converts the waveform data to physical units and writes it to a
// CSV in streaming fashion
func (wav *Waveform) EncodeCSV(w io.Writer) error {
	if len(wav.Channels) == 0 {
		return errors.New("waveform has no channels")
	}
	labels := make([]string, 0, len(wav.Channels))
	for k := range wav.Channels {
		labels = append(labels, k)
	}
	data := make([][]float64, len(labels))
	for j := range labels {
		data[j] = wav.Channels[labels[j]].Physical()
	}
	labels = append([]string{"time"}, labels...)

	buf := bufio.NewWriter(w)
	cw := csv.NewWriter(buf)
	err := cw.Write(labels)
	if err != nil {
		return err
	}
	row := make([]string, len(labels))
	for i := 0; i < len(data[0]); i++ {
		row[0] = strconv.FormatFloat(float64(i)*wav.DT, 'G', -1, 64)
		for j := 0; j < len(data); j++ {
			row[j+1] = strconv.FormatFloat(data[j][i], 'G', -1, 64)
		}
		err = cw.Write(row)
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return buf.Flush()
}

// Scope describes an interface to a digital oscilloscope
type Scope interface {
	// SetScale configures the vertical scale of a channel in volts per division
	SetScale(channel string, voltsPerDiv float64) error

	// GetScale retrieves the vertical scale of a channel in volts per division
	GetScale(channel string) (float64, error)

	// SetTimebase configures the horizontal timebase in seconds per division
	SetTimebase(secondsPerDiv float64) error

	// GetTimebase retrieves the horizontal timebase in seconds per division
	GetTimebase() (float64, error)

	// AcquireWaveform captures a waveform from the given channels
	AcquireWaveform(channels []string) (Waveform, error)
}

// HTTPScope wraps a Scope in an HTTP route table
type HTTPScope struct {
	S Scope

	RouteTable generichttp.RouteTable
}

// NewHTTPScope wraps a scope in an HTTP interface
func NewHTTPScope(s Scope) HTTPScope {
	w := HTTPScope{S: s}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/scale"}:  getScale(s),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/scale"}: setScale(s),

		generichttp.MethodPath{Method: http.MethodGet, Path: "/timebase"}:  generichttp.GetFloat(s.GetTimebase),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/timebase"}: generichttp.SetFloat(s.SetTimebase),

		generichttp.MethodPath{Method: http.MethodGet, Path: "/waveform"}:     acquire(s, false),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/waveform.csv"}: acquire(s, true),
	}
	if raw, ok := s.(ascii.RawCommunicator); ok {
		ascii.InjectRawComm(rt, raw)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPScope) RT() generichttp.RouteTable {
	return h.RouteTable
}

type channelScaleT struct {
	Channel string  `json:"channel"`
	Scale   float64 `json:"scale"`
}

func getScale(s Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch := r.URL.Query().Get("channel")
		if ch == "" {
			ch = "1"
		}
		f, err := s.GetScale(ch)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
	}
}

func setScale(s Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cs channelScaleT
		err := json.NewDecoder(r.Body).Decode(&cs)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if cs.Channel == "" {
			cs.Channel = "1"
		}
		err = s.SetScale(cs.Channel, cs.Scale)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func acquire(s Scope, asCSV bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chans := r.URL.Query()["channel"]
		if len(chans) == 0 {
			chans = []string{"1"}
		}
		wav, err := s.AcquireWaveform(chans)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if asCSV {
			w.Header().Set("Content-Type", "text/csv")
			w.WriteHeader(http.StatusOK)
			err = wav.EncodeCSV(w)
		} else {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			err = json.NewEncoder(w).Encode(wav)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
