// Package daq exposes analog data acquisition over HTTP
package daq

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fog-lab/gyrolab/daq"
	"github.com/fog-lab/gyrolab/generichttp"
)

// Recording is the JSON representation of a finite acquisition
type Recording struct {
	// Rate is the sample rate in Hz
	Rate float64 `json:"rate"`

	// Data is the sample buffer in volts
	Data []float64 `json:"data"`
}

// HTTPADC wraps an ADC in an HTTP route table
type HTTPADC struct {
	A daq.ADC

	RouteTable generichttp.RouteTable
}

// NewHTTPADC wraps an ADC with an HTTP interface
func NewHTTPADC(a daq.ADC) HTTPADC {
	w := HTTPADC{A: a}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/read"}:     Read(a, false),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/read.csv"}: Read(a, true),
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPADC) RT() generichttp.RouteTable {
	return h.RouteTable
}

func popSecondsRate(r *http.Request) (float64, float64, error) {
	q := r.URL.Query()
	sStr := q.Get("seconds")
	if sStr == "" {
		sStr = "1"
	}
	rStr := q.Get("rate")
	if rStr == "" {
		rStr = "10"
	}
	seconds, err := strconv.ParseFloat(sStr, 64)
	if err != nil {
		return 0, 0, err
	}
	hz, err := strconv.ParseFloat(rStr, 64)
	return seconds, hz, err
}

// Read returns an HTTP handler func that performs a finite acquisition,
// with duration and rate drawn from the seconds and rate query parameters
func Read(a daq.ADC, asCSV bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seconds, hz, err := popSecondsRate(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := a.Read(r.Context(), seconds, hz)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if asCSV {
			w.Header().Set("Content-Type", "text/csv")
			w.WriteHeader(http.StatusOK)
			cw := csv.NewWriter(w)
			cw.Write([]string{"volts"})
			for _, v := range data {
				cw.Write([]string{strconv.FormatFloat(v, 'G', -1, 64)})
			}
			cw.Flush()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err = json.NewEncoder(w).Encode(Recording{Rate: hz, Data: data})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
