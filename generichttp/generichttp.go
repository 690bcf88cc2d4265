// Package generichttp defines interfaces for generic devices
// and an extensible mechanism to wrap them in an HTTP interface
package generichttp

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
)

// MethodPath is a tuple of an HTTP method and a URL path
type MethodPath struct {
	// Method is the HTTP method, e.g. http.MethodGet
	Method string

	// Path is the URL fragment the handler is bound at, e.g. /frequency
	Path string
}

// RouteTable maps method-path tuples to handler funcs
type RouteTable map[MethodPath]http.HandlerFunc

// Bind attaches each route in the table to a chi router
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		r.MethodFunc(mp.Method, mp.Path, handler)
	}
}

// Endpoints returns the URLs in the route table as "METHOD path" strings
func (rt RouteTable) Endpoints() []string {
	endpoints := make([]string, 0, len(rt))
	for mp := range rt {
		endpoints = append(endpoints, mp.Method+" "+mp.Path)
	}
	return endpoints
}

// HTTPer is a type which exposes an HTTP route table
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize ensures a URL is rooted and wildcarded for use as a chi
// mount point, "omc/nkt" => "/omc/nkt/*"
func SubMuxSanitize(str string) string {
	if !strings.HasPrefix(str, "/") {
		str = "/" + str
	}
	if !strings.HasSuffix(str, "*") {
		if !strings.HasSuffix(str, "/") {
			str = str + "/"
		}
		str = str + "*"
	}
	return str
}

// FloatT is a struct with a single float64 field 'f64' used to
// exchange floats over JSON
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field 'int'
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field 'str'
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field 'bool'
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload is a struct containing the basic types web APIs might respond
// with, and a marker of which is valid
type HumanPayload struct {
	// T holds the type of data actually contained
	T types.BasicKind

	// Float holds a float64
	Float float64

	// Int holds an int
	Int int

	// String holds a string
	String string

	// Bool holds a bool
	Bool bool
}

// EncodeAndRespond writes the payload to w as JSON with the appropriate
// key for its type
func (hp *HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var (
		obj interface{}
		err error
	)
	switch hp.T {
	case types.Float64:
		obj = FloatT{F64: hp.Float}
	case types.Int:
		obj = IntT{Int: hp.Int}
	case types.String:
		obj = StrT{Str: hp.String}
	case types.Bool:
		obj = BoolT{Bool: hp.Bool}
	default:
		err = fmt.Errorf("unknown payload kind %v", hp.T)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	err = json.NewEncoder(w).Encode(obj)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
	}
}

// SetFloat parses a JSON input of {'f64': value} and
// calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(f.F64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetInt calls an int-getting function and returns the response
// as json {'int': value}
func GetInt(fcn func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Int, Int: i}
		hp.EncodeAndRespond(w, r)
	}
}

// SetInt parses a JSON input of {'int': value} and
// calls fcn with it
func SetInt(fcn func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := IntT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(f.Int)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetString calls a string-getting function and returns the response
// as json {'str': value}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.String, String: s}
		hp.EncodeAndRespond(w, r)
	}
}

// SetString parses a JSON input of {'str': value} and
// calls fcn with it
func SetString(fcn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := StrT{}
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(s.Str)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Bool, Bool: b}
		hp.EncodeAndRespond(w, r)
	}
}

// SetBool parses a JSON input of {'bool': value} and
// calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(b.Bool)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
