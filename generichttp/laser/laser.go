// Package laser exposes control of laser diode controllers over HTTP
package laser

import (
	"net/http"

	"github.com/fog-lab/gyrolab/generichttp"
	"github.com/fog-lab/gyrolab/generichttp/ascii"
)

// Controller is a basic interface for laser controllers
type Controller interface {
	// SetEmission turns emission on or off
	SetEmission(bool) error

	// GetEmission queries if the laser is currently outputting
	GetEmission() (bool, error)
}

// SetEmission configures the output state of the laser
func SetEmission(c Controller) http.HandlerFunc {
	return generichttp.SetBool(c.SetEmission)
}

// GetEmission queries the output state of the laser
func GetEmission(c Controller) http.HandlerFunc {
	return generichttp.GetBool(c.GetEmission)
}

// CurrentController can control its output current
type CurrentController interface {
	// SetCurrent sets the output current setpoint of the controller in mA
	SetCurrent(float64) error

	// GetCurrent retrieves the output current setpoint of the controller in mA
	GetCurrent() (float64, error)
}

// MeasuredCurrenter can report the current actually flowing through the diode
type MeasuredCurrenter interface {
	// MeasureCurrent reads the actual laser diode current in mA
	MeasureCurrent() (float64, error)
}

// TemperatureController can control the setpoint of its TEC loop
type TemperatureController interface {
	// SetTemperature sets the TEC setpoint in Celsius
	SetTemperature(float64) error

	// GetTemperature retrieves the TEC setpoint in Celsius
	GetTemperature() (float64, error)
}

// HTTPLaserController wraps a laser controller in an HTTP route table
type HTTPLaserController struct {
	// Ctl is the underlying laser controller
	Ctl Controller

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPLaserController returns a new HTTP wrapper around an existing laser controller
func NewHTTPLaserController(ctl Controller) HTTPLaserController {
	h := HTTPLaserController{Ctl: ctl}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/emission"}:  GetEmission(ctl),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/emission"}: SetEmission(ctl),
	}
	if currentctl, ok := interface{}(ctl).(CurrentController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/current"}] = generichttp.GetFloat(currentctl.GetCurrent)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/current"}] = generichttp.SetFloat(currentctl.SetCurrent)
	}
	if meas, ok := interface{}(ctl).(MeasuredCurrenter); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/current/measured"}] = generichttp.GetFloat(meas.MeasureCurrent)
	}
	if tempctl, ok := interface{}(ctl).(TemperatureController); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature"}] = generichttp.GetFloat(tempctl.GetTemperature)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/temperature"}] = generichttp.SetFloat(tempctl.SetTemperature)
	}
	if raw, ok := interface{}(ctl).(ascii.RawCommunicator); ok {
		ascii.InjectRawComm(rt, raw)
	}
	h.RouteTable = rt
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPLaserController) RT() generichttp.RouteTable {
	return h.RouteTable
}
