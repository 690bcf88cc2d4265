package newmark

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/fog-lab/gyrolab/generichttp"
	"github.com/fog-lab/gyrolab/generichttp/motion"
)

// Stage is the interface a rotation stage exposes over HTTP
type Stage interface {
	// Angle returns the absolute position of the stage in degrees
	Angle() (float64, error)

	// MoveTo rotates to an absolute angle in degrees
	MoveTo(float64) error

	// CW rotates clockwise through an angle in degrees
	CW(float64) error

	// CCW rotates counterclockwise through an angle in degrees
	CCW(float64) error

	// Velocity returns the angular velocity setpoint in degrees per second
	Velocity() (float64, error)

	// SetVelocity configures the angular velocity in degrees per second
	SetVelocity(float64) error

	// Home rotates the stage to zero degrees
	Home() error

	// Stop halts motion immediately
	Stop() error
}

// SingleAxis adapts a Stage to the generic motion interfaces.  The stage
// has only one axis, so the axis name is ignored.
type SingleAxis struct {
	S Stage
}

// GetPos returns the stage angle in degrees
func (a SingleAxis) GetPos(axis string) (float64, error) { return a.S.Angle() }

// MoveAbs rotates the stage to an absolute angle in degrees
func (a SingleAxis) MoveAbs(axis string, deg float64) error { return a.S.MoveTo(deg) }

// MoveRel rotates the stage through an angle in degrees, positive clockwise
func (a SingleAxis) MoveRel(axis string, deg float64) error { return a.S.CW(deg) }

// Home rotates the stage to zero degrees
func (a SingleAxis) Home(axis string) error { return a.S.Home() }

// GetVelocity returns the angular velocity setpoint in degrees per second
func (a SingleAxis) GetVelocity(axis string) (float64, error) { return a.S.Velocity() }

// SetVelocity configures the angular velocity in degrees per second
func (a SingleAxis) SetVelocity(axis string, dps float64) error { return a.S.SetVelocity(dps) }

// Stop halts motion immediately
func (a SingleAxis) Stop(axis string) error { return a.S.Stop() }

// angleT is the wire representation of a stage angle
type angleT struct {
	Angle float64 `json:"angle"`
}

// velocityT is the wire representation of a stage velocity
type velocityT struct {
	Velocity float64 `json:"velocity"`
}

// HTTPRotationStage wraps a Stage in the rotation stage JSON API.
// Moves are GETs so that a browser is all a user needs to drive the stage.
type HTTPRotationStage struct {
	S Stage

	RouteTable generichttp.RouteTable
}

// NewHTTPRotationStage wraps a stage in an HTTP interface
func NewHTTPRotationStage(s Stage) HTTPRotationStage {
	w := HTTPRotationStage{S: s}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/rot/angle"}:          w.getAngle,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/rot/angle/{deg}"}:    w.moveAbs,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/rot/cw/{deg}"}:       w.moveCW,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/rot/ccw/{deg}"}:      w.moveCCW,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/rot/velocity"}:       w.getVelocity,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/rot/velocity/{dps}"}: w.setVelocity,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/rot/home"}:           w.home,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/rot/stop"}:           w.stop,
	}
	// the generic axis API coexists with the browser friendly routes so
	// that tooling written against other controllers can drive the stage
	adapter := SingleAxis{S: s}
	motion.HTTPMove(adapter, rt)
	motion.HTTPSpeed(adapter, rt)
	motion.HTTPStop(adapter, rt)
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPRotationStage) RT() generichttp.RouteTable {
	return h.RouteTable
}

func respondAngle(w http.ResponseWriter, deg float64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(angleT{Angle: deg})
}

func (h HTTPRotationStage) getAngle(w http.ResponseWriter, r *http.Request) {
	deg, err := h.S.Angle()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondAngle(w, deg)
}

func popDeg(r *http.Request, param string) (float64, error) {
	return strconv.ParseFloat(chi.URLParam(r, param), 64)
}

func (h HTTPRotationStage) moveAbs(w http.ResponseWriter, r *http.Request) {
	deg, err := popDeg(r, "deg")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.S.MoveTo(deg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.getAngle(w, r)
}

func (h HTTPRotationStage) moveCW(w http.ResponseWriter, r *http.Request) {
	deg, err := popDeg(r, "deg")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.S.CW(deg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.getAngle(w, r)
}

func (h HTTPRotationStage) moveCCW(w http.ResponseWriter, r *http.Request) {
	deg, err := popDeg(r, "deg")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.S.CCW(deg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.getAngle(w, r)
}

func (h HTTPRotationStage) getVelocity(w http.ResponseWriter, r *http.Request) {
	dps, err := h.S.Velocity()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(velocityT{Velocity: dps})
}

func (h HTTPRotationStage) setVelocity(w http.ResponseWriter, r *http.Request) {
	dps, err := popDeg(r, "dps")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.S.SetVelocity(dps); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.getVelocity(w, r)
}

func (h HTTPRotationStage) home(w http.ResponseWriter, r *http.Request) {
	if err := h.S.Home(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.getAngle(w, r)
}

func (h HTTPRotationStage) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.S.Stop(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
