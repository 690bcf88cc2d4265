package newmark

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteStage is a client for a rotation stage served over the JSON API.
// It satisfies the Stage interface, so local and remote stages are
// interchangeable to consumers.
type RemoteStage struct {
	// Root is the base URL of the server, e.g. http://stage-host:8000
	Root string

	// Client is the HTTP client used; defaults are fine for lab networks
	// but moves block until complete, so the timeout must cover the
	// slowest expected rotation
	Client *http.Client
}

// NewRemoteStage returns a RemoteStage talking to the given base URL
func NewRemoteStage(root string) *RemoteStage {
	return &RemoteStage{
		Root:   strings.TrimRight(root, "/"),
		Client: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (rs *RemoteStage) get(path string, dest interface{}) error {
	resp, err := rs.Client.Get(rs.Root + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("rotation stage server returned %s for %s%s: %s", resp.Status, rs.Root, path, strings.TrimSpace(string(body)))
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Angle returns the absolute position of the stage in degrees
func (rs *RemoteStage) Angle() (float64, error) {
	var a angleT
	err := rs.get("/rot/angle", &a)
	return a.Angle, err
}

// MoveTo rotates the stage to an absolute angle in degrees, blocking until
// the move completes
func (rs *RemoteStage) MoveTo(deg float64) error {
	return rs.get(fmt.Sprintf("/rot/angle/%f", deg), nil)
}

// CW rotates the stage clockwise through an angle in degrees, blocking
// until the move completes
func (rs *RemoteStage) CW(deg float64) error {
	return rs.get(fmt.Sprintf("/rot/cw/%f", deg), nil)
}

// CCW rotates the stage counterclockwise through an angle in degrees,
// blocking until the move completes
func (rs *RemoteStage) CCW(deg float64) error {
	return rs.get(fmt.Sprintf("/rot/ccw/%f", deg), nil)
}

// CWBackground starts a clockwise rotation and returns immediately.
// The returned channel receives the final error when the move completes.
func (rs *RemoteStage) CWBackground(deg float64) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- rs.CW(deg) }()
	return ch
}

// CCWBackground starts a counterclockwise rotation and returns immediately.
// The returned channel receives the final error when the move completes.
func (rs *RemoteStage) CCWBackground(deg float64) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- rs.CCW(deg) }()
	return ch
}

// Velocity returns the angular velocity setpoint in degrees per second
func (rs *RemoteStage) Velocity() (float64, error) {
	var v velocityT
	err := rs.get("/rot/velocity", &v)
	return v.Velocity, err
}

// SetVelocity configures the angular velocity in degrees per second
func (rs *RemoteStage) SetVelocity(dps float64) error {
	return rs.get(fmt.Sprintf("/rot/velocity/%f", dps), nil)
}

// Home rotates the stage to zero degrees
func (rs *RemoteStage) Home() error {
	return rs.get("/rot/home", nil)
}

// Stop halts motion immediately
func (rs *RemoteStage) Stop() error {
	return rs.get("/rot/stop", nil)
}
