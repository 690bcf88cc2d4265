package motion

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/fog-lab/gyrolab/generichttp"
	"github.com/fog-lab/gyrolab/util"
)

type fakeMover struct {
	pos map[string]float64
}

func (f *fakeMover) GetPos(axis string) (float64, error) { return f.pos[axis], nil }

func (f *fakeMover) MoveAbs(axis string, p float64) error {
	f.pos[axis] = p
	return nil
}

func (f *fakeMover) MoveRel(axis string, p float64) error {
	f.pos[axis] += p
	return nil
}

func (f *fakeMover) Home(axis string) error {
	f.pos[axis] = 0
	return nil
}

func limitedServer(t *testing.T, m Mover) *httptest.Server {
	rt := generichttp.RouteTable{}
	HTTPMove(m, rt)
	lim := LimitMiddleware{
		Limits: map[string]util.Limiter{"x": {Min: -5, Max: 5}},
		Mov:    m,
	}
	r := chi.NewRouter()
	r.Use(lim.Check)
	rt.Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postPos(t *testing.T, url string, body string) int {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestLimitMiddlewareBlocksAbsoluteMoves(t *testing.T) {
	m := &fakeMover{pos: map[string]float64{}}
	srv := limitedServer(t, m)
	if code := postPos(t, srv.URL+"/axis/x/pos", `{"f64": 10}`); code != http.StatusBadRequest {
		t.Errorf("out of limit move should 400, got %d", code)
	}
	if m.pos["x"] != 0 {
		t.Errorf("blocked move reached the mover, pos %f", m.pos["x"])
	}
	if code := postPos(t, srv.URL+"/axis/x/pos", `{"f64": 3}`); code != http.StatusOK {
		t.Errorf("in limit move should pass, got %d", code)
	}
	if m.pos["x"] != 3 {
		t.Errorf("allowed move did not reach the mover, pos %f", m.pos["x"])
	}
}

func TestLimitMiddlewareShiftsRelativeMoves(t *testing.T) {
	m := &fakeMover{pos: map[string]float64{"x": 3}}
	srv := limitedServer(t, m)
	if code := postPos(t, srv.URL+"/axis/x/pos?relative=true", `{"f64": 4}`); code != http.StatusBadRequest {
		t.Errorf("relative move past the limit should 400, got %d", code)
	}
	if code := postPos(t, srv.URL+"/axis/x/pos?relative=true", `{"f64": 1}`); code != http.StatusOK {
		t.Errorf("relative move inside the limit should pass, got %d", code)
	}
	if m.pos["x"] != 4 {
		t.Errorf("expected position 4, got %f", m.pos["x"])
	}
}

func TestLimitMiddlewarePassesUnlimitedAxesAndGets(t *testing.T) {
	m := &fakeMover{pos: map[string]float64{}}
	srv := limitedServer(t, m)
	if code := postPos(t, srv.URL+"/axis/y/pos", `{"f64": 100}`); code != http.StatusOK {
		t.Errorf("axis without a limiter should pass, got %d", code)
	}
	if code := postPos(t, srv.URL+"/axis/x/home", ""); code != http.StatusOK {
		t.Errorf("home carries no payload and should pass, got %d", code)
	}
	resp, err := http.Get(srv.URL + "/axis/x/pos")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("position query should pass the limit check, got %d", resp.StatusCode)
	}
}
