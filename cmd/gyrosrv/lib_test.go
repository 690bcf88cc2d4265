package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadYaml(t *testing.T) {
	src := `Addr: ":9000"
Mock: true
Nodes:
  - Endpoint: /bench/adc
    Type: sim-adc
    Args:
      Noise: 0.02
  - Endpoint: /bench/stage
    Type: rotation-stage
    Args:
      Limits:
        Min: -10
        Max: 10
`
	path := filepath.Join(t.TempDir(), "gyrosrv.yml")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadYaml(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9000" || !cfg.Mock || len(cfg.Nodes) != 2 {
		t.Fatalf("config decoded wrong: %+v", cfg)
	}
	if cfg.Nodes[0].Type != "sim-adc" || argFloat(cfg.Nodes[0].Args, "Noise", 0) != 0.02 {
		t.Errorf("node args decoded wrong: %+v", cfg.Nodes[0])
	}
	lim, ok := stageLimits(cfg.Nodes[1].Args)
	if !ok || lim.Min != -10 || lim.Max != 10 {
		t.Errorf("stage limits decoded wrong: %+v ok=%v", lim, ok)
	}
}

func TestBuildMuxWiresNodesAndEndpointsGraph(t *testing.T) {
	cfg := Config{
		Addr: ":0",
		Mock: true,
		Nodes: []ObjSetup{
			{Endpoint: "/bench/adc", Type: "sim-adc"},
			{Endpoint: "/bench/stage", Type: "rotation-stage"},
		},
	}
	srv := httptest.NewServer(BuildMux(cfg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/endpoints")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	graph := map[string][]string{}
	if err := json.NewDecoder(resp.Body).Decode(&graph); err != nil {
		t.Fatal(err)
	}
	if len(graph["/bench/adc/*"]) == 0 || len(graph["/bench/stage/*"]) == 0 {
		t.Fatalf("supergraph missing nodes: %v", graph)
	}

	resp, err = http.Get(srv.URL + "/bench/stage/rot/angle")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("rotation node not serving, status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/bench/adc/read?seconds=0.1&rate=20")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rec struct {
		Rate float64   `json:"rate"`
		Data []float64 `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if len(rec.Data) != 2 {
		t.Errorf("expected 2 samples from the sim node, got %d", len(rec.Data))
	}
}

func TestStageLimitsEnforcedOverHTTP(t *testing.T) {
	cfg := Config{
		Mock: true,
		Nodes: []ObjSetup{{
			Endpoint: "/bench/stage",
			Type:     "rotation-stage",
			Args: map[string]interface{}{
				"Limits": map[string]interface{}{"Min": -10.0, "Max": 10.0},
			},
		}},
	}
	srv := httptest.NewServer(BuildMux(cfg))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/bench/stage/axis/A/pos", "application/json",
		strings.NewReader(`{"f64": 45}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out of limit move should 400, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/bench/stage/axis/A/pos")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("position query should pass the limit check, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/bench/stage/axis/A/limits")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var lim struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lim); err != nil {
		t.Fatal(err)
	}
	if lim.Min != -10 || lim.Max != 10 {
		t.Errorf("limits route returned %+v", lim)
	}
}

func TestBuildMuxNodesAreLockable(t *testing.T) {
	cfg := Config{
		Mock:  true,
		Nodes: []ObjSetup{{Endpoint: "/bench/adc", Type: "sim-adc"}},
	}
	srv := httptest.NewServer(BuildMux(cfg))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/bench/adc/lock", "application/json",
		strings.NewReader(`{"bool":true}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("locking failed, status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/bench/adc/read?seconds=0.1&rate=20")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("expected 423 from a locked node, got %d", resp.StatusCode)
	}
}
