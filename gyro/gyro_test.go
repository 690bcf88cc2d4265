package gyro

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fog-lab/gyrolab/daq"
	"github.com/fog-lab/gyrolab/newmark"
)

// fakeLIA is an in-memory lock-in amplifier that records what the
// workflow does to it.
type fakeLIA struct {
	sens     float64
	tc       float64
	phased   int
	sensHist []float64
}

func newFakeLIA() *fakeLIA {
	return &fakeLIA{sens: 0.5, tc: 0.1}
}

func (f *fakeLIA) SetSensitivity(v float64) error {
	f.sens = v
	f.sensHist = append(f.sensHist, v)
	return nil
}
func (f *fakeLIA) GetSensitivity() (float64, error)  { return f.sens, nil }
func (f *fakeLIA) SetTimeConstant(v float64) error   { f.tc = v; return nil }
func (f *fakeLIA) GetTimeConstant() (float64, error) { return f.tc, nil }
func (f *fakeLIA) Autophase() error                  { f.phased++; return nil }

// queueADC returns canned reads in order.
type queueADC struct {
	reads [][]float64
}

func (q *queueADC) Read(ctx context.Context, seconds, rate float64) ([]float64, error) {
	if len(q.reads) == 0 {
		return nil, errors.New("queueADC exhausted")
	}
	out := q.reads[0]
	q.reads = q.reads[1:]
	return out, nil
}

func quietBench(adc daq.ADC) (*Bench, *fakeLIA, *newmark.SimStage) {
	stage := newmark.NewSimStage()
	stage.Instant = true
	lia := newFakeLIA()
	b := NewBench(Gyro{Name: "test", Pitch: 0}, stage, lia, adc)
	b.Settle = time.Millisecond
	return b, lia, stage
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestParseGyroStripsCommentsAndDerivesRadius(t *testing.T) {
	src := []byte(`{ // specs for the kvothe gyro
	"name": "kvothe", // string
	"diameter": 0.08, // meters
	"length": 1085,
	"pitch": 37.4
}`)
	g, err := ParseGyro(src)
	if err != nil {
		t.Fatal(err)
	}
	if g.Name != "kvothe" || g.Length != 1085 || g.Pitch != 37.4 {
		t.Errorf("descriptor fields wrong: %+v", g)
	}
	if g.Radius != 0.04 {
		t.Errorf("expected radius derived as 0.04, got %f", g.Radius)
	}
}

func TestParseGyroDerivesDiameterFromRadius(t *testing.T) {
	g, err := ParseGyro([]byte(`{"radius": 0.05}`))
	if err != nil {
		t.Fatal(err)
	}
	if g.Diameter != 0.1 {
		t.Errorf("expected diameter 0.1, got %f", g.Diameter)
	}
}

func TestAutophaseRestoresSettingsAndPosition(t *testing.T) {
	adc := &queueADC{}
	b, lia, stage := quietBench(adc)
	if err := b.Autophase(context.Background(), 0, 0); err != nil {
		t.Fatal(err)
	}
	if lia.phased != 1 {
		t.Errorf("expected one autophase call, got %d", lia.phased)
	}
	if lia.sens != 0.5 {
		t.Errorf("sensitivity not restored, got %f", lia.sens)
	}
	// the park sensitivity should have been applied during the jog
	if len(lia.sensHist) < 1 || lia.sensHist[0] != 0.03 {
		t.Errorf("expected park sensitivity 0.03 during jog, history %v", lia.sensHist)
	}
	ang, _ := stage.Angle()
	if ang != 0 {
		t.Errorf("stage not returned to start, at %f", ang)
	}
}

func TestScaleFactorFromSeparatedSpins(t *testing.T) {
	// 0.5V counterclockwise and -0.5V clockwise at 1 deg/s with zero
	// pitch: 0.5 V*s/deg, so S = 3600/0.5 = 7200 (deg/h)/V
	adc := &queueADC{reads: [][]float64{
		constant(0.5, 300),
		constant(-0.5, 300),
	}}
	b, lia, _ := quietBench(adc)
	s, err := b.ScaleFactor(context.Background(), ScaleFactorOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s-7200) > 1e-9 {
		t.Errorf("expected scale factor 7200, got %f", s)
	}
	if b.CachedScaleFactor() != s {
		t.Errorf("calibration result not cached")
	}
	if lia.tc != 0.1 {
		t.Errorf("time constant not restored, got %f", lia.tc)
	}
}

func TestScaleFactorAppliesPitchProjection(t *testing.T) {
	adc := &queueADC{reads: [][]float64{
		constant(0.5, 300),
		constant(-0.5, 300),
	}}
	b, _, _ := quietBench(adc)
	s, err := b.ScaleFactor(context.Background(), ScaleFactorOptions{Pitch: 60})
	if err != nil {
		t.Fatal(err)
	}
	// cos(60 deg) halves the projected signal, doubling the volts per
	// degree denominator relative to the zero pitch case
	if math.Abs(s-3600) > 1e-9 {
		t.Errorf("expected scale factor 3600, got %f", s)
	}
}

func TestTombstoneSynchronousFill(t *testing.T) {
	sim := daq.NewSim(0, 0.01, 42)
	sim.Pace = false
	b, _, _ := quietBench(sim)
	tmb, err := b.Tombstone(context.Background(), TombstoneOptions{
		Duration:    2 * time.Second,
		Rate:        50,
		ScaleFactor: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tmb.Len() != 100 {
		t.Errorf("expected 100 samples, got %d", tmb.Len())
	}
	if tmb.ScaleFactor != 100 {
		t.Errorf("scale factor not carried, got %f", tmb.ScaleFactor)
	}
	select {
	case <-tmb.Done():
	default:
		t.Error("synchronous record should present a closed Done channel")
	}
}

func TestTombstoneAsyncConvergesOnWhiteNoise(t *testing.T) {
	sim := daq.NewSim(0, 0.01, 7)
	sim.Pace = false
	b, _, _ := quietBench(sim)
	tmb, err := b.Tombstone(context.Background(), TombstoneOptions{
		Rate:        10,
		ScaleFactor: 1,
		CheckPeriod: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-tmb.Done():
	case <-time.After(30 * time.Second):
		tmb.Stop()
		t.Fatal("white noise run did not converge")
	}
	if err := tmb.Err(); err != nil {
		t.Fatalf("run ended with error: %v", err)
	}
	// resolving the drift floor requires averaging times past it
	if tmb.Duration() < 50*time.Second {
		t.Errorf("converged suspiciously early at %v of data", tmb.Duration())
	}
}

func TestTombstoneAsyncRejectsUnresolvableRate(t *testing.T) {
	sim := daq.NewSim(0, 0.01, 7)
	sim.Pace = false
	b, _, _ := quietBench(sim)
	// a 20 second sample period can never resolve a 10 second drift floor
	tmb, err := b.Tombstone(context.Background(), TombstoneOptions{
		Rate:        0.05,
		ScaleFactor: 1,
		CheckPeriod: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-tmb.Done():
	case <-time.After(5 * time.Second):
		tmb.Stop()
		t.Fatal("run did not terminate")
	}
	if !errors.Is(tmb.Err(), ErrDriftUnresolvable) {
		t.Errorf("expected ErrDriftUnresolvable, got %v", tmb.Err())
	}
}

func TestTombstoneAsyncStopIsIdempotent(t *testing.T) {
	sim := daq.NewSim(0, 0.01, 7)
	sim.Pace = false
	b, _, _ := quietBench(sim)
	tmb, err := b.Tombstone(context.Background(), TombstoneOptions{
		Rate:        10,
		ScaleFactor: 1,
		CheckPeriod: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	tmb.Stop()
	tmb.Stop()
	select {
	case <-tmb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("goroutines did not exit after Stop")
	}
	if err := tmb.Err(); err != nil {
		t.Errorf("operator stop should not record an error, got %v", err)
	}
	n := tmb.Len()
	time.Sleep(10 * time.Millisecond)
	if tmb.Len() != n {
		t.Error("samples written after Stop returned")
	}
}

func TestTombstoneStopBarsFurtherWrites(t *testing.T) {
	sim := daq.NewSim(0, 0.01, 7)
	sim.Pace = false
	b, _, _ := quietBench(sim)
	tmb, err := b.Tombstone(context.Background(), TombstoneOptions{
		Rate:        10,
		ScaleFactor: 1,
		CheckPeriod: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	// let the collector race the stop
	time.Sleep(time.Millisecond)
	tmb.Stop()
	n := tmb.Len()
	select {
	case <-tmb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("goroutines did not exit after Stop")
	}
	if tmb.Len() != n {
		t.Errorf("length moved from %d to %d after Stop returned", n, tmb.Len())
	}
}

func TestTombstoneAsyncHonorsMaxDuration(t *testing.T) {
	sim := daq.NewSim(0, 0.01, 7)
	sim.Pace = false
	b, _, _ := quietBench(sim)
	tmb, err := b.Tombstone(context.Background(), TombstoneOptions{
		Rate:        10,
		ScaleFactor: 1,
		MaxDuration: time.Second,
		CheckPeriod: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-tmb.Done():
	case <-time.After(5 * time.Second):
		tmb.Stop()
		t.Fatal("run did not stop at the duration cap")
	}
	if tmb.Len() != 10 {
		t.Errorf("expected the cap of 10 samples, got %d", tmb.Len())
	}
}

func TestARWOfWhiteNoise(t *testing.T) {
	// unit scale factor and sigma = 0.6 deg/h of white noise at 100 Hz:
	// dev(1 s) is sigma/10, so ARW is sigma/600
	sim := daq.NewSim(0, 0.6, 99)
	sim.Pace = false
	b, _, _ := quietBench(sim)
	arw, err := b.ARW(context.Background(), 60, 100, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := 0.6 / 10 / 60
	if math.Abs(arw-want)/want > 0.1 {
		t.Errorf("expected ARW near %g, got %g", want, arw)
	}
}
