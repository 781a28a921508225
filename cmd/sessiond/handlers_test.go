package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/session"
	"github.com/WessleyAI/wessley-schematic/engine/solver"
	"github.com/WessleyAI/wessley-schematic/engine/store"
	"github.com/WessleyAI/wessley-schematic/pkg/mid"
)

type stubSolver struct{}

// Simulate lights lamp id-2 fed by source id-1.
func (stubSolver) Simulate(ctx context.Context, req solver.Request) (*solver.Result, error) {
	return &solver.Result{
		Solution: solver.Solution{
			NodeVoltages:  []float64{0, 12},
			TerminalNodes: map[string]int{"id-1:0": 0, "id-1:1": 1, "id-2:0": 1, "id-2:1": 0},
		},
		LampLit:     map[string]bool{"id-2": true},
		Faults:      map[string]string{},
		SolveErrors: map[string]string{},
	}, nil
}

func (stubSolver) Measure(ctx context.Context, req solver.MeasureRequest) (solver.Measurement, error) {
	return solver.Measurement{}, nil
}

type testServer struct {
	*httptest.Server
	sess *session.Session
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	saves := store.NewMemory(store.MemoryOptions{})
	var n int
	sess, err := session.New(session.Options{
		ID:          "test",
		Solver:      stubSolver{},
		Store:       saves,
		NewID:       func() string { n++; return fmt.Sprintf("id-%d", n) },
		MeasureRate: rate.Inf,
		Logger:      logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	routes(mux, sess, saves, logger)
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := httptest.NewServer(mid.Chain(mux, mid.Recover(logger), mid.Metrics(), mid.CORS("*")))
	t.Cleanup(func() {
		srv.Close()
		sess.Close()
	})
	return &testServer{Server: srv, sess: sess}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(bytes.TrimSpace(data)) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

func (s *testServer) mustDo(t *testing.T, method, path, body string, want int) map[string]any {
	t.Helper()
	code, out := s.do(t, method, path, body)
	if code != want {
		t.Fatalf("%s %s: expected %d, got %d (%v)", method, path, want, code, out)
	}
	return out
}

// buildLamp creates source id-1, lamp id-2 and wires id-3, id-4.
func (s *testServer) buildLamp(t *testing.T) {
	t.Helper()
	s.mustDo(t, "POST", "/api/components", `{"variant":"voltage_source","x":100,"y":100}`, http.StatusCreated)
	s.mustDo(t, "POST", "/api/components", `{"variant":"lamp","x":300,"y":100}`, http.StatusCreated)
	s.mustDo(t, "POST", "/api/wires", `{"from":{"compId":"id-1","index":1},"to":{"compId":"id-2","index":0}}`, http.StatusCreated)
	s.mustDo(t, "POST", "/api/wires", `{"from":{"compId":"id-2","index":1},"to":{"compId":"id-1","index":0}}`, http.StatusCreated)
}

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.SolverTransport != "http" || cfg.StoreBackend != "memory" {
		t.Fatalf("unexpected backends: %+v", cfg)
	}
	if cfg.SolverTimeout != 10*time.Second {
		t.Fatalf("expected 10s solver timeout, got %v", cfg.SolverTimeout)
	}
	if cfg.MeasureRPS != 5 {
		t.Fatalf("expected 5 measurements/s, got %v", cfg.MeasureRPS)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_TIMEOUT_XYZ", "250ms")
	t.Setenv("TEST_BAD_TIMEOUT_XYZ", "soon")
	t.Setenv("TEST_RPS_XYZ", "2.5")
	if d := durationOr("TEST_TIMEOUT_XYZ", time.Second); d != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", d)
	}
	if d := durationOr("TEST_BAD_TIMEOUT_XYZ", time.Second); d != time.Second {
		t.Fatalf("expected fallback, got %v", d)
	}
	if f := floatOr("TEST_RPS_XYZ", 5); f != 2.5 {
		t.Fatalf("expected 2.5, got %v", f)
	}
	if v := envOr("NONEXISTENT_VAR_ABC", "fallback"); v != "fallback" {
		t.Fatalf("expected fallback, got %s", v)
	}
}

func TestConnectSolverUnknownTransport(t *testing.T) {
	var cl closers
	if _, _, err := connectSolver(Config{SolverTransport: "carrier-pigeon"}, &cl); err == nil {
		t.Fatal("expected error")
	}
	if _, err := openStore(context.Background(), Config{StoreBackend: "tape"}, &cl); err == nil {
		t.Fatal("expected error")
	}
}

func TestComponentLifecycle(t *testing.T) {
	s := newTestServer(t)

	c := s.mustDo(t, "POST", "/api/components", `{"variant":"lamp","x":101,"y":99}`, http.StatusCreated)
	if c["id"] != "id-1" || c["type"] != "lamp" {
		t.Fatalf("component = %v", c)
	}
	s.mustDo(t, "POST", "/api/components/id-1/move", `{"x":200,"y":200}`, http.StatusOK)
	s.mustDo(t, "POST", "/api/components/id-1/rotate", "", http.StatusOK)
	s.mustDo(t, "POST", "/api/components/id-1/rotate", `{"step":45}`, http.StatusBadRequest)
	s.mustDo(t, "POST", "/api/components/id-1/props", `{"ratedVoltage":24}`, http.StatusOK)

	snap := s.sess.Snapshot()
	if got := snap.Components[0]; got.X != 200 || got.Rotation != 90 {
		t.Fatalf("component after edits = %+v", got)
	}
	if s.sess.HistoryLen() != 4 {
		t.Fatalf("history = %d", s.sess.HistoryLen())
	}

	s.mustDo(t, "DELETE", "/api/components/id-1", "", http.StatusOK)
	s.mustDo(t, "DELETE", "/api/components/id-1", "", http.StatusNotFound)
	s.mustDo(t, "POST", "/api/components/id-1/move", `{"x":1,"y":1}`, http.StatusNotFound)
}

func TestAddComponentValidation(t *testing.T) {
	s := newTestServer(t)
	s.mustDo(t, "POST", "/api/components", `{"variant":"flux_capacitor"}`, http.StatusBadRequest)
	s.mustDo(t, "POST", "/api/components", `{"x":1}`, http.StatusBadRequest)
	s.mustDo(t, "POST", "/api/components", `not json`, http.StatusBadRequest)
}

func TestRemoveComponentReportsWires(t *testing.T) {
	s := newTestServer(t)
	s.buildLamp(t)

	out := s.mustDo(t, "DELETE", "/api/components/id-2", "", http.StatusOK)
	removed, _ := out["removedWires"].([]any)
	if len(removed) != 2 {
		t.Fatalf("removedWires = %v", out["removedWires"])
	}
	if len(s.sess.Snapshot().Wires) != 0 {
		t.Fatal("wires should cascade")
	}
}

func TestWireEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.buildLamp(t)

	s.mustDo(t, "POST", "/api/wires", `{"from":{"compId":"id-1","index":0},"to":{"compId":"id-1","index":0}}`, http.StatusBadRequest)
	s.mustDo(t, "POST", "/api/wires", `{"from":{"compId":"id-1","index":7},"to":{"compId":"id-2","index":0}}`, http.StatusBadRequest)
	s.mustDo(t, "POST", "/api/wires", `{"from":{"compId":"id-9","index":0},"to":{"compId":"id-1","index":0}}`, http.StatusNotFound)
	s.mustDo(t, "POST", "/api/wires/id-3/style", `{"color":"#ff0000","area":2.5,"length":3,"material":"copper"}`, http.StatusOK)
	s.mustDo(t, "POST", "/api/wires/id-9/style", `{"color":"#ff0000"}`, http.StatusNotFound)
	s.mustDo(t, "POST", "/api/wires/id-3/points/x", `{"x":1,"y":1}`, http.StatusBadRequest)
	s.mustDo(t, "DELETE", "/api/wires/id-3/points?x=1", "", http.StatusBadRequest)
	s.mustDo(t, "POST", "/api/wire-defaults", `{"color":"#00ff00","area":1,"length":1,"material":"aluminium"}`, http.StatusOK)

	snap := s.sess.Snapshot()
	if snap.Wires[0].Color != "#ff0000" || snap.WireDefaults.Material != "aluminium" {
		t.Fatalf("styles not applied: %+v / %+v", snap.Wires[0].WireStyle, snap.WireDefaults)
	}

	s.mustDo(t, "DELETE", "/api/wires/id-3", "", http.StatusOK)
	s.mustDo(t, "DELETE", "/api/wires/id-3", "", http.StatusNotFound)
}

func TestControlEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.mustDo(t, "POST", "/api/components", `{"variant":"switch","x":0,"y":0}`, http.StatusCreated)
	s.mustDo(t, "POST", "/api/components", `{"variant":"push_button","x":200,"y":0}`, http.StatusCreated)
	s.mustDo(t, "POST", "/api/components", `{"variant":"lamp","x":400,"y":0}`, http.StatusCreated)

	s.mustDo(t, "POST", "/api/components/id-1/toggle", "", http.StatusOK)
	s.mustDo(t, "POST", "/api/components/id-2/press", "", http.StatusOK)
	s.mustDo(t, "POST", "/api/components/id-3/toggle", "", http.StatusBadRequest)
	s.mustDo(t, "POST", "/api/components/id-1/explode", "", http.StatusNotFound)

	snap := s.sess.Snapshot()
	if snap.Components[0].Props.(*circuit.SwitchProps).Closed {
		t.Fatal("switch should be open after toggle")
	}
	if !snap.Components[1].Props.(*circuit.PushButtonProps).Closed {
		t.Fatal("button should be held")
	}
	s.mustDo(t, "POST", "/api/components/id-2/release", "", http.StatusOK)
}

func TestMeterEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.buildLamp(t)

	m := s.mustDo(t, "POST", "/api/meters", `{"mode":"voltage","aRef":{"compId":"id-1","index":1},"bRef":{"compId":"id-1","index":0},"x":50,"y":50}`, http.StatusCreated)
	id, _ := m["id"].(string)
	if id == "" {
		t.Fatalf("meter = %v", m)
	}
	s.mustDo(t, "POST", "/api/meters", `{"mode":"sparkle"}`, http.StatusBadRequest)
	s.mustDo(t, "POST", "/api/meters/"+id+"/move", `{"x":80,"y":80}`, http.StatusOK)
	s.mustDo(t, "DELETE", "/api/meters/"+id, "", http.StatusOK)
	s.mustDo(t, "DELETE", "/api/meters/"+id, "", http.StatusNotFound)
}

func TestUndoAndClear(t *testing.T) {
	s := newTestServer(t)
	s.mustDo(t, "POST", "/api/components", `{"variant":"lamp","x":0,"y":0}`, http.StatusCreated)

	out := s.mustDo(t, "POST", "/api/undo", "", http.StatusOK)
	if out["undone"] != true {
		t.Fatalf("undo = %v", out)
	}
	out = s.mustDo(t, "POST", "/api/undo", "", http.StatusOK)
	if out["undone"] != false {
		t.Fatalf("second undo = %v", out)
	}

	s.mustDo(t, "POST", "/api/components", `{"variant":"lamp","x":0,"y":0}`, http.StatusCreated)
	s.mustDo(t, "POST", "/api/clear", "", http.StatusOK)
	if len(s.sess.Snapshot().Components) != 0 {
		t.Fatal("clear should empty the topology")
	}
}

func TestSimulationAndState(t *testing.T) {
	s := newTestServer(t)
	s.buildLamp(t)

	s.mustDo(t, "POST", "/api/simulation", `{}`, http.StatusBadRequest)
	out := s.mustDo(t, "POST", "/api/simulation", `{"on":true}`, http.StatusOK)
	if out["simulating"] != true {
		t.Fatalf("simulation = %v", out)
	}
	s.sess.Wait()

	state := s.mustDo(t, "GET", "/api/state", "", http.StatusOK)
	lit, _ := state["lampLit"].(map[string]any)
	if lit["id-2"] != true {
		t.Fatalf("lampLit = %v", state["lampLit"])
	}
	wires, _ := state["energizedWires"].(map[string]any)
	if wires["id-3"] != true {
		t.Fatalf("energizedWires = %v", state["energizedWires"])
	}

	debug := s.mustDo(t, "GET", "/api/debug", "", http.StatusOK)
	if entries, _ := debug["entries"].([]any); len(entries) == 0 {
		t.Fatal("expected a debug entry after sync")
	}
	s.mustDo(t, "DELETE", "/api/debug", "", http.StatusOK)
	if len(s.sess.DebugEntries()) != 0 {
		t.Fatal("debug log should be empty")
	}

	s.mustDo(t, "POST", "/api/simulation", `{"on":false}`, http.StatusOK)
	state = s.mustDo(t, "GET", "/api/state", "", http.StatusOK)
	lit, _ = state["lampLit"].(map[string]any)
	if lit["id-2"] == true {
		t.Fatal("lamp should be dark with simulation off")
	}
}

func TestTopologyAndHit(t *testing.T) {
	s := newTestServer(t)
	s.buildLamp(t)

	layout := s.mustDo(t, "GET", "/api/topology", "", http.StatusOK)
	paths, _ := layout["paths"].(map[string]any)
	if len(paths) != 2 {
		t.Fatalf("paths = %v", layout["paths"])
	}

	hit := s.mustDo(t, "GET", "/api/hit?x=100&y=115", "", http.StatusOK)
	if hit["componentId"] != "id-1" {
		t.Fatalf("hit = %v", hit)
	}
	s.mustDo(t, "GET", "/api/hit?x=abc", "", http.StatusBadRequest)

	sel := s.mustDo(t, "POST", "/api/select", `{"wire":"id-3"}`, http.StatusOK)
	if sel["wire"] != "id-3" {
		t.Fatalf("selection = %v", sel)
	}
	size := s.mustDo(t, "POST", "/api/canvas", `{"width":10,"height":10}`, http.StatusOK)
	if size["width"] != float64(400) || size["height"] != float64(300) {
		t.Fatalf("canvas = %v", size)
	}
}

func TestSavesRoundTrip(t *testing.T) {
	s := newTestServer(t)
	s.buildLamp(t)

	out := s.mustDo(t, "POST", "/api/saves", `{"name":"Lampa #1"}`, http.StatusOK)
	save, _ := out["save"].(map[string]any)
	id, _ := save["id"].(string)
	if id == "" || save["name"] != "Lampa 1" {
		t.Fatalf("save = %v", out)
	}

	list := s.mustDo(t, "GET", "/api/saves", "", http.StatusOK)
	if saves, _ := list["saves"].([]any); len(saves) != 1 {
		t.Fatalf("saves = %v", list)
	}

	s.mustDo(t, "POST", "/api/clear", "", http.StatusOK)
	s.mustDo(t, "POST", "/api/saves/"+id+"/load", "", http.StatusOK)
	if got := len(s.sess.Snapshot().Components); got != 2 {
		t.Fatalf("loaded components = %d", got)
	}

	s.mustDo(t, "DELETE", "/api/saves/"+id, "", http.StatusOK)
	nf := s.mustDo(t, "GET", "/api/saves/"+id, "", http.StatusNotFound)
	if nf["error"] != msgNotFound {
		t.Fatalf("not found error = %v", nf)
	}
	s.mustDo(t, "POST", "/api/saves/"+id+"/load", "", http.StatusNotFound)

	noName := s.mustDo(t, "POST", "/api/saves", `{"name":"  "}`, http.StatusBadRequest)
	if noName["error"] != msgNoName {
		t.Fatalf("no name error = %v", noName)
	}
}

func TestSavesServeStoreClient(t *testing.T) {
	s := newTestServer(t)
	remote := store.NewHTTP(store.HTTPOptions{BaseURL: s.URL})
	ctx := context.Background()

	snap := circuit.Snapshot{
		Components: []circuit.Component{{ID: "a", Type: circuit.KindResistor, Variant: "resistor", Props: &circuit.ResistorProps{Value: 10}}},
	}
	info, err := remote.Put(ctx, "Remote", snap, "")
	if err != nil {
		t.Fatal(err)
	}
	got, err := remote.Get(ctx, info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Components) != 1 || got.Components[0].ID != "a" {
		t.Fatalf("snapshot = %+v", got)
	}
	if len(s.sess.Snapshot().Components) != 0 {
		t.Fatal("storing an explicit snapshot must not touch the session")
	}
	if err := remote.Delete(ctx, info.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := remote.Get(ctx, info.ID); err == nil {
		t.Fatal("expected not found")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.mustDo(t, "GET", "/api/health", "", http.StatusOK)
	resp, err := http.Get(s.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "schematic_http_request_duration_seconds") {
		t.Fatal("request histogram not exported")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{circuit.NewRefError("wire", "w", circuit.ErrWireNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", store.ErrNotFound), http.StatusNotFound},
		{circuit.ErrSelfLoop, http.StatusBadRequest},
		{store.ErrNoName, http.StatusBadRequest},
		{&store.StatusError{Status: 503}, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
