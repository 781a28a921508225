package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/pkg/fn"
	"github.com/WessleyAI/wessley-schematic/pkg/repo"
)

func testSnapshot() circuit.Snapshot {
	s := circuit.Snapshot{
		Components: []circuit.Component{
			{ID: "v1", Type: circuit.KindVoltageSource, Variant: "voltage_source", Props: circuit.NewProps(circuit.KindVoltageSource)},
			{ID: "l1", Type: circuit.KindLamp, Variant: "lamp", X: 200, Props: circuit.NewProps(circuit.KindLamp)},
		},
		Wires: []circuit.Wire{
			{ID: "w1", From: circuit.TerminalRef{CompID: "v1", Index: 1}, To: circuit.TerminalRef{CompID: "l1", Index: 0}, WireStyle: circuit.DefaultWireStyle},
		},
		CanvasSize: &circuit.CanvasSize{Width: 800, Height: 600},
	}
	s.Normalize()
	return s
}

// stepClock advances one second per reading.
type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func seqIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newMemory() *Memory {
	clk := &stepClock{t: time.UnixMilli(1_700_000_000_000)}
	return NewMemory(MemoryOptions{Now: clk.Now, NewID: seqIDs()})
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"  Kök/belysning #2 ": "Kkbelysning 2",
		"motor_start-stopp":   "motor_start-stopp",
		"../../etc/passwd":    "etcpasswd",
		"!!!":                 "",
	}
	for in, want := range cases {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}

// exerciseStore runs the shared Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	snap := testSnapshot()

	first, err := s.Put(ctx, " Lampa ", snap, "")
	if err != nil {
		t.Fatal(err)
	}
	if first.Name != "Lampa" || first.ID == "" {
		t.Fatalf("first = %+v", first)
	}
	second, err := s.Put(ctx, "Motor", snap, "")
	if err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("list = %+v", list)
	}

	// same name replaces in place and moves to the top
	edited := snap.Clone()
	edited.Components = edited.Components[:1]
	edited.Wires = []circuit.Wire{}
	again, err := s.Put(ctx, "Lampa", edited, "")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID || again.UpdatedAt <= first.UpdatedAt {
		t.Fatalf("again = %+v, first = %+v", again, first)
	}
	list, _ = s.List(ctx)
	if len(list) != 2 || list[0].ID != first.ID {
		t.Fatalf("list after update = %+v", list)
	}

	got, err := s.Get(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, edited) {
		t.Fatalf("loaded %+v, want %+v", got, edited)
	}

	// explicit id renames
	renamed, err := s.Put(ctx, "Motor 2", snap, second.ID)
	if err != nil || renamed.ID != second.ID || renamed.Name != "Motor 2" {
		t.Fatalf("renamed = %+v, %v", renamed, err)
	}

	if _, err := s.Put(ctx, "???", snap, ""); !errors.Is(err, ErrNoName) {
		t.Fatalf("err = %v", err)
	}

	if err := s.Delete(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if _, err := s.Get(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get err = %v", err)
	}
	list, _ = s.List(ctx)
	if len(list) != 1 || list[0].Name != "Motor 2" {
		t.Fatalf("final list = %+v", list)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, newMemory())
}

func TestMemoryKeepsCreatedAt(t *testing.T) {
	m := newMemory()
	ctx := context.Background()
	a, _ := m.Put(ctx, "A", testSnapshot(), "")
	created := m.saves[a.ID].CreatedAt
	m.Put(ctx, "A", testSnapshot(), "")
	if m.saves[a.ID].CreatedAt != created || m.saves[a.ID].UpdatedAt == created {
		t.Fatalf("record = %+v", m.saves[a.ID])
	}
}

func TestMemoryIsolatesSnapshots(t *testing.T) {
	m := newMemory()
	ctx := context.Background()
	snap := testSnapshot()
	info, _ := m.Put(ctx, "A", snap, "")
	snap.Components[0].X = 999
	got, _ := m.Get(ctx, info.ID)
	got.Components[1].X = 555
	again, _ := m.Get(ctx, info.ID)
	if again.Components[0].X != 0 || again.Components[1].X != 200 {
		t.Fatalf("stored snapshot changed: %+v", again.Components)
	}
}

func TestMemoryPutWithUnknownID(t *testing.T) {
	m := newMemory()
	info, err := m.Put(context.Background(), "A", testSnapshot(), "chosen")
	if err != nil || info.ID != "chosen" {
		t.Fatalf("info = %+v, %v", info, err)
	}
}

// saveServer serves the persistence API over a Memory store.
func saveServer(m *Memory) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /api/saves", func(w http.ResponseWriter, r *http.Request) {
		list, _ := m.List(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"saves": list})
	})
	mux.HandleFunc("POST /api/saves", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			ID       string           `json:"id"`
			Name     string           `json:"name"`
			Snapshot circuit.Snapshot `json:"snapshot"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		info, err := m.Put(r.Context(), in.Name, in.Snapshot, in.ID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Namn saknas."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"save": info})
	})
	mux.HandleFunc("GET /api/saves/{id}", func(w http.ResponseWriter, r *http.Request) {
		snap, err := m.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Sparning hittades inte."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
	})
	mux.HandleFunc("DELETE /api/saves/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := m.Delete(r.Context(), r.PathValue("id")); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Sparning hittades inte."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	return mux
}

func fastRetry() fn.RetryOpts {
	return fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
}

func TestHTTPStore(t *testing.T) {
	srv := httptest.NewServer(saveServer(newMemory()))
	defer srv.Close()
	exerciseStore(t, NewHTTP(HTTPOptions{BaseURL: srv.URL + "/", Retry: fastRetry()}))
}

func TestHTTPStoreNotFoundMessage(t *testing.T) {
	srv := httptest.NewServer(saveServer(newMemory()))
	defer srv.Close()
	_, err := NewHTTP(HTTPOptions{BaseURL: srv.URL, Retry: fastRetry()}).Get(context.Background(), "nope")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != 404 || se.Message != "Sparning hittades inte." {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("404 should match ErrNotFound")
	}
}

func TestHTTPStoreRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"error":"busy"}`, http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"saves":[{"id":"a","name":"A","updatedAt":1},{"id":"b","name":"B","updatedAt":5}]}`))
	}))
	defer srv.Close()

	list, err := NewHTTP(HTTPOptions{BaseURL: srv.URL, Retry: fastRetry()}).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 || len(list) != 2 || list[0].ID != "b" {
		t.Fatalf("calls = %d, list = %+v", calls.Load(), list)
	}
}

func TestHTTPStoreDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Snapshot saknas."}`))
	}))
	defer srv.Close()

	_, err := NewHTTP(HTTPOptions{BaseURL: srv.URL, Retry: fastRetry()}).Put(context.Background(), "A", testSnapshot(), "")
	if err == nil || !strings.Contains(err.Error(), "Snapshot saknas.") {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

// fakeSaveRepo stands in for the Neo4j repository.
type fakeSaveRepo struct {
	nodes map[string]saveNode
	order []string
}

func (f *fakeSaveRepo) Get(ctx context.Context, id string) (saveNode, error) {
	n, ok := f.nodes[id]
	if !ok {
		return saveNode{}, repo.ErrNotFound
	}
	return n, nil
}

func (f *fakeSaveRepo) FindBy(ctx context.Context, key string, value any) (saveNode, error) {
	for _, id := range f.order {
		if n, ok := f.nodes[id]; ok && key == "name" && n.Name == value {
			return n, nil
		}
	}
	return saveNode{}, repo.ErrNotFound
}

func (f *fakeSaveRepo) List(ctx context.Context, opts repo.ListOpts) ([]saveNode, error) {
	var out []saveNode
	for _, id := range f.order {
		if n, ok := f.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeSaveRepo) Put(ctx context.Context, n saveNode) (saveNode, error) {
	if _, ok := f.nodes[n.ID]; !ok {
		f.order = append(f.order, n.ID)
	}
	f.nodes[n.ID] = n
	return n, nil
}

func (f *fakeSaveRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.nodes[id]; !ok {
		return fmt.Errorf("Save %s: %w", id, repo.ErrNotFound)
	}
	delete(f.nodes, id)
	return nil
}

func TestNeo4jStore(t *testing.T) {
	clk := &stepClock{t: time.UnixMilli(1_700_000_000_000)}
	r := &fakeSaveRepo{nodes: map[string]saveNode{}}
	s := newNeo4j(r, Neo4jOptions{Now: clk.Now, NewID: seqIDs()})
	exerciseStore(t, s)

	for _, n := range r.nodes {
		if n.CreatedAt == 0 || n.UpdatedAt < n.CreatedAt || !strings.HasPrefix(n.Snapshot, "{") {
			t.Fatalf("stored node = %+v", n)
		}
	}
}

func TestSaveFromRecordProps(t *testing.T) {
	props := map[string]any{"id": "a", "name": "A", "snapshot": "{}", "createdAt": int64(1), "updatedAt": int64(2)}
	n, err := saveFromRecord(&neo4j.Record{Values: []any{props}, Keys: []string{"n"}})
	if err != nil || n.ID != "a" || n.UpdatedAt != 2 {
		t.Fatalf("node = %+v, %v", n, err)
	}
	if !reflect.DeepEqual(n.toMap(), props) {
		t.Fatalf("toMap = %v", n.toMap())
	}
	if _, err := saveFromRecord(&neo4j.Record{Values: []any{map[string]any{"name": "x"}}}); err == nil {
		t.Fatal("node without id must fail")
	}
}
