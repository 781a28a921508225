package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
	"github.com/WessleyAI/wessley-schematic/engine/session"
	"github.com/WessleyAI/wessley-schematic/engine/store"
)

func routes(mux *http.ServeMux, sess *session.Session, saves store.Store, logger *slog.Logger) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/topology", handleTopology(sess))
	mux.HandleFunc("GET /api/state", handleState(sess))
	mux.HandleFunc("GET /api/hit", handleHit(sess))

	mux.HandleFunc("POST /api/components", handleAddComponent(sess, logger))
	mux.HandleFunc("POST /api/components/{id}/move", handleMoveComponent(sess, logger))
	mux.HandleFunc("POST /api/components/{id}/rotate", handleRotateComponent(sess, logger))
	mux.HandleFunc("POST /api/components/{id}/props", handlePatchProps(sess, logger))
	mux.HandleFunc("POST /api/components/{id}/{control}", handleControl(sess, logger))
	mux.HandleFunc("DELETE /api/components/{id}", handleRemoveComponent(sess, logger))

	mux.HandleFunc("POST /api/wires", handleAddWire(sess, logger))
	mux.HandleFunc("DELETE /api/wires/{id}", handleRemoveWire(sess, logger))
	mux.HandleFunc("POST /api/wires/{id}/style", handleWireStyle(sess, logger))
	mux.HandleFunc("POST /api/wires/{id}/points", handleInsertWirePoint(sess, logger))
	mux.HandleFunc("POST /api/wires/{id}/points/{index}", handleMoveWirePoint(sess, logger))
	mux.HandleFunc("DELETE /api/wires/{id}/points", handleRemoveWirePoint(sess, logger))
	mux.HandleFunc("POST /api/wire-defaults", handleWireDefaults(sess))

	mux.HandleFunc("POST /api/meters", handleAddMeter(sess, logger))
	mux.HandleFunc("POST /api/meters/{id}/move", handleMoveMeter(sess, logger))
	mux.HandleFunc("DELETE /api/meters/{id}", handleRemoveMeter(sess, logger))

	mux.HandleFunc("POST /api/canvas", handleCanvas(sess))
	mux.HandleFunc("POST /api/select", handleSelect(sess))
	mux.HandleFunc("POST /api/undo", handleUndo(sess))
	mux.HandleFunc("POST /api/clear", handleClear(sess))
	mux.HandleFunc("POST /api/simulation", handleSimulation(sess))
	mux.HandleFunc("GET /api/debug", handleDebug(sess))
	mux.HandleFunc("DELETE /api/debug", handleClearDebug(sess))

	mux.HandleFunc("GET /api/saves", handleListSaves(saves, logger))
	mux.HandleFunc("POST /api/saves", handlePutSave(sess, saves, logger))
	mux.HandleFunc("GET /api/saves/{id}", handleGetSave(saves, logger))
	mux.HandleFunc("DELETE /api/saves/{id}", handleDeleteSave(saves, logger))
	mux.HandleFunc("POST /api/saves/{id}/load", handleLoadSave(sess, logger))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var se *store.StatusError
	switch {
	case errors.Is(err, circuit.ErrComponentNotFound),
		errors.Is(err, circuit.ErrWireNotFound),
		errors.Is(err, circuit.ErrMeterNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, circuit.ErrUnknownVariant),
		errors.Is(err, circuit.ErrTerminalNotFound),
		errors.Is(err, circuit.ErrSelfLoop),
		errors.Is(err, circuit.ErrNoWirePath),
		errors.Is(err, circuit.ErrNoWirePoint),
		errors.Is(err, circuit.ErrPropsKind),
		errors.Is(err, circuit.ErrInvalidMeter),
		errors.Is(err, circuit.ErrInvalidRotation),
		errors.Is(err, circuit.ErrNotInteractive),
		errors.Is(err, store.ErrNoName):
		return http.StatusBadRequest
	case errors.As(err, &se):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail answers err. Server-side failures are logged and their details hidden.
func fail(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.Error("request failed", "err", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func ok(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- Read-only views ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleTopology(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, sess.Layout())
	}
}

func handleState(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, sess.Derived())
	}
}

func handleHit(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
		y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
		if errX != nil || errY != nil {
			writeError(w, http.StatusBadRequest, "x and y are required")
			return
		}
		writeJSON(w, http.StatusOK, sess.HitTest(circuit.Point{X: x, Y: y}))
	}
}

// --- Components ---

type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AddComponentRequest is the JSON body for POST /api/components.
type AddComponentRequest struct {
	Variant string  `json:"variant"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

func handleAddComponent(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddComponentRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Variant == "" {
			writeError(w, http.StatusBadRequest, "variant is required")
			return
		}
		c, err := sess.AddComponent(req.Variant, req.X, req.Y)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func handleMoveComponent(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req positionRequest
		if !decode(w, r, &req) {
			return
		}
		if err := sess.MoveComponent(r.PathValue("id"), req.X, req.Y); err != nil {
			fail(w, logger, err)
			return
		}
		ok(w)
	}
}

func handleRotateComponent(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := struct {
			Step int `json:"step"`
		}{Step: 90}
		if r.ContentLength > 0 && !decode(w, r, &req) {
			return
		}
		if err := sess.RotateComponent(r.PathValue("id"), req.Step); err != nil {
			fail(w, logger, err)
			return
		}
		ok(w)
	}
}

func handlePatchProps(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if !decode(w, r, &raw) {
			return
		}
		if err := sess.PatchProps(r.PathValue("id"), raw); err != nil {
			if status := statusFor(err); status == http.StatusInternalServerError {
				// the patch itself did not decode
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			fail(w, logger, err)
			return
		}
		ok(w)
	}
}

// handleControl drives a component's interactive control: toggle, press or release.
func handleControl(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var op func(string) error
		switch r.PathValue("control") {
		case "toggle":
			op = sess.Toggle
		case "press":
			op = sess.Press
		case "release":
			op = sess.Release
		default:
			writeError(w, http.StatusNotFound, "unknown control")
			return
		}
		if err := op(r.PathValue("id")); err != nil {
			fail(w, logger, err)
			return
		}
		ok(w)
	}
}

func handleRemoveComponent(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := sess.RemoveComponent(r.PathValue("id"))
		if err != nil {
			fail(w, logger, err)
			return
		}
		if removed == nil {
			removed = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"removedWires": removed})
	}
}

// --- Wires ---

// AddWireRequest is the JSON body for POST /api/wires.
type AddWireRequest struct {
	From   circuit.TerminalRef `json:"from"`
	To     circuit.TerminalRef `json:"to"`
	Points []circuit.Point     `json:"points"`
}

func handleAddWire(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddWireRequest
		if !decode(w, r, &req) {
			return
		}
		wire, err := sess.AddWire(req.From, req.To, req.Points)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, wire)
	}
}

func handleRemoveWire(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sess.RemoveWire(r.PathValue("id")); err != nil {
			fail(w, logger, err)
			return
		}
		ok(w)
	}
}

func handleWireStyle(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var style circuit.WireStyle
		if !decode(w, r, &style) {
			return
		}
		if err := sess.SetWireStyle(r.PathValue("id"), style); err != nil {
			fail(w, logger, err)
			return
		}
		ok(w)
	}
}

func handleWireDefaults(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var style circuit.WireStyle
		if !decode(w, r, &style) {
			return
		}
		sess.SetWireDefaults(style)
		ok(w)
	}
}

func handleInsertWirePoint(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req positionRequest
		if !decode(w, r, &req) {
			return
		}
		i, err := sess.InsertWirePoint(r.PathValue("id"), circuit.Point{X: req.X, Y: req.Y})
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int{"index": i})
	}
}

func handleMoveWirePoint(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(r.PathValue("index"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid point index")
			return
		}
		var req positionRequest
		if !decode(w, r, &req) {
			return
		}
		if err := sess.MoveWirePoint(r.PathValue("id"), index, circuit.Point{X: req.X, Y: req.Y}); err != nil {
			fail(w, logger, err)
			return
		}
		ok(w)
	}
}

func handleRemoveWirePoint(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
		y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
		if errX != nil || errY != nil {
			writeError(w, http.StatusBadRequest, "x and y are required")
			return
		}
		if err := sess.RemoveWirePoint(r.PathValue("id"), circuit.Point{X: x, Y: y}); err != nil {
			fail(w, logger, err)
			return
		}
		ok(w)
	}
}

// --- Meters ---

func handleAddMeter(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var mt circuit.Meter
		if !decode(w, r, &mt) {
			return
		}
		out, err := sess.AddMeter(mt)
		if err != nil {
			fail(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func handleMoveMeter(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req positionRequest
		if !decode(w, r, &req) {
			return
		}
		if err := sess.MoveMeter(r.PathValue("id"), req.X, req.Y); err != nil {
			fail(w, logger, err)
			return
		}
		ok(w)
	}
}

func handleRemoveMeter(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sess.RemoveMeter(r.PathValue("id")); err != nil {
			fail(w, logger, err)
			return
		}
		ok(w)
	}
}

// --- Session ---

func handleCanvas(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req circuit.CanvasSize
		if !decode(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, sess.SetCanvasSize(req.Width, req.Height))
	}
}

func handleSelect(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Component string `json:"component"`
			Wire      string `json:"wire"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Wire != "" {
			sess.SelectWire(req.Wire)
		} else {
			sess.Select(req.Component)
		}
		c, wire := sess.Selection()
		writeJSON(w, http.StatusOK, map[string]string{"component": c, "wire": wire})
	}
}

func handleUndo(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"undone": sess.Undo()})
	}
}

func handleClear(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sess.Clear()
		ok(w)
	}
}

func handleSimulation(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			On *bool `json:"on"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.On == nil {
			writeError(w, http.StatusBadRequest, "on is required")
			return
		}
		sess.SetSimulation(*req.On)
		writeJSON(w, http.StatusOK, map[string]bool{"simulating": sess.Simulating()})
	}
}

func handleDebug(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"entries": sess.DebugEntries()})
	}
}

func handleClearDebug(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sess.ClearDebug()
		ok(w)
	}
}

// --- Saves ---
//
// The saves endpoints speak the persistence service's wire format, so one
// sessiond can serve as another's STORE_URL.

const (
	msgNoName   = "Namn saknas."
	msgNotFound = "Sparning hittades inte."
)

func saveError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrNoName):
		writeError(w, http.StatusBadRequest, msgNoName)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	default:
		fail(w, logger, err)
	}
}

// SaveRequest is the JSON body for POST /api/saves. Without a snapshot the
// session's current topology is saved.
type SaveRequest struct {
	ID       string            `json:"id,omitempty"`
	Name     string            `json:"name"`
	Snapshot *circuit.Snapshot `json:"snapshot,omitempty"`
}

func handleListSaves(saves store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := saves.List(r.Context())
		if err != nil {
			saveError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"saves": list})
	}
}

func handlePutSave(sess *session.Session, saves store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveRequest
		if !decode(w, r, &req) {
			return
		}
		var (
			info store.SaveInfo
			err  error
		)
		if req.Snapshot != nil {
			info, err = saves.Put(r.Context(), req.Name, *req.Snapshot, req.ID)
		} else {
			info, err = sess.Save(r.Context(), req.Name, req.ID)
		}
		if err != nil {
			saveError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"save": info})
	}
}

func handleGetSave(saves store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := saves.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			saveError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
	}
}

func handleDeleteSave(saves store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := saves.Delete(r.Context(), r.PathValue("id")); err != nil {
			saveError(w, logger, err)
			return
		}
		ok(w)
	}
}

func handleLoadSave(sess *session.Session, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sess.LoadSave(r.Context(), r.PathValue("id")); err != nil {
			saveError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Layout())
	}
}
