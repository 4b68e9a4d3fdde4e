package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"crowd-sim/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxBatchSpawn caps POST /api/bodies/batch
const MaxBatchSpawn = 500

// Handler methods for routerHandlers

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.GetSnapshot())
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"engine": h.engine.Stats(),
	}
	if h.hub != nil {
		stats["wsClients"] = h.hub.ClientCount()
	}
	writeJSON(w, stats)
}

// bodyRequest is decoded over newBodyRequest so only omitted fields take defaults.
type bodyRequest struct {
	Kind   string  `json:"kind"`
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Z      float32 `json:"z"`
	Radius float32 `json:"radius"`
	Mass   float32 `json:"mass"`
}

func newBodyRequest() bodyRequest {
	return bodyRequest{Radius: game.DefaultRadius, Mass: game.DefaultMass}
}

func (h *routerHandlers) handleAddBody(w http.ResponseWriter, r *http.Request) {
	req := newBodyRequest()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	kind, err := game.ParseKind(req.Kind)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	handle, err := h.engine.AddBody(game.BodyOptions{
		Kind:     kind,
		Position: mgl32.Vec3{req.X, req.Y, req.Z},
		Radius:   req.Radius,
		Mass:     req.Mass,
	})
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	writeJSONStatus(w, http.StatusCreated, map[string]interface{}{"handle": handle})
}

func (h *routerHandlers) handleBatchSpawn(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Count  int     `json:"count"`
		Kind   string  `json:"kind"`
		Radius float32 `json:"radius"`
		Mass   float32 `json:"mass"`
	}{Radius: game.DefaultRadius, Mass: game.DefaultMass}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	kind, err := game.ParseKind(req.Kind)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if kind == game.KindPlayer {
		writeError(w, "player bodies cannot be batch spawned", http.StatusBadRequest)
		return
	}

	if req.Count <= 0 {
		req.Count = 10 // Default
	}
	if req.Count > MaxBatchSpawn {
		req.Count = MaxBatchSpawn
	}

	handles, err := h.engine.SpawnRandom(req.Count, kind, req.Radius, req.Mass)
	if err != nil && len(handles) == 0 {
		writeError(w, err.Error(), statusForError(err))
		return
	}
	if err != nil {
		log.Printf("⚠️ Batch spawn stopped after %d bodies: %v", len(handles), err)
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"count":   len(handles),
		"handles": handles,
	})
}

func (h *routerHandlers) handleGetBody(w http.ResponseWriter, r *http.Request) {
	handle, ok := parseHandle(w, r)
	if !ok {
		return
	}

	body, found := h.engine.GetSnapshot().Find(handle)
	if !found {
		writeError(w, "Body not found", http.StatusNotFound)
		return
	}
	writeJSON(w, body)
}

func (h *routerHandlers) handleRemoveBody(w http.ResponseWriter, r *http.Request) {
	handle, ok := parseHandle(w, r)
	if !ok {
		return
	}

	if !h.engine.RemoveBody(handle) {
		writeError(w, "Body not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handlePlayerInput(w http.ResponseWriter, r *http.Request) {
	var in game.PlayerInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !h.engine.SetPlayerInput(in) {
		writeError(w, "Input queue full", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleFrame(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, "Renderer disabled", http.StatusServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	if err := h.renderer.EncodePNG(&buf, h.engine.GetSnapshot()); err != nil {
		log.Printf("❌ Frame render failed: %v", err)
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// Helper functions (package-level for reuse)

func parseHandle(w http.ResponseWriter, r *http.Request) (game.Handle, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, "handle"), 10, 64)
	if err != nil || v == 0 {
		writeError(w, "Invalid handle", http.StatusBadRequest)
		return 0, false
	}
	return game.Handle(v), true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, game.ErrBodyLimit):
		return http.StatusServiceUnavailable
	case errors.Is(err, game.ErrInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrWorldClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
