package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/loqalabs/loqa-tutor/internal/eventstore"
	"github.com/loqalabs/loqa-tutor/internal/protocol"
	"github.com/loqalabs/loqa-tutor/internal/ui"
)

// controlSurface is the part of the controller the HTTP surface drives.
type controlSurface interface {
	Snapshot() ui.State
	Dispatch(protocol.Action)
}

type handlers struct {
	ctrl     controlSurface
	timeline *eventstore.Timeline
	ready    *atomic.Bool
	log      *slog.Logger
}

func newMux(h *handlers, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /readyz", h.readiness)
	mux.HandleFunc("GET /state", h.state)
	mux.HandleFunc("POST /actions", h.action)
	mux.HandleFunc("GET /sessions", h.sessions)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) readiness(w http.ResponseWriter, _ *http.Request) {
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (h *handlers) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot(), h.log)
}

func (h *handlers) action(w http.ResponseWriter, r *http.Request) {
	var action protocol.Action
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&action); err != nil {
		http.Error(w, "invalid action: "+err.Error(), http.StatusBadRequest)
		return
	}
	if action.Kind == "" {
		http.Error(w, "action kind required", http.StatusBadRequest)
		return
	}
	h.ctrl.Dispatch(action)
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) sessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.timeline.Sessions(r.Context(), limit)
	if err != nil {
		h.log.Error("list sessions failed", slog.String("error", err.Error()))
		http.Error(w, "timeline unavailable", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []eventstore.Session{}
	}
	writeJSON(w, http.StatusOK, list, h.log)
}

func writeJSON(w http.ResponseWriter, code int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to write response", slog.String("error", err.Error()))
	}
}
