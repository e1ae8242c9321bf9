package commands

import (
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haivivi/edutalk/pkg/display"
	"github.com/haivivi/edutalk/pkg/turn"
)

// controlled is the part of the turn controller the status server exposes.
type controlled interface {
	State() turn.State
	Current() (turn.Turn, bool)
	Ask(text string) error
	Cancel() bool
}

// StatusServer serves the live event feed, metrics and a small control
// API next to the terminal UI.
type StatusServer struct {
	ctrl     controlled
	hub      *display.Hub
	registry *prometheus.Registry
}

// NewStatusServer creates the handler set for one controller.
func NewStatusServer(ctrl controlled, hub *display.Hub, registry *prometheus.Registry) *StatusServer {
	return &StatusServer{ctrl: ctrl, hub: hub, registry: registry}
}

// Handler returns the HTTP routes:
//
//	GET  /ws          display events as JSON websocket messages
//	GET  /metrics     Prometheus metrics
//	GET  /api/state   current state and turn
//	POST /api/ask     {"text": "..."} starts a typed turn
//	POST /api/cancel  cancels the active turn
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/api/cancel", s.handleCancel)
	return mux
}

type stateResponse struct {
	State     turn.State `json:"state"`
	Turn      string     `json:"turn,omitempty"`
	Prompt    string     `json:"prompt,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Clients   int        `json:"clients"`
}

func (s *StatusServer) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{State: s.ctrl.State(), Clients: s.hub.ClientCount()}
	if t, ok := s.ctrl.Current(); ok {
		resp.Turn = t.ID.String()
		resp.Prompt = t.Prompt
		resp.StartedAt = &t.StartedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *StatusServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ctrl.Ask(req.Text); err != nil {
		code := http.StatusServiceUnavailable
		if errors.Is(err, turn.ErrBusy) {
			code = http.StatusConflict
		}
		http.Error(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"state": s.ctrl.State()})
}

func (s *StatusServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": s.ctrl.Cancel()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
