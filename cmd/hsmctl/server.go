package main

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/comalice/hsm"
	"github.com/comalice/hsm/lifecycle"
)

// eventRequest is the optional body of POST /events/{name}.
type eventRequest struct {
	Args  []string `json:"args,omitempty"`
	Error string   `json:"error,omitempty"`
}

// stateResponse is returned by GET /states and after every event.
type stateResponse struct {
	Machine string   `json:"machine"`
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Active  []string `json:"active"`
	Output  any      `json:"output,omitempty"`
}

type server struct {
	lc     *lifecycle.LifeCycle
	logger *zap.SugaredLogger
	events map[string]func(req eventRequest) (any, error)
}

// newRouter exposes lc over HTTP. Metrics registered with gatherer are
// served on /metrics.
func newRouter(lc *lifecycle.LifeCycle, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) http.Handler {
	s := &server{lc: lc, logger: logger}
	void := func(fn func() error) func(eventRequest) (any, error) {
		return func(eventRequest) (any, error) { return nil, fn() }
	}
	s.events = map[string]func(eventRequest) (any, error){
		"start":            void(lc.Start),
		"prepare":          void(lc.Prepare),
		"stop":             void(lc.Stop),
		"prepareSucceeded": void(lc.PrepareSucceeded),
		"startSucceeded":   void(lc.StartSucceeded),
		"stopSucceeded":    void(lc.StopSucceeded),
		"stopFailed":       void(lc.StopFailed),
		"stopped":          void(lc.Stopped),
		"timeout":          void(lc.Timeout),
		"startWithArgs": func(req eventRequest) (any, error) {
			return nil, lc.StartWithArgs(req.Args)
		},
		"exception": func(req eventRequest) (any, error) {
			return nil, lc.Exception(errors.New(req.Error))
		},
		"getStatus": func(eventRequest) (any, error) { return lc.Status() },
		"getName":   func(eventRequest) (any, error) { return lc.Name() },
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/states", s.states)
	r.Get("/describe", s.describe)
	r.Post("/events/{name}", s.event)
	return r
}

func (s *server) snapshot(output any) stateResponse {
	m := s.lc.Handle().Machine()
	active := m.ActiveStates()
	resp := stateResponse{Machine: m.Name(), ID: m.ID(), Active: active, Output: output}
	if len(active) > 1 {
		resp.Status = active[1]
	}
	return resp
}

func (s *server) states(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot(nil))
}

func (s *server) describe(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	m := s.lc.Handle().Machine()
	var buf bytes.Buffer
	if err := render(&buf, format, m.Model(), m.ActiveNodes()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	_, _ = w.Write(buf.Bytes())
}

func (s *server) event(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	fn, ok := s.events[name]
	if !ok {
		http.Error(w, "unknown event "+name, http.StatusNotFound)
		return
	}
	var req eventRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			s.logger.Warnw("Invalid event body", "event", name, "error", err)
			return
		}
	}

	out, err := fn(req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, hsm.ErrUnhandledEvent):
			status = http.StatusConflict
		case errors.Is(err, hsm.ErrInvalidEvent):
			status = http.StatusBadRequest
		}
		s.logger.Infow("Event rejected", "event", name, "error", err)
		s.writeJSON(w, status, map[string]any{"error": err.Error(), "kind": hsm.KindOf(err)})
		return
	}
	s.writeJSON(w, http.StatusOK, s.snapshot(out))
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorw("Response encode failed", "error", err)
	}
}

func contentType(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "yaml":
		return "text/yaml"
	case "dot":
		return "text/vnd.graphviz"
	default:
		return "text/plain; charset=utf-8"
	}
}
