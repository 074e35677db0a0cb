// Package server answers the callback update protocol from Go functions.
//
// A Server is an http.Handler exposing POST /_dash-update-component. Each
// callback is registered under its declaration output string; the request
// payload is decoded, passed to the function and its return value mapped
// back onto the requested outputs.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/roach88/reflow/internal/executor"
	"github.com/roach88/reflow/internal/ident"
)

// Server routes callback requests to registered functions.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]executor.Func
	router   *mux.Router
}

// New creates a Server with no callbacks.
func New() *Server {
	s := &Server{
		handlers: make(map[string]executor.Func),
		router:   mux.NewRouter(),
	}
	s.router.HandleFunc(executor.UpdatePath, s.update).Methods(http.MethodPost)
	return s
}

// Register serves the callback whose declaration output string is output.
func (s *Server) Register(output string, fn executor.Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[output] = fn
}

func (s *Server) lookup(output string) (executor.Func, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.handlers[output]
	return fn, ok
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var p executor.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	fn, ok := s.lookup(p.Output)
	if !ok {
		http.Error(w, "no callback registered for "+p.Output, http.StatusNotFound)
		return
	}

	ret, err := fn(executor.NewCallbackContext(r.Context(), &p), executor.Args(&p)...)
	if executor.IsPreventUpdate(err) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		slog.Warn("callback failed", "output", p.Output, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, ok := ret.(executor.Future); ok {
		http.Error(w, executor.ErrFutureUnsupported.Error(), http.StatusInternalServerError)
		return
	}

	data, err := executor.ZipOutputs(&p, ret)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp, err := respond(&p, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("write response failed", "output", p.Output, "error", err)
	}
}

// respond answers multi for multi-output and wildcard callbacks, whose
// outputs are only known by their concrete ids.
func respond(p *executor.Payload, data executor.Data) (*executor.Response, error) {
	if p.MultiOutput() {
		return executor.MultiResponse(data)
	}
	id, _, err := ident.SplitIDAndProp(p.Output)
	if err != nil || id.IsWildcard() || len(p.Outputs) != 1 || len(p.Outputs[0].Props) != 1 {
		return executor.MultiResponse(data)
	}
	props, ok := data[p.Outputs[0].Props[0].ID.String()]
	if !ok {
		return nil, errors.New("callback returned no value for " + p.Output)
	}
	return executor.SingleResponse(props)
}
