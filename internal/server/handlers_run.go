package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/orchestrator"
)

// StartRunRequest is the body of POST /run.
type StartRunRequest struct {
	Command string   `json:"command"`
	Input   string   `json:"input,omitempty"`
	Args    []string `json:"args,omitempty"`
	// AutoApprove approves the first plan right away.
	AutoApprove bool `json:"autoApprove,omitempty"`
}

// startRun handles POST /run.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "command is required")
		return
	}

	// Runs outlive the request that started them.
	ctx := context.WithoutCancel(r.Context())

	run, err := s.svc.Start(ctx, binder.Request{Command: req.Command, Input: req.Input, Args: req.Args})
	if err != nil {
		writeRunError(w, run, err)
		return
	}

	if req.AutoApprove {
		if err := run.Signal(ctx, orchestrator.Approve()); err != nil {
			writeRunError(w, run, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, run.Snapshot())
}

// listRuns handles GET /run.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.svc.Runs(r.Context())
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// getRun handles GET /run/{runID}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// signalRun handles POST /run/{runID}/signal.
func (s *Server) signalRun(w http.ResponseWriter, r *http.Request) {
	var sig orchestrator.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
		return
	}

	id := chi.URLParam(r, "runID")
	run, ok := s.svc.Run(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "run not found or not live: "+id)
		return
	}

	if err := run.Signal(context.WithoutCancel(r.Context()), sig); err != nil {
		writeRunError(w, run, err)
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}

// writeRunError reports err with the run's ID and task outcome.
func writeRunError(w http.ResponseWriter, run *orchestrator.Run, err error) {
	if run == nil {
		writeDomainError(w, err, nil)
		return
	}
	snap := run.Snapshot()
	writeDomainError(w, err, map[string]any{
		"runID":     snap.ID,
		"state":     snap.State,
		"completed": snap.Completed,
		"aborted":   snap.Aborted,
	})
}
