package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/template"
)

// CommandInfo is the listing form of a template.
type CommandInfo struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	ArgumentHint string          `json:"argumentHint,omitempty"`
	Slots        []template.Slot `json:"slots,omitempty"`
	Scope        []string        `json:"scope,omitempty"`
	Path         string          `json:"path"`
}

// BindRequest is the body of POST /command/{name}/bind.
type BindRequest struct {
	Input string   `json:"input,omitempty"`
	Args  []string `json:"args,omitempty"`
}

func commandInfo(t *template.Template) CommandInfo {
	return CommandInfo{
		Name:         t.Name,
		Description:  t.Description,
		ArgumentHint: t.ArgumentHint,
		Slots:        t.Slots,
		Scope:        t.Scope,
		Path:         t.Path,
	}
}

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy":   true,
		"workspace": s.svc.WorkDir(),
		"commands":  len(s.svc.Commands()),
	})
}

// listCommands handles GET /command.
func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	cmds := s.svc.Commands()
	out := make([]CommandInfo, len(cmds))
	for i, t := range cmds {
		out[i] = commandInfo(t)
	}
	writeJSON(w, http.StatusOK, out)
}

// getCommand handles GET /command/{name}.
func (s *Server) getCommand(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.svc.Command(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// bindCommand handles POST /command/{name}/bind.
func (s *Server) bindCommand(w http.ResponseWriter, r *http.Request) {
	var req BindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
		return
	}

	_, inst, err := s.svc.Bind(binder.Request{Command: chi.URLParam(r, "name"), Input: req.Input, Args: req.Args})
	if err != nil {
		writeDomainError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}
