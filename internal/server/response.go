package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/dispatch"
	"github.com/CR94168/learn-claude-code-cli/internal/logging"
	"github.com/CR94168/learn-claude-code-cli/internal/orchestrator"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
	"github.com/CR94168/learn-claude-code-cli/internal/scope"
	"github.com/CR94168/learn-claude-code-cli/internal/template"
	"github.com/CR94168/learn-claude-code-cli/internal/workspace"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeArity          = "ARGUMENT_ARITY"
	ErrCodeInvalidSignal  = "INVALID_SIGNAL"
	ErrCodeRunFinished    = "RUN_FINISHED"
	ErrCodeScopeViolation = "SCOPE_VIOLATION"
	ErrCodeTaskFailed     = "TASK_FAILED"
	ErrCodeProviderError  = "PROVIDER_ERROR"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Debug().Err(err).Msg("write response")
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorWithDetails(w, status, code, message, nil)
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeDomainError maps the typed errors of the dispatch packages to a
// status, a code and structured details. extra is merged into the details.
func writeDomainError(w http.ResponseWriter, err error, extra map[string]any) {
	status, code, details := classify(err)
	for k, v := range extra {
		if details == nil {
			details = map[string]any{}
		}
		details[k] = v
	}
	writeErrorWithDetails(w, status, code, err.Error(), details)
}

func classify(err error) (int, string, map[string]any) {
	var (
		nf  *template.NotFoundError
		ae  *binder.ArityError
		te  *binder.TokenizeError
		ie  *orchestrator.InvalidSignalError
		ve  *scope.ViolationError
		tke *workspace.TaskError
		de  *plan.DraftError
	)
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound, ErrCodeNotFound, map[string]any{"name": nf.Name, "suggestions": nf.Suggestions}
	case errors.Is(err, dispatch.ErrRunNotFound):
		return http.StatusNotFound, ErrCodeNotFound, nil
	case errors.As(err, &ae):
		return http.StatusBadRequest, ErrCodeArity, map[string]any{
			"missing": ae.Missing, "slot": ae.Slot, "have": ae.Have, "need": ae.Need,
		}
	case errors.As(err, &te):
		return http.StatusBadRequest, ErrCodeInvalidRequest, map[string]any{"input": te.Input, "reason": te.Reason}
	case errors.As(err, &ie):
		return http.StatusBadRequest, ErrCodeInvalidSignal, map[string]any{"signal": ie.Signal, "reason": ie.Reason}
	case errors.Is(err, orchestrator.ErrRunFinished):
		return http.StatusConflict, ErrCodeRunFinished, nil
	case errors.As(err, &ve):
		return http.StatusForbidden, ErrCodeScopeViolation, map[string]any{
			"path": ve.Path, "resolved": ve.Resolved, "reason": ve.Reason, "taskID": ve.TaskID,
		}
	case errors.As(err, &tke):
		return http.StatusUnprocessableEntity, ErrCodeTaskFailed, map[string]any{
			"taskID": tke.TaskID, "kind": tke.Kind, "path": tke.Path,
		}
	case errors.As(err, &de):
		return http.StatusBadGateway, ErrCodeProviderError, map[string]any{"drafter": de.Drafter}
	}
	return http.StatusInternalServerError, ErrCodeInternalError, nil
}
