package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/dispatch"
	"github.com/CR94168/learn-claude-code-cli/internal/orchestrator"
	"github.com/CR94168/learn-claude-code-cli/internal/storage"
	"github.com/CR94168/learn-claude-code-cli/pkg/types"
)

const escapeCommand = "---\ndescription: Write outside\n---\n" +
	"```plan\nsummary: escape\ntasks:\n  - kind: create\n    path: ../../etc/passwd\n    content: x\n```\n"

func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	workDir := t.TempDir()
	dir := filepath.Join(workDir, ".claude", "commands")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "add-feature.md"),
		[]byte("---\nargument-hint: [feature-description]\n---\nImplement {{args}}.\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "create-project.md"),
		[]byte("---\nargument-hint: [framework] [project-name]\n---\n{{args[0]}} {{args[1]}}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "escape.md"), []byte(escapeCommand), 0644))

	svc, err := dispatch.New(context.Background(), dispatch.Options{
		WorkDir: workDir,
		Config:  &types.Config{},
		Store:   storage.NewWithFs(afero.NewMemMapFs(), "/store"),
		Locker:  storage.NewScopeLocker(t.TempDir()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return New(&Config{EnableCORS: true}, svc), workDir
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	srv, _ := setupTestServer(t)
	w := do(t, srv, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"commands":3`)
}

func TestListAndGetCommands(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "GET", "/command", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cmds []CommandInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cmds))
	require.Len(t, cmds, 3)
	assert.Equal(t, "add-feature", cmds[0].Name)
	assert.Equal(t, "[feature-description]", cmds[0].ArgumentHint)

	w = do(t, srv, "GET", "/command/create-project", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, "GET", "/command/create-projct", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, ErrCodeNotFound, e.Code)
	assert.Contains(t, e.Details["suggestions"], "create-project")
}

func TestBindCommand(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "POST", "/command/create-project/bind", BindRequest{Input: "vue shop"})
	require.Equal(t, http.StatusOK, w.Code)
	var inst binder.Instruction
	require.NoError(t, json.NewDecoder(w.Body).Decode(&inst))
	assert.Equal(t, "vue shop\n", inst.Text)

	w = do(t, srv, "POST", "/command/create-project/bind", BindRequest{Input: "ASP.NET"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, ErrCodeArity, e.Code)
	assert.EqualValues(t, 1, e.Details["missing"])
	assert.Equal(t, "project-name", e.Details["slot"])

	req := httptest.NewRequest("POST", "/command/create-project/bind", bytes.NewBufferString("{"))
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunLifecycle(t *testing.T) {
	srv, workDir := setupTestServer(t)

	w := do(t, srv, "POST", "/run", StartRunRequest{Command: "add-feature", Input: "add dark mode toggle"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var snap orchestrator.Snapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
	assert.Equal(t, orchestrator.StateAwaitingApproval, snap.State)
	require.NotNil(t, snap.Plan)
	assert.NotEmpty(t, snap.Plan.Files)

	w = do(t, srv, "POST", "/run/"+snap.ID+"/signal", orchestrator.ApproveSubset("9"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidSignal, decodeError(t, w).Code)

	w = do(t, srv, "POST", "/run/"+snap.ID+"/signal", orchestrator.Approve())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
	assert.Equal(t, orchestrator.StateCompleted, snap.State)
	assert.FileExists(t, filepath.Join(workDir, ".dispatch", "requests", "add-feature-1.md"))

	w = do(t, srv, "POST", "/run/"+snap.ID+"/signal", orchestrator.Approve())
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, "POST", "/run/"+snap.ID+"/signal", orchestrator.Cancel())
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, "GET", "/run/"+snap.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, "GET", "/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var runs []orchestrator.Snapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&runs))
	assert.Len(t, runs, 1)

	w = do(t, srv, "GET", "/run/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, srv, "POST", "/run/unknown/signal", orchestrator.Approve())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunScopeViolation(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "POST", "/run", StartRunRequest{Command: "escape", AutoApprove: true})
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	e := decodeError(t, w)
	assert.Equal(t, ErrCodeScopeViolation, e.Code)
	assert.Equal(t, "../../etc/passwd", e.Details["path"])
	assert.Equal(t, string(orchestrator.StateFailed), e.Details["state"])
	assert.Empty(t, e.Details["completed"])
}

func TestStartRunValidation(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "POST", "/run", StartRunRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/run", StartRunRequest{Command: "create-project", Input: "ASP.NET"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeArity, decodeError(t, w).Code)
}
