package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openroger/openroger/internal/health"
	"github.com/openroger/openroger/internal/metrics"
	"github.com/openroger/openroger/internal/orchestrator"
	"github.com/openroger/openroger/internal/phase"
	"github.com/openroger/openroger/internal/preview"
	"github.com/openroger/openroger/internal/runner"
	"github.com/openroger/openroger/internal/store"
	"github.com/openroger/openroger/internal/workspace"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, p phase.Phase, userPrompt string) (string, error) {
	return "generated for " + string(p), nil
}

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, projectID, command, cwdRelative string) (*runner.Result, error) {
	return &runner.Result{ExitCode: 0}, nil
}

type stubProcess struct{ done chan struct{} }

func (p *stubProcess) Kill() error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return nil
}
func (p *stubProcess) Wait() error { <-p.done; return nil }

type stubSpawner struct{}

func (stubSpawner) Spawn(dir string, port int) (preview.Process, error) {
	return &stubProcess{done: make(chan struct{})}, nil
}

type testEnv struct {
	srv *Server
	st  *store.Store
	ws  *workspace.Store
}

func newTestServer(t *testing.T, auth AuthConfig) *testEnv {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ws := workspace.NewStore(t.TempDir(), zerolog.Nop())
	orch := orchestrator.New(st, ws, stubRunner{}, stubGenerator{}, nil, zerolog.Nop())
	previews := preview.NewManager(ws, stubSpawner{}, 4100, 0, nil, zerolog.Nop())
	t.Cleanup(previews.StopAll)

	checker := health.NewChecker(zerolog.Nop())
	srv := NewServer(Config{ClientOrigin: "http://localhost:1000", Auth: auth},
		st, orch, ws, previews, checker, metrics.New(), zerolog.Nop())
	return &testEnv{srv: srv, st: st, ws: ws}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(blob)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.App().Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

var asUser = map[string]string{"X-User-ID": "user-1"}

func createProject(t *testing.T, e *testEnv) map[string]any {
	resp := e.do(t, http.MethodPost, "/api/projects",
		map[string]string{"prompt": "Build a todo app"}, asUser)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[map[string]any](t, resp)
}

func TestHealthEndpoints_NoAuth(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "none"})

	resp := e.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_None_RequiresUserHeader(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "none"})

	resp := e.do(t, http.MethodGet, "/api/projects", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/projects", nil, asUser)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_APIKey(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "api-key", APIKey: "secret-key"})

	resp := e.do(t, http.MethodGet, "/api/projects", nil, asUser)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "missing bearer token")

	resp = e.do(t, http.MethodGet, "/api/projects", nil, map[string]string{
		"Authorization": "Bearer wrong", "X-User-ID": "user-1",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/projects", nil, map[string]string{
		"Authorization": "Bearer secret-key", "X-User-ID": "user-1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_JWT(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "jwt", JWTSecret: "jwt-secret"})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	resp := e.do(t, http.MethodGet, "/api/projects", nil, map[string]string{
		"Authorization": "Bearer " + signed,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/projects", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndGetProject(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "none"})
	p := createProject(t, e)
	id := p["id"].(string)

	assert.Equal(t, "Build a todo app", p["name"])
	assert.Equal(t, "architecture", p["current_phase"])

	resp := e.do(t, http.MethodGet, "/api/projects/"+id, nil, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	structure := got["folder_structure"].(map[string]any)
	assert.Contains(t, structure, "backend")

	// Another user cannot see it.
	resp = e.do(t, http.MethodGet, "/api/projects/"+id, nil, map[string]string{"X-User-ID": "user-2"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateProject_RequiresPrompt(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "none"})
	resp := e.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "x"}, asUser)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetFile(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "none"})
	p := createProject(t, e)
	id := p["id"].(string)

	resp := e.do(t, http.MethodGet, "/api/projects/"+id+"/file?path=backend/architecture.md", nil, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, "generated for architecture", got["content"])

	resp = e.do(t, http.MethodGet, "/api/projects/"+id+"/file?path=nope.txt", nil, asUser)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/projects/"+id+"/file?path=../escape", nil, asUser)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "escapes read as not found")

	resp = e.do(t, http.MethodGet, "/api/projects/"+id+"/file", nil, asUser)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApproveFlow(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "none"})
	p := createProject(t, e)
	id := p["id"].(string)

	resp := e.do(t, http.MethodPost, "/api/projects/"+id+"/approve",
		map[string]string{"action": "approved"}, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, "database_design", got["current_phase"])

	resp = e.do(t, http.MethodPost, "/api/projects/"+id+"/approve",
		map[string]string{"action": "rejected", "comment": "start over"}, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[map[string]any](t, resp)
	assert.Equal(t, "rejected", got["status"])

	resp = e.do(t, http.MethodPost, "/api/projects/"+id+"/approve",
		map[string]string{"action": "maybe"}, asUser)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPreviewEndpoints(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "none"})
	p := createProject(t, e)
	id := p["id"].(string)

	// No preview yet.
	resp := e.do(t, http.MethodGet, "/api/projects/"+id+"/preview-url", nil, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Nil(t, got["url"])

	// Frontend phase has not produced a manifest.
	resp = e.do(t, http.MethodPost, "/api/projects/"+id+"/preview-start", nil, asUser)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.NoError(t, e.ws.WriteFile(id, "frontend/package.json", `{"name":"app"}`))

	resp = e.do(t, http.MethodPost, "/api/projects/"+id+"/preview-start", nil, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[map[string]any](t, resp)
	assert.Equal(t, "http://localhost:4100", got["url"])

	resp = e.do(t, http.MethodGet, "/api/projects/"+id+"/preview-url", nil, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[map[string]any](t, resp)
	assert.Equal(t, "http://localhost:4100", got["url"])

	resp = e.do(t, http.MethodPost, "/api/projects/"+id+"/preview-stop", nil, asUser)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAgentsEndpoints(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "none"})
	p := createProject(t, e)
	id := p["id"].(string)

	resp := e.do(t, http.MethodGet, "/api/agents/project/"+id, nil, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	agents := decode[[]map[string]any](t, resp)
	assert.Len(t, agents, 5)

	resp = e.do(t, http.MethodPost, "/api/agents/project/"+id,
		map[string]any{"name": "QA", "role": "qa", "allowed_folders": []string{"backend"}}, asUser)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/agents/project/"+id,
		map[string]any{"name": "incomplete"}, asUser)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTasksEndpoints(t *testing.T) {
	e := newTestServer(t, AuthConfig{Mode: "none"})
	p := createProject(t, e)
	id := p["id"].(string)

	resp := e.do(t, http.MethodGet, "/api/tasks/project/"+id, nil, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tasks := decode[[]map[string]any](t, resp)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Phase: architecture", tasks[0]["title"])
	assert.Equal(t, "Architecture", tasks[0]["agent_name"])

	// Approve adds a task and an approval record.
	resp = e.do(t, http.MethodPost, "/api/projects/"+id+"/approve",
		map[string]string{"action": "approved"}, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/tasks/project/"+id+"/approvals", nil, asUser)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	approvals := decode[[]map[string]any](t, resp)
	require.Len(t, approvals, 1)
	assert.Equal(t, "approved", approvals[0]["action"])
}
