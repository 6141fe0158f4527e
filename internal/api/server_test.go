package api

import (
	"encoding/json"
	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-autoagent/internal/config"
	"go-autoagent/pkg/llm"
	"go-autoagent/pkg/models"
	"go-autoagent/pkg/tools"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.New()
	cfg.Workspace.Root = t.TempDir()
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Builtins()...))
	model := llm.NewScripted(`{"user_update": "nothing to do", "task_complete": true}`).Repeat()

	s := New(actor.NewActorSystem().Root, Deps{Config: cfg, Registry: registry, Model: model})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return res.StatusCode, out
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	code, body := call(t, http.MethodPost, ts.URL+"/sessions", "")
	require.Equal(t, http.StatusCreated, code)
	id := body["id"].(string)

	code, body = call(t, http.MethodPost, ts.URL+"/sessions/"+id+"/goals", `{"goal": "tidy up", "mode": "simple"}`)
	require.Equal(t, http.StatusAccepted, code)
	runID := body["run_id"].(string)

	var status models.Status
	require.Eventually(t, func() bool {
		res, err := http.Get(ts.URL + "/sessions/" + id)
		if err != nil {
			return false
		}
		defer res.Body.Close()
		var payload getStatus
		if json.NewDecoder(res.Body).Decode(&payload) != nil {
			return false
		}
		status = payload.Status
		return len(status.History) == 1 && status.History[0].FinishedAt != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, id, status.SessionID)
	assert.Equal(t, runID, status.History[0].ID)
	assert.Equal(t, models.OutcomeCompleted, status.History[0].Outcome)

	code, _ = call(t, http.MethodDelete, ts.URL+"/sessions/"+id+"/run", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, http.MethodDelete, ts.URL+"/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = call(t, http.MethodGet, ts.URL+"/status/"+id, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestNewGoal(t *testing.T) {
	ts := newTestServer(t)

	code, body := call(t, http.MethodPost, ts.URL+"/new", `{"goal": "list files", "mode": "simple"}`)
	require.Equal(t, http.StatusOK, code)
	id := body["id"].(string)

	code, body = call(t, http.MethodGet, ts.URL+"/status/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "status")
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)

	code, _ := call(t, http.MethodPost, ts.URL+"/new", `{"goal": ""}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, http.MethodPost, ts.URL+"/new", `{"goal": "x", "mode": "turbo"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, http.MethodGet, ts.URL+"/status/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, http.MethodGet, ts.URL+"/sessions/6ba7b810-9dad-11d1-80b4-00c04fd430c8", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTools(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Get(ts.URL + "/tools")
	require.NoError(t, err)
	defer res.Body.Close()
	var list []toolInfo
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, tools.ReadFile)
	assert.Contains(t, names, tools.WriteFile)

	code, stats := call(t, http.MethodGet, ts.URL+"/tools/stats", "")
	assert.Equal(t, http.StatusOK, code)
	require.Contains(t, stats, tools.ReadFile)
	readStats := stats[tools.ReadFile].(map[string]any)
	assert.Equal(t, float64(0), readStats["average_time"])
	assert.Equal(t, float64(0), readStats["total_calls"])
}

func TestSessionWorkspaceStaysUnderRoot(t *testing.T) {
	ts := newTestServer(t)

	for _, workspace := range []string{"/", "/etc", "../elsewhere", "team/../../elsewhere", "."} {
		code, body := call(t, http.MethodPost, ts.URL+"/sessions", `{"workspace": "`+workspace+`"}`)
		assert.Equal(t, http.StatusBadRequest, code, workspace)
		assert.NotEmpty(t, body["error"], workspace)
	}

	code, body := call(t, http.MethodPost, ts.URL+"/sessions", `{"workspace": "team-a"}`)
	require.Equal(t, http.StatusCreated, code)
	code, body = call(t, http.MethodGet, ts.URL+"/sessions/"+body["id"].(string), "")
	require.Equal(t, http.StatusOK, code)
	status := body["status"].(map[string]any)
	assert.True(t, strings.HasSuffix(status["workspace"].(string), "/team-a"))
}
