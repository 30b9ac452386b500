package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/discovery"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/history"
	"github.com/openmined/docsync/internal/server/handlers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Targets() []config.Target {
	args := m.Called()
	return args.Get(0).([]config.Target)
}

func (m *MockRunner) Run(ctx context.Context, target string) (*engine.RunResult, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.RunResult), args.Error(1)
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) Recent(ctx context.Context, target string, limit int) ([]history.RunRecord, error) {
	args := m.Called(ctx, target, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]history.RunRecord), args.Error(1)
}

// inlineDispatcher runs work on a goroutine and lets the test wait for it.
type inlineDispatcher struct {
	wg    sync.WaitGroup
	names []string
}

func (d *inlineDispatcher) Go(name string, fn func(ctx context.Context)) {
	d.names = append(d.names, name)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn(context.Background())
	}()
}

var testTargets = []config.Target{
	{Name: "rhel8", URL: "https://portal.test/8", WriteMode: config.PerDocumentImmediate, ResponseMode: config.Synchronous},
	{Name: "rhel9", URL: "https://portal.test/9", WriteMode: config.PerDocumentImmediate, ResponseMode: config.FireAndForget},
}

func setup(runner Runner, hist RunHistory) (*gin.Engine, *inlineDispatcher) {
	gin.SetMode(gin.TestMode)
	d := &inlineDispatcher{}
	h := New(runner, hist, d)

	r := gin.New()
	r.Any("/api/v1/sync/:target", h.Sync)
	r.GET("/api/v1/targets", h.Targets)
	r.GET("/api/v1/runs/:target", h.Runs)
	r.GET("/api/httpTriggerScraping", h.Legacy)
	return r, d
}

func do(t *testing.T, r http.Handler, method, url string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, url, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func result(target string) *engine.RunResult {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &engine.RunResult{
		RunID:           "run-1",
		Target:          target,
		Mode:            engine.Incremental,
		TotalDiscovered: 2,
		Downloaded:      []string{"a.pdf", "b.pdf"},
		Changed:         []string{"b.pdf"},
		Unchanged:       []string{"a.pdf"},
		StartedAt:       start,
		FinishedAt:      start.Add(time.Second),
	}
}

func TestSync_Synchronous(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return(testTargets)
	runner.On("Run", mock.Anything, "rhel8").Return(result("rhel8"), nil)
	r, d := setup(runner, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w, body := do(t, r, method, "/api/v1/sync/rhel8")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "sync completed", body["message"])
		run := body["run"].(map[string]any)
		assert.Equal(t, "incremental", run["mode"])
		assert.Equal(t, []any{"b.pdf"}, run["changed"])
	}
	assert.Empty(t, d.names)
	runner.AssertNumberOfCalls(t, "Run", 2)
}

func TestSync_SynchronousFailure(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return(testTargets)
	runner.On("Run", mock.Anything, "rhel8").Return(result("rhel8"), fmt.Errorf("%w: portal down", engine.ErrDiscoveryFailed))
	r, _ := setup(runner, nil)

	w, body := do(t, r, http.MethodPost, "/api/v1/sync/rhel8")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, api.CodeSyncFailed, body["code"])
	assert.Equal(t, "sync failed", body["message"])
	assert.Contains(t, body["error"], "portal down")
}

func TestSync_ErrorCodes(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: x", engine.ErrRunInProgress), http.StatusConflict, api.CodeSyncInProgress},
		{discovery.ErrAuthRequired, http.StatusInternalServerError, api.CodeAuthRequired},
		{errors.New("disk full"), http.StatusInternalServerError, api.CodeSyncFailed},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			runner := &MockRunner{}
			runner.On("Targets").Return(testTargets)
			runner.On("Run", mock.Anything, "rhel8").Return(nil, tt.err)
			r, _ := setup(runner, nil)

			w, body := do(t, r, http.MethodPost, "/api/v1/sync/rhel8")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestSync_FireAndForget(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return(testTargets)
	runner.On("Run", mock.Anything, "rhel9").Return(result("rhel9"), nil)
	r, d := setup(runner, nil)

	w, body := do(t, r, http.MethodPost, "/api/v1/sync/rhel9")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "sync started", body["message"])
	assert.Nil(t, body["run"])

	d.wg.Wait()
	assert.Equal(t, []string{"sync rhel9"}, d.names)
	runner.AssertCalled(t, "Run", mock.Anything, "rhel9")
}

func TestSync_FireAndForgetFailureIsNotReported(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return(testTargets)
	runner.On("Run", mock.Anything, "rhel9").Return(nil, discovery.ErrNoSectionsFound)
	r, d := setup(runner, nil)

	w, _ := do(t, r, http.MethodGet, "/api/v1/sync/rhel9")
	assert.Equal(t, http.StatusAccepted, w.Code)
	d.wg.Wait()
}

func TestSync_UnknownTarget(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return(testTargets)
	r, _ := setup(runner, nil)

	w, body := do(t, r, http.MethodPost, "/api/v1/sync/rhel7")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, api.CodeTargetNotFound, body["code"])
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestLegacy(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return(testTargets)
	runner.On("Run", mock.Anything, "rhel8").Return(result("rhel8"), nil)
	runner.On("Run", mock.Anything, "rhel9").Return(result("rhel9"), nil)
	r, d := setup(runner, nil)

	w, body := do(t, r, http.MethodGet, "/api/httpTriggerScraping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rhel8", body["target"])

	w, body = do(t, r, http.MethodGet, "/api/httpTriggerScraping?target=rhel9")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "rhel9", body["target"])
	d.wg.Wait()
}

func TestLegacy_NoTargets(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return([]config.Target{})
	r, _ := setup(runner, nil)

	w, body := do(t, r, http.MethodGet, "/api/httpTriggerScraping")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, api.CodeTargetNotFound, body["code"])
}

func TestTargets(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return(testTargets)
	r, _ := setup(runner, nil)

	w, body := do(t, r, http.MethodGet, "/api/v1/targets")
	assert.Equal(t, http.StatusOK, w.Code)
	targets := body["targets"].([]any)
	require.Len(t, targets, 2)
	second := targets[1].(map[string]any)
	assert.Equal(t, "rhel9", second["name"])
	assert.Equal(t, "async", second["response_mode"])
	assert.Equal(t, "per-document", second["write_mode"])
}

func TestRuns(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return(testTargets)
	hist := &MockHistory{}
	hist.On("Recent", mock.Anything, "rhel8", 20).Return([]history.RunRecord{{ID: "r2", Target: "rhel8"}, {ID: "r1", Target: "rhel8"}}, nil)
	hist.On("Recent", mock.Anything, "rhel8", 1).Return([]history.RunRecord{{ID: "r2", Target: "rhel8"}}, nil)
	r, _ := setup(runner, hist)

	w, body := do(t, r, http.MethodGet, "/api/v1/runs/rhel8")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["runs"], 2)

	w, body = do(t, r, http.MethodGet, "/api/v1/runs/rhel8?limit=1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["runs"], 1)

	w, body = do(t, r, http.MethodGet, "/api/v1/runs/rhel8?limit=0x")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, api.CodeInvalidRequest, body["code"])

	w, _ = do(t, r, http.MethodGet, "/api/v1/runs/rhel7")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuns_HistoryDisabled(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return(testTargets)
	r, _ := setup(runner, nil)

	w, body := do(t, r, http.MethodGet, "/api/v1/runs/rhel8")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, api.CodeHistoryDisabled, body["code"])
}

func TestRuns_QueryFailure(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Targets").Return(testTargets)
	hist := &MockHistory{}
	hist.On("Recent", mock.Anything, "rhel8", 20).Return(nil, errors.New("database is locked"))
	r, _ := setup(runner, hist)

	w, body := do(t, r, http.MethodGet, "/api/v1/runs/rhel8")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, api.CodeHistoryFailed, body["code"])
}
