package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scrapequeue/internal/backoff"
	"scrapequeue/internal/config"
	"scrapequeue/internal/executor"
	"scrapequeue/internal/metrics"
	memorypublisher "scrapequeue/internal/publisher/memory"
	"scrapequeue/internal/queue"
	"scrapequeue/internal/registry"
	"scrapequeue/internal/scrape"
	"scrapequeue/internal/service"
	"scrapequeue/internal/status"
	"scrapequeue/internal/usage"
)

type fakeClock struct{}

func (fakeClock) Now() time.Time { return time.Unix(600, 0).UTC() }

type fakeBackend struct {
	mu      sync.Mutex
	blocked chan struct{}
	err     error
}

func (b *fakeBackend) Run(context.Context, scrape.BackendRequest) (scrape.BackendResult, error) {
	if b.blocked != nil {
		<-b.blocked
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return scrape.BackendResult{}, b.err
	}
	return scrape.BackendResult{Data: json.RawMessage(`{"ok":true}`), CreditsUsed: 2}, nil
}

type testEnv struct {
	server   *httptest.Server
	registry *registry.Registry
	worker   *queue.Worker
}

func newTestEnv(t *testing.T, backend scrape.Backend, cfg config.Config) *testEnv {
	t.Helper()
	metrics.Init()

	clock := fakeClock{}
	reg := registry.New(clock)
	q := queue.New(16)
	exec := executor.New(backoff.Policy{
		InitialDelay: time.Millisecond,
		Factor:       2,
		MaxDelay:     5 * time.Millisecond,
		MaxAttempts:  2,
	}, zap.NewNop())
	meter := usage.New(1000, 5000, clock, zap.NewNop())
	w := queue.NewWorker(q, reg, backend, exec, meter, memorypublisher.New(), "jobs", zap.NewNop())
	svc := service.New(reg, q, status.NewReporter(reg), zap.NewNop())
	srv := httptest.NewServer(NewServer(svc, cfg, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, registry: reg, worker: w}
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestSubmitBatchAndPollStatus(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{blocked: make(chan struct{})}
	env := newTestEnv(t, backend, config.Config{})

	resp := postJSON(t, env.server.URL+"/v1/jobs/batch", map[string]any{
		"urls": []string{"https://a.example", "https://b.example"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var submitted map[string]string
	decodeBody(t, resp, &submitted)
	require.Equal(t, "batch_1", submitted["job_id"])

	// Worker not started: the job must still be pending with zero progress.
	statusResp, err := http.Get(env.server.URL + "/v1/jobs/batch_1/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	var pending status.Payload
	decodeBody(t, statusResp, &pending)
	require.Equal(t, "pending", pending.State)
	require.Equal(t, 0, pending.Completed)
	require.Equal(t, 2, pending.Total)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.worker.Run(ctx)
	close(backend.blocked)

	require.Eventually(t, func() bool {
		resp, err := http.Get(env.server.URL + "/v1/jobs/batch_1/status")
		if err != nil {
			return false
		}
		var p status.Payload
		decodeBody(t, resp, &p)
		return p.State == "completed" && p.Completed == 2 && p.Total == 2 && p.ResultAvailable
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitCrawl(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeBackend{}, config.Config{})
	resp := postJSON(t, env.server.URL+"/v1/jobs/crawl", map[string]any{
		"url":     "https://a.example",
		"options": map[string]any{"max_depth": 2},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var submitted map[string]string
	decodeBody(t, resp, &submitted)
	require.Equal(t, "crawl_1", submitted["job_id"])
}

func TestSubmitBatchRejectsEmpty(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeBackend{}, config.Config{})
	resp := postJSON(t, env.server.URL+"/v1/jobs/batch", map[string]any{"urls": []string{}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestSubmitBatchRejectsBadJSON(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeBackend{}, config.Config{})
	resp, err := http.Post(env.server.URL+"/v1/jobs/batch", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestStatusUnknownJobIs404(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeBackend{}, config.Config{})
	resp, err := http.Get(env.server.URL + "/v1/jobs/batch_999/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, "job not found", body["error"])
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeBackend{}, config.Config{})
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(env.server.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeBackend{}, config.Config{})
	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeBackend{}, config.Config{})
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	_ = resp.Body.Close()
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sekrit"
	env := newTestEnv(t, &fakeBackend{}, cfg)

	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sekrit")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestFailedJobStatusCarriesError(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{err: &scrape.BackendError{StatusCode: 500, Message: "engine down"}}
	env := newTestEnv(t, backend, config.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.worker.Run(ctx)

	resp := postJSON(t, env.server.URL+"/v1/jobs/batch", map[string]any{"urls": []string{"https://a.example"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var submitted map[string]string
	decodeBody(t, resp, &submitted)

	require.Eventually(t, func() bool {
		resp, err := http.Get(env.server.URL + "/v1/jobs/" + submitted["job_id"] + "/status")
		if err != nil {
			return false
		}
		var p status.Payload
		decodeBody(t, resp, &p)
		return p.State == "failed" && p.Error != ""
	}, 2*time.Second, 10*time.Millisecond)
}
