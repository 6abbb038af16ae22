package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/crawl"
	"github.com/poiesic/kexpand/ingestion"
	"github.com/poiesic/kexpand/jobs"
	"github.com/poiesic/kexpand/llm"
	"github.com/poiesic/kexpand/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProcessor succeeds every item except locators listed in fail.
type stubProcessor struct {
	fail map[string]bool
}

func (p *stubProcessor) ProcessWithObserver(_ context.Context, item ingestion.Item, _ ingestion.StageObserver) *ingestion.Outcome {
	if p.fail[item.Locator] {
		return &ingestion.Outcome{
			Item:      item,
			Stage:     ingestion.StageFailed,
			FailedAt:  ingestion.StageExtracting,
			Err:       core.ErrExtraction,
			ErrorKind: core.ErrorKindExtraction,
		}
	}
	return &ingestion.Outcome{Item: item, Stage: ingestion.StageDone, NodeID: core.NodeIDForLocator(item.Locator)}
}

type testEnv struct {
	server     *Server
	controller *jobs.Controller
}

func setupServer(t *testing.T, fail ...string) *testEnv {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	proc := &stubProcessor{fail: map[string]bool{}}
	for _, f := range fail {
		proc.fail[f] = true
	}
	controller, err := jobs.NewController(proc, store.History)
	require.NoError(t, err)
	t.Cleanup(func() { controller.Close() })

	scheduler, err := crawl.NewScheduler(controller)
	require.NoError(t, err)
	registry, err := llm.NewRegistry()
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	s, err := NewServer(controller, scheduler, registry, llm.NewTemplates(store.Templates, registry),
		WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	return &testEnv{server: s, controller: controller}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) wait(t *testing.T, id string) *jobs.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := e.controller.Wait(ctx, id)
	require.NoError(t, err)
	return snap
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func uploadBody(locators ...string) map[string]any {
	items := make([]map[string]string, len(locators))
	for i, l := range locators {
		items[i] = map[string]string{"locator": l, "source_type": "text"}
	}
	return map[string]any{
		"items":  items,
		"config": map[string]any{"batch_size": 2, "error_threshold": 0.5, "auto_pause": false},
	}
}

func TestUploadLifecycle(t *testing.T) {
	env := setupServer(t, "bad.txt")

	status, body := env.do(t, http.MethodPost, "/upload/bulk", uploadBody("a.txt", "b.txt", "bad.txt"))
	require.Equal(t, http.StatusAccepted, status, string(body))
	snap := decode[jobs.Snapshot](t, body)
	assert.Equal(t, core.JobKindUpload, snap.Kind)
	assert.Equal(t, 2, snap.Config.ConcurrencyLimit)

	final := env.wait(t, snap.JobID)
	assert.Equal(t, core.JobStatusCompleted, final.Status)

	status, body = env.do(t, http.MethodGet, "/batch/"+snap.JobID, nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[jobs.Snapshot](t, body)
	assert.Equal(t, 3, got.ProcessedItems)
	assert.Equal(t, 1, got.FailedItems)

	status, body = env.do(t, http.MethodGet, "/batch/metrics/"+snap.JobID, nil)
	require.Equal(t, http.StatusOK, status)
	metrics := decode[jobs.Metrics](t, body)
	assert.InDelta(t, 1.0/3, metrics.ErrorRate, 1e-9)

	status, body = env.do(t, http.MethodGet, "/batch/history?job_type=upload", nil)
	require.Equal(t, http.StatusOK, status)
	history := decode[historyResponse](t, body)
	assert.Equal(t, 1, history.Total)
	require.Len(t, history.Jobs, 1)
	assert.Equal(t, snap.JobID, history.Jobs[0].JobId)

	status, body = env.do(t, http.MethodGet, "/batch/analytics", nil)
	require.Equal(t, http.StatusOK, status)
	analytics := decode[jobs.Analytics](t, body)
	assert.Equal(t, 1, analytics.Jobs)
	assert.Equal(t, 1, analytics.ErrorDistribution[core.ErrorKindExtraction])

	status, body = env.do(t, http.MethodPost, "/batch/retry", map[string]any{"job_id": snap.JobID})
	require.Equal(t, http.StatusOK, status, string(body))
	retried := decode[jobs.Snapshot](t, body)
	assert.Equal(t, 2, retried.Run)
	final = env.wait(t, snap.JobID)
	assert.Equal(t, 1, final.FailedItems)
	assert.Equal(t, 2, final.SucceededItems)
}

func TestExport(t *testing.T) {
	env := setupServer(t)
	_, body := env.do(t, http.MethodPost, "/upload/bulk", uploadBody("a.txt", "b.txt"))
	snap := decode[jobs.Snapshot](t, body)
	env.wait(t, snap.JobID)

	req := httptest.NewRequest(http.MethodGet, "/batch/export/"+snap.JobID+"?format=csv", nil)
	resp, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "job-"+snap.JobID+".csv")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)

	status, _ := env.do(t, http.MethodGet, "/batch/export/"+snap.JobID, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodGet, "/batch/export/"+snap.JobID+"?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestErrorMapping(t *testing.T) {
	env := setupServer(t)

	status, _ := env.do(t, http.MethodPost, "/upload/bulk", map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/upload/bulk", uploadBody("a.txt"))
	require.Equal(t, http.StatusAccepted, status)

	status, _ = env.do(t, http.MethodPost, "/upload/bulk",
		map[string]any{"items": []map[string]string{{"locator": "a.txt", "source_type": "hologram"}}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/batch/no-such-job", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodGet, "/no/such/route", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodGet, "/batch/history?min_success_rate=2", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestControl(t *testing.T) {
	env := setupServer(t)
	_, body := env.do(t, http.MethodPost, "/upload/bulk", uploadBody("a.txt"))
	snap := decode[jobs.Snapshot](t, body)
	env.wait(t, snap.JobID)

	status, _ := env.do(t, http.MethodPost, "/batch/control", map[string]string{"job_id": snap.JobID, "action": "explode"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/batch/control", map[string]string{"job_id": snap.JobID, "action": "pause"})
	assert.Equal(t, http.StatusConflict, status, "completed jobs cannot be paused")

	status, _ = env.do(t, http.MethodPost, "/batch/control", map[string]string{"job_id": "missing", "action": "pause"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/batch/configure/"+snap.JobID, map[string]any{"batch_size": 4})
	assert.Equal(t, http.StatusConflict, status)
}

func TestScrape(t *testing.T) {
	env := setupServer(t)

	status, body := env.do(t, http.MethodPost, "/scrape/start", map[string]any{
		"urls":      []string{"https://example.com/"},
		"max_depth": 0,
	})
	require.Equal(t, http.StatusAccepted, status, string(body))
	snap := decode[jobs.Snapshot](t, body)
	assert.Equal(t, core.JobKindCrawl, snap.Kind)
	env.wait(t, snap.JobID)

	status, _ = env.do(t, http.MethodGet, "/scrape/"+snap.JobID, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/scrape/start", map[string]any{"urls": []string{}})
	assert.Equal(t, http.StatusBadRequest, status)

	_, body = env.do(t, http.MethodPost, "/upload/bulk", uploadBody("a.txt"))
	upload := decode[jobs.Snapshot](t, body)
	status, _ = env.do(t, http.MethodGet, "/scrape/"+upload.JobID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestModels(t *testing.T) {
	env := setupServer(t)

	for _, model := range []string{"primary-model", "backup-model"} {
		status, body := env.do(t, http.MethodPost, "/llm/configure", map[string]any{
			"provider":           "mock",
			"model_name":         model,
			"input_price_per_1k": 0.5,
			"streaming":          model == "primary-model",
		})
		require.Equal(t, http.StatusOK, status, string(body))
	}

	status, body := env.do(t, http.MethodGet, "/llm/config", nil)
	require.Equal(t, http.StatusOK, status)
	configs := decode[[]ai.Config](t, body)
	require.Len(t, configs, 2)
	assert.Equal(t, "backup-model", configs[0].Model)
	assert.False(t, configs[0].Streaming)
	assert.Equal(t, "primary-model", configs[1].Model)
	assert.True(t, configs[1].Streaming)

	status, body = env.do(t, http.MethodGet, "/llm/models/mock", nil)
	require.Equal(t, http.StatusOK, status)
	models := decode[[]modelView](t, body)
	require.Len(t, models, 2)
	assert.True(t, models[0].Registered)
	assert.Equal(t, 0.5, models[0].InputPricePer1K)

	status, _ = env.do(t, http.MethodGet, "/llm/models/carrier-pigeon", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPost, "/llm/fallback/configure", map[string]any{
		"primary_model":   "primary-model",
		"fallback_models": []string{"backup-model"},
		"timeout":         10,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = env.do(t, http.MethodGet, "/llm/fallback/primary-model", nil)
	require.Equal(t, http.StatusOK, status)
	fb := decode[fallbackView](t, body)
	assert.Equal(t, []string{"backup-model"}, fb.FallbackModels)
	assert.Equal(t, 10.0, fb.TimeoutSeconds)

	status, _ = env.do(t, http.MethodGet, "/llm/fallback/backup-model", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPost, "/llm/fallback/configure", map[string]any{
		"primary_model":   "primary-model",
		"fallback_models": []string{"unregistered"},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/llm/metrics/primary-model", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodGet, "/llm/metrics/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = env.do(t, http.MethodGet, "/llm/metrics/compare?models=primary-model,backup-model", nil)
	require.Equal(t, http.StatusOK, status)
	cmp := decode[llm.Comparison](t, body)
	assert.Equal(t, []string{"primary-model", "backup-model"}, cmp.Models)

	status, _ = env.do(t, http.MethodGet, "/llm/metrics/compare", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTemplates(t *testing.T) {
	env := setupServer(t)

	status, body := env.do(t, http.MethodPost, "/llm/templates", map[string]any{
		"name":     "brief",
		"template": "Summarize {content} for {audience}",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	created := decode[core.PromptTemplate](t, body)
	assert.NotEmpty(t, created.Id)
	assert.Equal(t, []string{"content", "audience"}, created.Variables)

	status, body = env.do(t, http.MethodGet, "/llm/templates", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]core.PromptTemplate](t, body), 1)

	status, body = env.do(t, http.MethodPut, "/llm/templates/"+created.Id, map[string]any{
		"name":     "brief",
		"template": "Summarize {content}",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{"content"}, decode[core.PromptTemplate](t, body).Variables)

	status, _ = env.do(t, http.MethodPost, "/llm/templates", map[string]any{
		"name":      "bad",
		"template":  "Use {x}",
		"variables": []string{"y"},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodDelete, "/llm/templates/"+created.Id, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodGet, "/llm/templates/"+created.Id, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupServer(t)

	status, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "ok")

	status, body = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "requests_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(jobs.ErrJobNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(core.ErrJobState))
	assert.Equal(t, http.StatusBadRequest, statusFor(jobs.ErrNoItems))
	assert.Equal(t, http.StatusNotFound, statusFor(llm.ErrModelNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(core.ErrGraphWrite))
}
