// Copyright 2025 James Ross
package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghostradio/podcastd/internal/config"
	"github.com/ghostradio/podcastd/internal/ingest"
	"github.com/ghostradio/podcastd/internal/jobstatus"
	"github.com/ghostradio/podcastd/internal/provider"
	"github.com/ghostradio/podcastd/internal/queue"
	"github.com/ghostradio/podcastd/internal/webhook"
	"github.com/ghostradio/podcastd/internal/worker"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, *queue.Store, *jobstatus.Store) {
	t.Helper()
	root := t.TempDir()

	cfg := config.Config{}
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Server.RateLimitPerMinute = 6000
	cfg.Server.RateLimitBurst = 100
	cfg.Server.CORSAllowOrigins = []string{"*"}
	cfg.Storage.EpisodesDir = filepath.Join(root, "episodes")
	cfg.Worker.MaxAttempts = 3
	cfg.Retention.EpisodesPerUser = 10
	cfg.Podcast.BaseURL = "https://example.com"

	qs, err := queue.NewStore(filepath.Join(root, "queue"), filepath.Join(root, "processed"), filepath.Join(root, "failed"))
	if err != nil {
		t.Fatal(err)
	}
	statuses, err := jobstatus.NewStore(filepath.Join(root, "jobs"))
	if err != nil {
		t.Fatal(err)
	}

	registry := provider.NewRegistryFromBackends(nil, nil, zap.NewNop())

	workerCfg := config.Worker{
		MaxAttempts: 3,
		StageBudgets: config.StageBudgets{
			Fetch:   time.Second,
			LLM:     time.Second,
			TTS:     time.Second,
			Persist: time.Second,
		},
	}

	promptsPath := filepath.Join(root, "prompts.yaml")
	if err := os.WriteFile(promptsPath, []byte("llm:\n  default_host: \"host\"\ntemplates:\n  article_to_podcast: \"{{content}}\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	prompts, err := worker.LoadPromptManager(promptsPath)
	if err != nil {
		t.Fatal(err)
	}

	notifier := webhook.New(config.Webhook{Enabled: false}, zap.NewNop())
	pipeline := worker.NewPipeline(workerCfg, cfg.Storage, cfg.Retention, ingest.NewHTTPFetcher(), registry, statuses, prompts, notifier, cfg.Podcast, zap.NewNop())
	w := worker.New(workerCfg, qs, statuses, pipeline, zap.NewNop())

	s := NewServer(cfg, qs, statuses, w, registry, zap.NewNop())
	return s, qs, statuses
}

func TestHandleGenerateRejectsMissingURL(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(`{}`))
	rw := httptest.NewRecorder()

	s.handleGenerate(rw, req)

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestHandleGenerateEnqueuesTicket(t *testing.T) {
	s, qs, statuses := newTestServer(t)
	body := `{"url":"https://example.test/article","user_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(body))
	rw := httptest.NewRecorder()

	s.handleGenerate(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp generateResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.JobID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	job, err := statuses.Get(resp.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != jobstatus.Queued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}

	depth, err := qs.Depth()
	if err != nil {
		t.Fatal(err)
	}
	if depth["queue"] != 1 {
		t.Fatalf("expected one ticket enqueued, got %+v", depth)
	}
}

func TestHandleProgressUnknownJobReturns404(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/progress/missing", nil)
	req.SetPathValue("job_id", "missing")
	rw := httptest.NewRecorder()

	s.handleProgress(rw, req)

	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestHandleCancelRejectsTerminalJob(t *testing.T) {
	s, _, statuses := newTestServer(t)
	if err := statuses.Create(jobstatus.New("job-1", "https://example.test", "u1")); err != nil {
		t.Fatal(err)
	}
	if _, err := statuses.SetResult("job-1", map[string]interface{}{"ok": true}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/cancel/job-1", nil)
	req.SetPathValue("job_id", "job-1")
	rw := httptest.NewRecorder()

	s.handleCancel(rw, req)

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a completed job, got %d", rw.Code)
	}
}

func TestHandleEpisodesEmptyCatalog(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/episodes?user_id=u1", nil)
	rw := httptest.NewRecorder()

	s.handleEpisodes(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var out []episodeResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty catalog, got %d entries", len(out))
	}
}

func TestHandleHealthReportsOK(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()

	s.handleHealth(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
}

func TestRoutesEndToEndGenerateAndProgress(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/generate", "application/json", bytes.NewBufferString(`{"url":"https://example.test/a"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		t.Fatal(err)
	}

	progResp, err := http.Get(ts.URL + "/api/progress/" + gen.JobID)
	if err != nil {
		t.Fatal(err)
	}
	defer progResp.Body.Close()
	if progResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", progResp.StatusCode)
	}
}
