// Copyright 2025 James Ross
package worker

import (
	"context"
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
	"go.uber.org/zap"
)

type fakeFetcher struct {
	content ingest.Content
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, input string) (ingest.Content, error) {
	return f.content, f.err
}

type fakeLLM struct {
	name   string
	result provider.ChatResult
}

func (f fakeLLM) Name() string { return f.name }
func (f fakeLLM) Chat(ctx context.Context, system, user string) provider.ChatResult {
	return f.result
}
func (f fakeLLM) Probe(ctx context.Context) error { return nil }

type fakeTTS struct {
	name   string
	result provider.SynthesizeResult
}

func (f fakeTTS) Name() string { return f.name }
func (f fakeTTS) Synthesize(ctx context.Context, text, path string, opts map[string]interface{}) provider.SynthesizeResult {
	r := f.result
	r.Path = path
	if r.OK {
		_ = os.WriteFile(path, []byte("audio-bytes"), 0o644)
	}
	return r
}
func (f fakeTTS) Probe(ctx context.Context) error { return nil }

func newTestPipeline(t *testing.T, llm []provider.LLM, tts []provider.TTS, fetcher ingest.Fetcher) (*Pipeline, *jobstatus.Store, string) {
	t.Helper()
	root := t.TempDir()
	storage := config.Storage{EpisodesDir: filepath.Join(root, "episodes")}
	workerCfg := config.Worker{
		StageBudgets: config.StageBudgets{
			Fetch:   5 * time.Second,
			LLM:     5 * time.Second,
			TTS:     5 * time.Second,
			Persist: 5 * time.Second,
		},
	}
	retention := config.Retention{EpisodesPerUser: 10}

	statuses, err := jobstatus.NewStore(filepath.Join(root, "jobs"))
	if err != nil {
		t.Fatal(err)
	}

	registry := provider.NewRegistryFromBackends(llm, tts, zap.NewNop())
	promptsPath := filepath.Join(root, "prompts.yaml")
	if err := os.WriteFile(promptsPath, []byte("llm:\n  default_host: \"Host prompt\"\ntemplates:\n  article_to_podcast: \"{{content}}\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	prompts, err := LoadPromptManager(promptsPath)
	if err != nil {
		t.Fatal(err)
	}

	notifier := webhook.New(config.Webhook{Enabled: false}, zap.NewNop())
	podcast := config.Podcast{Title: "Test", BaseURL: "https://example.com", AudioFormat: "mp3"}

	p := NewPipeline(workerCfg, storage, retention, fetcher, registry, statuses, prompts, notifier, podcast, zap.NewNop())
	return p, statuses, root
}

func newJob(t *testing.T, statuses *jobstatus.Store, jobID string) queue.Ticket {
	t.Helper()
	if err := statuses.Create(jobstatus.New(jobID, "http://example.com/article", "user-1")); err != nil {
		t.Fatal(err)
	}
	return queue.Ticket{
		JobID:       jobID,
		UserID:      "user-1",
		URL:         "http://example.com/article",
		NeedSummary: true,
		MaxRetries:  3,
	}
}

func TestPipelineRunSuccess(t *testing.T) {
	fetcher := &fakeFetcher{content: ingest.Content{Title: "Article", Text: "Body text.", URL: "http://example.com/article"}}
	llm := []provider.LLM{fakeLLM{name: "primary-llm", result: provider.ChatResult{OK: true, Content: "Generated script.", TokensUsed: 42}}}
	tts := []provider.TTS{fakeTTS{name: "primary-tts", result: provider.SynthesizeResult{OK: true, SizeBytes: 11, DurationSeconds: 30}}}

	p, statuses, _ := newTestPipeline(t, llm, tts, fetcher)
	ticket := newJob(t, statuses, "job-1")

	if err := p.Run(context.Background(), ticket); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	job, err := statuses.Get("job-1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != jobstatus.Completed {
		t.Fatalf("expected completed status, got %s", job.Status)
	}
	if job.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", job.Progress)
	}
}

func TestPipelineRunSkipsSummaryWhenNotNeeded(t *testing.T) {
	fetcher := &fakeFetcher{content: ingest.Content{Title: "Article", Text: "Raw body.", URL: "http://example.com/article"}}
	tts := []provider.TTS{fakeTTS{name: "primary-tts", result: provider.SynthesizeResult{OK: true, SizeBytes: 11, DurationSeconds: 10}}}

	p, statuses, _ := newTestPipeline(t, nil, tts, fetcher)
	ticket := newJob(t, statuses, "job-2")
	ticket.NeedSummary = false

	if err := p.Run(context.Background(), ticket); err != nil {
		t.Fatalf("expected success without an LLM configured, got %v", err)
	}
}

func TestPipelineRunRotatesOnLLMFailureThenSucceeds(t *testing.T) {
	fetcher := &fakeFetcher{content: ingest.Content{Title: "Article", Text: "Body.", URL: "http://example.com/article"}}
	llm := []provider.LLM{
		fakeLLM{name: "flaky", result: provider.ChatResult{OK: false, Error: "rate limited"}},
		fakeLLM{name: "backup", result: provider.ChatResult{OK: true, Content: "Backup script.", TokensUsed: 5}},
	}
	tts := []provider.TTS{fakeTTS{name: "primary-tts", result: provider.SynthesizeResult{OK: true, SizeBytes: 5, DurationSeconds: 5}}}

	p, statuses, _ := newTestPipeline(t, llm, tts, fetcher)
	ticket := newJob(t, statuses, "job-3")

	if err := p.Run(context.Background(), ticket); err != nil {
		t.Fatalf("expected eventual success via fallback provider, got %v", err)
	}
}

func TestPipelineRunFailsJobWhenAllProvidersExhausted(t *testing.T) {
	fetcher := &fakeFetcher{content: ingest.Content{Title: "Article", Text: "Body.", URL: "http://example.com/article"}}
	llm := []provider.LLM{fakeLLM{name: "only", result: provider.ChatResult{OK: false, Error: "down"}}}
	tts := []provider.TTS{fakeTTS{name: "tts", result: provider.SynthesizeResult{OK: true}}}

	p, statuses, _ := newTestPipeline(t, llm, tts, fetcher)
	ticket := newJob(t, statuses, "job-4")

	if err := p.Run(context.Background(), ticket); err == nil {
		t.Fatal("expected failure when the only LLM candidate always errors")
	}

	job, err := statuses.Get("job-4")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != jobstatus.Failed {
		t.Fatalf("expected failed status, got %s", job.Status)
	}
}

func TestPipelineRunAbortsWhenCancelledBeforeStart(t *testing.T) {
	fetcher := &fakeFetcher{content: ingest.Content{Title: "Article", Text: "Body.", URL: "http://example.com/article"}}
	llm := []provider.LLM{fakeLLM{name: "llm", result: provider.ChatResult{OK: true, Content: "script"}}}
	tts := []provider.TTS{fakeTTS{name: "tts", result: provider.SynthesizeResult{OK: true}}}

	p, statuses, _ := newTestPipeline(t, llm, tts, fetcher)
	ticket := newJob(t, statuses, "job-5")

	if _, err := statuses.Cancel("job-5", "user requested"); err != nil {
		t.Fatal(err)
	}

	if err := p.Run(context.Background(), ticket); err != errCancelled {
		t.Fatalf("expected errCancelled, got %v", err)
	}
}
