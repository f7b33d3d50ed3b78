// Copyright 2025 James Ross
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ghostradio/podcastd/internal/config"
	"github.com/ghostradio/podcastd/internal/episode"
	"github.com/ghostradio/podcastd/internal/ingest"
	"github.com/ghostradio/podcastd/internal/jobstatus"
	"github.com/ghostradio/podcastd/internal/obs"
	"github.com/ghostradio/podcastd/internal/provider"
	"github.com/ghostradio/podcastd/internal/queue"
	"github.com/ghostradio/podcastd/internal/webhook"
	"go.uber.org/zap"
)

// StageError names the pipeline stage a job failed in, mirroring the
// teacher corpus's typed-error-with-context pattern.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }

// errCancelled signals a job aborted because its cancelled flag was set
// between pipeline stages.
var errCancelled = fmt.Errorf("job cancelled")

// Pipeline drives one ticket through fetch -> summarize -> synthesize ->
// persist, reporting progress through the job status store as it goes.
type Pipeline struct {
	cfg       config.Worker
	storage   config.Storage
	retention config.Retention
	fetcher   ingest.Fetcher
	registry  *provider.Registry
	statuses  *jobstatus.Store
	prompts   *PromptManager
	notifier  *webhook.Notifier
	podcast   config.Podcast
	log       *zap.Logger
}

// NewPipeline wires the per-job stage runner from its collaborators.
func NewPipeline(
	cfg config.Worker,
	storage config.Storage,
	retention config.Retention,
	fetcher ingest.Fetcher,
	registry *provider.Registry,
	statuses *jobstatus.Store,
	prompts *PromptManager,
	notifier *webhook.Notifier,
	podcast config.Podcast,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		storage:   storage,
		retention: retention,
		fetcher:   fetcher,
		registry:  registry,
		statuses:  statuses,
		prompts:   prompts,
		notifier:  notifier,
		podcast:   podcast,
		log:       log,
	}
}

// Run executes the full pipeline for one ticket. It returns nil on success,
// errCancelled when the job's cancelled flag was seen between stages, and
// otherwise the error that stopped the job (a *StageError for a stage
// failure); the caller decides from that error whether to mark the ticket
// processed, retry it or mark it failed.
func (p *Pipeline) Run(ctx context.Context, t queue.Ticket) error {
	jobID := t.JobID
	runStart := time.Now()
	defer func() { obs.StageDuration.WithLabelValues("total").Observe(time.Since(runStart).Seconds()) }()

	if p.isCancelled(jobID) {
		obs.JobsCancelled.Inc()
		return errCancelled
	}

	if _, err := p.statuses.AdvanceStage(jobID, jobstatus.Processing, "processing", 10, "starting pipeline"); err != nil {
		return err
	}

	content, err := p.runFetchStage(ctx, jobID, t)
	if err != nil {
		return p.fail(jobID, "fetching", err)
	}

	if p.isCancelled(jobID) {
		obs.JobsCancelled.Inc()
		return errCancelled
	}

	script, llmProvider, tokens, err := p.runSummarizeStage(ctx, jobID, t, content)
	if err != nil {
		return p.fail(jobID, "llm_processing", err)
	}

	if p.isCancelled(jobID) {
		obs.JobsCancelled.Inc()
		return errCancelled
	}

	episodeID := time.Now().UTC().Format("20060102_150405")
	userDir := filepath.Join(p.storage.EpisodesDir, t.UserID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return p.fail(jobID, "persist", err)
	}

	scriptPath := filepath.Join(userDir, episodeID+".txt")
	if err := writeScriptFile(scriptPath, content.Title, t.URL, t.NeedSummary, script); err != nil {
		return p.fail(jobID, "persist", err)
	}

	if p.isCancelled(jobID) {
		obs.JobsCancelled.Inc()
		return errCancelled
	}

	audioPath, ttsProvider, synthSize, synthDuration, err := p.runSynthesizeStage(ctx, jobID, t, script, episodeID, userDir)
	if err != nil {
		return p.fail(jobID, "tts_generating", err)
	}

	if p.isCancelled(jobID) {
		obs.JobsCancelled.Inc()
		return errCancelled
	}

	ep := episode.Episode{
		ID:              episodeID,
		Title:           content.Title,
		CreatedAt:       time.Now().UTC(),
		AudioFile:       filepath.Base(audioPath),
		SizeBytes:       synthSize,
		DurationSeconds: synthDuration,
		SourceURL:       t.URL,
		TokensUsed:      tokens,
		ProvidersUsed:   map[string]string{"llm": llmProvider, "tts": ttsProvider},
	}

	catalog, err := episode.NewCatalog(p.storage.EpisodesDir, t.UserID, p.retention.EpisodesPerUser)
	if err != nil {
		return p.fail(jobID, "persist", err)
	}
	if err := catalog.Add(ep); err != nil {
		return p.fail(jobID, "persist", err)
	}

	list, err := catalog.List()
	if err != nil {
		p.log.Warn("episode list for feed regeneration failed", obs.String("user_id", t.UserID), obs.Err(err))
	} else {
		obs.EpisodesStored.WithLabelValues(t.UserID).Set(float64(len(list)))
		feedInfo := feedPodcastInfo(p.podcast)
		if err := writeFeed(catalog.Dir(), feedInfo, list); err != nil {
			p.log.Warn("feed regeneration failed", obs.String("user_id", t.UserID), obs.Err(err))
		}
	}

	result := map[string]interface{}{
		"episode_id": episodeID,
		"title":      content.Title,
		"duration":   synthDuration,
		"audio_url":  fmt.Sprintf("/episodes/%s/%s", t.UserID, filepath.Base(audioPath)),
	}
	if _, err := p.statuses.SetResult(jobID, result); err != nil {
		return err
	}

	p.notifier.Notify(ctx, webhook.EventJobSuccess, map[string]interface{}{
		"job_id":       jobID,
		"user_id":      t.UserID,
		"episode_id":   episodeID,
		"completed_at": time.Now().UTC(),
	})

	obs.JobsCompleted.Inc()
	return nil
}

func (p *Pipeline) isCancelled(jobID string) bool {
	cancelled, err := p.statuses.IsCancelled(jobID)
	if err != nil {
		return false
	}
	return cancelled
}

func (p *Pipeline) fail(jobID, stage string, err error) error {
	obs.JobsFailed.Inc()
	if _, sErr := p.statuses.SetError(jobID, err.Error(), map[string]interface{}{"stage": stage}); sErr != nil {
		p.log.Error("failed to persist job failure", obs.Err(sErr))
	}
	p.notifier.Notify(context.Background(), webhook.EventJobFailed, map[string]interface{}{
		"job_id":  jobID,
		"stage":   stage,
		"error":   err.Error(),
		"timestamp": time.Now().UTC(),
	})
	return &StageError{Stage: stage, Message: "stage failed", Err: err}
}

func (p *Pipeline) runFetchStage(ctx context.Context, jobID string, t queue.Ticket) (ingest.Content, error) {
	if _, err := p.statuses.AdvanceStage(jobID, jobstatus.Fetching, "fetching", 20, "fetching content"); err != nil {
		return ingest.Content{}, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.StageBudgets.Fetch)
	defer cancel()

	input := t.URL
	if input == "" {
		input = t.RawInput
	}
	content, err := p.fetcher.Fetch(fetchCtx, input)
	if err != nil {
		return ingest.Content{}, err
	}
	return content, nil
}

func (p *Pipeline) runSummarizeStage(ctx context.Context, jobID string, t queue.Ticket, content ingest.Content) (string, string, int, error) {
	if !t.NeedSummary {
		if _, err := p.statuses.AdvanceStage(jobID, jobstatus.LLMProcessing, "llm_processing", 50, "using raw content"); err != nil {
			return "", "", 0, err
		}
		return content.Text, "none", 0, nil
	}

	if _, err := p.statuses.AdvanceStage(jobID, jobstatus.LLMProcessing, "llm_processing", 30, "generating script"); err != nil {
		return "", "", 0, err
	}

	systemPrompt := p.prompts.SystemPrompt(t.LLMChoice)
	userPrompt := p.prompts.FormatUserPrompt("article_to_podcast", map[string]string{
		"title":   content.Title,
		"content": content.Text,
	})
	if userPrompt == "" {
		userPrompt = content.Text
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		llm, err := p.registry.CurrentLLM()
		if err != nil {
			return "", "", 0, err
		}

		llmCtx, cancel := context.WithTimeout(ctx, p.cfg.StageBudgets.LLM)
		result := llm.Chat(llmCtx, systemPrompt, userPrompt)
		cancel()

		if result.OK {
			if _, err := p.statuses.AdvanceStage(jobID, jobstatus.LLMProcessing, "llm_processing", 50, "script generated"); err != nil {
				return "", "", 0, err
			}
			return result.Content, llm.Name(), result.TokensUsed, nil
		}

		lastErr = fmt.Errorf("llm %s failed: %s", llm.Name(), result.Error)
		p.log.Warn("llm attempt failed", obs.String("provider", llm.Name()), obs.Int("attempt", attempt), obs.Err(lastErr))
		if _, rotErr := p.registry.ReportLLMFailure(); rotErr != nil {
			break
		}
		obs.ProviderRotations.WithLabelValues("llm").Inc()
	}
	return "", "", 0, fmt.Errorf("llm summarize exhausted attempts: %w", lastErr)
}

func (p *Pipeline) runSynthesizeStage(ctx context.Context, jobID string, t queue.Ticket, script, episodeID, userDir string) (string, string, int64, float64, error) {
	if _, err := p.statuses.AdvanceStage(jobID, jobstatus.TTSGenerating, "tts_generating", 70, "synthesizing audio"); err != nil {
		return "", "", 0, 0, err
	}

	audioFormat := "mp3"
	outputPath := filepath.Join(userDir, episodeID+"."+audioFormat)

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tts, err := p.registry.CurrentTTS()
		if err != nil {
			return "", "", 0, 0, err
		}

		ttsCtx, cancel := context.WithTimeout(ctx, p.cfg.StageBudgets.TTS)
		result := tts.Synthesize(ttsCtx, script, outputPath, t.TTSOptions)
		cancel()

		if result.OK {
			if _, err := p.statuses.AdvanceStage(jobID, jobstatus.TTSGenerating, "tts_generating", 90, "audio synthesized"); err != nil {
				return "", "", 0, 0, err
			}
			return result.Path, tts.Name(), result.SizeBytes, result.DurationSeconds, nil
		}

		lastErr = fmt.Errorf("tts %s failed: %s", tts.Name(), result.Error)
		p.log.Warn("tts attempt failed", obs.String("provider", tts.Name()), obs.Int("attempt", attempt), obs.Err(lastErr))
		if _, rotErr := p.registry.ReportTTSFailure(); rotErr != nil {
			break
		}
		obs.ProviderRotations.WithLabelValues("tts").Inc()
	}
	return "", "", 0, 0, fmt.Errorf("tts synthesize exhausted attempts: %w", lastErr)
}

func writeScriptFile(path, title, source string, needSummary bool, script string) error {
	mode := "Direct Content"
	if needSummary {
		mode = "LLM Summary"
	}
	header := fmt.Sprintf("Title: %s\nSource: %s\nGenerated: %s\nMode: %s\n\n%s\n\n%s\n",
		title, source, time.Now().UTC().Format(time.RFC3339), mode, "=================================================", script)
	return os.WriteFile(path, []byte(header), 0o644)
}
