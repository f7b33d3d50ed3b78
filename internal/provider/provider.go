// Copyright 2025 James Ross

// Package provider implements the provider registry and health checker:
// an ordered, priority-ranked list of LLM and TTS backends, probed once at
// startup, with sticky rotate-on-failure during normal operation.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ghostradio/podcastd/internal/config"
	"go.uber.org/zap"
)

// ChatResult is the result union an LLM provider returns instead of
// throwing across the interface boundary.
type ChatResult struct {
	OK         bool
	Content    string
	TokensUsed int
	Error      string
}

// LLM is the contract every chat-completion backend must satisfy.
type LLM interface {
	Name() string
	Chat(ctx context.Context, systemText, userText string) ChatResult
	Probe(ctx context.Context) error
}

// SynthesizeResult is the result union a TTS provider returns instead of
// throwing across the interface boundary.
type SynthesizeResult struct {
	OK              bool
	Path            string
	DurationSeconds float64
	SizeBytes       int64
	Error           string
}

// TTS is the contract every speech-synthesis backend must satisfy.
type TTS interface {
	Name() string
	Synthesize(ctx context.Context, text, outputPath string, options map[string]interface{}) SynthesizeResult
	Probe(ctx context.Context) error
}

// ErrNoBackend is returned when a kind's available list is empty.
var ErrNoBackend = fmt.Errorf("provider: no backend available for this kind")

// ErrNoFallback is returned by a rotate call when only one backend remains
// available — there is nothing left to rotate to.
var ErrNoFallback = fmt.Errorf("provider: no fallback backend available")

// Registry holds the available, health-checked backends for each kind and
// the sticky rotation index into each list. Rotation only ever happens
// from the worker's goroutine; readers of Current* may race with a
// rotation in progress, guarded by mu.
type Registry struct {
	mu sync.Mutex

	availableLLM []LLM
	curLLMIdx    int

	availableTTS []TTS
	curTTSIdx    int

	lastProbeTime time.Time
	cacheFile     string
	log           *zap.Logger
}

// NewRegistry constructs every configured candidate, probes each with the
// configured timeout, and retains the ones that pass in declared order.
// It returns an error only if a kind ends up with zero available backends.
func NewRegistry(ctx context.Context, cfg config.Providers, cacheFile string, log *zap.Logger) (*Registry, error) {
	r := &Registry{cacheFile: cacheFile, log: log}

	for _, cand := range cfg.LLM {
		llm, err := newLLMFromCandidate(cand)
		if err != nil {
			log.Warn("llm candidate misconfigured, skipping", zap.String("name", cand.Name), zap.Error(err))
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		err = llm.Probe(probeCtx)
		cancel()
		if err != nil {
			log.Warn("llm candidate unavailable", zap.String("name", cand.Name), zap.Error(err))
			continue
		}
		log.Info("llm candidate available", zap.String("name", cand.Name))
		r.availableLLM = append(r.availableLLM, llm)
	}

	for _, cand := range cfg.TTS {
		tts, err := newTTSFromCandidate(cand)
		if err != nil {
			log.Warn("tts candidate misconfigured, skipping", zap.String("name", cand.Name), zap.Error(err))
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		err = tts.Probe(probeCtx)
		cancel()
		if err != nil {
			log.Warn("tts candidate unavailable", zap.String("name", cand.Name), zap.Error(err))
			continue
		}
		log.Info("tts candidate available", zap.String("name", cand.Name))
		r.availableTTS = append(r.availableTTS, tts)
	}

	r.lastProbeTime = time.Now().UTC()
	r.saveCacheLocked()

	if len(r.availableLLM) == 0 {
		return nil, fmt.Errorf("provider: no LLM candidates passed the startup probe")
	}
	if len(r.availableTTS) == 0 {
		return nil, fmt.Errorf("provider: no TTS candidates passed the startup probe")
	}
	return r, nil
}

// newRegistryFromAvailable builds a Registry directly from already-probed
// backends, skipping candidate construction and network probing. Used by
// tests to exercise rotation semantics deterministically.
func newRegistryFromAvailable(llm []LLM, tts []TTS, log *zap.Logger) *Registry {
	return &Registry{availableLLM: llm, availableTTS: tts, log: log}
}

// NewRegistryFromBackends exposes newRegistryFromAvailable for callers
// outside this package that need to inject already-constructed backends,
// such as pipeline tests that stub out network-calling providers.
func NewRegistryFromBackends(llm []LLM, tts []TTS, log *zap.Logger) *Registry {
	return newRegistryFromAvailable(llm, tts, log)
}

// CurrentLLM returns the currently-chosen LLM backend.
func (r *Registry) CurrentLLM() (LLM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.availableLLM) == 0 {
		return nil, ErrNoBackend
	}
	if r.curLLMIdx >= len(r.availableLLM) {
		r.curLLMIdx = 0
	}
	return r.availableLLM[r.curLLMIdx], nil
}

// CurrentTTS returns the currently-chosen TTS backend.
func (r *Registry) CurrentTTS() (TTS, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.availableTTS) == 0 {
		return nil, ErrNoBackend
	}
	if r.curTTSIdx >= len(r.availableTTS) {
		r.curTTSIdx = 0
	}
	return r.availableTTS[r.curTTSIdx], nil
}

// ReportLLMFailure advances the LLM rotation index modulo the list length
// and returns the new current backend. A single-element list cannot
// rotate and returns ErrNoFallback, leaving state unchanged.
func (r *Registry) ReportLLMFailure() (LLM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.availableLLM) <= 1 {
		return nil, ErrNoFallback
	}
	old := r.availableLLM[r.curLLMIdx].Name()
	r.curLLMIdx = (r.curLLMIdx + 1) % len(r.availableLLM)
	r.log.Warn("rotating llm provider", zap.String("from", old), zap.String("to", r.availableLLM[r.curLLMIdx].Name()))
	r.saveCacheLocked()
	return r.availableLLM[r.curLLMIdx], nil
}

// ReportTTSFailure advances the TTS rotation index modulo the list length
// and returns the new current backend. A single-element list cannot
// rotate and returns ErrNoFallback, leaving state unchanged.
func (r *Registry) ReportTTSFailure() (TTS, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.availableTTS) <= 1 {
		return nil, ErrNoFallback
	}
	old := r.availableTTS[r.curTTSIdx].Name()
	r.curTTSIdx = (r.curTTSIdx + 1) % len(r.availableTTS)
	r.log.Warn("rotating tts provider", zap.String("from", old), zap.String("to", r.availableTTS[r.curTTSIdx].Name()))
	r.saveCacheLocked()
	return r.availableTTS[r.curTTSIdx], nil
}

// Status is a JSON-serializable snapshot for /health/full.
type Status struct {
	LastCheck      time.Time `json:"last_check"`
	AvailableLLM   []string  `json:"available_llm"`
	AvailableTTS   []string  `json:"available_tts"`
	CurrentLLM     string    `json:"current_llm,omitempty"`
	CurrentTTS     string    `json:"current_tts,omitempty"`
	CurLLMIndex    int       `json:"current_llm_index"`
	CurTTSIndex    int       `json:"current_tts_index"`
}

// Status returns a snapshot of the registry's current state.
func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

// statusLocked builds the snapshot assuming r.mu is already held by the
// caller. Status and saveCacheLocked both need this; neither may call the
// other's locking wrapper without deadlocking on r.mu.
func (r *Registry) statusLocked() Status {
	s := Status{LastCheck: r.lastProbeTime, CurLLMIndex: r.curLLMIdx, CurTTSIndex: r.curTTSIdx}
	for _, l := range r.availableLLM {
		s.AvailableLLM = append(s.AvailableLLM, l.Name())
	}
	for _, t := range r.availableTTS {
		s.AvailableTTS = append(s.AvailableTTS, t.Name())
	}
	if len(r.availableLLM) > 0 {
		s.CurrentLLM = r.availableLLM[r.curLLMIdx].Name()
	}
	if len(r.availableTTS) > 0 {
		s.CurrentTTS = r.availableTTS[r.curTTSIdx].Name()
	}
	return s
}

// saveCacheLocked persists the current state to cacheFile for operator
// observability. The registry's authoritative state stays in memory; a
// failure to write the cache is logged, not propagated. Assumes r.mu is
// already held by the caller.
func (r *Registry) saveCacheLocked() {
	if r.cacheFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.cacheFile), 0o755); err != nil {
		r.log.Debug("provider cache dir create failed", zap.Error(err))
		return
	}
	data, err := json.MarshalIndent(r.statusLocked(), "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(r.cacheFile, data, 0o644); err != nil {
		r.log.Debug("provider cache write failed", zap.Error(err))
	}
}

func newLLMFromCandidate(cand config.ProviderCandidate) (LLM, error) {
	switch cand.Kind {
	case "anthropic":
		return NewAnthropicChatProvider(cand), nil
	case "openai_compatible":
		return NewOpenAICompatibleChatProvider(cand), nil
	default:
		return nil, fmt.Errorf("unknown llm provider kind %q", cand.Kind)
	}
}

func newTTSFromCandidate(cand config.ProviderCandidate) (TTS, error) {
	switch cand.Kind {
	case "google_tts":
		return NewGoogleTTSProvider(cand)
	case "http_tts", "edge_tts":
		return NewHTTPTTSProvider(cand), nil
	default:
		return nil, fmt.Errorf("unknown tts provider kind %q", cand.Kind)
	}
}
