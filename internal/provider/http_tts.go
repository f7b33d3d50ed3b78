// Copyright 2025 James Ross
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ghostradio/podcastd/internal/config"
)

// defaultSegmentCharCap bounds how much text one synthesis request
// carries before the provider segments on sentence boundaries and
// concatenates the resulting audio.
const defaultSegmentCharCap = 800

// segmentSentences splits text on common sentence terminators (ASCII and
// CJK) into chunks no larger than cap characters, without breaking a
// sentence across chunks where avoidable.
func segmentSentences(text string, cap int) []string {
	if len(text) <= cap {
		return []string{text}
	}
	const terminators = "。！？.!?"
	var segments []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if strings.ContainsRune(terminators, r) && current.Len() >= cap/2 {
			segments = append(segments, current.String())
			current.Reset()
		} else if current.Len() >= cap {
			segments = append(segments, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// HTTPTTSProvider speaks a minimal "text in, audio bytes out" HTTP
// contract. It covers both a free, always-available fallback (no API key
// required, e.g. an Edge-TTS style endpoint) and a credentialed vendor
// endpoint, distinguished only by whether APIKeyEnv is set on the
// candidate.
type HTTPTTSProvider struct {
	name      string
	voice     string
	baseURL   string
	apiKeyEnv string
	client    *http.Client
}

// NewHTTPTTSProvider builds a provider from a configured candidate.
func NewHTTPTTSProvider(cand config.ProviderCandidate) *HTTPTTSProvider {
	return &HTTPTTSProvider{
		name:      cand.Name,
		voice:     cand.Voice,
		baseURL:   cand.BaseURL,
		apiKeyEnv: cand.APIKeyEnv,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *HTTPTTSProvider) Name() string { return p.name }

type httpTTSRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (p *HTTPTTSProvider) call(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(httpTTSRequest{Text: text, Voice: p.voice})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKeyEnv != "" {
		if key := os.Getenv(p.apiKeyEnv); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		} else {
			return nil, errNoAPIKey(p.apiKeyEnv)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", p.name, resp.StatusCode)
	}
	return data, nil
}

func (p *HTTPTTSProvider) Synthesize(ctx context.Context, text, outputPath string, options map[string]interface{}) SynthesizeResult {
	segments := segmentSentences(text, defaultSegmentCharCap)
	var audio []byte
	for _, seg := range segments {
		chunk, err := p.call(ctx, seg)
		if err != nil {
			return SynthesizeResult{OK: false, Error: err.Error()}
		}
		audio = append(audio, chunk...)
	}
	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		return SynthesizeResult{OK: false, Error: fmt.Sprintf("write audio file: %v", err)}
	}
	return SynthesizeResult{OK: true, Path: outputPath, SizeBytes: int64(len(audio))}
}

// Probe is a no-op success when no API key is configured (the free
// service is assumed always available, per the health checker's treatment
// of edge-tts), otherwise it verifies the credential environment variable
// is set without spending a real synthesis call.
func (p *HTTPTTSProvider) Probe(ctx context.Context) error {
	if p.apiKeyEnv == "" {
		return nil
	}
	if os.Getenv(p.apiKeyEnv) == "" {
		return errNoAPIKey(p.apiKeyEnv)
	}
	return nil
}
