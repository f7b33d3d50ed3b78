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
	"time"

	"github.com/ghostradio/podcastd/internal/config"
)

// OpenAICompatibleChatProvider speaks the OpenAI chat-completions wire
// format over plain HTTP. It serves any vendor exposing that same shape
// (OpenAI itself, NVIDIA's NIM endpoints, locally hosted vLLM/Ollama
// servers, etc), reusing the wire protocol verbatim rather than wrapping
// it in a vendor SDK.
type OpenAICompatibleChatProvider struct {
	name    string
	model   string
	baseURL string
	apiKeyEnv string
	client  *http.Client
}

// NewOpenAICompatibleChatProvider builds a provider from a configured
// candidate.
func NewOpenAICompatibleChatProvider(cand config.ProviderCandidate) *OpenAICompatibleChatProvider {
	return &OpenAICompatibleChatProvider{
		name:      cand.Name,
		model:     cand.Model,
		baseURL:   cand.BaseURL,
		apiKeyEnv: cand.APIKeyEnv,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OpenAICompatibleChatProvider) Name() string { return p.name }

type chatCompletionRequest struct {
	Model     string              `json:"model"`
	Messages  []chatCompletionMsg `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMsg `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *OpenAICompatibleChatProvider) post(ctx context.Context, req chatCompletionRequest) (*chatCompletionResponse, error) {
	apiKey := os.Getenv(p.apiKeyEnv)
	if apiKey == "" {
		return nil, errNoAPIKey(p.apiKeyEnv)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", p.name, resp.StatusCode, string(respBody))
	}
	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	return &parsed, nil
}

func (p *OpenAICompatibleChatProvider) Chat(ctx context.Context, systemText, userText string) ChatResult {
	resp, err := p.post(ctx, chatCompletionRequest{
		Model: p.model,
		Messages: []chatCompletionMsg{
			{Role: "system", Content: systemText},
			{Role: "user", Content: userText},
		},
	})
	if err != nil {
		return ChatResult{OK: false, Error: err.Error()}
	}
	if len(resp.Choices) == 0 {
		return ChatResult{OK: false, Error: p.name + ": empty choices"}
	}
	return ChatResult{OK: true, Content: resp.Choices[0].Message.Content, TokensUsed: resp.Usage.TotalTokens}
}

// Probe sends a five-token chat, matching the health checker's LLM probe.
func (p *OpenAICompatibleChatProvider) Probe(ctx context.Context) error {
	_, err := p.post(ctx, chatCompletionRequest{
		Model:     p.model,
		Messages:  []chatCompletionMsg{{Role: "user", Content: "Hi"}},
		MaxTokens: 5,
	})
	return err
}

func errNoAPIKey(env string) error {
	return fmt.Errorf("missing API key: environment variable %s is not set", env)
}
