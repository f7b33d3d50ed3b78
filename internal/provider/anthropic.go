// Copyright 2025 James Ross
package provider

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ghostradio/podcastd/internal/config"
)

const anthropicMaxTokens = int64(4096)

// AnthropicChatProvider implements LLM against the Anthropic Messages API.
type AnthropicChatProvider struct {
	name   string
	model  string
	apiKey string
}

// NewAnthropicChatProvider builds a provider from a configured candidate.
// The API key is read from the environment variable named by
// cand.APIKeyEnv at call time, never cached, so credential rotation does
// not require a restart.
func NewAnthropicChatProvider(cand config.ProviderCandidate) *AnthropicChatProvider {
	return &AnthropicChatProvider{name: cand.Name, model: cand.Model, apiKey: cand.APIKeyEnv}
}

func (p *AnthropicChatProvider) Name() string { return p.name }

func (p *AnthropicChatProvider) client() anthropic.Client {
	if key := os.Getenv(p.apiKey); key != "" {
		return anthropic.NewClient(option.WithAPIKey(key))
	}
	return anthropic.NewClient()
}

func (p *AnthropicChatProvider) Chat(ctx context.Context, systemText, userText string) ChatResult {
	client := p.client()
	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemText},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userText)),
		},
	})
	if err != nil {
		return ChatResult{OK: false, Error: err.Error()}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return ChatResult{OK: false, Error: "anthropic: empty response"}
	}

	return ChatResult{
		OK:         true,
		Content:    text,
		TokensUsed: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
}

// Probe sends a minimal five-token chat to confirm the model and
// credentials are usable, mirroring the health checker's LLM probe.
func (p *AnthropicChatProvider) Probe(ctx context.Context) error {
	if os.Getenv(p.apiKey) == "" {
		return errNoAPIKey(p.apiKey)
	}
	client := p.client()
	_, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 5,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("Hi")),
		},
	})
	return err
}
