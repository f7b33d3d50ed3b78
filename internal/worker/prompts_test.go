// Copyright 2025 James Ross
package worker

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePrompts = `
llm:
  default_host: "You are a friendly podcast host."
  concise_host: "You are a terse podcast host."
templates:
  article_to_podcast: "Title: {{title}}\n\n{{content}}"
`

func writeSamplePrompts(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte(samplePrompts), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSystemPromptFallsBackToDefault(t *testing.T) {
	pm, err := LoadPromptManager(writeSamplePrompts(t))
	if err != nil {
		t.Fatal(err)
	}
	if got := pm.SystemPrompt("concise_host"); got != "You are a terse podcast host." {
		t.Fatalf("unexpected concise prompt: %q", got)
	}
	if got := pm.SystemPrompt("unknown_kind"); got != "You are a friendly podcast host." {
		t.Fatalf("expected fallback to default_host, got %q", got)
	}
	if got := pm.SystemPrompt(""); got != "You are a friendly podcast host." {
		t.Fatalf("expected default_host for empty kind, got %q", got)
	}
}

func TestFormatUserPromptSubstitutes(t *testing.T) {
	pm, err := LoadPromptManager(writeSamplePrompts(t))
	if err != nil {
		t.Fatal(err)
	}
	got := pm.FormatUserPrompt("article_to_podcast", map[string]string{
		"title":   "Hello World",
		"content": "Some body text.",
	})
	want := "Title: Hello World\n\nSome body text."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestLoadPromptManagerMissingFile(t *testing.T) {
	if _, err := LoadPromptManager(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing prompts file")
	}
}
