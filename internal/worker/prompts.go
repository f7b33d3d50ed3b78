// Copyright 2025 James Ross
package worker

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PromptManager loads system prompts and user prompt templates from a YAML
// file, keyed by dotted path (e.g. "llm.default_host").
type PromptManager struct {
	data map[string]interface{}
}

// LoadPromptManager reads prompts from path.
func LoadPromptManager(path string) (*PromptManager, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var data map[string]interface{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}
	return &PromptManager{data: data}, nil
}

// Get resolves a dotted key path, returning "" if any segment is missing.
func (p *PromptManager) Get(key string) string {
	var cur interface{} = p.data
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur, ok = m[part]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}

// SystemPrompt returns the named host persona prompt, falling back to
// llm.default_host if the named one is absent.
func (p *PromptManager) SystemPrompt(kind string) string {
	if kind == "" {
		kind = "default_host"
	}
	if s := p.Get("llm." + kind); s != "" {
		return s
	}
	return p.Get("llm.default_host")
}

// FormatUserPrompt substitutes {{key}} placeholders in the named template
// with values from vars.
func (p *PromptManager) FormatUserPrompt(templateKey string, vars map[string]string) string {
	tmpl := p.Get("templates." + templateKey)
	for k, v := range vars {
		tmpl = strings.ReplaceAll(tmpl, "{{"+k+"}}", v)
	}
	return tmpl
}
