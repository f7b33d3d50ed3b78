// Copyright 2025 James Ross

// Package ingest fetches a web article and strips it down to its plain-text
// content, or passes raw text straight through when no URL was given.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// maxFetchSize bounds how much of a response body is read before
// extraction, guarding against a misbehaving server streaming forever.
const maxFetchSize = 25 * 1024 * 1024

// Content is the fetched, cleaned article text plus the title the pipeline
// uses for the script header, the episode and the job result.
type Content struct {
	Title string
	Text  string
	URL   string
}

// Fetcher is the external collaborator the worker's FETCHING stage calls.
type Fetcher interface {
	Fetch(ctx context.Context, urlOrText string) (Content, error)
}

// HTTPFetcher fetches a URL and extracts its readable content with
// go-readability's boilerplate-stripping heuristics. Non-URL input is
// treated as raw text and returned verbatim.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher with a bounded per-request timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: 60 * time.Second}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, input string) (Content, error) {
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return Content{Title: titleFromText(input), Text: input, URL: ""}, nil
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return Content{}, fmt.Errorf("invalid url %q: %w", input, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input, nil)
	if err != nil {
		return Content{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; podcastd/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return Content{}, fmt.Errorf("fetch %s: %w", input, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Content{}, fmt.Errorf("fetch %s: http %d", input, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxFetchSize)
	article, err := readability.FromReader(limited, parsed)
	if err != nil {
		return Content{}, fmt.Errorf("extract content from %s: %w", input, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return Content{}, fmt.Errorf("no readable content extracted from %s", input)
	}

	title := article.Title
	if title == "" {
		title = titleFromText(text)
	}

	return Content{Title: title, Text: text, URL: input}, nil
}

func titleFromText(text string) string {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)
	const maxLen = 80
	if len(line) > maxLen {
		line = line[:maxLen] + "..."
	}
	if line == "" {
		return "Untitled"
	}
	return line
}
