// Package memory queries an external memory service for snippets worth
// injecting into a prompt. Lookups are best-effort: callers treat any
// failure as "no snippets".
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agusx1211/llmws/internal/config"
)

const defaultTimeout = 5 * time.Second

// Result is one snippet returned by a search.
type Result struct {
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// BackendError names the backend a failed lookup went through.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return e.Backend + ": " + e.Err.Error()
	}
	return e.Backend + ": unknown error"
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Searcher finds snippets relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// HTTPSearcher talks to an HTTP memory service: POST {query, limit} and
// read back {results: [{snippet, ...}]}.
type HTTPSearcher struct {
	url    string
	client *http.Client
}

// NewHTTPSearcher builds a searcher for the given endpoint. A zero
// timeout applies the default.
func NewHTTPSearcher(url string, timeout time.Duration) *HTTPSearcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPSearcher{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
	}
}

// FromConfig returns a Searcher for the configured backend, or nil when
// no usable memory backend is configured.
func FromConfig(cfg *config.MemoryConfig) Searcher {
	if cfg == nil {
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(cfg.Kind), "http-search") {
		return nil
	}
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil
	}
	return NewHTTPSearcher(url, time.Duration(cfg.TimeoutMS)*time.Millisecond)
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search posts the query and returns the service's snippets.
func (s *HTTPSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if s == nil || s.url == "" {
		return nil, nil
	}
	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("encoding memory query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building memory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &BackendError{Backend: "http-search", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{Backend: "http-search", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &BackendError{Backend: "http-search", Err: fmt.Errorf("decoding response: %w", err)}
	}
	return parsed.Results, nil
}
