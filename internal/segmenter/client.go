// Package segmenter implements the Word Segmenter Client (C2): it batches
// raw labels to an external HTTP segmentation service, retries transient
// failures with backoff, falls back to single-word tokens on terminal
// failure, and caches successful segmentations.
package segmenter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/domainsearch/engine/pkg/resilience"
)

// Config configures a Client.
type Config struct {
	BaseURL       string
	Username      string
	Password      string
	BatchSize     int           // WORD_BATCH_SIZE, default 500
	Concurrency   int           // K in-flight batches
	CacheCapacity int           // bounded LRU entry count
	Retry         resilience.RetryConfig
	BatchTimeout  time.Duration // per-batch timeout, independent of retry budget
	HTTPClient    *http.Client
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = 1_000_000
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = 250 * time.Millisecond
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = 2.0
	}
	if c.Retry.JitterFraction <= 0 {
		c.Retry.JitterFraction = 0.2
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 10 * time.Second
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
}

// Stats are the terminal-failure and fallback counters spec.md §4.2 and §7
// require the pipeline to report.
type Stats struct {
	Requested        atomic.Int64
	CacheHits        atomic.Int64
	TerminalFailures atomic.Int64
	FallbackLabels   atomic.Int64
}

// Client is the C2 word segmenter client.
type Client struct {
	cfg     Config
	authHdr string
	cache   *lruCache
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
	Stats   Stats
}

// New creates a segmenter Client. Authentication credentials are supplied
// once at construction, per spec.
func New(cfg Config) *Client {
	cfg.setDefaults()
	auth := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
	return &Client{
		cfg:     cfg,
		authHdr: "Basic " + auth,
		cache:   newLRUCache(cfg.CacheCapacity),
		breaker: resilience.NewCircuitBreaker("word-segmenter", resilience.CircuitBreakerConfig{
			FailureThreshold:    5,
			ResetTimeout:        30 * time.Second,
			HalfOpenMaxRequests: 1,
		}),
		logger: slog.Default().With("component", "segmenter"),
	}
}

type segmentRequest struct {
	Labels []labelReq `json:"labels"`
}

type labelReq struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

type segmentResponse struct {
	Results []labelResult `json:"results"`
}

type labelResult struct {
	ID     int      `json:"id"`
	Label  string   `json:"label"`
	Tokens []string `json:"tokens"`
}

// httpStatusError carries the response status so callers can distinguish
// terminal 4xx failures from retryable 5xx/transport failures.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("segmenter returned status %d: %s", e.status, e.body)
}

// Segment resolves tokens for a set of labels. It consults the cache first,
// then dispatches uncached labels in WORD_BATCH_SIZE chunks across up to
// Concurrency in-flight requests. It never returns an error for a label: on
// terminal failure that label's entry is the spec-mandated fallback
// []string{label}, and the failure is only reflected in c.Stats.
func (c *Client) Segment(ctx context.Context, labels []string) map[string][]string {
	result := make(map[string][]string, len(labels))
	var toFetch []string
	for _, label := range labels {
		c.Stats.Requested.Add(1)
		if tokens, ok := c.cache.Get(label); ok {
			c.Stats.CacheHits.Add(1)
			result[label] = tokens
			continue
		}
		toFetch = append(toFetch, label)
	}
	if len(toFetch) == 0 {
		return result
	}

	chunks := chunk(toFetch, c.cfg.BatchSize)
	var mu sync.Mutex
	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, batch := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(batch []string) {
			defer wg.Done()
			defer func() { <-sem }()
			resolved := c.segmentBatch(ctx, batch)
			mu.Lock()
			for label, tokens := range resolved {
				result[label] = tokens
			}
			mu.Unlock()
		}(batch)
	}
	wg.Wait()
	return result
}

// segmentBatch resolves one batch, retrying transient failures and falling
// back to per-label default tokens on terminal failure.
func (c *Client) segmentBatch(ctx context.Context, batch []string) map[string][]string {
	var response *segmentResponse
	err := c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.cfg.BatchTimeout, "segmenter-batch", func(tctx context.Context) error {
			retryCtx, cancelRetry := context.WithCancel(tctx)
			defer cancelRetry()
			return resilience.Retry(retryCtx, "segmenter-batch", c.cfg.Retry, func() error {
				resp, rerr := c.doRequest(tctx, batch)
				if rerr != nil {
					var statusErr *httpStatusError
					if asHTTPStatusError(rerr, &statusErr) && statusErr.status >= 400 && statusErr.status < 500 {
						// 4xx is terminal for this batch: cancel so Retry
						// does not burn the remaining attempt budget on it.
						cancelRetry()
					}
					return rerr
				}
				response = resp
				return nil
			})
		})
	})

	out := make(map[string][]string, len(batch))
	if err != nil || response == nil {
		c.logger.Warn("segment batch failed, using fallback tokens", "batch_size", len(batch), "error", err)
		c.Stats.TerminalFailures.Add(1)
		for _, label := range batch {
			out[label] = []string{label}
			c.Stats.FallbackLabels.Add(1)
		}
		return out
	}

	byLabel := make(map[string][]string, len(response.Results))
	for _, r := range response.Results {
		byLabel[r.Label] = r.Tokens
	}
	for _, label := range batch {
		tokens, ok := byLabel[label]
		if !ok || len(tokens) == 0 {
			tokens = []string{label}
			c.Stats.FallbackLabels.Add(1)
		} else {
			c.cache.Put(label, tokens)
		}
		out[label] = tokens
	}
	return out
}

func (c *Client) doRequest(ctx context.Context, batch []string) (*segmentResponse, error) {
	req := segmentRequest{Labels: make([]labelReq, len(batch))}
	for i, label := range batch {
		req.Labels[i] = labelReq{ID: i, Label: label}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding segment request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/segment/bulk", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building segment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.authHdr)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("segmenter request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{status: resp.StatusCode, body: string(respBody)}
	}
	var out segmentResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding segment response: %w", err)
	}
	// Responses may arrive out of order; a result without a label gets it
	// back from its ID, and segmentBatch then joins results by label.
	sort := make([]labelResult, len(out.Results))
	copy(sort, out.Results)
	for i := range sort {
		if sort[i].ID >= 0 && sort[i].ID < len(batch) && sort[i].Label == "" {
			sort[i].Label = batch[sort[i].ID]
		}
	}
	out.Results = sort
	return &out, nil
}

func asHTTPStatusError(err error, target **httpStatusError) bool {
	for err != nil {
		if se, ok := err.(*httpStatusError); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func chunk(labels []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(labels); i += size {
		end := i + size
		if end > len(labels) {
			end = len(labels)
		}
		chunks = append(chunks, labels[i:end])
	}
	return chunks
}

// CacheLen reports the number of cached label->tokens entries.
func (c *Client) CacheLen() int {
	return c.cache.Len()
}
