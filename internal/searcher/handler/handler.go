// Package handler implements the HTTP surface of the Query Engine (C5):
// /health, /stats, /search, /search/bulk, and /exact, per spec.md §6's
// exact response contracts. Adapted from the teacher's
// internal/searcher/handler, generalized from one generic search endpoint
// plus analytics hooks into the five endpoints this domain exposes, with
// its own independent-cache-per-op-type pattern in place of the teacher's
// single SearchResult-shaped cache.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/domainsearch/engine/internal/searcher/cache"
	"github.com/domainsearch/engine/internal/searcher/executor"
	"github.com/domainsearch/engine/internal/searcher/query"
	"github.com/domainsearch/engine/pkg/logger"
)

// Handler serves the query engine's HTTP API.
type Handler struct {
	exec        *executor.Executor
	cache       *cache.Cache
	bulkFanOut  int
	logger      *slog.Logger
}

// New creates a Handler. cache may be nil to run with caching disabled.
func New(exec *executor.Executor, c *cache.Cache, bulkFanOut int) *Handler {
	if bulkFanOut <= 0 {
		bulkFanOut = executor.DefaultBulkConcurrency
	}
	return &Handler{exec: exec, cache: c, bulkFanOut: bulkFanOut, logger: slog.Default().With("component", "search-handler")}
}

// Search serves GET /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	q := r.URL.Query()

	plan, err := query.Parse(q.Get("q"), q.Get("tld"), q.Get("limit"), q.Get("min_match"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, cached, err := h.search(ctx, plan)
	if err != nil {
		log.Error("search execution failed", "query", plan.Raw, "error", err)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	result.Cached = cached
	log.Info("search completed", "query", plan.Raw, "total_candidates", result.TotalCandidates,
		"returned", len(result.Results), "cached", cached, "query_time_ms", result.QueryTimeMs)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) search(ctx context.Context, plan query.Plan) (*executor.Result, bool, error) {
	if !h.cache.Enabled() {
		result, err := h.exec.Search(ctx, plan)
		return result, false, err
	}
	key := cache.SearchKey(plan.Tokens, plan.TLD, plan.Limit, plan.MinMatch)
	return cache.GetOrCompute(ctx, h.cache, key, func() (*executor.Result, error) {
		return h.exec.Search(ctx, plan)
	})
}

// SearchBulk serves POST /search/bulk.
func (h *Handler) SearchBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	start := time.Now()

	var body struct {
		Queries []struct {
			Q        string `json:"q"`
			TLD      string `json:"tld"`
			MinMatch int    `json:"min_match"`
		} `json:"queries"`
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(body.Queries) == 0 {
		h.writeError(w, http.StatusBadRequest, "queries must not be empty")
		return
	}
	if len(body.Queries) > executor.MaxBulkQueries {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("queries must not exceed %d", executor.MaxBulkQueries))
		return
	}

	plans := make([]query.Plan, len(body.Queries))
	for i, sq := range body.Queries {
		minMatch := ""
		if sq.MinMatch > 0 {
			minMatch = fmt.Sprintf("%d", sq.MinMatch)
		}
		limit := ""
		if body.Limit > 0 {
			limit = fmt.Sprintf("%d", body.Limit)
		}
		plan, err := query.Parse(sq.Q, sq.TLD, limit, minMatch)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("query %d: %s", i, err.Error()))
			return
		}
		plans[i] = plan
	}

	raw, errs := executor.RunBulk(ctx, len(plans), h.bulkFanOut, func(ctx context.Context, i int) (any, error) {
		result, cached, err := h.search(ctx, plans[i])
		if err != nil {
			return nil, err
		}
		result.Cached = cached
		return result, nil
	})
	for i, err := range errs {
		if err != nil {
			log.Error("bulk sub-query failed", "index", i, "query", plans[i].Raw, "error", err)
			h.writeError(w, http.StatusInternalServerError, "bulk search failed")
			return
		}
	}

	results := make([]*executor.Result, len(raw))
	for i, r := range raw {
		results[i] = r.(*executor.Result)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"results":       results,
		"total_time_ms": time.Since(start).Milliseconds(),
	})
}

// Exact serves GET /exact.
func (h *Handler) Exact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	domainName := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("domain")))
	if domainName == "" || !strings.Contains(domainName, ".") {
		h.writeError(w, http.StatusBadRequest, "domain is required and must contain a '.'")
		return
	}

	result, cached, err := h.exact(ctx, domainName)
	if err != nil {
		log.Error("exact lookup failed", "domain", domainName, "error", err)
		h.writeError(w, http.StatusInternalServerError, "exact lookup failed")
		return
	}
	_ = cached
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) exact(ctx context.Context, domainName string) (*executor.ExactResult, bool, error) {
	if !h.cache.Enabled() {
		result, err := h.exec.Exact(ctx, domainName)
		return result, false, err
	}
	key := cache.ExactKey(domainName)
	return cache.GetOrCompute(ctx, h.cache, key, func() (*executor.ExactResult, error) {
		return h.exec.Exact(ctx, domainName)
	})
}

// Health serves GET /health with spec.md §6's exact shape.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.exec.Stats()
	if err != nil {
		h.logger.Error("stats lookup failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "stats lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"index_documents": stats.Documents,
		"index_segments":  stats.Segments,
		"cache_enabled":    h.cache.Enabled(),
	})
}

// Stats serves GET /stats with spec.md:177's exact shape.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.exec.Stats()
	if err != nil {
		h.logger.Error("stats lookup failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "stats lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents":        stats.Documents,
		"segments":         stats.Segments,
		"index_size_bytes": stats.IndexSizeBytes,
	})
}

// CacheInvalidate serves an operator endpoint to force a cache flush,
// kept from the teacher's handler for parity with its cache-admin surface.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if !h.cache.Enabled() {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
