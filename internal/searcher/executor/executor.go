// Package executor runs validated query.Plans against an index snapshot
// and produces ranked, paginated results. It generalizes the teacher's
// internal/searcher/executor (AND/OR postings intersection/union feeding a
// plain score sort) into this domain's disjunctive-with-min_match query
// plus the (match_count, length, score) ranking contract from
// internal/searcher/rank.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/domainsearch/engine/internal/domain"
	"github.com/domainsearch/engine/internal/index"
	"github.com/domainsearch/engine/internal/searcher/query"
	"github.com/domainsearch/engine/internal/searcher/rank"
)

// Reader is the subset of index.Reader the executor needs; satisfied by
// *index.Reader.
type Reader interface {
	Snapshot() *index.Snapshot
}

// Result is the response envelope for one keyword search.
type Result struct {
	Query           string              `json:"query"`
	Results         []domain.RankedHit  `json:"results"`
	TotalCandidates int                 `json:"total_candidates"`
	QueryTimeMs     int64               `json:"query_time_ms"`
	Cached          bool                `json:"cached"`
}

// Executor runs query.Plans against the latest index snapshot.
type Executor struct {
	reader Reader
	logger *slog.Logger
}

// New creates an Executor reading through reader.
func New(reader Reader) *Executor {
	return &Executor{reader: reader, logger: slog.Default().With("component", "query-executor")}
}

// Search runs plan to completion: disjunctive term lookup, optional TLD
// facet filter, BM25 scoring, min_match filtering, over-fetch-bounded
// candidate collection, and final ranking.
func (e *Executor) Search(ctx context.Context, plan query.Plan) (*Result, error) {
	start := time.Now()
	snap := e.reader.Snapshot()

	if len(plan.Tokens) == 0 {
		return &Result{Query: plan.Raw, Results: []domain.RankedHit{}, QueryTimeMs: elapsedMs(start)}, nil
	}

	docCache := make(map[string]index.StoredDoc)
	lookup := func(d string) (index.StoredDoc, bool) {
		if doc, ok := docCache[d]; ok {
			return doc, true
		}
		doc, err := snap.Lookup(d)
		if err != nil {
			return index.StoredDoc{}, false
		}
		docCache[d] = doc
		return doc, true
	}

	postingsByToken := make(map[string]index.PostingList, len(plan.Tokens))
	for _, tok := range plan.Tokens {
		postings, err := snap.Search(tok)
		if err != nil {
			return nil, fmt.Errorf("searching token %q: %w", tok, err)
		}
		if plan.TLD != "" {
			filtered := make(index.PostingList, 0, len(postings))
			for _, p := range postings {
				if doc, ok := lookup(p.Domain); ok && doc.TLD == plan.TLD {
					filtered = append(filtered, p)
				}
			}
			postings = filtered
		}
		if len(postings) > 0 {
			postingsByToken[tok] = postings
		}
	}

	params := rank.Params{TotalDocs: snap.TotalDocs(), AvgDocLength: snap.AvgDocLength()}
	scored := rank.Score(postingsByToken, params, func(d string) int {
		doc, ok := lookup(d)
		if !ok {
			return 0
		}
		return len(doc.Tokens)
	})

	type candidate struct {
		domainName string
		c          rank.Candidate
	}
	candidates := make([]candidate, 0, len(scored))
	for d, c := range scored {
		if c.MatchCount < plan.MinMatch {
			continue
		}
		candidates = append(candidates, candidate{domainName: d, c: c})
	}
	totalCandidates := len(candidates)

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].c.Score > candidates[j].c.Score })
	budget := query.OverFetchBudget(plan.Limit)
	if len(candidates) > budget {
		candidates = candidates[:budget]
	}

	hits := make([]domain.RankedHit, 0, len(candidates))
	for _, cd := range candidates {
		doc, ok := lookup(cd.domainName)
		if !ok {
			continue
		}
		hits = append(hits, domain.RankedHit{
			Document: domain.Document{
				Domain: doc.Domain, Label: doc.Label, TLD: doc.TLD,
				Tokens: doc.Tokens, Length: doc.Length, HasHyphen: doc.HasHyphen,
			},
			MatchCount: cd.c.MatchCount,
			Score:      cd.c.Score,
		})
	}

	ordered := rank.Order(hits, plan.Limit)
	e.logger.Debug("search executed", "query", plan.Raw, "tokens", plan.Tokens,
		"total_candidates", totalCandidates, "returned", len(ordered))

	return &Result{
		Query:           plan.Raw,
		Results:         ordered,
		TotalCandidates: totalCandidates,
		QueryTimeMs:     elapsedMs(start),
	}, nil
}

// ExactResult is the response envelope for an exact domain lookup.
type ExactResult struct {
	Found       bool             `json:"found"`
	Domain      *domain.Document `json:"domain"`
	QueryTimeMs int64            `json:"query_time_ms"`
}

// Exact performs a single term match on the domain field.
func (e *Executor) Exact(ctx context.Context, domainName string) (*ExactResult, error) {
	start := time.Now()
	snap := e.reader.Snapshot()
	doc, err := snap.Lookup(domainName)
	if err != nil {
		return &ExactResult{Found: false, QueryTimeMs: elapsedMs(start)}, nil
	}
	d := domain.Document{Domain: doc.Domain, Label: doc.Label, TLD: doc.TLD, Tokens: doc.Tokens, Length: doc.Length, HasHyphen: doc.HasHyphen}
	return &ExactResult{Found: true, Domain: &d, QueryTimeMs: elapsedMs(start)}, nil
}

// Stats reports live index sizing, for /health and /stats.
type Stats struct {
	Documents      int
	Segments       int
	IndexSizeBytes int64
}

// Stats reports the current snapshot's document and segment counts plus
// the on-disk size of its live segment files.
func (e *Executor) Stats() (Stats, error) {
	snap := e.reader.Snapshot()
	size, err := snap.IndexSizeBytes()
	if err != nil {
		return Stats{}, fmt.Errorf("computing index size: %w", err)
	}
	return Stats{Documents: snap.TotalDocs(), Segments: snap.SegmentCount(), IndexSizeBytes: size}, nil
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Microseconds() / 1000
}
