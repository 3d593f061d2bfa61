// Package query parses and validates one keyword search request into a
// Plan the executor can run against an index snapshot. It generalizes the
// teacher's AND/OR/NOT boolean parser down to this domain's simpler
// contract: a disjunctive match over whitespace-split tokens constrained
// by a min_match threshold, plus a single TLD facet.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultLimit    = 50
	MaxLimit        = 500
	DefaultMinMatch = 1
)

// Plan is one validated search request.
type Plan struct {
	Raw      string
	Tokens   []string
	TLD      string
	Limit    int
	MinMatch int
}

// Tokenize splits q on whitespace, lowercases, then dedupes and sorts the
// result. Per the dedup-before-match decision, "q=foo+foo" behaves
// identically to "q=foo": match_count counts distinct query tokens, so a
// repeated token must not be allowed to count twice.
func Tokenize(q string) []string {
	fields := strings.Fields(strings.ToLower(q))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Parse validates q/tld/limit/minMatch against spec.md §4.5's bounds and
// returns a Plan, or a human-readable error suitable for a 400 response.
// limitRaw and minMatchRaw are the raw query-string values; empty strings
// fall back to the defaults.
func Parse(q, tld, limitRaw, minMatchRaw string) (Plan, error) {
	if strings.TrimSpace(q) == "" {
		return Plan{}, fmt.Errorf("query parameter 'q' is required")
	}
	tokens := Tokenize(q)

	limit := DefaultLimit
	if limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed < 1 || parsed > MaxLimit {
			return Plan{}, fmt.Errorf("limit must be an integer between 1 and %d", MaxLimit)
		}
		limit = parsed
	}

	minMatch := DefaultMinMatch
	if minMatchRaw != "" {
		parsed, err := strconv.Atoi(minMatchRaw)
		if err != nil || parsed < 1 {
			return Plan{}, fmt.Errorf("min_match must be a positive integer")
		}
		minMatch = parsed
	}

	return Plan{Raw: q, Tokens: tokens, TLD: strings.ToLower(strings.TrimSpace(tld)), Limit: limit, MinMatch: minMatch}, nil
}

// OverFetchBudget is the candidate cap B the executor collects before
// re-ranking, per spec.md §4.5: max(limit*10, 500).
func OverFetchBudget(limit int) int {
	budget := limit * 10
	if budget < 500 {
		budget = 500
	}
	return budget
}
