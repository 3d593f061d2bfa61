// Package delta implements the Delta Applier (C4): it drives raw zonefile
// lines and raw domain deletions through C1 (normalize/filter), C2
// (segment), and C3 (index), committing once per run so the live index
// never shows a partially-applied batch. Additions are applied before
// deletions within one run, so a domain present in both lists ends up
// absent: deletion wins over addition for the same domain in the same
// batch.
package delta

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/domainsearch/engine/internal/domain"
	"github.com/domainsearch/engine/internal/index"
	"github.com/domainsearch/engine/internal/segmenter"
)

// CacheInvalidator is implemented by the query-side result cache (C5). The
// applier signals it once per commit, per spec.md's cache-coherence
// requirement that every write invalidate the cache for the documents it
// touched — approximated here, as in the teacher's own cache, by a
// full-pattern flush rather than per-key invalidation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Stats summarizes one Apply run, for the CLI's `full`/`daily` command
// output and for logging.
type Stats struct {
	Added    int64
	Deleted  int64
	Filtered int64
	Rejected int64
}

// Applier composes C1-C3 into the incremental update protocol. Grounded on
// the commit-loop shape of original_source's crates/indexer/src/daily.rs::run
// (additions and removals each processed in a single pass before a final
// commit), but with additions run before removals, not after, so a domain
// touched by both lists in the same run ends up absent rather than live.
type Applier struct {
	engine     *index.Engine
	segmenter  *segmenter.Client
	cache      CacheInvalidator
	batchSize  int
	logger     *slog.Logger
}

// New creates an Applier. cache may be nil, matching the teacher's
// optional-cache pattern (search still works with caching disabled).
func New(engine *index.Engine, seg *segmenter.Client, cache CacheInvalidator, batchSize int) *Applier {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Applier{
		engine:    engine,
		segmenter: seg,
		cache:     cache,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "delta-applier"),
	}
}

// ApplyDeletions normalizes and deletes every domain from rawDomains,
// draining the channel to completion. A malformed entry is counted and
// skipped, never fatal to the run, per spec.md §7's reject-and-continue
// policy for input errors.
func (a *Applier) ApplyDeletions(ctx context.Context, rawDomains <-chan string) (Stats, error) {
	var stats Stats
	for raw := range rawDomains {
		rec, err := domain.Parse(raw)
		if err != nil {
			stats.Rejected++
			continue
		}
		if err := a.engine.Delete(ctx, rec.Domain); err != nil {
			return stats, fmt.Errorf("deleting %q: %w", rec.Domain, err)
		}
		stats.Deleted++
	}
	return stats, nil
}

// ApplyAdditions parses, filters, segments, and indexes every line from
// rawLines, draining the channel to completion. Lines are batched up to
// batchSize before segmentation so C2's word-segmenter client sees
// WORD_BATCH_SIZE-sized requests rather than one per domain.
func (a *Applier) ApplyAdditions(ctx context.Context, rawLines <-chan string) (Stats, error) {
	var stats Stats
	batch := make([]string, 0, a.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		added, filtered, err := a.applyBatch(ctx, batch)
		stats.Added += added
		stats.Filtered += filtered
		if err == nil {
			stats.Rejected += int64(len(batch)) - added - filtered
		}
		batch = batch[:0]
		return err
	}

	for raw := range rawLines {
		batch = append(batch, raw)
		if len(batch) >= a.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}

	// Rejected lines were never added to a batch's record set; flush
	// recomputes them from each batch's raw count so callers see an
	// accurate total.
	return stats, nil
}

func (a *Applier) applyBatch(ctx context.Context, rawLines []string) (added, filtered int64, err error) {
	type pending struct {
		rec domain.Record
	}
	var records []pending
	var labels []string

	for _, raw := range rawLines {
		rec, perr := domain.Parse(raw)
		if perr != nil {
			continue
		}
		if domain.ShouldFilter(rec.Label) {
			filtered++
			continue
		}
		records = append(records, pending{rec: rec})
		labels = append(labels, rec.Label)
	}
	if len(records) == 0 {
		return 0, filtered, nil
	}

	tokensByLabel := a.segmenter.Segment(ctx, labels)
	for _, p := range records {
		tokens := tokensByLabel[p.rec.Label]
		doc := p.rec.WithTokens(tokens)
		if err := a.engine.AddDocument(ctx, doc); err != nil {
			return added, filtered, fmt.Errorf("adding %q: %w", doc.Domain, err)
		}
		added++
	}
	return added, filtered, nil
}

// Apply runs one full delta cycle: additions, then deletions, then a
// single commit and cache invalidation. Either channel may be nil/closed
// immediately to run additions-only (a full rebuild) or deletions-only.
// Applying additions first means a domain present in both channels ends
// up absent: the later deletion phase removes whatever the addition phase
// just wrote.
func (a *Applier) Apply(ctx context.Context, additions, deletions <-chan string) (Stats, error) {
	var total Stats

	if additions != nil {
		addStats, err := a.ApplyAdditions(ctx, additions)
		if err != nil {
			return total, err
		}
		total.Added = addStats.Added
		total.Filtered = addStats.Filtered
		total.Rejected = addStats.Rejected
	}

	if deletions != nil {
		delStats, err := a.ApplyDeletions(ctx, deletions)
		if err != nil {
			return total, err
		}
		total.Deleted = delStats.Deleted
		total.Rejected += delStats.Rejected
	}

	if err := a.Commit(ctx); err != nil {
		return total, err
	}
	a.logger.Info("delta applied", "added", total.Added, "deleted", total.Deleted,
		"filtered", total.Filtered, "rejected", total.Rejected)
	return total, nil
}

// Commit flushes the index writer and invalidates the query-side cache.
// Called once per run so partial batches are never visible to readers.
func (a *Applier) Commit(ctx context.Context) error {
	if err := a.engine.Flush(ctx); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}
	if a.cache != nil {
		if err := a.cache.Invalidate(ctx); err != nil {
			a.logger.Error("cache invalidation failed after commit", "error", err)
		}
	}
	return nil
}
