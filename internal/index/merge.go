package index

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/domainsearch/engine/internal/index/segment"
	domainerrors "github.com/domainsearch/engine/pkg/errors"
)

// Optimize runs the tiered merge policy to a forced full compaction: it
// repeatedly groups the live segments into batches of at most mergeFanIn,
// oldest-first, merging each batch into one new segment, until at most one
// segment remains. With more live segments than mergeFanIn, a single pass
// only reduces the count by roughly that factor, so Optimize loops passes
// rather than stopping after one. A merge is crash-safe — the new segment
// is fully written and the manifest commit to reference it lands before
// any old segment file is unlinked, so a crash mid-merge leaves the old
// segments (still referenced by the last-committed manifest) as the
// recovered state, never a gap.
func (e *Engine) Optimize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domainerrors.ErrIndexClosed
	}
	if err := e.flushLocked(ctx); err != nil {
		return err
	}

	var totalMerges int
	for len(e.segments) > 1 {
		live, removed, merges, err := e.mergePass(e.segments)
		if err != nil {
			return fmt.Errorf("merging segment batch: %w", err)
		}
		if merges == 0 {
			break
		}
		totalMerges += merges

		records := make([]segmentInfo, len(live))
		for i, seg := range live {
			records[i] = seg.info
		}
		e.man.CommitSegments(records)
		if err := e.man.Save(); err != nil {
			return fmt.Errorf("committing manifest after merge: %w", err)
		}

		e.segments = live
		for _, seg := range removed {
			seg.reader.Close()
			_ = seg.tomb.Remove()
			if err := os.Remove(e.segmentPath(seg.info.ID)); err != nil && !os.IsNotExist(err) {
				e.logger.Warn("failed to remove merged-away segment", "segment", seg.info.ID, "error", err)
			}
		}
	}
	if totalMerges > 0 {
		e.logger.Info("optimize complete", "merge_batches", totalMerges, "live_segments", len(e.segments))
	}
	return nil
}

// mergePass runs a single batching pass over segments: groups them into
// batches of at most mergeFanIn, oldest/smallest-first, and merges every
// batch of two or more into one new segment. It reports the resulting live
// set, the segments merged away, and how many batches were merged, without
// mutating e.segments or the manifest itself.
func (e *Engine) mergePass(segments []*openSegment) (live, removed []*openSegment, merges int, err error) {
	ordered := sortedSegmentsBySize(segments)
	var remaining []*openSegment
	var merged []*openSegment

	for i := 0; i < len(ordered); i += e.mergeFanIn {
		batch := ordered[i:min(i+e.mergeFanIn, len(ordered))]
		if len(batch) < 2 {
			remaining = append(remaining, batch...)
			continue
		}
		newSeg, err := e.mergeBatch(batch)
		if err != nil {
			return nil, nil, 0, err
		}
		merged = append(merged, newSeg)
	}

	if len(merged) == 0 {
		return segments, nil, 0, nil
	}

	live = append(remaining, merged...)
	removed = mergedAwaySegments(segments, live)
	return live, removed, len(merged), nil
}

func (e *Engine) mergeBatch(batch []*openSegment) (*openSegment, error) {
	docsByDomain := make(map[string]segment.Doc)
	for _, seg := range batch {
		docs, err := seg.reader.AllDocs()
		if err != nil {
			return nil, err
		}
		for ordinal, d := range docs {
			if seg.tomb.IsDeleted(ordinal) {
				continue
			}
			if _, exists := docsByDomain[d.Domain]; !exists {
				docsByDomain[d.Domain] = d
			}
		}
	}

	mergedDocs := make([]segment.Doc, 0, len(docsByDomain))
	for _, d := range docsByDomain {
		mergedDocs = append(mergedDocs, d)
	}
	sort.Slice(mergedDocs, func(i, j int) bool { return mergedDocs[i].Domain < mergedDocs[j].Domain })

	postingsByTerm := make(map[string]map[string]segment.Posting)
	for _, seg := range batch {
		terms, err := seg.reader.AllTerms()
		if err != nil {
			return nil, err
		}
		for _, t := range terms {
			for _, p := range t.Postings {
				if _, live := docsByDomain[p.Domain]; !live {
					continue
				}
				bucket, ok := postingsByTerm[t.Term]
				if !ok {
					bucket = make(map[string]segment.Posting)
					postingsByTerm[t.Term] = bucket
				}
				bucket[p.Domain] = p
			}
		}
	}

	mergedTerms := make([]segment.TermEntry, 0, len(postingsByTerm))
	for term, bucket := range postingsByTerm {
		postings := make([]segment.Posting, 0, len(bucket))
		for _, p := range bucket {
			postings = append(postings, p)
		}
		sort.Slice(postings, func(i, j int) bool { return postings[i].Domain < postings[j].Domain })
		mergedTerms = append(mergedTerms, segment.TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(mergedTerms, func(i, j int) bool { return mergedTerms[i].Term < mergedTerms[j].Term })

	writer := segment.NewWriter(e.dataDir)
	info, err := writer.Write(mergedTerms, mergedDocs)
	if err != nil {
		return nil, fmt.Errorf("writing merged segment: %w", err)
	}
	reader, err := segment.OpenReader(e.segmentPath(info.ID))
	if err != nil {
		return nil, fmt.Errorf("opening merged segment: %w", err)
	}
	tomb, err := segment.LoadTombstones(e.segmentPath(info.ID), info.DocCount)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("loading tombstones for merged segment: %w", err)
	}
	rec := segmentInfo{ID: info.ID, DocCount: info.DocCount, TermCount: info.TermCount, CreatedAt: info.CreatedAt}
	return &openSegment{info: rec, reader: reader, tomb: tomb}, nil
}

func mergedAwaySegments(before, after []*openSegment) []*openSegment {
	keep := make(map[string]struct{}, len(after))
	for _, seg := range after {
		keep[seg.info.ID] = struct{}{}
	}
	var removed []*openSegment
	for _, seg := range before {
		if _, ok := keep[seg.info.ID]; !ok {
			removed = append(removed, seg)
		}
	}
	return removed
}
