// Package index implements the Index Writer (C3): a single-writer,
// segment-based inverted index with crash-safe atomic commits. It
// generalizes the teacher's internal/indexer engine+MemoryIndex+segment
// pipeline (append-only, no deletes, single term dictionary) to this
// domain's requirements: three stored fields beyond the postings, a
// domain-exact dictionary, per-segment tombstone bitmaps for deletes, and
// a tiered merge policy with a bounded fan-in.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/domainsearch/engine/internal/domain"
	"github.com/domainsearch/engine/internal/index/segment"
	domainerrors "github.com/domainsearch/engine/pkg/errors"
)

// openSegment pairs a manifest record with its live reader and tombstone
// bitmap, kept open for the engine's lifetime so deletes and merges don't
// repeatedly pay file-open cost.
type openSegment struct {
	info   segmentInfo
	reader *segment.Reader
	tomb   *segment.Tombstones
}

// Engine is the writer-side handle on one index: it owns the exclusive
// writer lock, the in-memory write buffer, and every open segment reader
// needed to route deletes and drive merges.
type Engine struct {
	mu sync.Mutex

	dataDir    string
	lock       *fileLock
	mem        *memtable
	man        *manifest
	ramBudget  int64
	mergeFanIn int
	logger     *slog.Logger

	segments []*openSegment
	closed   bool
}

// Config controls Engine behavior; zero values fall back to spec.md
// defaults (INDEX_HEAP_SIZE's byte budget and a fan-in of 10).
type Config struct {
	DataDir        string
	RAMBudgetBytes int64
	MergeFanIn     int
}

// Open acquires the single-writer lock on dataDir, loads its manifest, and
// opens every live segment. It returns ErrWriterLocked if another writer
// process already holds the lock.
func Open(cfg Config) (*Engine, error) {
	if cfg.RAMBudgetBytes <= 0 {
		cfg.RAMBudgetBytes = 4 << 30
	}
	if cfg.MergeFanIn <= 0 {
		cfg.MergeFanIn = 10
	}

	lock := newFileLock(cfg.DataDir)
	if err := lock.TryLock(); err != nil {
		return nil, err
	}

	man, err := loadManifest(cfg.DataDir)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	e := &Engine{
		dataDir:    cfg.DataDir,
		lock:       lock,
		mem:        newMemtable(),
		man:        man,
		ramBudget:  cfg.RAMBudgetBytes,
		mergeFanIn: cfg.MergeFanIn,
		logger:     slog.Default().With("component", "index-writer"),
	}
	if err := e.openAllSegments(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return e, nil
}

func (e *Engine) segmentPath(id string) string {
	return e.dataDir + "/" + id
}

func (e *Engine) openAllSegments() error {
	for _, info := range e.man.Segments() {
		path := e.segmentPath(info.ID)
		reader, err := segment.OpenReader(path)
		if err != nil {
			return fmt.Errorf("opening segment %s: %w", info.ID, err)
		}
		tomb, err := segment.LoadTombstones(path, info.DocCount)
		if err != nil {
			reader.Close()
			return fmt.Errorf("loading tombstones for segment %s: %w", info.ID, err)
		}
		e.segments = append(e.segments, &openSegment{info: info, reader: reader, tomb: tomb})
	}
	return nil
}

// AddDocument buffers doc in the memtable, normalizing its RAM accounting
// against the configured budget. AddDocument flushes the memtable itself
// once the budget is reached; callers otherwise call Flush when convenient
// (typically after a batch).
//
// Any live copy of doc.Domain already on disk is tombstoned first, the
// same cross-segment lookup Delete uses: replaying an add for a domain
// that was flushed in an earlier segment must not leave two live copies
// behind, or Snapshot.Search would return the domain twice.
func (e *Engine) AddDocument(ctx context.Context, doc domain.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domainerrors.ErrIndexClosed
	}
	if err := e.tombstoneOnDiskLocked(doc.Domain); err != nil {
		return err
	}
	e.mem.AddDocument(doc)
	if e.mem.Size() >= e.ramBudget {
		return e.flushLocked(ctx)
	}
	return nil
}

// tombstoneOnDiskLocked marks domainName deleted in every on-disk segment
// that still has it live, bumping the manifest generation if any segment
// was actually touched. Shared by AddDocument (replace-on-add) and Delete.
func (e *Engine) tombstoneOnDiskLocked(domainName string) error {
	propagated := false
	for _, seg := range e.segments {
		ordinal, ok := seg.reader.OrdinalOf(domainName)
		if !ok || seg.tomb.IsDeleted(ordinal) {
			continue
		}
		seg.tomb.Delete(ordinal)
		if err := seg.tomb.Save(); err != nil {
			return fmt.Errorf("persisting tombstone for segment %s: %w", seg.info.ID, err)
		}
		propagated = true
	}
	if propagated {
		e.man.BumpGeneration()
		if err := e.man.Save(); err != nil {
			return fmt.Errorf("committing manifest after tombstone propagation: %w", err)
		}
	}
	return nil
}

// Delete removes domainName from the live index: from the memtable if it
// is still buffered there, and from every on-disk segment that contains
// it via that segment's tombstone bitmap. A tombstone written here against
// an already-committed segment bumps the manifest generation immediately,
// so a reader polling for changes notices the deletion without waiting for
// a later flush to report anything new.
func (e *Engine) Delete(ctx context.Context, domainName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domainerrors.ErrIndexClosed
	}
	e.mem.Delete(domainName)
	return e.tombstoneOnDiskLocked(domainName)
}

// Flush forces the current memtable to disk as a new immutable segment and
// commits the updated manifest atomically. It is a no-op if the memtable
// is empty.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domainerrors.ErrIndexClosed
	}
	return e.flushLocked(ctx)
}

func (e *Engine) flushLocked(ctx context.Context) error {
	if e.mem.Empty() {
		return nil
	}
	terms, docs, tombstones := e.mem.Snapshot()

	// Pure deletes (no matching add in this batch) must be propagated to
	// existing on-disk segments before the memtable is cleared, so a
	// delete-then-restart never loses a tombstone.
	tombstonesPropagated := false
	for _, domainName := range tombstones {
		for _, seg := range e.segments {
			ordinal, ok := seg.reader.OrdinalOf(domainName)
			if !ok || seg.tomb.IsDeleted(ordinal) {
				continue
			}
			seg.tomb.Delete(ordinal)
			if err := seg.tomb.Save(); err != nil {
				return fmt.Errorf("persisting tombstone for segment %s: %w", seg.info.ID, err)
			}
			tombstonesPropagated = true
		}
	}

	if len(docs) == 0 {
		// A deletions-only flush writes no new segment, but if any tombstone
		// was just propagated, readers still need a generation change to
		// notice it: without this, Reader.refresh's generation-gate never
		// even attempts a re-poll after a pure-deletion commit.
		if tombstonesPropagated {
			e.man.BumpGeneration()
			if err := e.man.Save(); err != nil {
				return fmt.Errorf("committing manifest after tombstone propagation: %w", err)
			}
		}
		e.mem = newMemtable()
		return nil
	}

	segTerms := make([]segment.TermEntry, len(terms))
	for i, t := range terms {
		postings := make([]segment.Posting, len(t.Postings))
		for j, p := range t.Postings {
			postings[j] = segment.Posting{Domain: p.Domain, Freq: p.Freq}
		}
		segTerms[i] = segment.TermEntry{Term: t.Term, Postings: postings}
	}
	segDocs := make([]segment.Doc, len(docs))
	for i, d := range docs {
		segDocs[i] = segment.Doc{
			Domain: d.Domain, Label: d.Label, TLD: d.TLD,
			Tokens: d.Tokens, Length: d.Length, HasHyphen: d.HasHyphen,
		}
	}

	writer := segment.NewWriter(e.dataDir)
	info, err := writer.Write(segTerms, segDocs)
	if err != nil {
		return fmt.Errorf("flushing memtable to segment: %w", err)
	}

	reader, err := segment.OpenReader(e.segmentPath(info.ID))
	if err != nil {
		return fmt.Errorf("opening freshly written segment %s: %w", info.ID, err)
	}
	tomb, err := segment.LoadTombstones(e.segmentPath(info.ID), info.DocCount)
	if err != nil {
		reader.Close()
		return fmt.Errorf("loading tombstones for freshly written segment %s: %w", info.ID, err)
	}

	rec := segmentInfo{ID: info.ID, DocCount: info.DocCount, TermCount: info.TermCount, CreatedAt: info.CreatedAt}
	e.man.AppendSegment(rec)
	if err := e.man.Save(); err != nil {
		return fmt.Errorf("committing manifest: %w", err)
	}

	e.segments = append(e.segments, &openSegment{info: rec, reader: reader, tomb: tomb})
	e.mem = newMemtable()
	e.logger.Info("flushed segment", "segment", info.ID, "docs", info.DocCount, "terms", info.TermCount)
	return nil
}

// Stats summarizes the index for spec.md's /health, /stats, and stats
// CLI command.
type Stats struct {
	DocumentCount int
	SegmentCount  int
	Generation    int64
}

// Stats reports live document and segment counts, excluding tombstoned
// documents.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	count := e.mem.DocCount()
	for _, seg := range e.segments {
		count += seg.info.DocCount - seg.tomb.Count()
	}
	return Stats{DocumentCount: count, SegmentCount: len(e.segments), Generation: e.man.Generation()}
}

// Close flushes any buffered documents, closes every open segment reader,
// and releases the writer lock.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if err := e.flushLocked(ctx); err != nil {
		return err
	}
	for _, seg := range e.segments {
		seg.reader.Close()
	}
	e.closed = true
	return e.lock.Unlock()
}

// sortedSegmentsBySize orders segments smallest-first (by live-at-write-time
// doc count), breaking ties oldest-first, so the merge policy in merge.go
// can walk from the small end and merge oldest-first within a size tier.
func sortedSegmentsBySize(segments []*openSegment) []*openSegment {
	out := make([]*openSegment, len(segments))
	copy(out, segments)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].info.DocCount != out[j].info.DocCount {
			return out[i].info.DocCount < out[j].info.DocCount
		}
		return out[i].info.CreatedAt < out[j].info.CreatedAt
	})
	return out
}
