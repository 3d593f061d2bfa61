package index

import (
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/domainsearch/engine/internal/index/segment"
	domainerrors "github.com/domainsearch/engine/pkg/errors"
)

// Snapshot is an immutable, point-in-time view of every live segment, the
// unit the query engine (C5) reads against. In-flight queries keep
// reading their own Snapshot even after Reader swaps in a newer one.
type Snapshot struct {
	segments     []*openSegment
	generation   int64
	totalDocs    int
	tokenSum     int64
}

// AvgDocLength is the mean token count across all live documents in this
// snapshot, the BM25 length-normalization input.
func (s *Snapshot) AvgDocLength() float64 {
	if s.totalDocs == 0 {
		return 0
	}
	return float64(s.tokenSum) / float64(s.totalDocs)
}

// TotalDocs is the live (non-tombstoned) document count.
func (s *Snapshot) TotalDocs() int { return s.totalDocs }

// SegmentCount is the number of segments backing this snapshot.
func (s *Snapshot) SegmentCount() int { return len(s.segments) }

// IndexSizeBytes is the total on-disk size of every live segment file
// backing this snapshot, for /stats' index_size_bytes field.
func (s *Snapshot) IndexSizeBytes() (int64, error) {
	var total int64
	for _, seg := range s.segments {
		size, err := seg.reader.Size()
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

// Search returns the merged posting list for term across every segment,
// with tombstoned documents excluded, sorted by domain.
func (s *Snapshot) Search(term string) (PostingList, error) {
	var out PostingList
	for _, seg := range s.segments {
		postings, err := seg.reader.Search(term)
		if err != nil {
			return nil, err
		}
		for _, p := range postings {
			ordinal, ok := seg.reader.OrdinalOf(p.Domain)
			if ok && seg.tomb.IsDeleted(ordinal) {
				continue
			}
			out = append(out, Posting{Domain: p.Domain, Freq: p.Freq})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

// Lookup returns the stored document for an exact domain match, or
// ErrNotFound if no live segment has it.
func (s *Snapshot) Lookup(domainName string) (StoredDoc, error) {
	for _, seg := range s.segments {
		ordinal, ok := seg.reader.OrdinalOf(domainName)
		if !ok || seg.tomb.IsDeleted(ordinal) {
			continue
		}
		doc, err := seg.reader.DocAt(ordinal)
		if err != nil {
			return StoredDoc{}, err
		}
		return storedDocFromSegmentDoc(doc), nil
	}
	return StoredDoc{}, domainerrors.ErrNotFound
}

func storedDocFromSegmentDoc(d segment.Doc) StoredDoc {
	return StoredDoc{Domain: d.Domain, Label: d.Label, TLD: d.TLD, Tokens: d.Tokens, Length: d.Length, HasHyphen: d.HasHyphen}
}

// Reader is the read-side handle on an index: it never takes the writer
// lock, instead polling the manifest every refresh interval and atomically
// swapping in a new Snapshot when the generation changes. This is the Go
// realization of spec.md §6's reader-snapshot requirement ("in-flight
// queries continue on the old snapshot"), via atomic.Pointer the same way
// the teacher's searcher process holds its routing state.
type Reader struct {
	dataDir string
	current atomic.Pointer[Snapshot]
	stop    chan struct{}
	logger  *slog.Logger
}

// OpenReader loads the current manifest and opens every live segment
// read-only, then starts a background goroutine that polls for manifest
// changes every refreshInterval.
func OpenReader(dataDir string, refreshInterval time.Duration) (*Reader, error) {
	r := &Reader{dataDir: dataDir, stop: make(chan struct{}), logger: slog.Default().With("component", "index-reader")}
	if err := r.refresh(); err != nil {
		return nil, err
	}
	if refreshInterval <= 0 {
		refreshInterval = 10 * time.Second
	}
	go r.pollLoop(refreshInterval)
	return r, nil
}

func (r *Reader) pollLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.refresh(); err != nil {
				r.logger.Error("snapshot refresh failed", "error", err)
			}
		case <-r.stop:
			return
		}
	}
}

func (r *Reader) refresh() error {
	man, err := loadManifest(r.dataDir)
	if err != nil {
		return err
	}
	prev := r.current.Load()
	if prev != nil && prev.generation == man.Generation() {
		return nil
	}

	reusable := make(map[string]*openSegment)
	if prev != nil {
		for _, seg := range prev.segments {
			reusable[seg.info.ID] = seg
		}
	}

	records := man.Segments()
	next := &Snapshot{generation: man.Generation(), segments: make([]*openSegment, 0, len(records))}
	var stale []*openSegment
	keep := make(map[string]struct{}, len(records))

	for _, info := range records {
		keep[info.ID] = struct{}{}
		path := r.dataDir + "/" + info.ID

		// The segment data file is immutable once written, so its reader is
		// safe to carry over across refreshes. Its tombstone bitmap is not:
		// a writer can mark a deletion against an already-committed segment
		// at any time, so the sidecar is reloaded from disk on every poll,
		// even for a segment ID this reader already has open.
		tomb, err := segment.LoadTombstones(path, info.DocCount)
		if err != nil {
			return err
		}

		if seg, ok := reusable[info.ID]; ok {
			next.segments = append(next.segments, &openSegment{info: info, reader: seg.reader, tomb: tomb})
			continue
		}
		reader, err := segment.OpenReader(path)
		if err != nil {
			return err
		}
		next.segments = append(next.segments, &openSegment{info: info, reader: reader, tomb: tomb})
	}
	if prev != nil {
		for id, seg := range reusable {
			if _, ok := keep[id]; !ok {
				stale = append(stale, seg)
			}
		}
	}

	for _, seg := range next.segments {
		next.totalDocs += seg.info.DocCount - seg.tomb.Count()
		docs, err := seg.reader.AllDocs()
		if err != nil {
			return err
		}
		for ordinal, d := range docs {
			if seg.tomb.IsDeleted(ordinal) {
				continue
			}
			next.tokenSum += int64(len(d.Tokens))
		}
	}

	r.current.Store(next)
	for _, seg := range stale {
		seg.reader.Close()
	}
	return nil
}

// Snapshot returns the current, immutable snapshot. Callers should read
// through it for the duration of one query rather than re-fetching
// mid-query.
func (r *Reader) Snapshot() *Snapshot {
	return r.current.Load()
}

// Close stops the polling goroutine and closes every open segment.
func (r *Reader) Close() error {
	close(r.stop)
	if snap := r.current.Load(); snap != nil {
		for _, seg := range snap.segments {
			seg.reader.Close()
		}
	}
	return nil
}
