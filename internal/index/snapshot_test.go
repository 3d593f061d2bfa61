package index

import (
	"context"
	"testing"
	"time"

	"github.com/domainsearch/engine/internal/domain"
)

// TestReaderRefreshObservesDeleteAgainstAlreadyOpenSegment guards against a
// reader that reuses a segment's tombstone bitmap across refreshes instead
// of reloading it: a delete committed by a separate writer process against
// a segment the reader already has open must still disappear from search
// results after the next poll, with no process restart required.
func TestReaderRefreshObservesDeleteAgainstAlreadyOpenSegment(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer e.Close(ctx)

	doc := domain.Document{Domain: "stale.com", Label: "stale", TLD: "com", Tokens: []string{"stale"}, Length: 5}
	if err := e.AddDocument(ctx, doc); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	reader, err := OpenReader(dir, time.Hour)
	if err != nil {
		t.Fatalf("opening reader failed: %v", err)
	}
	defer reader.Close()

	snap := reader.Snapshot()
	if snap.SegmentCount() != 1 {
		t.Fatalf("expected 1 segment, got %d", snap.SegmentCount())
	}
	if _, err := snap.Lookup("stale.com"); err != nil {
		t.Fatalf("expected stale.com to be live before delete, got %v", err)
	}

	if err := e.Delete(ctx, "stale.com"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// The reader already has this segment open from the first refresh; a
	// second refresh must still pick up the tombstone the writer just
	// persisted against it, not the stale in-memory bitmap.
	if err := reader.refresh(); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	snap = reader.Snapshot()
	if snap.SegmentCount() != 1 {
		t.Fatalf("expected the same 1 segment to still be open, got %d", snap.SegmentCount())
	}
	if _, err := snap.Lookup("stale.com"); err == nil {
		t.Fatalf("expected stale.com to be deleted after refresh, but it is still live")
	}
	if snap.TotalDocs() != 0 {
		t.Fatalf("expected 0 live documents after delete, got %d", snap.TotalDocs())
	}
}
