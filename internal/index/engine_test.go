package index

import (
	"context"
	"testing"

	"github.com/domainsearch/engine/internal/domain"
)

func TestEngineFlushAndReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e, err := Open(Config{DataDir: dir, RAMBudgetBytes: 1 << 30})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := e.AddDocument(ctx, domain.Document{Domain: "example.com", Label: "example", TLD: "com", Tokens: []string{"example"}, Length: 7}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	stats := e.Stats()
	if stats.DocumentCount != 1 || stats.SegmentCount != 1 {
		t.Fatalf("unexpected stats after flush: %+v", stats)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	e2, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer e2.Close(ctx)
	if got := e2.Stats().DocumentCount; got != 1 {
		t.Fatalf("expected 1 document after reopen, got %d", got)
	}
}

func TestEngineSecondWriterRejected(t *testing.T) {
	dir := t.TempDir()
	e1, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	defer e1.Close(context.Background())

	if _, err := Open(Config{DataDir: dir}); err == nil {
		t.Fatalf("expected second Open to fail while the first writer holds the lock")
	}
}

func TestEngineDeletePropagatesToSegment(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer e.Close(ctx)

	if err := e.AddDocument(ctx, domain.Document{Domain: "example.com", Label: "example", TLD: "com", Tokens: []string{"example"}, Length: 7}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if err := e.Delete(ctx, "example.com"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got := e.Stats().DocumentCount; got != 0 {
		t.Fatalf("expected 0 live documents after delete, got %d", got)
	}
}

// TestEngineReplayingAddIsIdempotent guards the S4 idempotence property:
// adding a domain that already has a live copy in an earlier, already
// flushed segment must tombstone that copy rather than leaving two live
// postings for the same domain across segments.
func TestEngineReplayingAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer e.Close(ctx)

	doc := domain.Document{Domain: "repeat.com", Label: "repeat", TLD: "com", Tokens: []string{"repeat"}, Length: 6}
	if err := e.AddDocument(ctx, doc); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Fatalf("first flush failed: %v", err)
	}
	if stats := e.Stats(); stats.SegmentCount != 1 || stats.DocumentCount != 1 {
		t.Fatalf("expected 1 segment with 1 document after first flush, got %+v", stats)
	}

	if err := e.AddDocument(ctx, doc); err != nil {
		t.Fatalf("replayed add failed: %v", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Fatalf("second flush failed: %v", err)
	}

	stats := e.Stats()
	if stats.SegmentCount != 2 {
		t.Fatalf("expected the replay to write a second segment, got %d", stats.SegmentCount)
	}
	if stats.DocumentCount != 1 {
		t.Fatalf("expected the replayed add to leave exactly 1 live document, got %d", stats.DocumentCount)
	}
}
