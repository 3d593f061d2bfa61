package index

import (
	"context"
	"testing"

	"github.com/domainsearch/engine/internal/domain"
)

func TestEngineOptimizeMergesSegmentsDown(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := Open(Config{DataDir: dir, MergeFanIn: 10})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer e.Close(ctx)

	domains := []string{"alpha.com", "beta.com", "gamma.com"}
	for _, d := range domains {
		if err := e.AddDocument(ctx, domain.Document{Domain: d, Label: d[:len(d)-4], TLD: "com", Tokens: []string{d[:len(d)-4]}, Length: len(d) - 4}); err != nil {
			t.Fatalf("add %s failed: %v", d, err)
		}
		if err := e.Flush(ctx); err != nil {
			t.Fatalf("flush after %s failed: %v", d, err)
		}
	}
	if stats := e.Stats(); stats.SegmentCount != 3 || stats.DocumentCount != 3 {
		t.Fatalf("expected 3 segments with 3 live docs before optimize, got %+v", stats)
	}

	if err := e.Delete(ctx, "beta.com"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if err := e.Optimize(ctx); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	stats := e.Stats()
	if stats.SegmentCount != 1 {
		t.Fatalf("expected optimize to merge down to 1 segment, got %d", stats.SegmentCount)
	}
	if stats.DocumentCount != 2 {
		t.Fatalf("expected 2 live documents surviving the merge (beta.com tombstoned), got %d", stats.DocumentCount)
	}
}

func TestEngineOptimizeCollapsesMoreSegmentsThanFanIn(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := Open(Config{DataDir: dir, MergeFanIn: 3})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer e.Close(ctx)

	const segmentCount = 7
	for i := 0; i < segmentCount; i++ {
		label := "seg" + string(rune('a'+i))
		d := label + ".com"
		if err := e.AddDocument(ctx, domain.Document{Domain: d, Label: label, TLD: "com", Tokens: []string{label}, Length: len(label)}); err != nil {
			t.Fatalf("add %s failed: %v", d, err)
		}
		if err := e.Flush(ctx); err != nil {
			t.Fatalf("flush after %s failed: %v", d, err)
		}
	}
	if stats := e.Stats(); stats.SegmentCount != segmentCount {
		t.Fatalf("expected %d segments before optimize, got %d", segmentCount, stats.SegmentCount)
	}

	// With MergeFanIn 3 and 7 segments, a single batching pass only
	// collapses to ceil(7/3) = 3 segments. Optimize must keep passing
	// until exactly one segment remains, per its forced-full-compaction
	// contract.
	if err := e.Optimize(ctx); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	stats := e.Stats()
	if stats.SegmentCount != 1 {
		t.Fatalf("expected optimize to collapse %d segments down to 1 despite MergeFanIn 3, got %d", segmentCount, stats.SegmentCount)
	}
	if stats.DocumentCount != segmentCount {
		t.Fatalf("expected all %d documents to survive the merge, got %d", segmentCount, stats.DocumentCount)
	}
}

func TestEngineOptimizeNoOpBelowTwoSegments(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer e.Close(ctx)

	if err := e.AddDocument(ctx, domain.Document{Domain: "solo.com", Label: "solo", TLD: "com", Tokens: []string{"solo"}, Length: 4}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := e.Optimize(ctx); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}
	if stats := e.Stats(); stats.SegmentCount != 1 || stats.DocumentCount != 1 {
		t.Fatalf("expected single-segment no-op optimize, got %+v", stats)
	}
}
