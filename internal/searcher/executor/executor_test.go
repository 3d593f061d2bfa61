package executor

import (
	"context"
	"testing"
	"time"

	"github.com/domainsearch/engine/internal/domain"
	"github.com/domainsearch/engine/internal/index"
	"github.com/domainsearch/engine/internal/searcher/query"
)

func newTestExecutor(t *testing.T, docs ...domain.Document) (*Executor, func()) {
	t.Helper()
	dir := t.TempDir()
	e, err := index.Open(index.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("opening engine: %v", err)
	}
	ctx := context.Background()
	for _, d := range docs {
		if err := e.AddDocument(ctx, d); err != nil {
			t.Fatalf("adding document: %v", err)
		}
	}
	if err := e.Flush(ctx); err != nil {
		t.Fatalf("flushing: %v", err)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatalf("closing writer: %v", err)
	}

	reader, err := index.OpenReader(dir, time.Hour)
	if err != nil {
		t.Fatalf("opening reader: %v", err)
	}
	t.Cleanup(func() { reader.Close() })
	return New(reader), func() {}
}

func TestExecutorSearchMatchCount(t *testing.T) {
	exec, _ := newTestExecutor(t,
		domain.Document{Domain: "middleofnight.com", Label: "middleofnight", TLD: "com", Tokens: []string{"middle", "of", "night"}, Length: 13},
	)

	result, err := exec.Search(context.Background(), query.Plan{Raw: "middle night", Tokens: []string{"middle", "night"}, Limit: 10, MinMatch: 2})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].Domain != "middleofnight.com" || result.Results[0].MatchCount != 2 {
		t.Fatalf("unexpected result: %+v", result.Results)
	}

	result, err = exec.Search(context.Background(), query.Plan{Raw: "middle night", Tokens: []string{"middle", "night"}, Limit: 10, MinMatch: 3})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(result.Results) != 0 {
		t.Fatalf("expected no results for min_match 3, got %+v", result.Results)
	}
}

func TestExecutorSearchTLDFacet(t *testing.T) {
	exec, _ := newTestExecutor(t,
		domain.Document{Domain: "cloud.com", Label: "cloud", TLD: "com", Tokens: []string{"cloud"}, Length: 5},
		domain.Document{Domain: "cloud.net", Label: "cloud", TLD: "net", Tokens: []string{"cloud"}, Length: 5},
	)

	result, err := exec.Search(context.Background(), query.Plan{Raw: "cloud", Tokens: []string{"cloud"}, TLD: "net", Limit: 10, MinMatch: 1})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].TLD != "net" {
		t.Fatalf("unexpected result: %+v", result.Results)
	}
}

func TestExecutorExact(t *testing.T) {
	exec, _ := newTestExecutor(t,
		domain.Document{Domain: "example.com", Label: "example", TLD: "com", Tokens: []string{"example"}, Length: 7},
	)

	found, err := exec.Exact(context.Background(), "example.com")
	if err != nil || !found.Found {
		t.Fatalf("expected found=true, got %+v err=%v", found, err)
	}

	missing, err := exec.Exact(context.Background(), "nope.com")
	if err != nil || missing.Found {
		t.Fatalf("expected found=false, got %+v err=%v", missing, err)
	}
}

func TestExecutorSearchNoTokensReturnsEmpty(t *testing.T) {
	exec, _ := newTestExecutor(t, domain.Document{Domain: "example.com", Label: "example", TLD: "com", Tokens: []string{"example"}, Length: 7})

	result, err := exec.Search(context.Background(), query.Plan{Raw: "", Tokens: nil, Limit: 10, MinMatch: 1})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(result.Results) != 0 {
		t.Fatalf("expected empty results for empty token set, got %+v", result.Results)
	}
}
