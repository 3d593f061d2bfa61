package delta

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/domainsearch/engine/internal/index"
	"github.com/domainsearch/engine/internal/segmenter"
)

func newTestSegmenter(t *testing.T) *segmenter.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Labels []struct {
				ID    int    `json:"id"`
				Label string `json:"label"`
			} `json:"labels"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := struct {
			Results []struct {
				ID     int      `json:"id"`
				Label  string   `json:"label"`
				Tokens []string `json:"tokens"`
			} `json:"results"`
		}{}
		for _, l := range req.Labels {
			resp.Results = append(resp.Results, struct {
				ID     int      `json:"id"`
				Label  string   `json:"label"`
				Tokens []string `json:"tokens"`
			}{ID: l.ID, Label: l.Label, Tokens: []string{l.Label, "x"}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return segmenter.New(segmenter.Config{BaseURL: srv.URL})
}

func newTestEngine(t *testing.T) *index.Engine {
	t.Helper()
	e, err := index.Open(index.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("opening test engine: %v", err)
	}
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

func lines(ctx context.Context, values ...string) <-chan string {
	ch := make(chan string, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func TestApplyAdditionsIndexesValidDomains(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := New(e, newTestSegmenter(t), nil, 10)

	stats, err := a.ApplyAdditions(ctx, lines(ctx, "Example.com", "other.net"))
	if err != nil {
		t.Fatalf("apply additions failed: %v", err)
	}
	if stats.Added != 2 {
		t.Fatalf("expected 2 added, got %+v", stats)
	}
	if err := a.Commit(ctx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if got := e.Stats().DocumentCount; got != 2 {
		t.Fatalf("expected 2 documents in index, got %d", got)
	}
}

func TestApplyAdditionsFiltersAndRejects(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := New(e, newTestSegmenter(t), nil, 10)

	// "123456" is all-digit noise (filtered); "nodot" has no TLD separator
	// (rejected at parse time, skipped within applyBatch and counted as
	// rejected by ApplyAdditions).
	stats, err := a.ApplyAdditions(ctx, lines(ctx, "good.com", "123456.com", "nodot"))
	if err != nil {
		t.Fatalf("apply additions failed: %v", err)
	}
	if stats.Added != 1 || stats.Filtered != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestApplyDeletionsRemovesDocument(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := New(e, newTestSegmenter(t), nil, 10)

	if _, err := a.ApplyAdditions(ctx, lines(ctx, "example.com")); err != nil {
		t.Fatalf("apply additions failed: %v", err)
	}
	if err := a.Commit(ctx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	delStats, err := a.ApplyDeletions(ctx, lines(ctx, "example.com"))
	if err != nil {
		t.Fatalf("apply deletions failed: %v", err)
	}
	if delStats.Deleted != 1 {
		t.Fatalf("expected 1 deleted, got %+v", delStats)
	}
	if err := a.Commit(ctx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if got := e.Stats().DocumentCount; got != 0 {
		t.Fatalf("expected 0 documents after delete, got %d", got)
	}
}

func TestApplyDeletionWinsOverAdditionInSameRun(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := New(e, newTestSegmenter(t), nil, 10)

	if _, err := a.ApplyAdditions(ctx, lines(ctx, "stale.com")); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}
	if err := a.Commit(ctx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// stale.com appears in both the additions and deletions channel of the
	// same run; fresh.com only in additions. Deletion must win: stale.com
	// ends up absent, fresh.com present.
	stats, err := a.Apply(ctx, lines(ctx, "stale.com", "fresh.com"), lines(ctx, "stale.com"))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if stats.Added != 2 || stats.Deleted != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if got := e.Stats().DocumentCount; got != 1 {
		t.Fatalf("expected 1 live document (stale.com deleted), got %d", got)
	}
}

type fakeInvalidator struct{ called int }

func (f *fakeInvalidator) Invalidate(ctx context.Context) error {
	f.called++
	return nil
}

func TestCommitInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	inv := &fakeInvalidator{}
	a := New(e, newTestSegmenter(t), inv, 10)

	if _, err := a.ApplyAdditions(ctx, lines(ctx, "example.com")); err != nil {
		t.Fatalf("apply additions failed: %v", err)
	}
	if err := a.Commit(ctx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if inv.called != 1 {
		t.Fatalf("expected cache invalidation to be called once, got %d", inv.called)
	}
}
