package cache

import (
	"context"
	"testing"
)

func TestSearchKeyDeterministicForSameTokens(t *testing.T) {
	k1 := SearchKey([]string{"bar", "foo"}, "com", 50, 1)
	k2 := SearchKey([]string{"bar", "foo"}, "com", 50, 1)
	if k1 != k2 {
		t.Fatalf("expected identical keys for identical inputs, got %s vs %s", k1, k2)
	}
}

func TestSearchKeyDiffersOnTLD(t *testing.T) {
	k1 := SearchKey([]string{"foo"}, "com", 50, 1)
	k2 := SearchKey([]string{"foo"}, "net", 50, 1)
	if k1 == k2 {
		t.Fatalf("expected different keys for different tld facets")
	}
}

func TestExactKeyDeterministic(t *testing.T) {
	if ExactKey("example.com") != ExactKey("example.com") {
		t.Fatalf("expected deterministic exact key")
	}
	if ExactKey("example.com") == ExactKey("example.net") {
		t.Fatalf("expected different keys for different domains")
	}
}

func TestGetOrComputeWithNilCacheAlwaysComputes(t *testing.T) {
	var c *Cache
	calls := 0
	compute := func() (string, error) {
		calls++
		return "value", nil
	}
	v, hit, err := GetOrCompute(context.Background(), c, "key", compute)
	if err != nil || hit || v != "value" {
		t.Fatalf("unexpected result: v=%q hit=%v err=%v", v, hit, err)
	}
	if _, _, _ = GetOrCompute(context.Background(), c, "key", compute); calls != 2 {
		t.Fatalf("expected a nil cache to recompute every call, got %d calls", calls)
	}
}
