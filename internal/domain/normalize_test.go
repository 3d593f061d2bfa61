package domain

import (
	"strings"
	"testing"
)

func TestParseSimple(t *testing.T) {
	r, err := Parse("Example.COM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Domain != "example.com" || r.Label != "example" || r.TLD != "com" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.Length != 7 || r.HasHyphen {
		t.Fatalf("unexpected derived fields: %+v", r)
	}
}

func TestParseHyphenated(t *testing.T) {
	r, err := Parse("my-domain.net\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.HasHyphen {
		t.Fatalf("expected has_hyphen true")
	}
}

func TestParseRejectsMissingDot(t *testing.T) {
	if _, err := Parse("nodot"); err == nil {
		t.Fatalf("expected error for missing dot")
	}
}

func TestParseRejectsEmptyLabel(t *testing.T) {
	if _, err := Parse(".com"); err == nil {
		t.Fatalf("expected error for empty label")
	}
}

func TestParseRejectsNonASCII(t *testing.T) {
	if _, err := Parse("münchen.de"); err == nil {
		t.Fatalf("expected error for non-ASCII input")
	}
}

func TestParseLabelLengthBoundary(t *testing.T) {
	label63 := strings.Repeat("a", 63)
	if _, err := Parse(label63 + ".com"); err != nil {
		t.Fatalf("63-char label should be accepted: %v", err)
	}
	label64 := strings.Repeat("a", 64)
	if _, err := Parse(label64 + ".com"); err == nil {
		t.Fatalf("64-char label should be rejected")
	}
}

func TestWithTokensFallback(t *testing.T) {
	r, _ := Parse("example.com")
	doc := r.WithTokens(nil)
	if len(doc.Tokens) != 1 || doc.Tokens[0] != "example" {
		t.Fatalf("expected fallback tokens [label], got %v", doc.Tokens)
	}
}

func TestShouldFilterNumeric(t *testing.T) {
	if !ShouldFilter("123456") {
		t.Fatalf("expected 6-digit numeric label to be filtered")
	}
	if ShouldFilter("12345") {
		t.Fatalf("5-digit numeric label should not be filtered")
	}
}

func TestShouldFilterRepetitive(t *testing.T) {
	if !ShouldFilter("aaaaa") {
		t.Fatalf("expected repetitive label to be filtered")
	}
	if ShouldFilter("ababa") {
		t.Fatalf("non-repetitive label should not be filtered")
	}
}

func TestShouldFilterDigitsHyphens(t *testing.T) {
	if !ShouldFilter("1-2-3") {
		t.Fatalf("expected digit/hyphen label to be filtered")
	}
	if ShouldFilter("a-1-2") {
		t.Fatalf("label starting with a letter should not be filtered")
	}
}
