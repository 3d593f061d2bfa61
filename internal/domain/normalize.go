package domain

import (
	"fmt"
	"strings"
)

const maxLabelLength = 63

// Record is the normalized output of parsing one raw zonefile line, before
// word segmentation has filled in Tokens. It mirrors Document minus Tokens.
type Record struct {
	Domain    string
	Label     string
	TLD       string
	Length    int
	HasHyphen bool
}

// ParseError reports why a raw line was rejected. Callers count and skip
// these; they are never fatal to the ingestion pipeline.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed domain %q: %s", e.Raw, e.Reason)
}

// isAllowedChar reports whether r is permitted anywhere in a raw zonefile
// line: ASCII letters, digits, '.', '-', or whitespace.
func isAllowedChar(r byte) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '-':
		return true
	case r == ' ' || r == '\t' || r == '\r' || r == '\n':
		return true
	}
	return false
}

// Parse normalizes a raw zonefile line into a Record, or returns a
// *ParseError describing why the line was rejected. Normalization is
// case-folded to lowercase; length and has_hyphen are always derived from
// the normalized label, never trusted from input.
func Parse(raw string) (Record, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Record{}, &ParseError{Raw: raw, Reason: "empty line"}
	}
	for i := 0; i < len(line); i++ {
		if !isAllowedChar(line[i]) {
			return Record{}, &ParseError{Raw: raw, Reason: "contains a disallowed character (non-ASCII or punctuation)"}
		}
	}

	lower := strings.ToLower(line)
	dot := strings.LastIndexByte(lower, '.')
	if dot < 0 {
		return Record{}, &ParseError{Raw: raw, Reason: "missing '.' separator"}
	}
	label := lower[:dot]
	tld := lower[dot+1:]

	if label == "" {
		return Record{}, &ParseError{Raw: raw, Reason: "empty label"}
	}
	if len(label) > maxLabelLength {
		return Record{}, &ParseError{Raw: raw, Reason: fmt.Sprintf("label exceeds %d characters", maxLabelLength)}
	}
	if tld == "" {
		return Record{}, &ParseError{Raw: raw, Reason: "empty tld"}
	}

	return Record{
		Domain:    label + "." + tld,
		Label:     label,
		TLD:       tld,
		Length:    len(label),
		HasHyphen: strings.Contains(label, "-"),
	}, nil
}

// WithTokens attaches segmented tokens to produce the final indexable
// Document. Per I5, an empty token list is not a valid document state, so
// WithTokens substitutes []string{r.Label} when tokens is empty, matching
// the segmenter's own degrade-gracefully contract.
func (r Record) WithTokens(tokens []string) Document {
	if len(tokens) == 0 {
		tokens = []string{r.Label}
	}
	return Document{
		Domain:    r.Domain,
		Label:     r.Label,
		TLD:       r.TLD,
		Tokens:    tokens,
		Length:    r.Length,
		HasHyphen: r.HasHyphen,
	}
}
