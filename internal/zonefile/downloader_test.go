package zonefile

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func gzipLines(lines ...string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, l := range lines {
		gz.Write([]byte(l + "\n"))
	}
	gz.Close()
	return buf.Bytes()
}

func TestLinesStreamsDecompressedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			http.Error(w, "missing auth", http.StatusUnauthorized)
			return
		}
		w.Write(gzipLines("example.com", "other.net"))
	}))
	defer srv.Close()

	d := New(srv.URL, "secret", nil)
	var got []string
	err := d.Lines(context.Background(), "/snapshots/full.gz", func(line string) error {
		got = append(got, line)
		return nil
	})
	if err != nil {
		t.Fatalf("Lines failed: %v", err)
	}
	if len(got) != 2 || got[0] != "example.com" || got[1] != "other.net" {
		t.Fatalf("unexpected lines: %v", got)
	}
}

func TestLinesRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	d := New(srv.URL, "", nil)
	err := d.Lines(context.Background(), "/missing.gz", func(line string) error { return nil })
	if err == nil {
		t.Fatalf("expected an error for a non-200 response")
	}
}

func TestLatestFetchesManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("kind") != "daily" {
			http.Error(w, "unexpected kind", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(Manifest{Path: "/snapshots/2026-08-06.gz", Date: "2026-08-06", Kind: "daily", SizeBytes: 1024})
	}))
	defer srv.Close()

	d := New(srv.URL, "", nil)
	m, err := d.Latest(context.Background(), "daily")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if m.Kind != "daily" || m.Path != "/snapshots/2026-08-06.gz" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}
