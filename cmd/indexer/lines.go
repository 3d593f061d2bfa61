package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/domainsearch/engine/internal/zonefile"
)

// linesFromFile streams raw lines from a local snapshot file, closing it
// once the returned channel is drained or ctx is canceled.
func linesFromFile(ctx context.Context, path string) (<-chan string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	ch := make(chan string, 1024)
	go func() {
		defer f.Close()
		defer close(ch)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Error("reading local snapshot failed", "path", path, "error", err)
		}
	}()
	return ch, nil
}

// linesFromDownload resolves the latest manifest of kind from the zonefile
// API and streams its decompressed content, matching original_source's
// daily.rs::run_with_download two-step fetch-then-stream shape.
func linesFromDownload(ctx context.Context, dl *zonefile.Downloader, kind string) (<-chan string, error) {
	manifest, err := dl.Latest(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("resolving latest %s manifest: %w", kind, err)
	}
	ch := make(chan string, 1024)
	go func() {
		defer close(ch)
		err := dl.Lines(ctx, manifest.Path, func(line string) error {
			select {
			case ch <- line:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			slog.Error("streaming downloaded snapshot failed", "kind", kind, "path", manifest.Path, "error", err)
		}
	}()
	return ch, nil
}

// dirSize sums the size of every regular file directly under dir, for the
// stats command's on-disk size report.
func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
