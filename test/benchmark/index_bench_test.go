// Package benchmark contains Go benchmarks for the index writer and the
// query-side search pipeline, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/domainsearch/engine/internal/domain"
	"github.com/domainsearch/engine/internal/index"
)

func benchDocument(i int) domain.Document {
	label := fmt.Sprintf("bench%d", i)
	tokens := []string{"bench", fmt.Sprintf("%d", i%97)}
	return domain.Document{
		Domain: label + ".com",
		Label:  label,
		TLD:    "com",
		Tokens: tokens,
		Length: len(tokens),
	}
}

// BenchmarkEngineAddDocument measures per-document write throughput into
// the memtable, across varying pre-loaded corpus sizes.
func BenchmarkEngineAddDocument(b *testing.B) {
	ctx := context.Background()
	sizes := []int{0, 1000, 10000}
	for _, preload := range sizes {
		b.Run(fmt.Sprintf("preload_%d", preload), func(b *testing.B) {
			engine, err := index.Open(index.Config{DataDir: b.TempDir()})
			if err != nil {
				b.Fatal(err)
			}
			defer engine.Close(ctx)

			for i := 0; i < preload; i++ {
				if err := engine.AddDocument(ctx, benchDocument(i)); err != nil {
					b.Fatal(err)
				}
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := engine.AddDocument(ctx, benchDocument(preload+i)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEngineFlush measures the cost of flushing a full memtable to an
// on-disk segment at varying batch sizes.
func BenchmarkEngineFlush(b *testing.B) {
	ctx := context.Background()
	sizes := []int{100, 1000, 5000}
	for _, batch := range sizes {
		b.Run(fmt.Sprintf("docs_%d", batch), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for n := 0; n < b.N; n++ {
				b.StopTimer()
				engine, err := index.Open(index.Config{DataDir: b.TempDir()})
				if err != nil {
					b.Fatal(err)
				}
				for i := 0; i < batch; i++ {
					if err := engine.AddDocument(ctx, benchDocument(i)); err != nil {
						b.Fatal(err)
					}
				}
				b.StartTimer()

				if err := engine.Flush(ctx); err != nil {
					b.Fatal(err)
				}

				b.StopTimer()
				engine.Close(ctx)
				b.StartTimer()
			}
		})
	}
}

// BenchmarkOpenReaderSearch measures lock-free snapshot lookup latency
// against a flushed segment of 10 000 documents.
func BenchmarkOpenReaderSearch(b *testing.B) {
	ctx := context.Background()
	dir := b.TempDir()
	engine, err := index.Open(index.Config{DataDir: dir})
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 10000; i++ {
		if err := engine.AddDocument(ctx, benchDocument(i)); err != nil {
			b.Fatal(err)
		}
	}
	if err := engine.Close(ctx); err != nil {
		b.Fatal(err)
	}

	reader, err := index.OpenReader(dir, 0)
	if err != nil {
		b.Fatal(err)
	}
	defer reader.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap := reader.Snapshot()
		postings, err := snap.Search("bench")
		if err != nil {
			b.Fatal(err)
		}
		_ = postings
	}
}

// BenchmarkOpenReaderSearchParallel measures concurrent read throughput
// against the same flushed segment.
func BenchmarkOpenReaderSearchParallel(b *testing.B) {
	ctx := context.Background()
	dir := b.TempDir()
	engine, err := index.Open(index.Config{DataDir: dir})
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 10000; i++ {
		if err := engine.AddDocument(ctx, benchDocument(i)); err != nil {
			b.Fatal(err)
		}
	}
	if err := engine.Close(ctx); err != nil {
		b.Fatal(err)
	}

	reader, err := index.OpenReader(dir, 0)
	if err != nil {
		b.Fatal(err)
	}
	defer reader.Close()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		snap := reader.Snapshot()
		for pb.Next() {
			postings, err := snap.Search("bench")
			if err != nil {
				b.Fatal(err)
			}
			_ = postings
		}
	})
}
