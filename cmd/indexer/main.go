// Command indexer is the offline/batch counterpart to cmd/api: it runs one
// of four operator subcommands against an on-disk index and exits, rather
// than serving traffic. full and daily mutate the index and so hold its
// exclusive writer lock; stats reads through the same lock-free snapshot
// path the query API uses, so it never blocks or fails behind a running
// writer; optimize forces a full tiered-merge compaction.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/domainsearch/engine/internal/delta"
	"github.com/domainsearch/engine/internal/index"
	"github.com/domainsearch/engine/internal/searcher/cache"
	"github.com/domainsearch/engine/internal/segmenter"
	"github.com/domainsearch/engine/internal/zonefile"
	"github.com/domainsearch/engine/pkg/config"
	"github.com/domainsearch/engine/pkg/logger"
	pkgredis "github.com/domainsearch/engine/pkg/redis"
	"github.com/domainsearch/engine/pkg/resilience"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:   "indexer",
		Short: "Build and maintain the domain search index",
	}
	root.PersistentFlags().String("config", "", "path to an optional YAML config file")
	root.AddCommand(newFullCmd(), newDailyCmd(), newStatsCmd(), newOptimizeCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// newSegmenter builds the C2 client from cfg, the same way cmd/api builds
// every other component from the shared config.
func newSegmenter(cfg *config.Config) *segmenter.Client {
	return segmenter.New(segmenter.Config{
		BaseURL:       cfg.Segmenter.BaseURL,
		Username:      cfg.Segmenter.Username,
		Password:      cfg.Segmenter.Password,
		BatchSize:     cfg.Segmenter.BatchSize,
		Concurrency:   cfg.Segmenter.Concurrency,
		CacheCapacity: cfg.Segmenter.CacheCapacity,
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Segmenter.RetryMaxAttempts,
			InitialDelay:   cfg.Segmenter.RetryInitialDelay,
			Multiplier:     cfg.Segmenter.RetryMultiplier,
			JitterFraction: cfg.Segmenter.RetryJitterFraction,
			MaxDelay:       cfg.Segmenter.RetryMaxDelay,
		},
		BatchTimeout: cfg.Segmenter.BatchTimeout,
	})
}

// newCacheInvalidator connects to the same Redis-backed result cache the
// query API serves from, if CACHE_URL is configured, so a full/daily run
// invalidates stale cached results on commit. *cache.Cache already
// implements delta.CacheInvalidator, so no adapter type is needed.
func newCacheInvalidator(cfg *config.Config) (*cache.Cache, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	client, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, commit will not invalidate the query cache", "error", err)
		return nil, func() {}, nil
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}
	return cache.New(client, cfg.Redis.CacheTTL), closeFn, nil
}

func newFullCmd() *cobra.Command {
	var input, output string
	var download bool
	var heapGB int

	cmd := &cobra.Command{
		Use:   "full",
		Short: "Build a fresh index from a complete zonefile snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (input == "") == !download {
				return fmt.Errorf("exactly one of --input or --download is required")
			}
			if output == "" {
				return fmt.Errorf("--output is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ramBudget := cfg.Index.HeapSizeBytes
			if heapGB > 0 {
				ramBudget = int64(heapGB) << 30
			}

			engine, err := index.Open(index.Config{DataDir: output, RAMBudgetBytes: ramBudget, MergeFanIn: cfg.Index.MergeFanIn})
			if err != nil {
				return fmt.Errorf("opening index at %s: %w", output, err)
			}
			defer engine.Close(cmd.Context())

			invalidator, closeCache, err := newCacheInvalidator(cfg)
			if err != nil {
				return err
			}
			defer closeCache()

			applier := delta.New(engine, newSegmenter(cfg), invalidator, cfg.Segmenter.BatchSize)

			var lines <-chan string
			if download {
				dl := zonefile.New(cfg.Zonefile.APIURL, cfg.Zonefile.Token, nil)
				lines, err = linesFromDownload(cmd.Context(), dl, "full")
			} else {
				lines, err = linesFromFile(cmd.Context(), input)
			}
			if err != nil {
				return err
			}

			stats, err := applier.ApplyAdditions(cmd.Context(), lines)
			if err != nil {
				return fmt.Errorf("full build failed: %w", err)
			}
			if err := applier.Commit(cmd.Context()); err != nil {
				return fmt.Errorf("committing full build: %w", err)
			}

			slog.Info("full build committed", "added", stats.Added, "filtered", stats.Filtered)
			fmt.Printf("added=%d filtered=%d\n", stats.Added, stats.Filtered)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "local path to an uncompressed zonefile snapshot")
	cmd.Flags().BoolVar(&download, "download", false, "download the latest full snapshot from the zonefile API")
	cmd.Flags().StringVar(&output, "output", "", "index directory to build into (required)")
	cmd.Flags().IntVar(&heapGB, "heap-gb", 0, "writer RAM budget in GiB, overriding INDEX_HEAP_SIZE")
	return cmd
}

func newDailyCmd() *cobra.Command {
	var adds, dels, indexDir string
	var download bool

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Apply one day's additions and deletions to an existing index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !download && (adds == "" || dels == "") {
				return fmt.Errorf("either --download, or both --adds and --dels, is required")
			}
			if indexDir == "" {
				return fmt.Errorf("--index is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			engine, err := index.Open(index.Config{DataDir: indexDir, RAMBudgetBytes: cfg.Index.HeapSizeBytes, MergeFanIn: cfg.Index.MergeFanIn})
			if err != nil {
				return fmt.Errorf("opening index at %s: %w", indexDir, err)
			}
			defer engine.Close(cmd.Context())

			invalidator, closeCache, err := newCacheInvalidator(cfg)
			if err != nil {
				return err
			}
			defer closeCache()

			applier := delta.New(engine, newSegmenter(cfg), invalidator, cfg.Segmenter.BatchSize)

			var additions, deletions <-chan string
			if download {
				dl := zonefile.New(cfg.Zonefile.APIURL, cfg.Zonefile.Token, nil)
				if additions, err = linesFromDownload(cmd.Context(), dl, "daily-additions"); err != nil {
					return err
				}
				if deletions, err = linesFromDownload(cmd.Context(), dl, "daily-deletions"); err != nil {
					return err
				}
			} else {
				if additions, err = linesFromFile(cmd.Context(), adds); err != nil {
					return err
				}
				if deletions, err = linesFromFile(cmd.Context(), dels); err != nil {
					return err
				}
			}

			stats, err := applier.Apply(cmd.Context(), additions, deletions)
			if err != nil {
				return fmt.Errorf("daily apply failed: %w", err)
			}

			fmt.Printf("added=%d deleted=%d filtered=%d rejected=%d\n",
				stats.Added, stats.Deleted, stats.Filtered, stats.Rejected)
			return nil
		},
	}
	cmd.Flags().StringVar(&adds, "adds", "", "local path to a newline-delimited list of added domains")
	cmd.Flags().StringVar(&dels, "dels", "", "local path to a newline-delimited list of deleted domains")
	cmd.Flags().BoolVar(&download, "download", false, "download the latest daily additions and deletions from the zonefile API")
	cmd.Flags().StringVar(&indexDir, "index", "", "existing index directory to update (required)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var indexDir string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print document count, segment count, and on-disk size for an index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if indexDir == "" {
				return fmt.Errorf("--index is required")
			}
			if _, err := loadConfig(cmd); err != nil {
				return err
			}

			reader, err := index.OpenReader(indexDir, time.Minute)
			if err != nil {
				return fmt.Errorf("opening index reader at %s: %w", indexDir, err)
			}
			defer reader.Close()

			snap := reader.Snapshot()
			size, err := dirSize(indexDir)
			if err != nil {
				return fmt.Errorf("measuring index size: %w", err)
			}

			fmt.Printf("documents=%d segments=%d size_bytes=%d\n", snap.TotalDocs(), snap.SegmentCount(), size)
			return nil
		},
	}
	cmd.Flags().StringVar(&indexDir, "index", "", "index directory to inspect (required)")
	return cmd
}

func newOptimizeCmd() *cobra.Command {
	var indexDir string
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Force a full tiered-merge compaction down to a single segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if indexDir == "" {
				return fmt.Errorf("--index is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			engine, err := index.Open(index.Config{DataDir: indexDir, RAMBudgetBytes: cfg.Index.HeapSizeBytes, MergeFanIn: cfg.Index.MergeFanIn})
			if err != nil {
				return fmt.Errorf("opening index at %s: %w", indexDir, err)
			}
			defer engine.Close(cmd.Context())

			if err := engine.Optimize(cmd.Context()); err != nil {
				return fmt.Errorf("optimize failed: %w", err)
			}

			stats := engine.Stats()
			fmt.Printf("optimize complete: documents=%d segments=%d\n", stats.DocumentCount, stats.SegmentCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&indexDir, "index", "", "index directory to compact (required)")
	return cmd
}
