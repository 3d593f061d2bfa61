package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/domainsearch/engine/internal/index"
	"github.com/domainsearch/engine/internal/searcher/cache"
	"github.com/domainsearch/engine/internal/searcher/executor"
	"github.com/domainsearch/engine/internal/searcher/handler"
	"github.com/domainsearch/engine/pkg/config"
	"github.com/domainsearch/engine/pkg/health"
	"github.com/domainsearch/engine/pkg/logger"
	"github.com/domainsearch/engine/pkg/metrics"
	"github.com/domainsearch/engine/pkg/middleware"
	pkgredis "github.com/domainsearch/engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index_path", cfg.Index.Path)

	refresh := time.Duration(cfg.Index.ReaderRefreshMs) * time.Millisecond
	reader, err := index.OpenReader(cfg.Index.Path, refresh)
	if err != nil {
		slog.Error("failed to open index reader", "error", err)
		os.Exit(1)
	}
	defer reader.Close()
	slog.Info("index reader opened", "data_dir", cfg.Index.Path, "refresh", refresh)

	var queryCache *cache.Cache
	var redisClient *pkgredis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	} else {
		slog.Info("CACHE_URL not set, search caching disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	checker.Register("index_reader", func(ctx context.Context) health.ComponentHealth {
		stats := reader.Snapshot()
		if stats == nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no snapshot available"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d segments active", stats.SegmentCount())}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	m := metrics.New()

	exec := executor.New(reader)
	h := handler.New(exec, queryCache, cfg.Server.BulkFanOut)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("POST /search/bulk", h.SearchBulk)
	mux.HandleFunc("GET /exact", h.Exact)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /stats", h.Stats)
	mux.HandleFunc("POST /cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
