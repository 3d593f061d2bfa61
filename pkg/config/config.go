// Package config loads application configuration. spec.md §6 names a
// fixed set of environment variables as the primary contract (INDEX_PATH,
// API_PORT, INDEX_HEAP_SIZE, WORD_BATCH_SIZE, WORD_SPLITTER_*,
// ZONEFILE_*, CACHE_URL, READER_REFRESH_MS); everything else (merge
// fan-in, segmenter concurrency/retry tuning, bulk fan-out width) is a
// secondary defaults layer loaded from an
// optional YAML file, the way the teacher's config package already
// layers environment overrides on top of YAML defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Server    ServerConfig    `yaml:"server"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Zonefile  ZonefileConfig  `yaml:"zonefile"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// IndexConfig controls the writer's and reader's on-disk index.
type IndexConfig struct {
	Path            string `yaml:"path"`            // INDEX_PATH
	HeapSizeBytes   int64  `yaml:"heapSizeBytes"`   // INDEX_HEAP_SIZE
	MergeFanIn      int    `yaml:"mergeFanIn"`       // non-spec tuning knob
	ReaderRefreshMs int    `yaml:"readerRefreshMs"` // READER_REFRESH_MS
}

// ServerConfig holds HTTP server settings for the query API.
type ServerConfig struct {
	Port            int           `yaml:"port"` // API_PORT
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	BulkFanOut      int           `yaml:"bulkFanOut"` // non-spec tuning knob
}

// SegmenterConfig configures the word-segmentation HTTP client.
type SegmenterConfig struct {
	BaseURL             string        `yaml:"baseUrl"`  // WORD_SPLITTER_URL
	Username            string        `yaml:"username"` // WORD_SPLITTER_USER
	Password            string        `yaml:"password"` // WORD_SPLITTER_PASS
	BatchSize           int           `yaml:"batchSize"` // WORD_BATCH_SIZE
	Concurrency         int           `yaml:"concurrency"`
	CacheCapacity       int           `yaml:"cacheCapacity"`
	RetryMaxAttempts    int           `yaml:"retryMaxAttempts"`
	RetryInitialDelay   time.Duration `yaml:"retryInitialDelay"`
	RetryMultiplier     float64       `yaml:"retryMultiplier"`
	RetryJitterFraction float64       `yaml:"retryJitterFraction"`
	RetryMaxDelay       time.Duration `yaml:"retryMaxDelay"`
	BatchTimeout        time.Duration `yaml:"batchTimeout"`
}

// ZonefileConfig holds credentials for the upstream zonefile source.
type ZonefileConfig struct {
	APIURL string `yaml:"apiUrl"` // ZONEFILE_API_URL
	Token  string `yaml:"token"`  // ZONEFILE_TOKEN
}

// RedisConfig holds the optional result-cache backend's connection
// parameters. Addr is empty when CACHE_URL is unset, meaning caching is
// disabled.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads an optional YAML defaults file, then applies spec.md §6's
// named environment variables on top. The YAML file may set any field,
// including the ones those variables map to; a variable that is set wins
// over whatever the YAML file set.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Path:            "./data/index",
			HeapSizeBytes:   4 << 30,
			MergeFanIn:      10,
			ReaderRefreshMs: 10_000,
		},
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			BulkFanOut:      8,
		},
		Segmenter: SegmenterConfig{
			BatchSize:           500,
			Concurrency:         4,
			CacheCapacity:       1_000_000,
			RetryMaxAttempts:    5,
			RetryInitialDelay:   250 * time.Millisecond,
			RetryMultiplier:     2.0,
			RetryJitterFraction: 0.2,
			RetryMaxDelay:       10 * time.Second,
			BatchTimeout:        30 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnv overlays spec.md §6's named environment variables onto cfg.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("INDEX_HEAP_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing INDEX_HEAP_SIZE: %w", err)
		}
		cfg.Index.HeapSizeBytes = n
	}
	if v := os.Getenv("READER_REFRESH_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing READER_REFRESH_MS: %w", err)
		}
		cfg.Index.ReaderRefreshMs = n
	}
	if v := os.Getenv("API_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing API_PORT: %w", err)
		}
		cfg.Server.Port = n
	}
	if v := os.Getenv("WORD_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing WORD_BATCH_SIZE: %w", err)
		}
		cfg.Segmenter.BatchSize = n
	}
	if v := os.Getenv("WORD_SPLITTER_URL"); v != "" {
		cfg.Segmenter.BaseURL = v
	}
	if v := os.Getenv("WORD_SPLITTER_USER"); v != "" {
		cfg.Segmenter.Username = v
	}
	if v := os.Getenv("WORD_SPLITTER_PASS"); v != "" {
		cfg.Segmenter.Password = v
	}
	if v := os.Getenv("ZONEFILE_TOKEN"); v != "" {
		cfg.Zonefile.Token = v
	}
	if v := os.Getenv("ZONEFILE_API_URL"); v != "" {
		cfg.Zonefile.APIURL = v
	}
	if v := os.Getenv("CACHE_URL"); v != "" {
		addr, password, db, err := parseRedisURL(v)
		if err != nil {
			return fmt.Errorf("parsing CACHE_URL: %w", err)
		}
		cfg.Redis.Addr = addr
		cfg.Redis.Password = password
		cfg.Redis.DB = db
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

// parseRedisURL parses redis://[:password@]host:port[/db] into its parts.
// CACHE_URL is spec.md's only named cache-backend variable; it carries
// everything go-redis needs rather than three separate env vars.
func parseRedisURL(raw string) (addr, password string, db int, err error) {
	rest := raw
	rest = strings.TrimPrefix(rest, "redis://")
	rest = strings.TrimPrefix(rest, "rediss://")

	if at := strings.LastIndex(rest, "@"); at >= 0 {
		userinfo := rest[:at]
		rest = rest[at+1:]
		if colon := strings.Index(userinfo, ":"); colon >= 0 {
			password = userinfo[colon+1:]
		} else {
			password = userinfo
		}
	}

	if slash := strings.Index(rest, "/"); slash >= 0 {
		dbPart := rest[slash+1:]
		addr = rest[:slash]
		if dbPart != "" {
			n, perr := strconv.Atoi(dbPart)
			if perr != nil {
				return "", "", 0, fmt.Errorf("invalid db segment %q", dbPart)
			}
			db = n
		}
	} else {
		addr = rest
	}
	if addr == "" {
		return "", "", 0, fmt.Errorf("missing host:port")
	}
	return addr, password, db, nil
}
