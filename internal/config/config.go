package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Supported STORE_DRIVER values.
const (
	StoreMemory   = "memory"
	StoreBadger   = "badger"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
	IngestEnabled      bool

	// Persistence.
	StoreDriver      string
	BadgerPath       string
	CompressionLevel int
	DatabaseURL      string
	SQLitePath       string

	// Consolidation.
	Merge              domain.MergeIndicatorConfig
	MergeChronological bool
	MaxResponseValues  int

	// Series tracking.
	ExtremaMaxRetries int
	SeriesCacheSize   int
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-observations"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "series-extrema"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "observation-series"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		StoreDriver: strings.ToLower(sharedcfg.EnvOrDefault("STORE_DRIVER", StoreMemory)),
		BadgerPath:  sharedcfg.EnvOrDefault("BADGER_PATH", "data/badger"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  sharedcfg.EnvOrDefault("SQLITE_PATH", "data/observations.db"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.IngestEnabled, err = parseBool("INGEST_ENABLED", true)
	collect(err)
	cfg.CompressionLevel, err = parsePositiveInt("COMPRESSION_LEVEL", 2)
	collect(err)
	cfg.MaxResponseValues, err = parsePositiveInt("MAX_RESPONSE_VALUES", 100000)
	collect(err)
	cfg.ExtremaMaxRetries, err = parsePositiveInt("EXTREMA_MAX_RETRIES", 5)
	collect(err)
	cfg.SeriesCacheSize, err = parsePositiveInt("SERIES_CACHE_SIZE", 1000)
	collect(err)
	cfg.MergeChronological, err = parseBool("MERGE_CHRONOLOGICAL", false)
	collect(err)
	cfg.Merge, err = parseMergeConfig()
	collect(err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.CompressionLevel > 4 {
		return nil, fmt.Errorf("invalid COMPRESSION_LEVEL %d: must be between 1 and 4", cfg.CompressionLevel)
	}
	switch cfg.StoreDriver {
	case StoreMemory, StoreBadger, StoreSQLite:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// SoleWriter reports whether the configured store is owned by this process.
// Memory is process-local and Badger locks its directory; SQLite files and
// Postgres can be written by other replicas.
func (c *Config) SoleWriter() bool {
	return c.StoreDriver == StoreMemory || c.StoreDriver == StoreBadger
}

func parseMergeConfig() (domain.MergeIndicatorConfig, error) {
	var (
		cfg  = domain.DefaultMergeIndicatorConfig()
		errs []error
	)
	switches := []struct {
		env string
		dst *bool
	}{
		{"MERGE_PROCEDURE", &cfg.Procedure},
		{"MERGE_OBSERVABLE_PROPERTY", &cfg.ObservableProperty},
		{"MERGE_FEATURE_OF_INTEREST", &cfg.FeatureOfInterest},
		{"MERGE_OFFERINGS", &cfg.Offerings},
		{"MERGE_PHENOMENON_TIME", &cfg.PhenomenonTime},
		{"MERGE_SAMPLING_GEOMETRY", &cfg.SamplingGeometry},
	}
	for _, s := range switches {
		v, err := parseBool(s.env, *s.dst)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*s.dst = v
	}
	if raw := os.Getenv("MERGE_CUSTOM_INDICATORS"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Custom = append(cfg.Custom, name)
			}
		}
	}
	return cfg, errors.Join(errs...)
}

func parseBool(env string, def bool) (bool, error) {
	s := os.Getenv(env)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", env, s, err)
	}
	return v, nil
}

func parsePositiveInt(env string, def int) (int, error) {
	s := os.Getenv(env)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", env, s)
	}
	return n, nil
}
