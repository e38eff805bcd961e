package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	badgerstore "github.com/couchcryptid/observation-series-service/internal/adapter/badger"
	httpadapter "github.com/couchcryptid/observation-series-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/observation-series-service/internal/adapter/kafka"
	"github.com/couchcryptid/observation-series-service/internal/adapter/memory"
	"github.com/couchcryptid/observation-series-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/observation-series-service/internal/config"
	"github.com/couchcryptid/observation-series-service/internal/observability"
	"github.com/couchcryptid/observation-series-service/internal/pipeline"
	"github.com/couchcryptid/observation-series-service/internal/query"
	"github.com/couchcryptid/observation-series-service/internal/series"
)

// observationStore is what every persistence backend provides.
type observationStore interface {
	series.Store
	query.RecordSource
	sharedobs.ReadinessChecker
	io.Closer
}

// readinessChecks is ready when all of its members are.
type readinessChecks []sharedobs.ReadinessChecker

func (r readinessChecks) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	logger.Info("store opened", "driver", cfg.StoreDriver)

	trackerOpts := []series.Option{series.WithMaxRetries(cfg.ExtremaMaxRetries)}
	if cfg.SoleWriter() {
		trackerOpts = append(trackerOpts, series.WithCacheSize(cfg.SeriesCacheSize))
	} else {
		logger.Info("series cache disabled for shared store", "driver", cfg.StoreDriver)
	}
	tracker := series.NewTracker(store, logger, metrics, trackerOpts...)
	queries := query.NewService(store, tracker, query.Config{
		Merge:         cfg.Merge,
		Chronological: cfg.MergeChronological,
		MaxValues:     cfg.MaxResponseValues,
	}, logger, metrics)

	ready := readinessChecks{store}

	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
		p      *pipeline.Pipeline
	)
	if cfg.IngestEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		loader := pipeline.NewSeriesLoader(tracker, writer, logger, metrics)
		p = pipeline.New(reader, pipeline.NewTransformer(logger), loader, logger, metrics, cfg.BatchSize)
		ready = append(ready, p)
		metrics.IngestEnabled.Set(1)
		logger.Info("kafka ingestion enabled", "source_topic", cfg.KafkaSourceTopic, "sink_topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka ingestion disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, queries, tracker, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingest pipeline.
	if p != nil {
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config) (observationStore, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return memory.NewStore(), nil
	case config.StoreBadger:
		return badgerstore.Open(badgerstore.Options{
			Path:             cfg.BadgerPath,
			CompressionLevel: cfg.CompressionLevel,
		})
	case config.StorePostgres:
		return sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.StoreSQLite:
		return sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
