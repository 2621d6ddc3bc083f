package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rushteam/rescore/config"
	"github.com/rushteam/rescore/core"
	"github.com/rushteam/rescore/pipeline"
	"github.com/rushteam/rescore/rerank"
	"github.com/rushteam/rescore/search/memindex"
	"github.com/rushteam/rescore/server"
	"github.com/rushteam/rescore/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	slog.Info("loaded model catalog", "path", cfg.CatalogPath, "models", registry.Len())

	f, err := os.Open(cfg.CorpusPath)
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}
	index, err := memindex.LoadJSON(f, cfg.SegmentSize)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}
	slog.Info("loaded corpus", "path", cfg.CorpusPath, "docs", index.MaxDoc(), "segments", len(index.Segments()))

	cache, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to create feature cache: %w", err)
	}
	defer cache.Close()
	slog.Info("initialized feature cache", "backend", cache.Name())

	var pool *rerank.WeightPool
	if cfg.Workers > 0 {
		pool = rerank.NewWeightPool(cfg.Workers, cfg.GlobalPermits, cfg.PerQueryPermits)
	}

	pcfg := pipeline.DefaultConfig()
	if cfg.PipelinePath != "" {
		if pcfg, err = pipeline.Load(cfg.PipelinePath); err != nil {
			return fmt.Errorf("failed to load pipeline: %w", err)
		}
	}
	p, err := pcfg.BuildPipeline(config.DefaultFactory(config.Dependencies{
		Index:     index,
		Registry:  registry,
		Store:     cache,
		CacheName: cfg.CacheName,
		CacheTTL:  cfg.CacheTTL,
		Pool:      pool,
		Logger:    slog.Default(),
	}))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	p.Logger = slog.Default()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.New(p, registry, slog.Default()).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting rescored", "addr", cfg.HTTPAddr, "pipeline", pcfg.Pipeline.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newStore(cfg *config.Config) (core.Store, error) {
	switch cfg.CacheBackend {
	case "redis":
		rs, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case "memory", "":
		return store.NewMemoryStore(store.WithMaxEntries(cfg.CacheSize)), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
