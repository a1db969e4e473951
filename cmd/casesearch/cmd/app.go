package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/embed"
	"github.com/Aman-CERP/casesearch/internal/index"
	"github.com/Aman-CERP/casesearch/internal/output"
	"github.com/Aman-CERP/casesearch/internal/search"
	"github.com/Aman-CERP/casesearch/internal/store"
	"github.com/Aman-CERP/casesearch/internal/telemetry"
)

// telemetryDBName is the query telemetry database inside the data directory.
const telemetryDBName = "telemetry.db"

// app wires the case source, embedder and index manager for one command.
type app struct {
	cfg      *config.Config
	source   *store.SQLiteCaseStore
	embedder embed.Embedder
	manager  *index.Manager
	metrics  *telemetry.Metrics
}

// openApp opens everything a command needs. An embedder that cannot be
// created is reported on warn and the app continues lexical-only.
func (c *cli) openApp(ctx context.Context, warn io.Writer, progress func(index.ProgressEvent)) (*app, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}

	source, err := store.OpenSQLiteCaseStore(cfg.Paths.SourceDB)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		slog.Warn("embedder_unavailable",
			slog.String("provider", cfg.Embeddings.Provider),
			slog.String("error", err.Error()))
		output.New(warn).Warningf("Embedder %s unavailable, continuing lexical-only: %v", cfg.Embeddings.Provider, err)
		embedder = nil
	}

	manager, err := index.NewManager(index.Options{
		DataDir:  cfg.Paths.DataDir,
		Source:   source,
		Embedder: embedder,
		Config:   cfg,
		Progress: progress,
	})
	if err != nil {
		_ = source.Close()
		if embedder != nil {
			_ = embedder.Close()
		}
		return nil, err
	}

	return &app{cfg: cfg, source: source, embedder: embedder, manager: manager}, nil
}

// openMetrics starts query telemetry unless it is disabled. Failures are
// logged; search works without telemetry.
func (a *app) openMetrics() *telemetry.Metrics {
	if a.cfg.Telemetry.Disabled {
		return nil
	}
	st, err := telemetry.OpenSQLiteStore(filepath.Join(a.cfg.Paths.DataDir, telemetryDBName))
	if err != nil {
		slog.Warn("telemetry_unavailable", slog.String("error", err.Error()))
		return nil
	}
	a.metrics = telemetry.New(st, telemetry.DefaultConfig())
	return a.metrics
}

// searchService builds the query service over the app's index manager.
func (a *app) searchService() (*search.Service, error) {
	holder, err := config.NewRankingHolder(a.cfg.Ranking)
	if err != nil {
		return nil, fmt.Errorf("invalid ranking configuration: %w", err)
	}
	var opts []search.Option
	if m := a.openMetrics(); m != nil {
		opts = append(opts, search.WithMetrics(m))
	}
	return search.New(a.manager, a.cfg, holder, opts...)
}

// embedderInfo names the embedder for summaries, or is zero without one.
func (a *app) embedderInfo() (provider, model string, dims int) {
	if a.embedder == nil {
		return "", "", 0
	}
	return a.cfg.Embeddings.Provider, a.embedder.ModelName(), a.embedder.Dimensions()
}

// Close releases every resource in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Close())
	}
	errs = append(errs, a.manager.Close())
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	errs = append(errs, a.source.Close())
	return errors.Join(errs...)
}
