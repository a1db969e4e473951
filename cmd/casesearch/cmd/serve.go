package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/index"
	"github.com/Aman-CERP/casesearch/internal/mcp"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the index to MCP clients over stdio",
		Long: `Start the MCP server. It exposes the search_cases, suggest_cases and
index_status tools and the case:// resources.

stdout carries JSON-RPC only; logs go to the log file. The served snapshot
reloads when 'casesearch index' publishes a new one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd.Context(), cmd)
		},
	}
}

func (c *cli) runServe(ctx context.Context, cmd *cobra.Command) error {
	a, err := c.openApp(ctx, cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// The first query builds or repairs the index through Ensure.
	if _, err := a.manager.Load(ctx); err != nil {
		level := slog.LevelWarn
		if cserrors.HasCode(err, cserrors.ErrCodeIndexNotBuilt) {
			level = slog.LevelInfo
		}
		slog.Log(ctx, level, "serve_without_index",
			slog.String("error", err.Error()),
			slog.Bool("lazy_build", a.cfg.Search.LazyBuildEnabled()))
	}

	if err := os.MkdirAll(a.cfg.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	svc, err := a.searchService()
	if err != nil {
		return err
	}
	srv, err := mcp.NewServer(svc, a.manager, a.cfg)
	if err != nil {
		return err
	}
	if a.metrics != nil {
		srv.SetMetrics(a.metrics)
	}

	g, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	g.Go(func() error {
		defer stopWatch()
		return srv.Serve(gctx, a.cfg.Server.Transport)
	})
	g.Go(func() error {
		// Without the watcher the server keeps serving the loaded snapshot.
		if err := a.manager.Watch(watchCtx, index.DefaultWatchDebounce); err != nil {
			slog.Warn("index_watch_unavailable", slog.String("error", err.Error()))
		}
		return nil
	})
	return g.Wait()
}
