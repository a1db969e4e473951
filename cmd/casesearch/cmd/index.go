package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/casesearch/internal/index"
	"github.com/Aman-CERP/casesearch/internal/output"
	"github.com/Aman-CERP/casesearch/internal/ui"
)

// maxImportErrorsShown caps the per-record import errors printed.
const maxImportErrorsShown = 10

func newIndexCmd(c *cli) *cobra.Command {
	var (
		force      bool
		importPath string
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the search index from the case database",
		Long: `Build a new index snapshot from the case database.

Unchanged cases reuse their tokens and embeddings from the current snapshot.
Use --force to rebuild every case, and --import to load JSON Lines case
records into the case database first.`,
		Example: `  # Import records and build
  casesearch index --import cases.jsonl

  # Rebuild from scratch with plain progress output
  casesearch index --force --plain`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runIndex(cmd, force, importPath)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild every case instead of reusing the current snapshot")
	cmd.Flags().StringVar(&importPath, "import", "", "Import case records from a JSON Lines file before building")

	return cmd
}

func (c *cli) runIndex(cmd *cobra.Command, force bool, importPath string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := c.config()
	if err != nil {
		return err
	}
	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(c.plain),
		ui.WithNoColor(c.noColor),
		ui.WithTitle(cfg.Paths.DataDir)))

	a, err := c.openApp(ctx, cmd.ErrOrStderr(), renderer.Update)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if importPath != "" {
		if err := importCases(ctx, a, importPath, output.New(out)); err != nil {
			return err
		}
	}

	if err := renderer.Start(ctx); err != nil {
		return err
	}

	stats, err := a.manager.Build(ctx, index.BuildOptions{Force: force})
	if err != nil {
		renderer.Fail(err)
		_ = renderer.Stop()
		return err
	}

	provider, model, dims := a.embedderInfo()
	renderer.Complete(ui.Summary{
		Stats:    *stats,
		Embedder: ui.EmbedderInfo{Provider: provider, Model: model, Dimensions: dims},
	})
	slog.Info("index_command_complete",
		slog.String("snapshot_id", stats.SnapshotID),
		slog.Int("cases", stats.Cases),
		slog.Duration("duration", stats.Duration))
	return renderer.Stop()
}

// importCases loads a JSON Lines file into the case database. Invalid lines
// are reported and skipped.
func importCases(ctx context.Context, a *app, path string, out *output.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer func() { _ = f.Close() }()

	n, errs := a.source.ImportJSONL(ctx, f)
	if err := ctx.Err(); err != nil {
		return err
	}

	out.Successf("Imported %d case records from %s", n, path)
	for i, e := range errs {
		if i == maxImportErrorsShown {
			out.Status("", fmt.Sprintf("... and %d more", len(errs)-maxImportErrorsShown))
			break
		}
		out.Warningf("%v", e)
	}
	return nil
}
