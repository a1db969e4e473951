package cmd

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/ui"
)

func newStatusCmd(c *cli) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long:  `Show the published index snapshot, its counts and size, and whether the embedder is reachable.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := c.openApp(ctx, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if _, err := a.manager.Load(ctx); err != nil && !cserrors.HasCode(err, cserrors.ErrCodeIndexNotBuilt) {
				return err
			}

			info := ui.StatusInfo{
				Index:     a.manager.Status(),
				Embedder:  a.embedderStatus(ctx),
				DiskBytes: dirSize(a.cfg.Paths.DataDir),
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), c.noColor || ui.DetectNoColor())
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// embedderStatus probes the embedder.
func (a *app) embedderStatus(ctx context.Context) ui.EmbedderStatus {
	st := ui.EmbedderStatus{
		Provider:   a.cfg.Embeddings.Provider,
		Model:      a.cfg.Embeddings.Model,
		Dimensions: a.cfg.Embeddings.Dimensions,
		Status:     "disabled",
	}
	if a.embedder == nil {
		return st
	}
	st.Model = a.embedder.ModelName()
	st.Dimensions = a.embedder.Dimensions()
	if a.embedder.Available(ctx) {
		st.Status = "ready"
	} else {
		st.Status = "offline"
	}
	return st
}

// dirSize sums regular file sizes under dir. Unreadable entries are skipped.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
