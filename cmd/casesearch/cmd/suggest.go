package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/casesearch/internal/output"
)

func newSuggestCmd(c *cli) *cobra.Command {
	var (
		typ        string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Suggest case numbers, citations, sections and judges",
		Example: `  casesearch suggest "Crl.A 12"
  casesearch suggest "30" --type section`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := c.openApp(ctx, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			svc, err := a.searchService()
			if err != nil {
				return err
			}
			resp, err := svc.Suggest(ctx, args[0], typ, limit)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(resp)
			}
			out.Suggestions(args[0], resp.Suggestions)
			return nil
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "auto", "Suggestion type: auto, case, citation, section or judge")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum suggestions, at most 10 (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
