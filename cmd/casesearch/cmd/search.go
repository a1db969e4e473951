package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/casesearch/internal/output"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// searchFlags holds the search command's flag values.
type searchFlags struct {
	mode      string
	filters   store.Filters
	offset    int
	limit     int
	facets    bool
	highlight bool
	debug     bool
	json      bool
}

func newSearchCmd(c *cli) *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the case index",
		Long: `Search the case index with lexical, semantic or hybrid retrieval.

Statute citations such as "302 PPC" or "section 497 CrPC" are recognized and
boost cases that cite them. Filters narrow the result set before ranking.`,
		Example: `  # Hybrid search (default)
  casesearch search "bail cancellation 497 crpc"

  # Lexical only, Supreme Court cases from 2023, with facets
  casesearch search "murder" --mode lexical --court "Supreme Court" --year 2023 --facets

  # Second page as JSON
  casesearch search "qisas" --offset 20 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSearch(cmd, strings.Join(args, " "), f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.mode, "mode", "m", "", "Search mode: lexical, semantic or hybrid (default from config)")
	fl.StringVar(&f.filters.Court, "court", "", "Filter by court (substring match)")
	fl.StringVar(&f.filters.Status, "status", "", "Filter by case status")
	fl.IntVar(&f.filters.Year, "year", 0, "Filter by case year")
	fl.StringVar(&f.filters.Judge, "judge", "", "Filter by judge on the bench")
	fl.StringVar(&f.filters.Section, "section", "", "Filter by cited section, e.g. \"302 PPC\"")
	fl.StringVar(&f.filters.Citation, "citation", "", "Filter by cited citation, e.g. \"2023 SCMR 100\"")
	fl.StringVar(&f.filters.DateFrom, "from", "", "Earliest institution date (YYYY-MM-DD)")
	fl.StringVar(&f.filters.DateTo, "to", "", "Latest institution date (YYYY-MM-DD)")
	fl.IntVar(&f.offset, "offset", 0, "Number of ranked results to skip")
	fl.IntVarP(&f.limit, "limit", "n", 0, "Maximum results to return (default from config)")
	fl.BoolVar(&f.facets, "facets", false, "Include facet counts")
	fl.BoolVar(&f.highlight, "highlight", true, "Include highlighted snippets")
	fl.BoolVar(&f.debug, "explain", false, "Include score breakdown and fallbacks")
	fl.BoolVar(&f.json, "json", false, "Output as JSON")

	return cmd
}

func (c *cli) runSearch(cmd *cobra.Command, query string, f searchFlags) error {
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

	req := svc.NewRequest(query)
	if cmd.Flags().Changed("mode") {
		req.Mode = f.mode
	}
	if cmd.Flags().Changed("limit") {
		req.Limit = f.limit
	}
	req.Filters = f.filters
	req.Offset = f.offset
	req.Facets = f.facets
	req.Highlight = f.highlight
	req.Debug = f.debug || c.debug

	resp, err := svc.Search(ctx, req)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if f.json {
		return out.JSON(resp)
	}
	out.SearchResults(query, resp)
	return nil
}
