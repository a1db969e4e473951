// Package cmd provides the CLI commands for casesearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/casesearch/internal/config"
	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/logging"
	"github.com/Aman-CERP/casesearch/internal/profiling"
	"github.com/Aman-CERP/casesearch/pkg/version"
)

// cli holds the persistent flags and the per-invocation state shared by
// subcommands.
type cli struct {
	dir     string
	debug   bool
	plain   bool
	noColor bool
	profile profiling.Options

	cfg    *config.Config
	cfgErr error

	session        *profiling.Session
	loggingCleanup func()
}

// NewRootCmd creates the root command for the casesearch CLI.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRoot()
	return cmd
}

func newRoot() (*cobra.Command, *cli) {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "casesearch",
		Short: "Hybrid search over legal case records",
		Long: `casesearch indexes legal case records and answers keyword, semantic
and hybrid queries with citation-aware ranking, facets and snippets.

Build the index with 'casesearch index', then query it with
'casesearch search' or serve it to MCP clients with 'casesearch serve'.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetVersionTemplate("casesearch version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&c.dir, "dir", ".", "Data root holding .casesearch.yaml and the index")
	pf.BoolVar(&c.debug, "debug", false, "Enable debug logging (also written to stderr)")
	pf.BoolVar(&c.plain, "plain", false, "Plain progress output (no TUI)")
	pf.BoolVar(&c.noColor, "no-color", false, "Disable colored output")
	pf.StringVar(&c.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	pf.StringVar(&c.profile.Heap, "profile-mem", "", "Write memory profile to file")
	pf.StringVar(&c.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = c.start

	cmd.AddCommand(newIndexCmd(c))
	cmd.AddCommand(newSearchCmd(c))
	cmd.AddCommand(newSuggestCmd(c))
	cmd.AddCommand(newServeCmd(c))
	cmd.AddCommand(newStatusCmd(c))
	cmd.AddCommand(newConfigCmd(c))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd, c
}

// start sets up logging and profiling before any subcommand runs.
func (c *cli) start(cmd *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if c.debug {
		logCfg = logging.DebugConfig()
	} else if cfg, err := c.config(); err == nil {
		logCfg.Level = cfg.Server.LogLevel
	}
	logCfg.Component = cmd.Name()

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	c.loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("dir", c.dir),
		slog.String("version", version.Version))

	if c.profile.Enabled() {
		c.session, err = profiling.Start(c.profile)
		if err != nil {
			return err
		}
	}
	return nil
}

// finish stops profiling and closes the log file. It runs after the command
// whether or not it failed.
func (c *cli) finish() {
	if c.session != nil {
		if err := c.session.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "profiling: %v\n", err)
		}
		c.session = nil
	}
	if c.loggingCleanup != nil {
		c.loggingCleanup()
		c.loggingCleanup = nil
	}
}

// config loads the configuration for the data root once per invocation.
func (c *cli) config() (*config.Config, error) {
	if c.cfg == nil && c.cfgErr == nil {
		c.cfg, c.cfgErr = config.Load(c.dir)
		if c.cfgErr != nil {
			c.cfgErr = cserrors.ConfigError(c.cfgErr.Error(), c.cfgErr).
				WithSuggestion("Fix " + config.ProjectConfigName + " or run 'casesearch config init --force'")
		}
	}
	return c.cfg, c.cfgErr
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, c := newRoot()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		slog.Error("command_failed", slog.Any("error", cserrors.FormatForLog(err)))
	}
	c.finish()
	if err != nil {
		fmt.Fprint(os.Stderr, cserrors.FormatForCLI(err))
	}
	return err
}
