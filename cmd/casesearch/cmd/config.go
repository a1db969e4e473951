package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/output"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage casesearch configuration.

Configuration is merged from, in order of precedence:
  1. Environment variables (CASESEARCH_*)
  2. Project config (.casesearch.yaml in --dir)
  3. User config (~/.config/casesearch/config.yaml)
  4. Built-in defaults`,
	}

	cmd.AddCommand(newConfigInitCmd(c))
	cmd.AddCommand(newConfigShowCmd(c))
	cmd.AddCommand(newConfigPathCmd(c))

	return cmd
}

func newConfigInitCmd(c *cli) *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Long: `Write the default configuration to .casesearch.yaml in --dir, or to the
user config file with --user. An existing file is kept unless --force is
given, in which case it is backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(c.dir, config.ProjectConfigName)
			if user {
				path = config.GetUserConfigPath()
			}
			return runConfigInit(output.New(cmd.OutOrStdout()), path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")

	return cmd
}

func runConfigInit(out *output.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warningf("Configuration already exists: %s", path)
			out.Status("", "Use --force to overwrite it (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		out.Status("", "Backup: "+backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.NewConfig().WriteYAML(path); err != nil {
		return err
	}

	out.Successf("Wrote configuration: %s", path)
	out.Status("", "Run 'casesearch config show' to see the merged result")
	return nil
}

func newConfigShowCmd(c *cli) *cobra.Command {
	var (
		jsonOutput bool
		defaults   bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Example: `  # Merged configuration
  casesearch config show

  # Built-in defaults as JSON
  casesearch config show --defaults --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.NewConfig()
			if !defaults {
				var err error
				if cfg, err = c.config(); err != nil {
					return err
				}
			}

			if jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Show built-in defaults instead of the merged configuration")

	return cmd
}

func newConfigPathCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "user:    %s\n", config.GetUserConfigPath())
			_, err := fmt.Fprintf(w, "project: %s\n", filepath.Join(c.dir, config.ProjectConfigName))
			return err
		},
	}
}
