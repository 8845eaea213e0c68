package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/ragindex/configs"
	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/output"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage ragindex configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/ragindex/config.yaml)
  3. Project config (.ragindex.yaml, .ragindex.yml or .ragindex.toml)
  4. Environment variables (RAGINDEX_*)`,
		Example: `  # Create user config from template
  ragindex config init

  # Create .ragindex.yaml in the project root
  ragindex config init --project

  # Show effective configuration
  ragindex config show`,
	}

	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigPathCmd(g))

	return cmd
}

func newConfigInitCmd(g *globalFlags) *cobra.Command {
	var force, projectLevel bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, tmpl := config.GetUserConfigPath(), configs.UserConfigTemplate
			if projectLevel {
				root, err := config.FindProjectRoot(g.dir)
				if err != nil {
					return err
				}
				path, tmpl = filepath.Join(root, ".ragindex.yaml"), configs.ProjectConfigTemplate
			}
			return writeTemplate(output.New(cmd.OutOrStdout()), path, tmpl, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&projectLevel, "project", false, "Create .ragindex.yaml in the project root")

	return cmd
}

func writeTemplate(out *output.Writer, path, tmpl string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		out.Warning("Configuration already exists")
		out.Statusf("", "Location: %s", path)
		out.Status("", "Use --force to overwrite it with the template")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(tmpl), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("", "Location: %s", path)
	out.Status("", "Run 'ragindex config show' to verify")
	return nil
}

func newConfigShowCmd(g *globalFlags) *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				cfg  *config.Config
				desc string
			)
			switch source {
			case "merged":
				_, loaded, err := g.loadConfig()
				if err != nil {
					return err
				}
				cfg, desc = loaded, "merged (defaults + user + project + env)"
			case "defaults":
				cfg, desc = config.NewConfig(), "defaults (hardcoded)"
			default:
				return fmt.Errorf("invalid source: %s (use: merged, defaults)", source)
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			output.New(w).Statusf("", "Configuration source: %s", desc)
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = fmt.Fprintln(w, string(data))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults")

	return cmd
}

func newConfigPathCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "user:    %s\n", config.GetUserConfigPath())
			root, err := config.FindProjectRoot(g.dir)
			if err != nil {
				return err
			}
			project := config.ProjectConfigPath(root)
			if project == "" {
				project = filepath.Join(root, ".ragindex.yaml") + " (missing)"
			}
			_, _ = fmt.Fprintf(w, "project: %s\n", project)
			return nil
		},
	}
}
