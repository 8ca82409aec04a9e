package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nvandessel/plantsim/internal/config"
	"github.com/nvandessel/plantsim/internal/pathutil"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage plantsim configuration",
		Long: `View and initialize plantsim configuration.

Configuration is read from ~/.plantsim/config.yaml (or --config), then
PLANTSIM_* environment variables are applied on top.

Examples:
  plantsim config show          # Effective configuration as YAML
  plantsim config path          # Where the config file lives
  plantsim config init          # Write the defaults to the config file`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigPathCmd(),
		newConfigInitCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(out).Encode(cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}

			_, statErr := os.Stat(path)
			exists := statErr == nil

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"path":   path,
					"exists": exists,
				})
			}
			if exists {
				fmt.Fprintln(out, path)
			} else {
				fmt.Fprintf(out, "%s (not created; run 'plantsim config init')\n", path)
			}
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}

			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", pathutil.RedactPath(path))
			}

			if err := config.Default().Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]string{
					"status": "initialized",
					"path":   path,
				})
			}
			fmt.Fprintf(out, "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

// configPath returns --config when set, else ~/.plantsim/config.yaml.
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return pathutil.ExpandHome(path)
	}
	return config.DefaultPath()
}
