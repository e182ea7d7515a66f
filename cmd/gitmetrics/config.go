package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/gitmetrics/gitmetrics/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validates a gitmetrics configuration file for syntax errors and invalid values.

Examples:
  gitmetrics config validate                       # Validates default config locations
  gitmetrics config validate -c gitmetrics.toml    # Validates specific file`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Shows the merged configuration from defaults and config file.

Examples:
  gitmetrics config show                      # Show effective config
  gitmetrics config show -c gitmetrics.yaml   # Show config from specific file`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// configSource is the file loadConfig reads, or "" for the defaults.
func configSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.Find()
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		color.Red("Configuration validation failed:")
		fmt.Printf("  - %s\n", err)
		return errors.New("invalid configuration")
	}

	if src := configSource(); src != "" {
		color.Green("Configuration valid: %s", src)
	} else {
		color.Yellow("No config file found. Default configuration is valid.")
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if src := configSource(); src != "" {
		fmt.Printf("# Configuration from: %s\n\n", src)
	} else {
		fmt.Println("# Default configuration (no config file found)")
	}

	content, err := cfg.TOML()
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	fmt.Print(string(content))
	return nil
}
