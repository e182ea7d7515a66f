package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/gitmetrics/gitmetrics/internal/logger"
	"github.com/gitmetrics/gitmetrics/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile      string
	verbose      bool
	logJSON      bool
	pprofPrefix  string
	pprofCPUFile *os.File
)

var rootCmd = &cobra.Command{
	Use:   "gitmetrics",
	Short: "Repository complexity, lint and defect analysis",
	Long: `gitmetrics clones a repository and runs three stages over its source files:
lint and format checks, cyclomatic complexity with optional explanations, and
defect detection through an OpenAI-compatible model. Results are written as
JSON reports that the apply command can write back into a working tree.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if pprofPrefix != "" {
			f, err := os.Create(pprofPrefix + ".cpu.pprof")
			if err != nil {
				return fmt.Errorf("failed to create CPU profile: %w", err)
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				return fmt.Errorf("failed to start CPU profile: %w", err)
			}
			pprofCPUFile = f
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pprofPrefix != "" {
			pprof.StopCPUProfile()
			if pprofCPUFile != nil {
				pprofCPUFile.Close()
				color.Green("CPU profile written to %s.cpu.pprof", pprofPrefix)
			}

			memFile, err := os.Create(pprofPrefix + ".mem.pprof")
			if err != nil {
				return fmt.Errorf("failed to create memory profile: %w", err)
			}
			defer memFile.Close()

			runtime.GC()
			if err := pprof.WriteHeapProfile(memFile); err != nil {
				return fmt.Errorf("failed to write memory profile: %w", err)
			}
			color.Green("Memory profile written to %s.mem.pprof", pprofPrefix)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (TOML, YAML, or JSON)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON lines")
	rootCmd.PersistentFlags().StringVar(&pprofPrefix, "pprof", "", "Enable pprof profiling (creates <prefix>.cpu.pprof and <prefix>.mem.pprof)")
}

// loadConfig loads the effective config. Validation is left to the caller so
// command-line overrides are checked too.
func loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(cfgFile)
}

func newLogger() (*zap.SugaredLogger, error) {
	log, err := logger.New(logger.Options{Verbose: verbose, JSON: logJSON})
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return log, nil
}
