// =============================================================================
// csvmap - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (csvmap)
//   ├── rowsCmd    (csvmap rows)     print normalised rows
//   ├── keyedCmd   (csvmap keyed)    print keyed records as YAML
//   ├── convertCmd (csvmap convert)  map one file
//   ├── processCmd (csvmap process)  map every file in the input directory
//   └── versionCmd (csvmap version)
//
// The root command owns the global flags (--config, --verbose) and the
// logger every command writes to.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/csvmap/internal/config"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose enables debug logging.
var verbose bool

// logger is built before any command runs.
var logger = slog.New(slog.DiscardHandler)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "csvmap",
	Short: "csvmap - Map delimited files onto named records and back",
	Long: `csvmap reads delimited text files as named records and writes records
back out under a declared field list.

Key Features:
  - Header rows or explicit field lists, with renames and rest keys
  - Whitespace, blank line and repeated header handling
  - Minimized output headers holding only the fields records use
  - Profiles with transformation rules, filters and XLSX field templates
  - Concurrent batch processing with archival

Example Usage:
  csvmap rows data.csv                      # Print normalised rows
  csvmap keyed data.csv                     # Print records as YAML
  csvmap convert in.csv out.csv --minimize  # Write only the used fields
  csvmap process --config ./config.yaml     # Map every file in the input directory`,

	SilenceUsage: true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = newLogger(cmd.ErrOrStderr(), level)
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// HELPERS
// =============================================================================

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// parseLevel converts a configured log_level into a slog level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig loads the main configuration and, unless --verbose is set,
// applies its log level.
func loadConfig(cmd *cobra.Command) (*config.MainConfig, error) {
	mainConfig, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config: %w", err)
	}
	if !verbose {
		logger = newLogger(cmd.ErrOrStderr(), parseLevel(mainConfig.LogLevel))
	}
	return mainConfig, nil
}
