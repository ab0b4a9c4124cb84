// =============================================================================
// MD to Excel Sync - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (excelsync)
//   ├── processCmd  (excelsync process)
//   ├── parseCmd    (excelsync parse)
//   ├── syncCmd     (excelsync sync)
//   ├── validateCmd (excelsync validate)
//   ├── templateCmd (excelsync template)
//   ├── serveCmd    (excelsync serve)
//   ├── cleanCmd    (excelsync clean)
//   └── versionCmd  (excelsync version)
//
// CONFIGURATION:
//   Settings come from, in order of precedence:
//   1. Command-line flags
//   2. Environment variables prefixed EXCELSYNC_ (EXCELSYNC_LOG_LEVEL, ...)
//   3. The configuration file (--config, default config.yaml)
//   4. Built-in defaults
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/excelsync/internal/config"
	"github.com/ginjaninja78/excelsync/internal/converter"
	"github.com/ginjaninja78/excelsync/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// v collects defaults, environment variables, the config file and bound
// flags.
var v = config.NewViper()

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "excelsync",
	Short: "MD to Excel Sync - Fill XLSX templates from financial tables in Markdown",
	Long: `MD to Excel Sync reads trial balances and balance sheets written as
Markdown or HTML tables, maps every subject line to a canonical field and
writes the amounts into fixed cells of an XLSX template.

Key Features:
  - Pipe-delimited and HTML tables, any common text encoding
  - Japanese and Chinese subject labels, repeated and subtotal lines
  - Marker-cell validation of the template before writing
  - Per-field write status for every mapped cell
  - Concurrent batch processing with input archival
  - JSON HTTP API

Example Usage:
  excelsync process                     # Process every document in the input directory
  excelsync parse bs.md                 # Print the extracted table as JSON
  excelsync sync record.json            # Write a JSON record into the template
  excelsync serve --addr :8000          # Start the HTTP API`,

	SilenceUsage: true,

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
	cobra.OnInitialize(initConfig)

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
		"Enable verbose output for debugging",
	)

	rootCmd.PersistentFlags().String("template", "", "Workbook template (overrides template_path)")
	rootCmd.PersistentFlags().String("mapping", "", "Mapping YAML file (overrides mapping_file)")
	rootCmd.PersistentFlags().String("gate-policy", "", `Empty marker policy: "flag" or "abort"`)

	v.BindPFlag("template_path", rootCmd.PersistentFlags().Lookup("template"))
	v.BindPFlag("mapping_file", rootCmd.PersistentFlags().Lookup("mapping"))
	v.BindPFlag("gate_policy", rootCmd.PersistentFlags().Lookup("gate-policy"))
}

// initConfig applies flags that override configuration values outright.
func initConfig() {
	if verbose {
		v.Set("log_level", "debug")
	}
}

// =============================================================================
// APPLICATION SETUP
// =============================================================================

// app bundles what every pipeline command needs.
type app struct {
	cfg    *config.MainConfig
	tables *config.MappingTables
	logger *zap.Logger
}

// loadApp loads configuration, mapping tables and the logger.
func loadApp() (*app, error) {
	cfg, err := config.LoadWith(v, cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	zap.ReplaceGlobals(logger)

	tables, err := config.LoadMappings(cfg.MappingFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping tables: %w", err)
	}

	logger.Debug("configuration loaded",
		zap.String("config", cfgFile),
		zap.String("template", cfg.TemplatePath),
		zap.String("sheet", tables.Sheet),
		zap.Int("fields", len(tables.Coordinates)))

	return &app{cfg: cfg, tables: tables, logger: logger}, nil
}

func (a *app) converter() *converter.Converter {
	return converter.New(a.cfg, a.tables, a.logger)
}

func (a *app) close() {
	_ = a.logger.Sync()
}
