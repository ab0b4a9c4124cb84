// =============================================================================
// MD to Excel Sync - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing all configuration.
//
// CONFIGURATION SOURCES (highest priority first):
//   1. Environment variables prefixed with EXCELSYNC_ (e.g. EXCELSYNC_OUTPUT_DIR)
//   2. Main Config (config.yaml): Global application settings
//   3. Built-in defaults
//
// The static mapping tables (subject labels and target cells) are loaded
// separately, see mappings.go. They are embedded in the binary and can be
// overridden with a YAML file via mapping_file.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "EXCELSYNC"

// Gate policies of the workbook writer.
const (
	// GatePolicyFlag reports an invalid mapping but still writes.
	GatePolicyFlag = "flag"
	// GatePolicyAbort refuses to write when the mapping is invalid.
	GatePolicyAbort = "abort"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for documents by the process command.
	// Default: "./input"
	InputDir string `mapstructure:"input_dir" yaml:"input_dir"`

	// OutputDir receives generated workbooks and template backups.
	// Default: "./output"
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`

	// InputArchiveDir receives documents after successful processing.
	// Default: "./input_archive"
	InputArchiveDir string `mapstructure:"input_archive_dir" yaml:"input_archive_dir"`

	// =========================================================================
	// TEMPLATE SETTINGS
	// =========================================================================

	// TemplatePath is the workbook template. It is opened read-only.
	// Default: "./templates/mapping.xlsx"
	TemplatePath string `mapstructure:"template_path" yaml:"template_path"`

	// MappingFile overrides the embedded label and cell tables.
	// Default: "" (embedded trial-balance mapping)
	MappingFile string `mapstructure:"mapping_file" yaml:"mapping_file"`

	// GatePolicy decides what happens when a marker cell is empty.
	// Valid values: "flag", "abort"
	// Default: "flag"
	GatePolicy string `mapstructure:"gate_policy" yaml:"gate_policy"`

	// AllowInPlace permits saving over the template itself.
	// Default: false
	AllowInPlace bool `mapstructure:"allow_in_place" yaml:"allow_in_place"`

	// =========================================================================
	// PARSING SETTINGS
	// =========================================================================

	// Encoding of input documents. Any WHATWG or IANA label.
	// Default: "UTF-8"
	Encoding string `mapstructure:"encoding" yaml:"encoding"`

	// Delimiter separates cells of delimiter tables.
	// Default: "|"
	Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`

	// SubstringFallback enables containment matching of subject labels
	// after an exact lookup fails. Every fallback hit is logged.
	// Default: true
	SubstringFallback bool `mapstructure:"substring_fallback" yaml:"substring_fallback"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is an additional JSON log sink. Empty disables it.
	// Default: "./logs/excelsync.log"
	LogFile string `mapstructure:"log_file" yaml:"log_file"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputNameFormat defines the format for output file names.
	// Placeholders:
	//   {name}      - Input file name without extension
	//   {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
	//   {date}      - Current date (YYYYMMDD)
	//   {time}      - Current time (HHMMSS)
	//   {uuid}      - A random UUID
	//   {shortid}   - The first 8 characters of a random UUID
	//
	// Default: "{name}_output_{timestamp}_{shortid}.xlsx"
	OutputNameFormat string `mapstructure:"output_name_format" yaml:"output_name_format"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the maximum number of documents processed at once.
	// Default: 4
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`

	// ContinueOnError keeps processing other files after a failure.
	// Default: true
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error"`

	// ArchiveOnSuccess moves processed documents to InputArchiveDir.
	// Default: true
	ArchiveOnSuccess bool `mapstructure:"archive_on_success" yaml:"archive_on_success"`

	// ArchiveRetentionDays is used by the clean command.
	// Default: 30
	ArchiveRetentionDays int `mapstructure:"archive_retention_days" yaml:"archive_retention_days"`

	// =========================================================================
	// SERVER SETTINGS
	// =========================================================================

	// ServerAddr is the listen address of the serve command.
	// Default: ":5000"
	ServerAddr string `mapstructure:"server_addr" yaml:"server_addr"`

	// MaxUploadBytes caps request bodies.
	// Default: 16 MiB
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`

	// AllowedExtensions lists accepted document extensions.
	// Default: [".md", ".markdown", ".txt"]
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// NewViper returns a viper instance with every default registered and
// environment overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers the built-in defaults. Registering every key also
// makes it visible to environment lookups during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("input_dir", "./input")
	v.SetDefault("output_dir", "./output")
	v.SetDefault("input_archive_dir", "./input_archive")
	v.SetDefault("template_path", "./templates/mapping.xlsx")
	v.SetDefault("mapping_file", "")
	v.SetDefault("gate_policy", GatePolicyFlag)
	v.SetDefault("allow_in_place", false)
	v.SetDefault("encoding", "UTF-8")
	v.SetDefault("delimiter", "|")
	v.SetDefault("substring_fallback", true)
	v.SetDefault("log_file", "./logs/excelsync.log")
	v.SetDefault("log_level", "info")
	v.SetDefault("output_name_format", "{name}_output_{timestamp}_{shortid}.xlsx")
	v.SetDefault("max_concurrency", 4)
	v.SetDefault("continue_on_error", true)
	v.SetDefault("archive_on_success", true)
	v.SetDefault("archive_retention_days", 30)
	v.SetDefault("server_addr", ":5000")
	v.SetDefault("max_upload_bytes", int64(16<<20))
	v.SetDefault("allowed_extensions", []string{".md", ".markdown", ".txt"})
}

// LoadWith loads the main configuration through an existing viper
// instance, so that callers can bind command-line flags before loading.
//
// PARAMETERS:
//   - v: A viper instance from NewViper, possibly with flags bound.
//   - configPath: The path to the main configuration file. A missing file is
//     not an error; defaults and environment variables still apply.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be parsed or the configuration is invalid.
func LoadWith(v *viper.Viper, configPath string) (*MainConfig, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var config MainConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults fills values that a config file explicitly left
// empty.
func applyMainConfigDefaults(config *MainConfig) {
	if config.GatePolicy == "" {
		config.GatePolicy = GatePolicyFlag
	}
	if config.Encoding == "" {
		config.Encoding = "UTF-8"
	}
	if config.Delimiter == "" {
		config.Delimiter = "|"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.OutputNameFormat == "" {
		config.OutputNameFormat = "{name}_output_{timestamp}_{shortid}.xlsx"
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 16 << 20
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".md", ".markdown", ".txt"}
	}
	for i, ext := range config.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		config.AllowedExtensions[i] = ext
	}
}

// validateMainConfig validates the main configuration and creates the
// working directories.
func validateMainConfig(config *MainConfig) error {
	switch config.GatePolicy {
	case GatePolicyFlag, GatePolicyAbort:
	default:
		return fmt.Errorf("gate_policy must be %q or %q, got %q", GatePolicyFlag, GatePolicyAbort, config.GatePolicy)
	}

	if _, err := zapcore.ParseLevel(config.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	dirs := []string{
		config.InputDir,
		config.OutputDir,
		config.InputArchiveDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
