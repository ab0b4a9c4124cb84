// =============================================================================
// MD to Excel Sync - Version Command
// =============================================================================
//
// This file defines the 'version' command. Besides the build information it
// reports the built-in mapping tables, since a template must match the
// mapping revision the binary ships with.
//
// COMMAND USAGE:
//   excelsync version [--json]
//
// OUTPUT:
//   MD to Excel Sync
//   Version:    1.0.0
//   Build Date: 2024-01-01
//   Go Version: go1.24.0
//   Mapping:    A社貼り付けBS, 34 fields, 92 labels
//
// =============================================================================

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/excelsync/internal/config"
)

// These variables are set at build time using ldflags:
//   go build -ldflags "-X 'github.com/ginjaninja78/excelsync/cmd.Version=1.0.0' -X 'github.com/ginjaninja78/excelsync/cmd.BuildDate=2024-01-01'"
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
)

var versionJSON bool

// versionInfo is the --json form of the command output.
type versionInfo struct {
	Version       string `json:"version"`
	BuildDate     string `json:"build_date"`
	GoVersion     string `json:"go_version"`
	MappingSheet  string `json:"mapping_sheet"`
	MappingFields int    `json:"mapping_fields"`
	MappingLabels int    `json:"mapping_labels"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Long:  `Display the application version, build date, Go runtime version and the built-in mapping tables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := config.DefaultMappings()
		if err != nil {
			return fmt.Errorf("failed to load built-in mapping: %w", err)
		}

		info := versionInfo{
			Version:       Version,
			BuildDate:     BuildDate,
			GoVersion:     runtime.Version(),
			MappingSheet:  tables.Sheet,
			MappingFields: len(tables.Coordinates),
			MappingLabels: len(tables.Coordinates) + len(tables.Labels) + len(tables.Totals),
		}

		out := cmd.OutOrStdout()
		if versionJSON {
			return writeJSON(out, info)
		}

		fmt.Fprintln(out, "MD to Excel Sync")
		fmt.Fprintf(out, "Version:    %s\n", info.Version)
		fmt.Fprintf(out, "Build Date: %s\n", info.BuildDate)
		fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
		fmt.Fprintf(out, "Mapping:    %s, %d fields, %d labels\n", info.MappingSheet, info.MappingFields, info.MappingLabels)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print version information as JSON")
	rootCmd.AddCommand(versionCmd)
}
