package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/excelsync/pkg/utils"
)

// cleanDays overrides archive_retention_days.
var cleanDays int

// cleanOutputs also sweeps the output directory.
var cleanOutputs bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove archived documents older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		days := a.cfg.ArchiveRetentionDays
		if cleanDays > 0 {
			days = cleanDays
		}
		if days <= 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Retention is disabled; nothing to clean.")
			return nil
		}
		maxAge := time.Duration(days) * 24 * time.Hour

		dirs := []string{a.cfg.InputArchiveDir}
		if cleanOutputs {
			dirs = append(dirs, a.cfg.OutputDir)
		}

		for _, dir := range dirs {
			removed, err := utils.CleanOldFiles(dir, maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) older than %d day(s) from %s\n", removed, days, dir)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().IntVar(&cleanDays, "days", 0, "Retention in days (default: archive_retention_days)")
	cleanCmd.Flags().BoolVar(&cleanOutputs, "outputs", false, "Also remove old files from the output directory")
}
