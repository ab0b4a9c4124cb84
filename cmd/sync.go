package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/excelsync/internal/types"
	"github.com/ginjaninja78/excelsync/internal/validation"
	"github.com/ginjaninja78/excelsync/pkg/utils"
)

// syncOutput is the workbook path for the sync command.
var syncOutput string

// syncNoBackup skips the template backup copy.
var syncNoBackup bool

var syncCmd = &cobra.Command{
	Use:   "sync <record.json|->",
	Short: "Write a JSON field record into the workbook template",
	Long: `The sync command reads a JSON object of field -> value, cleans every value
into a number ("¥1,200" -> 1200, "(300)" -> -300, null -> 0), backs up the
template into the output directory and writes the record into a copy of the
template. The write result is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		data, err := readDocument(args[0])
		if err != nil {
			return err
		}

		var raw types.Record
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse record: %w", err)
		}

		record, findings := validation.PrepareRecord(&raw, a.logger)
		if findings.WarningCount > 0 {
			fmt.Fprint(cmd.ErrOrStderr(), validation.FormatErrors(findings.Errors))
		}

		fm := utils.NewFileManager(a.cfg.InputDir, a.cfg.OutputDir, a.cfg.InputArchiveDir, a.cfg.AllowedExtensions)
		if !syncNoBackup {
			backup, err := fm.BackupTemplate(a.cfg.TemplatePath)
			if err != nil {
				return err
			}
			a.logger.Info("template backed up", zap.String("backup", backup))
		}

		output := syncOutput
		if output == "" {
			name := "record"
			if args[0] != "-" {
				name = utils.FileStem(args[0])
			}
			output = filepath.Join(a.cfg.OutputDir, utils.GenerateOutputFileName(a.cfg.OutputNameFormat, map[string]string{"name": name}))
		}

		result := a.converter().Writer().Write(record, a.tables, a.cfg.TemplatePath, output)
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		if result.Err != nil {
			return result.Err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&syncOutput, "output", "o", "", "Output workbook path (default: generated in output_dir)")
	syncCmd.Flags().BoolVar(&syncNoBackup, "no-backup", false, "Do not back up the template before writing")
}
