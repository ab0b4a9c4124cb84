package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/excelsync/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, mapping tables and the workbook template",
	Long: `The validate command loads the configuration and mapping tables, then
checks that the template has the mapped sheet and a marker next to every
target cell. Nothing is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK (%d mapped fields, sheet %q)\n", len(a.tables.Coordinates), a.tables.Sheet)

		result, err := validation.CheckTemplate(a.cfg.TemplatePath, a.tables)
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), validation.FormatErrors(result.Errors))
		if !result.IsValid {
			return fmt.Errorf("template %s failed validation with %d error(s)", a.cfg.TemplatePath, result.ErrorCount)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
