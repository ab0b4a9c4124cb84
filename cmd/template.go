package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/excelsync/internal/xlsxwriter"
	"github.com/ginjaninja78/excelsync/pkg/utils"
)

// templateForce allows overwriting an existing template.
var templateForce bool

var templateCmd = &cobra.Command{
	Use:   "template [path]",
	Short: "Generate a blank workbook template for the mapping tables",
	Long: `The template command writes a workbook with the mapped sheet, the subject
label left of every target cell and a marker in every marker cell. The path
defaults to template_path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		path := a.cfg.TemplatePath
		if len(args) == 1 {
			path = args[0]
		}
		if utils.FileExists(path) && !templateForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := xlsxwriter.BuildTemplate(a.tables, path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templateCmd)

	templateCmd.Flags().BoolVar(&templateForce, "force", false, "Overwrite an existing file")
}
