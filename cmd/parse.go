package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// parseShowRecord also prints the mapped record.
var parseShowRecord bool

var parseCmd = &cobra.Command{
	Use:   "parse <document|->",
	Short: "Print the first table of a document as JSON",
	Long: `The parse command extracts the first table of a document and prints it as
JSON: headers, rows keyed by header, and metadata. Use "-" to read standard
input. With --record the mapped field record is printed as well.`,
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

		conv := a.converter()
		table, err := conv.Parse(data)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}

		var out any = table
		if parseShowRecord {
			out = map[string]any{
				"table":   table,
				"mapping": conv.Map(table),
			}
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().BoolVar(&parseShowRecord, "record", false, "Also print the mapped field record")
}

// readDocument reads a file, or standard input for "-".
func readDocument(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read standard input: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
