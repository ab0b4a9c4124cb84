package xlsxwriter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/excelsync/internal/config"
)

// DefaultMarker is the value placed in marker cells of generated templates.
const DefaultMarker = "○"

// BuildTemplate creates a blank workbook for mapping at path. The mapped
// sheet gets the subject label one column left of each target cell and a
// marker in each marker cell, so the result passes the validation gate.
func BuildTemplate(mapping *config.MappingTables, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), mapping.Sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for _, c := range mapping.Coordinates {
		col, row, err := excelize.CellNameToCoordinates(c.Cell)
		if err != nil {
			return fmt.Errorf("failed to read cell %s: %w", c.Cell, err)
		}
		if col > 1 {
			labelCell, _ := excelize.CoordinatesToCellName(col-1, row)
			if err := f.SetCellValue(mapping.Sheet, labelCell, c.Label); err != nil {
				return fmt.Errorf("failed to write label for %s: %w", c.Field, err)
			}
		}

		markerCell, err := MarkerCell(c.Cell, mapping.MarkerColumnOffset)
		if err != nil {
			return fmt.Errorf("failed to locate marker for %s: %w", c.Field, err)
		}
		if err := f.SetCellValue(mapping.Sheet, markerCell, DefaultMarker); err != nil {
			return fmt.Errorf("failed to write marker for %s: %w", c.Field, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create template directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}
