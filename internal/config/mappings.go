package config

import (
	"embed"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAPPING TABLES
// =============================================================================

//go:embed mappings/*.yaml
var embeddedMappings embed.FS

// DefaultMappingFile is the embedded trial-balance mapping.
const DefaultMappingFile = "mappings/trial_balance.yaml"

// MappingTables holds the static label and coordinate tables used by every
// pipeline run. It is read-only once loaded.
type MappingTables struct {
	// Name identifies the mapping in logs.
	Name string `yaml:"name"`

	// Template is the default template file name for this mapping.
	Template string `yaml:"template"`

	// Sheet is the worksheet all coordinates refer to.
	Sheet string `yaml:"sheet"`

	// MarkerColumnOffset is the column distance from a target cell to its
	// marker cell on the same row.
	// Default: 1 (D -> E)
	MarkerColumnOffset int `yaml:"marker_column_offset"`

	// LabelHeaders are the candidate headers of the subject label column,
	// tried in order. The empty string names the leftmost unlabeled column.
	LabelHeaders []string `yaml:"label_headers"`

	// AmountHeaders are the candidate headers of the current-period amount
	// column, tried in order.
	AmountHeaders []string `yaml:"amount_headers"`

	// Coordinates maps each canonical field to a target cell.
	Coordinates []Coordinate `yaml:"coordinates"`

	// Labels are additional label -> field aliases.
	Labels []LabelAlias `yaml:"labels"`

	// Totals are subtotal labels checked before the label table.
	Totals []LabelAlias `yaml:"totals"`

	// Repeated lists labels that appear more than once per statement.
	Repeated []RepeatedLabel `yaml:"repeated"`
}

// Coordinate is one field -> cell entry.
type Coordinate struct {
	Field       string `yaml:"field" json:"field"`
	Cell        string `yaml:"cell" json:"cell"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// LabelAlias maps a subject label to a canonical field.
type LabelAlias struct {
	Label string `yaml:"label"`
	Field string `yaml:"field"`
}

// RepeatedLabel assigns successive occurrences of Label to Fields.
type RepeatedLabel struct {
	Label  string   `yaml:"label"`
	Fields []string `yaml:"fields"`
}

var (
	defaultTables     *MappingTables
	defaultTablesErr  error
	defaultTablesOnce sync.Once
)

// DefaultMappings returns the embedded trial-balance tables. They are
// parsed on first use and shared afterwards.
func DefaultMappings() (*MappingTables, error) {
	defaultTablesOnce.Do(func() {
		data, err := embeddedMappings.ReadFile(DefaultMappingFile)
		if err != nil {
			defaultTablesErr = fmt.Errorf("failed to read embedded mapping: %w", err)
			return
		}
		defaultTables, defaultTablesErr = ParseMappings(data)
	})
	return defaultTables, defaultTablesErr
}

// LoadMappings returns the mapping tables for path, or the embedded
// defaults when path is empty.
//
// PARAMETERS:
//   - path: A YAML mapping file. Empty selects the embedded tables.
//
// RETURNS:
//   - The validated mapping tables.
//   - An error if the file cannot be read, parsed or validated.
func LoadMappings(path string) (*MappingTables, error) {
	if path == "" {
		return DefaultMappings()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	tables, err := ParseMappings(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return tables, nil
}

// ParseMappings decodes and validates a YAML mapping document.
func ParseMappings(data []byte) (*MappingTables, error) {
	var tables MappingTables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}

	applyMappingDefaults(&tables)

	if err := validateMappings(&tables); err != nil {
		return nil, fmt.Errorf("invalid mapping: %w", err)
	}
	return &tables, nil
}

// applyMappingDefaults sets default values for unset mapping options.
func applyMappingDefaults(t *MappingTables) {
	if t.MarkerColumnOffset == 0 {
		t.MarkerColumnOffset = 1
	}
	if len(t.LabelHeaders) == 0 {
		t.LabelHeaders = []string{""}
	}
	if len(t.AmountHeaders) == 0 {
		t.AmountHeaders = []string{"当月残高"}
	}
}

// validateMappings enforces a one-to-one field -> cell table with valid
// cell names, and marker cells that stay on the sheet.
func validateMappings(t *MappingTables) error {
	if t.Sheet == "" {
		return fmt.Errorf("sheet is required")
	}
	if len(t.Coordinates) == 0 {
		return fmt.Errorf("at least one coordinate is required")
	}

	fields := make(map[string]struct{}, len(t.Coordinates))
	cells := make(map[string]string, len(t.Coordinates))
	for i, c := range t.Coordinates {
		if c.Field == "" {
			return fmt.Errorf("coordinate %d has no field", i)
		}
		if _, dup := fields[c.Field]; dup {
			return fmt.Errorf("field %q is mapped more than once", c.Field)
		}
		fields[c.Field] = struct{}{}

		col, row, err := excelize.CellNameToCoordinates(c.Cell)
		if err != nil {
			return fmt.Errorf("field %q: %w", c.Field, err)
		}
		if col+t.MarkerColumnOffset < 1 {
			return fmt.Errorf("field %q: marker column is off the sheet", c.Field)
		}

		// Normalize "d4" and "D4" to one key.
		canonical, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return fmt.Errorf("field %q: %w", c.Field, err)
		}
		if other, dup := cells[canonical]; dup {
			return fmt.Errorf("cell %s is shared by %q and %q", canonical, other, c.Field)
		}
		cells[canonical] = c.Field
	}

	for _, r := range t.Repeated {
		if r.Label == "" || len(r.Fields) == 0 {
			return fmt.Errorf("repeated label entries need a label and at least one field")
		}
	}
	for _, a := range append(append([]LabelAlias{}, t.Totals...), t.Labels...) {
		if a.Label == "" || a.Field == "" {
			return fmt.Errorf("label alias entries need both label and field")
		}
	}
	return nil
}

// Fields returns the canonical fields in coordinate order.
func (t *MappingTables) Fields() []string {
	out := make([]string, len(t.Coordinates))
	for i, c := range t.Coordinates {
		out[i] = c.Field
	}
	return out
}

// CellFor returns the target cell of field.
func (t *MappingTables) CellFor(field string) (string, bool) {
	for _, c := range t.Coordinates {
		if c.Field == field {
			return c.Cell, true
		}
	}
	return "", false
}
