// =============================================================================
// MD to Excel Sync - Validation Engine
// =============================================================================
//
// This module checks the two inputs of a sync run before anything is
// written:
//   - Records supplied from outside (JSON files) are cleaned into numbers.
//   - Templates are checked for the marker cells of every mapped field.
//
// CLEANING RULES:
//   - Numbers pass through as floats; booleans become 1 or 0
//   - Null values become 0
//   - Strings drop ",", "¥" and "￥"; "(x)" means -x
//   - Strings that still do not parse are kept unchanged with a warning
//
// ERROR HANDLING:
//   - Errors are collected, not returned immediately
//   - Warnings never make a result invalid
//
// =============================================================================

package validation

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ginjaninja78/excelsync/internal/config"
	"github.com/ginjaninja78/excelsync/internal/types"
	"github.com/ginjaninja78/excelsync/internal/xlsxwriter"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Rules reported in ValidationError.Rule.
const (
	RuleNumeric = "numeric"
	RuleSheet   = "sheet"
	RuleMarker  = "marker"
)

var currencyCleaner = strings.NewReplacer(",", "", "¥", "", "￥", "")

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation finding.
type ValidationError struct {
	// Severity is "error" or "warning".
	Severity string `json:"severity"`

	// Field is the canonical field the finding is about.
	Field string `json:"field,omitempty"`

	// Cell is the workbook cell involved, if any.
	Cell string `json:"cell,omitempty"`

	// Value is the offending value.
	Value string `json:"value,omitempty"`

	// Rule is the check that failed.
	Rule string `json:"rule"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", strings.ToUpper(e.Severity), e.Rule)
	if e.Field != "" {
		fmt.Fprintf(&sb, " field '%s'", e.Field)
	}
	if e.Cell != "" {
		fmt.Fprintf(&sb, " cell %s", e.Cell)
	}
	fmt.Fprintf(&sb, ": %s", e.Message)
	if e.Value != "" {
		fmt.Fprintf(&sb, " (value: '%s')", e.Value)
	}
	return sb.String()
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no errors. Warnings do not count.
	IsValid bool `json:"isValid"`

	// Errors contains all findings, including warnings.
	Errors []*ValidationError `json:"errors"`

	// ErrorCount is the number of errors.
	ErrorCount int `json:"errorCount"`

	// WarningCount is the number of warnings.
	WarningCount int `json:"warningCount"`

	// FieldsValidated is the number of fields looked at.
	FieldsValidated int `json:"fieldsValidated"`
}

func newResult() *ValidationResult {
	return &ValidationResult{IsValid: true, Errors: []*ValidationError{}}
}

func (r *ValidationResult) add(e *ValidationError) {
	r.Errors = append(r.Errors, e)
	if e.Severity == SeverityError {
		r.ErrorCount++
		r.IsValid = false
		return
	}
	r.WarningCount++
}

// =============================================================================
// RECORD PREPARATION
// =============================================================================

// PrepareRecord cleans every value of record into a float where possible.
//
// PARAMETERS:
//   - record: The raw record, typically decoded from JSON.
//   - logger: Receives one warning per value kept unchanged. nil is allowed.
//
// RETURNS:
//   - A new record with the same field order.
//   - The findings; unparsable values appear as warnings.
func PrepareRecord(record *types.Record, logger *zap.Logger) (*types.Record, *ValidationResult) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cleaned := types.NewRecord()
	result := newResult()

	for _, field := range record.Fields() {
		value, _ := record.Get(field)
		result.FieldsValidated++

		n, err := CleanNumericValue(value)
		if err != nil {
			logger.Warn("keeping value unchanged", zap.String("field", field), zap.Error(err))
			result.add(&ValidationError{
				Severity: SeverityWarning,
				Field:    field,
				Value:    value.Text(),
				Rule:     RuleNumeric,
				Message:  err.Error(),
			})
			cleaned.Set(field, value)
			continue
		}
		cleaned.Set(field, types.Float(n))
	}

	return cleaned, result
}

// CleanNumericValue converts a value to a float.
func CleanNumericValue(v types.Value) (float64, error) {
	switch v.Kind() {
	case types.KindNull:
		return 0, nil
	case types.KindInt, types.KindFloat:
		n, _ := v.Number()
		return n, nil
	case types.KindBool:
		if b, _ := v.AsBool(); b {
			return 1, nil
		}
		return 0, nil
	}

	raw, _ := v.AsString()
	s := strings.TrimSpace(currencyCleaner.Replace(raw))
	if len(s) >= 2 && strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %q to a number", raw)
	}
	return d.InexactFloat64(), nil
}

// =============================================================================
// TEMPLATE CHECK
// =============================================================================

// CheckTemplate opens the template read-only and checks the marker cell of
// every mapped field.
//
// RETURNS:
//   - The findings. A missing sheet or an empty marker is an error.
//   - An error if the workbook cannot be opened at all.
func CheckTemplate(templatePath string, mapping *config.MappingTables) (*ValidationResult, error) {
	f, err := excelize.OpenFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	defer f.Close()

	result := newResult()

	if idx, err := f.GetSheetIndex(mapping.Sheet); err != nil || idx == -1 {
		result.add(&ValidationError{
			Severity: SeverityError,
			Rule:     RuleSheet,
			Value:    mapping.Sheet,
			Message:  xlsxwriter.ErrSheetNotFound.Error(),
		})
		return result, nil
	}

	result.FieldsValidated = len(mapping.Coordinates)
	for _, issue := range xlsxwriter.InspectMarkers(f, mapping) {
		result.add(&ValidationError{
			Severity: SeverityError,
			Field:    issue.Field,
			Cell:     issue.MarkerCell,
			Rule:     RuleMarker,
			Message:  issue.Reason,
		})
	}

	return result, nil
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors.\n"
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Validation completed with %d finding(s):\n\n", len(errors))
	for i, err := range errors {
		fmt.Fprintf(&builder, "%d. %s\n", i+1, err.Error())
	}
	return builder.String()
}

// WriteErrorLog writes validation errors to a log file.
func WriteErrorLog(errors []*ValidationError, filePath string) error {
	if err := os.WriteFile(filePath, []byte(FormatErrors(errors)), 0644); err != nil {
		return fmt.Errorf("failed to write validation log: %w", err)
	}
	return nil
}
