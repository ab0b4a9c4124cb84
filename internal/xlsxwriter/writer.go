// =============================================================================
// MD to Excel Sync - Workbook Cell Writer Module
// =============================================================================
//
// This module writes a financial record into fixed cells of an XLSX
// template and reports a status for every mapped field.
//
// WRITE PROCESS:
//   1. Open the template and select the mapped sheet. Failure here stops
//      the whole operation (stage "workbook_load").
//   2. Validation gate: every target cell has a marker cell a fixed number
//      of columns to the right. An empty marker marks the mapping invalid.
//      With the "flag" policy writing continues; with "abort" nothing is
//      written and the status is "validation_failed".
//   3. Write each field. A field absent from the record is "missing"; a
//      failed write is "error: <reason>" and never stops the loop.
//   4. Save to the output path, never over the template unless allowed
//      (stage "workbook_save").
//   5. Close the workbook on every path.
//
// =============================================================================

package xlsxwriter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ginjaninja78/excelsync/internal/config"
	"github.com/ginjaninja78/excelsync/internal/normalizer"
	"github.com/ginjaninja78/excelsync/internal/types"
)

const reasonGateAbort = "not written: mapping validation failed"

// =============================================================================
// RESULT STRUCTURES
// =============================================================================

// WriteResult is the outcome of one write operation.
type WriteResult struct {
	// Status is the aggregate outcome.
	Status Status `json:"status"`

	// MappingValid is false when any marker cell was empty.
	MappingValid bool `json:"mappingValid"`

	// WriteStatus has one entry per mapped field, in mapping order.
	WriteStatus WriteStatus `json:"writeStatus"`

	// Errors are human-readable messages for everything that went wrong.
	Errors []string `json:"errors"`

	// Stage is where the operation ended.
	Stage string `json:"stage"`

	// SuccessfulWrites counts fields with status "success".
	SuccessfulWrites int `json:"successfulWrites"`

	// TotalFields is the number of mapped fields.
	TotalFields int `json:"totalFields"`

	// MarkerIssues lists the marker cells that failed the gate.
	MarkerIssues []MarkerIssue `json:"markerIssues,omitempty"`

	// OutputPath is the saved workbook, empty when nothing was saved.
	OutputPath string `json:"outputPath,omitempty"`

	// Err is the operation-level failure, a *StageError, or nil.
	Err error `json:"-"`
}

// MarkerIssue describes one marker cell that failed the gate.
type MarkerIssue struct {
	Field      string `json:"field"`
	Cell       string `json:"cell"`
	MarkerCell string `json:"markerCell"`
	Reason     string `json:"reason"`
}

// =============================================================================
// WRITER
// =============================================================================

// Options configures a Writer.
type Options struct {
	// GatePolicy is config.GatePolicyFlag (default) or config.GatePolicyAbort.
	GatePolicy string

	// AllowInPlace permits an output path equal to the template path.
	AllowInPlace bool

	// Logger receives per-field and gate messages.
	Logger *zap.Logger
}

// Writer writes records into workbook templates. Each call opens its own
// workbook handle, so a Writer is safe for concurrent use as long as the
// output paths differ.
type Writer struct {
	policy       string
	allowInPlace bool
	logger       *zap.Logger
}

// New creates a Writer.
func New(opts Options) *Writer {
	if opts.GatePolicy == "" {
		opts.GatePolicy = config.GatePolicyFlag
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Writer{
		policy:       opts.GatePolicy,
		allowInPlace: opts.AllowInPlace,
		logger:       opts.Logger,
	}
}

// Write projects record onto the mapped cells of the template and saves
// the result to outputPath.
//
// PARAMETERS:
//   - record: Canonical field -> value. Fields outside the mapping are
//     ignored.
//   - mapping: The coordinate table and sheet name.
//   - templatePath: The workbook template. It is never modified unless
//     outputPath equals it and AllowInPlace is set.
//   - outputPath: Where the filled workbook is saved. Parent directories
//     are created.
//
// RETURNS:
//   - The write result. Operation-level failures are reported in Status,
//     Stage and Err; Write never panics on bad input.
func (w *Writer) Write(record *types.Record, mapping *config.MappingTables, templatePath, outputPath string) *WriteResult {
	result := &WriteResult{
		WriteStatus: make(WriteStatus, 0, len(mapping.Coordinates)),
		Errors:      []string{},
		TotalFields: len(mapping.Coordinates),
	}
	log := w.logger.With(zap.String("template", templatePath), zap.String("sheet", mapping.Sheet))

	if !w.allowInPlace && samePath(templatePath, outputPath) {
		return w.fail(result, mapping, NewStageError(StageWorkbookSave, outputPath, ErrInPlaceSave), log)
	}

	f, err := excelize.OpenFile(templatePath)
	if err != nil {
		return w.fail(result, mapping, NewStageError(StageWorkbookLoad, templatePath, err), log)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn("failed to close workbook", zap.Error(err))
		}
	}()

	if idx, err := f.GetSheetIndex(mapping.Sheet); err != nil || idx == -1 {
		if err == nil {
			err = fmt.Errorf("%w: %q", ErrSheetNotFound, mapping.Sheet)
		}
		return w.fail(result, mapping, NewStageError(StageWorkbookLoad, templatePath, err), log)
	}

	// Validation gate.
	result.MarkerIssues = InspectMarkers(f, mapping)
	result.MappingValid = len(result.MarkerIssues) == 0
	if !result.MappingValid {
		for _, issue := range result.MarkerIssues {
			log.Warn("marker cell failed validation",
				zap.String("field", issue.Field),
				zap.String("marker_cell", issue.MarkerCell),
				zap.String("reason", issue.Reason))
		}
		result.Errors = append(result.Errors,
			fmt.Sprintf("mapping validation failed: %d of %d marker cells are empty", len(result.MarkerIssues), len(mapping.Coordinates)))

		if w.policy == config.GatePolicyAbort {
			for _, c := range mapping.Coordinates {
				status := FieldStatus{State: FieldMissing}
				if v, ok := record.Get(c.Field); ok && !v.IsNull() {
					status = FieldStatus{State: FieldError, Reason: reasonGateAbort}
				}
				result.WriteStatus = append(result.WriteStatus, FieldResult{Field: c.Field, Cell: c.Cell, Status: status})
			}
			result.Status = StatusValidationFailed
			result.Stage = StageValidation
			return result
		}
	}

	// Per-field writes.
	var failed []string
	for _, c := range mapping.Coordinates {
		status := w.writeField(f, mapping.Sheet, c, record, log)
		if !status.Succeeded() {
			failed = append(failed, c.Field)
		}
		result.WriteStatus = append(result.WriteStatus, FieldResult{Field: c.Field, Cell: c.Cell, Status: status})
	}
	result.SuccessfulWrites = result.WriteStatus.Count(FieldSuccess)
	if len(failed) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("fields not written: %v", failed))
	}

	// Save.
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return w.fail(result, mapping, NewStageError(StageWorkbookSave, outputPath, err), log)
	}
	if err := f.SaveAs(outputPath); err != nil {
		return w.fail(result, mapping, NewStageError(StageWorkbookSave, outputPath, err), log)
	}

	result.Status = aggregate(result.WriteStatus)
	result.Stage = StageCompleted
	result.OutputPath = outputPath

	log.Info("workbook written",
		zap.String("output", outputPath),
		zap.String("status", string(result.Status)),
		zap.Int("successful_writes", result.SuccessfulWrites),
		zap.Int("total_fields", result.TotalFields),
		zap.Bool("mapping_valid", result.MappingValid))

	return result
}

// writeField writes one coordinate and returns its status.
func (w *Writer) writeField(f *excelize.File, sheet string, c config.Coordinate, record *types.Record, log *zap.Logger) FieldStatus {
	value, ok := record.Get(c.Field)
	if !ok || value.IsNull() {
		log.Debug("field missing from record", zap.String("field", c.Field))
		return FieldStatus{State: FieldMissing}
	}

	if err := f.SetCellValue(sheet, c.Cell, value.Native()); err != nil {
		log.Error("failed to write cell",
			zap.String("field", c.Field),
			zap.String("cell", c.Cell),
			zap.Error(err))
		return FieldStatus{State: FieldError, Reason: err.Error()}
	}

	log.Debug("wrote cell",
		zap.String("field", c.Field),
		zap.String("cell", c.Cell),
		zap.String("value", value.Text()))
	return FieldStatus{State: FieldSuccess}
}

// fail records an operation-level failure. Fields without a status yet get
// an error entry so that every mapped field is still reported.
func (w *Writer) fail(result *WriteResult, mapping *config.MappingTables, err *StageError, log *zap.Logger) *WriteResult {
	log.Error("workbook operation failed", zap.String("stage", err.Stage), zap.Error(err.Err))

	if len(result.WriteStatus) == 0 {
		for _, c := range mapping.Coordinates {
			result.WriteStatus = append(result.WriteStatus, FieldResult{
				Field:  c.Field,
				Cell:   c.Cell,
				Status: FieldStatus{State: FieldError, Reason: err.Stage + " failed"},
			})
		}
	}

	result.Status = StatusError
	result.Stage = err.Stage
	result.Err = err
	result.Errors = append(result.Errors, err.Error())
	return result
}

// =============================================================================
// VALIDATION GATE
// =============================================================================

// InspectMarkers checks the marker cell of every mapped coordinate and
// returns the ones that are empty or unreadable.
func InspectMarkers(f *excelize.File, mapping *config.MappingTables) []MarkerIssue {
	var issues []MarkerIssue
	for _, c := range mapping.Coordinates {
		issue := MarkerIssue{Field: c.Field, Cell: c.Cell}

		markerCell, err := MarkerCell(c.Cell, mapping.MarkerColumnOffset)
		if err != nil {
			issue.Reason = err.Error()
			issues = append(issues, issue)
			continue
		}
		issue.MarkerCell = markerCell

		value, err := f.GetCellValue(mapping.Sheet, markerCell)
		switch {
		case err != nil:
			issue.Reason = err.Error()
		case normalizer.IsBlank(value):
			issue.Reason = "marker cell is empty"
		default:
			continue
		}
		issues = append(issues, issue)
	}
	return issues
}

// MarkerCell returns the cell offset columns to the right of cell.
func MarkerCell(cell string, offset int) (string, error) {
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return "", err
	}
	return excelize.CoordinatesToCellName(col+offset, row)
}

// samePath reports whether two paths name the same file.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
