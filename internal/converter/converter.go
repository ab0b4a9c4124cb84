// =============================================================================
// MD to Excel Sync - Converter Module
// =============================================================================
//
// This module contains the core conversion logic. It orchestrates the entire
// pipeline for a single document, from raw bytes to a filled workbook.
//
// CONVERSION PIPELINE:
//   1. Decode the document bytes (stage "file_reading")
//   2. Extract the first table (stage "md_parsing")
//   3. Map subject rows onto canonical fields
//   4. Name the output workbook
//   5. Write the record into a copy of the template
//      (stages "workbook_load", "validation", "workbook_save", "completed")
//
// CONCURRENCY:
//   A Converter holds only read-only state. Each call opens its own workbook
//   handle and writes a distinct output file, so one Converter may process
//   many documents concurrently.
//
// =============================================================================

package converter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ginjaninja78/excelsync/internal/config"
	"github.com/ginjaninja78/excelsync/internal/extractor"
	"github.com/ginjaninja78/excelsync/internal/mapper"
	"github.com/ginjaninja78/excelsync/internal/types"
	"github.com/ginjaninja78/excelsync/internal/xlsxwriter"
	"github.com/ginjaninja78/excelsync/pkg/utils"
)

// Pipeline stages reported before the workbook writer takes over.
const (
	StageFileReading = "file_reading"
	StageMDParsing   = "md_parsing"
)

// ErrNoTableData is returned when a document holds no table with data rows.
var ErrNoTableData = errors.New("no table with data rows found in document")

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of processing a single document.
type Result struct {
	// Success is true when the workbook was saved with status "success" or
	// "partial_success".
	Success bool `json:"success"`

	// Timestamp marks the start of processing (YYYYMMDD_HHMMSS).
	Timestamp string `json:"timestamp"`

	// InputFilename is the name of the processed document.
	InputFilename string `json:"input_filename"`

	// OutputFilename is the base name of the generated workbook.
	// This is empty if nothing was saved.
	OutputFilename string `json:"output_filename,omitempty"`

	// OutputPath is the full path to the generated workbook.
	OutputPath string `json:"output_path,omitempty"`

	// Stage is where processing ended.
	Stage string `json:"stage"`

	// MDParsing summarizes the extracted table.
	MDParsing *ParsingSummary `json:"md_parsing,omitempty"`

	// Mapping summarizes label resolution.
	Mapping *MappingSummary `json:"mapping,omitempty"`

	// ExcelWriting summarizes the workbook write.
	ExcelWriting *WritingSummary `json:"excel_writing,omitempty"`

	// Errors collects every message produced along the way.
	Errors []string `json:"errors"`

	// Error is the message of the failure that stopped processing.
	Error string `json:"error,omitempty"`

	// Err is the failure that stopped processing, or nil.
	Err error `json:"-"`

	// Stats contains processing statistics.
	Stats ProcessingStats `json:"-"`
}

// ParsingSummary describes the extracted table.
type ParsingSummary struct {
	Headers   []string       `json:"headers"`
	RowsCount int            `json:"rows_count"`
	Metadata  types.Metadata `json:"metadata"`
}

// MappingSummary describes label resolution.
type MappingSummary struct {
	FieldsMapped int                 `json:"fields_mapped"`
	Fallbacks    int                 `json:"fallbacks"`
	Skipped      []mapper.SkippedRow `json:"skipped"`
}

// WritingSummary describes the workbook write.
type WritingSummary struct {
	Status           xlsxwriter.Status        `json:"status"`
	TotalFields      int                      `json:"total_fields"`
	SuccessfulWrites int                      `json:"successful_writes"`
	SuccessRate      string                   `json:"success_rate"`
	WriteStatus      xlsxwriter.WriteStatus   `json:"write_status"`
	MappingValid     bool                     `json:"mapping_valid"`
	MarkerIssues     []xlsxwriter.MarkerIssue `json:"marker_issues,omitempty"`
}

// ProcessingStats contains statistics about the processing.
type ProcessingStats struct {
	// RowsProcessed is the number of table rows read.
	RowsProcessed int

	// FieldsMapped is the number of canonical fields in the record.
	FieldsMapped int

	// FieldsWritten is the number of cells written.
	FieldsWritten int

	// TotalFields is the number of mapped cells.
	TotalFields int

	// ProcessingTime is the time taken to process the document.
	ProcessingTime time.Duration
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Converter runs the pipeline for single documents.
type Converter struct {
	cfg       *config.MainConfig
	mapping   *config.MappingTables
	extractor *extractor.Extractor
	mapper    *mapper.Mapper
	writer    *xlsxwriter.Writer
	logger    *zap.Logger
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// New creates a new Converter instance.
//
// PARAMETERS:
//   - cfg: The main application configuration.
//   - tables: The label and cell mapping tables.
//   - logger: Destination for pipeline logs. nil disables logging.
//
// RETURNS:
//   - A new Converter instance.
func New(cfg *config.MainConfig, tables *config.MappingTables, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{
		cfg:     cfg,
		mapping: tables,
		extractor: extractor.New(extractor.Options{
			Delimiter: cfg.Delimiter,
			Logger:    logger,
		}),
		mapper: mapper.New(mapper.NewLabelTable(tables), mapper.Options{
			SubstringFallback: cfg.SubstringFallback,
			Logger:            logger,
		}),
		writer: xlsxwriter.New(xlsxwriter.Options{
			GatePolicy:   cfg.GatePolicy,
			AllowInPlace: cfg.AllowInPlace,
			Logger:       logger,
		}),
		logger: logger,
	}
}

// Mapping returns the mapping tables the converter writes with.
func (c *Converter) Mapping() *config.MappingTables {
	return c.mapping
}

// Writer returns the workbook writer configured for this converter.
func (c *Converter) Writer() *xlsxwriter.Writer {
	return c.writer
}

// =============================================================================
// MAIN PROCESSING FUNCTIONS
// =============================================================================

// ProcessFile reads a document from disk and runs the pipeline on it.
func (c *Converter) ProcessFile(path string) *Result {
	data, err := os.ReadFile(path)
	if err != nil {
		result := c.newResult(filepath.Base(path))
		return c.fail(result, StageFileReading, fmt.Errorf("failed to read document: %w", err), time.Now())
	}
	return c.ProcessContent(data, filepath.Base(path))
}

// ProcessContent runs the pipeline on document bytes.
//
// PARAMETERS:
//   - data: The raw document in the configured encoding.
//   - filename: The document name. Its stem names the output workbook.
//
// RETURNS:
//   - The processing result. ProcessContent never panics on bad input;
//     failures are reported through Stage, Error and Err.
func (c *Converter) ProcessContent(data []byte, filename string) *Result {
	startTime := time.Now()
	result := c.newResult(filename)
	log := c.logger.With(zap.String("file", filename))

	// =========================================================================
	// STEP 1: DECODE DOCUMENT
	// =========================================================================

	log.Info("processing document", zap.Int("bytes", len(data)))

	text, err := extractor.DecodeDocument(data, c.cfg.Encoding)
	if err != nil {
		return c.fail(result, StageFileReading, err, startTime)
	}

	return c.process(text, result, log, startTime)
}

// ProcessText runs the pipeline on text that is already decoded, such as
// the content field of a JSON request. The configured encoding is not
// applied.
func (c *Converter) ProcessText(text, filename string) *Result {
	startTime := time.Now()
	result := c.newResult(filename)
	log := c.logger.With(zap.String("file", filename))

	log.Info("processing document text", zap.Int("bytes", len(text)))

	return c.process(text, result, log, startTime)
}

// process runs extraction, mapping and writing on decoded text.
func (c *Converter) process(text string, result *Result, log *zap.Logger, startTime time.Time) *Result {
	filename := result.InputFilename

	// =========================================================================
	// STEP 2: EXTRACT TABLE
	// =========================================================================
	// Only the first recognized table is used. A document without data
	// rows stops here.

	table := c.extractor.Extract(text)
	result.Stats.RowsProcessed = len(table.Rows)
	result.MDParsing = &ParsingSummary{
		Headers:   table.Headers,
		RowsCount: len(table.Rows),
		Metadata:  table.Metadata,
	}

	if len(table.Rows) == 0 {
		return c.fail(result, StageMDParsing, ErrNoTableData, startTime)
	}

	log.Debug("extracted table",
		zap.String("type", string(table.Metadata.Type)),
		zap.Int("rows", len(table.Rows)),
		zap.Int("columns", len(table.Headers)))

	// =========================================================================
	// STEP 3: MAP SUBJECT ROWS
	// =========================================================================

	mapped := c.mapper.Map(table)
	result.Stats.FieldsMapped = mapped.Record.Len()
	result.Mapping = &MappingSummary{
		FieldsMapped: mapped.Record.Len(),
		Fallbacks:    mapped.Fallbacks,
		Skipped:      mapped.Skipped,
	}

	log.Debug("mapped record", zap.Int("fields", mapped.Record.Len()), zap.Int("skipped", len(mapped.Skipped)))

	// =========================================================================
	// STEP 4: NAME OUTPUT
	// =========================================================================

	outputName := utils.GenerateOutputFileName(c.cfg.OutputNameFormat, map[string]string{
		"name": utils.FileStem(filename),
	})
	outputPath := filepath.Join(c.cfg.OutputDir, outputName)

	// =========================================================================
	// STEP 5: WRITE WORKBOOK
	// =========================================================================

	written := c.writer.Write(mapped.Record, c.mapping, c.cfg.TemplatePath, outputPath)
	c.applyWriteResult(result, written)

	// =========================================================================
	// COMPLETE
	// =========================================================================

	result.Stats.ProcessingTime = time.Since(startTime)

	if result.Success {
		log.Info("document processed",
			zap.String("output", result.OutputFilename),
			zap.String("success_rate", result.ExcelWriting.SuccessRate),
			zap.Duration("elapsed", result.Stats.ProcessingTime))
	} else {
		log.Warn("document not fully processed",
			zap.String("status", string(written.Status)),
			zap.String("stage", result.Stage))
	}

	return result
}

// Parse decodes and extracts a document without writing anything.
func (c *Converter) Parse(data []byte) (*types.Table, error) {
	text, err := extractor.DecodeDocument(data, c.cfg.Encoding)
	if err != nil {
		return nil, err
	}
	return c.ParseText(text), nil
}

// ParseText extracts a table from already decoded text.
func (c *Converter) ParseText(text string) *types.Table {
	return c.extractor.Extract(text)
}

// Map maps an extracted table onto canonical fields without writing.
func (c *Converter) Map(table *types.Table) *mapper.Result {
	return c.mapper.Map(table)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (c *Converter) newResult(filename string) *Result {
	return &Result{
		Timestamp:     time.Now().Format("20060102_150405"),
		InputFilename: filename,
		Errors:        []string{},
	}
}

// applyWriteResult copies the writer outcome into result.
func (c *Converter) applyWriteResult(result *Result, written *xlsxwriter.WriteResult) {
	result.Stage = written.Stage
	result.Errors = append(result.Errors, written.Errors...)
	result.Success = written.Status == xlsxwriter.StatusSuccess || written.Status == xlsxwriter.StatusPartialSuccess
	result.Stats.FieldsWritten = written.SuccessfulWrites
	result.Stats.TotalFields = written.TotalFields

	result.ExcelWriting = &WritingSummary{
		Status:           written.Status,
		TotalFields:      written.TotalFields,
		SuccessfulWrites: written.SuccessfulWrites,
		SuccessRate:      successRate(written.SuccessfulWrites, written.TotalFields),
		WriteStatus:      written.WriteStatus,
		MappingValid:     written.MappingValid,
		MarkerIssues:     written.MarkerIssues,
	}

	if written.OutputPath != "" {
		result.OutputPath = written.OutputPath
		result.OutputFilename = filepath.Base(written.OutputPath)
	}

	switch {
	case written.Err != nil:
		result.Err = written.Err
		result.Error = written.Err.Error()
	case written.Status == xlsxwriter.StatusValidationFailed:
		result.Err = fmt.Errorf("mapping validation failed: %d marker cells are empty", len(written.MarkerIssues))
		result.Error = result.Err.Error()
	}
}

// fail records a failure that stopped the pipeline.
func (c *Converter) fail(result *Result, stage string, err error, startTime time.Time) *Result {
	c.logger.Error("document processing failed",
		zap.String("file", result.InputFilename),
		zap.String("stage", stage),
		zap.Error(err))

	result.Success = false
	result.Stage = stage
	result.Err = err
	result.Error = err.Error()
	result.Errors = append(result.Errors, err.Error())
	result.Stats.ProcessingTime = time.Since(startTime)
	return result
}

// successRate formats successful/total as a percentage with one decimal.
func successRate(successful, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(successful)/float64(total)*100)
}
