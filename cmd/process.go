// =============================================================================
// MD to Excel Sync - Process Command
// =============================================================================
//
// This file defines the 'process' command, the batch entry point. It runs
// the pipeline for every document in the input directory.
//
// COMMAND USAGE:
//   excelsync process [flags]
//
// FLAGS:
//   --file     : Process only this document
//   --dry-run  : Extract and map without writing workbooks
//
// PROCESSING PIPELINE:
//   1. Load configuration and mapping tables
//   2. Discover documents in the input directory
//   3. For each document (concurrently, up to max_concurrency):
//      a. Decode and extract the first table
//      b. Map subject rows onto fields
//      c. Write the record into a copy of the template
//   4. Archive successfully processed documents
//   5. Write the summary report and error log
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/excelsync/internal/converter"
	"github.com/ginjaninja78/excelsync/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// dryRun extracts and maps without writing output files.
var dryRun bool

// filePath restricts processing to one document.
var filePath string

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process documents in the input directory into workbooks",
	Long: `The process command scans the input directory for Markdown documents,
extracts the first table of each, maps its subject lines to fields and writes
a filled copy of the workbook template to the output directory.

Documents are processed concurrently. A failure in one document does not
stop the others unless continue_on_error is false.

On success:
  - The workbook is placed in the output directory
  - The document is moved to the input archive
  - A summary report is generated

On error:
  - An error log is created in the output directory
  - The document remains in the input directory`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().BoolVar(
		&dryRun,
		"dry-run",
		false,
		"Extract and map documents without writing workbooks",
	)

	processCmd.Flags().StringVar(
		&filePath,
		"file",
		"",
		"Path to a single document to process",
	)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startTime := time.Now()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	fmt.Println("=== MD to Excel Sync ===")

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	fm := utils.NewFileManager(a.cfg.InputDir, a.cfg.OutputDir, a.cfg.InputArchiveDir, a.cfg.AllowedExtensions)
	fm.ArchiveOnSuccess = a.cfg.ArchiveOnSuccess
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: DISCOVER INPUT FILES
	// =========================================================================

	var inputFiles []string
	if filePath != "" {
		inputFiles = []string{filePath}
	} else {
		inputFiles, err = fm.DiscoverInputFiles()
		if err != nil {
			return fmt.Errorf("failed to discover input files: %w", err)
		}
	}

	if len(inputFiles) == 0 {
		fmt.Println("No documents found in the input directory.")
		return nil
	}

	fmt.Printf("Found %d file(s) to process\n", len(inputFiles))

	conv := a.converter()
	if dryRun {
		return runDryRun(conv, inputFiles)
	}

	// =========================================================================
	// STEP 3: PROCESS FILES CONCURRENTLY
	// =========================================================================
	// Each goroutine writes only its own slot of results.

	results := make([]*converter.Result, len(inputFiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxConcurrency)

	for i, file := range inputFiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			result := conv.ProcessFile(file)
			results[i] = result

			if !result.Success && !a.cfg.ContinueOnError {
				return fmt.Errorf("processing %s failed at %s: %s", filepath.Base(file), result.Stage, result.Error)
			}
			return nil
		})
	}

	groupErr := g.Wait()

	// =========================================================================
	// STEP 4: ARCHIVE AND COLLECT RESULTS
	// =========================================================================

	summary := utils.ProcessingSummary{
		StartTime:  startTime,
		TotalFiles: len(inputFiles),
	}
	var errorEntries []utils.ErrorLogEntry

	for i, result := range results {
		if result == nil {
			continue
		}

		if result.Success {
			archivePath, err := fm.ArchiveInputFile(inputFiles[i])
			if err != nil {
				a.logger.Warn("failed to archive input file", zap.String("file", inputFiles[i]), zap.Error(err))
				archivePath = ""
			}

			summary.SuccessfulFiles++
			summary.TotalRows += result.Stats.RowsProcessed
			summary.FieldsWritten += result.Stats.FieldsWritten
			summary.ProcessedFiles = append(summary.ProcessedFiles, utils.ProcessedFileInfo{
				InputFile:     inputFiles[i],
				OutputFile:    result.OutputPath,
				ArchivePath:   archivePath,
				Status:        string(result.ExcelWriting.Status),
				Rows:          result.Stats.RowsProcessed,
				FieldsWritten: result.Stats.FieldsWritten,
				TotalFields:   result.Stats.TotalFields,
				ProcessTime:   result.Stats.ProcessingTime,
			})
			fmt.Printf("  [OK]   %s -> %s (%s)\n", filepath.Base(inputFiles[i]), result.OutputFilename, result.ExcelWriting.SuccessRate)
			continue
		}

		summary.FailedFiles++
		summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
			InputFile:    inputFiles[i],
			Stage:        result.Stage,
			ErrorMessage: result.Error,
		})
		for _, msg := range result.Errors {
			errorEntries = append(errorEntries, utils.ErrorLogEntry{
				Timestamp:    time.Now(),
				FileName:     inputFiles[i],
				Stage:        result.Stage,
				ErrorMessage: msg,
			})
		}
		fmt.Printf("  [FAIL] %s: %s (stage %s)\n", filepath.Base(inputFiles[i]), result.Error, result.Stage)
	}

	// =========================================================================
	// STEP 5: GENERATE SUMMARY REPORT
	// =========================================================================

	summary.EndTime = time.Now()

	summaryPath, err := utils.WriteSummaryLog(summary, a.cfg.OutputDir)
	if err != nil {
		a.logger.Warn("failed to write summary", zap.Error(err))
	}

	errorLogPath, err := utils.WriteErrorLog(errorEntries, a.cfg.OutputDir)
	if err != nil {
		a.logger.Warn("failed to write error log", zap.Error(err))
	}

	fmt.Println("\n=== Processing Complete ===")
	fmt.Printf("Total files:  %d\n", summary.TotalFiles)
	fmt.Printf("Successful:   %d\n", summary.SuccessfulFiles)
	fmt.Printf("Failed:       %d\n", summary.FailedFiles)
	fmt.Printf("Total time:   %s\n", summary.EndTime.Sub(startTime).Round(time.Millisecond))
	if summaryPath != "" {
		fmt.Printf("Summary:      %s\n", summaryPath)
	}
	if errorLogPath != "" {
		fmt.Printf("Error log:    %s\n", errorLogPath)
	}

	if groupErr != nil {
		return groupErr
	}
	return nil
}

// runDryRun extracts and maps every document and prints what would be
// written.
func runDryRun(conv *converter.Converter, inputFiles []string) error {
	for _, file := range inputFiles {
		data, err := readDocument(file)
		if err != nil {
			fmt.Printf("  [FAIL] %s: %v\n", filepath.Base(file), err)
			continue
		}
		table, err := conv.Parse(data)
		if err != nil {
			fmt.Printf("  [FAIL] %s: %v\n", filepath.Base(file), err)
			continue
		}
		mapped := conv.Map(table)
		fmt.Printf("  [DRY]  %s: %d row(s), %d field(s) mapped, %d skipped\n",
			filepath.Base(file), len(table.Rows), mapped.Record.Len(), len(mapped.Skipped))
	}
	return nil
}
