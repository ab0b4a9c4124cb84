// =============================================================================
// MD to Excel Sync - Table Extractor Module
// =============================================================================
//
// This module turns raw document text into an ordered table of typed values.
// Documents come in two table dialects:
//
//   1. Markup tables:    <table><tr><td>...</td></tr></table> embedded in the
//                        document. These are tried first.
//   2. Delimiter tables: pipe-delimited lines, optionally followed by a
//                        "|---|:---:|" separator row.
//
// EXTRACTION RULES:
//   - A markup table wins when it has a header row and at least one data row,
//     even if a delimiter table appears elsewhere in the document.
//   - Otherwise consecutive delimiter lines form blocks and the first block
//     with at least two lines is used.
//   - Every row is padded with nulls or truncated to the header count.
//   - Extraction never fails. A document without a table yields an empty
//     table whose metadata type is "none".
//
// =============================================================================

package extractor

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/ginjaninja78/excelsync/internal/normalizer"
	"github.com/ginjaninja78/excelsync/internal/types"
)

// DefaultDelimiter separates cells in a delimiter table.
const DefaultDelimiter = "|"

// =============================================================================
// EXTRACTOR
// =============================================================================

// Options configures an Extractor.
type Options struct {
	// Delimiter is the cell separator of delimiter tables.
	// Default: "|"
	Delimiter string

	// Logger receives debug output about which path produced the table.
	// Default: a no-op logger
	Logger *zap.Logger
}

// Extractor extracts the first table of a document. It holds no per-call
// state and is safe for concurrent use.
type Extractor struct {
	delimiter string
	logger    *zap.Logger
}

// New creates an Extractor from opts, applying defaults for unset fields.
func New(opts Options) *Extractor {
	if opts.Delimiter == "" {
		opts.Delimiter = DefaultDelimiter
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Extractor{
		delimiter: opts.Delimiter,
		logger:    opts.Logger,
	}
}

var defaultExtractor = New(Options{})

// Extract runs the default pipe-delimited extractor over text.
func Extract(text string) *types.Table {
	return defaultExtractor.Extract(text)
}

// Extract returns the first table found in text.
//
// PARAMETERS:
//   - text: The decoded document content.
//
// RETURNS:
//   - The extracted table. It is never nil. When no table is found the
//     headers and rows are empty and Metadata.Type is "none".
func (e *Extractor) Extract(text string) *types.Table {
	title := markdownTitle(text)

	// Markup tables take priority.
	if table, ok := e.extractMarkup(text); ok {
		if table.Metadata.Title == "" {
			table.Metadata.Title = title
		}
		e.logger.Debug("extracted markup table",
			zap.Int("columns", table.Metadata.Columns),
			zap.Int("rows", table.Metadata.Rows))
		return table
	}

	blocks := e.splitBlocks(text)
	for _, block := range blocks {
		if len(block) < 2 {
			continue
		}

		table := e.parseBlock(block, len(blocks))
		table.Metadata.Title = title
		e.logger.Debug("extracted delimiter table",
			zap.Int("blocks", len(blocks)),
			zap.Int("columns", table.Metadata.Columns),
			zap.Int("rows", table.Metadata.Rows))
		return table
	}

	e.logger.Debug("no table found in document", zap.Int("blocks", len(blocks)))
	empty := types.EmptyTable()
	empty.Metadata.Title = title
	return empty
}

// =============================================================================
// DELIMITER TABLES
// =============================================================================

// isTableRow reports whether a line belongs to a delimiter table. Any line
// containing the delimiter qualifies.
func (e *Extractor) isTableRow(line string) bool {
	return strings.Contains(line, e.delimiter)
}

// splitBlocks groups consecutive table-row lines. Lines are returned
// trimmed.
func (e *Extractor) splitBlocks(text string) [][]string {
	var (
		blocks  [][]string
		current []string
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if e.isTableRow(line) {
			current = append(current, line)
			continue
		}
		if len(current) > 0 {
			blocks = append(blocks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}

	return blocks
}

// parseBlock turns a block of at least two lines into a table.
func (e *Extractor) parseBlock(block []string, blockCount int) *types.Table {
	headers := e.splitRow(block[0])

	start := 1
	if e.isSeparatorRow(block[1]) {
		start = 2
	}

	rows := make([][]types.Value, 0, len(block)-start)
	texts := make([][]string, 0, len(block)-start)
	for _, line := range block[start:] {
		cells := e.splitRow(line)
		rows = append(rows, normalizeCells(cells))
		texts = append(texts, cells)
	}

	return types.NewTableWithText(headers, rows, texts, types.TableTypeMarkdown, blockCount)
}

func normalizeCells(cells []string) []types.Value {
	values := make([]types.Value, len(cells))
	for i, c := range cells {
		values[i] = normalizer.Normalize(c)
	}
	return values
}

// splitRow strips one leading and one trailing delimiter, then splits the
// line into trimmed cells.
func (e *Extractor) splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, e.delimiter)
	line = strings.TrimSuffix(line, e.delimiter)

	cells := strings.Split(line, e.delimiter)
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// isSeparatorRow reports whether line consists only of delimiters, dashes,
// colons and white space.
func (e *Extractor) isSeparatorRow(line string) bool {
	rest := strings.ReplaceAll(line, e.delimiter, "")
	if strings.TrimSpace(line) == "" {
		return false
	}
	for _, r := range rest {
		if r != '-' && r != ':' && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
