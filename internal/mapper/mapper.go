// =============================================================================
// MD to Excel Sync - Subject Field Mapper Module
// =============================================================================
//
// This module maps the rows of an extracted table onto canonical financial
// fields. Each row contributes a subject label (the leftmost, usually
// unlabeled, column) and an amount (the current-period balance column).
//
// LABEL RESOLUTION (first match wins):
//   1. Clean the label: drop 【】 emphasis, fold width, trim.
//   2. Repeated labels: the n-th occurrence of a label such as 資本金 maps to
//      the n-th configured field. The occurrence counter lives in the Map
//      call, never in the Mapper.
//   3. Subtotal labels that map straight to total fields.
//   4. The label table, exact match first, then substring containment.
//   5. Otherwise the row is skipped.
//
// Rows resolving to a field already in the record overwrite it.
//
// =============================================================================

package mapper

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ginjaninja78/excelsync/internal/config"
	"github.com/ginjaninja78/excelsync/internal/normalizer"
	"github.com/ginjaninja78/excelsync/internal/types"
)

// Resolution names how a label was matched.
type Resolution string

const (
	ResolvedRepeated Resolution = "repeated"
	ResolvedTotal    Resolution = "total"
	ResolvedExact    Resolution = "exact"
	ResolvedFallback Resolution = "fallback"
)

// Skip reasons.
const (
	SkipNoLabel  = "no label"
	SkipNoField  = "no field for label"
	SkipNoAmount = "no amount"
)

// =============================================================================
// RESULT STRUCTURES
// =============================================================================

// MappedRow describes one row stored in the record.
type MappedRow struct {
	Row        int        `json:"row"`
	Label      string     `json:"label"`
	Field      string     `json:"field"`
	Amount     float64    `json:"amount"`
	Resolution Resolution `json:"resolution"`

	// MatchedLabel is the table label a fallback matched against.
	MatchedLabel string `json:"matchedLabel,omitempty"`
}

// SkippedRow describes a row that contributed nothing.
type SkippedRow struct {
	Row    int    `json:"row"`
	Label  string `json:"label,omitempty"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// Result is the outcome of mapping one table.
type Result struct {
	// Record holds canonical field -> amount, in order of first appearance.
	Record *types.Record `json:"record"`

	// Mapped lists every row that wrote to the record.
	Mapped []MappedRow `json:"mapped"`

	// Skipped lists rows without label, field or amount.
	Skipped []SkippedRow `json:"skipped"`

	// Fallbacks counts substring-fallback matches.
	Fallbacks int `json:"fallbacks"`
}

// =============================================================================
// MAPPER
// =============================================================================

// Options configures a Mapper.
type Options struct {
	// SubstringFallback enables containment matching after exact lookup.
	SubstringFallback bool

	// Logger receives skipped rows at debug level and fallback hits at
	// info level.
	Logger *zap.Logger
}

// Mapper maps tables to financial records. It is safe for concurrent use.
type Mapper struct {
	labels   *LabelTable
	parser   *normalizer.Parser
	fallback bool
	logger   *zap.Logger
}

// New creates a Mapper over a prebuilt label table.
func New(labels *LabelTable, opts Options) *Mapper {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Mapper{
		labels:   labels,
		parser:   normalizer.NewParser(opts.Logger),
		fallback: opts.SubstringFallback,
		logger:   opts.Logger,
	}
}

var (
	defaultLabels     *LabelTable
	defaultLabelsErr  error
	defaultLabelsOnce sync.Once
)

// DefaultLabelTable returns the label table of the embedded mapping, built
// on first use.
func DefaultLabelTable() (*LabelTable, error) {
	defaultLabelsOnce.Do(func() {
		tables, err := config.DefaultMappings()
		if err != nil {
			defaultLabelsErr = err
			return
		}
		defaultLabels = NewLabelTable(tables)
	})
	return defaultLabels, defaultLabelsErr
}

// Map converts table rows into a financial record.
//
// PARAMETERS:
//   - table: The extracted table. A nil or empty table yields an empty
//     record.
//
// RETURNS:
//   - The mapping result. Map never fails; rows that cannot be used are
//     listed in Result.Skipped.
func (m *Mapper) Map(table *types.Table) *Result {
	result := &Result{
		Record:  types.NewRecord(),
		Mapped:  []MappedRow{},
		Skipped: []SkippedRow{},
	}
	if table.IsEmpty() {
		return result
	}

	labelHeader, hasLabel := firstPresent(table.Headers, m.labels.labelHeaders)
	amountHeader, hasAmount := firstPresent(table.Headers, m.labels.amountHeaders)
	if !hasLabel || !hasAmount {
		m.logger.Warn("table has no label or amount column",
			zap.Strings("headers", table.Headers),
			zap.Bool("label_column", hasLabel),
			zap.Bool("amount_column", hasAmount))
	}

	// Occurrences of repeated labels seen so far in this call.
	occurrences := make(map[string]int)

	for i, row := range table.Rows {
		rowNum := i + 1

		var labelText string
		if hasLabel {
			labelText, _ = row.Text(labelHeader)
		}
		label := CleanLabel(labelText)
		if label == "" {
			result.Skipped = append(result.Skipped, SkippedRow{Row: rowNum, Reason: SkipNoLabel})
			continue
		}

		field, resolution, matched := m.resolve(label, occurrences)
		if field == "" {
			m.logger.Debug("no field for label", zap.Int("row", rowNum), zap.String("label", label))
			result.Skipped = append(result.Skipped, SkippedRow{Row: rowNum, Label: label, Reason: SkipNoField})
			continue
		}
		if resolution == ResolvedFallback {
			result.Fallbacks++
			m.logger.Info("label matched by substring fallback",
				zap.Int("row", rowNum),
				zap.String("label", label),
				zap.String("matched", matched),
				zap.String("field", field))
		}

		var amountValue types.Value
		if hasAmount {
			amountValue, _ = row.Get(amountHeader)
		}
		amount, ok := m.parser.AmountOf(amountValue)
		if !ok {
			m.logger.Debug("no amount for label", zap.Int("row", rowNum), zap.String("label", label))
			result.Skipped = append(result.Skipped, SkippedRow{Row: rowNum, Label: label, Field: field, Reason: SkipNoAmount})
			continue
		}

		result.Record.Set(field, types.Float(amount))
		mapped := MappedRow{
			Row:        rowNum,
			Label:      label,
			Field:      field,
			Amount:     amount,
			Resolution: resolution,
		}
		if resolution == ResolvedFallback {
			mapped.MatchedLabel = matched
		}
		result.Mapped = append(result.Mapped, mapped)
	}

	m.logger.Debug("mapped table",
		zap.Int("rows", len(table.Rows)),
		zap.Int("fields", result.Record.Len()),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("fallbacks", result.Fallbacks))

	return result
}

// resolve applies the label resolution order. The occurrence counter
// advances for every repeated label row, with or without an amount.
func (m *Mapper) resolve(label string, occurrences map[string]int) (string, Resolution, string) {
	if fields, ok := m.labels.repeated[label]; ok {
		occurrences[label]++
		n := occurrences[label]
		if n > len(fields) {
			n = len(fields)
		}
		return fields[n-1], ResolvedRepeated, ""
	}

	if field, ok := m.labels.totals[label]; ok {
		return field, ResolvedTotal, ""
	}

	field, matched, viaFallback := m.labels.lookup(label, m.fallback)
	if field == "" {
		return "", "", ""
	}
	if viaFallback {
		return field, ResolvedFallback, matched
	}
	return field, ResolvedExact, ""
}

// firstPresent returns the first candidate that is one of the headers.
func firstPresent(headers, candidates []string) (string, bool) {
	for _, c := range candidates {
		for _, h := range headers {
			if h == c {
				return c, true
			}
		}
	}
	return "", false
}
