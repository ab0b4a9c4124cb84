// =============================================================================
// MD to Excel Sync - Cell Value Normalizer Module
// =============================================================================
//
// This module converts raw cell text into typed values. It has two entry
// points:
//
//   1. Normalize:   text -> Value (integer, float, boolean, string, null).
//                   Used by the table extractor for every cell.
//   2. ParseAmount: text -> float64, the strict numeric parser used when a
//                   mapped line item's amount is stored in the record.
//
// Neither function returns an error. Text that cannot be read as a number
// degrades to a string (Normalize) or to 0.0 with a warning (ParseAmount).
//
// =============================================================================

package normalizer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/width"

	"github.com/ginjaninja78/excelsync/internal/types"
)

// =============================================================================
// LEXEMES
// =============================================================================

// thousandsSeparators are removed before numeric parsing.
var thousandsSeparators = strings.NewReplacer(",", "", "，", "")

// trueLexemes and falseLexemes are compared after lower-casing.
var (
	trueLexemes  = map[string]struct{}{"true": {}, "是": {}, "yes": {}, "✓": {}}
	falseLexemes = map[string]struct{}{"false": {}, "否": {}, "no": {}, "✗": {}}
)

// minusGlyphs mark a negative amount when they lead the text.
var minusGlyphs = []string{"-", "−", "△", "▲"}

// =============================================================================
// NORMALIZE
// =============================================================================

// Normalize converts a raw cell token into a typed value.
//
// RULES (first match wins):
//   - Empty or whitespace-only text      -> Null
//   - Integer literal after removing "," and "，" -> Int
//     (full-width digits, "．" and "－" are narrowed first)
//   - Decimal literal after removing separators   -> Float
//   - Boolean lexeme (case-insensitive)  -> Bool
//   - Anything else                      -> String (trimmed)
func Normalize(text string) types.Value {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return types.Null()
	}

	if v, ok := parseNumber(thousandsSeparators.Replace(width.Narrow.String(trimmed))); ok {
		return v
	}

	lower := strings.ToLower(trimmed)
	if _, ok := trueLexemes[lower]; ok {
		return types.Bool(true)
	}
	if _, ok := falseLexemes[lower]; ok {
		return types.Bool(false)
	}

	return types.String(trimmed)
}

// parseNumber reads an ASCII integer or decimal literal. Integers that
// overflow int64 are kept as floats rather than demoted to strings.
func parseNumber(s string) (types.Value, bool) {
	if s == "" || !isNumericLiteral(s) {
		return types.Null(), false
	}

	if !strings.Contains(s, ".") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return types.Int(i), true
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return types.Null(), false
	}
	return types.Float(f), true
}

// isNumericLiteral accepts an optional sign, ASCII digits and at most one
// dot. strconv alone would also accept "Inf", "NaN", hex and underscores.
func isNumericLiteral(s string) bool {
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	if s == "" || s == "." {
		return false
	}
	dots := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
			if dots > 1 {
				return false
			}
		case r < '0' || r > '9':
			return false
		}
	}
	return true
}

// =============================================================================
// STRICT AMOUNT PARSER
// =============================================================================

// Parser is the strict amount parser. It logs every recovered failure.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a strict amount parser. A nil logger disables logging.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// ParseAmount reads a line-item amount.
//
// A leading "-", "−", "△" or "▲", or an enclosing pair of ASCII or
// full-width parentheses, makes the result negative. Every character that
// is not a digit, '.' or '-' is dropped before parsing. Text with nothing
// parsable left yields 0.0 and a warning.
func (p *Parser) ParseAmount(text string) float64 {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0
	}

	negative := false
	if inner, ok := unwrapParens(s); ok {
		negative = true
		s = strings.TrimSpace(inner)
	}
	for _, g := range minusGlyphs {
		if strings.HasPrefix(s, g) {
			negative = true
			s = strings.TrimPrefix(s, g)
			break
		}
	}

	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	digits = strings.TrimLeft(digits, "-")

	d, err := decimal.NewFromString(digits)
	if err != nil {
		p.logger.Warn("amount is not numeric, using 0",
			zap.String("text", text),
			zap.Error(err))
		return 0
	}

	if negative {
		d = d.Neg()
	}
	return d.InexactFloat64()
}

// AmountOf converts a normalized cell into an amount. Numbers pass through,
// strings go through ParseAmount and booleans count as 1 or 0. Null reports
// false.
func (p *Parser) AmountOf(v types.Value) (float64, bool) {
	switch v.Kind() {
	case types.KindInt, types.KindFloat:
		f, _ := v.Number()
		return f, true
	case types.KindBool:
		b, _ := v.AsBool()
		if b {
			return 1, true
		}
		return 0, true
	case types.KindString:
		s, _ := v.AsString()
		return p.ParseAmount(s), true
	default:
		return 0, false
	}
}

// unwrapParens strips "(...)" or "（...）" around s.
func unwrapParens(s string) (string, bool) {
	pairs := [][2]string{{"(", ")"}, {"（", "）"}}
	for _, pair := range pairs {
		if strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) && len(s) >= len(pair[0])+len(pair[1]) {
			return s[len(pair[0]) : len(s)-len(pair[1])], true
		}
	}
	return s, false
}

// =============================================================================
// PACKAGE-LEVEL HELPERS
// =============================================================================

var defaultParser = NewParser(nil)

// ParseAmount runs the strict parser without logging.
func ParseAmount(text string) float64 {
	return defaultParser.ParseAmount(text)
}

// IsBlank reports whether s is empty after trimming Unicode white space,
// including the ideographic space.
func IsBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
