package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ginjaninja78/excelsync/internal/types"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  types.Value
	}{
		{"thousands separators", "1,234,567", types.Int(1234567)},
		{"full-width separators", "1，234", types.Int(1234)},
		{"decimal", "12.5", types.Float(12.5)},
		{"negative integer", "-42", types.Int(-42)},
		{"check mark", "✓", types.Bool(true)},
		{"cross mark", "✗", types.Bool(false)},
		{"yes upper case", "YES", types.Bool(true)},
		{"chinese yes", "是", types.Bool(true)},
		{"chinese no", "否", types.Bool(false)},
		{"empty", "", types.Null()},
		{"whitespace only", "  \t ", types.Null()},
		{"plain text", "abc", types.String("abc")},
		{"trimmed text", "  現金 ", types.String("現金")},
		{"two dots", "1.2.3", types.String("1.2.3")},
		{"infinity word", "Inf", types.String("Inf")},
		{"full-width digits", "１，０００", types.Int(1000)},
		{"full-width decimal", "１２．５", types.Float(12.5)},
		{"full-width minus", "－４２", types.Int(-42)},
		{"full-width letters stay text", "ＡＢＣ", types.String("ＡＢＣ")},
		{"overflow falls back to float", "99999999999999999999", types.Float(1e20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"ascii minus with separators", "-1,234", -1234},
		{"unicode minus", "−500", -500},
		{"triangle minus", "△1,000", -1000},
		{"black triangle minus", "▲20", -20},
		{"parentheses", "(300)", -300},
		{"full-width parentheses", "（1,200）", -1200},
		{"currency and footnote", "¥1,000,000※", 1000000},
		{"decimal", "12.75", 12.75},
		{"full-width digits", "１２３", 0},
		{"symbols only", "※", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAmount(tt.input))
		})
	}
}

func TestParseAmountLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := NewParser(zap.New(core))

	assert.Equal(t, 0.0, p.ParseAmount("n/a"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "n/a", logs.All()[0].ContextMap()["text"])
}

func TestAmountOf(t *testing.T) {
	p := NewParser(nil)

	got, ok := p.AmountOf(types.Int(1000000))
	require.True(t, ok)
	assert.Equal(t, 1000000.0, got)

	got, ok = p.AmountOf(types.Float(2.5))
	require.True(t, ok)
	assert.Equal(t, 2.5, got)

	got, ok = p.AmountOf(types.String("△3,000"))
	require.True(t, ok)
	assert.Equal(t, -3000.0, got)

	got, ok = p.AmountOf(types.Bool(true))
	require.True(t, ok)
	assert.Equal(t, 1.0, got)

	_, ok = p.AmountOf(types.Null())
	assert.False(t, ok)
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank(" 　\t"))
	assert.False(t, IsBlank(" x "))
}
