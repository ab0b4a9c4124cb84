package converter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/ginjaninja78/excelsync/internal/config"
	"github.com/ginjaninja78/excelsync/internal/extractor"
	"github.com/ginjaninja78/excelsync/internal/xlsxwriter"
)

const trialBalance = `# 試算表

|  | 当月残高 |
|---|---|
| 現金 | 1,000,000 |
| 銀行存款 | 5,000,000 |
`

func newTestConverter(t *testing.T) (*Converter, *config.MainConfig) {
	t.Helper()

	tables, err := config.DefaultMappings()
	require.NoError(t, err)

	root := t.TempDir()
	cfg := &config.MainConfig{
		OutputDir:         filepath.Join(root, "output"),
		TemplatePath:      filepath.Join(root, "templates", "mapping.xlsx"),
		GatePolicy:        config.GatePolicyFlag,
		Encoding:          extractor.DefaultEncoding,
		Delimiter:         extractor.DefaultDelimiter,
		SubstringFallback: true,
		OutputNameFormat:  "{name}_output_{timestamp}_{shortid}.xlsx",
	}
	require.NoError(t, xlsxwriter.BuildTemplate(tables, cfg.TemplatePath))

	return New(cfg, tables, zaptest.NewLogger(t)), cfg
}

func TestProcessContentRoundTrip(t *testing.T) {
	c, cfg := newTestConverter(t)

	result := c.ProcessContent([]byte(trialBalance), "bs.md")

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, xlsxwriter.StageCompleted, result.Stage)
	assert.Equal(t, "bs.md", result.InputFilename)
	assert.True(t, strings.HasPrefix(result.OutputFilename, "bs_output_"))
	assert.Equal(t, filepath.Join(cfg.OutputDir, result.OutputFilename), result.OutputPath)

	require.NotNil(t, result.MDParsing)
	assert.Equal(t, []string{"", "当月残高"}, result.MDParsing.Headers)
	assert.Equal(t, 2, result.MDParsing.RowsCount)
	assert.Equal(t, "試算表", result.MDParsing.Metadata.Title)

	require.NotNil(t, result.ExcelWriting)
	assert.Equal(t, xlsxwriter.StatusPartialSuccess, result.ExcelWriting.Status)
	assert.Equal(t, 2, result.ExcelWriting.SuccessfulWrites)
	assert.Equal(t, 34, result.ExcelWriting.TotalFields)
	assert.Equal(t, 32, result.ExcelWriting.WriteStatus.Count(xlsxwriter.FieldMissing))
	assert.Equal(t, "5.9%", result.ExcelWriting.SuccessRate)
	assert.True(t, result.ExcelWriting.MappingValid)

	assert.Equal(t, 2, result.Stats.FieldsMapped)
	assert.Equal(t, 2, result.Stats.FieldsWritten)

	f, err := excelize.OpenFile(result.OutputPath)
	require.NoError(t, err)
	defer f.Close()

	raw := excelize.Options{RawCellValue: true}
	cash, err := f.GetCellValue(c.Mapping().Sheet, "D4", raw)
	require.NoError(t, err)
	assert.Equal(t, "1000000", cash)
	deposits, err := f.GetCellValue(c.Mapping().Sheet, "D5", raw)
	require.NoError(t, err)
	assert.Equal(t, "5000000", deposits)
}

func TestProcessContentResultJSON(t *testing.T) {
	c, _ := newTestConverter(t)

	data, err := json.Marshal(c.ProcessContent([]byte(trialBalance), "bs.md"))
	require.NoError(t, err)

	var decoded struct {
		Success      bool   `json:"success"`
		Stage        string `json:"stage"`
		ExcelWriting struct {
			WriteStatus map[string]string `json:"write_status"`
		} `json:"excel_writing"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Success)
	assert.Equal(t, "completed", decoded.Stage)
	assert.Equal(t, "success", decoded.ExcelWriting.WriteStatus["cash"])
	assert.Equal(t, "missing", decoded.ExcelWriting.WriteStatus["total_assets"])
}

func TestProcessContentChineseHeaders(t *testing.T) {
	c, _ := newTestConverter(t)

	doc := "| 科目 | 金额 |\n|------|------|\n| 现金 | 1000000 |\n| 银行存款 | 5000000 |\n| 总资产 | 21000000 |\n"
	result := c.ProcessContent([]byte(doc), "sample_balance_sheet.md")

	require.True(t, result.Success)
	assert.Equal(t, 3, result.ExcelWriting.SuccessfulWrites)
}

func TestProcessContentNothingMapped(t *testing.T) {
	c, cfg := newTestConverter(t)

	result := c.ProcessContent([]byte("|  | 当月残高 |\n|---|---|\n| 雑項目 | 10 |\n"), "misc.md")

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, xlsxwriter.StatusPartialSuccess, result.ExcelWriting.Status)
	assert.Zero(t, result.ExcelWriting.SuccessfulWrites)
	assert.Equal(t, "0.0%", result.ExcelWriting.SuccessRate)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, result.OutputFilename))
}

func TestProcessTextSkipsDecoding(t *testing.T) {
	c, cfg := newTestConverter(t)
	cfg.Encoding = "shift_jis"

	result := c.ProcessText(trialBalance, "bs.md")

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"", "当月残高"}, result.MDParsing.Headers)
	assert.Equal(t, 2, result.ExcelWriting.SuccessfulWrites)
}

func TestProcessContentWithoutTable(t *testing.T) {
	c, cfg := newTestConverter(t)

	result := c.ProcessContent([]byte("# 試算表\n\nno table here\n"), "empty.md")

	assert.False(t, result.Success)
	assert.Equal(t, StageMDParsing, result.Stage)
	assert.ErrorIs(t, result.Err, ErrNoTableData)
	assert.Nil(t, result.ExcelWriting)
	assert.Empty(t, result.OutputFilename)
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestProcessContentInvalidEncoding(t *testing.T) {
	c, _ := newTestConverter(t)

	result := c.ProcessContent([]byte{0xff, 0xfe, 0x7c}, "broken.md")

	assert.False(t, result.Success)
	assert.Equal(t, StageFileReading, result.Stage)
	assert.ErrorIs(t, result.Err, extractor.ErrEncoding)
}

func TestProcessContentMissingTemplate(t *testing.T) {
	c, cfg := newTestConverter(t)
	require.NoError(t, os.Remove(cfg.TemplatePath))

	result := c.ProcessContent([]byte(trialBalance), "bs.md")

	assert.False(t, result.Success)
	assert.Equal(t, xlsxwriter.StageWorkbookLoad, result.Stage)
	assert.Equal(t, xlsxwriter.StatusError, result.ExcelWriting.Status)
	assert.ErrorIs(t, result.Err, os.ErrNotExist)
	assert.NotEmpty(t, result.Error)
}

func TestProcessFile(t *testing.T) {
	c, _ := newTestConverter(t)

	path := filepath.Join(t.TempDir(), "monthly.md")
	require.NoError(t, os.WriteFile(path, []byte(trialBalance), 0644))

	result := c.ProcessFile(path)
	assert.True(t, result.Success)
	assert.Equal(t, "monthly.md", result.InputFilename)

	missing := c.ProcessFile(filepath.Join(t.TempDir(), "nope.md"))
	assert.Equal(t, StageFileReading, missing.Stage)
	assert.ErrorIs(t, missing.Err, os.ErrNotExist)
}

func TestParse(t *testing.T) {
	c, _ := newTestConverter(t)

	table, err := c.Parse([]byte(trialBalance))
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)

	_, err = c.Parse([]byte{0xc3, 0x28})
	assert.ErrorIs(t, err, extractor.ErrEncoding)
}
