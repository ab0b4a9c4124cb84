package xlsxwriter

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/ginjaninja78/excelsync/internal/config"
	"github.com/ginjaninja78/excelsync/internal/types"
)

// buildTemplate saves a template with the mapped sheet. Marker cells are
// filled for every coordinate except the ones listed in skipMarkers.
func buildTemplate(t *testing.T, mapping *config.MappingTables, skipMarkers ...string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet(mapping.Sheet)
	require.NoError(t, err)

	skip := map[string]bool{}
	for _, field := range skipMarkers {
		skip[field] = true
	}
	for _, c := range mapping.Coordinates {
		require.NoError(t, f.SetCellValue(mapping.Sheet, "C"+c.Cell[1:], c.Label))
		if skip[c.Field] {
			continue
		}
		marker, err := MarkerCell(c.Cell, mapping.MarkerColumnOffset)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(mapping.Sheet, marker, "○"))
	}

	path := filepath.Join(t.TempDir(), "mapping.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func defaultMapping(t *testing.T) *config.MappingTables {
	t.Helper()
	tables, err := config.DefaultMappings()
	require.NoError(t, err)
	return tables
}

func sampleRecord() *types.Record {
	r := types.NewRecord()
	r.Set("cash", types.Float(1000000))
	r.Set("ordinary_deposits", types.Float(5000000))
	r.Set("not_mapped", types.Float(1))
	return r
}

func TestWritePartialSuccess(t *testing.T) {
	mapping := defaultMapping(t)
	template := buildTemplate(t, mapping)
	output := filepath.Join(t.TempDir(), "out", "result.xlsx")
	w := New(Options{Logger: zaptest.NewLogger(t)})

	result := w.Write(sampleRecord(), mapping, template, output)

	require.NoError(t, result.Err)
	assert.Equal(t, StatusPartialSuccess, result.Status)
	assert.True(t, result.MappingValid)
	assert.Equal(t, StageCompleted, result.Stage)
	assert.Len(t, result.WriteStatus, 34)
	assert.Equal(t, 2, result.SuccessfulWrites)
	assert.Equal(t, 34, result.TotalFields)
	assert.Equal(t, 32, result.WriteStatus.Count(FieldMissing))

	status, ok := result.WriteStatus.Get("cash")
	require.True(t, ok)
	assert.Equal(t, "success", status.String())

	f, err := excelize.OpenFile(output)
	require.NoError(t, err)
	defer f.Close()

	cash, err := f.GetCellValue(mapping.Sheet, "D4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1000000", cash)
	deposits, err := f.GetCellValue(mapping.Sheet, "D5", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "5000000", deposits)

	marker, err := f.GetCellValue(mapping.Sheet, "E4")
	require.NoError(t, err)
	assert.Equal(t, "○", marker)
}

func TestWriteAllFieldsSucceed(t *testing.T) {
	mapping := defaultMapping(t)
	template := buildTemplate(t, mapping)

	record := types.NewRecord()
	for _, field := range mapping.Fields() {
		record.Set(field, types.Float(1))
	}

	result := New(Options{}).Write(record, mapping, template, filepath.Join(t.TempDir(), "all.xlsx"))

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 34, result.SuccessfulWrites)
	assert.Empty(t, result.Errors)
}

func TestWriteUnmappedRecordIsPartial(t *testing.T) {
	mapping := defaultMapping(t)
	template := buildTemplate(t, mapping)
	output := filepath.Join(t.TempDir(), "empty.xlsx")

	record := types.NewRecord()
	record.Set("not_mapped", types.Float(1))
	result := New(Options{}).Write(record, mapping, template, output)

	assert.Equal(t, StatusPartialSuccess, result.Status)
	assert.Zero(t, result.SuccessfulWrites)
	assert.FileExists(t, output)
	assert.Len(t, result.WriteStatus, 34)
	assert.Equal(t, 34, result.WriteStatus.Count(FieldMissing))
}

func TestWriteFlagsEmptyMarkers(t *testing.T) {
	mapping := defaultMapping(t)
	template := buildTemplate(t, mapping, "cash", "total_assets")

	result := New(Options{GatePolicy: config.GatePolicyFlag}).Write(sampleRecord(), mapping, template, filepath.Join(t.TempDir(), "o.xlsx"))

	assert.False(t, result.MappingValid)
	assert.Equal(t, StatusPartialSuccess, result.Status)
	require.Len(t, result.MarkerIssues, 2)
	assert.Equal(t, "E4", result.MarkerIssues[0].MarkerCell)
	assert.Equal(t, "E40", result.MarkerIssues[1].MarkerCell)
	assert.Contains(t, result.Errors[0], "2 of 34 marker cells")
}

func TestWriteAbortsOnEmptyMarkers(t *testing.T) {
	mapping := defaultMapping(t)
	template := buildTemplate(t, mapping, "cash")
	output := filepath.Join(t.TempDir(), "aborted.xlsx")

	result := New(Options{GatePolicy: config.GatePolicyAbort}).Write(sampleRecord(), mapping, template, output)

	assert.Equal(t, StatusValidationFailed, result.Status)
	assert.Equal(t, StageValidation, result.Stage)
	assert.Len(t, result.WriteStatus, 34)
	assert.Zero(t, result.SuccessfulWrites)

	status, _ := result.WriteStatus.Get("cash")
	assert.Equal(t, FieldError, status.State)
	status, _ = result.WriteStatus.Get("receivables_total")
	assert.Equal(t, FieldMissing, status.State)

	assert.NoFileExists(t, output)
}

func TestWriteMissingSheet(t *testing.T) {
	mapping := defaultMapping(t)

	f := excelize.NewFile()
	template := filepath.Join(t.TempDir(), "other.xlsx")
	require.NoError(t, f.SaveAs(template))
	require.NoError(t, f.Close())

	output := filepath.Join(t.TempDir(), "never.xlsx")
	result := New(Options{}).Write(sampleRecord(), mapping, template, output)

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, StageWorkbookLoad, result.Stage)
	assert.ErrorIs(t, result.Err, ErrSheetNotFound)

	var stageErr *StageError
	require.True(t, errors.As(result.Err, &stageErr))
	assert.Equal(t, StageWorkbookLoad, stageErr.Stage)

	assert.Len(t, result.WriteStatus, 34)
	assert.NoFileExists(t, output)
}

func TestWriteMissingTemplate(t *testing.T) {
	mapping := defaultMapping(t)

	result := New(Options{}).Write(sampleRecord(), mapping, filepath.Join(t.TempDir(), "nope.xlsx"), filepath.Join(t.TempDir(), "o.xlsx"))

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, StageWorkbookLoad, result.Stage)
	assert.ErrorIs(t, result.Err, os.ErrNotExist)
}

func TestWriteRefusesInPlaceSave(t *testing.T) {
	mapping := defaultMapping(t)
	template := buildTemplate(t, mapping)

	result := New(Options{}).Write(sampleRecord(), mapping, template, template)

	assert.Equal(t, StatusError, result.Status)
	assert.ErrorIs(t, result.Err, ErrInPlaceSave)

	inPlace := New(Options{AllowInPlace: true}).Write(sampleRecord(), mapping, template, template)
	assert.Equal(t, StatusPartialSuccess, inPlace.Status)
}

func TestWriteLeavesTemplateUntouched(t *testing.T) {
	mapping := defaultMapping(t)
	template := buildTemplate(t, mapping)
	before, err := os.ReadFile(template)
	require.NoError(t, err)

	New(Options{}).Write(sampleRecord(), mapping, template, filepath.Join(t.TempDir(), "o.xlsx"))

	after, err := os.ReadFile(template)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteResultJSON(t *testing.T) {
	mapping := &config.MappingTables{
		Sheet:              "Sheet1",
		MarkerColumnOffset: 1,
		Coordinates: []config.Coordinate{
			{Field: "b", Cell: "D2"},
			{Field: "a", Cell: "D3"},
		},
	}

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "E2", "x"))
	require.NoError(t, f.SetCellValue("Sheet1", "E3", "x"))
	template := filepath.Join(t.TempDir(), "t.xlsx")
	require.NoError(t, f.SaveAs(template))
	require.NoError(t, f.Close())

	record := types.NewRecord()
	record.Set("a", types.Float(2))

	result := New(Options{}).Write(record, mapping, template, filepath.Join(t.TempDir(), "o.xlsx"))
	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded struct {
		Status       string          `json:"status"`
		MappingValid bool            `json:"mappingValid"`
		WriteStatus  json.RawMessage `json:"writeStatus"`
		Errors       []string        `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "partial_success", decoded.Status)
	assert.True(t, decoded.MappingValid)
	assert.Equal(t, `{"b":"missing","a":"success"}`, string(decoded.WriteStatus))
	assert.Len(t, decoded.Errors, 1)
}

func TestFieldStatusJSON(t *testing.T) {
	var s FieldStatus
	require.NoError(t, json.Unmarshal([]byte(`"error: cell out of range"`), &s))
	assert.Equal(t, FieldError, s.State)
	assert.Equal(t, "cell out of range", s.Reason)
	assert.Equal(t, "error: cell out of range", s.String())

	assert.Error(t, json.Unmarshal([]byte(`"maybe"`), &s))
}

func TestMarkerCell(t *testing.T) {
	cell, err := MarkerCell("D84", 1)
	require.NoError(t, err)
	assert.Equal(t, "E84", cell)

	cell, err = MarkerCell("Z1", 2)
	require.NoError(t, err)
	assert.Equal(t, "AB1", cell)
}

func TestBuildTemplatePassesGate(t *testing.T) {
	mapping := defaultMapping(t)
	path := filepath.Join(t.TempDir(), "templates", "mapping.xlsx")
	require.NoError(t, BuildTemplate(mapping, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Empty(t, InspectMarkers(f, mapping))
	assert.Equal(t, []string{mapping.Sheet}, f.GetSheetList())

	label, err := f.GetCellValue(mapping.Sheet, "C4")
	require.NoError(t, err)
	assert.Equal(t, "現金", label)
}
