package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadWith(NewViper(), filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "./input", cfg.InputDir)
	assert.Equal(t, "./output", cfg.OutputDir)
	assert.Equal(t, GatePolicyFlag, cfg.GatePolicy)
	assert.Equal(t, "UTF-8", cfg.Encoding)
	assert.Equal(t, "|", cfg.Delimiter)
	assert.True(t, cfg.SubstringFallback)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, int64(16<<20), cfg.MaxUploadBytes)
	assert.Equal(t, []string{".md", ".markdown", ".txt"}, cfg.AllowedExtensions)

	assert.DirExists(t, filepath.Join(dir, "input"))
	assert.DirExists(t, filepath.Join(dir, "output"))
	assert.DirExists(t, filepath.Join(dir, "input_archive"))
}

func TestLoadWithFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
input_dir: ` + filepath.Join(dir, "in") + `
output_dir: ` + filepath.Join(dir, "out") + `
input_archive_dir: ` + filepath.Join(dir, "archive") + `
gate_policy: abort
max_concurrency: 2
allowed_extensions: [MD, txt]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("EXCELSYNC_MAX_CONCURRENCY", "8")

	cfg, err := LoadWith(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, GatePolicyAbort, cfg.GatePolicy)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, []string{".md", ".txt"}, cfg.AllowedExtensions)
	assert.DirExists(t, filepath.Join(dir, "out"))
}

func TestLoadWithRejectsUnknownGatePolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "gate_policy: maybe\ninput_dir: " + dir + "\noutput_dir: " + dir + "\ninput_archive_dir: " + dir + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadWith(NewViper(), path)
	assert.ErrorContains(t, err, "gate_policy")
}

func TestDefaultMappings(t *testing.T) {
	tables, err := DefaultMappings()
	require.NoError(t, err)

	assert.Equal(t, "A社貼り付けBS", tables.Sheet)
	assert.Equal(t, 1, tables.MarkerColumnOffset)
	assert.Len(t, tables.Coordinates, 34)
	assert.Equal(t, []string{"", "科目"}, tables.LabelHeaders)

	cell, ok := tables.CellFor("cash")
	require.True(t, ok)
	assert.Equal(t, "D4", cell)

	cell, ok = tables.CellFor("total_liabilities_and_equity")
	require.True(t, ok)
	assert.Equal(t, "D84", cell)

	fields := map[string]bool{}
	cells := map[string]bool{}
	for _, c := range tables.Coordinates {
		assert.False(t, fields[c.Field], "duplicate field %s", c.Field)
		assert.False(t, cells[c.Cell], "duplicate cell %s", c.Cell)
		fields[c.Field] = true
		cells[c.Cell] = true
	}

	again, err := DefaultMappings()
	require.NoError(t, err)
	assert.Same(t, tables, again)
}

func TestParseMappingsValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing sheet",
			yaml: "coordinates: [{field: a, cell: D4}]",
			want: "sheet is required",
		},
		{
			name: "duplicate field",
			yaml: "sheet: S\ncoordinates: [{field: a, cell: D4}, {field: a, cell: D5}]",
			want: "mapped more than once",
		},
		{
			name: "duplicate cell ignoring case",
			yaml: "sheet: S\ncoordinates: [{field: a, cell: D4}, {field: b, cell: d4}]",
			want: "shared by",
		},
		{
			name: "bad cell name",
			yaml: "sheet: S\ncoordinates: [{field: a, cell: 4D}]",
			want: "field \"a\"",
		},
		{
			name: "marker off sheet",
			yaml: "sheet: S\nmarker_column_offset: -2\ncoordinates: [{field: a, cell: A1}]",
			want: "off the sheet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMappings([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadMappingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sheet: Sheet1\ncoordinates:\n  - {field: cash, cell: B2, label: Cash}\n"), 0644))

	tables, err := LoadMappings(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"cash"}, tables.Fields())
	assert.Equal(t, []string{""}, tables.LabelHeaders)
	assert.Equal(t, []string{"当月残高"}, tables.AmountHeaders)
}
