package server

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/ginjaninja78/excelsync/internal/config"
	"github.com/ginjaninja78/excelsync/internal/converter"
	"github.com/ginjaninja78/excelsync/internal/xlsxwriter"
)

const balanceSheet = "|  | 当月残高 |\n|---|---|\n| 現金 | 1,000,000 |\n| 銀行存款 | 5,000,000 |\n"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	tables, err := config.DefaultMappings()
	require.NoError(t, err)

	root := t.TempDir()
	cfg := &config.MainConfig{
		InputDir:          filepath.Join(root, "input"),
		OutputDir:         filepath.Join(root, "output"),
		InputArchiveDir:   filepath.Join(root, "input_archive"),
		TemplatePath:      filepath.Join(root, "templates", "mapping.xlsx"),
		GatePolicy:        config.GatePolicyFlag,
		Encoding:          "UTF-8",
		SubstringFallback: true,
		OutputNameFormat:  "{name}_output_{timestamp}_{shortid}.xlsx",
		MaxUploadBytes:    16 << 20,
		AllowedExtensions: []string{".md", ".markdown", ".txt"},
	}
	require.NoError(t, xlsxwriter.BuildTemplate(tables, cfg.TemplatePath))

	logger := zaptest.NewLogger(t)
	return New(cfg, converter.New(cfg, tables, logger), logger, "test")
}

type upload struct {
	field, name, content string
}

func multipartRequest(t *testing.T, path string, uploads ...upload) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, u := range uploads {
		part, err := mw.CreateFormFile(u.field, u.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(u.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestHealthRejectsWrongMethod(t *testing.T) {
	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodPost, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSample(t *testing.T) {
	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/api/sample-md", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["content"], "资产负债表")
}

func TestParseText(t *testing.T) {
	rec := serve(newTestServer(t), jsonRequest(t, "/api/parse-md-text", map[string]string{"content": SampleDocument}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	data := body["data"].(map[string]any)
	assert.Equal(t, []any{"科目", "金额"}, data["headers"])

	summary := data["summary"].(map[string]any)
	assert.Equal(t, float64(9), summary["totalRows"])
	assert.Equal(t, "untitled.md", summary["fileName"])

	rows := data["data"].([]any)
	first := rows[0].(map[string]any)
	assert.Equal(t, "现金", first["科目"])
	assert.Equal(t, float64(1000000), first["金额"])
}

func TestParseTextWithoutContent(t *testing.T) {
	rec := serve(newTestServer(t), jsonRequest(t, "/api/parse-md-text", map[string]string{"filename": "x.md"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No content provided", decode(t, rec)["error"])
}

func TestParseUpload(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, multipartRequest(t, "/api/parse-md", upload{"file", "bs.md", balanceSheet}))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(2), data["summary"].(map[string]any)["totalRows"])

	rec = serve(s, multipartRequest(t, "/api/parse-md", upload{"file", "bs.csv", balanceSheet}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidFileType, decode(t, rec)["error_code"])

	rec = serve(s, multipartRequest(t, "/api/parse-md"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeNoFile, decode(t, rec)["error_code"])

	rec = serve(s, multipartRequest(t, "/api/parse-md", upload{"file", "bad.md", "\xff\xfe|"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeEncodingError, decode(t, rec)["error_code"])
}

func TestGenerateUploadAndDownload(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, multipartRequest(t, "/api/generate-excel",
		upload{"files", "bs.md", balanceSheet},
		upload{"files", "notes.md", "# no table\n"},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	summary := data["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["total_files"])
	assert.Equal(t, float64(1), summary["success_count"])
	assert.Equal(t, float64(1), summary["error_count"])

	failure := data["errors"].([]any)[0].(map[string]any)
	assert.Equal(t, "notes.md", failure["filename"])
	assert.Equal(t, CodeGenerationFailed, failure["error_code"])
	assert.Equal(t, converter.StageMDParsing, failure["stage"])

	result := data["results"].([]any)[0].(map[string]any)
	writing := result["excel_writing"].(map[string]any)
	assert.Equal(t, "partial_success", writing["status"])
	assert.Equal(t, float64(2), writing["successful_writes"])

	downloadURL := result["download_url"].(string)
	require.True(t, strings.HasPrefix(downloadURL, "/api/download-excel/bs_output_"))

	rec = serve(s, httptest.NewRequest(http.MethodGet, downloadURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	cash, err := f.GetCellValue("A社貼り付けBS", "D4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1000000", cash)
}

func TestGenerateUploadAllFail(t *testing.T) {
	rec := serve(newTestServer(t), multipartRequest(t, "/api/generate-excel",
		upload{"file", "bs.csv", balanceSheet},
	))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, CodeAllFailed, body["error_code"])
}

func TestGenerateText(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, jsonRequest(t, "/api/generate-excel-text", map[string]string{
		"content":  balanceSheet,
		"filename": "monthly.md",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.True(t, strings.HasPrefix(data["output_filename"].(string), "monthly_output_"))

	rec = serve(s, jsonRequest(t, "/api/generate-excel-text", map[string]string{"content": "nothing"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, converter.StageMDParsing, decode(t, rec)["stage"])
}

func TestTextEndpointsIgnoreFileEncoding(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Encoding = "shift_jis"

	rec := serve(s, jsonRequest(t, "/api/parse-md-text", map[string]string{"content": balanceSheet}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, []any{"", "当月残高"}, data["headers"])
	first := data["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "現金", first[""])

	rec = serve(s, jsonRequest(t, "/api/generate-excel-text", map[string]string{
		"content":  balanceSheet,
		"filename": "sjis.md",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	generated := decode(t, rec)["data"].(map[string]any)

	f, err := excelize.OpenFile(filepath.Join(s.cfg.OutputDir, generated["output_filename"].(string)))
	require.NoError(t, err)
	defer f.Close()
	cash, err := f.GetCellValue("A社貼り付けBS", "D4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1000000", cash)
}

func TestDownloadMissingFile(t *testing.T) {
	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/api/download-excel/missing.xlsx", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", decode(t, rec)["error"])
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t)
	s.cfg.MaxUploadBytes = 1 << 10

	rec := serve(s, jsonRequest(t, "/api/parse-md-text", map[string]string{"content": strings.Repeat("| a | b |\n", 1000)}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, CodeTooLarge, decode(t, rec)["error_code"])
}

func TestResponsesAreCompressed(t *testing.T) {
	req := jsonRequest(t, "/api/generate-excel-text", map[string]string{"content": balanceSheet})
	req.Header.Set("Accept-Encoding", "gzip")

	rec := serve(newTestServer(t), req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(zr).Decode(&body))
	assert.Equal(t, true, body["success"])
}
