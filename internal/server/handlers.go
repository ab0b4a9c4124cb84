package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ginjaninja78/excelsync/internal/converter"
	"github.com/ginjaninja78/excelsync/internal/extractor"
	"github.com/ginjaninja78/excelsync/internal/types"
	"github.com/ginjaninja78/excelsync/pkg/utils"
)

// SampleDocument is served by /api/sample-md.
const SampleDocument = `# 资产负债表

| 科目 | 金额 |
|------|------|
| 现金 | 1000000 |
| 银行存款 | 5000000 |
| 应收账款 | 2000000 |
| 库存商品 | 3000000 |
| 流动资产合计 | 11000000 |
| 建筑物 | 8000000 |
| 机械设备 | 2000000 |
| 固定资产合计 | 10000000 |
| 总资产 | 21000000 |
`

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
	Stage     string `json:"stage,omitempty"`
}

type parseSummary struct {
	TotalRows    int    `json:"totalRows"`
	TotalColumns int    `json:"totalColumns"`
	FileName     string `json:"fileName"`
	FileSize     int    `json:"fileSize"`
	ParsedAt     string `json:"parsedAt"`
}

type parseData struct {
	Headers  []string       `json:"headers"`
	Data     []types.Row    `json:"data"`
	Summary  parseSummary   `json:"summary"`
	Metadata types.Metadata `json:"metadata"`
}

type generatedFile struct {
	Filename       string                    `json:"filename,omitempty"`
	OutputFilename string                    `json:"output_filename"`
	DownloadURL    string                    `json:"download_url"`
	MDParsing      *converter.ParsingSummary `json:"md_parsing"`
	ExcelWriting   *converter.WritingSummary `json:"excel_writing"`
	Mapping        *converter.MappingSummary `json:"mapping,omitempty"`
	Timestamp      string                    `json:"timestamp"`
}

type fileError struct {
	Filename  string `json:"filename"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Stage     string `json:"stage,omitempty"`
}

type batchSummary struct {
	TotalFiles   int `json:"total_files"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}

type batchData struct {
	Results []generatedFile `json:"results"`
	Errors  []fileError     `json:"errors"`
	Summary batchSummary    `json:"summary"`
}

type textRequest struct {
	Content  *string `json:"content"`
	Filename string  `json:"filename"`
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   s.version,
	})
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"content":  SampleDocument,
		"filename": "sample_balance_sheet.md",
	})
}

func (s *Server) handleParseUpload(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}

	fh := firstFile(r.MultipartForm, "file")
	if fh == nil {
		s.writeError(w, http.StatusBadRequest, "No file provided", CodeNoFile)
		return
	}
	if fh.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "No file selected", CodeEmptyFilename)
		return
	}
	if !s.files.HasAllowedExtension(fh.Filename) {
		s.writeError(w, http.StatusBadRequest, s.invalidTypeMessage(), CodeInvalidFileType)
		return
	}

	data, err := readUpload(fh)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to read file: "+err.Error(), CodeServerError)
		return
	}

	table, err := s.conv.Parse(data)
	if err != nil {
		s.writeEncodingError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    newParseData(table, utils.SanitizeFileName(fh.Filename), len(data)),
	})
}

func (s *Server) handleParseText(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTextRequest(w, r)
	if !ok {
		return
	}

	table := s.conv.ParseText(*req.Content)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    newParseData(table, req.Filename, len(*req.Content)),
	})
}

func (s *Server) handleGenerateUpload(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		files = r.MultipartForm.File["files"]
	}
	if len(files) == 0 {
		s.writeError(w, http.StatusBadRequest, "No file provided", CodeNoFile)
		return
	}

	batch := batchData{
		Results: []generatedFile{},
		Errors:  []fileError{},
	}

	for idx, fh := range files {
		s.logger.Debug("processing upload", zap.Int("index", idx+1), zap.Int("total", len(files)), zap.String("file", fh.Filename))

		if fh.Filename == "" {
			batch.Errors = append(batch.Errors, fileError{
				Filename:  "file_" + strconv.Itoa(idx+1),
				Error:     "No file selected",
				ErrorCode: CodeEmptyFilename,
			})
			continue
		}
		if !s.files.HasAllowedExtension(fh.Filename) {
			batch.Errors = append(batch.Errors, fileError{
				Filename:  fh.Filename,
				Error:     s.invalidTypeMessage(),
				ErrorCode: CodeInvalidFileType,
			})
			continue
		}

		data, err := readUpload(fh)
		if err != nil {
			batch.Errors = append(batch.Errors, fileError{
				Filename:  fh.Filename,
				Error:     err.Error(),
				ErrorCode: CodeServerError,
			})
			continue
		}

		result := s.conv.ProcessContent(data, utils.SanitizeFileName(fh.Filename))
		if !result.Success {
			batch.Errors = append(batch.Errors, failureFor(fh.Filename, result))
			continue
		}

		generated := newGeneratedFile(result)
		generated.Filename = fh.Filename
		batch.Results = append(batch.Results, generated)
	}

	batch.Summary = batchSummary{
		TotalFiles:   len(files),
		SuccessCount: len(batch.Results),
		ErrorCount:   len(batch.Errors),
	}

	resp := map[string]any{
		"success": len(batch.Results) > 0,
		"data":    batch,
	}
	status := http.StatusOK
	if len(batch.Results) == 0 {
		resp["error"] = "All files failed to process"
		resp["error_code"] = CodeAllFailed
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleGenerateText(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTextRequest(w, r)
	if !ok {
		return
	}

	result := s.conv.ProcessText(*req.Content, utils.SanitizeFileName(req.Filename))
	if !result.Success {
		failure := failureFor(req.Filename, result)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     failure.Error,
			ErrorCode: failure.ErrorCode,
			Stage:     failure.Stage,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    newGeneratedFile(result),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	path, err := s.files.ResolveOutputFile(name)
	if err != nil {
		if errors.Is(err, utils.ErrUnsafeFileName) || errors.Is(err, os.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "File not found", "")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to download file: "+err.Error(), CodeServerError)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to download file: "+err.Error(), CodeServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to download file: "+err.Error(), CodeServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename*=UTF-8''`+url.PathEscape(filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

// =============================================================================
// HELPERS
// =============================================================================

// parseMultipart reads a multipart body within the upload limit and writes
// the error response itself when that fails.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage(), CodeTooLarge)
			return false
		}
		s.writeError(w, http.StatusBadRequest, "No file provided", CodeNoFile)
		return false
	}
	return true
}

// decodeTextRequest reads a {content, filename} body.
func (s *Server) decodeTextRequest(w http.ResponseWriter, r *http.Request) (*textRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage(), CodeTooLarge)
			return nil, false
		}
		s.writeError(w, http.StatusBadRequest, "No content provided", CodeBadRequest)
		return nil, false
	}
	if req.Content == nil {
		s.writeError(w, http.StatusBadRequest, "No content provided", CodeBadRequest)
		return nil, false
	}
	if req.Filename == "" {
		req.Filename = "untitled.md"
	}
	return &req, true
}

func (s *Server) writeEncodingError(w http.ResponseWriter, err error) {
	if errors.Is(err, extractor.ErrEncoding) {
		s.writeError(w, http.StatusBadRequest, "File encoding error. Please ensure the file is "+s.cfg.Encoding+" encoded", CodeEncodingError)
		return
	}
	s.writeError(w, http.StatusInternalServerError, "Failed to parse file: "+err.Error(), CodeServerError)
}

func (s *Server) invalidTypeMessage() string {
	return "Invalid file type. Allowed extensions: " + strings.Join(s.cfg.AllowedExtensions, ", ")
}

func (s *Server) tooLargeMessage() string {
	return "File too large. Maximum size is " + strconv.Itoa(int(s.cfg.MaxUploadBytes>>20)) + "MB"
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, code string) {
	s.writeJSON(w, status, errorResponse{Error: message, ErrorCode: code})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func firstFile(form *multipart.Form, key string) *multipart.FileHeader {
	if form == nil || len(form.File[key]) == 0 {
		return nil
	}
	return form.File[key][0]
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func newParseData(table *types.Table, filename string, size int) parseData {
	return parseData{
		Headers: table.Headers,
		Data:    table.Rows,
		Summary: parseSummary{
			TotalRows:    len(table.Rows),
			TotalColumns: len(table.Headers),
			FileName:     filename,
			FileSize:     size,
			ParsedAt:     time.Now().Format(time.RFC3339),
		},
		Metadata: table.Metadata,
	}
}

func newGeneratedFile(result *converter.Result) generatedFile {
	return generatedFile{
		OutputFilename: result.OutputFilename,
		DownloadURL:    "/api/download-excel/" + url.PathEscape(result.OutputFilename),
		MDParsing:      result.MDParsing,
		ExcelWriting:   result.ExcelWriting,
		Mapping:        result.Mapping,
		Timestamp:      result.Timestamp,
	}
}

func failureFor(filename string, result *converter.Result) fileError {
	code := CodeGenerationFailed
	if errors.Is(result.Err, extractor.ErrEncoding) {
		code = CodeEncodingError
	}
	msg := result.Error
	if msg == "" {
		msg = "Unknown error occurred"
	}
	return fileError{
		Filename:  filename,
		Error:     msg,
		ErrorCode: code,
		Stage:     result.Stage,
	}
}
