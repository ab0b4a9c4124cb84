// =============================================================================
// MD to Excel Sync - HTTP Server Module
// =============================================================================
//
// This module exposes the converter over a small JSON API.
//
// ENDPOINTS:
//   GET  /api/health                    - liveness and version
//   GET  /api/sample-md                 - a sample balance sheet document
//   POST /api/parse-md                  - parse an uploaded document
//   POST /api/parse-md-text             - parse {content, filename}
//   POST /api/generate-excel            - upload "file" or "files", write workbooks
//   POST /api/generate-excel-text       - write a workbook from {content, filename}
//   GET  /api/download-excel/{filename} - fetch a generated workbook
//
// Every response is gzip-compressed when the client accepts it. Request
// bodies are capped at MaxUploadBytes.
//
// =============================================================================

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"go.uber.org/zap"

	"github.com/ginjaninja78/excelsync/internal/config"
	"github.com/ginjaninja78/excelsync/internal/converter"
	"github.com/ginjaninja78/excelsync/pkg/utils"
)

// Error codes returned in the error_code field.
const (
	CodeNoFile           = "NO_FILE"
	CodeEmptyFilename    = "EMPTY_FILENAME"
	CodeInvalidFileType  = "INVALID_FILE_TYPE"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeEncodingError    = "ENCODING_ERROR"
	CodeAllFailed        = "ALL_FAILED"
	CodeTooLarge         = "FILE_TOO_LARGE"
	CodeBadRequest       = "BAD_REQUEST"
	CodeServerError      = "SERVER_ERROR"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Server serves the JSON API.
type Server struct {
	cfg     *config.MainConfig
	conv    *converter.Converter
	files   *utils.FileManager
	logger  *zap.Logger
	version string
}

// New creates a Server around an existing converter.
func New(cfg *config.MainConfig, conv *converter.Converter, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		conv:    conv,
		files:   utils.NewFileManager(cfg.InputDir, cfg.OutputDir, cfg.InputArchiveDir, cfg.AllowedExtensions),
		logger:  logger,
		version: version,
	}
}

// Handler returns the routed, compressed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/sample-md", s.handleSample)
	mux.HandleFunc("POST /api/parse-md", s.handleParseUpload)
	mux.HandleFunc("POST /api/parse-md-text", s.handleParseText)
	mux.HandleFunc("POST /api/generate-excel", s.handleGenerateUpload)
	mux.HandleFunc("POST /api/generate-excel-text", s.handleGenerateText)
	mux.HandleFunc("GET /api/download-excel/{filename}", s.handleDownload)

	return gziphandler.GzipHandler(s.logRequests(mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}

// logRequests logs one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
