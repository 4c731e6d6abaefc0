// Package handlers provides HTTP handlers for the batch extraction API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/docbatch/internal/batch"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/domain"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/observability"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/source"
)

// Form field names accepted by POST /extract.
const (
	FieldFiles     = "files"
	FieldDriveURLs = "drive_urls"
)

// BatchRunner runs a batch request.
type BatchRunner interface {
	Run(ctx context.Context, req batch.Request) (*batch.Result, error)
}

// ExtractHandler handles batch extraction requests.
type ExtractHandler struct {
	logger         *observability.Logger
	runner         BatchRunner
	maxUploadBytes int64
	timeout        time.Duration
}

// NewExtractHandler creates a new extraction handler. A positive timeout bounds
// each batch; when it expires the client gets a 504.
func NewExtractHandler(logger *observability.Logger, runner BatchRunner, maxUploadBytes int64, timeout time.Duration) *ExtractHandler {
	return &ExtractHandler{
		logger:         logger,
		runner:         runner,
		maxUploadBytes: maxUploadBytes,
		timeout:        timeout,
	}
}

// Extract handles POST /extract.
func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.WithContext(ctx)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	req, err := h.parseRequest(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes.", tooLarge.Limit))
			return
		}
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Invalid form: %v", err))
		return
	}

	logger.Info().
		Int("uploads", len(req.Uploads)).
		Int("drive_urls", len(req.URLs)).
		Msg("Starting batch extraction")

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn().Err(err).Dur("timeout", h.timeout).Msg("Batch extraction timed out")
			writeDetail(w, http.StatusGatewayTimeout,
				fmt.Sprintf("Extraction did not finish within %s.", h.timeout))
			return
		}
		status := http.StatusInternalServerError
		var de *domain.Error
		if errors.As(err, &de) {
			status = de.Status()
		}
		writeDetail(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseRequest reads the form. Multipart parts are read in order so uploads keep
// their submission order, including parts sent without a filename.
func (h *ExtractHandler) parseRequest(r *http.Request) (batch.Request, error) {
	var req batch.Request

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/") {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.URLs = keepURLs(r.PostForm[FieldDriveURLs])
		return req, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return req, err
	}

	var urls []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return req, err
		}

		switch part.FormName() {
		case FieldFiles:
			data, err := io.ReadAll(part)
			if err != nil {
				return req, fmt.Errorf("read %s: %w", part.FileName(), err)
			}
			req.Uploads = append(req.Uploads, source.Upload(part.FileName(), data))
		case FieldDriveURLs:
			value, err := io.ReadAll(part)
			if err != nil {
				return req, fmt.Errorf("read %s: %w", FieldDriveURLs, err)
			}
			urls = append(urls, string(value))
		default:
			if _, err := io.Copy(io.Discard, part); err != nil {
				return req, err
			}
		}
		part.Close()
	}

	req.URLs = keepURLs(urls)
	return req, nil
}

func keepURLs(values []string) []string {
	var out []string
	for _, u := range values {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
