package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DoclingConfig configures a docling-serve backed engine.
type DoclingConfig struct {
	BaseURL  string
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Formats  []string
}

// DoclingEngine posts documents to a docling-serve instance.
type DoclingEngine struct {
	client *http.Client
	config DoclingConfig
}

// NewDoclingEngine creates an engine talking to cfg.BaseURL.
func NewDoclingEngine(cfg DoclingConfig) (*DoclingEngine, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("docling base URL is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/v1/convert/file"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{"json", "md"}
	}
	return &DoclingEngine{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

// Name implements Engine.
func (e *DoclingEngine) Name() string {
	return "docling"
}

// Close implements Engine.
func (e *DoclingEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// Convert implements Engine.
func (e *DoclingEngine) Convert(ctx context.Context, path string) (any, error) {
	body, contentType, err := e.buildForm(path)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(e.config.BaseURL, "/") + e.config.Endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create docling request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("X-Api-Key", e.config.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docling request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read docling response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("docling returned %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}

	result, err := decodeDoclingResult(raw)
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		return nil, fmt.Errorf("docling conversion %s: %s", result.Status, strings.Join(result.Errors(), "; "))
	}
	return result, nil
}

// Ping checks the docling-serve health endpoint.
func (e *DoclingEngine) Ping(ctx context.Context) error {
	url := strings.TrimRight(e.config.BaseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create docling health request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("docling health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docling health returned %d", resp.StatusCode)
	}
	return nil
}

func (e *DoclingEngine) buildForm(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy %s: %w", filepath.Base(path), err)
	}
	for _, format := range e.config.Formats {
		if err := w.WriteField("to_formats", format); err != nil {
			return nil, "", fmt.Errorf("write to_formats: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// DoclingResult is a decoded docling-serve conversion response.
type DoclingResult struct {
	Status         string         `json:"status"`
	ProcessingTime float64        `json:"processing_time"`
	Document       map[string]any `json:"document"`
	RawErrors      []any          `json:"errors"`

	raw map[string]any
}

func decodeDoclingResult(data []byte) (*DoclingResult, error) {
	var result DoclingResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode docling response: %w", err)
	}
	if err := json.Unmarshal(data, &result.raw); err != nil {
		return nil, fmt.Errorf("decode docling response: %w", err)
	}
	return &result, nil
}

// Succeeded reports whether docling produced a document.
func (r *DoclingResult) Succeeded() bool {
	switch r.Status {
	case "", "success", "partial_success":
		return true
	default:
		return false
	}
}

// Errors returns the error messages docling reported.
func (r *DoclingResult) Errors() []string {
	out := make([]string, 0, len(r.RawErrors))
	for _, e := range r.RawErrors {
		switch v := e.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if msg, ok := v["error_message"].(string); ok {
				out = append(out, msg)
				continue
			}
			out = append(out, fmt.Sprint(v))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

// ModelDump returns the full response document as decoded JSON.
func (r *DoclingResult) ModelDump() (map[string]any, error) {
	if r.raw == nil {
		return nil, fmt.Errorf("docling result has no payload")
	}
	return r.raw, nil
}

func (r *DoclingResult) String() string {
	name, _ := r.Document["filename"].(string)
	return fmt.Sprintf("DoclingResult(status=%s, filename=%s)", r.Status, name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
