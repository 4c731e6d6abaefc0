package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/docbatch/internal/config"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/observability"
)

type echoDoc struct{ text string }

func (d echoDoc) ToDict() map[string]any { return map[string]any{"text": d.text} }

// echoEngine returns the file content, failing on content "boom".
type echoEngine struct{}

func (echoEngine) Name() string { return "echo" }
func (echoEngine) Close() error { return nil }
func (echoEngine) Convert(_ context.Context, path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if string(data) == "boom" {
		return nil, errors.New("engine exploded")
	}
	return echoDoc{text: string(data)}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Source.TempDir = t.TempDir()
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

	srv := httptest.NewServer(NewRouter(observability.NopLogger(), cfg, echoEngine{}))
	t.Cleanup(srv.Close)
	return srv, cfg.Source.TempDir
}

func postFiles(t *testing.T, url string, files map[string]string, order []string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range order {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, _ = part.Write([]byte(files[name]))
	}
	require.NoError(t, w.Close())

	resp, err := http.Post(url+"/extract", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_Root(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "ok"}, body)
}

func TestRouter_ExtractRoundTrip(t *testing.T) {
	srv, tempRoot := newTestServer(t)

	resp := postFiles(t, srv.URL,
		map[string]string{"a.pdf": "alpha", "b.jpg": "bravo"},
		[]string{"a.pdf", "b.jpg"})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count   int `json:"count"`
		Results []struct {
			Source   string         `json:"source"`
			Document map[string]any `json:"document"`
		} `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "a.pdf", body.Results[0].Source)
	assert.Equal(t, "alpha", body.Results[0].Document["text"])
	assert.Equal(t, "b.jpg", body.Results[1].Source)
	assert.Equal(t, "bravo", body.Results[1].Document["text"])

	leftovers, err := filepath.Glob(filepath.Join(tempRoot, "*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRouter_ExtractUploadWithoutFilename(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postFiles(t, srv.URL,
		map[string]string{"": "alpha", "b.jpg": "bravo"},
		[]string{"", "b.jpg"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Count   int `json:"count"`
		Results []struct {
			Source   string         `json:"source"`
			Document map[string]any `json:"document"`
		} `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "upload", body.Results[0].Source)
	assert.Equal(t, "alpha", body.Results[0].Document["text"])
	assert.Equal(t, "b.jpg", body.Results[1].Source)
}

func TestRouter_ExtractConversionFailure(t *testing.T) {
	srv, tempRoot := newTestServer(t)

	resp := postFiles(t, srv.URL,
		map[string]string{"a.pdf": "alpha", "c.pdf": "boom"},
		[]string{"a.pdf", "c.pdf"})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Failed to convert c.pdf: engine exploded", body["detail"])

	leftovers, err := filepath.Glob(filepath.Join(tempRoot, "*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRouter_ExtractEmptyBatch(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postFiles(t, srv.URL, nil, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/extract", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
