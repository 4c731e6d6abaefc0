package convert

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/docbatch/internal/config"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestDoclingEngine_Convert(t *testing.T) {
	var gotFormats []string
	var gotFile, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/convert/file", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFormats = r.MultipartForm.Value["to_formats"]
		gotKey = r.Header.Get("X-Api-Key")
		f, hdr, err := r.FormFile("files")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		gotFile = hdr.Filename + ":" + string(body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":          "success",
			"processing_time": 0.5,
			"errors":          []any{},
			"document": map[string]any{
				"filename":   hdr.Filename,
				"md_content": "# Title",
			},
		})
	}))
	defer srv.Close()

	engine, err := NewDoclingEngine(DoclingConfig{BaseURL: srv.URL + "/", APIKey: "k1"})
	require.NoError(t, err)

	got, err := engine.Convert(context.Background(), writeFile(t, "a.pdf", []byte("pdf-bytes")))
	require.NoError(t, err)

	assert.Equal(t, []string{"json", "md"}, gotFormats)
	assert.Equal(t, "a.pdf:pdf-bytes", gotFile)
	assert.Equal(t, "k1", gotKey)

	result, ok := got.(*DoclingResult)
	require.True(t, ok)
	dump, err := result.ModelDump()
	require.NoError(t, err)
	assert.Equal(t, "success", dump["status"])
	assert.Equal(t, "# Title", dump["document"].(map[string]any)["md_content"])
}

func TestDoclingEngine_FailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failure","errors":[{"error_message":"corrupt file"}],"document":{}}`))
	}))
	defer srv.Close()

	engine, err := NewDoclingEngine(DoclingConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = engine.Convert(context.Background(), writeFile(t, "a.pdf", []byte("x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt file")
}

func TestDoclingEngine_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	engine, err := NewDoclingEngine(DoclingConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = engine.Convert(context.Background(), writeFile(t, "a.pdf", []byte("x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestNewDoclingEngine_RequiresURL(t *testing.T) {
	_, err := NewDoclingEngine(DoclingConfig{})
	assert.Error(t, err)
}

func buildWorkbook(t *testing.T, name string, macros bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)

	w, err := zw.Create("xl/workbook.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheets><sheet name="Audit" sheetId="1"/><sheet name="Findings" sheetId="2"/></sheets>
</workbook>`))
	require.NoError(t, err)

	if macros {
		w, err = zw.Create("xl/vbaProject.bin")
		require.NoError(t, err)
		_, err = w.Write([]byte{0xd0, 0xcf})
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLocalEngine_Workbook(t *testing.T) {
	engine := NewLocalEngine()

	got, err := engine.Convert(context.Background(), buildWorkbook(t, "audit.xlsm", true))
	require.NoError(t, err)

	doc, ok := got.(*LocalDocument)
	require.True(t, ok)
	dict := doc.ToDict()
	assert.Equal(t, FormatWorkbook, dict["format"])
	assert.Equal(t, []any{"Audit", "Findings"}, dict["sheets"])
	assert.Equal(t, true, dict["has_macros"])
}

func TestLocalEngine_SniffsZipForUnknownExtension(t *testing.T) {
	engine := NewLocalEngine()

	got, err := engine.Convert(context.Background(), buildWorkbook(t, "remote.bin", false))
	require.NoError(t, err)
	doc := got.(*LocalDocument)
	assert.Equal(t, FormatWorkbook, doc.Format)
	assert.False(t, doc.HasMacros)
}

func TestLocalEngine_RejectsUnknownContent(t *testing.T) {
	engine := NewLocalEngine()

	_, err := engine.Convert(context.Background(), writeFile(t, "remote.bin", []byte("just some text")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content type")
}

func TestLocalEngine_ZipWithoutWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.xlsm")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("word/document.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = NewLocalEngine().Convert(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a spreadsheet")
}

func TestDoclingEngine_Ping(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine, err := NewDoclingEngine(DoclingConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	assert.NoError(t, engine.Ping(context.Background()))

	healthy = false
	err = engine.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNewEngine(t *testing.T) {
	t.Run("docling", func(t *testing.T) {
		engine, err := NewEngine(config.ConversionConfig{
			Engine:  config.EngineDocling,
			Docling: config.DoclingConfig{BaseURL: "http://localhost:5001"},
		})
		require.NoError(t, err)
		assert.Equal(t, "docling", engine.Name())
		assert.NoError(t, engine.Close())
	})

	t.Run("local", func(t *testing.T) {
		engine, err := NewEngine(config.ConversionConfig{Engine: config.EngineLocal})
		require.NoError(t, err)
		assert.Equal(t, "local", engine.Name())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewEngine(config.ConversionConfig{Engine: "tesseract"})
		assert.ErrorContains(t, err, "tesseract")
	})
}
