package convert

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Formats produced by the local engine.
const (
	FormatPDF      = "pdf"
	FormatImage    = "image"
	FormatWorkbook = "workbook"
)

// LocalEngine converts documents in-process: PDFs and images through MuPDF,
// macro-enabled workbooks by reading the OOXML package directly.
type LocalEngine struct {
	pdfConfig *model.Configuration
}

// NewLocalEngine creates a local engine.
func NewLocalEngine() *LocalEngine {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return &LocalEngine{pdfConfig: cfg}
}

// Name implements Engine.
func (e *LocalEngine) Name() string {
	return "local"
}

// Close implements Engine.
func (e *LocalEngine) Close() error {
	return nil
}

// Convert implements Engine.
func (e *LocalEngine) Convert(ctx context.Context, path string) (any, error) {
	format, mimeType, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	doc := &LocalDocument{
		Name:     filepath.Base(path),
		Format:   format,
		MIMEType: mimeType,
	}

	switch format {
	case FormatPDF:
		if err := api.ValidateFile(path, e.pdfConfig); err != nil {
			return nil, fmt.Errorf("validate pdf: %w", err)
		}
		count, err := api.PageCountFile(path)
		if err != nil {
			return nil, fmt.Errorf("count pdf pages: %w", err)
		}
		if err := readPages(ctx, path, doc); err != nil {
			return nil, err
		}
		if len(doc.Pages) != count {
			return nil, fmt.Errorf("page count mismatch: pdfcpu=%d mupdf=%d", count, len(doc.Pages))
		}
	case FormatImage:
		if err := readPages(ctx, path, doc); err != nil {
			return nil, err
		}
	case FormatWorkbook:
		if err := readWorkbook(path, doc); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// LocalDocument is the structured result of the local engine.
type LocalDocument struct {
	Name      string
	Format    string
	MIMEType  string
	Metadata  map[string]string
	Pages     []Page
	Sheets    []string
	HasMacros bool
}

// Page is one rendered page of a PDF or image.
type Page struct {
	Number int
	Width  int
	Height int
	Text   string
}

// ToDict exports the document as JSON-compatible data.
func (d *LocalDocument) ToDict() map[string]any {
	out := map[string]any{
		"name":      d.Name,
		"format":    d.Format,
		"mime_type": d.MIMEType,
	}
	if len(d.Metadata) > 0 {
		meta := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = v
		}
		out["metadata"] = meta
	}

	switch d.Format {
	case FormatWorkbook:
		sheets := make([]any, len(d.Sheets))
		for i, s := range d.Sheets {
			sheets[i] = s
		}
		out["sheets"] = sheets
		out["has_macros"] = d.HasMacros
	default:
		pages := make([]any, len(d.Pages))
		var text strings.Builder
		for i, p := range d.Pages {
			pages[i] = map[string]any{
				"page":   p.Number,
				"width":  p.Width,
				"height": p.Height,
				"text":   p.Text,
			}
			if p.Text != "" {
				if text.Len() > 0 {
					text.WriteString("\n\n")
				}
				text.WriteString(p.Text)
			}
		}
		out["page_count"] = len(d.Pages)
		out["pages"] = pages
		out["text"] = text.String()
	}
	return out
}

func (d *LocalDocument) String() string {
	return fmt.Sprintf("LocalDocument(name=%s, format=%s, pages=%d)", d.Name, d.Format, len(d.Pages))
}

// detectFormat picks a format from the extension, sniffing content for
// unknown extensions such as downloaded ".bin" files.
func detectFormat(path string) (format, mimeType string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF, "application/pdf", nil
	case ".jpg", ".jpeg":
		return FormatImage, "image/jpeg", nil
	case ".xlsm":
		return FormatWorkbook, "application/vnd.ms-excel.sheet.macroEnabled.12", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	sniffed := http.DetectContentType(head[:n])
	switch {
	case strings.HasPrefix(sniffed, "application/pdf"):
		return FormatPDF, "application/pdf", nil
	case strings.HasPrefix(sniffed, "image/jpeg"):
		return FormatImage, "image/jpeg", nil
	case strings.HasPrefix(sniffed, "application/zip"):
		return FormatWorkbook, "application/vnd.ms-excel.sheet.macroEnabled.12", nil
	default:
		return "", "", fmt.Errorf("unsupported content type %q", sniffed)
	}
}

func readPages(ctx context.Context, path string, doc *LocalDocument) error {
	fd, err := fitz.New(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", doc.Name, err)
	}
	defer fd.Close()

	doc.Metadata = nonEmpty(fd.Metadata())

	count := fd.NumPage()
	doc.Pages = make([]Page, 0, count)
	for n := 0; n < count; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		bounds, err := fd.Bound(n)
		if err != nil {
			return fmt.Errorf("page %d bounds: %w", n+1, err)
		}

		page := Page{Number: n + 1, Width: bounds.Dx(), Height: bounds.Dy()}
		if doc.Format == FormatPDF {
			text, err := fd.Text(n)
			if err != nil {
				return fmt.Errorf("page %d text: %w", n+1, err)
			}
			page.Text = strings.TrimSpace(text)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return nil
}

type workbookXML struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
	} `xml:"sheets>sheet"`
}

func readWorkbook(path string, doc *LocalDocument) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", doc.Name, err)
	}
	defer zr.Close()

	var found bool
	for _, f := range zr.File {
		switch f.Name {
		case "xl/vbaProject.bin":
			doc.HasMacros = true
		case "xl/workbook.xml":
			found = true
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("open workbook part: %w", err)
			}
			var wb workbookXML
			err = xml.NewDecoder(rc).Decode(&wb)
			rc.Close()
			if err != nil {
				return fmt.Errorf("decode workbook part: %w", err)
			}
			for _, s := range wb.Sheets {
				doc.Sheets = append(doc.Sheets, s.Name)
			}
		}
	}
	if !found {
		return fmt.Errorf("%s is not a spreadsheet: xl/workbook.xml missing", doc.Name)
	}
	return nil
}

func nonEmpty(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
