// Package source materializes uploaded documents and remote links into a
// request-scoped directory so the conversion engine can read them by path.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/docbatch/internal/domain"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/observability"
)

const (
	defaultUploadName = "upload"
	remoteBaseName    = "remote"
	defaultRemoteExt  = ".bin"

	// DefaultFetchTimeout bounds a single remote download, redirects included.
	DefaultFetchTimeout = 30 * time.Second
)

// SupportedExtensions is the set of upload extensions accepted by the service.
var SupportedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".xlsm": true,
}

// Kind tags a Descriptor as an upload or a remote link.
type Kind int

const (
	KindUpload Kind = iota
	KindRemoteLink
)

func (k Kind) String() string {
	if k == KindRemoteLink {
		return "remote_link"
	}
	return "upload"
}

// Descriptor is one input of a batch.
type Descriptor struct {
	Kind     Kind
	Filename string // upload only, may be empty
	Data     []byte // upload only
	URL      string // remote link only
	Index    int    // 1-based position among remote links
}

// Upload describes an uploaded document.
func Upload(filename string, data []byte) Descriptor {
	return Descriptor{Kind: KindUpload, Filename: filename, Data: data}
}

// RemoteLink describes a document to download; index is 1-based among links.
func RemoteLink(index int, rawURL string) Descriptor {
	return Descriptor{Kind: KindRemoteLink, URL: rawURL, Index: index}
}

// Materialized is a descriptor written to disk.
type Materialized struct {
	DisplayName string
	Path        string
}

// Config holds materializer configuration.
type Config struct {
	FetchTimeout time.Duration
	MaxFileBytes int64 // 0 disables the per-file limit
	HTTPClient   *http.Client
}

// Materializer writes descriptors into a caller-owned directory.
type Materializer struct {
	logger *observability.Logger
	client *http.Client
	config Config
}

// NewMaterializer creates a materializer. The HTTP client follows redirects and
// times out after cfg.FetchTimeout unless cfg.HTTPClient is set.
func NewMaterializer(logger *observability.Logger, cfg Config) *Materializer {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	return &Materializer{
		logger: logger.WithComponent("materializer"),
		client: client,
		config: cfg,
	}
}

// Materialize writes one descriptor into dir.
func (m *Materializer) Materialize(ctx context.Context, desc Descriptor, dir string) (Materialized, error) {
	switch desc.Kind {
	case KindUpload:
		return m.storeUpload(desc, dir)
	case KindRemoteLink:
		return m.download(ctx, desc, dir)
	default:
		return Materialized{}, fmt.Errorf("unknown descriptor kind %d", desc.Kind)
	}
}

// AllowedExtensions returns the supported extensions in sorted order.
func AllowedExtensions() []string {
	exts := make([]string, 0, len(SupportedExtensions))
	for ext := range SupportedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// RemoteDisplayName is the label of the index-th remote link.
func RemoteDisplayName(index int, ext string) string {
	return fmt.Sprintf("drive-%d%s", index, ext)
}

func (m *Materializer) storeUpload(desc Descriptor, dir string) (Materialized, error) {
	name := desc.Filename
	if len(desc.Data) == 0 {
		return Materialized{}, domain.EmptyInputError(name)
	}

	ext := UploadExtension(name)
	if ext != "" && !SupportedExtensions[ext] {
		return Materialized{}, domain.UnsupportedTypeError(name, ext, AllowedExtensions())
	}

	if max := m.config.MaxFileBytes; max > 0 && int64(len(desc.Data)) > max {
		return Materialized{}, domain.FileTooLargeError(name, int64(len(desc.Data)), max)
	}

	base := safeBase(name)
	if base == "" {
		base = defaultUploadName
	}
	target := filepath.Join(dir, base)

	if err := os.WriteFile(target, desc.Data, 0o600); err != nil {
		_ = os.Remove(target)
		return Materialized{}, fmt.Errorf("write upload %s: %w", base, err)
	}

	displayName := name
	if displayName == "" {
		displayName = base
	}

	m.logger.Debug().
		Str("source", displayName).
		Int("bytes", len(desc.Data)).
		Msg("Stored upload")

	return Materialized{DisplayName: displayName, Path: target}, nil
}

func (m *Materializer) download(ctx context.Context, desc Descriptor, dir string) (Materialized, error) {
	ext := RemoteExtension(desc.URL)
	label := RemoteDisplayName(desc.Index, ext)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return Materialized{}, domain.RemoteFetchError(label, err)
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return Materialized{}, domain.RemoteFetchError(label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Materialized{}, domain.RemoteFetchError(label,
			fmt.Errorf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	target := filepath.Join(dir, remoteBaseName+ext)
	written, err := writeBody(target, resp.Body, m.config.MaxFileBytes)
	if err != nil {
		return Materialized{}, domain.RemoteFetchError(label, err)
	}

	m.logger.Debug().
		Str("source", label).
		Int64("bytes", written).
		Dur("elapsed", time.Since(start)).
		Msg("Downloaded remote link")

	return Materialized{DisplayName: label, Path: target}, nil
}

var errBodyTooLarge = errors.New("response body exceeds size limit")

// writeBody streams body into target, removing the file on any failure.
func writeBody(target string, body io.Reader, max int64) (int64, error) {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", filepath.Base(target), err)
	}

	reader := body
	if max > 0 {
		reader = io.LimitReader(body, max+1)
	}

	n, err := io.Copy(f, reader)
	if err == nil && max > 0 && n > max {
		err = fmt.Errorf("%w (%d bytes)", errBodyTooLarge, max)
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return 0, err
	}
	return n, nil
}

// RemoteExtension derives a file extension from a URL path, ignoring the query
// string and fragment. It defaults to ".bin".
func RemoteExtension(rawURL string) string {
	p := strings.SplitN(rawURL, "?", 2)[0]
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if ext := path.Ext(p); ext != "" && ext != "." {
		return ext
	}
	return defaultRemoteExt
}

// UploadExtension returns the lower-cased extension of a client filename. A
// leading dot (".env") or a trailing dot ("scan.") means no extension.
func UploadExtension(name string) string {
	base := safeBase(name)
	i := strings.LastIndex(base, ".")
	if i <= 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i:])
}

// safeBase strips directory components from a client-supplied filename.
func safeBase(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := path.Base(name)
	switch base {
	case ".", "/", "..":
		return ""
	}
	return base
}
