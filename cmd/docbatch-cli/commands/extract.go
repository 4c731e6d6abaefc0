package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/docbatch/cmd/docbatch-cli/ui"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/batch"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/config"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/convert"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/observability"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/source"
)

var (
	extractFiles  []string
	extractURLs   []string
	extractOutput string
	extractEngine string
	extractPretty bool
	extractPerDoc bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract documents into JSON",
	Long: `Extract converts local files and remote links in one batch and writes
{"count": N, "results": [...]} to stdout or --output. Any failure aborts the
whole batch.`,
	Example: `  docbatch extract --file invoice.pdf --file scan.jpg
  docbatch extract --url https://example.com/report.pdf --output out.json --engine local`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringArrayVarP(&extractFiles, "file", "f", nil, "local file to extract (repeatable)")
	extractCmd.Flags().StringArrayVarP(&extractURLs, "url", "u", nil, "remote link to extract (repeatable)")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "write JSON to this file instead of stdout")
	extractCmd.Flags().StringVar(&extractEngine, "engine", "", "conversion engine override (docling or local)")
	extractCmd.Flags().BoolVar(&extractPretty, "pretty", true, "indent JSON output")
	extractCmd.Flags().BoolVar(&extractPerDoc, "per-document", false, "show one progress row per document")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if extractEngine != "" {
		cfg.Conversion.Engine = extractEngine
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	out := ui.New(noColor, quiet)
	logger := newCLILogger(cfg)

	req, err := buildRequest(extractFiles, extractURLs)
	if err != nil {
		return err
	}
	if err := batch.Validate(req); err != nil {
		return err
	}

	engine, err := convert.NewEngine(cfg.Conversion)
	if err != nil {
		return err
	}
	defer engine.Close()

	orch := batch.NewOrchestrator(logger,
		source.NewMaterializer(logger, source.Config{
			FetchTimeout: cfg.Source.FetchTimeout,
			MaxFileBytes: cfg.Source.MaxFileBytes,
		}),
		convert.NewAdapter(logger, engine, cfg.Conversion.MaxWorkers),
		batch.Config{TempRoot: cfg.Source.TempDir},
	)

	out.Step("Extracting %d document(s) with the %s engine", len(req.Uploads)+len(req.URLs), engine.Name())

	var tracker ui.ProgressHandler = out.NewTracker()
	if extractPerDoc {
		tracker = out.NewItemTracker()
	}
	req.OnProgress = tracker.Handle
	result, err := orch.Run(ctx, req)
	tracker.Stop()
	if err != nil {
		return err
	}

	if err := writeResult(result, extractOutput, extractPretty); err != nil {
		return err
	}
	if extractOutput != "" {
		out.Success("Wrote %d document(s) to %s", result.Count, extractOutput)
	} else {
		out.Info("Extracted %d document(s)", result.Count)
	}
	return nil
}

// buildRequest reads local files into upload descriptors. Files are read in
// full since the batch pipeline treats uploads as in-memory bytes.
func buildRequest(files, urls []string) (batch.Request, error) {
	var req batch.Request
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return req, fmt.Errorf("read %s: %w", path, err)
		}
		req.Uploads = append(req.Uploads, source.Upload(filepath.Base(path), data))
	}
	for _, u := range urls {
		if u != "" {
			req.URLs = append(req.URLs, u)
		}
	}
	return req, nil
}

func writeResult(result *batch.Result, path string, pretty bool) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

func newCLILogger(cfg *config.Config) *observability.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: cfg.Observability.ServiceName,
	})
}
