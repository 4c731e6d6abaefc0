// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/docbatch/cmd/docbatch-api/handlers"
	"github.com/spherical-ai/spherical/libs/docbatch/cmd/docbatch-api/middleware"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/batch"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/config"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/convert"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/observability"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/source"
)

// NewRouter creates the API router. engine is the process-wide conversion
// engine; it is shared read-only by every request.
func NewRouter(logger *observability.Logger, cfg *config.Config, engine convert.Engine) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	materializer := source.NewMaterializer(logger, source.Config{
		FetchTimeout: cfg.Source.FetchTimeout,
		MaxFileBytes: cfg.Source.MaxFileBytes,
	})
	adapter := convert.NewAdapter(logger, engine, cfg.Conversion.MaxWorkers)
	orchestrator := batch.NewOrchestrator(logger, materializer, adapter, batch.Config{
		TempRoot: cfg.Source.TempDir,
	})

	pinger, _ := engine.(handlers.Pinger)
	healthHandler := handlers.NewHealthHandler(logger, engine.Name(), pinger)
	extractHandler := handlers.NewExtractHandler(logger, orchestrator, cfg.Server.MaxUploadBytes, cfg.Server.RequestTimeout)

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Post("/extract", extractHandler.Extract)

	return r
}
