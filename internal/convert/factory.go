package convert

import (
	"fmt"

	"github.com/spherical-ai/spherical/libs/docbatch/internal/config"
)

// NewEngine builds the engine selected by cfg.Engine. The caller owns the
// returned engine and must Close it on shutdown.
func NewEngine(cfg config.ConversionConfig) (Engine, error) {
	switch cfg.Engine {
	case config.EngineDocling:
		return NewDoclingEngine(DoclingConfig{
			BaseURL:  cfg.Docling.BaseURL,
			Endpoint: cfg.Docling.Endpoint,
			APIKey:   cfg.Docling.APIKey,
			Timeout:  cfg.Docling.Timeout,
			Formats:  cfg.Docling.Formats,
		})
	case config.EngineLocal:
		return NewLocalEngine(), nil
	default:
		return nil, fmt.Errorf("unknown conversion engine %q", cfg.Engine)
	}
}
