package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
	"github.com/deepsurf-ai/deepsurf/internal/config"
)

// NewRouter builds the tiered client stack from configuration: one client
// per tier, sharing a single instance when both tiers resolve to the same
// model.
func NewRouter(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	fast, err := newClient(cfg.ModelFor(cfg.DefaultFastModel), logger)
	if err != nil {
		return nil, fmt.Errorf("building fast tier client: %w", err)
	}

	powerful := fast
	if cfg.DefaultPowerfulModel != cfg.DefaultFastModel {
		powerful, err = newClient(cfg.ModelFor(cfg.DefaultPowerfulModel), logger)
		if err != nil {
			return nil, fmt.Errorf("building powerful tier client: %w", err)
		}
	}

	return NewLLMRouter(logger, fast, powerful)
}

func newClient(mc config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch mc.Provider {
	case config.ProviderGemini, "":
		return NewGeminiClient(mc, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s]", mc.Provider, config.ProviderGemini)
	}
}
