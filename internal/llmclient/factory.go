package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
)

// NewClient builds the tiered client for the configured provider. The fast
// tier falls back to the main model when no fast model is configured.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger, opts ...GeminiOption) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		powerful, err := NewGeminiClient(ctx, cfg, cfg.Model, logger, opts...)
		if err != nil {
			return nil, err
		}
		fastModel := cfg.FastModel
		if fastModel == "" {
			fastModel = cfg.Model
		}
		fast, err := NewGeminiClient(ctx, cfg, fastModel, logger, opts...)
		if err != nil {
			return nil, err
		}
		return NewLLMRouter(logger, fast, powerful)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}
