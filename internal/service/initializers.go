// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
	"github.com/codeshield-25/codeshield-web/internal/llmclient"
	"github.com/codeshield-25/codeshield-web/internal/repository"
	"github.com/codeshield-25/codeshield-web/internal/store"
	"github.com/codeshield-25/codeshield-web/internal/teams"
)

// InitializeStore connects to Postgres, or falls back to a process-local
// store when no database is configured. The returned cleanup may be nil.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (schemas.TeamStore, func(), error) {
	if cfg.URL == "" {
		logger.Warn("No database configured (CODESHIELD_DATABASE_URL); team statistics are kept in memory and lost on exit.")
		return store.NewMemoryStore(), nil, nil
	}
	st, cleanup, err := store.Connect(ctx, cfg.URL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize team store: %w", err)
	}
	logger.Info("PostgreSQL team store initialized.")
	return st, cleanup, nil
}

// InitializeTeams builds the team service, verifying repositories against
// GitHub when configured.
func InitializeTeams(st schemas.TeamStore, cfg config.GitHubConfig, logger *zap.Logger) (*teams.Service, error) {
	var opts []teams.Option
	if cfg.VerifyRepositories {
		resolver, err := repository.NewResolver(cfg.Token, cfg.BaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GitHub resolver: %w", err)
		}
		opts = append(opts, teams.WithResolver(resolver))
	}
	return teams.New(st, logger, opts...), nil
}

// InitializeLLMClient creates the LLM client. A missing API key is not an
// error: it returns a nil client and AI features stay disabled.
func InitializeLLMClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger, opts ...llmclient.GeminiOption) (schemas.LLMClient, error) {
	if cfg.APIKey == "" {
		logger.Warn("No LLM API key configured (CODESHIELD_LLM_API_KEY); AI assistance is disabled.")
		return nil, nil
	}
	llmClient, err := llmclient.NewClient(ctx, cfg, logger, opts...)
	if err != nil {
		logger.Error("Failed to initialize LLM client. AI assistance will be unavailable.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llmClient, nil
}
