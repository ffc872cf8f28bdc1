package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
	"github.com/codeshield-25/codeshield-web/internal/store"
)

func remoteConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.ScannerCfg.Engine = config.EngineRemote
	cfg.ScannerCfg.RemoteURL = "http://127.0.0.1:1/scan"
	cfg.LLMCfg.APIKey = ""
	cfg.DatabaseCfg.URL = ""
	return cfg
}

func TestInitializeStore(t *testing.T) {
	t.Run("memory fallback", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		st, cleanup, err := InitializeStore(context.Background(), config.DatabaseConfig{}, zap.New(core))
		require.NoError(t, err)
		assert.Nil(t, cleanup)
		assert.IsType(t, &store.MemoryStore{}, st)
		assert.Equal(t, 1, logs.FilterMessageSnippet("kept in memory").Len())
	})

	t.Run("invalid url", func(t *testing.T) {
		_, _, err := InitializeStore(context.Background(),
			config.DatabaseConfig{URL: "postgres://localhost:notaport/db"}, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "failed to initialize team store")
	})
}

func TestInitializeLLMClient(t *testing.T) {
	t.Run("disabled without key", func(t *testing.T) {
		client, err := InitializeLLMClient(context.Background(), config.LLMConfig{}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := InitializeLLMClient(context.Background(),
			config.LLMConfig{APIKey: "k", Provider: "together"}, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "failed to initialize LLM client")
	})
}

func TestInitializeTeams(t *testing.T) {
	svc, err := InitializeTeams(store.NewMemoryStore(), config.GitHubConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, svc)

	svc, err = InitializeTeams(store.NewMemoryStore(), config.GitHubConfig{VerifyRepositories: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, svc)

	_, err = InitializeTeams(store.NewMemoryStore(),
		config.GitHubConfig{VerifyRepositories: true, BaseURL: "://bad"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "failed to initialize GitHub resolver")
}

func TestCreate(t *testing.T) {
	c, err := NewComponentFactory().Create(context.Background(), remoteConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Shutdown()

	assert.NotNil(t, c.Store)
	assert.NotNil(t, c.Engine)
	assert.NotNil(t, c.Reconciler)
	assert.NotNil(t, c.Teams)
	assert.Nil(t, c.LLM)
	assert.Nil(t, c.Advisor)

	o, err := c.NewSession()
	require.NoError(t, err)
	assert.Equal(t, schemas.StateIdle, o.Snapshot().State)
	o.Close()

	_, _, err = c.Sessions.Create()
	require.NoError(t, err)
	assert.Equal(t, 1, c.Sessions.Len())
}

func TestCreate_WithLLM(t *testing.T) {
	cfg := remoteConfig()
	cfg.LLMCfg.APIKey = "test-key"
	c, err := NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Shutdown()

	assert.NotNil(t, c.LLM)
	assert.NotNil(t, c.Advisor)
}

func TestCreate_EngineFailure(t *testing.T) {
	cfg := remoteConfig()
	cfg.ScannerCfg.Engine = config.EngineCLI
	cfg.ScannerCfg.Binary = "definitely-not-a-real-scanner-binary"

	core, logs := observer.New(zapcore.WarnLevel)
	_, err := NewComponentFactory().Create(context.Background(), cfg, zap.New(core))
	assert.ErrorContains(t, err, "failed to initialize scan engine")
	assert.Equal(t, 1, logs.FilterMessageSnippet("shutting down partially created components").Len())
}

func TestShutdown_Empty(t *testing.T) {
	assert.NotPanics(t, func() { (&Components{}).Shutdown() })
}
