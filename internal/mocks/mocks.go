// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

func (m *MockConfig) Scanner() config.ScannerConfig {
	args := m.Called()
	return args.Get(0).(config.ScannerConfig)
}

func (m *MockConfig) Session() config.SessionConfig {
	args := m.Called()
	return args.Get(0).(config.SessionConfig)
}

func (m *MockConfig) GitHub() config.GitHubConfig {
	args := m.Called()
	return args.Get(0).(config.GitHubConfig)
}

func (m *MockConfig) LLM() config.LLMConfig {
	args := m.Called()
	return args.Get(0).(config.LLMConfig)
}

// --- Setters ---

func (m *MockConfig) SetScannerEngine(engine string)    { m.Called(engine) }
func (m *MockConfig) SetScannerTimeout(d time.Duration) { m.Called(d) }
func (m *MockConfig) SetSessionDispatch(mode string)    { m.Called(mode) }

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Scan Engine Mock --

// MockScanEngine mocks the schemas.ScanEngine interface.
type MockScanEngine struct {
	mock.Mock
}

func (m *MockScanEngine) Scan(ctx context.Context, req schemas.ScanRequest) ([]byte, error) {
	args := m.Called(ctx, req)
	var out []byte
	if v := args.Get(0); v != nil {
		out = v.([]byte)
	}
	return out, args.Error(1)
}

// -- Team Store Mock --

// MockTeamStore mocks the schemas.TeamStore interface.
type MockTeamStore struct {
	mock.Mock
}

func (m *MockTeamStore) GetTeamStats(ctx context.Context, teamID string) (schemas.TeamRunningStats, error) {
	args := m.Called(ctx, teamID)
	return args.Get(0).(schemas.TeamRunningStats), args.Error(1)
}

// UpdateTeamStats returns the configured "current" stats passed through fn,
// so the caller's merge logic runs against the mocked persisted value.
func (m *MockTeamStore) UpdateTeamStats(ctx context.Context, teamID string, run schemas.ScanRun, fn schemas.TeamStatsUpdateFunc) (schemas.TeamRunningStats, error) {
	args := m.Called(ctx, teamID, run, fn)
	if err := args.Error(1); err != nil {
		return schemas.TeamRunningStats{}, err
	}
	return fn(args.Get(0).(schemas.TeamRunningStats))
}

func (m *MockTeamStore) CreateTeam(ctx context.Context, team schemas.Team) (schemas.Team, error) {
	args := m.Called(ctx, team)
	return args.Get(0).(schemas.Team), args.Error(1)
}

func (m *MockTeamStore) GetTeam(ctx context.Context, teamID string) (schemas.Team, error) {
	args := m.Called(ctx, teamID)
	return args.Get(0).(schemas.Team), args.Error(1)
}

func (m *MockTeamStore) JoinTeam(ctx context.Context, code, userID string) (schemas.Team, error) {
	args := m.Called(ctx, code, userID)
	return args.Get(0).(schemas.Team), args.Error(1)
}

func (m *MockTeamStore) ListScanRuns(ctx context.Context, teamID string, limit int) ([]schemas.ScanRun, error) {
	args := m.Called(ctx, teamID, limit)
	var runs []schemas.ScanRun
	if v := args.Get(0); v != nil {
		runs = v.([]schemas.ScanRun)
	}
	return runs, args.Error(1)
}
