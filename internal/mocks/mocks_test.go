package mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
)

var (
	_ config.Interface   = (*MockConfig)(nil)
	_ schemas.LLMClient  = (*MockLLMClient)(nil)
	_ schemas.ScanEngine = (*MockScanEngine)(nil)
	_ schemas.TeamStore  = (*MockTeamStore)(nil)
)

func TestMockTeamStore_UpdateTeamStatsAppliesFn(t *testing.T) {
	store := new(MockTeamStore)
	store.On("UpdateTeamStats", mock.Anything, "team-1", mock.Anything, mock.Anything).
		Return(schemas.TeamRunningStats{AvgHighVulCnt: 4}, nil).Once()

	got, err := store.UpdateTeamStats(context.Background(), "team-1", schemas.ScanRun{},
		func(cur schemas.TeamRunningStats) (schemas.TeamRunningStats, error) {
			cur.AvgHighVulCnt /= 2
			return cur, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.AvgHighVulCnt)
	store.AssertExpectations(t)
}

func TestMockTeamStore_UpdateTeamStatsError(t *testing.T) {
	store := new(MockTeamStore)
	boom := errors.New("connection reset")
	store.On("UpdateTeamStats", mock.Anything, "team-1", mock.Anything, mock.Anything).
		Return(schemas.TeamRunningStats{}, boom)

	called := false
	_, err := store.UpdateTeamStats(context.Background(), "team-1", schemas.ScanRun{},
		func(cur schemas.TeamRunningStats) (schemas.TeamRunningStats, error) {
			called = true
			return cur, nil
		})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestMockScanEngine_NilOutput(t *testing.T) {
	engine := new(MockScanEngine)
	engine.On("Scan", mock.Anything, mock.Anything).Return(nil, schemas.ErrScanEngine)

	out, err := engine.Scan(context.Background(), schemas.ScanRequest{})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, schemas.ErrScanEngine)
}
