package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

// MemoryStore is an in-process schemas.TeamStore used when no database is
// configured and in tests. A single mutex serializes stats updates.
type MemoryStore struct {
	mu     sync.Mutex
	teams  map[string]*schemas.Team
	byCode map[string]string
	runs   map[string][]schemas.ScanRun
}

var _ schemas.TeamStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:  make(map[string]*schemas.Team),
		byCode: make(map[string]string),
		runs:   make(map[string][]schemas.ScanRun),
	}
}

func cloneTeam(t *schemas.Team) schemas.Team {
	c := *t
	c.Members = append([]string{}, t.Members...)
	return c
}

func (m *MemoryStore) CreateTeam(_ context.Context, team schemas.Team) (schemas.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byCode[team.Code]; taken {
		return schemas.Team{}, fmt.Errorf("%w: %s", ErrDuplicateCode, team.Code)
	}
	if _, exists := m.teams[team.ID]; exists {
		return schemas.Team{}, fmt.Errorf("team %s already exists", team.ID)
	}
	team.CreatedAt = team.CreatedAt.UTC()
	team.Stats = schemas.TeamRunningStats{}
	stored := cloneTeam(&team)
	m.teams[team.ID] = &stored
	m.byCode[team.Code] = team.ID
	return cloneTeam(&stored), nil
}

func (m *MemoryStore) GetTeam(_ context.Context, teamID string) (schemas.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return schemas.Team{}, fmt.Errorf("%w: %s", schemas.ErrTeamNotFound, teamID)
	}
	return cloneTeam(t), nil
}

func (m *MemoryStore) JoinTeam(_ context.Context, code, userID string) (schemas.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byCode[code]
	if !ok {
		return schemas.Team{}, fmt.Errorf("%w: invalid team code", schemas.ErrTeamNotFound)
	}
	t := m.teams[id]
	if t.HasMember(userID) {
		return schemas.Team{}, schemas.ErrAlreadyMember
	}
	t.Members = append(t.Members, userID)
	return cloneTeam(t), nil
}

func (m *MemoryStore) GetTeamStats(_ context.Context, teamID string) (schemas.TeamRunningStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teams[teamID]
	if !ok {
		return schemas.TeamRunningStats{}, fmt.Errorf("%w: %s", schemas.ErrTeamNotFound, teamID)
	}
	return t.Stats, nil
}

func (m *MemoryStore) UpdateTeamStats(ctx context.Context, teamID string, run schemas.ScanRun, fn schemas.TeamStatsUpdateFunc) (schemas.TeamRunningStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return schemas.TeamRunningStats{}, err
	}

	t, ok := m.teams[teamID]
	if !ok {
		return schemas.TeamRunningStats{}, fmt.Errorf("%w: %s", schemas.ErrTeamNotFound, teamID)
	}
	next, err := fn(t.Stats)
	if err != nil {
		return schemas.TeamRunningStats{}, err
	}
	t.Stats = next

	run.TeamID = teamID
	run.After = next
	run.CompletedAt = run.CompletedAt.UTC()
	m.runs[teamID] = append(m.runs[teamID], run)
	return next, nil
}

func (m *MemoryStore) ListScanRuns(_ context.Context, teamID string, limit int) ([]schemas.ScanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[teamID]; !ok {
		return nil, fmt.Errorf("%w: %s", schemas.ErrTeamNotFound, teamID)
	}
	runs := append([]schemas.ScanRun{}, m.runs[teamID]...)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CompletedAt.After(runs[j].CompletedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
