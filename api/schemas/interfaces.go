package schemas

import (
	"context"
)

// -- Scan Engine Interface --

// ScanEngine runs one scan kind against a repository and returns the engine's
// raw JSON output. It is a black box: the pipeline validates the output at
// its own boundary.
type ScanEngine interface {
	Scan(ctx context.Context, req ScanRequest) ([]byte, error)
}

// -- Store Interfaces --

// TeamStatsUpdateFunc computes the new running stats from the current ones.
// It is called with the freshest persisted value while the store holds the
// team's update lock.
type TeamStatsUpdateFunc func(current TeamRunningStats) (TeamRunningStats, error)

// TeamStatsStore is the persistence contract needed by the reconciler.
type TeamStatsStore interface {
	// GetTeamStats returns the current running stats for a team.
	GetTeamStats(ctx context.Context, teamID string) (TeamRunningStats, error)
	// UpdateTeamStats atomically applies fn to the team's current stats and
	// persists the result together with a record of the run.
	UpdateTeamStats(ctx context.Context, teamID string, run ScanRun, fn TeamStatsUpdateFunc) (TeamRunningStats, error)
}

// TeamStore adds team management and history on top of TeamStatsStore.
type TeamStore interface {
	TeamStatsStore
	CreateTeam(ctx context.Context, team Team) (Team, error)
	GetTeam(ctx context.Context, teamID string) (Team, error)
	JoinTeam(ctx context.Context, code, userID string) (Team, error)
	ListScanRuns(ctx context.Context, teamID string, limit int) ([]ScanRun, error)
}

// -- LLM Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls sampling for a single completion.
type GenerationOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a hosted text
// completion service.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
