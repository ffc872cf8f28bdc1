package schemas

import (
	"time"
)

// -- Team Schemas --

// TeamRunningStats is the persisted, per-team recency-weighted average of
// vulnerability counts. Every field is non-negative.
type TeamRunningStats struct {
	AvgHighVulCnt float64 `json:"avgHighVulCnt"`
	AvgMidVulCnt  float64 `json:"avgMidVulCnt"`
	AvgLowVulCnt  float64 `json:"avgLowVulCnt"`
}

// Team is the persisted team record. Name, repository and membership are
// owned by team management; Stats is owned by the reconciler.
type Team struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	RepositoryURL string           `json:"repository"`
	Code          string           `json:"code"`
	Members       []string         `json:"members"`
	CreatedBy     string           `json:"createdBy"`
	CreatedAt     time.Time        `json:"createdAt"`
	Stats         TeamRunningStats `json:"stats"`
}

// HasMember reports whether userID already belongs to the team.
func (t *Team) HasMember(userID string) bool {
	for _, m := range t.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// ScanRun is one committed scan for a team, kept for trend views.
type ScanRun struct {
	ID            string            `json:"id"`
	TeamID        string            `json:"teamId"`
	RepositoryURL string            `json:"repositoryUrl"`
	Stats         CombinedScanStats `json:"stats"`
	After         TeamRunningStats  `json:"after"`
	CompletedAt   time.Time         `json:"completedAt"`
}

// -- Session Schemas --

// SessionState is the lifecycle state of one scan session.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateScanning  SessionState = "scanning"
	StateCompleted SessionState = "completed"
	StateFailed    SessionState = "failed"
)

// Terminal reports whether the state ends a scan attempt.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// SessionSnapshot is the read-only view of a session handed to consumers.
// Stats is set only when State is completed; Partial may be set on failure
// when one of the two scans succeeded and is meant for display only.
type SessionSnapshot struct {
	State         SessionState       `json:"state"`
	Generation    uint64             `json:"generation"`
	RepositoryURL string             `json:"repositoryUrl,omitempty"`
	TeamID        string             `json:"teamId,omitempty"`
	Stats         *CombinedScanStats `json:"stats,omitempty"`
	Partial       *CombinedScanStats `json:"partial,omitempty"`
	TeamStats     *TeamRunningStats  `json:"teamStats,omitempty"`
	StatsStale    bool               `json:"statsStale,omitempty"`
	Error         string             `json:"error,omitempty"`
	UpdatedAt     time.Time          `json:"updatedAt"`

	// Err is the typed failure behind Error, for errors.Is checks in-process.
	Err error `json:"-"`

	// Raw results are kept for detail views; they are not part of the
	// summarized contract and are omitted from the wire format.
	OpenSource   *OpenSourceResult   `json:"-"`
	CodeSecurity *CodeSecurityResult `json:"-"`
}
