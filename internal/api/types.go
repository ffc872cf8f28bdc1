// File: internal/api/types.go
package api

import "github.com/codeshield-25/codeshield-web/api/schemas"

// Response is the envelope of every JSON API response.
type Response struct {
	Status string      `json:"status"` // "success", "error", "accepted"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// StartScanRequest starts a scan in an existing session.
type StartScanRequest struct {
	RepositoryURL string `json:"repoUrl"`
	TeamID        string `json:"teamId,omitempty"`
}

// StartScanResponse identifies the scan attempt that was started.
type StartScanResponse struct {
	SessionID  string `json:"sessionId"`
	Generation uint64 `json:"generation"`
}

// SessionResponse pairs a session id with its current view.
type SessionResponse struct {
	ID       string                  `json:"id"`
	Snapshot schemas.SessionSnapshot `json:"snapshot"`
}

// JoinTeamRequest joins a team by its code.
type JoinTeamRequest struct {
	Code   string `json:"code"`
	UserID string `json:"userId"`
}

// PromptRequest carries free text for the JSON completion endpoints.
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// legacyError is the error body of the standalone /scan endpoint.
type legacyError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
