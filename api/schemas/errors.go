package schemas

import "errors"

// Error taxonomy shared by the pipeline. Callers wrap these with context and
// test with errors.Is.
var (
	// ErrScanEngine means an external scan call failed (timeout, process
	// error, non-2xx, unparseable output).
	ErrScanEngine = errors.New("scan engine failure")
	// ErrPartialScan means exactly one of the two scan kinds failed.
	ErrPartialScan = errors.New("partial scan")
	// ErrReconciliation means reading or writing persisted team stats failed.
	ErrReconciliation = errors.New("team statistics reconciliation failed")
	// ErrMalformedInput means the repository URL is not a recognized scan target.
	ErrMalformedInput = errors.New("malformed repository url")
	// ErrMalformedOutput means a scan engine response failed schema validation.
	ErrMalformedOutput = errors.New("malformed scan output")
	// ErrScanInProgress is returned when a scan is requested while one is running.
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrTeamNotFound is returned by stores for unknown team ids or codes.
	ErrTeamNotFound = errors.New("team not found")
	// ErrAlreadyMember is returned when joining a team twice.
	ErrAlreadyMember = errors.New("already a member of this team")
	// ErrSessionNotFound is returned by the session registry.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionLimit is returned when the registry is full.
	ErrSessionLimit = errors.New("too many active sessions")
)
