package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is the top-level JSON report.
type Document struct {
	Tool        string          `json:"tool"`
	Version     string          `json:"version"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Sessions    []SessionReport `json:"sessions"`
}

// SessionReport is one scanned repository in a JSON report.
type SessionReport struct {
	RepositoryURL string                      `json:"repositoryUrl"`
	TeamID        string                      `json:"teamId,omitempty"`
	State         schemas.SessionState        `json:"state"`
	Stats         *schemas.CombinedScanStats  `json:"stats,omitempty"`
	Totals        *schemas.SeverityBucket     `json:"totals,omitempty"`
	Partial       *schemas.CombinedScanStats  `json:"partial,omitempty"`
	TeamStats     *schemas.TeamRunningStats   `json:"teamStats,omitempty"`
	StatsStale    bool                        `json:"statsStale,omitempty"`
	Error         string                      `json:"error,omitempty"`
	OpenSource    *schemas.OpenSourceResult   `json:"openSource,omitempty"`
	CodeSecurity  *schemas.CodeSecurityResult `json:"codeSecurity,omitempty"`
	CompletedAt   time.Time                   `json:"completedAt"`
}

// JSONReporter buffers sessions and writes one indented Document on Close.
type JSONReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	mu     sync.Mutex
	doc    Document
	now    func() time.Time
}

// NewJSONReporter creates a JSONReporter that owns writer.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
		doc:    Document{Tool: ToolName, Version: toolVersion, Sessions: []SessionReport{}},
		now:    time.Now,
	}
}

func (r *JSONReporter) Write(snap *schemas.SessionSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil session snapshot")
	}
	rep := SessionReport{
		RepositoryURL: snap.RepositoryURL,
		TeamID:        snap.TeamID,
		State:         snap.State,
		Stats:         snap.Stats,
		Partial:       snap.Partial,
		TeamStats:     snap.TeamStats,
		StatsStale:    snap.StatsStale,
		Error:         snap.Error,
		OpenSource:    snap.OpenSource,
		CodeSecurity:  snap.CodeSecurity,
		CompletedAt:   snap.UpdatedAt,
	}
	if snap.Stats != nil {
		total := snap.Stats.Total()
		rep.Totals = &total
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Sessions = append(r.doc.Sessions, rep)
	return nil
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.doc.GeneratedAt = r.now().UTC()
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	encodeErr := enc.Encode(r.doc)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode JSON report", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Info("Wrote JSON report", zap.Int("sessions", len(r.doc.Sessions)))
	return nil
}
