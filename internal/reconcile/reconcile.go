// Package reconcile folds the stats of a completed scan into a team's
// persisted running averages.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

// Merge applies the recency-weighted update to each field: a zero current
// value is replaced by the new count, otherwise the two are averaged.
// Negative counts are treated as zero.
func Merge(current schemas.TeamRunningStats, fresh schemas.SeverityBucket) schemas.TeamRunningStats {
	return schemas.TeamRunningStats{
		AvgHighVulCnt: mergeField(current.AvgHighVulCnt, fresh.High),
		AvgMidVulCnt:  mergeField(current.AvgMidVulCnt, fresh.Medium),
		AvgLowVulCnt:  mergeField(current.AvgLowVulCnt, fresh.Low),
	}
}

func mergeField(current float64, count int) float64 {
	n := float64(max(count, 0))
	current = max(current, 0)
	if current == 0 {
		return n
	}
	return (current + n) / 2
}

// Reconciler persists merged team statistics through a TeamStatsStore.
type Reconciler struct {
	store  schemas.TeamStatsStore
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Reconciler backed by store.
func New(store schemas.TeamStatsStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger.Named("reconciler"),
		now:    time.Now,
	}
}

// Reconcile merges the combined totals of stats into the team's running
// averages and records the run. The read, merge and write happen as one
// atomic store operation so concurrent scans for a team cannot lose updates.
// A non-nil guard runs inside that operation; when it fails nothing is
// written and its error is returned.
func (r *Reconciler) Reconcile(ctx context.Context, teamID string, repoURL string, stats schemas.CombinedScanStats, guard func() error) (schemas.TeamRunningStats, error) {
	if teamID == "" {
		return schemas.TeamRunningStats{}, fmt.Errorf("%w: team id is required", schemas.ErrReconciliation)
	}

	fresh := stats.Total()
	run := schemas.ScanRun{
		ID:            uuid.NewString(),
		TeamID:        teamID,
		RepositoryURL: repoURL,
		Stats:         stats,
		CompletedAt:   r.now().UTC(),
	}

	updated, err := r.store.UpdateTeamStats(ctx, teamID, run, func(current schemas.TeamRunningStats) (schemas.TeamRunningStats, error) {
		if guard != nil {
			if err := guard(); err != nil {
				return current, err
			}
		}
		return Merge(current, fresh), nil
	})
	if err != nil {
		r.logger.Error("Failed to persist team statistics",
			zap.String("team_id", teamID),
			zap.Error(err),
		)
		return schemas.TeamRunningStats{}, fmt.Errorf("%w: %w", schemas.ErrReconciliation, err)
	}

	r.logger.Info("Team statistics updated",
		zap.String("team_id", teamID),
		zap.String("run_id", run.ID),
		zap.Float64("avg_high", updated.AvgHighVulCnt),
		zap.Float64("avg_mid", updated.AvgMidVulCnt),
		zap.Float64("avg_low", updated.AvgLowVulCnt),
	)
	return updated, nil
}
