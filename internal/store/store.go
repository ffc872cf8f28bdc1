package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

// ErrDuplicateCode is returned by CreateTeam when the join code is taken.
var ErrDuplicateCode = errors.New("team code already in use")

const pgUniqueViolation = "23505"

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides a PostgreSQL implementation of schemas.TeamStore.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.TeamStore = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pgx pool for url, applies the schema and returns the store
// together with a function releasing the pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the tables used by the store if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateTeam inserts the team and its initial members. Running stats start
// at zero regardless of the value passed in.
func (s *Store) CreateTeam(ctx context.Context, team schemas.Team) (schemas.Team, error) {
	team.CreatedAt = team.CreatedAt.UTC()
	team.Stats = schemas.TeamRunningStats{}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, sqlInsertTeam,
			team.ID, team.Name, team.RepositoryURL, team.Code, team.CreatedBy, team.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return fmt.Errorf("%w: %s", ErrDuplicateCode, team.Code)
			}
			return fmt.Errorf("failed to insert team: %w", err)
		}
		for _, member := range team.Members {
			if _, err := tx.Exec(ctx, sqlInsertMember, team.ID, member, team.CreatedAt); err != nil {
				return fmt.Errorf("failed to insert team member %s: %w", member, err)
			}
		}
		return nil
	})
	if err != nil {
		return schemas.Team{}, err
	}

	s.log.Info("Team created", zap.String("team_id", team.ID), zap.Int("members", len(team.Members)))
	return team, nil
}

// GetTeam loads a team with its members in join order.
func (s *Store) GetTeam(ctx context.Context, teamID string) (schemas.Team, error) {
	var t schemas.Team
	err := s.pool.QueryRow(ctx, sqlSelectTeam, teamID).Scan(
		&t.ID, &t.Name, &t.RepositoryURL, &t.Code, &t.CreatedBy, &t.CreatedAt,
		&t.Stats.AvgHighVulCnt, &t.Stats.AvgMidVulCnt, &t.Stats.AvgLowVulCnt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schemas.Team{}, fmt.Errorf("%w: %s", schemas.ErrTeamNotFound, teamID)
		}
		return schemas.Team{}, fmt.Errorf("failed to query team: %w", err)
	}

	rows, err := s.pool.Query(ctx, sqlSelectMembers, teamID)
	if err != nil {
		return schemas.Team{}, fmt.Errorf("failed to query team members: %w", err)
	}
	defer rows.Close()

	t.Members = []string{}
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return schemas.Team{}, fmt.Errorf("failed to scan member row: %w", err)
		}
		t.Members = append(t.Members, member)
	}
	if err := rows.Err(); err != nil {
		return schemas.Team{}, fmt.Errorf("error during row iteration: %w", err)
	}
	return t, nil
}

// JoinTeam adds userID to the team identified by its join code.
func (s *Store) JoinTeam(ctx context.Context, code, userID string) (schemas.Team, error) {
	var teamID string
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, sqlSelectTeamByCode, code).Scan(&teamID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: invalid team code", schemas.ErrTeamNotFound)
			}
			return fmt.Errorf("failed to look up team code: %w", err)
		}
		tag, err := tx.Exec(ctx, sqlInsertMemberIfAbsent, teamID, userID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to insert team member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return schemas.ErrAlreadyMember
		}
		return nil
	})
	if err != nil {
		return schemas.Team{}, err
	}
	return s.GetTeam(ctx, teamID)
}

// GetTeamStats returns the persisted running averages of a team.
func (s *Store) GetTeamStats(ctx context.Context, teamID string) (schemas.TeamRunningStats, error) {
	var st schemas.TeamRunningStats
	err := s.pool.QueryRow(ctx, sqlSelectStats, teamID).Scan(&st.AvgHighVulCnt, &st.AvgMidVulCnt, &st.AvgLowVulCnt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return st, fmt.Errorf("%w: %s", schemas.ErrTeamNotFound, teamID)
		}
		return st, fmt.Errorf("failed to query team stats: %w", err)
	}
	return st, nil
}

// UpdateTeamStats locks the team row, applies fn to the current stats, writes
// the result and records the run, all in one transaction.
func (s *Store) UpdateTeamStats(ctx context.Context, teamID string, run schemas.ScanRun, fn schemas.TeamStatsUpdateFunc) (schemas.TeamRunningStats, error) {
	var updated schemas.TeamRunningStats
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var cur schemas.TeamRunningStats
		err := tx.QueryRow(ctx, sqlSelectStatsForUpdate, teamID).Scan(&cur.AvgHighVulCnt, &cur.AvgMidVulCnt, &cur.AvgLowVulCnt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", schemas.ErrTeamNotFound, teamID)
			}
			return fmt.Errorf("failed to lock team stats: %w", err)
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, sqlUpdateStats, teamID, next.AvgHighVulCnt, next.AvgMidVulCnt, next.AvgLowVulCnt); err != nil {
			return fmt.Errorf("failed to update team stats: %w", err)
		}

		st := run.Stats
		_, err = tx.Exec(ctx, sqlInsertRun,
			run.ID, teamID, run.RepositoryURL,
			st.OpenSource.High, st.OpenSource.Medium, st.OpenSource.Low,
			st.CodeSecurity.High, st.CodeSecurity.Medium, st.CodeSecurity.Low,
			next.AvgHighVulCnt, next.AvgMidVulCnt, next.AvgLowVulCnt,
			run.CompletedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to record scan run: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return schemas.TeamRunningStats{}, err
	}
	return updated, nil
}

// ListScanRuns returns up to limit runs of a team, newest first. A limit of
// zero or less returns every run.
func (s *Store) ListScanRuns(ctx context.Context, teamID string, limit int) ([]schemas.ScanRun, error) {
	var lim any // LIMIT NULL means no limit
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, sqlSelectRuns, teamID, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan runs: %w", err)
	}
	defer rows.Close()

	runs := []schemas.ScanRun{}
	for rows.Next() {
		var r schemas.ScanRun
		os, cs := &r.Stats.OpenSource, &r.Stats.CodeSecurity
		err := rows.Scan(
			&r.ID, &r.TeamID, &r.RepositoryURL,
			&os.High, &os.Medium, &os.Low,
			&cs.High, &cs.Medium, &cs.Low,
			&r.After.AvgHighVulCnt, &r.After.AvgMidVulCnt, &r.After.AvgLowVulCnt,
			&r.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}
