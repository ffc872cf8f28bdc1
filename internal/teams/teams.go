// Package teams manages team creation, membership and scan history.
package teams

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/repository"
	"github.com/codeshield-25/codeshield-web/internal/store"
	"github.com/codeshield-25/codeshield-web/internal/trend"
)

const (
	// CodeLength is the length of a join code.
	CodeLength   = 6
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// maxCodeAttempts bounds retries when a generated code is already taken.
	maxCodeAttempts = 5
	// DefaultHistoryLimit is used when History is called with limit <= 0.
	DefaultHistoryLimit = 20
)

// RepositoryResolver confirms a repository exists before a team is bound to it.
type RepositoryResolver interface {
	Resolve(ctx context.Context, ref repository.Ref) (repository.Info, error)
}

// CreateRequest holds the input for creating a team.
type CreateRequest struct {
	Name          string `json:"name"`
	RepositoryURL string `json:"repository"`
	CreatedBy     string `json:"createdBy"`
}

// History is a team's recent runs with the movement of its averages.
type History struct {
	TeamID string                   `json:"teamId"`
	Stats  schemas.TeamRunningStats `json:"stats"`
	Runs   []schemas.ScanRun        `json:"runs"`
	Trend  trend.TeamTrend          `json:"trend"`
}

// Service implements team management on top of a schemas.TeamStore.
type Service struct {
	store    schemas.TeamStore
	resolver RepositoryResolver
	logger   *zap.Logger
	newCode  func() (string, error)
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithResolver enables repository verification on Create.
func WithResolver(r RepositoryResolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithCodeGenerator replaces the join code generator.
func WithCodeGenerator(f func() (string, error)) Option {
	return func(s *Service) { s.newCode = f }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(st schemas.TeamStore, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:   st,
		logger:  logger.Named("teams"),
		newCode: GenerateCode,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateCode returns a random upper-case alphanumeric join code.
func GenerateCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	radix := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			return "", fmt.Errorf("failed to generate team code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode upper-cases and trims a user-entered join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create registers a new team whose only member is its creator. Running
// stats start at zero.
func (s *Service) Create(ctx context.Context, req CreateRequest) (schemas.Team, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return schemas.Team{}, fmt.Errorf("%w: team name is required", schemas.ErrMalformedInput)
	}
	creator := strings.TrimSpace(req.CreatedBy)
	if creator == "" {
		return schemas.Team{}, fmt.Errorf("%w: creator is required", schemas.ErrMalformedInput)
	}
	ref, err := repository.Parse(req.RepositoryURL)
	if err != nil {
		return schemas.Team{}, err
	}
	if s.resolver != nil {
		info, err := s.resolver.Resolve(ctx, ref)
		if err != nil {
			return schemas.Team{}, err
		}
		if info.Archived {
			s.logger.Warn("Team bound to an archived repository", zap.String("repo", ref.String()))
		}
	}

	team := schemas.Team{
		ID:            uuid.NewString(),
		Name:          name,
		RepositoryURL: ref.URL(),
		Members:       []string{creator},
		CreatedBy:     creator,
		CreatedAt:     s.now().UTC(),
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return schemas.Team{}, err
		}
		team.Code = code

		created, err := s.store.CreateTeam(ctx, team)
		if err == nil {
			s.logger.Info("Team created", zap.String("team_id", created.ID), zap.String("repo", ref.String()))
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicateCode) {
			return schemas.Team{}, err
		}
		s.logger.Debug("Team code collision, regenerating", zap.Int("attempt", attempt))
	}
	return schemas.Team{}, fmt.Errorf("could not allocate a unique team code after %d attempts", maxCodeAttempts)
}

// Join adds userID to the team identified by code.
func (s *Service) Join(ctx context.Context, code, userID string) (schemas.Team, error) {
	code = NormalizeCode(code)
	if len(code) != CodeLength {
		return schemas.Team{}, fmt.Errorf("%w: team code must be %d characters", schemas.ErrMalformedInput, CodeLength)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return schemas.Team{}, fmt.Errorf("%w: user is required", schemas.ErrMalformedInput)
	}
	team, err := s.store.JoinTeam(ctx, code, userID)
	if err != nil {
		return schemas.Team{}, err
	}
	s.logger.Info("Member joined team", zap.String("team_id", team.ID), zap.Int("members", len(team.Members)))
	return team, nil
}

// Get returns a team by id.
func (s *Service) Get(ctx context.Context, teamID string) (schemas.Team, error) {
	return s.store.GetTeam(ctx, teamID)
}

// History returns the newest runs of a team and how its averages moved
// across the latest one.
func (s *Service) History(ctx context.Context, teamID string, limit int) (History, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	stats, err := s.store.GetTeamStats(ctx, teamID)
	if err != nil {
		return History{}, err
	}
	runs, err := s.store.ListScanRuns(ctx, teamID, limit)
	if err != nil {
		return History{}, err
	}
	if runs == nil {
		runs = []schemas.ScanRun{}
	}
	return History{TeamID: teamID, Stats: stats, Runs: runs, Trend: trend.FromRuns(runs)}, nil
}
