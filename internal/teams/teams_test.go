package teams

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/mocks"
	"github.com/codeshield-25/codeshield-web/internal/reconcile"
	"github.com/codeshield-25/codeshield-web/internal/repository"
	"github.com/codeshield-25/codeshield-web/internal/store"
	"github.com/codeshield-25/codeshield-web/internal/trend"
)

type stubResolver struct {
	info repository.Info
	err  error
	refs []repository.Ref
}

func (r *stubResolver) Resolve(_ context.Context, ref repository.Ref) (repository.Info, error) {
	r.refs = append(r.refs, ref)
	return r.info, r.err
}

func fixedCodes(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9A-Z]{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a zeroed team with its creator as member", func(t *testing.T) {
		res := &stubResolver{info: repository.Info{FullName: "acme/app"}}
		svc := New(store.NewMemoryStore(), zap.NewNop(),
			WithResolver(res), WithCodeGenerator(fixedCodes("ABC123")), WithClock(func() time.Time { return fixedNow }))

		team, err := svc.Create(ctx, CreateRequest{Name: " Red Team ", RepositoryURL: "https://github.com/acme/app.git", CreatedBy: "u1"})
		require.NoError(t, err)
		assert.NotEmpty(t, team.ID)
		assert.Equal(t, "Red Team", team.Name)
		assert.Equal(t, "https://github.com/acme/app", team.RepositoryURL)
		assert.Equal(t, "ABC123", team.Code)
		assert.Equal(t, []string{"u1"}, team.Members)
		assert.Equal(t, fixedNow, team.CreatedAt)
		assert.Equal(t, schemas.TeamRunningStats{}, team.Stats)
		assert.Equal(t, []repository.Ref{{Owner: "acme", Name: "app"}}, res.refs)
	})

	t.Run("regenerates the code on collision", func(t *testing.T) {
		st := store.NewMemoryStore()
		svc := New(st, zap.NewNop(), WithCodeGenerator(fixedCodes("AAAAAA", "AAAAAA", "BBBBBB")))
		_, err := svc.Create(ctx, CreateRequest{Name: "one", RepositoryURL: "https://github.com/a/b", CreatedBy: "u"})
		require.NoError(t, err)

		second, err := svc.Create(ctx, CreateRequest{Name: "two", RepositoryURL: "https://github.com/a/b", CreatedBy: "u"})
		require.NoError(t, err)
		assert.Equal(t, "BBBBBB", second.Code)
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		ts := new(mocks.MockTeamStore)
		ts.On("CreateTeam", mock.Anything, mock.Anything).Return(schemas.Team{}, store.ErrDuplicateCode)
		svc := New(ts, zap.NewNop(), WithCodeGenerator(fixedCodes("AAAAAA")))

		_, err := svc.Create(ctx, CreateRequest{Name: "x", RepositoryURL: "https://github.com/a/b", CreatedBy: "u"})
		assert.ErrorContains(t, err, "unique team code")
		ts.AssertNumberOfCalls(t, "CreateTeam", maxCodeAttempts)
	})

	t.Run("input validation", func(t *testing.T) {
		svc := New(store.NewMemoryStore(), zap.NewNop())
		for _, req := range []CreateRequest{
			{RepositoryURL: "https://github.com/a/b", CreatedBy: "u"},
			{Name: "x", RepositoryURL: "https://github.com/a/b"},
			{Name: "x", RepositoryURL: "http://github.com/a/b", CreatedBy: "u"},
		} {
			_, err := svc.Create(ctx, req)
			assert.ErrorIs(t, err, schemas.ErrMalformedInput, "%+v", req)
		}
	})

	t.Run("unknown repository", func(t *testing.T) {
		res := &stubResolver{err: repository.ErrRepositoryNotFound}
		svc := New(store.NewMemoryStore(), zap.NewNop(), WithResolver(res))
		_, err := svc.Create(ctx, CreateRequest{Name: "x", RepositoryURL: "https://github.com/a/missing", CreatedBy: "u"})
		assert.ErrorIs(t, err, repository.ErrRepositoryNotFound)
	})

	t.Run("store failure", func(t *testing.T) {
		ts := new(mocks.MockTeamStore)
		ts.On("CreateTeam", mock.Anything, mock.Anything).Return(schemas.Team{}, errors.New("connection refused")).Once()
		svc := New(ts, zap.NewNop())
		_, err := svc.Create(ctx, CreateRequest{Name: "x", RepositoryURL: "https://github.com/a/b", CreatedBy: "u"})
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	svc := New(store.NewMemoryStore(), zap.NewNop(), WithCodeGenerator(fixedCodes("JOIN42")))
	team, err := svc.Create(ctx, CreateRequest{Name: "x", RepositoryURL: "https://github.com/a/b", CreatedBy: "owner"})
	require.NoError(t, err)

	joined, err := svc.Join(ctx, " join42 ", "u2")
	require.NoError(t, err)
	assert.Equal(t, team.ID, joined.ID)
	assert.Equal(t, []string{"owner", "u2"}, joined.Members)

	_, err = svc.Join(ctx, "JOIN42", "u2")
	assert.ErrorIs(t, err, schemas.ErrAlreadyMember)

	_, err = svc.Join(ctx, "NOPE00", "u3")
	assert.ErrorIs(t, err, schemas.ErrTeamNotFound)

	_, err = svc.Join(ctx, "AB", "u3")
	assert.ErrorIs(t, err, schemas.ErrMalformedInput)

	_, err = svc.Join(ctx, "JOIN42", " ")
	assert.ErrorIs(t, err, schemas.ErrMalformedInput)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := New(st, zap.NewNop(), WithCodeGenerator(fixedCodes("HIST01")))
	team, err := svc.Create(ctx, CreateRequest{Name: "x", RepositoryURL: "https://github.com/a/b", CreatedBy: "owner"})
	require.NoError(t, err)

	empty, err := svc.History(ctx, team.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Runs)
	assert.NotNil(t, empty.Runs)
	assert.Equal(t, trend.Flat, empty.Trend.High.Direction)

	clock := fixedNow
	for _, stats := range []schemas.CombinedScanStats{
		{OpenSource: schemas.SeverityBucket{High: 2, Medium: 1}, CodeSecurity: schemas.SeverityBucket{High: 1, Medium: 2}},
		{OpenSource: schemas.SeverityBucket{High: 1}},
	} {
		clock = clock.Add(time.Minute)
		run := schemas.ScanRun{ID: clock.String(), Stats: stats, CompletedAt: clock}
		fresh := stats.Total()
		_, err := st.UpdateTeamStats(ctx, team.ID, run, func(cur schemas.TeamRunningStats) (schemas.TeamRunningStats, error) {
			return reconcile.Merge(cur, fresh), nil
		})
		require.NoError(t, err)
	}

	h, err := svc.History(ctx, team.ID, 10)
	require.NoError(t, err)
	require.Len(t, h.Runs, 2)
	assert.Equal(t, schemas.TeamRunningStats{AvgHighVulCnt: 2, AvgMidVulCnt: 1.5}, h.Stats)
	assert.Equal(t, trend.Down, h.Trend.High.Direction)
	assert.Equal(t, 3.0, h.Trend.High.From)
	assert.Equal(t, 2.0, h.Trend.High.To)

	_, err = svc.History(ctx, "missing", 5)
	assert.ErrorIs(t, err, schemas.ErrTeamNotFound)
}
