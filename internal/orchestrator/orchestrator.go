// File: internal/orchestrator/orchestrator.go
// Description: Drives one scan session through Idle, Scanning, Completed and
// Failed. Both scan kinds are dispatched, awaited together, normalized and
// folded into the team's running statistics.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
	"github.com/codeshield-25/codeshield-web/internal/repository"
	"github.com/codeshield-25/codeshield-web/internal/results"
)

// User facing failure summaries.
const (
	msgOpenSourceFailed   = "open-source scan failed, please retry"
	msgCodeSecurityFailed = "code-security scan failed, please retry"
	msgBothFailed         = "both scans failed, please retry"
	msgInternal           = "scan aborted by an internal error, please retry"
)

// errAbandoned stops a reconcile whose generation is no longer live.
var errAbandoned = errors.New("scan abandoned")

// Reconciler folds completed scan statistics into a team's running averages.
// guard runs inside the atomic update; an error from it aborts the write.
type Reconciler interface {
	Reconcile(ctx context.Context, teamID, repoURL string, stats schemas.CombinedScanStats, guard func() error) (schemas.TeamRunningStats, error)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns the state of a single scan session. All methods are safe
// for concurrent use.
type Orchestrator struct {
	engine      schemas.ScanEngine
	reconciler  Reconciler
	logger      *zap.Logger
	sequential  bool
	scanTimeout time.Duration
	now         func() time.Time

	mu      sync.Mutex
	snap    schemas.SessionSnapshot
	cancel  context.CancelFunc
	subs    map[uint64]chan schemas.SessionSnapshot
	nextSub uint64
	closed  bool

	inflight sync.WaitGroup
}

// New creates an Orchestrator in the Idle state.
func New(
	cfg config.SessionConfig,
	logger *zap.Logger,
	engine schemas.ScanEngine,
	reconciler Reconciler,
	opts ...Option,
) (*Orchestrator, error) {
	if logger == nil || engine == nil || reconciler == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		engine:      engine,
		reconciler:  reconciler,
		logger:      logger.Named("orchestrator"),
		sequential:  cfg.Dispatch == config.DispatchSequential,
		scanTimeout: cfg.ScanTimeout,
		now:         time.Now,
		subs:        make(map[uint64]chan schemas.SessionSnapshot),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.snap = schemas.SessionSnapshot{State: schemas.StateIdle, UpdatedAt: o.now()}
	return o, nil
}

// StartScan validates repoURL and starts a scan for teamID in the background.
// It returns the generation of the new attempt. An invalid URL leaves the
// session untouched, and a scan already in progress is never restarted.
// An empty teamID runs the scan without updating team statistics.
func (o *Orchestrator) StartScan(ctx context.Context, repoURL, teamID string) (uint64, error) {
	ref, err := repository.Parse(repoURL)
	if err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return 0, fmt.Errorf("%w: session closed", schemas.ErrSessionNotFound)
	}
	if o.snap.State == schemas.StateScanning {
		return 0, schemas.ErrScanInProgress
	}

	// The run outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if o.scanTimeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, o.scanTimeout)
		parent := cancel
		cancel = func() { timeoutCancel(); parent() }
	}

	gen := o.snap.Generation + 1
	o.cancel = cancel
	o.setLocked(schemas.SessionSnapshot{
		State:         schemas.StateScanning,
		Generation:    gen,
		RepositoryURL: ref.URL(),
		TeamID:        teamID,
	})

	o.logger.Info("Scan started",
		zap.Uint64("generation", gen),
		zap.String("repository", ref.URL()),
		zap.String("team_id", teamID),
		zap.Bool("sequential", o.sequential),
	)

	o.inflight.Add(1)
	go o.run(runCtx, cancel, gen, ref.URL(), teamID)
	return gen, nil
}

// scanOutcome is the settled result of one scan kind.
type scanOutcome struct {
	kind   schemas.ScanKind
	result any
	err    error
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, gen uint64, repoURL, teamID string) {
	defer o.inflight.Done()
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Recovered from panic in scan session", zap.Any("panic", r), zap.Uint64("generation", gen))
			o.finish(gen, schemas.SessionSnapshot{
				State: schemas.StateFailed,
				Error: msgInternal,
				Err:   fmt.Errorf("%w: panic: %v", schemas.ErrScanEngine, r),
			})
		}
	}()

	outcomes := o.dispatch(ctx, repoURL)
	osOut, csOut := outcomes[0], outcomes[1]

	var osRes *schemas.OpenSourceResult
	var csRes *schemas.CodeSecurityResult
	if osOut.err == nil {
		osRes = osOut.result.(*schemas.OpenSourceResult)
	}
	if csOut.err == nil {
		csRes = csOut.result.(*schemas.CodeSecurityResult)
	}

	switch {
	case osOut.err != nil && csOut.err != nil:
		o.logger.Warn("Both scans failed",
			zap.Uint64("generation", gen),
			zap.NamedError("open_source", osOut.err),
			zap.NamedError("code_security", csOut.err),
		)
		o.finish(gen, schemas.SessionSnapshot{
			State: schemas.StateFailed,
			Error: msgBothFailed,
			Err:   fmt.Errorf("%w: %w", schemas.ErrScanEngine, errors.Join(osOut.err, csOut.err)),
		})
		return

	case osOut.err != nil || csOut.err != nil:
		failed, msg := osOut, msgOpenSourceFailed
		if csOut.err != nil {
			failed, msg = csOut, msgCodeSecurityFailed
		}
		o.logger.Warn("Scan partially failed", zap.Uint64("generation", gen),
			zap.String("kind", string(failed.kind)), zap.Error(failed.err))
		partial := results.Normalize(osRes, csRes)
		o.finish(gen, schemas.SessionSnapshot{
			State:        schemas.StateFailed,
			Partial:      &partial,
			Error:        msg,
			Err:          fmt.Errorf("%w: %w", schemas.ErrPartialScan, failed.err),
			OpenSource:   osRes,
			CodeSecurity: csRes,
		})
		return
	}

	stats := results.Normalize(osRes, csRes)
	done := schemas.SessionSnapshot{
		State:        schemas.StateCompleted,
		Stats:        &stats,
		OpenSource:   osRes,
		CodeSecurity: csRes,
	}

	if teamID != "" {
		if !o.current(gen) {
			o.logger.Info("Discarding stale scan before reconciliation", zap.Uint64("generation", gen))
			return
		}
		teamStats, err := o.reconciler.Reconcile(ctx, teamID, repoURL, stats, func() error {
			if !o.current(gen) {
				return errAbandoned
			}
			return nil
		})
		if errors.Is(err, errAbandoned) || (err != nil && ctx.Err() != nil && !o.current(gen)) {
			o.logger.Info("Discarding stale scan during reconciliation", zap.Uint64("generation", gen))
			return
		}
		if err != nil {
			// The scan itself succeeded; the team average is left as it was.
			o.logger.Error("Team statistics not updated", zap.Uint64("generation", gen), zap.Error(err))
			done.StatsStale = true
			done.Err = err
		} else {
			done.TeamStats = &teamStats
		}
	}

	o.finish(gen, done)
}

// dispatch runs both scan kinds and waits until both have settled. One
// failure never cancels the other scan.
func (o *Orchestrator) dispatch(ctx context.Context, repoURL string) [2]scanOutcome {
	var out [2]scanOutcome
	if o.sequential {
		for i, kind := range schemas.ScanKinds {
			out[i] = o.scanOne(ctx, repoURL, kind)
		}
		return out
	}

	var g errgroup.Group
	for i, kind := range schemas.ScanKinds {
		g.Go(func() error {
			out[i] = o.scanOne(ctx, repoURL, kind)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) scanOne(ctx context.Context, repoURL string, kind schemas.ScanKind) (out scanOutcome) {
	out.kind = kind
	defer func() {
		if r := recover(); r != nil {
			out.result = nil
			out.err = fmt.Errorf("%w: %s scan panicked: %v", schemas.ErrScanEngine, kind, r)
		}
	}()

	start := o.now()
	raw, err := o.engine.Scan(ctx, schemas.ScanRequest{RepositoryURL: repoURL, Kind: kind})
	if err != nil {
		out.err = fmt.Errorf("%w: %s scan: %w", schemas.ErrScanEngine, kind, err)
		return out
	}
	res, err := results.Decode(kind, raw)
	if err != nil {
		out.err = fmt.Errorf("%w: %s scan: %w", schemas.ErrScanEngine, kind, err)
		return out
	}

	o.logger.Debug("Scan settled", zap.String("kind", string(kind)), zap.Duration("took", o.now().Sub(start)))
	out.result = res
	return out
}

// current reports whether gen is still the live generation.
func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap.Generation == gen && o.snap.State == schemas.StateScanning
}

// finish publishes the terminal snapshot of gen unless it has been abandoned.
func (o *Orchestrator) finish(gen uint64, next schemas.SessionSnapshot) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.snap.Generation != gen || o.snap.State != schemas.StateScanning {
		o.logger.Info("Discarding result of abandoned scan", zap.Uint64("generation", gen), zap.Uint64("current", o.snap.Generation))
		return false
	}

	next.Generation = gen
	next.RepositoryURL = o.snap.RepositoryURL
	next.TeamID = o.snap.TeamID
	o.cancel = nil
	o.setLocked(next)

	o.logger.Info("Scan finished", zap.Uint64("generation", gen), zap.String("state", string(next.State)))
	return true
}

// Reset returns a terminal session to Idle. A running scan is abandoned as
// with Cancel; an idle session is left alone.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.snap.State {
	case schemas.StateIdle:
		return
	case schemas.StateScanning:
		o.abandonLocked()
	default:
		o.setLocked(schemas.SessionSnapshot{State: schemas.StateIdle, Generation: o.snap.Generation})
	}
}

// Cancel abandons the running scan, if any. Its eventual outcome is
// discarded and never reaches the team statistics.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.snap.State == schemas.StateScanning {
		o.abandonLocked()
	}
}

// CancelIfUnwatched abandons the running scan when nobody is subscribed to
// the session any more. It reports whether a scan was abandoned.
func (o *Orchestrator) CancelIfUnwatched() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.snap.State != schemas.StateScanning || len(o.subs) > 0 {
		return false
	}
	o.abandonLocked()
	return true
}

func (o *Orchestrator) abandonLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.logger.Info("Scan abandoned", zap.Uint64("generation", o.snap.Generation))
	o.setLocked(schemas.SessionSnapshot{State: schemas.StateIdle, Generation: o.snap.Generation + 1})
}

// Snapshot returns the current session view.
func (o *Orchestrator) Snapshot() schemas.SessionSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// Subscribers returns the number of open subscriptions.
func (o *Orchestrator) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// evictable reports whether the session can be dropped without losing a
// running scan or a watcher.
func (o *Orchestrator) evictable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap.State != schemas.StateScanning && len(o.subs) == 0
}

// Subscribe returns a channel receiving the current snapshot followed by every
// transition. Slow readers only see the latest snapshot. The returned
// function unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan schemas.SessionSnapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan schemas.SessionSnapshot, 1)
	if o.closed {
		ch <- o.snap
		close(ch)
		return ch, func() {}
	}

	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.snap

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if c, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(c)
			}
		})
	}
}

// Await blocks until generation gen reaches a terminal state, is abandoned,
// or ctx is done.
func (o *Orchestrator) Await(ctx context.Context, gen uint64) (schemas.SessionSnapshot, error) {
	updates, unsubscribe := o.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return o.Snapshot(), ctx.Err()
		case s, ok := <-updates:
			if !ok {
				return o.Snapshot(), fmt.Errorf("%w: session closed", schemas.ErrSessionNotFound)
			}
			if s.Generation == gen && s.State.Terminal() {
				return s, nil
			}
			if s.Generation > gen {
				return s, context.Canceled
			}
		}
	}
}

// Close abandons any running scan, closes all subscriptions and waits for
// background work to stop.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		if o.snap.State == schemas.StateScanning {
			o.abandonLocked()
		}
		for id, ch := range o.subs {
			delete(o.subs, id)
			close(ch)
		}
	}
	o.mu.Unlock()
	o.inflight.Wait()
}

// setLocked stores next as the current snapshot and fans it out.
func (o *Orchestrator) setLocked(next schemas.SessionSnapshot) {
	next.UpdatedAt = o.now()
	o.snap = next
	for _, ch := range o.subs {
		publish(ch, next)
	}
}

// publish delivers s without blocking, replacing an unread older snapshot.
func publish(ch chan schemas.SessionSnapshot, s schemas.SessionSnapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
