package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

// Factory builds a fresh Orchestrator for a new session.
type Factory func() (*Orchestrator, error)

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithMaxSessions caps the number of hosted sessions. Zero means no cap.
func WithMaxSessions(n int) RegistryOption {
	return func(r *Registry) { r.maxSessions = n }
}

// WithIdleTimeout makes sessions evictable once they are not scanning, have
// no subscribers and were not looked up for d. Zero disables eviction.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithRegistryClock overrides the time source used for idle tracking.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

type entry struct {
	o        *Orchestrator
	lastSeen time.Time
}

// Registry hosts many independent sessions keyed by id.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*entry
	factory     Factory
	logger      *zap.Logger
	maxSessions int
	idleTimeout time.Duration
	now         func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, logger *zap.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*entry),
		factory:  factory,
		logger:   logger.Named("sessions"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a new idle session and returns its id. A full registry first
// evicts idle sessions and fails with ErrSessionLimit if none can go.
func (r *Registry) Create() (string, *Orchestrator, error) {
	if r.maxSessions > 0 && r.Len() >= r.maxSessions {
		r.Sweep()
	}

	r.mu.Lock()
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		r.logger.Warn("Session limit reached", zap.Int("max_sessions", r.maxSessions))
		return "", nil, fmt.Errorf("%w: limit is %d", schemas.ErrSessionLimit, r.maxSessions)
	}
	r.mu.Unlock()

	o, err := r.factory()
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}
	id := uuid.NewString()

	r.mu.Lock()
	r.sessions[id] = &entry{o: o, lastSeen: r.now()}
	r.mu.Unlock()

	r.logger.Debug("Session created", zap.String("session_id", id))
	return id, o, nil
}

// Get looks up a session and marks it as recently used.
func (r *Registry) Get(id string) (*Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schemas.ErrSessionNotFound, id)
	}
	e.lastSeen = r.now()
	return e.o, nil
}

// Touch marks a session as recently used.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.lastSeen = r.now()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close abandons and removes a session.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", schemas.ErrSessionNotFound, id)
	}
	e.o.Close()
	r.logger.Debug("Session closed", zap.String("session_id", id))
	return nil
}

// Sweep closes every evictable session and returns how many went.
func (r *Registry) Sweep() int {
	if r.idleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTimeout)

	var evicted []*Orchestrator
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.lastSeen.After(cutoff) || !e.o.evictable() {
			continue
		}
		delete(r.sessions, id)
		evicted = append(evicted, e.o)
		r.logger.Debug("Evicting idle session", zap.String("session_id", id))
	}
	r.mu.Unlock()

	for _, o := range evicted {
		o.Close()
	}
	if len(evicted) > 0 {
		r.logger.Info("Idle sessions evicted", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// RunJanitor sweeps periodically until ctx is done. It returns immediately
// when idle eviction is disabled.
func (r *Registry) RunJanitor(ctx context.Context) {
	if r.idleTimeout <= 0 {
		return
	}
	interval := max(r.idleTimeout/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll closes every session, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.o.Close()
	}
}
