package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Sweep defaults; both are configurable on the registry.
const (
	DefaultSweepInterval  = 5 * time.Minute
	DefaultStaleThreshold = 10 * time.Minute
)

// Registry is the only shared mutable structure between sessions: a
// mutex-guarded map of connection id to Session. Lifecycle is explicit
// Create/Remove, injected where needed rather than ambient globals.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	sweepInterval  time.Duration
	staleThreshold time.Duration
}

// NewRegistry creates an empty registry with default sweep settings.
func NewRegistry() *Registry {
	return &Registry{
		sessions:       make(map[string]*Session),
		sweepInterval:  DefaultSweepInterval,
		staleThreshold: DefaultStaleThreshold,
	}
}

// WithSweep overrides the sweep interval and staleness threshold.
func (r *Registry) WithSweep(interval, stale time.Duration) *Registry {
	r.sweepInterval = interval
	r.staleThreshold = stale
	return r
}

// Create registers a new session for the connection id. Fails if the id
// is already live.
func (r *Registry) Create(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return nil, eris.Errorf("stream: session %s already exists", id)
	}
	s := NewSession(id)
	r.sessions[id] = s
	return s, nil
}

// Get returns the live session for id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Remove closes and unregisters the session. Removing an unknown id is
// a no-op, so stop requests are idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StartSweep launches the background sweep that closes sessions whose
// last activity exceeds the staleness threshold. It stops when ctx is
// cancelled.
func (r *Registry) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.staleThreshold)

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		zap.L().Info("closing stale stream session", zap.String("session", s.ID()))
		s.Close()
	}
}
