package chain

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// Registry tracks the active chain of each session. A session may hold at
// most one running chain; a paused chain stays registered so a later
// confirmation answer can find it.
type Registry struct {
	mu     sync.Mutex
	chains map[string]*Manager
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{chains: make(map[string]*Manager)}
}

// Begin registers m as the session's active chain. It fails with
// models.ErrSessionBusy if another chain of the session is running.
// A paused chain of the same session is cancelled and replaced.
func (r *Registry) Begin(m *Manager) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.chains[m.SessionID()]; ok && existing != m {
		if !existing.IsPaused() && !existing.IsCancelled() {
			return fmt.Errorf("session %s: %w", m.SessionID(), models.ErrSessionBusy)
		}
		if !existing.IsCancelled() {
			log.Printf("[chain] session %s: replacing paused chain %s with %s", m.SessionID(), existing.ID(), m.ID())
			existing.Cancel()
		}
	}
	r.chains[m.SessionID()] = m
	return nil
}

// Get returns the session's registered chain.
func (r *Registry) Get(sessionID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.chains[sessionID]
	return m, ok
}

// End removes m if it is still the session's registered chain.
func (r *Registry) End(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.chains[m.SessionID()]; ok && cur == m {
		delete(r.chains, m.SessionID())
	}
}

// Cancel cancels and removes the session's chain. It reports whether a chain existed.
func (r *Registry) Cancel(sessionID string) bool {
	r.mu.Lock()
	m, ok := r.chains[sessionID]
	delete(r.chains, sessionID)
	r.mu.Unlock()

	if ok {
		m.Cancel()
	}
	return ok
}

// Len returns the number of registered chains.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chains)
}

// PruneStale cancels and removes paused chains created before the cutoff.
// It returns the number removed.
func (r *Registry) PruneStale(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	r.mu.Lock()
	var stale []*Manager
	for id, m := range r.chains {
		if m.IsPaused() && m.createdAt.Before(cutoff) {
			stale = append(stale, m)
			delete(r.chains, id)
		}
	}
	r.mu.Unlock()

	for _, m := range stale {
		m.Cancel()
	}
	return len(stale)
}
