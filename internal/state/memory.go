package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/confirm"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/stage"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// memEntry holds an encoded value so callers never share state with the cache.
type memEntry struct {
	data      []byte
	sessionID string
	stamp     time.Time
	expiresAt time.Time
}

// memCache is a thread-safe map with expiry and a background sweeper.
type memCache struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	now     func() time.Time
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

func newMemCache() *memCache {
	return &memCache{
		entries: make(map[string]*memEntry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

func (c *memCache) startCleanup(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.cleanup = time.NewTicker(interval)
	go func() {
		defer c.cleanup.Stop()
		for {
			select {
			case <-c.cleanup.C:
				c.sweep()
			case <-c.done:
				return
			}
		}
	}()
}

func (c *memCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *memCache) stop() {
	c.once.Do(func() { close(c.done) })
}

// MemorySessionStore is an in-memory stage.Store. Sessions expire ttl
// after their last save.
type MemorySessionStore struct {
	cache *memCache
	ttl   time.Duration
}

// NewMemorySessionStore creates a store whose sweeper runs every
// cleanupInterval. A zero interval disables the sweeper.
func NewMemorySessionStore(ttl, cleanupInterval time.Duration) *MemorySessionStore {
	s := &MemorySessionStore{cache: newMemCache(), ttl: ttl}
	s.cache.startCleanup(cleanupInterval)
	return s
}

// SetClock overrides time.Now for expiry.
func (s *MemorySessionStore) SetClock(now func() time.Time) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.now = now
}

// Save stores a copy of the session.
func (s *MemorySessionStore) Save(ctx context.Context, sess *stage.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}

	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	now := s.cache.now()
	e := &memEntry{data: data, sessionID: sess.ID, stamp: now}
	if s.ttl > 0 {
		e.expiresAt = now.Add(s.ttl)
	}
	s.cache.entries[sess.ID] = e
	return nil
}

// Load returns a copy of the session or a *models.SessionNotFoundError.
func (s *MemorySessionStore) Load(ctx context.Context, id string) (*stage.Session, error) {
	s.cache.mu.RLock()
	e, ok := s.cache.entries[id]
	now := s.cache.now()
	s.cache.mu.RUnlock()

	if !ok || (!e.expiresAt.IsZero() && now.After(e.expiresAt)) {
		return nil, &models.SessionNotFoundError{SessionID: id}
	}
	var sess stage.Session
	if err := json.Unmarshal(e.data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Delete removes the session.
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	delete(s.cache.entries, id)
	return nil
}

// Purge removes sessions not saved since olderThan ago.
func (s *MemorySessionStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	cutoff := s.cache.now().Add(-olderThan)
	var n int64
	for k, e := range s.cache.entries {
		if e.stamp.Before(cutoff) {
			delete(s.cache.entries, k)
			n++
		}
	}
	return n, nil
}

// Close stops the sweeper.
func (s *MemorySessionStore) Close() error {
	s.cache.stop()
	return nil
}

// MemoryConfirmationStore is an in-memory confirm.Store. Contexts expire
// ttl after their PausedAt.
type MemoryConfirmationStore struct {
	cache *memCache
	ttl   time.Duration
}

// NewMemoryConfirmationStore creates a store whose sweeper runs every
// cleanupInterval. A zero interval disables the sweeper.
func NewMemoryConfirmationStore(ttl, cleanupInterval time.Duration) *MemoryConfirmationStore {
	s := &MemoryConfirmationStore{cache: newMemCache(), ttl: ttl}
	s.cache.startCleanup(cleanupInterval)
	return s
}

// SetClock overrides time.Now for expiry.
func (s *MemoryConfirmationStore) SetClock(now func() time.Time) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.now = now
}

// Save stores a copy of p and drops the session's other pending contexts.
func (s *MemoryConfirmationStore) Save(ctx context.Context, p *confirm.PendingContext) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending confirmation %s: %w", p.Ref, err)
	}

	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	for ref, e := range s.cache.entries {
		if e.sessionID == p.SessionID && ref != p.Ref {
			delete(s.cache.entries, ref)
		}
	}
	s.cache.entries[p.Ref] = &memEntry{
		data:      data,
		sessionID: p.SessionID,
		stamp:     p.PausedAt,
		expiresAt: p.ExpiresAt(s.ttl),
	}
	return nil
}

// Load removes and returns the context. Unknown and expired refs return a
// *models.ExpiredConfirmationError.
func (s *MemoryConfirmationStore) Load(ctx context.Context, ref string) (*confirm.PendingContext, error) {
	s.cache.mu.Lock()
	e, ok := s.cache.entries[ref]
	delete(s.cache.entries, ref)
	now := s.cache.now()
	s.cache.mu.Unlock()

	if !ok || now.After(e.expiresAt) {
		return nil, &models.ExpiredConfirmationError{Ref: ref}
	}
	var p confirm.PendingContext
	if err := json.Unmarshal(e.data, &p); err != nil {
		return nil, fmt.Errorf("decode pending confirmation %s: %w", ref, err)
	}
	return &p, nil
}

// Peek returns the context without removing it.
func (s *MemoryConfirmationStore) Peek(ctx context.Context, ref string) (*confirm.PendingContext, error) {
	s.cache.mu.RLock()
	e, ok := s.cache.entries[ref]
	now := s.cache.now()
	s.cache.mu.RUnlock()

	if !ok || now.After(e.expiresAt) {
		return nil, &models.ExpiredConfirmationError{Ref: ref}
	}
	var p confirm.PendingContext
	if err := json.Unmarshal(e.data, &p); err != nil {
		return nil, fmt.Errorf("decode pending confirmation %s: %w", ref, err)
	}
	return &p, nil
}

// Lookup returns the ref of the session's unexpired pending context.
func (s *MemoryConfirmationStore) Lookup(ctx context.Context, sessionID string) (string, bool, error) {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()
	now := s.cache.now()
	for ref, e := range s.cache.entries {
		if e.sessionID == sessionID && !now.After(e.expiresAt) {
			return ref, true, nil
		}
	}
	return "", false, nil
}

// PurgeExpired removes expired contexts.
func (s *MemoryConfirmationStore) PurgeExpired(ctx context.Context) (int64, error) {
	return int64(s.cache.sweep()), nil
}

// Close stops the sweeper.
func (s *MemoryConfirmationStore) Close() error {
	s.cache.stop()
	return nil
}
