// Package chain owns the mutable execution state of one orchestration run.
package chain

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// Manager holds a chain's tasks, results and paused flag. It is the only
// component that mutates them and the only one that publishes chain events.
type Manager struct {
	id        string
	sessionID string
	userID    string
	request   string
	createdAt time.Time

	// mu protects all fields below.
	mu        sync.RWMutex
	tasks     []*models.Task
	index     map[string]*models.Task
	results   map[string]any
	paused    bool
	cancelled bool
	observers []Observer
}

// Snapshot is a copy of chain state that shares nothing with the Manager.
type Snapshot struct {
	ChainID   string         `json:"chain_id"`
	SessionID string         `json:"session_id"`
	Request   string         `json:"request"`
	Tasks     []*models.Task `json:"tasks"`
	Results   map[string]any `json:"results"`
	Paused    bool           `json:"paused"`
	TakenAt   time.Time      `json:"taken_at"`
}

// NewManager creates a chain for the given request and task list.
// Every task starts Pending regardless of the status it arrived with.
func NewManager(sessionID, userID, request string, tasks []*models.Task) *Manager {
	m := &Manager{
		id:        uuid.New().String()[:8],
		sessionID: sessionID,
		userID:    userID,
		request:   request,
		createdAt: time.Now(),
		tasks:     make([]*models.Task, 0, len(tasks)),
		index:     make(map[string]*models.Task, len(tasks)),
		results:   make(map[string]any),
	}
	for _, t := range tasks {
		c := t.Clone()
		c.Status = models.TaskStatusPending
		c.Result = nil
		c.Error = ""
		m.tasks = append(m.tasks, c)
		m.index[c.ID] = c
	}
	return m
}

// ID returns the chain ID.
func (m *Manager) ID() string { return m.id }

// SessionID returns the session the chain runs for.
func (m *Manager) SessionID() string { return m.sessionID }

// UserID returns the user that submitted the request.
func (m *Manager) UserID() string { return m.userID }

// Request returns the request text the chain was planned from.
func (m *Manager) Request() string { return m.request }

// Subscribe registers an observer for subsequent events.
func (m *Manager) Subscribe(o Observer) {
	if o == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Tasks returns copies of the chain's tasks in planner order.
func (m *Manager) Tasks() []*models.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.CloneTasks(m.tasks)
}

// Task returns a copy of one task, or nil if the ID is unknown.
func (m *Manager) Task(id string) *models.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index[id].Clone()
}

// Results returns a copy of the results map.
func (m *Manager) Results() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.results))
	for k, v := range m.results {
		out[k] = v
	}
	return out
}

// Result returns the stored result of a completed task.
func (m *Manager) Result(id string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.results[id]
	return v, ok
}

// MarkRunning moves a pending task to Running.
func (m *Manager) MarkRunning(id string) {
	m.update(id, func(t *models.Task, now time.Time) (EventType, string, bool) {
		if t.Status != models.TaskStatusPending {
			return "", "", false
		}
		t.Status = models.TaskStatusRunning
		t.StartedAt = &now
		return EventTaskStarted, "", true
	})
}

// MarkCompleted stores a result and marks the task Completed. It returns
// false when the chain was cancelled, in which case the result is discarded.
func (m *Manager) MarkCompleted(id string, value any) bool {
	stored := false
	m.update(id, func(t *models.Task, now time.Time) (EventType, string, bool) {
		if m.cancelled || t.Status != models.TaskStatusRunning {
			return "", "", false
		}
		t.Status = models.TaskStatusCompleted
		t.Result = value
		t.FinishedAt = &now
		m.results[id] = value
		stored = true
		return EventTaskCompleted, "", true
	})
	return stored
}

// MarkFailed records a failure detail and marks the task Failed.
func (m *Manager) MarkFailed(id, detail string) {
	m.update(id, func(t *models.Task, now time.Time) (EventType, string, bool) {
		if t.Status.Terminal() {
			return "", "", false
		}
		t.Status = models.TaskStatusFailed
		t.Error = detail
		t.FinishedAt = &now
		return EventTaskFailed, detail, true
	})
}

// MarkWaiting marks a task as waiting for a user decision.
func (m *Manager) MarkWaiting(id, question string) {
	m.update(id, func(t *models.Task, now time.Time) (EventType, string, bool) {
		if t.Status.Terminal() {
			return "", "", false
		}
		t.Status = models.TaskStatusWaitingForUser
		t.FinishedAt = &now
		return EventTaskWaiting, question, true
	})
}

// update applies fn to a task under the lock and publishes the resulting
// event after the lock is released.
func (m *Manager) update(id string, fn func(t *models.Task, now time.Time) (EventType, string, bool)) {
	now := time.Now()

	m.mu.Lock()
	t, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		log.Printf("[chain %s] update for unknown task %s ignored", m.id, id)
		return
	}
	typ, msg, changed := fn(t, now)
	service, op := t.Service, t.Operation
	observers := m.observersLocked()
	m.mu.Unlock()

	if changed {
		m.publish(observers, Event{Type: typ, TaskID: id, Service: service, Operation: op, Message: msg, Timestamp: now})
	}
}

// PauseForConfirmation stops further batches from being dispatched.
// Calling it on a paused chain has no effect.
func (m *Manager) PauseForConfirmation() {
	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return
	}
	m.paused = true
	observers := m.observersLocked()
	m.mu.Unlock()

	log.Printf("[chain %s] paused for confirmation", m.id)
	m.publish(observers, Event{Type: EventChainPaused, Timestamp: time.Now()})
}

// ResumeExecution clears the paused flag. Calling it on a running chain has no effect.
func (m *Manager) ResumeExecution() {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return
	}
	m.paused = false
	observers := m.observersLocked()
	m.mu.Unlock()

	log.Printf("[chain %s] resumed", m.id)
	m.publish(observers, Event{Type: EventChainResumed, Timestamp: time.Now()})
}

// Cancel marks the chain cancelled. Results reported afterwards are discarded
// and results already stored are cleared.
func (m *Manager) Cancel() {
	m.mu.Lock()
	if m.cancelled {
		m.mu.Unlock()
		return
	}
	m.cancelled = true
	m.results = make(map[string]any)
	observers := m.observersLocked()
	m.mu.Unlock()

	log.Printf("[chain %s] cancelled", m.id)
	m.publish(observers, Event{Type: EventChainCancelled, Timestamp: time.Now()})
}

// NotifyDone publishes EventChainDone.
func (m *Manager) NotifyDone() {
	m.mu.RLock()
	observers := m.observersLocked()
	m.mu.RUnlock()
	m.publish(observers, Event{Type: EventChainDone, Timestamp: time.Now()})
}

// IsPaused returns whether the chain is paused.
func (m *Manager) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// IsCancelled returns whether the chain was cancelled.
func (m *Manager) IsCancelled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancelled
}

// Snapshot copies the chain state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]any, len(m.results))
	for k, v := range m.results {
		results[k] = v
	}
	return Snapshot{
		ChainID:   m.id,
		SessionID: m.sessionID,
		Request:   m.request,
		Tasks:     models.CloneTasks(m.tasks),
		Results:   results,
		Paused:    m.paused,
		TakenAt:   time.Now(),
	}
}

func (m *Manager) observersLocked() []Observer {
	if len(m.observers) == 0 {
		return nil
	}
	return append([]Observer(nil), m.observers...)
}

func (m *Manager) publish(observers []Observer, e Event) {
	e.ChainID = m.id
	e.SessionID = m.sessionID
	for _, o := range observers {
		o.OnChainEvent(e)
	}
}
