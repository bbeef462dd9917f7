package chain

import (
	"time"
)

// EventType represents the type of chain event.
type EventType string

const (
	// EventTaskStarted indicates a task has been dispatched.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskWaiting indicates a task is waiting for a user decision.
	EventTaskWaiting EventType = "task_waiting"
	// EventChainPaused indicates the chain stopped dispatching for confirmation.
	EventChainPaused EventType = "chain_paused"
	// EventChainResumed indicates the chain may dispatch again.
	EventChainResumed EventType = "chain_resumed"
	// EventChainCancelled indicates the chain was cancelled.
	EventChainCancelled EventType = "chain_cancelled"
	// EventChainDone indicates every task completed.
	EventChainDone EventType = "chain_done"
)

// Event is a progress notification published by a Manager.
type Event struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// ChainID identifies the chain.
	ChainID string `json:"chain_id"`
	// SessionID is the conversation the chain belongs to.
	SessionID string `json:"session_id"`
	// TaskID is the related task, if applicable.
	TaskID string `json:"task_id,omitempty"`
	// Service and Operation describe the task's call, if applicable.
	Service   string `json:"service,omitempty"`
	Operation string `json:"operation,omitempty"`
	// Message carries failure details or the ambiguity question.
	Message string `json:"message,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives chain events. Implementations must not block for long;
// they are called synchronously from the orchestration control flow.
type Observer interface {
	OnChainEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnChainEvent calls f(e).
func (f ObserverFunc) OnChainEvent(e Event) { f(e) }
