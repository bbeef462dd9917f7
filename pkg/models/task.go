package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not been dispatched.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task has been dispatched and has no outcome yet.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the service call succeeded and a result is stored.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the service call failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusWaitingForUser indicates the service asked for a user decision.
	TaskStatusWaitingForUser TaskStatus = "waiting_for_user"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusWaitingForUser:
		return true
	default:
		return false
	}
}

// Terminal returns true if the task will not change status again within its chain.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is one externally dispatched service operation within a chain.
type Task struct {
	// ID is unique within the chain.
	ID string `json:"id"`
	// Service is the name of the backend service to call.
	Service string `json:"service"`
	// Operation is the operation name on that service.
	Operation string `json:"operation"`
	// Params holds literal values and references to earlier results.
	Params Params `json:"params,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Result is the opaque value returned by the service on success.
	Result any `json:"result,omitempty"`
	// Error contains the failure detail if the task failed.
	Error string `json:"error,omitempty"`
	// StartedAt is when the task was dispatched.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// FinishedAt is when the task produced an outcome.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a copy of the task that shares no mutable slices or maps
// with the original. Result values are shared.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Params != nil {
		c.Params = make(Params, len(t.Params))
		for k, v := range t.Params {
			c.Params[k] = v
		}
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		c.FinishedAt = &ts
	}
	return &c
}

// CloneTasks deep-copies a task list.
func CloneTasks(tasks []*Task) []*Task {
	out := make([]*Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
