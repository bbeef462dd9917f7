package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionBusy is returned when a session already has a running chain.
	ErrSessionBusy = errors.New("session already has a running chain")
	// ErrConfirmationCancelled is returned when a pending confirmation is
	// abandoned, either by the user or after too many unrecognized answers.
	ErrConfirmationCancelled = errors.New("confirmation cancelled")
	// ErrChainCancelled is returned when a chain was cancelled at a suspension point.
	ErrChainCancelled = errors.New("chain cancelled")
	// ErrInvalidChoice is returned for selection values outside the accepted range.
	ErrInvalidChoice = errors.New("invalid choice")
)

// PlanningError means the planner produced an unusable task list.
type PlanningError struct {
	Reason string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning error: %s: %v", e.Reason, e.Err)
	}
	return "planning error: " + e.Reason
}

func (e *PlanningError) Unwrap() error { return e.Err }

// CycleOrDeadlockError names tasks that can never become ready.
type CycleOrDeadlockError struct {
	TaskIDs []string
	// Cycle is true when a dependency cycle was found up front, false when
	// pending tasks were orphaned during execution.
	Cycle bool
}

func (e *CycleOrDeadlockError) Error() string {
	kind := "deadlock"
	if e.Cycle {
		kind = "dependency cycle"
	}
	return fmt.Sprintf("%s among tasks [%s]", kind, strings.Join(e.TaskIDs, ", "))
}

// UnresolvedReferenceError means a parameter referenced a result that does not exist.
type UnresolvedReferenceError struct {
	TaskID    string
	Param     string
	Reference string
	Reason    string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("task %s param %q: unresolved reference %s: %s", e.TaskID, e.Param, e.Reference, e.Reason)
}

// ServiceFailure means a called service operation reported an error.
type ServiceFailure struct {
	TaskID    string
	Service   string
	Operation string
	Detail    string
}

func (e *ServiceFailure) Error() string {
	return fmt.Sprintf("task %s: %s.%s failed: %s", e.TaskID, e.Service, e.Operation, e.Detail)
}

// ExpiredConfirmationError means the confirmation reference is unknown or its TTL elapsed.
type ExpiredConfirmationError struct {
	Ref string
}

func (e *ExpiredConfirmationError) Error() string {
	return fmt.Sprintf("confirmation %s expired or unknown", e.Ref)
}

// InvalidRollbackError means rollback was requested from a stage with no predecessor.
type InvalidRollbackError struct {
	Stage Stage
}

func (e *InvalidRollbackError) Error() string {
	return fmt.Sprintf("cannot roll back from stage %s", e.Stage)
}

// SessionNotFoundError means no stage session exists for the id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}
