// Package confirm suspends chains on ambiguity and resumes them from user answers.
package confirm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/executor"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/logging"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// DefaultMaxAttempts is the number of unrecognized answers after which a
// pending confirmation is cancelled.
const DefaultMaxAttempts = 3

// State is the confirmation state of a session.
type State int

const (
	// StateRunning means no confirmation is pending.
	StateRunning State = iota
	// StateAwaitingUser means the session has a pending confirmation.
	StateAwaitingUser
)

func (s State) String() string {
	if s == StateAwaitingUser {
		return "awaiting_user"
	}
	return "running"
}

// DecisionKind tells the caller what to do after an answer.
type DecisionKind int

const (
	// DecisionResume means re-run the pipeline with MergedRequest.
	DecisionResume DecisionKind = iota
	// DecisionClarify means the answer was not understood; ask again.
	DecisionClarify
	// DecisionCancelled means the user cancelled the request.
	DecisionCancelled
)

// Decision is the result of Answer.
type Decision struct {
	Kind           DecisionKind
	Pending        *PendingContext
	Interpretation Interpretation
	// MergedRequest is set for DecisionResume.
	MergedRequest string
	// Message is user-facing text for DecisionClarify and DecisionCancelled.
	Message string
}

// Coordinator implements the Running / AwaitingUser state machine.
type Coordinator struct {
	store       Store
	chains      *chain.Registry
	interpreter AnswerInterpreter
	maxAttempts int
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterpreter replaces the default KeywordInterpreter.
func WithInterpreter(i AnswerInterpreter) Option {
	return func(c *Coordinator) { c.interpreter = i }
}

// WithMaxAttempts sets how many unrecognized answers are tolerated.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithClock overrides time.Now for PausedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a Coordinator over the given store and chain registry.
func NewCoordinator(store Store, chains *chain.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		chains:      chains,
		interpreter: KeywordInterpreter{},
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ref builds the confirmation reference for a task of a chain.
func Ref(chainID, taskID string) string {
	return chainID + ":" + taskID
}

// Suspend moves the chain to AwaitingUser: it pauses the chain and saves a
// PendingContext for the interrupting task.
func (c *Coordinator) Suspend(ctx context.Context, m *chain.Manager, intr *executor.Interrupt) (*PendingContext, error) {
	m.PauseForConfirmation()

	p := &PendingContext{
		Ref:             Ref(m.ID(), intr.TaskID),
		TaskID:          intr.TaskID,
		ChainID:         m.ID(),
		SessionID:       m.SessionID(),
		UserID:          m.UserID(),
		OriginalRequest: m.Request(),
		Ambiguity:       intr.Ambiguity,
		Snapshot:        m.Snapshot(),
		PausedAt:        c.now(),
	}
	if err := c.store.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save pending confirmation %s: %w", p.Ref, err)
	}

	log.Printf("[confirm] session %s awaiting user on %s: %s", p.SessionID, p.Ref, intr.Ambiguity.Question)
	return p, nil
}

// Answer handles a user reply to a pending confirmation. Unknown or expired
// refs return a *models.ExpiredConfirmationError. After too many
// unrecognized answers the confirmation is cancelled and the returned error
// wraps models.ErrConfirmationCancelled.
func (c *Coordinator) Answer(ctx context.Context, ref, answer string) (*Decision, error) {
	p, err := c.store.Load(ctx, ref)
	if err != nil {
		return nil, err
	}

	in := c.interpreter.Interpret(answer, p.Ambiguity)
	logging.Debugf("[confirm] %s: answer %q interpreted as %s %q", ref, answer, in.Intent, in.Value)

	switch in.Intent {
	case IntentCancel:
		c.discardChain(p)
		return &Decision{Kind: DecisionCancelled, Pending: p, Interpretation: in, Message: "Request cancelled."}, nil

	case IntentUnrecognized:
		p.Attempts++
		if p.Attempts >= c.maxAttempts {
			c.discardChain(p)
			return nil, fmt.Errorf("%s: %d unrecognized answers: %w", ref, p.Attempts, models.ErrConfirmationCancelled)
		}
		if err := c.store.Save(ctx, p); err != nil {
			return nil, fmt.Errorf("re-save pending confirmation %s: %w", ref, err)
		}
		return &Decision{Kind: DecisionClarify, Pending: p, Interpretation: in, Message: ClarifyMessage(p)}, nil

	default:
		if m, ok := c.chains.Get(p.SessionID); ok && m.ID() == p.ChainID {
			m.ResumeExecution()
			c.chains.End(m)
		}
		return &Decision{
			Kind:           DecisionResume,
			Pending:        p,
			Interpretation: in,
			MergedRequest:  Merge(p.OriginalRequest, in),
		}, nil
	}
}

// SessionOf returns the session a pending confirmation belongs to without
// consuming it. Unknown or expired refs return a
// *models.ExpiredConfirmationError.
func (c *Coordinator) SessionOf(ctx context.Context, ref string) (string, error) {
	p, err := c.store.Peek(ctx, ref)
	if err != nil {
		return "", err
	}
	return p.SessionID, nil
}

// State reports whether the session has a pending confirmation.
func (c *Coordinator) State(ctx context.Context, sessionID string) (State, string, error) {
	ref, ok, err := c.store.Lookup(ctx, sessionID)
	if err != nil {
		return StateRunning, "", err
	}
	if !ok {
		return StateRunning, "", nil
	}
	return StateAwaitingUser, ref, nil
}

// Cancel drops the session's pending confirmation, if any.
func (c *Coordinator) Cancel(ctx context.Context, sessionID string) (bool, error) {
	ref, ok, err := c.store.Lookup(ctx, sessionID)
	if err != nil || !ok {
		return false, err
	}
	p, err := c.store.Load(ctx, ref)
	if err != nil {
		return false, nil
	}
	c.discardChain(p)
	return true, nil
}

func (c *Coordinator) discardChain(p *PendingContext) {
	if m, ok := c.chains.Get(p.SessionID); ok && m.ID() == p.ChainID {
		c.chains.Cancel(p.SessionID)
	}
	log.Printf("[confirm] session %s: confirmation %s cancelled", p.SessionID, p.Ref)
}

// ClarifyMessage is shown when an answer could not be interpreted.
func ClarifyMessage(p *PendingContext) string {
	var b strings.Builder
	b.WriteString("Sorry, I couldn't understand that answer. ")
	b.WriteString(p.Ambiguity.Question)
	if n := len(p.Ambiguity.Options); n > 0 {
		fmt.Fprintf(&b, " Reply with a number (1-%d) or an option name,", n)
	} else {
		b.WriteString(" Reply with what to use,")
	}
	b.WriteString(` "proceed" to continue without choosing, or "cancel".`)
	return b.String()
}
