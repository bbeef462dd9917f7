// Package orchestrator is the single entry point that turns user turns into
// planned, executed and confirmed task chains, and drives the course-by-course
// menu selection.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/confirm"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/executor"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/logging"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/planner"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/stage"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/state"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// Request is one user turn.
type Request struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// ResponseKind tells callers how to render a Response.
type ResponseKind string

const (
	// ResponseFinal is a finished request.
	ResponseFinal ResponseKind = "final"
	// ResponseNeedsConfirmation asks the user a question; answer it with
	// SubmitConfirmationAnswer using Confirmation.Ref.
	ResponseNeedsConfirmation ResponseKind = "needs_confirmation"
	// ResponseStagePrompt offers candidates for the current course; answer
	// with SubmitStageSelection.
	ResponseStagePrompt ResponseKind = "stage_prompt"
	// ResponseMenuComplete carries the finished menu.
	ResponseMenuComplete ResponseKind = "menu_complete"
)

// ConfirmationPrompt is the question attached to ResponseNeedsConfirmation.
type ConfirmationPrompt struct {
	Ref      string          `json:"ref"`
	Question string          `json:"question"`
	Options  []models.Option `json:"options,omitempty"`
}

// Response is what every Orchestrator operation returns.
type Response struct {
	Kind      ResponseKind `json:"kind"`
	SessionID string       `json:"session_id"`
	// Message is ready-to-show text.
	Message      string              `json:"message"`
	Results      map[string]any      `json:"results,omitempty"`
	Confirmation *ConfirmationPrompt `json:"confirmation,omitempty"`
	Stage        models.Stage        `json:"stage,omitempty"`
	Candidates   []models.Candidate  `json:"candidates,omitempty"`
	Menu         *models.Menu        `json:"menu,omitempty"`
}

// MenuRecorder stores completed menus.
type MenuRecorder interface {
	SaveMenu(ctx context.Context, m *models.Menu) error
}

// Orchestrator coordinates the planner, executor, confirmation coordinator
// and stage sessions.
type Orchestrator struct {
	planner   planner.Planner
	executor  *executor.Executor
	chains    *chain.Registry
	coord     *confirm.Coordinator
	sessions  stage.Store
	menus     MenuRecorder
	formatter *Formatter
	observers []chain.Observer

	locksMu sync.Mutex
	locks   map[string]bool
}

// New creates an Orchestrator. Stores default to in-memory implementations.
func New(p planner.Planner, exec *executor.Executor, opts ...Option) *Orchestrator {
	o := &orchestratorOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = chain.NewRegistry()
	}
	if o.sessions == nil {
		o.sessions = state.NewMemorySessionStore(DefaultSessionTTL, 0)
	}
	if o.confirmations == nil {
		o.confirmations = state.NewMemoryConfirmationStore(DefaultConfirmationTTL, 0)
	}
	if o.formatter == nil {
		o.formatter = NewFormatter()
	}

	return &Orchestrator{
		planner:   p,
		executor:  exec,
		chains:    o.registry,
		coord:     confirm.NewCoordinator(o.confirmations, o.registry, o.coordinatorOps...),
		sessions:  o.sessions,
		menus:     o.menus,
		formatter: o.formatter,
		observers: o.observers,
		locks:     make(map[string]bool),
	}
}

// Coordinator exposes the confirmation coordinator, e.g. to query a
// session's confirmation state.
func (o *Orchestrator) Coordinator() *confirm.Coordinator {
	return o.coord
}

// Session returns the session's menu-building state. Unknown sessions
// return a *models.SessionNotFoundError.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (*stage.Session, error) {
	return o.sessions.Load(ctx, sessionID)
}

// SubmitRequest plans and runs a new request. A pending confirmation of the
// session is discarded. An empty SessionID starts a new session.
func (o *Orchestrator) SubmitRequest(ctx context.Context, req Request) (*Response, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	if !o.lock(req.SessionID) {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, models.ErrSessionBusy)
	}
	defer o.unlock(req.SessionID)

	if _, err := o.coord.Cancel(ctx, req.SessionID); err != nil {
		log.Printf("[orchestrator] session %s: discard pending confirmation: %v", req.SessionID, err)
	}
	return o.run(ctx, req)
}

// SubmitConfirmationAnswer answers the question identified by ref. A
// recognized answer re-runs the whole pipeline with the request amended by
// the answer. While the session is busy the answer is rejected and the
// confirmation stays pending.
func (o *Orchestrator) SubmitConfirmationAnswer(ctx context.Context, ref, answer string) (*Response, error) {
	sessionID, err := o.coord.SessionOf(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !o.lock(sessionID) {
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionBusy)
	}
	defer o.unlock(sessionID)

	d, err := o.coord.Answer(ctx, ref, answer)
	if err != nil {
		return nil, err
	}
	p := d.Pending

	switch d.Kind {
	case confirm.DecisionClarify:
		return &Response{
			Kind:      ResponseNeedsConfirmation,
			SessionID: p.SessionID,
			Message:   d.Message,
			Confirmation: &ConfirmationPrompt{
				Ref:      p.Ref,
				Question: p.Ambiguity.Question,
				Options:  p.Ambiguity.Options,
			},
		}, nil
	case confirm.DecisionCancelled:
		return &Response{Kind: ResponseFinal, SessionID: p.SessionID, Message: d.Message}, nil
	}

	runCtx := ctx
	if d.Interpretation.Intent == confirm.IntentProceedAsIs {
		runCtx = executor.WithProceedAsIs(ctx)
	}
	log.Printf("[orchestrator] session %s: resuming with %q", p.SessionID, d.MergedRequest)
	return o.run(runCtx, Request{Text: d.MergedRequest, SessionID: p.SessionID, UserID: p.UserID})
}

// Cancel stops the session's running chain or drops its pending
// confirmation. It reports whether anything was cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) (bool, error) {
	pending, err := o.coord.Cancel(ctx, sessionID)
	if err != nil {
		return false, err
	}
	running := o.chains.Cancel(sessionID)
	return pending || running, nil
}

// run executes the plan → execute → respond pipeline for one request text.
func (o *Orchestrator) run(ctx context.Context, req Request) (*Response, error) {
	tasks, err := o.planner.Plan(ctx, req.Text, req.UserID)
	if err != nil {
		var pe *models.PlanningError
		if !errors.As(err, &pe) {
			err = &models.PlanningError{Reason: "planner failed", Err: err}
		}
		log.Printf("[orchestrator] session %s: planning failed: %v", req.SessionID, err)
		return nil, err
	}
	logging.Debugf("[orchestrator] session %s: planned %d tasks for %q", req.SessionID, len(tasks), req.Text)
	if logging.Enabled() {
		for _, t := range tasks {
			logging.Debugf("[orchestrator]   %s %s.%s after %v", t.ID, t.Service, t.Operation, t.DependsOn)
		}
	}

	m := chain.NewManager(req.SessionID, req.UserID, req.Text, tasks)
	for _, obs := range o.observers {
		m.Subscribe(obs)
	}
	if err := o.chains.Begin(m); err != nil {
		return nil, err
	}

	res := o.executor.Run(ctx, m)
	switch res.Status {
	case executor.StatusNeedsConfirmation:
		p, err := o.coord.Suspend(ctx, m, res.Interrupt)
		if err != nil {
			o.chains.Cancel(req.SessionID)
			return nil, err
		}
		return &Response{
			Kind:      ResponseNeedsConfirmation,
			SessionID: req.SessionID,
			Message:   o.formatter.Question(p.Ambiguity),
			Confirmation: &ConfirmationPrompt{
				Ref:      p.Ref,
				Question: p.Ambiguity.Question,
				Options:  p.Ambiguity.Options,
			},
		}, nil

	case executor.StatusError:
		o.chains.End(m)
		log.Printf("[orchestrator] session %s: chain %s failed: %v", req.SessionID, m.ID(), res.Err)
		return nil, res.Err

	default:
		o.chains.End(m)
		tasks := m.Tasks()
		if cands, ok := o.formatter.Candidates(tasks, res.Results); ok {
			return o.presentCandidates(ctx, req, cands)
		}
		return &Response{
			Kind:      ResponseFinal,
			SessionID: req.SessionID,
			Message:   o.formatter.Final(tasks, res.Results),
			Results:   res.Results,
		}, nil
	}
}

func (o *Orchestrator) lock(sessionID string) bool {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	if o.locks[sessionID] {
		return false
	}
	o.locks[sessionID] = true
	return true
}

func (o *Orchestrator) unlock(sessionID string) {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	delete(o.locks, sessionID)
}
