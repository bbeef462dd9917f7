// Package executor runs a chain's tasks batch by batch with in-batch parallelism.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/graph"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/logging"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// ServiceInvoker dispatches one service operation. It reports failures and
// ambiguities through the Outcome rather than an error.
type ServiceInvoker interface {
	Call(ctx context.Context, service, operation string, params map[string]any) models.Outcome
}

// Status is the overall result of running a chain.
type Status int

const (
	// StatusCompleted means every task completed.
	StatusCompleted Status = iota
	// StatusNeedsConfirmation means a task asked for a user decision.
	StatusNeedsConfirmation
	// StatusError means the chain aborted with a fatal error.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusNeedsConfirmation:
		return "needs_confirmation"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Interrupt identifies the task that raised an ambiguity.
type Interrupt struct {
	TaskID    string
	Ambiguity models.Ambiguity
}

// ExecutionResult is returned by Run.
type ExecutionResult struct {
	Status    Status
	Interrupt *Interrupt
	Err       error
	// Results holds completed task results when Status is StatusCompleted.
	Results map[string]any
}

// Executor runs chains against a ServiceInvoker.
type Executor struct {
	invoker     ServiceInvoker
	maxParallel int
	taskTimeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxParallel limits how many tasks of one batch run at once. Zero means no limit.
func WithMaxParallel(n int) Option {
	return func(e *Executor) { e.maxParallel = n }
}

// WithTaskTimeout bounds each service call. Zero means no timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(e *Executor) { e.taskTimeout = d }
}

// New creates an Executor.
func New(invoker ServiceInvoker, opts ...Option) *Executor {
	e := &Executor{invoker: invoker}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run validates the chain and executes batches until every task completes,
// a task needs confirmation, or a fatal error occurs. Batches run strictly
// in sequence; a batch starts only after every task of the previous batch
// has an outcome.
func (e *Executor) Run(ctx context.Context, m *chain.Manager) ExecutionResult {
	deps, err := graph.Validate(m.Tasks())
	if err != nil {
		return errorResult(err)
	}
	logging.Debugf("[executor] chain %s: %d tasks validated", m.ID(), deps.Size())

	for batchNum := 1; ; batchNum++ {
		if m.IsCancelled() {
			return errorResult(models.ErrChainCancelled)
		}
		if err := ctx.Err(); err != nil {
			m.Cancel()
			return errorResult(fmt.Errorf("%w: %v", models.ErrChainCancelled, err))
		}
		if m.IsPaused() {
			return errorResult(fmt.Errorf("chain %s is paused", m.ID()))
		}

		results := m.Results()
		batch, err := graph.NextBatch(m.Tasks(), results)
		if err != nil {
			return errorResult(err)
		}
		if batch == nil {
			logging.Debugf("[executor] chain %s completed after %d batches", m.ID(), batchNum-1)
			m.NotifyDone()
			return ExecutionResult{Status: StatusCompleted, Results: m.Results()}
		}

		logging.Debugf("[executor] chain %s batch %d: %d tasks", m.ID(), batchNum, len(batch))
		if res, done := e.runBatch(ctx, m, deps, batch, results); done {
			return res
		}
	}
}

type dispatch struct {
	task    *models.Task
	params  map[string]any
	outcome models.Outcome
}

// runBatch dispatches one batch and applies its outcomes. It returns
// done=true when the chain must stop.
func (e *Executor) runBatch(ctx context.Context, m *chain.Manager, deps *graph.DependencyGraph, batch []*models.Task, results map[string]any) (ExecutionResult, bool) {
	// Resolve every task before dispatching any of them.
	work := make([]*dispatch, len(batch))
	for i, t := range batch {
		params, err := ResolveParams(t, results)
		if err != nil {
			logging.Debugf("[executor] chain %s: %v", m.ID(), err)
			return errorResult(err), true
		}
		work[i] = &dispatch{task: t, params: params}
	}

	// Dispatched calls run to completion even if ctx is cancelled; their
	// results are discarded below.
	callCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}
	for _, w := range work {
		w := w
		g.Go(func() error {
			m.MarkRunning(w.task.ID)
			w.outcome = e.call(callCtx, w)
			return nil
		})
	}
	_ = g.Wait()

	if m.IsCancelled() {
		return errorResult(models.ErrChainCancelled), true
	}
	if err := ctx.Err(); err != nil {
		m.Cancel()
		return errorResult(fmt.Errorf("%w: %v", models.ErrChainCancelled, err)), true
	}

	var failure *models.ServiceFailure
	var interrupt *Interrupt
	for _, w := range work {
		switch w.outcome.Kind {
		case models.OutcomeSuccess:
			m.MarkCompleted(w.task.ID, w.outcome.Value)
		case models.OutcomeAmbiguity:
			amb := models.Ambiguity{}
			if w.outcome.Ambiguity != nil {
				amb = *w.outcome.Ambiguity
			}
			m.MarkWaiting(w.task.ID, amb.Question)
			if interrupt == nil {
				interrupt = &Interrupt{TaskID: w.task.ID, Ambiguity: amb}
			}
		default:
			m.MarkFailed(w.task.ID, w.outcome.Detail)
			if failure == nil {
				failure = &models.ServiceFailure{
					TaskID:    w.task.ID,
					Service:   w.task.Service,
					Operation: w.task.Operation,
					Detail:    w.outcome.Detail,
				}
			}
		}
	}

	switch {
	case failure != nil:
		logging.Debugf("[executor] chain %s: %v", m.ID(), failure)
		if skipped := deps.GetDependents(failure.TaskID); len(skipped) > 0 {
			logging.Debugf("[executor] chain %s: %v will not run", m.ID(), skipped)
		}
		return errorResult(failure), true
	case interrupt != nil:
		logging.Debugf("[executor] chain %s: task %s needs confirmation: %s", m.ID(), interrupt.TaskID, interrupt.Ambiguity.Question)
		return ExecutionResult{Status: StatusNeedsConfirmation, Interrupt: interrupt}, true
	default:
		return ExecutionResult{}, false
	}
}

func (e *Executor) call(ctx context.Context, w *dispatch) models.Outcome {
	if e.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.taskTimeout)
		defer cancel()
	}

	out := e.invoker.Call(ctx, w.task.Service, w.task.Operation, w.params)
	if out.Kind == models.OutcomeFailure && out.Detail == "" {
		out.Detail = "service returned an error without detail"
	}
	if out.Kind == models.OutcomeFailure && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		out.Detail = fmt.Sprintf("timed out after %s: %s", e.taskTimeout, out.Detail)
	}
	return out
}

func errorResult(err error) ExecutionResult {
	return ExecutionResult{Status: StatusError, Err: err}
}
