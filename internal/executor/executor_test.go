package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

type call struct {
	service, operation string
	params             map[string]any
	start, end         time.Time
}

// fakeInvoker returns scripted outcomes keyed by operation name and records every call.
type fakeInvoker struct {
	mu       sync.Mutex
	calls    map[string]call
	outcomes map[string]models.Outcome
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{calls: map[string]call{}, outcomes: map[string]models.Outcome{}}
}

func (f *fakeInvoker) Call(ctx context.Context, service, operation string, params map[string]any) models.Outcome {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	start := time.Now()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.inFlight.Add(-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[operation] = call{service: service, operation: operation, params: params, start: start, end: time.Now()}
	if out, ok := f.outcomes[operation]; ok {
		return out
	}
	return models.Success(operation + "-done")
}

func (f *fakeInvoker) called(op string) (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[op]
	return c, ok
}

func ref(s string) models.ParamValue {
	r, ok := models.ParseReference(s)
	if !ok {
		panic("bad reference " + s)
	}
	return r
}

func TestRun_ReferenceSubstitution(t *testing.T) {
	inv := newFakeInvoker()
	inv.outcomes["t1"] = models.Success(map[string]any{"x": 5})

	m := chain.NewManager("s1", "u1", "req", []*models.Task{
		{ID: "t1", Service: "svc", Operation: "t1"},
		{ID: "t2", Service: "svc", Operation: "t2", DependsOn: []string{"t1"}, Params: models.Params{"n": ref("t1.result.x")}},
	})

	res := New(inv).Run(context.Background(), m)
	if res.Status != StatusCompleted {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}
	c, ok := inv.called("t2")
	if !ok {
		t.Fatal("t2 was not dispatched")
	}
	if c.params["n"] != 5 {
		t.Errorf("t2 received n = %v, want 5", c.params["n"])
	}
	if res.Results["t2"] != "t2-done" {
		t.Errorf("Results[t2] = %v", res.Results["t2"])
	}
}

func TestRun_AmbiguityStopsChain(t *testing.T) {
	inv := newFakeInvoker()
	inv.outcomes["t1"] = models.NeedsDecision("Which chicken?", []models.Option{{Label: "thigh"}, {Label: "breast"}}, nil)

	m := chain.NewManager("s1", "u1", "req", []*models.Task{
		{ID: "t1", Service: "inventory", Operation: "t1"},
		{ID: "t2", Service: "recipe", Operation: "t2", DependsOn: []string{"t1"}},
	})

	res := New(inv).Run(context.Background(), m)
	if res.Status != StatusNeedsConfirmation {
		t.Fatalf("Status = %s, want needs_confirmation (err %v)", res.Status, res.Err)
	}
	if res.Err != nil {
		t.Errorf("ambiguity must not be an error, got %v", res.Err)
	}
	if res.Interrupt == nil || res.Interrupt.TaskID != "t1" || len(res.Interrupt.Ambiguity.Options) != 2 {
		t.Errorf("Interrupt = %+v", res.Interrupt)
	}
	if _, ok := inv.called("t2"); ok {
		t.Error("t2 must never be dispatched after an ambiguity")
	}
	if got := m.Task("t1").Status; got != models.TaskStatusWaitingForUser {
		t.Errorf("t1 status = %s, want waiting_for_user", got)
	}
}

func TestRun_SameBatchSiblingsFinish(t *testing.T) {
	inv := newFakeInvoker()
	inv.delay = 10 * time.Millisecond
	inv.outcomes["a"] = models.NeedsDecision("?", nil, nil)

	m := chain.NewManager("s1", "", "req", []*models.Task{
		{ID: "a", Service: "svc", Operation: "a"},
		{ID: "b", Service: "svc", Operation: "b"},
		{ID: "c", Service: "svc", Operation: "c", DependsOn: []string{"a", "b"}},
	})

	res := New(inv).Run(context.Background(), m)
	if res.Status != StatusNeedsConfirmation {
		t.Fatalf("Status = %s", res.Status)
	}
	if got := m.Task("b").Status; got != models.TaskStatusCompleted {
		t.Errorf("sibling b status = %s, want completed", got)
	}
	if _, ok := inv.called("c"); ok {
		t.Error("c must not be dispatched")
	}
}

func TestRun_FailureIsFatal(t *testing.T) {
	inv := newFakeInvoker()
	inv.outcomes["t1"] = models.Failure("inventory offline")

	m := chain.NewManager("s1", "", "req", []*models.Task{
		{ID: "t1", Service: "inventory", Operation: "t1"},
		{ID: "t2", Service: "svc", Operation: "t2", DependsOn: []string{"t1"}},
	})

	res := New(inv).Run(context.Background(), m)
	if res.Status != StatusError {
		t.Fatalf("Status = %s, want error", res.Status)
	}
	var sf *models.ServiceFailure
	if !errors.As(res.Err, &sf) || sf.TaskID != "t1" || sf.Detail != "inventory offline" {
		t.Errorf("Err = %v, want ServiceFailure for t1", res.Err)
	}
	if got := m.Task("t1").Status; got != models.TaskStatusFailed {
		t.Errorf("t1 status = %s, want failed", got)
	}
	if _, ok := inv.called("t2"); ok {
		t.Error("t2 must not run after a failure")
	}
}

func TestRun_FailureOutranksAmbiguity(t *testing.T) {
	inv := newFakeInvoker()
	inv.outcomes["a"] = models.NeedsDecision("?", nil, nil)
	inv.outcomes["b"] = models.Failure("down")

	m := chain.NewManager("s1", "", "req", []*models.Task{
		{ID: "a", Service: "svc", Operation: "a"},
		{ID: "b", Service: "svc", Operation: "b"},
	})

	res := New(inv).Run(context.Background(), m)
	if res.Status != StatusError {
		t.Fatalf("Status = %s, want error", res.Status)
	}
}

func TestRun_CycleNeverCompletesAnything(t *testing.T) {
	inv := newFakeInvoker()
	m := chain.NewManager("s1", "", "req", []*models.Task{
		{ID: "ok", Service: "svc", Operation: "ok"},
		{ID: "a", Service: "svc", Operation: "a", DependsOn: []string{"b"}},
		{ID: "b", Service: "svc", Operation: "b", DependsOn: []string{"a"}},
	})

	res := New(inv).Run(context.Background(), m)
	var cyc *models.CycleOrDeadlockError
	if !errors.As(res.Err, &cyc) {
		t.Fatalf("Err = %v, want CycleOrDeadlockError", res.Err)
	}
	for _, task := range m.Tasks() {
		if task.Status == models.TaskStatusCompleted {
			t.Errorf("task %s completed despite cycle", task.ID)
		}
	}
	if len(inv.calls) != 0 {
		t.Errorf("dispatched %d calls, want 0", len(inv.calls))
	}
}

func TestRun_UnresolvedReferenceDispatchesNothing(t *testing.T) {
	inv := newFakeInvoker()
	inv.outcomes["t1"] = models.Success(map[string]any{"x": 5})

	m := chain.NewManager("s1", "", "req", []*models.Task{
		{ID: "t1", Service: "svc", Operation: "t1"},
		{ID: "t2", Service: "svc", Operation: "t2", DependsOn: []string{"t1"}, Params: models.Params{"n": ref("t1.result.missing")}},
		{ID: "t3", Service: "svc", Operation: "t3", DependsOn: []string{"t1"}},
	})

	res := New(inv).Run(context.Background(), m)
	var ure *models.UnresolvedReferenceError
	if !errors.As(res.Err, &ure) {
		t.Fatalf("Err = %v, want UnresolvedReferenceError", res.Err)
	}
	if ure.TaskID != "t2" || ure.Param != "n" {
		t.Errorf("UnresolvedReferenceError = %+v", ure)
	}
	if _, ok := inv.called("t3"); ok {
		t.Error("no task of the failing batch may be dispatched")
	}
}

// A reference to a task outside the dependency chain is rejected before the
// first batch, so upstream side effects never happen.
func TestRun_UndeclaredReferenceRejectedUpFront(t *testing.T) {
	inv := newFakeInvoker()

	m := chain.NewManager("s1", "", "req", []*models.Task{
		{ID: "t1", Service: "inventory", Operation: "update"},
		{ID: "t2", Service: "svc", Operation: "t2", DependsOn: []string{"t1"}, Params: models.Params{"x": ref("t9.result")}},
	})

	res := New(inv).Run(context.Background(), m)
	var ure *models.UnresolvedReferenceError
	if !errors.As(res.Err, &ure) || ure.TaskID != "t2" {
		t.Fatalf("Err = %v, want UnresolvedReferenceError for t2", res.Err)
	}
	if _, ok := inv.called("update"); ok {
		t.Error("inventory.update must not be dispatched")
	}
}

// No task in batch N+1 starts before every task in batch N has finished.
func TestRun_BatchBarrierOrdering(t *testing.T) {
	inv := newFakeInvoker()
	inv.delay = 15 * time.Millisecond

	m := chain.NewManager("s1", "", "req", []*models.Task{
		{ID: "a1", Service: "svc", Operation: "a1"},
		{ID: "a2", Service: "svc", Operation: "a2"},
		{ID: "a3", Service: "svc", Operation: "a3"},
		{ID: "b1", Service: "svc", Operation: "b1", DependsOn: []string{"a1"}},
		{ID: "b2", Service: "svc", Operation: "b2", DependsOn: []string{"a2"}},
		{ID: "c1", Service: "svc", Operation: "c1", DependsOn: []string{"b1", "a3"}},
	})

	res := New(inv).Run(context.Background(), m)
	if res.Status != StatusCompleted {
		t.Fatalf("Status = %s, err = %v", res.Status, res.Err)
	}

	batches := [][]string{{"a1", "a2", "a3"}, {"b1", "b2"}, {"c1"}}
	for i := 0; i+1 < len(batches); i++ {
		var lastEnd time.Time
		for _, id := range batches[i] {
			c, _ := inv.called(id)
			if c.end.After(lastEnd) {
				lastEnd = c.end
			}
		}
		for _, id := range batches[i+1] {
			c, _ := inv.called(id)
			if c.start.Before(lastEnd) {
				t.Errorf("%s started at %v before batch %d finished at %v", id, c.start, i+1, lastEnd)
			}
		}
	}
	if inv.peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want batch tasks to overlap", inv.peak.Load())
	}
}

func TestRun_MaxParallel(t *testing.T) {
	inv := newFakeInvoker()
	inv.delay = 5 * time.Millisecond

	var tasks []*models.Task
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		tasks = append(tasks, &models.Task{ID: id, Service: "svc", Operation: id})
	}
	m := chain.NewManager("s1", "", "req", tasks)

	res := New(inv, WithMaxParallel(2)).Run(context.Background(), m)
	if res.Status != StatusCompleted {
		t.Fatalf("Status = %s", res.Status)
	}
	if p := inv.peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

type blockingInvoker struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingInvoker) Call(ctx context.Context, service, operation string, params map[string]any) models.Outcome {
	close(b.started)
	<-b.release
	return models.Success("late")
}

func TestRun_CancelDiscardsInFlightResults(t *testing.T) {
	inv := &blockingInvoker{started: make(chan struct{}), release: make(chan struct{})}
	m := chain.NewManager("s1", "", "req", []*models.Task{{ID: "t1", Service: "svc", Operation: "slow"}})

	done := make(chan ExecutionResult)
	go func() { done <- New(inv).Run(context.Background(), m) }()

	<-inv.started
	m.Cancel()
	close(inv.release)

	res := <-done
	if !errors.Is(res.Err, models.ErrChainCancelled) {
		t.Fatalf("Err = %v, want ErrChainCancelled", res.Err)
	}
	if _, ok := m.Result("t1"); ok {
		t.Error("result of in-flight task should be discarded after cancel")
	}
}

func TestRun_TaskTimeoutAnnotatesFailure(t *testing.T) {
	inv := invokerFunc(func(ctx context.Context, service, operation string, params map[string]any) models.Outcome {
		<-ctx.Done()
		return models.Failure(ctx.Err().Error())
	})
	m := chain.NewManager("s1", "", "req", []*models.Task{{ID: "t1", Service: "svc", Operation: "op"}})

	res := New(inv, WithTaskTimeout(10*time.Millisecond)).Run(context.Background(), m)
	var sf *models.ServiceFailure
	if !errors.As(res.Err, &sf) {
		t.Fatalf("Err = %v, want ServiceFailure", res.Err)
	}
	if !strings.Contains(sf.Detail, "timed out") {
		t.Errorf("Detail = %q, want timeout annotation", sf.Detail)
	}
}

type invokerFunc func(ctx context.Context, service, operation string, params map[string]any) models.Outcome

func (f invokerFunc) Call(ctx context.Context, service, operation string, params map[string]any) models.Outcome {
	return f(ctx, service, operation, params)
}
