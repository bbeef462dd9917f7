// Package graph resolves task dependencies into executable batches.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/logging"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// DependencyGraph is the validated dependency structure of one chain.
// Tasks are nodes, and edges point from a task to the tasks it depends on.
type DependencyGraph struct {
	mu sync.RWMutex
	// order preserves the planner's task order for stable iteration.
	order []string
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on.
	edges map[string][]string
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*models.Task),
		edges: make(map[string][]string),
	}
}

// Validate builds the graph of tasks and returns it once it is known to be
// executable.
func Validate(tasks []*models.Task) (*DependencyGraph, error) {
	g := New()
	if err := g.Build(tasks); err != nil {
		return nil, err
	}
	return g, nil
}

// Build constructs the dependency graph from a slice of tasks.
// Missing IDs, duplicate IDs and dangling dependencies are a PlanningError.
// A cycle is a CycleOrDeadlockError naming its members. A parameter
// referencing a task that is not among its transitive dependencies is an
// UnresolvedReferenceError.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	logging.Debugf("[graph.Build] building graph from %d tasks", len(tasks))

	if len(tasks) == 0 {
		return &models.PlanningError{Reason: "empty task list"}
	}

	// First pass: register all tasks as nodes.
	for i, task := range tasks {
		if task == nil || task.ID == "" {
			return &models.PlanningError{Reason: fmt.Sprintf("task at position %d has no id", i)}
		}
		if _, dup := g.nodes[task.ID]; dup {
			return &models.PlanningError{Reason: fmt.Sprintf("duplicate task id %s", task.ID)}
		}
		g.order = append(g.order, task.ID)
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
	}

	// Second pass: build edges from DependsOn fields.
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return &models.PlanningError{Reason: fmt.Sprintf("task %s depends on unknown task %s", task.ID, depID)}
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if cycle := g.findCycleLocked(); cycle != nil {
		logging.Debugf("[graph.Build] cycle detected: %v", cycle)
		return &models.CycleOrDeadlockError{TaskIDs: cycle, Cycle: true}
	}

	// Third pass: a reference is only satisfiable by an upstream task.
	for _, task := range tasks {
		if err := g.checkReferencesLocked(task); err != nil {
			logging.Debugf("[graph.Build] %v", err)
			return err
		}
	}

	logging.Debugf("[graph.Build] graph built successfully with %d nodes", len(g.nodes))
	return nil
}

func (g *DependencyGraph) checkReferencesLocked(task *models.Task) error {
	names := make([]string, 0, len(task.Params))
	for name := range task.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref, ok := task.Params[name].(models.Reference)
		if !ok {
			continue
		}
		var reason string
		switch {
		case g.nodes[ref.TaskID] == nil:
			reason = "no task " + ref.TaskID + " in the chain"
		case !g.upstreamLocked(task.ID)[ref.TaskID]:
			reason = "task " + ref.TaskID + " is not a dependency"
		default:
			continue
		}
		return &models.UnresolvedReferenceError{TaskID: task.ID, Param: name, Reference: ref.String(), Reason: reason}
	}
	return nil
}

// upstreamLocked returns every task id reachable through DependsOn from id.
func (g *DependencyGraph) upstreamLocked(id string) map[string]bool {
	seen := make(map[string]bool)
	queue := append([]string(nil), g.edges[id]...)
	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if seen[dep] {
			continue
		}
		seen[dep] = true
		queue = append(queue, g.edges[dep]...)
	}
	return seen
}

// findCycleLocked returns the IDs on the first cycle found, or nil.
// Depth-first search with coloring; assumes the lock is held.
func (g *DependencyGraph) findCycleLocked() []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge: the cycle is the stack suffix starting at depID.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == depID {
						cycle = append([]string(nil), stack[i:]...)
						break
					}
				}
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return cycle
		}
	}
	return nil
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependents returns the IDs of tasks that depend on the given task, in task order.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// NextBatch returns every pending task whose dependencies all have an entry
// in results, in the original list order. It returns (nil, nil) when no
// task is pending. If tasks are pending but none is ready, the remaining
// tasks can never run and a CycleOrDeadlockError lists them.
func NextBatch(tasks []*models.Task, results map[string]any) ([]*models.Task, error) {
	var ready []*models.Task
	var pending []string

	for _, task := range tasks {
		if task.Status != models.TaskStatusPending {
			continue
		}
		pending = append(pending, task.ID)

		satisfied := true
		for _, depID := range task.DependsOn {
			if _, ok := results[depID]; !ok {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, task)
		}
	}

	if len(pending) == 0 {
		return nil, nil
	}
	if len(ready) == 0 {
		logging.Debugf("[graph.NextBatch] no resolvable task among pending %v", pending)
		return nil, &models.CycleOrDeadlockError{TaskIDs: pending}
	}

	logging.Debugf("[graph.NextBatch] %d ready of %d pending", len(ready), len(pending))
	return ready, nil
}
