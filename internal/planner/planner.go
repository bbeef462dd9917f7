// Package planner turns a natural-language request into a task list by
// asking an LLM.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/services"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// Planner produces the task DAG for a request.
type Planner interface {
	Plan(ctx context.Context, text, userID string) ([]*models.Task, error)
}

// Func adapts a function to the Planner interface.
type Func func(ctx context.Context, text, userID string) ([]*models.Task, error)

// Plan calls f.
func (f Func) Plan(ctx context.Context, text, userID string) ([]*models.Task, error) {
	return f(ctx, text, userID)
}

// plannedTask is the wire shape the LLM is asked to produce.
type plannedTask struct {
	ID        string         `json:"id"`
	Service   string         `json:"service"`
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params"`
	DependsOn []string       `json:"depends_on"`
}

// ParseTaskList extracts the JSON array of tasks from an LLM response.
// Surrounding prose and code fences are ignored. An unusable response is a
// *models.PlanningError.
func ParseTaskList(response string) ([]*models.Task, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		preview := response
		if utf8.RuneCountInString(preview) > 500 {
			preview = string([]rune(preview)[:500]) + "... (truncated)"
		}
		return nil, &models.PlanningError{Reason: fmt.Sprintf("no JSON array in planner response (got %d chars): %q", len(response), preview)}
	}

	var planned []plannedTask
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &planned); err != nil {
		return nil, &models.PlanningError{Reason: "decode planner response", Err: err}
	}
	return toTasks(planned)
}

func toTasks(planned []plannedTask) ([]*models.Task, error) {
	if len(planned) == 0 {
		return nil, &models.PlanningError{Reason: "planner returned no tasks"}
	}
	tasks := make([]*models.Task, len(planned))
	for i, p := range planned {
		if p.Service == "" || p.Operation == "" {
			return nil, &models.PlanningError{Reason: fmt.Sprintf("task %d has no service or operation", i+1)}
		}
		id := p.ID
		if id == "" {
			id = fmt.Sprintf("task%d", i+1)
		}
		params := make(models.Params, len(p.Params))
		for k, v := range p.Params {
			params[k] = models.ParseParam(v)
		}
		tasks[i] = &models.Task{
			ID:        id,
			Service:   p.Service,
			Operation: p.Operation,
			Params:    params,
			DependsOn: p.DependsOn,
			Status:    models.TaskStatusPending,
		}
	}
	return tasks, nil
}

// CheckCatalog rejects tasks naming operations the catalog does not have.
func CheckCatalog(tasks []*models.Task, c *services.Catalog) error {
	for _, t := range tasks {
		if _, _, ok := c.Lookup(t.Service, t.Operation); !ok {
			return &models.PlanningError{Reason: fmt.Sprintf("task %s calls unknown operation %s.%s", t.ID, t.Service, t.Operation)}
		}
	}
	return nil
}
