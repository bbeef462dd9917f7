package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/services"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

func TestParseTaskList(t *testing.T) {
	response := "Here is the plan:\n```json\n" + `[
  {"id": "t1", "service": "inventory", "operation": "list", "params": {}},
  {"id": "t2", "service": "recipe", "operation": "propose",
   "params": {"inventory": "t1.result", "count": 5}, "depends_on": ["t1"]}
]` + "\n```"

	tasks, err := ParseTaskList(response)
	if err != nil {
		t.Fatalf("ParseTaskList failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[1].DependsOn[0] != "t1" || tasks[1].Status != models.TaskStatusPending {
		t.Errorf("task 2 = %+v", tasks[1])
	}
	ref, ok := tasks[1].Params["inventory"].(models.Reference)
	if !ok || ref.TaskID != "t1" {
		t.Errorf("inventory param = %#v, want reference to t1", tasks[1].Params["inventory"])
	}
	if lit, ok := tasks[1].Params["count"].(models.Literal); !ok || lit.Value != 5.0 {
		t.Errorf("count param = %#v, want literal 5", tasks[1].Params["count"])
	}
}

func TestParseTaskList_Errors(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no array", "I cannot help with that."},
		{"bad json", "[{\"id\": }]"},
		{"empty", "[]"},
		{"no operation", `[{"id": "t1", "service": "inventory"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTaskList(tt.response)
			var pe *models.PlanningError
			if !errors.As(err, &pe) {
				t.Errorf("err = %v, want PlanningError", err)
			}
		})
	}
}

func TestParseTaskList_AssignsMissingIDs(t *testing.T) {
	tasks, err := ParseTaskList(`[{"service": "inventory", "operation": "list"}]`)
	if err != nil {
		t.Fatalf("ParseTaskList failed: %v", err)
	}
	if tasks[0].ID != "task1" {
		t.Errorf("ID = %q, want task1", tasks[0].ID)
	}
}

func TestCheckCatalog(t *testing.T) {
	c := services.DefaultCatalog()
	ok := []*models.Task{{ID: "t1", Service: "inventory", Operation: "list"}}
	if err := CheckCatalog(ok, c); err != nil {
		t.Errorf("CheckCatalog(valid) = %v", err)
	}
	bad := []*models.Task{{ID: "t1", Service: "inventory", Operation: "teleport"}}
	var pe *models.PlanningError
	if err := CheckCatalog(bad, c); !errors.As(err, &pe) {
		t.Errorf("CheckCatalog(unknown op) = %v, want PlanningError", err)
	}
}

func TestBuildSystemPrompt_ListsCatalog(t *testing.T) {
	prompt := BuildSystemPrompt(services.DefaultCatalog())
	for _, want := range []string{"inventory.find(name)", "taskId.result", "(use X)"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestAnthropicPlanner_Plan(t *testing.T) {
	var gotSystem, gotUser string
	p := &AnthropicPlanner{
		catalog: services.DefaultCatalog(),
		complete: func(ctx context.Context, system, user string) (string, error) {
			gotSystem, gotUser = system, user
			return `[{"id": "t1", "service": "inventory", "operation": "list"}]`, nil
		},
	}

	tasks, err := p.Plan(context.Background(), "What do I have?", "u1")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Operation != "list" {
		t.Errorf("tasks = %+v", tasks)
	}
	if !strings.Contains(gotSystem, "Available services") || !strings.Contains(gotUser, "What do I have?") {
		t.Errorf("prompts = %q / %q", gotSystem, gotUser)
	}

	p.complete = func(ctx context.Context, system, user string) (string, error) {
		return "", errors.New("overloaded")
	}
	var pe *models.PlanningError
	if _, err := p.Plan(context.Background(), "x", ""); !errors.As(err, &pe) {
		t.Errorf("err = %v, want PlanningError", err)
	}
}

// fakeModel is an llms.Model returning a canned choice.
type fakeModel struct {
	choice *llms.ContentChoice
	tools  []llms.Tool
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	m.tools = opts.Tools
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{m.choice}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.choice.Content, nil
}

func TestLangchainPlanner_ToolCall(t *testing.T) {
	model := &fakeModel{choice: &llms.ContentChoice{
		ToolCalls: []llms.ToolCall{{
			ID:   "call1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      "propose_tasks",
				Arguments: `{"tasks": [{"id": "a", "service": "inventory", "operation": "find", "params": {"name": "milk"}}]}`,
			},
		}},
	}}
	p := NewLangchainPlanner(model, services.DefaultCatalog())

	tasks, err := p.Plan(context.Background(), "find milk", "")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "a" {
		t.Errorf("tasks = %+v", tasks)
	}
	if len(model.tools) != 1 || model.tools[0].Function.Name != "propose_tasks" {
		t.Errorf("tools offered = %+v", model.tools)
	}
}

func TestLangchainPlanner_TextFallback(t *testing.T) {
	model := &fakeModel{choice: &llms.ContentChoice{
		Content: `[{"id": "t1", "service": "search", "operation": "recipes", "params": {"titles": ["curry"]}}]`,
	}}
	p := NewLangchainPlanner(model, services.DefaultCatalog())

	tasks, err := p.Plan(context.Background(), "search curry", "")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if tasks[0].Service != "search" {
		t.Errorf("tasks = %+v", tasks)
	}
}
