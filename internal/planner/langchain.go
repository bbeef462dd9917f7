package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/logging"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/services"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// proposeTasksTool is offered to the model so the plan comes back as
// structured function arguments.
var proposeTasksTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "propose_tasks",
		Description: "Submit the task list that fulfils the user's request.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tasks": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":         map[string]any{"type": "string"},
							"service":    map[string]any{"type": "string"},
							"operation":  map[string]any{"type": "string"},
							"params":     map[string]any{"type": "object"},
							"depends_on": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						},
						"required": []string{"id", "service", "operation"},
					},
				},
			},
			"required": []string{"tasks"},
		},
	},
}

// OpenAIConfig configures an OpenAI-compatible model.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewOpenAIModel builds a langchaingo model for any OpenAI-compatible endpoint.
func NewOpenAIModel(cfg OpenAIConfig) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return llm, nil
}

// LangchainPlanner plans with any langchaingo model that supports tool calls.
type LangchainPlanner struct {
	model   llms.Model
	catalog *services.Catalog
}

// NewLangchainPlanner creates a planner over model.
func NewLangchainPlanner(model llms.Model, catalog *services.Catalog) *LangchainPlanner {
	return &LangchainPlanner{model: model, catalog: catalog}
}

// Plan implements Planner. A propose_tasks call is preferred; a JSON array
// in the plain text reply is accepted too.
func (p *LangchainPlanner) Plan(ctx context.Context, text, userID string) ([]*models.Task, error) {
	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(BuildSystemPrompt(p.catalog))}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(BuildUserPrompt(text, userID))}},
	}

	resp, err := p.model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{proposeTasksTool}))
	if err != nil {
		return nil, &models.PlanningError{Reason: "planner call failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &models.PlanningError{Reason: "planner returned no choices"}
	}
	choice := resp.Choices[0]

	var tasks []*models.Task
	if args, ok := proposeTasksArgs(choice); ok {
		logging.Debugf("[planner] propose_tasks: %s", args)
		var payload struct {
			Tasks []plannedTask `json:"tasks"`
		}
		if err := json.Unmarshal([]byte(args), &payload); err != nil {
			return nil, &models.PlanningError{Reason: "decode propose_tasks arguments", Err: err}
		}
		tasks, err = toTasks(payload.Tasks)
	} else {
		logging.Debugf("[planner] response: %s", choice.Content)
		tasks, err = ParseTaskList(choice.Content)
	}
	if err != nil {
		return nil, err
	}
	if err := CheckCatalog(tasks, p.catalog); err != nil {
		return nil, err
	}
	return tasks, nil
}

func proposeTasksArgs(choice *llms.ContentChoice) (string, bool) {
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == proposeTasksTool.Function.Name {
			return tc.FunctionCall.Arguments, true
		}
	}
	return "", false
}
