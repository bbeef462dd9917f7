package planner

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/logging"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/services"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// AnthropicConfig contains configuration for an AnthropicPlanner.
type AnthropicConfig struct {
	// Model is the Claude model to use. Empty selects Sonnet 4.
	Model string
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// MaxTokens bounds the planner response. Zero means 2048.
	MaxTokens int64
	// UseAWSBedrock routes calls through AWS Bedrock instead of the direct API.
	UseAWSBedrock bool
	AWSRegion     string
	AWSProfile    string
}

// AnthropicPlanner plans with a Claude model.
type AnthropicPlanner struct {
	catalog  *services.Catalog
	complete func(ctx context.Context, system, user string) (string, error)
}

// NewAnthropicPlanner creates a planner for the catalog.
func NewAnthropicPlanner(cfg AnthropicConfig, catalog *services.Catalog) (*AnthropicPlanner, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	client := anthropic.NewClient(opts...)

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = bedrockModel(model)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	p := &AnthropicPlanner{catalog: catalog}
	p.complete = func(ctx context.Context, system, user string) (string, error) {
		resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     model,
			MaxTokens: maxTokens,
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
		if err != nil {
			return "", err
		}
		logging.Debugf("[planner] anthropic usage: %d in / %d out", resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var b strings.Builder
		for _, block := range resp.Content {
			if text, ok := block.AsAny().(anthropic.TextBlock); ok {
				b.WriteString(text.Text)
			}
		}
		return b.String(), nil
	}
	return p, nil
}

// Plan implements Planner.
func (p *AnthropicPlanner) Plan(ctx context.Context, text, userID string) ([]*models.Task, error) {
	out, err := p.complete(ctx, BuildSystemPrompt(p.catalog), BuildUserPrompt(text, userID))
	if err != nil {
		return nil, &models.PlanningError{Reason: "planner call failed", Err: err}
	}
	logging.Debugf("[planner] response: %s", out)

	tasks, err := ParseTaskList(out)
	if err != nil {
		return nil, err
	}
	if err := CheckCatalog(tasks, p.catalog); err != nil {
		return nil, err
	}
	return tasks, nil
}

// bedrockModel converts an Anthropic model name to its Bedrock
// cross-region inference profile.
func bedrockModel(model anthropic.Model) anthropic.Model {
	profiles := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if p, ok := profiles[model]; ok {
		return anthropic.Model(p)
	}
	return model
}
