package planner

import (
	"fmt"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/services"
)

const systemPrompt = `You plan backend calls for a cooking assistant. Break the user's request into tasks that call the services below.

Available services:
%s
Return ONLY a JSON array with this exact structure (no other text):
[
  {
    "id": "task1",
    "service": "inventory",
    "operation": "list",
    "params": {},
    "depends_on": []
  }
]

Rules:
- ids are unique; depends_on lists ids of tasks that must finish first
- a parameter may use the result of an earlier task with the string "taskId.result" or "taskId.result.field"; that task must be in depends_on
- tasks without dependencies run in parallel, so only add a dependency when a task needs another's result
- if the request contains "(use X)", X is the user's answer to an earlier question: pass it as the matching parameter
- never invent services or operations that are not listed`

// BuildSystemPrompt renders the planning instructions for a catalog.
func BuildSystemPrompt(c *services.Catalog) string {
	return fmt.Sprintf(systemPrompt, c.Describe())
}

// BuildUserPrompt wraps the request text.
func BuildUserPrompt(text, userID string) string {
	if userID == "" {
		return fmt.Sprintf("User request:\n%s", text)
	}
	return fmt.Sprintf("User %s request:\n%s", userID, text)
}
