package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// Formatter renders chain results as user-facing text and recognizes
// candidate proposals among them.
type Formatter struct {
	// CandidateService and CandidateOperation name the operation whose
	// result is a list of course candidates.
	CandidateService   string
	CandidateOperation string
	// MaxResultChars truncates rendered results, counted in characters.
	MaxResultChars int
}

// NewFormatter returns a formatter for the default recipe.propose operation.
func NewFormatter() *Formatter {
	return &Formatter{CandidateService: "recipe", CandidateOperation: "propose", MaxResultChars: 600}
}

// Final renders the results of a completed chain in task order.
func (f *Formatter) Final(tasks []*models.Task, results map[string]any) string {
	var b strings.Builder
	for _, t := range tasks {
		v, ok := results[t.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s.%s: %s\n", t.Service, t.Operation, f.render(v))
	}
	if b.Len() == 0 {
		return "Done."
	}
	return strings.TrimRight(b.String(), "\n")
}

func (f *Formatter) render(v any) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case nil:
		s = "ok"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprint(val)
		} else {
			s = string(data)
		}
	}
	if f.MaxResultChars > 0 && utf8.RuneCountInString(s) > f.MaxResultChars {
		s = string([]rune(s)[:f.MaxResultChars]) + "..."
	}
	return s
}

// Question renders an ambiguity with numbered options.
func (f *Formatter) Question(a models.Ambiguity) string {
	var b strings.Builder
	b.WriteString(a.Question)
	for i, opt := range a.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt.Label)
	}
	b.WriteString("\n(Answer with a number or a name, \"proceed\" to continue as is, or \"cancel\".)")
	return b.String()
}

// StagePrompt renders the candidates offered for a course.
func (f *Formatter) StagePrompt(st models.Stage, cands []models.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Choose a %s:", st.Label())
	for i, c := range cands {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c.Title)
		if len(c.Ingredients) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(c.Ingredients, ", "))
		}
	}
	b.WriteString("\nReply with a number, 0 for more options")
	if st != models.StageMain {
		b.WriteString(", or -1 to go back")
	}
	b.WriteString(".")
	return b.String()
}

// MenuSummary renders a completed menu.
func (f *Formatter) MenuSummary(m *models.Menu) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s menu is ready:", m.Category)
	stages := []models.Stage{models.StageMain, models.StageSide, models.StageSoup}
	for i, c := range m.Courses {
		label := "course"
		if i < len(stages) {
			label = stages[i].Label()
		}
		fmt.Fprintf(&b, "\n- %s: %s", label, c.Title)
	}
	return b.String()
}

// Candidates returns the course candidates produced by the chain, if any
// task called the candidate operation.
func (f *Formatter) Candidates(tasks []*models.Task, results map[string]any) ([]models.Candidate, bool) {
	var out []models.Candidate
	found := false
	for _, t := range tasks {
		if t.Service != f.CandidateService || t.Operation != f.CandidateOperation {
			continue
		}
		v, ok := results[t.ID]
		if !ok {
			continue
		}
		found = true
		out = append(out, extractCandidates(v)...)
	}
	return out, found && len(out) > 0
}

// extractCandidates accepts a list of candidates or an object holding one
// under "candidates" or "recipes".
func extractCandidates(v any) []models.Candidate {
	switch val := v.(type) {
	case []any:
		var out []models.Candidate
		for _, item := range val {
			if c, ok := toCandidate(item); ok {
				out = append(out, c)
			}
		}
		return out
	case map[string]any:
		for _, k := range []string{"candidates", "recipes"} {
			if list, ok := val[k]; ok {
				return extractCandidates(list)
			}
		}
		if c, ok := toCandidate(val); ok {
			return []models.Candidate{c}
		}
	case []models.Candidate:
		return val
	}
	return nil
}

func toCandidate(v any) (models.Candidate, bool) {
	switch val := v.(type) {
	case string:
		return models.Candidate{Title: val}, val != ""
	case models.Candidate:
		return val, val.Title != ""
	case map[string]any:
		c := models.Candidate{
			Title:    firstString(val, "title", "name"),
			Category: firstString(val, "category", "type"),
			URL:      firstString(val, "url"),
		}
		if ings, ok := val["ingredients"].([]any); ok {
			for _, ing := range ings {
				if s, ok := ing.(string); ok {
					c.Ingredients = append(c.Ingredients, s)
				}
			}
		}
		return c, c.Title != ""
	}
	return models.Candidate{}, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
