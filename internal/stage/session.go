// Package stage implements the main → side → soup selection state machine.
package stage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// ProposalCount is how many candidates are requested per round.
const ProposalCount = 5

// ErrMenuComplete is returned when advancing a session that already has every course.
var ErrMenuComplete = errors.New("menu already complete")

// Session is the per-conversation menu-building state.
type Session struct {
	ID     string       `json:"id"`
	UserID string       `json:"user_id,omitempty"`
	Stage  models.Stage `json:"stage"`
	// Selections holds the chosen recipe per course. Only courses before
	// Stage are part of the menu; later entries are stale until overwritten.
	Selections map[models.Stage]*models.Candidate `json:"selections"`
	// UsedIngredients is the ordered union of ingredients of every selection
	// before the current stage.
	UsedIngredients []string            `json:"used_ingredients"`
	Category        models.MenuCategory `json:"category"`
	// Proposed is the title history per course, used to avoid repeats.
	Proposed map[models.Stage][]string `json:"proposed"`
	// Candidates is the most recent proposal for the current stage.
	Candidates []models.Candidate `json:"candidates,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// New creates a session at the Main stage.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Stage:      models.StageMain,
		Selections: make(map[models.Stage]*models.Candidate),
		Category:   models.CategoryJapanese,
		Proposed:   make(map[models.Stage][]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Advance records item as the current course's selection, adds its
// ingredients to the used set and moves to the next stage. Leaving Main
// also fixes the menu category from the item's declared type.
func (s *Session) Advance(item models.Candidate) error {
	if s.Stage == models.StageCompleted {
		return fmt.Errorf("session %s: %w", s.ID, ErrMenuComplete)
	}
	next, _ := s.Stage.Next()

	sel := item
	sel.Ingredients = append([]string(nil), item.Ingredients...)
	s.ensureMaps()
	s.Selections[s.Stage] = &sel
	s.UsedIngredients = union(s.UsedIngredients, sel.Ingredients)

	if s.Stage == models.StageMain {
		s.Category = models.ClassifyCategory(item.Category)
	}
	s.Stage = next
	s.Candidates = nil
	s.touch()
	return nil
}

// Rollback moves exactly one stage back. From Main it returns an
// InvalidRollbackError and leaves the session unchanged.
func (s *Session) Rollback() error {
	prev, ok := s.Stage.Prev()
	if !ok {
		return &models.InvalidRollbackError{Stage: s.Stage}
	}
	s.ensureMaps()

	switch prev {
	case models.StageMain:
		delete(s.Selections, models.StageSide)
		delete(s.Selections, models.StageSoup)
		delete(s.Proposed, models.StageSide)
		delete(s.Proposed, models.StageSoup)
		s.Category = models.CategoryJapanese
	case models.StageSide:
		delete(s.Selections, models.StageSoup)
		delete(s.Proposed, models.StageSoup)
	case models.StageSoup:
		delete(s.Selections, models.StageSoup)
	}

	s.Stage = prev
	s.UsedIngredients = s.deriveUsed()
	s.Candidates = nil
	s.touch()
	return nil
}

// deriveUsed recomputes the used set from the selections of every stage
// before the current one.
func (s *Session) deriveUsed() []string {
	var used []string
	for _, st := range []models.Stage{models.StageMain, models.StageSide, models.StageSoup} {
		if st == s.Stage {
			break
		}
		if sel := s.Selections[st]; sel != nil {
			used = union(used, sel.Ingredients)
		}
	}
	return used
}

// RecordProposals stores the latest candidates for the current stage and
// appends their titles to the stage's history.
func (s *Session) RecordProposals(cands []models.Candidate) {
	s.ensureMaps()
	s.Candidates = append([]models.Candidate(nil), cands...)
	hist := s.Proposed[s.Stage]
	for _, c := range cands {
		if c.Title != "" && !contains(hist, c.Title) {
			hist = append(hist, c.Title)
		}
	}
	s.Proposed[s.Stage] = hist
	s.touch()
}

// Candidate returns the 1-based candidate from the latest proposal.
func (s *Session) Candidate(index int) (models.Candidate, error) {
	if index < 1 || index > len(s.Candidates) {
		return models.Candidate{}, fmt.Errorf("%w: %d (have %d candidates)", models.ErrInvalidChoice, index, len(s.Candidates))
	}
	return s.Candidates[index-1], nil
}

// Menu returns the selections that are part of the menu so far, in course order.
func (s *Session) Menu() []models.Candidate {
	var out []models.Candidate
	for _, st := range []models.Stage{models.StageMain, models.StageSide, models.StageSoup} {
		if st == s.Stage {
			break
		}
		if sel := s.Selections[st]; sel != nil {
			out = append(out, *sel)
		}
	}
	return out
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Selections = make(map[models.Stage]*models.Candidate, len(s.Selections))
	for k, v := range s.Selections {
		if v != nil {
			sel := *v
			sel.Ingredients = append([]string(nil), v.Ingredients...)
			c.Selections[k] = &sel
		}
	}
	c.Proposed = make(map[models.Stage][]string, len(s.Proposed))
	for k, v := range s.Proposed {
		c.Proposed[k] = append([]string(nil), v...)
	}
	c.UsedIngredients = append([]string(nil), s.UsedIngredients...)
	c.Candidates = append([]models.Candidate(nil), s.Candidates...)
	return &c
}

// NextRequest builds the planning request for the current stage.
func (s *Session) NextRequest() string {
	return s.request(false)
}

// MoreRequest builds the planning request for another round of the current stage.
func (s *Session) MoreRequest() string {
	return s.request(true)
}

func (s *Session) request(more bool) string {
	var b strings.Builder
	count := fmt.Sprintf("%d", ProposalCount)
	if more {
		count += " more"
	}

	switch s.Stage {
	case models.StageMain:
		fmt.Fprintf(&b, "Propose %s main dishes using ingredients from my inventory.", count)
	case models.StageSide:
		fmt.Fprintf(&b, "Propose %s side dishes", count)
		if main := s.Selections[models.StageMain]; main != nil {
			fmt.Fprintf(&b, " to go with %s", main.Title)
		}
		b.WriteString(".")
	case models.StageSoup:
		fmt.Fprintf(&b, "Propose %s %s", count, soupStyle(s.Category))
		var titles []string
		for _, sel := range s.Menu() {
			titles = append(titles, sel.Title)
		}
		if len(titles) > 0 {
			fmt.Fprintf(&b, " to complete a menu of %s", strings.Join(titles, " and "))
		}
		b.WriteString(".")
	default:
		return ""
	}

	if len(s.UsedIngredients) > 0 {
		fmt.Fprintf(&b, " Exclude these already used ingredients: %s.", strings.Join(s.UsedIngredients, ", "))
	}
	if hist := s.Proposed[s.Stage]; len(hist) > 0 {
		fmt.Fprintf(&b, " Do not propose these again: %s.", strings.Join(hist, ", "))
	}
	return b.String()
}

func soupStyle(c models.MenuCategory) string {
	switch c {
	case models.CategoryWestern:
		return "western soups (consommé or potage)"
	case models.CategoryChinese:
		return "Chinese-style soups"
	default:
		return "miso soups or Japanese clear soups"
	}
}

func (s *Session) ensureMaps() {
	if s.Selections == nil {
		s.Selections = make(map[models.Stage]*models.Candidate)
	}
	if s.Proposed == nil {
		s.Proposed = make(map[models.Stage][]string)
	}
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now()
}

// union appends items not already present, preserving first-seen order.
func union(set, items []string) []string {
	out := append([]string(nil), set...)
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" && !contains(out, it) {
			out = append(out, it)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
