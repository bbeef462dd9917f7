package models

import (
	"strings"
	"time"
)

// Stage is one course of the menu-building conversation.
type Stage string

const (
	// StageMain selects the main dish.
	StageMain Stage = "main"
	// StageSide selects the side dish.
	StageSide Stage = "side"
	// StageSoup selects the soup.
	StageSoup Stage = "soup"
	// StageCompleted means every course has a selection.
	StageCompleted Stage = "completed"
)

// Valid returns true if the stage is a known value.
func (s Stage) Valid() bool {
	switch s {
	case StageMain, StageSide, StageSoup, StageCompleted:
		return true
	default:
		return false
	}
}

// Next returns the stage that follows s. Completed has no successor.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageMain:
		return StageSide, true
	case StageSide:
		return StageSoup, true
	case StageSoup:
		return StageCompleted, true
	default:
		return s, false
	}
}

// Prev returns the stage one step back from s. Main has no predecessor.
func (s Stage) Prev() (Stage, bool) {
	switch s {
	case StageSide:
		return StageMain, true
	case StageSoup:
		return StageSide, true
	case StageCompleted:
		return StageSoup, true
	default:
		return s, false
	}
}

// Label returns a display name for the course.
func (s Stage) Label() string {
	switch s {
	case StageMain:
		return "main dish"
	case StageSide:
		return "side dish"
	case StageSoup:
		return "soup"
	default:
		return string(s)
	}
}

// MenuCategory is the cuisine of a menu, chosen from the main dish.
type MenuCategory string

const (
	CategoryJapanese MenuCategory = "japanese"
	CategoryWestern  MenuCategory = "western"
	CategoryChinese  MenuCategory = "chinese"
)

// ClassifyCategory maps a recipe's declared type to a menu category.
// Unknown or empty values are Japanese.
func ClassifyCategory(declared string) MenuCategory {
	d := strings.ToLower(strings.TrimSpace(declared))
	switch {
	case d == "":
		return CategoryJapanese
	case strings.Contains(d, "western"), strings.Contains(d, "洋"),
		strings.Contains(d, "italian"), strings.Contains(d, "french"),
		strings.Contains(d, "イタリアン"), strings.Contains(d, "フレンチ"):
		return CategoryWestern
	case strings.Contains(d, "chinese"), strings.Contains(d, "中華"), strings.Contains(d, "中国"):
		return CategoryChinese
	default:
		return CategoryJapanese
	}
}

// Candidate is one recipe offered for a course.
type Candidate struct {
	Title       string   `json:"title"`
	Ingredients []string `json:"ingredients,omitempty"`
	Category    string   `json:"category,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// Menu is a completed set of courses.
type Menu struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id,omitempty"`
	Category  MenuCategory `json:"category"`
	Courses   []Candidate  `json:"courses"`
	CreatedAt time.Time    `json:"created_at"`
}
