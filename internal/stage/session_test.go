package stage

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

func TestSession_AdvanceAndRollbackFromSoup(t *testing.T) {
	s := New("s1")
	if s.Stage != models.StageMain {
		t.Fatalf("initial stage = %s, want main", s.Stage)
	}

	if err := s.Advance(models.Candidate{Title: "A", Ingredients: []string{"x", "y"}}); err != nil {
		t.Fatalf("Advance(A) failed: %v", err)
	}
	if s.Stage != models.StageSide {
		t.Errorf("stage = %s, want side", s.Stage)
	}
	if !reflect.DeepEqual(s.UsedIngredients, []string{"x", "y"}) {
		t.Errorf("used = %v, want [x y]", s.UsedIngredients)
	}

	if err := s.Advance(models.Candidate{Title: "B", Ingredients: []string{"y", "z"}}); err != nil {
		t.Fatalf("Advance(B) failed: %v", err)
	}
	if s.Stage != models.StageSoup {
		t.Errorf("stage = %s, want soup", s.Stage)
	}
	if !reflect.DeepEqual(s.UsedIngredients, []string{"x", "y", "z"}) {
		t.Errorf("used = %v, want [x y z]", s.UsedIngredients)
	}

	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if s.Stage != models.StageSide {
		t.Errorf("stage = %s, want side", s.Stage)
	}
	if !reflect.DeepEqual(s.UsedIngredients, []string{"x", "y"}) {
		t.Errorf("used after rollback = %v, want [x y]", s.UsedIngredients)
	}
}

func TestSession_RollbackFromMainRejected(t *testing.T) {
	s := New("s1")
	before := s.Clone()

	err := s.Rollback()
	var ire *models.InvalidRollbackError
	if !errors.As(err, &ire) {
		t.Fatalf("Rollback() = %v, want InvalidRollbackError", err)
	}
	if ire.Stage != models.StageMain {
		t.Errorf("InvalidRollbackError.Stage = %s", ire.Stage)
	}
	if !reflect.DeepEqual(s, before) {
		t.Errorf("session changed after rejected rollback: %+v", s)
	}
}

// advance(main), rollback, advance(main) leaves the same used set as a single advance(main).
func TestSession_RoundTripHasNoLeakage(t *testing.T) {
	main := models.Candidate{Title: "Main", Ingredients: []string{"chicken", "onion"}, Category: "洋食"}

	single := New("a")
	if err := single.Advance(main); err != nil {
		t.Fatal(err)
	}

	trip := New("b")
	if err := trip.Advance(main); err != nil {
		t.Fatal(err)
	}
	trip.RecordProposals([]models.Candidate{{Title: "Salad"}, {Title: "Pickles"}})
	if err := trip.Rollback(); err != nil {
		t.Fatal(err)
	}
	if len(trip.UsedIngredients) != 0 {
		t.Errorf("used after rollback to main = %v, want empty", trip.UsedIngredients)
	}
	if _, ok := trip.Proposed[models.StageSide]; ok {
		t.Error("side proposal history should be cleared on rollback to main")
	}
	if err := trip.Advance(main); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(single.UsedIngredients, trip.UsedIngredients) {
		t.Errorf("round trip used = %v, single used = %v", trip.UsedIngredients, single.UsedIngredients)
	}
	if trip.Category != models.CategoryWestern {
		t.Errorf("category = %s, want western", trip.Category)
	}
}

func TestSession_RollbackFromSideClearsLaterCourses(t *testing.T) {
	s := New("s1")
	s.Advance(models.Candidate{Title: "A", Ingredients: []string{"x"}, Category: "中華"})
	s.RecordProposals([]models.Candidate{{Title: "S1"}})
	s.Advance(models.Candidate{Title: "B", Ingredients: []string{"y"}})
	s.RecordProposals([]models.Candidate{{Title: "Soup1"}})

	if err := s.Rollback(); err != nil { // soup -> side
		t.Fatal(err)
	}
	if _, ok := s.Proposed[models.StageSoup]; ok {
		t.Error("soup history should be cleared on rollback to side")
	}
	if got := s.Proposed[models.StageSide]; !reflect.DeepEqual(got, []string{"S1"}) {
		t.Errorf("side history = %v, want retained [S1]", got)
	}
	if s.Category != models.CategoryChinese {
		t.Errorf("category = %s, want chinese retained", s.Category)
	}

	if err := s.Rollback(); err != nil { // side -> main
		t.Fatal(err)
	}
	if s.Stage != models.StageMain {
		t.Errorf("stage = %s, want main", s.Stage)
	}
	if _, ok := s.Selections[models.StageSide]; ok {
		t.Error("side selection should be cleared")
	}
	if len(s.Menu()) != 0 {
		t.Errorf("Menu() = %v, want empty at main", s.Menu())
	}
	if s.Category != models.CategoryJapanese {
		t.Errorf("category = %s, want reset to japanese", s.Category)
	}
}

func TestSession_CompletedRollsBackToSoup(t *testing.T) {
	s := New("s1")
	s.Advance(models.Candidate{Title: "A", Ingredients: []string{"x"}})
	s.Advance(models.Candidate{Title: "B", Ingredients: []string{"y"}})
	s.Advance(models.Candidate{Title: "C", Ingredients: []string{"z"}})

	if s.Stage != models.StageCompleted {
		t.Fatalf("stage = %s, want completed", s.Stage)
	}
	if len(s.Menu()) != 3 {
		t.Errorf("Menu() has %d courses, want 3", len(s.Menu()))
	}
	if err := s.Advance(models.Candidate{Title: "D"}); !errors.Is(err, ErrMenuComplete) {
		t.Errorf("Advance on completed = %v, want ErrMenuComplete", err)
	}

	if err := s.Rollback(); err != nil {
		t.Fatal(err)
	}
	if s.Stage != models.StageSoup {
		t.Errorf("stage = %s, want soup", s.Stage)
	}
	if !reflect.DeepEqual(s.UsedIngredients, []string{"x", "y"}) {
		t.Errorf("used = %v, want [x y]", s.UsedIngredients)
	}
}

func TestSession_CandidateSelection(t *testing.T) {
	s := New("s1")
	s.RecordProposals([]models.Candidate{{Title: "A"}, {Title: "B"}})
	s.RecordProposals([]models.Candidate{{Title: "B"}, {Title: "C"}})

	if got := s.Proposed[models.StageMain]; !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("history = %v, want [A B C]", got)
	}
	c, err := s.Candidate(2)
	if err != nil || c.Title != "C" {
		t.Errorf("Candidate(2) = %v, %v; want C", c, err)
	}
	if _, err := s.Candidate(3); !errors.Is(err, models.ErrInvalidChoice) {
		t.Errorf("Candidate(3) err = %v, want ErrInvalidChoice", err)
	}
}

func TestSession_Requests(t *testing.T) {
	s := New("s1")
	if got := s.NextRequest(); !strings.Contains(got, "main dishes") {
		t.Errorf("main request = %q", got)
	}

	s.Advance(models.Candidate{Title: "Hamburg steak", Ingredients: []string{"beef", "onion"}, Category: "洋食"})
	s.RecordProposals([]models.Candidate{{Title: "Coleslaw"}})

	req := s.MoreRequest()
	for _, want := range []string{"5 more side dishes", "Hamburg steak", "beef, onion", "Coleslaw"} {
		if !strings.Contains(req, want) {
			t.Errorf("side request %q missing %q", req, want)
		}
	}

	s.Advance(models.Candidate{Title: "Coleslaw", Ingredients: []string{"cabbage"}})
	req = s.NextRequest()
	for _, want := range []string{"consommé", "Hamburg steak and Coleslaw", "beef, onion, cabbage"} {
		if !strings.Contains(req, want) {
			t.Errorf("soup request %q missing %q", req, want)
		}
	}

	s.Advance(models.Candidate{Title: "Potage"})
	if s.NextRequest() != "" {
		t.Errorf("completed session should have no next request")
	}
}

func TestSession_JSONRoundTrip(t *testing.T) {
	s := New("s1")
	s.Advance(models.Candidate{Title: "A", Ingredients: []string{"x"}})
	s.RecordProposals([]models.Candidate{{Title: "B"}})

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back Session
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back.Stage != models.StageSide || back.Selections[models.StageMain].Title != "A" {
		t.Errorf("decoded session = %+v", back)
	}
}
