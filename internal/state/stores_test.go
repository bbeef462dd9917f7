package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/confirm"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/executor"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/stage"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// confirmationStores returns the SQLite and in-memory implementations
// sharing one clock.
func confirmationStores(t *testing.T, ttl time.Duration, clock *fakeClock) map[string]interface {
	confirm.Store
	ExpiredPurger
} {
	t.Helper()
	sqlStore := setupTestDB(t).Confirmations(ttl)
	sqlStore.SetClock(clock.Now)
	memStore := NewMemoryConfirmationStore(ttl, 0)
	memStore.SetClock(clock.Now)
	t.Cleanup(func() { memStore.Close() })
	return map[string]interface {
		confirm.Store
		ExpiredPurger
	}{"sqlite": sqlStore, "memory": memStore}
}

func pending(ref, sessionID string, pausedAt time.Time) *confirm.PendingContext {
	return &confirm.PendingContext{
		Ref:             ref,
		TaskID:          "t1",
		ChainID:         "c1",
		SessionID:       sessionID,
		OriginalRequest: "Suggest dinner with chicken",
		Ambiguity: models.Ambiguity{
			Question: "Which chicken?",
			Options:  []models.Option{{Label: "thigh"}, {Label: "breast"}},
		},
		PausedAt: pausedAt,
	}
}

func TestConfirmationStore_LoadIsAtMostOnce(t *testing.T) {
	clock := newClock()
	for name, store := range confirmationStores(t, time.Hour, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, pending("c1:t1", "s1", clock.Now())); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			p, err := store.Load(ctx, "c1:t1")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if p.TaskID != "t1" || p.Ambiguity.Question != "Which chicken?" || len(p.Ambiguity.Options) != 2 {
				t.Errorf("loaded context = %+v", p)
			}
			if !p.PausedAt.Equal(clock.Now()) {
				t.Errorf("PausedAt = %v, want %v", p.PausedAt, clock.Now())
			}

			_, err = store.Load(ctx, "c1:t1")
			var exp *models.ExpiredConfirmationError
			if !errors.As(err, &exp) || exp.Ref != "c1:t1" {
				t.Errorf("second Load err = %v, want ExpiredConfirmationError", err)
			}
		})
	}
}

func TestConfirmationStore_PeekLeavesContext(t *testing.T) {
	clock := newClock()
	for name, store := range confirmationStores(t, time.Hour, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, pending("c1:t1", "s1", clock.Now())); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			for i := 0; i < 2; i++ {
				p, err := store.Peek(ctx, "c1:t1")
				if err != nil || p.SessionID != "s1" {
					t.Fatalf("Peek #%d = %+v, %v", i+1, p, err)
				}
			}
			if _, err := store.Load(ctx, "c1:t1"); err != nil {
				t.Fatalf("Load after Peek failed: %v", err)
			}

			_, err := store.Peek(ctx, "c1:t1")
			var exp *models.ExpiredConfirmationError
			if !errors.As(err, &exp) {
				t.Errorf("Peek after Load err = %v, want ExpiredConfirmationError", err)
			}
		})
	}
}

// A context answered after its TTL has elapsed is rejected.
func TestConfirmationStore_ExpiresAfterTTL(t *testing.T) {
	ttl := 10 * time.Minute
	clock := newClock()
	for name, store := range confirmationStores(t, ttl, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ref := "c-" + name + ":t1"
			if err := store.Save(ctx, pending(ref, "s-"+name, clock.Now())); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			saved := clock.t
			clock.Advance(ttl + time.Second)
			defer func() { clock.t = saved }()

			if _, ok, _ := store.Lookup(ctx, "s-"+name); ok {
				t.Error("Lookup should not report an expired context")
			}
			_, err := store.Load(ctx, ref)
			var exp *models.ExpiredConfirmationError
			if !errors.As(err, &exp) {
				t.Errorf("Load err = %v, want ExpiredConfirmationError", err)
			}
		})
	}
}

func TestConfirmationStore_SaveSupersedesSessionContext(t *testing.T) {
	clock := newClock()
	for name, store := range confirmationStores(t, time.Hour, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.Save(ctx, pending("old:t1", "s1", clock.Now()))
			store.Save(ctx, pending("other:t1", "s2", clock.Now()))
			if err := store.Save(ctx, pending("new:t1", "s1", clock.Now())); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			ref, ok, err := store.Lookup(ctx, "s1")
			if err != nil || !ok || ref != "new:t1" {
				t.Errorf("Lookup(s1) = %q, %v, %v; want new:t1", ref, ok, err)
			}
			if _, err := store.Load(ctx, "old:t1"); err == nil {
				t.Error("superseded context should be gone")
			}
			if _, ok, _ := store.Lookup(ctx, "s2"); !ok {
				t.Error("other session's context must survive")
			}
		})
	}
}

func TestConfirmationStore_PurgeExpired(t *testing.T) {
	clock := newClock()
	for name, store := range confirmationStores(t, time.Minute, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.Save(ctx, pending("a:t1", "sa", clock.Now().Add(-time.Hour)))
			store.Save(ctx, pending("b:t1", "sb", clock.Now()))

			n, err := store.PurgeExpired(ctx)
			if err != nil {
				t.Fatalf("PurgeExpired failed: %v", err)
			}
			if n != 1 {
				t.Errorf("purged %d, want 1", n)
			}
			if _, ok, _ := store.Lookup(ctx, "sb"); !ok {
				t.Error("live context was purged")
			}
		})
	}
}

// A coordinator backed by SQLite rejects answers after the TTL.
func TestCoordinator_ExpiredAnswerWithSQLite(t *testing.T) {
	ttl := 5 * time.Minute
	clock := newClock()
	store := setupTestDB(t).Confirmations(ttl)
	store.SetClock(clock.Now)
	reg := chain.NewRegistry()
	c := confirm.NewCoordinator(store, reg, confirm.WithClock(clock.Now))

	m := chain.NewManager("s1", "u1", "Suggest dinner with chicken", []*models.Task{
		{ID: "t1", Service: "inventory", Operation: "find"},
	})
	if err := reg.Begin(m); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	p, err := c.Suspend(context.Background(), m, &executor.Interrupt{
		TaskID:    "t1",
		Ambiguity: models.Ambiguity{Question: "Which chicken?", Options: []models.Option{{Label: "thigh"}}},
	})
	if err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}

	clock.Advance(ttl + time.Second)
	_, err = c.Answer(context.Background(), p.Ref, "1")
	var exp *models.ExpiredConfirmationError
	if !errors.As(err, &exp) {
		t.Fatalf("Answer err = %v, want ExpiredConfirmationError", err)
	}
}

func TestSessionStores_SaveLoadDelete(t *testing.T) {
	clock := newClock()
	sqlStore := setupTestDB(t).Sessions(time.Hour)
	sqlStore.now = clock.Now
	memStore := NewMemorySessionStore(time.Hour, 0)
	memStore.SetClock(clock.Now)
	defer memStore.Close()

	for name, store := range map[string]stage.Store{"sqlite": sqlStore, "memory": memStore} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := stage.New("sess-" + name)
			sess.CreatedAt, sess.UpdatedAt = clock.Now(), clock.Now()
			if err := sess.Advance(models.Candidate{Title: "Ginger pork", Ingredients: []string{"pork", "ginger"}}); err != nil {
				t.Fatalf("Advance failed: %v", err)
			}
			if err := store.Save(ctx, sess); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := store.Load(ctx, sess.ID)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got.Stage != models.StageSide {
				t.Errorf("Stage = %s, want side", got.Stage)
			}
			if sel := got.Selections[models.StageMain]; sel == nil || sel.Title != "Ginger pork" {
				t.Errorf("main selection = %+v", sel)
			}
			if len(got.UsedIngredients) != 2 {
				t.Errorf("UsedIngredients = %v", got.UsedIngredients)
			}

			if err := store.Delete(ctx, sess.ID); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			_, err = store.Load(ctx, sess.ID)
			var nf *models.SessionNotFoundError
			if !errors.As(err, &nf) {
				t.Errorf("Load after delete err = %v, want SessionNotFoundError", err)
			}
		})
	}
}

func TestSessionStore_ExpiresAndPurges(t *testing.T) {
	clock := newClock()
	db := setupTestDB(t)
	store := db.Sessions(time.Hour)
	store.now = clock.Now
	ctx := context.Background()

	old := stage.New("old")
	old.UpdatedAt = clock.Now().Add(-2 * time.Hour)
	fresh := stage.New("fresh")
	fresh.UpdatedAt = clock.Now()
	store.Save(ctx, old)
	store.Save(ctx, fresh)

	var nf *models.SessionNotFoundError
	if _, err := store.Load(ctx, "old"); !errors.As(err, &nf) {
		t.Errorf("Load(old) err = %v, want SessionNotFoundError", err)
	}
	n, err := store.Purge(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	if _, err := store.Load(ctx, "fresh"); err != nil {
		t.Errorf("Load(fresh) failed: %v", err)
	}
}

func TestMenus_SaveAndList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	for i, title := range []string{"Ginger pork", "Mapo tofu"} {
		m := &models.Menu{
			SessionID: "s1",
			UserID:    "u1",
			Category:  models.CategoryJapanese,
			Courses:   []models.Candidate{{Title: title}, {Title: "Salad"}, {Title: "Miso soup"}},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := db.SaveMenu(ctx, m); err != nil {
			t.Fatalf("SaveMenu failed: %v", err)
		}
		if m.ID == "" {
			t.Error("SaveMenu should assign an ID")
		}
	}
	db.SaveMenu(ctx, &models.Menu{SessionID: "s2", UserID: "u2", Category: models.CategoryWestern, CreatedAt: base})

	menus, err := db.ListMenus(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListMenus failed: %v", err)
	}
	if len(menus) != 2 {
		t.Fatalf("got %d menus, want 2", len(menus))
	}
	if menus[0].Courses[0].Title != "Mapo tofu" {
		t.Errorf("newest menu first: got %q", menus[0].Courses[0].Title)
	}

	limited, _ := db.ListMenus(ctx, "u1", 1)
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d menus", len(limited))
	}
}

func TestTaskLog_RecordsChainEvents(t *testing.T) {
	db := setupTestDB(t)
	m := chain.NewManager("s1", "u1", "req", []*models.Task{{ID: "t1", Service: "inventory", Operation: "list"}})
	m.Subscribe(db.TaskLog())

	m.MarkRunning("t1")
	m.MarkCompleted("t1", []string{"milk"})
	m.NotifyDone()

	events, err := db.ListTaskEvents(context.Background(), m.ID())
	if err != nil {
		t.Fatalf("ListTaskEvents failed: %v", err)
	}
	want := []chain.EventType{chain.EventTaskStarted, chain.EventTaskCompleted, chain.EventChainDone}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("event %d = %s, want %s", i, e.Type, want[i])
		}
	}
	if events[0].Service != "inventory" || events[0].TaskID != "t1" {
		t.Errorf("started event = %+v", events[0])
	}
}
