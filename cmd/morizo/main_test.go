package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/config"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/executor"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/gateway"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/orchestrator"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/planner"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/services"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

func testRouter(t *testing.T, opts ...orchestrator.Option) *gateway.Router {
	t.Helper()
	registry := services.NewRegistry()
	services.NewInventory(services.Item{ID: "m1", Name: "milk", Quantity: 1}).Register(registry)

	p := planner.Func(func(ctx context.Context, text, userID string) ([]*models.Task, error) {
		return []*models.Task{{ID: "t1", Service: "inventory", Operation: "list"}}, nil
	})
	return gateway.NewRouter(orchestrator.New(p, executor.New(registry), opts...))
}

func TestChatLoop(t *testing.T) {
	in := strings.NewReader("\nwhat do I have?\n/quit\nnever read\n")
	var out bytes.Buffer

	loop := &chatLoop{router: testRouter(t), sessionID: "s1", userID: "u1", prompt: true}
	if err := loop.run(context.Background(), in, &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Session s1") {
		t.Errorf("missing session banner in %q", got)
	}
	if !strings.Contains(got, "inventory.list:") || !strings.Contains(got, "milk") {
		t.Errorf("missing reply in %q", got)
	}
	if strings.Count(got, "morizo> ") != 1 {
		t.Errorf("expected exactly one reply, got %q", got)
	}
	if !strings.Contains(got, "you> ") {
		t.Errorf("missing prompt in %q", got)
	}
}

func TestChatLoop_PipedInputHasNoPrompt(t *testing.T) {
	var out bytes.Buffer
	loop := &chatLoop{router: testRouter(t), sessionID: "s1"}
	if err := loop.run(context.Background(), strings.NewReader("list\n"), &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}
	if strings.Contains(out.String(), "you> ") {
		t.Errorf("unexpected prompt in %q", out.String())
	}
}

func TestChatLoop_PrintsProgress(t *testing.T) {
	progress := chain.NewEventEmitter(16)
	r := testRouter(t, orchestrator.WithObserver(progress))

	var out bytes.Buffer
	loop := &chatLoop{router: r, progress: progress.Events(), sessionID: "s1"}
	if err := loop.run(context.Background(), strings.NewReader("list\n"), &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}

	got := out.String()
	note := strings.Index(got, "inventory.list done")
	reply := strings.Index(got, "morizo> ")
	if note < 0 || reply < 0 || note > reply {
		t.Errorf("progress should precede the reply, got %q", got)
	}
}

func TestChatLoop_EndOfInput(t *testing.T) {
	var out bytes.Buffer
	loop := &chatLoop{router: testRouter(t), sessionID: "s1"}
	if err := loop.run(context.Background(), strings.NewReader(""), &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}
}

func TestChatLoop_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A reader that never returns keeps the loop waiting on ctx.
	r, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	loop := &chatLoop{router: testRouter(t), sessionID: "s1"}
	if err := loop.run(ctx, r, &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}
}

func TestReplyHint(t *testing.T) {
	tests := []struct {
		kind orchestrator.ResponseKind
		want string
	}{
		{orchestrator.ResponseNeedsConfirmation, "proceed"},
		{orchestrator.ResponseStagePrompt, "more"},
		{orchestrator.ResponseFinal, ""},
	}
	for _, tt := range tests {
		got := replyHint(&orchestrator.Response{Kind: tt.kind})
		if tt.want == "" && got != "" || !strings.Contains(got, tt.want) {
			t.Errorf("replyHint(%s) = %q, want containing %q", tt.kind, got, tt.want)
		}
	}
	if replyHint(nil) != "" {
		t.Error("nil response should have no hint")
	}
}

func TestBuildPlanner_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	for _, provider := range []string{"anthropic", "openai"} {
		cfg := config.Default()
		cfg.Planner.Provider = provider
		if _, err := buildPlanner(cfg, services.DefaultCatalog()); err == nil {
			t.Errorf("%s: expected missing key error", provider)
		}
	}
}

func TestBuildPlanner_OpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-0123456789abcdef")

	cfg := config.Default()
	cfg.Planner.Provider = "openai"
	cfg.Planner.Model = "gpt-4o-mini"
	p, err := buildPlanner(cfg, services.DefaultCatalog())
	if err != nil {
		t.Fatalf("buildPlanner: %v", err)
	}
	if _, ok := p.(*planner.LangchainPlanner); !ok {
		t.Errorf("planner = %T, want *planner.LangchainPlanner", p)
	}
}

func TestNewApp_Memory(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")

	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if a.db != nil {
		t.Error("memory driver should not open a database")
	}
	if a.orch == nil || a.router == nil || a.bus == nil {
		t.Error("app is not fully wired")
	}
}

func TestNewApp_SQLite(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")

	cfg := config.Default()
	cfg.Storage.Path = t.TempDir() + "/morizo.db"
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if a.db == nil {
		t.Fatal("sqlite driver should open a database")
	}
	if a.db.Path() != cfg.Storage.Path {
		t.Errorf("db path = %q, want %q", a.db.Path(), cfg.Storage.Path)
	}
}
