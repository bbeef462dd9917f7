package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/config"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/gateway"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/orchestrator"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/tui"
)

var (
	chatTUI       bool
	chatSessionID string
	chatUserID    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with Morizo in the terminal",
	Long: `Start a conversation in the terminal.

Answer questions and course prompts with a number, "more", "back" or free
text. Type /cancel to drop the pending question, /quit to leave.

Pass --session to continue an earlier conversation.`,
	RunE: runChat,
}

func init() {
	addChatFlags(chatCmd)
}

func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&chatTUI, "tui", false, "Use the full-screen chat view")
	cmd.Flags().StringVar(&chatSessionID, "session", "", "Session to continue (default: new session)")
	cmd.Flags().StringVar(&chatUserID, "user", "", "User the menus are recorded for (default: $USER)")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The line chat prints progress after each reply; the TUI reads the bus.
	progress := chain.NewEventEmitter(256)
	var extra []orchestrator.Option
	if !chatTUI {
		extra = append(extra, orchestrator.WithObserver(progress))
	}

	a, err := newApp(cfg, extra...)
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID := chatSessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	userID := chatUserID
	if userID == "" {
		userID = os.Getenv("USER")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if chatTUI {
		return runChatTUI(ctx, a, sessionID, userID)
	}
	loop := &chatLoop{
		router:    a.router,
		progress:  progress.Events(),
		sessionID: sessionID,
		userID:    userID,
		prompt:    term.IsTerminal(int(os.Stdin.Fd())),
	}
	return loop.run(ctx, os.Stdin, os.Stdout)
}

// runChatTUI runs the full-screen chat, forwarding chain progress from the bus.
func runChatTUI(ctx context.Context, a *app, sessionID, userID string) error {
	// Log output corrupts the alt screen.
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	program, _ := tui.NewChatProgram(a.router, sessionID, userID)

	sub, err := a.bus.Subscribe(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("subscribe to progress: %w", err)
	}
	go forwardEventsToTUI(program, sub)

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	_, err = program.Run()
	return err
}

// forwardEventsToTUI converts bus events to TUI messages.
func forwardEventsToTUI(program *tea.Program, sub <-chan chain.Event) {
	for e := range sub {
		program.Send(tui.ChainEventMsg{Event: e})
	}
}

var (
	youPrompt  = color.New(color.FgCyan, color.Bold)
	botName    = color.New(color.FgYellow, color.Bold)
	noticeText = color.New(color.FgHiBlack)
)

// chatLoop is the line-based chat: one turn per input line.
type chatLoop struct {
	router *gateway.Router
	// progress events buffered while a turn ran are printed before its
	// reply; nil disables this.
	progress  <-chan chain.Event
	sessionID string
	userID    string
	// prompt prints "you> " before each line; off when input is piped.
	prompt bool
}

func (c *chatLoop) run(ctx context.Context, in io.Reader, out io.Writer) error {
	noticeText.Fprintf(out, "Session %s. Type /quit to leave.\n", c.sessionID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		if c.prompt {
			youPrompt.Fprint(out, "you> ")
		}

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		resp, reply := c.router.Reply(ctx, gateway.Turn{SessionID: c.sessionID, UserID: c.userID, Text: line})
		printProgress(out, c.progress, c.sessionID)
		botName.Fprint(out, "morizo> ")
		fmt.Fprintln(out, reply)
		if hint := replyHint(resp); hint != "" {
			noticeText.Fprintln(out, hint)
		}
	}
}

// printProgress drains progress without blocking.
func printProgress(out io.Writer, progress <-chan chain.Event, sessionID string) {
	for {
		select {
		case e := <-progress:
			if e.SessionID != sessionID {
				continue
			}
			if note := progressNote(e); note != "" {
				noticeText.Fprintf(out, "  · %s\n", note)
			}
		default:
			return
		}
	}
}

func progressNote(e chain.Event) string {
	call := e.Service + "." + e.Operation
	switch e.Type {
	case chain.EventTaskCompleted:
		return call + " done"
	case chain.EventTaskFailed:
		return call + " failed: " + e.Message
	case chain.EventTaskWaiting:
		return call + " needs your answer"
	default:
		return ""
	}
}

// replyHint tells the user how to answer the response.
func replyHint(resp *orchestrator.Response) string {
	if resp == nil {
		return ""
	}
	switch resp.Kind {
	case orchestrator.ResponseNeedsConfirmation:
		return `(answer with a number, "proceed" or "cancel")`
	case orchestrator.ResponseStagePrompt:
		return `(pick a number, or say "more" or "back")`
	default:
		return ""
	}
}
