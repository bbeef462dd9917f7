package gateway

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/confirm"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/logging"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/orchestrator"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// ErrEmptyTurn is returned for blank input.
var ErrEmptyTurn = errors.New("empty message")

// Turn is one message from a user.
type Turn struct {
	SessionID string
	UserID    string
	Text      string
}

// Router sends each turn to the operation that matches the session state:
// a pending confirmation takes the text as its answer, an open stage prompt
// takes a number or "back"/"more", and anything else starts a new request.
type Router struct {
	orch *orchestrator.Orchestrator
}

// NewRouter creates a Router over o.
func NewRouter(o *orchestrator.Orchestrator) *Router {
	return &Router{orch: o}
}

// Handle routes t and returns the orchestrator's response.
func (r *Router) Handle(ctx context.Context, t Turn) (*orchestrator.Response, error) {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return nil, ErrEmptyTurn
	}
	if t.SessionID == "" {
		return r.orch.SubmitRequest(ctx, orchestrator.Request{Text: text, UserID: t.UserID})
	}

	if isCancel(text) {
		ok, err := r.orch.Cancel(ctx, t.SessionID)
		if err != nil {
			return nil, err
		}
		msg := "Nothing to cancel."
		if ok {
			msg = "Request cancelled."
		}
		return &orchestrator.Response{Kind: orchestrator.ResponseFinal, SessionID: t.SessionID, Message: msg}, nil
	}

	st, ref, err := r.orch.Coordinator().State(ctx, t.SessionID)
	if err != nil {
		return nil, err
	}
	if st == confirm.StateAwaitingUser {
		logging.Debugf("[gateway] session %s: answer to %s", t.SessionID, ref)
		return r.orch.SubmitConfirmationAnswer(ctx, ref, text)
	}

	if choice, ok := ParseChoice(text); ok && r.awaitingSelection(ctx, t.SessionID) {
		logging.Debugf("[gateway] session %s: stage choice %d", t.SessionID, choice)
		return r.orch.SubmitStageSelection(ctx, t.SessionID, choice)
	}

	return r.orch.SubmitRequest(ctx, orchestrator.Request{Text: text, SessionID: t.SessionID, UserID: t.UserID})
}

// Reply handles t and always returns text to show, mapping errors through
// orchestrator.FailureMessage.
func (r *Router) Reply(ctx context.Context, t Turn) (*orchestrator.Response, string) {
	resp, err := r.Handle(ctx, t)
	if err != nil {
		if errors.Is(err, ErrEmptyTurn) {
			return nil, "Please type a message."
		}
		return nil, orchestrator.FailureMessage(err)
	}
	return resp, resp.Message
}

func (r *Router) awaitingSelection(ctx context.Context, sessionID string) bool {
	sess, err := r.orch.Session(ctx, sessionID)
	if err != nil {
		return false
	}
	return sess.Stage != models.StageCompleted && len(sess.Candidates) > 0
}

// ParseChoice reads a stage choice: a number, "more" (0) or "back" (-1).
func ParseChoice(text string) (int, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	switch t {
	case "more", "もっと", "他の":
		return 0, true
	case "back", "戻る", "もどる":
		return -1, true
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isCancel(text string) bool {
	switch strings.ToLower(text) {
	case "/cancel", "/stop":
		return true
	}
	return false
}
