package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/stage"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// SubmitStageSelection applies a raw stage choice: 1..N selects a
// candidate, 0 asks for more and -1 rolls back. Selecting a course
// automatically requests candidates for the next one.
func (o *Orchestrator) SubmitStageSelection(ctx context.Context, sessionID string, choice int) (*Response, error) {
	action, err := models.DecodeUserAction(choice)
	if err != nil {
		return nil, err
	}
	if action.Kind == models.ActionRollback {
		return o.RollbackStage(ctx, sessionID)
	}

	if !o.lock(sessionID) {
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionBusy)
	}
	defer o.unlock(sessionID)

	sess, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Stage == models.StageCompleted {
		return nil, fmt.Errorf("session %s: %w", sessionID, stage.ErrMenuComplete)
	}

	switch action.Kind {
	case models.ActionRequestMore:
		log.Printf("[orchestrator] session %s: more %s candidates", sessionID, sess.Stage)
		return o.run(ctx, Request{Text: sess.MoreRequest(), SessionID: sessionID, UserID: sess.UserID})

	default:
		cand, err := sess.Candidate(action.Index)
		if err != nil {
			return nil, err
		}
		from := sess.Stage
		if err := sess.Advance(cand); err != nil {
			return nil, err
		}
		log.Printf("[orchestrator] session %s: %s selected %q, now at %s", sessionID, from, cand.Title, sess.Stage)

		if sess.Stage == models.StageCompleted {
			return o.completeMenu(ctx, sess)
		}
		if err := o.sessions.Save(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session %s: %w", sessionID, err)
		}
		return o.run(ctx, Request{Text: sess.NextRequest(), SessionID: sessionID, UserID: sess.UserID})
	}
}

// RollbackStage moves the session one course back and proposes candidates
// for that course again. Rolling back from the main dish returns a
// *models.InvalidRollbackError and changes nothing.
func (o *Orchestrator) RollbackStage(ctx context.Context, sessionID string) (*Response, error) {
	if !o.lock(sessionID) {
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionBusy)
	}
	defer o.unlock(sessionID)

	sess, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Rollback(); err != nil {
		return nil, err
	}
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session %s: %w", sessionID, err)
	}
	log.Printf("[orchestrator] session %s: rolled back to %s", sessionID, sess.Stage)
	return o.run(ctx, Request{Text: sess.NextRequest(), SessionID: sessionID, UserID: sess.UserID})
}

// presentCandidates records proposals on the session's current course and
// asks the user to choose.
func (o *Orchestrator) presentCandidates(ctx context.Context, req Request, cands []models.Candidate) (*Response, error) {
	sess, err := o.sessions.Load(ctx, req.SessionID)
	var notFound *models.SessionNotFoundError
	switch {
	case errors.As(err, &notFound):
		sess = stage.New(req.SessionID)
	case err != nil:
		return nil, err
	case sess.Stage == models.StageCompleted:
		sess = stage.New(req.SessionID)
	}
	if sess.UserID == "" {
		sess.UserID = req.UserID
	}

	sess.RecordProposals(cands)
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	return &Response{
		Kind:       ResponseStagePrompt,
		SessionID:  sess.ID,
		Message:    o.formatter.StagePrompt(sess.Stage, cands),
		Stage:      sess.Stage,
		Candidates: cands,
	}, nil
}

// completeMenu records the finished menu and clears the session.
func (o *Orchestrator) completeMenu(ctx context.Context, sess *stage.Session) (*Response, error) {
	menu := &models.Menu{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Category:  sess.Category,
		Courses:   sess.Menu(),
		CreatedAt: time.Now(),
	}
	if o.menus != nil {
		if err := o.menus.SaveMenu(ctx, menu); err != nil {
			return nil, fmt.Errorf("record menu: %w", err)
		}
	}
	if err := o.sessions.Delete(ctx, sess.ID); err != nil {
		log.Printf("[orchestrator] session %s: delete completed session: %v", sess.ID, err)
	}
	log.Printf("[orchestrator] session %s: menu %s complete", sess.ID, menu.ID)

	return &Response{
		Kind:      ResponseMenuComplete,
		SessionID: sess.ID,
		Message:   o.formatter.MenuSummary(menu),
		Stage:     models.StageCompleted,
		Menu:      menu,
	}, nil
}
