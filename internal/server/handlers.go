package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/gateway"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/orchestrator"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/stage"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/version"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

type answerBody struct {
	Answer string `json:"answer"`
}

type selectionBody struct {
	Choice int `json:"choice"`
}

type messageBody struct {
	Text   string `json:"text"`
	UserID string `json:"user_id,omitempty"`
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Get(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) submitRequest(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "text is required"})
		return
	}
	resp, err := s.orch.SubmitRequest(r.Context(), req)
	s.respond(w, resp, err)
}

func (s *Server) answerConfirmation(w http.ResponseWriter, r *http.Request) {
	var body answerBody
	if !decodeBody(w, r, &body) {
		return
	}
	resp, err := s.orch.SubmitConfirmationAnswer(r.Context(), mux.Vars(r)["ref"], body.Answer)
	s.respond(w, resp, err)
}

// postMessage routes free text the way chat clients do.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var body messageBody
	if !decodeBody(w, r, &body) {
		return
	}
	turn := gateway.Turn{SessionID: mux.Vars(r)["id"], UserID: body.UserID, Text: body.Text}
	resp, err := s.turns.Handle(r.Context(), turn)
	if errors.Is(err, gateway.ErrEmptyTurn) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "text is required"})
		return
	}
	s.respond(w, resp, err)
}

func (s *Server) selectStage(w http.ResponseWriter, r *http.Request) {
	var body selectionBody
	if !decodeBody(w, r, &body) {
		return
	}
	resp, err := s.orch.SubmitStageSelection(r.Context(), mux.Vars(r)["id"], body.Choice)
	s.respond(w, resp, err)
}

func (s *Server) rollbackStage(w http.ResponseWriter, r *http.Request) {
	resp, err := s.orch.RollbackStage(r.Context(), mux.Vars(r)["id"])
	s.respond(w, resp, err)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, ref, err := s.orch.Coordinator().State(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	body := map[string]any{"session_id": id, "state": st.String()}
	if ref != "" {
		body["confirmation_ref"] = ref
	}
	sess, err := s.orch.Session(r.Context(), id)
	var notFound *models.SessionNotFoundError
	switch {
	case err == nil:
		body["stage"] = sessionView(sess)
	case !errors.As(err, &notFound):
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	ok, err := s.orch.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}

// streamEvents sends the session's chain events as Server-Sent Events
// until the client disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "event streaming is disabled"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	id := mux.Vars(r)["id"]
	events, err := s.events.Subscribe(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			log.Printf("[server] encode event for %s: %v", id, err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
		flusher.Flush()
	}
}

func (s *Server) chainEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "task history is disabled"})
		return
	}
	events, err := s.history.ListTaskEvents(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) listMenus(w http.ResponseWriter, r *http.Request) {
	if s.menus == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "menu history is disabled"})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	menus, err := s.menus.ListMenus(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if menus == nil {
		menus = []*models.Menu{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"menus": menus})
}

func (s *Server) respond(w http.ResponseWriter, resp *orchestrator.Response, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func sessionView(sess *stage.Session) map[string]any {
	return map[string]any{
		"stage":            sess.Stage,
		"category":         sess.Category,
		"menu":             sess.Menu(),
		"used_ingredients": sess.UsedIngredients,
		"candidates":       sess.Candidates,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body", Detail: err.Error()})
		return false
	}
	return true
}

// writeError maps err to a status code and the user-facing message.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		log.Printf("[server] %v", err)
	}
	writeJSON(w, status, errorBody{Error: orchestrator.FailureMessage(err), Detail: err.Error()})
}

func statusFor(err error) int {
	var (
		planning *models.PlanningError
		expired  *models.ExpiredConfirmationError
		rollback *models.InvalidRollbackError
		notFound *models.SessionNotFoundError
	)
	switch {
	case errors.Is(err, models.ErrSessionBusy),
		errors.Is(err, models.ErrChainCancelled),
		errors.Is(err, models.ErrConfirmationCancelled),
		errors.Is(err, stage.ErrMenuComplete):
		return http.StatusConflict
	case errors.As(err, &expired):
		return http.StatusGone
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &rollback), errors.Is(err, models.ErrInvalidChoice):
		return http.StatusBadRequest
	case errors.As(err, &planning):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}
