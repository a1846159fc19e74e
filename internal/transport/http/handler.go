package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"quiz-event-service/internal/app"
	"quiz-event-service/internal/domain"
)

// Handler exposes the quiz event API over REST. Authentication is out of
// scope; the caller is identified by the X-User-ID header, expected to be set
// by an upstream gateway.
type Handler struct {
	quizzes  *app.QuizService
	events   *app.EventService
	attempts *app.AttemptService
	board    *app.LeaderboardService
}

func NewHandler(quizzes *app.QuizService, events *app.EventService, attempts *app.AttemptService, board *app.LeaderboardService) *Handler {
	return &Handler{quizzes: quizzes, events: events, attempts: attempts, board: board}
}

// Router builds the chi route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/quizzes", func(r chi.Router) {
			r.Post("/", h.createQuiz)
			r.Route("/{quizID}", func(r chi.Router) {
				r.Get("/", h.getQuiz)
				r.Put("/", h.updateQuiz)
				r.Delete("/", h.deleteQuiz)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.createEvent)
			r.Post("/join", h.joinEvent)
			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", h.getEvent)
				r.Post("/start", h.startEvent)
				r.Post("/close", h.closeEvent)
				r.Post("/cancel", h.cancelEvent)
				r.Post("/leave", h.leaveEvent)
				r.Get("/leaderboard", h.leaderboard)
				r.Route("/attempts", func(r chi.Router) {
					r.Post("/", h.startAttempt)
					r.Post("/submit", h.submitAttempt)
					r.Post("/cancel", h.cancelAttempt)
				})
			})
		})
	})
	return r
}

type ctxKey int

const userIDKey ctxKey = 0

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid X-User-ID header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

func callerID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

type quizRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Questions   []struct {
		Type          domain.QuestionType `json:"type"`
		Prompt        string              `json:"prompt"`
		Points        int                 `json:"points"`
		CorrectAnswer string              `json:"correctAnswer"`
		CaseSensitive bool                `json:"caseSensitive"`
		Options       []struct {
			Text    string `json:"text"`
			Correct bool   `json:"correct"`
		} `json:"options"`
	} `json:"questions"`
}

func (q quizRequest) toApp() app.CreateQuizRequest {
	req := app.CreateQuizRequest{Title: q.Title, Description: q.Description}
	for _, in := range q.Questions {
		question := app.QuestionInput{
			Type:          in.Type,
			Prompt:        in.Prompt,
			Points:        in.Points,
			CorrectAnswer: in.CorrectAnswer,
			CaseSensitive: in.CaseSensitive,
		}
		for _, o := range in.Options {
			question.Options = append(question.Options, app.OptionInput{Text: o.Text, Correct: o.Correct})
		}
		req.Questions = append(req.Questions, question)
	}
	return req
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !decode(w, r, &req) {
		return
	}
	quiz, err := h.quizzes.Create(r.Context(), callerID(r), req.toApp())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}
	quiz, err := h.quizzes.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) updateQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}
	var req quizRequest
	if !decode(w, r, &req) {
		return
	}
	quiz, err := h.quizzes.Update(r.Context(), callerID(r), id, req.toApp())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}
	if err := h.quizzes.Delete(r.Context(), callerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuizID          int64      `json:"quizId"`
		Name            string     `json:"name"`
		DurationSeconds int        `json:"durationSeconds"`
		JoinClosesAt    *time.Time `json:"joinClosesAt"`
	}
	if !decode(w, r, &req) {
		return
	}
	event, err := h.events.Create(r.Context(), callerID(r), app.CreateEventRequest{
		QuizID:          req.QuizID,
		Name:            req.Name,
		DurationSeconds: req.DurationSeconds,
		JoinClosesAt:    req.JoinClosesAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	event, err := h.events.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) joinEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JoinCode string `json:"joinCode"`
	}
	if !decode(w, r, &req) {
		return
	}
	event, err := h.events.Join(r.Context(), callerID(r), req.JoinCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) startEvent(w http.ResponseWriter, r *http.Request) {
	h.eventAction(w, r, h.events.Start)
}

func (h *Handler) closeEvent(w http.ResponseWriter, r *http.Request) {
	h.eventAction(w, r, h.events.Close)
}

func (h *Handler) cancelEvent(w http.ResponseWriter, r *http.Request) {
	h.eventAction(w, r, h.events.Cancel)
}

func (h *Handler) leaveEvent(w http.ResponseWriter, r *http.Request) {
	h.eventAction(w, r, h.events.Leave)
}

func (h *Handler) eventAction(w http.ResponseWriter, r *http.Request, action func(context.Context, int64, int64) error) {
	id, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	if err := action(r.Context(), callerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	event, err := h.events.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	start, err := h.attempts.Start(r.Context(), callerID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, start)
}

func (h *Handler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	var req struct {
		Answers []domain.AnswerSubmission `json:"answers"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, err := h.attempts.Submit(r.Context(), callerID(r), id, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) cancelAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	if err := h.attempts.Cancel(r.Context(), callerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.board.TopForEvent(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []app.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type errorBody struct {
	Error string `json:"error"`
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid " + param})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}
