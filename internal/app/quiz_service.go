package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quiz-event-service/internal/audit"
	"quiz-event-service/internal/domain"
)

const maxQuestionsPerQuiz = 50

// QuizService manages quiz definitions. Quizzes are treated as immutable
// once an event references them in RUNNING or a later state; that contract
// is the host's to honor, not enforced by storage.
type QuizService struct {
	store Store
	audit audit.Sink
}

func NewQuizService(store Store, sink audit.Sink) *QuizService {
	return &QuizService{store: store, audit: sink}
}

// CreateQuizRequest carries a full quiz definition. Question positions are
// assigned densely in request order.
type CreateQuizRequest struct {
	Title       string
	Description string
	Questions   []QuestionInput
}

type QuestionInput struct {
	Type          domain.QuestionType
	Prompt        string
	Points        int
	CorrectAnswer string
	CaseSensitive bool
	Options       []OptionInput
}

type OptionInput struct {
	Text    string
	Correct bool
}

// Create validates and stores a new quiz owned by the caller.
func (s *QuizService) Create(ctx context.Context, callerID int64, req CreateQuizRequest) (domain.Quiz, error) {
	quiz, err := buildQuiz(req)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.OwnerID = callerID

	err = s.store.Atomic(ctx, func(store Store) error {
		if _, err := store.GetUser(ctx, callerID); err != nil {
			return err
		}
		return store.CreateQuiz(ctx, &quiz)
	})
	if err != nil {
		return domain.Quiz{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "create_quiz",
		ResourceType: "quiz",
		ResourceID:   quiz.ID,
	})
	return quiz, nil
}

// Get returns the quiz by id, questions in position order.
func (s *QuizService) Get(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return s.store.GetQuiz(ctx, quizID)
}

// Update replaces title, description and the whole question tree. Only the
// owner or an admin may update.
func (s *QuizService) Update(ctx context.Context, callerID, quizID int64, req CreateQuizRequest) (domain.Quiz, error) {
	replacement, err := buildQuiz(req)
	if err != nil {
		return domain.Quiz{}, err
	}

	var quiz domain.Quiz
	err = s.store.Atomic(ctx, func(store Store) error {
		existing, err := store.GetQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		if err := s.requireOwnerOrAdmin(ctx, store, existing, callerID, "update"); err != nil {
			return err
		}
		quiz = replacement
		quiz.ID = existing.ID
		quiz.OwnerID = existing.OwnerID
		return store.UpdateQuiz(ctx, &quiz)
	})
	if err != nil {
		return domain.Quiz{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "update_quiz",
		ResourceType: "quiz",
		ResourceID:   quiz.ID,
	})
	return quiz, nil
}

// Delete removes the quiz. Only the owner or an admin may delete.
func (s *QuizService) Delete(ctx context.Context, callerID, quizID int64) error {
	err := s.store.Atomic(ctx, func(store Store) error {
		quiz, err := store.GetQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		if err := s.requireOwnerOrAdmin(ctx, store, quiz, callerID, "delete"); err != nil {
			return err
		}
		return store.DeleteQuiz(ctx, quizID)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "delete_quiz",
		ResourceType: "quiz",
		ResourceID:   quizID,
	})
	return nil
}

func (s *QuizService) requireOwnerOrAdmin(ctx context.Context, store Store, quiz domain.Quiz, callerID int64, verb string) error {
	caller, err := store.GetUser(ctx, callerID)
	if err != nil {
		return err
	}
	if quiz.OwnerID != caller.ID && !caller.IsAdmin() {
		return fmt.Errorf("%w: only the quiz owner or an admin can %s the quiz", domain.ErrForbidden, verb)
	}
	return nil
}

func buildQuiz(req CreateQuizRequest) (domain.Quiz, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Quiz{}, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if len(req.Questions) == 0 {
		return domain.Quiz{}, fmt.Errorf("%w: a quiz must contain at least one question", domain.ErrValidation)
	}
	if len(req.Questions) > maxQuestionsPerQuiz {
		return domain.Quiz{}, fmt.Errorf("%w: too many questions (max %d)", domain.ErrValidation, maxQuestionsPerQuiz)
	}

	quiz := domain.Quiz{Title: title, Description: req.Description}
	for pos, in := range req.Questions {
		q, err := buildQuestion(in, pos)
		if err != nil {
			return domain.Quiz{}, err
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz, nil
}

func buildQuestion(in QuestionInput, position int) (domain.Question, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return domain.Question{}, fmt.Errorf("%w: question prompt is required", domain.ErrValidation)
	}
	points := in.Points
	if points == 0 {
		points = 1
	}
	if points < 0 {
		return domain.Question{}, fmt.Errorf("%w: question points must be > 0", domain.ErrValidation)
	}

	q := domain.Question{
		Type:     in.Type,
		Prompt:   prompt,
		Points:   points,
		Position: position,
	}

	switch in.Type {
	case domain.QuestionFreeText:
		answer := strings.TrimSpace(in.CorrectAnswer)
		if answer == "" {
			return domain.Question{}, fmt.Errorf("%w: free-text questions need a correct answer", domain.ErrValidation)
		}
		q.CorrectAnswer = answer
		q.CaseSensitive = in.CaseSensitive
	case domain.QuestionSingleChoice, domain.QuestionMultipleChoice:
		opts, err := buildOptions(in.Options, in.Type == domain.QuestionSingleChoice)
		if err != nil {
			return domain.Question{}, err
		}
		q.Options = opts
	default:
		return domain.Question{}, fmt.Errorf("%w: unknown question type %q", domain.ErrValidation, in.Type)
	}
	return q, nil
}

func buildOptions(in []OptionInput, singleChoice bool) ([]domain.Option, error) {
	if len(in) < 2 {
		return nil, fmt.Errorf("%w: choice questions must have at least 2 options", domain.ErrValidation)
	}

	correctCount := 0
	opts := make([]domain.Option, 0, len(in))
	for pos, o := range in {
		text := strings.TrimSpace(o.Text)
		if text == "" {
			return nil, fmt.Errorf("%w: option text is required", domain.ErrValidation)
		}
		if o.Correct {
			correctCount++
		}
		opts = append(opts, domain.Option{Text: text, Correct: o.Correct, Position: pos})
	}

	if singleChoice && correctCount != 1 {
		return nil, fmt.Errorf("%w: single choice must have exactly 1 correct option", domain.ErrValidation)
	}
	if !singleChoice && correctCount < 1 {
		return nil, fmt.Errorf("%w: multiple choice must have at least 1 correct option", domain.ErrValidation)
	}
	return opts, nil
}

// LeaderboardEntry is one row of the event scoreboard.
type LeaderboardEntry struct {
	UserID      int64     `json:"userId"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"maxScore"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// LeaderboardService serves the request/reply scoreboard for an event:
// submitted attempts ordered by score, earliest submission first on ties.
type LeaderboardService struct {
	store Store
}

func NewLeaderboardService(store Store) *LeaderboardService {
	return &LeaderboardService{store: store}
}

func (s *LeaderboardService) TopForEvent(ctx context.Context, eventID int64, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.Leaderboard(ctx, eventID, limit)
}
