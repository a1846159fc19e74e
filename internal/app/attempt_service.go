package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-event-service/internal/audit"
	"quiz-event-service/internal/domain"
	"quiz-event-service/internal/grading"
)

// AttemptService owns the attempt lifecycle (IN_PROGRESS -> SUBMITTED or
// ABANDONED). Every mutation is gated on the owning event still accepting
// submissions.
type AttemptService struct {
	store   Store
	quizzes QuizSource
	audit   audit.Sink
	now     func() time.Time
}

func NewAttemptService(store Store, quizzes QuizSource, sink audit.Sink) *AttemptService {
	return NewAttemptServiceWithClock(store, quizzes, sink, time.Now)
}

// NewAttemptServiceWithClock allows deterministic timestamps in tests.
func NewAttemptServiceWithClock(store Store, quizzes QuizSource, sink audit.Sink, now func() time.Time) *AttemptService {
	return &AttemptService{store: store, quizzes: quizzes, audit: sink, now: now}
}

// AttemptStart is returned from Start; Deadline is the event's endsAt.
type AttemptStart struct {
	AttemptID int64                `json:"attemptId"`
	Status    domain.AttemptStatus `json:"status"`
	Deadline  *time.Time           `json:"deadline,omitempty"`
}

// AttemptResult is returned from Submit.
type AttemptResult struct {
	AttemptID int64                 `json:"attemptId"`
	Score     int                   `json:"score"`
	MaxScore  int                   `json:"maxScore"`
	Status    domain.AttemptStatus  `json:"status"`
	Results   []domain.AnswerResult `json:"results"`
}

// Start creates the caller's single attempt for the event.
func (s *AttemptService) Start(ctx context.Context, callerID, eventID int64) (AttemptStart, error) {
	now := s.now()
	if err := autoCloseIfExpired(ctx, s.store, eventID, now); err != nil {
		return AttemptStart{}, err
	}

	var out AttemptStart
	err := s.store.Atomic(ctx, func(store Store) error {
		event, err := store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := ensureAcceptingSubmissions(ctx, store, &event, now); err != nil {
			return err
		}
		participant, err := store.GetParticipant(ctx, event.ID, callerID)
		if err != nil {
			return err
		}

		if _, err := store.AttemptByParticipant(ctx, participant.ID); err == nil {
			return fmt.Errorf("%w: attempt already exists for this event", domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		// the unique participant index backstops the check above under races
		attempt := domain.Attempt{
			EventID:       event.ID,
			ParticipantID: participant.ID,
			Status:        domain.AttemptInProgress,
			StartedAt:     now,
		}
		if err := store.CreateAttempt(ctx, &attempt); err != nil {
			return err
		}
		out = AttemptStart{AttemptID: attempt.ID, Status: attempt.Status, Deadline: event.EndsAt}
		return nil
	})
	if err != nil {
		return AttemptStart{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "start_attempt",
		ResourceType: "attempt",
		ResourceID:   out.AttemptID,
	})
	return out, nil
}

// Submit grades every question of the event's quiz in position order against
// the submitted answers and finalizes the attempt in one atomic write.
func (s *AttemptService) Submit(ctx context.Context, callerID, eventID int64, answers []domain.AnswerSubmission) (AttemptResult, error) {
	if len(answers) == 0 {
		return AttemptResult{}, fmt.Errorf("%w: at least one answer is required", domain.ErrValidation)
	}

	now := s.now()
	if err := autoCloseIfExpired(ctx, s.store, eventID, now); err != nil {
		return AttemptResult{}, err
	}

	var out AttemptResult
	err := s.store.Atomic(ctx, func(store Store) error {
		event, err := store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := ensureAcceptingSubmissions(ctx, store, &event, now); err != nil {
			return err
		}
		participant, err := store.GetParticipant(ctx, event.ID, callerID)
		if err != nil {
			return err
		}

		attempt, err := store.AttemptByParticipant(ctx, participant.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: attempt not started", domain.ErrConflict)
		}
		if err != nil {
			return err
		}
		switch attempt.Status {
		case domain.AttemptSubmitted:
			return fmt.Errorf("%w: attempt already submitted", domain.ErrConflict)
		case domain.AttemptAbandoned:
			return fmt.Errorf("%w: attempt was abandoned", domain.ErrConflict)
		case domain.AttemptInProgress:
		default:
			return fmt.Errorf("%w: attempt is not in progress", domain.ErrConflict)
		}

		quiz, err := s.quizzes.GetQuiz(ctx, event.QuizID)
		if err != nil {
			return err
		}
		byQuestion, err := submissionsByQuestion(answers, quiz)
		if err != nil {
			return err
		}

		score, maxScore := 0, 0
		attempt.Answers = make([]domain.Answer, 0, len(quiz.Questions))
		results := make([]domain.AnswerResult, 0, len(quiz.Questions))
		for _, q := range quiz.Questions {
			maxScore += q.Points
			outcome := grading.Grade(q, byQuestion[q.ID])
			outcome.Answer.AttemptID = attempt.ID
			attempt.Answers = append(attempt.Answers, outcome.Answer)
			results = append(results, outcome.Result)
			score += outcome.Result.PointsAwarded
		}

		attempt.Status = domain.AttemptSubmitted
		attempt.StartedAt = now
		attempt.SubmittedAt = &now
		attempt.Score = score
		attempt.MaxScore = maxScore
		if err := store.UpdateAttempt(ctx, &attempt); err != nil {
			return err
		}

		out = AttemptResult{
			AttemptID: attempt.ID,
			Score:     score,
			MaxScore:  maxScore,
			Status:    attempt.Status,
			Results:   results,
		}
		return nil
	})
	if err != nil {
		return AttemptResult{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "submit_attempt",
		ResourceType: "attempt",
		ResourceID:   out.AttemptID,
		Details:      fmt.Sprintf("score=%d/%d", out.Score, out.MaxScore),
	})
	return out, nil
}

// Cancel abandons the caller's attempt. Abandonment never grades; answers
// stay untouched. Cancelling an ABANDONED attempt is a no-op.
func (s *AttemptService) Cancel(ctx context.Context, callerID, eventID int64) error {
	now := s.now()
	if err := autoCloseIfExpired(ctx, s.store, eventID, now); err != nil {
		return err
	}

	var attemptID int64
	err := s.store.Atomic(ctx, func(store Store) error {
		event, err := store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := ensureAcceptingSubmissions(ctx, store, &event, now); err != nil {
			return err
		}
		participant, err := store.GetParticipant(ctx, event.ID, callerID)
		if err != nil {
			return err
		}

		attempt, err := store.AttemptByParticipant(ctx, participant.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: attempt not started", domain.ErrConflict)
		}
		if err != nil {
			return err
		}
		if attempt.Status == domain.AttemptSubmitted {
			return fmt.Errorf("%w: attempt already submitted", domain.ErrConflict)
		}
		if attempt.Status == domain.AttemptAbandoned {
			attemptID = attempt.ID
			return nil
		}

		attempt.Status = domain.AttemptAbandoned
		attempt.AbandonedAt = &now
		attemptID = attempt.ID
		return store.UpdateAttempt(ctx, &attempt)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "cancel_attempt",
		ResourceType: "attempt",
		ResourceID:   attemptID,
	})
	return nil
}

// submissionsByQuestion indexes the submitted answers by question id,
// rejecting ids outside the quiz and duplicate keys.
func submissionsByQuestion(answers []domain.AnswerSubmission, quiz domain.Quiz) (map[int64]*domain.AnswerSubmission, error) {
	known := make(map[int64]struct{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		known[q.ID] = struct{}{}
	}

	byQuestion := make(map[int64]*domain.AnswerSubmission, len(answers))
	for i := range answers {
		sub := &answers[i]
		if _, ok := known[sub.QuestionID]; !ok {
			return nil, fmt.Errorf("%w: invalid questionId: %d", domain.ErrValidation, sub.QuestionID)
		}
		if _, dup := byQuestion[sub.QuestionID]; dup {
			return nil, fmt.Errorf("%w: duplicate answer for questionId: %d", domain.ErrValidation, sub.QuestionID)
		}
		byQuestion[sub.QuestionID] = sub
	}
	return byQuestion, nil
}
