package app

import (
	"context"

	"quiz-event-service/internal/domain"
)

// Store is the persistence collaborator for all aggregates. Implementations
// must report missing rows as domain.ErrNotFound, uniqueness violations as
// domain.ErrConflict (domain.ErrJoinCodeTaken for the events join-code
// index), and stale version writes as domain.ErrConflict.
type Store interface {
	// Atomic runs fn against a transaction-scoped store: every read and
	// write inside fn either fully commits or fully rolls back, with no
	// interleaving mutation visible between them.
	Atomic(ctx context.Context, fn func(Store) error) error

	GetUser(ctx context.Context, id int64) (domain.User, error)

	CreateQuiz(ctx context.Context, q *domain.Quiz) error
	GetQuiz(ctx context.Context, id int64) (domain.Quiz, error)
	UpdateQuiz(ctx context.Context, q *domain.Quiz) error
	DeleteQuiz(ctx context.Context, id int64) error

	CreateEvent(ctx context.Context, e *domain.Event) error
	GetEvent(ctx context.Context, id int64) (domain.Event, error)
	GetEventByJoinCode(ctx context.Context, code string) (domain.Event, error)
	UpdateEvent(ctx context.Context, e *domain.Event) error

	AddParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipant(ctx context.Context, eventID, userID int64) (domain.Participant, error)
	RemoveParticipant(ctx context.Context, id int64) error

	CreateAttempt(ctx context.Context, a *domain.Attempt) error
	AttemptByParticipant(ctx context.Context, participantID int64) (domain.Attempt, error)
	UpdateAttempt(ctx context.Context, a *domain.Attempt) error

	Leaderboard(ctx context.Context, eventID int64, limit int) ([]LeaderboardEntry, error)
}

// QuizSource loads quiz content for grading. Backed by the Redis cache in
// production and by the store directly in tests; safe to read outside the
// attempt transaction because quizzes are immutable once an event runs.
type QuizSource interface {
	GetQuiz(ctx context.Context, id int64) (domain.Quiz, error)
}
