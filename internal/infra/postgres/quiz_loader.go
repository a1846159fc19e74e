package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-event-service/internal/domain"
)

// QuizLoader reads full quiz definitions from Postgres for the grading cache.
// It runs on its own pgx pool so cache refills never contend with the bun
// transaction pool.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	err := l.pool.QueryRow(ctx,
		`SELECT owner_id, title, description FROM quizzes WHERE id=$1`, quizID,
	).Scan(&quiz.OwnerID, &quiz.Title, &quiz.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("%w: quiz %d", domain.ErrNotFound, quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id, type, prompt, points, "position", correct_answer, case_sensitive
		   FROM questions WHERE quiz_id=$1 ORDER BY "position"`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var q domain.Question
		q.QuizID = quizID
		if err := rows.Scan(&q.ID, &q.Type, &q.Prompt, &q.Points, &q.Position, &q.CorrectAnswer, &q.CaseSensitive); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(quiz.Questions)
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}

	orows, err := l.pool.Query(ctx,
		`SELECT o.id, o.question_id, o."text", o.correct, o."position"
		   FROM options o
		   JOIN questions q ON q.id = o.question_id
		  WHERE q.quiz_id=$1 ORDER BY o."position"`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load options: %w", err)
	}
	defer orows.Close()

	for orows.Next() {
		var o domain.Option
		var questionID int64
		if err := orows.Scan(&o.ID, &questionID, &o.Text, &o.Correct, &o.Position); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[questionID]; ok {
			quiz.Questions[i].Options = append(quiz.Questions[i].Options, o)
		}
	}
	if err := orows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load options: %w", err)
	}
	return quiz, nil
}
