package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-event-service/internal/app"
	"quiz-event-service/internal/audit"
	"quiz-event-service/internal/domain"
)

// Store implements app.Store on Postgres via bun. Atomic opens a real
// transaction; uniqueness and optimistic version checks are backed by the
// schema's constraints.
type Store struct {
	db   *bun.DB
	conn bun.IDB
	inTx bool
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, conn: db}
}

func (s *Store) Atomic(ctx context.Context, fn func(app.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(&Store{db: s.db, conn: tx, inTx: true})
	})
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	row := new(userRow)
	err := s.conn.NewSelect().Model(row).Where("u.id = ?", id).Scan(ctx)
	if err != nil {
		return domain.User{}, mapError(err, fmt.Sprintf("user %d", id))
	}
	return domain.User{ID: row.ID, DisplayName: row.DisplayName, Role: domain.Role(row.Role)}, nil
}

func (s *Store) CreateQuiz(ctx context.Context, quiz *domain.Quiz) error {
	row := quizRow{OwnerID: quiz.OwnerID, Title: quiz.Title, Description: quiz.Description}
	if _, err := s.conn.NewInsert().Model(&row).Exec(ctx); err != nil {
		return mapError(err, "quiz")
	}
	quiz.ID = row.ID
	return s.insertQuestions(ctx, quiz)
}

func (s *Store) insertQuestions(ctx context.Context, quiz *domain.Quiz) error {
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		q.QuizID = quiz.ID
		qr := questionRow{
			QuizID:        quiz.ID,
			Type:          string(q.Type),
			Prompt:        q.Prompt,
			Points:        q.Points,
			Position:      q.Position,
			CorrectAnswer: q.CorrectAnswer,
			CaseSensitive: q.CaseSensitive,
		}
		if _, err := s.conn.NewInsert().Model(&qr).Exec(ctx); err != nil {
			return mapError(err, "question")
		}
		q.ID = qr.ID
		for j := range q.Options {
			o := &q.Options[j]
			or := optionRow{QuestionID: q.ID, Text: o.Text, Correct: o.Correct, Position: o.Position}
			if _, err := s.conn.NewInsert().Model(&or).Exec(ctx); err != nil {
				return mapError(err, "option")
			}
			o.ID = or.ID
		}
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, id int64) (domain.Quiz, error) {
	row := new(quizRow)
	err := s.conn.NewSelect().Model(row).Where("q.id = ?", id).Scan(ctx)
	if err != nil {
		return domain.Quiz{}, mapError(err, fmt.Sprintf("quiz %d", id))
	}
	quiz := domain.Quiz{ID: row.ID, OwnerID: row.OwnerID, Title: row.Title, Description: row.Description}

	var qrows []questionRow
	err = s.conn.NewSelect().Model(&qrows).
		Where("qq.quiz_id = ?", id).
		OrderExpr("qq.position ASC").
		Scan(ctx)
	if err != nil {
		return domain.Quiz{}, mapError(err, "questions")
	}
	if len(qrows) == 0 {
		return quiz, nil
	}

	ids := make([]int64, len(qrows))
	for i, qr := range qrows {
		ids[i] = qr.ID
	}
	var orows []optionRow
	err = s.conn.NewSelect().Model(&orows).
		Where("o.question_id IN (?)", bun.In(ids)).
		OrderExpr("o.position ASC").
		Scan(ctx)
	if err != nil {
		return domain.Quiz{}, mapError(err, "options")
	}
	byQuestion := make(map[int64][]domain.Option)
	for _, or := range orows {
		byQuestion[or.QuestionID] = append(byQuestion[or.QuestionID], domain.Option{
			ID:       or.ID,
			Text:     or.Text,
			Correct:  or.Correct,
			Position: or.Position,
		})
	}

	for _, qr := range qrows {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:            qr.ID,
			QuizID:        qr.QuizID,
			Type:          domain.QuestionType(qr.Type),
			Prompt:        qr.Prompt,
			Points:        qr.Points,
			Position:      qr.Position,
			CorrectAnswer: qr.CorrectAnswer,
			CaseSensitive: qr.CaseSensitive,
			Options:       byQuestion[qr.ID],
		})
	}
	return quiz, nil
}

// UpdateQuiz replaces the question tree wholesale; options go with their
// questions through the cascade.
func (s *Store) UpdateQuiz(ctx context.Context, quiz *domain.Quiz) error {
	row := quizRow{ID: quiz.ID, OwnerID: quiz.OwnerID, Title: quiz.Title, Description: quiz.Description}
	res, err := s.conn.NewUpdate().Model(&row).WherePK().Exec(ctx)
	if err != nil {
		return mapError(err, "quiz")
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: quiz %d", domain.ErrNotFound, quiz.ID)
	}
	if _, err := s.conn.NewDelete().Model((*questionRow)(nil)).Where("quiz_id = ?", quiz.ID).Exec(ctx); err != nil {
		return mapError(err, "questions")
	}
	return s.insertQuestions(ctx, quiz)
}

func (s *Store) DeleteQuiz(ctx context.Context, id int64) error {
	res, err := s.conn.NewDelete().Model((*quizRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return mapError(err, "quiz")
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: quiz %d", domain.ErrNotFound, id)
	}
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, event *domain.Event) error {
	row := eventToRow(*event)
	row.Version = 1
	if _, err := s.conn.NewInsert().Model(&row).Exec(ctx); err != nil {
		return mapError(err, "event")
	}
	event.ID = row.ID
	event.Version = row.Version
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	row := new(eventRow)
	err := s.conn.NewSelect().Model(row).Where("e.id = ?", id).Scan(ctx)
	if err != nil {
		return domain.Event{}, mapError(err, fmt.Sprintf("event %d", id))
	}
	return row.toDomain(), nil
}

func (s *Store) GetEventByJoinCode(ctx context.Context, code string) (domain.Event, error) {
	row := new(eventRow)
	err := s.conn.NewSelect().Model(row).Where("e.join_code = ?", code).Scan(ctx)
	if err != nil {
		return domain.Event{}, mapError(err, "invalid join code")
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateEvent(ctx context.Context, event *domain.Event) error {
	row := eventToRow(*event)
	row.Version = event.Version + 1
	res, err := s.conn.NewUpdate().Model(&row).
		Where("id = ?", event.ID).
		Where("version = ?", event.Version).
		Exec(ctx)
	if err != nil {
		return mapError(err, "event")
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		exists, err := s.conn.NewSelect().Model((*eventRow)(nil)).Where("e.id = ?", event.ID).Exists(ctx)
		if err != nil {
			return mapError(err, "event")
		}
		if !exists {
			return fmt.Errorf("%w: event %d", domain.ErrNotFound, event.ID)
		}
		return fmt.Errorf("%w: event %d was modified concurrently", domain.ErrConflict, event.ID)
	}
	event.Version = row.Version
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, p *domain.Participant) error {
	row := participantRow{EventID: p.EventID, UserID: p.UserID}
	if _, err := s.conn.NewInsert().Model(&row).Exec(ctx); err != nil {
		return mapError(err, "participant")
	}
	p.ID = row.ID
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, eventID, userID int64) (domain.Participant, error) {
	row := new(participantRow)
	err := s.conn.NewSelect().Model(row).
		Where("p.event_id = ?", eventID).
		Where("p.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return domain.Participant{}, mapError(err, "participant not found for this user and event")
	}
	return domain.Participant{ID: row.ID, EventID: row.EventID, UserID: row.UserID}, nil
}

func (s *Store) RemoveParticipant(ctx context.Context, id int64) error {
	res, err := s.conn.NewDelete().Model((*participantRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return mapError(err, "participant")
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: participant %d", domain.ErrNotFound, id)
	}
	return nil
}

func (s *Store) CreateAttempt(ctx context.Context, attempt *domain.Attempt) error {
	row := attemptToRow(*attempt)
	row.Version = 1
	if _, err := s.conn.NewInsert().Model(&row).Exec(ctx); err != nil {
		return mapError(err, "attempt")
	}
	attempt.ID = row.ID
	attempt.Version = row.Version
	return nil
}

func (s *Store) AttemptByParticipant(ctx context.Context, participantID int64) (domain.Attempt, error) {
	row := new(attemptRow)
	err := s.conn.NewSelect().Model(row).Where("a.participant_id = ?", participantID).Scan(ctx)
	if err != nil {
		return domain.Attempt{}, mapError(err, fmt.Sprintf("attempt for participant %d", participantID))
	}
	attempt := row.toDomain()

	var arows []answerRow
	err = s.conn.NewSelect().Model(&arows).
		Where("an.attempt_id = ?", row.ID).
		OrderExpr("an.id ASC").
		Scan(ctx)
	if err != nil {
		return domain.Attempt{}, mapError(err, "answers")
	}
	for _, ar := range arows {
		attempt.Answers = append(attempt.Answers, ar.toDomain())
	}
	return attempt, nil
}

func (s *Store) UpdateAttempt(ctx context.Context, attempt *domain.Attempt) error {
	row := attemptToRow(*attempt)
	row.Version = attempt.Version + 1
	res, err := s.conn.NewUpdate().Model(&row).
		Where("id = ?", attempt.ID).
		Where("version = ?", attempt.Version).
		Exec(ctx)
	if err != nil {
		return mapError(err, "attempt")
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		exists, err := s.conn.NewSelect().Model((*attemptRow)(nil)).Where("a.id = ?", attempt.ID).Exists(ctx)
		if err != nil {
			return mapError(err, "attempt")
		}
		if !exists {
			return fmt.Errorf("%w: attempt %d", domain.ErrNotFound, attempt.ID)
		}
		return fmt.Errorf("%w: attempt %d was modified concurrently", domain.ErrConflict, attempt.ID)
	}
	attempt.Version = row.Version

	if len(attempt.Answers) == 0 {
		return nil
	}
	if _, err := s.conn.NewDelete().Model((*answerRow)(nil)).Where("attempt_id = ?", attempt.ID).Exec(ctx); err != nil {
		return mapError(err, "answers")
	}
	arows := make([]answerRow, len(attempt.Answers))
	for i, a := range attempt.Answers {
		a.AttemptID = attempt.ID
		arows[i] = answerToRow(a)
	}
	if _, err := s.conn.NewInsert().Model(&arows).Exec(ctx); err != nil {
		return mapError(err, "answers")
	}
	for i := range attempt.Answers {
		attempt.Answers[i].ID = arows[i].ID
	}
	return nil
}

func (s *Store) Leaderboard(ctx context.Context, eventID int64, limit int) ([]app.LeaderboardEntry, error) {
	var entries []app.LeaderboardEntry
	err := s.conn.NewSelect().
		TableExpr("attempts AS a").
		ColumnExpr("u.id AS user_id").
		ColumnExpr("u.display_name AS display_name").
		ColumnExpr("a.score AS score").
		ColumnExpr("a.max_score AS max_score").
		ColumnExpr("a.submitted_at AS submitted_at").
		Join("JOIN event_participants AS p ON p.id = a.participant_id").
		Join("JOIN users AS u ON u.id = p.user_id").
		Where("a.event_id = ?", eventID).
		Where("a.status = ?", string(domain.AttemptSubmitted)).
		OrderExpr("a.score DESC, a.submitted_at ASC").
		Limit(limit).
		Scan(ctx, &entries)
	if err != nil {
		return nil, mapError(err, "leaderboard")
	}
	return entries, nil
}

// WriteAudit implements audit.Writer. Called from the recorder goroutine,
// outside any request transaction.
func (s *Store) WriteAudit(ctx context.Context, e audit.Entry) error {
	row := auditRow{
		CreatedAt:    e.CreatedAt,
		ActorID:      e.ActorID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
	}
	_, err := s.conn.NewInsert().Model(&row).Exec(ctx)
	return err
}

const uniqueViolation = "23505"

func mapError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		if strings.Contains(pgErr.Field('n'), "join_code") {
			return domain.ErrJoinCodeTaken
		}
		return fmt.Errorf("%w: %s already exists", domain.ErrConflict, what)
	}
	return err
}
