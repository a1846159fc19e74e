package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"quiz-event-service/internal/domain"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          int64  `bun:"id,pk,autoincrement"`
	DisplayName string `bun:"display_name,notnull"`
	Role        string `bun:"role,notnull"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID          int64  `bun:"id,pk,autoincrement"`
	OwnerID     int64  `bun:"owner_id,notnull"`
	Title       string `bun:"title,notnull"`
	Description string `bun:"description,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qq"`

	ID            int64  `bun:"id,pk,autoincrement"`
	QuizID        int64  `bun:"quiz_id,notnull"`
	Type          string `bun:"type,notnull"`
	Prompt        string `bun:"prompt,notnull"`
	Points        int    `bun:"points,notnull"`
	Position      int    `bun:"position,notnull"`
	CorrectAnswer string `bun:"correct_answer,notnull"`
	CaseSensitive bool   `bun:"case_sensitive,notnull"`
}

type optionRow struct {
	bun.BaseModel `bun:"table:options,alias:o"`

	ID         int64  `bun:"id,pk,autoincrement"`
	QuestionID int64  `bun:"question_id,notnull"`
	Text       string `bun:"text,notnull"`
	Correct    bool   `bun:"correct,notnull"`
	Position   int    `bun:"position,notnull"`
}

type eventRow struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID              int64      `bun:"id,pk,autoincrement"`
	QuizID          int64      `bun:"quiz_id,notnull"`
	HostID          int64      `bun:"host_id,notnull"`
	Name            string     `bun:"name,notnull"`
	JoinCode        string     `bun:"join_code,notnull"`
	Status          string     `bun:"status,notnull"`
	DurationSeconds int        `bun:"duration_seconds,notnull"`
	StartsAt        *time.Time `bun:"starts_at"`
	EndsAt          *time.Time `bun:"ends_at"`
	JoinClosesAt    *time.Time `bun:"join_closes_at"`
	Version         int64      `bun:"version,notnull"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:event_participants,alias:p"`

	ID      int64 `bun:"id,pk,autoincrement"`
	EventID int64 `bun:"event_id,notnull"`
	UserID  int64 `bun:"user_id,notnull"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID            int64      `bun:"id,pk,autoincrement"`
	EventID       int64      `bun:"event_id,notnull"`
	ParticipantID int64      `bun:"participant_id,notnull"`
	Status        string     `bun:"status,notnull"`
	StartedAt     time.Time  `bun:"started_at,notnull"`
	SubmittedAt   *time.Time `bun:"submitted_at"`
	AbandonedAt   *time.Time `bun:"abandoned_at"`
	Score         int        `bun:"score,notnull"`
	MaxScore      int        `bun:"max_score,notnull"`
	Version       int64      `bun:"version,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:an"`

	ID                int64   `bun:"id,pk,autoincrement"`
	AttemptID         int64   `bun:"attempt_id,notnull"`
	QuestionID        int64   `bun:"question_id,notnull"`
	Kind              string  `bun:"kind,notnull"`
	Text              *string `bun:"text"`
	SelectedOptionIDs []int64 `bun:"selected_option_ids,array"`
	Correct           bool    `bun:"correct,notnull"`
	PointsAwarded     int     `bun:"points_awarded,notnull"`
}

type auditRow struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID           int64     `bun:"id,pk,autoincrement"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	ActorID      int64     `bun:"actor_id,notnull"`
	Action       string    `bun:"action,notnull"`
	ResourceType string    `bun:"resource_type,notnull"`
	ResourceID   int64     `bun:"resource_id,notnull"`
	Details      string    `bun:"details,notnull"`
}

func (r eventRow) toDomain() domain.Event {
	return domain.Event{
		ID:              r.ID,
		QuizID:          r.QuizID,
		HostID:          r.HostID,
		Name:            r.Name,
		JoinCode:        r.JoinCode,
		Status:          domain.EventStatus(r.Status),
		DurationSeconds: r.DurationSeconds,
		StartsAt:        r.StartsAt,
		EndsAt:          r.EndsAt,
		JoinClosesAt:    r.JoinClosesAt,
		Version:         r.Version,
	}
}

func eventToRow(e domain.Event) eventRow {
	return eventRow{
		ID:              e.ID,
		QuizID:          e.QuizID,
		HostID:          e.HostID,
		Name:            e.Name,
		JoinCode:        e.JoinCode,
		Status:          string(e.Status),
		DurationSeconds: e.DurationSeconds,
		StartsAt:        e.StartsAt,
		EndsAt:          e.EndsAt,
		JoinClosesAt:    e.JoinClosesAt,
		Version:         e.Version,
	}
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:            r.ID,
		EventID:       r.EventID,
		ParticipantID: r.ParticipantID,
		Status:        domain.AttemptStatus(r.Status),
		StartedAt:     r.StartedAt,
		SubmittedAt:   r.SubmittedAt,
		AbandonedAt:   r.AbandonedAt,
		Score:         r.Score,
		MaxScore:      r.MaxScore,
		Version:       r.Version,
	}
}

func attemptToRow(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:            a.ID,
		EventID:       a.EventID,
		ParticipantID: a.ParticipantID,
		Status:        string(a.Status),
		StartedAt:     a.StartedAt,
		SubmittedAt:   a.SubmittedAt,
		AbandonedAt:   a.AbandonedAt,
		Score:         a.Score,
		MaxScore:      a.MaxScore,
		Version:       a.Version,
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:                r.ID,
		AttemptID:         r.AttemptID,
		QuestionID:        r.QuestionID,
		Kind:              domain.AnswerKind(r.Kind),
		Text:              r.Text,
		SelectedOptionIDs: r.SelectedOptionIDs,
		Correct:           r.Correct,
		PointsAwarded:     r.PointsAwarded,
	}
}

func answerToRow(a domain.Answer) answerRow {
	return answerRow{
		ID:                a.ID,
		AttemptID:         a.AttemptID,
		QuestionID:        a.QuestionID,
		Kind:              string(a.Kind),
		Text:              a.Text,
		SelectedOptionIDs: a.SelectedOptionIDs,
		Correct:           a.Correct,
		PointsAwarded:     a.PointsAwarded,
	}
}
