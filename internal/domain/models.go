package domain

import "time"

// Role distinguishes regular users from admins; admins bypass owner/host checks.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the minimal read model for a resolved principal.
type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// QuestionType tags the question variant; grading dispatches on it.
type QuestionType string

const (
	QuestionFreeText       QuestionType = "free_text"
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
)

// Option is one selectable answer of a choice question.
type Option struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Correct  bool   `json:"correct"`
	Position int    `json:"position"`
}

// Question is a tagged union over the three variants. CorrectAnswer and
// CaseSensitive apply to free-text questions only; Options to choice
// questions only.
type Question struct {
	ID            int64        `json:"id"`
	QuizID        int64        `json:"quizId"`
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt"`
	Points        int          `json:"points"`
	Position      int          `json:"position"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"`
	CaseSensitive bool         `json:"caseSensitive,omitempty"`
	Options       []Option     `json:"options,omitempty"`
}

// Quiz is the aggregate root for a question tree. Questions are ordered by
// Position. A quiz must not be modified once an event references it in
// RUNNING or a later state.
type Quiz struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"ownerId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// EventStatus is the event lifecycle state. CLOSED and CANCELLED are terminal.
type EventStatus string

const (
	EventOpen      EventStatus = "open"
	EventRunning   EventStatus = "running"
	EventClosed    EventStatus = "closed"
	EventCancelled EventStatus = "cancelled"
)

// Event is one timed instance of a quiz. Timing fields stay nil until the
// host starts the event.
type Event struct {
	ID              int64       `json:"id"`
	QuizID          int64       `json:"quizId"`
	HostID          int64       `json:"hostId"`
	Name            string      `json:"name"`
	JoinCode        string      `json:"joinCode"`
	Status          EventStatus `json:"status"`
	DurationSeconds int         `json:"durationSeconds"`
	StartsAt        *time.Time  `json:"startsAt,omitempty"`
	EndsAt          *time.Time  `json:"endsAt,omitempty"`
	JoinClosesAt    *time.Time  `json:"joinClosesAt,omitempty"`
	Version         int64       `json:"-"`
}

// Participant is one enrollment row, unique per (event, user).
type Participant struct {
	ID      int64 `json:"id"`
	EventID int64 `json:"eventId"`
	UserID  int64 `json:"userId"`
}

// AttemptStatus is the attempt lifecycle state. SUBMITTED and ABANDONED are
// terminal.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// AnswerKind tags the answer variant.
type AnswerKind string

const (
	AnswerText   AnswerKind = "text"
	AnswerChoice AnswerKind = "choice"
)

// Answer is the graded record persisted per question on submit. Text holds
// the raw submitted text for text answers (nil when unanswered);
// SelectedOptionIDs holds the resolvable selected options for choice answers.
// Unknown option ids are dropped, not stored.
type Answer struct {
	ID                int64      `json:"id"`
	AttemptID         int64      `json:"attemptId"`
	QuestionID        int64      `json:"questionId"`
	Kind              AnswerKind `json:"kind"`
	Text              *string    `json:"text,omitempty"`
	SelectedOptionIDs []int64    `json:"selectedOptionIds,omitempty"`
	Correct           bool       `json:"correct"`
	PointsAwarded     int        `json:"pointsAwarded"`
}

// Attempt is one participant's single graded pass through an event's quiz.
type Attempt struct {
	ID            int64         `json:"id"`
	EventID       int64         `json:"eventId"`
	ParticipantID int64         `json:"participantId"`
	Status        AttemptStatus `json:"status"`
	StartedAt     time.Time     `json:"startedAt"`
	SubmittedAt   *time.Time    `json:"submittedAt,omitempty"`
	AbandonedAt   *time.Time    `json:"abandonedAt,omitempty"`
	Score         int           `json:"score"`
	MaxScore      int           `json:"maxScore"`
	Answers       []Answer      `json:"answers,omitempty"`
	Version       int64         `json:"-"`
}

// AnswerSubmission is one submitted answer from a client. TextAnswer is used
// for free-text questions, SelectedOptionIDs for choice questions.
type AnswerSubmission struct {
	QuestionID        int64   `json:"questionId"`
	SelectedOptionIDs []int64 `json:"selectedOptionIds,omitempty"`
	TextAnswer        *string `json:"textAnswer,omitempty"`
}

// AnswerResult is the per-question outcome reported back on submit.
type AnswerResult struct {
	QuestionID    int64 `json:"questionId"`
	Correct       bool  `json:"correct"`
	PointsAwarded int   `json:"pointsAwarded"`
}
