package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"quiz-event-service/internal/app"
	"quiz-event-service/internal/domain"
	"quiz-event-service/internal/infra/memory"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type fixture struct {
	store *memory.Store
	log   *memory.AuditLog
	clock *fakeClock

	host  domain.User
	admin domain.User
	alice domain.User
	bob   domain.User

	quizzes  *app.QuizService
	events   *app.EventService
	attempts *app.AttemptService
	board    *app.LeaderboardService

	quiz domain.Quiz
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	log := memory.NewAuditLog()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	f := &fixture{
		store: store,
		log:   log,
		clock: clock,
		host:  store.PutUser(domain.User{DisplayName: "host", Role: domain.RoleUser}),
		admin: store.PutUser(domain.User{DisplayName: "admin", Role: domain.RoleAdmin}),
		alice: store.PutUser(domain.User{DisplayName: "alice", Role: domain.RoleUser}),
		bob:   store.PutUser(domain.User{DisplayName: "bob", Role: domain.RoleUser}),
	}

	cache := memory.NewQuizCache(memory.NewStoreQuizLoader(store), time.Minute)
	f.quizzes = app.NewQuizService(store, log)
	f.events = app.NewEventServiceWithClock(store, log, clock.Now)
	f.attempts = app.NewAttemptServiceWithClock(store, cache, log, clock.Now)
	f.board = app.NewLeaderboardService(store)

	quiz, err := f.quizzes.Create(context.Background(), f.host.ID, sampleQuizRequest())
	if err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	f.quiz = quiz
	return f
}

// sampleQuizRequest is worth 9 points: 2 for the capital, 3 for the sum, 4
// for the multi-select.
func sampleQuizRequest() app.CreateQuizRequest {
	return app.CreateQuizRequest{
		Title: "general knowledge",
		Questions: []app.QuestionInput{
			{
				Type:          domain.QuestionFreeText,
				Prompt:        "Capital of France?",
				Points:        2,
				CorrectAnswer: "Paris",
			},
			{
				Type:   domain.QuestionSingleChoice,
				Prompt: "2 + 2?",
				Points: 3,
				Options: []app.OptionInput{
					{Text: "3"},
					{Text: "4", Correct: true},
					{Text: "5"},
				},
			},
			{
				Type:   domain.QuestionMultipleChoice,
				Prompt: "Which are prime?",
				Points: 4,
				Options: []app.OptionInput{
					{Text: "2", Correct: true},
					{Text: "3", Correct: true},
					{Text: "4"},
					{Text: "6"},
				},
			},
		},
	}
}

func (f *fixture) openEvent(t *testing.T) domain.Event {
	t.Helper()
	event, err := f.events.Create(context.Background(), f.host.ID, app.CreateEventRequest{
		QuizID:          f.quiz.ID,
		Name:            "friday night",
		DurationSeconds: 600,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return event
}

func (f *fixture) runningEvent(t *testing.T, playerIDs ...int64) domain.Event {
	t.Helper()
	ctx := context.Background()
	event := f.openEvent(t)
	for _, id := range playerIDs {
		if _, err := f.events.Join(ctx, id, event.JoinCode); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if err := f.events.Start(ctx, f.host.ID, event.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	running, err := f.events.Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return running
}

func strPtr(s string) *string { return &s }

func TestCreateEventValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		name string
		req  app.CreateEventRequest
		want error
	}{
		{"empty name", app.CreateEventRequest{QuizID: f.quiz.ID, DurationSeconds: 60}, domain.ErrValidation},
		{"zero duration", app.CreateEventRequest{QuizID: f.quiz.ID, Name: "x"}, domain.ErrValidation},
		{"negative duration", app.CreateEventRequest{QuizID: f.quiz.ID, Name: "x", DurationSeconds: -5}, domain.ErrValidation},
		{"unknown quiz", app.CreateEventRequest{QuizID: 999, Name: "x", DurationSeconds: 60}, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.events.Create(ctx, f.host.ID, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	past := f.clock.Now().Add(-time.Minute)
	_, err := f.events.Create(ctx, f.host.ID, app.CreateEventRequest{
		QuizID: f.quiz.ID, Name: "x", DurationSeconds: 60, JoinClosesAt: &past,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for past joinClosesAt, got %v", err)
	}
}

func TestCreateEventPermissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := app.CreateEventRequest{QuizID: f.quiz.ID, Name: "x", DurationSeconds: 60}

	if _, err := f.events.Create(ctx, f.alice.ID, req); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}
	if _, err := f.events.Create(ctx, f.admin.ID, req); err != nil {
		t.Fatalf("admin should be allowed: %v", err)
	}
}

func TestCreateEventDrawsJoinCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	event := f.openEvent(t)
	if len(event.JoinCode) != 8 {
		t.Fatalf("expected 8-char join code, got %q", event.JoinCode)
	}
	for _, r := range event.JoinCode {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			t.Fatalf("unexpected join code character %q in %q", r, event.JoinCode)
		}
	}
	if event.Status != domain.EventOpen {
		t.Fatalf("expected OPEN, got %s", event.Status)
	}

	seen := map[string]bool{event.JoinCode: true}
	for i := 0; i < 300; i++ {
		e, err := f.events.Create(ctx, f.host.ID, app.CreateEventRequest{
			QuizID: f.quiz.ID, Name: "x", DurationSeconds: 60,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if seen[e.JoinCode] {
			t.Fatalf("duplicate join code %q", e.JoinCode)
		}
		seen[e.JoinCode] = true
	}
}

func TestJoinNormalizesCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.openEvent(t)

	lower := "  " + strings.ToLower(event.JoinCode) + "  "
	joined, err := f.events.Join(ctx, f.alice.ID, lower)
	if err != nil {
		t.Fatalf("join with padded code: %v", err)
	}
	if joined.ID != event.ID {
		t.Fatalf("joined wrong event")
	}

	if _, err := f.events.Join(ctx, f.alice.ID, event.JoinCode); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on double join, got %v", err)
	}
	if _, err := f.events.Join(ctx, f.bob.ID, "NOPE0000"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown code, got %v", err)
	}
	if _, err := f.events.Join(ctx, f.bob.ID, "   "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation for blank code, got %v", err)
	}
}

func TestJoinWindowCloses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	closes := f.clock.Now().Add(5 * time.Minute)
	event, err := f.events.Create(ctx, f.host.ID, app.CreateEventRequest{
		QuizID: f.quiz.ID, Name: "x", DurationSeconds: 60, JoinClosesAt: &closes,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	f.clock.advance(5 * time.Minute)
	if _, err := f.events.Join(ctx, f.alice.ID, event.JoinCode); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict after join window, got %v", err)
	}
	if err := f.events.Start(ctx, f.host.ID, event.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict starting after join window, got %v", err)
	}
}

func TestStartEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.openEvent(t)

	if err := f.events.Start(ctx, f.alice.ID, event.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-host, got %v", err)
	}
	if err := f.events.Start(ctx, f.host.ID, event.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	running, err := f.events.Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if running.Status != domain.EventRunning {
		t.Fatalf("expected RUNNING, got %s", running.Status)
	}
	if running.StartsAt == nil || !running.StartsAt.Equal(f.clock.Now()) {
		t.Fatalf("startsAt not fixed to now: %v", running.StartsAt)
	}
	wantEnd := f.clock.Now().Add(600 * time.Second)
	if running.EndsAt == nil || !running.EndsAt.Equal(wantEnd) {
		t.Fatalf("endsAt = %v, want %v", running.EndsAt, wantEnd)
	}

	if err := f.events.Start(ctx, f.host.ID, event.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second start, got %v", err)
	}
	if _, err := f.events.Join(ctx, f.alice.ID, event.JoinCode); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict joining a running event, got %v", err)
	}
}

func TestCloseEventIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.runningEvent(t, f.alice.ID)

	if err := f.events.Close(ctx, f.host.ID, event.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	closed, _ := f.events.Get(ctx, event.ID)
	if closed.Status != domain.EventClosed {
		t.Fatalf("expected CLOSED, got %s", closed.Status)
	}
	if err := f.events.Close(ctx, f.host.ID, event.ID); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if err := f.events.Cancel(ctx, f.host.ID, event.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict cancelling a closed event, got %v", err)
	}
}

func TestCancelEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.openEvent(t)

	if err := f.events.Cancel(ctx, f.host.ID, event.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	cancelled, _ := f.events.Get(ctx, event.ID)
	if cancelled.Status != domain.EventCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	if err := f.events.Cancel(ctx, f.host.ID, event.ID); err != nil {
		t.Fatalf("second cancel should be a no-op: %v", err)
	}

	running := f.runningEvent(t, f.alice.ID)
	if err := f.events.Cancel(ctx, f.host.ID, running.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict cancelling a running event, got %v", err)
	}
}

func TestLeaveEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.openEvent(t)

	if err := f.events.Leave(ctx, f.alice.ID, event.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for non-participant, got %v", err)
	}

	if _, err := f.events.Join(ctx, f.alice.ID, event.JoinCode); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.events.Leave(ctx, f.alice.ID, event.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	// leaving frees the slot
	if _, err := f.events.Join(ctx, f.alice.ID, event.JoinCode); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	if err := f.events.Start(ctx, f.host.ID, event.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.events.Leave(ctx, f.alice.ID, event.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict leaving a running event, got %v", err)
	}
}

func TestEventAuditTrail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.openEvent(t)
	if _, err := f.events.Join(ctx, f.alice.ID, event.JoinCode); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.events.Start(ctx, f.host.ID, event.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.events.Close(ctx, f.host.ID, event.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	var actions []string
	for _, e := range f.log.Entries() {
		actions = append(actions, e.Action)
	}
	want := []string{"create_quiz", "create_event", "join_event", "start_event", "close_event"}
	if len(actions) != len(want) {
		t.Fatalf("audit actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("audit actions = %v, want %v", actions, want)
		}
	}
}
