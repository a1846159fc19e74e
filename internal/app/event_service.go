package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quiz-event-service/internal/audit"
	"quiz-event-service/internal/domain"
)

// EventService owns the event lifecycle (OPEN -> RUNNING -> CLOSED/CANCELLED)
// and join-code enrollment.
type EventService struct {
	store Store
	audit audit.Sink
	now   func() time.Time
}

func NewEventService(store Store, sink audit.Sink) *EventService {
	return NewEventServiceWithClock(store, sink, time.Now)
}

// NewEventServiceWithClock allows deterministic timestamps in tests.
func NewEventServiceWithClock(store Store, sink audit.Sink, now func() time.Time) *EventService {
	return &EventService{store: store, audit: sink, now: now}
}

// CreateEventRequest carries the host's parameters for a new event.
type CreateEventRequest struct {
	QuizID          int64
	Name            string
	DurationSeconds int
	JoinClosesAt    *time.Time
}

// Create opens a new event for a quiz. Only the quiz owner or an admin may
// host one. The join code is drawn randomly and redrawn on collision.
func (s *EventService) Create(ctx context.Context, callerID int64, req CreateEventRequest) (domain.Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Event{}, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if req.DurationSeconds <= 0 {
		return domain.Event{}, fmt.Errorf("%w: durationSeconds must be > 0", domain.ErrValidation)
	}
	if req.JoinClosesAt != nil && req.JoinClosesAt.Before(s.now()) {
		return domain.Event{}, fmt.Errorf("%w: joinClosesAt must be in the future", domain.ErrValidation)
	}

	var event domain.Event
	err := s.store.Atomic(ctx, func(store Store) error {
		quiz, err := store.GetQuiz(ctx, req.QuizID)
		if err != nil {
			return err
		}
		caller, err := store.GetUser(ctx, callerID)
		if err != nil {
			return err
		}
		if quiz.OwnerID != caller.ID && !caller.IsAdmin() {
			return fmt.Errorf("%w: only the quiz owner or an admin can create events", domain.ErrForbidden)
		}

		event = domain.Event{
			QuizID:          quiz.ID,
			HostID:          caller.ID,
			Name:            name,
			Status:          domain.EventOpen,
			DurationSeconds: req.DurationSeconds,
			JoinClosesAt:    req.JoinClosesAt,
		}
		for i := 0; i < joinCodeRetries; i++ {
			code, err := newJoinCode()
			if err != nil {
				return err
			}
			event.JoinCode = code
			err = store.CreateEvent(ctx, &event)
			if errors.Is(err, domain.ErrJoinCodeTaken) {
				continue
			}
			return err
		}
		return fmt.Errorf("no unique join code after %d draws", joinCodeRetries)
	})
	if err != nil {
		return domain.Event{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "create_event",
		ResourceType: "event",
		ResourceID:   event.ID,
		Details:      fmt.Sprintf("quiz=%d joinCode=%s", event.QuizID, event.JoinCode),
	})
	return event, nil
}

// Get returns the event by id.
func (s *EventService) Get(ctx context.Context, eventID int64) (domain.Event, error) {
	return s.store.GetEvent(ctx, eventID)
}

// Join enrolls the caller into an OPEN event via its join code. The code is
// matched case-insensitively.
func (s *EventService) Join(ctx context.Context, callerID int64, joinCode string) (domain.Event, error) {
	code := strings.ToUpper(strings.TrimSpace(joinCode))
	if code == "" {
		return domain.Event{}, fmt.Errorf("%w: joinCode is required", domain.ErrValidation)
	}

	var event domain.Event
	err := s.store.Atomic(ctx, func(store Store) error {
		var err error
		event, err = store.GetEventByJoinCode(ctx, code)
		if err != nil {
			return err
		}
		if event.Status != domain.EventOpen {
			return fmt.Errorf("%w: event is not open for joining", domain.ErrConflict)
		}
		now := s.now()
		if event.JoinClosesAt != nil && !now.Before(*event.JoinClosesAt) {
			return fmt.Errorf("%w: joining is closed", domain.ErrConflict)
		}
		if event.StartsAt != nil && !now.Before(*event.StartsAt) {
			return fmt.Errorf("%w: event already started", domain.ErrConflict)
		}

		if _, err := store.GetParticipant(ctx, event.ID, callerID); err == nil {
			return fmt.Errorf("%w: already joined", domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		// the unique (event,user) index backstops the check above under races
		return store.AddParticipant(ctx, &domain.Participant{EventID: event.ID, UserID: callerID})
	})
	if err != nil {
		return domain.Event{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "join_event",
		ResourceType: "event",
		ResourceID:   event.ID,
	})
	return event, nil
}

// Start transitions an OPEN event to RUNNING, freezing the join window and
// fixing the submission deadline at now+duration.
func (s *EventService) Start(ctx context.Context, callerID, eventID int64) error {
	err := s.store.Atomic(ctx, func(store Store) error {
		event, err := store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := s.requireHostOrAdmin(ctx, store, event, callerID, "start"); err != nil {
			return err
		}
		if event.Status != domain.EventOpen {
			return fmt.Errorf("%w: event is not open", domain.ErrConflict)
		}
		now := s.now()
		if event.JoinClosesAt != nil && !now.Before(*event.JoinClosesAt) {
			return fmt.Errorf("%w: joining period has ended", domain.ErrConflict)
		}

		ends := now.Add(time.Duration(event.DurationSeconds) * time.Second)
		event.Status = domain.EventRunning
		event.StartsAt = &now
		event.EndsAt = &ends
		event.JoinClosesAt = &now
		return store.UpdateEvent(ctx, &event)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "start_event",
		ResourceType: "event",
		ResourceID:   eventID,
	})
	return nil
}

// Close ends the event. Idempotent: closing a CLOSED or CANCELLED event is a
// no-op.
func (s *EventService) Close(ctx context.Context, callerID, eventID int64) error {
	err := s.store.Atomic(ctx, func(store Store) error {
		event, err := store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := s.requireHostOrAdmin(ctx, store, event, callerID, "close"); err != nil {
			return err
		}
		if event.Status == domain.EventClosed || event.Status == domain.EventCancelled {
			return nil
		}
		now := s.now()
		event.Status = domain.EventClosed
		event.EndsAt = &now
		event.JoinClosesAt = &now
		return store.UpdateEvent(ctx, &event)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "close_event",
		ResourceType: "event",
		ResourceID:   eventID,
	})
	return nil
}

// Cancel withdraws an event that never ran. RUNNING and CLOSED events cannot
// be cancelled; cancelling a CANCELLED event is a no-op.
func (s *EventService) Cancel(ctx context.Context, callerID, eventID int64) error {
	err := s.store.Atomic(ctx, func(store Store) error {
		event, err := store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := s.requireHostOrAdmin(ctx, store, event, callerID, "cancel"); err != nil {
			return err
		}
		switch event.Status {
		case domain.EventCancelled:
			return nil
		case domain.EventRunning:
			return fmt.Errorf("%w: cannot cancel a running event", domain.ErrConflict)
		case domain.EventClosed:
			return fmt.Errorf("%w: cannot cancel a closed event", domain.ErrConflict)
		}
		now := s.now()
		event.Status = domain.EventCancelled
		event.EndsAt = &now
		event.JoinClosesAt = &now
		return store.UpdateEvent(ctx, &event)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "cancel_event",
		ResourceType: "event",
		ResourceID:   eventID,
	})
	return nil
}

// Leave removes the caller's enrollment. Only possible while the event is
// still OPEN.
func (s *EventService) Leave(ctx context.Context, callerID, eventID int64) error {
	err := s.store.Atomic(ctx, func(store Store) error {
		event, err := store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status != domain.EventOpen {
			return fmt.Errorf("%w: can only leave before the event starts", domain.ErrConflict)
		}
		participant, err := store.GetParticipant(ctx, event.ID, callerID)
		if err != nil {
			return err
		}
		return store.RemoveParticipant(ctx, participant.ID)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      callerID,
		Action:       "leave_event",
		ResourceType: "event",
		ResourceID:   eventID,
	})
	return nil
}

func (s *EventService) requireHostOrAdmin(ctx context.Context, store Store, event domain.Event, callerID int64, verb string) error {
	caller, err := store.GetUser(ctx, callerID)
	if err != nil {
		return err
	}
	if event.HostID != caller.ID && !caller.IsAdmin() {
		return fmt.Errorf("%w: only the host or an admin can %s the event", domain.ErrForbidden, verb)
	}
	return nil
}

// autoCloseIfExpired flips a RUNNING event whose deadline has passed to
// CLOSED. It commits in its own transaction so the close sticks even when
// the operation that triggered the check goes on to reject.
func autoCloseIfExpired(ctx context.Context, store Store, eventID int64, now time.Time) error {
	return store.Atomic(ctx, func(store Store) error {
		event, err := store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status != domain.EventRunning || event.EndsAt == nil || now.Before(*event.EndsAt) {
			return nil
		}
		event.Status = domain.EventClosed
		return store.UpdateEvent(ctx, &event)
	})
}

// ensureAcceptingSubmissions gates every attempt mutation: the event must be
// RUNNING with its window open right now. An expired RUNNING event is
// flipped to CLOSED before rejecting.
func ensureAcceptingSubmissions(ctx context.Context, store Store, event *domain.Event, now time.Time) error {
	if event.Status == domain.EventCancelled {
		return fmt.Errorf("%w: event was cancelled", domain.ErrConflict)
	}
	if event.Status == domain.EventRunning && event.EndsAt != nil && !now.Before(*event.EndsAt) {
		event.Status = domain.EventClosed
		if err := store.UpdateEvent(ctx, event); err != nil {
			return err
		}
	}
	if event.Status != domain.EventRunning {
		return fmt.Errorf("%w: event is not running", domain.ErrConflict)
	}
	if event.StartsAt == nil || event.EndsAt == nil {
		return fmt.Errorf("%w: event timing is not initialized", domain.ErrConflict)
	}
	if now.Before(*event.StartsAt) {
		return fmt.Errorf("%w: event has not started yet", domain.ErrConflict)
	}
	if !now.Before(*event.EndsAt) {
		// unreachable after the flip above; kept as a guard against clock skew
		event.Status = domain.EventClosed
		if err := store.UpdateEvent(ctx, event); err != nil {
			return err
		}
		return fmt.Errorf("%w: event has ended", domain.ErrConflict)
	}
	return nil
}
