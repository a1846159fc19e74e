package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quiz-event-service/internal/app"
	"quiz-event-service/internal/domain"
)

// Store is an in-memory implementation of app.Store for tests and demo mode.
// A single mutex is the serialization point: Atomic holds it for the whole
// callback, satisfying the no-interleaving contract.
type Store struct {
	mu sync.Mutex

	seq                  int64
	users                map[int64]domain.User
	quizzes              map[int64]domain.Quiz
	events               map[int64]domain.Event
	eventIDByCode        map[string]int64
	participants         map[int64]domain.Participant
	participantIDByKey   map[[2]int64]int64 // (eventID, userID)
	attempts             map[int64]domain.Attempt
	attemptIDByParticip  map[int64]int64
}

func NewStore() *Store {
	return &Store{
		users:               make(map[int64]domain.User),
		quizzes:             make(map[int64]domain.Quiz),
		events:              make(map[int64]domain.Event),
		eventIDByCode:       make(map[string]int64),
		participants:        make(map[int64]domain.Participant),
		participantIDByKey:  make(map[[2]int64]int64),
		attempts:            make(map[int64]domain.Attempt),
		attemptIDByParticip: make(map[int64]int64),
	}
}

// PutUser seeds a user, assigning an id when missing. Test/demo helper; not
// part of app.Store.
func (s *Store) PutUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextID()
	}
	s.users[u.ID] = u
	return u
}

func (s *Store) Atomic(_ context.Context, fn func(app.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&unlocked{s})
}

// unlocked exposes the store inside an Atomic block without re-locking.
type unlocked struct{ s *Store }

func (u *unlocked) Atomic(_ context.Context, fn func(app.Store) error) error { return fn(u) }

func (u *unlocked) GetUser(_ context.Context, id int64) (domain.User, error) { return u.s.getUser(id) }
func (u *unlocked) CreateQuiz(_ context.Context, q *domain.Quiz) error       { return u.s.createQuiz(q) }
func (u *unlocked) GetQuiz(_ context.Context, id int64) (domain.Quiz, error) { return u.s.getQuiz(id) }
func (u *unlocked) UpdateQuiz(_ context.Context, q *domain.Quiz) error       { return u.s.updateQuiz(q) }
func (u *unlocked) DeleteQuiz(_ context.Context, id int64) error             { return u.s.deleteQuiz(id) }
func (u *unlocked) CreateEvent(_ context.Context, e *domain.Event) error     { return u.s.createEvent(e) }
func (u *unlocked) GetEvent(_ context.Context, id int64) (domain.Event, error) {
	return u.s.getEvent(id)
}
func (u *unlocked) GetEventByJoinCode(_ context.Context, code string) (domain.Event, error) {
	return u.s.getEventByJoinCode(code)
}
func (u *unlocked) UpdateEvent(_ context.Context, e *domain.Event) error { return u.s.updateEvent(e) }
func (u *unlocked) AddParticipant(_ context.Context, p *domain.Participant) error {
	return u.s.addParticipant(p)
}
func (u *unlocked) GetParticipant(_ context.Context, eventID, userID int64) (domain.Participant, error) {
	return u.s.getParticipant(eventID, userID)
}
func (u *unlocked) RemoveParticipant(_ context.Context, id int64) error {
	return u.s.removeParticipant(id)
}
func (u *unlocked) CreateAttempt(_ context.Context, a *domain.Attempt) error {
	return u.s.createAttempt(a)
}
func (u *unlocked) AttemptByParticipant(_ context.Context, participantID int64) (domain.Attempt, error) {
	return u.s.attemptByParticipant(participantID)
}
func (u *unlocked) UpdateAttempt(_ context.Context, a *domain.Attempt) error {
	return u.s.updateAttempt(a)
}
func (u *unlocked) Leaderboard(_ context.Context, eventID int64, limit int) ([]app.LeaderboardEntry, error) {
	return u.s.leaderboard(eventID, limit)
}

// Locked pass-throughs for use outside Atomic.

func (s *Store) GetUser(_ context.Context, id int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUser(id)
}

func (s *Store) CreateQuiz(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createQuiz(q)
}

func (s *Store) GetQuiz(_ context.Context, id int64) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getQuiz(id)
}

func (s *Store) UpdateQuiz(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateQuiz(q)
}

func (s *Store) DeleteQuiz(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteQuiz(id)
}

func (s *Store) CreateEvent(_ context.Context, e *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createEvent(e)
}

func (s *Store) GetEvent(_ context.Context, id int64) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getEvent(id)
}

func (s *Store) GetEventByJoinCode(_ context.Context, code string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getEventByJoinCode(code)
}

func (s *Store) UpdateEvent(_ context.Context, e *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateEvent(e)
}

func (s *Store) AddParticipant(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addParticipant(p)
}

func (s *Store) GetParticipant(_ context.Context, eventID, userID int64) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getParticipant(eventID, userID)
}

func (s *Store) RemoveParticipant(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeParticipant(id)
}

func (s *Store) CreateAttempt(_ context.Context, a *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAttempt(a)
}

func (s *Store) AttemptByParticipant(_ context.Context, participantID int64) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptByParticipant(participantID)
}

func (s *Store) UpdateAttempt(_ context.Context, a *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAttempt(a)
}

func (s *Store) Leaderboard(_ context.Context, eventID int64, limit int) ([]app.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboard(eventID, limit)
}

// Internal, caller holds the lock.

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) getUser(id int64) (domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	return u, nil
}

func (s *Store) createQuiz(q *domain.Quiz) error {
	q.ID = s.nextID()
	for i := range q.Questions {
		q.Questions[i].ID = s.nextID()
		q.Questions[i].QuizID = q.ID
		for j := range q.Questions[i].Options {
			q.Questions[i].Options[j].ID = s.nextID()
		}
	}
	s.quizzes[q.ID] = copyQuiz(*q)
	return nil
}

func (s *Store) getQuiz(id int64) (domain.Quiz, error) {
	q, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, fmt.Errorf("%w: quiz %d", domain.ErrNotFound, id)
	}
	return copyQuiz(q), nil
}

func (s *Store) updateQuiz(q *domain.Quiz) error {
	if _, ok := s.quizzes[q.ID]; !ok {
		return fmt.Errorf("%w: quiz %d", domain.ErrNotFound, q.ID)
	}
	for i := range q.Questions {
		if q.Questions[i].ID == 0 {
			q.Questions[i].ID = s.nextID()
		}
		q.Questions[i].QuizID = q.ID
		for j := range q.Questions[i].Options {
			if q.Questions[i].Options[j].ID == 0 {
				q.Questions[i].Options[j].ID = s.nextID()
			}
		}
	}
	s.quizzes[q.ID] = copyQuiz(*q)
	return nil
}

func (s *Store) deleteQuiz(id int64) error {
	if _, ok := s.quizzes[id]; !ok {
		return fmt.Errorf("%w: quiz %d", domain.ErrNotFound, id)
	}
	delete(s.quizzes, id)
	return nil
}

func (s *Store) createEvent(e *domain.Event) error {
	if _, taken := s.eventIDByCode[e.JoinCode]; taken {
		return domain.ErrJoinCodeTaken
	}
	e.ID = s.nextID()
	e.Version = 1
	s.events[e.ID] = *e
	s.eventIDByCode[e.JoinCode] = e.ID
	return nil
}

func (s *Store) getEvent(id int64) (domain.Event, error) {
	e, ok := s.events[id]
	if !ok {
		return domain.Event{}, fmt.Errorf("%w: event %d", domain.ErrNotFound, id)
	}
	return e, nil
}

func (s *Store) getEventByJoinCode(code string) (domain.Event, error) {
	id, ok := s.eventIDByCode[code]
	if !ok {
		return domain.Event{}, fmt.Errorf("%w: invalid join code", domain.ErrNotFound)
	}
	return s.events[id], nil
}

func (s *Store) updateEvent(e *domain.Event) error {
	current, ok := s.events[e.ID]
	if !ok {
		return fmt.Errorf("%w: event %d", domain.ErrNotFound, e.ID)
	}
	if current.Version != e.Version {
		return fmt.Errorf("%w: event %d was modified concurrently", domain.ErrConflict, e.ID)
	}
	e.Version++
	s.events[e.ID] = *e
	return nil
}

func (s *Store) addParticipant(p *domain.Participant) error {
	key := [2]int64{p.EventID, p.UserID}
	if _, exists := s.participantIDByKey[key]; exists {
		return fmt.Errorf("%w: participant already exists", domain.ErrConflict)
	}
	p.ID = s.nextID()
	s.participants[p.ID] = *p
	s.participantIDByKey[key] = p.ID
	return nil
}

func (s *Store) getParticipant(eventID, userID int64) (domain.Participant, error) {
	id, ok := s.participantIDByKey[[2]int64{eventID, userID}]
	if !ok {
		return domain.Participant{}, fmt.Errorf("%w: participant not found for this user and event", domain.ErrNotFound)
	}
	return s.participants[id], nil
}

func (s *Store) removeParticipant(id int64) error {
	p, ok := s.participants[id]
	if !ok {
		return fmt.Errorf("%w: participant %d", domain.ErrNotFound, id)
	}
	delete(s.participants, id)
	delete(s.participantIDByKey, [2]int64{p.EventID, p.UserID})
	return nil
}

func (s *Store) createAttempt(a *domain.Attempt) error {
	if _, exists := s.attemptIDByParticip[a.ParticipantID]; exists {
		return fmt.Errorf("%w: attempt already exists", domain.ErrConflict)
	}
	a.ID = s.nextID()
	a.Version = 1
	s.attempts[a.ID] = copyAttempt(*a)
	s.attemptIDByParticip[a.ParticipantID] = a.ID
	return nil
}

func (s *Store) attemptByParticipant(participantID int64) (domain.Attempt, error) {
	id, ok := s.attemptIDByParticip[participantID]
	if !ok {
		return domain.Attempt{}, fmt.Errorf("%w: attempt for participant %d", domain.ErrNotFound, participantID)
	}
	return copyAttempt(s.attempts[id]), nil
}

func (s *Store) updateAttempt(a *domain.Attempt) error {
	current, ok := s.attempts[a.ID]
	if !ok {
		return fmt.Errorf("%w: attempt %d", domain.ErrNotFound, a.ID)
	}
	if current.Version != a.Version {
		return fmt.Errorf("%w: attempt %d was modified concurrently", domain.ErrConflict, a.ID)
	}
	a.Version++
	s.attempts[a.ID] = copyAttempt(*a)
	return nil
}

func (s *Store) leaderboard(eventID int64, limit int) ([]app.LeaderboardEntry, error) {
	var entries []app.LeaderboardEntry
	for _, a := range s.attempts {
		if a.EventID != eventID || a.Status != domain.AttemptSubmitted || a.SubmittedAt == nil {
			continue
		}
		p := s.participants[a.ParticipantID]
		u := s.users[p.UserID]
		entries = append(entries, app.LeaderboardEntry{
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			Score:       a.Score,
			MaxScore:    a.MaxScore,
			SubmittedAt: *a.SubmittedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func copyQuiz(q domain.Quiz) domain.Quiz {
	out := q
	out.Questions = make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		out.Questions[i] = question
		out.Questions[i].Options = append([]domain.Option(nil), question.Options...)
	}
	return out
}

func copyAttempt(a domain.Attempt) domain.Attempt {
	out := a
	out.Answers = make([]domain.Answer, len(a.Answers))
	for i, ans := range a.Answers {
		out.Answers[i] = ans
		out.Answers[i].SelectedOptionIDs = append([]int64(nil), ans.SelectedOptionIDs...)
	}
	return out
}
