package memory

import (
	"context"
	"testing"
	"time"

	"quiz-event-service/internal/domain"
)

func TestQuizCacheCaches(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	quiz := domain.Quiz{
		OwnerID: 1,
		Title:   "math",
		Questions: []domain.Question{
			{Type: domain.QuestionFreeText, Prompt: "2+2?", Points: 1, CorrectAnswer: "4"},
		},
	}
	if err := store.CreateQuiz(ctx, &quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	loader := &countingLoader{QuizLoader: NewStoreQuizLoader(store)}
	cache := NewQuizCache(loader, time.Minute)

	if _, err := cache.GetQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := cache.GetQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuizCacheExpires(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	quiz := domain.Quiz{
		OwnerID: 1,
		Title:   "math",
		Questions: []domain.Question{
			{Type: domain.QuestionFreeText, Prompt: "2+2?", Points: 1, CorrectAnswer: "4"},
		},
	}
	if err := store.CreateQuiz(ctx, &quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	loader := &countingLoader{QuizLoader: NewStoreQuizLoader(store)}
	cache := NewQuizCache(loader, time.Minute)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return current }

	if _, err := cache.GetQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, err := cache.GetQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("get quiz after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after TTL, loader calls %d", loader.calls)
	}
}

func TestQuizCacheMiss(t *testing.T) {
	cache := NewQuizCache(NewStoreQuizLoader(NewStore()), time.Minute)
	if _, err := cache.GetQuiz(context.Background(), 42); err == nil {
		t.Fatalf("expected error for unknown quiz")
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}
