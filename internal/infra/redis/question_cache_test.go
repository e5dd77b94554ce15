package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"karoot/internal/domain"
)

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{questions: sampleQuestions()}
	cache := NewQuestionCache(newClient(mr), loader, time.Minute)

	qs, err := cache.Questions(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(qs) != 2 || qs[0].ID != "q1" {
		t.Fatalf("unexpected questions %+v", qs)
	}
	if !mr.Exists("karoot:game:game-1:questions") {
		t.Fatalf("expected redis hash to be set")
	}

	// Second call should hit cache, loader not incremented.
	qs, err = cache.Questions(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(qs) != 2 || qs[0].Order != 1 || qs[1].Order != 2 {
		t.Fatalf("expected cached questions in order, got %+v", qs)
	}
	if len(qs[0].Options) != 4 || !qs[0].Options[1].IsCorrect {
		t.Fatalf("expected options to survive the cache, got %+v", qs[0].Options)
	}
}

func TestQuestionCacheInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{questions: sampleQuestions()}
	cache := NewQuestionCache(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	_, _ = cache.Questions(ctx, "game-1")
	if err := cache.Invalidate(ctx, "game-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("karoot:game:game-1:questions") {
		t.Fatalf("expected redis key to be removed")
	}
	_, _ = cache.Questions(ctx, "game-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	questions []domain.Question
	calls     int
}

func (l *countingLoader) ListQuestions(_ context.Context, _ string) ([]domain.Question, error) {
	l.calls++
	return l.questions, nil
}

func sampleQuestions() []domain.Question {
	mk := func(id string, order int, text string) domain.Question {
		return domain.Question{
			ID:     id,
			GameID: "game-1",
			Text:   text,
			Order:  order,
			Points: 1,
			Options: []domain.Option{
				{ID: id + "-o1", Text: "3", Position: 0},
				{ID: id + "-o2", Text: "4", IsCorrect: true, Position: 1},
				{ID: id + "-o3", Text: "5", Position: 2},
				{ID: id + "-o4", Text: "22", Position: 3},
			},
		}
	}
	return []domain.Question{mk("q1", 1, "What is 2 + 2?"), mk("q2", 2, "What is 1 + 3?")}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
