package domain

import (
	"testing"
	"time"
)

func TestScore(t *testing.T) {
	limit := 15 * time.Second
	if got := Score(false, 0, limit, 1); got != 0 {
		t.Fatalf("incorrect answer should score 0, got %d", got)
	}
	if got := Score(true, 0, limit, 1); got != 1000 {
		t.Fatalf("instant answer should score 1000, got %d", got)
	}
	if got := Score(true, limit, limit, 1); got != 500 {
		t.Fatalf("answer at the limit should score 500, got %d", got)
	}
	if got := Score(true, 2*limit, limit, 2); got != 1000 {
		t.Fatalf("late answer clamps to half points, got %d", got)
	}
}

func TestBuildLeaderboardTieBreaks(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	participants := []Participant{
		{ID: "p1", Name: "Bob", CreatedAt: base.Add(time.Second)},
		{ID: "p2", Name: "Alice", CreatedAt: base},
		{ID: "p3", Name: "Cara", CreatedAt: base},
	}
	ms := int64(0)
	answers := []Answer{
		{ID: "a1", ParticipantID: "p1", QuestionID: "q1", OptionID: "o1", ResponseTimeMs: &ms},
		{ID: "a2", ParticipantID: "p2", QuestionID: "q1", OptionID: "o1", ResponseTimeMs: &ms},
		{ID: "a3", ParticipantID: "p3", QuestionID: "q1", OptionID: "o2", ResponseTimeMs: &ms},
	}
	lb := BuildLeaderboard(participants, []Question{carrotQuestion()}, answers, 15*time.Second)
	if len(lb) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lb))
	}
	if lb[0].Name != "Alice" || lb[1].Name != "Bob" || lb[2].Name != "Cara" {
		t.Fatalf("unexpected order: %+v", lb)
	}
	if lb[0].Score != 1000 || lb[0].Correct != 1 {
		t.Fatalf("unexpected top entry: %+v", lb[0])
	}
}

func TestResultMessage(t *testing.T) {
	cases := map[int]string{100: "Amazing job!", 80: "Amazing job!", 60: "Well done!", 40: "Good effort!", 39: "Thanks for playing!"}
	for pct, want := range cases {
		if got := ResultMessage(pct); got != want {
			t.Fatalf("pct %d: expected %q, got %q", pct, want, got)
		}
	}
}
