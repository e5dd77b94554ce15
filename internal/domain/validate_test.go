package domain

import (
	"strings"
	"testing"
)

func TestCleanTitle(t *testing.T) {
	if _, err := CleanTitle("  ab "); !IsValidation(err) {
		t.Fatalf("expected validation error for short title, got %v", err)
	}
	if _, err := CleanTitle(strings.Repeat("x", 51)); !IsValidation(err) {
		t.Fatalf("expected validation error for long title, got %v", err)
	}
	got, err := CleanTitle("  <b>Quiz Game</b> ")
	if err != nil {
		t.Fatalf("clean title: %v", err)
	}
	if got != "Quiz Game" {
		t.Fatalf("expected sanitized title, got %q", got)
	}
	if got, err := CleanTitle("Tom & Jerry's quiz"); err != nil || got != "Tom & Jerry's quiz" {
		t.Fatalf("expected title kept as typed, got %q err=%v", got, err)
	}
}

func TestSanitizeKeepsPlainText(t *testing.T) {
	cases := map[string]string{
		"Is 1 < 2 & who's right?":       "Is 1 < 2 & who's right?",
		"  Tom & Jerry's quiz ":         "Tom & Jerry's quiz",
		"<script>alert(1)</script>Kale": "Kale",
		"<b>Carrot</b>":                 "Carrot",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanNickname(t *testing.T) {
	if _, err := CleanNickname("A"); !IsValidation(err) {
		t.Fatalf("expected short nickname rejected, got %v", err)
	}
	if _, err := CleanNickname("abcdefghijklmnop"); !IsValidation(err) {
		t.Fatalf("expected long nickname rejected, got %v", err)
	}
	if got, err := CleanNickname("Ben & Jerry's"); err != nil || got != "Ben & Jerry's" {
		t.Fatalf("expected 13 character nickname kept as typed, got %q err=%v", got, err)
	}
	if got, err := CleanNickname(" Alice "); err != nil || got != "Alice" {
		t.Fatalf("expected Alice, got %q err=%v", got, err)
	}
}

func TestValidCode(t *testing.T) {
	for _, c := range []string{"1234", "0000"} {
		if !ValidCode(c) {
			t.Fatalf("expected %q valid", c)
		}
	}
	for _, c := range []string{"123", "12345", "12a4", ""} {
		if ValidCode(c) {
			t.Fatalf("expected %q invalid", c)
		}
	}
}

func TestValidateQuestion(t *testing.T) {
	q := carrotQuestion()
	if err := ValidateQuestion(q); err != nil {
		t.Fatalf("expected valid question, got %v", err)
	}

	noCorrect := carrotQuestion()
	noCorrect.Options[0].IsCorrect = false
	if err := ValidateQuestion(noCorrect); !IsValidation(err) {
		t.Fatalf("expected missing correct option rejected, got %v", err)
	}

	twoCorrect := carrotQuestion()
	twoCorrect.Options[1].IsCorrect = true
	if err := ValidateQuestion(twoCorrect); !IsValidation(err) {
		t.Fatalf("expected two correct options rejected, got %v", err)
	}

	three := carrotQuestion()
	three.Options = three.Options[:3]
	if err := ValidateQuestion(three); !IsValidation(err) {
		t.Fatalf("expected three options rejected, got %v", err)
	}

	blank := carrotQuestion()
	blank.Options[2].Text = ""
	if err := ValidateQuestion(blank); !IsValidation(err) {
		t.Fatalf("expected blank option rejected, got %v", err)
	}

	if err := ValidateForPublish(nil); !IsValidation(err) {
		t.Fatalf("expected empty question set rejected, got %v", err)
	}
}

func carrotQuestion() Question {
	return Question{
		ID:    "q1",
		Text:  "What color is a carrot?",
		Order: 1,
		Options: []Option{
			{ID: "o1", Text: "Orange", IsCorrect: true, Position: 0},
			{ID: "o2", Text: "Blue", Position: 1},
			{ID: "o3", Text: "Green", Position: 2},
			{ID: "o4", Text: "Purple", Position: 3},
		},
	}
}
