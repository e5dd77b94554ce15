package domain

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	TitleMinLen        = 3
	TitleMaxLen        = 50
	NicknameMinLen     = 2
	NicknameMaxLen     = 15
	OptionsPerQuestion = 4
)

var (
	policy   = bluemonday.StrictPolicy()
	codeExpr = regexp.MustCompile(`^\d{4}$`)
)

// Sanitize removes any HTML tags and trims whitespace from user input. The
// result is plain text: entities the policy escapes are decoded again, so
// lengths count what the user typed.
func Sanitize(input string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(input)))
}

// CleanTitle sanitizes and length-checks a game title.
func CleanTitle(raw string) (string, error) {
	title := Sanitize(raw)
	n := utf8.RuneCountInString(title)
	if n < TitleMinLen {
		return "", Invalid("title", "must be at least 3 characters")
	}
	if n > TitleMaxLen {
		return "", Invalid("title", "must be at most 50 characters")
	}
	return title, nil
}

// CleanNickname sanitizes and length-checks a participant nickname.
func CleanNickname(raw string) (string, error) {
	name := Sanitize(raw)
	n := utf8.RuneCountInString(name)
	if n < NicknameMinLen {
		return "", Invalid("nickname", "must be at least 2 characters")
	}
	if n > NicknameMaxLen {
		return "", Invalid("nickname", "must be at most 15 characters")
	}
	return name, nil
}

// ValidCode reports whether code is exactly four digits.
func ValidCode(code string) bool {
	return codeExpr.MatchString(code)
}

// ValidateQuestion checks the content rules a question must meet before it is saved or published.
func ValidateQuestion(q Question) error {
	if q.Text == "" {
		return Invalid("text", "question text is required")
	}
	if len(q.Options) != OptionsPerQuestion {
		return Invalid("options", "exactly 4 options are required")
	}
	correct := 0
	for _, o := range q.Options {
		if o.Text == "" {
			return Invalid("options", "every option needs text")
		}
		if o.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return Invalid("options", "exactly one option must be correct")
	}
	return nil
}

// ValidateForPublish checks the whole question set of a game.
func ValidateForPublish(questions []Question) error {
	if len(questions) == 0 {
		return Invalid("questions", "add at least one question")
	}
	for _, q := range questions {
		if err := ValidateQuestion(q); err != nil {
			return err
		}
	}
	return nil
}
