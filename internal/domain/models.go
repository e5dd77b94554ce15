package domain

import "time"

// Game is one quiz owned by a host, from editing through its live runs.
type Game struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	HostID               string     `json:"hostId"`
	Code                 string     `json:"code"`
	Status               GameStatus `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	// Round starts at 1 and grows on every restart so a replay gets a fresh roster.
	Round     int       `json:"round"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Participant is a nickname joined to one round of a game.
type Participant struct {
	ID        string    `json:"id"`
	GameID    string    `json:"gameId"`
	Round     int       `json:"round"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Question is an MCQ question with four options, exactly one correct.
type Question struct {
	ID        string    `json:"id"`
	GameID    string    `json:"gameId"`
	Text      string    `json:"text"`
	Order     int       `json:"order"`  // 1-based, contiguous
	Points    int       `json:"points"` // defaults to 1 if zero
	Options   []Option  `json:"options"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"questionId"`
	Text       string    `json:"text"`
	IsCorrect  bool      `json:"isCorrect"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Answer is a participant's single choice for a question.
type Answer struct {
	ID             string    `json:"id"`
	GameID         string    `json:"gameId"`
	ParticipantID  string    `json:"participantId"`
	QuestionID     string    `json:"questionId"`
	OptionID       string    `json:"optionId"`
	ResponseTimeMs *int64    `json:"responseTimeMs,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AnswerDistribution is the per-option tally row shown to hosts.
type AnswerDistribution struct {
	OptionID   string `json:"optionId"`
	OptionText string `json:"optionText"`
	IsCorrect  bool   `json:"isCorrect"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// PublicOption is an option as shown to participants, without correctness.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion strips correctness so it can be sent to players.
type PublicQuestion struct {
	ID      string         `json:"id"`
	Text    string         `json:"text"`
	Order   int            `json:"order"`
	Points  int            `json:"points"`
	Options []PublicOption `json:"options"`
}

// Public returns the player-safe view of q.
func (q Question) Public() PublicQuestion {
	opts := make([]PublicOption, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, PublicOption{ID: o.ID, Text: o.Text})
	}
	return PublicQuestion{ID: q.ID, Text: q.Text, Order: q.Order, Points: q.PointsOrDefault(), Options: opts}
}

// PointsOrDefault returns the question weight, treating zero as 1.
func (q Question) PointsOrDefault() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// CorrectOption returns the option marked correct, if any.
func (q Question) CorrectOption() (Option, bool) {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o, true
		}
	}
	return Option{}, false
}

// FindOption returns the option with the given id.
func (q Question) FindOption(optionID string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == optionID {
			return o, true
		}
	}
	return Option{}, false
}

// AnswerResult is the immediate feedback returned after a submission.
type AnswerResult struct {
	AnswerID        string `json:"answerId"`
	QuestionID      string `json:"questionId"`
	OptionID        string `json:"optionId"`
	Correct         bool   `json:"correct"`
	CorrectOptionID string `json:"correctOptionId"`
	Awarded         int    `json:"awarded"`
}
