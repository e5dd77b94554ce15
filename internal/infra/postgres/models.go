package postgres

import (
	"time"

	"github.com/uptrace/bun"
	"karoot/internal/domain"
)

type gameModel struct {
	bun.BaseModel `bun:"table:games,alias:g"`

	ID                   string    `bun:"id,pk"`
	Title                string    `bun:"title"`
	HostID               string    `bun:"host_id"`
	Code                 string    `bun:"code"`
	Status               string    `bun:"status"`
	CurrentQuestionIndex int       `bun:"current_question_index"`
	Round                int       `bun:"round"`
	CreatedAt            time.Time `bun:"created_at"`
	UpdatedAt            time.Time `bun:"updated_at"`
}

type participantModel struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID        string    `bun:"id,pk"`
	GameID    string    `bun:"game_id"`
	Round     int       `bun:"round"`
	Name      string    `bun:"name"`
	CreatedAt time.Time `bun:"created_at"`
}

type questionModel struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID        string    `bun:"id,pk"`
	GameID    string    `bun:"game_id"`
	Text      string    `bun:"text"`
	Order     int       `bun:"question_order"`
	Points    int       `bun:"points"`
	CreatedAt time.Time `bun:"created_at"`
	UpdatedAt time.Time `bun:"updated_at"`
}

type optionModel struct {
	bun.BaseModel `bun:"table:options,alias:o"`

	ID         string    `bun:"id,pk"`
	QuestionID string    `bun:"question_id"`
	Text       string    `bun:"text"`
	IsCorrect  bool      `bun:"is_correct"`
	Position   int       `bun:"position"`
	CreatedAt  time.Time `bun:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at"`
}

type answerModel struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID             string    `bun:"id,pk"`
	GameID         string    `bun:"game_id"`
	ParticipantID  string    `bun:"participant_id"`
	QuestionID     string    `bun:"question_id"`
	OptionID       string    `bun:"option_id"`
	ResponseTimeMs *int64    `bun:"response_time_ms"`
	CreatedAt      time.Time `bun:"created_at"`
}

func fromGame(g domain.Game) gameModel {
	return gameModel{
		ID:                   g.ID,
		Title:                g.Title,
		HostID:               g.HostID,
		Code:                 g.Code,
		Status:               string(g.Status),
		CurrentQuestionIndex: g.CurrentQuestionIndex,
		Round:                g.Round,
		CreatedAt:            g.CreatedAt,
		UpdatedAt:            g.UpdatedAt,
	}
}

func (m gameModel) toDomain() domain.Game {
	return domain.Game{
		ID:                   m.ID,
		Title:                m.Title,
		HostID:               m.HostID,
		Code:                 m.Code,
		Status:               domain.GameStatus(m.Status),
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		Round:                m.Round,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func (m participantModel) toDomain() domain.Participant {
	return domain.Participant{ID: m.ID, GameID: m.GameID, Round: m.Round, Name: m.Name, CreatedAt: m.CreatedAt}
}

func (m questionModel) toDomain() domain.Question {
	return domain.Question{
		ID:        m.ID,
		GameID:    m.GameID,
		Text:      m.Text,
		Order:     m.Order,
		Points:    m.Points,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (m optionModel) toDomain() domain.Option {
	return domain.Option{
		ID:         m.ID,
		QuestionID: m.QuestionID,
		Text:       m.Text,
		IsCorrect:  m.IsCorrect,
		Position:   m.Position,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func (m answerModel) toDomain() domain.Answer {
	return domain.Answer{
		ID:             m.ID,
		GameID:         m.GameID,
		ParticipantID:  m.ParticipantID,
		QuestionID:     m.QuestionID,
		OptionID:       m.OptionID,
		ResponseTimeMs: m.ResponseTimeMs,
		CreatedAt:      m.CreatedAt,
	}
}
