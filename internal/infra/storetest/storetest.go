// Package storetest holds the behaviour every app.Store implementation must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"karoot/internal/app"
	"karoot/internal/domain"
)

// Run exercises a fresh store from newStore in every subtest.
func Run(t *testing.T, newStore func(t *testing.T) app.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s app.Store)
	}{
		{"GameRoundTrip", testGameRoundTrip},
		{"CodeUniqueAmongLiveGames", testCodeUnique},
		{"FindGameByCode", testFindGameByCode},
		{"ListGamesByHost", testListGamesByHost},
		{"TransitionGame", testTransitionGame},
		{"AdvanceQuestion", testAdvanceQuestion},
		{"RestartGame", testRestartGame},
		{"Participants", testParticipants},
		{"Questions", testQuestions},
		{"DeleteQuestionRenumbers", testDeleteQuestionRenumbers},
		{"DeleteGame", testDeleteGame},
		{"Answers", testAnswers},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

var base = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func newGame(host, code string, at time.Time) domain.Game {
	return domain.Game{
		ID:        uuid.NewString(),
		Title:     "Quiz Game",
		HostID:    host,
		Code:      code,
		Status:    domain.StatusDraft,
		Round:     1,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func newQuestion(gameID string, order int, at time.Time) domain.Question {
	q := domain.Question{
		ID:        uuid.NewString(),
		GameID:    gameID,
		Text:      "What color is a carrot?",
		Order:     order,
		Points:    1,
		CreatedAt: at,
		UpdatedAt: at,
	}
	for i, text := range []string{"Orange", "Blue", "Green", "Purple"} {
		q.Options = append(q.Options, domain.Option{
			ID:         uuid.NewString(),
			QuestionID: q.ID,
			Text:       text,
			IsCorrect:  i == 0,
			Position:   i,
			CreatedAt:  at,
			UpdatedAt:  at,
		})
	}
	return q
}

func newParticipant(gameID, name string, round int, at time.Time) domain.Participant {
	return domain.Participant{ID: uuid.NewString(), GameID: gameID, Round: round, Name: name, CreatedAt: at}
}

func testGameRoundTrip(t *testing.T, s app.Store) {
	ctx := context.Background()
	g := newGame("host-1", "1234", base)
	require.NoError(t, s.CreateGame(ctx, g))

	got, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Title, got.Title)
	assert.Equal(t, g.HostID, got.HostID)
	assert.Equal(t, "1234", got.Code)
	assert.Equal(t, domain.StatusDraft, got.Status)
	assert.Equal(t, 1, got.Round)
	assert.True(t, g.CreatedAt.Equal(got.CreatedAt), "created_at should round trip")

	updated, err := s.UpdateTitle(ctx, g.ID, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	_, err = s.GetGame(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrGameNotFound)
}

func testCodeUnique(t *testing.T, s app.Store) {
	ctx := context.Background()
	first := newGame("host-1", "1111", base)
	require.NoError(t, s.CreateGame(ctx, first))

	inUse, err := s.CodeInUse(ctx, "1111")
	require.NoError(t, err)
	assert.True(t, inUse)

	err = s.CreateGame(ctx, newGame("host-2", "1111", base))
	assert.ErrorIs(t, err, domain.ErrCodeTaken)

	finished := newGame("host-1", "2222", base)
	finished.Status = domain.StatusFinished
	require.NoError(t, s.CreateGame(ctx, finished))
	inUse, err = s.CodeInUse(ctx, "2222")
	require.NoError(t, err)
	assert.False(t, inUse, "finished games release their code")
	assert.NoError(t, s.CreateGame(ctx, newGame("host-2", "2222", base)))
}

func testFindGameByCode(t *testing.T, s app.Store) {
	ctx := context.Background()
	old := newGame("host-1", "3333", base)
	old.Status = domain.StatusFinished
	require.NoError(t, s.CreateGame(ctx, old))

	got, err := s.FindGameByCode(ctx, "3333")
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID, "falls back to finished game")

	live := newGame("host-2", "3333", base.Add(time.Minute))
	require.NoError(t, s.CreateGame(ctx, live))
	got, err = s.FindGameByCode(ctx, "3333")
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID, "prefers the live game")

	_, err = s.FindGameByCode(ctx, "9999")
	assert.ErrorIs(t, err, domain.ErrGameNotFound)
}

func testListGamesByHost(t *testing.T, s app.Store) {
	ctx := context.Background()
	older := newGame("host-1", "1000", base)
	newer := newGame("host-1", "1001", base.Add(time.Hour))
	other := newGame("host-2", "1002", base)
	for _, g := range []domain.Game{older, newer, other} {
		require.NoError(t, s.CreateGame(ctx, g))
	}
	games, err := s.ListGamesByHost(ctx, "host-1")
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, newer.ID, games[0].ID)
	assert.Equal(t, older.ID, games[1].ID)
}

func testTransitionGame(t *testing.T, s app.Store) {
	ctx := context.Background()
	g := newGame("host-1", "4444", base)
	require.NoError(t, s.CreateGame(ctx, g))

	got, err := s.TransitionGame(ctx, g.ID, domain.StatusDraft, domain.StatusLobby)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLobby, got.Status)

	_, err = s.TransitionGame(ctx, g.ID, domain.StatusDraft, domain.StatusLobby)
	assert.ErrorIs(t, err, domain.ErrStatusConflict)

	got, err = s.TransitionGame(ctx, g.ID, domain.StatusLobby, domain.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
	assert.Equal(t, 0, got.CurrentQuestionIndex)
}

func testAdvanceQuestion(t *testing.T, s app.Store) {
	ctx := context.Background()
	g := newGame("host-1", "5555", base)
	g.Status = domain.StatusInProgress
	require.NoError(t, s.CreateGame(ctx, g))

	got, err := s.AdvanceQuestion(ctx, g.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentQuestionIndex)

	_, err = s.AdvanceQuestion(ctx, g.ID, 0)
	assert.ErrorIs(t, err, domain.ErrIndexConflict, "stale expected index must lose")

	stored, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentQuestionIndex)
}

func testRestartGame(t *testing.T, s app.Store) {
	ctx := context.Background()
	g := newGame("host-1", "6666", base)
	g.Status = domain.StatusFinished
	g.CurrentQuestionIndex = 2
	require.NoError(t, s.CreateGame(ctx, g))

	got, err := s.RestartGame(ctx, g.ID, "6666")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLobby, got.Status)
	assert.Equal(t, 0, got.CurrentQuestionIndex)
	assert.Equal(t, 2, got.Round)
	assert.Equal(t, g.ID, got.ID)

	_, err = s.RestartGame(ctx, g.ID, "6666")
	assert.ErrorIs(t, err, domain.ErrStatusConflict)

	other := newGame("host-2", "7777", base)
	require.NoError(t, s.CreateGame(ctx, other))
	done := newGame("host-1", "8888", base)
	done.Status = domain.StatusFinished
	require.NoError(t, s.CreateGame(ctx, done))
	_, err = s.RestartGame(ctx, done.ID, "7777")
	assert.ErrorIs(t, err, domain.ErrCodeTaken)
}

func testParticipants(t *testing.T, s app.Store) {
	ctx := context.Background()
	g := newGame("host-1", "1234", base)
	require.NoError(t, s.CreateGame(ctx, g))

	alice := newParticipant(g.ID, "Alice", 1, base)
	require.NoError(t, s.AddParticipant(ctx, alice))
	err := s.AddParticipant(ctx, newParticipant(g.ID, "Alice", 1, base.Add(time.Second)))
	assert.ErrorIs(t, err, domain.ErrNicknameTaken)

	require.NoError(t, s.AddParticipant(ctx, newParticipant(g.ID, "Bob", 1, base.Add(time.Second))))
	require.NoError(t, s.AddParticipant(ctx, newParticipant(g.ID, "Alice", 2, base.Add(time.Minute))), "names are unique per round")

	round1, err := s.ListParticipants(ctx, g.ID, 1)
	require.NoError(t, err)
	require.Len(t, round1, 2)
	assert.Equal(t, "Alice", round1[0].Name)
	assert.Equal(t, "Bob", round1[1].Name)

	got, err := s.GetParticipant(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.Name, got.Name)

	_, err = s.GetParticipant(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}

func testQuestions(t *testing.T, s app.Store) {
	ctx := context.Background()
	g := newGame("host-1", "1234", base)
	require.NoError(t, s.CreateGame(ctx, g))

	q2 := newQuestion(g.ID, 2, base.Add(time.Second))
	q1 := newQuestion(g.ID, 1, base)
	require.NoError(t, s.CreateQuestion(ctx, q2))
	require.NoError(t, s.CreateQuestion(ctx, q1))

	qs, err := s.ListQuestions(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, q1.ID, qs[0].ID)
	require.Len(t, qs[0].Options, 4)
	assert.Equal(t, "Orange", qs[0].Options[0].Text)
	assert.True(t, qs[0].Options[0].IsCorrect)
	assert.Equal(t, "Purple", qs[0].Options[3].Text)

	q1.Text = "Which colour is a carrot?"
	q1.Options[0].IsCorrect = false
	q1.Options[2].IsCorrect = true
	q1.Options[2].Text = "Orange-ish"
	require.NoError(t, s.UpdateQuestion(ctx, q1))

	got, err := s.GetQuestion(ctx, q1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Which colour is a carrot?", got.Text)
	assert.False(t, got.Options[0].IsCorrect)
	assert.True(t, got.Options[2].IsCorrect)
	assert.Equal(t, "Orange-ish", got.Options[2].Text)

	_, err = s.GetQuestion(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func testDeleteQuestionRenumbers(t *testing.T, s app.Store) {
	ctx := context.Background()
	g := newGame("host-1", "1234", base)
	require.NoError(t, s.CreateGame(ctx, g))

	var ids []string
	for i := 1; i <= 3; i++ {
		q := newQuestion(g.ID, i, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.CreateQuestion(ctx, q))
		ids = append(ids, q.ID)
	}
	require.NoError(t, s.DeleteQuestion(ctx, g.ID, ids[0]))

	qs, err := s.ListQuestions(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, ids[1], qs[0].ID)
	assert.Equal(t, 1, qs[0].Order)
	assert.Equal(t, ids[2], qs[1].ID)
	assert.Equal(t, 2, qs[1].Order)

	assert.ErrorIs(t, s.DeleteQuestion(ctx, g.ID, ids[0]), domain.ErrQuestionNotFound)
}

func testDeleteGame(t *testing.T, s app.Store) {
	ctx := context.Background()
	g := newGame("host-1", "1234", base)
	other := newGame("host-1", "5678", base)
	require.NoError(t, s.CreateGame(ctx, g))
	require.NoError(t, s.CreateGame(ctx, other))

	q := newQuestion(g.ID, 1, base)
	kept := newQuestion(other.ID, 1, base)
	require.NoError(t, s.CreateQuestion(ctx, q))
	require.NoError(t, s.CreateQuestion(ctx, kept))
	p := newParticipant(g.ID, "Alice", 1, base)
	require.NoError(t, s.AddParticipant(ctx, p))
	require.NoError(t, s.CreateAnswer(ctx, domain.Answer{
		ID: uuid.NewString(), GameID: g.ID, ParticipantID: p.ID,
		QuestionID: q.ID, OptionID: q.Options[0].ID, CreatedAt: base,
	}))

	require.NoError(t, s.DeleteGame(ctx, g.ID))

	_, err := s.GetGame(ctx, g.ID)
	assert.ErrorIs(t, err, domain.ErrGameNotFound)
	qs, err := s.ListQuestions(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, qs)
	ps, err := s.ListParticipants(ctx, g.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, ps)
	answers, err := s.ListAnswers(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, answers)

	qs, err = s.ListQuestions(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Len(t, qs[0].Options, 4)

	assert.ErrorIs(t, s.DeleteGame(ctx, g.ID), domain.ErrGameNotFound)
}

func testAnswers(t *testing.T, s app.Store) {
	ctx := context.Background()
	g := newGame("host-1", "1234", base)
	require.NoError(t, s.CreateGame(ctx, g))
	q := newQuestion(g.ID, 1, base)
	require.NoError(t, s.CreateQuestion(ctx, q))
	p := newParticipant(g.ID, "Alice", 1, base)
	require.NoError(t, s.AddParticipant(ctx, p))

	ms := int64(1200)
	first := domain.Answer{
		ID:             uuid.NewString(),
		GameID:         g.ID,
		ParticipantID:  p.ID,
		QuestionID:     q.ID,
		OptionID:       q.Options[0].ID,
		ResponseTimeMs: &ms,
		CreatedAt:      base,
	}
	require.NoError(t, s.CreateAnswer(ctx, first))

	second := first
	second.ID = uuid.NewString()
	second.OptionID = q.Options[1].ID
	assert.ErrorIs(t, s.CreateAnswer(ctx, second), domain.ErrAlreadyAnswered)

	answers, err := s.ListQuestionAnswers(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, first.OptionID, answers[0].OptionID)
	require.NotNil(t, answers[0].ResponseTimeMs)
	assert.Equal(t, int64(1200), *answers[0].ResponseTimeMs)

	all, err := s.ListAnswers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
