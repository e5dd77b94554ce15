package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"karoot/internal/app"
	"karoot/internal/domain"
	"karoot/internal/infra/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) app.Store {
		s, err := New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewFailsOnBadPath(t *testing.T) {
	s, err := New("/nonexistent-dir/karoot.db")
	assert.Error(t, err, "should fail when the directory does not exist")
	assert.Nil(t, s, "store should be nil on error")
}

func TestCreateGameMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO games`).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: games.code (2067)"))

	s := NewWithDB(db)
	err = s.CreateGame(context.Background(), domain.Game{ID: "g1", Code: "1234", Status: domain.StatusDraft})
	assert.ErrorIs(t, err, domain.ErrCodeTaken)
	assert.NoError(t, mock.ExpectationsWereMet(), "all mock expectations should be met")
}

func TestAdvanceQuestionReportsIndexConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE games SET current_question_index = current_question_index \+ 1`).
		WithArgs(sqlmock.AnyArg(), "g1", 0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"id", "title", "host_id", "code", "status", "current_question_index", "round", "created_at", "updated_at"}).
		AddRow("g1", "Quiz Game", "host-1", "1234", "in_progress", 1, 1, int64(0), int64(0))
	mock.ExpectQuery(`SELECT (.+) FROM games WHERE id = \?`).
		WithArgs("g1").
		WillReturnRows(rows)

	s := NewWithDB(db)
	_, err = s.AdvanceQuestion(context.Background(), "g1", 0)
	assert.ErrorIs(t, err, domain.ErrIndexConflict)
	assert.NoError(t, mock.ExpectationsWereMet(), "all mock expectations should be met")
}

func TestCreateAnswerRollsUpDriverErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO answers`).WillReturnError(errors.New("disk I/O error"))

	s := NewWithDB(db)
	err = s.CreateAnswer(context.Background(), domain.Answer{ID: "a1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrAlreadyAnswered))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet(), "all mock expectations should be met")
}

func TestDeleteQuestionRollsBackOnMissingQuestion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM options`).WithArgs("q1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM questions`).WithArgs("q1", "g1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	s := NewWithDB(db)
	err = s.DeleteQuestion(context.Background(), "g1", "q1")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet(), "all mock expectations should be met")
}
