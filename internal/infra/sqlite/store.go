package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"karoot/internal/domain"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed app.Store for single-binary deployments.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// New opens (or creates) the database at path and applies the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already prepared database handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

const gameColumns = `id, title, host_id, code, status, current_question_index, round, created_at, updated_at`

func (s *Store) CreateGame(ctx context.Context, g domain.Game) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO games (`+gameColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Title, g.HostID, g.Code, string(g.Status), g.CurrentQuestionIndex, g.Round,
		toMillis(g.CreatedAt), toMillis(g.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, gameID)
	return scanGame(row)
}

func (s *Store) FindGameByCode(ctx context.Context, code string) (domain.Game, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE code = ?
		 ORDER BY CASE WHEN status <> 'finished' THEN 0 ELSE 1 END, updated_at DESC
		 LIMIT 1`, code)
	return scanGame(row)
}

func (s *Store) CodeInUse(ctx context.Context, code string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM games WHERE code = ? AND status <> 'finished'`, code).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListGamesByHost(ctx context.Context, hostID string) ([]domain.Game, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE host_id = ? ORDER BY created_at DESC, id`, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	games := make([]domain.Game, 0)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (s *Store) UpdateTitle(ctx context.Context, gameID, title string) (domain.Game, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET title = ?, updated_at = ? WHERE id = ?`, title, toMillis(s.clock()), gameID)
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return s.GetGame(ctx, gameID)
}

func (s *Store) TransitionGame(ctx context.Context, gameID string, from, to domain.GameStatus) (domain.Game, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE games
		 SET status = ?,
		     current_question_index = CASE WHEN ? = 'in_progress' THEN 0 ELSE current_question_index END,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), string(to), toMillis(s.clock()), gameID, string(from))
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetGame(ctx, gameID); err != nil {
			return domain.Game{}, err
		}
		return domain.Game{}, domain.ErrStatusConflict
	}
	return s.GetGame(ctx, gameID)
}

func (s *Store) AdvanceQuestion(ctx context.Context, gameID string, expected int) (domain.Game, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET current_question_index = current_question_index + 1, updated_at = ?
		 WHERE id = ? AND status = 'in_progress' AND current_question_index = ?`,
		toMillis(s.clock()), gameID, expected)
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to advance question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		game, err := s.GetGame(ctx, gameID)
		if err != nil {
			return domain.Game{}, err
		}
		if game.Status != domain.StatusInProgress {
			return domain.Game{}, domain.ErrStatusConflict
		}
		return domain.Game{}, domain.ErrIndexConflict
	}
	return s.GetGame(ctx, gameID)
}

func (s *Store) RestartGame(ctx context.Context, gameID, code string) (domain.Game, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE games
		 SET status = 'lobby', code = ?, current_question_index = 0, round = round + 1, updated_at = ?
		 WHERE id = ? AND status = 'finished'`,
		code, toMillis(s.clock()), gameID)
	if isUniqueViolation(err) {
		return domain.Game{}, domain.ErrCodeTaken
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to restart game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetGame(ctx, gameID); err != nil {
			return domain.Game{}, err
		}
		return domain.Game{}, domain.ErrStatusConflict
	}
	return s.GetGame(ctx, gameID)
}

func (s *Store) AddParticipant(ctx context.Context, p domain.Participant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (id, game_id, round, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.GameID, p.Round, p.Name, toMillis(p.CreatedAt))
	if isUniqueViolation(err) {
		return domain.ErrNicknameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	var p domain.Participant
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, game_id, round, name, created_at FROM participants WHERE id = ?`, participantID).
		Scan(&p.ID, &p.GameID, &p.Round, &p.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("failed to get participant: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context, gameID string, round int) ([]domain.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_id, round, name, created_at FROM participants
		 WHERE game_id = ? AND round = ? ORDER BY created_at, id`, gameID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Participant, 0)
	for rows.Next() {
		var p domain.Participant
		var created int64
		if err := rows.Scan(&p.ID, &p.GameID, &p.Round, &p.Name, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = fromMillis(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListQuestions(ctx context.Context, gameID string) ([]domain.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_id, text, question_order, points, created_at, updated_at
		 FROM questions WHERE game_id = ? ORDER BY question_order`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	questions := make([]domain.Question, 0)
	index := make(map[string]int)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	optRows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.question_id, o.text, o.is_correct, o.position, o.created_at, o.updated_at
		 FROM options o JOIN questions q ON q.id = o.question_id
		 WHERE q.game_id = ? ORDER BY o.question_id, o.position`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}
	defer optRows.Close()
	for optRows.Next() {
		o, err := scanOption(optRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, optRows.Err()
}

func (s *Store) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, game_id, text, question_order, points, created_at, updated_at
		 FROM questions WHERE id = ?`, questionID)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("failed to get question: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, text, is_correct, position, created_at, updated_at
		 FROM options WHERE question_id = ? ORDER BY position`, questionID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("failed to get options: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return domain.Question{}, err
		}
		q.Options = append(q.Options, o)
	}
	return q, rows.Err()
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id, game_id, text, question_order, points, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			q.ID, q.GameID, q.Text, q.Order, q.PointsOrDefault(), toMillis(q.CreatedAt), toMillis(q.UpdatedAt)); err != nil {
			return fmt.Errorf("failed to create question: %w", err)
		}
		for _, o := range q.Options {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO options (id, question_id, text, is_correct, position, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				o.ID, q.ID, o.Text, o.IsCorrect, o.Position, toMillis(o.CreatedAt), toMillis(o.UpdatedAt)); err != nil {
				return fmt.Errorf("failed to create option: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) UpdateQuestion(ctx context.Context, q domain.Question) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE questions SET text = ?, points = ?, updated_at = ? WHERE id = ?`,
			q.Text, q.PointsOrDefault(), toMillis(q.UpdatedAt), q.ID)
		if err != nil {
			return fmt.Errorf("failed to update question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrQuestionNotFound
		}
		for _, o := range q.Options {
			if _, err := tx.ExecContext(ctx,
				`UPDATE options SET text = ?, is_correct = ?, updated_at = ? WHERE id = ? AND question_id = ?`,
				o.Text, o.IsCorrect, toMillis(o.UpdatedAt), o.ID, q.ID); err != nil {
				return fmt.Errorf("failed to update option: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteQuestion(ctx context.Context, gameID, questionID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM options WHERE question_id = ?`, questionID); err != nil {
			return fmt.Errorf("failed to delete options: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = ? AND game_id = ?`, questionID, gameID)
		if err != nil {
			return fmt.Errorf("failed to delete question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrQuestionNotFound
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM questions WHERE game_id = ? ORDER BY question_order`, gameID)
		if err != nil {
			return fmt.Errorf("failed to list questions: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE questions SET question_order = ? WHERE id = ?`, i+1, id); err != nil {
				return fmt.Errorf("failed to renumber questions: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM answers WHERE game_id = ?`,
			`DELETE FROM options WHERE question_id IN (SELECT id FROM questions WHERE game_id = ?)`,
			`DELETE FROM questions WHERE game_id = ?`,
			`DELETE FROM participants WHERE game_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, gameID); err != nil {
				return fmt.Errorf("failed to delete game rows: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, gameID)
		if err != nil {
			return fmt.Errorf("failed to delete game: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrGameNotFound
		}
		return nil
	})
}

func (s *Store) CreateAnswer(ctx context.Context, a domain.Answer) error {
	var rt sql.NullInt64
	if a.ResponseTimeMs != nil {
		rt = sql.NullInt64{Int64: *a.ResponseTimeMs, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (id, game_id, participant_id, question_id, option_id, response_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.GameID, a.ParticipantID, a.QuestionID, a.OptionID, rt, toMillis(a.CreatedAt))
	if isUniqueViolation(err) {
		return domain.ErrAlreadyAnswered
	}
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	return nil
}

const answerColumns = `id, game_id, participant_id, question_id, option_id, response_time_ms, created_at`

func (s *Store) ListAnswers(ctx context.Context, gameID string) ([]domain.Answer, error) {
	return s.queryAnswers(ctx, `SELECT `+answerColumns+` FROM answers WHERE game_id = ? ORDER BY created_at, id`, gameID)
}

func (s *Store) ListQuestionAnswers(ctx context.Context, questionID string) ([]domain.Answer, error) {
	return s.queryAnswers(ctx, `SELECT `+answerColumns+` FROM answers WHERE question_id = ? ORDER BY created_at, id`, questionID)
}

func (s *Store) queryAnswers(ctx context.Context, query string, arg string) ([]domain.Answer, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Answer, 0)
	for rows.Next() {
		var a domain.Answer
		var rt sql.NullInt64
		var created int64
		if err := rows.Scan(&a.ID, &a.GameID, &a.ParticipantID, &a.QuestionID, &a.OptionID, &rt, &created); err != nil {
			return nil, err
		}
		if rt.Valid {
			ms := rt.Int64
			a.ResponseTimeMs = &ms
		}
		a.CreatedAt = fromMillis(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (domain.Game, error) {
	var g domain.Game
	var status string
	var created, updated int64
	err := row.Scan(&g.ID, &g.Title, &g.HostID, &g.Code, &status, &g.CurrentQuestionIndex, &g.Round, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to scan game: %w", err)
	}
	g.Status = domain.GameStatus(status)
	g.CreatedAt = fromMillis(created)
	g.UpdatedAt = fromMillis(updated)
	return g, nil
}

func scanQuestion(row scanner) (domain.Question, error) {
	var q domain.Question
	var created, updated int64
	if err := row.Scan(&q.ID, &q.GameID, &q.Text, &q.Order, &q.Points, &created, &updated); err != nil {
		return domain.Question{}, err
	}
	q.CreatedAt = fromMillis(created)
	q.UpdatedAt = fromMillis(updated)
	return q, nil
}

func scanOption(row scanner) (domain.Option, error) {
	var o domain.Option
	var created, updated int64
	if err := row.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.Position, &created, &updated); err != nil {
		return domain.Option{}, err
	}
	o.CreatedAt = fromMillis(created)
	o.UpdatedAt = fromMillis(updated)
	return o, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
