package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"karoot/internal/domain"
)

// Store is a Postgres-backed app.Store built on bun.
type Store struct {
	db    *bun.DB
	clock func() time.Time
}

// Open connects to dsn. Run the migrations before use.
func Open(dsn string) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return NewStore(bun.NewDB(sqldb, pgdialect.New()))
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateGame(ctx context.Context, g domain.Game) error {
	m := fromGame(g)
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeTaken
		}
		return fmt.Errorf("create game: %w", err)
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	if !validID(gameID) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	var m gameModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", gameID).Scan(ctx)
	return gameResult(m, err)
}

func (s *Store) FindGameByCode(ctx context.Context, code string) (domain.Game, error) {
	var m gameModel
	err := s.db.NewSelect().Model(&m).
		Where("code = ?", code).
		OrderExpr("CASE WHEN status <> 'finished' THEN 0 ELSE 1 END").
		OrderExpr("updated_at DESC").
		Limit(1).
		Scan(ctx)
	return gameResult(m, err)
}

func (s *Store) CodeInUse(ctx context.Context, code string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*gameModel)(nil)).
		Where("code = ?", code).
		Where("status <> ?", string(domain.StatusFinished)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

func (s *Store) ListGamesByHost(ctx context.Context, hostID string) ([]domain.Game, error) {
	var models []gameModel
	err := s.db.NewSelect().Model(&models).
		Where("host_id = ?", hostID).
		OrderExpr("created_at DESC, id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	games := make([]domain.Game, 0, len(models))
	for _, m := range models {
		games = append(games, m.toDomain())
	}
	return games, nil
}

func (s *Store) UpdateTitle(ctx context.Context, gameID, title string) (domain.Game, error) {
	res, err := s.db.NewUpdate().Table("games").
		Set("title = ?", title).
		Set("updated_at = ?", s.clock()).
		Where("id = ?", gameID).
		Exec(ctx)
	if err != nil {
		return domain.Game{}, fmt.Errorf("update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return s.GetGame(ctx, gameID)
}

func (s *Store) TransitionGame(ctx context.Context, gameID string, from, to domain.GameStatus) (domain.Game, error) {
	res, err := s.db.NewUpdate().Table("games").
		Set("status = ?", string(to)).
		Set("current_question_index = CASE WHEN ? = 'in_progress' THEN 0 ELSE current_question_index END", string(to)).
		Set("updated_at = ?", s.clock()).
		Where("id = ?", gameID).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return domain.Game{}, fmt.Errorf("update status: %w", err)
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
	res, err := s.db.NewUpdate().Table("games").
		Set("current_question_index = current_question_index + 1").
		Set("updated_at = ?", s.clock()).
		Where("id = ?", gameID).
		Where("status = ?", string(domain.StatusInProgress)).
		Where("current_question_index = ?", expected).
		Exec(ctx)
	if err != nil {
		return domain.Game{}, fmt.Errorf("advance question: %w", err)
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
	res, err := s.db.NewUpdate().Table("games").
		Set("status = ?", string(domain.StatusLobby)).
		Set("code = ?", code).
		Set("current_question_index = 0").
		Set("round = round + 1").
		Set("updated_at = ?", s.clock()).
		Where("id = ?", gameID).
		Where("status = ?", string(domain.StatusFinished)).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Game{}, domain.ErrCodeTaken
		}
		return domain.Game{}, fmt.Errorf("restart game: %w", err)
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
	m := participantModel{ID: p.ID, GameID: p.GameID, Round: p.Round, Name: p.Name, CreatedAt: p.CreatedAt}
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrNicknameTaken
		}
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	if !validID(participantID) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	var m participantModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", participantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListParticipants(ctx context.Context, gameID string, round int) ([]domain.Participant, error) {
	var models []participantModel
	err := s.db.NewSelect().Model(&models).
		Where("game_id = ?", gameID).
		Where("round = ?", round).
		OrderExpr("created_at, id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]domain.Participant, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (s *Store) ListQuestions(ctx context.Context, gameID string) ([]domain.Question, error) {
	var models []questionModel
	if err := s.db.NewSelect().Model(&models).
		Where("game_id = ?", gameID).
		Order("question_order").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(models) == 0 {
		return []domain.Question{}, nil
	}

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	var options []optionModel
	if err := s.db.NewSelect().Model(&options).
		Where("question_id IN (?)", bun.In(ids)).
		OrderExpr("question_id, position").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	byQuestion := make(map[string][]domain.Option, len(models))
	for _, o := range options {
		byQuestion[o.QuestionID] = append(byQuestion[o.QuestionID], o.toDomain())
	}

	out := make([]domain.Question, 0, len(models))
	for _, m := range models {
		q := m.toDomain()
		q.Options = byQuestion[m.ID]
		out = append(out, q)
	}
	return out, nil
}

func (s *Store) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	if !validID(questionID) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	var m questionModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", questionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("get question: %w", err)
	}
	var options []optionModel
	if err := s.db.NewSelect().Model(&options).
		Where("question_id = ?", questionID).
		Order("position").
		Scan(ctx); err != nil {
		return domain.Question{}, fmt.Errorf("get options: %w", err)
	}
	q := m.toDomain()
	for _, o := range options {
		q.Options = append(q.Options, o.toDomain())
	}
	return q, nil
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m := questionModel{
			ID:        q.ID,
			GameID:    q.GameID,
			Text:      q.Text,
			Order:     q.Order,
			Points:    q.PointsOrDefault(),
			CreatedAt: q.CreatedAt,
			UpdatedAt: q.UpdatedAt,
		}
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return fmt.Errorf("create question: %w", err)
		}
		if len(q.Options) == 0 {
			return nil
		}
		options := make([]optionModel, 0, len(q.Options))
		for _, o := range q.Options {
			options = append(options, optionModel{
				ID:         o.ID,
				QuestionID: q.ID,
				Text:       o.Text,
				IsCorrect:  o.IsCorrect,
				Position:   o.Position,
				CreatedAt:  o.CreatedAt,
				UpdatedAt:  o.UpdatedAt,
			})
		}
		if _, err := tx.NewInsert().Model(&options).Exec(ctx); err != nil {
			return fmt.Errorf("create options: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateQuestion(ctx context.Context, q domain.Question) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Table("questions").
			Set("text = ?", q.Text).
			Set("points = ?", q.PointsOrDefault()).
			Set("updated_at = ?", q.UpdatedAt).
			Where("id = ?", q.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrQuestionNotFound
		}
		for _, o := range q.Options {
			if _, err := tx.NewUpdate().Table("options").
				Set("text = ?", o.Text).
				Set("is_correct = ?", o.IsCorrect).
				Set("updated_at = ?", o.UpdatedAt).
				Where("id = ?", o.ID).
				Where("question_id = ?", q.ID).
				Exec(ctx); err != nil {
				return fmt.Errorf("update option: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteQuestion(ctx context.Context, gameID, questionID string) error {
	if !validID(gameID) || !validID(questionID) {
		return domain.ErrQuestionNotFound
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*questionModel)(nil)).
			Where("id = ?", questionID).
			Where("game_id = ?", gameID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrQuestionNotFound
		}
		// options and answers go with the question via ON DELETE CASCADE
		_, err = tx.NewRaw(`
			UPDATE questions AS q SET question_order = r.rn
			FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY question_order) AS rn
				FROM questions WHERE game_id = ?
			) AS r
			WHERE q.id = r.id`, gameID).Exec(ctx)
		if err != nil {
			return fmt.Errorf("renumber questions: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	if !validID(gameID) {
		return domain.ErrGameNotFound
	}
	// participants, questions, options and answers cascade
	res, err := s.db.NewDelete().Model((*gameModel)(nil)).Where("id = ?", gameID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrGameNotFound
	}
	return nil
}

func (s *Store) CreateAnswer(ctx context.Context, a domain.Answer) error {
	m := answerModel{
		ID:             a.ID,
		GameID:         a.GameID,
		ParticipantID:  a.ParticipantID,
		QuestionID:     a.QuestionID,
		OptionID:       a.OptionID,
		ResponseTimeMs: a.ResponseTimeMs,
		CreatedAt:      a.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyAnswered
		}
		return fmt.Errorf("create answer: %w", err)
	}
	return nil
}

func (s *Store) ListAnswers(ctx context.Context, gameID string) ([]domain.Answer, error) {
	return s.listAnswers(ctx, "game_id = ?", gameID)
}

func (s *Store) ListQuestionAnswers(ctx context.Context, questionID string) ([]domain.Answer, error) {
	return s.listAnswers(ctx, "question_id = ?", questionID)
}

func (s *Store) listAnswers(ctx context.Context, where, arg string) ([]domain.Answer, error) {
	var models []answerModel
	if err := s.db.NewSelect().Model(&models).
		Where(where, arg).
		OrderExpr("created_at, id").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func gameResult(m gameModel, err error) (domain.Game, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("get game: %w", err)
	}
	return m.toDomain(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

// validID keeps malformed ids from reaching uuid columns as a syntax error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
