package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"karoot/internal/domain"
)

// Store abstracts where games live (in-memory, SQLite, Postgres).
type Store interface {
	CreateGame(ctx context.Context, game domain.Game) error
	GetGame(ctx context.Context, gameID string) (domain.Game, error)
	// FindGameByCode prefers a non-finished game and falls back to the latest finished one.
	FindGameByCode(ctx context.Context, code string) (domain.Game, error)
	CodeInUse(ctx context.Context, code string) (bool, error)
	ListGamesByHost(ctx context.Context, hostID string) ([]domain.Game, error)
	UpdateTitle(ctx context.Context, gameID, title string) (domain.Game, error)
	// TransitionGame moves the game only if its stored status still equals from.
	// Entering in_progress also resets the question index to 0.
	TransitionGame(ctx context.Context, gameID string, from, to domain.GameStatus) (domain.Game, error)
	// AdvanceQuestion increments the index only if it still equals expected.
	AdvanceQuestion(ctx context.Context, gameID string, expected int) (domain.Game, error)
	// RestartGame moves a finished game back to lobby with index 0, the next round and the given code.
	RestartGame(ctx context.Context, gameID, code string) (domain.Game, error)

	AddParticipant(ctx context.Context, p domain.Participant) error
	GetParticipant(ctx context.Context, participantID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, gameID string, round int) ([]domain.Participant, error)

	// ListQuestions returns questions by order with options by position.
	ListQuestions(ctx context.Context, gameID string) ([]domain.Question, error)
	GetQuestion(ctx context.Context, questionID string) (domain.Question, error)
	CreateQuestion(ctx context.Context, q domain.Question) error
	UpdateQuestion(ctx context.Context, q domain.Question) error
	// DeleteQuestion removes the question and renumbers the rest from 1.
	DeleteQuestion(ctx context.Context, gameID, questionID string) error
	// DeleteGame removes a game with its questions, participants and answers.
	DeleteGame(ctx context.Context, gameID string) error

	CreateAnswer(ctx context.Context, a domain.Answer) error
	ListAnswers(ctx context.Context, gameID string) ([]domain.Answer, error)
	ListQuestionAnswers(ctx context.Context, questionID string) ([]domain.Answer, error)
}

// QuestionLoader fetches the question set of a game from the backing store.
type QuestionLoader interface {
	ListQuestions(ctx context.Context, gameID string) ([]domain.Question, error)
}

// QuestionCache serves the immutable question set of published games.
type QuestionCache interface {
	Questions(ctx context.Context, gameID string) ([]domain.Question, error)
	Invalidate(ctx context.Context, gameID string) error
}

// Relay pushes game changes to every observer, possibly across instances.
// The caller must invoke the returned cancel function to avoid leaks.
type Relay interface {
	Publish(ctx context.Context, event domain.Event) error
	Subscribe(ctx context.Context, gameID string) (<-chan domain.Event, func(), error)
}

// Options tunes game pacing and code allocation.
type Options struct {
	QuestionDuration time.Duration
	CodeAttempts     int
}

// GameService is the single authority over game lifecycle transitions.
type GameService struct {
	store     Store
	questions QuestionCache
	relay     Relay
	opts      Options
	clock     func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewGameService(store Store, questions QuestionCache, relay Relay, opts Options) *GameService {
	if questions == nil {
		questions = directQuestions{store: store}
	}
	if relay == nil {
		relay = NewHub()
	}
	if opts.QuestionDuration <= 0 {
		opts.QuestionDuration = 15 * time.Second
	}
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = 100
	}
	return &GameService{
		store:     store,
		questions: questions,
		relay:     relay,
		opts:      opts,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *GameService) WithClock(now func() time.Time) *GameService {
	s.clock = now
	return s
}

// WithRand is test-only for deterministic join codes.
func (s *GameService) WithRand(rnd *rand.Rand) *GameService {
	s.rnd = rnd
	return s
}

// QuestionDuration is the per-question time limit used for scoring.
func (s *GameService) QuestionDuration() time.Duration {
	return s.opts.QuestionDuration
}

// CreateGame stores a new draft game owned by hostID with a fresh join code.
func (s *GameService) CreateGame(ctx context.Context, hostID, title string) (domain.Game, error) {
	title, err := domain.CleanTitle(title)
	if err != nil {
		return domain.Game{}, err
	}
	now := s.clock()
	game := domain.Game{
		ID:        uuid.NewString(),
		Title:     title,
		HostID:    hostID,
		Status:    domain.StatusDraft,
		Round:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for attempt := 0; attempt < s.opts.CodeAttempts; attempt++ {
		code, err := s.freeCode(ctx)
		if err != nil {
			return domain.Game{}, err
		}
		game.Code = code
		err = s.store.CreateGame(ctx, game)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Game{}, fmt.Errorf("create game: %w", err)
		}
		return game, nil
	}
	return domain.Game{}, domain.ErrCodeSpaceExhausted
}

// ListGames returns the host's games, newest first.
func (s *GameService) ListGames(ctx context.Context, hostID string) ([]domain.Game, error) {
	return s.store.ListGamesByHost(ctx, hostID)
}

// UpdateTitle renames a game that has not started yet.
func (s *GameService) UpdateTitle(ctx context.Context, hostID, gameID, title string) (domain.Game, error) {
	game, err := s.hostGame(ctx, hostID, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.Status != domain.StatusDraft && game.Status != domain.StatusLobby {
		return domain.Game{}, domain.ErrInvalidTransition
	}
	title, err = domain.CleanTitle(title)
	if err != nil {
		return domain.Game{}, err
	}
	updated, err := s.store.UpdateTitle(ctx, gameID, title)
	if err != nil {
		return domain.Game{}, err
	}
	s.publishGame(ctx, updated)
	return updated, nil
}

// AddQuestion appends a question with four placeholder options, the first marked correct.
func (s *GameService) AddQuestion(ctx context.Context, hostID, gameID, text string) (domain.Question, error) {
	if _, err := s.draftGame(ctx, hostID, gameID); err != nil {
		return domain.Question{}, err
	}
	text = domain.Sanitize(text)
	if text == "" {
		return domain.Question{}, domain.Invalid("text", "question text is required")
	}
	existing, err := s.store.ListQuestions(ctx, gameID)
	if err != nil {
		return domain.Question{}, err
	}
	now := s.clock()
	q := domain.Question{
		ID:        uuid.NewString(),
		GameID:    gameID,
		Text:      text,
		Order:     len(existing) + 1,
		Points:    1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i := 0; i < domain.OptionsPerQuestion; i++ {
		q.Options = append(q.Options, domain.Option{
			ID:         uuid.NewString(),
			QuestionID: q.ID,
			Text:       fmt.Sprintf("Option %d", i+1),
			IsCorrect:  i == 0,
			Position:   i,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return domain.Question{}, fmt.Errorf("add question: %w", err)
	}
	return q, nil
}

// OptionInput is the editable part of an option.
type OptionInput struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// EditQuestion replaces the text, options and weight of a question in a draft game.
func (s *GameService) EditQuestion(ctx context.Context, hostID, gameID, questionID, text string, points int, options []OptionInput) (domain.Question, error) {
	if _, err := s.draftGame(ctx, hostID, gameID); err != nil {
		return domain.Question{}, err
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return domain.Question{}, err
	}
	if q.GameID != gameID {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if len(options) != domain.OptionsPerQuestion || len(q.Options) != domain.OptionsPerQuestion {
		return domain.Question{}, domain.Invalid("options", "exactly 4 options are required")
	}
	now := s.clock()
	q.Text = domain.Sanitize(text)
	if points > 0 {
		q.Points = points
	}
	q.UpdatedAt = now
	for i := range q.Options {
		q.Options[i].Text = domain.Sanitize(options[i].Text)
		q.Options[i].IsCorrect = options[i].IsCorrect
		q.Options[i].UpdatedAt = now
	}
	if err := domain.ValidateQuestion(q); err != nil {
		return domain.Question{}, err
	}
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return domain.Question{}, fmt.Errorf("edit question: %w", err)
	}
	return q, nil
}

// DeleteQuestion removes a question from a draft game and closes the gap in ordering.
func (s *GameService) DeleteQuestion(ctx context.Context, hostID, gameID, questionID string) error {
	if _, err := s.draftGame(ctx, hostID, gameID); err != nil {
		return err
	}
	return s.store.DeleteQuestion(ctx, gameID, questionID)
}

// Publish validates the question set and opens the lobby. A non-empty title is
// saved only once everything has passed validation.
func (s *GameService) Publish(ctx context.Context, hostID, gameID, title string) (domain.Game, error) {
	if _, err := s.draftGame(ctx, hostID, gameID); err != nil {
		return domain.Game{}, err
	}
	if title != "" {
		clean, err := domain.CleanTitle(title)
		if err != nil {
			return domain.Game{}, err
		}
		title = clean
	}
	questions, err := s.store.ListQuestions(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if err := domain.ValidateForPublish(questions); err != nil {
		return domain.Game{}, err
	}
	if title != "" {
		if _, err := s.store.UpdateTitle(ctx, gameID, title); err != nil {
			return domain.Game{}, err
		}
	}
	s.invalidate(ctx, gameID)
	return s.transition(ctx, gameID, domain.StatusDraft, domain.StatusLobby)
}

// Unpublish returns an empty lobby to draft so questions can be edited again.
func (s *GameService) Unpublish(ctx context.Context, hostID, gameID string) (domain.Game, error) {
	game, err := s.hostGame(ctx, hostID, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.Status != domain.StatusLobby {
		return domain.Game{}, domain.ErrInvalidTransition
	}
	participants, err := s.store.ListParticipants(ctx, gameID, game.Round)
	if err != nil {
		return domain.Game{}, err
	}
	if len(participants) > 0 {
		return domain.Game{}, domain.Invalid("participants", "players have already joined")
	}
	updated, err := s.transition(ctx, gameID, domain.StatusLobby, domain.StatusDraft)
	if err != nil {
		return domain.Game{}, err
	}
	s.invalidate(ctx, gameID)
	return updated, nil
}

// StartGame moves a lobby with at least one participant to the first question.
func (s *GameService) StartGame(ctx context.Context, hostID, gameID string) (domain.Game, error) {
	game, err := s.hostGame(ctx, hostID, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.Status != domain.StatusLobby {
		return domain.Game{}, domain.ErrInvalidTransition
	}
	participants, err := s.store.ListParticipants(ctx, gameID, game.Round)
	if err != nil {
		return domain.Game{}, err
	}
	if len(participants) == 0 {
		return domain.Game{}, domain.Invalid("participants", "wait for at least one player to join")
	}
	return s.transition(ctx, gameID, domain.StatusLobby, domain.StatusInProgress)
}

// NextQuestion advances to the following question, or ends the game after the last one.
func (s *GameService) NextQuestion(ctx context.Context, hostID, gameID string) (domain.Game, error) {
	game, err := s.hostGame(ctx, hostID, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.Status != domain.StatusInProgress {
		return domain.Game{}, domain.ErrInvalidTransition
	}
	questions, err := s.questions.Questions(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	next := game.CurrentQuestionIndex + 1
	if next >= len(questions) {
		return s.transition(ctx, gameID, domain.StatusInProgress, domain.StatusFinished)
	}
	updated, err := s.store.AdvanceQuestion(ctx, gameID, game.CurrentQuestionIndex)
	if err != nil {
		return domain.Game{}, err
	}
	s.publishGame(ctx, updated)
	if _, ok := lookupQuestion(questions, updated); !ok {
		return updated, domain.ErrQuestionUnavailable
	}
	return updated, nil
}

// EndGame finishes a running game.
func (s *GameService) EndGame(ctx context.Context, hostID, gameID string) (domain.Game, error) {
	if _, err := s.hostGame(ctx, hostID, gameID); err != nil {
		return domain.Game{}, err
	}
	return s.transition(ctx, gameID, domain.StatusInProgress, domain.StatusFinished)
}

// RestartSameQuestions reopens a finished game's lobby for a new round with the same identity.
// The join code is kept unless another live game has claimed it meanwhile.
func (s *GameService) RestartSameQuestions(ctx context.Context, hostID, gameID string) (domain.Game, error) {
	game, err := s.hostGame(ctx, hostID, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.Status != domain.StatusFinished {
		return domain.Game{}, domain.ErrInvalidTransition
	}
	code := game.Code
	for attempt := 0; attempt < s.opts.CodeAttempts; attempt++ {
		taken, err := s.store.CodeInUse(ctx, code)
		if err != nil {
			return domain.Game{}, err
		}
		if taken {
			if code, err = s.freeCode(ctx); err != nil {
				return domain.Game{}, err
			}
		}
		updated, err := s.store.RestartGame(ctx, gameID, code)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Game{}, err
		}
		s.publishGame(ctx, updated)
		return updated, nil
	}
	return domain.Game{}, domain.ErrCodeSpaceExhausted
}

// CloneAsNewGame copies a game's questions into a new draft game with its own identity and code.
// A partly copied clone is deleted again.
func (s *GameService) CloneAsNewGame(ctx context.Context, hostID, gameID string) (domain.Game, error) {
	game, err := s.hostGame(ctx, hostID, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	questions, err := s.store.ListQuestions(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	clone, err := s.CreateGame(ctx, hostID, game.Title)
	if err != nil {
		return domain.Game{}, err
	}
	now := s.clock()
	for _, q := range questions {
		copied := q
		copied.ID = uuid.NewString()
		copied.GameID = clone.ID
		copied.CreatedAt = now
		copied.UpdatedAt = now
		copied.Options = make([]domain.Option, len(q.Options))
		for i, o := range q.Options {
			o.ID = uuid.NewString()
			o.QuestionID = copied.ID
			o.CreatedAt = now
			o.UpdatedAt = now
			copied.Options[i] = o
		}
		if err := s.store.CreateQuestion(ctx, copied); err != nil {
			if derr := s.store.DeleteGame(ctx, clone.ID); derr != nil {
				log.Printf("clone cleanup failed: game=%s err=%v", clone.ID, derr)
			}
			return domain.Game{}, fmt.Errorf("clone question %d: %w", q.Order, err)
		}
	}
	return clone, nil
}

// Subscribe attaches to the change feed of a game.
func (s *GameService) Subscribe(ctx context.Context, gameID string) (<-chan domain.Event, func(), error) {
	if _, err := s.store.GetGame(ctx, gameID); err != nil {
		return nil, nil, err
	}
	return s.relay.Subscribe(ctx, gameID)
}

// Game returns the stored game.
func (s *GameService) Game(ctx context.Context, gameID string) (domain.Game, error) {
	return s.store.GetGame(ctx, gameID)
}

func (s *GameService) hostGame(ctx context.Context, hostID, gameID string) (domain.Game, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if hostID == "" || game.HostID != hostID {
		return domain.Game{}, domain.ErrNotHost
	}
	return game, nil
}

func (s *GameService) draftGame(ctx context.Context, hostID, gameID string) (domain.Game, error) {
	game, err := s.hostGame(ctx, hostID, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if !game.Status.Editable() {
		return domain.Game{}, domain.ErrInvalidTransition
	}
	return game, nil
}

func (s *GameService) transition(ctx context.Context, gameID string, from, to domain.GameStatus) (domain.Game, error) {
	if !from.CanTransition(to) {
		return domain.Game{}, domain.ErrInvalidTransition
	}
	updated, err := s.store.TransitionGame(ctx, gameID, from, to)
	if err != nil {
		return domain.Game{}, err
	}
	s.publishGame(ctx, updated)
	return updated, nil
}

func (s *GameService) publishGame(ctx context.Context, game domain.Game) {
	g := game
	s.publish(ctx, domain.Event{Type: domain.EventGameUpdated, GameID: game.ID, Game: &g})
}

func (s *GameService) publish(ctx context.Context, event domain.Event) {
	if err := s.relay.Publish(ctx, event); err != nil {
		log.Printf("relay publish failed: game=%s type=%s err=%v", event.GameID, event.Type, err)
	}
}

func (s *GameService) invalidate(ctx context.Context, gameID string) {
	if err := s.questions.Invalidate(ctx, gameID); err != nil {
		log.Printf("question cache invalidate failed: game=%s err=%v", gameID, err)
	}
}

// freeCode draws random 4-digit codes until one is not held by a non-finished game.
func (s *GameService) freeCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.opts.CodeAttempts; attempt++ {
		s.rndMu.Lock()
		code := fmt.Sprintf("%04d", s.rnd.Intn(10000))
		s.rndMu.Unlock()
		taken, err := s.store.CodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrCodeSpaceExhausted
}

// questionSet returns the questions of a game, served from cache once the game left draft.
func (s *GameService) questionSet(ctx context.Context, game domain.Game) ([]domain.Question, error) {
	if game.Status == domain.StatusDraft {
		return s.store.ListQuestions(ctx, game.ID)
	}
	return s.questions.Questions(ctx, game.ID)
}

// lookupQuestion finds the question at the game's index by order, falling back to
// storage position when no question carries the expected order.
func lookupQuestion(questions []domain.Question, game domain.Game) (domain.Question, bool) {
	idx := game.CurrentQuestionIndex
	for _, q := range questions {
		if q.Order == idx+1 {
			return q, true
		}
	}
	if idx < 0 || idx >= len(questions) {
		log.Printf("question lookup failed by order and position: game=%s index=%d", game.ID, idx)
		return domain.Question{}, false
	}
	byPosition := make([]domain.Question, len(questions))
	copy(byPosition, questions)
	sort.SliceStable(byPosition, func(i, j int) bool {
		return byPosition[i].CreatedAt.Before(byPosition[j].CreatedAt)
	})
	log.Printf("question order lookup missed, using storage position: game=%s index=%d", game.ID, idx)
	return byPosition[idx], true
}

// currentQuestion resolves the question a live view shows. When there is none the
// returned screen says why: an index past the last question is an error, a failed
// lookup is a wait.
func currentQuestion(questions []domain.Question, game domain.Game) (domain.Question, string) {
	if game.CurrentQuestionIndex >= len(questions) {
		log.Printf("question index past the last question: game=%s index=%d count=%d", game.ID, game.CurrentQuestionIndex, len(questions))
		return domain.Question{}, ScreenError
	}
	q, ok := lookupQuestion(questions, game)
	if !ok {
		return domain.Question{}, ScreenWaiting
	}
	return q, ScreenQuestion
}

type directQuestions struct {
	store QuestionLoader
}

func (d directQuestions) Questions(ctx context.Context, gameID string) ([]domain.Question, error) {
	return d.store.ListQuestions(ctx, gameID)
}

func (d directQuestions) Invalidate(context.Context, string) error { return nil }
