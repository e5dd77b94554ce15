package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"karoot/internal/domain"
)

// Store is an in-memory implementation of app.Store.
type Store struct {
	clock func() time.Time

	mu           sync.RWMutex
	games        map[string]domain.Game
	participants map[string]domain.Participant
	questions    map[string]domain.Question
	answers      map[string]domain.Answer
	answered     map[answerKey]string
}

type answerKey struct {
	participantID string
	questionID    string
}

func NewStore() *Store {
	return &Store{
		clock:        time.Now,
		games:        make(map[string]domain.Game),
		participants: make(map[string]domain.Participant),
		questions:    make(map[string]domain.Question),
		answers:      make(map[string]domain.Answer),
		answered:     make(map[answerKey]string),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateGame(_ context.Context, game domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codeHeldLocked(game.Code, game.ID) {
		return domain.ErrCodeTaken
	}
	s.games[game.ID] = game
	return nil
}

func (s *Store) GetGame(_ context.Context, gameID string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return game, nil
}

func (s *Store) FindGameByCode(_ context.Context, code string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Game
	for _, g := range s.games {
		if g.Code != code {
			continue
		}
		if g.Status != domain.StatusFinished {
			return g, nil
		}
		if latest == nil || g.UpdatedAt.After(latest.UpdatedAt) {
			g := g
			latest = &g
		}
	}
	if latest == nil {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return *latest, nil
}

func (s *Store) CodeInUse(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codeHeldLocked(code, ""), nil
}

func (s *Store) ListGamesByHost(_ context.Context, hostID string) ([]domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	games := make([]domain.Game, 0)
	for _, g := range s.games {
		if g.HostID == hostID {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool {
		if !games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].CreatedAt.After(games[j].CreatedAt)
		}
		return games[i].ID < games[j].ID
	})
	return games, nil
}

func (s *Store) UpdateTitle(_ context.Context, gameID, title string) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	game.Title = title
	game.UpdatedAt = s.clock()
	s.games[gameID] = game
	return game, nil
}

func (s *Store) TransitionGame(_ context.Context, gameID string, from, to domain.GameStatus) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if game.Status != from {
		return domain.Game{}, domain.ErrStatusConflict
	}
	game.Status = to
	if to == domain.StatusInProgress {
		game.CurrentQuestionIndex = 0
	}
	game.UpdatedAt = s.clock()
	s.games[gameID] = game
	return game, nil
}

func (s *Store) AdvanceQuestion(_ context.Context, gameID string, expected int) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if game.Status != domain.StatusInProgress {
		return domain.Game{}, domain.ErrStatusConflict
	}
	if game.CurrentQuestionIndex != expected {
		return domain.Game{}, domain.ErrIndexConflict
	}
	game.CurrentQuestionIndex++
	game.UpdatedAt = s.clock()
	s.games[gameID] = game
	return game, nil
}

func (s *Store) RestartGame(_ context.Context, gameID, code string) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if game.Status != domain.StatusFinished {
		return domain.Game{}, domain.ErrStatusConflict
	}
	if s.codeHeldLocked(code, gameID) {
		return domain.Game{}, domain.ErrCodeTaken
	}
	game.Status = domain.StatusLobby
	game.Code = code
	game.CurrentQuestionIndex = 0
	game.Round++
	game.UpdatedAt = s.clock()
	s.games[gameID] = game
	return game, nil
}

func (s *Store) AddParticipant(_ context.Context, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[p.GameID]; !ok {
		return domain.ErrGameNotFound
	}
	for _, existing := range s.participants {
		if existing.GameID == p.GameID && existing.Round == p.Round && existing.Name == p.Name {
			return domain.ErrNicknameTaken
		}
	}
	s.participants[p.ID] = p
	return nil
}

func (s *Store) GetParticipant(_ context.Context, participantID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) ListParticipants(_ context.Context, gameID string, round int) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participant, 0)
	for _, p := range s.participants {
		if p.GameID == gameID && p.Round == round {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListQuestions(_ context.Context, gameID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0)
	for _, q := range s.questions {
		if q.GameID == gameID {
			out = append(out, copyQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out, nil
}

func (s *Store) GetQuestion(_ context.Context, questionID string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[questionID]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return copyQuestion(q), nil
}

func (s *Store) CreateQuestion(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[q.GameID]; !ok {
		return domain.ErrGameNotFound
	}
	s.questions[q.ID] = copyQuestion(q)
	return nil
}

func (s *Store) UpdateQuestion(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.questions[q.ID]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	q.GameID = existing.GameID
	q.Order = existing.Order
	q.CreatedAt = existing.CreatedAt
	s.questions[q.ID] = copyQuestion(q)
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, gameID, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok || q.GameID != gameID {
		return domain.ErrQuestionNotFound
	}
	delete(s.questions, questionID)

	remaining := make([]domain.Question, 0)
	for _, other := range s.questions {
		if other.GameID == gameID {
			remaining = append(remaining, other)
		}
	}
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].Order < remaining[j].Order
	})
	for i, other := range remaining {
		other.Order = i + 1
		s.questions[other.ID] = other
	}
	return nil
}

func (s *Store) DeleteGame(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return domain.ErrGameNotFound
	}
	delete(s.games, gameID)
	for id, q := range s.questions {
		if q.GameID == gameID {
			delete(s.questions, id)
		}
	}
	for id, p := range s.participants {
		if p.GameID == gameID {
			delete(s.participants, id)
		}
	}
	for id, a := range s.answers {
		if a.GameID == gameID {
			delete(s.answers, id)
			delete(s.answered, answerKey{participantID: a.ParticipantID, questionID: a.QuestionID})
		}
	}
	return nil
}

func (s *Store) CreateAnswer(_ context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{participantID: a.ParticipantID, questionID: a.QuestionID}
	if _, ok := s.answered[key]; ok {
		return domain.ErrAlreadyAnswered
	}
	s.answered[key] = a.ID
	s.answers[a.ID] = a
	return nil
}

func (s *Store) ListAnswers(_ context.Context, gameID string) ([]domain.Answer, error) {
	return s.filterAnswers(func(a domain.Answer) bool { return a.GameID == gameID }), nil
}

func (s *Store) ListQuestionAnswers(_ context.Context, questionID string) ([]domain.Answer, error) {
	return s.filterAnswers(func(a domain.Answer) bool { return a.QuestionID == questionID }), nil
}

func (s *Store) filterAnswers(keep func(domain.Answer) bool) []domain.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, 0)
	for _, a := range s.answers {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// codeHeldLocked reports whether a non-finished game other than exceptID holds code.
func (s *Store) codeHeldLocked(code, exceptID string) bool {
	for id, g := range s.games {
		if id != exceptID && g.Code == code && g.Status != domain.StatusFinished {
			return true
		}
	}
	return false
}

func copyQuestion(q domain.Question) domain.Question {
	opts := make([]domain.Option, len(q.Options))
	copy(opts, q.Options)
	sort.Slice(opts, func(i, j int) bool {
		return opts[i].Position < opts[j].Position
	})
	q.Options = opts
	return q
}
