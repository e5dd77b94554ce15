package app

import (
	"context"
	"sync"

	"karoot/internal/domain"
)

// HostMonitor keeps a host's live view of a game. It subscribes before the
// bulk load so answers that arrive in between are applied, not lost.
type HostMonitor struct {
	svc    *GameService
	gameID string
	events <-chan domain.Event
	cancel func()

	mu    sync.Mutex
	game  domain.Game
	tally *domain.Tally
}

// Monitor attaches a host to a game's change feed.
func (s *GameService) Monitor(ctx context.Context, hostID, gameID string) (*HostMonitor, error) {
	if _, err := s.hostGame(ctx, hostID, gameID); err != nil {
		return nil, err
	}
	events, cancel, err := s.relay.Subscribe(ctx, gameID)
	if err != nil {
		return nil, err
	}
	m := &HostMonitor{svc: s, gameID: gameID, events: events, cancel: cancel}
	if err := m.Sync(ctx); err != nil {
		cancel()
		return nil, err
	}
	return m, nil
}

// Events is the raw change feed; pass each event to Apply.
func (m *HostMonitor) Events() <-chan domain.Event {
	return m.events
}

// Close detaches from the change feed.
func (m *HostMonitor) Close() {
	m.cancel()
}

// Sync reloads the game and, while a question is live, rebuilds its tally from storage.
func (m *HostMonitor) Sync(ctx context.Context) error {
	game, err := m.svc.store.GetGame(ctx, m.gameID)
	if err != nil {
		return err
	}
	var tally *domain.Tally
	if game.Status == domain.StatusInProgress {
		questions, err := m.svc.questions.Questions(ctx, game.ID)
		if err != nil {
			return err
		}
		if q, ok := lookupQuestion(questions, game); ok {
			if tally, err = m.svc.loadTally(ctx, game, q); err != nil {
				return err
			}
		}
	}
	m.mu.Lock()
	m.game = game
	m.tally = tally
	m.mu.Unlock()
	return nil
}

// Apply folds one event into the live state. Answers are counted incrementally;
// a game change that moves to another question or status triggers a Sync.
func (m *HostMonitor) Apply(ctx context.Context, event domain.Event) error {
	switch event.Type {
	case domain.EventAnswerCreated:
		if event.Answer == nil {
			return nil
		}
		m.mu.Lock()
		if m.tally != nil {
			m.tally.Add(*event.Answer)
		}
		m.mu.Unlock()
		return nil
	case domain.EventGameUpdated:
		if event.Game == nil {
			return m.Sync(ctx)
		}
		m.mu.Lock()
		prev := m.game
		m.game = *event.Game
		m.mu.Unlock()
		if prev.Status != event.Game.Status || prev.CurrentQuestionIndex != event.Game.CurrentQuestionIndex || prev.Round != event.Game.Round {
			return m.Sync(ctx)
		}
		return nil
	default:
		return nil
	}
}

// Tally returns the distribution of the live question, or nil outside a question.
func (m *HostMonitor) Tally() []domain.AnswerDistribution {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tally == nil {
		return nil
	}
	return m.tally.Distribution()
}

// View renders the host screen using the incrementally maintained tally.
func (m *HostMonitor) View(ctx context.Context) (HostView, error) {
	m.mu.Lock()
	game := m.game
	var live *domain.Tally
	if m.tally != nil {
		// copy so rendering does not race with Apply
		live = m.tally.Clone()
	}
	m.mu.Unlock()
	return m.svc.hostView(ctx, game, live)
}
