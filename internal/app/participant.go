package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"karoot/internal/domain"
)

// JoinGame adds a nickname to the lobby of the game with the given code.
func (s *GameService) JoinGame(ctx context.Context, code, nickname string) (domain.Participant, domain.Game, error) {
	if !domain.ValidCode(code) {
		return domain.Participant{}, domain.Game{}, domain.Invalid("code", "enter the 4-digit game code")
	}
	name, err := domain.CleanNickname(nickname)
	if err != nil {
		return domain.Participant{}, domain.Game{}, err
	}
	game, err := s.store.FindGameByCode(ctx, code)
	if err != nil {
		return domain.Participant{}, domain.Game{}, err
	}
	if err := game.Status.JoinError(); err != nil {
		return domain.Participant{}, domain.Game{}, err
	}
	p := domain.Participant{
		ID:        uuid.NewString(),
		GameID:    game.ID,
		Round:     game.Round,
		Name:      name,
		CreatedAt: s.clock(),
	}
	if err := s.store.AddParticipant(ctx, p); err != nil {
		return domain.Participant{}, domain.Game{}, err
	}
	s.publish(ctx, domain.Event{Type: domain.EventParticipantJoined, GameID: game.ID, Participant: &p})
	return p, game, nil
}

// Participant returns a participant of the game's current round.
func (s *GameService) Participant(ctx context.Context, gameID, participantID string) (domain.Participant, domain.Game, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return domain.Participant{}, domain.Game{}, err
	}
	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.Participant{}, domain.Game{}, err
	}
	if p.GameID != gameID || p.Round != game.Round {
		return domain.Participant{}, domain.Game{}, domain.ErrParticipantNotFound
	}
	return p, game, nil
}

// SubmitAnswer records a participant's choice for the current question and returns immediate feedback.
func (s *GameService) SubmitAnswer(ctx context.Context, gameID, participantID, questionID, optionID string, responseTime time.Duration) (domain.AnswerResult, error) {
	_, game, err := s.Participant(ctx, gameID, participantID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if game.Status != domain.StatusInProgress {
		return domain.AnswerResult{}, domain.ErrInvalidTransition
	}
	questions, err := s.questions.Questions(ctx, gameID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	current, ok := lookupQuestion(questions, game)
	if !ok {
		return domain.AnswerResult{}, domain.ErrQuestionUnavailable
	}
	if current.ID != questionID {
		return domain.AnswerResult{}, domain.ErrNotCurrentQuestion
	}
	option, ok := current.FindOption(optionID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrOptionNotFound
	}

	ms := responseTime.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	answer := domain.Answer{
		ID:             uuid.NewString(),
		GameID:         gameID,
		ParticipantID:  participantID,
		QuestionID:     questionID,
		OptionID:       optionID,
		ResponseTimeMs: &ms,
		CreatedAt:      s.clock(),
	}
	if err := s.store.CreateAnswer(ctx, answer); err != nil {
		if errors.Is(err, domain.ErrAlreadyAnswered) {
			return domain.AnswerResult{}, err
		}
		return domain.AnswerResult{}, fmt.Errorf("submit answer: %w", err)
	}
	s.publish(ctx, domain.Event{Type: domain.EventAnswerCreated, GameID: gameID, Answer: &answer})

	correctOpt, _ := current.CorrectOption()
	return domain.AnswerResult{
		AnswerID:        answer.ID,
		QuestionID:      questionID,
		OptionID:        optionID,
		Correct:         option.IsCorrect,
		CorrectOptionID: correctOpt.ID,
		Awarded:         domain.Score(option.IsCorrect, responseTime, s.opts.QuestionDuration, current.PointsOrDefault()),
	}, nil
}

// PlayerView is everything a participant's screen needs.
type PlayerView struct {
	Screen        string                 `json:"screen"`
	Game          domain.Game            `json:"game"`
	Participant   domain.Participant     `json:"participant"`
	Participants  []domain.Participant   `json:"participants,omitempty"`
	Question      *domain.PublicQuestion `json:"question,omitempty"`
	QuestionCount int                    `json:"questionCount"`
	Answer        *domain.AnswerResult   `json:"answer,omitempty"`
	Result        *domain.PersonalResult `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// PlayerView renders the participant screen for the game's status.
func (s *GameService) PlayerView(ctx context.Context, gameID, participantID string) (PlayerView, error) {
	view, _, err := s.playerView(ctx, gameID, participantID)
	return view, err
}

// playerView also returns the full current question so sessions can track it.
func (s *GameService) playerView(ctx context.Context, gameID, participantID string) (PlayerView, *domain.Question, error) {
	p, game, err := s.Participant(ctx, gameID, participantID)
	if err != nil {
		return PlayerView{}, nil, err
	}
	view := PlayerView{Game: game, Participant: p}
	switch game.Status {
	case domain.StatusLobby:
		view.Screen = ScreenLobby
		if view.Participants, err = s.store.ListParticipants(ctx, gameID, game.Round); err != nil {
			return PlayerView{}, nil, err
		}
		return view, nil, nil
	case domain.StatusInProgress:
		questions, err := s.questions.Questions(ctx, gameID)
		if err != nil {
			return PlayerView{}, nil, err
		}
		view.QuestionCount = len(questions)
		q, screen := currentQuestion(questions, game)
		view.Screen = screen
		switch screen {
		case ScreenError:
			view.Error = errIndexPastEnd
			return view, nil, nil
		case ScreenWaiting:
			return view, nil, nil
		}
		public := q.Public()
		view.Question = &public
		if view.Answer, err = s.existingAnswer(ctx, q, participantID); err != nil {
			return PlayerView{}, nil, err
		}
		return view, &q, nil
	case domain.StatusFinished:
		questions, err := s.questions.Questions(ctx, gameID)
		if err != nil {
			return PlayerView{}, nil, err
		}
		view.QuestionCount = len(questions)
		view.Screen = ScreenResults
		result, err := s.personalResult(ctx, game, questions, participantID)
		if err != nil {
			return PlayerView{}, nil, err
		}
		view.Result = &result
		return view, nil, nil
	default:
		view.Screen = ScreenError
		view.Error = domain.ErrGameInDraft.Error()
		return view, nil, nil
	}
}

func (s *GameService) existingAnswer(ctx context.Context, q domain.Question, participantID string) (*domain.AnswerResult, error) {
	answers, err := s.store.ListQuestionAnswers(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range answers {
		if a.ParticipantID != participantID {
			continue
		}
		opt, _ := q.FindOption(a.OptionID)
		correct, _ := q.CorrectOption()
		return &domain.AnswerResult{
			AnswerID:        a.ID,
			QuestionID:      q.ID,
			OptionID:        a.OptionID,
			Correct:         opt.IsCorrect,
			CorrectOptionID: correct.ID,
			Awarded:         domain.Score(opt.IsCorrect, a.ResponseTime(), s.opts.QuestionDuration, q.PointsOrDefault()),
		}, nil
	}
	return nil, nil
}

func (s *GameService) personalResult(ctx context.Context, game domain.Game, questions []domain.Question, participantID string) (domain.PersonalResult, error) {
	participants, err := s.store.ListParticipants(ctx, game.ID, game.Round)
	if err != nil {
		return domain.PersonalResult{}, err
	}
	answers, err := s.roundAnswers(ctx, game.ID, participants)
	if err != nil {
		return domain.PersonalResult{}, err
	}
	board := domain.BuildLeaderboard(participants, questions, answers, s.opts.QuestionDuration)
	result := domain.PersonalResult{Total: len(questions)}
	for i, entry := range board {
		if entry.ParticipantID == participantID {
			result.Correct = entry.Correct
			result.Score = entry.Score
			result.Rank = i + 1
			break
		}
	}
	result.Percentage = domain.Percent(result.Correct, result.Total)
	result.Message = domain.ResultMessage(result.Percentage)
	return result, nil
}

// PlayerSession is one participant connection. It remembers when the current
// question was first shown and refuses a second submission for it locally.
type PlayerSession struct {
	svc           *GameService
	gameID        string
	participantID string

	mu         sync.Mutex
	questionID string
	shownAt    time.Time
	answered   bool
}

// NewPlayerSession binds a session to a participant of a game.
func (s *GameService) NewPlayerSession(gameID, participantID string) *PlayerSession {
	return &PlayerSession{svc: s, gameID: gameID, participantID: participantID}
}

// View renders the player screen and tracks question changes.
func (p *PlayerSession) View(ctx context.Context) (PlayerView, error) {
	view, q, err := p.svc.playerView(ctx, p.gameID, p.participantID)
	if err != nil {
		return PlayerView{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if q == nil {
		p.questionID = ""
		p.answered = false
		return view, nil
	}
	if q.ID != p.questionID {
		p.questionID = q.ID
		p.shownAt = p.svc.clock()
		p.answered = false
	}
	if view.Answer != nil {
		p.answered = true
	}
	return view, nil
}

// Submit sends the chosen option for the question currently shown.
func (p *PlayerSession) Submit(ctx context.Context, optionID string) (domain.AnswerResult, error) {
	p.mu.Lock()
	if p.questionID == "" {
		p.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrQuestionUnavailable
	}
	if p.answered {
		p.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}
	p.answered = true
	questionID := p.questionID
	elapsed := p.svc.clock().Sub(p.shownAt)
	p.mu.Unlock()

	result, err := p.svc.SubmitAnswer(ctx, p.gameID, p.participantID, questionID, optionID, elapsed)
	if err != nil && !errors.Is(err, domain.ErrAlreadyAnswered) {
		p.mu.Lock()
		if p.questionID == questionID {
			p.answered = false
		}
		p.mu.Unlock()
	}
	return result, err
}
