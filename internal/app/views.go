package app

import (
	"context"

	"karoot/internal/domain"
)

// Screens a host or player view can be in.
const (
	ScreenEditor   = "editor"
	ScreenLobby    = "lobby"
	ScreenQuestion = "question"
	ScreenResults  = "results"
	ScreenWaiting  = "waiting"
	ScreenError    = "error"
)

const errIndexPastEnd = "question index is past the last question"

// HostView is everything the host screen needs for the game's current status.
type HostView struct {
	Screen        string                      `json:"screen"`
	Game          domain.Game                 `json:"game"`
	Questions     []domain.Question           `json:"questions,omitempty"`
	Participants  []domain.Participant        `json:"participants,omitempty"`
	Question      *domain.Question            `json:"question,omitempty"`
	QuestionCount int                         `json:"questionCount"`
	Distribution  []domain.AnswerDistribution `json:"distribution,omitempty"`
	TotalAnswers  int                         `json:"totalAnswers"`
	Summary       *GameSummary                `json:"summary,omitempty"`
	Error         string                      `json:"error,omitempty"`
}

// GameSummary is the host's end-of-game report.
type GameSummary struct {
	Participants      int                       `json:"participants"`
	Questions         int                       `json:"questions"`
	CorrectPercentage int                       `json:"correctPercentage"`
	Breakdown         []QuestionBreakdown       `json:"breakdown"`
	Leaderboard       []domain.LeaderboardEntry `json:"leaderboard"`
}

// QuestionBreakdown is the answer distribution of one finished question.
type QuestionBreakdown struct {
	QuestionID        string                      `json:"questionId"`
	Text              string                      `json:"text"`
	Order             int                         `json:"order"`
	TotalAnswers      int                         `json:"totalAnswers"`
	CorrectPercentage int                         `json:"correctPercentage"`
	Distribution      []domain.AnswerDistribution `json:"distribution"`
}

// HostView renders the host screen for the game's status.
func (s *GameService) HostView(ctx context.Context, hostID, gameID string) (HostView, error) {
	game, err := s.hostGame(ctx, hostID, gameID)
	if err != nil {
		return HostView{}, err
	}
	return s.hostView(ctx, game, nil)
}

// hostView builds the view; a non-nil tally supplies the live distribution of the current question.
func (s *GameService) hostView(ctx context.Context, game domain.Game, live *domain.Tally) (HostView, error) {
	view := HostView{Game: game}
	questions, err := s.questionSet(ctx, game)
	if err != nil {
		return HostView{}, err
	}
	view.QuestionCount = len(questions)

	switch game.Status {
	case domain.StatusDraft:
		view.Screen = ScreenEditor
		view.Questions = questions
	case domain.StatusLobby:
		view.Screen = ScreenLobby
		if view.Participants, err = s.store.ListParticipants(ctx, game.ID, game.Round); err != nil {
			return HostView{}, err
		}
	case domain.StatusInProgress:
		q, screen := currentQuestion(questions, game)
		view.Screen = screen
		switch screen {
		case ScreenError:
			view.Error = errIndexPastEnd
			return view, nil
		case ScreenWaiting:
			return view, nil
		}
		view.Question = &q
		if view.Participants, err = s.store.ListParticipants(ctx, game.ID, game.Round); err != nil {
			return HostView{}, err
		}
		tally := live
		if tally == nil || tally.QuestionID() != q.ID {
			if tally, err = s.loadTally(ctx, game, q); err != nil {
				return HostView{}, err
			}
		}
		view.Distribution = tally.Distribution()
		view.TotalAnswers = tally.Total()
	case domain.StatusFinished:
		if len(questions) == 0 {
			view.Screen = ScreenError
			view.Error = "game has no questions"
			return view, nil
		}
		view.Screen = ScreenResults
		summary, participants, err := s.summary(ctx, game, questions)
		if err != nil {
			return HostView{}, err
		}
		view.Participants = participants
		view.Summary = &summary
	}
	return view, nil
}

func (s *GameService) summary(ctx context.Context, game domain.Game, questions []domain.Question) (GameSummary, []domain.Participant, error) {
	participants, err := s.store.ListParticipants(ctx, game.ID, game.Round)
	if err != nil {
		return GameSummary{}, nil, err
	}
	answers, err := s.roundAnswers(ctx, game.ID, participants)
	if err != nil {
		return GameSummary{}, nil, err
	}
	summary := GameSummary{
		Participants: len(participants),
		Questions:    len(questions),
		Leaderboard:  domain.BuildLeaderboard(participants, questions, answers, s.opts.QuestionDuration),
	}
	correct, total := 0, 0
	for _, q := range questions {
		tally := domain.NewTally(q)
		tally.Load(answers)
		correct += tally.CorrectCount()
		total += tally.Total()
		summary.Breakdown = append(summary.Breakdown, QuestionBreakdown{
			QuestionID:        q.ID,
			Text:              q.Text,
			Order:             q.Order,
			TotalAnswers:      tally.Total(),
			CorrectPercentage: tally.CorrectPercentage(),
			Distribution:      tally.Distribution(),
		})
	}
	summary.CorrectPercentage = domain.Percent(correct, total)
	return summary, participants, nil
}

// loadTally builds a tally for q from answers given in the game's current round.
func (s *GameService) loadTally(ctx context.Context, game domain.Game, q domain.Question) (*domain.Tally, error) {
	participants, err := s.store.ListParticipants(ctx, game.ID, game.Round)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.ListQuestionAnswers(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	tally := domain.NewTally(q)
	tally.Load(filterRound(answers, participants))
	return tally, nil
}

func (s *GameService) roundAnswers(ctx context.Context, gameID string, participants []domain.Participant) ([]domain.Answer, error) {
	answers, err := s.store.ListAnswers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return filterRound(answers, participants), nil
}

func filterRound(answers []domain.Answer, participants []domain.Participant) []domain.Answer {
	ids := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		ids[p.ID] = struct{}{}
	}
	out := answers[:0:0]
	for _, a := range answers {
		if _, ok := ids[a.ParticipantID]; ok {
			out = append(out, a)
		}
	}
	return out
}
