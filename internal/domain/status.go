package domain

// GameStatus is the lifecycle state of a game.
type GameStatus string

const (
	StatusDraft      GameStatus = "draft"
	StatusLobby      GameStatus = "lobby"
	StatusInProgress GameStatus = "in_progress"
	StatusFinished   GameStatus = "finished"
)

var transitions = map[GameStatus][]GameStatus{
	StatusDraft:      {StatusLobby},
	StatusLobby:      {StatusDraft, StatusInProgress},
	StatusInProgress: {StatusFinished},
	StatusFinished:   {StatusLobby},
}

// Valid reports whether s is a known status.
func (s GameStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s GameStatus) CanTransition(next GameStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Editable reports whether questions may be changed in this status.
func (s GameStatus) Editable() bool {
	return s == StatusDraft
}

// JoinError maps a non-lobby status to the message shown to a joining player.
func (s GameStatus) JoinError() error {
	switch s {
	case StatusLobby:
		return nil
	case StatusDraft:
		return ErrGameInDraft
	case StatusInProgress:
		return ErrGameStarted
	default:
		return ErrGameFinished
	}
}
