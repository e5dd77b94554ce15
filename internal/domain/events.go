package domain

// EventType names a change pushed to observers of a game.
type EventType string

const (
	EventGameUpdated       EventType = "game.updated"
	EventParticipantJoined EventType = "participant.joined"
	EventAnswerCreated     EventType = "answer.created"
)

// Event is a row-level change for one game, carried by the relay.
type Event struct {
	Type        EventType    `json:"type"`
	GameID      string       `json:"gameId"`
	Game        *Game        `json:"game,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
	Answer      *Answer      `json:"answer,omitempty"`
}
