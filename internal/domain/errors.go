package domain

import "errors"

var (
	// ErrGameNotFound is returned when no game matches the id or join code.
	ErrGameNotFound = errors.New("game not found")
	// ErrNotHost is returned when the caller does not own the game.
	ErrNotHost = errors.New("only the host can do that")
	// ErrInvalidTransition indicates the action is not allowed in the game's current status.
	ErrInvalidTransition = errors.New("action not allowed in current game status")
	// ErrStatusConflict is returned when a conditional status update lost a race.
	ErrStatusConflict = errors.New("game status changed concurrently")
	// ErrIndexConflict is returned when another advance moved the question index first.
	ErrIndexConflict = errors.New("question index changed concurrently")

	ErrGameInDraft     = errors.New("this game is still being set up")
	ErrGameStarted     = errors.New("this game has already started")
	ErrGameFinished    = errors.New("this game has already finished")
	ErrNicknameTaken   = errors.New("that nickname is already taken in this game")
	ErrAlreadyAnswered = errors.New("you already answered this question")

	// ErrCodeTaken is returned by stores when a join code is held by another non-finished game.
	ErrCodeTaken = errors.New("join code already in use")
	// ErrCodeSpaceExhausted is returned when no free join code was found within the attempt budget.
	ErrCodeSpaceExhausted = errors.New("could not allocate a free join code")

	ErrQuestionNotFound    = errors.New("question not found")
	ErrQuestionUnavailable = errors.New("current question could not be loaded")
	ErrOptionNotFound      = errors.New("option not found")
	ErrParticipantNotFound = errors.New("participant not found in game")
	ErrNotCurrentQuestion  = errors.New("question is not the current question")
)

// ValidationError reports user input that failed a content rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
