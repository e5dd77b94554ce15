package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"karoot/internal/domain"
)

type errorPayload struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}

// respondErr maps domain errors onto HTTP statuses; anything unknown is a transient 500.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
		writeError(w, status, "something went wrong, please try again")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrGameNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStatusConflict),
		errors.Is(err, domain.ErrIndexConflict),
		errors.Is(err, domain.ErrGameInDraft),
		errors.Is(err, domain.ErrGameStarted),
		errors.Is(err, domain.ErrGameFinished),
		errors.Is(err, domain.ErrNicknameTaken),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrCodeTaken),
		errors.Is(err, domain.ErrNotCurrentQuestion),
		errors.Is(err, domain.ErrQuestionUnavailable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCodeSpaceExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
