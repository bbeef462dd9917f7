package orchestrator

import (
	"errors"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/stage"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// GenericFailure is shown for every fatal error without a specific message.
const GenericFailure = "Sorry, something went wrong while processing your request. Please try again."

// FailureMessage maps an error from any Orchestrator operation to the one
// message shown to the user. Partial results are never included.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		expired  *models.ExpiredConfirmationError
		rollback *models.InvalidRollbackError
		notFound *models.SessionNotFoundError
	)
	switch {
	case errors.Is(err, models.ErrSessionBusy):
		return "I'm still working on your previous request. Please wait a moment."
	case errors.As(err, &expired):
		return "That question has expired. Please restart this request."
	case errors.Is(err, models.ErrConfirmationCancelled):
		return "I couldn't understand the answers, so the request was cancelled. Please try again."
	case errors.As(err, &rollback):
		return "You're already choosing the main dish, so there is nothing to go back to."
	case errors.As(err, &notFound):
		return "This conversation has expired. Please start again."
	case errors.Is(err, models.ErrChainCancelled):
		return "The request was cancelled."
	case errors.Is(err, models.ErrInvalidChoice):
		return "Please reply with one of the listed numbers, 0 for more options, or -1 to go back."
	case errors.Is(err, stage.ErrMenuComplete):
		return "The menu is already complete."
	default:
		return GenericFailure
	}
}
