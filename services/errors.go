package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrGameNotAccepting       = errors.New("game is not accepting submissions")
	ErrWinnerAlreadySelected  = errors.New("winner already selected")
	ErrNoActiveGame           = errors.New("no active game")
	ErrGameAlreadyExists      = errors.New("an active game already exists")
	ErrGameNotFound           = errors.New("game not found")
	ErrParticipantNotFound    = errors.New("participant not found")
	ErrSubmissionNotFound     = errors.New("submission not found")
	ErrNoEligibleCandidates   = errors.New("no eligible candidates to draw from")
	ErrInvalidInput           = errors.New("invalid input")
	ErrSubmissionChanged      = errors.New("winning submission changed during the draw")

	// ErrValidationServiceUnavailable never leaves the validator: it is
	// always recovered with the local verdict.
	ErrValidationServiceUnavailable = errors.New("validation service unavailable")
)

// IncompleteValidationError refuses a draw while some guesses could only
// be judged locally. The game stays closed and the draw can be retried.
type IncompleteValidationError struct {
	Degraded int
}

func (e *IncompleteValidationError) Error() string {
	return fmt.Sprintf("%d distinct guesses could not be checked by the semantic matcher", e.Degraded)
}

// QuotaExceededError rejects a submission and reports the quota at rejection time.
type QuotaExceededError struct {
	Quota Quota
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d of %d guesses used", e.Quota.Used, e.Quota.Total)
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func invalidTransition(op string, status interface{}) error {
	return fmt.Errorf("%w: cannot %s while game is %v", ErrInvalidStateTransition, op, status)
}
