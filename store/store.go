// Package store is the persistence boundary of the game engine.
package store

import (
	"context"
	"errors"
	"time"

	"mystery-box/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// LockMode selects the row lock taken by LockGame.
type LockMode int

const (
	// LockShare lets concurrent readers proceed but blocks LockUpdate holders.
	LockShare LockMode = iota
	// LockUpdate is the single-writer lock for state transitions.
	LockUpdate
)

// Store is implemented by GormStore and MemoryStore. Every read returns a
// copy owned by the caller. Check-then-act sequences must run inside
// Transaction and take the relevant row lock first.
type Store interface {
	// Transaction runs fn atomically. Returning an error rolls back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	CreateGame(ctx context.Context, game *models.Game) error
	GetGame(ctx context.Context, id string) (*models.Game, error)
	LockGame(ctx context.Context, id string, mode LockMode) (*models.Game, error)
	ActiveGame(ctx context.Context, broadcasterID string) (*models.Game, error)
	SaveGame(ctx context.Context, game *models.Game) error
	// DeleteGame removes the game and all of its submissions.
	DeleteGame(ctx context.Context, id string) error

	CreateParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	LockParticipant(ctx context.Context, id string) (*models.Participant, error)
	FindParticipantByPhone(ctx context.Context, phone string) (*models.Participant, error)
	FindParticipantByReferralCode(ctx context.Context, code string) (*models.Participant, error)
	// SetReferredBy sets referred_by once; a second call returns ErrDuplicate.
	SetReferredBy(ctx context.Context, participantID, referrerID string) error
	// IncrementExtraGuesses is a single atomic update, never read-modify-write.
	IncrementExtraGuesses(ctx context.Context, participantID string, delta int) error

	CreateReferralGrant(ctx context.Context, grant *models.ReferralGrant) error
	ListReferralGrants(ctx context.Context, referrerID string) ([]models.ReferralGrant, error)

	CreateSubmission(ctx context.Context, sub *models.Submission) error
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	UpdateSubmissionGuess(ctx context.Context, id, guess string) error
	DeleteSubmission(ctx context.Context, id string) error
	CountSubmissions(ctx context.Context, gameID, participantID string) (int64, error)
	ListSubmissions(ctx context.Context, gameID string) ([]models.Submission, error)

	GetValidation(ctx context.Context, key string) (*models.ValidationResult, error)
	PutValidation(ctx context.Context, result *models.ValidationResult) error
	PruneValidations(ctx context.Context, before time.Time) (int64, error)
}
