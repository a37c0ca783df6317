package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"mystery-box/models"
	"mystery-box/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxGuessLength bounds the raw guess text, in runes.
const MaxGuessLength = 200

type Quota struct {
	Total     int `json:"total"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

func quotaOf(p *models.Participant, used int64) Quota {
	total := 1 + p.ExtraGuesses
	q := Quota{Total: total, Used: int(used), Remaining: total - int(used)}
	if q.Remaining < 0 {
		q.Remaining = 0
	}
	return q
}

// QuotaManager enforces guesses-per-participant at write time. Used is
// always counted from submission rows.
type QuotaManager struct {
	Store         store.Store
	BroadcasterID string

	now func() time.Time
}

func NewQuotaManager(st store.Store, broadcasterID string) *QuotaManager {
	return &QuotaManager{Store: st, BroadcasterID: broadcasterID, now: time.Now}
}

func (q *QuotaManager) logger() *logrus.Entry {
	return logrus.WithField("module", "quota")
}

// QuotaFor reports the participant's quota in the current game. Without
// an active game nothing is used.
func (q *QuotaManager) QuotaFor(ctx context.Context, participantID string) (Quota, error) {
	p, err := q.Store.GetParticipant(ctx, participantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Quota{}, ErrParticipantNotFound
		}
		return Quota{}, err
	}

	game, err := q.Store.ActiveGame(ctx, q.BroadcasterID)
	if errors.Is(err, store.ErrNotFound) {
		return quotaOf(p, 0), nil
	}
	if err != nil {
		return Quota{}, err
	}

	used, err := q.Store.CountSubmissions(ctx, game.ID, p.ID)
	if err != nil {
		return Quota{}, err
	}
	return quotaOf(p, used), nil
}

// TrySubmit checks the game status and the remaining quota and persists
// the submission in one transaction. The participant row lock serializes
// a participant's concurrent submissions; the shared game lock keeps a
// close from interleaving.
func (q *QuotaManager) TrySubmit(ctx context.Context, participantID, gameID, guessText string) (*models.Submission, Quota, error) {
	guess := strings.TrimSpace(guessText)
	if guess == "" {
		return nil, Quota{}, invalidInput("guess is required")
	}
	if utf8.RuneCountInString(guess) > MaxGuessLength {
		return nil, Quota{}, invalidInput("guess longer than %d characters", MaxGuessLength)
	}

	var (
		sub   *models.Submission
		quota Quota
	)
	err := q.Store.Transaction(ctx, func(tx store.Store) error {
		p, err := tx.LockParticipant(ctx, participantID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrParticipantNotFound
		}
		if err != nil {
			return err
		}

		game, err := tx.LockGame(ctx, gameID, store.LockShare)
		if errors.Is(err, store.ErrNotFound) {
			return ErrGameNotFound
		}
		if err != nil {
			return err
		}
		if game.Status != models.GameStatusAccepting {
			return ErrGameNotAccepting
		}

		used, err := tx.CountSubmissions(ctx, game.ID, p.ID)
		if err != nil {
			return err
		}
		quota = quotaOf(p, used)
		if quota.Remaining <= 0 {
			return &QuotaExceededError{Quota: quota}
		}

		sub = &models.Submission{
			ID:            uuid.NewString(),
			GameID:        game.ID,
			ParticipantID: p.ID,
			Guess:         guess,
			CreatedAt:     q.now(),
		}
		if err := tx.CreateSubmission(ctx, sub); err != nil {
			return err
		}
		quota = quotaOf(p, used+1)
		return nil
	})
	if err != nil {
		return nil, quota, err
	}

	q.logger().WithFields(logrus.Fields{
		"game_id":        gameID,
		"participant_id": participantID,
		"remaining":      quota.Remaining,
	}).Info("guess accepted")
	return sub, quota, nil
}

// EditSubmission corrects a guess text. Allowed until the game is finished.
func (q *QuotaManager) EditSubmission(ctx context.Context, submissionID, guessText string) (*models.Submission, error) {
	guess := strings.TrimSpace(guessText)
	if guess == "" || utf8.RuneCountInString(guess) > MaxGuessLength {
		return nil, invalidInput("guess must have 1 to %d characters", MaxGuessLength)
	}

	var out *models.Submission
	err := q.Store.Transaction(ctx, func(tx store.Store) error {
		sub, err := q.lockSubmissionGame(ctx, tx, submissionID, "edit a submission")
		if err != nil {
			return err
		}
		if err := tx.UpdateSubmissionGuess(ctx, sub.ID, guess); err != nil {
			return err
		}
		out, err = tx.GetSubmission(ctx, sub.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	q.logger().WithField("submission_id", submissionID).Info("submission edited")
	return out, nil
}

// DeleteSubmission removes a guess, which frees the participant's quota.
func (q *QuotaManager) DeleteSubmission(ctx context.Context, submissionID string) error {
	err := q.Store.Transaction(ctx, func(tx store.Store) error {
		sub, err := q.lockSubmissionGame(ctx, tx, submissionID, "delete a submission")
		if err != nil {
			return err
		}
		return tx.DeleteSubmission(ctx, sub.ID)
	})
	if err != nil {
		return err
	}
	q.logger().WithField("submission_id", submissionID).Info("submission deleted")
	return nil
}

func (q *QuotaManager) lockSubmissionGame(ctx context.Context, tx store.Store, submissionID, op string) (*models.Submission, error) {
	sub, err := tx.GetSubmission(ctx, submissionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	game, err := tx.LockGame(ctx, sub.GameID, store.LockUpdate)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	if game.Status == models.GameStatusFinished {
		return nil, invalidTransition(op, game.Status)
	}
	return sub, nil
}
