package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"mystery-box/models"
	"mystery-box/store"

	"github.com/sirupsen/logrus"
)

// Candidate is a participant eligible for the draw, represented by their
// earliest qualifying submission.
type Candidate struct {
	ParticipantID string `json:"participant_id"`
	SubmissionID  string `json:"submission_id"`
	Guess         string `json:"guess"`
}

type CandidatePool struct {
	Correct     []Candidate `json:"correct"`
	All         []Candidate `json:"all"`
	Submissions int         `json:"submissions"`
	Degraded    int         `json:"degraded"` // distinct guesses judged locally after an AI failure
}

type DrawOptions struct {
	// FallbackToAll draws among every participant who guessed, and is
	// honoured only when nobody guessed correctly.
	FallbackToAll bool

	// AcceptDegraded draws even when some guesses were judged locally
	// because the semantic matcher failed.
	AcceptDegraded bool
}

// WinnerSelector performs the one-shot draw on a closed game.
type WinnerSelector struct {
	Games      *GameService
	Validation *ValidationService

	// Pick returns a uniform index in [0, n).
	Pick func(n int) int
}

func NewWinnerSelector(games *GameService, validation *ValidationService) *WinnerSelector {
	return &WinnerSelector{Games: games, Validation: validation, Pick: rand.IntN}
}

func (w *WinnerSelector) logger() *logrus.Entry {
	return logrus.WithField("module", "winner")
}

// Candidates evaluates every submission of the game against the product
// name. Identical normalized guesses are validated once.
func (w *WinnerSelector) Candidates(ctx context.Context, game *models.Game) (*CandidatePool, error) {
	subs, err := w.Games.Store.ListSubmissions(ctx, game.ID)
	if err != nil {
		return nil, err
	}

	pool := &CandidatePool{Submissions: len(subs)}
	verdicts := make(map[string]Verdict)
	seenAll := make(map[string]bool)
	seenCorrect := make(map[string]bool)

	for _, sub := range subs {
		if !seenAll[sub.ParticipantID] {
			seenAll[sub.ParticipantID] = true
			pool.All = append(pool.All, Candidate{ParticipantID: sub.ParticipantID, SubmissionID: sub.ID, Guess: sub.Guess})
		}
		if seenCorrect[sub.ParticipantID] {
			continue
		}

		key := Normalize(sub.Guess)
		verdict, ok := verdicts[key]
		if !ok {
			verdict = w.Validation.Validate(ctx, sub.Guess, game.Product.Name)
			verdicts[key] = verdict
			if verdict.Degraded {
				pool.Degraded++
			}
		}
		if verdict.IsCorrect {
			seenCorrect[sub.ParticipantID] = true
			pool.Correct = append(pool.Correct, Candidate{ParticipantID: sub.ParticipantID, SubmissionID: sub.ID, Guess: sub.Guess})
		}
	}
	return pool, nil
}

// PreviewCandidates evaluates the pool of the current game without drawing.
func (w *WinnerSelector) PreviewCandidates(ctx context.Context) (*CandidatePool, error) {
	game, err := w.Games.ActiveGame(ctx)
	if err != nil {
		return nil, err
	}
	return w.Candidates(ctx, game)
}

func checkDrawable(g *models.Game) error {
	if g.HasWinner() {
		return ErrWinnerAlreadySelected
	}
	if g.Status != models.GameStatusClosed {
		return invalidTransition("draw a winner", g.Status)
	}
	return nil
}

// DrawWinner picks and persists the winner of the current closed game and
// finishes it. The winner is fixed at the moment of persistence; RevealAt
// only delays when viewers see it. A second draw fails with
// ErrWinnerAlreadySelected and leaves the winner untouched.
func (w *WinnerSelector) DrawWinner(ctx context.Context, opts DrawOptions) (*models.Game, *Candidate, error) {
	current, err := w.Games.ActiveGame(ctx)
	if err != nil {
		return nil, nil, err
	}
	unlock := w.Games.locks.lock(current.ID)
	defer unlock()

	// re-read under the mutex: another draw may have just finished
	game, err := w.Games.Store.GetGame(ctx, current.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNoActiveGame
	}
	if err != nil {
		return nil, nil, err
	}
	if err := checkDrawable(game); err != nil {
		return nil, nil, err
	}

	// validation may call the AI service, so it runs outside the transaction
	pool, err := w.Candidates(ctx, game)
	if err != nil {
		return nil, nil, err
	}
	// degraded verdicts are never cached, so a retry asks the matcher again
	if pool.Degraded > 0 && !opts.AcceptDegraded {
		w.logger().WithFields(logrus.Fields{"game_id": game.ID, "degraded": pool.Degraded}).Warn("draw refused, validation incomplete")
		return nil, nil, &IncompleteValidationError{Degraded: pool.Degraded}
	}

	var (
		candidates = pool.Correct
		mode       = models.DrawModeCorrect
	)
	if len(candidates) == 0 {
		if !opts.FallbackToAll || len(pool.All) == 0 {
			return nil, nil, ErrNoEligibleCandidates
		}
		candidates = pool.All
		mode = models.DrawModeAll
	}
	chosen := candidates[w.Pick(len(candidates))]

	var out *models.Game
	err = w.Games.Store.Transaction(ctx, func(tx store.Store) error {
		g, err := tx.LockGame(ctx, game.ID, store.LockUpdate)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoActiveGame
		}
		if err != nil {
			return err
		}
		if err := checkDrawable(g); err != nil {
			return err
		}
		// an operator may have deleted the submission meanwhile
		sub, err := tx.GetSubmission(ctx, chosen.SubmissionID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && sub.GameID != g.ID) {
			return ErrSubmissionNotFound
		}
		if err != nil {
			return err
		}
		if Normalize(sub.Guess) != Normalize(chosen.Guess) {
			return ErrSubmissionChanged
		}

		now := w.Games.now()
		revealAt := now.Add(w.Games.RevealDelay)
		g.WinnerSubmissionID = &chosen.SubmissionID
		g.WinnerParticipantID = &chosen.ParticipantID
		g.DrawMode = mode
		g.DrawnAt = &now
		g.RevealAt = &revealAt
		g.Status = models.GameStatusFinished
		if err := tx.SaveGame(ctx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	w.logger().WithFields(logrus.Fields{
		"game_id":        out.ID,
		"participant_id": chosen.ParticipantID,
		"mode":           mode,
		"degraded":       pool.Degraded,
		"pool_size":      len(candidates),
		"reveal_at":      out.RevealAt.Format(time.RFC3339),
	}).Info("winner drawn")
	return out, &chosen, nil
}
