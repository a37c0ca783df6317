package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mystery-box/models"
	"mystery-box/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GameService owns the lifecycle of the broadcaster's single active game:
// pending → accepting → closed → finished, plus reset from any state.
type GameService struct {
	Store         store.Store
	BroadcasterID string
	RevealDelay   time.Duration
	PollInterval  time.Duration

	locks keyedMutex
	now   func() time.Time
}

func NewGameService(st store.Store, broadcasterID string, revealDelay, pollInterval time.Duration) *GameService {
	return &GameService{
		Store:         st,
		BroadcasterID: broadcasterID,
		RevealDelay:   revealDelay,
		PollInterval:  pollInterval,
		now:           time.Now,
	}
}

func (s *GameService) logger() *logrus.Entry {
	return logrus.WithField("module", "game")
}

// keyedMutex serializes mutations per game id within the process. The
// row lock taken in each transaction covers other processes.
type keyedMutex struct {
	m sync.Map
}

func (k *keyedMutex) lock(id string) func() {
	v, _ := k.m.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

type CreateGameInput struct {
	Sponsor     models.Sponsor `json:"sponsor"`
	ProductName string         `json:"productName"`
	Clues       []string       `json:"clues"`
}

func (in CreateGameInput) validate() (CreateGameInput, error) {
	in.ProductName = strings.TrimSpace(in.ProductName)
	in.Sponsor.Name = strings.TrimSpace(in.Sponsor.Name)
	if in.ProductName == "" {
		return in, invalidInput("product name is required")
	}
	if in.Sponsor.Name == "" {
		return in, invalidInput("sponsor name is required")
	}
	if len(in.Clues) != models.ClueCount {
		return in, invalidInput("exactly %d clues are required, got %d", models.ClueCount, len(in.Clues))
	}
	clues := make([]string, len(in.Clues))
	for i, c := range in.Clues {
		if clues[i] = strings.TrimSpace(c); clues[i] == "" {
			return in, invalidInput("clue %d is empty", i+1)
		}
	}
	in.Clues = clues
	return in, nil
}

// CreateGame starts a pending game. A previous game must be reset first.
func (s *GameService) CreateGame(ctx context.Context, in CreateGameInput) (*models.Game, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}

	game := &models.Game{
		ID:            uuid.NewString(),
		BroadcasterID: s.BroadcasterID,
		Status:        models.GameStatusPending,
		Sponsor:       in.Sponsor,
		Product:       models.Product{Name: in.ProductName, Clues: in.Clues},
		CreatedAt:     s.now(),
	}
	if err := s.Store.CreateGame(ctx, game); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrGameAlreadyExists
		}
		return nil, err
	}

	s.logger().WithField("game_id", game.ID).Info("game created")
	return game, nil
}

// ActiveGame returns the current game record, secrets included.
func (s *GameService) ActiveGame(ctx context.Context) (*models.Game, error) {
	game, err := s.Store.ActiveGame(ctx, s.BroadcasterID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoActiveGame
	}
	return game, err
}

// mutate applies fn to the current game under the per-game mutex and a
// FOR UPDATE row lock, persisting the result only when fn succeeds.
func (s *GameService) mutate(ctx context.Context, op string, fn func(g *models.Game) error) (*models.Game, error) {
	current, err := s.ActiveGame(ctx)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(current.ID)
	defer unlock()

	var out *models.Game
	err = s.Store.Transaction(ctx, func(tx store.Store) error {
		game, err := tx.LockGame(ctx, current.ID, store.LockUpdate)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoActiveGame
		}
		if err != nil {
			return err
		}
		if err := fn(game); err != nil {
			return err
		}
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}
		out = game
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger().WithFields(logrus.Fields{
		"game_id":        out.ID,
		"status":         out.Status,
		"revealed_clues": out.RevealedCluesCount,
	}).Infof("game %s", op)
	return out, nil
}

// OpenSubmissions moves a pending game to accepting.
func (s *GameService) OpenSubmissions(ctx context.Context) (*models.Game, error) {
	return s.mutate(ctx, "opened", func(g *models.Game) error {
		if g.Status != models.GameStatusPending {
			return invalidTransition("open submissions", g.Status)
		}
		now := s.now()
		g.Status = models.GameStatusAccepting
		g.OpenedAt = &now
		return nil
	})
}

// RevealClue reveals the next clue; only while accepting and below five.
func (s *GameService) RevealClue(ctx context.Context) (*models.Game, error) {
	return s.mutate(ctx, "clue revealed", func(g *models.Game) error {
		if g.Status != models.GameStatusAccepting {
			return invalidTransition("reveal a clue", g.Status)
		}
		if g.RevealedCluesCount >= models.ClueCount {
			return fmt.Errorf("%w: all %d clues already revealed", ErrInvalidStateTransition, models.ClueCount)
		}
		g.RevealedCluesCount++
		return nil
	})
}

// CloseSubmissions stops accepting guesses.
func (s *GameService) CloseSubmissions(ctx context.Context) (*models.Game, error) {
	return s.mutate(ctx, "closed", func(g *models.Game) error {
		if g.Status != models.GameStatusAccepting {
			return invalidTransition("close submissions", g.Status)
		}
		now := s.now()
		g.Status = models.GameStatusClosed
		g.ClosedAt = &now
		return nil
	})
}

// SetSponsorLogo records an uploaded sponsor logo URL.
func (s *GameService) SetSponsorLogo(ctx context.Context, logoURL string) (*models.Game, error) {
	return s.mutate(ctx, "sponsor logo updated", func(g *models.Game) error {
		g.Sponsor.LogoURL = logoURL
		return nil
	})
}

// Reset deletes the current game and its submissions. Participants and
// referral grants are untouched.
func (s *GameService) Reset(ctx context.Context) error {
	current, err := s.ActiveGame(ctx)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(current.ID)
	defer unlock()

	err = s.Store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.LockGame(ctx, current.ID, store.LockUpdate); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNoActiveGame
			}
			return err
		}
		return tx.DeleteGame(ctx, current.ID)
	})
	if err != nil {
		return err
	}

	s.logger().WithField("game_id", current.ID).Info("game reset")
	return nil
}

// Submissions lists the current game's submissions in arrival order.
func (s *GameService) Submissions(ctx context.Context) ([]models.Submission, error) {
	game, err := s.ActiveGame(ctx)
	if err != nil {
		return nil, err
	}
	return s.Store.ListSubmissions(ctx, game.ID)
}
