package services

import (
	"context"
	"errors"
	"math"

	"mystery-box/models"
	"mystery-box/store"
)

type WinnerView struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Neighborhood  string `json:"neighborhood,omitempty"`
	City          string `json:"city,omitempty"`
	SubmissionID  string `json:"submission_id"`
	Guess         string `json:"guess"`
	DrawMode      string `json:"draw_mode"`
}

// PublicGame is what viewers poll. It never carries the product name,
// unrevealed clues or the winner before the reveal time.
type PublicGame struct {
	ID                  string            `json:"id"`
	Status              models.GameStatus `json:"status"`
	Sponsor             models.Sponsor    `json:"sponsor"`
	RevealedCluesCount  int               `json:"revealed_clues_count"`
	TotalClues          int               `json:"total_clues"`
	Clues               []string          `json:"clues"`
	AcceptingGuesses    bool              `json:"accepting_guesses"`
	ProductName         string            `json:"product_name,omitempty"`
	Winner              *WinnerView       `json:"winner,omitempty"`
	WinnerDrawn         bool              `json:"winner_drawn"`
	RevealInSeconds     int               `json:"reveal_in_seconds,omitempty"`
	PollIntervalSeconds int               `json:"poll_interval_seconds"`
}

// OperatorGame is the full record plus the resolved winner.
type OperatorGame struct {
	*models.Game
	Winner          *WinnerView `json:"winner,omitempty"`
	RevealInSeconds int         `json:"reveal_in_seconds,omitempty"`
}

func (s *GameService) winnerView(ctx context.Context, g *models.Game) (*WinnerView, error) {
	if !g.HasWinner() {
		return nil, nil
	}
	view := &WinnerView{SubmissionID: *g.WinnerSubmissionID, DrawMode: g.DrawMode}
	if g.WinnerParticipantID != nil {
		view.ParticipantID = *g.WinnerParticipantID
		p, err := s.Store.GetParticipant(ctx, view.ParticipantID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if p != nil {
			view.Name = p.Name
			view.Neighborhood = p.Neighborhood
			view.City = p.City
		}
	}
	sub, err := s.Store.GetSubmission(ctx, view.SubmissionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if sub != nil {
		view.Guess = sub.Guess
	}
	return view, nil
}

func (s *GameService) revealIn(g *models.Game) int {
	if !g.HasWinner() || g.RevealAt == nil {
		return 0
	}
	left := g.RevealAt.Sub(s.now()).Seconds()
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left))
}

// PublicSnapshot renders the current game for viewers from one read.
func (s *GameService) PublicSnapshot(ctx context.Context) (*PublicGame, error) {
	g, err := s.ActiveGame(ctx)
	if err != nil {
		return nil, err
	}

	revealed := g.RevealedCluesCount
	if revealed > len(g.Product.Clues) {
		revealed = len(g.Product.Clues)
	}
	out := &PublicGame{
		ID:                  g.ID,
		Status:              g.Status,
		Sponsor:             publicSponsor(g.Sponsor),
		RevealedCluesCount:  g.RevealedCluesCount,
		TotalClues:          models.ClueCount,
		Clues:               append([]string{}, g.Product.Clues[:revealed]...),
		AcceptingGuesses:    g.Status == models.GameStatusAccepting,
		WinnerDrawn:         g.HasWinner(),
		RevealInSeconds:     s.revealIn(g),
		PollIntervalSeconds: int(s.PollInterval.Seconds()),
	}

	if g.Status == models.GameStatusFinished && g.WinnerRevealed(s.now()) {
		out.ProductName = g.Product.Name
		if out.Winner, err = s.winnerView(ctx, g); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// OperatorSnapshot renders the current game with every secret visible.
func (s *GameService) OperatorSnapshot(ctx context.Context) (*OperatorGame, error) {
	g, err := s.ActiveGame(ctx)
	if err != nil {
		return nil, err
	}
	return s.OperatorView(ctx, g)
}

func (s *GameService) OperatorView(ctx context.Context, g *models.Game) (*OperatorGame, error) {
	winner, err := s.winnerView(ctx, g)
	if err != nil {
		return nil, err
	}
	return &OperatorGame{Game: g, Winner: winner, RevealInSeconds: s.revealIn(g)}, nil
}

// publicSponsor drops contact details that are for the operator only.
func publicSponsor(sp models.Sponsor) models.Sponsor {
	return models.Sponsor{Name: sp.Name, LogoURL: sp.LogoURL, Website: sp.Website}
}
