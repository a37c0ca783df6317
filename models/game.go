// models/game.go
package models

import (
	"time"
)

type GameStatus string

const (
	GameStatusPending   GameStatus = "pending"
	GameStatusAccepting GameStatus = "accepting"
	GameStatusClosed    GameStatus = "closed"
	GameStatusFinished  GameStatus = "finished"
)

// ClueCount is the fixed number of clues every mystery product carries.
const ClueCount = 5

const (
	DrawModeCorrect = "correct" // drawn among participants with a correct guess
	DrawModeAll     = "all"     // operator-confirmed fallback over every participant
)

// Sponsor is embedded in the game row with a sponsor_ column prefix.
type Sponsor struct {
	Name         string `json:"name"`
	LogoURL      string `json:"logo_url"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	Website      string `json:"website,omitempty"`
}

// Product holds the secret answer and its clues, in reveal order.
type Product struct {
	Name  string   `json:"name"`
	Clues []string `json:"clues" gorm:"serializer:json"`
}

// Game is the single active mystery box of a broadcaster.
type Game struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	BroadcasterID string     `json:"broadcaster_id" gorm:"uniqueIndex;not null"`
	Status        GameStatus `json:"status" gorm:"not null;default:'pending'"`

	Sponsor Sponsor `json:"sponsor" gorm:"embedded;embeddedPrefix:sponsor_"`
	Product Product `json:"product" gorm:"embedded;embeddedPrefix:product_"`

	RevealedCluesCount int `json:"revealed_clues_count" gorm:"not null;default:0"`

	// 🏆 Winner is fixed at DrawnAt; RevealAt only gates public display.
	WinnerSubmissionID  *string    `json:"winner_submission_id,omitempty"`
	WinnerParticipantID *string    `json:"winner_participant_id,omitempty"`
	DrawMode            string     `json:"draw_mode,omitempty"`
	DrawnAt             *time.Time `json:"drawn_at,omitempty"`
	RevealAt            *time.Time `json:"reveal_at,omitempty"`

	OpenedAt *time.Time `json:"opened_at,omitempty"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// HasWinner reports whether a draw has already been persisted.
func (g *Game) HasWinner() bool {
	return g.WinnerSubmissionID != nil
}

// WinnerRevealed reports whether viewers may see the result at the given instant.
func (g *Game) WinnerRevealed(now time.Time) bool {
	return g.HasWinner() && g.RevealAt != nil && !now.Before(*g.RevealAt)
}

// Clone returns a deep copy so callers never share the clue slice.
func (g *Game) Clone() *Game {
	out := *g
	out.Product.Clues = append([]string(nil), g.Product.Clues...)
	out.WinnerSubmissionID = cloneString(g.WinnerSubmissionID)
	out.WinnerParticipantID = cloneString(g.WinnerParticipantID)
	out.DrawnAt = cloneTime(g.DrawnAt)
	out.RevealAt = cloneTime(g.RevealAt)
	out.OpenedAt = cloneTime(g.OpenedAt)
	out.ClosedAt = cloneTime(g.ClosedAt)
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
