package models

import (
	"time"
)

// Participant is a registered viewer. Phone holds the normalized
// phone number and is the de-duplication key across games.
type Participant struct {
	ID           string  `gorm:"primaryKey" json:"id"`
	Name         string  `gorm:"not null" json:"name"`
	Phone        string  `gorm:"uniqueIndex;not null" json:"phone"`
	Neighborhood string  `json:"neighborhood"`
	City         string  `json:"city"`
	ReferralCode string  `gorm:"uniqueIndex;not null" json:"referral_code"`
	ReferredBy   *string `gorm:"index" json:"referred_by,omitempty"`

	// ExtraGuesses is only ever moved by the referral ledger.
	ExtraGuesses int `gorm:"not null;default:0" json:"extra_guesses"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (p *Participant) Clone() *Participant {
	out := *p
	out.ReferredBy = cloneString(p.ReferredBy)
	return &out
}
