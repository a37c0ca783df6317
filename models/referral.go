package models

import "time"

// ReferralGrant records one credited referral. ReferredID is unique:
// a participant can be credited to at most one referrer.
type ReferralGrant struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	ReferrerID       string    `gorm:"index;not null" json:"referrer_id"`
	ReferredID       string    `gorm:"uniqueIndex;not null" json:"referred_id"`
	ReferralCodeUsed string    `gorm:"not null" json:"referral_code_used"`
	GrantedAt        time.Time `gorm:"not null" json:"granted_at"`
}
