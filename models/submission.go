package models

import "time"

// Submission is one guess attempt. Correctness is not stored here:
// it is derived by the guess validator and cached in ValidationResult.
type Submission struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	GameID        string    `gorm:"index:idx_submission_game_participant;not null" json:"game_id"`
	ParticipantID string    `gorm:"index:idx_submission_game_participant;not null" json:"participant_id"`
	Guess         string    `gorm:"not null" json:"guess"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ValidationResult caches the last authoritative verdict for a
// (normalized guess, normalized answer) pair.
type ValidationResult struct {
	Key              string    `gorm:"column:cache_key;primaryKey" json:"key"`
	NormalizedGuess  string    `gorm:"not null" json:"normalized_guess"`
	NormalizedAnswer string    `gorm:"not null" json:"normalized_answer"`
	IsCorrect        bool      `gorm:"not null" json:"is_correct"`
	Source           string    `gorm:"not null" json:"source"`
	ValidatedAt      time.Time `gorm:"index;not null" json:"validated_at"`
}
