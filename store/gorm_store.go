package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mystery-box/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists the engine in Postgres. Row locks are taken with
// SELECT ... FOR UPDATE / FOR SHARE inside Transaction.
type GormStore struct {
	DB *gorm.DB
}

var _ Store = (*GormStore)(nil)

// OpenPostgres connects and migrates the engine tables.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := NewGormStore(db)
	if err := s.AutoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) AutoMigrate() error {
	if err := s.DB.AutoMigrate(
		&models.Game{},
		&models.Participant{},
		&models.ReferralGrant{},
		&models.Submission{},
		&models.ValidationResult{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{DB: tx})
	})
}

// --- games ---

func (s *GormStore) CreateGame(ctx context.Context, game *models.Game) error {
	return translate(s.DB.WithContext(ctx).Create(game).Error)
}

func (s *GormStore) GetGame(ctx context.Context, id string) (*models.Game, error) {
	var game models.Game
	if err := s.DB.WithContext(ctx).First(&game, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &game, nil
}

func (s *GormStore) LockGame(ctx context.Context, id string, mode LockMode) (*models.Game, error) {
	strength := "SHARE"
	if mode == LockUpdate {
		strength = "UPDATE"
	}
	var game models.Game
	err := s.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: strength}).
		First(&game, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &game, nil
}

func (s *GormStore) ActiveGame(ctx context.Context, broadcasterID string) (*models.Game, error) {
	var game models.Game
	if err := s.DB.WithContext(ctx).First(&game, "broadcaster_id = ?", broadcasterID).Error; err != nil {
		return nil, translate(err)
	}
	return &game, nil
}

func (s *GormStore) SaveGame(ctx context.Context, game *models.Game) error {
	res := s.DB.WithContext(ctx).Save(game)
	if res.Error != nil {
		return translate(res.Error)
	}
	return nil
}

func (s *GormStore) DeleteGame(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("game_id = ?", id).Delete(&models.Submission{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Game{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// --- participants ---

func (s *GormStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	return translate(s.DB.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	if err := s.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) LockParticipant(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	err := s.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) FindParticipantByPhone(ctx context.Context, phone string) (*models.Participant, error) {
	var p models.Participant
	if err := s.DB.WithContext(ctx).First(&p, "phone = ?", phone).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) FindParticipantByReferralCode(ctx context.Context, code string) (*models.Participant, error) {
	var p models.Participant
	if err := s.DB.WithContext(ctx).First(&p, "referral_code = ?", code).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// SetReferredBy only fills an empty referred_by.
func (s *GormStore) SetReferredBy(ctx context.Context, participantID, referrerID string) error {
	res := s.DB.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ? AND referred_by IS NULL", participantID).
		Update("referred_by", referrerID)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *GormStore) IncrementExtraGuesses(ctx context.Context, participantID string, delta int) error {
	res := s.DB.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ?", participantID).
		UpdateColumns(map[string]interface{}{
			"extra_guesses": gorm.Expr("extra_guesses + ?", delta),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- referral grants ---

func (s *GormStore) CreateReferralGrant(ctx context.Context, grant *models.ReferralGrant) error {
	return translate(s.DB.WithContext(ctx).Create(grant).Error)
}

func (s *GormStore) ListReferralGrants(ctx context.Context, referrerID string) ([]models.ReferralGrant, error) {
	var grants []models.ReferralGrant
	err := s.DB.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("granted_at ASC, id ASC").
		Find(&grants).Error
	return grants, translate(err)
}

// --- submissions ---

func (s *GormStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	return translate(s.DB.WithContext(ctx).Create(sub).Error)
}

func (s *GormStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	var sub models.Submission
	if err := s.DB.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *GormStore) UpdateSubmissionGuess(ctx context.Context, id, guess string) error {
	res := s.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Update("guess", guess)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteSubmission(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Submission{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CountSubmissions(ctx context.Context, gameID, participantID string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("game_id = ? AND participant_id = ?", gameID, participantID).
		Count(&n).Error
	return n, translate(err)
}

func (s *GormStore) ListSubmissions(ctx context.Context, gameID string) ([]models.Submission, error) {
	var subs []models.Submission
	err := s.DB.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("created_at ASC, id ASC").
		Find(&subs).Error
	return subs, translate(err)
}

// --- validation cache ---

func (s *GormStore) GetValidation(ctx context.Context, key string) (*models.ValidationResult, error) {
	var r models.ValidationResult
	if err := s.DB.WithContext(ctx).First(&r, "cache_key = ?", key).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *GormStore) PutValidation(ctx context.Context, result *models.ValidationResult) error {
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_correct", "source", "validated_at"}),
		}).
		Create(result).Error
	return translate(err)
}

func (s *GormStore) PruneValidations(ctx context.Context, before time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("validated_at < ?", before).Delete(&models.ValidationResult{})
	return res.RowsAffected, translate(res.Error)
}
