package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"mystery-box/models"
	"mystery-box/store"

	"github.com/sirupsen/logrus"
)

// ValidationService wraps GuessValidator with the persisted verdict cache,
// keeping a guess's correctness stable across recomputation.
type ValidationService struct {
	Store     store.Store
	Validator *GuessValidator
	TTL       time.Duration

	now func() time.Time
}

func NewValidationService(st store.Store, v *GuessValidator, ttl time.Duration) *ValidationService {
	return &ValidationService{Store: st, Validator: v, TTL: ttl, now: time.Now}
}

func (s *ValidationService) logger() *logrus.Entry {
	return logrus.WithField("module", "validation")
}

// CacheKey identifies a (normalized guess, normalized answer) pair judged
// under the lexicon with the given fingerprint.
func CacheKey(lexicon, normalizedGuess, normalizedAnswer string) string {
	sum := sha256.Sum256([]byte(lexicon + "\x00" + normalizedGuess + "\x00" + normalizedAnswer))
	return hex.EncodeToString(sum[:])
}

func (s *ValidationService) cacheKey(normalizedGuess, normalizedAnswer string) string {
	return CacheKey(s.Validator.Lexicon.Fingerprint(), normalizedGuess, normalizedAnswer)
}

// Validate returns the cached verdict when a fresh one exists, otherwise
// validates and caches the result if it is authoritative. Cache errors
// only cost a recomputation.
func (s *ValidationService) Validate(ctx context.Context, guess, correctAnswer string) Verdict {
	ng, na := Normalize(guess), Normalize(correctAnswer)
	key := s.cacheKey(ng, na)

	cached, err := s.Store.GetValidation(ctx, key)
	switch {
	case err == nil && s.fresh(cached):
		return Verdict{
			IsCorrect:        cached.IsCorrect,
			Source:           cached.Source,
			Rule:             ruleFor(cached),
			Cached:           true,
			NormalizedGuess:  ng,
			NormalizedAnswer: na,
		}
	case err != nil && !errors.Is(err, store.ErrNotFound):
		s.logger().WithError(err).Warn("validation cache read failed")
	}

	verdict := s.Validator.Validate(ctx, guess, correctAnswer)
	if verdict.Authoritative() {
		entry := &models.ValidationResult{
			Key:              key,
			NormalizedGuess:  ng,
			NormalizedAnswer: na,
			IsCorrect:        verdict.IsCorrect,
			Source:           verdict.Source,
			ValidatedAt:      s.now(),
		}
		if err := s.Store.PutValidation(ctx, entry); err != nil {
			s.logger().WithError(err).Warn("validation cache write failed")
		}
	}
	return verdict
}

func (s *ValidationService) fresh(r *models.ValidationResult) bool {
	return s.TTL <= 0 || s.now().Sub(r.ValidatedAt) < s.TTL
}

// PruneExpired drops cache rows older than the TTL.
func (s *ValidationService) PruneExpired(ctx context.Context) (int64, error) {
	if s.TTL <= 0 {
		return 0, nil
	}
	return s.Store.PruneValidations(ctx, s.now().Add(-s.TTL))
}

func ruleFor(r *models.ValidationResult) string {
	switch {
	case !r.IsCorrect:
		return RuleNone
	case r.Source == SourceAI:
		return RuleSemantic
	case r.NormalizedGuess == r.NormalizedAnswer:
		return RuleExact
	default:
		return RuleSubset
	}
}
