package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"mystery-box/models"
	"mystery-box/store"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
)

// Grant outcomes. Only GrantReasonGranted moves extra_guesses.
const (
	GrantReasonGranted           = "granted"
	GrantReasonNoCode            = "no_code"
	GrantReasonUnknownCode       = "unknown_code"
	GrantReasonSelfReferral      = "self_referral"
	GrantReasonAlreadyReferred   = "already_referred"
	GrantReasonAlreadyRegistered = "already_registered"
	GrantReasonDuplicate         = "duplicate_referral"
)

const (
	referralSuffixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	referralSuffixLen      = 4
	referralPrefixMaxLen   = 6
	referralCodeAttempts   = 8
)

type RegisterInput struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	ReferralCode string `json:"referralCode"`
}

type GrantResult struct {
	Granted bool                  `json:"granted"`
	Reason  string                `json:"reason"`
	Grant   *models.ReferralGrant `json:"grant,omitempty"`
}

type Registration struct {
	Participant *models.Participant
	Created     bool
	Referral    GrantResult
}

// ReferralLedger registers participants and credits bonus guesses to the
// referrer, exactly once per referred participant.
type ReferralLedger struct {
	Store store.Store

	now func() time.Time
}

func NewReferralLedger(st store.Store) *ReferralLedger {
	return &ReferralLedger{Store: st, now: time.Now}
}

func (l *ReferralLedger) logger() *logrus.Entry {
	return logrus.WithField("module", "referral")
}

// NormalizePhone keeps digits only and drops an international "00" prefix.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	phone := strings.TrimPrefix(b.String(), "00")
	if len(phone) < 8 || len(phone) > 15 {
		return "", invalidInput("phone must have 8 to 15 digits")
	}
	return phone, nil
}

// NormalizeReferralCode canonicalizes user-typed codes for lookup.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateReferralCode derives a readable code such as "MARIA-7K2Q".
// Uniqueness is checked by the caller against the store.
func (l *ReferralLedger) GenerateReferralCode(p *models.Participant) string {
	prefix := ""
	if first := strings.SplitN(slug.Make(p.Name), "-", 2)[0]; first != "" {
		prefix = strings.ToUpper(first)
	}
	if len(prefix) > referralPrefixMaxLen {
		prefix = prefix[:referralPrefixMaxLen]
	}
	if prefix == "" {
		prefix = "FAN"
	}
	return prefix + "-" + randomSuffix()
}

func randomSuffix() string {
	max := big.NewInt(int64(len(referralSuffixAlphabet)))
	out := make([]byte, referralSuffixLen)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		out[i] = referralSuffixAlphabet[n.Int64()]
	}
	return string(out)
}

func (l *ReferralLedger) uniqueCode(ctx context.Context, tx store.Store, p *models.Participant) (string, error) {
	for i := 0; i < referralCodeAttempts; i++ {
		code := l.GenerateReferralCode(p)
		_, err := tx.FindParticipantByReferralCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("could not generate a unique referral code after %d attempts", referralCodeAttempts)
}

// Register creates a participant keyed by phone, or returns the existing
// one untouched. A referral code is honoured only on first registration.
func (l *ReferralLedger) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidInput("name is required")
	}

	var reg *Registration
	err = l.Store.Transaction(ctx, func(tx store.Store) error {
		existing, err := tx.FindParticipantByPhone(ctx, phone)
		if err == nil {
			reg = &Registration{Participant: existing, Referral: GrantResult{Reason: GrantReasonAlreadyRegistered}}
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		p := &models.Participant{
			ID:           uuid.NewString(),
			Name:         name,
			Phone:        phone,
			Neighborhood: strings.TrimSpace(in.Neighborhood),
			City:         strings.TrimSpace(in.City),
			CreatedAt:    l.now(),
		}
		if p.ReferralCode, err = l.uniqueCode(ctx, tx, p); err != nil {
			return err
		}
		if err := tx.CreateParticipant(ctx, p); err != nil {
			return err
		}

		grant, err := l.RegisterWithReferral(ctx, tx, p, in.ReferralCode)
		if err != nil {
			return err
		}
		reg = &Registration{Participant: p, Created: true, Referral: grant}
		return nil
	})

	// a concurrent registration with the same phone won the unique index
	if errors.Is(err, store.ErrDuplicate) {
		existing, findErr := l.Store.FindParticipantByPhone(ctx, phone)
		if findErr == nil {
			return &Registration{Participant: existing, Referral: GrantResult{Reason: GrantReasonAlreadyRegistered}}, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("register participant: %w", err)
	}

	if reg.Created {
		l.logger().WithFields(logrus.Fields{
			"participant_id": reg.Participant.ID,
			"referral":       reg.Referral.Reason,
		}).Info("participant registered")
	}
	return reg, nil
}

// RegisterWithReferral credits the owner of code for newParticipant. It
// runs inside the caller's transaction. Unknown codes, self-referral and
// repeat credits yield no grant and no error.
func (l *ReferralLedger) RegisterWithReferral(ctx context.Context, tx store.Store, newParticipant *models.Participant, code string) (GrantResult, error) {
	code = NormalizeReferralCode(code)
	if code == "" {
		return GrantResult{Reason: GrantReasonNoCode}, nil
	}

	referrer, err := tx.FindParticipantByReferralCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return GrantResult{Reason: GrantReasonUnknownCode}, nil
	}
	if err != nil {
		return GrantResult{}, err
	}
	if referrer.ID == newParticipant.ID || referrer.Phone == newParticipant.Phone {
		return GrantResult{Reason: GrantReasonSelfReferral}, nil
	}
	if newParticipant.ReferredBy != nil {
		return GrantResult{Reason: GrantReasonAlreadyReferred}, nil
	}

	grant := &models.ReferralGrant{
		ID:               uuid.NewString(),
		ReferrerID:       referrer.ID,
		ReferredID:       newParticipant.ID,
		ReferralCodeUsed: code,
		GrantedAt:        l.now(),
	}
	// nested transaction: a savepoint on Postgres, so a duplicate grant
	// does not poison the registration
	err = tx.Transaction(ctx, func(inner store.Store) error {
		if err := inner.CreateReferralGrant(ctx, grant); err != nil {
			return err
		}
		if err := inner.SetReferredBy(ctx, newParticipant.ID, referrer.ID); err != nil {
			return err
		}
		return inner.IncrementExtraGuesses(ctx, referrer.ID, 1)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return GrantResult{Reason: GrantReasonDuplicate}, nil
	}
	if err != nil {
		return GrantResult{}, err
	}

	referrerID := referrer.ID
	newParticipant.ReferredBy = &referrerID
	l.logger().WithFields(logrus.Fields{
		"referrer_id": referrer.ID,
		"referred_id": newParticipant.ID,
	}).Info("referral granted")
	return GrantResult{Granted: true, Reason: GrantReasonGranted, Grant: grant}, nil
}

// Grants lists the referral grants credited to a referrer.
func (l *ReferralLedger) Grants(ctx context.Context, referrerID string) ([]models.ReferralGrant, error) {
	if _, err := l.Store.GetParticipant(ctx, referrerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return l.Store.ListReferralGrants(ctx, referrerID)
}
