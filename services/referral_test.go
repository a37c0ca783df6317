package services

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"mystery-box/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// region phone and code helpers

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+55 (11) 99999-0001":  "5511999990001",
		"0055 11 99999 0001":   "5511999990001",
		"11 99999-0001":        "11999990001",
		"  5511999990001\t":    "5511999990001",
	}
	for in, want := range cases {
		got, err := NormalizePhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizePhone("123")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NormalizePhone("1234567890123456")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalizeReferralCode(t *testing.T) {
	assert.Equal(t, "MARIA-7K2Q", NormalizeReferralCode("  maria-7k2q "))
}

func TestGenerateReferralCode(t *testing.T) {
	l := NewReferralLedger(nil)

	cases := map[string]string{
		"Maria Silva": `^MARIA-[A-Z2-9]{4}$`,
		"José":        `^JOSE-[A-Z2-9]{4}$`,
		"Bartholomew": `^BARTHO-[A-Z2-9]{4}$`,
		"!!!":         `^FAN-[A-Z2-9]{4}$`,
	}
	for name, pattern := range cases {
		code := l.GenerateReferralCode(&models.Participant{Name: name})
		assert.Regexp(t, regexp.MustCompile(pattern), code, name)
	}
}

// endregion

// region registration

func TestRegister_CreatesParticipant(t *testing.T) {
	e := newTestEngine(t)

	reg, err := e.ledger.Register(context.Background(), RegisterInput{
		Name:         " Maria Silva ",
		Phone:        "+55 11 99999-1234",
		Neighborhood: "Centro",
		City:         "Santos",
	})
	require.NoError(t, err)
	assert.True(t, reg.Created)
	assert.Equal(t, "Maria Silva", reg.Participant.Name)
	assert.Equal(t, "5511999991234", reg.Participant.Phone)
	assert.Equal(t, 0, reg.Participant.ExtraGuesses)
	assert.NotEmpty(t, reg.Participant.ReferralCode)
	assert.Equal(t, GrantReasonNoCode, reg.Referral.Reason)
}

func TestRegister_RequiresName(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ledger.Register(context.Background(), RegisterInput{Name: " ", Phone: nextPhone()})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegister_ReferralGrantsOneExtraGuess(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := e.register(t, "Ana", "")

	phoneB := nextPhone()
	reg, err := e.ledger.Register(ctx, RegisterInput{Name: "Bruno", Phone: phoneB, ReferralCode: " " + a.ReferralCode + " "})
	require.NoError(t, err)
	assert.True(t, reg.Referral.Granted)
	assert.Equal(t, GrantReasonGranted, reg.Referral.Reason)
	require.NotNil(t, reg.Participant.ReferredBy)
	assert.Equal(t, a.ID, *reg.Participant.ReferredBy)

	refreshed, err := e.store.GetParticipant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.ExtraGuesses)

	// the same phone again is a lookup, never a second credit
	again, err := e.ledger.Register(ctx, RegisterInput{Name: "Bruno", Phone: phoneB, ReferralCode: a.ReferralCode})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, reg.Participant.ID, again.Participant.ID)
	assert.Equal(t, GrantReasonAlreadyRegistered, again.Referral.Reason)

	refreshed, err = e.store.GetParticipant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.ExtraGuesses)

	grants, err := e.ledger.Grants(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, reg.Participant.ID, grants[0].ReferredID)
}

func TestRegister_UnknownCodeIsIgnored(t *testing.T) {
	e := newTestEngine(t)

	reg, err := e.ledger.Register(context.Background(), RegisterInput{Name: "Caio", Phone: nextPhone(), ReferralCode: "NOPE-0000"})
	require.NoError(t, err)
	assert.True(t, reg.Created)
	assert.False(t, reg.Referral.Granted)
	assert.Equal(t, GrantReasonUnknownCode, reg.Referral.Reason)
}

func TestRegisterWithReferral_SelfReferral(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := e.register(t, "Ana", "")

	res, err := e.ledger.RegisterWithReferral(ctx, e.store, a, a.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, GrantReasonSelfReferral, res.Reason)

	refreshed, err := e.store.GetParticipant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed.ExtraGuesses)
}

func TestRegisterWithReferral_AlreadyReferred(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := e.register(t, "Ana", "")
	c := e.register(t, "Carla", "")
	b := e.register(t, "Bruno", a.ReferralCode)

	res, err := e.ledger.RegisterWithReferral(ctx, e.store, b, c.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, GrantReasonAlreadyReferred, res.Reason)

	refreshed, err := e.store.GetParticipant(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed.ExtraGuesses)
}

func TestRegisterWithReferral_StaleCopyCannotCreditTwice(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := e.register(t, "Ana", "")
	b := e.register(t, "Bruno", "")

	stale := *b
	first, err := e.ledger.RegisterWithReferral(ctx, e.store, b, a.ReferralCode)
	require.NoError(t, err)
	assert.True(t, first.Granted)

	second, err := e.ledger.RegisterWithReferral(ctx, e.store, &stale, a.ReferralCode)
	require.NoError(t, err)
	assert.False(t, second.Granted)
	assert.Equal(t, GrantReasonDuplicate, second.Reason)

	refreshed, err := e.store.GetParticipant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.ExtraGuesses)
}

func TestRegister_ConcurrentSamePhoneCreditsOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := e.register(t, "Ana", "")
	phone := nextPhone()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg, err := e.ledger.Register(ctx, RegisterInput{Name: "Bruno", Phone: phone, ReferralCode: a.ReferralCode})
			if assert.NoError(t, err) && reg.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	refreshed, err := e.store.GetParticipant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.ExtraGuesses)
}

func TestRegister_ConcurrentReferralsAllCredited(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := e.register(t, "Ana", "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.Register(ctx, RegisterInput{Name: "Fan", Phone: nextPhone(), ReferralCode: a.ReferralCode})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	refreshed, err := e.store.GetParticipant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, refreshed.ExtraGuesses)

	grants, err := e.ledger.Grants(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 20)
}

func TestGrants_UnknownParticipant(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ledger.Grants(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

// endregion
