package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"mystery-box/models"
	"mystery-box/store"

	"github.com/stretchr/testify/require"
)

// stubMatcher is a scripted SemanticMatcher.
type stubMatcher struct {
	mu     sync.Mutex
	calls  int
	answer bool
	err    error
	block  bool
	panics bool
}

func (m *stubMatcher) Match(ctx context.Context, guess, correctAnswer string) (bool, error) {
	m.mu.Lock()
	m.calls++
	answer, err, block, panics := m.answer, m.err, m.block, m.panics
	m.mu.Unlock()

	if panics {
		panic("matcher exploded")
	}
	if block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return answer, err
}

func (m *stubMatcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// steppingClock returns strictly increasing instants so rows keep their
// arrival order even when created back to back.
func steppingClock() func() time.Time {
	var (
		mu sync.Mutex
		t  = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

type testEngine struct {
	store      *store.MemoryStore
	clock      *fakeClock
	matcher    *stubMatcher
	games      *GameService
	ledger     *ReferralLedger
	quota      *QuotaManager
	validation *ValidationService
	winners    *WinnerSelector
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	st := store.NewMemoryStore()
	clock := newFakeClock()
	matcher := &stubMatcher{}

	games := NewGameService(st, "live-1", 10*time.Second, time.Minute)
	games.now = clock.Now
	ledger := NewReferralLedger(st)
	ledger.now = steppingClock()
	quota := NewQuotaManager(st, "live-1")
	quota.now = steppingClock()
	validation := NewValidationService(st, NewGuessValidator(DefaultLexicon(), matcher, time.Second), time.Hour)
	validation.now = clock.Now

	return &testEngine{
		store:      st,
		clock:      clock,
		matcher:    matcher,
		games:      games,
		ledger:     ledger,
		quota:      quota,
		validation: validation,
		winners:    NewWinnerSelector(games, validation),
	}
}

func testGameInput(productName string) CreateGameInput {
	return CreateGameInput{
		Sponsor: models.Sponsor{
			Name:         "Loja do Bairro",
			ContactName:  "Rita",
			ContactPhone: "5511988887777",
			Website:      "https://loja.example",
		},
		ProductName: productName,
		Clues:       []string{"Fica na lavanderia", "Tem tambor", "Gira muito", "Usa sabão", "Lava roupas"},
	}
}

// openGame creates the broadcaster's game and opens it for guesses.
func (e *testEngine) openGame(t *testing.T, productName string) *models.Game {
	t.Helper()
	ctx := context.Background()
	_, err := e.games.CreateGame(ctx, testGameInput(productName))
	require.NoError(t, err)
	g, err := e.games.OpenSubmissions(ctx)
	require.NoError(t, err)
	return g
}

var phoneSeq struct {
	sync.Mutex
	n int
}

func nextPhone() string {
	phoneSeq.Lock()
	defer phoneSeq.Unlock()
	phoneSeq.n++
	return fmt.Sprintf("55119%08d", phoneSeq.n)
}

func (e *testEngine) register(t *testing.T, name, referralCode string) *models.Participant {
	t.Helper()
	reg, err := e.ledger.Register(context.Background(), RegisterInput{
		Name:         name,
		Phone:        nextPhone(),
		City:         "São Paulo",
		ReferralCode: referralCode,
	})
	require.NoError(t, err)
	require.True(t, reg.Created)
	return reg.Participant
}

func (e *testEngine) submit(t *testing.T, p *models.Participant, gameID, guess string) *models.Submission {
	t.Helper()
	sub, _, err := e.quota.TrySubmit(context.Background(), p.ID, gameID, guess)
	require.NoError(t, err)
	return sub
}
