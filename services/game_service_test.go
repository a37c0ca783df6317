package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mystery-box/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGame_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	in := testGameInput("Lavadora")
	in.Clues = in.Clues[:4]
	_, err := e.games.CreateGame(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = testGameInput(" ")
	_, err = e.games.CreateGame(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = testGameInput("Lavadora")
	in.Clues[2] = "  "
	_, err = e.games.CreateGame(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = testGameInput("Lavadora")
	in.Sponsor.Name = ""
	_, err = e.games.CreateGame(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateGame_StartsPending(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	g, err := e.games.CreateGame(ctx, testGameInput("  Lavadora "))
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusPending, g.Status)
	assert.Equal(t, "Lavadora", g.Product.Name)
	assert.Equal(t, 0, g.RevealedCluesCount)
	assert.False(t, g.HasWinner())

	_, err = e.games.CreateGame(ctx, testGameInput("Geladeira"))
	assert.ErrorIs(t, err, ErrGameAlreadyExists)
}

func TestActiveGame_None(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.games.ActiveGame(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveGame)
	_, err = e.games.OpenSubmissions(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveGame)
}

func TestLifecycle_Transitions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.games.CreateGame(ctx, testGameInput("Lavadora"))
	require.NoError(t, err)

	_, err = e.games.RevealClue(ctx)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = e.games.CloseSubmissions(ctx)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	g, err := e.games.OpenSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusAccepting, g.Status)
	require.NotNil(t, g.OpenedAt)

	_, err = e.games.OpenSubmissions(ctx)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	for i := 1; i <= models.ClueCount; i++ {
		g, err = e.games.RevealClue(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, g.RevealedCluesCount)
	}
	_, err = e.games.RevealClue(ctx)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	g, err = e.games.CloseSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusClosed, g.Status)
	require.NotNil(t, g.ClosedAt)

	_, err = e.games.RevealClue(ctx)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = e.games.OpenSubmissions(ctx)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	stored, err := e.games.ActiveGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ClueCount, stored.RevealedCluesCount)
	assert.Equal(t, models.GameStatusClosed, stored.Status)
}

func TestRevealClue_ConcurrentNeverPassesFive(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.openGame(t, "Lavadora")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.games.RevealClue(ctx)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidStateTransition))
		}()
	}
	wg.Wait()

	assert.Equal(t, models.ClueCount, ok)
	g, err := e.games.ActiveGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ClueCount, g.RevealedCluesCount)
}

func TestReset_ClearsGameKeepsParticipants(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	g := e.openGame(t, "Lavadora")
	a := e.register(t, "Ana", "")
	e.register(t, "Bruno", a.ReferralCode)
	sub := e.submit(t, a, g.ID, "lavadora")

	require.NoError(t, e.games.Reset(ctx))

	_, err := e.games.ActiveGame(ctx)
	assert.ErrorIs(t, err, ErrNoActiveGame)
	_, err = e.store.GetSubmission(ctx, sub.ID)
	assert.Error(t, err)

	refreshed, err := e.store.GetParticipant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.ExtraGuesses)

	next, err := e.games.CreateGame(ctx, testGameInput("Geladeira"))
	require.NoError(t, err)
	assert.NotEqual(t, g.ID, next.ID)

	require.NoError(t, e.games.Reset(ctx))
	assert.ErrorIs(t, e.games.Reset(ctx), ErrNoActiveGame)
}

func TestSubmissions_ArrivalOrder(t *testing.T) {
	e := newTestEngine(t)
	g := e.openGame(t, "Lavadora")
	a := e.register(t, "Ana", "")
	b := e.register(t, "Bruno", "")
	first := e.submit(t, a, g.ID, "geladeira")
	second := e.submit(t, b, g.ID, "lavadora")

	subs, err := e.games.Submissions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, first.ID, subs[0].ID)
	assert.Equal(t, second.ID, subs[1].ID)
}

func TestSetSponsorLogo(t *testing.T) {
	e := newTestEngine(t)
	e.openGame(t, "Lavadora")

	g, err := e.games.SetSponsorLogo(context.Background(), "https://cdn.example/logos/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/logos/a.png", g.Sponsor.LogoURL)
}
