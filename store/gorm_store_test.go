package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mystery-box/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMockStore opens a GormStore over sqlmock. SkipDefaultTransaction keeps
// single statements free of BEGIN/COMMIT so only explicit transactions
// show up in the expectations.
func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		TranslateError:         true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStore(gdb), mock
}

func duplicateKeyErr() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func TestTranslate(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"not found", gorm.ErrRecordNotFound, ErrNotFound},
		{"wrapped not found", fmt.Errorf("first: %w", gorm.ErrRecordNotFound), ErrNotFound},
		{"duplicate", gorm.ErrDuplicatedKey, ErrDuplicate},
		{"other", boom, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

// region row locks

func TestGormStore_LockGameForUpdate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "games" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "broadcaster_id", "status"}).
			AddRow("g1", "live-1", "closed"))

	g, err := s.LockGame(context.Background(), "g1", LockUpdate)
	require.NoError(t, err)
	assert.Equal(t, "g1", g.ID)
	assert.Equal(t, models.GameStatusClosed, g.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LockGameForShare(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "games" WHERE id = \$1 .*FOR SHARE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "broadcaster_id", "status"}).
			AddRow("g1", "live-1", "accepting"))

	_, err := s.LockGame(context.Background(), "g1", LockShare)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LockParticipantForUpdate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "participants" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "phone", "extra_guesses"}).
			AddRow("p1", "5511999990001", 2))

	p, err := s.LockParticipant(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.ExtraGuesses)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GetGameNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "games" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetGame(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// endregion

// region conditional updates

func TestGormStore_SetReferredByOnlyWhenEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	const query = `UPDATE "participants" SET "referred_by"=.* WHERE id = .* AND referred_by IS NULL`

	mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetReferredBy(ctx, "p2", "p1"))

	// already referred: the WHERE matches nothing
	mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.SetReferredBy(ctx, "p2", "p3"), ErrDuplicate)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_IncrementExtraGuessesInSQL(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	const query = `UPDATE "participants" SET "extra_guesses"=extra_guesses \+ \$1,"updated_at"=\$2 WHERE id = \$3`

	mock.ExpectExec(query).
		WithArgs(1, sqlmock.AnyArg(), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.IncrementExtraGuesses(ctx, "p1", 1))

	mock.ExpectExec(query).
		WithArgs(1, sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.IncrementExtraGuesses(ctx, "missing", 1), ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpdateSubmissionGuessNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "submissions" SET "guess"=.* WHERE id = `).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.UpdateSubmissionGuess(context.Background(), "missing", "x"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// endregion

// region inserts

func TestGormStore_PutValidationUpserts(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "validation_results" .*ON CONFLICT \("cache_key"\) DO UPDATE SET "is_correct"="excluded"."is_correct","source"="excluded"."source","validated_at"="excluded"."validated_at"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.PutValidation(context.Background(), &models.ValidationResult{
		Key:              "k1",
		NormalizedGuess:  "lavadora",
		NormalizedAnswer: "lavadora",
		IsCorrect:        true,
		Source:           "local",
		ValidatedAt:      time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CreateReferralGrantDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "referral_grants"`).WillReturnError(duplicateKeyErr())

	err := s.CreateReferralGrant(context.Background(), &models.ReferralGrant{
		ID: "g1", ReferrerID: "p1", ReferredID: "p2", GrantedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_PruneValidations(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM "validation_results" WHERE validated_at < \$1`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.PruneValidations(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

// endregion

// region transactions

func TestGormStore_DeleteGameRemovesSubmissionsFirst(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "submissions" WHERE game_id = \$1`).
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM "games" WHERE id = \$1`).
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteGame(context.Background(), "g1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeleteGameNotFoundRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "submissions" WHERE game_id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "games" WHERE id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, s.DeleteGame(context.Background(), "missing"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_NestedTransactionUsesSavepoint(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "participants" SET "extra_guesses"=extra_guesses \+ \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^SAVEPOINT sp`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "referral_grants"`).WillReturnError(duplicateKeyErr())
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT sp`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.Transaction(ctx, func(tx Store) error {
		if err := tx.IncrementExtraGuesses(ctx, "p1", 1); err != nil {
			return err
		}
		innerErr := tx.Transaction(ctx, func(inner Store) error {
			return inner.CreateReferralGrant(ctx, &models.ReferralGrant{
				ID: "g1", ReferrerID: "p1", ReferredID: "p2", GrantedAt: time.Now(),
			})
		})
		assert.ErrorIs(t, innerErr, ErrDuplicate)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// endregion
