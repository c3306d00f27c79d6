package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/ledger"
	"github.com/tinoosan/pocketledger/internal/service/account"
	"github.com/tinoosan/pocketledger/internal/service/transaction"
	"github.com/tinoosan/pocketledger/internal/storage"
	"github.com/tinoosan/pocketledger/internal/storage/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s storage.Store, email string) ledger.User {
	t.Helper()
	u := ledger.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		PasswordSalt: "salt",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, storage.Run(context.Background(), s, 0, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateUser(ctx, u)
	}))
	return u
}

func mainAccount(userID uuid.UUID, currency string) ledger.Account {
	return ledger.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Role:      ledger.MainRole(),
		Currency:  currency,
		Balance:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
}

func TestUsers(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "ada@example.com")

	err := storage.Run(ctx, s, 0, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.UserByEmail(ctx, "ADA@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.True(t, got.Live())

		dup := u
		dup.ID = uuid.New()
		assert.ErrorIs(t, tx.CreateUser(ctx, dup), errs.ErrConflict)

		require.NoError(t, tx.DeactivateUser(ctx, u.ID, time.Now().UTC()))
		got, err = tx.UserByID(ctx, u.ID, true)
		require.NoError(t, err)
		assert.False(t, got.Live())
		assert.ErrorIs(t, tx.DeactivateUser(ctx, u.ID, time.Now().UTC()), errs.ErrNotFound)
		assert.ErrorIs(t, tx.DeactivateUser(ctx, uuid.New(), time.Now().UTC()), errs.ErrNotFound)

		_, err = tx.UserByID(ctx, uuid.New(), false)
		assert.ErrorIs(t, err, errs.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestAccounts_ConflictKeepsUnitUsable(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "ada@example.com")
	a := mainAccount(u.ID, "USD")

	err := storage.Run(ctx, s, 0, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.CreateAccount(ctx, a))
		dup := mainAccount(u.ID, "USD")
		assert.ErrorIs(t, tx.CreateAccount(ctx, dup), errs.ErrConflict)

		updated, err := tx.AddToBalance(ctx, a.ID, decimal.MustParse("12.50"))
		require.NoError(t, err)
		assert.Equal(t, "12.50", updated.Balance.String())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, storage.Run(ctx, s, 0, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.AccountByName(ctx, ledger.MainRole().Name(u.ID), "USD", true)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, ledger.MainRole(), got.Role)
		assert.Equal(t, "12.50", got.Balance.String())

		_, err = tx.AccountByID(ctx, uuid.New(), false)
		assert.ErrorIs(t, err, errs.ErrNotFound)
		return nil
	}))
}

func TestAccounts_SoftDeleteAndList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "ada@example.com")
	usd := mainAccount(u.ID, "USD")
	gbp := mainAccount(u.ID, "GBP")
	coffee := mainAccount(u.ID, "USD")
	coffee.Role = ledger.CategoryRole("coffee")

	require.NoError(t, storage.Run(ctx, s, 0, func(ctx context.Context, tx storage.Tx) error {
		for _, a := range []ledger.Account{usd, gbp, coffee} {
			if err := tx.CreateAccount(ctx, a); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		return tx.SetAccountDeleted(ctx, gbp.ID, &now)
	}))

	require.NoError(t, storage.Run(ctx, s, 0, func(ctx context.Context, tx storage.Tx) error {
		list, err := tx.AccountsByUser(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, usd.ID, list[0].ID)
		assert.Equal(t, ledger.CategoryRole("coffee"), list[1].Role)

		got, err := tx.AccountByID(ctx, gbp.ID, false)
		require.NoError(t, err)
		assert.False(t, got.Live())
		assert.ErrorIs(t, tx.SetAccountDeleted(ctx, uuid.New(), nil), errs.ErrNotFound)
		return nil
	}))
}

func TestRollback_DiscardsWrites(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "ada@example.com")
	a := mainAccount(u.ID, "EUR")

	err := storage.Run(ctx, s, 0, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.CreateAccount(ctx, a))
		return errs.Invalid("abort")
	})
	require.ErrorIs(t, err, errs.ErrInvalid)

	require.NoError(t, storage.Run(ctx, s, 0, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.AccountByID(ctx, a.ID, false)
		assert.ErrorIs(t, err, errs.ErrNotFound)
		return nil
	}))
}

func TestTokens(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "ada@example.com")
	tok := ledger.Token{ID: uuid.New(), Value: "abc", UserID: u.ID, Expire: time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)}

	require.NoError(t, storage.Run(ctx, s, 0, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.CreateToken(ctx, tok))
		dup := tok
		dup.ID = uuid.New()
		assert.ErrorIs(t, tx.CreateToken(ctx, dup), errs.ErrConflict)

		got, err := tx.TokenByValue(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.UserID)
		assert.True(t, tok.Expire.Equal(got.Expire))

		_, err = tx.TokenByValue(ctx, "missing")
		assert.ErrorIs(t, err, errs.ErrNotFound)
		return nil
	}))
}

func TestEngineOnSQLite(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "ada@example.com")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := account.New(s, account.Options{TxTimeout: 10 * time.Second, Logger: logger})
	engine := transaction.New(s, accounts, transaction.Options{AllowOverdraft: true, TxTimeout: 10 * time.Second, Logger: logger})

	main, err := accounts.Create(ctx, u.ID, "USD")
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Income(ctx, u.ID, decimal.MustParse("10"), "USD")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err = engine.Pay(ctx, u.ID, "Eating Out", decimal.MustParse("25.50"), "USD")
	require.NoError(t, err)
	_, err = engine.Pay(ctx, u.ID, "groceries", decimal.MustParse("4.50"), "USD")
	require.NoError(t, err)

	got, err := accounts.Get(ctx, u.ID, main.ID)
	require.NoError(t, err)
	assert.Equal(t, "70.00", got.Balance.String())

	h, err := accounts.History(ctx, u.ID, main.ID)
	require.NoError(t, err)
	assert.Len(t, h.Transfers, n+2)
	assert.True(t, h.Consistent)

	list, err := engine.List(ctx, u.ID, "")
	require.NoError(t, err)
	require.Len(t, list, n+2)
	last := list[len(list)-1]
	assert.Equal(t, ledger.TransactionPay, last.Type)
	assert.Equal(t, "groceries", last.Category)
	require.Len(t, last.Transfers, 2)
	assert.Equal(t, ledger.SideCredit, last.Transfers[0].Side)
	assert.Equal(t, ledger.SideDebit, last.Transfers[1].Side)

	eur, err := engine.List(ctx, u.ID, "EUR")
	require.NoError(t, err)
	assert.Empty(t, eur)
}
