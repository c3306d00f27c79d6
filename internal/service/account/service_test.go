package account_test

import (
	"context"
	"io"
	"log/slog"
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
	"github.com/tinoosan/pocketledger/internal/storage"
	"github.com/tinoosan/pocketledger/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func setup(t *testing.T) (*memory.Store, account.Service, uuid.UUID) {
	t.Helper()
	store := memory.New()
	user := ledger.User{ID: uuid.New(), Email: "ada@example.com", CreatedAt: time.Now().UTC()}
	store.SeedUser(user)
	svc := account.New(store, account.Options{TxTimeout: 5 * time.Second, Logger: testLogger()})
	return store, svc, user.ID
}

func addBalance(t *testing.T, store storage.Store, accountID uuid.UUID, amount string) {
	t.Helper()
	err := storage.Run(context.Background(), store, 0, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.AddToBalance(ctx, accountID, decimal.MustParse(amount))
		return err
	})
	require.NoError(t, err)
}

func TestCreate_NormalizesCurrency(t *testing.T) {
	_, svc, userID := setup(t)
	a, err := svc.Create(context.Background(), userID, "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", a.Currency)
	assert.Equal(t, ledger.MainRole(), a.Role)
	assert.Equal(t, "user_"+userID.String(), a.Name())
	assert.True(t, a.Balance.IsZero())
	assert.True(t, a.Live())
}

func TestCreate_Errors(t *testing.T) {
	store, svc, userID := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, userID, "US")
	assert.ErrorIs(t, err, errs.ErrInvalid)

	_, err = svc.Create(ctx, uuid.New(), "USD")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	gone := time.Now().UTC()
	inactive := ledger.User{ID: uuid.New(), Email: "gone@example.com", DeletedAt: &gone}
	store.SeedUser(inactive)
	_, err = svc.Create(ctx, inactive.ID, "USD")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreate_InvalidCurrencyBeforeUserLookup(t *testing.T) {
	_, svc, _ := setup(t)
	_, err := svc.Create(context.Background(), uuid.New(), "US")
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestCreate_DuplicateAndReopen(t *testing.T) {
	_, svc, userID := setup(t)
	ctx := context.Background()
	first, err := svc.Create(ctx, userID, "EUR")
	require.NoError(t, err)

	_, err = svc.Create(ctx, userID, "eur")
	assert.ErrorIs(t, err, errs.ErrConflict)

	require.NoError(t, svc.Delete(ctx, userID, first.ID))
	reopened, err := svc.Create(ctx, userID, "EUR")
	require.NoError(t, err)
	assert.Equal(t, first.ID, reopened.ID)
	assert.True(t, reopened.Live())
}

func TestGet_ExistenceBeforeOwnership(t *testing.T) {
	store, svc, userID := setup(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, userID, "USD")
	require.NoError(t, err)

	got, err := svc.Get(ctx, userID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = svc.Get(ctx, userID, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	other := ledger.User{ID: uuid.New(), Email: "bob@example.com"}
	store.SeedUser(other)
	_, err = svc.Get(ctx, other.ID, a.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	// A deactivated account does not exist for anyone, owner or not.
	require.NoError(t, svc.Delete(ctx, userID, a.ID))
	_, err = svc.Get(ctx, other.ID, a.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = svc.Get(ctx, userID, a.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestList(t *testing.T) {
	_, svc, userID := setup(t)
	ctx := context.Background()

	_, err := svc.List(ctx, userID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.Create(ctx, userID, "USD")
	require.NoError(t, err)
	_, err = svc.Create(ctx, userID, "GBP")
	require.NoError(t, err)

	list, err := svc.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "GBP", list[0].Currency)
	assert.Equal(t, "USD", list[1].Currency)
}

func TestDelete(t *testing.T) {
	store, svc, userID := setup(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, userID, "USD")
	require.NoError(t, err)

	addBalance(t, store, a.ID, "12.50")
	err = svc.Delete(ctx, userID, a.ID)
	assert.ErrorIs(t, err, errs.ErrInvalid)
	assert.ErrorIs(t, err, errs.ErrNonZeroBalance)

	addBalance(t, store, a.ID, "-12.50")
	require.NoError(t, svc.Delete(ctx, userID, a.ID))

	_, err = svc.Get(ctx, userID, a.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, userID, a.ID), errs.ErrNotFound)
}

func TestDelete_OtherUsersAccountIsNotFound(t *testing.T) {
	store, svc, userID := setup(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, userID, "USD")
	require.NoError(t, err)

	other := ledger.User{ID: uuid.New(), Email: "eve@example.com"}
	store.SeedUser(other)
	assert.ErrorIs(t, svc.Delete(ctx, other.ID, a.ID), errs.ErrNotFound)

	_, err = svc.Get(ctx, userID, a.ID)
	assert.NoError(t, err)
}

func TestFindOrCreateByRole_ConcurrentCallsYieldOneAccount(t *testing.T) {
	store, svc, userID := setup(t)
	ctx := context.Background()
	role := ledger.CategoryRole("coffee")

	const n = 16
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := storage.Run(ctx, store, 5*time.Second, func(ctx context.Context, tx storage.Tx) error {
				a, err := svc.FindOrCreateByRole(ctx, tx, userID, role, "USD")
				ids[i] = a.ID
				return err
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	list, err := svc.List(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// staleTx hides the first lookup by name, as if a concurrent unit created the
// row between this unit's read and its insert.
type staleTx struct {
	storage.Tx
	misses int
}

func (s *staleTx) AccountByName(ctx context.Context, name, currency string, lock bool) (ledger.Account, error) {
	if s.misses > 0 {
		s.misses--
		return ledger.Account{}, errs.NotFound("account not found")
	}
	return s.Tx.AccountByName(ctx, name, currency, lock)
}

func TestFindOrCreateByRole_LostRaceRereads(t *testing.T) {
	store, svc, userID := setup(t)
	ctx := context.Background()

	var first ledger.Account
	require.NoError(t, storage.Run(ctx, store, 0, func(ctx context.Context, tx storage.Tx) error {
		var err error
		first, err = svc.FindOrCreateByRole(ctx, tx, userID, ledger.IncomeRole(), "USD")
		return err
	}))

	var second ledger.Account
	require.NoError(t, storage.Run(ctx, store, 0, func(ctx context.Context, tx storage.Tx) error {
		var err error
		second, err = svc.FindOrCreateByRole(ctx, &staleTx{Tx: tx, misses: 1}, userID, ledger.IncomeRole(), "USD")
		return err
	}))
	assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateByRole_RevivesDeactivatedCounterAccount(t *testing.T) {
	store, svc, userID := setup(t)
	ctx := context.Background()

	var created ledger.Account
	require.NoError(t, storage.Run(ctx, store, 0, func(ctx context.Context, tx storage.Tx) error {
		var err error
		created, err = svc.FindOrCreateByRole(ctx, tx, userID, ledger.CategoryRole("rent"), "GBP")
		return err
	}))
	require.NoError(t, svc.Delete(ctx, userID, created.ID))

	var again ledger.Account
	require.NoError(t, storage.Run(ctx, store, 0, func(ctx context.Context, tx storage.Tx) error {
		var err error
		again, err = svc.FindOrCreateByRole(ctx, tx, userID, ledger.CategoryRole("rent"), "GBP")
		return err
	}))
	assert.Equal(t, created.ID, again.ID)
	assert.True(t, again.Live())
}

func TestHistory_DerivesBalanceFromTransfers(t *testing.T) {
	store, svc, userID := setup(t)
	ctx := context.Background()
	main, err := svc.Create(ctx, userID, "USD")
	require.NoError(t, err)

	var income ledger.Account
	require.NoError(t, storage.Run(ctx, store, 0, func(ctx context.Context, tx storage.Tx) error {
		income, err = svc.FindOrCreateByRole(ctx, tx, userID, ledger.IncomeRole(), "USD")
		if err != nil {
			return err
		}
		amount := decimal.MustParse("40")
		tr := ledger.Transaction{ID: uuid.New(), UserID: userID, Type: ledger.TransactionIncome, Amount: amount, Currency: "USD", CreatedAt: time.Now().UTC()}
		tr.Transfers = ledger.NewTransferPair(tr.ID, income.ID, main.ID, amount, tr.CreatedAt)
		for _, leg := range tr.Transfers {
			if _, err := tx.AddToBalance(ctx, leg.AccountID(), leg.Delta()); err != nil {
				return err
			}
		}
		return tx.CreateTransaction(ctx, tr)
	}))

	h, err := svc.History(ctx, userID, main.ID)
	require.NoError(t, err)
	require.Len(t, h.Transfers, 1)
	assert.Equal(t, ledger.SideDebit, h.Transfers[0].Side)
	assert.Equal(t, "40", h.Derived.String())
	assert.True(t, h.Consistent)

	h, err = svc.History(ctx, userID, income.ID)
	require.NoError(t, err)
	assert.Equal(t, "-40", h.Derived.String())
	assert.True(t, h.Consistent)
}
