// Package account implements the account store: explicit main accounts per
// currency, lazily created income and category counter-accounts, soft deletes
// and per-account history.
package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/ledger"
	"github.com/tinoosan/pocketledger/internal/storage"
)

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, currency string) (ledger.Account, error)
	Get(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error)
	List(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	Delete(ctx context.Context, userID, accountID uuid.UUID) error
	// FindOrCreateByRole runs inside the caller's unit of work.
	FindOrCreateByRole(ctx context.Context, tx storage.Tx, userID uuid.UUID, role ledger.Role, currency string) (ledger.Account, error)
	History(ctx context.Context, userID, accountID uuid.UUID) (History, error)
}

// Options configures the service. Zero values are usable.
type Options struct {
	// TxTimeout bounds each unit of work; zero means unbounded.
	TxTimeout time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

// History is an account together with the legs that moved its balance.
type History struct {
	Account   ledger.Account
	Transfers []ledger.Transfer
	// Derived is the balance recomputed from Transfers.
	Derived decimal.Decimal
	// Consistent reports whether Derived equals the stored balance.
	Consistent bool
}

type service struct {
	store  storage.Store
	opts   Options
	logger *slog.Logger
}

func New(store storage.Store, opts Options) Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &service{store: store, opts: opts, logger: logger}
}

func (s *service) run(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return storage.Run(ctx, s.store, s.opts.TxTimeout, fn)
}

// Create opens the user's main account for currency with a zero balance.
func (s *service) Create(ctx context.Context, userID uuid.UUID, currency string) (ledger.Account, error) {
	currency, err := ledger.NormalizeCurrency(currency)
	if err != nil {
		return ledger.Account{}, err
	}
	var out ledger.Account
	err = s.run(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := requireLiveUser(ctx, tx, userID); err != nil {
			return err
		}
		role := ledger.MainRole()
		existing, err := tx.AccountByName(ctx, role.Name(userID), currency, true)
		switch {
		case err == nil && existing.Live():
			return errs.Conflict(currency + " account already exists")
		case err == nil:
			// A deactivated account always has a zero balance, so reopening it is safe.
			if err := tx.SetAccountDeleted(ctx, existing.ID, nil); err != nil {
				return err
			}
			existing.DeletedAt = nil
			out = existing
			return nil
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}
		a := ledger.Account{
			ID:        uuid.New(),
			UserID:    userID,
			Role:      role,
			Currency:  currency,
			Balance:   decimal.Zero,
			CreatedAt: s.opts.Now(),
		}
		if err := tx.CreateAccount(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}
	s.logger.Info("account created", "user_id", userID, "account_id", out.ID, "currency", out.Currency)
	return out, nil
}

// Get returns a live account. Existence is checked before ownership.
func (s *service) Get(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	var out ledger.Account
	err := s.run(ctx, func(ctx context.Context, tx storage.Tx) error {
		a, err := ownedLiveAccount(ctx, tx, userID, accountID, false)
		out = a
		return err
	})
	return out, err
}

// List returns the user's live accounts. A user with none gets errs.ErrNotFound.
func (s *service) List(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	var out []ledger.Account
	err := s.run(ctx, func(ctx context.Context, tx storage.Tx) error {
		accs, err := tx.AccountsByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(accs) == 0 {
			return errs.NotFound("user has no accounts")
		}
		out = accs
		return nil
	})
	return out, err
}

// Delete deactivates an account whose balance is exactly zero.
func (s *service) Delete(ctx context.Context, userID, accountID uuid.UUID) error {
	err := s.run(ctx, func(ctx context.Context, tx storage.Tx) error {
		a, err := tx.AccountByID(ctx, accountID, true)
		if err != nil {
			return err
		}
		if !a.Live() || a.UserID != userID {
			return errs.NotFound("account not found")
		}
		if !a.Balance.IsZero() {
			return errs.ErrNonZeroBalance
		}
		now := s.opts.Now()
		return tx.SetAccountDeleted(ctx, a.ID, &now)
	})
	if err != nil {
		return err
	}
	s.logger.Info("account deleted", "user_id", userID, "account_id", accountID)
	return nil
}

// FindOrCreateByRole returns the (role, currency) account of the user, creating
// it with a zero balance when absent. Losing a create race to a concurrent unit
// surfaces as errs.ErrConflict from the store and is answered by re-reading.
func (s *service) FindOrCreateByRole(ctx context.Context, tx storage.Tx, userID uuid.UUID, role ledger.Role, currency string) (ledger.Account, error) {
	name := role.Name(userID)
	a, err := tx.AccountByName(ctx, name, currency, true)
	if err == nil {
		return s.revive(ctx, tx, a)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, err
	}
	a = ledger.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Role:      role,
		Currency:  currency,
		Balance:   decimal.Zero,
		CreatedAt: s.opts.Now(),
	}
	err = tx.CreateAccount(ctx, a)
	if errors.Is(err, errs.ErrConflict) {
		existing, err := tx.AccountByName(ctx, name, currency, true)
		if err != nil {
			return ledger.Account{}, err
		}
		return s.revive(ctx, tx, existing)
	}
	if err != nil {
		return ledger.Account{}, err
	}
	s.logger.Debug("counter-account created", "user_id", userID, "account_id", a.ID, "role", role.String(), "currency", currency)
	return a, nil
}

func (s *service) revive(ctx context.Context, tx storage.Tx, a ledger.Account) (ledger.Account, error) {
	if a.Live() {
		return a, nil
	}
	if err := tx.SetAccountDeleted(ctx, a.ID, nil); err != nil {
		return ledger.Account{}, err
	}
	a.DeletedAt = nil
	return a, nil
}

// History returns the account's transfer trail and the balance derived from it.
func (s *service) History(ctx context.Context, userID, accountID uuid.UUID) (History, error) {
	var out History
	err := s.run(ctx, func(ctx context.Context, tx storage.Tx) error {
		a, err := ownedLiveAccount(ctx, tx, userID, accountID, false)
		if err != nil {
			return err
		}
		legs, err := tx.TransfersByAccount(ctx, a.ID)
		if err != nil {
			return err
		}
		derived := decimal.Zero
		for _, leg := range legs {
			if derived, err = derived.Add(leg.Delta()); err != nil {
				return errs.Invalid("balance overflow")
			}
		}
		out = History{
			Account:    a,
			Transfers:  legs,
			Derived:    derived,
			Consistent: derived.Cmp(a.Balance) == 0,
		}
		return nil
	})
	return out, err
}

func requireLiveUser(ctx context.Context, tx storage.Tx, userID uuid.UUID) error {
	u, err := tx.UserByID(ctx, userID, true)
	if errors.Is(err, errs.ErrNotFound) || (err == nil && !u.Live()) {
		return errs.NotFound("user not found")
	}
	return err
}

func ownedLiveAccount(ctx context.Context, tx storage.Tx, userID, accountID uuid.UUID, lock bool) (ledger.Account, error) {
	a, err := tx.AccountByID(ctx, accountID, lock)
	if err != nil {
		return ledger.Account{}, err
	}
	if !a.Live() {
		return ledger.Account{}, errs.NotFound("account not found")
	}
	if a.UserID != userID {
		return ledger.Account{}, errs.ErrForbidden
	}
	return a, nil
}
