// Package transaction implements the ledger engine. Income and spending are
// both expressed as one double-entry posting between the user's main account
// and a counter-account, applied atomically inside a single unit of work.
package transaction

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/ledger"
	"github.com/tinoosan/pocketledger/internal/service/account"
	"github.com/tinoosan/pocketledger/internal/storage"
)

type Service interface {
	// Income credits the user's existing main account from the income counter-account.
	Income(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string) (ledger.Transaction, error)
	// Pay moves amount from the main account to the category counter-account.
	Pay(ctx context.Context, userID uuid.UUID, category string, amount decimal.Decimal, currency string) (ledger.Transaction, error)
	// List returns the user's transactions oldest first. An empty currency lists all.
	List(ctx context.Context, userID uuid.UUID, currency string) ([]ledger.Transaction, error)
}

// Options configures the engine.
type Options struct {
	// AllowOverdraft lets Pay take the main account below zero.
	AllowOverdraft bool
	// TxTimeout bounds each unit of work; zero means unbounded.
	TxTimeout time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

type service struct {
	store    storage.Store
	accounts account.Service
	opts     Options
	logger   *slog.Logger
}

func New(store storage.Store, accounts account.Service, opts Options) Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &service{store: store, accounts: accounts, opts: opts, logger: logger}
}

// posting describes one user intent before any account is resolved.
type posting struct {
	userID   uuid.UUID
	typ      ledger.TransactionType
	category string
	counter  ledger.Role
	amount   decimal.Decimal
	currency string
}

func (s *service) Income(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string) (ledger.Transaction, error) {
	currency, err := validateShape(amount, currency)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return s.post(ctx, posting{
		userID:   userID,
		typ:      ledger.TransactionIncome,
		counter:  ledger.IncomeRole(),
		amount:   amount,
		currency: currency,
	})
}

func (s *service) Pay(ctx context.Context, userID uuid.UUID, category string, amount decimal.Decimal, currency string) (ledger.Transaction, error) {
	currency, err := validateShape(amount, currency)
	if err != nil {
		return ledger.Transaction{}, err
	}
	label, err := ledger.NormalizeCategory(category)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return s.post(ctx, posting{
		userID:   userID,
		typ:      ledger.TransactionPay,
		category: label,
		counter:  ledger.CategoryRole(label),
		amount:   amount,
		currency: currency,
	})
}

func validateShape(amount decimal.Decimal, currency string) (string, error) {
	if !amount.IsPos() {
		return "", errs.Invalid("amount must be positive")
	}
	currency, err := ledger.NormalizeCurrency(currency)
	if err != nil {
		return "", err
	}
	if err := ledger.ValidateAmount(amount, currency); err != nil {
		return "", err
	}
	return currency, nil
}

// post resolves both accounts, applies the two legs and records the
// transaction. The main account is always locked before the counter-account.
func (s *service) post(ctx context.Context, p posting) (ledger.Transaction, error) {
	var out ledger.Transaction
	err := storage.Run(ctx, s.store, s.opts.TxTimeout, func(ctx context.Context, tx storage.Tx) error {
		main, err := tx.AccountByName(ctx, ledger.MainRole().Name(p.userID), p.currency, true)
		if errors.Is(err, errs.ErrNotFound) || (err == nil && !main.Live()) {
			return errs.NotFound(p.currency + " main account not found")
		}
		if err != nil {
			return err
		}
		counter, err := s.accounts.FindOrCreateByRole(ctx, tx, p.userID, p.counter, p.currency)
		if err != nil {
			return err
		}

		source, destination := main, counter
		if p.typ == ledger.TransactionIncome {
			source, destination = counter, main
		}
		if p.typ == ledger.TransactionPay && !s.opts.AllowOverdraft {
			rest, err := main.Balance.Sub(p.amount)
			if err != nil {
				return errs.Invalid("balance overflow")
			}
			if rest.IsNeg() {
				return errs.ErrInsufficientFunds
			}
		}

		now := s.opts.Now()
		t := ledger.Transaction{
			ID:        uuid.New(),
			UserID:    p.userID,
			Type:      p.typ,
			Amount:    p.amount,
			Currency:  p.currency,
			Category:  p.category,
			CreatedAt: now,
		}
		t.Transfers = ledger.NewTransferPair(t.ID, source.ID, destination.ID, p.amount, now)
		for _, leg := range t.Transfers {
			if _, err := tx.AddToBalance(ctx, leg.AccountID(), leg.Delta()); err != nil {
				return err
			}
		}
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		s.logger.Debug("transaction rejected", "user_id", p.userID, "type", p.typ, "currency", p.currency, "kind", errs.Kind(err))
		return ledger.Transaction{}, err
	}
	s.logger.Info("transaction recorded",
		"user_id", out.UserID,
		"transaction_id", out.ID,
		"type", out.Type,
		"amount", out.Amount.String(),
		"currency", out.Currency,
	)
	return out, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, currency string) ([]ledger.Transaction, error) {
	if currency != "" {
		var err error
		if currency, err = ledger.NormalizeCurrency(currency); err != nil {
			return nil, err
		}
	}
	var out []ledger.Transaction
	err := storage.Run(ctx, s.store, s.opts.TxTimeout, func(ctx context.Context, tx storage.Tx) error {
		list, err := tx.TransactionsByUser(ctx, userID, currency)
		out = list
		return err
	})
	return out, err
}
