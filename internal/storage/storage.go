// Package storage defines the unit-of-work contract shared by the memory,
// sqlite and postgres backends. Services never hold a global client: they
// receive a Store, open one Tx per logical operation and do every read and
// write through it.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/pocketledger/internal/ledger"
)

// UserRepo covers user rows. Lookups return deactivated users too; callers
// decide with User.Live.
type UserRepo interface {
	// UserByID with lock set keeps the row from being deactivated until the unit ends.
	UserByID(ctx context.Context, id uuid.UUID, lock bool) (ledger.User, error)
	UserByEmail(ctx context.Context, email string) (ledger.User, error)
	// CreateUser fails with errs.ErrConflict when the email is taken.
	CreateUser(ctx context.Context, u ledger.User) error
	// DeactivateUser fails with errs.ErrNotFound unless the user exists and is live.
	DeactivateUser(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AccountRepo covers account rows.
type AccountRepo interface {
	// AccountByID returns the account regardless of liveness. With lock set the
	// row stays locked against concurrent writers until the unit ends.
	AccountByID(ctx context.Context, id uuid.UUID, lock bool) (ledger.Account, error)
	// AccountByName looks up the (name, currency) key regardless of liveness.
	AccountByName(ctx context.Context, name, currency string, lock bool) (ledger.Account, error)
	// AccountsByUser returns the user's live accounts.
	AccountsByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	// CreateAccount fails with errs.ErrConflict when (name, currency) exists.
	// The unit of work stays usable after a conflict.
	CreateAccount(ctx context.Context, a ledger.Account) error
	// SetAccountDeleted sets or clears deleted_at.
	SetAccountDeleted(ctx context.Context, id uuid.UUID, at *time.Time) error
	// AddToBalance applies delta to the stored balance and returns the updated row.
	AddToBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (ledger.Account, error)
}

// TransactionRepo covers transactions and their transfers.
type TransactionRepo interface {
	// CreateTransaction inserts the transaction and all of t.Transfers.
	CreateTransaction(ctx context.Context, t ledger.Transaction) error
	// TransactionsByUser lists the user's transactions ordered by created_at,
	// with transfers loaded. An empty currency means all currencies.
	TransactionsByUser(ctx context.Context, userID uuid.UUID, currency string) ([]ledger.Transaction, error)
	// TransfersByAccount lists the legs that moved the account's balance, ordered by created_at.
	TransfersByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transfer, error)
}

// TokenRepo covers bearer tokens.
type TokenRepo interface {
	// CreateToken fails with errs.ErrConflict when the value exists.
	CreateToken(ctx context.Context, t ledger.Token) error
	TokenByValue(ctx context.Context, value string) (ledger.Token, error)
}

// Tx is one atomic, isolated unit of work.
type Tx interface {
	UserRepo
	AccountRepo
	TransactionRepo
	TokenRepo
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens units of work.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// ReadyChecker is optionally implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Run executes fn inside a unit of work. It commits when fn succeeds and
// rolls back otherwise, returning fn's error unchanged. A positive timeout
// bounds the whole unit; fn must use the context it is given.
func Run(ctx context.Context, s Store, timeout time.Duration, fn func(ctx context.Context, tx Tx) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	return tx.Commit(ctx)
}
