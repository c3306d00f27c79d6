package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
)

// Side represents the accounting position of a transfer leg.
type Side string

const (
	// SideDebit credits money into the destination account of a transfer.
	SideDebit Side = "debit"
	// SideCredit takes money out of the source account of a transfer.
	SideCredit Side = "credit"
)

// TransactionType enumerates the user-initiated ledger events.
type TransactionType string

const (
	TransactionIncome TransactionType = "income"
	TransactionPay    TransactionType = "pay"
)

// User captures the owner of ledger data.
type User struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	PasswordSalt string
	CreatedAt    time.Time
	// DeletedAt marks a deactivated user (soft delete).
	DeletedAt *time.Time
}

// Live reports whether the user has not been deactivated.
func (u User) Live() bool { return u.DeletedAt == nil }

// Account represents a per-currency ledger account belonging to a user.
// Balance is a materialized cache of the account's transfers and may be negative.
type Account struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Role      Role
	Currency  string
	Balance   decimal.Decimal
	CreatedAt time.Time
	// DeletedAt marks a deactivated account (soft delete).
	DeletedAt *time.Time
}

// Name returns the canonical (name, currency) storage key half for the account.
func (a Account) Name() string { return a.Role.Name(a.UserID) }

// Live reports whether the account has not been deactivated. Every lookup
// that must ignore deactivated accounts goes through this predicate.
func (a Account) Live() bool { return a.DeletedAt == nil }

// Transaction is one immutable user-initiated ledger event.
type Transaction struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      TransactionType
	Amount    decimal.Decimal
	Currency  string
	Category  string
	CreatedAt time.Time
	// Transfers holds the double-entry pair when loaded.
	Transfers []Transfer
}

// Transfer is one leg of a transaction's double-entry pair.
type Transfer struct {
	ID                   uuid.UUID
	TransactionID        uuid.UUID
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Side                 Side
	Amount               decimal.Decimal
	CreatedAt            time.Time
}

// AccountID returns the account whose balance this leg moves.
func (t Transfer) AccountID() uuid.UUID {
	if t.Side == SideCredit {
		return t.SourceAccountID
	}
	return t.DestinationAccountID
}

// Delta returns the signed balance change this leg applies to AccountID.
func (t Transfer) Delta() decimal.Decimal {
	if t.Side == SideCredit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// NewTransferPair builds the two legs that move amount from source to destination.
func NewTransferPair(transactionID, source, destination uuid.UUID, amount decimal.Decimal, at time.Time) []Transfer {
	leg := func(side Side) Transfer {
		return Transfer{
			ID:                   uuid.New(),
			TransactionID:        transactionID,
			SourceAccountID:      source,
			DestinationAccountID: destination,
			Side:                 side,
			Amount:               amount,
			CreatedAt:            at,
		}
	}
	return []Transfer{leg(SideCredit), leg(SideDebit)}
}

// Token is an opaque bearer credential issued at login.
type Token struct {
	ID     uuid.UUID
	Value  string
	UserID uuid.UUID
	Expire time.Time
}

// Expired reports whether the token is no longer usable at now.
// A token whose expiry equals now is already expired.
func (t Token) Expired(now time.Time) bool { return !now.Before(t.Expire) }
