package v1

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/pocketledger/internal/dictionary"
	"github.com/tinoosan/pocketledger/internal/ledger"
)

type postAccountRequest struct {
	Currency string `json:"currency"`
}

// amountRequest carries amounts as JSON numbers or strings ("12.50").
type amountRequest struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
}

type postIncomeRequest = amountRequest

type postPayRequest struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
	Category string      `json:"category"`
}

// postingInput is the validated form of an income or pay request.
type postingInput struct {
	Amount   decimal.Decimal
	Currency string
	Category string
}

type listTransactionsQuery struct {
	Currency string
}

type postUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID        uuid.UUID `json:"id"`
	Currency  string    `json:"currency"`
	Balance   string    `json:"balance"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type transferResponse struct {
	ID                   uuid.UUID   `json:"id"`
	TransactionID        uuid.UUID   `json:"transaction_id"`
	SourceAccountID      uuid.UUID   `json:"source_account_id"`
	DestinationAccountID uuid.UUID   `json:"destination_account_id"`
	Side                 ledger.Side `json:"side"`
	Amount               string      `json:"amount"`
	CreatedAt            time.Time   `json:"created_at"`
}

type transactionResponse struct {
	ID       uuid.UUID              `json:"id"`
	Type     ledger.TransactionType `json:"type"`
	Amount   string                 `json:"amount"`
	Currency string                 `json:"currency"`
	Category *string                `json:"category"`
	// CategoryLabel is the display name for curated categories.
	CategoryLabel string             `json:"category_label,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	Transfers     []transferResponse `json:"transfers"`
}

type accountLedgerResponse struct {
	Account        accountResponse    `json:"account"`
	Transfers      []transferResponse `json:"transfers"`
	DerivedBalance string             `json:"derived_balance"`
	Consistent     bool               `json:"consistent"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	Token  string    `json:"token"`
	Expire time.Time `json:"expire"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Currency:  a.Currency,
		Balance:   a.Balance.String(),
		Role:      a.Role.String(),
		CreatedAt: a.CreatedAt,
	}
}

func toTransferResponse(t ledger.Transfer) transferResponse {
	return transferResponse{
		ID:                   t.ID,
		TransactionID:        t.TransactionID,
		SourceAccountID:      t.SourceAccountID,
		DestinationAccountID: t.DestinationAccountID,
		Side:                 t.Side,
		Amount:               t.Amount.String(),
		CreatedAt:            t.CreatedAt,
	}
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:        t.ID,
		Type:      t.Type,
		Amount:    t.Amount.String(),
		Currency:  t.Currency,
		CreatedAt: t.CreatedAt,
		Transfers: make([]transferResponse, 0, len(t.Transfers)),
	}
	if t.Category != "" {
		c := t.Category
		resp.Category = &c
		resp.CategoryLabel = dictionary.Label(c)
	}
	for _, leg := range t.Transfers {
		resp.Transfers = append(resp.Transfers, toTransferResponse(leg))
	}
	return resp
}

func toUserResponse(u ledger.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, CreatedAt: u.CreatedAt}
}
