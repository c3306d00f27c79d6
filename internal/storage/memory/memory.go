// Package memory provides a simple in-memory implementation used for development and tests.
// One unit of work runs at a time: Begin acquires the store and Commit/Rollback release it.
// Writes are applied in place and undone on rollback.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/ledger"
	"github.com/tinoosan/pocketledger/internal/storage"
)

var errTxDone = errors.New("memory: unit of work already finished")

// Store is an in-memory implementation of storage.Store.
type Store struct {
	// sem is a one-slot semaphore; holding it means owning the store.
	sem chan struct{}

	users        map[uuid.UUID]ledger.User
	userByEmail  map[string]uuid.UUID
	accounts     map[uuid.UUID]ledger.Account
	accountByKey map[string]uuid.UUID
	transactions map[uuid.UUID]ledger.Transaction
	// txOrder keeps transaction ids in insertion (created_at) order.
	txOrder   []uuid.UUID
	transfers map[uuid.UUID][]ledger.Transfer // by account id
	tokens    map[string]ledger.Token
}

// New constructs an empty in-memory store.
func New() *Store {
	s := &Store{sem: make(chan struct{}, 1)}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.users = make(map[uuid.UUID]ledger.User)
	s.userByEmail = make(map[string]uuid.UUID)
	s.accounts = make(map[uuid.UUID]ledger.Account)
	s.accountByKey = make(map[string]uuid.UUID)
	s.transactions = make(map[uuid.UUID]ledger.Transaction)
	s.txOrder = nil
	s.transfers = make(map[uuid.UUID][]ledger.Transfer)
	s.tokens = make(map[string]ledger.Token)
}

// Reset drops all data. It waits for any running unit of work.
func (s *Store) Reset() {
	s.sem <- struct{}{}
	s.reset()
	<-s.sem
}

// SeedUser inserts a user directly, outside any unit of work.
func (s *Store) SeedUser(u ledger.User) {
	s.sem <- struct{}{}
	s.users[u.ID] = u
	if u.Email != "" {
		s.userByEmail[strings.ToLower(u.Email)] = u.ID
	}
	<-s.sem
}

// SeedAccount inserts an account directly, outside any unit of work.
func (s *Store) SeedAccount(a ledger.Account) {
	s.sem <- struct{}{}
	s.accounts[a.ID] = a
	s.accountByKey[accountKey(a.Name(), a.Currency)] = a.ID
	<-s.sem
}

// Ready always succeeds for the in-memory store.
func (s *Store) Ready(context.Context) error { return nil }

// Begin waits for exclusive access to the store or for ctx to end.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	select {
	case s.sem <- struct{}{}:
		return &Tx{s: s, ctx: ctx}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Tx is a unit of work over the in-memory store.
type Tx struct {
	s    *Store
	ctx  context.Context
	undo []func()
	done bool
}

func accountKey(name, currency string) string { return name + "|" + currency }

// check fails once the unit is finished or its context has ended, so a
// timed-out unit cannot keep writing before the caller rolls it back.
func (t *Tx) check(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	if err := t.ctx.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// Commit keeps all writes and releases the store.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	if err := t.ctx.Err(); err != nil {
		t.rollback()
		return err
	}
	t.done = true
	t.undo = nil
	<-t.s.sem
	return nil
}

// Rollback undoes all writes and releases the store.
func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.rollback()
	return nil
}

func (t *Tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.done = true
	<-t.s.sem
}

// --- Users ---

// UserByID returns a user by id.
func (t *Tx) UserByID(ctx context.Context, id uuid.UUID, _ bool) (ledger.User, error) {
	if err := t.check(ctx); err != nil {
		return ledger.User{}, err
	}
	u, ok := t.s.users[id]
	if !ok {
		return ledger.User{}, errs.NotFound("user not found")
	}
	return u, nil
}

// UserByEmail returns a user by (case-insensitive) email.
func (t *Tx) UserByEmail(ctx context.Context, email string) (ledger.User, error) {
	if err := t.check(ctx); err != nil {
		return ledger.User{}, err
	}
	id, ok := t.s.userByEmail[strings.ToLower(email)]
	if !ok {
		return ledger.User{}, errs.NotFound("user not found")
	}
	return t.s.users[id], nil
}

// CreateUser stores a user with a unique email.
func (t *Tx) CreateUser(ctx context.Context, u ledger.User) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	key := strings.ToLower(u.Email)
	if _, ok := t.s.userByEmail[key]; ok {
		return errs.Conflict("email already registered")
	}
	t.s.users[u.ID] = u
	t.s.userByEmail[key] = u.ID
	t.undo = append(t.undo, func() {
		delete(t.s.users, u.ID)
		delete(t.s.userByEmail, key)
	})
	return nil
}

// DeactivateUser soft-deletes a live user.
func (t *Tx) DeactivateUser(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	prev, ok := t.s.users[id]
	if !ok || !prev.Live() {
		return errs.NotFound("user not found")
	}
	u := prev
	u.DeletedAt = &at
	t.s.users[id] = u
	t.undo = append(t.undo, func() { t.s.users[id] = prev })
	return nil
}

// --- Accounts ---

// AccountByID returns an account by id. Locking is implicit: the whole store is held.
func (t *Tx) AccountByID(ctx context.Context, id uuid.UUID, _ bool) (ledger.Account, error) {
	if err := t.check(ctx); err != nil {
		return ledger.Account{}, err
	}
	a, ok := t.s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.NotFound("account not found")
	}
	return a, nil
}

// AccountByName returns the account stored under (name, currency).
func (t *Tx) AccountByName(ctx context.Context, name, currency string, _ bool) (ledger.Account, error) {
	if err := t.check(ctx); err != nil {
		return ledger.Account{}, err
	}
	id, ok := t.s.accountByKey[accountKey(name, currency)]
	if !ok {
		return ledger.Account{}, errs.NotFound("account not found")
	}
	return t.s.accounts[id], nil
}

// AccountsByUser returns live accounts for a user ordered by currency and name.
func (t *Tx) AccountsByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	out := make([]ledger.Account, 0)
	for _, a := range t.s.accounts {
		if a.UserID == userID && a.Live() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Currency != out[j].Currency {
			return out[i].Currency < out[j].Currency
		}
		return out[i].Name() < out[j].Name()
	})
	return out, nil
}

// CreateAccount persists a new account under its unique (name, currency) key.
func (t *Tx) CreateAccount(ctx context.Context, a ledger.Account) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	key := accountKey(a.Name(), a.Currency)
	if _, ok := t.s.accountByKey[key]; ok {
		return errs.Conflict("account " + a.Name() + " " + a.Currency + " already exists")
	}
	t.s.accounts[a.ID] = a
	t.s.accountByKey[key] = a.ID
	t.undo = append(t.undo, func() {
		delete(t.s.accounts, a.ID)
		delete(t.s.accountByKey, key)
	})
	return nil
}

// SetAccountDeleted sets or clears the soft-delete marker.
func (t *Tx) SetAccountDeleted(ctx context.Context, id uuid.UUID, at *time.Time) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	prev, ok := t.s.accounts[id]
	if !ok {
		return errs.NotFound("account not found")
	}
	a := prev
	a.DeletedAt = at
	t.s.accounts[id] = a
	t.undo = append(t.undo, func() { t.s.accounts[id] = prev })
	return nil
}

// AddToBalance applies delta to the account balance.
func (t *Tx) AddToBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (ledger.Account, error) {
	if err := t.check(ctx); err != nil {
		return ledger.Account{}, err
	}
	prev, ok := t.s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.NotFound("account not found")
	}
	bal, err := prev.Balance.Add(delta)
	if err != nil {
		return ledger.Account{}, errs.Invalid("balance overflow")
	}
	a := prev
	a.Balance = bal
	t.s.accounts[id] = a
	t.undo = append(t.undo, func() { t.s.accounts[id] = prev })
	return a, nil
}

// --- Transactions ---

// CreateTransaction stores a transaction and indexes its transfers by account.
func (t *Tx) CreateTransaction(ctx context.Context, tr ledger.Transaction) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.s.transactions[tr.ID]; ok {
		return errs.Conflict("transaction already exists")
	}
	t.s.transactions[tr.ID] = tr
	t.s.txOrder = append(t.s.txOrder, tr.ID)
	for _, leg := range tr.Transfers {
		t.s.transfers[leg.AccountID()] = append(t.s.transfers[leg.AccountID()], leg)
	}
	t.undo = append(t.undo, func() {
		delete(t.s.transactions, tr.ID)
		t.s.txOrder = t.s.txOrder[:len(t.s.txOrder)-1]
		for _, leg := range tr.Transfers {
			legs := t.s.transfers[leg.AccountID()]
			t.s.transfers[leg.AccountID()] = legs[:len(legs)-1]
		}
	})
	return nil
}

// TransactionsByUser lists a user's transactions in insertion order.
func (t *Tx) TransactionsByUser(ctx context.Context, userID uuid.UUID, currency string) ([]ledger.Transaction, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	out := make([]ledger.Transaction, 0)
	for _, id := range t.s.txOrder {
		tr := t.s.transactions[id]
		if tr.UserID != userID || (currency != "" && tr.Currency != currency) {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

// TransfersByAccount lists the legs that moved an account's balance.
func (t *Tx) TransfersByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transfer, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	legs := t.s.transfers[accountID]
	out := make([]ledger.Transfer, len(legs))
	copy(out, legs)
	return out, nil
}

// --- Tokens ---

// CreateToken stores a token with a unique value.
func (t *Tx) CreateToken(ctx context.Context, tok ledger.Token) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.s.tokens[tok.Value]; ok {
		return errs.Conflict("token already exists")
	}
	t.s.tokens[tok.Value] = tok
	t.undo = append(t.undo, func() { delete(t.s.tokens, tok.Value) })
	return nil
}

// TokenByValue resolves a token.
func (t *Tx) TokenByValue(ctx context.Context, value string) (ledger.Token, error) {
	if err := t.check(ctx); err != nil {
		return ledger.Token{}, err
	}
	tok, ok := t.s.tokens[value]
	if !ok {
		return ledger.Token{}, errs.NotFound("token not found")
	}
	return tok, nil
}
