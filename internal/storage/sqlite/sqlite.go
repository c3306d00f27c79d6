/*
Package sqlite provides a SQLite-backed implementation of storage.Store.

CONCURRENCY:

	The database is opened with _txlock=immediate, so every unit of work starts
	with BEGIN IMMEDIATE and holds the single writer lock until it ends. Units
	are therefore serialized and a read-modify-write of a balance can never be
	lost. Readers outside a unit are not blocked thanks to WAL mode.

TIMESTAMPS AND AMOUNTS:

	Timestamps are stored as fixed-width UTC text so that lexical order is
	chronological. Decimals are stored as text and parsed with govalues/decimal.

USAGE:

	store, err := sqlite.New("./data/ledger.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/mattn/go-sqlite3"

	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/ledger"
	"github.com/tinoosan/pocketledger/internal/storage"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at path.
func New(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Ready pings the database.
func (s *Store) Ready(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		password_salt TEXT NOT NULL,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		deleted_at TEXT,
		UNIQUE (name, currency)
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL CHECK (type IN ('income', 'pay')),
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		category TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		source_account_id TEXT NOT NULL REFERENCES accounts(id),
		destination_account_id TEXT NOT NULL REFERENCES accounts(id),
		side TEXT NOT NULL CHECK (side IN ('debit', 'credit')),
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transfers_transaction ON transfers(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_transfers_source ON transfers(source_account_id);
	CREATE INDEX IF NOT EXISTS idx_transfers_destination ON transfers(destination_account_id);

	CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		token TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL REFERENCES users(id),
		expire TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Begin starts an immediate (write-locked) transaction.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a *sql.Tx.
type Tx struct{ tx *sql.Tx }

func (t *Tx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *Tx) Rollback(context.Context) error { return t.tx.Rollback() }

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// --- Users ---

const userColumns = `id, first_name, last_name, email, password_hash, password_salt, created_at, deleted_at`

func scanUser(row *sql.Row) (ledger.User, error) {
	var u ledger.User
	var created string
	var deleted sql.NullString
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.PasswordSalt, &created, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, errs.NotFound("user not found")
	}
	if err != nil {
		return ledger.User{}, err
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return ledger.User{}, err
	}
	if u.DeletedAt, err = parseNullTime(deleted); err != nil {
		return ledger.User{}, err
	}
	return u, nil
}

func (t *Tx) UserByID(ctx context.Context, id uuid.UUID, _ bool) (ledger.User, error) {
	return scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (t *Tx) UserByEmail(ctx context.Context, email string) (ledger.User, error) {
	return scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (t *Tx) CreateUser(ctx context.Context, u ledger.User) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.PasswordSalt, formatTime(u.CreatedAt), nullTime(u.DeletedAt))
	if isUniqueViolation(err) {
		return errs.Conflict("email already registered")
	}
	return err
}

func (t *Tx) DeactivateUser(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, formatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("user not found")
	}
	return nil
}

// --- Accounts ---

const accountColumns = `id, user_id, name, currency, balance, created_at, deleted_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanAccount(row rowScanner) (ledger.Account, error) {
	var a ledger.Account
	var name, balance, created string
	var deleted sql.NullString
	if err := row.Scan(&a.ID, &a.UserID, &name, &a.Currency, &balance, &created, &deleted); err != nil {
		return ledger.Account{}, err
	}
	var err error
	if a.Role, err = ledger.ParseRole(a.UserID, name); err != nil {
		return ledger.Account{}, err
	}
	if a.Balance, err = decimal.Parse(balance); err != nil {
		return ledger.Account{}, fmt.Errorf("parse balance: %w", err)
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return ledger.Account{}, err
	}
	if a.DeletedAt, err = parseNullTime(deleted); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func notFoundAccount(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound("account not found")
	}
	return err
}

// AccountByID ignores lock: the immediate transaction already owns the writer lock.
func (t *Tx) AccountByID(ctx context.Context, id uuid.UUID, _ bool) (ledger.Account, error) {
	a, err := scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	return a, notFoundAccount(err)
}

func (t *Tx) AccountByName(ctx context.Context, name, currency string, _ bool) (ledger.Account, error) {
	a, err := scanAccount(t.tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE name = ? AND currency = ?
	`, name, currency))
	return a, notFoundAccount(err)
}

func (t *Tx) AccountsByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY currency, name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *Tx) CreateAccount(ctx context.Context, a ledger.Account) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.Name(), strings.ToUpper(a.Currency), a.Balance.String(), formatTime(a.CreatedAt), nullTime(a.DeletedAt))
	if isUniqueViolation(err) {
		return errs.Conflict("account " + a.Name() + " " + a.Currency + " already exists")
	}
	return err
}

func (t *Tx) SetAccountDeleted(ctx context.Context, id uuid.UUID, at *time.Time) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET deleted_at = ? WHERE id = ?`, nullTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("account not found")
	}
	return nil
}

// AddToBalance reads, adds in Go and writes back; safe under the writer lock.
func (t *Tx) AddToBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (ledger.Account, error) {
	a, err := t.AccountByID(ctx, id, true)
	if err != nil {
		return ledger.Account{}, err
	}
	bal, err := a.Balance.Add(delta)
	if err != nil {
		return ledger.Account{}, errs.Invalid("balance overflow")
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, bal.String(), id); err != nil {
		return ledger.Account{}, err
	}
	a.Balance = bal
	return a, nil
}

// --- Transactions ---

func (t *Tx) CreateTransaction(ctx context.Context, tr ledger.Transaction) error {
	var category any
	if tr.Category != "" {
		category = tr.Category
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, currency, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tr.ID, tr.UserID, string(tr.Type), tr.Amount.String(), tr.Currency, category, formatTime(tr.CreatedAt)); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	for _, leg := range tr.Transfers {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO transfers (id, transaction_id, source_account_id, destination_account_id, side, amount, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, leg.ID, tr.ID, leg.SourceAccountID, leg.DestinationAccountID, string(leg.Side), leg.Amount.String(), formatTime(leg.CreatedAt)); err != nil {
			return fmt.Errorf("insert transfer: %w", err)
		}
	}
	return nil
}

func (t *Tx) TransactionsByUser(ctx context.Context, userID uuid.UUID, currency string) ([]ledger.Transaction, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, user_id, type, amount, currency, category, created_at
		FROM transactions
		WHERE user_id = ? AND (? = '' OR currency = ?)
		ORDER BY created_at, rowid
	`, userID, currency, currency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Transaction, 0)
	idx := make(map[uuid.UUID]int)
	for rows.Next() {
		var tr ledger.Transaction
		var typ, amount, created string
		var category sql.NullString
		if err := rows.Scan(&tr.ID, &tr.UserID, &typ, &amount, &tr.Currency, &category, &created); err != nil {
			return nil, err
		}
		tr.Type = ledger.TransactionType(typ)
		tr.Category = category.String
		if tr.Amount, err = decimal.Parse(amount); err != nil {
			return nil, err
		}
		if tr.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		idx[tr.ID] = len(out)
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}
	legRows, err := t.tx.QueryContext(ctx, `
		SELECT `+transferColumns+`
		FROM transfers tf JOIN transactions tx ON tx.id = tf.transaction_id
		WHERE tx.user_id = ? AND (? = '' OR tx.currency = ?)
		ORDER BY tf.created_at, tf.rowid
	`, userID, currency, currency)
	if err != nil {
		return nil, err
	}
	defer legRows.Close()
	for legRows.Next() {
		leg, err := scanTransfer(legRows)
		if err != nil {
			return nil, err
		}
		if i, ok := idx[leg.TransactionID]; ok {
			out[i].Transfers = append(out[i].Transfers, leg)
		}
	}
	return out, legRows.Err()
}

const transferColumns = `tf.id, tf.transaction_id, tf.source_account_id, tf.destination_account_id, tf.side, tf.amount, tf.created_at`

func scanTransfer(row rowScanner) (ledger.Transfer, error) {
	var leg ledger.Transfer
	var side, amount, created string
	if err := row.Scan(&leg.ID, &leg.TransactionID, &leg.SourceAccountID, &leg.DestinationAccountID, &side, &amount, &created); err != nil {
		return ledger.Transfer{}, err
	}
	leg.Side = ledger.Side(side)
	var err error
	if leg.Amount, err = decimal.Parse(amount); err != nil {
		return ledger.Transfer{}, err
	}
	if leg.CreatedAt, err = parseTime(created); err != nil {
		return ledger.Transfer{}, err
	}
	return leg, nil
}

func (t *Tx) TransfersByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transfer, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+transferColumns+`
		FROM transfers tf
		WHERE (tf.side = 'credit' AND tf.source_account_id = ?)
		   OR (tf.side = 'debit' AND tf.destination_account_id = ?)
		ORDER BY tf.created_at, tf.rowid
	`, accountID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Transfer, 0)
	for rows.Next() {
		leg, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, leg)
	}
	return out, rows.Err()
}

// --- Tokens ---

func (t *Tx) CreateToken(ctx context.Context, tok ledger.Token) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tokens (id, token, user_id, expire) VALUES (?, ?, ?, ?)
	`, tok.ID, tok.Value, tok.UserID, formatTime(tok.Expire))
	if isUniqueViolation(err) {
		return errs.Conflict("token already exists")
	}
	return err
}

func (t *Tx) TokenByValue(ctx context.Context, value string) (ledger.Token, error) {
	var tok ledger.Token
	var expire string
	err := t.tx.QueryRowContext(ctx, `SELECT id, token, user_id, expire FROM tokens WHERE token = ?`, value).
		Scan(&tok.ID, &tok.Value, &tok.UserID, &expire)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Token{}, errs.NotFound("token not found")
	}
	if err != nil {
		return ledger.Token{}, err
	}
	if tok.Expire, err = parseTime(expire); err != nil {
		return ledger.Token{}, err
	}
	return tok, nil
}

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.ReadyChecker = (*Store)(nil)
	_ storage.Tx           = (*Tx)(nil)
)
