// Package postgres provides a pgx-backed implementation of storage.Store.
//
// Every unit of work is a pgx transaction at read committed. Balance rows are
// locked with select ... for update so concurrent postings on one account are
// serialized. Inserts that may hit a unique key run inside a savepoint so the
// surrounding transaction survives the conflict.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/ledger"
	"github.com/tinoosan/pocketledger/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate applies the embedded migrations that have not run yet, in file name order.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	if _, err := s.pool.Exec(ctx, `
		create table if not exists schema_migrations (
			version text primary key,
			applied_at timestamptz not null default now()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	applied := make([]string, 0)
	for _, e := range entries {
		version := strings.TrimSuffix(e.Name(), ".sql")
		var exists bool
		if err := s.pool.QueryRow(ctx, `select exists(select 1 from schema_migrations where version = $1)`, version).Scan(&exists); err != nil {
			return applied, err
		}
		if exists {
			continue
		}
		body, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return applied, err
		}
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return applied, err
		}
		// Exec without arguments uses the simple protocol, so a file may hold many statements.
		if _, err := tx.Exec(ctx, string(body)); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("apply %s: %w", e.Name(), err)
		}
		if _, err := tx.Exec(ctx, `insert into schema_migrations (version) values ($1)`, version); err != nil {
			_ = tx.Rollback(ctx)
			return applied, err
		}
		if err := tx.Commit(ctx); err != nil {
			return applied, err
		}
		applied = append(applied, version)
	}
	return applied, nil
}

// Begin starts a unit of work.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx.Tx.
type Tx struct{ tx pgx.Tx }

func (t *Tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// execUnique runs one insert inside a savepoint and maps a unique violation to errs.ErrConflict.
func (t *Tx) execUnique(ctx context.Context, conflict string, sql string, args ...any) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := sp.Exec(ctx, sql, args...); err != nil {
		_ = sp.Rollback(ctx)
		if isUniqueViolation(err) {
			return errs.Conflict(conflict)
		}
		return err
	}
	return sp.Commit(ctx)
}

// --- Users ---

const userColumns = `id, first_name, last_name, email, password_hash, password_salt, created_at, deleted_at`

func scanUser(row pgx.Row) (ledger.User, error) {
	var u ledger.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.PasswordSalt, &u.CreatedAt, &u.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.User{}, errs.NotFound("user not found")
	}
	return u, err
}

func (t *Tx) UserByID(ctx context.Context, id uuid.UUID, lock bool) (ledger.User, error) {
	q := `select ` + userColumns + ` from users where id = $1`
	if lock {
		q += ` for share`
	}
	return scanUser(t.tx.QueryRow(ctx, q, id))
}

func (t *Tx) UserByEmail(ctx context.Context, email string) (ledger.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, email))
}

func (t *Tx) CreateUser(ctx context.Context, u ledger.User) error {
	return t.execUnique(ctx, "email already registered", `
		insert into users (`+userColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.PasswordSalt, u.CreatedAt, u.DeletedAt)
}

func (t *Tx) DeactivateUser(ctx context.Context, id uuid.UUID, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `update users set deleted_at = $1 where id = $2 and deleted_at is null`, at, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.NotFound("user not found")
	}
	return nil
}

// --- Accounts ---

const accountColumns = `id, user_id, name, currency, balance::text, created_at, deleted_at`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var name, balance string
	err := row.Scan(&a.ID, &a.UserID, &name, &a.Currency, &balance, &a.CreatedAt, &a.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.NotFound("account not found")
	}
	if err != nil {
		return ledger.Account{}, err
	}
	if a.Role, err = ledger.ParseRole(a.UserID, name); err != nil {
		return ledger.Account{}, err
	}
	if a.Balance, err = decimal.Parse(balance); err != nil {
		return ledger.Account{}, fmt.Errorf("parse balance: %w", err)
	}
	return a, nil
}

func forUpdate(lock bool) string {
	if lock {
		return " for update"
	}
	return ""
}

func (t *Tx) AccountByID(ctx context.Context, id uuid.UUID, lock bool) (ledger.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `select `+accountColumns+` from accounts where id = $1`+forUpdate(lock), id))
}

func (t *Tx) AccountByName(ctx context.Context, name, currency string, lock bool) (ledger.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `
		select `+accountColumns+` from accounts where name = $1 and currency = $2`+forUpdate(lock), name, currency))
}

func (t *Tx) AccountsByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	rows, err := t.tx.Query(ctx, `
		select `+accountColumns+` from accounts
		where user_id = $1 and deleted_at is null
		order by currency, name
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
	return t.execUnique(ctx, "account "+a.Name()+" "+a.Currency+" already exists", `
		insert into accounts (id, user_id, name, currency, balance, created_at, deleted_at)
		values ($1, $2, $3, $4, $5::numeric, $6, $7)
	`, a.ID, a.UserID, a.Name(), strings.ToUpper(a.Currency), a.Balance.String(), a.CreatedAt, a.DeletedAt)
}

func (t *Tx) SetAccountDeleted(ctx context.Context, id uuid.UUID, at *time.Time) error {
	ct, err := t.tx.Exec(ctx, `update accounts set deleted_at = $1 where id = $2`, at, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.NotFound("account not found")
	}
	return nil
}

// AddToBalance adds delta in SQL so the arithmetic happens against the locked row.
func (t *Tx) AddToBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (ledger.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `
		update accounts set balance = balance + $2::numeric
		where id = $1
		returning `+accountColumns, id, delta.String()))
}

// --- Transactions ---

func (t *Tx) CreateTransaction(ctx context.Context, tr ledger.Transaction) error {
	var category *string
	if tr.Category != "" {
		category = &tr.Category
	}
	if _, err := t.tx.Exec(ctx, `
		insert into transactions (id, user_id, type, amount, currency, category, created_at)
		values ($1, $2, $3, $4::numeric, $5, $6, $7)
	`, tr.ID, tr.UserID, string(tr.Type), tr.Amount.String(), tr.Currency, category, tr.CreatedAt); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	batch := &pgx.Batch{}
	for _, leg := range tr.Transfers {
		batch.Queue(`
			insert into transfers (id, transaction_id, source_account_id, destination_account_id, side, amount, created_at)
			values ($1, $2, $3, $4, $5, $6::numeric, $7)
		`, leg.ID, tr.ID, leg.SourceAccountID, leg.DestinationAccountID, string(leg.Side), leg.Amount.String(), leg.CreatedAt)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert transfers: %w", err)
	}
	return nil
}

const transferColumns = `tf.id, tf.transaction_id, tf.source_account_id, tf.destination_account_id, tf.side, tf.amount::text, tf.created_at`

func scanTransfer(row pgx.Row) (ledger.Transfer, error) {
	var leg ledger.Transfer
	var side, amount string
	if err := row.Scan(&leg.ID, &leg.TransactionID, &leg.SourceAccountID, &leg.DestinationAccountID, &side, &amount, &leg.CreatedAt); err != nil {
		return ledger.Transfer{}, err
	}
	leg.Side = ledger.Side(side)
	var err error
	if leg.Amount, err = decimal.Parse(amount); err != nil {
		return ledger.Transfer{}, err
	}
	return leg, nil
}

func (t *Tx) TransactionsByUser(ctx context.Context, userID uuid.UUID, currency string) ([]ledger.Transaction, error) {
	rows, err := t.tx.Query(ctx, `
		select id, user_id, type, amount::text, currency, category, created_at
		from transactions
		where user_id = $1 and ($2::text = '' or currency = $2::text)
		order by created_at asc, id asc
	`, userID, currency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Transaction, 0)
	idx := make(map[uuid.UUID]int)
	for rows.Next() {
		var tr ledger.Transaction
		var typ, amount string
		var category *string
		if err := rows.Scan(&tr.ID, &tr.UserID, &typ, &amount, &tr.Currency, &category, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.Type = ledger.TransactionType(typ)
		if category != nil {
			tr.Category = *category
		}
		if tr.Amount, err = decimal.Parse(amount); err != nil {
			return nil, err
		}
		idx[tr.ID] = len(out)
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	legRows, err := t.tx.Query(ctx, `
		select `+transferColumns+`
		from transfers tf
		where tf.transaction_id = any($1)
		order by tf.created_at asc, tf.side asc
	`, ids)
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

func (t *Tx) TransfersByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transfer, error) {
	rows, err := t.tx.Query(ctx, `
		select `+transferColumns+`
		from transfers tf
		where (tf.side = 'credit' and tf.source_account_id = $1)
		   or (tf.side = 'debit' and tf.destination_account_id = $1)
		order by tf.created_at asc, tf.id asc
	`, accountID)
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
	return t.execUnique(ctx, "token already exists", `
		insert into tokens (id, token, user_id, expire) values ($1, $2, $3, $4)
	`, tok.ID, tok.Value, tok.UserID, tok.Expire)
}

func (t *Tx) TokenByValue(ctx context.Context, value string) (ledger.Token, error) {
	var tok ledger.Token
	err := t.tx.QueryRow(ctx, `select id, token, user_id, expire from tokens where token = $1`, value).
		Scan(&tok.ID, &tok.Value, &tok.UserID, &tok.Expire)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Token{}, errs.NotFound("token not found")
	}
	return tok, err
}
