// Package user implements registration, login and deactivation.
package user

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/pocketledger/internal/auth"
	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/ledger"
	"github.com/tinoosan/pocketledger/internal/storage"
)

const minPasswordLen = 8

var reEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s.]+$`)

// Registration is the input to Register.
type Registration struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

type Service interface {
	Register(ctx context.Context, r Registration) (ledger.User, error)
	// Login checks credentials and issues a fresh token.
	Login(ctx context.Context, email, password string) (ledger.Token, error)
	Deactivate(ctx context.Context, userID uuid.UUID) error
}

type Options struct {
	TxTimeout time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

type service struct {
	store   storage.Store
	gateway *auth.Gateway
	opts    Options
	logger  *slog.Logger
}

func New(store storage.Store, gateway *auth.Gateway, opts Options) Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &service{store: store, gateway: gateway, opts: opts, logger: logger}
}

func (s *service) Register(ctx context.Context, r Registration) (ledger.User, error) {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if !reEmail.MatchString(email) {
		return ledger.User{}, errs.Invalid("email is invalid")
	}
	if len(r.Password) < minPasswordLen {
		return ledger.User{}, errs.Invalid("password must be at least 8 characters")
	}
	hash, salt, err := auth.HashPassword(r.Password)
	if err != nil {
		return ledger.User{}, err
	}
	u := ledger.User{
		ID:           uuid.New(),
		FirstName:    strings.TrimSpace(r.FirstName),
		LastName:     strings.TrimSpace(r.LastName),
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		CreatedAt:    s.opts.Now(),
	}
	err = storage.Run(ctx, s.store, s.opts.TxTimeout, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return ledger.User{}, err
	}
	s.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (ledger.Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u ledger.User
	err := storage.Run(ctx, s.store, s.opts.TxTimeout, func(ctx context.Context, tx storage.Tx) error {
		var err error
		u, err = tx.UserByEmail(ctx, email)
		return err
	})
	if errors.Is(err, errs.ErrNotFound) || (err == nil && !u.Live()) {
		return ledger.Token{}, errs.Unauthorized("invalid credentials")
	}
	if err != nil {
		return ledger.Token{}, err
	}
	if !auth.CheckPassword(password, u.PasswordHash, u.PasswordSalt) {
		return ledger.Token{}, errs.Unauthorized("invalid credentials")
	}
	tok, err := s.gateway.Issue(ctx, u.ID)
	if err != nil {
		return ledger.Token{}, err
	}
	s.logger.Info("token issued", "user_id", u.ID, "expire", tok.Expire)
	return tok, nil
}

// Deactivate soft-deletes the user. Accounts and history stay in place and the
// user's tokens stop resolving.
func (s *service) Deactivate(ctx context.Context, userID uuid.UUID) error {
	err := storage.Run(ctx, s.store, s.opts.TxTimeout, func(ctx context.Context, tx storage.Tx) error {
		return tx.DeactivateUser(ctx, userID, s.opts.Now())
	})
	if err != nil {
		return err
	}
	s.logger.Info("user deactivated", "user_id", userID)
	return nil
}
