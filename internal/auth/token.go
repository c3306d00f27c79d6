// Package auth resolves bearer tokens to users and issues new tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/ledger"
	"github.com/tinoosan/pocketledger/internal/storage"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 6 * time.Hour

// tokenBytes random bytes render as 64 hex characters.
const tokenBytes = 32

// Options configures a Gateway. Zero values are usable.
type Options struct {
	TTL       time.Duration
	TxTimeout time.Duration
	Now       func() time.Time
}

// Gateway issues tokens and resolves them back to user ids.
type Gateway struct {
	store storage.Store
	opts  Options
}

func NewGateway(store storage.Store, opts Options) *Gateway {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTokenTTL
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Gateway{store: store, opts: opts}
}

// NewTokenValue returns a random opaque token.
func NewTokenValue() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Resolve returns the user behind token. Missing, unknown and expired tokens,
// and tokens of deactivated users, all fail with errs.ErrUnauthorized.
// A token whose expiry equals the current time is expired.
func (g *Gateway) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, errs.Unauthorized("token required")
	}
	var userID uuid.UUID
	err := storage.Run(ctx, g.store, g.opts.TxTimeout, func(ctx context.Context, tx storage.Tx) error {
		tok, err := tx.TokenByValue(ctx, token)
		if errors.Is(err, errs.ErrNotFound) {
			return errs.Unauthorized("token is invalid or expired")
		}
		if err != nil {
			return err
		}
		if tok.Expired(g.opts.Now()) {
			return errs.Unauthorized("token is invalid or expired")
		}
		u, err := tx.UserByID(ctx, tok.UserID, false)
		if errors.Is(err, errs.ErrNotFound) || (err == nil && !u.Live()) {
			return errs.Unauthorized("user is deactivated")
		}
		if err != nil {
			return err
		}
		userID = u.ID
		return nil
	})
	return userID, err
}

// Issue creates a token for a live user.
func (g *Gateway) Issue(ctx context.Context, userID uuid.UUID) (ledger.Token, error) {
	var out ledger.Token
	err := storage.Run(ctx, g.store, g.opts.TxTimeout, func(ctx context.Context, tx storage.Tx) error {
		u, err := tx.UserByID(ctx, userID, true)
		if errors.Is(err, errs.ErrNotFound) || (err == nil && !u.Live()) {
			return errs.NotFound("user not found")
		}
		if err != nil {
			return err
		}
		value, err := NewTokenValue()
		if err != nil {
			return err
		}
		tok := ledger.Token{
			ID:     uuid.New(),
			Value:  value,
			UserID: userID,
			Expire: g.opts.Now().Add(g.opts.TTL),
		}
		if err := tx.CreateToken(ctx, tok); err != nil {
			return err
		}
		out = tok
		return nil
	})
	return out, err
}
