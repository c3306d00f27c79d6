package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/ledger"
	"github.com/tinoosan/pocketledger/internal/storage/memory"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, salt, err := HashPassword("qwerty123")
	require.NoError(t, err)
	assert.Len(t, salt, 2*saltBytes)
	assert.Len(t, hash, 2*keyBytes)
	assert.True(t, CheckPassword("qwerty123", hash, salt))
	assert.False(t, CheckPassword("test", hash, salt))

	hash2, salt2, err := HashPassword("qwerty123")
	require.NoError(t, err)
	assert.NotEqual(t, salt, salt2)
	assert.NotEqual(t, hash, hash2)
}

func TestNewTokenValue(t *testing.T) {
	a, err := NewTokenValue()
	require.NoError(t, err)
	b, err := NewTokenValue()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestGateway_IssueAndResolve(t *testing.T) {
	store := memory.New()
	user := ledger.User{ID: uuid.New(), Email: "ada@example.com"}
	store.SeedUser(user)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := NewGateway(store, Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	tok, err := g.Issue(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultTokenTTL), tok.Expire)

	got, err := g.Resolve(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got)

	_, err = g.Resolve(ctx, "")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = g.Resolve(ctx, "someInvalidToken")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = g.Issue(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGateway_ExpiryBoundary(t *testing.T) {
	store := memory.New()
	user := ledger.User{ID: uuid.New(), Email: "ada@example.com"}
	store.SeedUser(user)
	issuedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tok, err := NewGateway(store, Options{TTL: time.Hour, Now: func() time.Time { return issuedAt }}).
		Issue(context.Background(), user.ID)
	require.NoError(t, err)

	at := func(now time.Time) *Gateway {
		return NewGateway(store, Options{Now: func() time.Time { return now }})
	}
	_, err = at(tok.Expire.Add(-time.Nanosecond)).Resolve(context.Background(), tok.Value)
	assert.NoError(t, err)
	_, err = at(tok.Expire).Resolve(context.Background(), tok.Value)
	assert.ErrorIs(t, err, errs.ErrUnauthorized, "expire == now is expired")
	_, err = at(tok.Expire.Add(time.Second)).Resolve(context.Background(), tok.Value)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestGateway_DeactivatedUser(t *testing.T) {
	store := memory.New()
	user := ledger.User{ID: uuid.New(), Email: "ada@example.com"}
	store.SeedUser(user)
	g := NewGateway(store, Options{})
	tok, err := g.Issue(context.Background(), user.ID)
	require.NoError(t, err)

	gone := time.Now().UTC()
	user.DeletedAt = &gone
	store.SeedUser(user)
	_, err = g.Resolve(context.Background(), tok.Value)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = g.Issue(context.Background(), user.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
