package user_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/pocketledger/internal/auth"
	"github.com/tinoosan/pocketledger/internal/errs"
	"github.com/tinoosan/pocketledger/internal/service/user"
	"github.com/tinoosan/pocketledger/internal/storage/memory"
)

func setup() (user.Service, *auth.Gateway) {
	store := memory.New()
	g := auth.NewGateway(store, auth.Options{})
	return user.New(store, g, user.Options{}), g
}

func TestRegister(t *testing.T) {
	svc, _ := setup()
	ctx := context.Background()

	_, err := svc.Register(ctx, user.Registration{Email: "hello@gmail", Password: "qwerty123"})
	assert.ErrorIs(t, err, errs.ErrInvalid)
	_, err = svc.Register(ctx, user.Registration{Email: "hello@gmail.com", Password: "short"})
	assert.ErrorIs(t, err, errs.ErrInvalid)

	u, err := svc.Register(ctx, user.Registration{Email: " Hello@Gmail.com ", FirstName: "X", LastName: "Y", Password: "qwerty123"})
	require.NoError(t, err)
	assert.Equal(t, "hello@gmail.com", u.Email)
	assert.NotEqual(t, "qwerty123", u.PasswordHash)
	assert.NotEmpty(t, u.PasswordSalt)

	_, err = svc.Register(ctx, user.Registration{Email: "hello@gmail.com", Password: "qwerty123"})
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestLoginAndDeactivate(t *testing.T) {
	svc, g := setup()
	ctx := context.Background()
	u, err := svc.Register(ctx, user.Registration{Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	tok, err := svc.Login(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Len(t, tok.Value, 64)
	resolved, err := g.Resolve(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, u.ID, resolved)

	require.NoError(t, svc.Deactivate(ctx, u.ID))
	_, err = g.Resolve(ctx, tok.Value)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = svc.Login(ctx, "ada@example.com", "correct horse")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	assert.ErrorIs(t, svc.Deactivate(ctx, u.ID), errs.ErrNotFound)
	assert.ErrorIs(t, svc.Deactivate(ctx, uuid.New()), errs.ErrNotFound)
}

func TestDeactivate_ConcurrentCallsSucceedOnce(t *testing.T) {
	svc, _ := setup()
	ctx := context.Background()
	u, err := svc.Register(ctx, user.Registration{Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	const n = 8
	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Deactivate(ctx, u.ID)
			if err == nil {
				ok.Add(1)
				return
			}
			assert.ErrorIs(t, err, errs.ErrNotFound)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok.Load())
}
