package session_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/billforge/backend-billing/internal/session"
)

func newStore(t *testing.T) (session.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return session.Store{R: client, TTL: time.Minute}, mr
}

func TestIssueThenConsume(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, "inv-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := store.Consume(ctx, "inv-1")
	require.NoError(t, err)
	require.Equal(t, token, got)

	_, err = store.Consume(ctx, "inv-1")
	require.ErrorIs(t, err, session.ErrNoToken)
}

func TestReissueOverwrites(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	first, err := store.Issue(ctx, "inv-1")
	require.NoError(t, err)
	second, err := store.Issue(ctx, "inv-1")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	got, err := store.Consume(ctx, "inv-1")
	require.NoError(t, err)
	require.Equal(t, second, got)
}

func TestScopesAreIndependent(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	a, err := store.Issue(ctx, "inv-a")
	require.NoError(t, err)
	b, err := store.Issue(ctx, "inv-b")
	require.NoError(t, err)

	gotB, err := store.Consume(ctx, "inv-b")
	require.NoError(t, err)
	require.Equal(t, b, gotB)

	gotA, err := store.Consume(ctx, "inv-a")
	require.NoError(t, err)
	require.Equal(t, a, gotA)
}

func TestClearRemovesToken(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Issue(ctx, "inv-1")
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx, "inv-1"))

	_, err = store.Consume(ctx, "inv-1")
	require.ErrorIs(t, err, session.ErrNoToken)
}

func TestExpiredTokenIsGone(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	_, err := store.Issue(ctx, "inv-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Consume(ctx, "inv-1")
	require.ErrorIs(t, err, session.ErrNoToken)
}
