package redisledger

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumehub/internal/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewWithClient(client)
}

func TestSaveAndGet(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.RefreshToken(ctx, 42)
	require.ErrorIs(t, err, storage.ErrTokenNotFound)

	created, err := ledger.SaveRefreshToken(ctx, 42, "token-1", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), created.UserID)
	assert.Equal(t, "token-1", created.Token)
	assert.Equal(t, "127.0.0.1", created.IP)

	got, err := ledger.RefreshToken(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, created.Token, got.Token)
}

func TestSaveIsConditional(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.SaveRefreshToken(ctx, 42, "token-1", "127.0.0.1")
	require.NoError(t, err)

	_, err = ledger.SaveRefreshToken(ctx, 42, "token-2", "10.0.0.1")
	require.ErrorIs(t, err, storage.ErrTokenExists)

	// The winner's record is untouched.
	got, err := ledger.RefreshToken(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "token-1", got.Token)
	assert.Equal(t, "127.0.0.1", got.IP)
}

func TestConcurrentCreateOneWinner(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan string, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			token := "token-" + string(rune('a'+n))
			if _, err := ledger.SaveRefreshToken(ctx, 7, token, "127.0.0.1"); err == nil {
				wins <- token
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1)

	got, err := ledger.RefreshToken(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, winners[0], got.Token)
}

func TestRotatePreservesMetadata(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	created, err := ledger.SaveRefreshToken(ctx, 42, "token-1", "192.168.0.1")
	require.NoError(t, err)

	rotated, err := ledger.RotateRefreshToken(ctx, 42, "token-2")
	require.NoError(t, err)
	assert.Equal(t, "token-2", rotated.Token)
	assert.Equal(t, "192.168.0.1", rotated.IP)
	assert.Equal(t, created.CreatedAt, rotated.CreatedAt)
}

func TestRotateMissingRecord(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.RotateRefreshToken(ctx, 42, "token-2")
	require.ErrorIs(t, err, storage.ErrTokenNotFound)
}
