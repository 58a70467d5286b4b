package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/ec-stock-reservation/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCounterStore(t *testing.T) (*CounterStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewClient(config.RedisConfig{Addr: mr.Addr(), Timeout: time.Second})
	t.Cleanup(func() { _ = client.Close() })
	return NewCounterStore(client, time.Second), mr
}

func TestKey(t *testing.T) {
	assert.Equal(t, "stock:42", Key(42))
}

func TestCounterStore_SetGet(t *testing.T) {
	store, mr := newTestCounterStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 7, 10))

	v, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	raw, err := mr.Get("stock:7")
	require.NoError(t, err)
	assert.Equal(t, "10", raw)
}

func TestCounterStore_GetMissing(t *testing.T) {
	store, _ := newTestCounterStore(t)

	_, err := store.Get(context.Background(), 99)

	assert.ErrorIs(t, err, ErrCounterNotFound)
}

func TestCounterStore_IncrDecrReturnPostValue(t *testing.T) {
	store, _ := newTestCounterStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, 1, 5))

	v, err := store.DecrBy(ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), v)

	v, err = store.IncrBy(ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestCounterStore_Delete(t *testing.T) {
	store, mr := newTestCounterStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, 3, 1))

	require.NoError(t, store.Delete(ctx, 3))

	assert.False(t, mr.Exists("stock:3"))
}

func TestCounterStore_Unavailable(t *testing.T) {
	store, mr := newTestCounterStore(t)
	mr.Close()

	_, err := store.DecrBy(context.Background(), 1, 1)

	assert.Error(t, err)
}
