package orderstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ack, err := store.Append(ctx, samOrder())
	require.NoError(t, err)
	assert.Equal(t, "0", ack.Ref)

	store.FailWith(errors.New("disk full"))
	_, err = store.Append(ctx, samOrder())
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.EqualError(t, err, "orderstore: memory append failed: disk full")

	store.FailWith(nil)
	_, err = store.Append(ctx, samOrder())
	require.NoError(t, err)

	assert.Len(t, store.Orders(), 2)
	assert.Equal(t, 3, store.Calls())

	require.NoError(t, store.Close())
	_, err = store.Append(ctx, samOrder())
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestMemoryStore_CopiesExtras(t *testing.T) {
	store := NewMemoryStore()
	o := samOrder()
	_, err := store.Append(context.Background(), o)
	require.NoError(t, err)

	o.Extras[0] = "changed"
	assert.Equal(t, "Vanilla syrup", store.Orders()[0].Extras[0])
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Path = filepath.Join(t.TempDir(), "orders.json")
		store, err := Open(ctx, cfg)
		require.NoError(t, err)
		defer store.Close()
		assert.Equal(t, BackendFile, store.Backend())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := DefaultConfig()
		cfg.Backend = BackendRedis
		cfg.Redis.Addr = mr.Addr()
		cfg.Redis.Prefix = "test"

		store, err := Open(ctx, cfg)
		require.NoError(t, err)
		_, err = store.Append(ctx, samOrder())
		require.NoError(t, err)
		require.NoError(t, store.Close())
		assert.True(t, mr.Exists("test:orders"))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := DefaultConfig()
		cfg.Backend = BackendRedis
		cfg.Redis.Addr = addr
		_, err := Open(ctx, cfg)
		assert.Error(t, err)
	})

	t.Run("memory", func(t *testing.T) {
		store, err := Open(ctx, Config{Backend: BackendMemory})
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, store.Backend())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(ctx, Config{Backend: "s3"})
		assert.ErrorContains(t, err, "s3")
	})
}
