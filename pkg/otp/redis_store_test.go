package otp

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())

	return client, func() {
		client.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRedisStore(client, "test")
	now := time.Now().Truncate(time.Millisecond)
	phone := "9876543210"

	t.Run("put replaces and get round trips", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, phone, Record{Hash: HashCode("111111"), ExpiresAt: now.Add(time.Minute)}))
		require.NoError(t, store.Put(ctx, phone, Record{Hash: HashCode("222222"), ExpiresAt: now.Add(2 * time.Minute)}))

		rec, ok, err := store.Get(ctx, phone)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, HashCode("222222"), rec.Hash)
		assert.True(t, rec.ExpiresAt.Equal(now.Add(2*time.Minute)))

		ttl, err := client.PTTL(ctx, "test:otp:"+phone).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Hour)
	})

	t.Run("consume outcomes", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, phone, Record{Hash: HashCode("123456"), ExpiresAt: now.Add(time.Minute)}))

		res, err := store.Consume(ctx, phone, HashCode("654321"), now)
		require.NoError(t, err)
		assert.Equal(t, ConsumeMismatch, res)

		res, err = store.Consume(ctx, phone, HashCode("123456"), now)
		require.NoError(t, err)
		assert.Equal(t, ConsumeMatched, res)

		res, err = store.Consume(ctx, phone, HashCode("123456"), now)
		require.NoError(t, err)
		assert.Equal(t, ConsumeNotFound, res)

		require.NoError(t, store.Put(ctx, phone, Record{Hash: HashCode("123456"), ExpiresAt: now.Add(time.Minute)}))
		res, err = store.Consume(ctx, phone, HashCode("123456"), now.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, ConsumeExpired, res)

		_, ok, err := store.Get(ctx, phone)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("compare and delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, phone, Record{Hash: HashCode("222222"), ExpiresAt: now.Add(time.Minute)}))

		deleted, err := store.CompareAndDelete(ctx, phone, HashCode("111111"))
		require.NoError(t, err)
		assert.False(t, deleted)

		deleted, err = store.CompareAndDelete(ctx, phone, HashCode("222222"))
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("manager over redis", func(t *testing.T) {
		m := NewManager(store)
		code, err := m.RequestCode(ctx, phone)
		require.NoError(t, err)
		require.NoError(t, m.VerifyCode(ctx, phone, code))
		assert.ErrorIs(t, m.VerifyCode(ctx, phone, code), ErrOtpNotFound)
	})
}
