package results

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"campaign-client/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisEmailCache_Get(t *testing.T) {
	email := models.Email{Subject: "Hello", Body: "World"}
	cached, _ := json.Marshal(email)
	key := "campaign:sess-1:email:Young Professionals"

	tests := []struct {
		name      string
		setupMock func(mock redismock.ClientMock)
		wantFound bool
		wantErr   bool
	}{
		{
			name: "cache hit",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet(key).SetVal(string(cached))
			},
			wantFound: true,
		},
		{
			name: "cache miss",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet(key).RedisNil()
			},
		},
		{
			name: "redis error",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet(key).SetErr(errors.New("connection refused"))
			},
			wantErr: true,
		},
		{
			name: "corrupt entry",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet(key).SetVal("{not json")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redisClient, redisMock := redismock.NewClientMock()
			tt.setupMock(redisMock)

			cache := NewRedisEmailCache(redisClient, "sess-1", time.Hour)
			got, found, err := cache.Get(context.Background(), "Young Professionals")

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantFound, found)
				if tt.wantFound {
					assert.Equal(t, email, got)
				}
			}
			assert.NoError(t, redisMock.ExpectationsWereMet())
		})
	}
}

func TestRedisEmailCache_Put(t *testing.T) {
	email := models.Email{Subject: "Hello", Body: "World"}
	data, _ := json.Marshal(email)

	redisClient, redisMock := redismock.NewClientMock()
	redisMock.ExpectSet("campaign:sess-1:email:A", data, 24*time.Hour).SetVal("OK")

	cache := NewRedisEmailCache(redisClient, "sess-1", 24*time.Hour)
	require.NoError(t, cache.Put(context.Background(), "A", email))
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisEmailCache_RoundTripAndClear(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniRedis(t)

	cache := NewRedisEmailCache(client, "sess-1", time.Hour)
	other := NewRedisEmailCache(client, "sess-2", time.Hour)

	require.NoError(t, cache.Put(ctx, "A", models.Email{Subject: "s", Body: "b"}))
	require.NoError(t, cache.Put(ctx, "B", models.Email{Subject: "s2", Body: "b2"}))
	require.NoError(t, other.Put(ctx, "A", models.Email{Subject: "x", Body: "y"}))

	assert.Equal(t, time.Hour, mr.TTL("campaign:sess-1:email:A"))

	got, ok, err := cache.Get(ctx, "B")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s2", got.Subject)

	require.NoError(t, cache.Clear(ctx))
	_, ok, err = cache.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = other.Get(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisEmailCache_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniRedis(t)

	cache := NewRedisEmailCache(client, "sess-1", time.Minute)
	require.NoError(t, cache.Put(ctx, "A", models.Email{Subject: "s"}))

	mr.FastForward(2 * time.Minute)
	_, ok, err := cache.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
}
