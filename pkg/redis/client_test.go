package redis

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commerce-core/pkg/config"
)

func TestSetNXIsFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, "k", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.SetNX(ctx, "k", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	value, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "owner-a", value)

	require.NoError(t, client.Set(ctx, "k", "final", time.Minute))
	value, err = client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "final", value)

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	assert.True(t, IsNil(err))
}

func TestCompareAndDeleteOnlyRemovesOwnValue(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	mock.data["lease"] = "owner-a"

	removed, err := client.CompareAndDelete(ctx, "lease", "owner-b")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, "owner-a", mock.data["lease"])

	removed, err = client.CompareAndDelete(ctx, "lease", "owner-a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NotContains(t, mock.data, "lease")
}

func TestCompareAndExpireChecksOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	mock.data["lease"] = "owner-a"

	extended, err := client.CompareAndExpire(ctx, "lease", "owner-a", 90*time.Second)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Equal(t, 90*time.Second, mock.ttl["lease"])

	extended, err = client.CompareAndExpire(ctx, "lease", "owner-b", time.Second)
	require.NoError(t, err)
	assert.False(t, extended)
}

func TestUninitializedClient(t *testing.T) {
	var nilClient *Client
	assert.ErrorIs(t, nilClient.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, nilClient.Close())

	client := &Client{}
	_, err := client.CompareAndDelete(context.Background(), "k", "v")
	assert.ErrorIs(t, err, errNotInitialized)
}

func TestKeys(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "cc:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "cc:lock:cron", client.LockKey("cron"))
	assert.Equal(t, "cc:idempotency:id", client.IdempotencyKey(" ", "id"))
	assert.Equal(t, "cc", Key())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://localhost:6379/2",
		PoolSize:    10,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 4})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 4, opts.DB)
}

// mockCmdable keeps keys in memory. Script calls are dispatched on the
// script hash so the Lua bodies above keep their real semantics.
type mockCmdable struct {
	redis.Scripter
	data map[string]string
	ttl  map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	m.ttl[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttl[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			n++
		}
		delete(m.data, key)
		delete(m.ttl, key)
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	if m.data[key] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch sha {
	case compareAndDelete.Hash():
		delete(m.data, key)
		delete(m.ttl, key)
	case compareAndExpire.Hash():
		ms, _ := strconv.ParseInt(fmt.Sprint(args[1]), 10, 64)
		m.ttl[key] = time.Duration(ms) * time.Millisecond
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script %s", sha))
	}
	return redis.NewCmdResult(int64(1), nil)
}
