package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nickcecere/qdrant-mcp/internal/config"
)

func TestNew(t *testing.T) {
	kv, err := New(config.CacheConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, kv)

	kv, err = New(config.CacheConfig{Backend: "memory", MaxEntries: 2})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, kv)

	_, err = New(config.CacheConfig{Backend: "memcached"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	value := []byte("vector")
	require.NoError(t, m.Set(ctx, "k", value, 0))
	value[0] = 'X' // stored value is a copy

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("vector"), got)

	require.NoError(t, m.Set(ctx, "k", []byte("other"), 0))
	got, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("other"), got)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	now = now.Add(30 * time.Second)
	_, err := m.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	_, err := m.Get(ctx, "a") // a is now most recent
	require.NoError(t, err)
	require.NoError(t, m.Set(ctx, "c", []byte("3"), 0))

	_, err = m.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = m.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestRedisGet(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "emb:1")).
		Return(mock.Result(mock.RedisBlobString("value")))

	r := NewRedisWithClient(c)
	data, err := r.Get(context.Background(), "emb:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), data)
}

func TestRedisGetNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "emb:1")).
		Return(mock.Result(mock.RedisNil()))

	r := NewRedisWithClient(c)
	_, err := r.Get(context.Background(), "emb:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisGetError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "emb:1")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	r := NewRedisWithClient(c)
	_, err := r.Get(context.Background(), "emb:1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisSetWithTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return len(cmd) == 5 && cmd[0] == "SET" && cmd[1] == "emb:1" && cmd[2] == "abc" && cmd[3] == "EX" && cmd[4] == "60"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	r := NewRedisWithClient(c)
	require.NoError(t, r.Set(context.Background(), "emb:1", []byte("abc"), time.Minute))
}

func TestRedisSetWithoutTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "emb:1", "abc")).
		Return(mock.Result(mock.RedisString("OK")))

	r := NewRedisWithClient(c)
	require.NoError(t, r.Set(context.Background(), "emb:1", []byte("abc"), 0))
}

func TestNewRedisRequiresAddress(t *testing.T) {
	_, err := NewRedis(RedisConfig{})
	assert.Error(t, err)
}
