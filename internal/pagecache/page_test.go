package pagecache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type memRedis struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	fail error
}

func newMemRedis() *memRedis {
	return &memRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	switch v, ok := m.data[key]; {
	case m.fail != nil:
		cmd.SetErr(m.fail)
	case !ok:
		cmd.SetErr(redis.Nil)
	default:
		cmd.SetVal(string(v))
	}
	return cmd
}

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.([]byte)
	m.ttls[key] = ttl
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (m *memRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newMemRedis()
	c := New(r, 0, quiet())

	_, ok := c.Get(ctx, "joao-maria")
	assert.False(t, ok)

	c.Set(ctx, "joao-maria", []byte("<html>"))
	got, ok := c.Get(ctx, "joao-maria")
	assert.True(t, ok)
	assert.Equal(t, "<html>", string(got))
	assert.Equal(t, DefaultTTL, r.ttls["page:joao-maria"])

	c.Invalidate(ctx, "joao-maria", "")
	_, ok = c.Get(ctx, "joao-maria")
	assert.False(t, ok)
}

func TestCacheErrorIsMiss(t *testing.T) {
	r := newMemRedis()
	r.fail = errors.New("connection refused")
	c := New(r, time.Minute, quiet())
	_, ok := c.Get(context.Background(), "x")
	assert.False(t, ok)
}
