package rdx

import (
	"context"
	"testing"
	"time"

	"credify/statuscache"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the two commands StatusStore uses. Anything else
// panics through the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

var _ statuscache.Store = (*StatusStore)(nil)

func TestStatusStore(t *testing.T) {
	ctx := context.Background()
	conn := newFakeRedis()
	store := NewStatusStore(conn)

	_, ok, err := store.Get(ctx, "verification:1")
	require.NoError(t, err)
	assert.False(t, ok, "redis.Nil is a miss, not an error")

	require.NoError(t, store.Set(ctx, "verification:1", []byte(`{"status":"pending"}`), time.Hour))
	assert.Equal(t, time.Hour, conn.ttls["verification:1"])

	got, ok, err := store.Get(ctx, "verification:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"status":"pending"}`, string(got))

	require.NoError(t, store.Set(ctx, "verification:1", []byte(`{"status":"completed"}`), -time.Second))
	assert.Equal(t, time.Duration(0), conn.ttls["verification:1"])
}
