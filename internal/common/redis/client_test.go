package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/adtechscan/crawler/internal/common/configtypes"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewClient(&configtypes.RedisConfig{Addr: mr.Addr()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClientFailsWithNilConfig(t *testing.T) {
	_, err := NewClient(nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNewClientPingsOnConstruction(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(&configtypes.RedisConfig{Addr: mr.Addr()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = NewClient(&configtypes.RedisConfig{Addr: mr.Addr()}, zaptest.NewLogger(t))
	assert.Error(t, err, "construction should fail once the server is unreachable")
}

func TestGetReturnsFalseWhenKeyMissing(t *testing.T) {
	client, _ := newTestClient(t)

	_, found, err := client.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "url:processed:https://example.com/a", "1", time.Hour))

	value, found, err := client.Get(ctx, "url:processed:https://example.com/a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", value)
}

func TestSetHonorsExpiration(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "short-lived", "1", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, found, err := client.Get(ctx, "short-lived")
	require.NoError(t, err)
	assert.False(t, found, "key should have expired")
}

func TestDelRemovesKeys(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "a", "1", 0))
	require.NoError(t, client.Set(ctx, "b", "1", 0))
	require.NoError(t, client.Del(ctx, "a", "b"))

	_, found, err := client.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelWithNoKeysIsNoop(t *testing.T) {
	client, _ := newTestClient(t)
	assert.NoError(t, client.Del(context.Background()))
}
