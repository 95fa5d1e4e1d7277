package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	var out string
	found, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Delete(ctx, "k"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "intent:engineers at google", IntentKey("engineers at google"))
	assert.Equal(t, "stats:user-1", StatsKey("user-1"))
}

// TestRedis requires a running Redis server
func TestRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx := context.Background()
	c, err := NewRedis(ctx, addr, "", 0)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer c.Close()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	key := "test:" + time.Now().Format(time.RFC3339Nano)
	require.NoError(t, c.Set(ctx, key, payload{Name: "a", Count: 2}, time.Minute))

	var got payload
	found, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	require.NoError(t, c.Delete(ctx, key))
	found, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}
