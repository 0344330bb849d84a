package cache

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_Basic(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, 0)

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "b", []byte("2")))

	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	// b is now least recently used and gets evicted
	require.NoError(t, c.Set(ctx, "c", []byte("3")))
	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok)
	assert.Equal(t, []string{"c", "a"}, c.Keys())

	require.NoError(t, c.Delete(ctx, "a"))
	assert.Equal(t, 1, c.Len())
}

func TestLRU_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, 0)
	in := []byte("pdf")
	require.NoError(t, c.Set(ctx, "k", in))
	in[0] = 'x'

	out, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("pdf"), out)
	out[0] = 'y'

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("pdf"), again)
}

func TestLRU_SizeBound(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, 10)

	require.NoError(t, c.Set(ctx, "a", make([]byte, 4)))
	require.NoError(t, c.Set(ctx, "b", make([]byte, 4)))
	require.NoError(t, c.Set(ctx, "c", make([]byte, 4)))
	assert.Equal(t, []string{"c", "b"}, c.Keys())
	assert.Equal(t, int64(8), c.Stats().Bytes)

	// too large to cache at all
	require.NoError(t, c.Set(ctx, "big", make([]byte, 11)))
	_, ok, _ := c.Get(ctx, "big")
	assert.False(t, ok)

	// replacing a value adjusts the byte count
	require.NoError(t, c.Set(ctx, "c", make([]byte, 1)))
	assert.Equal(t, int64(5), c.Stats().Bytes)
}

func TestLRU_Stats(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(0, 0)
	_ = c.Set(ctx, "a", []byte("x"))
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "missing")

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.InDelta(t, 50.0, s.HitRate, 0.001)
	assert.Equal(t, 32, s.Capacity)
}

func TestLRU_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(16, 0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (id*100+j)%40)
				_ = c.Set(ctx, key, []byte(key))
				_, _, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "http://not-redis", "t:", time.Minute)
	assert.Error(t, err)
}

func TestRedis_RoundTrip(t *testing.T) {
	url := os.Getenv("MCP_SIGN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MCP_SIGN_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, url, "mcp-pdf-signer-test:", time.Minute)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Set(ctx, "doc", []byte("%PDF-1.7")))
	v, ok, err := r.Get(ctx, "doc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("%PDF-1.7"), v)

	require.NoError(t, r.Delete(ctx, "doc"))
	_, ok, err = r.Get(ctx, "doc")
	require.NoError(t, err)
	assert.False(t, ok)
}
