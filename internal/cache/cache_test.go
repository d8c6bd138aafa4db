package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chocobo244/creatingcustomersegment/internal/resilience"
)

type countingMetrics struct {
	hits, misses int64
}

func (m *countingMetrics) IncrementCacheHit()  { atomic.AddInt64(&m.hits, 1) }
func (m *countingMetrics) IncrementCacheMiss() { atomic.AddInt64(&m.misses, 1) }

func TestKey(t *testing.T) {
	body := []byte(`{"touchpoints":[]}`)

	assert.Equal(t, Key("acme", "/a", body), Key("acme", "/a", body))
	assert.NotEqual(t, Key("acme", "/a", body), Key("globex", "/a", body))
	assert.NotEqual(t, Key("acme", "/a", body), Key("acme", "/b", body))
	assert.Len(t, Key("", "", nil), 32)
}

func TestCache_Memory(t *testing.T) {
	ctx := context.Background()
	c := NewCache(time.Minute)
	defer c.Close()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	got, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 1, c.Size())

	require.NoError(t, c.Delete(ctx, "k"))
	assert.Zero(t, c.Size())

	require.NoError(t, c.Set(ctx, "a", nil))
	require.NoError(t, c.Set(ctx, "b", nil))
	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Size())

	stats := c.Stats(ctx)
	assert.Equal(t, "memory", stats["backend"])
	assert.Equal(t, 60.0, stats["ttl_seconds"])
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.now = func() time.Time { return clock }
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	clock = clock.Add(2 * time.Minute)

	assert.Equal(t, 1, c.Stats(ctx)["expired_items"])
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, c.Size())

	require.NoError(t, c.Set(ctx, "j", []byte("v")))
	clock = clock.Add(2 * time.Minute)
	c.evictExpired()
	assert.Zero(t, c.Size())
}

func TestCache_LRUEviction(t *testing.T) {
	ctx := context.Background()
	c := NewBoundedCache(time.Minute, 2)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "b", []byte("2")))

	// touching a leaves b as the least recently used
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", []byte("3")))
	assert.Equal(t, 2, c.Size())

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)

	require.NoError(t, c.Set(ctx, "a", []byte("updated")))
	got, _ := c.Get(ctx, "a")
	assert.Equal(t, []byte("updated"), got)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats["evictions"])
	assert.Equal(t, int64(3), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])
}

func TestCache_NonPositiveBoundUsesDefault(t *testing.T) {
	c := NewBoundedCache(time.Minute, 0)
	defer c.Close()

	assert.Equal(t, DefaultMaxEntries, c.Stats(context.Background())["max_entries"])
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := NewCache(time.Minute)
	defer store.Close()
	metrics := &countingMetrics{}

	var calls int64
	router := gin.New()
	router.Use(Middleware(store, metrics, "/attribution/"))
	router.POST("/attribution/b2b/calculate", func(c *gin.Context) {
		atomic.AddInt64(&calls, 1)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.POST("/attribution/b2b/fail", func(c *gin.Context) {
		atomic.AddInt64(&calls, 1)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false})
	})
	router.POST("/other", func(c *gin.Context) {
		atomic.AddInt64(&calls, 1)
		c.Status(http.StatusOK)
	})

	post := func(path, tenant, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		if tenant != "" {
			req.Header.Set("X-Tenant-ID", tenant)
		}
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("miss then hit", func(t *testing.T) {
		w := post("/attribution/b2b/calculate", "acme", `{"a":1}`)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

		w = post("/attribution/b2b/calculate", "acme", `{"a":1}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
		assert.JSONEq(t, `{"ok":true}`, w.Body.String())

		assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
		assert.Equal(t, int64(1), metrics.hits)
		assert.Equal(t, int64(1), metrics.misses)
	})

	t.Run("tenant isolates entries", func(t *testing.T) {
		w := post("/attribution/b2b/calculate", "globex", `{"a":1}`)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	})

	t.Run("errors are not cached", func(t *testing.T) {
		before := atomic.LoadInt64(&calls)
		post("/attribution/b2b/fail", "", `{}`)
		post("/attribution/b2b/fail", "", `{}`)
		assert.Equal(t, before+2, atomic.LoadInt64(&calls))
	})

	t.Run("no-cache refreshes the entry", func(t *testing.T) {
		before := atomic.LoadInt64(&calls)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/attribution/b2b/calculate", strings.NewReader(`{"a":1}`))
		req.Header.Set("X-Tenant-ID", "acme")
		req.Header.Set("Cache-Control", "no-cache")
		router.ServeHTTP(w, req)

		assert.Equal(t, "BYPASS", w.Header().Get("X-Cache"))
		assert.Equal(t, before+1, atomic.LoadInt64(&calls))

		w = post("/attribution/b2b/calculate", "acme", `{"a":1}`)
		assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	})

	t.Run("other paths bypass", func(t *testing.T) {
		w := post("/other", "", `{}`)
		assert.Empty(t, w.Header().Get("X-Cache"))
	})
}

// Requires a live server; set REDIS_ADDR to run.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	store := NewRedisStore(client, time.Minute)
	require.NoError(t, store.Clear(ctx))

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	got, ok := store.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 1, store.Stats(ctx)["total_items"])

	require.NoError(t, store.Delete(ctx, "k"))
	_, ok = store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisStore_UnreachableDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store := NewRedisStore(client, time.Minute)

	for i := 0; i < 5; i++ {
		_, ok := store.Get(ctx, "k")
		assert.False(t, ok)
	}

	breaker := store.Stats(ctx)["circuit_breaker"].(map[string]interface{})
	assert.Equal(t, "open", breaker["state"])

	err := store.Set(ctx, "k", []byte("v"))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
