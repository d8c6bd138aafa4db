package cache

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Metrics receives cache hit and miss notifications
type Metrics interface {
	IncrementCacheHit()
	IncrementCacheMiss()
}

const (
	cacheHeader  = "X-Cache"
	tenantHeader = "X-Tenant-ID"
	jsonType     = "application/json; charset=utf-8"
)

// ResponseCache replays successful POST responses for identical requests
type ResponseCache struct {
	store    Store
	metrics  Metrics
	prefixes []string
}

// Middleware caches successful POST responses under the given path prefixes.
// Entries are keyed by tenant, path and the raw request body. A request sent
// with Cache-Control: no-cache skips the lookup and refreshes the entry.
func Middleware(store Store, metrics Metrics, prefixes ...string) gin.HandlerFunc {
	rc := &ResponseCache{store: store, metrics: metrics, prefixes: prefixes}
	return rc.handle
}

func (rc *ResponseCache) applies(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	for _, p := range rc.prefixes {
		if strings.HasPrefix(r.URL.Path, p) {
			return true
		}
	}
	return false
}

func (rc *ResponseCache) handle(c *gin.Context) {
	if !rc.applies(c.Request) {
		c.Next()
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		// replay the read failure so the handler's binding reports it
		c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), errReader{err}))
		c.Next()
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	ctx := c.Request.Context()
	key := Key(c.GetHeader(tenantHeader), c.Request.URL.Path, body)

	if strings.Contains(c.GetHeader("Cache-Control"), "no-cache") {
		c.Header(cacheHeader, "BYPASS")
	} else if data, ok := rc.store.Get(ctx, key); ok {
		rc.metrics.IncrementCacheHit()
		c.Header(cacheHeader, "HIT")
		c.Data(http.StatusOK, jsonType, data)
		c.Abort()
		return
	} else {
		rc.metrics.IncrementCacheMiss()
		c.Header(cacheHeader, "MISS")
	}

	rec := &recorder{ResponseWriter: c.Writer}
	c.Writer = rec
	c.Next()

	if rec.Status() != http.StatusOK || len(c.Errors) > 0 {
		return
	}
	if err := rc.store.Set(ctx, key, rec.buf.Bytes()); err != nil {
		slog.Warn("Failed to cache response", "path", c.Request.URL.Path, "error", err)
	}
}

// recorder tees the response body into a buffer
type recorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (r *recorder) Write(p []byte) (int, error) {
	r.buf.Write(p)
	return r.ResponseWriter.Write(p)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
