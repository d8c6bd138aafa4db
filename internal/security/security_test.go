package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chocobo244/creatingcustomersegment/internal/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.Use(NewMiddleware(cfg).Handlers()...)

	echo := func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Error(errors.NewValidationError("bad body", err.Error()))
			return
		}
		c.JSON(http.StatusOK, body)
	}
	r.POST("/attribution", echo)
	r.GET("/attribution", func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": hasDeadline})
	})
	r.GET("/swagger/index.html", func(c *gin.Context) { c.String(http.StatusOK, "<html></html>") })
	return r
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.EnableHSTS)
}

func TestSecurityHeaders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableHSTS = true
	r := newRouter(cfg)

	t.Run("api routes", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/attribution", nil))

		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, apiContentPolicy, w.Header().Get("Content-Security-Policy"))
		assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
	})

	t.Run("html routes keep their own policy", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))

		assert.Empty(t, w.Header().Get("Content-Security-Policy"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	})
}

func TestRequestTimeout(t *testing.T) {
	r := newRouter(DefaultConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/attribution", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "30", w.Header().Get("X-Timeout"))
	assert.JSONEq(t, `{"deadline":true}`, w.Body.String())
}

func TestRequestBodyChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 32
	r := newRouter(cfg)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"json accepted", "application/json", `{"a":1}`, http.StatusOK},
		{"json with charset", "application/json; charset=utf-8", `{"a":1}`, http.StatusOK},
		{"form rejected", "application/x-www-form-urlencoded", "a=1", http.StatusUnsupportedMediaType},
		{"missing type rejected", "", `{"a":1}`, http.StatusUnsupportedMediaType},
		{"oversized body", "application/json", `{"a":"` + strings.Repeat("x", 64) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/attribution", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestRequestBodyChecks_StreamedBodyIsCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 16
	r := newRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/attribution", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
