package security

import (
	"context"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chocobo244/creatingcustomersegment/internal/errors"
)

// Config holds the request hardening settings
type Config struct {
	MaxBodyBytes   int64         `json:"max_body_bytes"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHSTS     bool          `json:"enable_hsts"`
	HTMLPrefixes   []string      `json:"html_prefixes"` // exempt from the API content policy
}

// DefaultConfig returns defaults suited to a JSON API
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   1 << 20,
		RequestTimeout: 30 * time.Second,
		HTMLPrefixes:   []string{"/swagger/", "/debug/pprof/"},
	}
}

const apiContentPolicy = "default-src 'none'; frame-ancestors 'none'"

// Middleware applies response headers and request limits
type Middleware struct {
	config Config
}

// NewMiddleware creates the security middleware
func NewMiddleware(config Config) *Middleware {
	return &Middleware{config: config}
}

// Handlers returns the middleware chain in the order it should run
func (m *Middleware) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.SecurityHeaders,
		m.RequestTimeout,
		m.LimitBody,
		m.ValidateContentType,
	}
}

func (m *Middleware) servesHTML(path string) bool {
	for _, prefix := range m.config.HTMLPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// SecurityHeaders adds security headers to responses
func (m *Middleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Referrer-Policy", "no-referrer")
	c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

	if !m.servesHTML(c.Request.URL.Path) {
		c.Header("Content-Security-Policy", apiContentPolicy)
		c.Header("Cache-Control", "no-store")
	}

	if m.config.EnableHSTS {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Next()
}

// RequestTimeout bounds the request context
func (m *Middleware) RequestTimeout(c *gin.Context) {
	if m.config.RequestTimeout <= 0 {
		c.Next()
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), m.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(m.config.RequestTimeout.Seconds())))

	c.Next()
}

// LimitBody rejects declared oversized bodies and caps streamed ones
func (m *Middleware) LimitBody(c *gin.Context) {
	if m.config.MaxBodyBytes <= 0 || c.Request.Body == nil {
		c.Next()
		return
	}

	if c.Request.ContentLength > m.config.MaxBodyBytes {
		c.Error(errors.NewPayloadTooLargeError(m.config.MaxBodyBytes))
		c.Abort()
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, m.config.MaxBodyBytes)
	c.Next()
}

// ValidateContentType requires JSON on requests that carry a body
func (m *Middleware) ValidateContentType(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		c.Next()
		return
	}

	if c.Request.ContentLength == 0 {
		c.Next()
		return
	}

	contentType := c.GetHeader("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		c.Error(errors.NewUnsupportedMediaTypeError(contentType))
		c.Abort()
		return
	}

	c.Next()
}
