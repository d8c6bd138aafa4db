package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		category ErrorCategory
		status   int
		prefix   string
	}{
		{"validation", NewValidationError("bad input", "field"), CategoryValidation, http.StatusBadRequest, "[VALIDATION_ERROR]"},
		{"weights", NewInvalidWeightsError(attribution.ErrInvalidWeights), CategoryValidation, http.StatusUnprocessableEntity, "[VALIDATION_ERROR]"},
		{"not found", NewNotFoundError("run", "abc"), CategoryNotFound, http.StatusNotFound, "[NOT_FOUND]"},
		{"unavailable", NewUnavailableError("storage disabled", nil), CategoryUnavailable, http.StatusServiceUnavailable, "[UNAVAILABLE]"},
		{"timeout", NewTimeoutError("slow", nil), CategoryTimeout, http.StatusGatewayTimeout, "[TIMEOUT_ERROR]"},
		{"rate limit", NewRateLimitError("60"), CategoryRateLimit, http.StatusTooManyRequests, "[RATE_LIMIT_EXCEEDED]"},
		{"internal", NewInternalError("boom", nil), CategoryInternal, http.StatusInternalServerError, "[INTERNAL_ERROR]"},
		{"configuration", NewConfigurationError("missing", nil), CategoryConfiguration, http.StatusInternalServerError, "[CONFIGURATION_ERROR]"},
		{"unauthorized", NewUnauthorizedError("missing bearer token", nil), CategoryUnauthorized, http.StatusUnauthorized, "[UNAUTHORIZED]"},
		{"forbidden", NewForbiddenError("admin"), CategoryForbidden, http.StatusForbidden, "[FORBIDDEN]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Contains(t, tt.err.Error(), tt.prefix)
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		status   int
	}{
		{"invalid weights", fmt.Errorf("tenant acme: %w", attribution.ErrInvalidWeights), CategoryValidation, http.StatusUnprocessableEntity},
		{"invalid opportunity", fmt.Errorf("%w: negative amount", attribution.ErrInvalidOpportunity), CategoryValidation, http.StatusBadRequest},
		{"unknown model", attribution.ErrUnknownModel, CategoryValidation, http.StatusBadRequest},
		{"invalid tenant", attribution.ErrInvalidTenant, CategoryValidation, http.StatusBadRequest},
		{"cancelled", context.Canceled, CategoryTimeout, http.StatusGatewayTimeout},
		{"deadline", fmt.Errorf("batch: %w", context.DeadlineExceeded), CategoryTimeout, http.StatusGatewayTimeout},
		{"corrupt config", fmt.Errorf("%w for tenant acme: eof", attribution.ErrCorruptConfig), CategoryConfiguration, http.StatusInternalServerError},
		{"connection refused", fmt.Errorf("dial tcp: connection refused"), CategoryUnavailable, http.StatusServiceUnavailable},
		{"dial error", &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("refused")}, CategoryUnavailable, http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("something odd"), CategoryInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ToAppError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.category, appErr.Category)
			assert.Equal(t, tt.status, appErr.HTTPStatus)
		})
	}

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, ToAppError(nil))
	})

	t.Run("existing app error passes through", func(t *testing.T) {
		orig := NewNotFoundError("run", "x")
		assert.Same(t, orig, ToAppError(fmt.Errorf("lookup: %w", orig)))
	})

	t.Run("errbuilder error", func(t *testing.T) {
		eb := errbuilder.New().WithCode(errbuilder.CodeInternal).WithMsg("raw")
		assert.Equal(t, CategoryInternal, ToAppError(eb).Category)
	})
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandler(), RecoveryHandler())
	router.GET("/weights", func(c *gin.Context) {
		_ = c.Error(attribution.ErrInvalidWeights)
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	tests := []struct {
		path     string
		status   int
		category ErrorCategory
	}{
		{"/weights", http.StatusUnprocessableEntity, CategoryValidation},
		{"/panic", http.StatusInternalServerError, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-Request-ID", "req-1")
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, string(tt.category), body["category"])
		})
	}

	t.Run("no error leaves response alone", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	})
}

func TestNewValidationErrorWithMap(t *testing.T) {
	err := NewValidationErrorWithMap(map[string]string{"weights": "must sum to 1"})
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	assert.Equal(t, "Multiple validation errors", err.Msg)
	assert.Equal(t, map[string]string{"weights": "must sum to 1"}, err.Response()["fields"])
}

func TestFromBindError(t *testing.T) {
	type body struct {
		ID    string  `json:"id" binding:"required"`
		Value float64 `json:"value" binding:"gte=0"`
	}

	bind := func(payload string) error {
		gin.SetMode(gin.TestMode)
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		c.Request.Header.Set("Content-Type", "application/json")
		var b body
		return c.ShouldBindJSON(&b)
	}

	t.Run("field validation", func(t *testing.T) {
		appErr := FromBindError("Invalid request", bind(`{"value":-1}`))
		assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
		assert.Equal(t, "Invalid request", appErr.Msg)
		assert.Contains(t, appErr.Fields, "ID")
		assert.Contains(t, appErr.Fields, "Value")
		assert.Contains(t, appErr.Fields["ID"], "required")
	})

	t.Run("malformed json", func(t *testing.T) {
		appErr := FromBindError("Invalid request", bind(`{`))
		assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
		assert.Contains(t, appErr.Fields, "validation_details")
	})

	t.Run("body too large", func(t *testing.T) {
		appErr := FromBindError("Invalid request", &http.MaxBytesError{Limit: 64})
		assert.Equal(t, http.StatusRequestEntityTooLarge, appErr.HTTPStatus)
	})
}

func TestSafeClose(t *testing.T) {
	SafeClose(nil, "nothing")
	SafeClose(closerFunc(func() error { return fmt.Errorf("already closed") }), "thing")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
