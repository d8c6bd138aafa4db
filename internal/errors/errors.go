package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
)

// ErrorCategory groups errors by how clients should react to them
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryUnavailable   ErrorCategory = "unavailable"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryInternal      ErrorCategory = "internal"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryUnauthorized  ErrorCategory = "unauthorized"
	CategoryForbidden     ErrorCategory = "forbidden"
)

// AppError is an errbuilder error with the HTTP status and category it renders as
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory     `json:"category"`
	HTTPStatus int               `json:"http_status"`
	Timestamp  time.Time         `json:"timestamp"`
	RequestID  string            `json:"request_id,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	StackTrace string            `json:"stack_trace,omitempty"`
}

func (e *AppError) label() string {
	switch e.ErrBuilder.ErrCode() {
	case errbuilder.CodeInvalidArgument:
		return "VALIDATION_ERROR"
	case errbuilder.CodeNotFound:
		return "NOT_FOUND"
	case errbuilder.CodeUnavailable:
		return "UNAVAILABLE"
	case errbuilder.CodeDeadlineExceeded:
		return "TIMEOUT_ERROR"
	case errbuilder.CodeResourceExhausted:
		return "RATE_LIMIT_EXCEEDED"
	case errbuilder.CodeInternal:
		return "INTERNAL_ERROR"
	case errbuilder.CodeFailedPrecondition:
		return "CONFIGURATION_ERROR"
	case errbuilder.CodeUnauthenticated:
		return "UNAUTHORIZED"
	case errbuilder.CodePermissionDenied:
		return "FORBIDDEN"
	default:
		return "UNKNOWN_ERROR"
	}
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.label(), e.ErrBuilder.Msg)
}

func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// Response is the JSON body written for an AppError
func (e *AppError) Response() gin.H {
	body := gin.H{
		"error":       e.Error(),
		"message":     e.ErrBuilder.Msg,
		"code":        fmt.Sprint(e.ErrBuilder.ErrCode()),
		"category":    e.Category,
		"http_status": e.HTTPStatus,
		"timestamp":   e.Timestamp.Format(time.RFC3339),
	}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	if e.RequestID != "" {
		body["request_id"] = e.RequestID
	}
	if e.StackTrace != "" && gin.Mode() == gin.DebugMode {
		body["stack_trace"] = e.StackTrace
	}
	return body
}

// NewAppError creates an AppError from an errbuilder error
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// build attaches the optional cause and details shared by the constructors
func build(b *errbuilder.ErrBuilder, cause error, details ...errbuilder.ErrorMap) *errbuilder.ErrBuilder {
	if cause != nil {
		b = b.WithCause(cause)
	}
	if len(details) > 0 {
		b = b.WithDetails(errbuilder.NewErrDetails(details[0]))
	}
	return b
}

func detail(key, value string) errbuilder.ErrorMap {
	m := errbuilder.ErrorMap{}
	m.Set(key, errors.New(value))
	return m
}

// NewValidationError reports a malformed request; the optional detail is
// rendered under validation_details
func NewValidationError(message string, details ...interface{}) *AppError {
	if len(details) == 0 {
		return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg(message), nil), CategoryValidation, http.StatusBadRequest)
	}

	text := fmt.Sprint(details[0])
	appErr := NewAppError(
		build(errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg(message), nil, detail("validation_details", text)),
		CategoryValidation,
		http.StatusBadRequest,
	)
	appErr.Fields = map[string]string{"validation_details": text}
	return appErr
}

// NewValidationErrorWithMap reports one message per invalid field
func NewValidationErrorWithMap(fields map[string]string) *AppError {
	m := errbuilder.ErrorMap{}
	for field, message := range fields {
		m.Set(field, errors.New(message))
	}

	appErr := NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg("Multiple validation errors"), nil, m), CategoryValidation, http.StatusBadRequest)
	appErr.Fields = fields
	return appErr
}

// NewInvalidWeightsError reports factor weights that are negative or do not sum to 1
func NewInvalidWeightsError(cause error) *AppError {
	if cause == nil {
		return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg("Invalid factor weights"), nil), CategoryValidation, http.StatusUnprocessableEntity)
	}

	appErr := NewAppError(
		build(errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg("Invalid factor weights"), cause, detail("weights", cause.Error())),
		CategoryValidation,
		http.StatusUnprocessableEntity,
	)
	appErr.Fields = map[string]string{"weights": cause.Error()}
	return appErr
}

// NewUnsupportedMediaTypeError rejects a request body that is not JSON
func NewUnsupportedMediaTypeError(contentType string) *AppError {
	msg := fmt.Sprintf("Unsupported content type %q, expected application/json", contentType)
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg(msg), nil), CategoryValidation, http.StatusUnsupportedMediaType)
}

// NewPayloadTooLargeError rejects a request body over the configured limit
func NewPayloadTooLargeError(limit int64) *AppError {
	msg := fmt.Sprintf("Request body exceeds %d bytes", limit)
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeResourceExhausted).WithMsg(msg), nil), CategoryValidation, http.StatusRequestEntityTooLarge)
}

// NewNotFoundError creates a not-found error for the named resource
func NewNotFoundError(resource, id string) *AppError {
	msg := fmt.Sprintf("%s not found", resource)
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg(msg), nil, detail(resource, id)), CategoryNotFound, http.StatusNotFound)
}

// NewUnauthorizedError reports a missing or invalid bearer token
func NewUnauthorizedError(message string, cause error) *AppError {
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeUnauthenticated).WithMsg(message), cause), CategoryUnauthorized, http.StatusUnauthorized)
}

// NewForbiddenError reports a valid token that lacks the required scope
func NewForbiddenError(scope string) *AppError {
	return NewAppError(
		build(errbuilder.New().WithCode(errbuilder.CodePermissionDenied).WithMsg("token lacks the required scope"), nil, detail("scope", scope)),
		CategoryForbidden,
		http.StatusForbidden,
	)
}

// NewUnavailableError reports a backing service that is disabled or unreachable
func NewUnavailableError(message string, cause error) *AppError {
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeUnavailable).WithMsg(message), cause), CategoryUnavailable, http.StatusServiceUnavailable)
}

func NewTimeoutError(message string, cause error) *AppError {
	return NewAppError(build(errbuilder.New().WithCode(errbuilder.CodeDeadlineExceeded).WithMsg(message), cause), CategoryTimeout, http.StatusGatewayTimeout)
}

func NewRateLimitError(retryAfter string) *AppError {
	return NewAppError(
		build(errbuilder.New().WithCode(errbuilder.CodeResourceExhausted).WithMsg("Rate limit exceeded"), nil, detail("retry_after", retryAfter)),
		CategoryRateLimit,
		http.StatusTooManyRequests,
	)
}

// NewInternalError hides message from the client behind a generic one and
// keeps it in the details for logs
func NewInternalError(message string, cause error) *AppError {
	appErr := NewAppError(
		build(errbuilder.New().WithCode(errbuilder.CodeInternal).WithMsg("Internal server error"), cause, detail("internal_details", message)),
		CategoryInternal,
		http.StatusInternalServerError,
	)
	if gin.Mode() != gin.ReleaseMode {
		appErr.StackTrace = captureStackTrace()
	}
	return appErr
}

// NewConfigurationError reports stored model configuration that cannot be used
func NewConfigurationError(message string, cause error) *AppError {
	return NewAppError(
		build(errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition).WithMsg("Configuration error"), cause, detail("config_details", message)),
		CategoryConfiguration,
		http.StatusInternalServerError,
	)
}

// FromBindError converts a request binding failure into a client error.
// Struct validation failures are reported per field.
func FromBindError(message string, err error) *AppError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return NewPayloadTooLargeError(tooLarge.Limit)
	}

	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		fields := make(map[string]string, len(invalid))
		for _, fe := range invalid {
			fields[fieldPath(fe.Namespace())] = fmt.Sprintf("failed %q validation", fe.Tag())
		}
		appErr := NewValidationErrorWithMap(fields)
		appErr.ErrBuilder = appErr.ErrBuilder.WithMsg(message)
		return appErr
	}

	return NewValidationError(message, err.Error())
}

// fieldPath drops the request struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler renders the last error a handler attached to the context
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := ToAppError(c.Errors.Last().Err)
		if appErr.RequestID == "" {
			appErr.RequestID = c.GetHeader("X-Request-ID")
		}

		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr.Response())
	}
}

// RecoveryHandler turns panics into internal error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		appErr := NewInternalError(fmt.Sprintf("Panic recovered: %v", recovered), fmt.Errorf("%v", recovered))
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
	})
}

// ToAppError maps any error onto the category and status it should render as
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	switch {
	case errors.Is(err, attribution.ErrInvalidWeights):
		return NewInvalidWeightsError(err)
	case errors.Is(err, attribution.ErrInvalidOpportunity),
		errors.Is(err, attribution.ErrInvalidTenant),
		errors.Is(err, attribution.ErrUnknownModel):
		return NewValidationError(err.Error())
	case errors.Is(err, attribution.ErrCorruptConfig):
		return NewConfigurationError(err.Error(), err)
	case errors.Is(err, context.Canceled):
		return NewTimeoutError("Request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("Request deadline exceeded", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("Backing service timed out", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) || strings.Contains(err.Error(), "connection refused") {
		return NewUnavailableError("Backing service unavailable", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error at a level matching its category
func LogError(c *gin.Context, err *AppError) {
	msg := err.ErrBuilder.Msg

	logger := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
		"tenant", c.GetHeader("X-Tenant-ID"),
	)

	cause := err.ErrBuilder.Unwrap()

	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryNotFound:
		if len(err.Fields) > 0 {
			logger.Warn(msg, "fields", err.Fields)
		} else {
			logger.Warn(msg)
		}
	case CategoryUnavailable, CategoryTimeout:
		logger.Info(msg, "cause", cause)
	default:
		logger.Error(msg, "cause", cause)
	}

	if err.StackTrace != "" && gin.Mode() != gin.ReleaseMode {
		logger.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// SafeClose closes a resource and logs a failure instead of returning it
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}
