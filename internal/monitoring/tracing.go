package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

type spanKey struct{}

// Span times one named operation within a request
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Tracer emits spans as structured log lines
type Tracer struct {
	serviceName string
	logger      *Logger
}

// NewTracer creates a tracer that logs through logger
func NewTracer(serviceName string, logger *Logger) *Tracer {
	return &Tracer{serviceName: serviceName, logger: logger}
}

// StartSpan opens a span, inheriting the trace of any span already in ctx
func (t *Tracer) StartSpan(ctx context.Context, operation string) (*Span, context.Context) {
	span := &Span{
		SpanID:    uuid.NewString(),
		Operation: operation,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	if parent, ok := ctx.Value(spanKey{}).(*Span); ok {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = uuid.NewString()
	}

	return span, context.WithValue(ctx, spanKey{}, span)
}

// EndSpan logs the finished span
func (t *Tracer) EndSpan(span *Span, err error) {
	attrs := []any{
		"trace_id", span.TraceID,
		"span_id", span.SpanID,
		"service", t.serviceName,
		"operation", span.Operation,
		"duration_ms", time.Since(span.StartTime).Milliseconds(),
	}
	if span.ParentID != "" {
		attrs = append(attrs, "parent_id", span.ParentID)
	}
	for k, v := range span.Tags {
		attrs = append(attrs, fmt.Sprintf("tag_%s", k), v)
	}

	if err != nil {
		t.logger.Warn("Trace Span", append(attrs, "status", "error", "error", err.Error())...)
		return
	}
	t.logger.Debug("Trace Span", append(attrs, "status", "ok")...)
}

// TraceFunction runs fn inside a span
func (t *Tracer) TraceFunction(ctx context.Context, operation string, fn func(context.Context) error) error {
	span, spanCtx := t.StartSpan(ctx, operation)
	err := fn(spanCtx)
	t.EndSpan(span, err)
	return err
}

// SpanFromContext returns the active span, if any
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// TracingMiddleware assigns a request id and opens a root span per request
func TracingMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set(requestIDHeader, requestID)
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		span, ctx := tracer.StartSpan(c.Request.Context(), fmt.Sprintf("%s %s", c.Request.Method, c.FullPath()))
		span.TraceID = requestID
		span.Tags["client_ip"] = c.ClientIP()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.Tags["http.status_code"] = fmt.Sprintf("%d", c.Writer.Status())
		var spanErr error
		if len(c.Errors) > 0 {
			spanErr = fmt.Errorf("request errors: %v", c.Errors.Errors())
		}
		tracer.EndSpan(span, spanErr)
	}
}

// RequestID returns the id assigned to the current request
func RequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	return c.GetHeader(requestIDHeader)
}
