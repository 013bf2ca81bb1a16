package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/sitegate/pkg/ipallow"
)

const (
	RequestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
	tracerName      = "github.com/haasonsaas/sitegate/pkg/gateway"
)

type requestInfoKey struct{}

// requestInfo travels in the request context, so anything holding only a
// context.Context sees the same id and logger.
type requestInfo struct {
	id     string
	logger zerolog.Logger
}

func requestInfoFrom(ctx context.Context) (*requestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info, ok
}

// RequestIDFromContext returns the id assigned by RequestContext, if any.
func RequestIDFromContext(ctx context.Context) string {
	if info, ok := requestInfoFrom(ctx); ok {
		return info.id
	}
	return ""
}

// inboundRequestID trusts a caller-supplied id only when it is short and printable.
func inboundRequestID(r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > maxRequestIDLen {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return ""
		}
	}
	return id
}

func startServerSpan(r *http.Request, reqID, clientIP string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return otel.Tracer(tracerName).Start(ctx, r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.RequestURI()),
			attribute.String("http.user_agent", r.UserAgent()),
			attribute.String("client.address", clientIP),
			attribute.String("request.id", reqID),
		),
	)
}

// RequestContext assigns a request ID, a request-scoped logger and a server
// span, and writes one access log line per request. It runs ahead of the
// Pipeline so denials are logged and traced.
func RequestContext(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := inboundRequestID(c.Request)
		if reqID == "" {
			reqID = xid.New().String()
		}
		c.Writer.Header().Set(RequestIDHeader, reqID)

		clientIP := ipallow.ClientIP(c.Request)
		info := &requestInfo{
			id: reqID,
			logger: base.With().
				Str("request_id", reqID).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("client_ip", clientIP).
				Logger(),
		}

		ctx, span := startServerSpan(c.Request, reqID, clientIP)
		defer span.End()
		c.Request = c.Request.WithContext(context.WithValue(ctx, requestInfoKey{}, info))

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if route := c.FullPath(); route != "" {
			span.SetAttributes(attribute.String("http.route", route))
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		info.logger.Debug().Int("status", status).Dur("latency", time.Since(start)).Msg("request completed")
	}
}

// RequestLogger returns the request-scoped logger, or fallback outside RequestContext.
func RequestLogger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if c.Request == nil {
		return fallback
	}
	if info, ok := requestInfoFrom(c.Request.Context()); ok {
		return info.logger
	}
	return fallback
}

func RequestID(c *gin.Context) string {
	if c.Request == nil {
		return ""
	}
	return RequestIDFromContext(c.Request.Context())
}

// RespondError logs, annotates the span and aborts with a terse JSON body.
func RespondError(c *gin.Context, status int, message string, fallback zerolog.Logger) {
	logger := RequestLogger(c, fallback)
	level := zerolog.WarnLevel
	if status >= http.StatusInternalServerError {
		level = zerolog.ErrorLevel
	}
	logger.WithLevel(level).Int("status", status).Msg(message)

	span := trace.SpanFromContext(c.Request.Context())
	span.AddEvent("http.error", trace.WithAttributes(
		attribute.Int("http.status_code", status),
		attribute.String("error.message", message),
	))
	if status >= http.StatusInternalServerError {
		span.RecordError(errors.New(message))
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":      message,
		"request_id": RequestID(c),
	})
}
