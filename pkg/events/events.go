package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Type classifies a security event.
type Type string

const (
	RateLimitExceeded    Type = "rate_limit_exceeded"
	CSRFRejected         Type = "csrf_rejected"
	IPDenied             Type = "ip_denied"
	CredentialInvalid    Type = "credential_invalid"
	CredentialStoreError Type = "credential_store_error"
)

// ErrEventLogWriteFailed wraps sink failures. It is logged, never returned to callers of Record.
var ErrEventLogWriteFailed = errors.New("security event write failed")

// DefaultWriteTimeout bounds how long a denial waits on the sink.
const DefaultWriteTimeout = 2 * time.Second

// Event is an append-only audit entry.
type Event struct {
	Type      Type           `json:"type"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"user_agent"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Sink persists events.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// Logger writes events to a Sink synchronously and downgrades failures to a
// local log line so the request being denied is never affected.
type Logger struct {
	sink     Sink
	fallback zerolog.Logger
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Logger)

func WithFallback(logger zerolog.Logger) Option {
	return func(l *Logger) { l.fallback = logger }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(l *Logger) { l.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

func NewLogger(sink Sink, opts ...Option) *Logger {
	l := &Logger{
		sink:     sink,
		fallback: zerolog.Nop(),
		timeout:  DefaultWriteTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stores ev. It never fails.
func (l *Logger) Record(ctx context.Context, ev Event) {
	if l == nil || l.sink == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now().UTC()
	}

	writeCtx := context.WithoutCancel(ctx)
	if l.timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(writeCtx, l.timeout)
		defer cancel()
	}

	if err := l.sink.Write(writeCtx, ev); err != nil {
		l.fallback.Error().
			Err(fmt.Errorf("%w: %v", ErrEventLogWriteFailed, err)).
			Str("event_type", string(ev.Type)).
			Str("ip", ev.IP).
			Str("user_agent", ev.UserAgent).
			Time("event_time", ev.Timestamp).
			Interface("details", ev.Details).
			Msg("security event")
	}
}
