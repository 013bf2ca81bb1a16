package telemetry

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanRecorder is a span processor that keeps completed spans in memory,
// indexed by name, for assertions in tests.
type SpanRecorder struct {
	mu     sync.Mutex
	order  []sdktrace.ReadOnlySpan
	byName map[string][]sdktrace.ReadOnlySpan
}

var _ sdktrace.SpanProcessor = (*SpanRecorder)(nil)

func NewSpanRecorder() *SpanRecorder {
	return &SpanRecorder{byName: make(map[string][]sdktrace.ReadOnlySpan)}
}

func (r *SpanRecorder) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (r *SpanRecorder) OnEnd(span sdktrace.ReadOnlySpan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, span)
	r.byName[span.Name()] = append(r.byName[span.Name()], span)
}

func (r *SpanRecorder) Shutdown(context.Context) error { return nil }

func (r *SpanRecorder) ForceFlush(context.Context) error { return nil }

// Completed returns spans in the order they ended.
func (r *SpanRecorder) Completed() []sdktrace.ReadOnlySpan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sdktrace.ReadOnlySpan(nil), r.order...)
}

// FirstSpanNamed returns nil when no completed span has that name.
func (r *SpanRecorder) FirstSpanNamed(name string) sdktrace.ReadOnlySpan {
	r.mu.Lock()
	defer r.mu.Unlock()
	if spans := r.byName[name]; len(spans) > 0 {
		return spans[0]
	}
	return nil
}

// EventNames lists the span events of every completed span called name.
func (r *SpanRecorder) EventNames(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, span := range r.byName[name] {
		for _, ev := range span.Events() {
			out = append(out, ev.Name)
		}
	}
	return out
}

func (r *SpanRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.byName = make(map[string][]sdktrace.ReadOnlySpan)
}
