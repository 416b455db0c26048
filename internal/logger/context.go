package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a single backend
// operation: a TC apply/clear request, a scenario control request, or a
// reconciliation pass over one namespace.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Backend   string    // backend/agent name
	Namespace string    // canonical NamespaceId display form
	Interface string    // interface name
	Scenario  string    // scenario id, when applicable
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext scoped to a namespace/interface pair.
func NewLogContext(namespace, iface string) *LogContext {
	return &LogContext{
		Namespace: namespace,
		Interface: iface,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithBackend returns a copy with the backend name set
func (lc *LogContext) WithBackend(backend string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Backend = backend
	}
	return clone
}

// WithScenario returns a copy with the scenario id set
func (lc *LogContext) WithScenario(scenario string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Scenario = scenario
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
