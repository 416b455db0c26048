package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the backend. Use these
// keys consistently so log lines can be aggregated/queried by namespace,
// interface, or scenario regardless of which component emitted them.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Namespace & Interface identity
	// ========================================================================
	KeyBackend   = "backend"    // backend/agent name
	KeyNamespace = "namespace"  // canonical NamespaceId display form
	KeyIface     = "interface"  // interface name
	KeyIfindex   = "ifindex"    // kernel interface index
	KeyKind      = "kind"       // interface kind classification
	KeyRuntime   = "runtime"    // container runtime: docker, podman
	KeyContainer = "container"  // container id (prefix)

	// ========================================================================
	// TC / netem
	// ========================================================================
	KeyFeature  = "feature"   // netem feature key: loss, delay, duplicate, reorder, corrupt, rate
	KeyAction   = "action"    // decision-table action: add, replace, delete, noop
	KeyQdisc    = "qdisc"     // qdisc kind observed on the interface
	KeyVersion  = "version"   // catalog publish version

	// ========================================================================
	// Scenario
	// ========================================================================
	KeyScenario = "scenario"  // scenario id
	KeyStep     = "step"      // current step index
	KeyStatus   = "status"    // execution status
	KeyLoopIter = "loop_iter" // loop iteration counter

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyAttempt    = "attempt"
	KeyTopic      = "topic"
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// Backend returns a slog.Attr for the backend/agent name
func Backend(name string) slog.Attr { return slog.String(KeyBackend, name) }

// Namespace returns a slog.Attr for the canonical namespace display form
func Namespace(ns string) slog.Attr { return slog.String(KeyNamespace, ns) }

// Iface returns a slog.Attr for an interface name
func Iface(name string) slog.Attr { return slog.String(KeyIface, name) }

// Ifindex returns a slog.Attr for a kernel interface index
func Ifindex(idx int) slog.Attr { return slog.Int(KeyIfindex, idx) }

// Kind returns a slog.Attr for an interface kind classification
func Kind(kind string) slog.Attr { return slog.String(KeyKind, kind) }

// Runtime returns a slog.Attr for a container runtime name
func Runtime(name string) slog.Attr { return slog.String(KeyRuntime, name) }

// Container returns a slog.Attr for a container id
func Container(id string) slog.Attr { return slog.String(KeyContainer, id) }

// Feature returns a slog.Attr for a netem feature key
func Feature(name string) slog.Attr { return slog.String(KeyFeature, name) }

// Action returns a slog.Attr for a TC decision-table action
func Action(action string) slog.Attr { return slog.String(KeyAction, action) }

// Qdisc returns a slog.Attr for a qdisc kind
func Qdisc(kind string) slog.Attr { return slog.String(KeyQdisc, kind) }

// Version returns a slog.Attr for a catalog publish version
func Version(v uint64) slog.Attr { return slog.Uint64(KeyVersion, v) }

// Scenario returns a slog.Attr for a scenario id
func Scenario(id string) slog.Attr { return slog.String(KeyScenario, id) }

// Step returns a slog.Attr for a scenario step index
func Step(idx int) slog.Attr { return slog.Int(KeyStep, idx) }

// Status returns a slog.Attr for an execution status
func Status(status string) slog.Attr { return slog.String(KeyStatus, status) }

// LoopIter returns a slog.Attr for a scenario loop iteration counter
func LoopIter(n int) slog.Attr { return slog.Int(KeyLoopIter, n) }

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a named error code
func ErrorCode(code string) slog.Attr { return slog.String(KeyErrorCode, code) }

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// Topic returns a slog.Attr for a publish topic
func Topic(topic string) slog.Attr { return slog.String(KeyTopic, topic) }
