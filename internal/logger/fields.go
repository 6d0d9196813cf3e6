package logger

import (
	"log/slog"
	"time"
)

// Field keys. Log queries and dashboards depend on these names, so reuse
// them instead of ad hoc strings.
const (
	// Request correlation, prepended by the *Ctx functions.
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRequestID = "request_id"
	KeyMethod    = "method"
	KeyRoute     = "route"
	KeyStatus    = "status"
	KeyClientIP  = "client_ip"

	// Blob store.
	KeyBlobID       = "blob_id"
	KeyState        = "state"
	KeySize         = "size"
	KeyBytes        = "bytes"
	KeyArtifactPath = "path"
	KeyProperty     = "property" // node property carrying a digest

	// Collector. The counters mirror gc.Report.
	KeyRunID     = "run_id"
	KeyPhase     = "phase"
	KeySourceGC  = "gc_source"
	KeyNodes     = "nodes"
	KeyTouched   = "touched"
	KeyCleaned   = "cleaned"
	KeyRemoved   = "removed"
	KeyScanErrs  = "scan_errors"
	KeyDelErrs   = "delete_errors"
	KeyReclaimed = "bytes_reclaimed"

	// Backends.
	KeyStoreType  = "store_type"
	KeyIndexType  = "index_type"
	KeyKey        = "key"
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

func Status(code int) slog.Attr { return slog.Int(KeyStatus, code) }

func BlobID(id string) slog.Attr      { return slog.String(KeyBlobID, id) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Size(n uint64) slog.Attr         { return slog.Uint64(KeySize, n) }
func Bytes(n uint64) slog.Attr        { return slog.Uint64(KeyBytes, n) }
func ArtifactPath(p string) slog.Attr { return slog.String(KeyArtifactPath, p) }

func RunID(id string) slog.Attr      { return slog.String(KeyRunID, id) }
func Phase(p string) slog.Attr       { return slog.String(KeyPhase, p) }
func GCSource(name string) slog.Attr { return slog.String(KeySourceGC, name) }

func StoreType(t string) slog.Attr { return slog.String(KeyStoreType, t) }
func IndexType(t string) slog.Attr { return slog.String(KeyIndexType, t) }
func Key(k string) slog.Attr       { return slog.String(KeyKey, k) }
func Attempt(n int) slog.Attr      { return slog.Int(KeyAttempt, n) }
func MaxRetries(n int) slog.Attr   { return slog.Int(KeyMaxRetries, n) }

// DurationMs is a duration already expressed in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Elapsed is the time since start, in milliseconds.
func Elapsed(start time.Time) slog.Attr {
	return DurationMs(float64(time.Since(start).Microseconds()) / 1000)
}

// Err returns an empty attr for a nil error, which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
