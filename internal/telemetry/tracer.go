package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys. These follow OpenTelemetry semantic conventions
// where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// HTTP attributes
	// ========================================================================
	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"

	// ========================================================================
	// Blob attributes
	// ========================================================================
	AttrBlobID        = "blob.id"
	AttrBlobSize      = "blob.size"
	AttrBlobState     = "blob.state"
	AttrBlobDedup     = "blob.deduplicated"
	AttrArtifactPath  = "artifact.path"
	AttrBlobOperation = "blob.operation"

	// ========================================================================
	// Garbage collection attributes
	// ========================================================================
	AttrGCRunID     = "gc.run_id"
	AttrGCPhase     = "gc.phase"
	AttrGCSource    = "gc.source"
	AttrGCNodes     = "gc.nodes"
	AttrGCCleaned   = "gc.cleaned"
	AttrGCReclaimed = "gc.bytes_reclaimed"

	// ========================================================================
	// Storage backend attributes
	// ========================================================================
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	SpanBlobPut    = "blob.put"
	SpanBlobGet    = "blob.get"
	SpanBlobDelete = "blob.delete"
	SpanBlobLoad   = "blob.load"

	SpanGCScan         = "gc.scan"
	SpanGCScanSource   = "gc.scan_source"
	SpanGCDeleteUnused = "gc.delete_unused"
	SpanGCCycle        = "gc.cycle"

	SpanHTTPRequest = "http.request"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address (ip:port)
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// HTTPMethod returns an attribute for the request method
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPRoute returns an attribute for the matched route pattern
func HTTPRoute(route string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, route)
}

// HTTPStatus returns an attribute for the response status
func HTTPStatus(status int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, status)
}

// BlobID returns an attribute for a content identifier
func BlobID(id string) attribute.KeyValue {
	return attribute.String(AttrBlobID, id)
}

// BlobSize returns an attribute for a blob length in bytes
func BlobSize(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrBlobSize, int64(size))
}

// BlobState returns an attribute for a record state
func BlobState(state string) attribute.KeyValue {
	return attribute.String(AttrBlobState, state)
}

// BlobDeduplicated returns an attribute telling whether a put reused stored content
func BlobDeduplicated(dedup bool) attribute.KeyValue {
	return attribute.Bool(AttrBlobDedup, dedup)
}

// ArtifactPath returns an attribute for a logical artifact path
func ArtifactPath(path string) attribute.KeyValue {
	return attribute.String(AttrArtifactPath, path)
}

// GCRunID returns an attribute for a collector run
func GCRunID(id string) attribute.KeyValue {
	return attribute.String(AttrGCRunID, id)
}

// GCPhase returns an attribute for a collector phase
func GCPhase(phase string) attribute.KeyValue {
	return attribute.String(AttrGCPhase, phase)
}

// GCSource returns an attribute for an enumeration source name
func GCSource(name string) attribute.KeyValue {
	return attribute.String(AttrGCSource, name)
}

// GCNodes returns an attribute for the number of enumerated nodes
func GCNodes(n int) attribute.KeyValue {
	return attribute.Int(AttrGCNodes, n)
}

// GCCleaned returns an attribute for the number of deleted blobs
func GCCleaned(n int) attribute.KeyValue {
	return attribute.Int(AttrGCCleaned, n)
}

// GCReclaimed returns an attribute for reclaimed bytes
func GCReclaimed(bytes uint64) attribute.KeyValue {
	return attribute.Int64(AttrGCReclaimed, int64(bytes))
}

// StoreType returns an attribute for the backend type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Bucket returns an attribute for storage bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for storage object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartBlobSpan starts a span for a blob store operation.
func StartBlobSpan(ctx context.Context, name string, id string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	if id != "" {
		allAttrs = append(allAttrs, BlobID(id))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartGCSpan starts a span for a collector phase.
func StartGCSpan(ctx context.Context, name string, runID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{GCRunID(runID)}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
