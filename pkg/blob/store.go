// Package blob implements the deduplicating, content-addressed blob store.
//
// Every distinct content identifier maps to exactly one Record in the store's
// registry. Uploads of content that is already stored only refresh the
// record; the bytes reach the backend once. Records are removed from the
// registry exclusively by the garbage collector (package gc), which drives
// the Record lifecycle methods in its mark and sweep phases.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittobin/internal/logger"
	"github.com/marmos91/dittobin/internal/telemetry"
	"github.com/marmos91/dittobin/pkg/blob/backend"
)

// Default tuning values.
const (
	DefaultReinsertWait    = 5 * time.Second
	DefaultReinsertRetries = 3
)

// Options configures a Store.
type Options struct {
	// ReinsertWait bounds how long a put or read waits for a concurrent
	// insert or deletion of the same blob to settle.
	ReinsertWait time.Duration

	// ReinsertRetries is how many times a put retries after ErrBusy.
	ReinsertRetries int

	// MaxBlobSize rejects larger uploads. Zero means unlimited.
	MaxBlobSize uint64

	// VerifyDigest hashes every written stream and rejects content that does
	// not match its ID.
	VerifyDigest bool

	// Metrics is optional.
	Metrics Metrics
}

// PutResult describes a completed put.
type PutResult struct {
	ID           ID     `json:"id"`
	Length       uint64 `json:"length"`
	Deduplicated bool   `json:"deduplicated"`
}

// ReadHandle is an open blob. Callers must Close it.
type ReadHandle struct {
	io.ReadCloser
	ID     ID
	Length uint64
}

// Store is the deduplicating blob store.
type Store struct {
	backend backend.BlobStore
	opts    Options
	metrics Metrics

	mu      sync.Mutex
	records map[ID]*Record
}

// NewStore creates a Store on top of a physical backend.
func NewStore(b backend.BlobStore, opts Options) *Store {
	if opts.ReinsertWait <= 0 {
		opts.ReinsertWait = DefaultReinsertWait
	}
	if opts.ReinsertRetries < 0 {
		opts.ReinsertRetries = 0
	}
	return &Store{
		backend: b,
		opts:    opts,
		metrics: opts.Metrics,
		records: make(map[ID]*Record),
	}
}

// Backend returns the physical backend.
func (s *Store) Backend() backend.BlobStore { return s.backend }

// getOrCreate returns the record for id, creating it in New when absent.
func (s *Store) getOrCreate(id ID, length uint64) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok {
		return rec, false
	}
	rec := newRecord(id, length, time.Now())
	s.records[id] = rec
	s.setRecords()
	return rec, true
}

// Lookup returns the registered record for id, or nil.
func (s *Store) Lookup(id ID) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

// Len returns the registry size.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Put stores length bytes read from r under id. If the content is already
// stored, r is not read and the result is marked Deduplicated.
func (s *Store) Put(ctx context.Context, id ID, length uint64, r io.Reader) (PutResult, error) {
	ctx, span := telemetry.StartBlobSpan(ctx, telemetry.SpanBlobPut, id.String(), telemetry.BlobSize(length))
	defer span.End()

	start := time.Now()
	res, err := s.put(ctx, id, length, r)
	s.observePut(length, res.Deduplicated, time.Since(start), err)

	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.DebugCtx(ctx, "Blob put failed", logger.BlobID(id.String()), logger.Size(length), logger.Err(err))
		return res, err
	}
	span.SetAttributes(telemetry.BlobDeduplicated(res.Deduplicated))
	logger.DebugCtx(ctx, "Blob stored",
		logger.BlobID(id.String()), logger.Size(length),
		"deduplicated", res.Deduplicated, logger.Elapsed(start))
	return res, nil
}

func (s *Store) put(ctx context.Context, id ID, length uint64, r io.Reader) (PutResult, error) {
	if err := id.Validate(); err != nil {
		return PutResult{}, err
	}
	if s.opts.MaxBlobSize > 0 && length > s.opts.MaxBlobSize {
		return PutResult{}, fmt.Errorf("%s: %d bytes exceeds %d: %w", id, length, s.opts.MaxBlobSize, ErrTooLarge)
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return PutResult{}, err
		}

		rec, needsWrite := s.getOrCreate(id, length)
		if !needsWrite {
			var err error
			needsWrite, err = rec.Reinsert(time.Now(), length, s.opts.ReinsertWait)
			switch {
			case errors.Is(err, errDetached):
				continue
			case errors.Is(err, ErrBusy) && attempt < s.opts.ReinsertRetries:
				logger.WarnCtx(ctx, "Blob busy, retrying put",
					logger.BlobID(id.String()), logger.Attempt(attempt+1), logger.MaxRetries(s.opts.ReinsertRetries))
				continue
			case err != nil:
				return PutResult{}, err
			}
		}

		if !needsWrite {
			return PutResult{ID: id, Length: rec.Length(), Deduplicated: true}, nil
		}
		if err := s.write(ctx, rec, length, r); err != nil {
			return PutResult{}, err
		}
		return PutResult{ID: id, Length: length}, nil
	}
}

// write performs the physical insert for a record the caller moved to New.
// If the backend panics the record is rolled back to Deleted before the panic
// propagates, so later uploads of the same content are not blocked.
func (s *Store) write(ctx context.Context, rec *Record, length uint64, r io.Reader) error {
	settled := false
	defer func() {
		if settled {
			return
		}
		if cerr := rec.ConfirmDeleted(); cerr != nil {
			logger.Warn("Failed to roll back interrupted insert", logger.BlobID(rec.id.String()), logger.Err(cerr))
		}
	}()

	cr := newCheckedReader(r, rec.id, length, s.opts.VerifyDigest)
	err := s.backend.WriteBlob(ctx, rec.id.Key(), cr, int64(length))
	settled = true
	if err == nil {
		return rec.MarkPersisted()
	}

	// Client faults leave the record as if the upload never happened.
	if errors.Is(err, ErrSizeMismatch) || errors.Is(err, ErrDigestMismatch) || ctx.Err() != nil {
		if cerr := rec.ConfirmDeleted(); cerr != nil {
			logger.Warn("Failed to roll back aborted insert", logger.BlobID(rec.id.String()), logger.Err(cerr))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("put %s: %w", rec.id, err)
	}

	berr := &BackendError{Op: "write", ID: rec.id, Backend: s.backend.Type(), Err: err}
	rec.Fail(berr)
	logger.ErrorCtx(ctx, "Backend write failed", logger.BlobID(rec.id.String()), logger.StoreType(s.backend.Type()), logger.Err(err))
	return berr
}

// Get opens the blob for reading.
func (s *Store) Get(ctx context.Context, id ID) (*ReadHandle, error) {
	ctx, span := telemetry.StartBlobSpan(ctx, telemetry.SpanBlobGet, id.String())
	defer span.End()

	start := time.Now()
	h, err := s.get(ctx, id)
	var n uint64
	if h != nil {
		n = h.Length
	}
	s.observeGet(n, time.Since(start), err)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return h, err
}

func (s *Store) get(ctx context.Context, id ID) (*ReadHandle, error) {
	rec := s.Lookup(id)
	if rec == nil {
		return nil, notFound(id)
	}
	if err := rec.Acquire(s.opts.ReinsertWait); err != nil {
		return nil, err
	}

	rc, err := s.backend.OpenBlob(ctx, id.Key())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		berr := &BackendError{Op: "open", ID: id, Backend: s.backend.Type(), Err: err}
		rec.Fail(berr)
		logger.ErrorCtx(ctx, "Backend open failed", logger.BlobID(id.String()), logger.StoreType(s.backend.Type()), logger.Err(err))
		return nil, berr
	}
	return &ReadHandle{ReadCloser: rc, ID: id, Length: rec.Length()}, nil
}

// Stat returns the record view for id.
func (s *Store) Stat(id ID) (RecordInfo, error) {
	rec := s.Lookup(id)
	if rec == nil {
		return RecordInfo{}, notFound(id)
	}
	return rec.Snapshot(), nil
}

// Records returns snapshots of every registered record, sorted by ID.
func (s *Store) Records() []RecordInfo {
	recs := s.snapshot()
	out := make([]RecordInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) snapshot() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	return recs
}

// Each calls fn for every record registered when Each was called. The
// registry lock is not held while fn runs. Iteration stops when fn returns
// false.
func (s *Store) Each(fn func(*Record) bool) {
	for _, r := range s.snapshot() {
		if !fn(r) {
			return
		}
	}
}

// Touch marks the record for id as reachable. It reports whether a record
// moved from Found to Used; unknown ids return false.
func (s *Store) Touch(id ID) bool {
	rec := s.Lookup(id)
	if rec == nil {
		return false
	}
	return rec.Touch()
}

// Delete physically removes a MarkedForDeletion record and returns the
// reclaimed size. On failure the record moves to InError.
func (s *Store) Delete(ctx context.Context, rec *Record) (uint64, error) {
	ctx, span := telemetry.StartBlobSpan(ctx, telemetry.SpanBlobDelete, rec.id.String())
	defer span.End()

	length := rec.Length()
	if err := s.backend.DeleteBlob(ctx, rec.id.Key()); err != nil {
		berr := &BackendError{Op: "delete", ID: rec.id, Backend: s.backend.Type(), Err: err}
		rec.Fail(berr)
		s.observeDelete(0, berr)
		telemetry.RecordError(ctx, berr)
		return 0, berr
	}
	if err := rec.ConfirmDeleted(); err != nil {
		s.observeDelete(0, err)
		return 0, err
	}
	s.observeDelete(length, nil)
	return length, nil
}

// Detach drops a Deleted or InError record from the registry if it was
// flagged removable by a previous scan. Writers still holding the record
// re-resolve on their next attempt.
func (s *Store) Detach(rec *Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.records[rec.id]; !ok || cur != rec {
		return false
	}
	if !rec.detachIfRemovable() {
		return false
	}
	delete(s.records, rec.id)
	s.setRecords()
	return true
}

// Reset administratively clears an InError record so the next upload of id
// starts over.
func (s *Store) Reset(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return notFound(id)
	}
	if err := rec.reset(); err != nil {
		return err
	}
	delete(s.records, id)
	s.setRecords()
	logger.Info("Blob record reset", logger.BlobID(id.String()))
	return nil
}

// Load registers every blob present in the backend as a persisted record.
// It is meant for start-up, before the store serves traffic.
func (s *Store) Load(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartBlobSpan(ctx, telemetry.SpanBlobLoad, "")
	defer span.End()

	start := time.Now()
	loaded, skipped := 0, 0
	err := s.backend.ListBlobs(ctx, func(key string, size int64) error {
		id, err := ParseKey(key)
		if err != nil {
			skipped++
			logger.Warn("Skipping unrecognized backend object", logger.Key(key), logger.Err(err))
			return nil
		}
		rec, created := s.getOrCreate(id, uint64(size))
		if !created {
			return nil
		}
		if err := rec.MarkPersisted(); err != nil {
			return err
		}
		loaded++
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return loaded, fmt.Errorf("load blobs from %s backend: %w", s.backend.Type(), err)
	}

	logger.Info("Blob registry loaded",
		"loaded", loaded, "skipped", skipped,
		logger.StoreType(s.backend.Type()), logger.Elapsed(start))
	return loaded, nil
}

// Usage reports what the backend currently holds.
func (s *Store) Usage(ctx context.Context) (backend.Usage, error) {
	return s.backend.Usage(ctx)
}

// HealthCheck checks the backend.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.backend.HealthCheck(ctx)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
