package gc

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittobin/internal/logger"
	"github.com/marmos91/dittobin/internal/telemetry"
	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/guarded"
)

// DefaultParallelism bounds how many sources are enumerated at once.
const DefaultParallelism = 4

// DefaultProperties returns the node properties scanned when none are
// configured.
func DefaultProperties() []string { return []string{"sha256"} }

// Options configures a Collector.
type Options struct {
	// Properties are the node property names that may carry a content
	// identifier. A value without an algorithm prefix is parsed as
	// "<property>:<value>".
	Properties []string

	// Parallelism bounds concurrent source enumeration.
	Parallelism int

	// Metrics is optional.
	Metrics Metrics
}

// Collector is the mark-and-sweep garbage collector of a blob.Store.
type Collector struct {
	store       *blob.Store
	sources     []Source
	props       []string
	parallelism int
	metrics     Metrics

	phase *guarded.State[Phase]

	// opMu serializes Scan, StopScan, DeleteUnused and Abort.
	opMu sync.Mutex
	// cycleMu serializes RunCycle.
	cycleMu sync.Mutex

	mu   sync.Mutex
	run  *runState
	last *Report
}

type runState struct {
	info   Run
	report *Report
}

// New creates a collector for store that finds references through sources.
func New(store *blob.Store, sources []Source, opts Options) *Collector {
	props := opts.Properties
	if len(props) == 0 {
		props = DefaultProperties()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	return &Collector{
		store:       store,
		sources:     append([]Source(nil), sources...),
		props:       append([]string(nil), props...),
		parallelism: opts.Parallelism,
		metrics:     opts.Metrics,
		phase:       guarded.New(Idle, phaseAllowed),
	}
}

// Properties returns the scanned property names.
func (c *Collector) Properties() []string {
	return append([]string(nil), c.props...)
}

// Phase returns the current run phase.
func (c *Collector) Phase() Phase {
	return c.phase.Current()
}

// CurrentRun returns the run in progress, if any.
func (c *Collector) CurrentRun() (Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return Run{}, false
	}
	info := c.run.info
	info.Properties = append([]string(nil), info.Properties...)
	return info, true
}

// LastReport returns the report of the last completed run, or nil.
func (c *Collector) LastReport() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.clone()
}

// enter moves the phase to `to` if the current phase is one of from.
func (c *Collector) enter(op string, to Phase, from ...Phase) (Phase, error) {
	var prev Phase
	_, err := c.phase.Transition(func(cur Phase) (Phase, error) {
		prev = cur
		for _, f := range from {
			if cur == f {
				return to, nil
			}
		}
		return cur, &PhaseError{Op: op, Phase: cur, Want: from}
	})
	if err != nil {
		return prev, err
	}
	if prev != to {
		c.mu.Lock()
		if c.run != nil {
			c.run.info.Phase = to
		}
		c.mu.Unlock()
		c.observePhase(to)
	}
	return prev, nil
}

// Scan runs the mark phase. The call that opens a run snapshots the backend
// usage and prepares every record; later calls in the same run only repeat
// the enumeration. Enumeration problems are counted in the returned report;
// the error is non-nil only for an out-of-order call or a canceled ctx.
func (c *Collector) Scan(ctx context.Context) (*ScanReport, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	prev, err := c.enter("scan", Scanning, Idle, Scanning)
	if err != nil {
		return nil, err
	}
	opening := prev == Idle
	if opening {
		c.openRun(ctx)
	}

	c.mu.Lock()
	run := c.run
	c.mu.Unlock()

	ctx, span := telemetry.StartGCSpan(ctx, telemetry.SpanGCScan, run.info.ID)
	defer span.End()

	start := time.Now()
	sr := &ScanReport{RunID: run.info.ID}
	if opening {
		sr.Records, sr.Removed, sr.ProtocolViolations = c.beginScan(ctx)
	}
	sr.Sources = c.scanSources(ctx, run.info.ID)
	sr.Duration = time.Since(start)

	c.mu.Lock()
	rep := run.report
	rep.ScanPasses++
	sr.Pass = rep.ScanPasses
	rep.ScanDuration += sr.Duration
	rep.Removed += sr.Removed
	rep.ProtocolViolations += sr.ProtocolViolations
	for _, s := range sr.Sources {
		rep.Sources = append(rep.Sources, s)
		rep.ScanErrors += s.Errors + s.Invalid
		if s.Failed() {
			rep.ScanErrors++
		}
	}
	c.mu.Unlock()

	logger.InfoCtx(ctx, "GC: scan complete",
		logger.RunID(run.info.ID),
		"pass", sr.Pass,
		"sources", len(sr.Sources),
		logger.KeyRemoved, sr.Removed,
		"protocol_violations", sr.ProtocolViolations,
		logger.DurationMs(float64(sr.Duration.Microseconds())/1000.0))

	if err := ctx.Err(); err != nil {
		telemetry.RecordError(ctx, err)
		return sr, err
	}
	return sr, nil
}

// openRun starts a new run. Must be called with opMu held.
func (c *Collector) openRun(ctx context.Context) {
	now := time.Now()
	info := Run{
		ID:         uuid.NewString(),
		Phase:      Scanning,
		StartedAt:  now,
		Properties: append([]string(nil), c.props...),
	}
	usage, err := c.store.Usage(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "GC: backend usage unavailable", logger.Err(err))
	} else {
		info.InitialCount = usage.Count
		info.InitialSizeBytes = usage.Bytes
	}

	c.mu.Lock()
	c.run = &runState{
		info: info,
		report: &Report{
			RunID:            info.ID,
			Properties:       info.Properties,
			StartedAt:        now,
			InitialCount:     info.InitialCount,
			InitialSizeBytes: info.InitialSizeBytes,
		},
	}
	c.mu.Unlock()

	logger.InfoCtx(ctx, "GC: run started",
		logger.RunID(info.ID),
		"initial_count", info.InitialCount,
		"initial_size_bytes", info.InitialSizeBytes,
		"properties", strings.Join(info.Properties, ","))
}

// beginScan resets every record for the new mark phase and drops the ones
// that have been Deleted or InError for two scans.
func (c *Collector) beginScan(ctx context.Context) (records, removed, violations int) {
	c.store.Each(func(rec *blob.Record) bool {
		records++
		removable, err := rec.BeginScan()
		if err != nil {
			violations++
			logger.WarnCtx(ctx, "GC: record in unexpected state at scan start",
				logger.BlobID(rec.ID().String()), logger.State(rec.State().String()), logger.Err(err))
			return true
		}
		if removable && c.store.Detach(rec) {
			removed++
			logger.DebugCtx(ctx, "GC: record removed from registry",
				logger.BlobID(rec.ID().String()), logger.State(rec.State().String()))
		}
		return true
	})
	return records, removed, violations
}

func (c *Collector) scanSources(ctx context.Context, runID string) []SourceReport {
	reports := make([]SourceReport, len(c.sources))

	var g errgroup.Group
	g.SetLimit(c.parallelism)
	for i, src := range c.sources {
		g.Go(func() error {
			reports[i] = c.scanSource(ctx, runID, src)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// scanSource enumerates one source. A failure only ends this source.
func (c *Collector) scanSource(ctx context.Context, runID string, src Source) (rep SourceReport) {
	ctx, span := telemetry.StartGCSpan(ctx, telemetry.SpanGCScanSource, runID, telemetry.GCSource(src.Name()))
	defer span.End()

	rep.Name = src.Name()
	start := time.Now()
	defer func() {
		rep.Duration = time.Since(start)
		span.SetAttributes(telemetry.GCNodes(rep.Nodes))
		c.observeSource(rep)

		args := []any{
			logger.RunID(runID),
			logger.GCSource(rep.Name),
			logger.KeyNodes, rep.Nodes,
			logger.KeyTouched, rep.Touched,
			"reachable", rep.Reachable,
			"unknown", rep.Unknown,
			"invalid", rep.Invalid,
			logger.KeyScanErrs, rep.Errors,
			logger.DurationMs(float64(rep.Duration.Microseconds()) / 1000.0),
		}
		if rep.Failed() {
			logger.WarnCtx(ctx, "GC: source scan failed", append(args, logger.KeyError, rep.Err)...)
			return
		}
		logger.InfoCtx(ctx, "GC: source scanned", args...)
	}()

	it, err := src.FindNodesWithAnyProperty(ctx, c.props)
	if err != nil {
		rep.Err = err.Error()
		telemetry.RecordError(ctx, err)
		return rep
	}
	defer func() { _ = it.Close() }()

	for {
		if err := ctx.Err(); err != nil {
			rep.Err = err.Error()
			return rep
		}

		node, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return rep
		}
		var nerr *NodeError
		if errors.As(err, &nerr) {
			rep.Errors++
			logger.DebugCtx(ctx, "GC: skipping unreadable node",
				logger.GCSource(rep.Name), logger.ArtifactPath(nerr.Path), logger.Err(nerr.Err))
			continue
		}
		if err != nil {
			rep.Err = err.Error()
			telemetry.RecordError(ctx, err)
			return rep
		}

		rep.Nodes++
		id, err := parseNodeID(node)
		if err != nil {
			rep.Invalid++
			logger.DebugCtx(ctx, "GC: skipping node with invalid identifier",
				logger.GCSource(rep.Name), logger.ArtifactPath(node.Path),
				logger.KeyProperty, node.Property, logger.Err(err))
			continue
		}

		rec := c.store.Lookup(id)
		if rec == nil {
			rep.Unknown++
			continue
		}
		rep.Reachable++
		if rec.Touch() {
			rep.Touched++
		}
	}
}

// parseNodeID reads the identifier carried by a node property.
func parseNodeID(n Node) (blob.ID, error) {
	return ResolveID(n.Property, n.Value)
}

// ResolveID turns a property value into a blob ID. A bare hex value is
// qualified with the property name, so sha256=ab12.. reads as sha256:ab12...
func ResolveID(property, value string) (blob.ID, error) {
	v := strings.TrimSpace(value)
	if !strings.Contains(v, ":") {
		v = strings.ToLower(property) + ":" + strings.ToLower(v)
	}
	return blob.Parse(v)
}

// StopScan closes the mark phase of the current run.
func (c *Collector) StopScan() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if _, err := c.enter("stop scan", Stopped, Scanning); err != nil {
		return err
	}

	now := time.Now()
	c.mu.Lock()
	c.run.info.StoppedAt = now
	c.run.report.StoppedAt = now
	runID := c.run.info.ID
	c.mu.Unlock()

	logger.Info("GC: scan stopped", logger.RunID(runID))
	return nil
}

// DeleteUnused runs the sweep. Records left Found by the scan are flagged
// the first time and deleted when a second consecutive run finds them
// unreachable again. Per-blob delete failures are counted and the sweep goes
// on. When ctx is canceled the sweep stops early, the partial report is
// returned along with ctx's error, and the collector is Idle again.
func (c *Collector) DeleteUnused(ctx context.Context) (*Report, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if _, err := c.enter("delete unused", Swept, Stopped); err != nil {
		return nil, err
	}

	c.mu.Lock()
	run := c.run
	c.mu.Unlock()
	rep := run.report
	stoppedAt := run.info.StoppedAt

	ctx, span := telemetry.StartGCSpan(ctx, telemetry.SpanGCDeleteUnused, run.info.ID)
	defer span.End()

	// A marked record must reach Deleted or InError, so deletes are not
	// interrupted by ctx.
	deleteCtx := context.WithoutCancel(ctx)

	var sweepErr error
	start := time.Now()
	c.store.Each(func(rec *blob.Record) bool {
		if err := ctx.Err(); err != nil {
			sweepErr = err
			rep.Aborted = true
			return false
		}
		if !rec.MarkForDeletion(stoppedAt) {
			return true
		}
		n, err := c.store.Delete(deleteCtx, rec)
		if err != nil {
			rep.DeleteErrors++
			logger.WarnCtx(ctx, "GC: failed to delete blob",
				logger.BlobID(rec.ID().String()), logger.Err(err))
			return true
		}
		rep.Cleaned++
		rep.BytesReclaimed += n
		logger.DebugCtx(ctx, "GC: deleted blob", logger.BlobID(rec.ID().String()), logger.Bytes(n))
		return true
	})
	rep.SweepDuration = time.Since(start)
	rep.SweptAt = time.Now()

	usage, err := c.store.Usage(deleteCtx)
	if err != nil {
		logger.WarnCtx(ctx, "GC: backend usage unavailable", logger.Err(err))
	} else {
		rep.CurrentCount = usage.Count
		rep.CurrentSizeBytes = usage.Bytes
	}

	span.SetAttributes(telemetry.GCCleaned(rep.Cleaned), telemetry.GCReclaimed(rep.BytesReclaimed))
	if sweepErr != nil {
		telemetry.RecordError(ctx, sweepErr)
	}

	logger.InfoCtx(ctx, "GC: complete",
		logger.RunID(rep.RunID),
		"initial_count", rep.InitialCount,
		"initial_size_bytes", rep.InitialSizeBytes,
		"scan_passes", rep.ScanPasses,
		"scan_duration_ms", rep.ScanDuration.Milliseconds(),
		"sweep_duration_ms", rep.SweepDuration.Milliseconds(),
		logger.KeyScanErrs, rep.ScanErrors,
		"protocol_violations", rep.ProtocolViolations,
		logger.KeyRemoved, rep.Removed,
		logger.KeyCleaned, rep.Cleaned,
		logger.KeyDelErrs, rep.DeleteErrors,
		logger.KeyReclaimed, rep.BytesReclaimed,
		"current_count", rep.CurrentCount,
		"current_size_bytes", rep.CurrentSizeBytes,
		"aborted", rep.Aborted)

	c.observeRun(rep)

	c.mu.Lock()
	c.last = rep
	c.run = nil
	c.mu.Unlock()

	if _, err := c.enter("delete unused", Idle, Swept); err != nil {
		return nil, err
	}
	return rep.clone(), sweepErr
}

// Abort abandons the run in progress. Records keep their states; the next
// run starts over with a full scan.
func (c *Collector) Abort() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	prev, err := c.enter("abort", Idle, Scanning, Stopped)
	if err != nil {
		return err
	}

	c.mu.Lock()
	var runID string
	if c.run != nil {
		runID = c.run.info.ID
	}
	c.run = nil
	c.mu.Unlock()

	logger.Warn("GC: run aborted", logger.RunID(runID), logger.Phase(prev.String()))
	return nil
}

// RunCycle runs Scan, StopScan and DeleteUnused back to back. The collector
// must be Idle.
func (c *Collector) RunCycle(ctx context.Context) (*Report, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	if p := c.Phase(); p != Idle {
		return nil, &PhaseError{Op: "run cycle", Phase: p, Want: []Phase{Idle}}
	}

	ctx, span := telemetry.StartGCSpan(ctx, telemetry.SpanGCCycle, "")
	defer span.End()

	if _, err := c.Scan(ctx); err != nil {
		if !errors.Is(err, ErrInvalidPhase) {
			_ = c.Abort()
		}
		return nil, err
	}
	if err := c.StopScan(); err != nil {
		return nil, err
	}
	return c.DeleteUnused(ctx)
}
