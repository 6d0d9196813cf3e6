package gc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/blob/backend/memory"
)

func TestCollector_UnreferencedBlobReclaimedOnSecondCycle(t *testing.T) {
	s := newStore(t)
	c := New(s, []Source{newTreeSource("tree")}, Options{})
	id := put(t, s, "orphan")

	rep := cycle(t, c)
	if rep.Cleaned != 0 || rep.BytesReclaimed != 0 {
		t.Fatalf("first cycle must only flag, got cleaned=%d reclaimed=%d", rep.Cleaned, rep.BytesReclaimed)
	}
	if got := stateOf(t, s, id); got != blob.Found {
		t.Fatalf("state after first cycle = %v, want found", got)
	}

	rep = cycle(t, c)
	if rep.Cleaned != 1 || rep.BytesReclaimed != uint64(len("orphan")) {
		t.Fatalf("second cycle cleaned=%d reclaimed=%d", rep.Cleaned, rep.BytesReclaimed)
	}
	if rep.InitialCount != 1 || rep.CurrentCount != 0 {
		t.Errorf("usage initial=%d current=%d", rep.InitialCount, rep.CurrentCount)
	}
	if _, err := s.Get(context.Background(), id); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("Get after sweep: expected ErrNotFound, got %v", err)
	}

	// Deleted records leave the registry after two more scans.
	rep = cycle(t, c)
	if rep.Removed != 0 || s.Len() != 1 {
		t.Fatalf("third cycle removed=%d len=%d", rep.Removed, s.Len())
	}
	rep = cycle(t, c)
	if rep.Removed != 1 || s.Len() != 0 {
		t.Fatalf("fourth cycle removed=%d len=%d", rep.Removed, s.Len())
	}
}

func TestCollector_ReferencedBlobSurvives(t *testing.T) {
	s := newStore(t)
	src := newTreeSource("tree")
	c := New(s, []Source{src}, Options{})

	id := put(t, s, "kept")
	src.link("libs/a.jar", id)
	src.link("libs/b.jar", id)

	for i := 0; i < 4; i++ {
		rep := cycle(t, c)
		if rep.Cleaned != 0 {
			t.Fatalf("cycle %d deleted a referenced blob", i)
		}
		if len(rep.Sources) != 1 || rep.Sources[0].Reachable != 2 {
			t.Fatalf("cycle %d source report %+v", i, rep.Sources)
		}
		// The first reference moves the record back to Used.
		if rep.Sources[0].Touched != 1 {
			t.Errorf("cycle %d touched = %d, want 1", i, rep.Sources[0].Touched)
		}
	}
	if got := stateOf(t, s, id); got != blob.Used {
		t.Errorf("state = %v, want used", got)
	}
}

func TestCollector_DroppedReferenceReclaimedAfterTwoCycles(t *testing.T) {
	s := newStore(t)
	src := newTreeSource("tree")
	c := New(s, []Source{src}, Options{})

	id := put(t, s, "short-lived")
	src.link("a", id)
	cycle(t, c)

	src.unlink("a")
	if rep := cycle(t, c); rep.Cleaned != 0 {
		t.Fatal("blob deleted one cycle after losing its last reference")
	}
	if rep := cycle(t, c); rep.Cleaned != 1 {
		t.Fatalf("blob not deleted on the second unreferenced cycle: %+v", rep)
	}
}

func TestCollector_ReuploadResetsDebounce(t *testing.T) {
	s := newStore(t)
	c := New(s, []Source{newTreeSource("tree")}, Options{})

	id := put(t, s, "again")
	cycle(t, c)

	res, err := s.Put(context.Background(), id, 5, strings.NewReader("again"))
	if err != nil {
		t.Fatalf("re-upload failed: %v", err)
	}
	if !res.Deduplicated {
		t.Fatal("re-upload of a flagged blob must be deduplicated")
	}

	if rep := cycle(t, c); rep.Cleaned != 0 {
		t.Fatal("re-upload did not reset the debounce")
	}
	if rep := cycle(t, c); rep.Cleaned != 1 {
		t.Fatalf("expected deletion once the debounce elapsed again, got %+v", rep)
	}
}

func TestCollector_ReadAfterStopScanProtectsBlob(t *testing.T) {
	s := newStore(t)
	c := New(s, []Source{newTreeSource("tree")}, Options{})
	ctx := context.Background()

	id := put(t, s, "late reader")
	cycle(t, c)

	if _, err := c.Scan(ctx); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if err := c.StopScan(); err != nil {
		t.Fatalf("StopScan failed: %v", err)
	}

	h, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	_ = h.Close()

	rep, err := c.DeleteUnused(ctx)
	if err != nil {
		t.Fatalf("DeleteUnused failed: %v", err)
	}
	if rep.Cleaned != 0 {
		t.Error("a blob read before the sweep must not be deleted")
	}
}

func TestCollector_PhaseOrder(t *testing.T) {
	s := newStore(t)
	c := New(s, nil, Options{})
	ctx := context.Background()

	if err := c.StopScan(); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("StopScan while idle: expected ErrInvalidPhase, got %v", err)
	}
	if _, err := c.DeleteUnused(ctx); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("DeleteUnused while idle: expected ErrInvalidPhase, got %v", err)
	}
	if err := c.Abort(); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("Abort while idle: expected ErrInvalidPhase, got %v", err)
	}

	if _, err := c.Scan(ctx); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if _, err := c.DeleteUnused(ctx); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("DeleteUnused while scanning: expected ErrInvalidPhase, got %v", err)
	}
	if _, err := c.RunCycle(ctx); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("RunCycle while scanning: expected ErrInvalidPhase, got %v", err)
	}
	if err := c.StopScan(); err != nil {
		t.Fatalf("StopScan failed: %v", err)
	}

	_, err := c.Scan(ctx)
	var pe *PhaseError
	if !errors.As(err, &pe) {
		t.Fatalf("Scan while stopped: expected *PhaseError, got %v", err)
	}
	if pe.Phase != Stopped || pe.Op != "scan" {
		t.Errorf("unexpected phase error %+v", pe)
	}
	if c.Phase() != Stopped {
		t.Errorf("rejected call changed the phase to %v", c.Phase())
	}

	if _, err := c.DeleteUnused(ctx); err != nil {
		t.Fatalf("DeleteUnused failed: %v", err)
	}
	if c.Phase() != Idle {
		t.Errorf("phase after sweep = %v, want idle", c.Phase())
	}
}

func TestCollector_RepeatedScanKeepsRun(t *testing.T) {
	s := newStore(t)
	src := newTreeSource("tree")
	c := New(s, []Source{src}, Options{})
	ctx := context.Background()

	first, err := c.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	second, err := c.Scan(ctx)
	if err != nil {
		t.Fatalf("second Scan failed: %v", err)
	}
	if first.RunID != second.RunID {
		t.Error("repeated Scan opened a new run")
	}
	if first.Pass != 1 || second.Pass != 2 {
		t.Errorf("passes = %d, %d", first.Pass, second.Pass)
	}
	if src.calls != 2 {
		t.Errorf("source enumerated %d times, want 2", src.calls)
	}

	run, ok := c.CurrentRun()
	if !ok || run.ID != first.RunID || run.Phase != Scanning {
		t.Errorf("CurrentRun = %+v, %v", run, ok)
	}

	if err := c.StopScan(); err != nil {
		t.Fatal(err)
	}
	rep, err := c.DeleteUnused(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.ScanPasses != 2 || len(rep.Sources) != 2 {
		t.Errorf("report passes=%d sources=%d", rep.ScanPasses, len(rep.Sources))
	}
	if _, ok := c.CurrentRun(); ok {
		t.Error("run still reported after the sweep")
	}
}

func TestCollector_SourceErrorsAreIsolated(t *testing.T) {
	s := newStore(t)
	kept := put(t, s, "kept")

	broken := newTreeSource("broken")
	broken.findErr = errors.New("index offline")

	noisy := newTreeSource("noisy")
	noisy.link("ok", kept)
	noisy.setRaw("bad-digest", "sha256", "not-a-digest")
	noisy.setRaw("missing", "sha256", blob.FromBytes([]byte("never stored")).Hex())
	noisy.extra = []error{&NodeError{Path: "unreadable", Err: errors.New("corrupt row")}}

	c := New(s, []Source{broken, noisy}, Options{Parallelism: 2})
	cycle(t, c)
	rep := cycle(t, c)

	if rep.Cleaned != 0 {
		t.Fatal("a blob referenced by a healthy source was deleted")
	}

	var b, n SourceReport
	for _, sr := range rep.Sources {
		switch sr.Name {
		case "broken":
			b = sr
		case "noisy":
			n = sr
		}
	}
	if !b.Failed() {
		t.Errorf("broken source not reported as failed: %+v", b)
	}
	if n.Failed() || n.Errors != 1 || n.Invalid != 1 || n.Unknown != 1 || n.Reachable != 1 {
		t.Errorf("noisy source report %+v", n)
	}
	// Per cycle: one failed source, one unreadable node, one invalid value.
	if rep.ScanErrors != 3 {
		t.Errorf("ScanErrors = %d, want 3", rep.ScanErrors)
	}
}

// failingIterator returns a non-node error after its first node.
type failingIterator struct{ n int }

func (it *failingIterator) Next(ctx context.Context) (Node, error) {
	it.n++
	if it.n == 1 {
		return Node{Path: "first", Property: "sha256", Value: blob.FromBytes([]byte("first")).Hex()}, nil
	}
	return Node{}, errors.New("connection reset")
}

func (it *failingIterator) Close() error { return nil }

type iteratorSource struct{ it NodeIterator }

func (s iteratorSource) Name() string { return "iter" }

func (s iteratorSource) FindNodesWithAnyProperty(context.Context, []string) (NodeIterator, error) {
	return s.it, nil
}

func TestCollector_IteratorFailureEndsSource(t *testing.T) {
	s := newStore(t)
	put(t, s, "first")
	c := New(s, []Source{iteratorSource{it: &failingIterator{}}}, Options{})

	sr, err := c.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	got := sr.Sources[0]
	if !got.Failed() || got.Nodes != 1 || got.Touched != 1 {
		t.Errorf("source report %+v", got)
	}
	_ = c.Abort()
}

func TestCollector_PrefixedAndPlainValues(t *testing.T) {
	tests := []struct {
		name  string
		node  Node
		valid bool
	}{
		{"plain hex", Node{Property: "sha256", Value: blob.FromBytes([]byte("x")).Hex()}, true},
		{"prefixed", Node{Property: "checksum", Value: blob.FromBytes([]byte("x")).String()}, true},
		{"upper case", Node{Property: "SHA256", Value: "  " + blob.FromBytes([]byte("x")).Hex() + " "}, true},
		{"wrong length", Node{Property: "sha256", Value: "abcd"}, false},
		{"unknown algorithm", Node{Property: "md5", Value: "d41d8cd98f00b204e9800998ecf8427e"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseNodeID(tt.node)
			if (err == nil) != tt.valid {
				t.Errorf("parseNodeID(%+v) error = %v, valid = %v", tt.node, err, tt.valid)
			}
		})
	}
}

func TestCollector_Abort(t *testing.T) {
	s := newStore(t)
	c := New(s, []Source{newTreeSource("tree")}, Options{})
	ctx := context.Background()
	id := put(t, s, "abandoned")

	if _, err := c.Scan(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StopScan(); err != nil {
		t.Fatal(err)
	}
	if err := c.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if c.Phase() != Idle {
		t.Errorf("phase after abort = %v", c.Phase())
	}
	if c.LastReport() != nil {
		t.Error("aborted run produced a report")
	}

	// The record is left Found and stays readable.
	h, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after abort failed: %v", err)
	}
	_ = h.Close()

	cycle(t, c)
	if c.LastReport() == nil {
		t.Error("no report after a full cycle")
	}
}

func TestCollector_DeleteFailureMovesRecordToError(t *testing.T) {
	b := &deleteFailBackend{Store: memory.New()}
	s := blob.NewStore(b, blob.Options{})
	c := New(s, nil, Options{})
	id := put(t, s, "stuck")

	cycle(t, c)
	b.setFailing(true)
	rep := cycle(t, c)
	if rep.DeleteErrors != 1 || rep.Cleaned != 0 || rep.BytesReclaimed != 0 {
		t.Fatalf("report %+v", rep)
	}
	if got := stateOf(t, s, id); got != blob.InError {
		t.Fatalf("state = %v, want in_error", got)
	}
	if _, err := s.Get(context.Background(), id); !errors.Is(err, blob.ErrBackend) {
		t.Errorf("Get on failed record: expected ErrBackend, got %v", err)
	}

	b.setFailing(false)
	cycle(t, c)
	if rep := cycle(t, c); rep.Removed != 1 || s.Len() != 0 {
		t.Errorf("InError record not removed: removed=%d len=%d", rep.Removed, s.Len())
	}

	// A fresh upload starts over with a new record.
	put(t, s, "stuck")
	if got := stateOf(t, s, id); got != blob.Used {
		t.Errorf("state after re-upload = %v, want used", got)
	}
}

func TestCollector_CanceledSweepReturnsPartialReport(t *testing.T) {
	s := newStore(t)
	c := New(s, nil, Options{})
	put(t, s, "a")
	put(t, s, "b")
	cycle(t, c)

	ctx := context.Background()
	if _, err := c.Scan(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.StopScan(); err != nil {
		t.Fatal(err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	rep, err := c.DeleteUnused(canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rep == nil || !rep.Aborted || rep.Cleaned != 0 {
		t.Fatalf("report %+v", rep)
	}
	if c.Phase() != Idle {
		t.Errorf("phase = %v, want idle", c.Phase())
	}

	// Nothing was left half-marked.
	for _, info := range s.Records() {
		if info.State == blob.MarkedForDeletion {
			t.Errorf("%s left marked for deletion", info.ID)
		}
	}
	if rep := cycle(t, c); rep.ProtocolViolations != 0 {
		t.Errorf("protocol violations after canceled sweep: %d", rep.ProtocolViolations)
	}
}

func TestCollector_ConcurrentTrafficNeverLosesReferencedBlobs(t *testing.T) {
	s := newStore(t)
	src := newTreeSource("tree")
	c := New(s, []Source{src}, Options{})

	const n = 20
	ids := make([]blob.ID, n)
	for i := range ids {
		ids[i] = put(t, s, fmt.Sprintf("artifact-%d", i))
		if i%2 == 0 {
			src.link(fmt.Sprintf("path/%d", i), ids[i])
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var readErrs atomic.Int32
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for k := w; ctx.Err() == nil; k++ {
				i := (k * 2) % n
				h, err := s.Get(ctx, ids[i])
				if err != nil {
					if ctx.Err() == nil {
						readErrs.Add(1)
					}
					continue
				}
				_, _ = io.Copy(io.Discard, h)
				_ = h.Close()
			}
		}(w)
	}

	for i := 0; i < 5; i++ {
		cycle(t, c)
	}
	cancel()
	wg.Wait()

	if readErrs.Load() != 0 {
		t.Errorf("%d reads of referenced blobs failed", readErrs.Load())
	}
	for i, id := range ids {
		_, err := s.Get(context.Background(), id)
		if i%2 == 0 && err != nil {
			t.Errorf("referenced blob %d lost: %v", i, err)
		}
		if i%2 == 1 && !errors.Is(err, blob.ErrNotFound) {
			t.Errorf("unreferenced blob %d still readable: %v", i, err)
		}
	}
}

type recordingMetrics struct {
	mu      sync.Mutex
	phases  []Phase
	sources int
	runs    []*Report
}

func (m *recordingMetrics) ObservePhase(p Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, p)
}

func (m *recordingMetrics) ObserveSource(SourceReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources++
}

func (m *recordingMetrics) ObserveRun(r *Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
}

func TestCollector_Metrics(t *testing.T) {
	s := newStore(t)
	m := &recordingMetrics{}
	c := New(s, []Source{newTreeSource("a"), newTreeSource("b")}, Options{Metrics: m})

	start := time.Now()
	rep := cycle(t, c)

	want := []Phase{Scanning, Stopped, Swept, Idle}
	if fmt.Sprint(m.phases) != fmt.Sprint(want) {
		t.Errorf("phases = %v, want %v", m.phases, want)
	}
	if m.sources != 2 || len(m.runs) != 1 {
		t.Errorf("sources=%d runs=%d", m.sources, len(m.runs))
	}
	if rep.StartedAt.Before(start) || rep.SweptAt.Before(rep.StoppedAt) || rep.Duration() <= 0 {
		t.Errorf("timestamps %v %v %v", rep.StartedAt, rep.StoppedAt, rep.SweptAt)
	}
	if got := c.Properties(); len(got) != 1 || got[0] != "sha256" {
		t.Errorf("default properties = %v", got)
	}
}
