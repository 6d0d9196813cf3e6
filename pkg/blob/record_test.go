package blob

import (
	"errors"
	"testing"
	"time"
)

func usedRecord(t *testing.T) *Record {
	t.Helper()
	r := newRecord(FromBytes([]byte("x")), 1, time.Now())
	if err := r.MarkPersisted(); err != nil {
		t.Fatalf("MarkPersisted failed: %v", err)
	}
	return r
}

func TestRecord_NewIsPending(t *testing.T) {
	r := newRecord(FromBytes([]byte("x")), 1, time.Now())
	if r.State() != New {
		t.Fatalf("new record state = %v, want New", r.State())
	}

	start := time.Now()
	err := r.Acquire(30 * time.Millisecond)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Acquire on pending insert returned %v, want ErrNotFound", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("Acquire returned before the wait elapsed")
	}
}

func TestRecord_AcquireWaitsForInsert(t *testing.T) {
	r := newRecord(FromBytes([]byte("x")), 1, time.Now())

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = r.MarkPersisted()
	}()

	if err := r.Acquire(5 * time.Second); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if r.State() != Used {
		t.Errorf("state = %v, want Used", r.State())
	}
}

func TestRecord_AcquireFoundMovesToUsed(t *testing.T) {
	r := usedRecord(t)
	if _, err := r.BeginScan(); err != nil {
		t.Fatalf("BeginScan failed: %v", err)
	}
	if r.State() != Found {
		t.Fatalf("state = %v, want Found", r.State())
	}
	if err := r.Acquire(time.Second); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if r.State() != Used {
		t.Errorf("state = %v, want Used", r.State())
	}
}

func TestRecord_TwoPassMarkForDeletion(t *testing.T) {
	r := usedRecord(t)
	sweepOut(t, r)

	if r.State() != MarkedForDeletion {
		t.Fatalf("state = %v, want MarkedForDeletion", r.State())
	}
	if err := r.Acquire(time.Second); !errors.Is(err, ErrNotFound) {
		t.Errorf("Acquire on MarkedForDeletion returned %v, want ErrNotFound", err)
	}
	if err := r.ConfirmDeleted(); err != nil {
		t.Fatalf("ConfirmDeleted failed: %v", err)
	}
	if r.State() != Deleted {
		t.Errorf("state = %v, want Deleted", r.State())
	}
}

func TestRecord_TouchResetsDebounce(t *testing.T) {
	r := usedRecord(t)

	_, _ = r.BeginScan()
	if r.MarkForDeletion(time.Now().Add(time.Second)) {
		t.Fatal("first sweep must only flag")
	}

	// Referenced again in the next cycle.
	_, _ = r.BeginScan()
	if !r.Touch() {
		t.Fatal("Touch should move Found to Used")
	}
	if r.MarkForDeletion(time.Now().Add(time.Second)) {
		t.Fatal("touched record must not be marked")
	}

	// Unreferenced again: the flag starts over.
	_, _ = r.BeginScan()
	if r.MarkForDeletion(time.Now().Add(time.Second)) {
		t.Fatal("flag should have been cleared by Touch")
	}
	if r.State() != Found {
		t.Errorf("state = %v, want Found", r.State())
	}
}

func TestRecord_ReuseAfterStopProtects(t *testing.T) {
	r := usedRecord(t)
	stop := time.Now()

	_, _ = r.BeginScan()
	_ = r.MarkForDeletion(stop)
	_, _ = r.BeginScan()

	// Re-uploaded after the stop timestamp.
	time.Sleep(time.Millisecond)
	if _, err := r.Reinsert(time.Now(), 1, time.Second); err != nil {
		t.Fatalf("Reinsert failed: %v", err)
	}
	if r.MarkForDeletion(stop) {
		t.Error("record reused after stop must not be marked")
	}
}

func TestRecord_BeginScanRejectsMarked(t *testing.T) {
	r := usedRecord(t)
	sweepOut(t, r)

	_, err := r.BeginScan()
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("BeginScan returned %v, want *InvalidStateError", err)
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("InvalidStateError must wrap ErrInvalidState")
	}
	if ise.From != MarkedForDeletion || ise.To != Found {
		t.Errorf("unexpected error fields: %+v", ise)
	}
	if r.State() != MarkedForDeletion {
		t.Errorf("state changed to %v", r.State())
	}
}

func TestRecord_BeginScanRemovableAfterTwoScans(t *testing.T) {
	r := usedRecord(t)
	sweepOut(t, r)
	_ = r.ConfirmDeleted()

	if removable, _ := r.BeginScan(); removable {
		t.Fatal("first scan must only flag")
	}
	if removable, _ := r.BeginScan(); !removable {
		t.Fatal("second scan should report removable")
	}
}

func TestRecord_ReinsertDeletedNeedsWrite(t *testing.T) {
	r := usedRecord(t)
	sweepOut(t, r)
	_ = r.ConfirmDeleted()

	need, err := r.Reinsert(time.Now(), 7, time.Second)
	if err != nil || !need {
		t.Fatalf("Reinsert = (%v, %v), want (true, nil)", need, err)
	}
	if r.State() != New || r.Length() != 7 {
		t.Errorf("state = %v length = %d, want New/7", r.State(), r.Length())
	}
}

func TestRecord_ReinsertUsedIsNoop(t *testing.T) {
	r := usedRecord(t)
	before := r.LastModified()
	time.Sleep(time.Millisecond)

	need, err := r.Reinsert(time.Now(), 1, time.Second)
	if err != nil || need {
		t.Fatalf("Reinsert = (%v, %v), want (false, nil)", need, err)
	}
	if !r.LastModified().After(before) {
		t.Error("Reinsert should refresh lastModified")
	}
}

func TestRecord_ReinsertMarkedWaitsForDelete(t *testing.T) {
	r := usedRecord(t)
	sweepOut(t, r)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = r.ConfirmDeleted()
	}()

	need, err := r.Reinsert(time.Now(), 1, 5*time.Second)
	if err != nil || !need {
		t.Fatalf("Reinsert = (%v, %v), want (true, nil)", need, err)
	}
}

func TestRecord_ReinsertMarkedTimesOut(t *testing.T) {
	r := usedRecord(t)
	sweepOut(t, r)

	_, err := r.Reinsert(time.Now(), 1, 10*time.Millisecond)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Reinsert returned %v, want ErrBusy", err)
	}
}

func TestRecord_FailAndRecover(t *testing.T) {
	r := usedRecord(t)
	cause := &BackendError{Op: "open", ID: r.ID(), Backend: "memory", Err: errors.New("disk gone")}

	r.Fail(cause)
	if r.State() != InError {
		t.Fatalf("state = %v, want InError", r.State())
	}
	if err := r.Acquire(time.Second); !errors.Is(err, ErrBackend) {
		t.Errorf("Acquire returned %v, want ErrBackend", err)
	}
	if _, err := r.Reinsert(time.Now(), 1, time.Second); err != cause {
		t.Errorf("Reinsert returned %v, want stored cause", err)
	}
	if info := r.Snapshot(); info.Err == "" || info.State != InError {
		t.Errorf("Snapshot = %+v", info)
	}

	if err := r.MarkPersisted(); err != nil {
		t.Fatalf("MarkPersisted failed: %v", err)
	}
	if r.State() != Used || r.Err() != nil {
		t.Errorf("state = %v err = %v, want Used/nil", r.State(), r.Err())
	}
}

func TestRecord_IllegalTransitionsDoNotMutate(t *testing.T) {
	r := usedRecord(t)
	sweepOut(t, r)
	_ = r.ConfirmDeleted()

	err := r.MarkPersisted()
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("MarkPersisted on Deleted returned %v, want ErrInvalidState", err)
	}
	if r.State() != Deleted {
		t.Errorf("state = %v, want Deleted", r.State())
	}
}

func TestRecord_DetachedReinsert(t *testing.T) {
	r := usedRecord(t)
	sweepOut(t, r)
	_ = r.ConfirmDeleted()
	_, _ = r.BeginScan()

	if !r.detachIfRemovable() {
		t.Fatal("flagged Deleted record should detach")
	}
	if _, err := r.Reinsert(time.Now(), 1, time.Second); !errors.Is(err, errDetached) {
		t.Errorf("Reinsert on detached record returned %v", err)
	}
}
