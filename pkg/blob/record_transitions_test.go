package blob

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"
)

type recordOp struct {
	name string
	run  func(r *Record) error
}

var recordOps = []recordOp{
	{"acquire", func(r *Record) error { return r.Acquire(0) }},
	{"mark persisted", func(r *Record) error { return r.MarkPersisted() }},
	{"begin scan", func(r *Record) error {
		_, err := r.BeginScan()
		return err
	}},
	{"touch", func(r *Record) error {
		r.Touch()
		return nil
	}},
	{"mark for deletion", func(r *Record) error {
		r.MarkForDeletion(time.Now().Add(time.Second))
		return nil
	}},
	{"confirm deleted", func(r *Record) error { return r.ConfirmDeleted() }},
	{"reinsert", func(r *Record) error {
		_, err := r.Reinsert(time.Now(), 1, 0)
		return err
	}},
	{"fail", func(r *Record) error {
		r.Fail(errors.New("injected"))
		return nil
	}},
	{"reset", func(r *Record) error { return r.reset() }},
}

// rejects reports whether op is expected to refuse a record in state s with
// an InvalidStateError. These are caller protocol violations: the store never
// issues them.
func rejects(op string, s State) bool {
	switch op {
	case "mark persisted":
		return s == MarkedForDeletion || s == Deleted
	case "begin scan":
		return s == MarkedForDeletion
	case "confirm deleted":
		return s == Used || s == InError
	case "reset":
		return s != InError
	}
	return false
}

// recordIn builds a record in the given state by driving it through the
// operations the store uses.
func recordIn(t *testing.T, s State, flagged bool) *Record {
	t.Helper()
	r := newRecord(FromBytes([]byte("x")), 1, time.Now())
	switch s {
	case New:
		return r
	case Used:
		_ = r.MarkPersisted()
	case Found:
		_ = r.MarkPersisted()
		_, _ = r.BeginScan()
		if flagged {
			r.MarkForDeletion(time.Now().Add(time.Second))
		}
	case MarkedForDeletion:
		_ = r.MarkPersisted()
		sweepOut(t, r)
	case Deleted:
		_ = r.MarkPersisted()
		sweepOut(t, r)
		_ = r.ConfirmDeleted()
		if flagged {
			_, _ = r.BeginScan()
		}
	case InError:
		_ = r.MarkPersisted()
		r.Fail(errors.New("setup"))
		if flagged {
			_, _ = r.BeginScan()
		}
	}
	if got := r.State(); got != s {
		t.Fatalf("setup produced %v, want %v", got, s)
	}
	return r
}

func checkStep(t *testing.T, op string, before, after State, err error) {
	t.Helper()
	if after != before && !CanTransition(before, after) {
		t.Errorf("%s moved %v -> %v, which the transition table forbids", op, before, after)
	}
	var ise *InvalidStateError
	isInvalid := errors.As(err, &ise)
	if want := rejects(op, before); isInvalid != want {
		t.Errorf("%s from %v: err = %v, want InvalidStateError: %v", op, before, err, want)
	}
	if isInvalid && after != before {
		t.Errorf("%s from %v was rejected but moved the record to %v", op, before, after)
	}
}

func TestRecord_EveryOperationFromEveryState(t *testing.T) {
	states := []State{New, Found, Used, MarkedForDeletion, Deleted, InError}

	for _, s := range states {
		for _, flagged := range []bool{false, true} {
			for _, op := range recordOps {
				r := recordIn(t, s, flagged)
				before := r.State()
				err := op.run(r)
				checkStep(t, op.name, before, r.State(), err)
			}
		}
	}
}

func TestRecord_RandomOperationSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 42))

	for walk := 0; walk < 50; walk++ {
		r := newRecord(FromBytes([]byte("x")), 1, time.Now())
		for step := 0; step < 200; step++ {
			op := recordOps[rng.IntN(len(recordOps))]
			before := r.State()
			err := op.run(r)
			checkStep(t, op.name, before, r.State(), err)
		}
	}
}
