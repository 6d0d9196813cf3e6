package blob

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittobin/pkg/guarded"
)

// errPending is an internal signal that a record is still in New.
var errPending = errors.New("insert pending")

// Record tracks the lifecycle of one physically stored blob.
//
// Every field below state is guarded by the state lock and is only read or
// written inside a Transition callback.
type Record struct {
	id           ID
	length       atomic.Uint64
	lastModified atomic.Int64
	state        *guarded.State[State]

	err error

	// Two-pass debounce for the sweep and for registry removal.
	readyToMarkForDeletion bool
	readyToBeRemoved       bool

	detached bool
}

// RecordInfo is a point-in-time view of a Record.
type RecordInfo struct {
	ID           ID        `json:"id"`
	Length       uint64    `json:"length"`
	State        State     `json:"state"`
	LastModified time.Time `json:"last_modified"`
	Err          string    `json:"error,omitempty"`
}

func newRecord(id ID, length uint64, now time.Time) *Record {
	r := &Record{
		id:    id,
		state: guarded.New(New, CanTransition),
	}
	r.length.Store(length)
	r.lastModified.Store(now.UnixNano())
	return r
}

// ID returns the record's content identifier.
func (r *Record) ID() ID { return r.id }

// Length returns the blob size in bytes.
func (r *Record) Length() uint64 { return r.length.Load() }

// LastModified returns the time of the last (re)insert.
func (r *Record) LastModified() time.Time { return time.Unix(0, r.lastModified.Load()) }

// State returns the current state.
func (r *Record) State() State { return r.state.Current() }

// Err returns the stored failure cause, if the record is InError.
func (r *Record) Err() error {
	var err error
	_, _ = r.state.Transition(func(s State) (State, error) {
		err = r.err
		return s, nil
	})
	return err
}

// Snapshot returns a consistent view of the record.
func (r *Record) Snapshot() RecordInfo {
	info := RecordInfo{ID: r.id}
	_, _ = r.state.Transition(func(s State) (State, error) {
		info.State = s
		info.Length = r.Length()
		info.LastModified = r.LastModified()
		if r.err != nil {
			info.Err = r.err.Error()
		}
		return s, nil
	})
	return info
}

// move runs f through the state machine and converts rejected transitions
// into InvalidStateError.
func (r *Record) move(op string, f func(State) (State, error)) (State, error) {
	s, err := r.state.Transition(f)
	var te *guarded.TransitionError
	if errors.As(err, &te) {
		return s, &InvalidStateError{Op: op, ID: r.id, From: te.From.(State), To: te.To.(State)}
	}
	return s, err
}

func (r *Record) errOrBackend() error {
	if r.err == nil {
		return &BackendError{Op: "unknown", ID: r.id, Err: ErrBackend}
	}
	return r.err
}

func (r *Record) clearFlags() {
	r.readyToMarkForDeletion = false
	r.readyToBeRemoved = false
}

// Acquire marks the record as in use ahead of a read. A record still being
// inserted is waited on for at most wait.
func (r *Record) Acquire(wait time.Duration) error {
	for attempt := 0; ; attempt++ {
		var cause error
		_, err := r.move("acquire", func(s State) (State, error) {
			switch s {
			case Found, Used:
				r.clearFlags()
				return Used, nil
			case New:
				return s, errPending
			case InError:
				cause = r.errOrBackend()
				return s, nil
			default:
				return s, notFound(r.id)
			}
		})
		switch {
		case cause != nil:
			return cause
		case errors.Is(err, errPending) && attempt == 0:
			r.state.WaitForAdvance(New, wait)
		case errors.Is(err, errPending):
			return notFound(r.id)
		default:
			return err
		}
	}
}

// MarkPersisted records a completed physical write: New and InError move to
// Used, Used is left alone.
func (r *Record) MarkPersisted() error {
	_, err := r.move("mark persisted", func(s State) (State, error) {
		if CanTransition(s, Used) || s == Used {
			r.err = nil
			r.clearFlags()
		}
		return Used, nil
	})
	return err
}

// BeginScan prepares the record for a new mark phase. removable is true when
// a Deleted or InError record was already seen by a previous scan and can
// leave the registry.
func (r *Record) BeginScan() (removable bool, err error) {
	_, err = r.move("begin scan", func(s State) (State, error) {
		switch s {
		case Used:
			return Found, nil
		case Deleted, InError:
			if r.readyToBeRemoved {
				removable = true
			} else {
				r.readyToBeRemoved = true
			}
			return s, nil
		case MarkedForDeletion:
			return s, &InvalidStateError{Op: "begin scan", ID: r.id, From: s, To: Found}
		default:
			// New is mid-insert, Found carries its debounce flag over.
			return s, nil
		}
	})
	return removable, err
}

// Touch records that the blob is still referenced. It reports whether the
// record moved from Found to Used.
func (r *Record) Touch() bool {
	touched := false
	_, _ = r.move("touch", func(s State) (State, error) {
		if s != Found {
			return s, nil
		}
		r.clearFlags()
		touched = true
		return Used, nil
	})
	return touched
}

// MarkForDeletion is the sweep step. A Found record is flagged on the first
// sweep and moved to MarkedForDeletion on the next one. It reports whether the
// record is now MarkedForDeletion.
func (r *Record) MarkForDeletion(now time.Time) bool {
	marked := false
	_, _ = r.move("mark for deletion", func(s State) (State, error) {
		switch s {
		case Found:
			if r.lastModified.Load() > now.UnixNano() {
				r.clearFlags()
				return s, nil
			}
			if !r.readyToMarkForDeletion {
				r.readyToMarkForDeletion = true
				return s, nil
			}
			r.clearFlags()
			marked = true
			return MarkedForDeletion, nil
		case Used, New:
			r.clearFlags()
			return s, nil
		default:
			return s, nil
		}
	})
	return marked
}

// ConfirmDeleted records a completed physical deletion.
func (r *Record) ConfirmDeleted() error {
	_, err := r.move("confirm deleted", func(s State) (State, error) {
		if CanTransition(s, Deleted) {
			r.clearFlags()
			r.err = nil
		}
		return Deleted, nil
	})
	return err
}

// Reinsert is called for a re-upload of content the registry already knows.
// needsWrite is true when the caller now owns the physical write. New and
// MarkedForDeletion are waited on for at most wait; if they have not settled
// by then ErrBusy is returned.
func (r *Record) Reinsert(now time.Time, length uint64, wait time.Duration) (needsWrite bool, err error) {
	for round := 0; round < 2; round++ {
		var (
			cause   error
			pending bool
			from    State
		)
		_, merr := r.move("reinsert", func(s State) (State, error) {
			if r.detached {
				return s, errDetached
			}
			switch s {
			case Deleted:
				r.length.Store(length)
				r.lastModified.Store(now.UnixNano())
				r.clearFlags()
				needsWrite = true
				return New, nil
			case Found, Used:
				r.lastModified.Store(now.UnixNano())
				r.clearFlags()
				return s, nil
			case InError:
				cause = r.errOrBackend()
				return s, nil
			default:
				pending, from = true, s
				return s, nil
			}
		})
		if merr != nil {
			return false, merr
		}
		if cause != nil {
			return false, cause
		}
		if !pending {
			return needsWrite, nil
		}
		if round == 0 {
			r.state.WaitForAdvance(from, wait)
		}
	}
	return false, fmt.Errorf("reinsert %s (%s): %w", r.id, r.State(), ErrBusy)
}

// Fail moves the record to InError and stores cause.
func (r *Record) Fail(cause error) {
	_, _ = r.move("fail", func(s State) (State, error) {
		if s != InError {
			r.clearFlags()
		}
		r.err = cause
		return InError, nil
	})
}

// detachIfRemovable marks the record detached if it is still eligible for
// registry removal. Caller holds the registry lock.
func (r *Record) detachIfRemovable() bool {
	ok := false
	_, _ = r.move("detach", func(s State) (State, error) {
		if (s == Deleted || s == InError) && r.readyToBeRemoved {
			r.detached = true
			ok = true
		}
		return s, nil
	})
	return ok
}

// reset clears an InError record back to New and detaches it, so the next
// upload starts from a fresh record. Caller holds the registry lock.
func (r *Record) reset() error {
	_, err := r.move("reset", func(s State) (State, error) {
		if s != InError {
			return s, &InvalidStateError{Op: "reset", ID: r.id, From: s, To: New}
		}
		r.err = nil
		r.clearFlags()
		r.detached = true
		return New, nil
	})
	return err
}
