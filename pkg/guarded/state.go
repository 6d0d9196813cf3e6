// Package guarded provides a lock-guarded state value whose transitions are
// validated against an owner-supplied predicate.
//
// All reads and writes of the wrapped value go through one mutex. Callers that
// need another goroutine to move the state forward can park on
// WaitForAdvance, which never holds the lock while waiting and always returns
// after a bounded timeout.
package guarded

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrIllegalTransition is the sentinel wrapped by every TransitionError.
var ErrIllegalTransition = errors.New("illegal state transition")

// TransitionError reports a transition rejected by the allowed predicate.
type TransitionError struct {
	From any
	To   any
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %v -> %v", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// State holds a single value of S.
//
// The zero value is not usable; create instances with New.
type State[S comparable] struct {
	mu      sync.Mutex
	value   S
	allowed func(from, to S) bool

	// changed is closed and replaced on every accepted transition.
	changed chan struct{}
}

// New creates a State starting at initial. allowed decides whether a move
// between two distinct values is legal; a nil predicate accepts everything.
func New[S comparable](initial S, allowed func(from, to S) bool) *State[S] {
	return &State[S]{
		value:   initial,
		allowed: allowed,
		changed: make(chan struct{}),
	}
}

// Current returns a snapshot of the state.
func (s *State[S]) Current() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Transition evaluates f against the current value while holding the lock.
//
// If f returns an error the state is left untouched and the error is returned
// together with the current value. Returning the current value is a no-op.
// Any other target must pass the allowed predicate, otherwise a
// *TransitionError is returned and the state is unchanged.
//
// f runs under the lock, so it may read and write fields that the owner
// guards with this State. It must not call back into the same State.
func (s *State[S]) Transition(f func(current S) (S, error)) (S, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := f(s.value)
	if err != nil {
		return s.value, err
	}
	if next == s.value {
		return next, nil
	}
	if s.allowed != nil && !s.allowed(s.value, next) {
		return s.value, &TransitionError{From: s.value, To: next}
	}

	s.value = next
	close(s.changed)
	s.changed = make(chan struct{})
	return next, nil
}

// WaitForAdvance blocks until the state differs from from, or until timeout
// elapses, and returns the state observed at that point. The lock is not
// held while parked.
func (s *State[S]) WaitForAdvance(from S, timeout time.Duration) S {
	s.mu.Lock()
	if s.value != from || timeout <= 0 {
		v := s.value
		s.mu.Unlock()
		return v
	}
	ch := s.changed
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ch:
			s.mu.Lock()
			if s.value != from {
				v := s.value
				s.mu.Unlock()
				return v
			}
			// Moved away and back again; keep waiting on the new channel.
			ch = s.changed
			s.mu.Unlock()
		case <-timer.C:
			return s.Current()
		}
	}
}
