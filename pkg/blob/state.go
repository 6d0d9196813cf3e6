package blob

import "fmt"

// State is the lifecycle state of a Record.
type State int

const (
	// New: the first physical write (or re-write after deletion) is in flight.
	New State = iota
	// Found: presumed reachable at the start of a collection cycle, not yet
	// confirmed by enumeration.
	Found
	// Used: persisted and known to be in use.
	Used
	// MarkedForDeletion: chosen by the sweep, physical delete pending.
	MarkedForDeletion
	// Deleted: physically removed from the backend.
	Deleted
	// InError: a backend operation failed; the cause is kept on the record.
	InError
)

var stateNames = [...]string{
	New:               "new",
	Found:             "found",
	Used:              "used",
	MarkedForDeletion: "marked_for_deletion",
	Deleted:           "deleted",
	InError:           "in_error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler so states render by name in
// JSON API responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name as rendered by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown blob state %q", text)
}

// transitions lists the legal targets for each state. InError is reachable
// from every state and is handled in CanTransition.
var transitions = map[State][]State{
	New:               {Found, Used, Deleted},
	Found:             {Used, MarkedForDeletion, Deleted},
	Used:              {New, Found},
	MarkedForDeletion: {Deleted},
	Deleted:           {New},
	InError:           {New, Used},
}

// CanTransition reports whether from -> to is a legal record transition.
func CanTransition(from, to State) bool {
	if to == InError {
		return true
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
