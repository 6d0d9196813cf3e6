package blob

import "testing"

func TestCanTransition_Table(t *testing.T) {
	all := []State{New, Found, Used, MarkedForDeletion, Deleted, InError}

	legal := map[[2]State]bool{
		{New, Found}:                   true,
		{New, Used}:                    true,
		{New, Deleted}:                 true,
		{Found, Used}:                  true,
		{Found, MarkedForDeletion}:     true,
		{Found, Deleted}:               true,
		{Used, New}:                    true,
		{Used, Found}:                  true,
		{MarkedForDeletion, Deleted}:   true,
		{Deleted, New}:                 true,
		{InError, New}:                 true,
		{InError, Used}:                true,
	}

	for _, from := range all {
		for _, to := range all {
			want := legal[[2]State{from, to}] || to == InError
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%v, %v) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		New:               "new",
		Found:             "found",
		Used:              "used",
		MarkedForDeletion: "marked_for_deletion",
		Deleted:           "deleted",
		InError:           "in_error",
		State(42):         "state(42)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
