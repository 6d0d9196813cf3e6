package gc

import "fmt"

// Phase is the state of a collection run.
type Phase int

const (
	Idle Phase = iota
	Scanning
	Stopped
	Swept
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Stopped:
		return "stopped"
	case Swept:
		return "swept"
	default:
		return "unknown"
	}
}

// phaseAllowed is the run phase machine. Scanning and Stopped may fall back
// to Idle when a run is aborted.
func phaseAllowed(from, to Phase) bool {
	switch from {
	case Idle:
		return to == Scanning
	case Scanning:
		return to == Stopped || to == Idle
	case Stopped:
		return to == Swept || to == Idle
	case Swept:
		return to == Idle
	}
	return false
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for _, ph := range []Phase{Idle, Scanning, Stopped, Swept} {
		if ph.String() == string(text) {
			*p = ph
			return nil
		}
	}
	return fmt.Errorf("unknown gc phase %q", text)
}
