package duet

// State is the coordinator's lifecycle phase.
type State int32

const (
	StateInit State = iota
	StateConnecting
	StateOpening
	StateAlternating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateOpening:
		return "opening"
	case StateAlternating:
		return "alternating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
