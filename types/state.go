package types

// State represents the worker lifecycle state.
//
// States follow a defined progression during a run:
//
//	StateInit → StatePartitioning → StateLoading → StateSeeding → StateIterating → StateReporting → StateDone
//
// StateFailed is terminal and can be entered from any state.
type State int

const (
	// StateInit is the initial state before any operations.
	StateInit State = iota

	// StatePartitioning indicates the worker is computing its partition bounds.
	StatePartitioning

	// StateLoading indicates the worker is reading its local points.
	StateLoading

	// StateSeeding indicates the initial centroids are being sampled and broadcast.
	StateSeeding

	// StateIterating indicates the assign/reduce/update loop is running.
	StateIterating

	// StateReporting indicates the final barrier and result assembly.
	StateReporting

	// StateDone indicates the run completed successfully.
	StateDone

	// StateFailed indicates the run aborted with an error.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StatePartitioning:
		return "Partitioning"
	case StateLoading:
		return "Loading"
	case StateSeeding:
		return "Seeding"
	case StateIterating:
		return "Iterating"
	case StateReporting:
		return "Reporting"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
