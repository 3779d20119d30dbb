package usefetch

// Status is the lifecycle position of a Hook.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of a Hook's request lifecycle.
type State[T any] struct {
	Data      *T
	Err       error
	IsLoading bool
	Status    Status
}
