package worker

// Status is the worker lifecycle state. Transitions are driven exclusively by
// the pool: Starting -> Ready <-> Busy, Ready|Busy -> Unhealthy on probe
// exhaustion or process exit, Unhealthy -> Restarting -> Starting, and Exited
// only on explicit pool shutdown.
type Status int

const (
	StatusStarting Status = iota
	StatusReady
	StatusBusy
	StatusUnhealthy
	StatusRestarting
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusReady:
		return "ready"
	case StatusBusy:
		return "busy"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusRestarting:
		return "restarting"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}
