package lifecycle

type State int32

const (
	Idle State = iota
	Building
	Running
	Harvesting
	FailingOut
	Interrupted
	TornDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case Running:
		return "running"
	case Harvesting:
		return "harvesting"
	case FailingOut:
		return "failing_out"
	case Interrupted:
		return "interrupted"
	case TornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}
