package resource

// State is the lifecycle state of a resource within one run.
type State int

const (
	StateRequested State = iota
	StateProvisioning
	StateReady
	StateFailed
	StateDeletionRequested
	StateDeleted
)

var stateNames = map[State]string{
	StateRequested:         "Requested",
	StateProvisioning:      "Provisioning",
	StateReady:             "Ready",
	StateFailed:            "Failed",
	StateDeletionRequested: "DeletionRequested",
	StateDeleted:           "Deleted",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "Unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// transitions holds the legal state changes. Provisioning and Failed may move to
// DeletionRequested so that a partial provisioning result can be cleaned up.
var transitions = map[State][]State{
	StateRequested:         {StateProvisioning, StateFailed},
	StateProvisioning:      {StateReady, StateFailed, StateDeletionRequested},
	StateReady:             {StateDeletionRequested},
	StateFailed:            {StateDeletionRequested},
	StateDeletionRequested: {StateDeleted, StateFailed},
}

// CanTransition reports whether a resource may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
