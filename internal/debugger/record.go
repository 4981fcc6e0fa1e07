package debugger

// Identity identifies a debugging attachment. It is supplied by the caller;
// an empty SessionID is replaced by a generated one on attach.
type Identity struct {
	SessionID string
	UserID    string
}

// Reason tells why a session paused.
type Reason int

const (
	// ReasonBreakpoint is a pause at a registered breakpoint.
	ReasonBreakpoint Reason = iota
	// ReasonStep is a completed step-into or step-over.
	ReasonStep
	// ReasonPause is a pause requested by the controller or the script.
	ReasonPause
	// ReasonEntry is the pause before the first line.
	ReasonEntry
)

// String returns the reason name. The names match the Debug Adapter
// Protocol stopped reasons.
func (r Reason) String() string {
	switch r {
	case ReasonBreakpoint:
		return "breakpoint"
	case ReasonStep:
		return "step"
	case ReasonPause:
		return "pause"
	case ReasonEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// LineBreak records where a session paused.
type LineBreak struct {
	Session     Identity
	ExecutionID string
	Path        string
	Line        int
	Reason      Reason
}

// Variable is one captured variable.
type Variable struct {
	Name  string
	Value string
	Kind  Kind
}

// Snapshot is the set of variables captured at a pause. A new pause replaces
// it wholesale.
type Snapshot struct {
	Session     Identity
	ExecutionID string
	Variables   []Variable
}

// Lookup returns the variable called name.
func (s Snapshot) Lookup(name string) (Variable, bool) {
	for _, v := range s.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// StackEntry describes one frame of a paused session.
type StackEntry struct {
	Name        string
	Source      string
	Line        int
	LineDefined int
}
