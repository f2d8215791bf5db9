package primitives

// Transition means "make Target the active variant of Region".
type Transition struct {
	Region RegionID `json:"region" yaml:"region"`
	Target NodeID   `json:"target" yaml:"target"`
}

// ActionKind tags an Action.
type ActionKind int

const (
	InvokeWithResult ActionKind = iota
	InvokeVoid
	Guard
)

func (k ActionKind) String() string {
	switch k {
	case InvokeWithResult:
		return "invokeWithResult"
	case InvokeVoid:
		return "invokeVoid"
	case Guard:
		return "guard"
	default:
		return "unknown"
	}
}

// Action is a compiled handler or guard bound to one node.
// Invoke is set for InvokeWithResult/InvokeVoid, Predicate for Guard.
type Action struct {
	Kind        ActionKind
	Name        string
	Node        NodeID
	Invoke      func(inst any, args []any) (any, error)
	Predicate   func(inst any) (bool, error)
	Transitions []Transition
}

// Hook is a compiled entry or exit action.
type Hook struct {
	Name string
	Node NodeID
	Run  func(inst any) error
}
