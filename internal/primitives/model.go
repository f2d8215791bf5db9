package primitives

import (
	"strings"
)

// NodeID indexes Model.Nodes. The root is always 0.
type NodeID int

// RegionID indexes Model.Regions.
type RegionID int

// NoNode is the parent of the root.
const NoNode NodeID = -1

// RootID is the index of the root node.
const RootID NodeID = 0

// Node is one compiled state at one position of the tree.
type Node struct {
	ID           NodeID
	Name         string
	Def          *StateDef
	Parent       NodeID
	ParentRegion RegionID
	Depth        int
	Regions      []RegionID

	Actions          map[EventID]*Action
	Guards           []*Action
	Entry            []*Hook
	Exit             []*Hook
	EntryTransitions []Transition
}

// Region is one compiled region. Which variant is active is machine state
// and is not stored here.
type Region struct {
	ID       RegionID
	Name     string
	Owner    NodeID
	Variants []NodeID
	Initial  NodeID
	Retained bool
	Bind     func(owner any, active any)
}

// Model is the compiled automaton. It is immutable after compilation.
type Model struct {
	Name      string
	Def       *StateDef
	Protocols []*Protocol
	Events    []EventDesc
	Nodes     []*Node
	Regions   []*Region

	// Revision is the definition revision the model was compiled from.
	Revision uint64

	eventIndex map[string]map[string]EventID
}

// NewModel creates an empty model for a root definition. Used by the
// compiler.
func NewModel(root *StateDef) *Model {
	return &Model{
		Name:       root.Name,
		Def:        root,
		Protocols:  root.Protocols,
		eventIndex: make(map[string]map[string]EventID),
	}
}

// AddEvent appends a member to the event enum.
func (m *Model) AddEvent(protocol string, method *Method) EventID {
	id := EventID(len(m.Events))
	m.Events = append(m.Events, EventDesc{ID: id, Protocol: protocol, Method: method})
	if m.eventIndex[protocol] == nil {
		m.eventIndex[protocol] = make(map[string]EventID)
	}
	m.eventIndex[protocol][method.Name] = id
	return id
}

// Event resolves a (protocol, method) pair to its EventID.
func (m *Model) Event(protocol, method string) (EventID, bool) {
	byMethod, ok := m.eventIndex[protocol]
	if !ok {
		return 0, false
	}
	id, ok := byMethod[method]
	return id, ok
}

// EventDesc returns the descriptor of id.
func (m *Model) EventDesc(id EventID) (EventDesc, bool) {
	if id < 0 || int(id) >= len(m.Events) {
		return EventDesc{}, false
	}
	return m.Events[id], true
}

// Root returns the root node.
func (m *Model) Root() *Node {
	return m.Nodes[RootID]
}

// Node returns the node with the given id.
func (m *Model) Node(id NodeID) *Node {
	return m.Nodes[id]
}

// Region returns the region with the given id.
func (m *Model) Region(id RegionID) *Region {
	return m.Regions[id]
}

// InitialActive returns the active-state set of a freshly seeded machine,
// in pre-order.
func (m *Model) InitialActive() []NodeID {
	var out []NodeID
	var walk func(id NodeID)
	walk = func(id NodeID) {
		out = append(out, id)
		for _, rid := range m.Nodes[id].Regions {
			walk(m.Regions[rid].Initial)
		}
	}
	walk(RootID)
	return out
}

// Path returns the dotted path of region and state names from the root to
// id, e.g. "TestSM.state.B.state.B2".
func (m *Model) Path(id NodeID) string {
	var parts []string
	for cur := id; cur != NoNode; cur = m.Nodes[cur].Parent {
		n := m.Nodes[cur]
		parts = append(parts, n.Name)
		if n.Parent != NoNode {
			parts = append(parts, m.Regions[n.ParentRegion].Name)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// FindPath resolves a path produced by Path.
func (m *Model) FindPath(path string) (NodeID, bool) {
	for _, n := range m.Nodes {
		if m.Path(n.ID) == path {
			return n.ID, true
		}
	}
	return NoNode, false
}

// FindByName returns every node whose state name is name, in pre-order.
func (m *Model) FindByName(name string) []NodeID {
	var out []NodeID
	for _, n := range m.Nodes {
		if n.Name == name {
			out = append(out, n.ID)
		}
	}
	return out
}

// Structure renders the possible state structure, e.g.
// "TestSM(state(A(state(A1)) B C))".
func (m *Model) Structure() string {
	var sb strings.Builder
	m.writeStructure(&sb, RootID)
	return sb.String()
}

func (m *Model) writeStructure(sb *strings.Builder, id NodeID) {
	n := m.Nodes[id]
	sb.WriteString(n.Name)
	if len(n.Regions) == 0 {
		return
	}
	sb.WriteString("(")
	for i, rid := range n.Regions {
		if i > 0 {
			sb.WriteString(" ")
		}
		r := m.Regions[rid]
		sb.WriteString(r.Name)
		sb.WriteString("(")
		for j, v := range r.Variants {
			if j > 0 {
				sb.WriteString(" ")
			}
			m.writeStructure(sb, v)
		}
		sb.WriteString(")")
	}
	sb.WriteString(")")
}
