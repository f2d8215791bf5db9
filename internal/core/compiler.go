package core

import (
	"reflect"

	"github.com/comalice/hsm/internal/primitives"
)

var boolType = reflect.TypeOf(false)

// Compile turns a root definition into an immutable Model. Every region
// variant becomes its own node, so a definition listed in several regions
// appears at several positions.
func Compile(root *primitives.StateDef) (*primitives.Model, error) {
	if root == nil {
		return nil, primitives.CompileError(primitives.KindInvalidDefinition, "reason", "nil root")
	}
	if len(root.Protocols) == 0 {
		return nil, primitives.CompileError(primitives.KindMissingProtocols, "state", root.Name)
	}

	m := primitives.NewModel(root)
	m.Revision = primitives.Revision(root)
	for _, p := range root.Protocols {
		// Endpoints address methods by name, so a name may appear once.
		seen := make(map[string]bool, len(p.Methods))
		for _, method := range p.Methods {
			if seen[method.Name] {
				return nil, primitives.CompileError(primitives.KindDuplicateMethod,
					"protocol", p.Name, "method", method.Name)
			}
			seen[method.Name] = true
			m.AddEvent(p.Name, method)
		}
	}

	c := &compiler{model: m}
	if err := c.build(root, primitives.NoNode, 0, 0, nil); err != nil {
		return nil, err
	}
	for _, n := range m.Nodes {
		if err := c.bind(n); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type compiler struct {
	model *primitives.Model
}

// build appends def's node and, depth-first, the nodes of its regions.
// stack holds the definitions enclosing this position.
func (c *compiler) build(def *primitives.StateDef, parent primitives.NodeID, parentRegion primitives.RegionID, depth int, stack []*primitives.StateDef) error {
	for _, s := range stack {
		if s == def {
			return primitives.CompileError(primitives.KindRecursiveDefinition, "state", def.Name)
		}
	}
	if err := def.Validate(); err != nil {
		return primitives.NewError(primitives.ErrCompile, primitives.KindInvalidDefinition, err, "state", def.Name)
	}

	m := c.model
	node := &primitives.Node{
		ID:           primitives.NodeID(len(m.Nodes)),
		Name:         def.Name,
		Def:          def,
		Parent:       parent,
		ParentRegion: parentRegion,
		Depth:        depth,
		Actions:      make(map[primitives.EventID]*primitives.Action),
	}
	m.Nodes = append(m.Nodes, node)
	stack = append(stack, def)

	for _, decl := range regionsOf(def) {
		if len(decl.Variants) == 0 {
			return primitives.CompileError(primitives.KindEmptyRegion, "state", def.Name, "region", decl.Name)
		}
		if decl.Initial == nil {
			return primitives.CompileError(primitives.KindMissingInitial, "state", def.Name, "region", decl.Name)
		}
		seen := make(map[*primitives.StateDef]bool, len(decl.Variants))
		for _, v := range decl.Variants {
			if seen[v] {
				return primitives.CompileError(primitives.KindDuplicateVariant,
					"state", def.Name, "region", decl.Name, "variant", v.Name)
			}
			seen[v] = true
		}
		if !seen[decl.Initial] {
			return primitives.CompileError(primitives.KindInitialNotVariant,
				"state", def.Name, "region", decl.Name, "initial", decl.Initial.Name)
		}

		region := &primitives.Region{
			ID:       primitives.RegionID(len(m.Regions)),
			Name:     decl.Name,
			Owner:    node.ID,
			Retained: decl.Retained,
			Bind:     decl.Bind,
		}
		m.Regions = append(m.Regions, region)
		node.Regions = append(node.Regions, region.ID)

		for _, v := range decl.Variants {
			childID := primitives.NodeID(len(m.Nodes))
			if v == decl.Initial {
				region.Initial = childID
			}
			region.Variants = append(region.Variants, childID)
			if err := c.build(v, node.ID, region.ID, depth+1, stack); err != nil {
				return err
			}
		}
		if !region.Retained {
			node.EntryTransitions = append(node.EntryTransitions,
				primitives.Transition{Region: region.ID, Target: region.Initial})
		}
	}
	return nil
}

// regionsOf returns the regions of the first definition along the lineage
// that declares any.
func regionsOf(def *primitives.StateDef) []*primitives.RegionDecl {
	for _, d := range def.Lineage() {
		if len(d.Regions) > 0 {
			return d.Regions
		}
	}
	return nil
}

// bind compiles the handlers, guards and hooks of one node. It runs after
// the whole tree exists so that targets can be resolved.
func (c *compiler) bind(n *primitives.Node) error {
	m := c.model
	lineage := n.Def.Lineage()

	for _, ev := range m.Events {
		h := findHandler(lineage, ev.Method)
		if h == nil {
			continue
		}
		if !resultCompatible(h.Result, ev.Method.Result) {
			return primitives.CompileError(primitives.KindIncompatibleResultType,
				"state", n.Name, "method", ev.String(),
				"expected", typeString(ev.Method.Result), "actual", typeString(h.Result))
		}
		transitions, err := c.resolveAll(n, h.Targets)
		if err != nil {
			return err
		}
		kind := primitives.InvokeWithResult
		if ev.Method.Result == nil {
			kind = primitives.InvokeVoid
		}
		n.Actions[ev.ID] = &primitives.Action{
			Kind:        kind,
			Name:        n.Name + "." + h.Method,
			Node:        n.ID,
			Invoke:      h.Invoke,
			Transitions: transitions,
		}
	}

	for _, g := range collectGuards(lineage) {
		if len(g.Params) != 0 || g.Result != boolType {
			return primitives.CompileError(primitives.KindMalformedGuard,
				"state", n.Name, "guard", g.Name, "signature", signatureOf(g.Name, g.Params, g.Result))
		}
		transitions, err := c.resolveAll(n, g.Targets)
		if err != nil {
			return err
		}
		n.Guards = append(n.Guards, &primitives.Action{
			Kind:        primitives.Guard,
			Name:        n.Name + "." + g.Name,
			Node:        n.ID,
			Predicate:   g.Predicate,
			Transitions: transitions,
		})
	}

	entry, err := compileHooks(n, lineage, func(d *primitives.StateDef) []*primitives.HookDecl { return d.Entry }, primitives.KindMalformedEntry)
	if err != nil {
		return err
	}
	exit, err := compileHooks(n, lineage, func(d *primitives.StateDef) []*primitives.HookDecl { return d.Exit }, primitives.KindMalformedExit)
	if err != nil {
		return err
	}
	n.Entry, n.Exit = entry, exit
	return nil
}

// findHandler returns the first handler along the lineage with the
// method's name and identical parameter types.
func findHandler(lineage []*primitives.StateDef, method *primitives.Method) *primitives.HandlerDecl {
	for _, d := range lineage {
		for _, h := range d.Handlers {
			if h.Method == method.Name && primitives.SameParams(h.Params, method.Params) {
				return h
			}
		}
	}
	return nil
}

// resultCompatible: void matches void, otherwise the handler's result must
// be assignable to the protocol's.
func resultCompatible(handler, protocol reflect.Type) bool {
	if protocol == nil || handler == nil {
		return protocol == nil && handler == nil
	}
	return handler.AssignableTo(protocol)
}

// collectGuards returns the guards along the lineage. A guard redeclared
// under the same name by a derived definition hides the base one.
func collectGuards(lineage []*primitives.StateDef) []*primitives.GuardDecl {
	var out []*primitives.GuardDecl
	seen := map[string]bool{}
	for _, d := range lineage {
		for _, g := range d.Guards {
			if g.Name != "" && seen[g.Name] {
				continue
			}
			seen[g.Name] = true
			out = append(out, g)
		}
	}
	return out
}

func compileHooks(n *primitives.Node, lineage []*primitives.StateDef, get func(*primitives.StateDef) []*primitives.HookDecl, malformed primitives.Kind) ([]*primitives.Hook, error) {
	var out []*primitives.Hook
	seen := map[string]bool{}
	for _, d := range lineage {
		for _, h := range get(d) {
			if h.Name != "" && seen[h.Name] {
				continue
			}
			seen[h.Name] = true
			if len(h.Params) != 0 || h.Result != nil {
				return nil, primitives.CompileError(malformed,
					"state", n.Name, "hook", h.Name, "signature", signatureOf(h.Name, h.Params, h.Result))
			}
			out = append(out, &primitives.Hook{Name: n.Name + "." + h.Name, Node: n.ID, Run: h.Run})
		}
	}
	return out, nil
}

func (c *compiler) resolveAll(n *primitives.Node, targets []*primitives.StateDef) ([]primitives.Transition, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	out := make([]primitives.Transition, 0, len(targets))
	for _, target := range targets {
		t, ok := c.resolve(n, target)
		if !ok {
			name := "<nil>"
			if target != nil {
				name = target.Name
			}
			return nil, primitives.CompileError(primitives.KindUnresolvedTarget, "state", n.Name, "target", name)
		}
		out = append(out, t)
	}
	return out, nil
}

// resolve searches the node's own regions, then each ancestor's regions
// walking outward. The first match wins.
func (c *compiler) resolve(n *primitives.Node, target *primitives.StateDef) (primitives.Transition, bool) {
	m := c.model
	for cur := n.ID; cur != primitives.NoNode; cur = m.Nodes[cur].Parent {
		for _, rid := range m.Nodes[cur].Regions {
			for _, v := range m.Regions[rid].Variants {
				if m.Nodes[v].Def == target {
					return primitives.Transition{Region: rid, Target: v}, true
				}
			}
		}
	}
	return primitives.Transition{}, false
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

func signatureOf(name string, params []reflect.Type, result reflect.Type) string {
	m := primitives.Method{Name: name, Params: params, Result: result}
	return m.Signature()
}
