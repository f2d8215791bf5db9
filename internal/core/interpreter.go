package core

import (
	"github.com/comalice/hsm/internal/primitives"
)

// outcome collects what the handlers of one event produced.
type outcome struct {
	handled bool
	output  any
	faults  []error
}

// activeSet returns the active nodes in pre-order: a node, then for each of
// its regions the active child's subtree.
func (m *Machine) activeSet() []primitives.NodeID {
	out := make([]primitives.NodeID, 0, len(m.model.Nodes))
	var walk func(id primitives.NodeID)
	walk = func(id primitives.NodeID) {
		out = append(out, id)
		for _, rid := range m.model.Node(id).Regions {
			walk(m.active[rid])
		}
	}
	walk(primitives.RootID)
	return out
}

// settle runs handlers and guards against the pre-event active set, then
// applies the queued transitions to a fixed point.
func (m *Machine) settle(desc primitives.EventDesc, args []any, pre []primitives.NodeID) outcome {
	var out outcome
	var queue []primitives.Transition

	for _, id := range pre {
		a, ok := m.model.Node(id).Actions[desc.ID]
		if !ok {
			continue
		}
		out.handled = true
		res, err := m.runner.Invoke(a, m.instances[id], args)
		if err != nil {
			out.faults = append(out.faults, primitives.NewError(primitives.ErrActionFault, primitives.KindActionFault, err,
				"state", m.model.Path(id), "event", desc.String()))
		} else if a.Kind == primitives.InvokeWithResult {
			out.output = res
		}
		// Transitions are queued even when the handler failed.
		queue = append(queue, a.Transitions...)
	}

	for _, id := range pre {
		for _, g := range m.model.Node(id).Guards {
			ok, err := m.runner.Evaluate(g, m.instances[id])
			if err != nil {
				m.swallow(id, primitives.NewError(primitives.ErrGuardFault, primitives.KindGuardFault, err,
					"guard", g.Name, "event", desc.String()))
				continue
			}
			if ok {
				queue = append(queue, g.Transitions...)
			}
		}
	}

	m.apply(queue, pre)
	return out
}

// apply pops transitions off the end of the stack until it is empty, so the
// transition queued first is applied last and wins conflicts. A target that
// was not active before the event pushes the resets of its regions.
func (m *Machine) apply(stack []primitives.Transition, pre []primitives.NodeID) {
	wasActive := make([]bool, len(m.model.Nodes))
	for _, id := range pre {
		wasActive[id] = true
	}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		m.active[t.Region] = t.Target
		m.bind(t.Region)
		if !wasActive[t.Target] {
			stack = append(stack, m.entryTransitions(t.Target)...)
		}
	}
}

// entryTransitions returns the resets of a node that becomes active: every
// non-retained region goes back to its initial variant, and the active
// child of every retained region is entered again with the same rule.
func (m *Machine) entryTransitions(id primitives.NodeID) []primitives.Transition {
	n := m.model.Node(id)
	out := append([]primitives.Transition(nil), n.EntryTransitions...)
	for _, rid := range n.Regions {
		if m.model.Region(rid).Retained {
			out = append(out, m.entryTransitions(m.active[rid])...)
		}
	}
	return out
}

// bind reports the active variant of a region to its owner.
func (m *Machine) bind(rid primitives.RegionID) {
	r := m.model.Region(rid)
	if r.Bind == nil {
		return
	}
	r.Bind(m.instances[r.Owner], m.instances[m.active[rid]])
}

// diff returns the nodes of pre missing from post and the nodes of post
// missing from pre, both in pre-order.
func diff(pre, post []primitives.NodeID) (exited, entered []primitives.NodeID) {
	inPre := make(map[primitives.NodeID]bool, len(pre))
	for _, id := range pre {
		inPre[id] = true
	}
	inPost := make(map[primitives.NodeID]bool, len(post))
	for _, id := range post {
		inPost[id] = true
	}
	for _, id := range pre {
		if !inPost[id] {
			exited = append(exited, id)
		}
	}
	for _, id := range post {
		if !inPre[id] {
			entered = append(entered, id)
		}
	}
	return exited, entered
}

func (m *Machine) runHooks(hooks []*primitives.Hook, class error, kind primitives.Kind) {
	for _, h := range hooks {
		if err := m.runner.RunHook(h, m.instances[h.Node]); err != nil {
			m.swallow(h.Node, primitives.NewError(class, kind, err, "hook", h.Name))
		}
	}
}

// publish stores the active set for lock-free readers.
func (m *Machine) publish(active []primitives.NodeID) {
	names := make([]string, len(active))
	for i, id := range active {
		names[i] = m.model.Node(id).Name
	}
	m.snap.Store(&snapshot{nodes: active, names: names})
}
