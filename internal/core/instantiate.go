package core

import (
	"fmt"

	"github.com/comalice/hsm/internal/primitives"
)

// Instantiate creates the live state instances of a model, seeds every
// region with its initial variant, injects back-references and runs the
// entry hooks of the initial active set, outer first.
func Instantiate(model *primitives.Model, opts ...Option) (*Machine, error) {
	m := newMachine(model, opts...)

	// Nodes are stored in pre-order, so parents are constructed before
	// their children.
	for _, n := range model.Nodes {
		if n.ID == primitives.RootID && m.hasRoot {
			m.instances[n.ID] = m.rootInstance
			continue
		}
		inst, err := m.construct(n)
		if err != nil {
			return nil, err
		}
		m.instances[n.ID] = inst
	}

	for _, r := range model.Regions {
		m.active[r.ID] = r.Initial
		m.bind(r.ID)
	}

	root := m.instances[primitives.RootID]
	for _, n := range model.Nodes {
		inst := m.instances[n.ID]
		for _, d := range n.Def.Lineage() {
			if d.InjectController != nil {
				d.InjectController(inst, m)
				break
			}
		}
		for _, d := range n.Def.Lineage() {
			if d.InjectRoot != nil {
				d.InjectRoot(inst, root)
				break
			}
		}
	}

	m.activate()
	return m, nil
}

func (m *Machine) construct(n *primitives.Node) (inst any, err error) {
	ctor := n.Def.Constructor()
	if ctor == nil {
		return nil, nil
	}

	var enclosing any
	if want := n.Def.EnclosingDef(); want != nil {
		found := false
		for cur := n.Parent; cur != primitives.NoNode; cur = m.model.Node(cur).Parent {
			if m.model.Node(cur).Def == want {
				enclosing, found = m.instances[cur], true
				break
			}
		}
		if !found {
			return nil, primitives.InstantiationError(primitives.KindNoEnclosingInstance, nil,
				"state", m.model.Path(n.ID), "enclosing", want.Name)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = primitives.InstantiationError(primitives.KindConstructorFailed,
				fmt.Errorf("panic: %v", r), "state", m.model.Path(n.ID))
		}
	}()
	inst, err = ctor(enclosing)
	if err != nil {
		return nil, primitives.InstantiationError(primitives.KindConstructorFailed, err, "state", m.model.Path(n.ID))
	}
	return inst, nil
}

// activate publishes the initial active set and runs its entry hooks.
func (m *Machine) activate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.activeSet()
	m.publish(active)
	for _, id := range active {
		m.runHooks(m.model.Node(id).Entry, primitives.ErrEntryFault, primitives.KindEntryFault)
	}
	m.logger.Debugw("Machine activated", "active", m.ActiveStates())
}
