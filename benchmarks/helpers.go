// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/hsm"
	"github.com/comalice/hsm/internal/core"
)

type node struct{}

// Protocol is the single-event protocol of the generated machines.
var Protocol = hsm.NewProtocol("Bench").Void("tick")

// GenFlat creates a machine with n sibling states cycling on "tick".
func GenFlat(n int) *hsm.State[node] {
	if n < 1 {
		n = 1
	}
	root := hsm.Define[node](fmt.Sprintf("Flat%d", n), nil).Protocols(Protocol)
	states := make([]hsm.Def, n)
	for i := range states {
		states[i] = hsm.Define[node](fmt.Sprintf("S%d", i), nil)
	}
	root.Region("state", states...)
	for i, s := range states {
		s.(*hsm.State[node]).On("tick", nil, states[(i+1)%n])
	}
	return root
}

// GenDeep creates a chain of depth nested states whose innermost region
// flips between two leaves on "tick".
func GenDeep(depth int) *hsm.State[node] {
	if depth < 1 {
		depth = 1
	}
	root := hsm.Define[node](fmt.Sprintf("Deep%d", depth), nil).Protocols(Protocol)
	parent := root
	for i := 1; i < depth; i++ {
		child := hsm.Define[node](fmt.Sprintf("C%d", i), nil)
		parent.Region("state", child)
		parent = child
	}
	leaf1 := hsm.Define[node]("Leaf1", nil)
	leaf2 := hsm.Define[node]("Leaf2", nil)
	parent.Region("state", leaf1, leaf2)
	leaf1.On("tick", nil, leaf2)
	leaf2.On("tick", nil, leaf1)
	return root
}

// GenWide creates a root with n orthogonal regions, each flipping between
// two states on "tick".
func GenWide(n int) *hsm.State[node] {
	if n < 1 {
		n = 1
	}
	root := hsm.Define[node](fmt.Sprintf("Wide%d", n), nil).Protocols(Protocol)
	for i := 0; i < n; i++ {
		on := hsm.Define[node](fmt.Sprintf("On%d", i), nil)
		off := hsm.Define[node](fmt.Sprintf("Off%d", i), nil)
		root.Region(fmt.Sprintf("r%d", i), off, on)
		off.On("tick", nil, on)
		on.On("tick", nil, off)
	}
	return root
}

// GenGuarded creates a machine whose "tick" is followed by a guard that
// always holds.
func GenGuarded() *hsm.State[node] {
	root := hsm.Define[node]("Guarded", nil).Protocols(Protocol)
	idle := hsm.Define[node]("Idle", nil)
	busy := hsm.Define[node]("Busy", nil)
	root.Region("state", idle, busy)
	idle.On("tick", nil)
	idle.Guard("ready", func(*node) bool { return true }, busy)
	busy.On("tick", nil, idle)
	return root
}

// MustNew compiles and instantiates root.
func MustNew(root hsm.Def, opts ...hsm.Option) *hsm.Handle {
	h, err := hsm.New(root, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

// Tick returns the "tick" event of h.
func Tick(h *hsm.Handle) hsm.Event {
	ev, err := h.Endpoint("Bench").Event("tick")
	if err != nil {
		panic(err)
	}
	return ev
}

// GenRecordYAML returns the YAML of the record of one settled tick on a
// flat or deep machine.
func GenRecordYAML(numStates int, hierarchical bool) []byte {
	root := GenFlat(numStates)
	if hierarchical {
		root = GenDeep(5)
	}
	var last core.Record
	h := MustNew(root, hsm.WithObserver(recordFunc(func(r core.Record) { last = r })))
	if _, err := h.Machine().Handle(Tick(h)); err != nil {
		panic(err)
	}
	last.Timestamp = time.Unix(0, 0).UTC()
	data, err := yaml.Marshal(last)
	if err != nil {
		panic(err)
	}
	return data
}

type recordFunc func(core.Record)

func (f recordFunc) Settled(r core.Record) { f(r) }

func (recordFunc) Swallowed(core.Fault) {}
