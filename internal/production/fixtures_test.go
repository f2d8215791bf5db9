package production

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comalice/hsm/internal/core"
	"github.com/comalice/hsm/internal/primitives"
)

// switchSM is Switch(power(Off On(mode(Dim Bright)))).
func switchSM() *primitives.StateDef {
	proto := primitives.NewProtocol("Switch").
		Void("toggle").
		Void("brighten").
		Void("explode").
		Returns("level", reflect.TypeOf(0))
	root := primitives.NewStateDef("Switch", nil).WithProtocols(proto)
	off := primitives.NewStateDef("Off", nil)
	on := primitives.NewStateDef("On", nil)
	dim := primitives.NewStateDef("Dim", nil)
	bright := primitives.NewStateDef("Bright", nil)
	root.Region("power", off, on)
	on.Region("mode", dim, bright).Retain()

	noop := func(any, []any) (any, error) { return nil, nil }
	off.AddHandler(&primitives.HandlerDecl{Method: "toggle", Invoke: noop, Targets: []*primitives.StateDef{on}})
	on.AddHandler(&primitives.HandlerDecl{Method: "toggle", Invoke: noop, Targets: []*primitives.StateDef{off}})
	dim.AddHandler(&primitives.HandlerDecl{Method: "brighten", Invoke: noop, Targets: []*primitives.StateDef{bright}})
	root.AddHandler(&primitives.HandlerDecl{Method: "explode",
		Invoke: func(any, []any) (any, error) { return nil, errors.New("boom") }})
	bright.AddGuard(&primitives.GuardDecl{Name: "overheated", Result: reflect.TypeOf(false),
		Predicate: func(any) (bool, error) { return false, errors.New("sensor") }})
	on.AddEntry(&primitives.HookDecl{Name: "powerUp", Run: func(any) error { return nil }})
	return root
}

func newSwitch(t *testing.T, opts ...core.Option) *core.Machine {
	t.Helper()
	model, err := core.Compile(switchSM())
	require.NoError(t, err)
	m, err := core.Instantiate(model, opts...)
	require.NoError(t, err)
	return m
}

func send(t *testing.T, m *core.Machine, method string) error {
	t.Helper()
	id, ok := m.Model().Event("Switch", method)
	require.True(t, ok)
	_, err := m.Handle(primitives.NewEvent(id))
	return err
}
