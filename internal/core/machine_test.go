package core

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/comalice/hsm/internal/primitives"
)

type testMachine struct {
	*Machine
	t *testing.T
}

func newTestMachine(t *testing.T, def *primitives.StateDef, opts ...Option) *testMachine {
	t.Helper()
	m, err := Instantiate(mustCompile(def), opts...)
	require.NoError(t, err)
	return &testMachine{Machine: m, t: t}
}

func (tm *testMachine) call(method string, args ...any) (any, error) {
	return tm.callOn("TestSMInterface", method, args...)
}

func (tm *testMachine) callOn(protocol, method string, args ...any) (any, error) {
	return tm.Handle(event(tm.Model(), protocol, method, args...))
}

func (tm *testMachine) mustCall(method string, args ...any) any {
	tm.t.Helper()
	res, err := tm.call(method, args...)
	require.NoError(tm.t, err)
	return res
}

func TestActiveStatesInitially(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)

	assert.Equal(t, []string{"TestSM", "A", "A1"}, tm.ActiveStates())
	assert.Equal(t, []string{"TestSM", "A", "A1"}, tm.mustCall("getActiveStates"), "handlers can read the active states")
	assert.True(t, tm.InState("A1"))
	assert.False(t, tm.InState("B"))
}

func TestConstantAndNullReturn(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)

	assert.Equal(t, "Hello", tm.mustCall("sayConstantHello"))
	assert.Nil(t, tm.mustCall("returnNull"))
}

func TestSimpleTransition(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)

	assert.Equal(t, "Hello", tm.mustCall("sayHello"))
	assert.Contains(t, tm.ActiveStates(), "B")
	assert.NotContains(t, tm.ActiveStates(), "A")
	assert.Equal(t, []string{"TestSM", "B", "B1"}, tm.ActiveStates())
	assert.Equal(t, "There", tm.mustCall("sayHello"))
}

func TestEntryAndExitHooks(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)

	assert.Equal(t, 1, tm.mustCall("getAEntryCount"), "initial activation runs entry hooks")
	tm.mustCall("sayHello")
	assert.Equal(t, 1, tm.mustCall("getAExitCount"))
}

func TestSelfTransitionDoesNotReenter(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)

	for i := 0; i < 3; i++ {
		tm.mustCall("nullTransition")
	}
	assert.Equal(t, 1, tm.mustCall("getNullTransitionEntryCount"))
	assert.Equal(t, 0, tm.mustCall("getAExitCount"))
}

func TestABTransitions(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)

	tm.mustCall("gotoA")
	assert.True(t, tm.InState("A"))
	assert.False(t, tm.InState("B"))
	tm.mustCall("gotoB")
	assert.False(t, tm.InState("A"))
	assert.True(t, tm.InState("B"))
	tm.mustCall("gotoA")
	assert.True(t, tm.InState("A"))
	assert.False(t, tm.InState("B"))
	assert.Equal(t, 2, tm.mustCall("getAEntryCount"))
}

func TestNonRetainedRegionResets(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)

	tm.mustCall("gotoB")
	assert.True(t, tm.InState("B1"))
	tm.mustCall("moveSubstateOfB")
	assert.True(t, tm.InState("B2"))
	tm.mustCall("gotoA")
	tm.mustCall("gotoB")
	assert.True(t, tm.InState("B1"), "B's region is not retained and resets on re-entry")
	assert.False(t, tm.InState("B2"))
}

func TestSecondProtocol(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)

	_, err := tm.callOn("TestSMSecondInterface", "doSecondInterfaceAction")
	require.NoError(t, err)
	assert.True(t, tm.InState("C"))
	assert.False(t, tm.InState("A"))
	assert.Equal(t, "HelloFromC", tm.mustCall("sayHello"))

	_, err = tm.callOn("TestSMSecondInterface", "unimplementedSecond")
	assert.ErrorIs(t, err, primitives.ErrUnhandledEvent)
}

func TestUnhandledEventLeavesStateUnchanged(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)
	before := tm.ActiveStates()

	_, err := tm.call("unimplementedMethod")
	require.Error(t, err)
	assert.ErrorIs(t, err, primitives.ErrUnhandledEvent)
	assert.Equal(t, primitives.KindUnhandledEvent, primitives.KindOf(err))
	assert.Equal(t, before, tm.ActiveStates())

	// Per-event errors do not poison later events.
	assert.Equal(t, "Hello", tm.mustCall("sayHello"))
}

func TestUnhandledInSubstateOnly(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)
	_, err := tm.call("moveSubstateOfB")
	assert.ErrorIs(t, err, primitives.ErrUnhandledEvent, "B1 is not active")
}

// retainedSM: Root{P, Q}; P has a retained region {P1, P2}; P2 has a
// non-retained region {X, Y}.
func retainedSM() *primitives.StateDef {
	proto := primitives.NewProtocol("R").Void("toP").Void("toQ").Void("toP2").Void("toY")
	root := primitives.NewStateDef("Root", nil).WithProtocols(proto)
	p := primitives.NewStateDef("P", nil)
	q := primitives.NewStateDef("Q", nil)
	p1 := primitives.NewStateDef("P1", nil)
	p2 := primitives.NewStateDef("P2", nil)
	x := primitives.NewStateDef("X", nil)
	y := primitives.NewStateDef("Y", nil)
	root.Region("main", p, q)
	p.Region("sub", p1, p2).Retain()
	p2.Region("leaf", x, y)
	onVoid(root, "toP", nil, p)
	onVoid(root, "toQ", nil, q)
	onVoid(p, "toP2", nil, p2)
	onVoid(p2, "toY", nil, y)
	return root
}

func TestRetainedRegionPersists(t *testing.T) {
	tm := newTestMachine(t, retainedSM())
	call := func(method string) {
		_, err := tm.callOn("R", method)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"Root", "P", "P1"}, tm.ActiveStates())
	call("toP2")
	call("toY")
	assert.Equal(t, []string{"Root", "P", "P2", "Y"}, tm.ActiveStates())

	call("toQ")
	assert.Equal(t, []string{"Root", "Q"}, tm.ActiveStates())

	call("toP")
	// P2 is kept; its own non-retained region starts over.
	assert.Equal(t, []string{"Root", "P", "P2", "X"}, tm.ActiveStates())
}

func TestGuardFiresOnNextEvent(t *testing.T) {
	type flagged struct{ ready bool }
	proto := primitives.NewProtocol("G").Void("ping").Void("setReady")
	root := primitives.NewStateDef("Root", func() any { return &flagged{} }).WithProtocols(proto)
	waiting := &primitives.StateDef{Name: "Waiting", Enclosing: root, New: func(enc any) (any, error) { return enc, nil }}
	done := primitives.NewStateDef("Done", nil)
	root.Region("r", waiting, done)
	onVoid(root, "ping", nil)
	onVoid(root, "setReady", func(inst any) { inst.(*flagged).ready = true })
	guardOn(waiting, "isReady", func(inst any) bool { return inst.(*flagged).ready }, done)

	state := &flagged{}
	tm := newTestMachine(t, root, WithRootInstance(state))

	_, err := tm.callOn("G", "ping")
	require.NoError(t, err)
	assert.True(t, tm.InState("Waiting"))

	state.ready = true
	assert.True(t, tm.InState("Waiting"), "guards are only evaluated while an event settles")

	_, err = tm.callOn("G", "ping")
	require.NoError(t, err)
	assert.True(t, tm.InState("Done"))
}

func TestGuardEvaluatedOnSameEvent(t *testing.T) {
	type flagged struct{ ready bool }
	proto := primitives.NewProtocol("G").Void("setReady")
	root := primitives.NewStateDef("Root", func() any { return &flagged{} }).WithProtocols(proto)
	waiting := &primitives.StateDef{Name: "Waiting", Enclosing: root, New: func(enc any) (any, error) { return enc, nil }}
	done := primitives.NewStateDef("Done", nil)
	root.Region("r", waiting, done)
	onVoid(root, "setReady", func(inst any) { inst.(*flagged).ready = true })
	guardOn(waiting, "isReady", func(inst any) bool { return inst.(*flagged).ready }, done)

	tm := newTestMachine(t, root)
	_, err := tm.callOn("G", "setReady")
	require.NoError(t, err)
	assert.True(t, tm.InState("Done"), "guards run after the handlers of the same event")
}

func TestFirstQueuedTransitionWins(t *testing.T) {
	proto := primitives.NewProtocol("P").Void("go")
	root := primitives.NewStateDef("Root", nil).WithProtocols(proto)
	a := primitives.NewStateDef("A", nil)
	b := primitives.NewStateDef("B", nil)
	c := primitives.NewStateDef("C", nil)
	root.Region("r", a, b, c)
	onVoid(root, "go", nil, b)
	onVoid(a, "go", nil, c)
	guardOn(a, "always", func(any) bool { return true }, c)

	tm := newTestMachine(t, root)
	_, err := tm.callOn("P", "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"Root", "B"}, tm.ActiveStates())
}

func TestInitializedMachine(t *testing.T) {
	setup := func(t *testing.T) (*testMachine, *lockSM) {
		root, _, _, _ := newLockSM()
		state := &lockSM{}
		return newTestMachine(t, root, WithRootInstance(state)), state
	}
	call := func(tm *testMachine, method string, args ...any) error {
		_, err := tm.callOn("Lock", method, args...)
		return err
	}

	t.Run("locked rejects setValue", func(t *testing.T) {
		tm, _ := setup(t)
		err := call(tm, "setValue", 20)
		require.Error(t, err)
		assert.ErrorIs(t, err, primitives.ErrActionFault)
		assert.ErrorIs(t, err, errLocked)
	})
	t.Run("unlocking", func(t *testing.T) {
		tm, state := setup(t)
		require.NoError(t, call(tm, "unlock"))
		assert.True(t, tm.InState("Unlocked"))
		require.NoError(t, call(tm, "setValue", 20))
		assert.Equal(t, 20, state.value, "handlers run against the supplied instance")
		v, err := tm.callOn("Lock", "getValue")
		require.NoError(t, err)
		assert.Equal(t, 20, v)
	})
	t.Run("arming", func(t *testing.T) {
		tm, _ := setup(t)
		require.NoError(t, call(tm, "arm"))
		assert.True(t, tm.InState("Armed"))
		require.NoError(t, call(tm, "unlock"), "Armed inherits Locked's handlers")
		assert.True(t, tm.InState("Unlocked"))
		require.NoError(t, call(tm, "setValue", 20))
	})
}

func TestArgumentValidation(t *testing.T) {
	root, _, _, _ := newLockSM()
	tm := newTestMachine(t, root)

	_, err := tm.callOn("Lock", "setValue")
	assert.ErrorIs(t, err, primitives.ErrInvalidEvent)
	assert.Equal(t, primitives.KindInvalidArguments, primitives.KindOf(err))

	_, err = tm.callOn("Lock", "setValue", "twenty")
	assert.Equal(t, primitives.KindInvalidArguments, primitives.KindOf(err))

	_, err = tm.callOn("Lock", "setValue", nil)
	assert.Equal(t, primitives.KindInvalidArguments, primitives.KindOf(err))

	_, err = tm.Handle(primitives.NewEvent(99))
	assert.Equal(t, primitives.KindUnknownEvent, primitives.KindOf(err))
}

func TestHandlerFaults(t *testing.T) {
	errOne := errors.New("one")
	errTwo := errors.New("two")
	proto := primitives.NewProtocol("F").Void("fail")
	root := primitives.NewStateDef("Root", nil).WithProtocols(proto)
	a := primitives.NewStateDef("A", nil)
	b := primitives.NewStateDef("B", nil)
	root.Region("r", a, b)
	onError(root, "fail", errOne)
	onError(a, "fail", errTwo, b)

	tm := newTestMachine(t, root)
	_, err := tm.callOn("F", "fail")
	require.Error(t, err)
	assert.ErrorIs(t, err, primitives.ErrMultipleFaults)
	assert.Equal(t, primitives.KindMultipleFaults, primitives.KindOf(err))

	var e *primitives.Error
	require.ErrorAs(t, err, &e)
	faults := e.Faults()
	require.Len(t, faults, 2)
	assert.ErrorIs(t, faults[0], errOne)
	assert.ErrorIs(t, faults[1], errTwo)
	assert.Len(t, multierr.Errors(e.Unwrap()), 2)

	assert.True(t, tm.InState("B"), "transitions of a failed handler are still applied")
}

func TestPanickingHandlerIsAFault(t *testing.T) {
	proto := primitives.NewProtocol("F").Returns("get", stringType)
	root := primitives.NewStateDef("Root", nil).WithProtocols(proto)
	root.AddHandler(&primitives.HandlerDecl{Method: "get", Result: stringType,
		Invoke: func(any, []any) (any, error) { panic("boom") }})

	tm := newTestMachine(t, root)
	_, err := tm.callOn("F", "get")
	assert.ErrorIs(t, err, primitives.ErrActionFault)
}

func TestSwallowedFaults(t *testing.T) {
	proto := primitives.NewProtocol("S").Void("go").Void("back")
	root := primitives.NewStateDef("Root", nil).WithProtocols(proto)
	a := primitives.NewStateDef("A", nil)
	b := primitives.NewStateDef("B", nil)
	root.Region("r", a, b)
	onVoid(root, "go", nil, b)
	onVoid(root, "back", nil, a)
	a.AddExit(&primitives.HookDecl{Name: "exit", Run: func(any) error { return errors.New("exit") }})
	b.AddEntry(&primitives.HookDecl{Name: "entry", Run: func(any) error { panic("entry") }})
	b.AddGuard(&primitives.GuardDecl{Name: "g", Result: boolT,
		Predicate: func(any) (bool, error) { return false, errors.New("guard") }})

	core, logs := observer.New(zap.WarnLevel)
	rec := &recorder{}
	tm := newTestMachine(t, root, WithLogger(zap.New(core).Sugar()), WithObserver(rec))

	_, err := tm.callOn("S", "go")
	require.NoError(t, err, "exit and entry faults are not returned")
	_, err = tm.callOn("S", "back")
	require.NoError(t, err, "guard faults are not returned")
	assert.True(t, tm.InState("A"))

	kinds := []primitives.Kind{}
	for _, f := range rec.faults {
		kinds = append(kinds, f.Err.Kind)
	}
	assert.Equal(t, []primitives.Kind{primitives.KindExitFault, primitives.KindEntryFault, primitives.KindGuardFault}, kinds)
	assert.Equal(t, 3, logs.FilterMessage("Fault swallowed").Len())
}

func TestHookOrder(t *testing.T) {
	var order []string
	log := func(s string) func(any) { return func(any) { order = append(order, s) } }

	proto := primitives.NewProtocol("O").Void("go")
	root := primitives.NewStateDef("Root", nil).WithProtocols(proto)
	a := primitives.NewStateDef("A", nil)
	a1 := primitives.NewStateDef("A1", nil)
	b := primitives.NewStateDef("B", nil)
	b1 := primitives.NewStateDef("B1", nil)
	root.Region("r", a, b)
	a.Region("r", a1)
	b.Region("r", b1)
	onVoid(root, "go", nil, b)
	onExit(a, "x", log("exit A"))
	onExit(a1, "x", log("exit A1"))
	onEntry(b, "e", log("enter B"))
	onEntry(b1, "e", log("enter B1"))

	tm := newTestMachine(t, root)
	_, err := tm.callOn("O", "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"exit A1", "exit A", "enter B", "enter B1"}, order)
}

func TestHooksSeeActiveSetAfterEvent(t *testing.T) {
	type observed struct{ c primitives.Controller }
	var inHandler, onExitA, onEnterB []string

	proto := primitives.NewProtocol("O").Void("go")
	root := primitives.NewStateDef("Root", func() any { return &observed{} }).WithProtocols(proto)
	root.SetInjectController(func(inst any, c primitives.Controller) { inst.(*observed).c = c })
	a := primitives.NewStateDef("A", nil)
	b := primitives.NewStateDef("B", nil)
	root.Region("r", a, b)

	var tm *testMachine
	states := func() []string { return tm.RootInstance().(*observed).c.ActiveStates() }
	onVoid(root, "go", func(any) { inHandler = states() }, b)
	onExit(a, "x", func(any) { onExitA = states() })
	onEntry(b, "e", func(any) { onEnterB = states() })

	tm = newTestMachine(t, root)
	_, err := tm.callOn("O", "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"Root", "A"}, inHandler)
	assert.Equal(t, []string{"Root", "B"}, onExitA)
	assert.Equal(t, []string{"Root", "B"}, onEnterB)
}

func TestResultCoercion(t *testing.T) {
	proto := primitives.NewProtocol("N").
		Returns("wide", int64Type).
		Returns("nothing", intType).
		Returns("bad", intType)
	root := primitives.NewStateDef("Root", nil).WithProtocols(proto)
	a := primitives.NewStateDef("A", nil)
	root.Region("r", a)
	onResult(root, "wide", int64Type, func(any) any { return int64(1) })
	// The deepest handler writes last.
	a.AddHandler(&primitives.HandlerDecl{Method: "wide", Result: int64Type,
		Invoke: func(any, []any) (any, error) { return int64(7), nil }})
	onResult(root, "nothing", intType, func(any) any { return nil })
	root.AddHandler(&primitives.HandlerDecl{Method: "bad", Result: intType,
		Invoke: func(any, []any) (any, error) { return "seven", nil }})

	tm := newTestMachine(t, root)

	v, err := tm.callOn("N", "wide")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = tm.callOn("N", "nothing")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	_, err = tm.callOn("N", "bad")
	assert.Equal(t, primitives.KindIncompatibleOutput, primitives.KindOf(err))
}

type labels []string

func TestNamedTypesConvertedToDeclaredTypes(t *testing.T) {
	proto := primitives.NewProtocol("L").
		Void("set", stringsType).
		Returns("get", stringsType)
	root := primitives.NewStateDef("Root", nil).WithProtocols(proto)
	var got []string
	root.AddHandler(&primitives.HandlerDecl{Method: "set", Params: []reflect.Type{stringsType},
		Invoke: func(_ any, args []any) (any, error) {
			got = args[0].([]string)
			return nil, nil
		}})
	root.AddHandler(&primitives.HandlerDecl{Method: "get", Result: reflect.TypeOf(labels(nil)),
		Invoke: func(any, []any) (any, error) { return labels{"b"}, nil }})

	tm := newTestMachine(t, root)
	_, err := tm.callOn("L", "set", labels{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	v, err := tm.callOn("L", "get")
	require.NoError(t, err)
	assert.IsType(t, []string(nil), v)
	assert.Equal(t, []string{"b"}, v)
}

func TestCoerceNumeric(t *testing.T) {
	desc := primitives.EventDesc{Protocol: "N", Method: &primitives.Method{Name: "n", Result: int64Type}}
	v, err := coerce(desc, int32(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = coerce(primitives.EventDesc{Method: &primitives.Method{Name: "v"}}, "ignored")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestInstantiationErrors(t *testing.T) {
	t.Run("no enclosing instance", func(t *testing.T) {
		proto := primitives.NewProtocol("P").Void("go")
		root := primitives.NewStateDef("Root", nil).WithProtocols(proto)
		stranger := primitives.NewStateDef("Stranger", nil)
		child := &primitives.StateDef{Name: "Child", Enclosing: stranger,
			New: func(any) (any, error) { return nil, nil }}
		root.Region("r", child)

		_, err := Instantiate(mustCompile(root))
		assert.ErrorIs(t, err, primitives.ErrInstantiation)
		assert.Equal(t, primitives.KindNoEnclosingInstance, primitives.KindOf(err))
	})
	t.Run("constructor failed", func(t *testing.T) {
		boom := errors.New("boom")
		proto := primitives.NewProtocol("P").Void("go")
		root := &primitives.StateDef{Name: "Root", New: func(any) (any, error) { return nil, boom }}
		root.WithProtocols(proto)

		_, err := Instantiate(mustCompile(root))
		assert.Equal(t, primitives.KindConstructorFailed, primitives.KindOf(err))
		assert.ErrorIs(t, err, boom)
	})
	t.Run("constructor panics", func(t *testing.T) {
		proto := primitives.NewProtocol("P").Void("go")
		root := &primitives.StateDef{Name: "Root", New: func(any) (any, error) { panic("boom") }}
		root.WithProtocols(proto)

		_, err := Instantiate(mustCompile(root))
		assert.Equal(t, primitives.KindConstructorFailed, primitives.KindOf(err))
	})
}

func TestEnclosingInstanceAndBind(t *testing.T) {
	type owner struct{ active any }
	type child struct{ parent *owner }

	proto := primitives.NewProtocol("P").Void("next")
	root := primitives.NewStateDef("Root", func() any { return &owner{} }).WithProtocols(proto)
	newChild := func(enc any) (any, error) { return &child{parent: enc.(*owner)}, nil }
	first := &primitives.StateDef{Name: "First", Enclosing: root, New: newChild}
	second := &primitives.StateDef{Name: "Second", Enclosing: root, New: newChild}
	root.Region("r", first, second).WithBind(func(o, active any) { o.(*owner).active = active })
	onVoid(first, "next", nil, second)

	tm := newTestMachine(t, root)
	o := tm.RootInstance().(*owner)
	firstNode := tm.Model().FindByName("First")[0]
	assert.Same(t, tm.Instance(firstNode), o.active)
	assert.Same(t, o, tm.Instance(firstNode).(*child).parent)

	_, err := tm.callOn("P", "next")
	require.NoError(t, err)
	secondNode := tm.Model().FindByName("Second")[0]
	assert.Same(t, tm.Instance(secondNode), o.active)

	// One instance per position for the machine's lifetime.
	assert.Same(t, tm.Instance(secondNode), tm.Instance(tm.Model().FindByName("Second")[0]))
}

func TestInjectRoot(t *testing.T) {
	type leaf struct{ root any }
	proto := primitives.NewProtocol("P").Void("go")
	root := primitives.NewStateDef("Root", func() any { return &struct{ n int }{} }).WithProtocols(proto)
	l := primitives.NewStateDef("Leaf", func() any { return &leaf{} })
	l.InjectRoot = func(inst, r any) { inst.(*leaf).root = r }
	root.Region("r", l)

	tm := newTestMachine(t, root)
	got := tm.Instance(tm.Model().FindByName("Leaf")[0]).(*leaf)
	assert.Same(t, tm.RootInstance(), got.root)
}

type recorder struct {
	mu      sync.Mutex
	records []Record
	faults  []Fault
}

func (r *recorder) Settled(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) Swallowed(f Fault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, f)
}

func TestObserverRecords(t *testing.T) {
	rec := &recorder{}
	tm := newTestMachine(t, newTestSM().Root, WithObserver(rec), WithName("test"), WithID("id-1"))
	assert.Equal(t, "id-1", tm.ID())
	assert.Equal(t, "test", tm.Name())

	tm.mustCall("sayHello")
	_, _ = tm.call("unimplementedMethod")

	require.Len(t, rec.records, 2)
	r := rec.records[0]
	assert.Equal(t, "id-1", r.MachineID)
	assert.Equal(t, "TestSMInterface.sayHello", r.Event)
	assert.Equal(t, []string{"TestSM.state.A", "TestSM.state.A.state.A1"}, r.Exited)
	assert.Equal(t, []string{"TestSM.state.B", "TestSM.state.B.state.B1"}, r.Entered)
	assert.NoError(t, r.Err)
	assert.ErrorIs(t, rec.records[1].Err, primitives.ErrUnhandledEvent)
}

func TestConcurrentHandle(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					_, _ = tm.call("gotoA")
				} else {
					_, _ = tm.call("gotoB")
				}
				_ = tm.ActiveStates()
			}
		}(i)
	}
	wg.Wait()

	active := tm.ActiveStates()
	require.Len(t, active, 3)
	assert.Contains(t, []string{"A", "B"}, active[1])
	assert.Equal(t, tm.mustCall("getAEntryCount"), tm.mustCall("getAExitCount").(int)+boolToInt(active[1] == "A"))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestPostMailbox(t *testing.T) {
	rec := &recorder{}
	tm := newTestMachine(t, newTestSM().Root, WithObserver(rec), WithQueueSize(4))
	tm.Start()
	defer tm.Stop()

	require.NoError(t, tm.Post(event(tm.Model(), "TestSMInterface", "gotoB")))
	assert.Eventually(t, func() bool { return tm.InState("B") }, time.Second, time.Millisecond)

	tm.Stop()
	assert.ErrorIs(t, tm.Post(event(tm.Model(), "TestSMInterface", "gotoA")), ErrStopped)
}

func TestPostQueueFull(t *testing.T) {
	tm := newTestMachine(t, newTestSM().Root, WithQueueSize(1))
	// Not started: the mailbox is never drained.
	ev := event(tm.Model(), "TestSMInterface", "gotoB")
	require.NoError(t, tm.Post(ev))
	assert.ErrorIs(t, tm.Post(ev), ErrQueueFull)
}
