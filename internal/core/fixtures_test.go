package core

import (
	"errors"
	"reflect"

	"github.com/comalice/hsm/internal/primitives"
)

var (
	stringType  = reflect.TypeOf("")
	intType     = reflect.TypeOf(0)
	int64Type   = reflect.TypeOf(int64(0))
	boolT       = reflect.TypeOf(false)
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
	stringsType = reflect.TypeOf([]string(nil))
)

func onVoid(d *primitives.StateDef, method string, fn func(inst any), targets ...*primitives.StateDef) {
	d.AddHandler(&primitives.HandlerDecl{
		Method: method,
		Invoke: func(inst any, _ []any) (any, error) {
			if fn != nil {
				fn(inst)
			}
			return nil, nil
		},
		Targets: targets,
	})
}

func onResult(d *primitives.StateDef, method string, result reflect.Type, fn func(inst any) any, targets ...*primitives.StateDef) {
	d.AddHandler(&primitives.HandlerDecl{
		Method:  method,
		Result:  result,
		Invoke:  func(inst any, _ []any) (any, error) { return fn(inst), nil },
		Targets: targets,
	})
}

func onError(d *primitives.StateDef, method string, err error, targets ...*primitives.StateDef) {
	d.AddHandler(&primitives.HandlerDecl{
		Method:  method,
		Invoke:  func(any, []any) (any, error) { return nil, err },
		Targets: targets,
	})
}

func guardOn(d *primitives.StateDef, name string, fn func(inst any) bool, targets ...*primitives.StateDef) {
	d.AddGuard(&primitives.GuardDecl{
		Name:      name,
		Result:    boolT,
		Predicate: func(inst any) (bool, error) { return fn(inst), nil },
		Targets:   targets,
	})
}

func onEntry(d *primitives.StateDef, name string, fn func(inst any)) {
	d.AddEntry(&primitives.HookDecl{Name: name, Run: func(inst any) error { fn(inst); return nil }})
}

func onExit(d *primitives.StateDef, name string, fn func(inst any)) {
	d.AddExit(&primitives.HookDecl{Name: name, Run: func(inst any) error { fn(inst); return nil }})
}

// testSM mirrors the reference machine: root with a retained region
// {A, B, C}; A holds {A1}; B holds {B1, B2, B3}.
type testSM struct {
	controller        primitives.Controller
	nullEntryCount    int
	aEntryCount       int
	aExitCount        int
	entryLog, exitLog []string
}

type testA struct{ root *testSM }

type testDefs struct {
	Root, A, A1, B, B1, B2, B3, C *primitives.StateDef
}

var (
	testProtocol = primitives.NewProtocol("TestSMInterface").
			Returns("returnNull", anyType).
			Returns("getActiveStates", stringsType).
			Void("gotoA").
			Void("gotoB").
			Returns("getAEntryCount", intType).
			Returns("getAExitCount", intType).
			Returns("getNullTransitionEntryCount", intType).
			Returns("sayConstantHello", stringType).
			Returns("sayHello", stringType).
			Void("nullTransition").
			Void("moveSubstateOfB").
			Void("unimplementedMethod")

	secondProtocol = primitives.NewProtocol("TestSMSecondInterface").
			Void("doSecondInterfaceAction").
			Void("unimplementedSecond")
)

func newTestSM() *testDefs {
	d := &testDefs{}
	d.Root = primitives.NewStateDef("TestSM", func() any { return &testSM{} }).
		WithProtocols(testProtocol, secondProtocol)
	d.Root.InjectController = func(inst any, c primitives.Controller) { inst.(*testSM).controller = c }

	newA := func(enclosing any) (any, error) { return &testA{root: enclosing.(*testSM)}, nil }
	d.A = &primitives.StateDef{Name: "A", Enclosing: d.Root, New: newA}
	d.A1 = primitives.NewStateDef("A1", nil)
	d.B = primitives.NewStateDef("B", func() any { return struct{}{} })
	d.B1 = primitives.NewStateDef("B1", nil)
	d.B2 = primitives.NewStateDef("B2", nil)
	d.B3 = primitives.NewStateDef("B3", nil)
	d.C = primitives.NewStateDef("C", nil)

	d.Root.Region("state", d.A, d.B, d.C).Retain()
	d.A.Region("state", d.A1)
	d.B.Region("state", d.B1, d.B2, d.B3)

	root := func(inst any) *testSM { return inst.(*testSM) }
	onResult(d.Root, "returnNull", anyType, func(any) any { return nil })
	onResult(d.Root, "getActiveStates", stringsType, func(inst any) any { return root(inst).controller.ActiveStates() })
	onVoid(d.Root, "gotoA", nil, d.A)
	onVoid(d.Root, "gotoB", nil, d.B)
	onVoid(d.Root, "doSecondInterfaceAction", nil, d.C)
	onResult(d.Root, "getAEntryCount", intType, func(inst any) any { return root(inst).aEntryCount })
	onResult(d.Root, "getAExitCount", intType, func(inst any) any { return root(inst).aExitCount })
	onResult(d.Root, "getNullTransitionEntryCount", intType, func(inst any) any { return root(inst).nullEntryCount })
	onResult(d.Root, "sayConstantHello", stringType, func(any) any { return "Hello" })
	guardOn(d.Root, "beFalse", func(any) bool { return false }, d.A)

	onResult(d.A, "sayHello", stringType, func(any) any { return "Hello" }, d.B)
	onVoid(d.A, "nullTransition", nil, d.A)
	onEntry(d.A, "onEntry", func(inst any) {
		inst.(*testA).root.aEntryCount++
		inst.(*testA).root.nullEntryCount++
	})
	onExit(d.A, "onExit", func(inst any) { inst.(*testA).root.aExitCount++ })

	onResult(d.B, "sayHello", stringType, func(any) any { return "There" })
	onVoid(d.B1, "moveSubstateOfB", nil, d.B2)
	onResult(d.C, "sayHello", stringType, func(any) any { return "HelloFromC" })
	return d
}

// lockSM mirrors the initialized machine: Armed aliases Locked.
type lockSM struct {
	value int
}

var (
	errLocked    = errors.New("locked")
	lockProtocol = primitives.NewProtocol("Lock").
			Void("unlock").
			Void("lock").
			Void("arm").
			Void("setValue", intType).
			Returns("getValue", intType)
)

func newLockSM() (root, locked, unlocked, armed *primitives.StateDef) {
	root = primitives.NewStateDef("InitializedTestSM", func() any { return &lockSM{} }).WithProtocols(lockProtocol)
	locked = primitives.NewStateDef("Locked", nil)
	unlocked = &primitives.StateDef{Name: "Unlocked", Enclosing: root, New: func(enc any) (any, error) { return enc, nil }}
	armed = (&primitives.StateDef{Name: "Armed"}).WithBase(locked)

	root.Region("lockedState", locked, unlocked, armed)
	onResult(root, "getValue", intType, func(inst any) any { return inst.(*lockSM).value })

	onVoid(locked, "unlock", nil, unlocked)
	onVoid(locked, "arm", nil, armed)
	locked.AddHandler(&primitives.HandlerDecl{
		Method: "setValue",
		Params: []reflect.Type{intType},
		Invoke: func(any, []any) (any, error) { return nil, errLocked },
	})

	onVoid(unlocked, "lock", nil, locked)
	unlocked.AddHandler(&primitives.HandlerDecl{
		Method: "setValue",
		Params: []reflect.Type{intType},
		Invoke: func(inst any, args []any) (any, error) {
			inst.(*lockSM).value = args[0].(int)
			return nil, nil
		},
	})
	return root, locked, unlocked, armed
}

func mustCompile(def *primitives.StateDef) *primitives.Model {
	m, err := Compile(def)
	if err != nil {
		panic(err)
	}
	return m
}

func event(m *primitives.Model, protocol, method string, args ...any) primitives.Event {
	id, ok := m.Event(protocol, method)
	if !ok {
		panic("unknown event " + protocol + "." + method)
	}
	return primitives.NewEvent(id, args...)
}
