package hsm

import (
	"reflect"

	"github.com/comalice/hsm/internal/primitives"
)

// Def is anything that yields a state definition: *State[S] or a raw
// *StateDef wrapped with Raw.
type Def interface {
	Def() *primitives.StateDef
}

// State is a typed builder for a definition whose instances are *S.
type State[S any] struct {
	def *primitives.StateDef
}

type rawDef struct{ def *primitives.StateDef }

func (r rawDef) Def() *primitives.StateDef { return r.def }

// Raw wraps an untyped definition.
func Raw(def *primitives.StateDef) Def {
	return rawDef{def: def}
}

// TypeOf returns the reflect.Type token of T, for protocol declarations.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Define declares a state whose instances are created by newFn. A nil
// newFn allocates a zero S.
func Define[S any](name string, newFn func() *S) *State[S] {
	if newFn == nil {
		newFn = func() *S { return new(S) }
	}
	return &State[S]{def: primitives.NewStateDef(name, func() any { return newFn() })}
}

// Nested declares a state whose constructor receives the live instance of
// the nearest enclosing state of type E.
func Nested[S, E any](name string, enclosing *State[E], newFn func(*E) *S) *State[S] {
	def := &primitives.StateDef{
		Name:      name,
		Enclosing: enclosing.def,
		New: func(enc any) (any, error) {
			return newFn(enc.(*E)), nil
		},
	}
	return &State[S]{def: def}
}

// Alias declares a state that behaves like base: it shares its instance
// type, constructor, handlers, guards and hooks, and may add or override
// its own.
func Alias[S any](name string, base *State[S]) *State[S] {
	return &State[S]{def: (&primitives.StateDef{Name: name}).WithBase(base.def)}
}

// Def returns the underlying definition.
func (s *State[S]) Def() *primitives.StateDef {
	return s.def
}

// Name returns the state name.
func (s *State[S]) Name() string {
	return s.def.Name
}

// Protocols sets the event protocols of a root state.
func (s *State[S]) Protocols(ps ...*Protocol) *State[S] {
	s.def.WithProtocols(ps...)
	return s
}

// Region declares a region; the first variant is the initial one.
func (s *State[S]) Region(name string, variants ...Def) *RegionDecl {
	return s.def.Region(name, defs(variants)...)
}

// On declares a handler for a method without parameters or result.
// fn may be nil for a pure transition.
func (s *State[S]) On(method string, fn func(*S), targets ...Def) *State[S] {
	s.def.AddHandler(&primitives.HandlerDecl{
		Method: method,
		Invoke: func(inst any, _ []any) (any, error) {
			if fn != nil {
				fn(inst.(*S))
			}
			return nil, nil
		},
		Targets: defs(targets),
	})
	return s
}

// OnErr is On for a handler that can fail.
func (s *State[S]) OnErr(method string, fn func(*S) error, targets ...Def) *State[S] {
	s.def.AddHandler(&primitives.HandlerDecl{
		Method:  method,
		Invoke:  func(inst any, _ []any) (any, error) { return nil, fn(inst.(*S)) },
		Targets: defs(targets),
	})
	return s
}

// Guard declares a predicate evaluated after every event while the state
// is active. When it holds, the machine transitions to targets.
func (s *State[S]) Guard(name string, fn func(*S) bool, targets ...Def) *State[S] {
	s.def.AddGuard(&primitives.GuardDecl{
		Name:      name,
		Result:    TypeOf[bool](),
		Predicate: func(inst any) (bool, error) { return fn(inst.(*S)), nil },
		Targets:   defs(targets),
	})
	return s
}

// OnEntry declares an action run each time the state becomes active.
func (s *State[S]) OnEntry(name string, fn func(*S)) *State[S] {
	s.def.AddEntry(&primitives.HookDecl{Name: name, Run: func(inst any) error { fn(inst.(*S)); return nil }})
	return s
}

// OnExit declares an action run each time the state stops being active.
func (s *State[S]) OnExit(name string, fn func(*S)) *State[S] {
	s.def.AddExit(&primitives.HookDecl{Name: name, Run: func(inst any) error { fn(inst.(*S)); return nil }})
	return s
}

// UseController injects the machine controller into every instance.
func (s *State[S]) UseController(fn func(*S, Controller)) *State[S] {
	s.def.SetInjectController(func(inst any, c primitives.Controller) { fn(inst.(*S), c) })
	return s
}

// UseRoot injects the root state instance into every instance.
func (s *State[S]) UseRoot(fn func(*S, any)) *State[S] {
	s.def.SetInjectRoot(func(inst any, root any) { fn(inst.(*S), root) })
	return s
}

// Bind makes a region report its active variant to the owner instance.
func Bind[S any](s *State[S], r *RegionDecl, fn func(owner *S, active any)) *RegionDecl {
	return r.WithBind(func(owner, active any) { fn(owner.(*S), active) })
}

// Handle1 declares a void handler with one parameter.
func Handle1[S, A any](s *State[S], method string, fn func(*S, A) error, targets ...Def) *State[S] {
	s.def.AddHandler(&primitives.HandlerDecl{
		Method: method,
		Params: []reflect.Type{TypeOf[A]()},
		Invoke: func(inst any, args []any) (any, error) {
			return nil, fn(inst.(*S), arg[A](args, 0))
		},
		Targets: defs(targets),
	})
	return s
}

// Handle2 declares a void handler with two parameters.
func Handle2[S, A, B any](s *State[S], method string, fn func(*S, A, B) error, targets ...Def) *State[S] {
	s.def.AddHandler(&primitives.HandlerDecl{
		Method: method,
		Params: []reflect.Type{TypeOf[A](), TypeOf[B]()},
		Invoke: func(inst any, args []any) (any, error) {
			return nil, fn(inst.(*S), arg[A](args, 0), arg[B](args, 1))
		},
		Targets: defs(targets),
	})
	return s
}

// HandleResult declares a handler without parameters returning R.
func HandleResult[S, R any](s *State[S], method string, fn func(*S) (R, error), targets ...Def) *State[S] {
	s.def.AddHandler(&primitives.HandlerDecl{
		Method: method,
		Result: TypeOf[R](),
		Invoke: func(inst any, _ []any) (any, error) {
			return fn(inst.(*S))
		},
		Targets: defs(targets),
	})
	return s
}

// HandleResult1 declares a handler with one parameter returning R.
func HandleResult1[S, A, R any](s *State[S], method string, fn func(*S, A) (R, error), targets ...Def) *State[S] {
	s.def.AddHandler(&primitives.HandlerDecl{
		Method: method,
		Params: []reflect.Type{TypeOf[A]()},
		Result: TypeOf[R](),
		Invoke: func(inst any, args []any) (any, error) {
			return fn(inst.(*S), arg[A](args, 0))
		},
		Targets: defs(targets),
	})
	return s
}

// arg returns args[i] as A; nil becomes the zero value.
func arg[A any](args []any, i int) A {
	var zero A
	if args[i] == nil {
		return zero
	}
	return args[i].(A)
}

func defs(ds []Def) []*primitives.StateDef {
	out := make([]*primitives.StateDef, len(ds))
	for i, d := range ds {
		if d != nil {
			out[i] = d.Def()
		}
	}
	return out
}
