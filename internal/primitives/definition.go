package primitives

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
)

// Controller is the introspection handle injected into state instances that
// ask for one.
type Controller interface {
	// ActiveStates returns the names of the active states, root first.
	// Handlers and guards see the set from before the event; entry and
	// exit hooks already see the set after it.
	ActiveStates() []string
}

// StateDef is the declarative description of one kind of state. The same
// StateDef may be listed in several regions; each listing becomes its own
// Node in the compiled Model. Changes made through the methods bump the
// definition's revision; fields written directly are not tracked.
type StateDef struct {
	Name string

	// Enclosing names the definition whose live instance New receives.
	// Nil means New is called with nil.
	Enclosing *StateDef
	New       func(enclosing any) (any, error)

	// Base makes this definition an alias of another one: the base's
	// constructor, handlers, guards and hooks apply unless overridden here.
	Base *StateDef

	// Protocols are only meaningful on the root definition.
	Protocols []*Protocol

	Regions  []*RegionDecl
	Handlers []*HandlerDecl
	Guards   []*GuardDecl
	Entry    []*HookDecl
	Exit     []*HookDecl

	InjectController func(inst any, c Controller)
	InjectRoot       func(inst any, root any)

	rev atomic.Uint64
}

// NewStateDef creates a definition with a constructor that ignores the
// enclosing instance.
func NewStateDef(name string, newFn func() any) *StateDef {
	d := &StateDef{Name: name}
	if newFn != nil {
		d.New = func(any) (any, error) { return newFn(), nil }
	}
	return d
}

// String returns the definition name.
func (d *StateDef) String() string {
	return d.Name
}

// WithProtocols sets the event protocols exposed by a root definition.
func (d *StateDef) WithProtocols(protocols ...*Protocol) *StateDef {
	d.Protocols = append(d.Protocols, protocols...)
	d.rev.Add(1)
	return d
}

// WithBase makes d an alias of base.
func (d *StateDef) WithBase(base *StateDef) *StateDef {
	d.Base = base
	d.rev.Add(1)
	return d
}

// AddRegion declares a region.
func (d *StateDef) AddRegion(r *RegionDecl) *StateDef {
	r.owner = d
	d.Regions = append(d.Regions, r)
	d.rev.Add(1)
	return d
}

// Region declares a non-retained region whose initial variant is the first
// one listed.
func (d *StateDef) Region(name string, variants ...*StateDef) *RegionDecl {
	r := &RegionDecl{Name: name, Variants: variants}
	if len(variants) > 0 {
		r.Initial = variants[0]
	}
	d.AddRegion(r)
	return r
}

// AddHandler declares an event handler.
func (d *StateDef) AddHandler(h *HandlerDecl) *StateDef {
	d.Handlers = append(d.Handlers, h)
	d.rev.Add(1)
	return d
}

// AddGuard declares a guard.
func (d *StateDef) AddGuard(g *GuardDecl) *StateDef {
	d.Guards = append(d.Guards, g)
	d.rev.Add(1)
	return d
}

// AddEntry declares an entry hook.
func (d *StateDef) AddEntry(h *HookDecl) *StateDef {
	d.Entry = append(d.Entry, h)
	d.rev.Add(1)
	return d
}

// AddExit declares an exit hook.
func (d *StateDef) AddExit(h *HookDecl) *StateDef {
	d.Exit = append(d.Exit, h)
	d.rev.Add(1)
	return d
}

// SetInjectController sets the controller injection callback.
func (d *StateDef) SetInjectController(fn func(inst any, c Controller)) *StateDef {
	d.InjectController = fn
	d.rev.Add(1)
	return d
}

// SetInjectRoot sets the root injection callback.
func (d *StateDef) SetInjectRoot(fn func(inst any, root any)) *StateDef {
	d.InjectRoot = fn
	d.rev.Add(1)
	return d
}

// Revision sums the revisions of every definition reachable from root
// through bases and region variants. It grows with every tracked change.
func Revision(root *StateDef) uint64 {
	var sum uint64
	seen := map[*StateDef]bool{}
	var walk func(d *StateDef)
	walk = func(d *StateDef) {
		if d == nil || seen[d] {
			return
		}
		seen[d] = true
		sum += d.rev.Load()
		walk(d.Base)
		for _, r := range d.Regions {
			if r == nil {
				continue
			}
			for _, v := range r.Variants {
				walk(v)
			}
		}
	}
	walk(root)
	return sum
}

// RegionDecl declares a slot holding exactly one active variant.
type RegionDecl struct {
	Name     string
	Variants []*StateDef
	Initial  *StateDef
	Retained bool

	// Bind, if set, is called with the owner's instance and the newly
	// active variant's instance every time the region changes.
	Bind func(owner any, active any)

	owner *StateDef
}

func (r *RegionDecl) touch() {
	if r.owner != nil {
		r.owner.rev.Add(1)
	}
}

// WithInitial sets the initial variant.
func (r *RegionDecl) WithInitial(initial *StateDef) *RegionDecl {
	r.Initial = initial
	r.touch()
	return r
}

// Retain marks the region as retained across re-entry of its owner.
func (r *RegionDecl) Retain() *RegionDecl {
	r.Retained = true
	r.touch()
	return r
}

// WithBind sets the binding callback.
func (r *RegionDecl) WithBind(bind func(owner any, active any)) *RegionDecl {
	r.Bind = bind
	r.touch()
	return r
}

// HandlerDecl declares a state's implementation of an event method.
// It matches a protocol method by Method name and identical Params.
type HandlerDecl struct {
	Method  string
	Params  []reflect.Type
	Result  reflect.Type
	Invoke  func(inst any, args []any) (any, error)
	Targets []*StateDef
}

// Signature renders the handler like Method.Signature.
func (h *HandlerDecl) Signature() string {
	return signature(h.Method, h.Params, h.Result)
}

// GuardDecl declares a predicate evaluated on every event while the state
// is active. Result must be bool and Params empty.
type GuardDecl struct {
	Name      string
	Params    []reflect.Type
	Result    reflect.Type
	Predicate func(inst any) (bool, error)
	Targets   []*StateDef
}

// HookDecl declares an entry or exit action. Result must be nil and Params
// empty.
type HookDecl struct {
	Name   string
	Params []reflect.Type
	Result reflect.Type
	Run    func(inst any) error
}

// Lineage returns d followed by its Base chain.
func (d *StateDef) Lineage() []*StateDef {
	var out []*StateDef
	seen := map[*StateDef]bool{}
	for cur := d; cur != nil && !seen[cur]; cur = cur.Base {
		seen[cur] = true
		out = append(out, cur)
	}
	return out
}

// Constructor returns the first constructor along the lineage.
func (d *StateDef) Constructor() func(any) (any, error) {
	for _, cur := range d.Lineage() {
		if cur.New != nil {
			return cur.New
		}
	}
	return nil
}

// EnclosingDef returns the first Enclosing along the lineage.
func (d *StateDef) EnclosingDef() *StateDef {
	for _, cur := range d.Lineage() {
		if cur.Enclosing != nil {
			return cur.Enclosing
		}
	}
	return nil
}

// Validate checks what can be checked on a definition in isolation.
// Cross-definition checks (transition targets, protocol matching) are done
// by the compiler.
func (d *StateDef) Validate() error {
	if d.Name == "" {
		return errors.New("state name is required")
	}
	for i, r := range d.Regions {
		if r == nil {
			return fmt.Errorf("state %s: region %d is nil", d.Name, i)
		}
		if r.Name == "" {
			return fmt.Errorf("state %s: region %d has no name", d.Name, i)
		}
		for j, v := range r.Variants {
			if v == nil {
				return fmt.Errorf("state %s: region %s: variant %d is nil", d.Name, r.Name, j)
			}
		}
	}
	for i, h := range d.Handlers {
		if h == nil || h.Invoke == nil {
			return fmt.Errorf("state %s: handler %d has no function", d.Name, i)
		}
	}
	for i, g := range d.Guards {
		if g == nil || g.Predicate == nil {
			return fmt.Errorf("state %s: guard %d has no predicate", d.Name, i)
		}
	}
	for _, hooks := range [][]*HookDecl{d.Entry, d.Exit} {
		for i, h := range hooks {
			if h == nil || h.Run == nil {
				return fmt.Errorf("state %s: hook %d has no function", d.Name, i)
			}
		}
	}
	return nil
}
