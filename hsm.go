// Package hsm is a hierarchical state machine engine.
//
// A machine is described declaratively with typed state definitions
// (Define, Nested, Alias), compiled once into an immutable Model, and
// instantiated into Machines. Callers dispatch events through the
// Endpoints returned by Wrap or New.
//
//	root := hsm.Define("Lock", func() *Lock { return &Lock{} }).Protocols(lockProtocol)
//	locked := hsm.Define[Locked]("Locked", nil)
//	unlocked := hsm.Define[Unlocked]("Unlocked", nil)
//	root.Region("state", locked, unlocked)
//	locked.On("unlock", nil, unlocked)
//
//	h, err := hsm.New(root)
//	err = hsm.Send(h.Endpoint("Lock"), "unlock")
package hsm

import (
	"github.com/comalice/hsm/internal/core"
	"github.com/comalice/hsm/internal/primitives"
)

type (
	// Model is a compiled, immutable machine description.
	Model = primitives.Model
	// Machine is a live machine instance.
	Machine = core.Machine
	// Event is one invocation of a protocol method.
	Event = primitives.Event
	// EventID identifies a (protocol, method) pair of a Model.
	EventID = primitives.EventID
	// Protocol is a named set of event methods.
	Protocol = primitives.Protocol
	// StateDef is the untyped state definition compiled by Compile.
	StateDef = primitives.StateDef
	// RegionDecl declares a region of a definition.
	RegionDecl = primitives.RegionDecl
	// Controller gives state instances access to the active states.
	Controller = primitives.Controller
	// Error is the error type of the engine.
	Error = primitives.Error
	// Kind identifies an Error.
	Kind = primitives.Kind
	// Option configures a Machine.
	Option = core.Option
	// Observer is notified of settles and swallowed faults.
	Observer = core.Observer
	// Record describes one settled event.
	Record = core.Record
	// Fault describes a swallowed guard, entry or exit fault.
	Fault = core.Fault
	// Runner invokes user code.
	Runner = core.Runner
)

// Error classes, for use with errors.Is.
var (
	ErrCompile        = primitives.ErrCompile
	ErrInstantiation  = primitives.ErrInstantiation
	ErrUnhandledEvent = primitives.ErrUnhandledEvent
	ErrActionFault    = primitives.ErrActionFault
	ErrMultipleFaults = primitives.ErrMultipleFaults
	ErrGuardFault     = primitives.ErrGuardFault
	ErrEntryFault     = primitives.ErrEntryFault
	ErrExitFault      = primitives.ErrExitFault
	ErrInvalidEvent   = primitives.ErrInvalidEvent
)

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	return primitives.KindOf(err)
}

// NewProtocol creates an empty protocol. Add methods with Void and Returns.
func NewProtocol(name string) *Protocol {
	return primitives.NewProtocol(name)
}

// Compile turns a root definition into a Model.
func Compile(root Def) (*Model, error) {
	return core.Compile(root.Def())
}

// Instantiate creates a Machine from a Model.
func Instantiate(model *Model, opts ...Option) (*Machine, error) {
	return core.Instantiate(model, opts...)
}

// New compiles root (once, cached), instantiates it and wraps the machine.
func New(root Def, opts ...Option) (*Handle, error) {
	model, err := core.DefaultCache.Get(root.Def())
	if err != nil {
		return nil, err
	}
	m, err := core.Instantiate(model, opts...)
	if err != nil {
		return nil, err
	}
	return Wrap(m), nil
}

// ActiveStates returns the names of the active states of h, root first.
func ActiveStates(h *Handle) []string {
	return h.machine.ActiveStates()
}

// Machine options.
var (
	WithLogger       = core.WithLogger
	WithObserver     = core.WithObserver
	WithRootInstance = core.WithRootInstance
	WithName         = core.WithName
	WithID           = core.WithID
	WithRunner       = core.WithRunner
	WithQueueSize    = core.WithQueueSize
)
