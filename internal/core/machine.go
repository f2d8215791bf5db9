// Package core provides the runtime core tier of the engine: the compiler,
// the instantiator and the Machine executor.
package core

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comalice/hsm/internal/primitives"
)

// Runner invokes the user code of a compiled model. See
// extensibility.DefaultRunner and extensibility.LoggingRunner.
type Runner interface {
	Invoke(a *primitives.Action, inst any, args []any) (any, error)
	Evaluate(a *primitives.Action, inst any) (bool, error)
	RunHook(h *primitives.Hook, inst any) error
}

// Record describes one settled event.
type Record struct {
	MachineID string        `json:"machineID" yaml:"machineID"`
	Machine   string        `json:"machine" yaml:"machine"`
	Event     string        `json:"event" yaml:"event"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Exited    []string      `json:"exited,omitempty" yaml:"exited,omitempty"`
	Entered   []string      `json:"entered,omitempty" yaml:"entered,omitempty"`
	Active    []string      `json:"active" yaml:"active"`
	Err       error         `json:"-" yaml:"-"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
}

// Fault describes a guard, entry or exit failure that was logged and
// swallowed.
type Fault struct {
	MachineID string
	Machine   string
	State     string
	Err       *primitives.Error
}

// Observer is notified synchronously, under the machine lock, after each
// settle and for each swallowed fault. Implementations must not block or
// call back into the machine.
type Observer interface {
	Settled(rec Record)
	Swallowed(f Fault)
}

// Option applies configuration to Machine via functional options pattern.
type Option func(*Machine)

// ErrQueueFull is returned by Post when the mailbox is full.
var ErrQueueFull = errors.New("event queue full (backpressure)")

// ErrStopped is returned by Post after Stop.
var ErrStopped = errors.New("machine stopped")

type snapshot struct {
	nodes []primitives.NodeID
	names []string
}

// Machine is one live instance of a compiled Model. Handle is serialized
// by a single mutex; ActiveStates is lock-free.
type Machine struct {
	id        string
	name      string
	model     *primitives.Model
	instances []any
	active    []primitives.NodeID // indexed by RegionID

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	logger    *zap.SugaredLogger
	runner    Runner
	observers []Observer

	rootInstance any
	hasRoot      bool

	queue     chan primitives.Event
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func newMachine(model *primitives.Model, opts ...Option) *Machine {
	m := &Machine{
		id:        uuid.NewString(),
		name:      model.Name,
		model:     model,
		instances: make([]any, len(model.Nodes)),
		active:    make([]primitives.NodeID, len(model.Regions)),
		logger:    zap.NewNop().Sugar(),
		queue:     make(chan primitives.Event, 64),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.runner == nil {
		m.runner = defaultRunner(m.logger)
	}
	m.logger = m.logger.With("machine", m.name, "machineID", m.id)
	return m
}

// ID returns the unique id of this machine instance.
func (m *Machine) ID() string { return m.id }

// Name returns the machine name, the root definition's name by default.
func (m *Machine) Name() string { return m.name }

// Model returns the compiled model shared by all machines of this kind.
func (m *Machine) Model() *primitives.Model { return m.model }

// Instance returns the live state instance of a node.
func (m *Machine) Instance(id primitives.NodeID) any {
	return m.instances[id]
}

// RootInstance returns the root state instance.
func (m *Machine) RootInstance() any {
	return m.instances[primitives.RootID]
}

// ActiveStates returns the names of the active states in pre-order, root
// first. It reads the snapshot published at the end of the last settle and
// may be called from inside handlers.
func (m *Machine) ActiveStates() []string {
	s := m.snap.Load()
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// ActiveNodes is ActiveStates as node ids.
func (m *Machine) ActiveNodes() []primitives.NodeID {
	s := m.snap.Load()
	if s == nil {
		return nil
	}
	return append([]primitives.NodeID(nil), s.nodes...)
}

// InState reports whether a state with the given name is active.
func (m *Machine) InState(name string) bool {
	s := m.snap.Load()
	if s == nil {
		return false
	}
	for _, n := range s.names {
		if n == name {
			return true
		}
	}
	return false
}

// Handle dispatches one event synchronously and returns the coerced result
// of the handlers or the error of the settle. Handlers must not call Handle
// on their own machine; use Post instead.
func (m *Machine) Handle(ev primitives.Event) (any, error) {
	desc, ok := m.model.EventDesc(ev.ID)
	if !ok {
		return nil, primitives.NewError(primitives.ErrInvalidEvent, primitives.KindUnknownEvent, nil, "id", int(ev.ID))
	}
	args, err := normalizeArgs(desc, ev.Args)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	pre := m.activeSet()
	out := m.settle(desc, args, pre)
	post := m.activeSet()
	exited, entered := diff(pre, post)
	m.publish(post)

	for i := len(exited) - 1; i >= 0; i-- {
		m.runHooks(m.model.Node(exited[i]).Exit, primitives.ErrExitFault, primitives.KindExitFault)
	}
	for _, id := range entered {
		m.runHooks(m.model.Node(id).Entry, primitives.ErrEntryFault, primitives.KindEntryFault)
	}

	res, err := m.result(desc, out)
	m.logger.Debugw("Event settled",
		"event", desc.String(), "exited", len(exited), "entered", len(entered), "error", err)
	m.notify(Record{
		MachineID: m.id,
		Machine:   m.name,
		Event:     desc.String(),
		Duration:  time.Since(start),
		Exited:    m.paths(exited),
		Entered:   m.paths(entered),
		Active:    m.ActiveStates(),
		Err:       err,
		Timestamp: start,
	})
	return res, err
}

// result turns the outcome of a settle into Handle's return values.
func (m *Machine) result(desc primitives.EventDesc, out outcome) (any, error) {
	if len(out.faults) > 0 {
		return nil, primitives.AggregateFaults(desc.String(), out.faults)
	}
	if !out.handled {
		return nil, primitives.NewError(primitives.ErrUnhandledEvent, primitives.KindUnhandledEvent, nil,
			"event", desc.String(), "machine", m.name)
	}
	return coerce(desc, out.output)
}

// Start launches the mailbox goroutine serving Post. Idempotent.
func (m *Machine) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.interpret()
	})
}

func (m *Machine) interpret() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.queue:
			if _, err := m.Handle(ev); err != nil {
				m.logger.Debugw("Posted event failed", "event", ev.ID, "error", err)
			}
		case <-m.done:
			return
		}
	}
}

// Post enqueues an event for asynchronous handling by the mailbox
// goroutine. It never blocks; errors of the event itself are logged and
// reported to observers.
func (m *Machine) Post(ev primitives.Event) error {
	select {
	case <-m.done:
		return ErrStopped
	default:
	}
	select {
	case m.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop ends the mailbox goroutine after the current event. Pending posted
// events are dropped. Safe to call more than once.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

func (m *Machine) notify(rec Record) {
	for _, o := range m.observers {
		o.Settled(rec)
	}
}

func (m *Machine) swallow(id primitives.NodeID, err *primitives.Error) {
	m.logger.Warnw("Fault swallowed", "state", m.model.Path(id), "error", err)
	for _, o := range m.observers {
		o.Swallowed(Fault{MachineID: m.id, Machine: m.name, State: m.model.Path(id), Err: err})
	}
}

func (m *Machine) paths(ids []primitives.NodeID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = m.model.Path(id)
	}
	return out
}

// normalizeArgs checks arity and assignability before anything runs, and
// converts each argument to its parameter type so handlers can rely on the
// exact declared type.
func normalizeArgs(desc primitives.EventDesc, args []any) ([]any, error) {
	params := desc.Method.Params
	if len(args) != len(params) {
		return nil, primitives.NewError(primitives.ErrInvalidEvent, primitives.KindInvalidArguments, nil,
			"event", desc.String(), "expected", len(params), "actual", len(args))
	}
	out, copied := args, false
	for i, a := range args {
		if !argAssignable(a, params[i]) {
			return nil, primitives.NewError(primitives.ErrInvalidEvent, primitives.KindInvalidArguments, nil,
				"event", desc.String(), "index", i, "expected", params[i].String(), "actual", reflect.TypeOf(a))
		}
		if a == nil || params[i].Kind() == reflect.Interface || reflect.TypeOf(a) == params[i] {
			continue
		}
		if !copied {
			out, copied = append([]any(nil), args...), true
		}
		out[i] = reflect.ValueOf(a).Convert(params[i]).Interface()
	}
	return out, nil
}

func argAssignable(a any, param reflect.Type) bool {
	if a == nil {
		switch param.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return true
		}
		return false
	}
	return reflect.TypeOf(a).AssignableTo(param)
}

// coerce converts a handler's output to the method result type: assignable
// and numeric values are converted, nil becomes the zero value. Interface
// results keep the dynamic value.
func coerce(desc primitives.EventDesc, output any) (any, error) {
	rt := desc.Method.Result
	if rt == nil {
		return nil, nil
	}
	if output == nil {
		return reflect.Zero(rt).Interface(), nil
	}
	v := reflect.ValueOf(output)
	switch {
	case rt.Kind() == reflect.Interface && v.Type().AssignableTo(rt):
		return output, nil
	case v.Type().AssignableTo(rt), isNumeric(v.Kind()) && isNumeric(rt.Kind()):
		return v.Convert(rt).Interface(), nil
	}
	return nil, primitives.NewError(primitives.ErrInvalidEvent, primitives.KindIncompatibleOutput, nil,
		"event", desc.String(), "expected", rt.String(), "actual", v.Type().String())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
