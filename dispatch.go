package hsm

import (
	"fmt"

	"github.com/comalice/hsm/internal/primitives"
)

// Handle is the dispatch surface of a Machine: one Endpoint per protocol.
type Handle struct {
	machine   *Machine
	endpoints map[string]*Endpoint
	order     []*Endpoint
}

// Wrap builds the endpoints of m.
func Wrap(m *Machine) *Handle {
	h := &Handle{machine: m, endpoints: map[string]*Endpoint{}}
	for _, p := range m.Model().Protocols {
		ep := &Endpoint{machine: m, protocol: p}
		h.endpoints[p.Name] = ep
		h.order = append(h.order, ep)
	}
	return h
}

// Machine returns the wrapped machine.
func (h *Handle) Machine() *Machine {
	return h.machine
}

// Endpoint returns the endpoint of a protocol, or nil if the machine does
// not expose it.
func (h *Handle) Endpoint(protocol string) *Endpoint {
	return h.endpoints[protocol]
}

// Endpoints returns all endpoints in protocol declaration order.
func (h *Handle) Endpoints() []*Endpoint {
	return append([]*Endpoint(nil), h.order...)
}

// ActiveStates is shorthand for ActiveStates(h).
func (h *Handle) ActiveStates() []string {
	return h.machine.ActiveStates()
}

// Endpoint turns method calls of one protocol into events.
type Endpoint struct {
	machine  *Machine
	protocol *Protocol
}

// Protocol returns the protocol name.
func (e *Endpoint) Protocol() string {
	return e.protocol.Name
}

// Methods returns the protocol methods.
func (e *Endpoint) Methods() []*primitives.Method {
	return e.protocol.Methods
}

// Event builds the event for method with args.
func (e *Endpoint) Event(method string, args ...any) (Event, error) {
	id, ok := e.machine.Model().Event(e.protocol.Name, method)
	if !ok {
		return Event{}, primitives.NewError(primitives.ErrInvalidEvent, primitives.KindUnknownEvent, nil,
			"protocol", e.protocol.Name, "method", method)
	}
	return primitives.NewEvent(id, args...), nil
}

// Call dispatches method synchronously and returns its output.
func (e *Endpoint) Call(method string, args ...any) (any, error) {
	ev, err := e.Event(method, args...)
	if err != nil {
		return nil, err
	}
	return e.machine.Handle(ev)
}

// Post enqueues method on the machine mailbox. The machine must be started.
func (e *Endpoint) Post(method string, args ...any) error {
	ev, err := e.Event(method, args...)
	if err != nil {
		return err
	}
	return e.machine.Post(ev)
}

// Send dispatches a method whose output is not needed.
func Send(e *Endpoint, method string, args ...any) error {
	_, err := e.Call(method, args...)
	return err
}

// Call dispatches method and returns its output as R. A nil output yields
// the zero R.
func Call[R any](e *Endpoint, method string, args ...any) (R, error) {
	var zero R
	res, err := e.Call(method, args...)
	if err != nil || res == nil {
		return zero, err
	}
	r, ok := res.(R)
	if !ok {
		return zero, primitives.NewError(primitives.ErrInvalidEvent, primitives.KindIncompatibleOutput, nil,
			"method", e.protocol.Name+"."+method,
			"want", TypeOf[R]().String(),
			"got", fmt.Sprintf("%T", res))
	}
	return r, nil
}
