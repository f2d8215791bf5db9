package primitives

import (
	"fmt"
	"reflect"
	"strings"
)

// Method is one externally callable operation of a Protocol.
// A nil Result means the method returns nothing.
type Method struct {
	Name   string
	Params []reflect.Type
	Result reflect.Type
}

// Signature renders the method as name(params) result.
func (m *Method) Signature() string {
	return signature(m.Name, m.Params, m.Result)
}

// Protocol is a named set of event methods. A machine may expose several.
type Protocol struct {
	Name    string
	Methods []*Method
}

// NewProtocol creates an empty protocol.
func NewProtocol(name string) *Protocol {
	return &Protocol{Name: name}
}

// Void adds a method without result.
func (p *Protocol) Void(name string, params ...reflect.Type) *Protocol {
	p.Methods = append(p.Methods, &Method{Name: name, Params: params})
	return p
}

// Returns adds a method with a result of type result.
func (p *Protocol) Returns(name string, result reflect.Type, params ...reflect.Type) *Protocol {
	p.Methods = append(p.Methods, &Method{Name: name, Params: params, Result: result})
	return p
}

// Method looks a method up by name.
func (p *Protocol) Method(name string) (*Method, bool) {
	for _, m := range p.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// EventID indexes Model.Events. There is one EventID per distinct
// (protocol, method) pair.
type EventID int

// EventDesc describes one member of the event enum.
type EventDesc struct {
	ID       EventID
	Protocol string
	Method   *Method
}

// String renders the event as Protocol.method.
func (d EventDesc) String() string {
	return d.Protocol + "." + d.Method.Name
}

// Event is a single invocation: which event, with which arguments.
// Events are values and must not be mutated once handed to a machine.
type Event struct {
	ID   EventID
	Args []any
}

// NewEvent creates an Event.
func NewEvent(id EventID, args ...any) Event {
	return Event{ID: id, Args: args}
}

// SameParams reports whether two parameter lists are identical.
func SameParams(a, b []reflect.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signature(name string, params []reflect.Type, result reflect.Type) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = typeName(p)
	}
	s := fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
	if result != nil {
		s += " " + typeName(result)
	}
	return s
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}
