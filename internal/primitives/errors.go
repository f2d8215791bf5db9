package primitives

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

// Error classes. Every *Error matches exactly one of them with errors.Is.
var (
	ErrCompile        = errors.New("compile error")
	ErrInstantiation  = errors.New("instantiation error")
	ErrUnhandledEvent = errors.New("unhandled event")
	ErrActionFault    = errors.New("action fault")
	ErrMultipleFaults = errors.New("multiple faults")
	ErrGuardFault     = errors.New("guard fault")
	ErrEntryFault     = errors.New("entry fault")
	ErrExitFault      = errors.New("exit fault")
	ErrInvalidEvent   = errors.New("invalid event")
)

// Kind is the stable, machine-readable identifier of an error.
type Kind string

const (
	KindMissingProtocols       Kind = "missing_protocols"
	KindMissingInitial         Kind = "missing_initial_variant"
	KindInitialNotVariant      Kind = "initial_not_a_variant"
	KindEmptyRegion            Kind = "empty_region"
	KindDuplicateVariant       Kind = "duplicate_variant"
	KindDuplicateMethod        Kind = "duplicate_method"
	KindRecursiveDefinition    Kind = "recursive_definition"
	KindUnresolvedTarget       Kind = "unresolved_transition_target"
	KindIncompatibleResultType Kind = "incompatible_result_type"
	KindMalformedGuard         Kind = "malformed_guard"
	KindMalformedEntry         Kind = "malformed_entry"
	KindMalformedExit          Kind = "malformed_exit"
	KindInvalidDefinition      Kind = "invalid_definition"

	KindNoEnclosingInstance Kind = "no_enclosing_instance"
	KindConstructorFailed   Kind = "constructor_failed"

	KindUnhandledEvent     Kind = "unhandled_event"
	KindActionFault        Kind = "action_fault"
	KindMultipleFaults     Kind = "multiple_faults"
	KindGuardFault         Kind = "guard_fault"
	KindEntryFault         Kind = "entry_fault"
	KindExitFault          Kind = "exit_fault"
	KindUnknownEvent       Kind = "unknown_event"
	KindInvalidArguments   Kind = "invalid_arguments"
	KindIncompatibleOutput Kind = "incompatible_output"
)

// Params holds the parameters of an error, keyed by name.
type Params map[string]any

// Error is the single error type raised by the engine.
type Error struct {
	Class  error
	Kind   Kind
	Params Params
	Err    error
}

// NewError builds an Error. kv is a flat list of key/value pairs.
func NewError(class error, kind Kind, cause error, kv ...any) *Error {
	e := &Error{Class: class, Kind: kind, Err: cause}
	if len(kv) > 0 {
		e.Params = make(Params, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Params[fmt.Sprint(kv[i])] = kv[i+1]
		}
	}
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Class.Error())
	sb.WriteString(": ")
	sb.WriteString(string(e.Kind))
	for _, k := range e.sortedKeys() {
		fmt.Fprintf(&sb, " %s=%v", k, e.Params[k])
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error class, so errors.Is(err, ErrCompile) works for any
// compile-time Kind.
func (e *Error) Is(target error) bool {
	return target == e.Class
}

// Faults returns the individual causes of a multiple-faults error, or the
// single cause otherwise.
func (e *Error) Faults() []error {
	if e.Kind == KindMultipleFaults {
		return multierr.Errors(e.Err)
	}
	if e.Err == nil {
		return nil
	}
	return []error{e.Err}
}

// MarshalLogObject lets hosts log the error with zap.Object.
func (e *Error) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("class", e.Class.Error())
	enc.AddString("kind", string(e.Kind))
	for _, k := range e.sortedKeys() {
		if err := enc.AddReflected(k, e.Params[k]); err != nil {
			return err
		}
	}
	if e.Err != nil {
		enc.AddString("cause", e.Err.Error())
	}
	return nil
}

func (e *Error) sortedKeys() []string {
	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CompileError builds an ErrCompile error.
func CompileError(kind Kind, kv ...any) *Error {
	return NewError(ErrCompile, kind, nil, kv...)
}

// InstantiationError builds an ErrInstantiation error.
func InstantiationError(kind Kind, cause error, kv ...any) *Error {
	return NewError(ErrInstantiation, kind, cause, kv...)
}

// AggregateFaults folds action faults into the error reported to the
// caller: nil for none, the fault itself for one, a multiple-faults error
// otherwise.
func AggregateFaults(event string, faults []error) error {
	switch len(faults) {
	case 0:
		return nil
	case 1:
		return faults[0]
	default:
		return NewError(ErrMultipleFaults, KindMultipleFaults, multierr.Combine(faults...),
			"event", event, "count", len(faults))
	}
}
