package extensibility

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/hsm/internal/primitives"
)

// ErrPanic marks errors produced from a recovered panic in user code.
var ErrPanic = errors.New("panic recovered")

// Invoker runs the user functions of a compiled model. core.Runner has the
// same method set.
type Invoker interface {
	Invoke(a *primitives.Action, inst any, args []any) (any, error)
	Evaluate(a *primitives.Action, inst any) (bool, error)
	RunHook(h *primitives.Hook, inst any) error
}

// DefaultRunner calls user functions directly and converts panics into
// errors wrapping ErrPanic.
type DefaultRunner struct{}

// Invoke runs a handler.
func (DefaultRunner) Invoke(a *primitives.Action, inst any, args []any) (res any, err error) {
	defer recoverInto(&err, a.Name)
	return a.Invoke(inst, args)
}

// RunHook runs an entry or exit hook.
func (DefaultRunner) RunHook(h *primitives.Hook, inst any) (err error) {
	defer recoverInto(&err, h.Name)
	return h.Run(inst)
}

func recoverInto(err *error, name string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w in %s: %v", ErrPanic, name, r)
	}
}

// LoggingRunner wraps an Invoker and logs every call at debug level.
type LoggingRunner struct {
	inner  Invoker
	logger *zap.SugaredLogger
}

// NewLoggingRunner wraps inner. A nil inner means DefaultRunner.
func NewLoggingRunner(inner Invoker, logger *zap.SugaredLogger) *LoggingRunner {
	if inner == nil {
		inner = DefaultRunner{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LoggingRunner{inner: inner, logger: logger}
}

// Invoke delegates to the inner runner and logs the call with its duration.
func (r *LoggingRunner) Invoke(a *primitives.Action, inst any, args []any) (any, error) {
	start := time.Now()
	res, err := r.inner.Invoke(a, inst, args)
	r.logger.Debugw("Handler invoked",
		"handler", a.Name, "node", a.Node, "duration", time.Since(start), "error", err)
	return res, err
}

// RunHook delegates to the inner runner and logs the hook with its duration.
func (r *LoggingRunner) RunHook(h *primitives.Hook, inst any) error {
	start := time.Now()
	err := r.inner.RunHook(h, inst)
	r.logger.Debugw("Hook ran",
		"hook", h.Name, "node", h.Node, "duration", time.Since(start), "error", err)
	return err
}
