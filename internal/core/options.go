package core

import (
	"go.uber.org/zap"

	"github.com/comalice/hsm/internal/extensibility"
	"github.com/comalice/hsm/internal/primitives"
)

// WithLogger sets the machine logger. Swallowed faults are logged at warn
// level, settles and user-code calls at debug level.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRunner replaces the runner invoking handlers, guards and hooks.
func WithRunner(r Runner) Option {
	return func(m *Machine) {
		m.runner = r
	}
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithRootInstance supplies the root state instance instead of calling the
// root constructor.
func WithRootInstance(inst any) Option {
	return func(m *Machine) {
		m.rootInstance = inst
		m.hasRoot = true
	}
}

// WithName overrides the machine name used in logs and metrics.
func WithName(name string) Option {
	return func(m *Machine) {
		m.name = name
	}
}

// WithID overrides the generated machine id.
func WithID(id string) Option {
	return func(m *Machine) {
		m.id = id
	}
}

// WithQueueSize sets the capacity of the Post mailbox.
func WithQueueSize(size int) Option {
	return func(m *Machine) {
		m.queue = make(chan primitives.Event, size)
	}
}

func defaultRunner(l *zap.SugaredLogger) Runner {
	return extensibility.NewLoggingRunner(extensibility.DefaultRunner{}, l.Named("runner"))
}
