// Package lifecycle drives a deployed service through prepare, start and
// stop on top of the hsm engine, including the dirty shutdown retry loop.
package lifecycle

import (
	"go.uber.org/zap"

	"github.com/comalice/hsm"
	"github.com/comalice/hsm/internal/logging"
)

// Environment is the service being managed.
type Environment interface {
	ServiceName() string
	WorkingContext() WorkingContext
}

// WorkingContext owns the workers a service started.
type WorkingContext interface {
	ActiveWorkers() int
	Shutdown()
	Interrupt()
}

// Deployer performs the actual work of each step. Calls happen on the
// WorkManager, never under the machine lock.
type Deployer interface {
	Prepare(env Environment) error
	Launch(env Environment, args []string) error
	Stop(env Environment) error
}

// ServiceLifeCycle is the control surface of a managed service.
type ServiceLifeCycle interface {
	Start() error
	StartWithArgs(args []string) error
	Prepare() error
	Stop() error
	Status() (string, error)
	Name() (string, error)
}

// StatusEvents are the notifications queued work sends back.
type StatusEvents interface {
	PrepareSucceeded() error
	StartSucceeded() error
	StopSucceeded() error
	StopFailed() error
	Stopped() error
	Timeout() error
	Exception(err error) error
}

var (
	_ ServiceLifeCycle = (*LifeCycle)(nil)
	_ StatusEvents     = (*LifeCycle)(nil)
)

// LifeCycle is one managed service.
type LifeCycle struct {
	handle *hsm.Handle
	root   *machine
	life   *hsm.Endpoint
	status *hsm.Endpoint
}

type options struct {
	cfg       Config
	logger    *zap.SugaredLogger
	work      WorkManager
	observers []hsm.Observer
}

// Option configures a LifeCycle.
type Option func(*options)

// WithConfig sets the retry configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLogger sets the logger of the life cycle and its machine.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithWorkManager replaces the default goroutine work manager.
func WithWorkManager(w WorkManager) Option {
	return func(o *options) {
		o.work = w
	}
}

// WithObserver adds a machine observer.
func WithObserver(obs hsm.Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs)
	}
}

// New creates the life cycle of env, starting in Idle.
func New(env Environment, deployer Deployer, opts ...Option) (*LifeCycle, error) {
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.logger == nil {
		o.logger = logging.For(logging.ComponentLifecycle)
	}
	if o.work == nil {
		o.work = NewGoWorkManager(4)
	}

	root := &machine{
		env:      env,
		deployer: deployer,
		work:     o.work,
		cfg:      o.cfg,
		logger:   o.logger.With("service", env.ServiceName()),
	}
	mopts := []hsm.Option{
		hsm.WithRootInstance(root),
		hsm.WithName(env.ServiceName()),
		hsm.WithLogger(o.logger),
	}
	for _, obs := range o.observers {
		mopts = append(mopts, hsm.WithObserver(obs))
	}
	h, err := hsm.New(definition, mopts...)
	if err != nil {
		return nil, err
	}
	lc := &LifeCycle{
		handle: h,
		root:   root,
		life:   h.Endpoint(LifeCycleProtocol),
		status: h.Endpoint(StatusProtocol),
	}
	root.events = lc
	return lc, nil
}

// Handle exposes the underlying machine.
func (l *LifeCycle) Handle() *hsm.Handle { return l.handle }

// Exceptions returns the errors recorded since the last start.
func (l *LifeCycle) Exceptions() []error {
	l.root.mu.Lock()
	defer l.root.mu.Unlock()
	return append([]error(nil), l.root.exceptions...)
}

// Start prepares the service if needed, then launches it.
func (l *LifeCycle) Start() error { return hsm.Send(l.life, "start") }

// StartWithArgs is Start passing args to the deployer's Launch.
func (l *LifeCycle) StartWithArgs(args []string) error {
	return hsm.Send(l.life, "startWithArgs", args)
}

// Prepare runs the deployer's Prepare without launching.
func (l *LifeCycle) Prepare() error { return hsm.Send(l.life, "prepare") }

// Stop stops a prepared or running service.
func (l *LifeCycle) Stop() error { return hsm.Send(l.life, "stop") }

// Status returns the name of the current state.
func (l *LifeCycle) Status() (string, error) { return hsm.Call[string](l.life, "getStatus") }

// Name returns the service name.
func (l *LifeCycle) Name() (string, error) { return hsm.Call[string](l.life, "getName") }

// PrepareSucceeded reports that preparation finished.
func (l *LifeCycle) PrepareSucceeded() error { return hsm.Send(l.status, "prepareSucceeded") }

// StartSucceeded reports that the service was launched.
func (l *LifeCycle) StartSucceeded() error { return hsm.Send(l.status, "startSucceeded") }

// StopSucceeded reports a clean stop with no workers left.
func (l *LifeCycle) StopSucceeded() error { return hsm.Send(l.status, "stopSucceeded") }

// StopFailed reports that workers survived the stop.
func (l *LifeCycle) StopFailed() error { return hsm.Send(l.status, "stopFailed") }

// Stopped reports that the service is gone during a dirty shutdown.
func (l *LifeCycle) Stopped() error { return hsm.Send(l.status, "stopped") }

// Timeout is posted by the dirty shutdown ticker.
func (l *LifeCycle) Timeout() error { return hsm.Send(l.status, "timeout") }

// Exception reports a failed step.
func (l *LifeCycle) Exception(err error) error { return hsm.Send(l.status, "exception", err) }
