package lifecycle

import (
	"sync"

	"go.uber.org/zap"

	"github.com/comalice/hsm"
	"github.com/comalice/hsm/internal/extensibility"
)

// Protocol names.
const (
	LifeCycleProtocol = "ServiceLifeCycle"
	StatusProtocol    = "StatusEvents"
)

var (
	lifeCycleProtocol = hsm.NewProtocol(LifeCycleProtocol).
				Void("start").
				Void("startWithArgs", hsm.TypeOf[[]string]()).
				Void("prepare").
				Void("stop").
				Returns("getStatus", hsm.TypeOf[string]()).
				Returns("getName", hsm.TypeOf[string]())

	statusProtocol = hsm.NewProtocol(StatusProtocol).
			Void("prepareSucceeded").
			Void("startSucceeded").
			Void("stopSucceeded").
			Void("stopFailed").
			Void("stopped").
			Void("timeout").
			Void("exception", hsm.TypeOf[error]())
)

// machine is the root state: the service being managed and the
// collaborators the states reach through it.
type machine struct {
	env      Environment
	deployer Deployer
	work     WorkManager
	cfg      Config
	logger   *zap.SugaredLogger

	// events is how queued work reports back; set before the first event.
	events  *LifeCycle
	control hsm.Controller

	mu         sync.Mutex
	exceptions []error
}

func (m *machine) status() string {
	active := m.control.ActiveStates()
	if len(active) < 2 {
		return ""
	}
	return active[1]
}

func (m *machine) record(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptions = append(m.exceptions, err)
}

func (m *machine) clearExceptions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptions = nil
}

// report sends the outcome of a queued step back to the machine.
func (m *machine) report(err error, success func() error) {
	if err != nil {
		m.logger.Warnw("Life cycle step failed", "service", m.env.ServiceName(), "error", err)
		if err := m.events.Exception(err); err != nil {
			m.logger.Debugw("Exception not handled", "error", err)
		}
		return
	}
	if err := success(); err != nil {
		m.logger.Debugw("Status event not handled", "error", err)
	}
}

type idle struct{ m *machine }

func (s *idle) queuePrepare(then func() error) {
	s.m.clearExceptions()
	s.m.work.Queue(func() {
		if err := s.m.deployer.Prepare(s.m.env); err != nil {
			s.m.report(err, nil)
			return
		}
		s.m.report(nil, s.m.events.PrepareSucceeded)
		if then != nil {
			if err := then(); err != nil {
				s.m.logger.Debugw("Follow-up start not handled", "error", err)
			}
		}
	})
}

type preparing struct{ m *machine }

type prepared struct{ m *machine }

func (s *prepared) queueLaunch(args []string) {
	s.m.work.Queue(func() {
		err := s.m.deployer.Launch(s.m.env, args)
		s.m.report(err, s.m.events.StartSucceeded)
	})
}

type starting struct{ m *machine }

type running struct{ m *machine }

type stopping struct{ m *machine }

type dirtyShutdown struct {
	m       *machine
	retries int
	ticker  *extensibility.Ticker
}

func (s *dirtyShutdown) enter() {
	s.m.logger.Infow("Failed clean shutdown, retrying", "service", s.m.env.ServiceName())
	s.retries = 0
	s.m.env.WorkingContext().Shutdown()
	s.ticker = extensibility.NewTicker(s.m.cfg.BackOff(), func() {
		if err := s.m.events.Timeout(); err != nil {
			s.m.logger.Debugw("Timeout not handled", "error", err)
		}
	}, extensibility.WithSchedule(s.m.work.Schedule), extensibility.WithTickerLogger(s.m.logger))
	s.ticker.Start()
}

func (s *dirtyShutdown) exit() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *dirtyShutdown) timeout() {
	wc := s.m.env.WorkingContext()
	wc.Shutdown()
	wc.Interrupt()
	s.retries++
}

func (s *dirtyShutdown) retryCountExceeded() bool {
	if s.retries > s.m.cfg.MaxRetryCount {
		s.m.logger.Infow("Shutdown failed", "service", s.m.env.ServiceName(), "retries", s.retries)
		return true
	}
	return false
}

func workersGone(m *machine) bool {
	n := m.env.WorkingContext().ActiveWorkers()
	m.logger.Debugw("Workers left", "service", m.env.ServiceName(), "workers", n)
	return n == 0
}

// definition is compiled once and shared by every LifeCycle.
var definition = newDefinition()

// Definition returns the root definition of the life cycle machine.
func Definition() hsm.Def {
	return definition
}

func newDefinition() *hsm.State[machine] {
	root := hsm.Define[machine]("StarterServiceLifeCycle", nil).Protocols(lifeCycleProtocol, statusProtocol)
	idleS := hsm.Nested("Idle", root, func(m *machine) *idle { return &idle{m: m} })
	failedS := hsm.Alias("Failed", idleS)
	preparingS := hsm.Nested("Preparing", root, func(m *machine) *preparing { return &preparing{m: m} })
	preparedS := hsm.Nested("Prepared", root, func(m *machine) *prepared { return &prepared{m: m} })
	startingS := hsm.Nested("Starting", root, func(m *machine) *starting { return &starting{m: m} })
	runningS := hsm.Nested("Running", root, func(m *machine) *running { return &running{m: m} })
	stoppingS := hsm.Nested("Stopping", root, func(m *machine) *stopping { return &stopping{m: m} })
	dirtyS := hsm.Nested("DirtyShutdown", root, func(m *machine) *dirtyShutdown { return &dirtyShutdown{m: m} })

	root.Region("state", idleS, preparingS, preparedS, startingS, failedS, runningS, stoppingS, dirtyS)
	root.UseController(func(m *machine, c hsm.Controller) { m.control = c })

	root.On("start", func(m *machine) {
		m.logger.Debugw("Received start", "status", m.status())
	})
	hsm.Handle1(root, "startWithArgs", func(m *machine, _ []string) error {
		m.logger.Debugw("Received start with arguments", "status", m.status())
		return nil
	})
	hsm.Handle1(root, "exception", func(m *machine, err error) error {
		m.logger.Errorw("Exception thrown", "service", m.env.ServiceName(), "error", err)
		return nil
	})
	hsm.HandleResult(root, "getStatus", func(m *machine) (string, error) { return m.status(), nil })
	hsm.HandleResult(root, "getName", func(m *machine) (string, error) { return m.env.ServiceName(), nil })

	// Starting from Idle means preparing, then starting.
	idleS.On("start", func(s *idle) { s.queuePrepare(s.m.events.Start) }, preparingS)
	hsm.Handle1(idleS, "startWithArgs", func(s *idle, args []string) error {
		s.queuePrepare(func() error { return s.m.events.StartWithArgs(args) })
		return nil
	}, preparingS)
	idleS.On("prepare", func(s *idle) { s.queuePrepare(nil) }, preparingS)

	preparingS.On("prepareSucceeded", nil, preparedS)
	hsm.Handle1(preparingS, "exception", func(s *preparing, err error) error {
		s.m.record(err)
		return nil
	}, failedS)

	preparedS.On("start", func(s *prepared) { s.queueLaunch(nil) }, startingS)
	hsm.Handle1(preparedS, "startWithArgs", func(s *prepared, args []string) error {
		s.queueLaunch(args)
		return nil
	}, startingS)
	preparedS.On("stop", nil, idleS)

	startingS.On("startSucceeded", nil, runningS)
	hsm.Handle1(startingS, "exception", func(s *starting, err error) error {
		s.m.record(err)
		return nil
	}, failedS)

	runningS.On("stop", func(s *running) {
		m := s.m
		m.work.Queue(func() {
			err := m.deployer.Stop(m.env)
			m.report(err, func() error {
				if m.env.WorkingContext().ActiveWorkers() == 0 {
					return m.events.StopSucceeded()
				}
				return m.events.StopFailed()
			})
		})
	}, stoppingS)

	stoppingS.On("stopSucceeded", nil, idleS)
	stoppingS.On("stopFailed", nil, dirtyS)
	stoppingS.Guard("workersGone", func(s *stopping) bool { return workersGone(s.m) }, idleS)
	hsm.Handle1(stoppingS, "exception", func(s *stopping, err error) error {
		s.m.logger.Warnw("Exception while stopping", "service", s.m.env.ServiceName(), "error", err)
		return nil
	})

	dirtyS.OnEntry("enter", (*dirtyShutdown).enter)
	dirtyS.OnExit("exit", (*dirtyShutdown).exit)
	dirtyS.On("timeout", (*dirtyShutdown).timeout)
	dirtyS.On("stopped", nil, idleS)
	dirtyS.Guard("retryCountExceeded", (*dirtyShutdown).retryCountExceeded, failedS)
	dirtyS.Guard("workersGone", func(s *dirtyShutdown) bool { return workersGone(s.m) }, idleS)
	return root
}
