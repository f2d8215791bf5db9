package extensibility

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// ScheduleFunc runs fn once after d and returns a function cancelling it.
type ScheduleFunc func(d time.Duration, fn func()) (cancel func())

// AfterFunc is the ScheduleFunc backed by time.AfterFunc.
func AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Ticker fires a callback repeatedly. The delay before each firing comes
// from a backoff.BackOff; the ticker ends when stopped or when the backoff
// returns backoff.Stop. Timeouts are injected into machines this way.
type Ticker struct {
	mu       sync.Mutex
	b        backoff.BackOff
	fire     func()
	schedule ScheduleFunc
	logger   *zap.SugaredLogger
	cancel   func()
	running  bool
	stopped  bool
	fired    int
}

// TickerOption configures a Ticker.
type TickerOption func(*Ticker)

// WithSchedule replaces time.AfterFunc, e.g. with a work manager.
func WithSchedule(s ScheduleFunc) TickerOption {
	return func(t *Ticker) {
		t.schedule = s
	}
}

// WithTickerLogger sets the logger.
func WithTickerLogger(l *zap.SugaredLogger) TickerOption {
	return func(t *Ticker) {
		t.logger = l
	}
}

// NewTicker creates a stopped ticker. Call Start to arm it.
func NewTicker(b backoff.BackOff, fire func(), opts ...TickerOption) *Ticker {
	t := &Ticker{
		b:        b,
		fire:     fire,
		schedule: AfterFunc,
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start resets the backoff and schedules the first firing. Starting a
// running or stopped ticker does nothing.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.stopped {
		return
	}
	t.running = true
	t.b.Reset()
	t.next()
}

// next must be called with t.mu held.
func (t *Ticker) next() {
	d := t.b.NextBackOff()
	if d == backoff.Stop {
		t.logger.Debugw("Ticker exhausted", "fired", t.fired)
		t.running = false
		t.cancel = nil
		return
	}
	t.cancel = t.schedule(d, t.tick)
}

func (t *Ticker) tick() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.fired++
	t.mu.Unlock()

	t.fire()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.next()
	}
}

// Stop cancels the pending firing. It is safe to call more than once and
// from inside the callback.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.running = false
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Fired returns how many times the callback ran.
func (t *Ticker) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// ConstantBackOff waits d between firings forever.
func ConstantBackOff(d time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(d)
}

// ExponentialBackOff doubles the delay from initial up to max, without
// jitter and without an elapsed-time limit.
func ExponentialBackOff(initial, max time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Limit stops b after n firings.
func Limit(b backoff.BackOff, n uint64) backoff.BackOff {
	return backoff.WithMaxRetries(b, n)
}
