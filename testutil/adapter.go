// Package testutil runs the same scenario against both dispatch paths of a
// machine: synchronous calls and the mailbox.
package testutil

import (
	"fmt"
	"slices"
	"time"

	"github.com/comalice/hsm"
)

// Adapter provides a common interface over synchronous and mailbox
// dispatch so one test suite covers both.
type Adapter interface {
	Start() error
	Stop() error
	Send(protocol, method string, args ...any) error
	IsInState(name string) bool
	ActiveStates() []string
	WaitForStability(timeout time.Duration) error
}

// SyncAdapter dispatches with Endpoint.Call.
type SyncAdapter struct {
	h *hsm.Handle
}

// NewSyncAdapter wraps h.
func NewSyncAdapter(h *hsm.Handle) *SyncAdapter {
	return &SyncAdapter{h: h}
}

func (a *SyncAdapter) Start() error { return nil }

func (a *SyncAdapter) Stop() error { return nil }

func (a *SyncAdapter) Send(protocol, method string, args ...any) error {
	ep := a.h.Endpoint(protocol)
	if ep == nil {
		return fmt.Errorf("no endpoint %q", protocol)
	}
	return hsm.Send(ep, method, args...)
}

func (a *SyncAdapter) IsInState(name string) bool {
	return a.h.Machine().InState(name)
}

func (a *SyncAdapter) ActiveStates() []string {
	return a.h.ActiveStates()
}

// WaitForStability returns at once: Send has already settled.
func (a *SyncAdapter) WaitForStability(time.Duration) error {
	return nil
}

// MailboxAdapter dispatches with Endpoint.Post. Handler errors are logged
// by the machine, not returned.
type MailboxAdapter struct {
	h    *hsm.Handle
	sent int
	seen *Counter
}

// NewMailboxAdapter wraps h. The machine must have been created with the
// Counter as an observer.
func NewMailboxAdapter(h *hsm.Handle, c *Counter) *MailboxAdapter {
	return &MailboxAdapter{h: h, seen: c}
}

func (a *MailboxAdapter) Start() error {
	a.h.Machine().Start()
	return nil
}

func (a *MailboxAdapter) Stop() error {
	a.h.Machine().Stop()
	return nil
}

func (a *MailboxAdapter) Send(protocol, method string, args ...any) error {
	ep := a.h.Endpoint(protocol)
	if ep == nil {
		return fmt.Errorf("no endpoint %q", protocol)
	}
	if err := ep.Post(method, args...); err != nil {
		return err
	}
	a.sent++
	return nil
}

func (a *MailboxAdapter) IsInState(name string) bool {
	return a.h.Machine().InState(name)
}

func (a *MailboxAdapter) ActiveStates() []string {
	return a.h.ActiveStates()
}

// WaitForStability waits until every posted event has settled.
func (a *MailboxAdapter) WaitForStability(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for a.seen.Count() < a.sent {
		if time.Now().After(deadline) {
			return fmt.Errorf("%d of %d events settled after %s", a.seen.Count(), a.sent, timeout)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// Active reports whether every name is active.
func Active(a Adapter, names ...string) bool {
	active := a.ActiveStates()
	for _, n := range names {
		if !slices.Contains(active, n) {
			return false
		}
	}
	return true
}
