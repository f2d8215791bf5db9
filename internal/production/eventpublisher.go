package production

import (
	"sync"
	"sync/atomic"

	"github.com/comalice/hsm/internal/core"
)

// ChannelPublisher is a core.Observer that forwards settle records to a Go
// channel. Publishing never blocks: records are dropped when the channel is
// full.
type ChannelPublisher struct {
	mu      sync.RWMutex
	ch      chan<- core.Record
	closed  bool
	dropped atomic.Int64
	faults  bool
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
func NewChannelPublisher(ch chan<- core.Record) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

// IncludeFaults also publishes swallowed faults, as records whose Event is
// empty and whose Err is the fault.
func (p *ChannelPublisher) IncludeFaults() *ChannelPublisher {
	p.faults = true
	return p
}

// Settled implements core.Observer.
func (p *ChannelPublisher) Settled(rec core.Record) {
	p.publish(rec)
}

// Swallowed implements core.Observer.
func (p *ChannelPublisher) Swallowed(f core.Fault) {
	if !p.faults {
		return
	}
	p.publish(core.Record{MachineID: f.MachineID, Machine: f.Machine, Active: []string{f.State}, Err: f.Err})
}

func (p *ChannelPublisher) publish(rec core.Record) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- rec:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns how many records were dropped on backpressure.
func (p *ChannelPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close closes the output channel. Later records are discarded.
func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}
