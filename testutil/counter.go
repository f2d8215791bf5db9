package testutil

import (
	"sync"

	"github.com/comalice/hsm"
)

// Counter is an Observer that keeps the records it sees.
type Counter struct {
	mu      sync.Mutex
	records []hsm.Record
	faults  []hsm.Fault
}

func (c *Counter) Settled(rec hsm.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *Counter) Swallowed(f hsm.Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, f)
}

// Count returns the number of settled events.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns a copy of the settled records.
func (c *Counter) Records() []hsm.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]hsm.Record(nil), c.records...)
}

// Faults returns a copy of the swallowed faults.
func (c *Counter) Faults() []hsm.Fault {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]hsm.Fault(nil), c.faults...)
}
