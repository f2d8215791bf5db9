package core

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/comalice/hsm/internal/primitives"
)

// ModelCache compiles each root definition once. Concurrent requests for
// the same definition share a single compilation. A definition changed
// after it was cached is compiled again on the next Get; machines already
// created keep the model they were built from.
type ModelCache struct {
	group  singleflight.Group
	models sync.Map // *primitives.StateDef -> *primitives.Model
}

// DefaultCache is used by hsm.New.
var DefaultCache = &ModelCache{}

// Get returns the cached model of root, compiling it on first use or when
// the definition has changed. Compile errors are not cached.
func (c *ModelCache) Get(root *primitives.StateDef) (*primitives.Model, error) {
	rev := primitives.Revision(root)
	if m, ok := c.current(root, rev); ok {
		return m, nil
	}
	v, err, _ := c.group.Do(fmt.Sprintf("%p@%d", root, rev), func() (any, error) {
		if m, ok := c.current(root, rev); ok {
			return m, nil
		}
		m, err := Compile(root)
		if err != nil {
			return nil, err
		}
		c.models.Store(root, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*primitives.Model), nil
}

func (c *ModelCache) current(root *primitives.StateDef, rev uint64) (*primitives.Model, bool) {
	v, ok := c.models.Load(root)
	if !ok {
		return nil, false
	}
	m := v.(*primitives.Model)
	return m, m.Revision == rev
}

// Forget drops the cached model of root.
func (c *ModelCache) Forget(root *primitives.StateDef) {
	c.models.Delete(root)
}

// Len returns the number of cached models.
func (c *ModelCache) Len() int {
	n := 0
	c.models.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
