package extensibility

import (
	"time"

	"github.com/comalice/hsm/internal/primitives"
)

// Evaluate runs a guard predicate. A panicking guard evaluates to false
// with an error.
func (DefaultRunner) Evaluate(a *primitives.Action, inst any) (ok bool, err error) {
	defer func() {
		if err != nil {
			ok = false
		}
	}()
	defer recoverInto(&err, a.Name)
	return a.Predicate(inst)
}

// Evaluate logs the guard outcome.
func (r *LoggingRunner) Evaluate(a *primitives.Action, inst any) (bool, error) {
	start := time.Now()
	ok, err := r.inner.Evaluate(a, inst)
	r.logger.Debugw("Guard evaluated",
		"guard", a.Name, "node", a.Node, "result", ok, "duration", time.Since(start), "error", err)
	return ok, err
}
