//go:build !debug

package affinity

import "context"

// assertExecuting is a no-op outside debug builds; the thread-identity
// check is a development aid, not a runtime safety net.
func assertExecuting(_ *Executor, _ context.Context) {}
