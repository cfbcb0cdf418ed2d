//go:build debug

package affinity

import (
	"context"
	"fmt"
)

func assertExecuting(e *Executor, ctx context.Context) {
	if !e.onExecutor(ctx) {
		panic(fmt.Sprintf("%s: called off its own goroutine", e))
	}
}
