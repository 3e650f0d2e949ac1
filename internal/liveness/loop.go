package liveness

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// sleep waits for d or until ctx is done. It reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// guard runs one cycle and turns a panic into an error carrying the stack.
func guard(loop string, cycle func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s cycle panicked: %v\n%s", loop, r, debug.Stack())
		}
	}()

	return cycle()
}
