package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// Run executes handler and converts a panic into an error
//
// Behavior:
//   - Runs handler in the calling goroutine so deferred cleanup in handler
//     completes before Run returns
//   - Recovers from panics, logs the stack and returns an error
//   - Returns whatever error handler returns unchanged
func Run(ctx context.Context, handler func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger := ctxlog.From(ctx)
			logger.Error("panic in handler",
				"recover", r,
				"stack", string(stack))
			err = goerr.New("unexpected internal error", goerr.V("recover", fmt.Sprint(r)))
		}
	}()

	return handler(ctx)
}
