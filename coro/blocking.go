package coro

import (
	"context"

	"github.com/akondrashev/coroscope/dispatch"
)

// RunBlocking runs body on d and blocks the calling goroutine until the
// task is terminal, returning its Err. It is the deliberate escape hatch
// for synchronous call sites: while it waits, the caller's own thread does
// nothing else, so never call it from a dispatcher worker you expect to
// stay responsive.
func RunBlocking(ctx context.Context, d *dispatch.Dispatcher, body Step) error {
	t := Spawn(ctx, d, body, Config{PanicAsError: true})
	<-t.Done()
	return t.Err()
}
