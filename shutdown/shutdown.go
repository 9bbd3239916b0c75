package shutdown

import (
	"context"
	"os/signal"
)

// Context returns a context cancelled on the first interrupt or terminate
// signal. stop releases the signal handler.
func Context(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

