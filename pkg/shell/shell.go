package shell

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// RunUntilSignal blocks until SIGINT, SIGTERM or ctx is done.
// Returns received signal, nil on ctx.
func RunUntilSignal(ctx context.Context) os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		return sig
	case <-ctx.Done():
		return nil
	}
}
