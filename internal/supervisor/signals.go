package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// installSignalBridge forwards interrupt and terminate into the events
// channel. The first delivery requests a graceful shutdown; any further
// delivery while shutdown is in progress force-kills the remaining
// process groups. The returned function uninstalls the handlers.
func (s *Supervisor) installSignalBridge() func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		first := true
		for sig := range sigCh {
			if first {
				first = false
				s.enqueue(shutdownRequested{source: sig.String()})
				continue
			}

			s.logger.Warn("Second shutdown signal received, force-killing remaining processes",
				"signal", sig.String())
			s.forceKill()
		}
	}()

	return func() { signal.Stop(sigCh) }
}
