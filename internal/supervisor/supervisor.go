// Package supervisor sequences process startup and shutdown. Processes
// start strictly in declared order and stop strictly in reverse; every
// completion trigger (OS signal, daemon exit) funnels through a single
// events channel, and the first event wins. A startup failure skips the
// wait and goes straight to shutdown.
package supervisor

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/malyn/groundcontrol/internal/command"
	"github.com/malyn/groundcontrol/internal/config"
	"github.com/malyn/groundcontrol/internal/events"
	"github.com/malyn/groundcontrol/internal/process"
)

// Aggregate exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// event is the sum type carried on the supervisor's channel.
type event interface {
	isEvent()
}

// processExited is published by a daemon's monitor.
type processExited struct {
	exit process.Exit
}

// shutdownRequested is published by the signal bridge or RequestShutdown.
type shutdownRequested struct {
	source string
}

func (processExited) isEvent()     {}
func (shutdownRequested) isEvent() {}

// Options configures a Supervisor.
type Options struct {
	// Stdout and Stderr receive the multiplexed child output. Defaults
	// to the supervisor's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// Bus receives lifecycle events; a private bus is created when nil.
	Bus *events.Bus

	// Logger for supervisor diagnostics.
	Logger *slog.Logger
}

// Supervisor owns all process actors and the events channel.
type Supervisor struct {
	cfg    *config.Config
	mux    *command.Multiplexer
	bus    *events.Bus
	logger *slog.Logger

	events chan event
	forced atomic.Bool

	mu     sync.Mutex
	actors []*process.Process
}

// New creates a supervisor for the given specification.
func New(cfg *config.Config, opts Options) *Supervisor {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		cfg:    cfg,
		mux:    command.NewMultiplexer(stdout, stderr),
		bus:    bus,
		logger: logger,
		events: make(chan event, len(cfg.Processes)+8),
	}
}

// Run starts every process in declared order, waits for the first
// completion trigger, and stops every started process in reverse order.
// It returns the aggregate exit code.
func (s *Supervisor) Run() int {
	ambient := s.ambientEnv()

	stopSignals := s.installSignalBridge()
	defer stopSignals()

	exitCode := ExitOK

	started := s.startAll(ambient)
	if !started {
		exitCode = ExitFailure
		s.bus.Publish(events.ShutdownInitiatedEvent{Source: "startup-failure"})
	} else {
		s.logger.Info("Startup phase completed; waiting for shutdown signal or process exit",
			"process_count", len(s.cfg.Processes))

		switch ev := (<-s.events).(type) {
		case shutdownRequested:
			s.logger.Info("Shutdown requested", "source", ev.source)
			s.bus.Publish(events.ShutdownInitiatedEvent{Source: ev.source})

		case processExited:
			if ev.exit.Outcome == process.CompletedAbnormally {
				exitCode = ExitFailure
			}
			s.logger.Info("Process exit triggered shutdown",
				"process", ev.exit.Name, "outcome", string(ev.exit.Outcome))
			s.bus.Publish(events.ShutdownInitiatedEvent{Source: "process-exit"})
		}
	}

	if code := s.stopAll(); code != ExitOK {
		exitCode = code
	}

	if s.forced.Load() {
		exitCode = ExitFailure
	}

	s.drain()
	s.logger.Info("All processes have exited", "exit_code", exitCode)
	return exitCode
}

// RequestShutdown triggers the graceful shutdown path, as if a shutdown
// signal had been received.
func (s *Supervisor) RequestShutdown(source string) {
	s.enqueue(shutdownRequested{source: source})
}

// ambientEnv is the supervisor's own environment overlaid with the
// spec's [env] table; config-provided values win.
func (s *Supervisor) ambientEnv() map[string]string {
	ambient := command.EnvironMap(os.Environ())
	for key, value := range s.cfg.Env {
		ambient[key] = value
	}
	return ambient
}

// startAll starts processes in declared order. Process i+1 is not
// spawned until process i is running. On failure the failed actor is
// still recorded so its post hook runs during shutdown, and no further
// process starts.
func (s *Supervisor) startAll(ambient map[string]string) bool {
	for i := range s.cfg.Processes {
		actor := process.New(s.cfg.Processes[i], ambient, s.mux, s.bus, s.logger)
		s.addActor(actor)

		if err := actor.Start(s.notifyExit); err != nil {
			s.logger.Error("Unable to start process", "process", actor.Name(), "error", err)
			return false
		}
	}
	return true
}

// stopAll stops started processes in reverse order, one at a time. A
// failed stop is logged and the sequence continues; a post failure
// makes the final exit code non-zero.
func (s *Supervisor) stopAll() int {
	exitCode := ExitOK

	actors := s.actorSnapshot()
	for i := len(actors) - 1; i >= 0; i-- {
		if err := actors[i].Stop(); err != nil {
			s.logger.Error("Error stopping process", "process", actors[i].Name(), "error", err)
			if errors.Is(err, process.ErrPostFailed) {
				exitCode = ExitFailure
			}
		}
	}
	return exitCode
}

// forceKill delivers SIGKILL to every still-running daemon's process
// group. The normal stop sequence keeps running afterwards, so post
// hooks still execute where possible.
func (s *Supervisor) forceKill() {
	s.forced.Store(true)
	for _, actor := range s.actorSnapshot() {
		actor.Kill()
	}
}

func (s *Supervisor) notifyExit(exit process.Exit) {
	s.enqueue(processExited{exit: exit})
}

func (s *Supervisor) enqueue(ev event) {
	s.events <- ev
}

// drain discards late events so that lagging exit notifications never
// block their senders after the supervisor has finished.
func (s *Supervisor) drain() {
	for {
		select {
		case <-s.events:
		default:
			return
		}
	}
}

func (s *Supervisor) addActor(actor *process.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors = append(s.actors, actor)
}

func (s *Supervisor) actorSnapshot() []*process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	actors := make([]*process.Process, len(s.actors))
	copy(actors, s.actors)
	return actors
}
