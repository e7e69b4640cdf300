// Package process implements the lifecycle actor for one configured
// process: it runs pre, spawns and monitors the run child, performs the
// stop action, and runs post. The supervisor owns every actor; actors
// communicate back only through the exit notification callback and the
// event bus, never through back-references.
package process

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/malyn/groundcontrol/internal/command"
	"github.com/malyn/groundcontrol/internal/config"
	"github.com/malyn/groundcontrol/internal/events"
)

// Lifecycle phase failures. Callers use errors.Is to map these to exit
// code policy.
var (
	ErrPreFailed  = errors.New("pre command failed")
	ErrRunFailed  = errors.New("run command failed to start")
	ErrStopFailed = errors.New("stop command failed")
	ErrPostFailed = errors.New("post command failed")
)

// Exit is the notification a daemon's monitor publishes exactly once
// when its run child terminates, for any reason.
type Exit struct {
	Name    string
	Outcome Outcome
	Status  command.ExitStatus
}

// Process is the runtime actor managing one process definition.
type Process struct {
	config  config.Process
	ambient map[string]string
	mux     *command.Multiplexer
	bus     *events.Bus
	logger  *slog.Logger

	mu    sync.Mutex
	state State

	// stopping is set before the stop action is delivered; the monitor
	// consults it when classifying the child's termination.
	stopping atomic.Bool

	run      *command.Command        // nil for one-shots
	exited   chan command.ExitStatus // monitor -> stop path, buffered
	stopOnce sync.Once
	stopErr  error
}

// New creates an actor for cfg. Nothing is spawned until Start.
func New(cfg config.Process, ambient map[string]string, mux *command.Multiplexer, bus *events.Bus, logger *slog.Logger) *Process {
	return &Process{
		config:  cfg,
		ambient: ambient,
		mux:     mux,
		bus:     bus,
		logger:  logger.With("process", cfg.Name),
		state:   StateIdle,
		exited:  make(chan command.ExitStatus, 1),
	}
}

// Name returns the process name from the specification.
func (p *Process) Name() string { return p.config.Name }

// IsDaemon reports whether this process has a run command.
func (p *Process) IsDaemon() bool { return p.config.IsDaemon() }

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start runs pre synchronously and, for daemons, spawns the run child
// and arms its monitor. notify is invoked exactly once when the run
// child terminates for any reason; one-shot processes never notify.
func (p *Process) Start(notify func(Exit)) error {
	p.logger.Info("Starting process")
	p.setState(StateStarting)

	if p.config.Pre != nil {
		pre, err := command.Run(p.config.Name, p.config.Pre, p.ambient, p.mux, p.logger)
		if err != nil {
			p.setState(StateFailed)
			return fmt.Errorf("%w: %w", ErrPreFailed, err)
		}
		if status := pre.Wait(); !status.Success() {
			p.setState(StateFailed)
			return fmt.Errorf("%w: %s", ErrPreFailed, status)
		}
	}

	if p.config.Run != nil {
		run, err := command.Run(p.config.Name, p.config.Run, p.ambient, p.mux, p.logger)
		if err != nil {
			p.setState(StateFailed)
			return fmt.Errorf("%w: %w", ErrRunFailed, err)
		}
		p.run = run
		go p.monitor(notify)
	}

	p.setState(StateRunning)
	return nil
}

// monitor waits for the run child (whose handle joins the output
// readers before reporting), classifies the outcome, and publishes the
// exit exactly once. This is the sole publisher of exit notifications;
// Stop awaits the monitor rather than the raw child handle.
func (p *Process) monitor(notify func(Exit)) {
	status := p.run.Wait()

	outcome := CompletedNormally
	if !status.Success() && !p.stopping.Load() {
		outcome = CompletedAbnormally
		p.logger.Error("Process exited abnormally", "status", status.String())
	} else {
		p.logger.Info("Process exited", "status", status.String())
	}

	p.bus.Publish(events.ProcessExitedEvent{
		Process: p.config.Name,
		Outcome: string(outcome),
		Status:  status.String(),
	})

	p.exited <- status
	notify(Exit{Name: p.config.Name, Outcome: outcome, Status: status})
}

// Stop performs the stop action (daemons), awaits child termination via
// the monitor, then runs post. It is idempotent: every call observes
// the result of the first.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop()
	})
	return p.stopErr
}

func (p *Process) stop() error {
	p.logger.Info("Stopping process")
	p.setState(StateStopping)

	var stopErr error
	if p.run != nil {
		stopErr = p.stopDaemon()
	}

	postErr := p.runPost()
	if postErr != nil {
		p.setState(StateFailed)
	} else {
		p.setState(StateStopped)
	}

	return errors.Join(stopErr, postErr)
}

// stopDaemon delivers the stop action and awaits the monitor's
// notification of the child's exit.
func (p *Process) stopDaemon() error {
	p.stopping.Store(true)

	var stopErr error
	select {
	case <-p.run.Done():
		// Already exited on its own; skip the stop action.
	default:
		stopErr = p.deliverStopAction()
	}

	p.awaitExit()
	return stopErr
}

func (p *Process) deliverStopAction() error {
	switch {
	case p.config.Stop.Command != nil:
		stopper, err := command.Run(p.config.Name, p.config.Stop.Command, p.ambient, p.mux, p.logger)
		if err != nil {
			p.logger.Error("Error executing stop command", "error", err)
			return fmt.Errorf("%w: %w", ErrStopFailed, err)
		}
		// The stopper is only a signalling mechanism; its exit code is
		// not propagated to the daemon's outcome.
		if status := stopper.Wait(); !status.Success() {
			p.logger.Error("Stop command failed", "status", status.String())
			return fmt.Errorf("%w: %s", ErrStopFailed, status)
		}

	default:
		sig := syscall.Signal(p.config.Stop.Signal)
		p.logger.Debug("Signalling process group", "signal", p.config.Stop.Signal.String(), "pgid", p.run.Pid())
		if err := p.run.Signal(sig); err != nil {
			p.logger.Warn("Error signalling process group", "error", err)
		}
	}
	return nil
}

// awaitExit blocks until the monitor has observed the run child's exit,
// escalating to SIGKILL of the process group if a stop-timeout is
// configured and expires.
func (p *Process) awaitExit() {
	if p.config.StopTimeout <= 0 {
		<-p.exited
		return
	}

	select {
	case <-p.exited:
	case <-time.After(p.config.StopTimeout):
		p.logger.Warn("Stop timeout expired, killing process group", "timeout", p.config.StopTimeout)
		if err := p.run.Kill(); err != nil {
			p.logger.Warn("Error killing process group", "error", err)
		}
		<-p.exited
	}
}

func (p *Process) runPost() error {
	if p.config.Post == nil {
		return nil
	}

	post, err := command.Run(p.config.Name, p.config.Post, p.ambient, p.mux, p.logger)
	if err != nil {
		p.logger.Error("Error executing post command", "error", err)
		return fmt.Errorf("%w: %w", ErrPostFailed, err)
	}
	if status := post.Wait(); !status.Success() {
		p.logger.Error("Post command failed", "status", status.String())
		return fmt.Errorf("%w: %s", ErrPostFailed, status)
	}
	return nil
}

// Kill delivers SIGKILL to the run child's process group if it is still
// running. Used for the second-signal force path; posts still run via
// the normal Stop sequence.
func (p *Process) Kill() {
	if p.run == nil {
		return
	}
	select {
	case <-p.run.Done():
	default:
		p.logger.Warn("Force-killing process group", "pgid", p.run.Pid())
		if err := p.run.Kill(); err != nil {
			p.logger.Warn("Error force-killing process group", "error", err)
		}
	}
}

// setState advances the lifecycle state machine and publishes the
// transition. States never regress; a terminal Failed state sticks.
func (p *Process) setState(next State) {
	p.mu.Lock()
	prev := p.state
	if prev == StateFailed || prev == StateStopped {
		p.mu.Unlock()
		return
	}
	p.state = next
	p.mu.Unlock()

	p.bus.Publish(events.ProcessStateChangedEvent{
		Process: p.config.Name,
		From:    string(prev),
		To:      string(next),
	})
}
