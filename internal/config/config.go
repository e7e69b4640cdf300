// Package config defines the typed in-memory representation of a Ground
// Control specification file and the TOML loader that produces it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/malyn/groundcontrol/internal/logging"
)

// Signal is a stop signal drawn from the closed set accepted in spec files.
type Signal syscall.Signal

// Signals accepted by the `stop` field.
const (
	SignalInterrupt Signal = Signal(syscall.SIGINT)
	SignalQuit      Signal = Signal(syscall.SIGQUIT)
	SignalTerminate Signal = Signal(syscall.SIGTERM)
)

var signalNames = map[string]Signal{
	"SIGINT":  SignalInterrupt,
	"SIGQUIT": SignalQuit,
	"SIGTERM": SignalTerminate,
}

// String returns the conventional name of the signal.
func (s Signal) String() string {
	switch s {
	case SignalInterrupt:
		return "SIGINT"
	case SignalQuit:
		return "SIGQUIT"
	case SignalTerminate:
		return "SIGTERM"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Command describes a single command: argv plus optional execution
// properties (the user to run as, and an environment allow-list).
type Command struct {
	// Program is the path of the program to execute. No shell is involved.
	Program string

	// Args are the arguments passed to the program.
	Args []string

	// User is the OS user to run the command as; empty means the user
	// that started Ground Control.
	User string

	// OnlyEnv is the allow-list of environment variable names passed to
	// the command. nil means inherit the full ambient environment; an
	// empty, non-nil slice means inherit nothing. PATH is always passed
	// through regardless of this list.
	OnlyEnv []string
}

// Argv returns the full argument vector, program first.
func (c *Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Program)
	argv = append(argv, c.Args...)
	return argv
}

// Stop describes how a daemon process is asked to terminate: either a
// signal delivered to the child's process group or an external stopper
// command. Exactly one of the two is set.
type Stop struct {
	Signal  Signal
	Command *Command
}

// DefaultStop is the stop action used when a daemon omits `stop`.
func DefaultStop() Stop {
	return Stop{Signal: SignalTerminate}
}

// Process is one entry in the specification. Order in the file is the
// startup order; reverse order is the shutdown order.
type Process struct {
	// Name uniquely identifies the process and tags its output lines.
	Name string

	// Pre is run synchronously during startup, before Run.
	Pre *Command

	// Run is the long-running child. A process with Run is a daemon;
	// without it the process is a one-shot.
	Run *Command

	// Stop is the action used to terminate the Run child. Meaningful
	// only for daemons.
	Stop Stop

	// Post is run during shutdown, after the Run child has exited.
	Post *Command

	// StopTimeout bounds the wait for the Run child to exit after the
	// stop action. Zero means wait forever. On expiry the child's
	// process group receives SIGKILL.
	StopTimeout time.Duration
}

// IsDaemon reports whether this process has a Run command.
func (p *Process) IsDaemon() bool { return p.Run != nil }

// Config is the parsed specification: an ordered list of processes plus
// supervisor-wide settings.
type Config struct {
	// Env holds extra environment variables merged into the ambient
	// environment before any process starts. Values here override
	// inherited ones.
	Env map[string]string

	// Logging configures the supervisor's own diagnostics.
	Logging logging.Config

	// Processes in declared (startup) order.
	Processes []Process
}

// Raw decode targets. Command-bearing fields accept three surface forms
// (string, array, table) so they decode into `any` first and are
// normalized afterwards.
type rawConfig struct {
	Env       map[string]string `toml:"env"`
	Logging   rawLogging        `toml:"logging"`
	Processes []rawProcess      `toml:"processes"`
}

type rawLogging struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type rawProcess struct {
	Name        string `toml:"name"`
	Pre         any    `toml:"pre"`
	Run         any    `toml:"run"`
	Stop        any    `toml:"stop"`
	Post        any    `toml:"post"`
	StopTimeout string `toml:"stop-timeout"`
}

// Load reads and parses the specification file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a specification. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	cfg := &Config{
		Env: raw.Env,
		Logging: logging.Config{
			Level:   raw.Logging.Level,
			Format:  raw.Logging.Format,
			Modules: raw.Logging.Modules,
		},
	}

	seen := make(map[string]bool)
	for i, rp := range raw.Processes {
		p, err := rp.normalize()
		if err != nil {
			return nil, fmt.Errorf("process %d (%q): %w", i, rp.Name, err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate process name %q", p.Name)
		}
		seen[p.Name] = true
		cfg.Processes = append(cfg.Processes, *p)
	}

	return cfg, nil
}

func (rp *rawProcess) normalize() (*Process, error) {
	if rp.Name == "" {
		return nil, errors.New("missing process name")
	}

	pre, err := commandFromValue("pre", rp.Pre)
	if err != nil {
		return nil, err
	}
	run, err := commandFromValue("run", rp.Run)
	if err != nil {
		return nil, err
	}
	post, err := commandFromValue("post", rp.Post)
	if err != nil {
		return nil, err
	}

	if pre == nil && run == nil && post == nil {
		return nil, errors.New("at least one of pre, run, post is required")
	}

	stop := DefaultStop()
	if rp.Stop != nil {
		stop, err = stopFromValue(rp.Stop)
		if err != nil {
			return nil, err
		}
	}

	var stopTimeout time.Duration
	if rp.StopTimeout != "" {
		stopTimeout, err = time.ParseDuration(rp.StopTimeout)
		if err != nil {
			return nil, fmt.Errorf("stop-timeout: %w", err)
		}
		if stopTimeout < 0 {
			return nil, fmt.Errorf("stop-timeout: negative duration %s", stopTimeout)
		}
	}

	return &Process{
		Name:        rp.Name,
		Pre:         pre,
		Run:         run,
		Stop:        stop,
		Post:        post,
		StopTimeout: stopTimeout,
	}, nil
}

// commandFromValue normalizes the three surface forms of a command
// definition: a whitespace-tokenized string, an argv array, or a table
// with command/user/only-env.
func commandFromValue(field string, v any) (*Command, error) {
	if v == nil {
		return nil, nil
	}

	switch val := v.(type) {
	case string:
		return commandFromString(field, val)

	case []any:
		argv, err := stringSlice(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		return commandFromArgv(field, argv)

	case map[string]any:
		return commandFromTable(field, val)

	default:
		return nil, fmt.Errorf("%s: expected string, array, or table, got %T", field, v)
	}
}

func commandFromString(field, s string) (*Command, error) {
	// Whitespace-only tokenization; no shell quoting. Commands that
	// need shell features must invoke an interpreter explicitly.
	return commandFromArgv(field, strings.Fields(s))
}

func commandFromArgv(field string, argv []string) (*Command, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s: empty command", field)
	}
	return &Command{Program: argv[0], Args: argv[1:]}, nil
}

func commandFromTable(field string, table map[string]any) (*Command, error) {
	var cmd *Command
	var user string
	var onlyEnv []string
	var err error

	for key, value := range sorted(table) {
		switch key {
		case "command":
			switch cv := value.(type) {
			case string:
				cmd, err = commandFromString(field, cv)
			case []any:
				var argv []string
				if argv, err = stringSlice(cv); err == nil {
					cmd, err = commandFromArgv(field, argv)
				}
			default:
				err = fmt.Errorf("command: expected string or array, got %T", cv)
			}

		case "user":
			var ok bool
			if user, ok = value.(string); !ok {
				err = fmt.Errorf("user: expected string, got %T", value)
			}

		case "only-env":
			list, isList := value.([]any)
			if !isList {
				err = fmt.Errorf("only-env: expected array, got %T", value)
				break
			}
			if onlyEnv, err = stringSlice(list); err == nil && onlyEnv == nil {
				// Preserve "present but empty" so the resolver can
				// distinguish it from an absent allow-list.
				onlyEnv = []string{}
			}

		default:
			err = fmt.Errorf("unknown key %q", key)
		}

		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
	}

	if cmd == nil {
		return nil, fmt.Errorf("%s: missing required command", field)
	}
	cmd.User = user
	cmd.OnlyEnv = onlyEnv
	return cmd, nil
}

// stopFromValue normalizes a stop action: a signal name from the closed
// set, or any of the command surface forms.
func stopFromValue(v any) (Stop, error) {
	if s, ok := v.(string); ok {
		if sig, known := signalNames[s]; known {
			return Stop{Signal: sig}, nil
		}
	}

	cmd, err := commandFromValue("stop", v)
	if err != nil {
		return Stop{}, err
	}
	return Stop{Command: cmd}, nil
}

func stringSlice(values []any) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string at index %d, got %T", i, v)
		}
		out[i] = s
	}
	return out, nil
}

// sorted iterates a map in key order so decode errors are deterministic.
func sorted(m map[string]any) func(func(string, any) bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return func(yield func(string, any) bool) {
		for _, k := range keys {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}
