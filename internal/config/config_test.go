package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringCommand(t *testing.T) {
	cfg, err := Parse([]byte(`
[[processes]]
name = "app"
run = "/app/run-me.sh using these args"
`))
	require.NoError(t, err)
	require.Len(t, cfg.Processes, 1)

	p := cfg.Processes[0]
	assert.Equal(t, "app", p.Name)
	require.NotNil(t, p.Run)
	assert.Equal(t, "/app/run-me.sh", p.Run.Program)
	assert.Equal(t, []string{"using", "these", "args"}, p.Run.Args)
	assert.True(t, p.IsDaemon())
}

func TestParseArrayCommand(t *testing.T) {
	cfg, err := Parse([]byte(`
[[processes]]
name = "app"
run = ["/app/run-me.sh", "using", "these", "args"]
`))
	require.NoError(t, err)

	p := cfg.Processes[0]
	require.NotNil(t, p.Run)
	assert.Equal(t, "/app/run-me.sh", p.Run.Program)
	assert.Equal(t, []string{"using", "these", "args"}, p.Run.Args)
}

func TestParseTableCommand(t *testing.T) {
	cfg, err := Parse([]byte(`
[[processes]]
name = "app"
run = { user = "app", only-env = ["DATABASE_URL"], command = ["/app/run-me.sh", "serve"] }
`))
	require.NoError(t, err)

	p := cfg.Processes[0]
	require.NotNil(t, p.Run)
	assert.Equal(t, "/app/run-me.sh", p.Run.Program)
	assert.Equal(t, []string{"serve"}, p.Run.Args)
	assert.Equal(t, "app", p.Run.User)
	assert.Equal(t, []string{"DATABASE_URL"}, p.Run.OnlyEnv)
}

func TestParseTableCommandWithStringCommand(t *testing.T) {
	cfg, err := Parse([]byte(`
[[processes]]
name = "app"
run = { command = "/app/run-me.sh using these args" }
`))
	require.NoError(t, err)

	p := cfg.Processes[0]
	require.NotNil(t, p.Run)
	assert.Equal(t, "/app/run-me.sh", p.Run.Program)
	assert.Equal(t, []string{"using", "these", "args"}, p.Run.Args)
}

func TestEmptyOnlyEnvIsPreserved(t *testing.T) {
	cfg, err := Parse([]byte(`
[[processes]]
name = "app"
pre = { only-env = [], command = "/bin/true" }
`))
	require.NoError(t, err)

	p := cfg.Processes[0]
	require.NotNil(t, p.Pre)
	require.NotNil(t, p.Pre.OnlyEnv, "empty only-env must stay distinguishable from an absent one")
	assert.Empty(t, p.Pre.OnlyEnv)

	// And an absent only-env stays nil.
	cfg, err = Parse([]byte(`
[[processes]]
name = "app"
pre = { command = "/bin/true" }
`))
	require.NoError(t, err)
	assert.Nil(t, cfg.Processes[0].Pre.OnlyEnv)
}

func TestStopDefaultsToSigterm(t *testing.T) {
	cfg, err := Parse([]byte(`
[[processes]]
name = "app"
run = "/bin/sleep 60"
`))
	require.NoError(t, err)

	p := cfg.Processes[0]
	assert.Nil(t, p.Stop.Command)
	assert.Equal(t, SignalTerminate, p.Stop.Signal)
}

func TestStopSignalNames(t *testing.T) {
	for name, want := range map[string]Signal{
		"SIGINT":  SignalInterrupt,
		"SIGQUIT": SignalQuit,
		"SIGTERM": SignalTerminate,
	} {
		cfg, err := Parse([]byte(`
[[processes]]
name = "app"
run = "/bin/sleep 60"
stop = "` + name + `"
`))
		require.NoError(t, err, name)
		assert.Equal(t, want, cfg.Processes[0].Stop.Signal, name)
		assert.Nil(t, cfg.Processes[0].Stop.Command, name)
	}
}

func TestStopCommand(t *testing.T) {
	cfg, err := Parse([]byte(`
[[processes]]
name = "app"
run = "/bin/sleep 60"
stop = ["/bin/kill", "-INT", "{{APP_PID}}"]
`))
	require.NoError(t, err)

	stop := cfg.Processes[0].Stop
	require.NotNil(t, stop.Command)
	assert.Equal(t, "/bin/kill", stop.Command.Program)
	assert.Equal(t, []string{"-INT", "{{APP_PID}}"}, stop.Command.Args)
}

func TestStopTimeout(t *testing.T) {
	cfg, err := Parse([]byte(`
[[processes]]
name = "app"
run = "/bin/sleep 60"
stop-timeout = "5s"
`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Processes[0].StopTimeout)

	_, err = Parse([]byte(`
[[processes]]
name = "app"
run = "/bin/sleep 60"
stop-timeout = "whenever"
`))
	assert.Error(t, err)
}

func TestEnvTable(t *testing.T) {
	cfg, err := Parse([]byte(`
[env]
DATABASE_URL = "postgres://localhost/app"
LISTEN_PORT = "8080"

[[processes]]
name = "app"
run = "/bin/sleep 60"
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"DATABASE_URL": "postgres://localhost/app",
		"LISTEN_PORT":  "8080",
	}, cfg.Env)
}

func TestLoggingTable(t *testing.T) {
	cfg, err := Parse([]byte(`
[logging]
level = "debug"
format = "json"

[logging.modules]
process = "warn"

[[processes]]
name = "app"
run = "/bin/sleep 60"
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "warn", cfg.Logging.Modules["process"])
}

func TestUnknownKeysRejected(t *testing.T) {
	cases := map[string]string{
		"top-level": `
frobnicate = true

[[processes]]
name = "app"
run = "/bin/true"
`,
		"process": `
[[processes]]
name = "app"
run = "/bin/true"
restart = "always"
`,
		"command-table": `
[[processes]]
name = "app"
run = { command = "/bin/true", shell = true }
`,
	}

	for label, toml := range cases {
		_, err := Parse([]byte(toml))
		assert.Error(t, err, label)
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"missing name": `
[[processes]]
run = "/bin/true"
`,
		"no commands at all": `
[[processes]]
name = "empty"
`,
		"empty command string": `
[[processes]]
name = "app"
run = "   "
`,
		"empty command array": `
[[processes]]
name = "app"
run = []
`,
		"missing command in table": `
[[processes]]
name = "app"
run = { user = "app" }
`,
		"duplicate names": `
[[processes]]
name = "app"
run = "/bin/true"

[[processes]]
name = "app"
run = "/bin/true"
`,
	}

	for label, toml := range cases {
		_, err := Parse([]byte(toml))
		assert.Error(t, err, label)
	}
}

func TestProcessOrderPreserved(t *testing.T) {
	cfg, err := Parse([]byte(`
[[processes]]
name = "first"
pre = "/bin/true"

[[processes]]
name = "second"
run = "/bin/sleep 60"

[[processes]]
name = "third"
post = "/bin/true"
`))
	require.NoError(t, err)

	var names []string
	for _, p := range cfg.Processes {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"first", "second", "third"}, names)

	assert.False(t, cfg.Processes[0].IsDaemon())
	assert.True(t, cfg.Processes[1].IsDaemon())
	assert.False(t, cfg.Processes[2].IsDaemon())
}
