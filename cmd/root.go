// Package cmd builds the groundcontrol command-line interface.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/malyn/groundcontrol/internal/config"
	"github.com/malyn/groundcontrol/internal/events"
	"github.com/malyn/groundcontrol/internal/logging"
	"github.com/malyn/groundcontrol/internal/metrics"
	"github.com/malyn/groundcontrol/internal/supervisor"
)

// CreateRootCmd creates the groundcontrol root command.
func CreateRootCmd() *cobra.Command {
	var check bool
	var metricsListen string
	var logLevel string
	var logFormat string

	cmd := &cobra.Command{
		Use:   "groundcontrol [flags] SPEC_FILE",
		Short: "Start, monitor, and orderly shut down a set of processes",
		Long: `Process supervisor designed for container-like environments that need ` +
			`to run multiple dependent processes. Processes start in declared order, ` +
			`stop in reverse order, and any daemon exit or shutdown signal tears ` +
			`everything down deterministically.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  false,
		SilenceErrors: true,
		Run: func(c *cobra.Command, args []string) {
			logging.Initialize(logging.Config{Level: logLevel, Format: logFormat})
			logger := logging.GetLogger("main")

			cfg, err := config.Load(args[0])
			if err != nil {
				logger.Error("Invalid spec file", "error", err)
				os.Exit(supervisor.ExitUsage)
			}

			if check {
				logger.Info("Spec file OK", "path", args[0], "process_count", len(cfg.Processes))
				return
			}

			// Apply the spec file's [logging] table, except where the
			// CLI flags were set explicitly.
			changed := make(map[string]bool)
			c.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
			logCfg := logging.Config{Level: logLevel, Format: logFormat, Modules: cfg.Logging.Modules}
			if cfg.Logging.Level != "" && !changed["log-level"] {
				logCfg.Level = cfg.Logging.Level
			}
			if cfg.Logging.Format != "" && !changed["log-format"] {
				logCfg.Format = cfg.Logging.Format
			}
			logging.Initialize(logCfg)

			bus := events.New()
			defer metrics.Observe(bus)()
			if metricsListen != "" {
				metrics.Serve(metricsListen, logging.GetLogger("metrics"))
			}

			sup := supervisor.New(cfg, supervisor.Options{
				Bus:    bus,
				Logger: logging.GetLogger("supervisor"),
			})
			os.Exit(sup.Run())
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Check the spec file for errors, but do not start any processes")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	return cmd
}
