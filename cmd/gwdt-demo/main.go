// Command gwdt-demo runs a set of simulated tasks
// under a software watchdog supervisor.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := mainE(); err != nil {
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	lvl := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	root := NewRootCmd(logger, lvl)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Info("Failure", "err", err)
		os.Stderr.Sync()
		return err
	}

	return nil
}

// NewRootCmd returns the root command.
// Flags on every subcommand may also be set through GWDT_ environment variables,
// e.g. GWDT_LOG_LEVEL=debug.
func NewRootCmd(log *slog.Logger, lvl *slog.LevelVar) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GWDT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use: "gwdt-demo SUBCOMMAND",

		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},

		SilenceUsage: true,

		Long: `gwdt-demo exercises the watchdog supervisor against a software watchdog timer.

Describe the tasks in a YAML file:

  supervisor:
    kick_period: 10
    hardware_expiry: 500ms
  tasks:
    - name: net
      timeout: 200
    - name: storage
      timeout: 1000

Check it with:
  $ gwdt-demo check-config path/to/gwdt.yaml

Then run it, optionally stalling one task to watch the watchdog expire:
  $ gwdt-demo run path/to/gwdt.yaml --stall net --stall-after 3s
`,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}

			if err := lvl.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("log-level", "info", "The logging level (debug|info|warn|error)")

	rootCmd.AddCommand(
		newCheckConfigCmd(log),
		newRunCmd(log, v),
	)

	return rootCmd
}
