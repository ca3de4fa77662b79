package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/gordian-engine/gwdt/gwatchdog/gwconfig"
	"github.com/spf13/cobra"
)

func newCheckConfigCmd(log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use: "check-config PATH_TO_CONFIG",

		Short: "Validate a configuration file and print the resulting task table",

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := gwconfig.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			s := f.Supervisor
			fmt.Fprintf(out, "tick=%s handler_period=%s kick_period=%d (%s) hardware_expiry=%s stats=%t\n",
				s.Tick, s.HandlerPeriod, s.KickPeriod, s.KickPeriodDuration(), s.HardwareExpiry, s.Stats,
			)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTIMEOUT\tENABLED")
			for i, t := range f.Registry() {
				fmt.Fprintf(tw, "%d\t%s\t%d (%s)\t%t\n",
					i, t.Name, t.Timeout, s.Tick*time.Duration(t.Timeout), t.Enabled,
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			for _, w := range f.Warnings() {
				log.Warn("Suspicious configuration", "warning", w)
				fmt.Fprintln(out, "warning:", w)
			}

			return nil
		},
	}
}
