package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gordian-engine/gwdt/gassert"
	"github.com/gordian-engine/gwdt/gwatchdog"
	"github.com/gordian-engine/gwdt/gwatchdog/gwconfig"
	"github.com/gordian-engine/gwdt/gwatchdog/gwdebug"
	"github.com/gordian-engine/gwdt/gwatchdog/gwprom"
	"github.com/gordian-engine/gwdt/gwatchdog/gwsoftdog"
	"github.com/gordian-engine/gwdt/internal/glog"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(log *slog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use: "run PATH_TO_CONFIG",

		Short: "Run simulated tasks under the supervisor until interrupted or reset",

		Long: `run starts one goroutine per configured task.
Each task reports to the supervisor four times per timeout window.

The --stall flag names a task that stops reporting after --stall-after.
The supervisor then stops kicking the software watchdog,
which expires after its configured window and ends the run with an error.
`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := gwconfig.Load(args[0])
			if err != nil {
				return err
			}
			for _, w := range f.Warnings() {
				log.Warn("Suspicious configuration", "warning", w)
			}

			assertEnv, err := getAssertEnv(v)
			if err != nil {
				// It's likely enough that a user could misconfigure the rules in a debug build,
				// so report it cleanly rather than panicking.
				return fmt.Errorf("failed to build assertion environment: %w", err)
			}

			return runDemo(cmd.Context(), log, f, runOptions{
				Duration:    v.GetDuration("duration"),
				Stall:       v.GetString("stall"),
				StallAfter:  v.GetDuration("stall-after"),
				MetricsAddr: v.GetString("metrics-addr"),
				TickOffset:  v.GetUint32("tick-offset"),
				LogPlatform: v.GetBool("log-platform"),

				AssertEnv: assertEnv,
			})
		},
	}

	fs := cmd.Flags()
	fs.Duration("duration", 0, "Stop after this long; zero runs until interrupted or reset")
	fs.String("stall", "", "Name of a task that stops reporting")
	fs.Duration("stall-after", 2*time.Second, "How long the stalled task reports before stopping")
	fs.String("metrics-addr", "", "If set, serve Prometheus metrics at /metrics on this address")
	fs.Uint32("tick-offset", 0, "Initial tick counter value, to exercise counter wraparound")
	fs.Bool("log-platform", false, "Log every platform call (kicks and mutex operations at debug level)")

	// Adds --assert-rules in debug builds, no-op otherwise.
	addAssertRuleFlag(fs)

	return cmd
}

type runOptions struct {
	Duration    time.Duration
	Stall       string
	StallAfter  time.Duration
	MetricsAddr string
	TickOffset  uint32
	LogPlatform bool

	AssertEnv gassert.Env
}

func runDemo(ctx context.Context, log *slog.Logger, f *gwconfig.File, o runOptions) error {
	if o.Stall != "" && !slices.ContainsFunc(f.Tasks, func(t gwconfig.Task) bool {
		return t.Name == o.Stall
	}) {
		return fmt.Errorf("no task named %q to stall", o.Stall)
	}

	if o.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Duration)
		defer cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		metrics gwatchdog.Metrics
		reg     *prom.Registry
	)
	if o.MetricsAddr != "" {
		reg = prom.NewRegistry()
		m, err := gwprom.New(reg, gwprom.Options{})
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		metrics = m
	}

	var sup *gwatchdog.Supervisor

	dog, dogCtx := gwsoftdog.New(ctx, log.With("sys", "softdog"), gwsoftdog.Config{
		Expiry: f.Supervisor.HardwareExpiry,
		Tick:   f.Supervisor.Tick,

		PreReset: func() {
			sup.PreReset()
		},

		TickOffset: o.TickOffset,
	})
	defer dog.Wait()
	defer cancel()

	var platform gwatchdog.Platform = dog
	if o.LogPlatform {
		platform = gwdebug.LoggingPlatform{Log: log.With("sys", "platform"), Platform: dog}
	}

	sup = gwatchdog.NewSupervisor(log.With("sys", "supervisor"), gwatchdog.Config{
		Registry:   f.Registry(),
		Platform:   platform,
		KickPeriod: f.Supervisor.KickPeriod,
		Stats:      f.Supervisor.Stats,
		Metrics:    metrics,

		PreReset: func() {
			log.Error("Watchdog reset imminent", "diagnostics", sup.Diagnostics())
		},

		AssertEnv: o.AssertEnv,
	})

	if err := sup.Init(); err != nil {
		return err
	}
	defer func() {
		if err := sup.Deinit(); err != nil && !errors.Is(err, gwsoftdog.ErrStopped) {
			log.Warn("Failed to deinitialize supervisor", "err", err)
		}
	}()

	if err := sup.Start(); err != nil {
		return err
	}

	log.Info(
		"Running tasks",
		"n_tasks", len(f.Tasks),
		"kick_period", glog.Ticks{N: f.Supervisor.KickPeriod, Per: f.Supervisor.Tick},
		"hardware_expiry", f.Supervisor.HardwareExpiry,
		"session", sup.Session(),
	)

	g, gCtx := errgroup.WithContext(dogCtx)

	g.Go(func() error {
		gwatchdog.RunHandler(gCtx, log.With("sys", "handler"), sup, f.Supervisor.HandlerPeriod)
		return nil
	})

	if reg != nil {
		g.Go(func() error {
			return serveMetrics(gCtx, log.With("sys", "metrics"), o.MetricsAddr, reg)
		})
	}

	start := time.Now()
	for i, t := range f.Tasks {
		id := gwatchdog.TaskID(i)

		// Four reports per timeout window.
		period := max(time.Duration(t.Timeout)*f.Supervisor.Tick/4, time.Millisecond)

		var stallAt time.Time
		if t.Name == o.Stall {
			stallAt = start.Add(o.StallAfter)
		}

		tlog := glog.Task(log, uint16(id), t.Name)
		g.Go(func() error {
			return runTask(gCtx, tlog, sup, id, period, stallAt)
		})
	}

	err := g.Wait()

	if gwsoftdog.IsReset(dogCtx) {
		return context.Cause(dogCtx)
	}
	return err
}

// runTask reports id to sup every period until ctx is canceled.
// If stallAt is not zero, runTask stops reporting once stallAt has passed.
func runTask(
	ctx context.Context,
	log *slog.Logger,
	sup *gwatchdog.Supervisor,
	id gwatchdog.TaskID,
	period time.Duration,
	stallAt time.Time,
) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	log.Debug("Task running", "report_period", period)

	for {
		select {
		case <-ctx.Done():
			return nil

		case now := <-ticker.C:
			if !stallAt.IsZero() && now.After(stallAt) {
				log.Warn("Simulating stall; task will no longer report")
				<-ctx.Done()
				return nil
			}

			if err := sup.Report(id); err != nil {
				if errors.Is(err, gwatchdog.ErrPlatformFailure) {
					// Most likely a contended mutex; try again next period.
					log.Warn("Failed to report", "err", err)
					continue
				}
				return fmt.Errorf("failed to report task %d: %w", id, err)
			}
		}
	}
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string, reg *prom.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to shut down metrics server", "err", err)
		}
	}()

	log.Info("Serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
