package main

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/veldt-io/cirrus/internal/daemon"
	"github.com/veldt-io/cirrus/telemetry"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the continuous sync daemon",
	Long: `Run cirrus in daemon mode: every enabled provider is synced at the
configured interval, with Prometheus metrics on /metrics and a health
check on /healthz. Shuts down gracefully on SIGTERM/SIGINT.`,
	Example: `  cirrus daemon --config /etc/cirrus/cirrus.yaml`,
	RunE:    runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "cirrus",
		ServiceVersion: version,
		Environment:    a.cfg.Telemetry.Environment,
		OTELEndpoint:   a.cfg.Telemetry.OTELEndpoint,
		Insecure:       a.cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	d, err := daemon.NewDaemon(a.engine, a.store, a.logger, daemon.Config{
		Interval:   a.cfg.Daemon.Interval,
		ListenAddr: a.cfg.Daemon.ListenAddr,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	a.logger.Info().
		Dur("interval", a.cfg.Daemon.Interval).
		Str("listen", a.cfg.Daemon.ListenAddr).
		Int("providers", len(a.cfg.Providers)).
		Msg("starting daemon")

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group run.Group
	group.Add(func() error {
		return d.Start(loopCtx)
	}, func(error) {
		cancel()
	})
	group.Add(func() error {
		return d.ServeHTTP(loopCtx)
	}, func(error) {
		cancel()
	})
	group.Add(run.SignalHandler(loopCtx, syscall.SIGINT, syscall.SIGTERM))

	err = group.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		a.logger.Info().Str("signal", sigErr.Signal.String()).Msg("daemon stopped")
		return nil
	}
	return err
}
