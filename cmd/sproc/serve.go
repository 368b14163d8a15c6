package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/sprocio/sproc/internal/config"
	"github.com/sprocio/sproc/internal/history"
	"github.com/sprocio/sproc/internal/lifecycle"
	"github.com/sprocio/sproc/internal/logger"
	"github.com/sprocio/sproc/internal/metrics"
	"github.com/sprocio/sproc/internal/server"
)

func createServeCommand() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control daemon",
		Long: `Serve starts the HTTP control daemon on the pinned server port,
spawns every restart-enabled service and supervises them until shutdown.
The pinned configuration must set server.key; every control request is
authenticated against it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runServe(logLevel); err != nil {
				failure("%v", err)
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "daemon log level (debug|info|warn|error)")
	return cmd
}

func runServe(logLevel string) error {
	cfg, err := config.LoadPinned()
	if err != nil {
		return err
	}
	if cfg.Server.Key == "" {
		return errors.New("refusing to serve without server.key in the pinned configuration")
	}
	log := logger.New(os.Stdout, logLevel)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var sink history.Sink
	if dsn := cfg.Server.HistoryDSN; dsn != "" {
		s, err := history.OpenSQLite(dsn)
		if err != nil {
			return fmt.Errorf("open history sink: %w", err)
		}
		sink = s
		defer func() { _ = s.Close() }()
	}

	eng := lifecycle.New(cfg, lifecycle.Options{
		Daemon:  true,
		Logger:  log,
		History: sink,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// restart-enabled services come up with the daemon
	var boot []string
	for name, svc := range cfg.Services {
		if svc.Restart {
			boot = append(boot, name)
		}
	}
	for _, r := range eng.Spawn(boot) {
		if r.Err != nil && !errors.Is(r.Err, lifecycle.ErrAlreadyRunning) {
			log.Error("boot spawn failed", "name", r.Name, "err", r.Err)
		}
	}

	go eng.Supervise(ctx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv, srvErr := server.NewServer(addr, server.NewRouter(eng, cfg.Server.Key, log))
	log.Info("control daemon listening", "addr", addr)

	select {
	case err := <-srvErr:
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
