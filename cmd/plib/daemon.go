package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/plib/internal/config"
	"github.com/matsen/plib/internal/schedule"
)

var daemonMetricsAddr string

func init() {
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", "127.0.0.1:9464", "Address for the Prometheus /metrics endpoint (empty disables)")
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background preprint rescrape",
	Long: `Run in the foreground, rescraping preprints on the configured interval.

A pass that is overdue at startup runs immediately. The global config file
is watched: source and schedule changes apply without a restart, and an
invalid edit is logged and ignored. Metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()
	ctx := cmd.Context()
	logger := a.logger.Named("daemon")

	sched := schedule.New(a.store, func(ctx context.Context) error {
		sum, err := a.coord.RescrapePreprints(ctx)
		if err != nil {
			return err
		}
		logger.Info("preprint rescrape finished",
			zap.Int("total", sum.Total), zap.Int("succeeded", sum.Succeeded), zap.Int("failed", sum.Failed))
		return nil
	}, schedule.WithLogger(logger.Named("schedule")))

	arm := func(cfg *config.GlobalConfig) {
		if !cfg.Scheduler.Enabled {
			sched.Disarm()
			return
		}
		if err := sched.Arm(ctx, cfg.Scheduler.IntervalDays); err != nil {
			logger.Error("arming scheduler", zap.Error(err))
		}
	}
	arm(a.global)

	watcher, err := config.NewWatcher(config.GlobalConfigPath(), func(cfg *config.GlobalConfig) {
		if err := a.registry.Apply(cfg); err != nil {
			logger.Warn("keeping previous sources", zap.Error(err))
		}
		arm(cfg)
	}, logger.Named("config"))
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	var srv *http.Server
	if daemonMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: daemonMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", daemonMetricsAddr))
	}

	logger.Info("daemon started", zap.String("library", a.root), zap.Stringer("state", sched.State()))
	<-ctx.Done()
	logger.Info("shutting down")

	sched.Disarm()
	sched.Wait()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}
