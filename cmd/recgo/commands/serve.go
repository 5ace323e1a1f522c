package commands

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hupe1980/recgo"
	"github.com/hupe1980/recgo/internal/server"
	"github.com/hupe1980/recgo/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the HTTP API over the model in the configured snapshot folder.

The model is loaded on startup (save.load_on_startup), saved every
save.interval while it has unsaved changes, and saved once more on shutdown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := metrics.NewPrometheusCollector(reg)

	model, logger, err := openModel(ctx, cfg, recgo.WithMetricsCollector(collector))
	if err != nil {
		return err
	}

	folder := cfg.Storage.Folder

	if cfg.Save.LoadOnStartup {
		if err := model.Load(ctx, folder); err != nil {
			return err
		}
	}

	srv := server.New(model, func(o *server.Options) {
		o.Folder = folder
		o.Logger = logger.Logger
		o.Recorder = collector
		o.Gatherer = reg
		o.RateLimitRequests = cfg.Server.RateLimitRequests
		o.RateLimitWindow = cfg.Server.RateLimitWindow
	})

	if cfg.Save.Interval > 0 {
		go srv.AutoSave(ctx, cfg.Save.Interval)
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := srv.ListenAndServe(ctx, httpSrv, cfg.Server.ShutdownTimeout); err != nil {
		return err
	}

	if !model.DirtyArtists() && !model.DirtyPlaylists() {
		return nil
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	task, err := srv.Save(saveCtx)
	if err != nil {
		return err
	}

	logger.Info("saving on shutdown", slog.String("task", task.ID), slog.String("folder", folder))

	return task.Wait(saveCtx)
}
