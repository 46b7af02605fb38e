package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/scene-chipper/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history, chips and metrics over HTTP",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		CollectionsDir: a.cfg.CollectionsDir,
		AuditDBPath:    a.cfg.Audit.DBPath,
		OutputDir:      a.cfg.Output.Dir,
		Metrics:        a.metrics.Handler(),
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	a.logger.Info("starting chipper API",
		slog.String("version", version),
		slog.String("addr", a.cfg.Server.Address()),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, server.ListenConfig{
		Addr:            a.cfg.Server.Address(),
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	})
}
