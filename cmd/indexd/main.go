package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"dualinbox/internal/config"
	"dualinbox/internal/indexserver"
	"dualinbox/internal/log"
)

const shutdownTimeout = 5 * time.Second

func newRootCommand() *cobra.Command {
	var (
		configFile string
		listen     string
	)
	cmd := &cobra.Command{
		Use:   "indexd",
		Short: "dualinbox backend index and blob store",
		Example: `  # Listen on the default address
  indexd

  # Use a configuration file and override the listen address
  indexd --config dualinbox.toml --listen 127.0.0.1:9090`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configFile != "" {
				var err error
				if cfg, err = config.LoadFile(configFile); err != nil {
					return fmt.Errorf("failed to load config file '%v': %w", configFile, err)
				}
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "f", "", "path to the TOML configuration file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "override Server.Listen")
	return cmd
}

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCommand(),
		fang.WithVersion(versioninfo.Short()),
	); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return err
	}
	logger := backend.GetLogger("indexd")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv, err := indexserver.New(backend, reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hs := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Noticef("indexd listening on %s", cfg.Server.Listen)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Notice("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return hs.Shutdown(sctx)
}
