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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/comalice/hsm/internal/logging"
	"github.com/comalice/hsm/internal/production"
	"github.com/comalice/hsm/lifecycle"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a simulated service's life cycle over HTTP",
	Long: `Runs a simulated service and exposes its life cycle machine:

  GET  /metrics         Prometheus metrics
  GET  /states          active states
  GET  /describe        model (?format=json|yaml|dot|tree)
  POST /events/{name}   dispatch an event, e.g. start or stop`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		cfgPath, _ := cmd.Flags().GetString("config")
		stuck, _ := cmd.Flags().GetInt("stuck-workers")

		cfg := lifecycle.DefaultConfig()
		if cfgPath != "" {
			var err error
			if cfg, err = lifecycle.LoadConfig(cfgPath); err != nil {
				return err
			}
		}

		logger := logging.For(logging.ComponentServer)
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := production.NewMetricsObserver(reg)

		svc := newSimService("simulated", stuck, 100*time.Millisecond)
		lc, err := lifecycle.New(svc, svc, lifecycle.WithConfig(cfg), lifecycle.WithObserver(metrics))
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           newRouter(lc, reg, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Infow("Starting server", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case sig := <-shutdown:
			logger.Infow("Shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warnw("Graceful shutdown did not complete", "error", err)
				return srv.Close()
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().StringP("config", "c", "", "Life cycle YAML config")
	serveCmd.Flags().IntP("stuck-workers", "w", 0, "Workers that survive stop and need interrupting")
}
