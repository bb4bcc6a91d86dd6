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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"liffsurvey/internal/config"
	"liffsurvey/internal/server"
)

const shutdownGrace = 5 * time.Second

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the forwarding proxy",
		Long: `Serves GET /health and POST ` + config.SurveyPath + `. Submissions are relayed to the
spreadsheet script and its status and JSON body are mirrored back. Browser
requests are admitted only from proxy.allowed_origins.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.ListenAddr()
			}
			log := logger.Named("proxy")
			if cfg.UpstreamURL() == "" {
				log.Warn("upstream URL not configured; submissions will fail with 500")
			}
			handler, err := server.New(cfg, server.Options{Logger: log})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}, log, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :proxy.port)")
	return cmd
}

func run(ctx context.Context, srv *http.Server, log *zap.Logger, cfg *config.Config) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.Strings("allowed_origins", cfg.Proxy.AllowedOrigins),
			zap.Duration("upstream_timeout", cfg.UpstreamTimeout()),
		)
		fmt.Printf("Serving %s proxy on %s (health at /health, OpenAPI at /openapi.json)\n", cfg.App.Name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
