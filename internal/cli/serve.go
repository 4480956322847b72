package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astro-web3/function-gateway/internal/config"
	httptransport "github.com/astro-web3/function-gateway/internal/transport/http"
	"github.com/astro-web3/function-gateway/pkg/logger"
	"github.com/astro-web3/function-gateway/pkg/otel"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	// ctx bounds background work started during wiring, such as JWKS refresh.
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	srv, err := httptransport.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrChan := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server",
			slog.String("addr", srv.Addr()),
			slog.String("mode", cfg.Server.Mode),
		)
		if listenErr := srv.ListenAndServe(); listenErr != nil &&
			!errors.Is(listenErr, http.ErrServerClosed) {
			serverErrChan <- listenErr
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
		logger.InfoContext(ctx, "shutting down server")
	case serveErr = <-serverErrChan:
		logger.ErrorContext(ctx, "server error, shutting down", slog.String("error", serveErr.Error()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.ErrorContext(shutdownCtx, "server forced to shutdown", slog.String("error", shutdownErr.Error()))
	} else {
		logger.InfoContext(shutdownCtx, "server stopped gracefully")
	}

	if shutdownErr := otel.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.ErrorContext(shutdownCtx, "failed to shutdown tracer provider", slog.String("error", shutdownErr.Error()))
	}

	return serveErr
}
