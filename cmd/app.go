package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"paytx/api"
	"paytx/config"
	"paytx/pkg/logger"

	"go.uber.org/zap"
)

// App is the HTTP server process.
type App struct {
	config     *config.Config
	components *Components
	router     *api.Router
	server     *http.Server
}

func newApp(cfg *config.Config, c *Components, router *api.Router) *App {
	return &App{
		config:     cfg,
		components: c,
		router:     router,
		server: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router.GetEngine(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Handler returns the HTTP handler (used by tests).
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Components() *Components {
	return a.components
}

// Run serves until ctx is done, then shuts down gracefully and closes the
// components.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		_ = a.components.Close()
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server", zap.Duration("timeout", a.config.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Server.ShutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	if cerr := a.components.Close(); cerr != nil {
		logger.Warn("Component shutdown failed", zap.Error(cerr))
	}
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
