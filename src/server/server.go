package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"papertrader/src/handler"
	"papertrader/src/security"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"
)

// Routes are the collaborators the HTTP surface is built from.
type Routes struct {
	Engine    handler.TradingEngine
	Positions http.HandlerFunc
	Events    http.Handler
	// APIToken protects the mutating routes when set.
	APIToken  string
}

func NewRouter(routes Routes) http.Handler {
	// Router with middleware
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	e := routes.Engine
	auth := security.RequireToken(routes.APIToken)

	r.Get("/status", handler.StatusHandler(e))
	r.Get("/metrics", handler.MetricsHandler(e))

	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", handler.PortfolioHandler(e))
		r.With(auth).Post("/reset", handler.ResetPortfolioHandler(e))
	})

	r.Route("/positions", func(r chi.Router) {
		if routes.Positions != nil {
			r.Get("/", routes.Positions)
		}
		r.With(auth).Post("/{id}/close", handler.ClosePositionHandler(e))
	})

	r.With(auth).Post("/signals", handler.ProcessSignalHandler(e))

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", handler.GetSettingsHandler(e))
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Put("/", handler.PutSettingsHandler(e))
			r.Put("/confidence", handler.ConfidenceHandler(e))
			r.Put("/interval", handler.SignalIntervalHandler(e))
		})
	})

	if routes.Events != nil {
		r.Handle("/ws", routes.Events)
	}

	return r
}

// StartServer serves h on port until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, port string, h http.Handler, shutdownTimeout time.Duration) error {
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
