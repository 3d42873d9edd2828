package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"errortracker/src/auth"
	"errortracker/src/middleware"
	"errortracker/src/notifier"
)

// Routes holds what the router serves. Nil members disable their routes.
type Routes struct {
	Hook           *middleware.Hook
	LiveHub        *notifier.LiveHub
	Gatherer       prometheus.Gatherer
	AdminTokenHash string
	SearchErrors   http.HandlerFunc
	GetError       http.HandlerFunc
}

func NewRouter(routes Routes) http.Handler {
	// Router with middleware
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if routes.Hook != nil {
		r.Use(routes.Hook.Middleware)
	}

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	if routes.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(routes.Gatherer, promhttp.HandlerOpts{}))
	}

	// Admin routes
	if routes.AdminTokenHash == "" {
		logger.Warn("APP_ERROR_ADMIN_TOKEN_HASH is empty, /errors routes are disabled")
		return r
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdminToken(routes.AdminTokenHash))
		if routes.SearchErrors != nil {
			r.Get("/errors", routes.SearchErrors)
		}
		if routes.GetError != nil {
			r.Get("/errors/{id}", routes.GetError)
		}
		if routes.LiveHub != nil {
			r.Handle("/errors/live", routes.LiveHub)
		}
	})

	return r
}

func StartServer(port string, h http.Handler) {
	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
