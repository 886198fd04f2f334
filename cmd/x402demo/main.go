// Command x402demo is a reference HTTP server built on pkg/toolkit: it
// paywalls a resource with a 402 PaymentRequirements response, verifies the
// X-PAYMENT header a client resubmits, and fires a webhook on every verified
// payment. It exists to prove the toolkit's pieces fit together end to end,
// not as a production paywall.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/CedrosPay/x402-solanatoolkit/internal/config"
	"github.com/CedrosPay/x402-solanatoolkit/internal/logger"
	"github.com/CedrosPay/x402-solanatoolkit/pkg/toolkit"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults to env-only configuration)")
	envFile := flag.String("env", ".env", "path to a dotenv file to load before reading config (missing file is not an error)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", *envFile).Msg("x402demo: failed to load env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("x402demo: failed to load config")
	}

	app, err := toolkit.NewApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("x402demo: failed to build toolkit app")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Start(ctx)

	srv := &demoServer{app: app, subs: newSubscriptionRegistry()}
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newRouter(cfg, srv),
	}

	go func() {
		logger.Global().Info().Str("addr", cfg.Server.Addr).Msg("x402demo: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("x402demo: server failed")
		}
	}()

	<-ctx.Done()
	logger.Global().Info().Msg("x402demo: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Global().Error().Err(err).Msg("x402demo: graceful shutdown failed")
	}
	if err := app.Close(); err != nil {
		logger.Global().Error().Err(err).Msg("x402demo: failed to release toolkit resources")
	}
}

// newRouter attaches every demo route to a fresh chi.Router, with CORS
// enabled only when the config names at least one allowed origin.
func newRouter(cfg *config.Config, srv *demoServer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.Middleware(logger.Global()))

	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*", "X-Payment"},
			ExposedHeaders:   []string{"X-Payment-Response"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	r.Get("/healthz", srv.handleHealthz)
	r.Route("/resource", func(rr chi.Router) {
		rr.Get("/{slug}", srv.handlePaywalledResource)
	})
	r.Route("/webhooks", func(rr chi.Router) {
		rr.Post("/subscriptions", srv.handleCreateSubscription)
		rr.Get("/subscriptions", srv.handleListSubscriptions)
		rr.Delete("/subscriptions/{id}", srv.handleDeleteSubscription)
		rr.Get("/deliveries", srv.handleListDeliveries)
	})

	return r
}
