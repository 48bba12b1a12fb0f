package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/taskbounty/marketplace/internal/http/handlers"
	appmw "github.com/taskbounty/marketplace/internal/http/middleware"
	"github.com/taskbounty/marketplace/internal/identity"
	"github.com/taskbounty/marketplace/internal/mailer"
	"github.com/taskbounty/marketplace/internal/payments"
	"github.com/taskbounty/marketplace/internal/repo/postgres"
	redisrepo "github.com/taskbounty/marketplace/internal/repo/redis"
	"github.com/taskbounty/marketplace/pkg/config"
	"github.com/taskbounty/marketplace/pkg/database"
	"github.com/taskbounty/marketplace/pkg/events"
	"github.com/taskbounty/marketplace/pkg/logger"
	mw "github.com/taskbounty/marketplace/pkg/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	idempotencyStore, err := redisrepo.NewIdempotencyStore(cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer idempotencyStore.Close()

	// Repositories
	identityRepo := postgres.NewIdentityRepository(pool)
	rateLimitRepo := postgres.NewRateLimitRepository(pool)

	// External collaborators
	processor := payments.NewStripeClient(cfg.Stripe.SecretKey, cfg.Stripe.RequestTimeout)
	mail := newMailer(cfg)

	// Services
	identitySvc := identity.NewService(identityRepo, mail, eventBus, cfg)
	settlements := payments.NewSettlementOrchestrator(processor, eventBus)
	checkout := payments.NewCheckoutInitiator(processor, cfg.Platform.BaseURL, eventBus)

	// Handlers
	authHandler := handlers.NewAuthHandler(identitySvc)
	paymentsHandler := handlers.NewPaymentsHandler(settlements, checkout, processor, identityRepo)

	registerLimiter := appmw.NewRateLimiter(rateLimitRepo, appmw.RateLimitConfig{
		Requests: 10,
		Window:   time.Minute,
		KeyFunc:  appmw.ClientIPKeyFunc,
	})

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("api"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/auth", func(r chi.Router) {
		r.With(registerLimiter.Middleware()).Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/verify", authHandler.Verify)
		r.With(registerLimiter.Middleware()).Post("/resend", authHandler.ResendCode)
		r.Post("/change-email", authHandler.ChangeEmail)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Use(appmw.RequireJWT(cfg.Auth.JWTSecret))
		r.Use(mw.Idempotency(idempotencyStore))
		r.Post("/settlements", paymentsHandler.SettleTransfer)
		r.Post("/payouts", paymentsHandler.SettlePayout)
		r.Post("/checkout", paymentsHandler.CreateCheckoutSession)
		r.Post("/accounts", paymentsHandler.CreateConnectedAccount)
		r.Post("/accounts/{accountID}/onboarding-link", paymentsHandler.CreateOnboardingLink)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigChan:
		case <-gctx.Done():
			return nil
		}

		logger.Info("Shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("API server error", "error", err)
		os.Exit(1)
	}
}

func newMailer(cfg *config.Config) mailer.Service {
	switch {
	case cfg.Email.DevMode:
		return mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		return mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.SMTPFrom)
	default:
		return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
	}
}
