package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"paykit/internal/auth"
	"paykit/internal/mailer"
	"paykit/internal/metrics"
	"paykit/internal/payments"
	"paykit/internal/ratelimiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type application struct {
	config        config
	service       *payments.Service
	paymentLogs   paymentLogReader
	urls          payments.URLs
	logger        *zap.SugaredLogger
	mailer        mailer.Client
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
	metrics       *metrics.Metrics
	wg            sync.WaitGroup
}

type config struct {
	addr        string
	env         string
	apiURL      string
	db          dbConfig
	redis       redisConfig
	kafka       kafkaConfig
	nats        natsConfig
	mail        mailConfig
	auth        authConfig
	rateLimiter ratelimiter.Config
	payments    paymentsConfig
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}
type tokenConfig struct {
	secret string
	exp    time.Duration
	iss    string
}
type basicConfig struct {
	user string
	pass string
}

type mailConfig struct {
	fromEmail string
	smtp      smtpConfig
}

type smtpConfig struct {
	host     string
	port     int
	username string
	password string
}

type dbConfig struct {
	addr         string
	maxOpenConns int
	maxIdleTime  string
}

type redisConfig struct {
	addr     string
	password string
	db       int
}

type kafkaConfig struct {
	brokers string
	topic   string
}

type natsConfig struct {
	url string
}

type paymentsConfig struct {
	// variants maps a variant name to a provider kind, see buildRegistry.
	variants     map[string]string
	autoCapture  bool
	successURL   string
	failureURL   string
	rejectionURL string
	stripe       stripeConfig
	khalti       khaltiConfig
	esewa        esewaConfig
	bank         bankConfig
}

type stripeConfig struct {
	secretKey string
	publicKey string
	name      string
	image     string
}

type khaltiConfig struct {
	secretKey    string
	websiteURL   string
	isProduction bool
}

type esewaConfig struct {
	merchantCode string
	secretKey    string
	isProduction bool
}

type bankConfig struct {
	iban string
	bic  string
	salt string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if app.metrics != nil {
		r.Use(app.metrics.Instrument)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)

		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)
		if app.metrics != nil {
			r.With(app.BasicAuthMiddleware()).Handle("/metrics", app.metrics.Handler())
		}

		r.Route("/authentication", func(r chi.Router) {
			r.With(app.BasicAuthMiddleware()).Post("/token", app.createTokenHandler)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", app.createPaymentHandler)

			// gateway callbacks and customer returns
			r.With(app.RateLimiterMiddleware).HandleFunc("/process/{token}", app.processPaymentHandler)

			r.Route("/{token}", func(r chi.Router) {
				r.Get("/", app.getPaymentHandler)
				r.Get("/form", app.paymentFormHandler)
				r.Post("/form", app.paymentFormHandler)
			})
		})

		r.Route("/admin/payments", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Use(app.RequireRole(auth.RoleMerchant))

			r.Get("/", app.adminListPaymentsHandler)
			r.Route("/{token}", func(r chi.Router) {
				r.Post("/capture", app.adminCapturePaymentHandler)
				r.Post("/release", app.adminReleasePaymentHandler)
				r.Post("/refund", app.adminRefundPaymentHandler)
				r.Put("/fraud-status", app.adminFraudStatusHandler)
				r.Get("/logs", app.adminPaymentLogsHandler)
			})
		})
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		err := srv.Shutdown(ctx)
		// let queued e-mails finish
		app.wg.Wait()
		shutdown <- err
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
