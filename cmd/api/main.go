package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"paykit/internal/auth"
	"paykit/internal/db"
	"paykit/internal/domain/storage"
	"paykit/internal/events"
	"paykit/internal/fraud"
	"paykit/internal/locker"
	"paykit/internal/mailer"
	"paykit/internal/metrics"
	"paykit/internal/payments"
	"paykit/internal/ratelimiter"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	// Default values
	defaultRequests := 200
	defaultEnabled := false

	// Retrieve request count with error handling
	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	// Retrieve enabled flag with error handling
	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), zapcore.InfoLevel)

	return zap.New(core).Sugar(), nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return b, nil
}

func loadConfig() (config, error) {
	var errs []error
	intVal := func(key string, fallback int) int {
		n, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}
	boolVal := func(key string, fallback bool) bool {
		b, err := getEnvBool(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return b
	}

	env := getEnv("ENV", "development")

	// dummy accepts any outcome, so it is only offered by default in development
	defaultVariants := ""
	if env == "development" {
		defaultVariants = "default=dummy"
	}
	variants, err := parseVariants(getEnv("PAYMENT_VARIANTS", defaultVariants))
	if err != nil {
		errs = append(errs, err)
	}

	apiURL := getEnv("EXTERNAL_URL", "http://localhost:8080")

	cfg := config{
		addr:   getEnv("ADDR", ":8080"),
		env:    env,
		apiURL: apiURL,
		db: dbConfig{
			addr:         os.Getenv("DB_ADDR"),
			maxOpenConns: intVal("DB_MAX_OPEN_CONNS", 30),
			maxIdleTime:  getEnv("DB_MAX_IDLE_TIME", "15m"),
		},
		redis: redisConfig{
			addr:     os.Getenv("REDIS_ADDR"),
			password: os.Getenv("REDIS_PASSWORD"),
			db:       intVal("REDIS_DB", 0),
		},
		kafka: kafkaConfig{
			brokers: os.Getenv("KAFKA_BROKERS"),
			topic:   getEnv("KAFKA_TOPIC", events.StatusTopic),
		},
		nats: natsConfig{
			url: os.Getenv("NATS_URL"),
		},
		mail: mailConfig{
			fromEmail: os.Getenv("MAIL_FROM"),
			smtp: smtpConfig{
				host:     os.Getenv("SMTP_HOST"),
				port:     intVal("SMTP_PORT", 587),
				username: os.Getenv("SMTP_USER"),
				password: os.Getenv("SMTP_PASS"),
			},
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				exp:    time.Hour * 24, // 1 day
				iss:    "paykit",
			},
		},
		rateLimiter: LoadRateLimiterConfig(),
		payments: paymentsConfig{
			variants:     variants,
			autoCapture:  boolVal("PAYMENT_AUTO_CAPTURE", true),
			successURL:   getEnv("PAYMENT_SUCCESS_URL", apiURL+"/v1/payments/{token}"),
			failureURL:   getEnv("PAYMENT_FAILURE_URL", apiURL+"/v1/payments/{token}"),
			rejectionURL: os.Getenv("PAYMENT_REJECTION_URL"),
			stripe: stripeConfig{
				secretKey: os.Getenv("STRIPE_SECRET_KEY"),
				publicKey: os.Getenv("STRIPE_PUBLIC_KEY"),
				name:      os.Getenv("STRIPE_NAME"),
				image:     os.Getenv("STRIPE_IMAGE"),
			},
			khalti: khaltiConfig{
				secretKey:    os.Getenv("KHALTI_SECRET_KEY"),
				websiteURL:   getEnv("KHALTI_WEBSITE_URL", apiURL),
				isProduction: boolVal("KHALTI_IS_PRODUCTION", false),
			},
			esewa: esewaConfig{
				merchantCode: os.Getenv("ESEWA_MERCHANT_CODE"),
				secretKey:    os.Getenv("ESEWA_SECRET_KEY"),
				isProduction: boolVal("ESEWA_IS_PRODUCTION", false),
			},
			bank: bankConfig{
				iban: os.Getenv("BANK_IBAN"),
				bic:  os.Getenv("BANK_BIC"),
				salt: os.Getenv("BANK_REFERENCE_SALT"),
			},
		},
	}

	if cfg.auth.basic.user == "" || cfg.auth.basic.pass == "" {
		errs = append(errs, fmt.Errorf("AUTH_BASIC_USER and AUTH_BASIC_PASS are required"))
	}
	if cfg.auth.token.secret == "" {
		errs = append(errs, fmt.Errorf("AUTH_TOKEN_SECRET is required"))
	}
	if len(errs) > 0 {
		return cfg, errs[0]
	}
	return cfg, nil
}

func (cfg config) urls() payments.URLs {
	return payments.URLs{
		Base:      cfg.apiURL,
		Success:   cfg.payments.successURL,
		Failure:   cfg.payments.failureURL,
		Rejection: cfg.payments.rejectionURL,
	}
}

var version = "0.4.0"

//	@title			Paykit API
//	@description	Payment gateway service: create payments, render provider forms, receive gateway callbacks.

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description

func main() {
	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Warnw("no .env file loaded, using process environment", "error", err.Error())
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal(err)
	}

	ctx := context.Background()
	svcCfg := payments.ServiceConfig{Logger: logger, Locker: locker.Noop{}}
	var paymentLogs paymentLogReader

	// Database
	if cfg.db.addr != "" {
		pool, err := db.New(db.Config{
			Addr:         cfg.db.addr,
			MaxOpenConns: int32(cfg.db.maxOpenConns),
			MaxIdleTime:  cfg.db.maxIdleTime,
		})
		if err != nil {
			logger.Fatal(err)
		}
		defer pool.Close()
		logger.Info("database connection pool established")

		container := storage.NewContainer(pool)
		if err := container.Migrate(ctx); err != nil {
			logger.Fatalw("database migration failed", "error", err.Error())
		}
		svcCfg.Store = container.Payments
		svcCfg.Logs = container.PayLogs
		paymentLogs = container.PayLogs

		expvar.Publish("database", expvar.Func(func() any {
			s := pool.Stat()
			return map[string]any{
				"total_conns":    s.TotalConns(),
				"idle_conns":     s.IdleConns(),
				"acquired_conns": s.AcquiredConns(),
				"max_conns":      s.MaxConns(),
			}
		}))
	} else {
		logger.Warn("DB_ADDR not set, payments are kept in memory")
		svcCfg.Store = payments.NewMemoryStore()
	}

	// Redis lock around gateway callbacks
	if cfg.redis.addr != "" {
		rdb, err := locker.NewRedisClient(ctx, cfg.redis.addr, cfg.redis.password, cfg.redis.db)
		if err != nil {
			logger.Fatal(err)
		}
		defer rdb.Close()
		svcCfg.Locker = locker.NewRedis(rdb)
		logger.Info("redis locker connected")
	}

	service := payments.NewService(svcCfg)

	app := &application{
		config:        cfg,
		service:       service,
		paymentLogs:   paymentLogs,
		urls:          cfg.urls(),
		logger:        logger,
		authenticator: auth.NewJWTAuthenticator(cfg.auth.token.secret, cfg.auth.token.iss, cfg.auth.token.iss, cfg.auth.token.exp),
		rateLimiter: ratelimiter.NewFixedWindowLimiter(
			cfg.rateLimiter.RequestsPerTimeFrame,
			cfg.rateLimiter.TimeFrame,
		),
		metrics: metrics.New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
	}

	signals := service.Signals()
	signals.Subscribe("metrics", app.metrics.PaymentStatusChanged)

	if cfg.kafka.brokers != "" {
		writer := events.NewKafkaWriter(cfg.kafka.brokers, cfg.kafka.topic)
		defer writer.Close()
		signals.Subscribe("kafka", events.NewPublisher(writer).PaymentStatusChanged)
		logger.Infow("publishing payment events", "topic", cfg.kafka.topic)
	}

	if cfg.nats.url != "" {
		nc, err := nats.Connect(cfg.nats.url, nats.Name("paykit"))
		if err != nil {
			logger.Fatal(err)
		}
		defer nc.Drain()
		signals.Subscribe("fraud", fraud.NewScreener(nc, service).PaymentStatusChanged)
		logger.Info("fraud screening enabled")
	}

	if cfg.mail.smtp.host != "" {
		smtp, err := mailer.NewSMTPClient(
			cfg.mail.smtp.host,
			cfg.mail.smtp.port,
			cfg.mail.smtp.username,
			cfg.mail.smtp.password,
			cfg.mail.fromEmail,
		)
		if err != nil {
			logger.Fatal(err)
		}
		app.mailer = smtp
		signals.Subscribe("mail", app.paymentStatusMailer)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if err := buildRegistry(cfg.payments, app.urls, service, httpClient); err != nil {
		logger.Fatal(err)
	}
	logger.Infow("payment providers registered", "variants", service.Registry().Variants())
	if len(cfg.payments.variants) == 0 {
		logger.Warn("no payment variants configured, set PAYMENT_VARIANTS")
	}

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
