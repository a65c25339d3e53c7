package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/billforge/backend-billing/internal/app"
	"github.com/billforge/backend-billing/internal/config"
	"github.com/billforge/backend-billing/internal/directdebit"
	"github.com/billforge/backend-billing/internal/gateway"
	"github.com/billforge/backend-billing/internal/health"
	"github.com/billforge/backend-billing/internal/invoice"
	"github.com/billforge/backend-billing/internal/obs"
	"github.com/billforge/backend-billing/internal/ratelimit"
	"github.com/billforge/backend-billing/internal/session"
	"github.com/billforge/backend-billing/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "billing")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "billing-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "billing-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	if envBool("RUN_MIGRATIONS", true) {
		migrator, err := app.NewMigrator(cfg.DatabaseURL, cfg.MigrationsDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise migrations")
		}
		if err := app.RunMigrations(migrator); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	gatewayClient, err := gateway.New(gateway.Config{
		AccessToken: cfg.GoCardlessAccessToken,
		Environment: cfg.GoCardlessEnvironment,
		BaseURL:     cfg.GoCardlessBaseURL,
		Timeout:     cfg.GatewayTimeout,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment gateway client")
	}

	invoiceStore := invoice.NewStore(pool)
	sourceStore := source.NewStore(pool)
	sourceSvc := &source.Service{Store: sourceStore, Gateway: gatewayClient}
	sessions := session.Store{R: redisClient, TTL: cfg.SessionTokenTTL}

	ddSvc := &directdebit.Service{
		Gateway:    gatewayClient,
		Sessions:   sessions,
		Sources:    sourceStore,
		SuccessURL: strings.TrimRight(cfg.CallbackBaseURL, "/") + "/v1/directdebit/callback",
		Logger:     logger,
	}
	ddHandler := &directdebit.Handler{
		Svc:       ddSvc,
		Invoices:  invoiceStore,
		Sources:   sourceStore,
		SourceSvc: sourceSvc,
		Validate:  validator.New(),
		Logger:    logger,
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	chargeLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "billing:ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP,
			Window: envDurationMillis("RATE_LIMIT_CHARGE_WINDOW_MS", 60000),
			Max:    envInt("RATE_LIMIT_CHARGE_MAX", 30),
		},
		Logger: logger,
	}

	limiterStore, err := app.NewLimiterStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise limiter store")
	}
	globalLimiter := app.NewIPLimiter(limiterStore, int64(envInt("RATE_LIMIT_GLOBAL_MAX", 600)), time.Minute)
	globalLimit := mhttp.NewMiddleware(globalLimiter)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		DB:           pingDB(pool),
		Redis:        pingRedis(redisClient),
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/v1", func(v chi.Router) {
		v.Use(globalLimit.Handler)

		v.Group(func(g chi.Router) {
			g.Use(chargeLimit.Middleware)
			g.Post("/invoices/{invoiceID}/charge", ddHandler.Charge)
			g.Get("/directdebit/callback", ddHandler.Callback)
		})

		v.Route("/customers/{customerID}/sources", func(s chi.Router) {
			s.Post("/", ddHandler.CreateSource)
			s.Get("/", ddHandler.ListSources)
			s.Delete("/{sourceID}", ddHandler.DeleteSource)
		})

		v.Post("/payments/{paymentID}/refund", ddHandler.Refund)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func pingDB(pool *pgxpool.Pool) health.Probe {
	return func(ctx context.Context, timeout time.Duration) error {
		if pool == nil {
			return errors.New("db not configured")
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return pool.Ping(ctx)
	}
}

func pingRedis(client *redis.Client) health.Probe {
	return func(ctx context.Context, timeout time.Duration) error {
		if client == nil {
			return errors.New("redis not configured")
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
