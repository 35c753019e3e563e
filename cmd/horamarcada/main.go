package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fbmeirelles/horamarcada/internal/availability"
	"github.com/fbmeirelles/horamarcada/internal/booking"
	"github.com/fbmeirelles/horamarcada/internal/handlers"
	"github.com/fbmeirelles/horamarcada/internal/observability/metrics"
	"github.com/fbmeirelles/horamarcada/internal/outbox"
	"github.com/fbmeirelles/horamarcada/internal/payment"
	"github.com/fbmeirelles/horamarcada/internal/schedule"
	"github.com/fbmeirelles/horamarcada/internal/storage"
	"github.com/fbmeirelles/horamarcada/libs/config"
	"github.com/fbmeirelles/horamarcada/libs/db"
	"github.com/fbmeirelles/horamarcada/libs/httpx"
	"github.com/fbmeirelles/horamarcada/libs/kafkax"
	"github.com/fbmeirelles/horamarcada/libs/otelx"
	"github.com/fbmeirelles/horamarcada/libs/runtime"
)

const serviceName = "horamarcada"

func main() {
	_ = godotenv.Load()

	logger := runtime.NewLogger(serviceName)
	ctx, stop := runtime.SignalContext()
	defer stop()

	shutdownTracing, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
	if err != nil {
		fatal(logger, "tracing setup failed", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		fatal(logger, "configuration error", err)
	}
	pool, err := db.Open(ctx, databaseURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		fatal(logger, "database connection failed", err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	apptRepo := storage.NewAppointmentRepository(pool, outboxRepo)
	payRepo := storage.NewPaymentRepository(pool, outboxRepo)
	scheduleRepo := storage.NewScheduleRepository(pool)

	// Schedule configuration is served locally unless a remote schedule
	// service is configured (and the binary was built with its stubs).
	var scheduleSource availability.ScheduleSource = scheduleRepo
	if addr := config.String("SCHEDULE_GRPC_ADDR", ""); addr != "" {
		remote, err := schedule.NewRemoteSource(addr)
		if err != nil {
			fatal(logger, "schedule service dial failed", err)
		}
		if remote != nil {
			scheduleSource = remote
			logger.Info("using remote schedule source", "addr", addr)
		}
	}
	resolver := availability.NewResolver(scheduleSource, apptRepo)

	var gateway payment.Gateway
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		gateway = payment.NewStripeGateway(key)
	} else {
		gateway = payment.NewFakeGateway()
		logger.Warn("STRIPE_SECRET_KEY not set, using in-process fake payment gateway")
	}

	controller := payment.NewController(payRepo, gateway, logger, payment.Config{
		Window:       config.Duration("PAYMENT_WINDOW", 5*time.Minute),
		PollInterval: config.Duration("PAYMENT_POLL_INTERVAL", 10*time.Second),
	})
	defer controller.Close()
	if err := controller.Resume(ctx); err != nil {
		fatal(logger, "resuming payment watchers failed", err)
	}

	sweeper := payment.NewSweeper(controller, logger)
	if err := sweeper.Start(); err != nil {
		fatal(logger, "payment sweeper start failed", err)
	}
	defer sweeper.Stop()

	policy := booking.Policy{
		MaxReschedules: config.Int("RESCHEDULE_LIMIT", 1),
		MinLeadTime:    config.Duration("RESCHEDULE_MIN_LEAD", 30*time.Minute),
	}
	bookingSvc := booking.NewService(apptRepo, scheduleRepo, resolver, controller, policy, logger)

	brokers := config.String("KAFKA_BROKERS", "localhost:9092")
	publisher := outbox.NewPublisher(
		outboxRepo,
		kafkax.SplitBrokers(brokers),
		logger,
		config.Duration("OUTBOX_PUBLISH_INTERVAL", time.Second),
		config.Int("OUTBOX_BATCH_SIZE", 100),
	)
	go publisher.Run(ctx)

	m := metrics.NewBookingMetrics(nil)
	bookingHandler := handlers.NewBookingHandler(bookingSvc, m, logger)
	paymentHandler := handlers.NewPaymentHandler(controller, m, logger)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "postgres", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/reschedule", bookingHandler.Reschedule)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/confirm", bookingHandler.Confirm)
	mux.HandleFunc("/api/v1/appointments/complete", bookingHandler.Complete)
	mux.HandleFunc("/api/v1/payments/status", paymentHandler.Status)
	mux.HandleFunc("/api/v1/payments/cancel", paymentHandler.Cancel)
	mux.HandleFunc("/api/v1/payments/regenerate", paymentHandler.Regenerate)

	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var limitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		limitMW = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, serviceName).Middleware(logger, true)
	} else {
		limitMW = httpx.NewRateLimiter(rateLimit, time.Minute).Middleware()
	}

	origins := strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ",")
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
		limitMW,
		httpx.WithCORS(origins, []string{http.MethodGet, http.MethodPost, http.MethodOptions}),
	)

	port, err := config.Port("PORT", "8080")
	if err != nil {
		fatal(logger, "configuration error", err)
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(logger, "server failed", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
