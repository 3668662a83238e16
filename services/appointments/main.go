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
	"github.com/redis/go-redis/v9"

	httpmw "github.com/diagnosis/solaris-scheduler/internal/http/middleware"
	"github.com/diagnosis/solaris-scheduler/pkg/config"
	"github.com/diagnosis/solaris-scheduler/pkg/database"
	"github.com/diagnosis/solaris-scheduler/pkg/events"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/pkg/metrics"
	mw "github.com/diagnosis/solaris-scheduler/pkg/middleware"
	"github.com/diagnosis/solaris-scheduler/services/appointments/internal/domain"
	"github.com/diagnosis/solaris-scheduler/services/appointments/internal/handlers"
	"github.com/diagnosis/solaris-scheduler/services/appointments/internal/repository"
	"github.com/diagnosis/solaris-scheduler/services/appointments/internal/service"
)

func main() {
	cfg := config.Load()

	// Connect to database
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Without NATS, events stay inside this process.
	var publisher events.Publisher = events.BusPublisher{Bus: events.Default()}
	if cfg.NATS.Enabled {
		eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer eventBus.Close()
		publisher = eventBus
	}

	appointmentMetrics := metrics.NewAppointmentMetrics(nil)

	appointmentRepo := repository.NewAppointmentRepository(pool)
	idempotencyStore := repository.NewRedisIdempotencyStore(rdb)

	appointmentService := service.NewAppointmentService(
		appointmentRepo,
		publisher,
		domain.RulesFromConfig(cfg.Schedule),
		appointmentMetrics,
	)

	h := handlers.New(appointmentService)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("appointments"))
	r.Use(mw.Logging)
	r.Use(mw.Recover)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replay"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)
	r.Use(mw.Metrics(appointmentMetrics))

	r.Route("/api/appointments", func(r chi.Router) {
		r.Use(httpmw.RequireJWT(cfg.Auth.JWTSecret))
		r.Use(mw.IdempotencyMiddleware(idempotencyStore))
		h.Routes(r)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down appointments service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Appointments service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting appointments service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Appointments service error", "error", err)
		os.Exit(1)
	}
}
