package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookingpro/internal/api"
	"bookingpro/internal/audit"
	"bookingpro/internal/availability"
	"bookingpro/internal/booking"
	"bookingpro/internal/bootstrap"
	"bookingpro/internal/catalog"
	"bookingpro/internal/config"
	"bookingpro/internal/database"
	"bookingpro/internal/events"
	"bookingpro/internal/locks"
	"bookingpro/internal/metrics"
	"bookingpro/internal/notify"
	"bookingpro/internal/payments"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("BOOKINGPRO_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	cat := catalog.New(db)
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		cat.UseRedisCache(rdb, cfg.CacheTTL())
	}

	if cfg.Seed.Enabled {
		if err := bootstrap.Seed(ctx, db, cfg.Seed.Businesses, &logger); err != nil {
			logger.Fatal().Err(err).Msg("bootstrap seed failed")
		}
	}

	index := availability.NewIndex()
	if err := index.Load(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("rebuild availability index")
	}
	metrics.SetIndexSize(index.Size())
	logger.Info().Int("entries", index.Size()).Msg("availability index rebuilt")

	bus := events.NewBus()
	resourceLocks := locks.New(cfg.LockTimeout())
	svc := booking.NewService(db, cat, index, resourceLocks, bus, cfg.BookingMaxAdvance(), &logger)

	dispatcher := buildNotifier(cfg, &logger)
	notify.RegisterLifecycleAlerts(bus, dispatcher)

	gateway := buildGateway(cfg, &logger)
	reconciler := payments.NewReconciler(db, gateway, cat, dispatcher, &logger)
	reconciler.Register(bus)
	reconciler.BindConfirmer(svc)

	if cfg.Seed.Enabled && len(cfg.Seed.Bookings) > 0 {
		bootstrap.SeedBookings(ctx, svc, cfg.Seed.Bookings, &logger)
	}

	closeout := booking.NewCloseout(svc, 5*time.Minute, &logger)
	closeout.Start()
	defer closeout.Stop()

	if cfg.Audit.Enabled {
		auditSvc := audit.NewService(audit.Config{
			Interval:      time.Duration(cfg.Audit.IntervalHours) * time.Hour,
			Dir:           cfg.Audit.Path,
			RetentionDays: cfg.Audit.RetentionDays,
		}, db, db, &logger)
		auditSvc.Start()
		defer auditSvc.Stop()
	}

	go database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger).Start(ctx)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	server := api.NewHTTPServer(api.Config{
		Port:         cfg.API.Port,
		APIKey:       cfg.API.APIKey,
		TableSeating: cfg.TableSeating(),
	}, svc, cat, db, &logger)
	server.BindPayments(reconciler)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Msg("reservation engine started")
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("api server error")
	}
	dispatcher.Flush()
}

func buildGateway(cfg *config.Config, logger *zerolog.Logger) payments.Gateway {
	if cfg.Gateway.BaseURL != "" {
		return payments.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	}
	logger.Warn().Msg("no payment gateway configured, using in-process gateway")
	return payments.NewLocalGateway()
}

func buildNotifier(cfg *config.Config, logger *zerolog.Logger) *notify.Dispatcher {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.OperatorChatID != 0 {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.OperatorChatID)
		if err != nil {
			logger.Error().Err(err).Msg("telegram sender unavailable")
		} else {
			senders = append(senders, tg)
		}
	}
	if len(senders) == 0 {
		senders = append(senders, &notify.LogSender{Print: func(message string) {
			logger.Warn().Str("alert", message).Msg("operator alert")
		}})
	}
	return notify.NewDispatcher(senders, notify.Options{
		RatePerSecond: cfg.Notify.RatePerSecond,
		Burst:         cfg.Notify.Burst,
		MaxConcurrent: cfg.Notify.MaxConcurrent,
	}, logger)
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
