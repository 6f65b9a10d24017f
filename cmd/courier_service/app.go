package courierservice

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"courier-dispatch/internal/general/config"
	"courier-dispatch/internal/general/jwt"
	"courier-dispatch/internal/general/logger"
	"courier-dispatch/internal/general/postgres"
	"courier-dispatch/internal/general/rabbitmq"
	"courier-dispatch/internal/general/rediscache"
	"courier-dispatch/internal/general/websocket"
	"courier-dispatch/internal/software/courier/handler"
	"courier-dispatch/internal/software/courier/service"
)

func Run(ctx context.Context, prefetch, maxConcurrent int) error {
	// set up a new logger for the courier service with a static request ID for startup logs
	logger := logger.New("courier-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load configuration
	cfg, err := config.LoadFromFile("./config/config.yaml")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the RabbitMQ publisher
	pub := &rabbitmq.MQPublisher{Client: rmq}

	// connect to Redis for the last-known-position cache
	locations, err := rediscache.NewLocationCache(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer locations.Close()

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the repos and the change feed
	uow := postgres.NewUnitOfWork(pool)
	driverRepo := postgres.NewDriverRepo()
	deliveryRepo := postgres.NewDeliveryRepo()
	stopRepo := postgres.NewStopRepo()
	feed := postgres.NewChangeFeed(pool, logger)

	// set up the websocket hub
	ws := websocket.NewWebSocket(logger, jwtManager)

	// set up the courier service
	svc := service.NewCourierService(logger, cfg, uow, driverRepo, deliveryRepo, stopRepo, feed, locations, pub, rmq, ws, prefetch)
	ws.AttachService(svc)

	// run session recovery, then start the offer consumer and the change feed
	if err := svc.StartBackground(ctx); err != nil {
		logger.Error(ctx, "background_start_failed", "Failed to start background workers", err, nil)
		return err
	}

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.NewCourierHTTPHandler(svc, logger, jwtManager, ws)
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.CourierServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// log service start
	logger.Info(ctx, "service_started",
		fmt.Sprintf("Courier Service started on port %d", cfg.Services.CourierServicePort),
		map[string]any{"port": cfg.Services.CourierServicePort, "max_concurrent": maxConcurrent},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		// graceful HTTP shutdown on context cancel
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		// server returned a terminal error at startup or during run
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.CourierServicePort})
			return err
		}
		return nil
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
