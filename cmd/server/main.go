package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chit-chat/internal/config"
	"chit-chat/internal/database"
	"chit-chat/internal/engine"
	"chit-chat/internal/engine/actors"
	"chit-chat/internal/events"
	"chit-chat/internal/handlers"
	"chit-chat/internal/middleware"
	"chit-chat/internal/tracing"
	"chit-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Debug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
		log.Printf("Debug logging enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	environment := "development"
	if cfg.Server.Production {
		environment = "production"
	}
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, environment)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(c)
	}()

	// Initialize components
	metrics := utils.NewMetricsCollector()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open %s database: %v", cfg.Database.Type, err)
	}
	defer db.Close(context.Background())
	log.Printf("Connected to %s database", cfg.Database.Type)

	broker := events.NewBroker(events.WithMetrics(metrics))
	if cfg.Redis.Addr != "" {
		rdb := events.NewRedisClient(cfg.Redis.Addr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err)
		}
		relay := events.NewRedisRelay(rdb, cfg.Redis.Channel, broker)
		broker.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Printf("Redis relay stopped: %v", err)
			}
		}()
	}

	var opts []engine.Option
	if len(cfg.Kafka.Brokers) > 0 {
		sink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer sink.Close()
		opts = append(opts, engine.WithMessageSink(sink))
		log.Printf("Publishing messages to Kafka topic %s", cfg.Kafka.Topic)
	}
	chatEngine := engine.New(db, broker, metrics, opts...)

	// Initialize actor system
	system := actor.NewActorSystem()
	presence := actors.NewPresence(system, db, cfg.Presence.FlushInterval)
	presence.Start(ctx)
	defer presence.Stop()

	sessions := middleware.NewSessionManager(db, cfg.Session, cfg.Server.Production)
	sessions.SetPresence(presence)

	server := handlers.NewServer(chatEngine, sessions, metrics, cfg.AllowedOrigins)
	server.Debug = cfg.Debug
	if !cfg.Server.MetricsEnabled {
		server.Metrics = nil
	}

	handler := middleware.NewCORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins))(server.Routes())

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           otelhttp.NewHandler(handler, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       90 * time.Second,
		// No WriteTimeout: event streams stay open indefinitely.
	}

	go func() {
		log.Printf("Starting server on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
