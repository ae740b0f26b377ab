package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-service/config"
	"storefront-service/internal/api"
	"storefront-service/internal/backend"
	"storefront-service/internal/broker"
	"storefront-service/internal/cartcache"
	"storefront-service/internal/session"
	"storefront-service/internal/shipping"
	"storefront-service/internal/util"
	"storefront-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer("storefront-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	redisStore, err := cartcache.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Session.CartRetention)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisStore.Close()
	log.Println("Redis connected")

	pgStore, err := cartcache.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pgStore.Close()
	log.Println("Database connected")

	snapshots := cartcache.NewChain(redisStore, pgStore)

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCart)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	shopClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)

	routeProvider := shipping.NewOSRMProvider(cfg.Shipping.ProviderURL, cfg.Shipping.ProviderTimeout)
	distanceService := shipping.NewDistanceService(routeProvider)
	quoter := shipping.NewQuoter(shopClient, distanceService, cfg.Shipping.CacheTTL)

	sessions := session.NewManager(session.Deps{
		Backend:          shopClient,
		Reporter:         shopClient,
		Snapshots:        snapshots,
		Markers:          redisStore,
		Events:           eventPublisher,
		Abandons:         eventPublisher,
		AbandonIdleDelay: cfg.Abandon.IdleDelay,
		AbandonCooldown:  cfg.Abandon.Cooldown,
	}, cfg.Session.IdleTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go sessions.RunJanitor(workerCtx, time.Minute)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				purged, err := pgStore.PurgeOlderThan(workerCtx, cfg.Session.CartRetention)
				if err != nil {
					log.Printf("Snapshot purge error: %v", err)
				} else if purged > 0 {
					log.Printf("Purged %d expired cart snapshots", purged)
				}
			}
		}
	}()

	cartConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCart, cfg.Kafka.ConsumerGroup)
	cartWorker := worker.NewCartEventWorker(cartConsumer, sessions)
	go func() {
		if err := cartWorker.Start(workerCtx); err != nil {
			log.Printf("Cart event worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(sessions, quoter, redisStore, eventPublisher, cfg.Session.DraftTTL)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	cartWorker.Stop()

	log.Println("Server exited")
}
