package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"backoffice-service/config"
	"backoffice-service/internal/api"
	"backoffice-service/internal/auth"
	"backoffice-service/internal/broker"
	"backoffice-service/internal/mailer"
	"backoffice-service/internal/redisclient"
	"backoffice-service/internal/service"
	"backoffice-service/internal/store"
	"backoffice-service/internal/store/memstore"
	"backoffice-service/internal/util"
	"backoffice-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.ServiceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting back-office service", zap.String("env", cfg.Server.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observ.OTLPEndpoint != "" {
		tp, err := util.InitTracer(ctx, cfg.Observ.ServiceName, cfg.Observ.OTLPEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	loc, err := time.LoadLocation(cfg.Business.Timezone)
	if err != nil {
		logger.Fatal("Invalid business timezone", zap.String("timezone", cfg.Business.Timezone), zap.Error(err))
	}
	policy, err := service.PolicyByName(cfg.Business.StatusPolicy)
	if err != nil {
		logger.Fatal("Invalid order status policy", zap.Error(err))
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	var wg sync.WaitGroup
	supervisor := store.NewSupervisor(db, cfg.Database.HealthInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		supervisor.Run(ctx)
	}()

	// Redis backs idempotency keys, the stats cache and reset codes. The
	// service runs without them when Redis is unreachable.
	var (
		cache service.OrderCache
		codes service.ResetCodeStore
	)
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, idempotency keys and password resets are disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		cache, codes = redisClient, redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	emailProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEmail)
	defer emailProducer.Close()
	publisher := broker.NewEventPublisher(orderProducer, emailProducer)

	paging := service.Paging{DefaultLimit: cfg.Business.DefaultPageSize, MaxLimit: cfg.Business.MaxPageSize}
	tokens := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenIssuer, cfg.Auth.TokenAudience, cfg.Auth.TokenTTL)
	hasher := auth.NewHasher(cfg.Auth.BcryptCost)

	svcs := api.Services{
		Orders: service.NewOrderService(db, cache, publisher, policy, service.OrderOptions{
			TxMaxAttempts:  cfg.Business.TxMaxAttempts,
			TxTimeout:      cfg.Business.TxTimeout,
			Location:       loc,
			IdempotencyTTL: cfg.Business.IdempotencyKeyTTL,
			StatsCacheTTL:  cfg.Business.StatsCacheTTL,
			Paging:         paging,
		}),
		Catalog:  service.NewCatalogService(db, paging),
		Clients:  service.NewClientService(db, paging),
		Accounts: service.NewAccountService(db, hasher, tokens, codes, publisher, cfg.Auth.ResetCodeTTL),
	}
	logger.Info("Services initialized", zap.String("status_policy", policy.Name()))

	sender := mailer.NewSender(cfg.Mail)
	go func() {
		if err := sender.Verify(); err != nil {
			logger.Warn("SMTP verification failed", zap.String("host", cfg.Mail.SMTPHost), zap.Error(err))
			return
		}
		logger.Info("SMTP server is ready", zap.String("host", cfg.Mail.SMTPHost))
	}()

	emailWorker := worker.NewEmailWorker(
		broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEmail, cfg.Kafka.ConsumerGroup+"-email"),
		sender,
	)
	orderNotifier := worker.NewOrderNotifier(
		broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup+"-notifier"),
		db,
		publisher,
	)
	for name, start := range map[string]func(context.Context) error{
		"email worker":   emailWorker.Start,
		"order notifier": orderNotifier.Start,
	} {
		wg.Add(1)
		go func(name string, start func(context.Context) error) {
			defer wg.Done()
			if err := start(ctx); err != nil {
				logger.Error("Worker stopped", zap.String("worker", name), zap.Error(err))
			}
		}(name, start)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(svcs, tokens, supervisor)
	handler.SetupRoutes(router, cfg.Server.CORSOrigins)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	wg.Wait()
	if err := emailWorker.Stop(); err != nil {
		logger.Warn("Error stopping email worker", zap.Error(err))
	}
	if err := orderNotifier.Stop(); err != nil {
		logger.Warn("Error stopping order notifier", zap.Error(err))
	}

	logger.Info("Server exited")
}

// openDatabase returns the configured store, with the schema applied
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (store.Database, error) {
	logger := util.GetLogger()

	switch cfg.Driver {
	case "memory":
		logger.Warn("Using the in-memory store, data is lost on restart")
		return memstore.New(), nil
	case "postgres":
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	db, err := store.NewStore(ctx, cfg.URL, store.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		LockTimeout:    cfg.LockTimeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Database connected")

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database schema applied")
	}
	return db, nil
}
