package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-orders/internal/config"
	api "marketplace-orders/internal/controllers/http"
	"marketplace-orders/internal/infra"
	"marketplace-orders/internal/infra/gemini"
	"marketplace-orders/internal/infra/ghn"
	"marketplace-orders/internal/infra/kafka"
	"marketplace-orders/internal/infra/metrics"
	mmysql "marketplace-orders/internal/infra/mysql"
	"marketplace-orders/internal/infra/paypal"
	"marketplace-orders/internal/infra/rabbitmq"
	"marketplace-orders/internal/infra/redisx"
	"marketplace-orders/internal/repository"
	"marketplace-orders/internal/repository/memory"
	mysqlrepo "marketplace-orders/internal/repository/mysql"
	"marketplace-orders/internal/scheduler"
	"marketplace-orders/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {
	cfg := config.Load()
	metrics.Register()

	var repos repository.Set
	switch cfg.Storage {
	case "memory":
		log.Println("[storage] using in-memory store, data is lost on restart")
		repos = memory.NewStore().Set()
	default:
		db, err := mmysql.NewMySQL(cfg.MySQL)
		if err != nil {
			log.Fatalf("db: connect: %v", err)
		}
		repos = mysqlrepo.NewSet(db)
	}

	publisher, closePublisher := newPublisher(cfg)

	productClient := infra.NewProductClient(cfg.ProductServiceURL, cfg.ExternalTimeout)
	fees := ghn.NewClient(cfg.GHNBaseURL, cfg.GHNToken, cfg.GHNShopID, cfg.ExternalTimeout)
	gateway := paypal.NewClient(paypal.BaseURLForMode(cfg.PayPalMode), cfg.PayPalClientID, cfg.PayPalClientSecret, cfg.ExternalTimeout)
	model := gemini.NewClient(gemini.Options{
		URL:        cfg.GeminiURL,
		APIKey:     cfg.GeminiAPIKey,
		Timeout:    cfg.ExternalTimeout,
		MaxRetries: 3,
	})

	syncer := services.NewSynchronizer(repos.Orders, publisher)
	orders := services.NewOrderService(repos, productClient, fees, publisher, syncer, cfg.ShippingFeeRate)
	payments := services.NewPaymentService(repos.Orders, repos.Payments, gateway, publisher, syncer, services.PaymentConfig{
		ReturnBaseURL: cfg.PaymentReturnURL,
		StrictToken:   cfg.StrictGatewayToken,
		VerifyAfter:   cfg.PaymentVerifyAfter,
		AbandonAfter:  cfg.OrderPaymentDeadline,
	})
	shipping := services.NewShippingService(repos.Orders, repos.Shipping, syncer)
	chat := services.NewChatService(repos, model)
	sweeper := services.NewExpirationSweeper(repos.Orders, repos.Payments, publisher, cfg.OrderPaymentDeadline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	var locker scheduler.Locker
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DB:           0,
			PoolSize:     200,
			MinIdleConns: 20,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		})
		defer redisClient.Close()
		orders.SetRedisClient(redisClient)

		lockClient := redisx.New(cfg.RedisAddr)
		defer lockClient.Close()
		locker = redisx.NewLocker(lockClient)

		if len(cfg.ProductWarmupIDs) > 0 {
			go func() {
				if err := orders.WarmupProductCache(ctx, cfg.ProductWarmupIDs); err != nil {
					log.Printf("Failed to warm up cache: %v", err)
				} else {
					log.Println("Cache warmed up successfully")
				}
			}()
		}
	} else {
		log.Println("[redis] REDIS_ADDR not set, product cache and task locks disabled")
	}

	tasks := scheduler.New(locker)
	tasks.Register(scheduler.Task{Name: "order-expiration", Interval: cfg.SweepInterval, Run: sweeper.Run})
	tasks.Register(scheduler.Task{Name: "payment-verification", Interval: cfg.PaymentVerifyInterval, Run: payments.RunVerification})
	tasks.Start(ctx)

	handler := api.NewHandler(api.Services{
		Orders:   orders,
		Payments: payments,
		Shipping: shipping,
		Chat:     chat,
	}, redisClient, cfg.FrontendURL)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestID(), api.Logger())
	handler.RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Printf("Starting %s on port %s", cfg.ServiceName, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server run: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	tasks.Stop()

	// in-flight event publishes finish before the broker connection closes
	orders.Wait()
	payments.Wait()
	sweeper.Wait()
	syncer.Wait()
	closePublisher()
}

func newPublisher(cfg config.Config) (rabbitmq.PublisherInterface, func()) {
	switch cfg.EventBroker {
	case "kafka":
		p := kafka.NewProducer(cfg.KafkaBrokers, cfg.ServiceName, 1024)
		p.Start()
		return p, p.Close
	case "none":
		return rabbitmq.LogPublisher{}, func() {}
	default:
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.ServiceName)
		if err != nil {
			log.Fatalf("failed to init publisher: %v", err)
		}
		return p, p.Close
	}
}
