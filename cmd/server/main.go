package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/planmarket/storefront/internal/auth"
	"github.com/planmarket/storefront/internal/cache"
	"github.com/planmarket/storefront/internal/checkout"
	"github.com/planmarket/storefront/internal/confirm"
	"github.com/planmarket/storefront/internal/currency"
	"github.com/planmarket/storefront/internal/geo"
	"github.com/planmarket/storefront/internal/prefs"
	"github.com/planmarket/storefront/internal/repository"
	"github.com/planmarket/storefront/internal/service"
	"github.com/planmarket/storefront/internal/upstream"

	h "github.com/planmarket/storefront/internal/http"
)

type Config struct {
	HTTPPort        string
	MongoURI        string
	MongoDBName     string
	RedisAddr       string
	RedisPassword   string
	KafkaBrokers    []string
	GeoEndpoint     string
	OrdersAPIURL    string
	AuthAPIURL      string
	PaymentAPIURL   string
	PaymentSecret   string
	CheckoutSuccess string
	CheckoutCancel  string
	AuthSecret      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:     getEnv("MONGO_DB_NAME", "storefront"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:    strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		GeoEndpoint:     getEnv("GEO_ENDPOINT", "https://api.ipgeolocation.example/json"),
		OrdersAPIURL:    getEnv("ORDERS_API_URL", "http://localhost:8000"),
		AuthAPIURL:      getEnv("AUTH_API_URL", "http://localhost:8000"),
		PaymentAPIURL:   getEnv("PAYMENT_API_URL", "https://api.payments.example"),
		PaymentSecret:   getEnv("PAYMENT_SECRET_KEY", ""),
		CheckoutSuccess: getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:8080/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancel:  getEnv("CHECKOUT_CANCEL_URL", "http://localhost:8080/checkout/cancel"),
		AuthSecret:      getEnv("AUTH_JWT_SECRET", ""),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up MongoDB connection
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	repo := repository.NewMongoRepository(mongoDB)
	if err := repository.EnsureIndexes(ctx, mongoDB); err != nil {
		log.Printf("failed to create cart indexes: %v", err)
	}
	log.Printf("Connected to MongoDB at %s", cfg.MongoURI)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")

	cartCache := cache.NewRedisCache(redisClient)
	carts := service.NewCartService(repo, cartCache)

	converter := currency.NewConverter(currency.NewStaticRates())
	location := geo.NewDetector(redisClient, cfg.GeoEndpoint)
	prefStore := prefs.NewStore(redisClient)

	credStore := auth.NewRedisCredentialStore(redisClient)
	sessions := auth.NewManager(credStore, redisClient, []byte(cfg.AuthSecret))
	go sessions.Run(ctx)

	ordersAPI := upstream.NewOrdersClient(cfg.OrdersAPIURL, cfg.RequestTimeout)
	authAPI := upstream.NewAuthClient(cfg.AuthAPIURL, cfg.RequestTimeout)
	paymentAPI := upstream.NewPaymentClient(cfg.PaymentAPIURL, cfg.PaymentSecret, cfg.RequestTimeout)

	orchestrator := checkout.NewOrchestrator(ordersAPI, paymentAPI, sessions, cfg.CheckoutSuccess, cfg.CheckoutCancel)

	// Backend payment confirmations clear carts out-of-band.
	consumer := confirm.NewConsumer(repo, cartCache, cfg.KafkaBrokers...)
	defer consumer.Close()
	go consumer.Run(ctx)

	router := h.NewRouter(h.RouterDeps{
		Carts:          carts,
		Converter:      converter,
		Location:       location,
		Sessions:       sessions,
		Prefs:          prefStore,
		Orchestrator:   orchestrator,
		AuthAPI:        authAPI,
		OrdersAPI:      ordersAPI,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Storefront starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		log.Printf("mongo disconnect error: %v", err)
	}

	log.Println("server exited")
}
