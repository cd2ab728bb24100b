package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/opuscart/basket/internal/basket"
	"github.com/opuscart/basket/internal/storage"
)

type config struct {
	HTTPPort        string
	StorageBackend  string
	RedisAddr       string
	RedisPassword   string
	PostgresDSN     string
	MongoURI        string
	MongoDBName     string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *config {
	return &config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		StorageBackend:  getEnv("BASKET_STORAGE", "memory"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		PostgresDSN:     getEnv("POSTGRES_DSN", "host=localhost port=5432 user=basket password=basket dbname=basket sslmode=disable"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:     getEnv("MONGO_DB_NAME", "basketdb"),
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

func buildStorage(ctx context.Context, cfg *config) (basket.Storage, func(), error) {
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemory(), func() {}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		log.Printf("connected to redis at %s", cfg.RedisAddr)
		return storage.NewRedis(client, storage.WithTTL(24*time.Hour)),
			func() { client.Close() }, nil

	case "postgres":
		db, err := storage.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("connected to postgres")
		return storage.NewPostgres(db), func() { db.Close() }, nil

	case "mongo":
		db, err := storage.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("connected to MongoDB at %s", cfg.MongoURI)
		return storage.NewMongo(db),
			func() { db.Client().Disconnect(ctx) }, nil
	}
	return nil, nil, errors.New("BASKET_STORAGE must be one of memory, redis, postgres, mongo")
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	store, closeStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to set up %s storage: %v", cfg.StorageBackend, err)
	}
	defer closeStorage()

	handler := newBasketHandler(store, newCatalog(), newOrderBook())

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/basket", func(r chi.Router) {
		r.Get("/", handler.getBasket)
		r.Delete("/", handler.clearBasket)
		r.Post("/items", handler.addItem)
		r.Patch("/items/{id}", handler.updateQuantity)
		r.Delete("/items/{id}", handler.removeItem)
		r.Post("/discounts", handler.applyDiscount)
		r.Post("/order", handler.createOrder)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("basketd starting on :%s (%s storage)", cfg.HTTPPort, cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down basketd...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Println("basketd exited")
}
