package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/finbridge/settlement-service/internal/api"
	"github.com/finbridge/settlement-service/internal/config"
	"github.com/finbridge/settlement-service/internal/handler"
	"github.com/finbridge/settlement-service/internal/infrastructure/kafka"
	"github.com/finbridge/settlement-service/internal/infrastructure/redis"
	"github.com/finbridge/settlement-service/internal/observability"
	core "github.com/finbridge/settlement-service/internal/repository/postgres"
	service "github.com/finbridge/settlement-service/internal/services"
	"github.com/finbridge/settlement-service/internal/worker"
)

func main() {
	shutdown, _ := observability.Setup("settlement-service")
	defer shutdown(context.Background())

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	accountRepo := core.NewPostgresAccountRepository(db)
	transactionRepo := core.NewPostgresTransactionRepository(db)
	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()
	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	svc := service.NewLedgerService(
		accountRepo,
		transactionRepo,
		redisClient,
		producer,
		cfg.JWTSecret,
		cfg.OperatorPasswordHash,
		cfg.SettleMaxAttempts,
		cfg.SettleRetryBase,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accountConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "accounts", "settlement-service-accounts", accountRepo, transactionRepo)
	transactionConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "transactions", "settlement-service-transactions", accountRepo, transactionRepo)
	go accountConsumer.Consume(ctx)
	go transactionConsumer.Consume(ctx)
	defer accountConsumer.Close()
	defer transactionConsumer.Close()

	runner := worker.NewRunner(svc, cfg.SettleInterval)
	runner.Start(ctx)

	router := api.SetupRouter(handler.NewHandler(svc), redisClient, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
