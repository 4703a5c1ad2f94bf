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

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/hospital-e/supply-service/internal/config"
	"github.com/hospital-e/supply-service/internal/httpserver"
	"github.com/hospital-e/supply-service/internal/ingest"
	"github.com/hospital-e/supply-service/internal/metrics"
	"github.com/hospital-e/supply-service/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("db ping: %v", err)
	}

	st := store.NewPGStore(db)
	if err := st.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("schema init: %v", err)
	}

	processor := ingest.NewProcessor(st, cfg.HospitalID, nil)
	consumer := ingest.NewConsumer(ingest.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.OrderTopic,
		GroupID: cfg.ConsumerGroup,
	}, processor, nil)
	defer consumer.Close()

	aggregator := metrics.NewAggregator(st)
	server := httpserver.NewOrderServer(st, aggregator, cfg.HospitalID)

	httpServer := &http.Server{
		Addr:    cfg.OrderAddr,
		Handler: server.Router(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	go func() {
		log.Printf("order service listening on %s", cfg.OrderAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
