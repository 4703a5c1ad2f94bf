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

	"github.com/hospital-e/supply-service/internal/archive"
	"github.com/hospital-e/supply-service/internal/config"
	"github.com/hospital-e/supply-service/internal/dispatch"
	"github.com/hospital-e/supply-service/internal/httpserver"
	"github.com/hospital-e/supply-service/internal/metrics"
	"github.com/hospital-e/supply-service/internal/monitor"
	"github.com/hospital-e/supply-service/internal/store"
	"github.com/hospital-e/supply-service/internal/warehouse"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if cfg.WarehouseURL == "" {
		log.Fatalf("WAREHOUSE_URL required")
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

	httpNotifier, err := warehouse.NewHTTPNotifier(warehouse.HTTPNotifierConfig{
		BaseURL: cfg.WarehouseURL,
		Timeout: cfg.WarehouseTimeout,
		Retries: cfg.WarehouseRetries,
	})
	if err != nil {
		log.Fatalf("warehouse client init: %v", err)
	}
	publisher, err := warehouse.NewPublisher(warehouse.PublisherConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.InventoryTopic,
	})
	if err != nil {
		log.Fatalf("publisher init: %v", err)
	}
	defer publisher.Close()

	dispatcher := dispatch.New(st, []warehouse.Notifier{httpNotifier, publisher}, nil)

	source := monitor.NewSimulator(monitor.SimulatorConfig{
		Average:          cfg.DailyConsumptionAvg,
		Variation:        cfg.ConsumptionVariation,
		SpikeProbability: cfg.SpikeProbability,
		SpikeMultiplier:  cfg.SpikeMultiplier,
	})
	evaluator := monitor.New(st, source, dispatcher, monitor.Config{
		HospitalID:          cfg.HospitalID,
		ProductCode:         cfg.ProductCode,
		ReorderThreshold:    cfg.ReorderThreshold,
		DailyConsumptionAvg: cfg.DailyConsumptionAvg,
		InitialStock:        cfg.InitialStock,
		MaxStock:            cfg.MaxStock,
		Interval:            cfg.CheckInterval,
	}, nil)

	aggregator := metrics.NewAggregator(st)
	server := httpserver.NewStockServer(evaluator, st, aggregator, cfg.HospitalID, cfg.ProductCode)

	httpServer := &http.Server{
		Addr:    cfg.StockAddr,
		Handler: server.Router(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go evaluator.Run(ctx)

	if cfg.ArchiveBucket != "" {
		archiver, err := archive.NewS3Archiver(ctx, st, cfg.ArchiveBucket, cfg.ArchivePrefix, nil)
		if err != nil {
			log.Fatalf("archiver init: %v", err)
		}
		go archiver.Run(ctx, time.Hour)
	}

	go func() {
		log.Printf("stock service listening on %s", cfg.StockAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(cancel, httpServer)
}

func waitForShutdown(cancel context.CancelFunc, srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
