package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything both services read from the environment.
type Config struct {
	StockAddr string
	OrderAddr string

	DatabaseURL string

	HospitalID          string
	ProductCode         string
	ReorderThreshold    float64
	DailyConsumptionAvg int
	InitialStock        int
	MaxStock            int

	CheckInterval        time.Duration
	ConsumptionVariation float64
	SpikeProbability     float64
	SpikeMultiplier      float64

	WarehouseURL     string
	WarehouseTimeout time.Duration
	WarehouseRetries int

	KafkaBrokers   []string
	InventoryTopic string
	OrderTopic     string
	ConsumerGroup  string

	ArchiveBucket string
	ArchivePrefix string
}

const (
	defaultStockAddr     = ":8081"
	defaultOrderAddr     = ":8082"
	defaultHospitalID    = "Hospital-E"
	defaultProductCode   = "PHYSIO-SALINE-500ML"
	defaultThreshold     = 2.0
	defaultDailyAvg      = 68
	defaultInitialStock  = 200
	defaultMaxStock      = 680
	defaultCheckInterval = 60 * time.Second
	defaultVariation     = 0.15
	defaultSpikeProb     = 0.05
	defaultSpikeMult     = 1.5
	defaultTimeout       = 5 * time.Second
	defaultInventory     = "inventory-low-events"
	defaultOrders        = "order-commands"
	defaultGroup         = "hospital-e-consumer"
)

func Load() (Config, error) {
	cfg := Config{
		StockAddr:            getEnv("STOCK_ADDR", defaultStockAddr),
		OrderAddr:            getEnv("ORDER_ADDR", defaultOrderAddr),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		HospitalID:           getEnv("HOSPITAL_ID", defaultHospitalID),
		ProductCode:          getEnv("PRODUCT_CODE", defaultProductCode),
		ReorderThreshold:     getFloat("REORDER_THRESHOLD", defaultThreshold),
		DailyConsumptionAvg:  getInt("DAILY_CONSUMPTION_AVG", defaultDailyAvg),
		InitialStock:         getInt("INITIAL_STOCK", defaultInitialStock),
		MaxStock:             getInt("MAX_STOCK", defaultMaxStock),
		CheckInterval:        getDuration("STOCK_CHECK_INTERVAL", defaultCheckInterval),
		ConsumptionVariation: getFloat("CONSUMPTION_VARIATION", defaultVariation),
		SpikeProbability:     getFloat("SPIKE_PROBABILITY", defaultSpikeProb),
		SpikeMultiplier:      getFloat("SPIKE_MULTIPLIER", defaultSpikeMult),
		WarehouseURL:         os.Getenv("WAREHOUSE_URL"),
		WarehouseTimeout:     getDuration("WAREHOUSE_TIMEOUT", defaultTimeout),
		WarehouseRetries:     getInt("WAREHOUSE_RETRIES", 0),
		KafkaBrokers:         splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		InventoryTopic:       getEnv("INVENTORY_TOPIC", defaultInventory),
		OrderTopic:           getEnv("ORDER_TOPIC", defaultOrders),
		ConsumerGroup:        getEnv("CONSUMER_GROUP", defaultGroup),
		ArchiveBucket:        os.Getenv("EVENTLOG_ARCHIVE_BUCKET"),
		ArchivePrefix:        getEnv("EVENTLOG_ARCHIVE_PREFIX", "hospital-e"),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL required")
	}
	if cfg.ReorderThreshold <= 0 {
		return Config{}, fmt.Errorf("REORDER_THRESHOLD must be positive")
	}
	if cfg.DailyConsumptionAvg < 0 {
		return Config{}, fmt.Errorf("DAILY_CONSUMPTION_AVG must not be negative")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// bare integers are treated as seconds
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
