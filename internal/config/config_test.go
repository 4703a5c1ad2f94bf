package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/supply")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.StockAddr)
	assert.Equal(t, ":8082", cfg.OrderAddr)
	assert.Equal(t, "Hospital-E", cfg.HospitalID)
	assert.Equal(t, "PHYSIO-SALINE-500ML", cfg.ProductCode)
	assert.Equal(t, 2.0, cfg.ReorderThreshold)
	assert.Equal(t, 68, cfg.DailyConsumptionAvg)
	assert.Equal(t, 200, cfg.InitialStock)
	assert.Equal(t, 680, cfg.MaxStock)
	assert.Equal(t, 60*time.Second, cfg.CheckInterval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "inventory-low-events", cfg.InventoryTopic)
	assert.Equal(t, "order-commands", cfg.OrderTopic)
	assert.Equal(t, "hospital-e-consumer", cfg.ConsumerGroup)
	assert.Equal(t, 0, cfg.WarehouseRetries)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/supply")
	t.Setenv("REORDER_THRESHOLD", "3.5")
	t.Setenv("STOCK_CHECK_INTERVAL", "30")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3.5, cfg.ReorderThreshold)
	assert.Equal(t, 30*time.Second, cfg.CheckInterval, "bare integers are seconds")
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsNonPositiveThreshold(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/supply")
	t.Setenv("REORDER_THRESHOLD", "-1")

	_, err := Load()
	assert.Error(t, err)
}
