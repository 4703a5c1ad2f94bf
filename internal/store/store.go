// Package store is the persistence layer shared by the stock and order
// services. All durable state lives here; the in-process components hold no
// authoritative copies between cycles.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hospital-e/supply-service/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
)

type Store interface {
	Ping(ctx context.Context) error

	GetStockLevel(ctx context.Context, hospitalID, productCode string) (models.StockLevel, error)
	UpsertStockLevel(ctx context.Context, in StockLevelInput) (models.StockLevel, error)

	// RecordConsumption appends one day's consumption. Re-recording the same
	// (hospital, product, date) updates the existing row rather than inserting
	// a duplicate.
	RecordConsumption(ctx context.Context, in ConsumptionInput) (models.ConsumptionRecord, error)
	ListConsumption(ctx context.Context, hospitalID, productCode string, limit int) ([]models.ConsumptionRecord, error)

	CreateAlert(ctx context.Context, in AlertInput) (models.Alert, error)
	// HasOpenAlert reports whether an unresolved alert already exists for the
	// pair, which suppresses alert storms while stock stays below threshold.
	HasOpenAlert(ctx context.Context, hospitalID, productCode string) (bool, error)
	ListAlerts(ctx context.Context, hospitalID string, openOnly bool, limit int) ([]models.Alert, error)
	AcknowledgeAlert(ctx context.Context, id uuid.UUID) (models.Alert, error)
	ResolveOpenAlerts(ctx context.Context, hospitalID, productCode string) (int, error)

	// CreateOrder inserts an order keyed by its command id. The second return
	// is false when the command id was already seen and nothing was written.
	CreateOrder(ctx context.Context, in OrderInput) (models.Order, bool, error)
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	ListOrders(ctx context.Context, hospitalID string, status models.OrderStatus, limit int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error)
	OrderStats(ctx context.Context, hospitalID string) (map[models.OrderStatus]int, error)

	AppendEvent(ctx context.Context, in EventInput) (models.EventLogEntry, error)
	ListEvents(ctx context.Context, limit int) ([]models.EventLogEntry, error)
	ListEventsBetween(ctx context.Context, from, to time.Time) ([]models.EventLogEntry, error)
	LatenciesByArchitecture(ctx context.Context) (map[models.Architecture][]int64, error)
}

type StockLevelInput struct {
	HospitalID            string
	ProductCode           string
	CurrentUnits          int
	DailyConsumptionUnits int
	DaysOfSupply          float64
	ReorderThreshold      float64
	MaxLevel              int
}

type ConsumptionInput struct {
	HospitalID    string
	ProductCode   string
	Date          time.Time
	UnitsConsumed int
	OpeningStock  int
	ClosingStock  int
	DayOfWeek     string
	IsWeekend     bool
	Notes         string
}

type AlertInput struct {
	HospitalID       string
	ProductCode      string
	Type             models.AlertType
	Severity         models.Severity
	CurrentUnits     int
	DailyConsumption int
	DaysOfSupply     float64
	Threshold        float64
}

type OrderInput struct {
	OrderID               string
	CommandID             string
	HospitalID            string
	ProductCode           string
	Quantity              int
	Priority              models.Severity
	EstimatedDeliveryDate string
	WarehouseID           string
}

type EventInput struct {
	EventType    models.EventType
	Direction    models.Direction
	Architecture models.Architecture
	Status       models.EventStatus
	LatencyMS    *int64
	Payload      string
	ErrorMessage string
}

func normalizeLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
