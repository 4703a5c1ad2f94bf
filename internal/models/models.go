// Package models contains the canonical entities shared by the stock and order services.
package models

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// StockStatus is the classification of a stock level against its reorder threshold.
type StockStatus string

const (
	StatusAdequate   StockStatus = "ADEQUATE"
	StatusLow        StockStatus = "LOW"
	StatusCritical   StockStatus = "CRITICAL"
	StatusOutOfStock StockStatus = "OUT_OF_STOCK"
)

// AlertType identifies what kind of threshold breach raised an alert.
type AlertType string

const (
	AlertLowStock      AlertType = "LOW_STOCK"
	AlertCriticalStock AlertType = "CRITICAL_STOCK"
	AlertOutOfStock    AlertType = "OUT_OF_STOCK"
)

// Severity is the operator-facing priority of an alert or order.
type Severity string

const (
	SeverityNormal Severity = "NORMAL"
	SeverityHigh   Severity = "HIGH"
	SeverityUrgent Severity = "URGENT"
)

// OrderStatus is the lifecycle state of a replenishment order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderReceived  OrderStatus = "RECEIVED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Architecture tags which communication path produced an event-log entry.
type Architecture string

const (
	ArchSOA        Architecture = "SOA"
	ArchServerless Architecture = "SERVERLESS"
)

// EventType identifies the kind of communication attempt logged.
type EventType string

const (
	EventStockUpdateSent    EventType = "STOCK_UPDATE_SENT"
	EventInventoryPublished EventType = "INVENTORY_EVENT_PUBLISHED"
	EventOrderReceived      EventType = "ORDER_RECEIVED"
)

// Direction of a logged communication relative to this service.
type Direction string

const (
	DirectionOutgoing Direction = "OUTGOING"
	DirectionIncoming Direction = "INCOMING"
)

// EventStatus is the outcome of one communication attempt.
type EventStatus string

const (
	EventSuccess EventStatus = "SUCCESS"
	EventFailure EventStatus = "FAILURE"
	EventTimeout EventStatus = "TIMEOUT"
	EventRetry   EventStatus = "RETRY"
)

// StockLevel is the current inventory snapshot for one (hospital, product) pair.
type StockLevel struct {
	HospitalID            string    `json:"hospitalId"`
	ProductCode           string    `json:"productCode"`
	CurrentUnits          int       `json:"currentStockUnits"`
	DailyConsumptionUnits int       `json:"dailyConsumptionUnits"`
	DaysOfSupply          float64   `json:"daysOfSupply"`
	ReorderThreshold      float64   `json:"reorderThreshold"`
	MaxLevel              int       `json:"maxLevel"`
	LastUpdated           time.Time `json:"lastUpdated"`
}

// ConsumptionRecord is one day's consumption for (hospital, product, date).
type ConsumptionRecord struct {
	ID              int64     `json:"id"`
	HospitalID      string    `json:"hospitalId"`
	ProductCode     string    `json:"productCode"`
	ConsumptionDate time.Time `json:"consumptionDate"`
	UnitsConsumed   int       `json:"unitsConsumed"`
	OpeningStock    int       `json:"openingStock"`
	ClosingStock    int       `json:"closingStock"`
	DayOfWeek       string    `json:"dayOfWeek"`
	IsWeekend       bool      `json:"isWeekend"`
	Notes           string    `json:"notes,omitempty"`
}

// Alert is a raised threshold breach with a snapshot of the stock state that caused it.
type Alert struct {
	ID               uuid.UUID  `json:"id"`
	HospitalID       string     `json:"hospitalId"`
	ProductCode      string     `json:"productCode"`
	Type             AlertType  `json:"alertType"`
	Severity         Severity   `json:"severity"`
	CurrentUnits     int        `json:"currentStockUnits"`
	DailyConsumption int        `json:"dailyConsumptionUnits"`
	DaysOfSupply     float64    `json:"daysOfSupply"`
	Threshold        float64    `json:"threshold"`
	Acknowledged     bool       `json:"acknowledged"`
	AcknowledgedAt   *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedAt       *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Order is a replenishment order created by the warehouse. CommandID is the
// idempotency key: a command seen twice must not create two orders.
type Order struct {
	OrderID               string      `json:"orderId"`
	CommandID             string      `json:"commandId"`
	HospitalID            string      `json:"hospitalId"`
	ProductCode           string      `json:"productCode"`
	Quantity              int         `json:"orderQuantity"`
	Priority              Severity    `json:"priority"`
	Status                OrderStatus `json:"status"`
	WarehouseID           string      `json:"warehouseId,omitempty"`
	EstimatedDeliveryDate string      `json:"estimatedDeliveryDate,omitempty"`
	ActualDeliveryDate    *time.Time  `json:"actualDeliveryDate,omitempty"`
	ReceivedAt            time.Time   `json:"receivedAt"`
}

// EventLogEntry records one attempt to communicate on one path. Entries are
// append-only and never mutated.
type EventLogEntry struct {
	ID           uuid.UUID    `json:"id"`
	EventType    EventType    `json:"eventType"`
	Direction    Direction    `json:"direction"`
	Architecture Architecture `json:"architecture"`
	Status       EventStatus  `json:"status"`
	LatencyMS    *int64       `json:"latencyMs,omitempty"`
	Payload      string       `json:"payload,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// ErrInvalidTransition is returned when an order status update would skip or
// reverse the PENDING -> RECEIVED -> DELIVERED lifecycle.
var ErrInvalidTransition = errors.New("invalid order status transition")

// CanTransition reports whether an order may move from one status to another.
// CANCELLED is reachable from PENDING and RECEIVED only.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderPending:
		return to == OrderReceived || to == OrderCancelled
	case OrderReceived:
		return to == OrderDelivered || to == OrderCancelled
	default:
		return false
	}
}

// DaysOfSupply computes the primary threshold metric. With no consumption it
// is +Inf while stock remains, and 0 once the shelf is empty.
func DaysOfSupply(currentUnits, dailyConsumption int) float64 {
	if dailyConsumption <= 0 {
		if currentUnits > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return float64(currentUnits) / float64(dailyConsumption)
}

// Classify maps days of supply to a stock status. The reorder boundary is
// strict: exactly at the threshold is ADEQUATE.
func Classify(daysOfSupply, threshold float64) StockStatus {
	switch {
	case daysOfSupply <= 0:
		return StatusOutOfStock
	case daysOfSupply < 1.0:
		return StatusCritical
	case daysOfSupply < threshold:
		return StatusLow
	default:
		return StatusAdequate
	}
}

// AlertFor maps a breached stock status to its alert type and severity.
// ADEQUATE raises no alert and returns false.
func AlertFor(status StockStatus) (AlertType, Severity, bool) {
	switch status {
	case StatusOutOfStock:
		return AlertOutOfStock, SeverityUrgent, true
	case StatusCritical:
		return AlertCriticalStock, SeverityUrgent, true
	case StatusLow:
		return AlertLowStock, SeverityHigh, true
	default:
		return "", "", false
	}
}

// ValidPriority reports whether p is one of the wire-level order priorities.
func ValidPriority(p Severity) bool {
	return p == SeverityUrgent || p == SeverityHigh || p == SeverityNormal
}
