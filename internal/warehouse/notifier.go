// Package warehouse holds the two notification channels to the central
// warehouse: a synchronous request/response client and an asynchronous
// publisher. Both are driven through the Notifier interface so the
// dispatcher can treat them uniformly.
package warehouse

import (
	"context"
	"time"

	"github.com/hospital-e/supply-service/internal/models"
)

// Breach is the stock context handed to both notification paths when a
// threshold breach is detected.
type Breach struct {
	HospitalID            string
	ProductCode           string
	CurrentUnits          int
	DailyConsumptionUnits int
	DaysOfSupply          float64
	Threshold             float64
	Timestamp             time.Time
}

// StockUpdateRequest is the synchronous-path wire format.
type StockUpdateRequest struct {
	HospitalID            string  `json:"hospitalId"`
	ProductCode           string  `json:"productCode"`
	CurrentStockUnits     int     `json:"currentStockUnits"`
	DailyConsumptionUnits int     `json:"dailyConsumptionUnits"`
	DaysOfSupply          float64 `json:"daysOfSupply"`
	Timestamp             string  `json:"timestamp"`
}

// StockUpdateResponse is the warehouse's reply on the synchronous path.
type StockUpdateResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	OrderTriggered bool   `json:"orderTriggered"`
	OrderID        string `json:"orderId,omitempty"`
}

// InventoryLowEvent is the asynchronous-path wire format.
type InventoryLowEvent struct {
	EventID               string  `json:"eventId"`
	EventType             string  `json:"eventType"`
	HospitalID            string  `json:"hospitalId"`
	ProductCode           string  `json:"productCode"`
	CurrentStockUnits     int     `json:"currentStockUnits"`
	DailyConsumptionUnits int     `json:"dailyConsumptionUnits"`
	DaysOfSupply          float64 `json:"daysOfSupply"`
	Threshold             float64 `json:"threshold"`
	Timestamp             string  `json:"timestamp"`
}

// Attempt records one failed try that preceded a notifier's final outcome.
type Attempt struct {
	LatencyMS int64
	Err       error
}

// Outcome is the uniform result the dispatcher collects from each path.
// LatencyMS is wall-clock from the final attempt's start to its completion.
type Outcome struct {
	Architecture models.Architecture
	EventType    models.EventType
	Status       models.EventStatus
	LatencyMS    int64
	Payload      string
	Err          error
	Retries      []Attempt
	Response     *StockUpdateResponse
}

// Notifier is one communication channel to the warehouse. Notify never
// returns an error; failures are carried in the Outcome so one path cannot
// abort the other.
type Notifier interface {
	Architecture() models.Architecture
	Notify(ctx context.Context, b Breach) Outcome
}

func latencySince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
