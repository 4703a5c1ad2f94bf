// Package monitor runs the periodic stock evaluation cycle: consume, update
// the stock level, classify against the reorder threshold, and on breach
// raise an alert and invoke the dual-path dispatcher.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/hospital-e/supply-service/internal/models"
	"github.com/hospital-e/supply-service/internal/store"
	"github.com/hospital-e/supply-service/internal/warehouse"
)

// BreachDispatcher is the dispatcher capability the evaluator needs.
type BreachDispatcher interface {
	Dispatch(ctx context.Context, b warehouse.Breach) []warehouse.Outcome
}

type Config struct {
	HospitalID          string
	ProductCode         string
	ReorderThreshold    float64
	DailyConsumptionAvg int
	InitialStock        int
	MaxStock            int
	Interval            time.Duration
}

// Evaluator owns the single-writer discipline for its (hospital, product)
// stock row: the interval timer and manual triggers serialize on mu, so
// concurrent read-modify-write on the row cannot interleave.
type Evaluator struct {
	store      store.Store
	source     ConsumptionSource
	dispatcher BreachDispatcher
	cfg        Config
	logger     *log.Logger
	now        func() time.Time

	mu sync.Mutex
}

func New(st store.Store, source ConsumptionSource, dispatcher BreachDispatcher, cfg Config, logger *log.Logger) *Evaluator {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[monitor] ", log.LstdFlags)
	}
	return &Evaluator{
		store:      st,
		source:     source,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// PathOutcome is the per-channel communication summary surfaced to callers.
type PathOutcome struct {
	Architecture   models.Architecture `json:"architecture"`
	Status         models.EventStatus  `json:"status"`
	LatencyMS      int64               `json:"latencyMs"`
	OrderTriggered bool                `json:"orderTriggered,omitempty"`
	OrderID        string              `json:"orderId,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// CycleResult reports one evaluation cycle. DaysOfSupply is nil while the
// consumption rate is zero and stock remains.
type CycleResult struct {
	PreviousStock     int                `json:"previousStock"`
	Consumption       int                `json:"consumption"`
	CurrentStock      int                `json:"currentStock"`
	DaysOfSupply      *float64           `json:"daysOfSupply"`
	NoConsumption     bool               `json:"noConsumption,omitempty"`
	Status            models.StockStatus `json:"status"`
	ThresholdBreached bool               `json:"thresholdBreached"`
	AlertType         models.AlertType   `json:"alertType,omitempty"`
	Severity          models.Severity    `json:"severity,omitempty"`
	AlertCreated      bool               `json:"alertCreated"`
	Communication     []PathOutcome      `json:"communication,omitempty"`
}

// Run executes one cycle per interval until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	e.logger.Printf("starting stock monitor for %s / %s (threshold %.1f days, interval %s)",
		e.cfg.HospitalID, e.cfg.ProductCode, e.cfg.ReorderThreshold, e.cfg.Interval)
	for {
		if _, err := e.RunCycle(ctx); err != nil {
			e.logger.Printf("evaluation cycle: %v", err)
		}
		select {
		case <-ctx.Done():
			e.logger.Printf("stock monitor stopped")
			return
		case <-time.After(e.cfg.Interval):
		}
	}
}

// RunCycle evaluates once for today. Manual triggers call this directly,
// bypassing the timer but not the alert dedup rule.
func (e *Evaluator) RunCycle(ctx context.Context) (CycleResult, error) {
	return e.runCycleForDay(ctx, e.now())
}

// Simulate fast-forwards n consecutive days of consumption.
func (e *Evaluator) Simulate(ctx context.Context, days int) ([]CycleResult, error) {
	if days <= 0 {
		days = 1
	}
	start := e.now()
	results := make([]CycleResult, 0, days)
	for i := 0; i < days; i++ {
		res, err := e.runCycleForDay(ctx, start.AddDate(0, 0, i))
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Evaluator) runCycleForDay(ctx context.Context, day time.Time) (CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sl, err := e.loadOrInitStock(ctx)
	if err != nil {
		return CycleResult{}, err
	}

	consumed := e.source.UnitsForDay(day)
	newUnits := sl.CurrentUnits - consumed
	if newUnits < 0 {
		newUnits = 0
	}
	days := models.DaysOfSupply(newUnits, e.cfg.DailyConsumptionAvg)

	if _, err := e.store.UpsertStockLevel(ctx, store.StockLevelInput{
		HospitalID:            e.cfg.HospitalID,
		ProductCode:           e.cfg.ProductCode,
		CurrentUnits:          newUnits,
		DailyConsumptionUnits: e.cfg.DailyConsumptionAvg,
		DaysOfSupply:          days,
		ReorderThreshold:      e.cfg.ReorderThreshold,
		MaxLevel:              e.cfg.MaxStock,
	}); err != nil {
		return CycleResult{}, fmt.Errorf("update stock: %w", err)
	}

	if _, err := e.store.RecordConsumption(ctx, store.ConsumptionInput{
		HospitalID:    e.cfg.HospitalID,
		ProductCode:   e.cfg.ProductCode,
		Date:          day.Truncate(24 * time.Hour),
		UnitsConsumed: consumed,
		OpeningStock:  sl.CurrentUnits,
		ClosingStock:  newUnits,
		DayOfWeek:     day.Weekday().String(),
		IsWeekend:     IsWeekend(day),
		Notes:         "simulated consumption",
	}); err != nil {
		return CycleResult{}, fmt.Errorf("record consumption: %w", err)
	}

	status := models.Classify(days, e.cfg.ReorderThreshold)
	result := CycleResult{
		PreviousStock: sl.CurrentUnits,
		Consumption:   consumed,
		CurrentStock:  newUnits,
		Status:        status,
	}
	if math.IsInf(days, 1) {
		result.NoConsumption = true
	} else {
		d := days
		result.DaysOfSupply = &d
	}

	e.logger.Printf("stock %d -> %d units (consumed %d), status %s",
		sl.CurrentUnits, newUnits, consumed, status)

	alertType, severity, breached := models.AlertFor(status)
	if !breached {
		if n, err := e.store.ResolveOpenAlerts(ctx, e.cfg.HospitalID, e.cfg.ProductCode); err != nil {
			e.logger.Printf("resolve alerts: %v", err)
		} else if n > 0 {
			e.logger.Printf("stock recovered above threshold, resolved %d alert(s)", n)
		}
		return result, nil
	}

	result.ThresholdBreached = true
	result.AlertType = alertType
	result.Severity = severity

	open, err := e.store.HasOpenAlert(ctx, e.cfg.HospitalID, e.cfg.ProductCode)
	if err != nil {
		return result, fmt.Errorf("check open alert: %w", err)
	}
	if open {
		// Still below threshold from a previous cycle; the standing alert
		// already triggered the dual path.
		return result, nil
	}

	if _, err := e.store.CreateAlert(ctx, store.AlertInput{
		HospitalID:       e.cfg.HospitalID,
		ProductCode:      e.cfg.ProductCode,
		Type:             alertType,
		Severity:         severity,
		CurrentUnits:     newUnits,
		DailyConsumption: e.cfg.DailyConsumptionAvg,
		DaysOfSupply:     days,
		Threshold:        e.cfg.ReorderThreshold,
	}); err != nil {
		return result, fmt.Errorf("create alert: %w", err)
	}
	result.AlertCreated = true
	e.logger.Printf("THRESHOLD BREACH: %s (%s), %d units left", alertType, severity, newUnits)

	outcomes := e.dispatcher.Dispatch(ctx, warehouse.Breach{
		HospitalID:            e.cfg.HospitalID,
		ProductCode:           e.cfg.ProductCode,
		CurrentUnits:          newUnits,
		DailyConsumptionUnits: e.cfg.DailyConsumptionAvg,
		DaysOfSupply:          days,
		Threshold:             e.cfg.ReorderThreshold,
		Timestamp:             e.now(),
	})
	for _, out := range outcomes {
		po := PathOutcome{
			Architecture: out.Architecture,
			Status:       out.Status,
			LatencyMS:    out.LatencyMS,
		}
		if out.Err != nil {
			po.Error = out.Err.Error()
		}
		if out.Response != nil {
			po.OrderTriggered = out.Response.OrderTriggered
			po.OrderID = out.Response.OrderID
		}
		result.Communication = append(result.Communication, po)
	}
	return result, nil
}

func (e *Evaluator) loadOrInitStock(ctx context.Context) (models.StockLevel, error) {
	sl, err := e.store.GetStockLevel(ctx, e.cfg.HospitalID, e.cfg.ProductCode)
	if err == nil {
		return sl, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.StockLevel{}, fmt.Errorf("load stock: %w", err)
	}

	days := models.DaysOfSupply(e.cfg.InitialStock, e.cfg.DailyConsumptionAvg)
	sl, err = e.store.UpsertStockLevel(ctx, store.StockLevelInput{
		HospitalID:            e.cfg.HospitalID,
		ProductCode:           e.cfg.ProductCode,
		CurrentUnits:          e.cfg.InitialStock,
		DailyConsumptionUnits: e.cfg.DailyConsumptionAvg,
		DaysOfSupply:          days,
		ReorderThreshold:      e.cfg.ReorderThreshold,
		MaxLevel:              e.cfg.MaxStock,
	})
	if err != nil {
		return models.StockLevel{}, fmt.Errorf("initialize stock: %w", err)
	}
	e.logger.Printf("stock initialized: %d units", sl.CurrentUnits)
	return sl, nil
}

// StatusReport is the operator-facing snapshot of the stock level.
type StatusReport struct {
	HospitalID       string             `json:"hospitalId"`
	ProductCode      string             `json:"productCode"`
	CurrentStock     int                `json:"currentStock"`
	DailyConsumption int                `json:"dailyConsumption"`
	DaysOfSupply     *float64           `json:"daysOfSupply"`
	NoConsumption    bool               `json:"noConsumption,omitempty"`
	Threshold        float64            `json:"threshold"`
	Status           models.StockStatus `json:"status"`
	LastUpdated      time.Time          `json:"lastUpdated"`
}

// Status reads the current stock row and classifies it without mutating
// anything.
func (e *Evaluator) Status(ctx context.Context) (StatusReport, error) {
	sl, err := e.store.GetStockLevel(ctx, e.cfg.HospitalID, e.cfg.ProductCode)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{
		HospitalID:       sl.HospitalID,
		ProductCode:      sl.ProductCode,
		CurrentStock:     sl.CurrentUnits,
		DailyConsumption: sl.DailyConsumptionUnits,
		Threshold:        sl.ReorderThreshold,
		Status:           models.Classify(sl.DaysOfSupply, sl.ReorderThreshold),
		LastUpdated:      sl.LastUpdated,
	}
	if math.IsInf(sl.DaysOfSupply, 1) {
		report.NoConsumption = true
	} else {
		d := sl.DaysOfSupply
		report.DaysOfSupply = &d
	}
	return report, nil
}
