package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hospital-e/supply-service/internal/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	stock       map[string]models.StockLevel
	consumption map[string]models.ConsumptionRecord
	alerts      map[uuid.UUID]models.Alert
	orders      map[string]models.Order // keyed by command id
	events      []models.EventLogEntry
	nextConsID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stock:       map[string]models.StockLevel{},
		consumption: map[string]models.ConsumptionRecord{},
		alerts:      map[uuid.UUID]models.Alert{},
		orders:      map[string]models.Order{},
	}
}

func stockKey(hospitalID, productCode string) string {
	return hospitalID + "/" + productCode
}

func dayKey(hospitalID, productCode string, date time.Time) string {
	return hospitalID + "/" + productCode + "/" + date.UTC().Format("2006-01-02")
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) GetStockLevel(ctx context.Context, hospitalID, productCode string) (models.StockLevel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sl, ok := m.stock[stockKey(hospitalID, productCode)]
	if !ok {
		return models.StockLevel{}, ErrNotFound
	}
	return sl, nil
}

func (m *MemoryStore) UpsertStockLevel(ctx context.Context, in StockLevelInput) (models.StockLevel, error) {
	sl := models.StockLevel{
		HospitalID:            in.HospitalID,
		ProductCode:           in.ProductCode,
		CurrentUnits:          in.CurrentUnits,
		DailyConsumptionUnits: in.DailyConsumptionUnits,
		DaysOfSupply:          in.DaysOfSupply,
		ReorderThreshold:      in.ReorderThreshold,
		MaxLevel:              in.MaxLevel,
		LastUpdated:           time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[stockKey(in.HospitalID, in.ProductCode)] = sl
	return sl, nil
}

func (m *MemoryStore) RecordConsumption(ctx context.Context, in ConsumptionInput) (models.ConsumptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey(in.HospitalID, in.ProductCode, in.Date)
	rec, ok := m.consumption[key]
	if !ok {
		m.nextConsID++
		rec = models.ConsumptionRecord{ID: m.nextConsID}
	}
	rec.HospitalID = in.HospitalID
	rec.ProductCode = in.ProductCode
	rec.ConsumptionDate = in.Date
	rec.UnitsConsumed = in.UnitsConsumed
	rec.OpeningStock = in.OpeningStock
	rec.ClosingStock = in.ClosingStock
	rec.DayOfWeek = in.DayOfWeek
	rec.IsWeekend = in.IsWeekend
	rec.Notes = in.Notes
	m.consumption[key] = rec
	return rec, nil
}

func (m *MemoryStore) ListConsumption(ctx context.Context, hospitalID, productCode string, limit int) ([]models.ConsumptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []models.ConsumptionRecord
	for _, rec := range m.consumption {
		if rec.HospitalID == hospitalID && rec.ProductCode == productCode {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ConsumptionDate.After(records[j].ConsumptionDate)
	})
	limit = normalizeLimit(limit, 30, 365)
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *MemoryStore) CreateAlert(ctx context.Context, in AlertInput) (models.Alert, error) {
	a := models.Alert{
		ID:               uuid.New(),
		HospitalID:       in.HospitalID,
		ProductCode:      in.ProductCode,
		Type:             in.Type,
		Severity:         in.Severity,
		CurrentUnits:     in.CurrentUnits,
		DailyConsumption: in.DailyConsumption,
		DaysOfSupply:     in.DaysOfSupply,
		Threshold:        in.Threshold,
		CreatedAt:        time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.ID] = a
	return a, nil
}

func (m *MemoryStore) HasOpenAlert(ctx context.Context, hospitalID, productCode string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.alerts {
		if a.HospitalID == hospitalID && a.ProductCode == productCode && a.ResolvedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListAlerts(ctx context.Context, hospitalID string, openOnly bool, limit int) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var alerts []models.Alert
	for _, a := range m.alerts {
		if a.HospitalID != hospitalID {
			continue
		}
		if openOnly && a.ResolvedAt != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	limit = normalizeLimit(limit, 50, 500)
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (m *MemoryStore) AcknowledgeAlert(ctx context.Context, id uuid.UUID) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return models.Alert{}, ErrNotFound
	}
	a.Acknowledged = true
	if a.AcknowledgedAt == nil {
		now := time.Now().UTC()
		a.AcknowledgedAt = &now
	}
	m.alerts[id] = a
	return a, nil
}

func (m *MemoryStore) ResolveOpenAlerts(ctx context.Context, hospitalID, productCode string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	resolved := 0
	for id, a := range m.alerts {
		if a.HospitalID == hospitalID && a.ProductCode == productCode && a.ResolvedAt == nil {
			t := now
			a.ResolvedAt = &t
			m.alerts[id] = a
			resolved++
		}
	}
	return resolved, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, in OrderInput) (models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.orders[in.CommandID]; ok {
		return existing, false, nil
	}
	o := models.Order{
		OrderID:               in.OrderID,
		CommandID:             in.CommandID,
		HospitalID:            in.HospitalID,
		ProductCode:           in.ProductCode,
		Quantity:              in.Quantity,
		Priority:              in.Priority,
		Status:                models.OrderPending,
		WarehouseID:           in.WarehouseID,
		EstimatedDeliveryDate: in.EstimatedDeliveryDate,
		ReceivedAt:            time.Now().UTC(),
	}
	m.orders[in.CommandID] = o
	return o, true, nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.OrderID == orderID {
			return o, nil
		}
	}
	return models.Order{}, ErrNotFound
}

func (m *MemoryStore) ListOrders(ctx context.Context, hospitalID string, status models.OrderStatus, limit int) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var orders []models.Order
	for _, o := range m.orders {
		if o.HospitalID != hospitalID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ReceivedAt.After(orders[j].ReceivedAt)
	})
	limit = normalizeLimit(limit, 50, 500)
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (m *MemoryStore) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, o := range m.orders {
		if o.OrderID != orderID {
			continue
		}
		if !models.CanTransition(o.Status, status) {
			return models.Order{}, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, o.Status, status)
		}
		o.Status = status
		if status == models.OrderDelivered {
			now := time.Now().UTC()
			o.ActualDeliveryDate = &now
		}
		m.orders[key] = o
		return o, nil
	}
	return models.Order{}, ErrNotFound
}

func (m *MemoryStore) OrderStats(ctx context.Context, hospitalID string) (map[models.OrderStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := map[models.OrderStatus]int{}
	for _, o := range m.orders {
		if o.HospitalID == hospitalID {
			stats[o.Status]++
		}
	}
	return stats, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, in EventInput) (models.EventLogEntry, error) {
	e := models.EventLogEntry{
		ID:           uuid.New(),
		EventType:    in.EventType,
		Direction:    in.Direction,
		Architecture: in.Architecture,
		Status:       in.Status,
		Payload:      in.Payload,
		ErrorMessage: in.ErrorMessage,
		Timestamp:    time.Now().UTC(),
	}
	if in.LatencyMS != nil {
		v := *in.LatencyMS
		e.LatencyMS = &v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return e, nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, limit int) ([]models.EventLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit = normalizeLimit(limit, 50, 1000)
	events := make([]models.EventLogEntry, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(events) < limit; i-- {
		events = append(events, m.events[i])
	}
	return events, nil
}

func (m *MemoryStore) ListEventsBetween(ctx context.Context, from, to time.Time) ([]models.EventLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []models.EventLogEntry
	for _, e := range m.events {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			events = append(events, e)
		}
	}
	return events, nil
}

func (m *MemoryStore) LatenciesByArchitecture(ctx context.Context) (map[models.Architecture][]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[models.Architecture][]int64{}
	for _, e := range m.events {
		if e.LatencyMS != nil {
			out[e.Architecture] = append(out[e.Architecture], *e.LatencyMS)
		}
	}
	for _, latencies := range out {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	}
	return out, nil
}
