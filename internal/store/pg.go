package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hospital-e/supply-service/internal/models"
)

// PGStore persists all service state into Postgres.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS stock_levels (
  hospital_id text NOT NULL,
  product_code text NOT NULL,
  current_stock_units integer NOT NULL,
  daily_consumption_units integer NOT NULL,
  days_of_supply numeric,
  reorder_threshold numeric NOT NULL,
  max_level integer NOT NULL,
  last_updated timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (hospital_id, product_code)
);
CREATE TABLE IF NOT EXISTS consumption_history (
  id bigserial PRIMARY KEY,
  hospital_id text NOT NULL,
  product_code text NOT NULL,
  consumption_date date NOT NULL,
  units_consumed integer NOT NULL,
  opening_stock integer NOT NULL,
  closing_stock integer NOT NULL,
  day_of_week text NOT NULL,
  is_weekend boolean NOT NULL,
  notes text,
  UNIQUE (hospital_id, product_code, consumption_date)
);
CREATE TABLE IF NOT EXISTS alerts (
  id uuid PRIMARY KEY,
  hospital_id text NOT NULL,
  product_code text NOT NULL,
  alert_type text NOT NULL,
  severity text NOT NULL,
  current_stock_units integer NOT NULL,
  daily_consumption_units integer NOT NULL,
  days_of_supply numeric NOT NULL,
  threshold numeric NOT NULL,
  acknowledged boolean NOT NULL DEFAULT FALSE,
  acknowledged_at timestamptz,
  resolved_at timestamptz,
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_alerts_open ON alerts (hospital_id, product_code) WHERE resolved_at IS NULL;
CREATE TABLE IF NOT EXISTS orders (
  order_id text PRIMARY KEY,
  command_id text NOT NULL UNIQUE,
  hospital_id text NOT NULL,
  product_code text NOT NULL,
  order_quantity integer NOT NULL,
  priority text NOT NULL,
  order_status text NOT NULL DEFAULT 'PENDING',
  warehouse_id text,
  estimated_delivery_date text,
  actual_delivery_date timestamptz,
  received_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_hospital_status ON orders (hospital_id, order_status);
CREATE TABLE IF NOT EXISTS event_log (
  id uuid PRIMARY KEY,
  event_type text NOT NULL,
  direction text NOT NULL,
  architecture text NOT NULL,
  status text NOT NULL,
  latency_ms bigint,
  payload text,
  error_message text,
  timestamp timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_event_log_timestamp ON event_log (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_event_log_latency ON event_log (architecture) WHERE latency_ms IS NOT NULL;
`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// days_of_supply is stored NULL while consumption is zero and stock remains;
// the numeric column cannot carry +Inf.
func daysParam(v float64) interface{} {
	if math.IsInf(v, 1) {
		return nil
	}
	return v
}

func scanStockLevel(row rowScanner) (models.StockLevel, error) {
	var (
		sl   models.StockLevel
		days sql.NullFloat64
	)
	if err := row.Scan(
		&sl.HospitalID,
		&sl.ProductCode,
		&sl.CurrentUnits,
		&sl.DailyConsumptionUnits,
		&days,
		&sl.ReorderThreshold,
		&sl.MaxLevel,
		&sl.LastUpdated,
	); err != nil {
		return models.StockLevel{}, err
	}
	if days.Valid {
		sl.DaysOfSupply = days.Float64
	} else {
		sl.DaysOfSupply = models.DaysOfSupply(sl.CurrentUnits, sl.DailyConsumptionUnits)
	}
	return sl, nil
}

func (s *PGStore) GetStockLevel(ctx context.Context, hospitalID, productCode string) (models.StockLevel, error) {
	const query = `
		SELECT hospital_id, product_code, current_stock_units, daily_consumption_units,
		       days_of_supply, reorder_threshold, max_level, last_updated
		FROM stock_levels
		WHERE hospital_id=$1 AND product_code=$2
	`
	sl, err := scanStockLevel(s.db.QueryRowContext(ctx, query, hospitalID, productCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StockLevel{}, ErrNotFound
		}
		return models.StockLevel{}, fmt.Errorf("get stock level: %w", err)
	}
	return sl, nil
}

func (s *PGStore) UpsertStockLevel(ctx context.Context, in StockLevelInput) (models.StockLevel, error) {
	const query = `
		INSERT INTO stock_levels
		  (hospital_id, product_code, current_stock_units, daily_consumption_units,
		   days_of_supply, reorder_threshold, max_level, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		ON CONFLICT (hospital_id, product_code) DO UPDATE SET
		  current_stock_units = EXCLUDED.current_stock_units,
		  daily_consumption_units = EXCLUDED.daily_consumption_units,
		  days_of_supply = EXCLUDED.days_of_supply,
		  reorder_threshold = EXCLUDED.reorder_threshold,
		  max_level = EXCLUDED.max_level,
		  last_updated = NOW()
		RETURNING hospital_id, product_code, current_stock_units, daily_consumption_units,
		          days_of_supply, reorder_threshold, max_level, last_updated
	`
	row := s.db.QueryRowContext(ctx, query,
		in.HospitalID, in.ProductCode, in.CurrentUnits, in.DailyConsumptionUnits,
		daysParam(in.DaysOfSupply), in.ReorderThreshold, in.MaxLevel)
	sl, err := scanStockLevel(row)
	if err != nil {
		return models.StockLevel{}, fmt.Errorf("upsert stock level: %w", err)
	}
	return sl, nil
}

func scanConsumption(row rowScanner) (models.ConsumptionRecord, error) {
	var (
		rec   models.ConsumptionRecord
		notes sql.NullString
	)
	if err := row.Scan(
		&rec.ID,
		&rec.HospitalID,
		&rec.ProductCode,
		&rec.ConsumptionDate,
		&rec.UnitsConsumed,
		&rec.OpeningStock,
		&rec.ClosingStock,
		&rec.DayOfWeek,
		&rec.IsWeekend,
		&notes,
	); err != nil {
		return models.ConsumptionRecord{}, err
	}
	rec.Notes = notes.String
	return rec, nil
}

func (s *PGStore) RecordConsumption(ctx context.Context, in ConsumptionInput) (models.ConsumptionRecord, error) {
	const query = `
		INSERT INTO consumption_history
		  (hospital_id, product_code, consumption_date, units_consumed,
		   opening_stock, closing_stock, day_of_week, is_weekend, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (hospital_id, product_code, consumption_date) DO UPDATE SET
		  units_consumed = EXCLUDED.units_consumed,
		  opening_stock = EXCLUDED.opening_stock,
		  closing_stock = EXCLUDED.closing_stock,
		  day_of_week = EXCLUDED.day_of_week,
		  is_weekend = EXCLUDED.is_weekend,
		  notes = EXCLUDED.notes
		RETURNING id, hospital_id, product_code, consumption_date, units_consumed,
		          opening_stock, closing_stock, day_of_week, is_weekend, notes
	`
	row := s.db.QueryRowContext(ctx, query,
		in.HospitalID, in.ProductCode, in.Date, in.UnitsConsumed,
		in.OpeningStock, in.ClosingStock, in.DayOfWeek, in.IsWeekend, nullIfEmpty(in.Notes))
	rec, err := scanConsumption(row)
	if err != nil {
		return models.ConsumptionRecord{}, fmt.Errorf("record consumption: %w", err)
	}
	return rec, nil
}

func (s *PGStore) ListConsumption(ctx context.Context, hospitalID, productCode string, limit int) ([]models.ConsumptionRecord, error) {
	const query = `
		SELECT id, hospital_id, product_code, consumption_date, units_consumed,
		       opening_stock, closing_stock, day_of_week, is_weekend, notes
		FROM consumption_history
		WHERE hospital_id=$1 AND product_code=$2
		ORDER BY consumption_date DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, hospitalID, productCode, normalizeLimit(limit, 30, 365))
	if err != nil {
		return nil, fmt.Errorf("list consumption: %w", err)
	}
	defer rows.Close()

	var records []models.ConsumptionRecord
	for rows.Next() {
		rec, err := scanConsumption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consumption: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consumption: %w", err)
	}
	return records, nil
}

func scanAlert(row rowScanner) (models.Alert, error) {
	var (
		a     models.Alert
		ackAt sql.NullTime
		resAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.HospitalID,
		&a.ProductCode,
		&a.Type,
		&a.Severity,
		&a.CurrentUnits,
		&a.DailyConsumption,
		&a.DaysOfSupply,
		&a.Threshold,
		&a.Acknowledged,
		&ackAt,
		&resAt,
		&a.CreatedAt,
	); err != nil {
		return models.Alert{}, err
	}
	if ackAt.Valid {
		t := ackAt.Time
		a.AcknowledgedAt = &t
	}
	if resAt.Valid {
		t := resAt.Time
		a.ResolvedAt = &t
	}
	return a, nil
}

const alertColumns = `id, hospital_id, product_code, alert_type, severity, current_stock_units,
	daily_consumption_units, days_of_supply, threshold, acknowledged, acknowledged_at, resolved_at, created_at`

func (s *PGStore) CreateAlert(ctx context.Context, in AlertInput) (models.Alert, error) {
	query := `
		INSERT INTO alerts
		  (id, hospital_id, product_code, alert_type, severity, current_stock_units,
		   daily_consumption_units, days_of_supply, threshold)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING ` + alertColumns
	row := s.db.QueryRowContext(ctx, query,
		uuid.New(), in.HospitalID, in.ProductCode, in.Type, in.Severity,
		in.CurrentUnits, in.DailyConsumption, in.DaysOfSupply, in.Threshold)
	a, err := scanAlert(row)
	if err != nil {
		return models.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return a, nil
}

func (s *PGStore) HasOpenAlert(ctx context.Context, hospitalID, productCode string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE hospital_id=$1 AND product_code=$2 AND resolved_at IS NULL
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, hospitalID, productCode).Scan(&exists); err != nil {
		return false, fmt.Errorf("check open alert: %w", err)
	}
	return exists, nil
}

func (s *PGStore) ListAlerts(ctx context.Context, hospitalID string, openOnly bool, limit int) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE hospital_id=$1`
	if openOnly {
		query += ` AND resolved_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, hospitalID, normalizeLimit(limit, 50, 500))
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

func (s *PGStore) AcknowledgeAlert(ctx context.Context, id uuid.UUID) (models.Alert, error) {
	query := `
		UPDATE alerts
		SET acknowledged = TRUE,
		    acknowledged_at = COALESCE(acknowledged_at, NOW())
		WHERE id=$1
		RETURNING ` + alertColumns
	a, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Alert{}, ErrNotFound
		}
		return models.Alert{}, fmt.Errorf("acknowledge alert: %w", err)
	}
	return a, nil
}

func (s *PGStore) ResolveOpenAlerts(ctx context.Context, hospitalID, productCode string) (int, error) {
	const query = `
		UPDATE alerts
		SET resolved_at = NOW()
		WHERE hospital_id=$1 AND product_code=$2 AND resolved_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, hospitalID, productCode)
	if err != nil {
		return 0, fmt.Errorf("resolve alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resolve alerts rows: %w", err)
	}
	return int(n), nil
}

func scanOrder(row rowScanner) (models.Order, error) {
	var (
		o         models.Order
		warehouse sql.NullString
		estimated sql.NullString
		actual    sql.NullTime
	)
	if err := row.Scan(
		&o.OrderID,
		&o.CommandID,
		&o.HospitalID,
		&o.ProductCode,
		&o.Quantity,
		&o.Priority,
		&o.Status,
		&warehouse,
		&estimated,
		&actual,
		&o.ReceivedAt,
	); err != nil {
		return models.Order{}, err
	}
	o.WarehouseID = warehouse.String
	o.EstimatedDeliveryDate = estimated.String
	if actual.Valid {
		t := actual.Time
		o.ActualDeliveryDate = &t
	}
	return o, nil
}

const orderColumns = `order_id, command_id, hospital_id, product_code, order_quantity, priority,
	order_status, warehouse_id, estimated_delivery_date, actual_delivery_date, received_at`

// CreateOrder relies on the unique constraint on command_id so the
// idempotency check and the insert are one atomic statement.
func (s *PGStore) CreateOrder(ctx context.Context, in OrderInput) (models.Order, bool, error) {
	query := `
		INSERT INTO orders
		  (order_id, command_id, hospital_id, product_code, order_quantity, priority,
		   order_status, warehouse_id, estimated_delivery_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (command_id) DO NOTHING
		RETURNING ` + orderColumns
	row := s.db.QueryRowContext(ctx, query,
		in.OrderID, in.CommandID, in.HospitalID, in.ProductCode, in.Quantity,
		in.Priority, models.OrderPending, nullIfEmpty(in.WarehouseID), nullIfEmpty(in.EstimatedDeliveryDate))
	o, err := scanOrder(row)
	if err == nil {
		return o, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, false, fmt.Errorf("insert order: %w", err)
	}

	// Conflict path: the command was already processed.
	existing := `SELECT ` + orderColumns + ` FROM orders WHERE command_id=$1`
	o, err = scanOrder(s.db.QueryRowContext(ctx, existing, in.CommandID))
	if err != nil {
		return models.Order{}, false, fmt.Errorf("fetch existing order: %w", err)
	}
	return o, false, nil
}

func (s *PGStore) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id=$1`
	o, err := scanOrder(s.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, ErrNotFound
		}
		return models.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *PGStore) ListOrders(ctx context.Context, hospitalID string, status models.OrderStatus, limit int) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE hospital_id=$1`
	args := []interface{}{hospitalID}
	if status != "" {
		query += ` AND order_status=$2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY received_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, normalizeLimit(limit, 50, 500))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func (s *PGStore) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (models.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current models.OrderStatus
	if err := tx.QueryRowContext(ctx, `SELECT order_status FROM orders WHERE order_id=$1 FOR UPDATE`, orderID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, ErrNotFound
		}
		return models.Order{}, fmt.Errorf("lock order: %w", err)
	}
	if !models.CanTransition(current, status) {
		return models.Order{}, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, status)
	}

	query := `
		UPDATE orders
		SET order_status=$2,
		    actual_delivery_date = CASE WHEN $2 = 'DELIVERED' THEN NOW() ELSE actual_delivery_date END
		WHERE order_id=$1
		RETURNING ` + orderColumns
	o, err := scanOrder(tx.QueryRowContext(ctx, query, orderID, status))
	if err != nil {
		return models.Order{}, fmt.Errorf("update order status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Order{}, fmt.Errorf("commit order status: %w", err)
	}
	return o, nil
}

func (s *PGStore) OrderStats(ctx context.Context, hospitalID string) (map[models.OrderStatus]int, error) {
	const query = `
		SELECT order_status, COUNT(*)
		FROM orders
		WHERE hospital_id=$1
		GROUP BY order_status
	`
	rows, err := s.db.QueryContext(ctx, query, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	defer rows.Close()

	stats := map[models.OrderStatus]int{}
	for rows.Next() {
		var (
			status models.OrderStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan order stats: %w", err)
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order stats: %w", err)
	}
	return stats, nil
}

func scanEvent(row rowScanner) (models.EventLogEntry, error) {
	var (
		e       models.EventLogEntry
		latency sql.NullInt64
		payload sql.NullString
		errMsg  sql.NullString
	)
	if err := row.Scan(
		&e.ID,
		&e.EventType,
		&e.Direction,
		&e.Architecture,
		&e.Status,
		&latency,
		&payload,
		&errMsg,
		&e.Timestamp,
	); err != nil {
		return models.EventLogEntry{}, err
	}
	if latency.Valid {
		v := latency.Int64
		e.LatencyMS = &v
	}
	e.Payload = payload.String
	e.ErrorMessage = errMsg.String
	return e, nil
}

const eventColumns = `id, event_type, direction, architecture, status, latency_ms, payload, error_message, timestamp`

func (s *PGStore) AppendEvent(ctx context.Context, in EventInput) (models.EventLogEntry, error) {
	query := `
		INSERT INTO event_log
		  (id, event_type, direction, architecture, status, latency_ms, payload, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING ` + eventColumns
	row := s.db.QueryRowContext(ctx, query,
		uuid.New(), in.EventType, in.Direction, in.Architecture, in.Status,
		in.LatencyMS, nullIfEmpty(in.Payload), nullIfEmpty(in.ErrorMessage))
	e, err := scanEvent(row)
	if err != nil {
		return models.EventLogEntry{}, fmt.Errorf("append event: %w", err)
	}
	return e, nil
}

func (s *PGStore) ListEvents(ctx context.Context, limit int) ([]models.EventLogEntry, error) {
	query := `SELECT ` + eventColumns + ` FROM event_log ORDER BY timestamp DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, normalizeLimit(limit, 50, 1000))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *PGStore) ListEventsBetween(ctx context.Context, from, to time.Time) ([]models.EventLogEntry, error) {
	query := `SELECT ` + eventColumns + ` FROM event_log WHERE timestamp >= $1 AND timestamp < $2 ORDER BY timestamp`
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list events between: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]models.EventLogEntry, error) {
	var events []models.EventLogEntry
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *PGStore) LatenciesByArchitecture(ctx context.Context) (map[models.Architecture][]int64, error) {
	const query = `
		SELECT architecture, latency_ms
		FROM event_log
		WHERE latency_ms IS NOT NULL
		ORDER BY latency_ms
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latencies: %w", err)
	}
	defer rows.Close()

	out := map[models.Architecture][]int64{}
	for rows.Next() {
		var (
			arch    models.Architecture
			latency int64
		)
		if err := rows.Scan(&arch, &latency); err != nil {
			return nil, fmt.Errorf("scan latency: %w", err)
		}
		out[arch] = append(out[arch], latency)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latencies: %w", err)
	}
	return out, nil
}

func nullIfEmpty(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
