package store

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospital-e/supply-service/internal/models"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func stockRows(units, daily int, days interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"hospital_id", "product_code", "current_stock_units", "daily_consumption_units",
		"days_of_supply", "reorder_threshold", "max_level", "last_updated",
	}).AddRow("Hospital-E", "PHYSIO-SALINE-500ML", units, daily, days, 2.0, 680, time.Now())
}

func orderRows(orderID, commandID string, status models.OrderStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"order_id", "command_id", "hospital_id", "product_code", "order_quantity", "priority",
		"order_status", "warehouse_id", "estimated_delivery_date", "actual_delivery_date", "received_at",
	}).AddRow(orderID, commandID, "Hospital-E", "PHYSIO-SALINE-500ML", 548, "HIGH",
		string(status), "WH-CENTRAL", "2025-01-08", nil, time.Now())
}

func TestGetStockLevelNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM stock_levels").
		WithArgs("Hospital-E", "PHYSIO-SALINE-500ML").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetStockLevel(context.Background(), "Hospital-E", "PHYSIO-SALINE-500ML")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStockLevel(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO stock_levels").
		WithArgs("Hospital-E", "PHYSIO-SALINE-500ML", 132, 68, 132.0/68.0, 2.0, 680).
		WillReturnRows(stockRows(132, 68, 132.0/68.0))

	sl, err := s.UpsertStockLevel(context.Background(), StockLevelInput{
		HospitalID:            "Hospital-E",
		ProductCode:           "PHYSIO-SALINE-500ML",
		CurrentUnits:          132,
		DailyConsumptionUnits: 68,
		DaysOfSupply:          132.0 / 68.0,
		ReorderThreshold:      2.0,
		MaxLevel:              680,
	})
	require.NoError(t, err)
	assert.Equal(t, 132, sl.CurrentUnits)
	assert.InDelta(t, 132.0/68.0, sl.DaysOfSupply, 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStockLevelStoresNullForInfiniteSupply(t *testing.T) {
	s, mock := newMockStore(t)
	// +Inf cannot live in a numeric column; it goes in as NULL and is
	// recomputed on the way out.
	mock.ExpectQuery("INSERT INTO stock_levels").
		WithArgs("Hospital-E", "PHYSIO-SALINE-500ML", 200, 0, nil, 2.0, 680).
		WillReturnRows(stockRows(200, 0, nil))

	sl, err := s.UpsertStockLevel(context.Background(), StockLevelInput{
		HospitalID:            "Hospital-E",
		ProductCode:           "PHYSIO-SALINE-500ML",
		CurrentUnits:          200,
		DailyConsumptionUnits: 0,
		DaysOfSupply:          math.Inf(1),
		ReorderThreshold:      2.0,
		MaxLevel:              680,
	})
	require.NoError(t, err)
	assert.True(t, math.IsInf(sl.DaysOfSupply, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderInsertsNewOrder(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs("ORD-2025-001", "cmd-001", "Hospital-E", "PHYSIO-SALINE-500ML", 548,
			models.SeverityHigh, models.OrderPending, "WH-CENTRAL", "2025-01-08").
		WillReturnRows(orderRows("ORD-2025-001", "cmd-001", models.OrderPending))

	order, created, err := s.CreateOrder(context.Background(), OrderInput{
		OrderID:               "ORD-2025-001",
		CommandID:             "cmd-001",
		HospitalID:            "Hospital-E",
		ProductCode:           "PHYSIO-SALINE-500ML",
		Quantity:              548,
		Priority:              models.SeverityHigh,
		EstimatedDeliveryDate: "2025-01-08",
		WarehouseID:           "WH-CENTRAL",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ORD-2025-001", order.OrderID)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderConflictReturnsExisting(t *testing.T) {
	s, mock := newMockStore(t)
	// ON CONFLICT DO NOTHING yields no row; the existing order is fetched
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE command_id").
		WithArgs("cmd-001").
		WillReturnRows(orderRows("ORD-2025-001", "cmd-001", models.OrderPending))

	order, created, err := s.CreateOrder(context.Background(), OrderInput{
		OrderID:               "ORD-2025-001",
		CommandID:             "cmd-001",
		HospitalID:            "Hospital-E",
		ProductCode:           "PHYSIO-SALINE-500ML",
		Quantity:              548,
		Priority:              models.SeverityHigh,
		EstimatedDeliveryDate: "2025-01-08",
		WarehouseID:           "WH-CENTRAL",
	})
	require.NoError(t, err)
	assert.False(t, created, "duplicate command must not count as a new order")
	assert.Equal(t, "ORD-2025-001", order.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusRejectsInvalidTransition(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT order_status FROM orders").
		WithArgs("ORD-2025-001").
		WillReturnRows(sqlmock.NewRows([]string{"order_status"}).AddRow("DELIVERED"))
	mock.ExpectRollback()

	_, err := s.UpdateOrderStatus(context.Background(), "ORD-2025-001", models.OrderReceived)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT order_status FROM orders").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.UpdateOrderStatus(context.Background(), "missing", models.OrderReceived)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusDelivered(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT order_status FROM orders").
		WithArgs("ORD-2025-001").
		WillReturnRows(sqlmock.NewRows([]string{"order_status"}).AddRow("RECEIVED"))
	mock.ExpectQuery("UPDATE orders").
		WithArgs("ORD-2025-001", models.OrderDelivered).
		WillReturnRows(orderRows("ORD-2025-001", "cmd-001", models.OrderDelivered))
	mock.ExpectCommit()

	order, err := s.UpdateOrderStatus(context.Background(), "ORD-2025-001", models.OrderDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasOpenAlert(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("Hospital-E", "PHYSIO-SALINE-500ML").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	open, err := s.HasOpenAlert(context.Background(), "Hospital-E", "PHYSIO-SALINE-500ML")
	require.NoError(t, err)
	assert.True(t, open)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledgeAlertNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("UPDATE alerts").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := s.AcknowledgeAlert(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStats(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT order_status, COUNT").
		WithArgs("Hospital-E").
		WillReturnRows(sqlmock.NewRows([]string{"order_status", "count"}).
			AddRow("PENDING", 3).
			AddRow("DELIVERED", 7))

	stats, err := s.OrderStats(context.Background(), "Hospital-E")
	require.NoError(t, err)
	assert.Equal(t, 3, stats[models.OrderPending])
	assert.Equal(t, 7, stats[models.OrderDelivered])
	assert.NoError(t, mock.ExpectationsWereMet())
}
