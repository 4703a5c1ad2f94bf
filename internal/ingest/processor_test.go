package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospital-e/supply-service/internal/models"
	"github.com/hospital-e/supply-service/internal/store"
)

func commandFixture() OrderCreationCommand {
	return OrderCreationCommand{
		CommandID:             "cmd-001",
		CommandType:           "CreateOrder",
		OrderID:               "ORD-2025-001",
		HospitalID:            "Hospital-E",
		ProductCode:           "PHYSIO-SALINE-500ML",
		OrderQuantity:         548,
		Priority:              models.SeverityHigh,
		EstimatedDeliveryDate: "2025-01-08",
		WarehouseID:           "WH-CENTRAL",
		Timestamp:             "2025-01-06T12:00:00Z",
	}
}

func newTestProcessor(st store.Store) *Processor {
	return NewProcessor(st, "Hospital-E", log.New(io.Discard, "", 0))
}

func TestProcessCommandCreatesOrder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newTestProcessor(st)

	require.NoError(t, p.ProcessCommand(ctx, commandFixture()))

	order, err := st.GetOrder(ctx, "ORD-2025-001")
	require.NoError(t, err)
	assert.Equal(t, "cmd-001", order.CommandID)
	assert.Equal(t, 548, order.Quantity)
	assert.Equal(t, models.SeverityHigh, order.Priority)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, "WH-CENTRAL", order.WarehouseID)

	events, err := st.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventOrderReceived, events[0].EventType)
	assert.Equal(t, models.DirectionIncoming, events[0].Direction)
	assert.Equal(t, models.ArchServerless, events[0].Architecture)
	assert.Equal(t, models.EventSuccess, events[0].Status)
}

func TestProcessCommandIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newTestProcessor(st)

	cmd := commandFixture()
	require.NoError(t, p.ProcessCommand(ctx, cmd))
	require.NoError(t, p.ProcessCommand(ctx, cmd))

	orders, err := st.ListOrders(ctx, "Hospital-E", "", 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1, "duplicate command must not create a second order")

	events, err := st.ListEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "duplicate command must not log a second event")
}

func TestProcessCommandFiltersOtherHospitals(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newTestProcessor(st)

	cmd := commandFixture()
	cmd.HospitalID = "Hospital-B"
	require.NoError(t, p.ProcessCommand(ctx, cmd))

	_, err := st.GetOrder(ctx, cmd.OrderID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// foreign traffic is expected, not a failure: nothing logged
	events, err := st.ListEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestProcessCommandValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OrderCreationCommand)
	}{
		{"missing commandId", func(c *OrderCreationCommand) { c.CommandID = "" }},
		{"wrong commandType", func(c *OrderCreationCommand) { c.CommandType = "DeleteOrder" }},
		{"missing orderId", func(c *OrderCreationCommand) { c.OrderID = "" }},
		{"missing hospitalId", func(c *OrderCreationCommand) { c.HospitalID = "" }},
		{"missing productCode", func(c *OrderCreationCommand) { c.ProductCode = "" }},
		{"zero quantity", func(c *OrderCreationCommand) { c.OrderQuantity = 0 }},
		{"negative quantity", func(c *OrderCreationCommand) { c.OrderQuantity = -5 }},
		{"invalid priority", func(c *OrderCreationCommand) { c.Priority = "CRITICAL" }},
		{"missing timestamp", func(c *OrderCreationCommand) { c.Timestamp = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := store.NewMemoryStore()
			p := newTestProcessor(st)

			cmd := commandFixture()
			tt.mutate(&cmd)
			require.NoError(t, p.ProcessCommand(ctx, cmd), "invalid command is terminal, not retried")

			orders, err := st.ListOrders(ctx, "Hospital-E", "", 0)
			require.NoError(t, err)
			assert.Empty(t, orders)

			events, err := st.ListEvents(ctx, 10)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, models.EventFailure, events[0].Status)
			assert.NotEmpty(t, events[0].ErrorMessage)
		})
	}
}

func TestProcessMessageSingleCommand(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newTestProcessor(st)

	body, err := json.Marshal(commandFixture())
	require.NoError(t, err)
	require.NoError(t, p.ProcessMessage(ctx, body))

	_, err = st.GetOrder(ctx, "ORD-2025-001")
	assert.NoError(t, err)
}

func TestProcessMessageBatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newTestProcessor(st)

	first := commandFixture()
	second := commandFixture()
	second.CommandID = "cmd-002"
	second.OrderID = "ORD-2025-002"

	body, err := json.Marshal([]OrderCreationCommand{first, second})
	require.NoError(t, err)
	require.NoError(t, p.ProcessMessage(ctx, body))

	orders, err := st.ListOrders(ctx, "Hospital-E", "", 0)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestProcessMessageMalformedJSON(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newTestProcessor(st)

	require.NoError(t, p.ProcessMessage(ctx, []byte(`{not json`)))

	events, err := st.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventFailure, events[0].Status)
	assert.Contains(t, events[0].ErrorMessage, "malformed command")
}
