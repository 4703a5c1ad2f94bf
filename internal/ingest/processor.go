// Package ingest consumes order-creation commands from the warehouse and
// reconciles them into the orders table idempotently.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/hospital-e/supply-service/internal/models"
	"github.com/hospital-e/supply-service/internal/store"
)

// OrderCreationCommand is the consumed wire format. CommandID is the
// idempotency key.
type OrderCreationCommand struct {
	CommandID             string          `json:"commandId"`
	CommandType           string          `json:"commandType"`
	OrderID               string          `json:"orderId"`
	HospitalID            string          `json:"hospitalId"`
	ProductCode           string          `json:"productCode"`
	OrderQuantity         int             `json:"orderQuantity"`
	Priority              models.Severity `json:"priority"`
	EstimatedDeliveryDate string          `json:"estimatedDeliveryDate"`
	WarehouseID           string          `json:"warehouseId"`
	Timestamp             string          `json:"timestamp"`
}

// Processor validates, filters, and persists inbound commands. Validation
// failures are terminal for that message only; duplicates are no-ops.
type Processor struct {
	store      store.Store
	hospitalID string
	logger     *log.Logger
}

func NewProcessor(st store.Store, hospitalID string, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(os.Stdout, "[ingest] ", log.LstdFlags)
	}
	return &Processor{store: st, hospitalID: hospitalID, logger: logger}
}

// ProcessMessage handles one message body, which may carry a single command
// or a JSON array of commands. The returned error is non-nil only for store
// failures, where redelivery should retry; bad payloads are recorded and
// swallowed.
func (p *Processor) ProcessMessage(ctx context.Context, body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var commands []OrderCreationCommand
		if err := json.Unmarshal(trimmed, &commands); err != nil {
			return p.recordRejection(ctx, string(body), fmt.Sprintf("malformed command batch: %v", err))
		}
		p.logger.Printf("received batch of %d commands", len(commands))
		for _, cmd := range commands {
			if err := p.ProcessCommand(ctx, cmd); err != nil {
				return err
			}
		}
		return nil
	}

	var cmd OrderCreationCommand
	if err := json.Unmarshal(trimmed, &cmd); err != nil {
		return p.recordRejection(ctx, string(body), fmt.Sprintf("malformed command: %v", err))
	}
	return p.ProcessCommand(ctx, cmd)
}

// ProcessCommand runs the validate / filter / idempotent-persist sequence
// for a single command.
func (p *Processor) ProcessCommand(ctx context.Context, cmd OrderCreationCommand) error {
	if err := validateCommand(cmd); err != nil {
		payload, _ := json.Marshal(cmd)
		return p.recordRejection(ctx, string(payload), err.Error())
	}

	// Expected traffic for other consumers sharing the topic; not an error
	// and not logged to the event log.
	if cmd.HospitalID != p.hospitalID {
		return nil
	}

	order, created, err := p.store.CreateOrder(ctx, store.OrderInput{
		OrderID:               cmd.OrderID,
		CommandID:             cmd.CommandID,
		HospitalID:            cmd.HospitalID,
		ProductCode:           cmd.ProductCode,
		Quantity:              cmd.OrderQuantity,
		Priority:              cmd.Priority,
		EstimatedDeliveryDate: cmd.EstimatedDeliveryDate,
		WarehouseID:           cmd.WarehouseID,
	})
	if err != nil {
		return fmt.Errorf("persist order %s: %w", cmd.OrderID, err)
	}
	if !created {
		p.logger.Printf("command %s already processed (order %s), skipping", cmd.CommandID, order.OrderID)
		return nil
	}

	payload, _ := json.Marshal(cmd)
	if _, err := p.store.AppendEvent(ctx, store.EventInput{
		EventType:    models.EventOrderReceived,
		Direction:    models.DirectionIncoming,
		Architecture: models.ArchServerless,
		Status:       models.EventSuccess,
		Payload:      string(payload),
	}); err != nil {
		return fmt.Errorf("log order received: %w", err)
	}
	p.logger.Printf("ORDER RECEIVED: %s, %d units, priority %s", order.OrderID, order.Quantity, order.Priority)
	return nil
}

func (p *Processor) recordRejection(ctx context.Context, payload, reason string) error {
	p.logger.Printf("rejected command: %s", reason)
	if _, err := p.store.AppendEvent(ctx, store.EventInput{
		EventType:    models.EventOrderReceived,
		Direction:    models.DirectionIncoming,
		Architecture: models.ArchServerless,
		Status:       models.EventFailure,
		Payload:      payload,
		ErrorMessage: reason,
	}); err != nil {
		return fmt.Errorf("log rejection: %w", err)
	}
	return nil
}

func validateCommand(cmd OrderCreationCommand) error {
	switch {
	case cmd.CommandID == "":
		return fmt.Errorf("missing commandId")
	case cmd.CommandType != "CreateOrder":
		return fmt.Errorf("invalid commandType: %q", cmd.CommandType)
	case cmd.OrderID == "":
		return fmt.Errorf("missing orderId")
	case cmd.HospitalID == "":
		return fmt.Errorf("missing hospitalId")
	case cmd.ProductCode == "":
		return fmt.Errorf("missing productCode")
	case cmd.OrderQuantity <= 0:
		return fmt.Errorf("orderQuantity must be positive, got %d", cmd.OrderQuantity)
	case !models.ValidPriority(cmd.Priority):
		return fmt.Errorf("invalid priority: %q", cmd.Priority)
	case cmd.Timestamp == "":
		return fmt.Errorf("missing timestamp")
	}
	return nil
}
