package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/hospital-e/supply-service/internal/models"
)

type PublisherConfig struct {
	// Brokers is the list of broker addresses (host:port).
	Brokers []string

	// Topic is the inventory alert topic.
	Topic string

	// WriteTimeout is the per-publish timeout. Defaults to 10s if zero.
	WriteTimeout time.Duration
}

// messageWriter is the subset of kafka-go Writer behavior the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements the asynchronous path. Success is defined purely by
// publish acknowledgment; there is no downstream response to await, and the
// dispatcher never retries this path.
type Publisher struct {
	writer messageWriter
	topic  string
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  1,
		// Async=false so WriteMessages returns only after broker acknowledgment.
		Async: false,
	})
	return &Publisher{writer: w, topic: cfg.Topic}, nil
}

// NewPublisherWithWriter wires a custom writer; used by tests.
func NewPublisherWithWriter(w messageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

func (p *Publisher) Architecture() models.Architecture { return models.ArchServerless }

func (p *Publisher) Notify(ctx context.Context, b Breach) Outcome {
	event := InventoryLowEvent{
		EventID:               fmt.Sprintf("evt-%s", uuid.New()),
		EventType:             "InventoryLow",
		HospitalID:            b.HospitalID,
		ProductCode:           b.ProductCode,
		CurrentStockUnits:     b.CurrentUnits,
		DailyConsumptionUnits: b.DailyConsumptionUnits,
		DaysOfSupply:          b.DaysOfSupply,
		Threshold:             b.Threshold,
		Timestamp:             b.Timestamp.UTC().Format(time.RFC3339),
	}
	out := Outcome{
		Architecture: models.ArchServerless,
		EventType:    models.EventInventoryPublished,
	}

	value, err := json.Marshal(event)
	if err != nil {
		out.Status = models.EventFailure
		out.Err = fmt.Errorf("marshal inventory event: %w", err)
		return out
	}
	out.Payload = string(value)

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(b.HospitalID),
		Value: value,
		Time:  start.UTC(),
	})
	out.LatencyMS = latencySince(start)

	if err != nil {
		out.Err = fmt.Errorf("publish inventory event: %w", err)
		if isTimeout(err) {
			out.Status = models.EventTimeout
		} else {
			out.Status = models.EventFailure
		}
		return out
	}
	out.Status = models.EventSuccess
	return out
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
