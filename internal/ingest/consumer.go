package ingest

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
)

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	// GroupID is the consumer group; it scopes the subscription so multiple
	// hospital services can share the topic without double-consuming at the
	// transport level.
	GroupID string
}

// messageReader is the subset of kafka-go Reader behavior the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer is the long-lived consumption loop. Messages are fetched one at
// a time per partition and committed only after the processor has persisted
// their effects, so a crash mid-message is redelivered (the store's
// idempotency makes the redelivery a no-op).
type Consumer struct {
	reader    messageReader
	processor *Processor
	logger    *log.Logger
}

func NewConsumer(cfg ConsumerConfig, processor *Processor, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.New(os.Stdout, "[ingest] ", log.LstdFlags)
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // synchronous commits
	})
	return &Consumer{reader: r, processor: processor, logger: logger}
}

// NewConsumerWithReader wires a custom reader; used by tests.
func NewConsumerWithReader(r messageReader, processor *Processor, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.New(os.Stdout, "[ingest] ", log.LstdFlags)
	}
	return &Consumer{reader: r, processor: processor, logger: logger}
}

// Run blocks consuming messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Printf("order command consumer started")
	defer c.logger.Printf("order command consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Printf("fetch message: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.processor.ProcessMessage(ctx, msg.Value); err != nil {
			// Leave the offset uncommitted so the message is redelivered.
			c.logger.Printf("process message (partition %d offset %d): %v", msg.Partition, msg.Offset, err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Printf("commit offset: %v", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
