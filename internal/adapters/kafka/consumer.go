package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"office-realtime/internal/config"
	"office-realtime/internal/ingest"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CommandApplier interface {
	Apply(ctx context.Context, cmd ingest.Command) error
}

func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
	})
}

// Consumer feeds commands from the realtime topic into the hub. Messages
// that fail to decode or apply are logged and committed so they never block
// the partition.
type Consumer struct {
	reader  MessageReader
	applier CommandApplier
	logger  *slog.Logger
}

func NewConsumer(reader MessageReader, applier CommandApplier, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:  reader,
		applier: applier,
		logger:  logger.With(slog.String("component", "kafka-consumer")),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("Kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Kafka consumer stopped")
				return nil
			}
			return err
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Failed to commit message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	cmd, err := ingest.Decode(msg.Value)
	if err != nil {
		c.logger.Warn("Skipping undecodable message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}
	if err := c.applier.Apply(ctx, cmd); err != nil {
		c.logger.Warn("Skipping rejected command", "type", cmd.Type, "offset", msg.Offset, "error", err)
		return
	}
	c.logger.Debug("Command applied", "type", cmd.Type, "offset", msg.Offset)
}
