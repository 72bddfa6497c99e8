package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"office-realtime/internal/config"
	"office-realtime/internal/ingest"
)

const clientID = "office-realtime"

func InitKafkaProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = true
	sc.Producer.Compression = sarama.CompressionSnappy
	// Commands for the same user land on the same partition and stay ordered.
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Version = sarama.V2_0_0_0
	sc.ClientID = clientID
	sc.Producer.MaxMessageBytes = 1000000

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// CommandPublisher writes ingest commands to the realtime topic.
type CommandPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewCommandPublisher(producer sarama.SyncProducer, topic string) *CommandPublisher {
	return &CommandPublisher{producer: producer, topic: topic}
}

func (p *CommandPublisher) Publish(ctx context.Context, cmd ingest.Command) (partition int32, offset int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	value, err := json.Marshal(cmd)
	if err != nil {
		return 0, 0, fmt.Errorf("encode command: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(partitionKey(cmd)),
		Value: sarama.ByteEncoder(value),
	}
	partition, offset, err = p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("send %s command: %w", cmd.Type, err)
	}
	return partition, offset, nil
}

func (p *CommandPublisher) Close() error {
	return p.producer.Close()
}

func partitionKey(cmd ingest.Command) string {
	if cmd.UserID != "" {
		return cmd.UserID
	}
	return cmd.Type
}
