// Command emit publishes one ingest command to the realtime Kafka topic.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	"office-realtime/internal/adapters/kafka"
	"office-realtime/internal/config"
	"office-realtime/internal/ingest"

	"github.com/tidwall/gjson"
)

func main() {
	cmdType := flag.String("type", ingest.CommandSystemStatus, "command type")
	userID := flag.String("user", "", "target user id")
	role := flag.String("role", "", "target role")
	payload := flag.String("payload", `{"status":"ok","message":"emit test"}`, "JSON payload")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger := config.NewLogger(cfg.Log)

	if !cfg.Kafka.Enabled() {
		log.Fatal("KAFKA_BROKERS must be set")
	}
	if !gjson.Valid(*payload) {
		log.Fatal("payload is not valid JSON")
	}

	producer, err := kafka.InitKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatal("Failed to create producer:", err)
	}
	publisher := kafka.NewCommandPublisher(producer, cfg.Kafka.Topic)
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := ingest.Command{
		Type:    *cmdType,
		UserID:  *userID,
		Role:    *role,
		Payload: json.RawMessage(*payload),
	}
	partition, offset, err := publisher.Publish(ctx, cmd)
	if err != nil {
		log.Fatal("Failed to publish:", err)
	}
	logger.Info("Command published", "type", cmd.Type, "topic", cfg.Kafka.Topic, "partition", partition, "offset", offset)
}
