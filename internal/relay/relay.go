package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"office-realtime/internal/ws"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
)

const (
	outboxSize     = 4096
	publishTimeout = 2 * time.Second
)

// Broker is the Redis pub/sub surface the relay needs.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Deliverer hands relayed frames to local connections.
type Deliverer interface {
	DeliverRelayed(msg ws.RelayMessage)
}

type envelope struct {
	Origin  string   `msgpack:"origin"`
	Topics  []string `msgpack:"topics,omitempty"`
	All     bool     `msgpack:"all,omitempty"`
	Exclude string   `msgpack:"exclude,omitempty"`
	Frame   []byte   `msgpack:"frame"`
}

// RedisRelay fans publishes out to the other instances sharing a Redis
// channel. Forward never blocks the publisher: envelopes go through an
// outbox drained by Run.
type RedisRelay struct {
	origin  string
	channel string
	broker  Broker
	outbox  chan []byte
	logger  *slog.Logger
}

var _ ws.Relay = (*RedisRelay)(nil)

func New(broker Broker, channel string, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		origin:  uuid.NewString(),
		channel: channel,
		broker:  broker,
		outbox:  make(chan []byte, outboxSize),
		logger:  logger.With(slog.String("component", "relay")),
	}
}

func (r *RedisRelay) Origin() string {
	return r.origin
}

func (r *RedisRelay) Forward(msg ws.RelayMessage) {
	payload, err := r.encode(msg)
	if err != nil {
		r.logger.Error("Failed to encode relay envelope", "error", err)
		return
	}
	select {
	case r.outbox <- payload:
	default:
		r.logger.Warn("Relay outbox full, envelope dropped", "channel", r.channel)
	}
}

// Run publishes queued envelopes and delivers envelopes of other instances
// to target until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, target Deliverer) error {
	pubsub := r.broker.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("Relay subscribed", "channel", r.channel, "origin", r.origin)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.publishLoop(ctx)
		return nil
	})
	g.Go(func() error {
		r.receiveLoop(ctx, pubsub.Channel(), target)
		return nil
	})
	return g.Wait()
}

func (r *RedisRelay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-r.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := r.broker.Publish(pubCtx, r.channel, payload); err != nil {
				r.logger.Warn("Failed to relay envelope", "channel", r.channel, "error", err)
			}
			cancel()
		}
	}
}

func (r *RedisRelay) receiveLoop(ctx context.Context, messages <-chan *redis.Message, target Deliverer) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-messages:
			if !ok {
				r.logger.Warn("Relay subscription closed", "channel", r.channel)
				return
			}
			r.handle([]byte(m.Payload), target)
		}
	}
}

func (r *RedisRelay) handle(payload []byte, target Deliverer) {
	var env envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		r.logger.Warn("Discarding malformed relay envelope", "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}

	topics := make([]ws.Topic, 0, len(env.Topics))
	for _, t := range env.Topics {
		topics = append(topics, ws.Topic(t))
	}
	target.DeliverRelayed(ws.RelayMessage{
		Topics:  topics,
		All:     env.All,
		Exclude: env.Exclude,
		Frame:   env.Frame,
	})
}

func (r *RedisRelay) encode(msg ws.RelayMessage) ([]byte, error) {
	topics := make([]string, 0, len(msg.Topics))
	for _, t := range msg.Topics {
		topics = append(topics, string(t))
	}
	return msgpack.Marshal(envelope{
		Origin:  r.origin,
		Topics:  topics,
		All:     msg.All,
		Exclude: msg.Exclude,
		Frame:   msg.Frame,
	})
}
