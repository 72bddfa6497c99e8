package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrDeliveryFailure = errors.New("delivery failure")

// Producer is the fire-and-forget API the rest of the backend uses to push
// live updates. None of the calls report delivery problems back.
type Producer interface {
	NotifyUser(ctx context.Context, userID string, n Notification)
	NotifyRole(ctx context.Context, role string, n Notification)
	Broadcast(ctx context.Context, ev Event)
	PushWhatsAppMessage(ctx context.Context, m WhatsAppMessage)
	PushWhatsAppStatus(ctx context.Context, s WhatsAppStatus)
	PushPracticeUpdate(ctx context.Context, u PracticeUpdate)
	PushPracticeDeadline(ctx context.Context, d PracticeDeadline)
	PushClientUpdate(ctx context.Context, u ClientUpdate)
	PushEmailReceived(ctx context.Context, e EmailReceived)
	PushSystemStatus(ctx context.Context, s SystemStatus)
	PushDashboardUpdate(ctx context.Context, u DashboardUpdate)
}

// RelayMessage is a publish forwarded to, or received from, other instances.
type RelayMessage struct {
	Topics  []Topic
	All     bool
	Exclude string
	Frame   []byte
}

// Relay forwards publishes to the other instances of the service.
type Relay interface {
	Forward(msg RelayMessage)
}

// Delivery is the outcome of one publish on this instance. The dispatcher
// records it and throws it away.
type Delivery struct {
	Event      EventKind
	Recipients int
	Delivered  int
	Dropped    int
}

type target struct {
	topics  []Topic
	all     bool
	exclude string
}

type Dispatcher struct {
	registry *Registry
	rooms    *Rooms
	relay    Relay
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

var _ Producer = (*Dispatcher)(nil)

func NewDispatcher(registry *Registry, rooms *Rooms, relay Relay, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		rooms:    rooms,
		relay:    relay,
		metrics:  metrics,
		tracer:   otel.Tracer("office-realtime/ws"),
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// Publish writes ev to every connection currently subscribed to topic. An
// empty topic is a no-op.
func (d *Dispatcher) Publish(ctx context.Context, topic Topic, ev Event) {
	d.publish(ctx, target{topics: []Topic{topic}}, ev)
}

// PublishAll writes ev to every admitted connection.
func (d *Dispatcher) PublishAll(ctx context.Context, ev Event) {
	d.publish(ctx, target{all: true}, ev)
}

// PublishExcept is Publish without the connection exclude.
func (d *Dispatcher) PublishExcept(ctx context.Context, topic Topic, ev Event, exclude string) {
	d.publish(ctx, target{topics: []Topic{topic}, exclude: exclude}, ev)
}

// SendTo writes ev to a single connection. Replies to client requests go
// through here and are never relayed.
func (d *Dispatcher) SendTo(connID string, ev Event) {
	frame, err := Encode(ev)
	if err != nil {
		d.logger.Error("Failed to encode event", "event", ev.Kind(), "error", err)
		return
	}
	if err := d.send(connID, frame); err != nil {
		d.logger.Debug("Reply dropped", "clientID", connID, "event", ev.Kind(), "error", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, tgt target, ev Event) {
	_, span := d.tracer.Start(ctx, "realtime.publish", trace.WithAttributes(
		attribute.String("realtime.event", ev.Kind().String()),
		attribute.Bool("realtime.global", tgt.all),
	))
	defer span.End()

	frame, err := Encode(ev)
	if err != nil {
		span.RecordError(err)
		d.logger.Error("Failed to encode event", "event", ev.Kind(), "error", err)
		return
	}

	delivery := d.deliver(tgt, frame)
	delivery.Event = ev.Kind()
	span.SetAttributes(attribute.Int("realtime.recipients", delivery.Recipients))
	d.settle(delivery)

	if d.relay != nil {
		d.relay.Forward(RelayMessage{
			Topics:  tgt.topics,
			All:     tgt.all,
			Exclude: tgt.exclude,
			Frame:   frame,
		})
	}
}

// DeliverRelayed hands a frame published on another instance to the local
// members of its target.
func (d *Dispatcher) DeliverRelayed(msg RelayMessage) {
	delivery := d.deliver(target{topics: msg.Topics, all: msg.All, exclude: msg.Exclude}, msg.Frame)
	delivery.Event = EventKind(gjson.GetBytes(msg.Frame, "event").String())
	d.settle(delivery)
}

func (d *Dispatcher) deliver(tgt target, frame []byte) Delivery {
	var delivery Delivery
	for _, connID := range d.recipients(tgt) {
		delivery.Recipients++
		if err := d.send(connID, frame); err != nil {
			delivery.Dropped++
			d.logger.Debug("Delivery dropped", "clientID", connID, "error", err)
			continue
		}
		delivery.Delivered++
	}
	return delivery
}

// send enqueues frame for one connection. A failure here only ever affects
// that connection.
func (d *Dispatcher) send(connID string, frame []byte) (err error) {
	sink, ok := d.registry.sink(connID)
	if !ok {
		return ErrRegistryInvariant
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDeliveryFailure, r)
		}
	}()

	err = sink.Enqueue(frame)
	if errors.Is(err, ErrSlowConsumer) {
		d.logger.Warn("Send buffer full, closing client", "clientID", connID)
		if cerr := sink.Close(); cerr != nil && !errors.Is(cerr, ErrClientDisconnected) {
			d.logger.Warn("Failed to close slow client", "clientID", connID, "error", cerr)
		}
	}
	return err
}

func (d *Dispatcher) recipients(tgt target) []string {
	var ids []string
	switch {
	case tgt.all:
		ids = d.registry.ConnectionIDs()
	case len(tgt.topics) == 1:
		ids = d.rooms.MembersOf(tgt.topics[0])
	default:
		seen := make(map[string]struct{})
		for _, topic := range tgt.topics {
			for _, id := range d.rooms.MembersOf(topic) {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	if tgt.exclude == "" {
		return ids
	}
	out := ids[:0]
	for _, id := range ids {
		if id != tgt.exclude {
			out = append(out, id)
		}
	}
	return out
}

func (d *Dispatcher) settle(delivery Delivery) {
	d.metrics.recordDelivery(delivery)
	if delivery.Dropped > 0 {
		d.logger.Info("Event partially delivered",
			"event", delivery.Event,
			"recipients", delivery.Recipients,
			"dropped", delivery.Dropped,
		)
		return
	}
	d.logger.Debug("Event dispatched", "event", delivery.Event, "recipients", delivery.Recipients)
}

func (d *Dispatcher) NotifyUser(ctx context.Context, userID string, n Notification) {
	if userID == "" {
		d.logger.Warn("Notification without user id dropped", "type", n.Type)
		return
	}
	d.Publish(ctx, PersonalTopic(userID), withCreatedAt(n))
}

func (d *Dispatcher) NotifyRole(ctx context.Context, role string, n Notification) {
	if role == "" {
		d.logger.Warn("Notification without role dropped", "type", n.Type)
		return
	}
	d.Publish(ctx, RoleTopic(role), withCreatedAt(n))
}

func (d *Dispatcher) Broadcast(ctx context.Context, ev Event) {
	d.PublishAll(ctx, ev)
}

// PushWhatsAppMessage reaches every operator, and the client's topic when
// the message is linked to a known client.
func (d *Dispatcher) PushWhatsAppMessage(ctx context.Context, m WhatsAppMessage) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	d.publish(ctx, target{all: true, topics: clientTopics(m.ClientID)}, m)
}

func (d *Dispatcher) PushWhatsAppStatus(ctx context.Context, s WhatsAppStatus) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	topics := append([]Topic{TopicWhatsAppUpdates}, clientTopics(s.ClientID)...)
	d.publish(ctx, target{topics: topics}, s)
}

func (d *Dispatcher) PushPracticeUpdate(ctx context.Context, u PracticeUpdate) {
	if u.PracticeID == "" {
		d.logger.Warn("Practice update without practice id dropped", "action", u.Action)
		return
	}
	d.Publish(ctx, EntityTopic(EntityPractice, u.PracticeID), u)
}

// PushPracticeDeadline is always global: every operator must see deadlines,
// subscribed or not.
func (d *Dispatcher) PushPracticeDeadline(ctx context.Context, dl PracticeDeadline) {
	d.PublishAll(ctx, dl)
}

func (d *Dispatcher) PushClientUpdate(ctx context.Context, u ClientUpdate) {
	if u.ClientID == "" {
		d.logger.Warn("Client update without client id dropped", "action", u.Action)
		return
	}
	d.Publish(ctx, EntityTopic(EntityClient, u.ClientID), u)
}

func (d *Dispatcher) PushEmailReceived(ctx context.Context, e EmailReceived) {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	d.publish(ctx, target{all: true, topics: clientTopics(e.ClientID)}, e)
}

func (d *Dispatcher) PushSystemStatus(ctx context.Context, s SystemStatus) {
	d.PublishAll(ctx, s)
}

func (d *Dispatcher) PushDashboardUpdate(ctx context.Context, u DashboardUpdate) {
	if u.Role != "" {
		d.Publish(ctx, RoleTopic(u.Role), u)
		return
	}
	d.PublishAll(ctx, u)
}

func clientTopics(clientID string) []Topic {
	if clientID == "" {
		return nil
	}
	return []Topic{EntityTopic(EntityClient, clientID)}
}

func withCreatedAt(n Notification) Notification {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	return n
}
