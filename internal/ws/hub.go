package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	presenceQueueSize      = 1024
	presenceOpTimeout      = 3 * time.Second
	defaultAuthTimeout     = 5 * time.Second
	defaultPresenceRefresh = time.Minute
)

// PresenceStore mirrors who is online somewhere other instances can see.
// Entries expire unless refreshed, so RefreshOnline is called periodically
// with the connection count of every user connected to this instance.
type PresenceStore interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	RefreshOnline(ctx context.Context, counts map[string]int) error
}

type Options struct {
	Authorizer    Authorizer
	PresenceStore PresenceStore
	Relay         Relay
	Metrics       *Metrics
	Logger        *slog.Logger
	// AuthorizeTimeout bounds one subscribe request's authorization checks.
	AuthorizeTimeout time.Duration
	// PresenceRefresh is the heartbeat period of the presence store. It must
	// be shorter than the store's expiry.
	PresenceRefresh time.Duration
}

type presenceOp struct {
	userID string
	online bool
}

// Hub owns the connection registry and the rooms of this instance, and
// exposes the dispatcher and presence service built on top of them.
type Hub struct {
	registry   *Registry
	rooms      *Rooms
	dispatcher *Dispatcher
	presence   *Presence

	authorizer  Authorizer
	store       PresenceStore
	metrics     *Metrics
	logger      *slog.Logger
	authTimeout time.Duration

	presenceOps     chan presenceOp
	presenceRefresh time.Duration
}

func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authorizer := opts.Authorizer
	if authorizer == nil {
		authorizer = AllowAll()
	}
	authTimeout := opts.AuthorizeTimeout
	if authTimeout <= 0 {
		authTimeout = defaultAuthTimeout
	}

	presenceRefresh := opts.PresenceRefresh
	if presenceRefresh <= 0 {
		presenceRefresh = defaultPresenceRefresh
	}

	registry := NewRegistry()
	rooms := NewRooms()

	return &Hub{
		registry:        registry,
		rooms:           rooms,
		dispatcher:      NewDispatcher(registry, rooms, opts.Relay, opts.Metrics, logger),
		presence:        NewPresence(registry, rooms, logger),
		authorizer:      authorizer,
		store:           opts.PresenceStore,
		metrics:         opts.Metrics,
		logger:          logger.With(slog.String("component", "hub")),
		authTimeout:     authTimeout,
		presenceOps:     make(chan presenceOp, presenceQueueSize),
		presenceRefresh: presenceRefresh,
	}
}

func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }
func (h *Hub) Presence() *Presence     { return h.presence }
func (h *Hub) Registry() *Registry     { return h.registry }
func (h *Hub) Rooms() *Rooms           { return h.rooms }
func (h *Hub) Metrics() *Metrics       { return h.metrics }

// Run mirrors presence changes to the presence store and keeps the entries
// of connected users alive until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Info("Realtime hub started")

	var heartbeat <-chan time.Time
	if h.store != nil {
		ticker := time.NewTicker(h.presenceRefresh)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case op := <-h.presenceOps:
			h.mirror(ctx, op)
		case <-heartbeat:
			h.refreshPresence(ctx)
		case <-ctx.Done():
			h.logger.Info("Realtime hub shutting down")
			return nil
		}
	}
}

// Drain mirrors the presence updates still queued and returns once the queue
// is empty. Shutdown uses it after Run has stopped.
func (h *Hub) Drain(ctx context.Context) {
	for {
		select {
		case op := <-h.presenceOps:
			h.mirror(ctx, op)
		default:
			return
		}
	}
}

func (h *Hub) mirror(ctx context.Context, op presenceOp) {
	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, presenceOpTimeout)
	defer cancel()

	var err error
	if op.online {
		err = h.store.MarkOnline(ctx, op.userID)
	} else {
		err = h.store.MarkOffline(ctx, op.userID)
	}
	if err != nil {
		h.logger.Error("Failed to mirror presence", "userID", op.userID, "online", op.online, "error", err)
	}
}

func (h *Hub) refreshPresence(ctx context.Context) {
	counts := h.registry.UserConnectionCounts()
	if len(counts) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, presenceOpTimeout)
	defer cancel()

	if err := h.store.RefreshOnline(ctx, counts); err != nil {
		h.logger.Error("Failed to refresh presence", "users", len(counts), "error", err)
	}
}

func (h *Hub) queuePresence(userID string, online bool) {
	if h.store == nil {
		return
	}
	select {
	case h.presenceOps <- presenceOp{userID: userID, online: online}:
	default:
		h.logger.Warn("Presence queue full, update dropped", "userID", userID, "online", online)
	}
}

// Admit registers an authenticated connection, joins its default topics and
// sends it the connected acknowledgement. p must carry a connection id.
func (h *Hub) Admit(p Principal, sink Sink) error {
	if p.ConnectionID == "" || p.UserID == "" {
		return fmt.Errorf("admit: principal without connection or user id")
	}
	if err := h.registry.Admit(p, sink); err != nil {
		return fmt.Errorf("admit %s: %w", p.ConnectionID, err)
	}
	h.metrics.connectionOpened()
	h.queuePresence(p.UserID, true)

	topics := h.registry.defaultTopics(p.ConnectionID)
	if !h.join(p.ConnectionID, topics...) {
		return fmt.Errorf("admit %s: %w", p.ConnectionID, ErrClientDisconnected)
	}
	h.logger.Info("Client registered", "clientID", p.ConnectionID, "userID", p.UserID, "role", p.Role)

	h.dispatcher.SendTo(p.ConnectionID, Connected{
		ConnectionID: p.ConnectionID,
		UserID:       p.UserID,
		Email:        p.Email,
		Role:         p.Role,
		Topics:       topics,
	})
	return nil
}

// join adds connID to topics and reports whether the connection is still
// admitted afterwards. A connection released while joining is swept out of
// the rooms again so no membership outlives it.
func (h *Hub) join(connID string, topics ...Topic) bool {
	h.rooms.JoinTopics(connID, topics)
	if _, ok := h.registry.Get(connID); !ok {
		h.rooms.LeaveAll(connID)
		return false
	}
	return true
}

// Release drops every trace of connID. Sinks call it from Close; calling it
// for an unknown id is a no-op.
func (h *Hub) Release(connID string) {
	p, ok := h.registry.Remove(connID)
	h.rooms.LeaveAll(connID)
	if !ok {
		return
	}

	h.metrics.connectionClosed()
	if !h.registry.IsUserConnected(p.UserID) {
		h.logger.Debug("Last connection of user closed", "userID", p.UserID)
	}
	h.queuePresence(p.UserID, false)
	h.logger.Info("Client unregistered", "clientID", connID, "userID", p.UserID)
}

// SubscribeEntities joins connID to the entity topics named by rawIDs that
// its principal may see.
func (h *Hub) SubscribeEntities(ctx context.Context, connID string, class EntityClass, rawIDs []string) (BatchResult, error) {
	p, ok := h.registry.Get(connID)
	if !ok {
		return BatchResult{}, ErrNotAdmitted
	}

	ctx, cancel := context.WithTimeout(ctx, h.authTimeout)
	defer cancel()

	result := h.rooms.JoinEntities(connID, class, rawIDs, func(entityID string) error {
		return h.authorize(ctx, p, class, entityID)
	})
	if !h.join(connID) {
		return BatchResult{}, ErrNotAdmitted
	}

	h.metrics.subscriptionsRefused(result.Rejected)
	if len(result.Rejected) > 0 {
		h.logger.Info("Entity subscriptions refused",
			"clientID", connID,
			"userID", p.UserID,
			"class", class,
			"rejected", len(result.Rejected),
		)
	}
	return result, nil
}

// UnsubscribeEntities leaves the entity topics named by rawIDs.
func (h *Hub) UnsubscribeEntities(connID string, class EntityClass, rawIDs []string) []Topic {
	left := make([]Topic, 0, len(rawIDs))
	if !class.Valid() {
		return left
	}
	for _, raw := range rawIDs {
		id, err := ParseEntityID(raw)
		if err != nil {
			continue
		}
		topic := EntityTopic(class, id)
		if h.rooms.Leave(connID, topic) {
			left = append(left, topic)
		}
	}
	return left
}

// RevokeEntity removes every local connection of userID from the entity
// topic and returns how many were subscribed.
func (h *Hub) RevokeEntity(userID string, class EntityClass, entityID string) int {
	if !class.Valid() {
		return 0
	}
	topic := EntityTopic(class, entityID)
	n := 0
	for _, connID := range h.registry.ConnectionsOf(userID) {
		if h.rooms.Leave(connID, topic) {
			n++
		}
	}
	if n > 0 {
		h.logger.Info("Entity access revoked", "userID", userID, "topic", topic, "connections", n)
	}
	return n
}

// SubscribeTopic joins a topic that needs no entity authorization.
func (h *Hub) SubscribeTopic(connID string, topic Topic) error {
	if _, ok := h.registry.Get(connID); !ok {
		return ErrNotAdmitted
	}
	if !h.join(connID, topic) {
		return ErrNotAdmitted
	}
	return nil
}

// RelayTyping forwards a typing indicator to the other followers of a client
// topic. The sender must be allowed to see the client.
func (h *Hub) RelayTyping(ctx context.Context, connID, rawClientID string, isTyping bool) error {
	p, ok := h.registry.Get(connID)
	if !ok {
		return ErrNotAdmitted
	}
	clientID, err := ParseEntityID(rawClientID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.authTimeout)
	defer cancel()
	if err := h.authorize(ctx, p, EntityClient, clientID); err != nil {
		return err
	}

	h.dispatcher.PublishExcept(ctx, EntityTopic(EntityClient, clientID), WhatsAppTyping{
		ClientID: clientID,
		UserID:   p.UserID,
		Email:    p.Email,
		IsTyping: isTyping,
	}, connID)
	return nil
}

func (h *Hub) authorize(ctx context.Context, p Principal, class EntityClass, entityID string) error {
	allowed, err := h.authorizer.CanSubscribe(ctx, p, class, entityID)
	if err != nil {
		h.logger.Warn("Authorization check failed", "userID", p.UserID, "class", class, "entityID", entityID, "error", err)
		return fmt.Errorf("authorize %s %s: %w", class, entityID, err)
	}
	if !allowed {
		return fmt.Errorf("%s %s: %w", class, entityID, ErrForbiddenEntity)
	}
	return nil
}

// Shutdown closes every connection of this instance.
func (h *Hub) Shutdown() {
	ids := h.registry.ConnectionIDs()
	for _, connID := range ids {
		sink, ok := h.registry.sink(connID)
		if !ok {
			continue
		}
		if err := sink.Close(); err != nil && !errors.Is(err, ErrClientDisconnected) {
			h.logger.Warn("Failed to close connection", "clientID", connID, "error", err)
		}
	}
	h.logger.Info("Closed all connections", "count", len(ids))
}
