package ws

import (
	"log/slog"
	"sort"
	"time"
)

// ConnectionInfo describes one admitted connection for presence queries.
type ConnectionInfo struct {
	Principal
	ConnectedAt time.Time `json:"connectedAt"`
	Topics      []Topic   `json:"topics"`
}

// Presence answers read-only questions about who is connected and can evict
// a user. It never mutates the registry itself: eviction goes through each
// connection's Close, which runs the normal release path.
type Presence struct {
	registry *Registry
	rooms    *Rooms
	logger   *slog.Logger
}

func NewPresence(registry *Registry, rooms *Rooms, logger *slog.Logger) *Presence {
	return &Presence{
		registry: registry,
		rooms:    rooms,
		logger:   logger.With(slog.String("component", "presence")),
	}
}

func (p *Presence) ListConnected() []Principal {
	return p.registry.All()
}

func (p *Presence) IsUserConnected(userID string) bool {
	return p.registry.IsUserConnected(userID)
}

func (p *Presence) CountConnected() int {
	return p.registry.Count()
}

// ConnectedUsers returns the distinct user ids with at least one connection.
func (p *Presence) ConnectedUsers() []string {
	seen := make(map[string]struct{})
	users := make([]string, 0)
	for _, principal := range p.registry.All() {
		if _, ok := seen[principal.UserID]; ok {
			continue
		}
		seen[principal.UserID] = struct{}{}
		users = append(users, principal.UserID)
	}
	sort.Strings(users)
	return users
}

// ForceDisconnect closes every connection owned by userID and returns how
// many were closed. A user with no connections is a no-op.
func (p *Presence) ForceDisconnect(userID string) int {
	closed := 0
	for _, connID := range p.registry.ConnectionsOf(userID) {
		sink, ok := p.registry.sink(connID)
		if !ok {
			continue
		}
		if err := sink.Close(); err != nil {
			p.logger.Warn("Failed to close connection", "clientID", connID, "userID", userID, "error", err)
		}
		closed++
	}
	if closed > 0 {
		p.logger.Info("User force disconnected", "userID", userID, "connections", closed)
	}
	return closed
}

// Connections returns the connections of userID, oldest first.
func (p *Presence) Connections(userID string) []ConnectionInfo {
	return p.describe(p.registry.ConnectionsOf(userID))
}

// Snapshot returns every admitted connection, oldest first.
func (p *Presence) Snapshot() []ConnectionInfo {
	return p.describe(p.registry.ConnectionIDs())
}

func (p *Presence) describe(connIDs []string) []ConnectionInfo {
	out := make([]ConnectionInfo, 0, len(connIDs))
	for _, connID := range connIDs {
		principal, ok := p.registry.Get(connID)
		if !ok {
			continue
		}
		topics := p.rooms.TopicsOf(connID)
		sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
		out = append(out, ConnectionInfo{
			Principal:   principal,
			ConnectedAt: p.registry.connectedAt(connID),
			Topics:      topics,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
