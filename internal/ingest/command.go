package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"office-realtime/internal/ws"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidCommand = errors.New("invalid command")
	ErrUnavailable    = errors.New("dependency unavailable")
)

// Command types accepted from the rest of the backend.
const (
	CommandNotifyUser       = "notify-user"
	CommandNotifyRole       = "notify-role"
	CommandBroadcast        = "broadcast"
	CommandWhatsAppMessage  = "whatsapp-message"
	CommandWhatsAppStatus   = "whatsapp-status"
	CommandPracticeUpdate   = "practice-update"
	CommandPracticeDeadline = "practice-deadline"
	CommandClientUpdate     = "client-update"
	CommandEmailReceived    = "email-received"
	CommandSystemStatus     = "system-status"
	CommandDashboardUpdate  = "dashboard-update"
	CommandForceDisconnect  = "force-disconnect"
	CommandAccessRevoked    = "access-revoked"
)

// Command is one producer request. Payload holds the event body; UserID and
// Role address notify and disconnect commands.
type Command struct {
	Type    string          `json:"type" binding:"required" example:"notify-user"`
	UserID  string          `json:"userId,omitempty" example:"42"`
	Role    string          `json:"role,omitempty" example:"GEOMETRA"`
	Payload json.RawMessage `json:"payload,omitempty" swaggertype:"object"`
}

// Disconnector evicts every connection of a user.
type Disconnector interface {
	ForceDisconnect(userID string) int
}

// AccessInvalidator drops cached access decisions of a user.
type AccessInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// EntityRevoker unsubscribes a user's connections from an entity topic.
type EntityRevoker interface {
	RevokeEntity(userID string, class ws.EntityClass, entityID string) int
}

// AccessRevocation is the optional payload of an access-revoked command.
// Without it only the cached decisions are dropped.
type AccessRevocation struct {
	EntityClass string `json:"entityClass"`
	EntityID    string `json:"entityId"`
}

type Applier struct {
	producer ws.Producer
	presence Disconnector
	access   AccessInvalidator
	revoker  EntityRevoker
}

type Option func(*Applier)

// WithAccessControl enables access-revoked commands.
func WithAccessControl(access AccessInvalidator, revoker EntityRevoker) Option {
	return func(a *Applier) {
		a.access = access
		a.revoker = revoker
	}
}

func NewApplier(producer ws.Producer, presence Disconnector, opts ...Option) *Applier {
	a := &Applier{producer: producer, presence: presence}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func Decode(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if cmd.Type == "" {
		return Command{}, fmt.Errorf("%w: missing type", ErrInvalidCommand)
	}
	return cmd, nil
}

// Apply validates cmd and hands it to the producer API. A nil error means the
// event was accepted, not that anybody received it.
func (a *Applier) Apply(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CommandNotifyUser:
		if cmd.UserID == "" {
			return missing(cmd, "userId")
		}
		n, err := payload[ws.Notification](cmd)
		if err != nil {
			return err
		}
		a.producer.NotifyUser(ctx, cmd.UserID, n)

	case CommandNotifyRole:
		if cmd.Role == "" {
			return missing(cmd, "role")
		}
		n, err := payload[ws.Notification](cmd)
		if err != nil {
			return err
		}
		a.producer.NotifyRole(ctx, cmd.Role, n)

	case CommandBroadcast:
		n, err := payload[ws.Notification](cmd)
		if err != nil {
			return err
		}
		a.producer.Broadcast(ctx, n)

	case CommandWhatsAppMessage:
		m, err := payload[ws.WhatsAppMessage](cmd)
		if err != nil {
			return err
		}
		a.producer.PushWhatsAppMessage(ctx, m)

	case CommandWhatsAppStatus:
		s, err := payload[ws.WhatsAppStatus](cmd)
		if err != nil {
			return err
		}
		if s.MessageID == "" {
			return missing(cmd, "payload.messageId")
		}
		a.producer.PushWhatsAppStatus(ctx, s)

	case CommandPracticeUpdate:
		u, err := payload[ws.PracticeUpdate](cmd)
		if err != nil {
			return err
		}
		if u.PracticeID == "" {
			return missing(cmd, "payload.practiceId")
		}
		a.producer.PushPracticeUpdate(ctx, u)

	case CommandPracticeDeadline:
		d, err := payload[ws.PracticeDeadline](cmd)
		if err != nil {
			return err
		}
		a.producer.PushPracticeDeadline(ctx, d)

	case CommandClientUpdate:
		u, err := payload[ws.ClientUpdate](cmd)
		if err != nil {
			return err
		}
		if u.ClientID == "" {
			return missing(cmd, "payload.clientId")
		}
		a.producer.PushClientUpdate(ctx, u)

	case CommandEmailReceived:
		e, err := payload[ws.EmailReceived](cmd)
		if err != nil {
			return err
		}
		a.producer.PushEmailReceived(ctx, e)

	case CommandSystemStatus:
		s, err := payload[ws.SystemStatus](cmd)
		if err != nil {
			return err
		}
		a.producer.PushSystemStatus(ctx, s)

	case CommandDashboardUpdate:
		u, err := payload[ws.DashboardUpdate](cmd)
		if err != nil {
			return err
		}
		if u.Role == "" {
			u.Role = cmd.Role
		}
		a.producer.PushDashboardUpdate(ctx, u)

	case CommandForceDisconnect:
		if cmd.UserID == "" {
			return missing(cmd, "userId")
		}
		if a.presence != nil {
			a.presence.ForceDisconnect(cmd.UserID)
		}

	case CommandAccessRevoked:
		return a.revokeAccess(ctx, cmd)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}

func (a *Applier) revokeAccess(ctx context.Context, cmd Command) error {
	if cmd.UserID == "" {
		return missing(cmd, "userId")
	}
	if len(cmd.Payload) > 0 {
		r, err := payload[AccessRevocation](cmd)
		if err != nil {
			return err
		}
		class := ws.EntityClass(r.EntityClass)
		if !class.Valid() {
			return fmt.Errorf("%w: %s unknown entityClass %q", ErrInvalidCommand, cmd.Type, r.EntityClass)
		}
		id, err := ws.ParseEntityID(r.EntityID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		if a.revoker != nil {
			a.revoker.RevokeEntity(cmd.UserID, class, id)
		}
	}
	if a.access != nil {
		if err := a.access.Invalidate(ctx, cmd.UserID); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func payload[T any](cmd Command) (T, error) {
	var v T
	if len(cmd.Payload) == 0 {
		return v, missing(cmd, "payload")
	}
	if err := json.Unmarshal(cmd.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s payload: %v", ErrInvalidCommand, cmd.Type, err)
	}
	return v, nil
}

func missing(cmd Command, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrInvalidCommand, cmd.Type, field)
}
