package ws

import (
	"fmt"
	"regexp"
	"strings"
)

// Topic is the routing key of a room. Personal and role topics are derived
// from the principal; entity topics are joined on request.
type Topic string

type TopicKind string

const (
	TopicKindPersonal TopicKind = "personal"
	TopicKindRole     TopicKind = "role"
	TopicKindEntity   TopicKind = "entity"
	TopicKindShared   TopicKind = "shared"
)

// EntityClass names the kind of business entity an entity topic is scoped to.
type EntityClass string

const (
	EntityPractice EntityClass = "practice"
	EntityClient   EntityClass = "client"
)

// TopicWhatsAppUpdates is the shared topic operators join to follow
// delivery status of outgoing WhatsApp messages.
const TopicWhatsAppUpdates Topic = "whatsapp:updates"

const (
	personalPrefix = "user:"
	rolePrefix     = "role:"
)

var entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

func PersonalTopic(userID string) Topic {
	return Topic(personalPrefix + userID)
}

func RoleTopic(role string) Topic {
	return Topic(rolePrefix + strings.ToUpper(role))
}

func EntityTopic(class EntityClass, entityID string) Topic {
	return Topic(string(class) + ":" + entityID)
}

func (t Topic) String() string {
	return string(t)
}

func (t Topic) Kind() TopicKind {
	s := string(t)
	switch {
	case t == TopicWhatsAppUpdates:
		return TopicKindShared
	case strings.HasPrefix(s, personalPrefix):
		return TopicKindPersonal
	case strings.HasPrefix(s, rolePrefix):
		return TopicKindRole
	default:
		return TopicKindEntity
	}
}

func (c EntityClass) Valid() bool {
	return c == EntityPractice || c == EntityClient
}

// DefaultTopics returns the topics a connection joins on admission.
func DefaultTopics(p Principal) []Topic {
	topics := []Topic{PersonalTopic(p.UserID)}
	if p.Role != "" {
		topics = append(topics, RoleTopic(p.Role))
	}
	return topics
}

// ParseEntityID normalizes a client supplied entity id.
func ParseEntityID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if !entityIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: malformed entity id %q", ErrInvalidSubscription, raw)
	}
	return id, nil
}
