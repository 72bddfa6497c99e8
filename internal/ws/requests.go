package ws

import (
	"context"
	"errors"

	"github.com/tidwall/gjson"
)

// Requests a client may send after admission. Frames look like
// {"event": "...", "data": ...}.
const (
	RequestSubscribeNotifications = "subscribe-notifications"
	RequestSubscribeWhatsApp      = "subscribe-whatsapp"
	RequestSubscribePractices     = "subscribe-practices"
	RequestSubscribeClients       = "subscribe-clients"
	RequestUnsubscribePractices   = "unsubscribe-practices"
	RequestUnsubscribeClients     = "unsubscribe-clients"
	RequestWhatsAppTyping         = "whatsapp-typing"
	RequestPing                   = "ping"
)

const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeUnknownEvent   = "UNKNOWN_EVENT"
	CodeForbidden      = "FORBIDDEN"
	CodeUnavailable    = "UNAVAILABLE"
)

// HandleRequest routes one inbound frame of connID. Failures are answered
// with an error event on the same connection and never close it.
func (h *Hub) HandleRequest(ctx context.Context, connID string, raw []byte) {
	if !gjson.ValidBytes(raw) {
		h.replyError(connID, CodeInvalidMessage, "Invalid message format")
		return
	}
	event := gjson.GetBytes(raw, "event")
	if event.Type != gjson.String || event.String() == "" {
		h.replyError(connID, CodeInvalidMessage, "Missing event name")
		return
	}
	data := gjson.GetBytes(raw, "data")

	switch name := event.String(); name {
	case RequestSubscribeNotifications:
		p, ok := h.registry.Get(connID)
		if !ok {
			return
		}
		h.subscribeTopics(connID, name, PersonalTopic(p.UserID))

	case RequestSubscribeWhatsApp:
		h.subscribeTopics(connID, name, TopicWhatsAppUpdates)

	case RequestSubscribePractices, RequestSubscribeClients:
		class := EntityPractice
		if name == RequestSubscribeClients {
			class = EntityClient
		}
		result, err := h.SubscribeEntities(ctx, connID, class, entityIDs(data))
		if err != nil {
			return
		}
		h.dispatcher.SendTo(connID, Subscribed{
			Request:  name,
			Topics:   nonNil(result.Joined),
			Rejected: result.Rejected,
		})

	case RequestUnsubscribePractices, RequestUnsubscribeClients:
		class := EntityPractice
		if name == RequestUnsubscribeClients {
			class = EntityClient
		}
		left := h.UnsubscribeEntities(connID, class, entityIDs(data))
		h.dispatcher.SendTo(connID, Subscribed{Request: name, Topics: left})

	case RequestWhatsAppTyping:
		clientID := data.Get("clientId")
		if !clientID.Exists() {
			h.replyError(connID, CodeInvalidMessage, "clientId is required")
			return
		}
		err := h.RelayTyping(ctx, connID, clientID.String(), data.Get("isTyping").Bool())
		switch {
		case err == nil, errors.Is(err, ErrNotAdmitted):
		case errors.Is(err, ErrInvalidSubscription):
			h.replyError(connID, CodeInvalidMessage, "Malformed clientId")
		case errors.Is(err, ErrForbiddenEntity):
			h.replyError(connID, CodeForbidden, "Client not accessible")
		default:
			h.replyError(connID, CodeUnavailable, "Typing indicator not relayed")
		}

	case RequestPing:
		h.dispatcher.SendTo(connID, Pong{})

	default:
		h.logger.Debug("Unknown client event", "clientID", connID, "event", name)
		h.replyError(connID, CodeUnknownEvent, "Unknown event: "+name)
	}
}

func (h *Hub) subscribeTopics(connID, request string, topic Topic) {
	if err := h.SubscribeTopic(connID, topic); err != nil {
		return
	}
	h.dispatcher.SendTo(connID, Subscribed{Request: request, Topics: []Topic{topic}})
}

func (h *Hub) replyError(connID, code, message string) {
	h.dispatcher.SendTo(connID, ErrorEvent{Code: code, Message: message})
}

// entityIDs accepts a bare list, {"ids": [...]}, or a single id.
func entityIDs(data gjson.Result) []string {
	if data.IsObject() {
		data = data.Get("ids")
	}
	if !data.Exists() || data.Type == gjson.Null {
		return nil
	}
	if !data.IsArray() {
		return []string{data.String()}
	}

	items := data.Array()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.String())
	}
	return ids
}

func nonNil(topics []Topic) []Topic {
	if topics == nil {
		return []Topic{}
	}
	return topics
}
