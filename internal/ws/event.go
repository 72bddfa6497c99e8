package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind is the name a frame carries on the wire.
type EventKind string

const (
	EventConnected        EventKind = "connected"
	EventNotification     EventKind = "notification"
	EventWhatsAppMessage  EventKind = "whatsapp:message"
	EventWhatsAppStatus   EventKind = "whatsapp:status"
	EventWhatsAppTyping   EventKind = "whatsapp:typing"
	EventPracticeUpdate   EventKind = "practice:update"
	EventPracticeDeadline EventKind = "practice:deadline"
	EventClientUpdate     EventKind = "client:update"
	EventEmailReceived    EventKind = "email:received"
	EventSystemStatus     EventKind = "system:status"
	EventDashboardUpdate  EventKind = "dashboard:update"
	EventSubscribed       EventKind = "subscribed"
	EventPong             EventKind = "pong"
	EventError            EventKind = "error"
)

func (k EventKind) String() string {
	return string(k)
}

// Event is the closed set of payloads the service pushes to clients. Every
// payload type below implements it; nothing outside this package can.
type Event interface {
	Kind() EventKind
	sealed()
}

// Frame is the envelope written to the socket.
type Frame struct {
	ID        string    `json:"id"`
	Event     EventKind `json:"event"`
	Data      Event     `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

// Encode wraps ev in a Frame and serializes it once for fan-out.
func Encode(ev Event) ([]byte, error) {
	frame := Frame{
		ID:        uuid.NewString(),
		Event:     ev.Kind(),
		Data:      ev,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", ev.Kind(), err)
	}
	return data, nil
}

type Connected struct {
	ConnectionID string  `json:"connectionId"`
	UserID       string  `json:"userId"`
	Email        string  `json:"email"`
	Role         string  `json:"role"`
	Topics       []Topic `json:"topics"`
}

type Notification struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Link      string         `json:"link,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type WhatsAppMessage struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Body      string    `json:"body"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	Direction string    `json:"direction,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type WhatsAppStatus struct {
	MessageID string    `json:"messageId"`
	ClientID  string    `json:"clientId,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type WhatsAppTyping struct {
	ClientID string `json:"clientId"`
	UserID   string `json:"userId"`
	Email    string `json:"email,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

type PracticeUpdate struct {
	PracticeID string         `json:"practiceId"`
	Action     string         `json:"action"`
	UpdatedBy  string         `json:"updatedBy,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

type PracticeDeadline struct {
	PracticeID string    `json:"practiceId"`
	Title      string    `json:"title"`
	DueDate    time.Time `json:"dueDate"`
	DaysLeft   int       `json:"daysLeft"`
}

type ClientUpdate struct {
	ClientID  string         `json:"clientId"`
	Action    string         `json:"action"`
	UpdatedBy string         `json:"updatedBy,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type EmailReceived struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"clientId,omitempty"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type SystemStatus struct {
	Status   string            `json:"status"`
	Message  string            `json:"message,omitempty"`
	Services map[string]string `json:"services,omitempty"`
}

// DashboardUpdate goes to Role when set, to everyone otherwise.
type DashboardUpdate struct {
	Section string         `json:"section"`
	Role    string         `json:"role,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type Rejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Subscribed acknowledges a subscribe request.
type Subscribed struct {
	Request  string      `json:"request"`
	Topics   []Topic     `json:"topics"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

type Pong struct{}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Connected) Kind() EventKind        { return EventConnected }
func (Notification) Kind() EventKind     { return EventNotification }
func (WhatsAppMessage) Kind() EventKind  { return EventWhatsAppMessage }
func (WhatsAppStatus) Kind() EventKind   { return EventWhatsAppStatus }
func (WhatsAppTyping) Kind() EventKind   { return EventWhatsAppTyping }
func (PracticeUpdate) Kind() EventKind   { return EventPracticeUpdate }
func (PracticeDeadline) Kind() EventKind { return EventPracticeDeadline }
func (ClientUpdate) Kind() EventKind     { return EventClientUpdate }
func (EmailReceived) Kind() EventKind    { return EventEmailReceived }
func (SystemStatus) Kind() EventKind     { return EventSystemStatus }
func (DashboardUpdate) Kind() EventKind  { return EventDashboardUpdate }
func (Subscribed) Kind() EventKind       { return EventSubscribed }
func (Pong) Kind() EventKind             { return EventPong }
func (ErrorEvent) Kind() EventKind       { return EventError }

func (Connected) sealed()        {}
func (Notification) sealed()     {}
func (WhatsAppMessage) sealed()  {}
func (WhatsAppStatus) sealed()   {}
func (WhatsAppTyping) sealed()   {}
func (PracticeUpdate) sealed()   {}
func (PracticeDeadline) sealed() {}
func (ClientUpdate) sealed()     {}
func (EmailReceived) sealed()    {}
func (SystemStatus) sealed()     {}
func (DashboardUpdate) sealed()  {}
func (Subscribed) sealed()       {}
func (Pong) sealed()             {}
func (ErrorEvent) sealed()       {}
