package ws

import "errors"

var (
	ErrClientDisconnected  = errors.New("client disconnected")
	ErrSlowConsumer        = errors.New("send buffer full")
	ErrAlreadyAdmitted     = errors.New("connection already admitted")
	ErrNotAdmitted         = errors.New("connection not admitted")
	ErrInvalidSubscription = errors.New("invalid subscription request")
	ErrForbiddenEntity     = errors.New("entity not accessible")

	// ErrRegistryInvariant marks a topic member with no registered handle.
	// It is logged and treated as an already closed connection.
	ErrRegistryInvariant = errors.New("topic member without registered connection")
)
