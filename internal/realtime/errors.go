package realtime

import "errors"

var (
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotSubscribed     = errors.New("connection is not subscribed to room")
	ErrInvalidStatus     = errors.New("invalid presence status")
	ErrInvalidUser       = errors.New("invalid user id")
	ErrOutboxFull        = errors.New("outbox full")
	ErrOutboxClosed      = errors.New("outbox closed")
)
