package matchmaking

import (
	"errors"

	"github.com/mcdev12/skirmish/go/internal/session"
)

var (
	ErrAlreadyQueued      = session.ErrAlreadyQueued
	ErrAlreadyInMatch     = session.ErrAlreadyInMatch
	ErrNotQueued          = session.ErrNotQueued
	ErrNotInMatch         = session.ErrNotInMatch
	ErrUnknownParticipant = session.ErrUnknownParticipant
	ErrNoQueueForMode     = errors.New("no queue for mode")
	ErrQueueFull          = errors.New("queue is full")
	ErrMatchNotFound      = errors.New("match not found")
	ErrShuttingDown       = errors.New("matchmaking is shutting down")
)
