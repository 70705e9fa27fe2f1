package core

import "github.com/google/uuid"

// Mailbox receives worker replies. Every request names the mailbox its reply
// must go to, so replies route back regardless of where the worker runs.
type Mailbox interface {
	Deliver(result WorkResult)
}

type Request struct {
	Item    WorkItem
	ReplyTo Mailbox
}

// WorkerHandle is the master's reference to one worker slot.
//
// Dispatch must not block. A handle whose worker crashed, failed its work
// function or became unreachable closes Done; Err then reports the cause.
// Failures are never reported through the reply mailbox.
type WorkerHandle interface {
	ID() uuid.UUID
	Address() string
	Dispatch(req Request)
	Stop()
	Done() <-chan struct{}
	Err() error
}
