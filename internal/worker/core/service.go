package core

import (
	"context"
	"errors"

	"github.com/nemanja-m/hivemind/pkg/core"
)

// RegistryClient announces this process to the master.
type RegistryClient interface {
	// Join registers slots work slots served at addr and returns the ids of
	// the slots the masters attached.
	Join(ctx context.Context, addr string, slots int) ([]string, error)
	Close() error
}

type WorkerService interface {
	Run(ctx context.Context) error
}

// TaskExecutor applies the work function of an item's family.
type TaskExecutor interface {
	Execute(ctx context.Context, item core.WorkItem) (core.Outcome, error)
}

// SlotBook tracks the slots attached by the masters and reports when every
// one of them has been released.
type SlotBook interface {
	Expect(slots []string)
	Released() <-chan struct{}
}

// ErrJoinRefused is returned by Join when the master no longer accepts
// workers. Retrying will not help.
var ErrJoinRefused = errors.New("master refused join")
