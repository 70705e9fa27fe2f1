package lifecycle

import (
	"context"

	"github.com/nemanja-m/hivemind/internal/shared/logging"
)

type opKind int

const (
	opWatch opKind = iota
	opUnwatch
)

type op struct {
	kind opKind
	name string
}

// Reaper tracks the named components of a process and closes Done once the
// last watched component has been unwatched. It fires at most once; watches
// arriving after that are ignored.
type Reaper struct {
	ops    chan op
	done   chan struct{}
	logger logging.Logger
}

func NewReaper(ctx context.Context, logger logging.Logger) *Reaper {
	r := &Reaper{
		ops:    make(chan op),
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.run(ctx)
	return r
}

func (r *Reaper) Watch(name string) {
	r.send(op{kind: opWatch, name: name})
}

func (r *Reaper) Unwatch(name string) {
	r.send(op{kind: opUnwatch, name: name})
}

func (r *Reaper) Done() <-chan struct{} {
	return r.done
}

func (r *Reaper) send(o op) {
	select {
	case r.ops <- o:
	case <-r.done:
	}
}

func (r *Reaper) run(ctx context.Context) {
	watched := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			r.logger.Warn("Reaper cancelled", "remaining", len(watched))
			close(r.done)
			return
		case o := <-r.ops:
			switch o.kind {
			case opWatch:
				watched[o.name] = struct{}{}
				r.logger.Debug("Watching component", "name", o.name)
			case opUnwatch:
				if _, ok := watched[o.name]; !ok {
					continue
				}
				delete(watched, o.name)
				r.logger.Info("Component terminated", "name", o.name, "remaining", len(watched))
				if len(watched) == 0 {
					r.logger.Info("All components terminated")
					close(r.done)
					return
				}
			}
		}
	}
}
