package service

import (
	"context"
	"fmt"

	coord "github.com/nemanja-m/hivemind/internal/coordinator/core"
	"github.com/nemanja-m/hivemind/pkg/core"
)

// Cluster is the operator-facing view of the masters of one process. It routes
// submissions by family and fans control commands out to every master.
type Cluster struct {
	masters  []*Master
	byFamily map[core.Family]*Master
	registry *WorkerRegistry
	sink     ResultSink
}

func NewCluster(registry *WorkerRegistry, sink ResultSink, masters ...*Master) *Cluster {
	byFamily := make(map[core.Family]*Master, len(masters))
	for _, m := range masters {
		byFamily[m.Family()] = m
	}
	return &Cluster{
		masters:  masters,
		byFamily: byFamily,
		registry: registry,
		sink:     sink,
	}
}

func (c *Cluster) Master(family core.Family) (*Master, bool) {
	m, ok := c.byFamily[family]
	return m, ok
}

func (c *Cluster) Submit(ctx context.Context, job core.Job) (core.JobID, error) {
	m, ok := c.byFamily[job.Family]
	if !ok {
		return 0, fmt.Errorf("%w: %q", coord.ErrUnknownFamily, job.Family)
	}
	return m.Submit(ctx, job)
}

func (c *Cluster) Status(ctx context.Context) ([]MasterStatus, error) {
	statuses := make([]MasterStatus, 0, len(c.masters))
	for _, m := range c.masters {
		s, err := m.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s = MasterStatus{Family: m.Family(), State: m.State()}
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func (c *Cluster) RegisterWorker(address string, slots int) ([]string, error) {
	if c.registry == nil {
		return nil, ErrRegistryClosed
	}
	return c.registry.RegisterWorker(address, slots)
}

// Shutdown closes worker registration and drains every master.
func (c *Cluster) Shutdown() {
	if c.registry != nil {
		c.registry.Close()
	}
	for _, m := range c.masters {
		m.Shutdown()
	}
}

// Kill stops every master and the sink at once.
func (c *Cluster) Kill() {
	if c.registry != nil {
		c.registry.Close()
	}
	for _, m := range c.masters {
		m.Kill()
	}
	c.sink.Kill()
}
