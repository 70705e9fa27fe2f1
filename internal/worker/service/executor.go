package service

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/nemanja-m/hivemind/internal/worker/core"
	hive "github.com/nemanja-m/hivemind/pkg/core"
	"github.com/nemanja-m/hivemind/pkg/jobs"
)

type registryExecutor struct{}

// NewRegistryExecutor returns an executor backed by the work functions
// registered in pkg/jobs. A panicking work function is reported as an error.
func NewRegistryExecutor() core.TaskExecutor {
	return &registryExecutor{}
}

func (e *registryExecutor) Execute(ctx context.Context, item hive.WorkItem) (outcome hive.Outcome, err error) {
	work, err := jobs.Get(item.Family)
	if err != nil {
		return hive.Outcome{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work function for %s panicked: %v\n%s", item.Family, r, debug.Stack())
		}
	}()
	return work(ctx, item)
}
