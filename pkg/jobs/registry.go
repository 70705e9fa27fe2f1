package jobs

import (
	"fmt"
	"slices"
	"sync"

	"github.com/nemanja-m/hivemind/pkg/core"
)

var (
	mu       sync.RWMutex
	registry = make(map[core.Family]core.WorkFunc)
)

// Register binds the work function for a family. Families register
// themselves from init, so callers only need a blank import.
func Register(family core.Family, fn core.WorkFunc) error {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[family]; exists {
		return fmt.Errorf("work function already registered: %s", family)
	}
	registry[family] = fn
	return nil
}

func MustRegister(family core.Family, fn core.WorkFunc) {
	if err := Register(family, fn); err != nil {
		panic(err)
	}
}

func Get(family core.Family) (core.WorkFunc, error) {
	mu.RLock()
	defer mu.RUnlock()
	fn, exists := registry[family]
	if !exists {
		return nil, fmt.Errorf("work function not found: %s", family)
	}
	return fn, nil
}

func List() []core.Family {
	mu.RLock()
	defer mu.RUnlock()
	families := make([]core.Family, 0, len(registry))
	for family := range registry {
		families = append(families, family)
	}
	slices.Sort(families)
	return families
}
