package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockProber struct {
	mu     sync.Mutex
	failed map[string]error
	probes map[string]int
}

func newMockProber() *mockProber {
	return &mockProber{failed: make(map[string]error), probes: make(map[string]int)}
}

func (p *mockProber) Probe(ctx context.Context, address string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[address]++
	return p.failed[address]
}

func (p *mockProber) fail(address string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[address] = err
}

func (p *mockProber) probeCount(address string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes[address]
}

func TestHealthChecker_FailsUnreachableEndpoint(t *testing.T) {
	prober := newMockProber()
	logger := newRecordingLogger()
	checker := NewWorkerHealthChecker(time.Minute, time.Second, prober, logger)

	down := []*fakeHandle{newFakeHandle("10.0.0.1:7878"), newFakeHandle("10.0.0.1:7878")}
	up := newFakeHandle("10.0.0.2:7878")
	checker.Track("10.0.0.1:7878", down[0], down[1])
	checker.Track("10.0.0.2:7878", up)

	prober.fail("10.0.0.1:7878", errors.New("connection refused"))
	checker.checkEndpoints(context.Background())

	for _, h := range down {
		select {
		case <-h.Done():
		default:
			t.Fatalf("handle %s was not failed", h.ID())
		}
		if h.Err() == nil {
			t.Errorf("expected failure cause on handle %s", h.ID())
		}
	}
	select {
	case <-up.Done():
		t.Error("healthy handle was failed")
	default:
	}
	if !logger.contains("Removing unreachable worker endpoint") {
		t.Errorf("expected removal to be logged, got %v", logger.getMessages())
	}

	// A failed endpoint is no longer probed.
	checker.checkEndpoints(context.Background())
	if got := prober.probeCount("10.0.0.1:7878"); got != 1 {
		t.Errorf("expected 1 probe of failed endpoint, got %d", got)
	}
	if got := prober.probeCount("10.0.0.2:7878"); got != 2 {
		t.Errorf("expected 2 probes of healthy endpoint, got %d", got)
	}
}

func TestHealthChecker_ForgetsStoppedHandles(t *testing.T) {
	prober := newMockProber()
	checker := NewWorkerHealthChecker(time.Minute, time.Second, prober, newRecordingLogger())

	h := newFakeHandle("10.0.0.3:7878")
	checker.Track("10.0.0.3:7878", h)
	h.Stop()

	checker.checkEndpoints(context.Background())
	if got := prober.probeCount("10.0.0.3:7878"); got != 0 {
		t.Errorf("expected endpoint without live handles to be skipped, got %d probes", got)
	}
}

func TestHealthChecker_StartStopsOnContextCancel(t *testing.T) {
	prober := newMockProber()
	checker := NewWorkerHealthChecker(10*time.Millisecond, time.Second, prober, newRecordingLogger())
	checker.Track("10.0.0.4:7878", newFakeHandle("10.0.0.4:7878"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(done)
	}()

	time.Sleep(55 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health checker did not stop after cancel")
	}
	if got := prober.probeCount("10.0.0.4:7878"); got < 2 {
		t.Errorf("expected periodic probes, got %d", got)
	}
}
