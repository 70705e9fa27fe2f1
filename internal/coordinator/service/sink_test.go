package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coord "github.com/nemanja-m/hivemind/internal/coordinator/core"
	"github.com/nemanja-m/hivemind/pkg/core"
)

type capturedWrite struct {
	mu    sync.Mutex
	path  string
	lines []string
	calls int
}

func (c *capturedWrite) write(path string, lines []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
	c.lines = lines
	c.calls++
	return nil
}

func (c *capturedWrite) get() (string, []string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path, c.lines, c.calls
}

func newTestCollector(producers ...string) (*ResultCollector, *capturedWrite, *countingReaper) {
	participants := []core.Participant{
		{ID: 2, Name: "Bojan"},
		{ID: 0, Name: "Ana"},
		{ID: 1, Name: "Vuk"},
	}
	reaper := newCountingReaper()
	captured := &capturedWrite{}
	c := NewResultCollector(participants, producers, "results.tsv", reaper, newRecordingLogger())
	c.write = captured.write
	c.Start()
	return c, captured, reaper
}

func TestResultCollector_WritesAfterEveryProducerFlushes(t *testing.T) {
	c, captured, reaper := newTestCollector("master-password", "master-substring")

	c.PasswordFound(core.PasswordOutcome{UserID: 1, Username: "Vuk", Value: 204, Width: 7})
	c.JobFinished(coord.JobSummary{JobID: 0, Family: core.FamilyPassword, Hits: 1})
	c.Flush("master-password")

	select {
	case <-c.Done():
		t.Fatal("collector stopped before every producer flushed")
	case <-time.After(50 * time.Millisecond):
	}
	_, _, calls := captured.get()
	assert.Zero(t, calls)

	c.MatchFound(core.MatchOutcome{AID: 0, BID: 2, Substring: "GAT"})
	c.Flush("master-substring")
	waitDone(t, c.Done())

	path, lines, calls := captured.get()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "results.tsv", path)
	assert.Equal(t, []string{
		"id\tname\tpassword\tpartner_id\tsubstring",
		"0\tAna\t-\t2\tGAT",
		"1\tVuk\t0000204\t-\t-",
		"2\tBojan\t-\t0\tGAT",
	}, lines)
	assert.Equal(t, 0, reaper.count(sinkName))
}

func TestResultCollector_KeepsLongestMatch(t *testing.T) {
	c, captured, _ := newTestCollector("master-substring")

	c.MatchFound(core.MatchOutcome{AID: 0, BID: 1, Substring: "ACG"})
	c.MatchFound(core.MatchOutcome{AID: 0, BID: 2, Substring: "TTA"})
	c.MatchFound(core.MatchOutcome{AID: 1, BID: 2, Substring: "GGCC"})
	c.Flush("master-substring")
	waitDone(t, c.Done())

	_, lines, _ := captured.get()
	require.Len(t, lines, 4)
	assert.Equal(t, "0\tAna\t-\t1\tACG", lines[1])
	assert.Equal(t, "1\tVuk\t-\t2\tGGCC", lines[2])
	assert.Equal(t, "2\tBojan\t-\t1\tGGCC", lines[3])
}

func TestResultCollector_IgnoresUnknownProducer(t *testing.T) {
	c, captured, _ := newTestCollector("master-password")

	c.Flush("master-other")
	c.Flush("master-password")
	waitDone(t, c.Done())

	_, lines, calls := captured.get()
	assert.Equal(t, 1, calls)
	assert.Len(t, lines, 4)
}

func TestResultCollector_KillDiscards(t *testing.T) {
	c, captured, reaper := newTestCollector("master-password")

	c.PasswordFound(core.PasswordOutcome{UserID: 0, Value: 1, Width: 7})
	c.Kill()
	c.Kill()
	waitDone(t, c.Done())

	_, _, calls := captured.get()
	assert.Zero(t, calls)
	assert.Equal(t, 0, reaper.count(sinkName))

	// Sends after the collector stopped must not block.
	c.Flush("master-password")
}
