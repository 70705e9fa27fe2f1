package core

import (
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"

	"github.com/nemanja-m/hivemind/pkg/core"
)

// TestRangeTracker_CoversDomainExactlyOnce drives a tracker with random
// completions and failures and checks that the completed chunks tile the
// domain without overlap.
func TestRangeTracker_CoversDomainExactlyOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := rapid.Int64Range(0, 1_000).Draw(t, "lo")
		hi := rapid.Int64Range(lo-1, lo+500).Draw(t, "hi")
		chunk := rapid.Int64Range(1, 64).Draw(t, "chunk")
		workerCount := rapid.IntRange(1, 6).Draw(t, "workers")

		tracker := NewRangeTracker(0, core.PasswordJob{UserID: 1}, Policy{
			ChunkSize: chunk,
			RangeMin:  lo,
			RangeMax:  hi,
		})

		workers := make([]uuid.UUID, workerCount)
		for i := range workers {
			workers[i] = uuid.New()
		}
		held := make(map[uuid.UUID]core.RangeChunk)
		var done []core.RangeChunk

		for steps := 0; !tracker.IsComplete(); steps++ {
			if steps > 100_000 {
				t.Fatalf("tracker did not complete")
			}
			for _, w := range workers {
				if _, busy := held[w]; busy {
					continue
				}
				if item, ok := tracker.AssignWork(w); ok {
					if item.Chunk.Size() < 1 || item.Chunk.Size() > chunk {
						t.Fatalf("chunk %+v violates ceiling %d", item.Chunk, chunk)
					}
					held[w] = *item.Chunk
				}
			}
			if len(held) == 0 {
				t.Fatalf("incomplete tracker handed out nothing: %+v", tracker.Status())
			}
			w := rapid.SampledFrom(heldWorkers(held)).Draw(t, "worker")
			if rapid.Bool().Draw(t, "fail") {
				tracker.WorkFailed(w, rapid.Bool().Draw(t, "charged"))
			} else {
				tracker.WorkCompleted(w, core.Outcome{})
				done = append(done, held[w])
			}
			delete(held, w)
		}

		slices.SortFunc(done, func(a, b core.RangeChunk) int {
			switch {
			case a.Start < b.Start:
				return -1
			case a.Start > b.Start:
				return 1
			}
			return 0
		})
		next := lo
		for _, c := range done {
			if c.Start != next {
				t.Fatalf("gap or overlap at %d: chunk %+v", next, c)
			}
			next = c.End + 1
		}
		if lo <= hi && next != hi+1 {
			t.Fatalf("coverage ends at %d, want %d", next-1, hi)
		}
	})
}

func heldWorkers(held map[uuid.UUID]core.RangeChunk) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return ids
}

func TestEngine_FairnessProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Property: a fresh pass spreads workers evenly across trackers with work
	properties.Property("workers per tracker differ by at most one", prop.ForAll(
		func(trackers, workers int) bool {
			engine, log := newTestEngine(Policy{ChunkSize: 1, RangeMin: 0, RangeMax: 1_000})
			for id := range trackers {
				if _, err := engine.Submit(passwordJob(core.JobID(id))); err != nil {
					return false
				}
			}
			for range workers {
				if err := engine.AddWorker(newStubHandle()); err != nil {
					return false
				}
			}

			perJob := make(map[core.JobID]int)
			for _, item := range log.current {
				perJob[item.JobID]++
			}
			lo, hi := workers, 0
			for id := range trackers {
				n := perJob[core.JobID(id)]
				lo = min(lo, n)
				hi = max(hi, n)
			}
			return hi-lo <= 1 && len(log.current) == workers
		},
		gen.IntRange(1, 8),
		gen.IntRange(1, 30),
	))

	// Property: removing a worker twice leaves the same state as removing it once
	properties.Property("remove worker is idempotent", prop.ForAll(
		func(workers, victim int) bool {
			engine, _ := newTestEngine(Policy{ChunkSize: 3, RangeMin: 0, RangeMax: 50})
			handles := make([]*stubHandle, workers)
			for i := range handles {
				handles[i] = newStubHandle()
				_ = engine.AddWorker(handles[i])
			}
			if _, err := engine.Submit(passwordJob(0)); err != nil {
				return false
			}
			id := handles[victim%workers].id
			if _, err := engine.RemoveWorker(id, nil); err != nil {
				return false
			}
			once := engine.Snapshot()
			if _, err := engine.RemoveWorker(id, nil); err != nil {
				return false
			}
			twice := engine.Snapshot()
			return once.Workers == twice.Workers &&
				once.Busy == twice.Busy &&
				slices.Equal(once.Trackers, twice.Trackers)
		},
		gen.IntRange(1, 10),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
