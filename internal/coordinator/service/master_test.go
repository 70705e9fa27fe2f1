package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coord "github.com/nemanja-m/hivemind/internal/coordinator/core"
	"github.com/nemanja-m/hivemind/internal/coordinator/storage"
	"github.com/nemanja-m/hivemind/pkg/core"
)

const waitFor = 2 * time.Second

type masterFixture struct {
	master *Master
	sink   *fakeSink
	store  *storage.InMemoryJobStore
	reaper *countingReaper
	logger *recordingLogger
}

func newMasterFixture(t *testing.T, family core.Family, policy coord.Policy) *masterFixture {
	t.Helper()
	f := &masterFixture{
		sink:   &fakeSink{},
		store:  storage.NewInMemoryJobStore(),
		reaper: newCountingReaper(),
		logger: newRecordingLogger(),
	}
	f.master = NewMaster(MasterOptions{
		Family: family,
		Policy: policy,
		Sink:   f.sink,
		Store:  f.store,
		Reaper: f.reaper,
		Logger: f.logger,
	})
	f.master.Start()
	t.Cleanup(f.master.Kill)
	return f
}

func singleChunkPolicy() coord.Policy {
	return coord.Policy{ChunkSize: 10, RangeMin: 0, RangeMax: 9, MaxAttempts: 3}
}

func crackJob(userID int) core.Job {
	return core.Job{
		Family: core.FamilyPassword,
		Password: &core.PasswordJob{
			UserID:     userID,
			Username:   "ana",
			TargetHash: core.Hash("7"),
		},
	}
}

func compareJob() core.Job {
	return core.Job{
		Family: core.FamilySubstring,
		Pair: &core.PairJob{
			A: core.Participant{ID: 1, DNA: "GATTACA"},
			B: core.Participant{ID: 2, DNA: "TTAC"},
		},
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for termination")
	}
}

func TestMaster_ShutdownWaitsForInFlightChunk(t *testing.T) {
	f := newMasterFixture(t, core.FamilyPassword, singleChunkPolicy())
	ctx := context.Background()

	worker := newFakeHandle("local")
	require.NoError(t, f.master.Attach(worker))

	id, err := f.master.Submit(ctx, crackJob(1))
	require.NoError(t, err)
	assert.Equal(t, core.JobID(0), id)

	req, ok := worker.next(waitFor)
	require.True(t, ok, "chunk was not dispatched")
	assert.Equal(t, int64(0), req.Item.Chunk.Start)
	assert.Equal(t, int64(9), req.Item.Chunk.End)

	f.master.Shutdown()

	status, err := f.master.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateDraining, status.State)

	_, err = f.master.Submit(ctx, crackJob(2))
	assert.ErrorIs(t, err, ErrNotAccepting)

	req.ReplyTo.Deliver(core.WorkResult{
		JobID:  req.Item.JobID,
		Worker: worker.ID(),
		Outcome: core.Outcome{Password: &core.PasswordOutcome{
			UserID: 1, Username: "ana", Value: 7, Width: 1,
		}},
	})

	waitDone(t, f.master.Done())

	got := f.sink.snapshot()
	require.Len(t, got.passwords, 1)
	assert.Equal(t, int64(7), got.passwords[0].Value)
	assert.Equal(t, []string{"master-password"}, got.flushed)
	assert.False(t, got.killed)
	require.Len(t, got.summaries, 1)
	assert.Equal(t, 1, got.summaries[0].Hits)

	assert.True(t, worker.isStopped())
	assert.Equal(t, StateTerminated, f.master.State())
	assert.Equal(t, 0, f.reaper.count("master-password"))

	record, err := f.store.GetJob(core.FamilyPassword, 0)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, coord.JobStatusCompleted, record.Status)
	assert.NotNil(t, record.CompletedAt)
}

func TestMaster_ShutdownWithoutWorkTerminates(t *testing.T) {
	f := newMasterFixture(t, core.FamilyPassword, singleChunkPolicy())

	f.master.Shutdown()
	waitDone(t, f.master.Done())

	_, err := f.master.Submit(context.Background(), crackJob(1))
	assert.ErrorIs(t, err, ErrMasterStopped)
	assert.Equal(t, []string{"master-password"}, f.sink.snapshot().flushed)
}

func TestMaster_ShutdownWithoutWorkersAbortsJobs(t *testing.T) {
	f := newMasterFixture(t, core.FamilyPassword, singleChunkPolicy())

	_, err := f.master.Submit(context.Background(), crackJob(1))
	require.NoError(t, err)

	f.master.Shutdown()
	waitDone(t, f.master.Done())

	record, err := f.store.GetJob(core.FamilyPassword, 0)
	require.NoError(t, err)
	assert.Equal(t, coord.JobStatusAborted, record.Status)
}

func TestMaster_KillDiscardsResults(t *testing.T) {
	f := newMasterFixture(t, core.FamilyPassword, singleChunkPolicy())

	worker := newFakeHandle("local")
	require.NoError(t, f.master.Attach(worker))
	_, err := f.master.Submit(context.Background(), crackJob(1))
	require.NoError(t, err)
	_, ok := worker.next(waitFor)
	require.True(t, ok)

	f.master.Kill()
	waitDone(t, f.master.Done())

	got := f.sink.snapshot()
	assert.True(t, got.killed)
	assert.Empty(t, got.flushed)
	assert.True(t, worker.isStopped())

	record, err := f.store.GetJob(core.FamilyPassword, 0)
	require.NoError(t, err)
	assert.Equal(t, coord.JobStatusAborted, record.Status)
}

func TestMaster_ReissuesPairAfterWorkerFailure(t *testing.T) {
	f := newMasterFixture(t, core.FamilySubstring, coord.DefaultPolicy())
	ctx := context.Background()

	first := newFakeHandle("10.0.0.1:7878")
	second := newFakeHandle("10.0.0.2:7878")
	require.NoError(t, f.master.Attach(first, second))

	_, err := f.master.Submit(ctx, compareJob())
	require.NoError(t, err)

	req, ok := first.next(waitFor)
	require.True(t, ok, "pair was not dispatched to the first worker")

	first.Fail(errors.New("connection reset"))

	reissued, ok := second.next(waitFor)
	require.True(t, ok, "pair was not reissued")
	assert.Equal(t, req.Item.Pair, reissued.Item.Pair)

	reissued.ReplyTo.Deliver(core.WorkResult{
		JobID:   reissued.Item.JobID,
		Worker:  second.ID(),
		Outcome: core.Outcome{Match: &core.MatchOutcome{AID: 1, BID: 2, Substring: "TTAC"}},
	})

	require.Eventually(t, func() bool {
		return len(f.sink.snapshot().summaries) == 1
	}, waitFor, 10*time.Millisecond)

	got := f.sink.snapshot()
	require.Len(t, got.matches, 1)
	assert.Equal(t, "TTAC", got.matches[0].Substring)
	assert.Equal(t, 1, got.summaries[0].Failures)

	status, err := f.master.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Engine.Workers)
	assert.Empty(t, status.Engine.Trackers)
}

func TestMaster_IgnoresStaleResults(t *testing.T) {
	f := newMasterFixture(t, core.FamilyPassword, singleChunkPolicy())
	ctx := context.Background()

	worker := newFakeHandle("local")
	require.NoError(t, f.master.Attach(worker))
	_, err := f.master.Submit(ctx, crackJob(1))
	require.NoError(t, err)

	f.master.Deliver(core.WorkResult{JobID: 0, Worker: uuid.New()})

	status, err := f.master.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAccepting, status.State)
	assert.Equal(t, 1, status.Engine.Busy)
	assert.True(t, f.logger.contains("Ignoring recoverable fault"))
}

func TestMaster_Status(t *testing.T) {
	f := newMasterFixture(t, core.FamilyPassword, coord.Policy{ChunkSize: 5, RangeMin: 0, RangeMax: 99})
	ctx := context.Background()

	require.NoError(t, f.master.Attach(newFakeHandle("local"), newFakeHandle("local")))
	_, err := f.master.Submit(ctx, crackJob(1))
	require.NoError(t, err)

	status, err := f.master.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.FamilyPassword, status.Family)
	assert.Equal(t, StateAccepting, status.State)
	assert.Equal(t, core.JobID(1), status.NextJobID)
	assert.Equal(t, 2, status.Engine.Workers)
	assert.Equal(t, 2, status.Engine.Busy)
	require.Len(t, status.Engine.Trackers, 1)
	assert.Equal(t, 2, status.Engine.Trackers[0].InFlight)
}

func TestMaster_RejectsWrongFamily(t *testing.T) {
	f := newMasterFixture(t, core.FamilyPassword, singleChunkPolicy())

	_, err := f.master.Submit(context.Background(), compareJob())
	assert.ErrorIs(t, err, ErrWrongFamily)
}
