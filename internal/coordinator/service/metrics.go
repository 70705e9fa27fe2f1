package service

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"
)

// latencyRecorder measures dispatch-to-result round trips per worker. It is
// owned by the master goroutine.
type latencyRecorder struct {
	inFlight  map[uuid.UUID]time.Time
	histogram *hdrhistogram.Histogram
}

func newLatencyRecorder() *latencyRecorder {
	return &latencyRecorder{
		inFlight: make(map[uuid.UUID]time.Time),
		// 1µs to 1h at three significant digits.
		histogram: hdrhistogram.New(1, int64(time.Hour/time.Microsecond), 3),
	}
}

func (r *latencyRecorder) dispatched(worker uuid.UUID, at time.Time) {
	r.inFlight[worker] = at
}

func (r *latencyRecorder) finished(worker uuid.UUID, at time.Time) {
	start, ok := r.inFlight[worker]
	if !ok {
		return
	}
	delete(r.inFlight, worker)
	_ = r.histogram.RecordValue(max(at.Sub(start).Microseconds(), 1))
}

func (r *latencyRecorder) forget(worker uuid.UUID) {
	delete(r.inFlight, worker)
}

// LatencyStats summarizes item round trips.
type LatencyStats struct {
	Count int64         `json:"count"`
	P50   time.Duration `json:"p50"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

func (r *latencyRecorder) stats() LatencyStats {
	return LatencyStats{
		Count: r.histogram.TotalCount(),
		P50:   time.Duration(r.histogram.ValueAtQuantile(50)) * time.Microsecond,
		P99:   time.Duration(r.histogram.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(r.histogram.Max()) * time.Microsecond,
	}
}
