package service

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	coord "github.com/nemanja-m/hivemind/internal/coordinator/core"
	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/pkg/core"
)

type recordingLogger struct {
	mu       *sync.Mutex
	messages *[]string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, messages: &[]string{}}
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.messages = append(*l.messages, msg)
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record(msg) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record(msg) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record(msg) }
func (l *recordingLogger) Fatal(msg string, args ...any) { l.record(msg) }
func (l *recordingLogger) With(args ...any) logging.Logger {
	return l
}

func (l *recordingLogger) getMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(*l.messages)
}

func (l *recordingLogger) contains(msg string) bool {
	return slices.Contains(l.getMessages(), msg)
}

// fakeHandle is a worker slot driven by the test: requests queue up on
// requests and the test answers them through the reply mailbox.
type fakeHandle struct {
	id       uuid.UUID
	address  string
	requests chan core.Request

	mu      sync.Mutex
	err     error
	stopped bool
	once    sync.Once
	done    chan struct{}
}

func newFakeHandle(address string) *fakeHandle {
	return &fakeHandle{
		id:       uuid.New(),
		address:  address,
		requests: make(chan core.Request, 64),
		done:     make(chan struct{}),
	}
}

func (h *fakeHandle) ID() uuid.UUID   { return h.id }
func (h *fakeHandle) Address() string { return h.address }
func (h *fakeHandle) Dispatch(req core.Request) {
	h.requests <- req
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.once.Do(func() { close(h.done) })
}

func (h *fakeHandle) Fail(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	h.once.Do(func() { close(h.done) })
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *fakeHandle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// next waits for the next request dispatched to the handle.
func (h *fakeHandle) next(timeout time.Duration) (core.Request, bool) {
	select {
	case req := <-h.requests:
		return req, true
	case <-time.After(timeout):
		return core.Request{}, false
	}
}

type fakeSink struct {
	mu        sync.Mutex
	passwords []core.PasswordOutcome
	matches   []core.MatchOutcome
	summaries []coord.JobSummary
	flushed   []string
	killed    bool
}

func (s *fakeSink) PasswordFound(outcome core.PasswordOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords = append(s.passwords, outcome)
}

func (s *fakeSink) MatchFound(outcome core.MatchOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, outcome)
}

func (s *fakeSink) JobFinished(summary coord.JobSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
}

func (s *fakeSink) Flush(producer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = append(s.flushed, producer)
}

func (s *fakeSink) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killed = true
}

type sinkView struct {
	passwords []core.PasswordOutcome
	matches   []core.MatchOutcome
	summaries []coord.JobSummary
	flushed   []string
	killed    bool
}

func (s *fakeSink) snapshot() sinkView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sinkView{
		passwords: slices.Clone(s.passwords),
		matches:   slices.Clone(s.matches),
		summaries: slices.Clone(s.summaries),
		flushed:   slices.Clone(s.flushed),
		killed:    s.killed,
	}
}

type countingReaper struct {
	mu      sync.Mutex
	watched map[string]int
}

func newCountingReaper() *countingReaper {
	return &countingReaper{watched: make(map[string]int)}
}

func (r *countingReaper) Watch(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watched[name]++
}

func (r *countingReaper) Unwatch(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watched[name]--
}

func (r *countingReaper) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watched[name]
}
