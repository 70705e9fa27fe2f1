package service

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	coord "github.com/nemanja-m/hivemind/internal/coordinator/core"
	"github.com/nemanja-m/hivemind/internal/shared/logging"
	"github.com/nemanja-m/hivemind/pkg/core"
	"github.com/nemanja-m/hivemind/pkg/local"
)

const sinkName = "result-sink"

// Reaper is the process-wide watcher that exits once every component stops.
type Reaper interface {
	Watch(name string)
	Unwatch(name string)
}

// ResultSink is where the masters forward their findings.
type ResultSink interface {
	PasswordFound(outcome core.PasswordOutcome)
	MatchFound(outcome core.MatchOutcome)
	JobFinished(summary coord.JobSummary)
	Flush(producer string)
	Kill()
}

type participantResult struct {
	participant core.Participant
	password    string
	partnerID   int
	substring   string
}

type sinkMsg struct {
	password *core.PasswordOutcome
	match    *core.MatchOutcome
	summary  *coord.JobSummary
	flush    string
}

// ResultCollector gathers results for every participant on one goroutine and
// writes them once every producer has flushed.
type ResultCollector struct {
	msgs     chan sinkMsg
	kill     chan struct{}
	killOnce sync.Once
	done     chan struct{}

	pending map[string]struct{}
	results map[int]*participantResult
	order   []int
	jobs    map[core.Family]int

	outputPath string
	write      func(path string, lines []string) error

	reaper Reaper
	logger logging.Logger
}

func NewResultCollector(
	participants []core.Participant,
	producers []string,
	outputPath string,
	reaper Reaper,
	logger logging.Logger,
) *ResultCollector {
	c := &ResultCollector{
		msgs:       make(chan sinkMsg, 256),
		kill:       make(chan struct{}),
		done:       make(chan struct{}),
		pending:    make(map[string]struct{}, len(producers)),
		results:    make(map[int]*participantResult, len(participants)),
		jobs:       make(map[core.Family]int),
		outputPath: outputPath,
		write:      local.WriteLines,
		reaper:     reaper,
		logger:     logger.With("component", sinkName),
	}
	for _, producer := range producers {
		c.pending[producer] = struct{}{}
	}
	for _, p := range participants {
		c.results[p.ID] = &participantResult{participant: p, partnerID: -1}
		c.order = append(c.order, p.ID)
	}
	slices.Sort(c.order)
	return c
}

func (c *ResultCollector) Start() {
	c.reaper.Watch(sinkName)
	go c.run()
}

func (c *ResultCollector) Done() <-chan struct{} {
	return c.done
}

func (c *ResultCollector) PasswordFound(outcome core.PasswordOutcome) {
	c.send(sinkMsg{password: &outcome})
}

func (c *ResultCollector) MatchFound(outcome core.MatchOutcome) {
	c.send(sinkMsg{match: &outcome})
}

func (c *ResultCollector) JobFinished(summary coord.JobSummary) {
	c.send(sinkMsg{summary: &summary})
}

// Flush marks producer as finished. Output is written after the last
// attached producer flushes, and the collector then stops.
func (c *ResultCollector) Flush(producer string) {
	c.send(sinkMsg{flush: producer})
}

// Kill stops the collector and discards everything gathered so far.
func (c *ResultCollector) Kill() {
	c.killOnce.Do(func() { close(c.kill) })
}

func (c *ResultCollector) send(msg sinkMsg) {
	select {
	case c.msgs <- msg:
	case <-c.done:
	}
}

func (c *ResultCollector) run() {
	defer func() {
		close(c.done)
		c.reaper.Unwatch(sinkName)
	}()

	for {
		select {
		case <-c.kill:
			c.logger.Warn("Result sink killed, results discarded")
			return
		default:
		}

		select {
		case <-c.kill:
			c.logger.Warn("Result sink killed, results discarded")
			return
		case msg := <-c.msgs:
			if c.handle(msg) {
				return
			}
		}
	}
}

func (c *ResultCollector) handle(msg sinkMsg) (stop bool) {
	switch {
	case msg.password != nil:
		c.recordPassword(*msg.password)
	case msg.match != nil:
		c.recordMatch(*msg.match)
	case msg.summary != nil:
		c.jobs[msg.summary.Family]++
		c.logger.Debug("Job finished",
			"family", msg.summary.Family,
			"job_id", msg.summary.JobID,
			"finished_jobs", c.jobs[msg.summary.Family],
		)
	case msg.flush != "":
		if _, ok := c.pending[msg.flush]; !ok {
			c.logger.Warn("Flush from unknown producer", "producer", msg.flush)
			return false
		}
		delete(c.pending, msg.flush)
		c.logger.Info("Producer flushed", "producer", msg.flush, "remaining", len(c.pending))
		if len(c.pending) > 0 {
			return false
		}
		if err := c.write(c.outputPath, c.lines()); err != nil {
			c.logger.Error("Failed to write results", "path", c.outputPath, "error", err)
		} else {
			c.logger.Info("Results written", "path", c.outputPath, "participants", len(c.order))
		}
		return true
	}
	return false
}

func (c *ResultCollector) recordPassword(outcome core.PasswordOutcome) {
	entry, ok := c.results[outcome.UserID]
	if !ok {
		c.logger.Warn("Password for unknown participant", "user_id", outcome.UserID)
		return
	}
	entry.password = core.FormatPassword(outcome.Value, outcome.Width)
	c.logger.Info("Found password", "user_id", outcome.UserID, "username", outcome.Username, "password", entry.password)
}

// recordMatch applies a match to both participants, keeping for each the
// longest substring seen so far. Ties keep the earlier match.
func (c *ResultCollector) recordMatch(outcome core.MatchOutcome) {
	c.improveMatch(outcome.AID, outcome.BID, outcome.Substring)
	c.improveMatch(outcome.BID, outcome.AID, outcome.Substring)
}

func (c *ResultCollector) improveMatch(id, partnerID int, substring string) {
	entry, ok := c.results[id]
	if !ok {
		c.logger.Warn("Match for unknown participant", "participant_id", id)
		return
	}
	if len(substring) <= len(entry.substring) {
		return
	}
	entry.partnerID = partnerID
	entry.substring = substring
	c.logger.Info("New longest gene partner", "participant_id", id, "partner_id", partnerID, "length", len(substring))
}

func (c *ResultCollector) lines() []string {
	lines := make([]string, 0, len(c.order)+1)
	lines = append(lines, strings.Join([]string{"id", "name", "password", "partner_id", "substring"}, "\t"))
	for _, id := range c.order {
		entry := c.results[id]
		partner := "-"
		if entry.partnerID >= 0 {
			partner = strconv.Itoa(entry.partnerID)
		}
		lines = append(lines, fmt.Sprintf("%d\t%s\t%s\t%s\t%s",
			id,
			entry.participant.Name,
			orDash(entry.password),
			partner,
			orDash(entry.substring),
		))
	}
	return lines
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
