package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Family identifies one of the independent job kinds. Each family runs its
// own master and scheduling engine.
type Family string

const (
	FamilyPassword  Family = "password"
	FamilySubstring Family = "substring"
)

// JobID is assigned by a master in submission order, starting at zero.
type JobID int64

// NotFound is the password value reported when a chunk holds no match.
const NotFound int64 = -1

// ErrWorkFunction marks a worker failure caused by the work function itself
// rather than by the worker's process or transport.
var ErrWorkFunction = errors.New("work function failed")

// MaxRangeValue is the largest password candidate a domain may hold.
// Larger values do not survive a float64 round trip.
const MaxRangeValue int64 = 1<<53 - 1

type Participant struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
	DNA          string `json:"dna"`
}

// PasswordJob asks for the cleartext of TargetHash.
type PasswordJob struct {
	UserID     int    `json:"user_id"`
	Username   string `json:"username"`
	TargetHash string `json:"target_hash"`
}

// PairJob asks for the longest common substring of two participants' DNA.
type PairJob struct {
	A Participant `json:"a"`
	B Participant `json:"b"`
}

// Job is a submission to one family's master. Exactly one of Password and
// Pair is set, matching Family.
type Job struct {
	ID       JobID        `json:"id"`
	Family   Family       `json:"family"`
	Password *PasswordJob `json:"password,omitempty"`
	Pair     *PairJob     `json:"pair,omitempty"`
}

// RangeChunk is an inclusive sub-range of a password search domain.
type RangeChunk struct {
	Start      int64  `json:"start,string"`
	End        int64  `json:"end,string"`
	UserID     int    `json:"user_id"`
	Username   string `json:"username"`
	TargetHash string `json:"target_hash"`
	Width      int    `json:"width"`
}

// Size returns the number of candidate values in the chunk.
func (c RangeChunk) Size() int64 {
	if c.End < c.Start {
		return 0
	}
	return c.End - c.Start + 1
}

// WorkItem is one schedulable unit. Chunk is set for the password family,
// Pair for the substring family.
type WorkItem struct {
	JobID  JobID       `json:"job_id"`
	Family Family      `json:"family"`
	Chunk  *RangeChunk `json:"chunk,omitempty"`
	Pair   *PairJob    `json:"pair,omitempty"`
}

type PasswordOutcome struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Value    int64  `json:"value,string"`
	Width    int    `json:"width"`
}

func (o PasswordOutcome) Found() bool {
	return o.Value != NotFound
}

// MatchOutcome is attached to both compared participants. An empty Substring
// means the pair shares nothing.
type MatchOutcome struct {
	AID       int    `json:"a_id"`
	BID       int    `json:"b_id"`
	Substring string `json:"substring"`
}

func (o MatchOutcome) Found() bool {
	return o.Substring != ""
}

type Outcome struct {
	Password *PasswordOutcome `json:"password,omitempty"`
	Match    *MatchOutcome    `json:"match,omitempty"`
}

// Positive reports whether the outcome carries something worth forwarding to
// the result sink.
func (o Outcome) Positive() bool {
	switch {
	case o.Password != nil:
		return o.Password.Found()
	case o.Match != nil:
		return o.Match.Found()
	}
	return false
}

type WorkResult struct {
	JobID   JobID     `json:"job_id"`
	Worker  uuid.UUID `json:"worker"`
	Outcome Outcome   `json:"outcome"`
}

// WorkFunc is the deterministic computation a worker applies to an item.
type WorkFunc func(ctx context.Context, item WorkItem) (Outcome, error)
