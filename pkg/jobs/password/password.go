// Package password registers the brute-force password check for the
// password job family.
package password

import (
	"context"
	"errors"

	"github.com/nemanja-m/hivemind/pkg/core"
	"github.com/nemanja-m/hivemind/pkg/jobs"
)

// ctxCheckEvery bounds how many candidates are hashed between context checks.
const ctxCheckEvery = 4096

var ErrMissingChunk = errors.New("work item carries no range chunk")

func init() {
	jobs.MustRegister(core.FamilyPassword, Crack)
}

// Crack hashes every candidate of the item's chunk and reports the first one
// whose zero-padded form matches the target hash, or core.NotFound.
func Crack(ctx context.Context, item core.WorkItem) (core.Outcome, error) {
	chunk := item.Chunk
	if chunk == nil {
		return core.Outcome{}, ErrMissingChunk
	}

	outcome := &core.PasswordOutcome{
		UserID:   chunk.UserID,
		Username: chunk.Username,
		Value:    core.NotFound,
		Width:    chunk.Width,
	}

	for candidate := chunk.Start; candidate <= chunk.End; candidate++ {
		if (candidate-chunk.Start)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return core.Outcome{}, err
			}
		}
		if core.Hash(core.FormatPassword(candidate, chunk.Width)) == chunk.TargetHash {
			outcome.Value = candidate
			break
		}
	}

	return core.Outcome{Password: outcome}, nil
}
