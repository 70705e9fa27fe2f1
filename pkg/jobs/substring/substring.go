// Package substring registers the longest-common-substring comparison for
// the substring job family.
package substring

import (
	"context"
	"errors"

	"github.com/nemanja-m/hivemind/pkg/core"
	"github.com/nemanja-m/hivemind/pkg/jobs"
)

var ErrMissingPair = errors.New("work item carries no participant pair")

func init() {
	jobs.MustRegister(core.FamilySubstring, Compare)
}

func Compare(ctx context.Context, item core.WorkItem) (core.Outcome, error) {
	pair := item.Pair
	if pair == nil {
		return core.Outcome{}, ErrMissingPair
	}
	if err := ctx.Err(); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Match: &core.MatchOutcome{
		AID:       pair.A.ID,
		BID:       pair.B.ID,
		Substring: Longest(pair.A.DNA, pair.B.DNA),
	}}, nil
}

// Longest returns the longest common substring of a and b. Ties resolve to
// the earliest occurrence in a.
func Longest(a, b string) string {
	if a == "" || b == "" {
		return ""
	}
	// Two rolling rows of the suffix-length table.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	best, bestEnd := 0, 0
	for i := 1; i <= len(a); i++ {
		for k := 1; k <= len(b); k++ {
			if a[i-1] == b[k-1] {
				curr[k] = prev[k-1] + 1
				if curr[k] > best {
					best = curr[k]
					bestEnd = i
				}
			} else {
				curr[k] = 0
			}
		}
		prev, curr = curr, prev
	}
	return a[bestEnd-best : bestEnd]
}
