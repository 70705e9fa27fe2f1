package main

import "github.com/nemanja-m/hivemind/pkg/core"

// seedJobs builds one password job per participant followed by one
// comparison job per unordered pair.
func seedJobs(participants []core.Participant) []core.Job {
	n := len(participants)
	jobs := make([]core.Job, 0, n+n*(n-1)/2)
	for _, p := range participants {
		jobs = append(jobs, core.Job{
			Family: core.FamilyPassword,
			Password: &core.PasswordJob{
				UserID:     p.ID,
				Username:   p.Name,
				TargetHash: p.PasswordHash,
			},
		})
	}
	for i := range participants {
		for j := i + 1; j < n; j++ {
			jobs = append(jobs, core.Job{
				Family: core.FamilySubstring,
				Pair:   &core.PairJob{A: participants[i], B: participants[j]},
			})
		}
	}
	return jobs
}
