package storage

import (
	"cmp"
	"slices"
	"sync"

	coord "github.com/nemanja-m/hivemind/internal/coordinator/core"
	"github.com/nemanja-m/hivemind/pkg/core"
)

type jobKey struct {
	family core.Family
	id     core.JobID
}

// InMemoryJobStore keeps job records of both families. Job ids are only
// unique within a family.
type InMemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[jobKey]*coord.JobRecord
}

func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{
		jobs: make(map[jobKey]*coord.JobRecord),
	}
}

func (s *InMemoryJobStore) SaveJob(job *coord.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobKey{job.Family, job.ID}] = job
	return nil
}

func (s *InMemoryJobStore) UpdateJob(job *coord.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobKey{job.Family, job.ID}] = job
	return nil
}

func (s *InMemoryJobStore) GetJob(family core.Family, id core.JobID) (*coord.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[jobKey{family, id}]
	if !exists {
		return nil, nil
	}
	return job, nil
}

// GetJobs returns matching jobs ordered by submission time, then family and
// id, along with the total number of matches before pagination.
func (s *InMemoryJobStore) GetJobs(filter coord.JobFilter) ([]*coord.JobRecord, int, error) {
	s.mu.RLock()
	matched := make([]*coord.JobRecord, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Family != nil && job.Family != *filter.Family {
			continue
		}
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		matched = append(matched, job)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *coord.JobRecord) int {
		return cmp.Or(
			a.SubmittedAt.Compare(b.SubmittedAt),
			cmp.Compare(a.Family, b.Family),
			cmp.Compare(a.ID, b.ID),
		)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []*coord.JobRecord{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < total {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}
