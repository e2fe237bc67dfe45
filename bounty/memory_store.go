package bounty

import (
	"context"
	"sync"

	"github.com/deep60/nexus-intel/domain"
	nexuserrors "github.com/deep60/nexus-intel/infrastructure/errors"
)

// MemoryStore is an in-process Store test double, grounded on the
// teacher's mockStore pattern (packages/com.r3e.services.gasbank/service/testing.go).
type MemoryStore struct {
	mu          sync.Mutex
	bounties    map[string]domain.Bounty
	submissions map[string][]domain.Submission
	disputes    map[string][]domain.Dispute
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bounties:    make(map[string]domain.Bounty),
		submissions: make(map[string][]domain.Submission),
		disputes:    make(map[string][]domain.Dispute),
	}
}

func (s *MemoryStore) SaveBounty(ctx context.Context, b domain.Bounty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bounties[b.ID] = b
	return nil
}

func (s *MemoryStore) GetBounty(ctx context.Context, id string) (domain.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bounties[id]
	if !ok {
		return domain.Bounty{}, nexuserrors.NotFound("bounty", id)
	}
	return b, nil
}

func (s *MemoryStore) SaveSubmission(ctx context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.BountyID] = append(s.submissions[sub.BountyID], sub)
	return nil
}

func (s *MemoryStore) ListSubmissions(ctx context.Context, bountyID string) ([]domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Submission, len(s.submissions[bountyID]))
	copy(out, s.submissions[bountyID])
	return out, nil
}

func (s *MemoryStore) SaveDispute(ctx context.Context, d domain.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disputes[d.BountyID] = append(s.disputes[d.BountyID], d)
	return nil
}

var _ Store = (*MemoryStore)(nil)
