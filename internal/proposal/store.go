package proposal

import (
	"context"
	"fmt"
	"sync"
)

// Store holds proposals. Implementations must apply a Transition only when
// the stored status equals Transition.From, and must return copies.
type Store interface {
	Create(ctx context.Context, p *Proposal) error
	Get(ctx context.Context, id string) (*Proposal, error)
	Apply(ctx context.Context, id string, t Transition) (*Proposal, error)
}

// MemoryStore is the in-process Store. Proposals are never deleted.
type MemoryStore struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{proposals: make(map[string]*Proposal)}
}

func (s *MemoryStore) Create(_ context.Context, p *Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.proposals[p.ID]; exists {
		return fmt.Errorf("Create: duplicate proposal id %s", p.ID)
	}
	s.proposals[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("Get: %w", ErrProposalNotFound)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Apply(_ context.Context, id string, t Transition) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("Apply: %w", ErrProposalNotFound)
	}
	if p.Status != t.From {
		return nil, fmt.Errorf("Apply: %s is %s, want %s: %w", id, p.Status, t.From, ErrInvalidProposalState)
	}
	t.stamp(p)
	return p.Clone(), nil
}

// Len returns the number of stored proposals.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.proposals)
}
