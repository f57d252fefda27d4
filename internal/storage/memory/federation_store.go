package memory

import (
	"context"
	"sync"

	"github.com/liminalvillage/integral-sub001/internal/federation"
)

// FederationStore is a goroutine-safe in-memory federation.Store.
type FederationStore struct {
	mu    sync.RWMutex
	nodes map[string]federation.NodeRecord
	seen  map[string]bool
	inbox map[string][]federation.Envelope
}

// NewFederationStore constructs an empty in-memory federation.Store.
func NewFederationStore() *FederationStore {
	return &FederationStore{
		nodes: make(map[string]federation.NodeRecord), seen: make(map[string]bool),
		inbox: make(map[string][]federation.Envelope),
	}
}

func (s *FederationStore) PutNode(_ context.Context, record federation.NodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[record.Capabilities.NodeID] = record
	return nil
}

func (s *FederationStore) GetNode(_ context.Context, nodeID string) (federation.NodeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.nodes[nodeID]
	return r, ok, nil
}

func (s *FederationStore) SeenEnvelope(_ context.Context, envelopeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[envelopeID], nil
}

func (s *FederationStore) MarkEnvelopeSeen(_ context.Context, envelopeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[envelopeID] = true
	return nil
}

func (s *FederationStore) AppendInbox(_ context.Context, subsystem string, env federation.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox[subsystem] = append(s.inbox[subsystem], env)
	return nil
}

func (s *FederationStore) Inbox(_ context.Context, subsystem string) ([]federation.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]federation.Envelope, len(s.inbox[subsystem]))
	copy(out, s.inbox[subsystem])
	return out, nil
}
