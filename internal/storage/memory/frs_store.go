package memory

import (
	"context"
	"sync"

	"github.com/liminalvillage/integral-sub001/internal/frs"
)

// FRSStore is a goroutine-safe in-memory frs.Store.
type FRSStore struct {
	mu              sync.RWMutex
	packets         map[string]frs.SignalPacket
	findings        map[string]frs.Finding
	findingsByPacket map[string][]string
	recommendations map[string][]frs.Recommendation // keyed by finding ID
	memoryRecords   []frs.MemoryRecord
}

// NewFRSStore constructs an empty in-memory frs.Store.
func NewFRSStore() *FRSStore {
	return &FRSStore{
		packets: make(map[string]frs.SignalPacket), findings: make(map[string]frs.Finding),
		findingsByPacket: make(map[string][]string), recommendations: make(map[string][]frs.Recommendation),
	}
}

func (s *FRSStore) PutPacket(_ context.Context, p frs.SignalPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets[p.ID] = p
	return nil
}

func (s *FRSStore) GetPacket(_ context.Context, id string) (frs.SignalPacket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packets[id]
	return p, ok, nil
}

func (s *FRSStore) PutFinding(_ context.Context, f frs.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.findings[f.ID]; !exists {
		s.findingsByPacket[f.PacketID] = append(s.findingsByPacket[f.PacketID], f.ID)
	}
	s.findings[f.ID] = f
	return nil
}

func (s *FRSStore) FindingsByPacket(_ context.Context, packetID string) ([]frs.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.findingsByPacket[packetID]
	out := make([]frs.Finding, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.findings[id])
	}
	return out, nil
}

func (s *FRSStore) GetFinding(_ context.Context, id string) (frs.Finding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.findings[id]
	return f, ok, nil
}

func (s *FRSStore) PutRecommendation(_ context.Context, r frs.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendations[r.FindingID] = append(s.recommendations[r.FindingID], r)
	return nil
}

func (s *FRSStore) RecommendationsByFinding(_ context.Context, findingID string) ([]frs.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]frs.Recommendation, len(s.recommendations[findingID]))
	copy(out, s.recommendations[findingID])
	return out, nil
}

func (s *FRSStore) PutMemoryRecord(_ context.Context, m frs.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memoryRecords = append(s.memoryRecords, m)
	return nil
}

func (s *FRSStore) ListMemoryRecords(_ context.Context) ([]frs.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]frs.MemoryRecord, len(s.memoryRecords))
	copy(out, s.memoryRecords)
	return out, nil
}
