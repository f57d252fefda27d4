package memory

import (
	"context"
	"sync"
	"time"

	"github.com/liminalvillage/integral-sub001/internal/itc"
)

// ITCStore is a goroutine-safe in-memory itc.Store.
type ITCStore struct {
	mu              sync.RWMutex
	laborEvents     map[string]itc.LaborEvent
	weightedRecords map[string]itc.WeightedRecord
	accounts        map[string]itc.Account // keyed by memberID+"/"+nodeID
}

// NewITCStore constructs an empty in-memory itc.Store.
func NewITCStore() *ITCStore {
	return &ITCStore{
		laborEvents:     make(map[string]itc.LaborEvent),
		weightedRecords: make(map[string]itc.WeightedRecord),
		accounts:        make(map[string]itc.Account),
	}
}

func accountKey(memberID, nodeID string) string { return memberID + "/" + nodeID }

func (s *ITCStore) PutLaborEvent(_ context.Context, e itc.LaborEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.laborEvents[e.ID] = e
	return nil
}

func (s *ITCStore) GetLaborEvent(_ context.Context, id string) (itc.LaborEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.laborEvents[id]
	return e, ok, nil
}

func (s *ITCStore) ListLaborEventsByMember(_ context.Context, memberID string, since, until time.Time) ([]itc.LaborEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []itc.LaborEvent
	for _, e := range s.laborEvents {
		if e.MemberID != memberID {
			continue
		}
		if e.StartTime.Before(since) || e.StartTime.After(until) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *ITCStore) PutWeightedRecord(_ context.Context, r itc.WeightedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weightedRecords[r.ID] = r
	return nil
}

func (s *ITCStore) GetWeightedRecord(_ context.Context, id string) (itc.WeightedRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.weightedRecords[id]
	return r, ok, nil
}

func (s *ITCStore) GetAccount(_ context.Context, memberID, nodeID string) (itc.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountKey(memberID, nodeID)]
	return a, ok, nil
}

func (s *ITCStore) PutAccount(_ context.Context, a itc.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountKey(a.MemberID, a.NodeID)] = a
	return nil
}

// ListAccountsByNode returns every account held at nodeID, in no particular
// order. Used by the decay sweep to find accounts due for ApplyDecay.
func (s *ITCStore) ListAccountsByNode(_ context.Context, nodeID string) ([]itc.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]itc.Account, 0)
	for _, a := range s.accounts {
		if a.NodeID == nodeID {
			out = append(out, a)
		}
	}
	return out, nil
}
