package memory

import (
	"context"
	"sync"

	"github.com/liminalvillage/integral-sub001/internal/cos"
)

// COSStore is a goroutine-safe in-memory cos.Store.
type COSStore struct {
	mu              sync.RWMutex
	plans           map[string]cos.ProductionPlan
	definitions     map[string]cos.TaskDefinition
	defsByPlan      map[string][]string
	instances       map[string]cos.TaskInstance
	instByDef       map[string][]string
	materialEntries map[string][]cos.MaterialLedgerEntry
	qaResults       map[string][]cos.QAResult
}

// NewCOSStore constructs an empty in-memory cos.Store.
func NewCOSStore() *COSStore {
	return &COSStore{
		plans: make(map[string]cos.ProductionPlan), definitions: make(map[string]cos.TaskDefinition),
		defsByPlan: make(map[string][]string), instances: make(map[string]cos.TaskInstance),
		instByDef: make(map[string][]string), materialEntries: make(map[string][]cos.MaterialLedgerEntry),
		qaResults: make(map[string][]cos.QAResult),
	}
}

func (s *COSStore) PutPlan(_ context.Context, p cos.ProductionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
	return nil
}

func (s *COSStore) GetPlan(_ context.Context, id string) (cos.ProductionPlan, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	return p, ok, nil
}

func (s *COSStore) PutTaskDefinition(_ context.Context, d cos.TaskDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.definitions[d.ID]; !exists {
		s.defsByPlan[d.PlanID] = append(s.defsByPlan[d.PlanID], d.ID)
	}
	s.definitions[d.ID] = d
	return nil
}

func (s *COSStore) GetTaskDefinition(_ context.Context, id string) (cos.TaskDefinition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.definitions[id]
	return d, ok, nil
}

func (s *COSStore) TaskDefinitionsByPlan(_ context.Context, planID string) ([]cos.TaskDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.defsByPlan[planID]
	out := make([]cos.TaskDefinition, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.definitions[id])
	}
	return out, nil
}

func (s *COSStore) PutTaskInstance(_ context.Context, t cos.TaskInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[t.ID]; !exists {
		s.instByDef[t.DefinitionID] = append(s.instByDef[t.DefinitionID], t.ID)
	}
	s.instances[t.ID] = t
	return nil
}

func (s *COSStore) GetTaskInstance(_ context.Context, id string) (cos.TaskInstance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.instances[id]
	return t, ok, nil
}

func (s *COSStore) TaskInstancesByDefinition(_ context.Context, definitionID string) ([]cos.TaskInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.instByDef[definitionID]
	out := make([]cos.TaskInstance, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.instances[id])
	}
	return out, nil
}

func (s *COSStore) AppendMaterialEntry(_ context.Context, e cos.MaterialLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materialEntries[e.PlanID] = append(s.materialEntries[e.PlanID], e)
	return nil
}

func (s *COSStore) MaterialEntriesByPlan(_ context.Context, planID string) ([]cos.MaterialLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cos.MaterialLedgerEntry, len(s.materialEntries[planID]))
	copy(out, s.materialEntries[planID])
	return out, nil
}

func (s *COSStore) PutQAResult(_ context.Context, r cos.QAResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qaResults[r.PlanID] = append(s.qaResults[r.PlanID], r)
	return nil
}

func (s *COSStore) QAResultsByPlan(_ context.Context, planID string) ([]cos.QAResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cos.QAResult, len(s.qaResults[planID]))
	copy(out, s.qaResults[planID])
	return out, nil
}
