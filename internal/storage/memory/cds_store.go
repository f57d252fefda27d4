package memory

import (
	"context"
	"sync"

	"github.com/liminalvillage/integral-sub001/internal/cds"
)

// CDSStore is a goroutine-safe in-memory cds.Store.
type CDSStore struct {
	mu         sync.RWMutex
	issues     map[string]cds.Issue
	scenarios  map[string]cds.Scenario
	votes      map[string]cds.Vote // keyed by scenarioID+"/"+participantID
	objections map[string][]cds.Objection // keyed by scenarioID
	decisions  map[string]cds.Decision
	latestByIssue map[string]string // issueID -> most recent decisionID
}

// NewCDSStore constructs an empty in-memory cds.Store.
func NewCDSStore() *CDSStore {
	return &CDSStore{
		issues: make(map[string]cds.Issue), scenarios: make(map[string]cds.Scenario),
		votes: make(map[string]cds.Vote), objections: make(map[string][]cds.Objection),
		decisions: make(map[string]cds.Decision), latestByIssue: make(map[string]string),
	}
}

func (s *CDSStore) PutIssue(_ context.Context, i cds.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[i.ID] = i
	return nil
}

func (s *CDSStore) GetIssue(_ context.Context, id string) (cds.Issue, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.issues[id]
	return i, ok, nil
}

func (s *CDSStore) PutScenario(_ context.Context, sc cds.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios[sc.ID] = sc
	return nil
}

func (s *CDSStore) GetScenario(_ context.Context, id string) (cds.Scenario, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenarios[id]
	return sc, ok, nil
}

func (s *CDSStore) ScenariosByIssue(_ context.Context, issueID string) ([]cds.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []cds.Scenario
	for _, sc := range s.scenarios {
		if sc.IssueID == issueID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func voteKey(scenarioID, participantID string) string { return scenarioID + "/" + participantID }

func (s *CDSStore) PutVote(_ context.Context, v cds.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[voteKey(v.ScenarioID, v.ParticipantID)] = v
	return nil
}

func (s *CDSStore) VotesByScenario(_ context.Context, scenarioID string) ([]cds.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []cds.Vote
	for _, v := range s.votes {
		if v.ScenarioID == scenarioID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *CDSStore) PutObjection(_ context.Context, o cds.Objection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objections[o.ScenarioID] = append(s.objections[o.ScenarioID], o)
	return nil
}

func (s *CDSStore) ObjectionsByScenario(_ context.Context, scenarioID string) ([]cds.Objection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cds.Objection, len(s.objections[scenarioID]))
	copy(out, s.objections[scenarioID])
	return out, nil
}

func (s *CDSStore) PutDecision(_ context.Context, d cds.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[d.ID] = d
	s.latestByIssue[d.IssueID] = d.ID
	return nil
}

func (s *CDSStore) GetDecision(_ context.Context, id string) (cds.Decision, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[id]
	return d, ok, nil
}

func (s *CDSStore) LatestDecisionForIssue(_ context.Context, issueID string) (cds.Decision, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.latestByIssue[issueID]
	if !ok {
		return cds.Decision{}, false, nil
	}
	d, ok := s.decisions[id]
	return d, ok, nil
}
