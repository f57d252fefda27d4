package cds

import "context"

// Store is the derived-index persistence for CDS entities.
type Store interface {
	PutIssue(ctx context.Context, i Issue) error
	GetIssue(ctx context.Context, id string) (Issue, bool, error)

	PutScenario(ctx context.Context, s Scenario) error
	GetScenario(ctx context.Context, id string) (Scenario, bool, error)
	ScenariosByIssue(ctx context.Context, issueID string) ([]Scenario, error)

	PutVote(ctx context.Context, v Vote) error
	VotesByScenario(ctx context.Context, scenarioID string) ([]Vote, error)

	PutObjection(ctx context.Context, o Objection) error
	ObjectionsByScenario(ctx context.Context, scenarioID string) ([]Objection, error)

	PutDecision(ctx context.Context, d Decision) error
	GetDecision(ctx context.Context, id string) (Decision, bool, error)
	LatestDecisionForIssue(ctx context.Context, issueID string) (Decision, bool, error)
}
