package cos

import "context"

// Store persists production plans, task definitions/instances, the
// material ledger, and QA results.
type Store interface {
	PutPlan(ctx context.Context, p ProductionPlan) error
	GetPlan(ctx context.Context, id string) (ProductionPlan, bool, error)

	PutTaskDefinition(ctx context.Context, d TaskDefinition) error
	GetTaskDefinition(ctx context.Context, id string) (TaskDefinition, bool, error)
	TaskDefinitionsByPlan(ctx context.Context, planID string) ([]TaskDefinition, error)

	PutTaskInstance(ctx context.Context, t TaskInstance) error
	GetTaskInstance(ctx context.Context, id string) (TaskInstance, bool, error)
	TaskInstancesByDefinition(ctx context.Context, definitionID string) ([]TaskInstance, error)

	AppendMaterialEntry(ctx context.Context, e MaterialLedgerEntry) error
	MaterialEntriesByPlan(ctx context.Context, planID string) ([]MaterialLedgerEntry, error)

	PutQAResult(ctx context.Context, r QAResult) error
	QAResultsByPlan(ctx context.Context, planID string) ([]QAResult, error)
}
