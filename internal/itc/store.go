package itc

import (
	"context"
	"time"
)

// Store is the derived-index persistence for ITC entities.
type Store interface {
	PutLaborEvent(ctx context.Context, e LaborEvent) error
	GetLaborEvent(ctx context.Context, id string) (LaborEvent, bool, error)
	ListLaborEventsByMember(ctx context.Context, memberID string, since, until time.Time) ([]LaborEvent, error)

	PutWeightedRecord(ctx context.Context, r WeightedRecord) error
	GetWeightedRecord(ctx context.Context, id string) (WeightedRecord, bool, error)

	GetAccount(ctx context.Context, memberID, nodeID string) (Account, bool, error)
	PutAccount(ctx context.Context, a Account) error
	ListAccountsByNode(ctx context.Context, nodeID string) ([]Account, error)
}
