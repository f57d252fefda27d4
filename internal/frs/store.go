package frs

import "context"

// Store persists signal packets, findings, recommendations, and memory
// records.
type Store interface {
	PutPacket(ctx context.Context, p SignalPacket) error
	GetPacket(ctx context.Context, id string) (SignalPacket, bool, error)

	PutFinding(ctx context.Context, f Finding) error
	FindingsByPacket(ctx context.Context, packetID string) ([]Finding, error)
	GetFinding(ctx context.Context, id string) (Finding, bool, error)

	PutRecommendation(ctx context.Context, r Recommendation) error
	RecommendationsByFinding(ctx context.Context, findingID string) ([]Recommendation, error)

	PutMemoryRecord(ctx context.Context, m MemoryRecord) error
	ListMemoryRecords(ctx context.Context) ([]MemoryRecord, error)
}
