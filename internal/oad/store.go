package oad

import "context"

// Store is the derived-index persistence for the design registry. The
// ledger remains the append-only record of truth; Store holds queryable
// current-state projections (spec.md §6 "Persistent state layout").
type Store interface {
	PutSpec(ctx context.Context, s Spec) error
	GetSpec(ctx context.Context, id string) (Spec, bool, error)

	PutVersion(ctx context.Context, v Version) error
	GetVersion(ctx context.Context, id string) (Version, bool, error)

	PutCertification(ctx context.Context, c CertificationRecord) error
	GetCertification(ctx context.Context, id string) (CertificationRecord, bool, error)
	CertificationByVersion(ctx context.Context, versionID string) (CertificationRecord, bool, error)
}
