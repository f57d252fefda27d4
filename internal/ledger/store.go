package ledger

import "context"

// Store is the durable backing for a node's ledger. Implementations live
// under internal/storage (memory, postgres). A Store is solely responsible
// for persistence; chain computation and verification live in Ledger so
// that every backend gets identical hashing semantics.
type Store interface {
	// Tail returns the last persisted entry for nodeID, or ok=false if the
	// ledger is empty.
	Tail(ctx context.Context, nodeID string) (entry Entry, ok bool, err error)
	// Append persists a fully-computed entry. Implementations MUST reject
	// (return an error) appends whose Sequence does not immediately follow
	// the current tail, guarding against lost updates under concurrent
	// callers that bypass Ledger's in-process lock (e.g. multiple engine
	// processes sharing one Postgres database).
	Append(ctx context.Context, entry Entry) error
	// Range returns entries for nodeID with sequence in [fromSeq, toSeq]
	// inclusive. toSeq < 0 means "through the current tail".
	Range(ctx context.Context, nodeID string, fromSeq, toSeq int64) ([]Entry, error)
	// Length returns the number of entries currently stored for nodeID.
	Length(ctx context.Context, nodeID string) (int64, error)
}
