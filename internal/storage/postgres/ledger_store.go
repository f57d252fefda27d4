package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/liminalvillage/integral-sub001/internal/ledger"
)

// LedgerStore is a Postgres-backed ledger.Store. It is the durable
// counterpart to internal/storage/memory.LedgerStore: identical sequencing
// semantics, backed by a ledger_entries table instead of an in-process map.
type LedgerStore struct {
	base baseStore
}

// NewLedgerStore constructs a Postgres ledger.Store over db. Callers are
// expected to have run Migrate(db.DB) first.
func NewLedgerStore(db *sqlx.DB) *LedgerStore {
	return &LedgerStore{base: newBaseStore(db, "ledger_entries")}
}

// ledgerRow is the wire shape of one ledger_entries row.
type ledgerRow struct {
	ID         string  `db:"id"`
	NodeID     string  `db:"node_id"`
	Sequence   int64   `db:"sequence"`
	EntryType  string  `db:"entry_type"`
	MemberID   *string `db:"member_id"`
	RelatedIDs []byte  `db:"related_ids"`
	Details    []byte  `db:"details"`
	PrevHash   string  `db:"prev_hash"`
	EntryHash  string  `db:"entry_hash"`
	Timestamp  string  `db:"timestamp"`
}

func rowFromEntry(e ledger.Entry) (ledgerRow, error) {
	relatedIDs, err := json.Marshal(e.RelatedIDs)
	if err != nil {
		return ledgerRow{}, fmt.Errorf("marshal related_ids: %w", err)
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return ledgerRow{}, fmt.Errorf("marshal details: %w", err)
	}
	return ledgerRow{
		ID: e.ID, NodeID: e.NodeID, Sequence: e.Sequence, EntryType: e.EntryType,
		MemberID: e.MemberID, RelatedIDs: relatedIDs, Details: details,
		PrevHash: e.PrevHash, EntryHash: e.EntryHash,
		Timestamp: e.Timestamp.UTC().Format(ledger.TimestampLayout),
	}, nil
}

func (r ledgerRow) toEntry() (ledger.Entry, error) {
	entry := ledger.Entry{
		ID: r.ID, NodeID: r.NodeID, Sequence: r.Sequence, EntryType: r.EntryType,
		MemberID: r.MemberID, PrevHash: r.PrevHash, EntryHash: r.EntryHash,
	}
	if err := json.Unmarshal(r.RelatedIDs, &entry.RelatedIDs); err != nil {
		return ledger.Entry{}, fmt.Errorf("unmarshal related_ids: %w", err)
	}
	if err := json.Unmarshal(r.Details, &entry.Details); err != nil {
		return ledger.Entry{}, fmt.Errorf("unmarshal details: %w", err)
	}
	ts, err := ledgerTimestamp(r.Timestamp)
	if err != nil {
		return ledger.Entry{}, err
	}
	entry.Timestamp = ts
	return entry, nil
}

// Tail returns the highest-sequence entry persisted for nodeID.
func (s *LedgerStore) Tail(ctx context.Context, nodeID string) (ledger.Entry, bool, error) {
	var row ledgerRow
	const q = `SELECT id, node_id, sequence, entry_type, member_id, related_ids, details, prev_hash, entry_hash, "timestamp"
	           FROM ledger_entries WHERE node_id = $1 ORDER BY sequence DESC LIMIT 1`
	err := s.base.querier(ctx).GetContext(ctx, &row, q, nodeID)
	if err != nil {
		if isNoRows(err) {
			return ledger.Entry{}, false, nil
		}
		return ledger.Entry{}, false, fmt.Errorf("query tail: %w", err)
	}
	entry, err := row.toEntry()
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return entry, true, nil
}

// Append inserts entry, using a transaction-scoped advisory lock keyed on
// nodeID so concurrent Append callers (e.g. two engine processes sharing
// one database) serialize around the same gap check the in-process
// Ledger already performs for a single process. A sequence that does not
// follow the current tail is rejected by that gap check; a duplicate
// (node_id, sequence) that still reaches the insert is caught by the
// table's unique constraint and rejected as already recorded.
func (s *LedgerStore) Append(ctx context.Context, entry ledger.Entry) error {
	return s.base.WithTx(ctx, func(ctx context.Context) error {
		tx := TxFromContext(ctx)
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entry.NodeID); err != nil {
			return fmt.Errorf("acquire node append lock: %w", err)
		}

		var currentTail int64 = -1
		err := tx.GetContext(ctx, &currentTail,
			`SELECT COALESCE(MAX(sequence), -1) FROM ledger_entries WHERE node_id = $1`, entry.NodeID)
		if err != nil {
			return fmt.Errorf("read current tail sequence: %w", err)
		}
		if entry.Sequence != currentTail+1 {
			return fmt.Errorf("append rejected: sequence %d does not follow tail %d for node %q", entry.Sequence, currentTail, entry.NodeID)
		}

		row, err := rowFromEntry(entry)
		if err != nil {
			return err
		}
		const q = `INSERT INTO ledger_entries
		           (id, node_id, sequence, entry_type, member_id, related_ids, details, prev_hash, entry_hash, "timestamp")
		           VALUES (:id, :node_id, :sequence, :entry_type, :member_id, :related_ids, :details, :prev_hash, :entry_hash, :timestamp)`
		if _, err := tx.NamedExecContext(ctx, q, row); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("append rejected: sequence %d already recorded for node %q: %w", entry.Sequence, entry.NodeID, err)
			}
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		return nil
	})
}

// Range returns entries for nodeID with sequence in [fromSeq, toSeq]. A
// negative toSeq means "through the current tail".
func (s *LedgerStore) Range(ctx context.Context, nodeID string, fromSeq, toSeq int64) ([]ledger.Entry, error) {
	q := `SELECT id, node_id, sequence, entry_type, member_id, related_ids, details, prev_hash, entry_hash, "timestamp"
	      FROM ledger_entries WHERE node_id = $1 AND sequence >= $2`
	args := []any{nodeID, fromSeq}
	if toSeq >= 0 {
		q += ` AND sequence <= $3`
		args = append(args, toSeq)
	}
	q += ` ORDER BY sequence ASC`

	var rows []ledgerRow
	if err := s.base.querier(ctx).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	out := make([]ledger.Entry, 0, len(rows))
	for _, r := range rows {
		entry, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Length returns the number of entries persisted for nodeID.
func (s *LedgerStore) Length(ctx context.Context, nodeID string) (int64, error) {
	var count int64
	err := s.base.querier(ctx).GetContext(ctx, &count, `SELECT COUNT(*) FROM ledger_entries WHERE node_id = $1`, nodeID)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}
