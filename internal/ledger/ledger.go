package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liminalvillage/integral-sub001/pkg/apierrors"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
	"github.com/liminalvillage/integral-sub001/pkg/metrics"
)

// Ledger is a single node's append-only hash-chained sequence (§4.A). The
// critical section around (store tail read, hash compute, store append)
// is held by mu for the lifetime of Append, satisfying §5's requirement
// that each ledger append + dependent mutation run inside one critical
// section over the ledger tail.
type Ledger struct {
	nodeID  string
	store   Store
	mu      sync.Mutex
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New constructs a Ledger for nodeID backed by store.
func New(nodeID string, store Store, logger *logging.Logger, m *metrics.Metrics) *Ledger {
	if logger == nil {
		logger = logging.Default()
	}
	if m == nil {
		m = metrics.Global()
	}
	return &Ledger{nodeID: nodeID, store: store, logger: logger, metrics: m}
}

// NodeID returns the node this ledger belongs to.
func (l *Ledger) NodeID() string { return l.nodeID }

// Append computes prev_hash/entry_hash from the current tail and durably
// stores the new entry. Ledger append failure is fatal for the enclosing
// operation (§4.x): callers MUST NOT treat the logical mutation as
// successful unless Append returns without error.
func (l *Ledger) Append(ctx context.Context, entryType, nodeID string, memberID *string, relatedIDs map[string]string, details map[string]any) (Entry, error) {
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	prevHash := GenesisHash()
	var nextSeq int64 = 0
	if tail, ok, err := l.store.Tail(ctx, nodeID); err != nil {
		return Entry{}, apierrors.Wrap(apierrors.KindIntegrityError, "read ledger tail", 500, err)
	} else if ok {
		prevHash = tail.EntryHash
		nextSeq = tail.Sequence + 1
	}

	entry := Entry{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		EntryType:  entryType,
		NodeID:     nodeID,
		MemberID:   memberID,
		RelatedIDs: relatedIDs,
		Details:    details,
		PrevHash:   prevHash,
		Sequence:   nextSeq,
	}

	hash, err := ComputeHash(entry, prevHash)
	if err != nil {
		return Entry{}, apierrors.Wrap(apierrors.KindIntegrityError, "compute entry hash", 500, err)
	}
	entry.EntryHash = hash

	if err := l.store.Append(ctx, entry); err != nil {
		l.logger.LogLedgerAppend(ctx, entryType, entry.ID, err)
		return Entry{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist ledger entry", 500, err)
	}

	l.logger.LogLedgerAppend(ctx, entryType, entry.ID, nil)
	if l.metrics != nil {
		length, _ := l.store.Length(ctx, nodeID)
		l.metrics.RecordLedgerAppend(nodeID, entryType, int(length), time.Since(start))
	}

	return entry, nil
}

// Verify re-computes each entry's hash and checks linkage across
// [fromSeq, toSeq]. It returns an IntegrityError describing the first
// mismatch found, or nil if the range is intact.
func (l *Ledger) Verify(ctx context.Context, fromSeq, toSeq int64) error {
	entries, err := l.store.Range(ctx, l.nodeID, fromSeq, toSeq)
	if err != nil {
		return apierrors.Wrap(apierrors.KindIntegrityError, "read ledger range", 500, err)
	}

	prevHash := GenesisHash()
	if fromSeq > 0 {
		prior, err := l.store.Range(ctx, l.nodeID, fromSeq-1, fromSeq-1)
		if err != nil {
			return apierrors.Wrap(apierrors.KindIntegrityError, "read prior entry", 500, err)
		}
		if len(prior) == 1 {
			prevHash = prior[0].EntryHash
		}
	}

	for _, e := range entries {
		if e.PrevHash != prevHash {
			if l.metrics != nil {
				l.metrics.RecordLedgerVerifyFailure(l.nodeID)
			}
			return apierrors.New(apierrors.KindIntegrityError, "prev_hash linkage mismatch", 500).
				WithDetails("entry_id", e.ID).WithDetails("sequence", e.Sequence)
		}
		recomputed, err := ComputeHash(e, e.PrevHash)
		if err != nil {
			return apierrors.Wrap(apierrors.KindIntegrityError, "recompute entry hash", 500, err)
		}
		if recomputed != e.EntryHash {
			if l.metrics != nil {
				l.metrics.RecordLedgerVerifyFailure(l.nodeID)
			}
			return apierrors.New(apierrors.KindIntegrityError, "entry_hash mismatch", 500).
				WithDetails("entry_id", e.ID).WithDetails("sequence", e.Sequence)
		}
		prevHash = e.EntryHash
	}

	return nil
}

// VerifyAll verifies the entire ledger for this node.
func (l *Ledger) VerifyAll(ctx context.Context) error {
	return l.Verify(ctx, 0, -1)
}

// Trail returns entries for this node matching filter, in sequence order.
func (l *Ledger) Trail(ctx context.Context, filter Filter) ([]Entry, error) {
	entries, err := l.store.Range(ctx, l.nodeID, 0, -1)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindIntegrityError, "read ledger trail", 500, err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Length returns the number of entries currently persisted for this node.
func (l *Ledger) Length(ctx context.Context) (int64, error) {
	return l.store.Length(ctx, l.nodeID)
}
