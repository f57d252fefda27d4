package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/internal/storage/postgres"
)

func newMockLedgerStore(t *testing.T) (*postgres.LedgerStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return postgres.NewLedgerStore(sqlxDB), mock
}

func TestLedgerStore_TailEmptyReturnsNotOK(t *testing.T) {
	store, mock := newMockLedgerStore(t)
	cols := []string{"id", "node_id", "sequence", "entry_type", "member_id", "related_ids", "details", "prev_hash", "entry_hash", "timestamp"}
	mock.ExpectQuery(`SELECT .* FROM ledger_entries WHERE node_id = \$1`).
		WithArgs("node-a").
		WillReturnRows(sqlmock.NewRows(cols))

	_, ok, err := store.Tail(context.Background(), "node-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedgerStore_TailReturnsHighestSequence(t *testing.T) {
	store, mock := newMockLedgerStore(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "node_id", "sequence", "entry_type", "member_id", "related_ids", "details", "prev_hash", "entry_hash", "timestamp"}
	mock.ExpectQuery(`SELECT .* FROM ledger_entries WHERE node_id = \$1`).
		WithArgs("node-a").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"entry-3", "node-a", int64(3), "cds.issue_raised", nil, []byte(`{}`), []byte(`{}`), "hash-2", "hash-3", ts.Format(time.RFC3339Nano),
		))

	entry, ok, err := store.Tail(context.Background(), "node-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), entry.Sequence)
	assert.Equal(t, "hash-3", entry.EntryHash)
}

func TestLedgerStore_AppendRejectsNonSequentialSequence(t *testing.T) {
	store, mock := newMockLedgerStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(sequence\), -1\) FROM ledger_entries WHERE node_id = \$1`).
		WithArgs("node-a").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(4)))
	mock.ExpectRollback()

	err := store.Append(context.Background(), ledger.Entry{
		ID: "entry-9", NodeID: "node-a", Sequence: 9, EntryType: "cds.issue_raised",
		PrevHash: "p", EntryHash: "h", Timestamp: time.Now().UTC(),
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_AppendInsertsWhenSequenceMatchesTail(t *testing.T) {
	store, mock := newMockLedgerStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(sequence\), -1\) FROM ledger_entries WHERE node_id = \$1`).
		WithArgs("node-a").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(-1)))
	mock.ExpectExec(`INSERT INTO ledger_entries`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.Append(context.Background(), ledger.Entry{
		ID: "entry-0", NodeID: "node-a", Sequence: 0, EntryType: "cds.issue_raised",
		PrevHash: ledger.GenesisSeed, EntryHash: "h0", Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_LengthCounts(t *testing.T) {
	store, mock := newMockLedgerStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ledger_entries WHERE node_id = \$1`).
		WithArgs("node-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := store.Length(context.Background(), "node-a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
