package postgres

import (
	"database/sql"
	"errors"
	"time"

	"github.com/liminalvillage/integral-sub001/internal/ledger"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ledgerTimestamp parses a timestamp column back into time.UTC. Postgres
// round-trips timestamptz as RFC3339Nano; we also accept the ledger
// package's own TimestampLayout for values inserted by this store.
func ledgerTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(ledger.TimestampLayout, raw)
}
