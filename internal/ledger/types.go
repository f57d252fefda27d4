// Package ledger implements the hash-chained append-only audit log shared
// by every subsystem (spec §4.A). It is the only place mutations are
// recorded for audit; subsystems append before emitting events to outside
// consumers.
package ledger

import "time"

// GenesisSeed is hashed to produce the fixed genesis prev_hash used by the
// first entry of any node's ledger.
const GenesisSeed = "INTEGRAL_GENESIS"

// TimestampLayout is the stable timestamp format of the canonical hashing
// payload (§6); the Postgres store also writes entry timestamps in it.
// Entry's JSON encoding uses time.Time's own format, not this layout.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Entry is a single append-only, hash-chained ledger record (§3).
type Entry struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EntryType  string            `json:"entryType"`
	NodeID     string            `json:"nodeId"`
	MemberID   *string           `json:"memberId,omitempty"`
	RelatedIDs map[string]string `json:"relatedIds,omitempty"`
	Details    map[string]any    `json:"details,omitempty"`
	PrevHash   string            `json:"prevHash"`
	EntryHash  string            `json:"entryHash"`
	Sequence   int64             `json:"sequence"`
}

// Filter selects entries from Trail by related id and/or entry-type prefix.
// Both are optional; an empty Filter matches every entry.
type Filter struct {
	RelatedIDKey   string // match if RelatedIDs[RelatedIDKey] == RelatedIDValue
	RelatedIDValue string
	EntryTypePrefix string
}

// Matches reports whether e satisfies f.
func (f Filter) Matches(e Entry) bool {
	if f.EntryTypePrefix != "" && !hasPrefix(e.EntryType, f.EntryTypePrefix) {
		return false
	}
	if f.RelatedIDKey != "" {
		val, ok := e.RelatedIDs[f.RelatedIDKey]
		if !ok || val != f.RelatedIDValue {
			return false
		}
	}
	return true
}

func hasPrefix(s, prefix string) bool {
	if len(prefix) > len(s) {
		return false
	}
	return s[:len(prefix)] == prefix
}
