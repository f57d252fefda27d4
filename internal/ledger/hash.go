package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// stablePayload is the exact field set hashed per spec §3/§6:
// {id,timestamp,entry_type,node_id,member_id,related_ids,details}.
// encoding/json sorts map[string]T keys lexicographically at every nesting
// level by construction, which gives us the canonical serialization the
// spec requires without a bespoke canonicalizer.
type stablePayload struct {
	ID         string            `json:"id"`
	Timestamp  string            `json:"timestamp"`
	EntryType  string            `json:"entry_type"`
	NodeID     string            `json:"node_id"`
	MemberID   string            `json:"member_id"`
	RelatedIDs map[string]string `json:"related_ids"`
	Details    map[string]any    `json:"details"`
}

// stableSerialize renders the canonical byte form of an entry's hashed
// payload. Keys are lexicographically sorted at every nesting level and
// timestamps use TimestampLayout.
func stableSerialize(e Entry) ([]byte, error) {
	memberID := ""
	if e.MemberID != nil {
		memberID = *e.MemberID
	}
	payload := stablePayload{
		ID:         e.ID,
		Timestamp:  e.Timestamp.UTC().Format(TimestampLayout),
		EntryType:  e.EntryType,
		NodeID:     e.NodeID,
		MemberID:   memberID,
		RelatedIDs: sortedCopy(e.RelatedIDs),
		Details:    canonicalizeAny(e.Details).(map[string]any),
	}
	return json.Marshal(payload)
}

func sortedCopy(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// canonicalizeAny recursively normalizes a value tree so that map keys are
// stable (json.Marshal already sorts map[string]any keys, but nested slices
// of maps and numeric types benefit from an explicit float64 pass so
// repeated hashing of the same logical value is always byte-identical).
func canonicalizeAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return map[string]any{}
		}
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = canonicalizeAny(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = canonicalizeAny(item)
		}
		return out
	default:
		return t
	}
}

// ComputeHash computes entry_hash = H(stable_serialize(payload) || prevHash)
// using SHA-256 (the engine's content-hash primitive, §1 Non-goals).
func ComputeHash(e Entry, prevHash string) (string, error) {
	payload, err := stableSerialize(e)
	if err != nil {
		return "", fmt.Errorf("stable serialize: %w", err)
	}
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GenesisHash is the fixed prev_hash used by the first entry in any node's
// ledger: H("INTEGRAL_GENESIS").
func GenesisHash() string {
	h := sha256.Sum256([]byte(GenesisSeed))
	return hex.EncodeToString(h[:])
}
