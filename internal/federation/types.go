// Package federation implements the envelope layer: node announcement,
// message send, node query, and inbound envelope verification/dedup/
// dispatch (spec.md §4.H).
package federation

import "time"

// MessageType enumerates Envelope.message_type (spec.md §6). Kind codes
// are namespaced 30100-30699 in the reference; the envelope carries the
// symbolic type, the numeric code is a transport concern.
type MessageType string

const (
	MessageNodeAnnouncement MessageType = "node_announcement"
	MessageBestPractice     MessageType = "best_practice"
	MessageDesignSuccess    MessageType = "design_success"
	MessageStressSignature  MessageType = "stress_signature"
	MessageEarlyWarning     MessageType = "early_warning"
	MessageModelTemplate    MessageType = "model_template"
	MessageEquivalenceUpdate MessageType = "equivalence_update"
)

// messageKindCode is the reference numeric code namespace for each
// message type (spec.md §6: 30100-30699).
var messageKindCode = map[MessageType]int{
	MessageNodeAnnouncement:  30100,
	MessageBestPractice:      30200,
	MessageDesignSuccess:     30300,
	MessageStressSignature:   30400,
	MessageEarlyWarning:      30500,
	MessageModelTemplate:     30600,
	MessageEquivalenceUpdate: 30699,
}

// Scope enumerates Envelope.to_scope (spec.md §6). A node-scoped value is
// represented as "node:{id}" per the spec's literal syntax.
type Scope string

const (
	ScopeFederation Scope = "federation"
	ScopeRegional   Scope = "regional"
)

// NodeScope returns the "node:{id}" scope literal for a single node.
func NodeScope(nodeID string) Scope { return Scope("node:" + nodeID) }

// Envelope is the federation wire message (spec.md §6). Signature is a
// hex-encoded Schnorr-over-secp256k1 signature (internal/cryptosign) over
// the envelope's canonical payload.
type Envelope struct {
	ID          string         `json:"id"`
	MessageType MessageType    `json:"messageType"`
	FromNodeID  string         `json:"fromNodeId"`
	ToScope     Scope          `json:"toScope"`
	Payload     map[string]any `json:"payload"`
	Summary     string         `json:"summary"`
	CreatedAt   time.Time      `json:"createdAt"`
	Signature   string         `json:"signature"`
}

// KindCode returns the reference numeric kind code for the envelope's
// message type.
func (e Envelope) KindCode() int { return messageKindCode[e.MessageType] }

// NodeCapabilities describes a node's declared participation surface,
// announced via announce_node.
type NodeCapabilities struct {
	NodeID        string   `json:"nodeId"`
	RegionScope   string   `json:"regionScope"`
	Subsystems    []string `json:"subsystems"`
	MaxThroughput float64  `json:"maxThroughput"`
}

// NodeRecord is the directory entry federation maintains per known peer.
type NodeRecord struct {
	Capabilities NodeCapabilities `json:"capabilities"`
	PublicKeyHex string           `json:"publicKeyHex"`
	LastSeenAt   time.Time        `json:"lastSeenAt"`
}
