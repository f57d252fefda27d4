package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liminalvillage/integral-sub001/internal/cryptosign"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/pkg/apierrors"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
)

// KeyResolver resolves a node id to its verification public key. Accepted
// as an interface (implemented by internal/identity.Service) so
// federation couples to identity through a signal contract, not an
// object graph (spec.md §9).
type KeyResolver interface {
	VerifierPublicKey(ctx context.Context, nodeID string) (cryptosign.PublicKey, error)
}

// Service implements the federation envelope layer of spec.md §4.H. It
// does not define the transport: SendMessage produces a signed Envelope
// for the caller to ship; ReceiveEnvelope accepts one a transport
// delivered.
type Service struct {
	nodeID  string
	store   Store
	ledger  *ledger.Ledger
	logger  *logging.Logger
	signKey cryptosign.PrivateKey
	keys    KeyResolver
}

// New constructs a federation.Service bound to nodeID, signing outbound
// envelopes with signKey and resolving inbound signers through keys.
func New(nodeID string, store Store, l *ledger.Ledger, logger *logging.Logger, signKey cryptosign.PrivateKey, keys KeyResolver) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{nodeID: nodeID, store: store, ledger: l, logger: logger, signKey: signKey, keys: keys}
}

// signingPayload is the canonical structure hashed/signed for an
// envelope: every field except the signature itself.
type signingPayload struct {
	ID          string         `json:"id"`
	MessageType MessageType    `json:"message_type"`
	FromNodeID  string         `json:"from_node_id"`
	ToScope     Scope          `json:"to_scope"`
	Payload     map[string]any `json:"payload"`
	Summary     string         `json:"summary"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (e Envelope) signingBytes() ([]byte, error) {
	return json.Marshal(signingPayload{
		ID: e.ID, MessageType: e.MessageType, FromNodeID: e.FromNodeID,
		ToScope: e.ToScope, Payload: e.Payload, Summary: e.Summary, CreatedAt: e.CreatedAt,
	})
}

func (s *Service) buildAndSign(msgType MessageType, toScope Scope, payload map[string]any, summary string) (Envelope, error) {
	env := Envelope{
		ID: uuid.New().String(), MessageType: msgType, FromNodeID: s.nodeID,
		ToScope: toScope, Payload: payload, Summary: summary, CreatedAt: time.Now().UTC(),
	}
	bytes, err := env.signingBytes()
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal envelope for signing: %w", err)
	}
	sig, err := cryptosign.Sign(s.signKey, bytes)
	if err != nil {
		return Envelope{}, apierrors.Wrap(apierrors.KindIntegrityError, "sign envelope", 500, err)
	}
	env.Signature = sig
	return env, nil
}

// AnnounceNode implements announce_node: builds and signs a
// node_announcement envelope, records this node's own directory entry,
// and ledgers the announcement. Idempotent: re-announcing the same
// capabilities overwrites the directory entry rather than erroring.
func (s *Service) AnnounceNode(ctx context.Context, capabilities NodeCapabilities) (Envelope, error) {
	capabilities.NodeID = s.nodeID
	payload := map[string]any{"capabilities": capabilities}
	env, err := s.buildAndSign(MessageNodeAnnouncement, ScopeFederation, payload, "node announcement")
	if err != nil {
		return Envelope{}, err
	}

	record := NodeRecord{Capabilities: capabilities, PublicKeyHex: s.signKey.Public().Hex(), LastSeenAt: env.CreatedAt}
	if err := s.store.PutNode(ctx, record); err != nil {
		return Envelope{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist node record", 500, err)
	}

	if _, err := s.ledger.Append(ctx, "fed.node_announced", s.nodeID, nil,
		map[string]string{"envelope_id": env.ID}, map[string]any{"kind_code": env.KindCode()}); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// SendMessage implements send_message: builds and signs an envelope of
// the given type/scope/payload; the caller is responsible for shipping it
// over its chosen transport.
func (s *Service) SendMessage(ctx context.Context, msgType MessageType, toScope Scope, payload map[string]any, summary string) (Envelope, error) {
	env, err := s.buildAndSign(msgType, toScope, payload, summary)
	if err != nil {
		return Envelope{}, err
	}
	s.logger.LogFederationEnvelope(ctx, "outbound", string(msgType), env.ID, nil)
	if _, err := s.ledger.Append(ctx, "fed.message_sent", s.nodeID, nil,
		map[string]string{"envelope_id": env.ID}, map[string]any{"message_type": msgType, "to_scope": toScope, "kind_code": env.KindCode()}); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// QueryNode implements query_node.
func (s *Service) QueryNode(ctx context.Context, nodeID string) (NodeRecord, error) {
	record, ok, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return NodeRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "read node record", 500, err)
	}
	if !ok {
		return NodeRecord{}, apierrors.NotFound("node", nodeID)
	}
	return record, nil
}

// subsystemForMessageType routes an inbound envelope to the subsystem
// inbox best positioned to act on it.
func subsystemForMessageType(t MessageType) string {
	switch t {
	case MessageNodeAnnouncement:
		return "federation"
	case MessageDesignSuccess, MessageModelTemplate:
		return "oad"
	case MessageEquivalenceUpdate:
		return "itc"
	case MessageBestPractice, MessageStressSignature, MessageEarlyWarning:
		return "frs"
	default:
		return "federation"
	}
}

// ReceiveEnvelope implements the inbound half of spec.md §4.H: verifies
// the signature, deduplicates by id, and either delivers the envelope to
// a subsystem inbox or drops it. Both a duplicate and a signature that
// fails to verify are dropped silently (delivered=false, err=nil); a
// dropped-for-bad-signature envelope is still ledgered as
// fed.envelope_rejected so the rejection itself is audit-visible, it
// just isn't surfaced as an error to the caller that delivered it. err is
// reserved for failures in verifying or recording the envelope, not for
// the envelope itself being invalid.
func (s *Service) ReceiveEnvelope(ctx context.Context, env Envelope) (delivered bool, err error) {
	seen, err := s.store.SeenEnvelope(ctx, env.ID)
	if err != nil {
		return false, apierrors.Wrap(apierrors.KindIntegrityError, "read envelope dedup set", 500, err)
	}
	if seen {
		return false, nil
	}

	pubKey, err := s.keys.VerifierPublicKey(ctx, env.FromNodeID)
	if err != nil {
		return false, err
	}
	bytes, err := env.signingBytes()
	if err != nil {
		return false, fmt.Errorf("marshal envelope for verification: %w", err)
	}
	valid, err := cryptosign.Verify(pubKey, bytes, env.Signature)
	if err != nil || !valid {
		s.logger.LogFederationEnvelope(ctx, "inbound", string(env.MessageType), env.ID, apierrors.FederationRejected("signature verification failed"))
		if _, lerr := s.ledger.Append(ctx, "fed.envelope_rejected", s.nodeID, nil,
			map[string]string{"envelope_id": env.ID, "from_node_id": env.FromNodeID}, map[string]any{"reason": "signature_invalid"}); lerr != nil {
			return false, lerr
		}
		return false, nil
	}

	if err := s.store.MarkEnvelopeSeen(ctx, env.ID); err != nil {
		return false, apierrors.Wrap(apierrors.KindIntegrityError, "mark envelope seen", 500, err)
	}
	subsystem := subsystemForMessageType(env.MessageType)
	if err := s.store.AppendInbox(ctx, subsystem, env); err != nil {
		return false, apierrors.Wrap(apierrors.KindIntegrityError, "append subsystem inbox", 500, err)
	}

	if _, err := s.ledger.Append(ctx, "fed.envelope_received", s.nodeID, nil,
		map[string]string{"envelope_id": env.ID, "from_node_id": env.FromNodeID}, map[string]any{
			"message_type": env.MessageType, "subsystem": subsystem,
		}); err != nil {
		return false, err
	}
	return true, nil
}
