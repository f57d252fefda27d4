// Package identity is the thin identity/weighting service spec.md §4.B
// describes: the engine consumes identities, it never mints them. It
// resolves a participant id to a consensus weight and a member id to the
// public key used to verify that member's signatures. Grounded on the
// teacher's enclave key-manager shape (system/enclave/sdk): a directory of
// already-provisioned keys looked up by id, never derived on demand.
package identity

import (
	"context"

	"github.com/liminalvillage/integral-sub001/internal/cryptosign"
	"github.com/liminalvillage/integral-sub001/pkg/apierrors"
)

// Member is a known participant: a consensus weight and a verification key.
// The engine never constructs these from a bare private key; they are
// provisioned out-of-band and only looked up here (§9 open question: the
// engine does not regenerate or derive keys).
type Member struct {
	ID        string
	PublicKey cryptosign.PublicKey
	Weight    float64
}

// Directory is the backing store of known members. Implementations live
// under internal/storage.
type Directory interface {
	Get(ctx context.Context, memberID string) (Member, bool, error)
	Put(ctx context.Context, m Member) error
}

// Service implements participant_weight and verifier_public_key (§4.B).
type Service struct {
	dir  Directory
	wMax float64
}

// New constructs a Service. wMax is the policy ceiling on consensus weight
// (policy.W_max); unknown participants are granted weight 1.0 regardless of
// wMax, per spec.md §4.B.
func New(dir Directory, wMax float64) *Service {
	if wMax <= 0 {
		wMax = 1.0
	}
	return &Service{dir: dir, wMax: wMax}
}

// ParticipantWeight returns the clamped consensus weight for participantID.
// Unknown participants receive weight 1.0 (spec.md §4.B), not an error:
// the decision engine must still be able to admit a vote from a
// provisionally-known participant.
func (s *Service) ParticipantWeight(ctx context.Context, participantID string) (float64, error) {
	m, ok, err := s.dir.Get(ctx, participantID)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindIntegrityError, "read identity directory", 500, err)
	}
	if !ok {
		return 1.0, nil
	}
	w := m.Weight
	if w < 0 {
		w = 0
	}
	if w > s.wMax {
		w = s.wMax
	}
	return w, nil
}

// VerifierPublicKey resolves memberID to the key used to verify its
// signatures. Unlike ParticipantWeight, an unknown member id is a hard
// NotFound: there is no sensible default public key for an unknown signer.
func (s *Service) VerifierPublicKey(ctx context.Context, memberID string) (cryptosign.PublicKey, error) {
	m, ok, err := s.dir.Get(ctx, memberID)
	if err != nil {
		return cryptosign.PublicKey{}, apierrors.Wrap(apierrors.KindIntegrityError, "read identity directory", 500, err)
	}
	if !ok {
		return cryptosign.PublicKey{}, apierrors.NotFound("member", memberID)
	}
	return m.PublicKey, nil
}

// Register provisions a member. This is the engine's consumption point for
// identities minted elsewhere; it is not exposed as a public operation in
// §4.B and exists only for wiring test/bootstrap data.
func (s *Service) Register(ctx context.Context, m Member) error {
	if err := s.dir.Put(ctx, m); err != nil {
		return apierrors.Wrap(apierrors.KindIntegrityError, "write identity directory", 500, err)
	}
	return nil
}
