// Package cryptosign provides the engine's one detached-signature primitive
// (spec.md §1 Non-goals: "any cryptographic primitive beyond a content hash
// and a detached signature"): Schnorr-over-secp256k1, the same curve the
// pack's Neo tooling already pulls in. It deliberately does not reproduce
// the collaborating UI's ad-hoc "derive a public key straight from a
// private key string" stub spec.md §9 calls out — keys here are always
// real secp256k1 scalars/points, generated or parsed through the library.
package cryptosign

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"golang.org/x/crypto/hkdf"
)

// PrivateKey wraps a secp256k1 scalar used to sign ledger entries and
// federation envelopes on behalf of one node or member identity.
type PrivateKey struct {
	inner *secp256k1.PrivateKey
}

// PublicKey wraps the corresponding secp256k1 point.
type PublicKey struct {
	inner *secp256k1.PublicKey
}

// GenerateKey produces a fresh random signing key. Used by cmd/engine at
// first boot when no node key is configured; operators are expected to
// persist the resulting hex-encoded private key thereafter.
func GenerateKey() (PrivateKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return PrivateKey{}, fmt.Errorf("generate signing key: %w", err)
	}
	return PrivateKey{inner: priv}, nil
}

// DeriveKeyFromSeed stretches a low-entropy seed (an operator-held
// passphrase or master secret) into a signing key through HKDF-SHA256,
// salted with info so the same seed produces a different key per purpose
// (e.g. per node id). Unlike GenerateKey, the result is reproducible: an
// operator who loses the derived hex key can re-derive it from the seed,
// without the engine ever persisting a raw private key.
func DeriveKeyFromSeed(seed []byte, info string) (PrivateKey, error) {
	raw := make([]byte, 32)
	r := hkdf.New(sha256.New, seed, nil, []byte(info))
	if _, err := io.ReadFull(r, raw); err != nil {
		return PrivateKey{}, fmt.Errorf("derive signing key from seed: %w", err)
	}
	return PrivateKey{inner: secp256k1.PrivKeyFromBytes(raw)}, nil
}

// ParsePrivateKeyHex parses a 32-byte hex-encoded scalar into a PrivateKey.
func ParsePrivateKeyHex(hexKey string) (PrivateKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("decode private key hex: %w", err)
	}
	if len(raw) != 32 {
		return PrivateKey{}, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return PrivateKey{inner: priv}, nil
}

// Public derives the PublicKey for this PrivateKey. This is the ONLY
// sanctioned way to obtain a public key from a private key in this engine:
// it goes through the curve's actual scalar multiplication, unlike the
// ad-hoc stub spec.md §9 flags.
func (k PrivateKey) Public() PublicKey {
	return PublicKey{inner: k.inner.PubKey()}
}

// Hex returns the 32-byte scalar as lowercase hex.
func (k PrivateKey) Hex() string {
	return hex.EncodeToString(k.inner.Serialize())
}

// ParsePublicKeyHex parses a 33-byte compressed secp256k1 point.
func ParsePublicKeyHex(hexKey string) (PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode public key hex: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return PublicKey{}, fmt.Errorf("parse public key: %w", err)
	}
	return PublicKey{inner: pub}, nil
}

// Hex returns the compressed public key as lowercase hex.
func (k PublicKey) Hex() string {
	return hex.EncodeToString(k.inner.SerializeCompressed())
}

// Equal reports whether two public keys are the same curve point.
func (k PublicKey) Equal(other PublicKey) bool {
	if k.inner == nil || other.inner == nil {
		return false
	}
	return k.inner.IsEqual(other.inner)
}

// digest hashes an arbitrary payload to the 32-byte message Schnorr signs.
// Every envelope and ledger entry signature in this engine signs
// sha256(payload), never raw payload bytes.
func digest(payload []byte) [32]byte {
	return sha256.Sum256(payload)
}

// Sign produces a detached Schnorr signature over sha256(payload), returned
// as lowercase hex.
func Sign(priv PrivateKey, payload []byte) (string, error) {
	d := digest(payload)
	sig, err := schnorr.Sign(priv.inner, d[:])
	if err != nil {
		return "", fmt.Errorf("schnorr sign: %w", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks a hex-encoded detached signature over sha256(payload)
// against pub. It never returns an error for "signature does not verify" —
// that is reported as a plain false, the caller maps it to
// apierrors.FederationRejected or similar. Errors are reserved for
// malformed input (unparsable hex/signature).
func Verify(pub PublicKey, payload []byte, sigHex string) (bool, error) {
	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("decode signature hex: %w", err)
	}
	sig, err := schnorr.ParseSignature(raw)
	if err != nil {
		return false, fmt.Errorf("parse signature: %w", err)
	}
	d := digest(payload)
	return sig.Verify(d[:], pub.inner), nil
}
