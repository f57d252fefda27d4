package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/cryptosign"
	"github.com/liminalvillage/integral-sub001/internal/identity"
	"github.com/liminalvillage/integral-sub001/internal/storage/memory"
	"github.com/liminalvillage/integral-sub001/pkg/apierrors"
)

func TestParticipantWeight_UnknownDefaultsToOne(t *testing.T) {
	ctx := context.Background()
	svc := identity.New(memory.NewIdentityDirectory(), 2.0)

	w, err := svc.ParticipantWeight(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, 1.0, w)
}

func TestParticipantWeight_ClampedToWMax(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewIdentityDirectory()
	priv, err := cryptosign.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, dir.Put(ctx, identity.Member{ID: "m1", PublicKey: priv.Public(), Weight: 5.0}))

	svc := identity.New(dir, 2.0)
	w, err := svc.ParticipantWeight(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, w)
}

func TestVerifierPublicKey_UnknownIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := identity.New(memory.NewIdentityDirectory(), 1.0)

	_, err := svc.VerifierPublicKey(ctx, "ghost")
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.KindNotFound))
}

func TestVerifierPublicKey_ResolvesRegisteredMember(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewIdentityDirectory()
	svc := identity.New(dir, 1.0)

	priv, err := cryptosign.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, svc.Register(ctx, identity.Member{ID: "m1", PublicKey: priv.Public(), Weight: 1.0}))

	pub, err := svc.VerifierPublicKey(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, pub.Equal(priv.Public()))
}
