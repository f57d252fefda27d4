package cryptosign_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/cryptosign"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	priv, err := cryptosign.GenerateKey()
	require.NoError(t, err)
	pub := priv.Public()

	payload := []byte(`{"entry_type":"cds.issue_created"}`)
	sig, err := cryptosign.Sign(priv, payload)
	require.NoError(t, err)

	ok, err := cryptosign.Verify(pub, payload, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	priv, err := cryptosign.GenerateKey()
	require.NoError(t, err)
	pub := priv.Public()

	sig, err := cryptosign.Sign(priv, []byte("original"))
	require.NoError(t, err)

	ok, err := cryptosign.Verify(pub, []byte("tampered"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_RejectsWrongKey(t *testing.T) {
	priv, err := cryptosign.GenerateKey()
	require.NoError(t, err)
	other, err := cryptosign.GenerateKey()
	require.NoError(t, err)

	sig, err := cryptosign.Sign(priv, []byte("payload"))
	require.NoError(t, err)

	ok, err := cryptosign.Verify(other.Public(), []byte("payload"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrivateKeyHex_RoundTrip(t *testing.T) {
	priv, err := cryptosign.GenerateKey()
	require.NoError(t, err)

	parsed, err := cryptosign.ParsePrivateKeyHex(priv.Hex())
	require.NoError(t, err)
	assert.Equal(t, priv.Public().Hex(), parsed.Public().Hex())
}

func TestPublicKeyHex_RoundTrip(t *testing.T) {
	priv, err := cryptosign.GenerateKey()
	require.NoError(t, err)
	pub := priv.Public()

	parsed, err := cryptosign.ParsePublicKeyHex(pub.Hex())
	require.NoError(t, err)
	assert.True(t, pub.Equal(parsed))
}
