package federation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/cryptosign"
	"github.com/liminalvillage/integral-sub001/internal/federation"
	"github.com/liminalvillage/integral-sub001/internal/identity"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/internal/storage/memory"
)

func newTestService(t *testing.T, nodeID string, key cryptosign.PrivateKey, resolver *identity.Service) *federation.Service {
	t.Helper()
	l := ledger.New(nodeID, memory.NewLedgerStore(), nil, nil)
	return federation.New(nodeID, memory.NewFederationStore(), l, nil, key, resolver)
}

func TestAnnounceNode_SignsAndPersists(t *testing.T) {
	ctx := context.Background()
	key, err := cryptosign.GenerateKey()
	require.NoError(t, err)

	dir := memory.NewIdentityDirectory()
	resolver := identity.New(dir, 1.0)
	require.NoError(t, dir.Put(ctx, identity.Member{ID: "node-a", PublicKey: key.Public(), Weight: 1.0}))

	svc := newTestService(t, "node-a", key, resolver)
	env, err := svc.AnnounceNode(ctx, federation.NodeCapabilities{RegionScope: "region-1", Subsystems: []string{"cds", "oad"}})
	require.NoError(t, err)
	assert.Equal(t, federation.MessageNodeAnnouncement, env.MessageType)
	assert.NotEmpty(t, env.Signature)

	record, err := svc.QueryNode(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, "region-1", record.Capabilities.RegionScope)
}

func TestReceiveEnvelope_VerifiesSignatureAndDedups(t *testing.T) {
	ctx := context.Background()
	senderKey, err := cryptosign.GenerateKey()
	require.NoError(t, err)

	dir := memory.NewIdentityDirectory()
	resolver := identity.New(dir, 1.0)
	require.NoError(t, dir.Put(ctx, identity.Member{ID: "node-b", PublicKey: senderKey.Public(), Weight: 1.0}))

	sender := newTestService(t, "node-b", senderKey, resolver)
	env, err := sender.SendMessage(ctx, federation.MessageBestPractice, federation.ScopeFederation, map[string]any{"practice": "kiln maintenance"}, "share a best practice")
	require.NoError(t, err)

	receiverKey, err := cryptosign.GenerateKey()
	require.NoError(t, err)
	receiver := newTestService(t, "node-a", receiverKey, resolver)

	delivered, err := receiver.ReceiveEnvelope(ctx, env)
	require.NoError(t, err)
	assert.True(t, delivered)

	delivered, err = receiver.ReceiveEnvelope(ctx, env)
	require.NoError(t, err)
	assert.False(t, delivered, "duplicate envelope id must be dropped, not redelivered")
}

func TestReceiveEnvelope_RejectsTamperedPayload(t *testing.T) {
	ctx := context.Background()
	senderKey, err := cryptosign.GenerateKey()
	require.NoError(t, err)

	dir := memory.NewIdentityDirectory()
	resolver := identity.New(dir, 1.0)
	require.NoError(t, dir.Put(ctx, identity.Member{ID: "node-b", PublicKey: senderKey.Public(), Weight: 1.0}))

	sender := newTestService(t, "node-b", senderKey, resolver)
	env, err := sender.SendMessage(ctx, federation.MessageEarlyWarning, federation.ScopeFederation, map[string]any{"warning": "material shortage"}, "warn")
	require.NoError(t, err)

	env.Payload["warning"] = "tampered"

	receiverKey, err := cryptosign.GenerateKey()
	require.NoError(t, err)
	receiver := newTestService(t, "node-a", receiverKey, resolver)

	delivered, err := receiver.ReceiveEnvelope(ctx, env)
	require.NoError(t, err)
	assert.False(t, delivered, "a tampered envelope is dropped silently, not surfaced as an error")
}

func TestReceiveEnvelope_UnknownSignerIsRejected(t *testing.T) {
	ctx := context.Background()
	senderKey, err := cryptosign.GenerateKey()
	require.NoError(t, err)

	dir := memory.NewIdentityDirectory()
	resolver := identity.New(dir, 1.0) // node-c never registered

	sender := newTestService(t, "node-c", senderKey, resolver)
	env, err := sender.SendMessage(ctx, federation.MessageEarlyWarning, federation.ScopeFederation, map[string]any{"warning": "x"}, "warn")
	require.NoError(t, err)

	receiverKey, err := cryptosign.GenerateKey()
	require.NoError(t, err)
	receiver := newTestService(t, "node-a", receiverKey, resolver)

	_, err = receiver.ReceiveEnvelope(ctx, env)
	require.Error(t, err)
}
