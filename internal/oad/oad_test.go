package oad_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/internal/oad"
	"github.com/liminalvillage/integral-sub001/internal/storage/memory"
)

func newTestService() *oad.Service {
	l := ledger.New("node-a", memory.NewLedgerStore(), nil, nil)
	return oad.New("node-a", memory.NewOADStore(), l, nil, oad.DefaultEcoWeights(), oad.CertificationPolicy{ID: "p1", RequiredQuorum: 2})
}

func TestCreateSpecAndVersion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	spec, err := svc.CreateSpec(ctx, "a repairable kettle", []string{"boils 1L in 4 min"})
	require.NoError(t, err)

	version, err := svc.CreateVersion(ctx, spec.ID, "v1", []string{"author-1"}, map[string]any{
		"materialImpact": 0.3, "energyImpact": 0.2, "wasteImpact": 0.1, "longevityHours": 10000.0,
	})
	require.NoError(t, err)
	assert.Equal(t, oad.VersionDraft, version.Status)
}

func TestCreateVersion_UnknownSpecIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.CreateVersion(ctx, "ghost", "v1", nil, nil)
	require.Error(t, err)
}

func TestComputeEcoAssessment_ClampedAndWeighted(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	spec, err := svc.CreateSpec(ctx, "p", nil)
	require.NoError(t, err)
	version, err := svc.CreateVersion(ctx, spec.ID, "v1", nil, map[string]any{
		"materialImpact": 0.4, "energyImpact": 0.4, "wasteImpact": 0.4, "longevityHours": 20000.0,
	})
	require.NoError(t, err)

	assessment, err := svc.ComputeEcoAssessment(ctx, version.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, assessment.Score, 0.0)
	assert.LessOrEqual(t, assessment.Score, 1.0)

	// equal 0.25 weights, inputs 0.4/0.4/0.4 and longevity^-1 = 1/20000
	expected := 0.25*0.4 + 0.25*0.4 + 0.25*0.4 + 0.25*(1.0/20000.0)
	assert.InDelta(t, expected, assessment.Score, 1e-9)
}

func TestCertification_QuorumCertifiesVersion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	spec, err := svc.CreateSpec(ctx, "p", nil)
	require.NoError(t, err)
	version, err := svc.CreateVersion(ctx, spec.ID, "v1", nil, nil)
	require.NoError(t, err)

	_, err = svc.RequestCertification(ctx, version.ID, []string{"cert-1", "cert-2", "cert-3"})
	require.NoError(t, err)

	rec, err := svc.AppendCertification(ctx, version.ID, "cert-1")
	require.NoError(t, err)
	assert.Nil(t, rec.CertifiedAt)

	rec, err = svc.AppendCertification(ctx, version.ID, "cert-2")
	require.NoError(t, err)
	assert.NotNil(t, rec.CertifiedAt)

	updated, err := svc.ValuationProfile(ctx, version.ID)
	require.NoError(t, err)
	_ = updated
}

func TestAppendCertification_RejectsUnknownCertifier(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	spec, err := svc.CreateSpec(ctx, "p", nil)
	require.NoError(t, err)
	version, err := svc.CreateVersion(ctx, spec.ID, "v1", nil, nil)
	require.NoError(t, err)

	_, err = svc.RequestCertification(ctx, version.ID, []string{"cert-1"})
	require.NoError(t, err)

	_, err = svc.AppendCertification(ctx, version.ID, "intruder")
	require.Error(t, err)
}
