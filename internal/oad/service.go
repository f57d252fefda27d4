package oad

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/pkg/apierrors"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
)

// Service implements the design registry operations of spec.md §4.C.
type Service struct {
	nodeID string
	store  Store
	ledger *ledger.Ledger
	logger *logging.Logger
	weights EcoWeights
	certPolicy CertificationPolicy
}

// New constructs an oad.Service bound to nodeID.
func New(nodeID string, store Store, l *ledger.Ledger, logger *logging.Logger, weights EcoWeights, certPolicy CertificationPolicy) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{nodeID: nodeID, store: store, ledger: l, logger: logger, weights: weights, certPolicy: certPolicy}
}

// CreateSpec implements create_spec.
func (s *Service) CreateSpec(ctx context.Context, purpose string, functionalRequirements []string) (Spec, error) {
	spec := Spec{
		ID:                     uuid.New().String(),
		Purpose:                purpose,
		FunctionalRequirements: functionalRequirements,
		NodeID:                 s.nodeID,
		CreatedAt:              time.Now().UTC(),
	}
	if err := s.store.PutSpec(ctx, spec); err != nil {
		return Spec{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist spec", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "oad.spec_created", s.nodeID, nil,
		map[string]string{"spec_id": spec.ID}, map[string]any{"purpose": purpose}); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// CreateVersion implements create_version. The version starts in status
// draft.
func (s *Service) CreateVersion(ctx context.Context, specID, label string, authorIDs []string, parameters map[string]any) (Version, error) {
	if _, ok, err := s.store.GetSpec(ctx, specID); err != nil {
		return Version{}, apierrors.Wrap(apierrors.KindIntegrityError, "read spec", 500, err)
	} else if !ok {
		return Version{}, apierrors.NotFound("spec", specID)
	}

	now := time.Now().UTC()
	version := Version{
		ID:         uuid.New().String(),
		SpecID:     specID,
		Label:      label,
		AuthorIDs:  authorIDs,
		Parameters: parameters,
		Status:     VersionDraft,
		NodeID:     s.nodeID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	applyParameters(&version, parameters)

	if err := s.store.PutVersion(ctx, version); err != nil {
		return Version{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist version", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "oad.version_created", s.nodeID, nil,
		map[string]string{"spec_id": specID, "version_id": version.ID}, map[string]any{"label": label}); err != nil {
		return Version{}, err
	}
	return version, nil
}

// applyParameters lifts well-known keys out of a version's free-form
// parameters into its typed valuation-profile fields, if present.
func applyParameters(v *Version, parameters map[string]any) {
	if parameters == nil {
		return
	}
	if laborByTier, ok := parameters["laborByTier"].(map[SkillTier]float64); ok {
		v.LaborByTier = laborByTier
	}
	if hours, ok := numeric(parameters["estimatedLaborHours"]); ok {
		v.EstimatedLaborHours = hours
	}
	if r, ok := numeric(parameters["repairability"]); ok {
		v.Repairability = r
	}
	if life, ok := numeric(parameters["expectedLifespanHours"]); ok {
		v.ExpectedLifespanHours = life
	}
	if steps, ok := parameters["productionSteps"].([]ProductionStep); ok {
		v.ProductionSteps = steps
	}
}

func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// ComputeEcoAssessment implements compute_eco_assessment:
// E = w1*material + w2*energy + w3*waste + w4*longevity^-1, clamped [0,1].
// material/energy/waste/longevity inputs are expected in the version's
// parameters map (keys "materialImpact", "energyImpact", "wasteImpact",
// "longevityHours"); longevity contributes its reciprocal so a longer
// expected life lowers the score.
func (s *Service) ComputeEcoAssessment(ctx context.Context, versionID string) (EcoAssessment, error) {
	v, ok, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return EcoAssessment{}, apierrors.Wrap(apierrors.KindIntegrityError, "read version", 500, err)
	}
	if !ok {
		return EcoAssessment{}, apierrors.NotFound("version", versionID)
	}

	material, _ := numeric(v.Parameters["materialImpact"])
	energy, _ := numeric(v.Parameters["energyImpact"])
	waste, _ := numeric(v.Parameters["wasteImpact"])
	longevityHours := v.ExpectedLifespanHours
	if lh, ok := numeric(v.Parameters["longevityHours"]); ok && lh > 0 {
		longevityHours = lh
	}
	longevityInv := 0.0
	if longevityHours > 0 {
		longevityInv = 1.0 / longevityHours
	}

	score := s.weights.Material*material + s.weights.Energy*energy + s.weights.Waste*waste + s.weights.Longevity*longevityInv
	score = clamp01(score)

	v.EcoScore = &score
	v.UpdatedAt = time.Now().UTC()
	if err := s.store.PutVersion(ctx, v); err != nil {
		return EcoAssessment{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist version", 500, err)
	}

	assessment := EcoAssessment{
		VersionID: versionID,
		Score:     score,
		Weights: map[string]float64{
			"material": s.weights.Material, "energy": s.weights.Energy,
			"waste": s.weights.Waste, "longevity": s.weights.Longevity,
		},
		Material: material, Energy: energy, Waste: waste, Longevity: longevityInv,
		ComputedAt: time.Now().UTC(),
	}
	if _, err := s.ledger.Append(ctx, "oad.eco_assessment_computed", s.nodeID, nil,
		map[string]string{"version_id": versionID}, map[string]any{
			"score": score, "weights": assessment.Weights,
		}); err != nil {
		return EcoAssessment{}, err
	}
	return assessment, nil
}

// RequestCertification implements request_certification: transitions the
// version to under_review and records the certifier set and quorum policy.
func (s *Service) RequestCertification(ctx context.Context, versionID string, certifierIDs []string) (CertificationRecord, error) {
	v, ok, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return CertificationRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "read version", 500, err)
	}
	if !ok {
		return CertificationRecord{}, apierrors.NotFound("version", versionID)
	}
	if v.Status != VersionDraft && v.Status != VersionUnderReview {
		return CertificationRecord{}, apierrors.InvalidTransition("version", string(v.Status), string(VersionUnderReview))
	}

	signed := make(map[string]bool, len(certifierIDs))
	for _, c := range certifierIDs {
		signed[c] = false
	}
	record := CertificationRecord{
		ID:           uuid.New().String(),
		VersionID:    versionID,
		PolicyID:     s.certPolicy.ID,
		CertifierIDs: certifierIDs,
		Signed:       signed,
		RequestedAt:  time.Now().UTC(),
	}
	if err := s.store.PutCertification(ctx, record); err != nil {
		return CertificationRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist certification", 500, err)
	}

	v.Status = VersionUnderReview
	v.UpdatedAt = time.Now().UTC()
	if err := s.store.PutVersion(ctx, v); err != nil {
		return CertificationRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist version", 500, err)
	}

	if _, err := s.ledger.Append(ctx, "oad.certification_requested", s.nodeID, nil,
		map[string]string{"version_id": versionID, "certification_id": record.ID}, map[string]any{
			"certifier_ids": certifierIDs, "policy_id": s.certPolicy.ID,
		}); err != nil {
		return CertificationRecord{}, err
	}
	return record, nil
}

// AppendCertification records one certifier's signature. Once the number
// of signed certifiers reaches the policy's required quorum, the version
// transitions to certified.
func (s *Service) AppendCertification(ctx context.Context, versionID, certifierID string) (CertificationRecord, error) {
	record, ok, err := s.store.CertificationByVersion(ctx, versionID)
	if err != nil {
		return CertificationRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "read certification", 500, err)
	}
	if !ok {
		return CertificationRecord{}, apierrors.NotFound("certification", versionID)
	}
	if _, known := record.Signed[certifierID]; !known {
		return CertificationRecord{}, apierrors.PolicyRejected("certifier not in the requested set")
	}
	record.Signed[certifierID] = true

	signedCount := 0
	for _, ok := range record.Signed {
		if ok {
			signedCount++
		}
	}

	if _, err := s.ledger.Append(ctx, "oad.certification_signed", s.nodeID, &certifierID,
		map[string]string{"version_id": versionID, "certification_id": record.ID}, nil); err != nil {
		return CertificationRecord{}, err
	}

	if signedCount >= s.certPolicy.RequiredQuorum {
		now := time.Now().UTC()
		record.CertifiedAt = &now

		v, ok, err := s.store.GetVersion(ctx, versionID)
		if err != nil {
			return CertificationRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "read version", 500, err)
		}
		if ok {
			v.Status = VersionCertified
			v.UpdatedAt = now
			if err := s.store.PutVersion(ctx, v); err != nil {
				return CertificationRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist version", 500, err)
			}
		}
		if _, err := s.ledger.Append(ctx, "oad.version_certified", s.nodeID, nil,
			map[string]string{"version_id": versionID, "certification_id": record.ID}, nil); err != nil {
			return CertificationRecord{}, err
		}
	}

	if err := s.store.PutCertification(ctx, record); err != nil {
		return CertificationRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist certification", 500, err)
	}
	return record, nil
}

// ValuationProfile implements valuation_profile, the read model ITC
// consumes.
func (s *Service) ValuationProfile(ctx context.Context, versionID string) (ValuationProfile, error) {
	v, ok, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return ValuationProfile{}, apierrors.Wrap(apierrors.KindIntegrityError, "read version", 500, err)
	}
	if !ok {
		return ValuationProfile{}, apierrors.NotFound("version", versionID)
	}
	ecoScore := 0.0
	if v.EcoScore != nil {
		ecoScore = *v.EcoScore
	}
	return ValuationProfile{
		VersionID:             versionID,
		LaborBySkillTier:      v.LaborByTier,
		EstimatedLaborHours:   v.EstimatedLaborHours,
		EcoScore:              ecoScore,
		Repairability:         v.Repairability,
		ExpectedLifespanHours: v.ExpectedLifespanHours,
	}, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
