package frs

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/liminalvillage/integral-sub001/internal/cache"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/pkg/apierrors"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
)

// recentValuationWindow bounds how many recent access valuations feed the
// valuation_drift detector's median baseline.
const recentValuationWindow = 12

// Service implements the FRS feedback/diagnostic engine operations of
// spec.md §4.G.
type Service struct {
	nodeID     string
	store      Store
	ledger     *ledger.Ledger
	logger     *logging.Logger
	thresholds DetectorThresholds
	coeffs     IndexCoefficients
	valuations cache.RollingWindow
}

// New constructs an frs.Service bound to nodeID. valuations may be nil, in
// which case callers must populate SignalPacket.RecentValuations
// themselves; when set, CreateSignalPacket both seeds a packet's recent
// valuations from the cache and records its own LatestValuation for
// future packets.
func New(nodeID string, store Store, l *ledger.Ledger, logger *logging.Logger, thresholds DetectorThresholds, coeffs IndexCoefficients, valuations cache.RollingWindow) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{nodeID: nodeID, store: store, ledger: l, logger: logger, thresholds: thresholds, coeffs: coeffs, valuations: valuations}
}

// CreateSignalPacket implements create_signal_packet: snapshots the given
// cross-subsystem metrics (assembled by the caller from read models) into
// a structured packet; stores and ledgers it.
func (s *Service) CreateSignalPacket(ctx context.Context, packet SignalPacket) (SignalPacket, error) {
	packet.ID = uuid.New().String()
	packet.NodeID = s.nodeID
	packet.CreatedAt = time.Now().UTC()
	if packet.ActiveFindingCounts == nil {
		packet.ActiveFindingCounts = map[FindingType]int{}
	}

	if s.valuations != nil {
		if len(packet.RecentValuations) == 0 {
			recent, err := s.valuations.Recent(ctx, s.nodeID, recentValuationWindow)
			if err != nil {
				return SignalPacket{}, apierrors.Wrap(apierrors.KindIntegrityError, "read recent valuation window", 500, err)
			}
			packet.RecentValuations = recent
		}
		if packet.LatestValuation != 0 {
			if err := s.valuations.Push(ctx, s.nodeID, packet.LatestValuation); err != nil {
				return SignalPacket{}, apierrors.Wrap(apierrors.KindIntegrityError, "push latest valuation to rolling window", 500, err)
			}
		}
	}

	if err := s.store.PutPacket(ctx, packet); err != nil {
		return SignalPacket{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist signal packet", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "frs.signal_packet_created", s.nodeID, nil,
		map[string]string{"packet_id": packet.ID}, map[string]any{
			"material_scarcity_index": packet.MaterialScarcityIndex,
			"blocked_task_ratio":      packet.BlockedTaskRatio,
		}); err != nil {
		return SignalPacket{}, err
	}
	return packet, nil
}

// AnalyzePacket implements analyze_packet: applies every configured
// detector to the packet's snapshotted metrics.
func (s *Service) AnalyzePacket(ctx context.Context, packetID string) ([]Finding, error) {
	packet, ok, err := s.store.GetPacket(ctx, packetID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindIntegrityError, "read signal packet", 500, err)
	}
	if !ok {
		return nil, apierrors.NotFound("signal_packet", packetID)
	}

	var findings []Finding
	now := time.Now().UTC()

	addFinding := func(ft FindingType, sev Severity, conf Confidence, summary, rationale string, indicators map[string]any) {
		findings = append(findings, Finding{
			ID: uuid.New().String(), PacketID: packetID, Type: ft, Severity: sev, Confidence: conf,
			Summary: summary, Rationale: rationale, Indicators: indicators, CreatedAt: now,
		})
	}

	// ecological_overshoot: average certified-design eco_score above threshold.
	if packet.AverageCertifiedEcoScore > s.thresholds.EcologicalOvershootEcoScore {
		addFinding(FindingEcologicalOvershoot, severityForOvershoot(packet.AverageCertifiedEcoScore, s.thresholds.EcologicalOvershootEcoScore),
			ConfidenceConfident,
			"average certified-design ecological burden exceeds policy threshold",
			fmt.Sprintf("average_certified_eco_score=%.4f > threshold=%.4f", packet.AverageCertifiedEcoScore, s.thresholds.EcologicalOvershootEcoScore),
			map[string]any{"average_certified_eco_score": packet.AverageCertifiedEcoScore})
	}

	// labor_stress: skill-tier utilization > 0.6 for {high, expert}.
	for _, tier := range []string{"high", "expert"} {
		util := packet.SkillTierUtilization[tier]
		if util > s.thresholds.LaborStressUtilization {
			addFinding(FindingLaborStress, SeverityModerate, ConfidenceConfident,
				fmt.Sprintf("%s-tier labor utilization exceeds policy threshold", tier),
				fmt.Sprintf("utilization[%s]=%.4f > threshold=%.4f", tier, util, s.thresholds.LaborStressUtilization),
				map[string]any{"skill_tier": tier, "utilization": util})
		}
	}

	// material_dependency: Herfindahl of supplier shares > 0.5 or
	// critical-external ratio > 0.1.
	herf := herfindahlShares(packet.SupplierShares)
	if herf > s.thresholds.MaterialDependencyHerfindahl || packet.CriticalExternalRatio > s.thresholds.MaterialDependencyCriticalExt {
		addFinding(FindingMaterialDependency, SeverityModerate, ConfidenceConfident,
			"supply concentration or critical-external reliance exceeds policy threshold",
			fmt.Sprintf("herfindahl=%.4f critical_external_ratio=%.4f", herf, packet.CriticalExternalRatio),
			map[string]any{"herfindahl": herf, "critical_external_ratio": packet.CriticalExternalRatio})
	}

	// design_friction: QA fail-rate spike.
	if spike := qaFailSpike(packet.QAFailRate, packet.RecentQAFailRates); spike > s.thresholds.DesignFrictionQAFailSpike {
		addFinding(FindingDesignFriction, SeverityLow, ConfidenceProvisional,
			"QA fail rate spiked relative to recent baseline",
			fmt.Sprintf("qa_fail_rate=%.4f spike=%.4f > threshold=%.4f", packet.QAFailRate, spike, s.thresholds.DesignFrictionQAFailSpike),
			map[string]any{"qa_fail_rate": packet.QAFailRate, "spike": spike})
	}

	// valuation_drift: |valuation − median_recent| / median_recent > 0.25.
	if drift := valuationDrift(packet.LatestValuation, packet.RecentValuations); drift > s.thresholds.ValuationDriftRatio {
		addFinding(FindingValuationDrift, SeverityModerate, ConfidenceConfident,
			"latest access valuation diverges from recent median",
			fmt.Sprintf("drift=%.4f > threshold=%.4f", drift, s.thresholds.ValuationDriftRatio),
			map[string]any{"drift": drift, "latest_valuation": packet.LatestValuation})
	}

	// governance_load: fraction of issues stuck in pre-deliberation states.
	if packet.PreDeliberationIssueRatio > s.thresholds.GovernanceLoadRatio {
		addFinding(FindingGovernanceLoad, SeverityLow, ConfidenceProvisional,
			"a growing share of issues has not reached deliberation",
			fmt.Sprintf("pre_deliberation_issue_ratio=%.4f > threshold=%.4f", packet.PreDeliberationIssueRatio, s.thresholds.GovernanceLoadRatio),
			map[string]any{"pre_deliberation_issue_ratio": packet.PreDeliberationIssueRatio})
	}

	// coordination_fragility: blocked-task ratio over rolling window.
	if packet.BlockedTaskRatio > s.thresholds.CoordinationFragilityRatio {
		addFinding(FindingCoordinationFragility, SeverityModerate, ConfidenceConfident,
			"blocked-task ratio exceeds policy threshold",
			fmt.Sprintf("blocked_task_ratio=%.4f > threshold=%.4f", packet.BlockedTaskRatio, s.thresholds.CoordinationFragilityRatio),
			map[string]any{"blocked_task_ratio": packet.BlockedTaskRatio})
	}

	for _, f := range findings {
		if err := s.store.PutFinding(ctx, f); err != nil {
			return nil, apierrors.Wrap(apierrors.KindIntegrityError, "persist finding", 500, err)
		}
	}
	if _, err := s.ledger.Append(ctx, "frs.packet_analyzed", s.nodeID, nil,
		map[string]string{"packet_id": packetID}, map[string]any{"finding_count": len(findings)}); err != nil {
		return nil, err
	}
	return findings, nil
}

// FindingsByPacket is a thin read accessor used by the dashboard view
// (spec.md §6): the findings already persisted for a packet, without
// re-running the detectors.
func (s *Service) FindingsByPacket(ctx context.Context, packetID string) ([]Finding, error) {
	findings, err := s.store.FindingsByPacket(ctx, packetID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindIntegrityError, "read findings by packet", 500, err)
	}
	return findings, nil
}

// RecommendationsByFinding is a thin read accessor mirroring FindingsByPacket.
func (s *Service) RecommendationsByFinding(ctx context.Context, findingID string) ([]Recommendation, error) {
	recs, err := s.store.RecommendationsByFinding(ctx, findingID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindIntegrityError, "read recommendations by finding", 500, err)
	}
	return recs, nil
}

func severityForOvershoot(score, threshold float64) Severity {
	if score > threshold+0.2 {
		return SeverityCritical
	}
	return SeverityModerate
}

func herfindahlShares(shares map[string]float64) float64 {
	sum := 0.0
	for _, sh := range shares {
		sum += sh * sh
	}
	return sum
}

func qaFailSpike(latest float64, recent []float64) float64 {
	if len(recent) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range recent {
		sum += r
	}
	baseline := sum / float64(len(recent))
	if baseline == 0 {
		if latest > 0 {
			return latest
		}
		return 0
	}
	return (latest - baseline) / baseline
}

func valuationDrift(latest float64, recent []float64) float64 {
	if len(recent) == 0 {
		return 0
	}
	median := medianOf(recent)
	if median == 0 {
		return 0
	}
	return math.Abs(latest-median) / median
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// GenerateRecommendations implements generate_recommendations: each
// finding maps to a recommendation targeting a subsystem with a
// deterministic default action.
func (s *Service) GenerateRecommendations(ctx context.Context, findingIDs []string) ([]Recommendation, error) {
	recs := make([]Recommendation, 0, len(findingIDs))
	for _, id := range findingIDs {
		finding, ok, err := s.store.GetFinding(ctx, id)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.KindIntegrityError, "read finding", 500, err)
		}
		if !ok {
			return nil, apierrors.NotFound("finding", id)
		}
		target, action := actionForFinding(finding.Type)
		rec := Recommendation{
			ID: uuid.New().String(), FindingID: finding.ID, Target: target, Severity: finding.Severity,
			Summary: "advisory: " + finding.Summary, Rationale: finding.Rationale, Action: action, CreatedAt: time.Now().UTC(),
		}
		if err := s.store.PutRecommendation(ctx, rec); err != nil {
			return nil, apierrors.Wrap(apierrors.KindIntegrityError, "persist recommendation", 500, err)
		}
		recs = append(recs, rec)
	}
	if _, err := s.ledger.Append(ctx, "frs.recommendations_generated", s.nodeID, nil,
		map[string]string{}, map[string]any{"finding_count": len(findingIDs), "recommendation_count": len(recs)}); err != nil {
		return nil, err
	}
	return recs, nil
}

// IndexInputs are the bounded raw observations ComputeIndices combines
// into autonomy/fragility (spec.md §4.G). Each field is expected in
// [0,1]; PendingIssueCount and HighScarcityMaterialCount are raw counts
// normalized by the caller's chosen denominator before being passed in as
// ratios, keeping the coefficient table free of magic denominators.
type IndexInputs struct {
	GovernanceParticipationRatio float64
	LaborVerificationRatio       float64
	CertifiedDesignRatio         float64
	TaskCompletionRatio          float64
	BlockedTaskRatio             float64
	CriticalAndModerateFindingRatio float64
	HighScarcityMaterialRatio    float64
	PendingIssueRatio            float64
}

// ComputeIndices implements the autonomy/fragility index computation:
// autonomy = clamp(0.5 + Σ weight_i*input_i, 0, 1),
// fragility = clamp(Σ weight_j*input_j, 0, 1).
// Exact coefficients are policy values, version-stamped in the returned
// Indices.
func (s *Service) ComputeIndices(ctx context.Context, in IndexInputs) (Indices, error) {
	c := s.coeffs
	autonomy := clamp01(0.5 +
		c.GovernanceParticipationWeight*in.GovernanceParticipationRatio +
		c.LaborVerificationWeight*in.LaborVerificationRatio +
		c.CertifiedDesignWeight*in.CertifiedDesignRatio +
		c.TaskCompletionWeight*in.TaskCompletionRatio)

	fragility := clamp01(
		c.BlockedTaskWeight*in.BlockedTaskRatio +
			c.FindingCountWeight*in.CriticalAndModerateFindingRatio +
			c.ScarcityMaterialWeight*in.HighScarcityMaterialRatio +
			c.PendingIssueWeight*in.PendingIssueRatio)

	indices := Indices{NodeID: s.nodeID, Autonomy: autonomy, Fragility: fragility, PolicyVersion: c.Version, ComputedAt: time.Now().UTC()}
	s.logger.LogNumericPolicy(ctx, "frs.compute_indices",
		map[string]any{"inputs": in, "policy_version": c.Version},
		map[string]any{"autonomy": autonomy, "fragility": fragility})
	if _, err := s.ledger.Append(ctx, "frs.indices_computed", s.nodeID, nil,
		map[string]string{}, map[string]any{"autonomy": autonomy, "fragility": fragility, "policy_version": c.Version}); err != nil {
		return Indices{}, err
	}
	return indices, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RecordMemory implements memory_record: immutable once written.
func (s *Service) RecordMemory(ctx context.Context, recordType MemoryRecordType, title, narrative string) (MemoryRecord, error) {
	record := MemoryRecord{ID: uuid.New().String(), Type: recordType, Title: title, Narrative: narrative, CreatedAt: time.Now().UTC()}
	if err := s.store.PutMemoryRecord(ctx, record); err != nil {
		return MemoryRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist memory record", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "frs.memory_recorded", s.nodeID, nil,
		map[string]string{"memory_record_id": record.ID}, map[string]any{"type": recordType, "title": title}); err != nil {
		return MemoryRecord{}, err
	}
	return record, nil
}
