package itc

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/liminalvillage/integral-sub001/internal/cache"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/pkg/apierrors"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
)

// bandSmoothingWindow bounds how many recent condition-ratio observations
// smooth a node pair's equivalence band.
const bandSmoothingWindow = 8

// Service implements the ITC time-credit engine operations of spec.md §4.D.
type Service struct {
	nodeID  string
	store   Store
	ledger  *ledger.Ledger
	logger  *logging.Logger
	policy  WeightingPolicy
	decay   DecayRule
	autonomyWeights AutonomyWeights
	coercion CoercionThresholds
	bandSmoothing cache.RollingWindow
}

// New constructs an itc.Service bound to nodeID. bandSmoothing may be nil,
// in which case EquivalenceBand clamps each observation directly with no
// smoothing across calls.
func New(nodeID string, store Store, l *ledger.Ledger, logger *logging.Logger, policy WeightingPolicy, decay DecayRule, bandSmoothing cache.RollingWindow) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		nodeID: nodeID, store: store, ledger: l, logger: logger,
		policy: policy, decay: decay,
		autonomyWeights: DefaultAutonomyWeights(),
		coercion:        DefaultCoercionThresholds(),
		bandSmoothing:   bandSmoothing,
	}
}

// RecordLabor implements record_labor.
func (s *Service) RecordLabor(ctx context.Context, memberID, coopID, taskID, taskLabel, taskType string, start, end time.Time, tier SkillTier, labCtx LaborContext, verifiedBy *string) (LaborEvent, error) {
	if !end.After(start) {
		return LaborEvent{}, apierrors.OutOfRange("end_time", "> start_time", nil)
	}
	event := LaborEvent{
		ID:        uuid.New().String(),
		MemberID:  memberID,
		CoopID:    coopID,
		TaskID:    taskID,
		TaskLabel: taskLabel,
		TaskType:  taskType,
		NodeID:    s.nodeID,
		StartTime: start,
		EndTime:   end,
		SkillTier: tier,
		Context:   labCtx,
	}
	if verifiedBy != nil {
		event.VerifiedBy = []string{*verifiedBy}
		now := time.Now().UTC()
		event.VerificationTimestamp = &now
	}
	if err := s.store.PutLaborEvent(ctx, event); err != nil {
		return LaborEvent{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist labor event", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "itc.labor_event_recorded", s.nodeID, &memberID,
		map[string]string{"event_id": event.ID, "task_id": taskID}, map[string]any{
			"hours": event.Hours(), "skill_tier": string(tier),
		}); err != nil {
		return LaborEvent{}, err
	}
	return event, nil
}

// VerifyLabor implements verify_labor: idempotent if the verifier is
// already present.
func (s *Service) VerifyLabor(ctx context.Context, eventID, verifierID string) (LaborEvent, error) {
	event, ok, err := s.store.GetLaborEvent(ctx, eventID)
	if err != nil {
		return LaborEvent{}, apierrors.Wrap(apierrors.KindIntegrityError, "read labor event", 500, err)
	}
	if !ok {
		return LaborEvent{}, apierrors.NotFound("labor_event", eventID)
	}
	for _, v := range event.VerifiedBy {
		if v == verifierID {
			return event, nil
		}
	}
	event.VerifiedBy = append(event.VerifiedBy, verifierID)
	now := time.Now().UTC()
	event.VerificationTimestamp = &now
	if err := s.store.PutLaborEvent(ctx, event); err != nil {
		return LaborEvent{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist labor event", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "itc.labor_event_verified", s.nodeID, &verifierID,
		map[string]string{"event_id": eventID}, nil); err != nil {
		return LaborEvent{}, err
	}
	return event, nil
}

// ComputeWeighted implements compute_weighted.
func (s *Service) ComputeWeighted(ctx context.Context, eventID string) (WeightedRecord, error) {
	event, ok, err := s.store.GetLaborEvent(ctx, eventID)
	if err != nil {
		return WeightedRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "read labor event", 500, err)
	}
	if !ok {
		return WeightedRecord{}, apierrors.NotFound("labor_event", eventID)
	}
	if !event.IsVerified() {
		return WeightedRecord{}, apierrors.PolicyRejected("labor event is not verified")
	}

	baseWeight := s.policy.BaseWeightsBySkill[event.SkillTier]
	taskFactor := s.policy.TaskTypeModifier(event.TaskType)
	w := s.policy.ContextWeights
	contextRaw := 1 + w.Urgency*event.Context.Urgency + w.EcoSensitivity*event.Context.EcoSensitivity + w.Scarcity*event.Context.Scarcity
	contextFactor := clamp(contextRaw, s.policy.ContextFactorMin, s.policy.ContextFactorMax)

	raw := baseWeight * taskFactor * contextFactor
	multiplier := clamp(raw, s.policy.MinWeightMultiplier, s.policy.MaxWeightMultiplier)

	baseHours := roundHalfEven(event.Hours())
	weightedHours := roundHalfEven(baseHours * multiplier)

	record := WeightedRecord{
		ID:               uuid.New().String(),
		EventID:          eventID,
		MemberID:         event.MemberID,
		NodeID:           s.nodeID,
		BaseHours:        baseHours,
		WeightMultiplier: multiplier,
		WeightedHours:    weightedHours,
		Breakdown: Breakdown{
			SkillFactor: baseWeight, TaskFactor: taskFactor, ContextFactor: contextFactor,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.PutWeightedRecord(ctx, record); err != nil {
		return WeightedRecord{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist weighted record", 500, err)
	}
	s.logger.LogNumericPolicy(ctx, "itc.compute_weighted",
		map[string]any{"base_hours": baseHours, "base_weight": baseWeight, "task_factor": taskFactor, "context_factor": contextFactor},
		map[string]any{"weight_multiplier": multiplier, "weighted_hours": weightedHours})
	if _, err := s.ledger.Append(ctx, "itc.labor_weighted", s.nodeID, nil,
		map[string]string{"event_id": eventID, "weighted_record_id": record.ID}, map[string]any{
			"weighted_hours": weightedHours, "weight_multiplier": multiplier,
		}); err != nil {
		return WeightedRecord{}, err
	}
	return record, nil
}

// CreditAccount implements credit_account: creates the account if absent,
// increments balance and total_earned.
func (s *Service) CreditAccount(ctx context.Context, memberID, weightedRecordID string) (Account, error) {
	record, ok, err := s.store.GetWeightedRecord(ctx, weightedRecordID)
	if err != nil {
		return Account{}, apierrors.Wrap(apierrors.KindIntegrityError, "read weighted record", 500, err)
	}
	if !ok {
		return Account{}, apierrors.NotFound("weighted_record", weightedRecordID)
	}

	account, ok, err := s.store.GetAccount(ctx, memberID, s.nodeID)
	if err != nil {
		return Account{}, apierrors.Wrap(apierrors.KindIntegrityError, "read account", 500, err)
	}
	if !ok {
		account = Account{
			ID: uuid.New().String(), MemberID: memberID, NodeID: s.nodeID,
			LastDecayAppliedAt: time.Now().UTC(), ActiveDecayRuleID: s.decay.ID,
		}
	}
	account.Balance = roundHalfEven(account.Balance + record.WeightedHours)
	account.TotalEarned = roundHalfEven(account.TotalEarned + record.WeightedHours)

	if err := s.store.PutAccount(ctx, account); err != nil {
		return Account{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist account", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "itc.account_credited", s.nodeID, &memberID,
		map[string]string{"weighted_record_id": record.ID, "account_id": account.ID}, map[string]any{
			"amount": record.WeightedHours, "balance": account.Balance,
		}); err != nil {
		return Account{}, err
	}
	return account, nil
}

// ApplyDecay implements apply_decay. Returns the decay amount deducted (0
// if still within the grace period or if called again within the same
// wall-clock instant).
func (s *Service) ApplyDecay(ctx context.Context, memberID string) (float64, error) {
	account, ok, err := s.store.GetAccount(ctx, memberID, s.nodeID)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindIntegrityError, "read account", 500, err)
	}
	if !ok {
		return 0, apierrors.NotFound("account", memberID)
	}

	now := time.Now().UTC()
	deltaT := now.Sub(account.LastDecayAppliedAt).Hours() / 24
	if deltaT <= s.decay.InactivityGraceDays {
		return 0, nil
	}
	d := deltaT - s.decay.InactivityGraceDays

	protectedBalance := math.Max(0, account.Balance-s.decay.MinBalanceProtected)
	rawDecay := protectedBalance * (1 - math.Pow(2, -d/s.decay.HalfLifeDays))
	annualCap := account.Balance * s.decay.MaxAnnualDecayFraction * (d / 365)
	decayAmount := roundHalfEven(math.Min(rawDecay, annualCap))
	if decayAmount < 0 {
		decayAmount = 0
	}

	account.Balance = roundHalfEven(account.Balance - decayAmount)
	account.TotalDecayed = roundHalfEven(account.TotalDecayed + decayAmount)
	account.LastDecayAppliedAt = now

	if err := s.store.PutAccount(ctx, account); err != nil {
		return 0, apierrors.Wrap(apierrors.KindIntegrityError, "persist account", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "itc.decay_applied", s.nodeID, &memberID,
		map[string]string{"account_id": account.ID}, map[string]any{
			"decay_amount": decayAmount, "balance": account.Balance,
		}); err != nil {
		return 0, err
	}
	return decayAmount, nil
}

// AccountsByNode returns every ITC account held at this node, for callers
// (the decay sweep) that need to iterate accounts rather than look one up
// by member id.
func (s *Service) AccountsByNode(ctx context.Context) ([]Account, error) {
	accounts, err := s.store.ListAccountsByNode(ctx, s.nodeID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindIntegrityError, "read accounts by node", 500, err)
	}
	return accounts, nil
}

// ComputeAccessValue implements compute_access_value.
func (s *Service) ComputeAccessValue(ctx context.Context, itemID, designVersionID string, profile OADProfile, cos *COSWorkloadSignal, frs *FRSValuationSignal) (Valuation, error) {
	weightedLabor := 0.0
	for tier, hours := range profile.LaborBySkillTier {
		weightedLabor += hours * s.policy.BaseWeightsBySkill[tier]
	}

	ecoAdj := weightedLabor * profile.EcoScore * 0.5

	scarcityIndex := 0.0
	if cos != nil {
		scarcityIndex = cos.MaterialScarcityIndex
	}
	scarcityAmplifier := 1.0
	if frs != nil && frs.ScarcityAmplifier != 0 {
		scarcityAmplifier = frs.ScarcityAmplifier
	}
	scarcityAdj := weightedLabor * scarcityIndex * scarcityAmplifier * 0.3

	repairCredit := weightedLabor * profile.Repairability * 0.15
	longevityCredit := weightedLabor * math.Min(1, profile.ExpectedLifespanHours/20000) * 0.10

	finalCost := math.Max(0, weightedLabor+ecoAdj+scarcityAdj-repairCredit-longevityCredit)

	valuation := Valuation{
		ItemID: itemID, DesignVersionID: designVersionID, NodeID: s.nodeID,
		BaseWeightedLaborHours:     roundHalfEven(weightedLabor),
		EcoBurdenAdjustment:        roundHalfEven(ecoAdj),
		MaterialScarcityAdjustment: roundHalfEven(scarcityAdj),
		RepairabilityCredit:        roundHalfEven(repairCredit),
		LongevityCredit:            roundHalfEven(longevityCredit),
		FinalITCCost:               roundHalfEven(finalCost),
		ComputedAt:                 time.Now().UTC(),
		PolicySnapshotID:           s.policy.ID,
		Rationale: map[string]any{
			"weighted_labor": weightedLabor, "eco_score": profile.EcoScore,
			"scarcity_index": scarcityIndex, "scarcity_amplifier": scarcityAmplifier,
			"repairability": profile.Repairability, "expected_lifespan_hours": profile.ExpectedLifespanHours,
		},
	}
	if _, err := s.ledger.Append(ctx, "itc.access_valuation_computed", s.nodeID, nil,
		map[string]string{"item_id": itemID, "design_version_id": designVersionID}, map[string]any{
			"final_itc_cost": valuation.FinalITCCost,
		}); err != nil {
		return Valuation{}, err
	}
	return valuation, nil
}

// RedeemAccess implements redeem_access: deduction and ledger append are
// atomic, guarded by the ledger's own append critical section plus this
// method holding the account read-modify-write together.
func (s *Service) RedeemAccess(ctx context.Context, memberID, itemID string, redemptionType RedemptionType, valuation Valuation, expiresAt *time.Time) (Redemption, error) {
	account, ok, err := s.store.GetAccount(ctx, memberID, s.nodeID)
	if err != nil {
		return Redemption{}, apierrors.Wrap(apierrors.KindIntegrityError, "read account", 500, err)
	}
	if !ok {
		return Redemption{}, apierrors.NotFound("account", memberID)
	}
	if account.Balance < valuation.FinalITCCost {
		return Redemption{}, apierrors.InsufficientBalance(valuation.FinalITCCost, account.Balance)
	}

	original := account
	account.Balance = roundHalfEven(account.Balance - valuation.FinalITCCost)
	account.TotalRedeemed = roundHalfEven(account.TotalRedeemed + valuation.FinalITCCost)

	redemption := Redemption{
		ID: uuid.New().String(), MemberID: memberID, NodeID: s.nodeID, ItemID: itemID,
		ITCSpent: valuation.FinalITCCost, RedemptionTime: time.Now().UTC(),
		RedemptionType: redemptionType, ExpiresAt: expiresAt, ValuationSnapshot: valuation,
	}

	// No redemption without a ledger entry, no ledger entry without the
	// deduction: the deduction is persisted first, then the ledger append;
	// a failure on either leaves no redemption recorded as successful.
	if err := s.store.PutAccount(ctx, account); err != nil {
		return Redemption{}, apierrors.Wrap(apierrors.KindIntegrityError, "persist account", 500, err)
	}
	if _, err := s.ledger.Append(ctx, "itc.access_redeemed", s.nodeID, &memberID,
		map[string]string{"item_id": itemID, "redemption_id": redemption.ID}, map[string]any{
			"itc_spent": redemption.ITCSpent, "balance": account.Balance,
		}); err != nil {
		// The ledger append failed: the deduction persisted above is
		// undone by writing the account back as it was read, and the
		// redemption is reported as failed.
		if restoreErr := s.store.PutAccount(ctx, original); restoreErr != nil {
			return Redemption{}, apierrors.Wrap(apierrors.KindIntegrityError, "restore account after failed ledger append", 500, restoreErr)
		}
		return Redemption{}, err
	}
	return redemption, nil
}

// EquivalenceBand implements equivalence_band: ratios bounded to [0.9, 1.1]
// to cap arbitrage between nodes. When a smoothing cache is configured, the
// raw ratios are averaged against the node pair's recent observations
// before clamping, so a single noisy reading can't swing the band to its
// limit.
func (s *Service) EquivalenceBand(ctx context.Context, homeNodeID, localNodeID string, laborConditionRatio, ecoConditionRatio float64) (EquivalenceBand, error) {
	laborRatio, ecoRatio := laborConditionRatio, ecoConditionRatio
	if s.bandSmoothing != nil {
		var err error
		laborRatio, err = s.smoothedRatio(ctx, homeNodeID+"|"+localNodeID+"|labor", laborConditionRatio)
		if err != nil {
			return EquivalenceBand{}, err
		}
		ecoRatio, err = s.smoothedRatio(ctx, homeNodeID+"|"+localNodeID+"|eco", ecoConditionRatio)
		if err != nil {
			return EquivalenceBand{}, err
		}
	}

	band := EquivalenceBand{
		HomeNodeID:  homeNodeID,
		LocalNodeID: localNodeID,
		LaborContextFactor: clamp(laborRatio, EquivalenceBandMin, EquivalenceBandMax),
		EcoContextFactor:   clamp(ecoRatio, EquivalenceBandMin, EquivalenceBandMax),
		UpdatedAt:   time.Now().UTC(),
	}
	if _, err := s.ledger.Append(ctx, "itc.equivalence_band_updated", s.nodeID, nil,
		map[string]string{"home_node_id": homeNodeID, "local_node_id": localNodeID}, map[string]any{
			"labor_context_factor": band.LaborContextFactor, "eco_context_factor": band.EcoContextFactor,
		}); err != nil {
		return EquivalenceBand{}, err
	}
	return band, nil
}

// smoothedRatio pushes observation onto key's rolling window and returns
// the mean of its recent samples (including this one).
func (s *Service) smoothedRatio(ctx context.Context, key string, observation float64) (float64, error) {
	if err := s.bandSmoothing.Push(ctx, key, observation); err != nil {
		return 0, apierrors.Wrap(apierrors.KindIntegrityError, "push equivalence observation to smoothing window", 500, err)
	}
	recent, err := s.bandSmoothing.Recent(ctx, key, bandSmoothingWindow)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindIntegrityError, "read equivalence smoothing window", 500, err)
	}
	if len(recent) == 0 {
		return observation, nil
	}
	sum := 0.0
	for _, v := range recent {
		sum += v
	}
	return sum / float64(len(recent)), nil
}

// AutonomyAndFragility implements autonomy_and_fragility:
// A = clamp(1*s_int + 0.7*s_fed - 1*s_ext, 0, 1),
// F = clamp(Herfindahl(unit_shares) + 0.3*critical_external, 0, 1).
func (s *Service) AutonomyAndFragility(internalShare, federatedShare, externalShare, criticalExternal float64, unitShares []float64) AutonomyFragility {
	w := s.autonomyWeights
	autonomy := clamp(w.Internal*internalShare+w.Federated*federatedShare-w.External*externalShare, 0, 1)
	fragility := clamp(herfindahl(unitShares)+w.CriticalExternal*criticalExternal, 0, 1)
	return AutonomyFragility{Autonomy: autonomy, Fragility: fragility}
}

// herfindahl computes the Herfindahl-Hirschman concentration index over a
// set of shares (each expected in [0,1], summing to ~1): Σ shareᵢ².
func herfindahl(shares []float64) float64 {
	sum := 0.0
	for _, sh := range shares {
		sum += sh * sh
	}
	return sum
}

// DetectCoercion implements the ethics safeguard: inspects recent labor
// within the configured window and flags {excessive-hours ratio,
// monotone low-tier assignment ratio}. Flagging is advisory; it never
// mutates balances.
func (s *Service) DetectCoercion(ctx context.Context, memberID string, now time.Time, expectedCapacityHours float64) (*EthicsEvent, error) {
	since := now.Add(-time.Duration(s.coercion.WindowDays*24) * time.Hour)
	events, err := s.store.ListLaborEventsByMember(ctx, memberID, since, now)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindIntegrityError, "read labor events", 500, err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	totalHours := 0.0
	lowTierCount := 0
	for _, e := range events {
		totalHours += e.Hours()
		if e.SkillTier == SkillLow {
			lowTierCount++
		}
	}

	excessiveRatio := 0.0
	if expectedCapacityHours > 0 {
		excessiveRatio = totalHours / expectedCapacityHours
	}
	monotoneRatio := float64(lowTierCount) / float64(len(events))

	if excessiveRatio <= s.coercion.ExcessiveHoursRatio && monotoneRatio <= s.coercion.MonotoneLowTierRatio {
		return nil, nil
	}

	event := EthicsEvent{
		ID: uuid.New().String(), MemberID: memberID,
		ExcessiveHoursRatio: excessiveRatio, MonotoneLowTierRatio: monotoneRatio,
		CreatedAt: now,
	}
	if _, err := s.ledger.Append(ctx, "itc.ethics_event_flagged", s.nodeID, &memberID,
		map[string]string{"ethics_event_id": event.ID}, map[string]any{
			"excessive_hours_ratio": excessiveRatio, "monotone_low_tier_ratio": monotoneRatio,
		}); err != nil {
		return nil, err
	}
	return &event, nil
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
