package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/liminalvillage/integral-sub001/internal/cds"
	"github.com/liminalvillage/integral-sub001/internal/cos"
	"github.com/liminalvillage/integral-sub001/internal/federation"
	"github.com/liminalvillage/integral-sub001/internal/frs"
	"github.com/liminalvillage/integral-sub001/internal/itc"
	"github.com/liminalvillage/integral-sub001/internal/oad"
)

// oadDispatchPayload is the subset of a DispatchTask{System:"OAD"} payload
// this engine understands: a request to start a new design version.
type oadDispatchPayload struct {
	SpecID     string                 `json:"specId"`
	Label      string                 `json:"label"`
	AuthorIDs  []string               `json:"authorIds"`
	Parameters map[string]interface{} `json:"parameters"`
}

// cosDispatchPayload is the subset of a DispatchTask{System:"COS"} payload
// this engine understands: a request to schedule a production plan.
type cosDispatchPayload struct {
	VersionID string              `json:"versionId"`
	BatchID   string              `json:"batchId"`
	BatchSize int                 `json:"batchSize"`
	Steps     []cos.ProductionStep `json:"steps"`
}

// RouteDispatchPacket implements spec.md §2's data flow from a CDS
// decision: each task in the packet is routed to the subsystem it names.
// OAD and COS tasks whose payload matches a recognized shape trigger the
// corresponding operation; ITC policy-change tasks and unrecognized
// payloads are recorded to the ledger as advisory routing events only,
// since spec.md leaves no generic "apply policy change" operation for the
// engine to call automatically. One task failing does not stop routing
// the rest; all failures are returned together.
func (e *Engine) RouteDispatchPacket(ctx context.Context, packet cds.DispatchPacket) error {
	var errs *multierror.Error
	for _, task := range packet.Tasks {
		if err := e.routeDispatchTask(ctx, packet, task); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("route task for %s: %w", task.System, err))
		}
	}
	return errs.ErrorOrNil()
}

func (e *Engine) routeDispatchTask(ctx context.Context, packet cds.DispatchPacket, task cds.DispatchTask) error {
	switch task.System {
	case "OAD":
		return e.routeOADTask(ctx, packet, task)
	case "COS":
		return e.routeCOSTask(ctx, packet, task)
	case "ITC":
		return e.recordAdvisoryRouting(ctx, "itc", packet, task)
	case "FRS":
		return e.recordAdvisoryRouting(ctx, "frs", packet, task)
	default:
		return e.recordAdvisoryRouting(ctx, "unknown", packet, task)
	}
}

func (e *Engine) routeOADTask(ctx context.Context, packet cds.DispatchPacket, task cds.DispatchTask) error {
	var payload oadDispatchPayload
	if !decodeTaskPayload(task.Payload, &payload) || payload.SpecID == "" || payload.Label == "" {
		return e.recordAdvisoryRouting(ctx, "oad", packet, task)
	}
	_, err := e.OAD.CreateVersion(ctx, payload.SpecID, payload.Label, payload.AuthorIDs, payload.Parameters)
	return err
}

func (e *Engine) routeCOSTask(ctx context.Context, packet cds.DispatchPacket, task cds.DispatchTask) error {
	var payload cosDispatchPayload
	if !decodeTaskPayload(task.Payload, &payload) || payload.VersionID == "" || len(payload.Steps) == 0 {
		return e.recordAdvisoryRouting(ctx, "cos", packet, task)
	}
	_, _, err := e.COS.CreateProductionPlan(ctx, payload.VersionID, payload.BatchID, payload.BatchSize, payload.Steps)
	return err
}

// recordAdvisoryRouting appends a ledger entry recording that a dispatch
// task was routed to subsystem but produced no automatic state change,
// either because the target has no engine-automated handler (ITC policy
// change, FRS monitor) or because the payload didn't match a recognized
// shape.
func (e *Engine) recordAdvisoryRouting(ctx context.Context, subsystem string, packet cds.DispatchPacket, task cds.DispatchTask) error {
	_, err := e.Ledger.Append(ctx, "engine.dispatch_routed", e.NodeID, nil,
		map[string]string{"dispatch_packet_id": packet.ID, "issue_id": packet.IssueID},
		map[string]any{"target_system": subsystem, "payload": task.Payload})
	return err
}

func decodeTaskPayload(payload map[string]interface{}, out interface{}) bool {
	if len(payload) == 0 {
		return false
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// ComputeAccessValueForVersion implements the ITC side of spec.md §2's
// data flow: OAD certifies a design version with a valuation profile; ITC
// consumes that profile plus a COS workload signal and an FRS scarcity
// signal to compute access cost. This fetches the OAD profile on the
// caller's behalf so neither HTTP callers nor scheduled jobs need to
// re-derive the OAD->ITC mapping themselves.
func (e *Engine) ComputeAccessValueForVersion(ctx context.Context, itemID, versionID string, cosSignal *itc.COSWorkloadSignal, frsSignal *itc.FRSValuationSignal) (itc.Valuation, error) {
	profile, err := e.OAD.ValuationProfile(ctx, versionID)
	if err != nil {
		return itc.Valuation{}, err
	}
	itcProfile := itc.OADProfile{
		LaborBySkillTier:      mapSkillTiers(profile.LaborBySkillTier),
		EcoScore:              profile.EcoScore,
		Repairability:         profile.Repairability,
		ExpectedLifespanHours: profile.ExpectedLifespanHours,
	}
	return e.ITC.ComputeAccessValue(ctx, itemID, versionID, itcProfile, cosSignal, frsSignal)
}

func mapSkillTiers(src map[oad.SkillTier]float64) map[itc.SkillTier]float64 {
	out := make(map[itc.SkillTier]float64, len(src))
	for tier, hours := range src {
		out[itc.SkillTier(tier)] = hours
	}
	return out
}

// WorkloadSignalForITC implements the COS->ITC leg of spec.md §2's data
// flow: COS emits a workload signal that ITC consumes as the material
// scarcity component of access valuation.
func (e *Engine) WorkloadSignalForITC(ctx context.Context, planID string, expectedMaterials map[string]cos.ExpectedMaterial) (itc.COSWorkloadSignal, error) {
	signal, err := e.COS.WorkloadSignal(ctx, planID, expectedMaterials)
	if err != nil {
		return itc.COSWorkloadSignal{}, err
	}
	return itc.COSWorkloadSignal{MaterialScarcityIndex: signal.MaterialScarcityIndex}, nil
}

// RouteRecommendations implements the FRS->{CDS,OAD,ITC,COS,FED} leg of
// spec.md §2's data flow. Every recommendation is ledgered against its
// target subsystem regardless of severity (an advisory trail any
// subsystem's operators can read back via internal/httpapi's dashboard
// routes). Recommendations targeting FED are additionally broadcast as a
// signed federation envelope: moderate/critical severity becomes an
// early_warning message, anything lower a best_practice message, giving
// the federation layer's "best-practice/warning messages" a concrete
// producer.
func (e *Engine) RouteRecommendations(ctx context.Context, recommendations []frs.Recommendation) error {
	var errs *multierror.Error
	for _, rec := range recommendations {
		if _, err := e.Ledger.Append(ctx, "engine.recommendation_routed", e.NodeID, nil,
			map[string]string{"recommendation_id": rec.ID, "finding_id": rec.FindingID},
			map[string]any{"target": rec.Target, "severity": rec.Severity, "action": rec.Action}); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if rec.Target != frs.TargetFED {
			continue
		}
		msgType := federation.MessageBestPractice
		if rec.Severity == frs.SeverityModerate || rec.Severity == frs.SeverityCritical {
			msgType = federation.MessageEarlyWarning
		}
		if _, err := e.Federation.SendMessage(ctx, msgType, federation.ScopeFederation,
			map[string]any{"recommendationId": rec.ID, "findingId": rec.FindingID, "action": rec.Action},
			rec.Summary); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
