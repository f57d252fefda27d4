package httpapi

import (
	"net/http"
	"time"

	"github.com/liminalvillage/integral-sub001/internal/itc"
)

type recordLaborRequest struct {
	MemberID   string           `json:"memberId"`
	CoopID     string           `json:"coopId"`
	TaskID     string           `json:"taskId"`
	TaskLabel  string           `json:"taskLabel"`
	TaskType   string           `json:"taskType"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	SkillTier  itc.SkillTier    `json:"skillTier"`
	Context    itc.LaborContext `json:"context"`
	VerifiedBy *string          `json:"verifiedBy,omitempty"`
}

func (h *handlers) recordLabor(w http.ResponseWriter, r *http.Request) {
	if h.svc.ITC == nil {
		serviceUnavailable(w, r, "itc")
		return
	}
	var req recordLaborRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	event, err := h.svc.ITC.RecordLabor(r.Context(), req.MemberID, req.CoopID, req.TaskID, req.TaskLabel, req.TaskType,
		req.Start, req.End, req.SkillTier, req.Context, req.VerifiedBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

type computeValuationRequest struct {
	ItemID          string                  `json:"itemId"`
	DesignVersionID string                  `json:"designVersionId"`
	Profile         itc.OADProfile          `json:"profile"`
	COS             *itc.COSWorkloadSignal  `json:"cos,omitempty"`
	FRS             *itc.FRSValuationSignal `json:"frs,omitempty"`
}

func (h *handlers) computeValuation(w http.ResponseWriter, r *http.Request) {
	if h.svc.ITC == nil {
		serviceUnavailable(w, r, "itc")
		return
	}
	var req computeValuationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	valuation, err := h.svc.ITC.ComputeAccessValue(r.Context(), req.ItemID, req.DesignVersionID, req.Profile, req.COS, req.FRS)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, valuation)
}

type redeemAccessRequest struct {
	MemberID       string             `json:"memberId"`
	ItemID         string             `json:"itemId"`
	RedemptionType itc.RedemptionType `json:"redemptionType"`
	Valuation      itc.Valuation      `json:"valuation"`
	ExpiresAt      *time.Time         `json:"expiresAt,omitempty"`
}

func (h *handlers) redeemAccess(w http.ResponseWriter, r *http.Request) {
	if h.svc.ITC == nil {
		serviceUnavailable(w, r, "itc")
		return
	}
	var req redeemAccessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	redemption, err := h.svc.ITC.RedeemAccess(r.Context(), req.MemberID, req.ItemID, req.RedemptionType, req.Valuation, req.ExpiresAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, redemption)
}
