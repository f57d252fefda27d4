package httpapi

import (
	"net/http"

	"github.com/liminalvillage/integral-sub001/internal/cos"
)

type createPlanRequest struct {
	VersionID string               `json:"versionId"`
	BatchID   string               `json:"batchId"`
	BatchSize int                  `json:"batchSize"`
	Steps     []cos.ProductionStep `json:"steps"`
}

type createPlanResponse struct {
	Plan            cos.ProductionPlan   `json:"plan"`
	TaskDefinitions []cos.TaskDefinition `json:"taskDefinitions"`
}

func (h *handlers) createPlan(w http.ResponseWriter, r *http.Request) {
	if h.svc.COS == nil {
		serviceUnavailable(w, r, "cos")
		return
	}
	var req createPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	plan, defs, err := h.svc.COS.CreateProductionPlan(r.Context(), req.VersionID, req.BatchID, req.BatchSize, req.Steps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createPlanResponse{Plan: plan, TaskDefinitions: defs})
}

type completeTaskRequest struct {
	ActualHours float64 `json:"actualHours"`
}

func (h *handlers) completeTask(w http.ResponseWriter, r *http.Request) {
	if h.svc.COS == nil {
		serviceUnavailable(w, r, "cos")
		return
	}
	var req completeTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	instance, err := h.svc.COS.CompleteTask(r.Context(), pathVar(r, "id"), req.ActualHours)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

func (h *handlers) bottlenecks(w http.ResponseWriter, r *http.Request) {
	if h.svc.COS == nil {
		serviceUnavailable(w, r, "cos")
		return
	}
	constraints, err := h.svc.COS.DetectBottlenecks(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, constraints)
}
