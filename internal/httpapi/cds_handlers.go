package httpapi

import (
	"net/http"

	"github.com/liminalvillage/integral-sub001/internal/cds"
)

type createIssueRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (h *handlers) createIssue(w http.ResponseWriter, r *http.Request) {
	if h.svc.CDS == nil {
		serviceUnavailable(w, r, "cds")
		return
	}
	var req createIssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issue, err := h.svc.CDS.CreateIssue(r.Context(), req.Title, req.Description, req.Metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

type castVoteRequest struct {
	ParticipantID string          `json:"participantId"`
	Level         cds.SupportLevel `json:"level"`
}

func (h *handlers) castVote(w http.ResponseWriter, r *http.Request) {
	if h.svc.CDS == nil {
		serviceUnavailable(w, r, "cds")
		return
	}
	var req castVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	vote, err := h.svc.CDS.CastVote(r.Context(), req.ParticipantID, pathVar(r, "id"), req.Level)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vote)
}

func (h *handlers) evaluateScenario(w http.ResponseWriter, r *http.Request) {
	if h.svc.CDS == nil {
		serviceUnavailable(w, r, "cds")
		return
	}
	result, err := h.svc.CDS.Evaluate(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
