package httpapi

import (
	"net/http"

	"github.com/liminalvillage/integral-sub001/internal/frs"
)

func (h *handlers) createSignalPacket(w http.ResponseWriter, r *http.Request) {
	if h.svc.FRS == nil {
		serviceUnavailable(w, r, "frs")
		return
	}
	var packet frs.SignalPacket
	if !decodeJSON(w, r, &packet) {
		return
	}
	created, err := h.svc.FRS.CreateSignalPacket(r.Context(), packet)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type analyzeFindingsRequest struct {
	PacketID string `json:"packetId"`
}

func (h *handlers) analyzeFindings(w http.ResponseWriter, r *http.Request) {
	if h.svc.FRS == nil {
		serviceUnavailable(w, r, "frs")
		return
	}
	var req analyzeFindingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	findings, err := h.svc.FRS.AnalyzePacket(r.Context(), req.PacketID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ids := make([]string, len(findings))
	for i, f := range findings {
		ids[i] = f.ID
	}
	recs, err := h.svc.FRS.GenerateRecommendations(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": findings, "recommendations": recs})
}

// frsDashboard implements a minimal read surface over a single signal
// packet's findings, their recommendations, and recent memory records —
// the reference transport's view of the FRS operator dashboard.
func (h *handlers) frsDashboard(w http.ResponseWriter, r *http.Request) {
	if h.svc.FRS == nil {
		serviceUnavailable(w, r, "frs")
		return
	}
	packetID := r.URL.Query().Get("packetId")
	if packetID == "" {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Kind: "BAD_REQUEST", Message: "packetId query parameter is required"})
		return
	}

	findings, err := h.svc.FRS.FindingsByPacket(r.Context(), packetID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	recsByFinding := make(map[string][]frs.Recommendation, len(findings))
	for _, f := range findings {
		recs, err := h.svc.FRS.RecommendationsByFinding(r.Context(), f.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		recsByFinding[f.ID] = recs
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": findings, "recommendationsByFinding": recsByFinding})
}
