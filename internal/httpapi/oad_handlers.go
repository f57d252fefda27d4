package httpapi

import "net/http"

func (h *handlers) computeEco(w http.ResponseWriter, r *http.Request) {
	if h.svc.OAD == nil {
		serviceUnavailable(w, r, "oad")
		return
	}
	assessment, err := h.svc.OAD.ComputeEcoAssessment(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}
