package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/liminalvillage/integral-sub001/pkg/apierrors"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
)

// errorEnvelope is the JSON shape of a failed request, matching the
// taxonomy of pkg/apierrors (spec.md §7) so every subsystem route reports
// errors identically.
type errorEnvelope struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as a JSON errorEnvelope, translating a tagged
// *apierrors.EngineError into its taxonomy kind and HTTP status and
// falling back to 500/INTERNAL for anything else (a defect, not a
// policy decision a client should see the details of).
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ee *apierrors.EngineError
	status := http.StatusInternalServerError
	env := errorEnvelope{Kind: "INTERNAL", Message: "internal error", TraceID: logging.GetTraceID(r.Context())}
	if errors.As(err, &ee) {
		status = ee.HTTPStatus
		env.Kind = string(ee.Kind)
		env.Message = ee.Message
		if len(ee.Details) > 0 {
			env.Details = ee.Details
		}
	}
	writeJSON(w, status, env)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Kind: "BAD_REQUEST", Message: "invalid request body: " + err.Error()})
		return false
	}
	return true
}
