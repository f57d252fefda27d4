// Package httpapi is the reference HTTP transport over the five
// subsystems and the federation envelope layer (spec.md §6). It is one
// possible transport binding, not part of any subsystem's own contract:
// every handler is a thin adapter from an HTTP request to a Service
// method call and back.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/liminalvillage/integral-sub001/internal/cds"
	"github.com/liminalvillage/integral-sub001/internal/cos"
	"github.com/liminalvillage/integral-sub001/internal/federation"
	"github.com/liminalvillage/integral-sub001/internal/frs"
	"github.com/liminalvillage/integral-sub001/internal/itc"
	"github.com/liminalvillage/integral-sub001/internal/oad"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
	"github.com/liminalvillage/integral-sub001/pkg/metrics"
)

// Services bundles the subsystem services this router dispatches to. Any
// field may be nil; routes for a nil service respond 503.
type Services struct {
	CDS *cds.Service
	OAD *oad.Service
	ITC *itc.Service
	COS *cos.Service
	FRS *frs.Service
	Fed *federation.Service
}

// NewRouter builds the mux.Router exposing every route named in spec.md §6.
func NewRouter(svc Services, logger *logging.Logger, m *metrics.Metrics, requestsPerSecond float64, burst int) *mux.Router {
	if logger == nil {
		logger = logging.Default()
	}
	r := mux.NewRouter()
	r.Use(loggingMiddleware(logger))
	r.Use(metricsMiddleware("integral-engine", m))
	if requestsPerSecond > 0 {
		r.Use(newRateLimiter(requestsPerSecond, burst).middleware())
	}

	h := &handlers{svc: svc, logger: logger}

	r.HandleFunc("/cds/issues", h.createIssue).Methods(http.MethodPost)
	r.HandleFunc("/cds/scenarios/{id}/vote", h.castVote).Methods(http.MethodPost)
	r.HandleFunc("/cds/scenarios/{id}/evaluate", h.evaluateScenario).Methods(http.MethodGet)

	r.HandleFunc("/oad/versions/{id}/eco/compute", h.computeEco).Methods(http.MethodPost)

	r.HandleFunc("/itc/labor", h.recordLabor).Methods(http.MethodPost)
	r.HandleFunc("/itc/valuations/compute", h.computeValuation).Methods(http.MethodPost)
	r.HandleFunc("/itc/redeem", h.redeemAccess).Methods(http.MethodPost)

	r.HandleFunc("/cos/plans", h.createPlan).Methods(http.MethodPost)
	r.HandleFunc("/cos/tasks/{id}/complete", h.completeTask).Methods(http.MethodPost)
	r.HandleFunc("/cos/plans/{id}/bottlenecks", h.bottlenecks).Methods(http.MethodGet)

	r.HandleFunc("/frs/signals/packet", h.createSignalPacket).Methods(http.MethodPost)
	r.HandleFunc("/frs/findings/analyze", h.analyzeFindings).Methods(http.MethodPost)
	r.HandleFunc("/frs/dashboard", h.frsDashboard).Methods(http.MethodGet)

	r.HandleFunc("/federation/messages", h.sendFederationMessage).Methods(http.MethodPost)
	r.HandleFunc("/federation/envelopes", h.receiveFederationEnvelope).Methods(http.MethodPost)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	return r
}

type handlers struct {
	svc    Services
	logger *logging.Logger
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, subsystem string) {
	writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{Kind: "SERVICE_UNAVAILABLE", Message: subsystem + " is not configured on this node"})
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
