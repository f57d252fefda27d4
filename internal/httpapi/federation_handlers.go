package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/liminalvillage/integral-sub001/internal/federation"
)

type sendFederationMessageRequest struct {
	MessageType federation.MessageType `json:"messageType"`
	ToScope     federation.Scope       `json:"toScope"`
	Payload     map[string]any         `json:"payload"`
	Summary     string                 `json:"summary"`
}

// sendFederationMessage implements POST /federation/messages: this node
// signs and records a new outbound envelope. Shipping it to peer nodes is
// the caller's transport concern; the reference server does not dial out.
func (h *handlers) sendFederationMessage(w http.ResponseWriter, r *http.Request) {
	if h.svc.Fed == nil {
		serviceUnavailable(w, r, "federation")
		return
	}
	var req sendFederationMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	env, err := h.svc.Fed.SendMessage(r.Context(), req.MessageType, req.ToScope, req.Payload, req.Summary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

// receiveFederationEnvelope implements POST /federation/envelopes: the
// inbound half of the transport, where a peer node's own SendMessage
// result gets delivered to this one. The body is read once as raw bytes
// so messageType/fromNodeId can be sniffed with gjson for the pre-verify
// log line without the cost (or the strictness) of a full struct decode;
// the envelope is then decoded properly and handed to ReceiveEnvelope for
// signature verification and subsystem-inbox delivery.
func (h *handlers) receiveFederationEnvelope(w http.ResponseWriter, r *http.Request) {
	if h.svc.Fed == nil {
		serviceUnavailable(w, r, "federation")
		return
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Kind: "BAD_REQUEST", Message: "cannot read envelope body: " + err.Error()})
		return
	}

	h.logger.Debug(r.Context(), "federation envelope received", map[string]interface{}{
		"message_type": gjson.GetBytes(body, "messageType").String(),
		"from_node_id": gjson.GetBytes(body, "fromNodeId").String(),
	})

	var env federation.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Kind: "BAD_REQUEST", Message: "invalid envelope body: " + err.Error()})
		return
	}
	delivered, err := h.svc.Fed.ReceiveEnvelope(r.Context(), env)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}
