package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"MetaGatewayAPI/utils"
)

// VerifyWebhook answers the subscribe handshake, echoing the challenge
// verbatim on success.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	challenge, ok := h.webhook.Verify(r.URL.Query())
	if !ok {
		utils.RespondWithError(w, http.StatusForbidden, "invalid_verify_token")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// ReceiveWebhook authenticates a signed delivery. The body is kept as raw
// bytes for the signature computation; parsing happens only after the check
// passes.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	signature := r.Header.Get("x-hub-signature-256")
	if signature == "" {
		signature = r.Header.Get("x-hub-signature")
	}

	if !h.webhook.ValidateSignature(raw, signature) {
		utils.RespondWithError(w, http.StatusForbidden, "invalid_signature")
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	h.webhook.Process(payload)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
