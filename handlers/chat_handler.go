package handlers

import (
	"encoding/json"
	"net/http"

	"MetaGatewayAPI/meta"
	"MetaGatewayAPI/models"
	"MetaGatewayAPI/utils"
)

var chatPlatforms = map[models.Platform]bool{
	models.WhatsApp:  true,
	models.Messenger: true,
	models.Instagram: true,
}

// SendChatMessage sends a direct message and passes the provider's raw
// response body straight through on success.
func (h *Handler) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	var req models.ChatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if !chatPlatforms[req.Platform] {
		utils.RespondWithError(w, http.StatusBadRequest, "platform must be whatsapp, messenger or instagram")
		return
	}
	if req.To == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "to is required")
		return
	}
	if req.Message == "" && req.Template == nil {
		utils.RespondWithError(w, http.StatusBadRequest, "message or template is required")
		return
	}

	resp, err := h.chat.Send(r.Context(), &req)
	if err != nil {
		if gerr, ok := meta.AsError(err); ok {
			utils.RespondWithJSON(w, gerr.HTTPStatus(), graphErrorResponse(gerr))
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp.Body)
}

func graphErrorResponse(gerr *meta.Error) models.ErrorResponse {
	resp := models.ErrorResponse{Error: string(gerr.Kind)}
	if gerr.Kind == meta.ErrMissingRequiredField || gerr.Kind == meta.ErrInvalidPayload {
		resp.Error = gerr.Message
	}
	if gerr.Details != nil {
		resp.Details = gerr.Details
	} else if gerr.Body != "" {
		resp.Details = gerr.Body
	}
	return resp
}
