package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"MetaGatewayAPI/config"
	"MetaGatewayAPI/models"
	"MetaGatewayAPI/services"
	"MetaGatewayAPI/utils"
)

func (h *Handler) PublishFacebook(w http.ResponseWriter, r *http.Request) {
	intent, err := parsePublishRequest(r, models.Facebook)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.publisher.PublishFacebook(r.Context(), intent)
	respondPublish(w, outcome, err)
}

func (h *Handler) PublishInstagram(w http.ResponseWriter, r *http.Request) {
	intent, err := parsePublishRequest(r, models.Instagram)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.publisher.PublishInstagram(r.Context(), intent)
	respondPublish(w, outcome, err)
}

// parsePublishRequest accepts both multipart (file uploads) and JSON bodies
// and produces a single typed intent; no raw shape survives past here.
func parsePublishRequest(r *http.Request, platform models.Platform) (*models.PublishIntent, error) {
	intent := &models.PublishIntent{Platform: platform}
	if userID, ok := r.Context().Value("userID").(string); ok {
		intent.UserID = userID
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(config.Load().MaxUploadSize); err != nil {
			return nil, fmt.Errorf("invalid multipart payload")
		}
		intent.Message = firstNonEmpty(r.FormValue("message"), r.FormValue("caption"))
		intent.Link = r.FormValue("link")
		intent.ImageURL = r.FormValue("image_url")
		intent.PageID = r.FormValue("page_id")
		intent.IGUserID = r.FormValue("ig_user_id")
		intent.AccessToken = r.FormValue("access_token")

		var err error
		if intent.PostID, err = parseID(r.FormValue("post_id")); err != nil {
			return nil, fmt.Errorf("post_id must be an integer")
		}
		if intent.CampaignID, err = parseOptionalID(r.FormValue("campaign_id")); err != nil {
			return nil, fmt.Errorf("campaign_id must be an integer")
		}

		if upload, err := readUpload(r, "image", models.ContentImage); err != nil {
			return nil, err
		} else if upload != nil {
			intent.ImageUpload = upload
		}
		if upload, err := readUpload(r, "video", models.ContentVideo); err != nil {
			return nil, err
		} else if upload != nil {
			intent.VideoUpload = upload
		}
		return intent, nil
	}

	var body struct {
		Message     string `json:"message"`
		Caption     string `json:"caption"`
		Link        string `json:"link"`
		ImageURL    string `json:"image_url"`
		PageID      string `json:"page_id"`
		IGUserID    string `json:"ig_user_id"`
		AccessToken string `json:"access_token"`
		PostID      int64  `json:"post_id"`
		CampaignID  *int64 `json:"campaign_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid request payload")
	}

	intent.Message = firstNonEmpty(body.Message, body.Caption)
	intent.Link = body.Link
	intent.ImageURL = body.ImageURL
	intent.PageID = body.PageID
	intent.IGUserID = body.IGUserID
	intent.AccessToken = body.AccessToken
	intent.PostID = body.PostID
	intent.CampaignID = body.CampaignID
	return intent, nil
}

// readUpload pulls a file field out of a parsed multipart form and checks
// its magic number matches the expected content kind.
func readUpload(r *http.Request, field string, want models.ContentType) (*models.Upload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading %s upload", field)
	}
	defer file.Close()

	data, err := readAllUpload(file)
	if err != nil {
		return nil, fmt.Errorf("error reading %s upload", field)
	}

	_, kind, err := services.DetectUploadType(data)
	if err != nil {
		return nil, err
	}
	if kind != want {
		return nil, fmt.Errorf("%s upload does not contain %s content", field, want)
	}

	return &models.Upload{Filename: header.Filename, Data: data}, nil
}

func readAllUpload(file multipart.File) ([]byte, error) {
	return io.ReadAll(file)
}

func respondPublish(w http.ResponseWriter, outcome *models.PublishOutcome, err error) {
	if err != nil {
		var pubErr *services.PublishError
		if errors.As(err, &pubErr) {
			utils.RespondWithJSON(w, pubErr.Status, models.ErrorResponse{
				Error:   pubErr.Message,
				Code:    pubErr.Code,
				Details: pubErr.Details,
			})
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, outcome)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseID(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func parseOptionalID(value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
