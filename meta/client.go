package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"MetaGatewayAPI/utils"
)

const DefaultGraphURL = "https://graph.facebook.com"

const (
	textTimeout  = 15 * time.Second
	mediaTimeout = 2 * time.Minute
)

// Settings configures the Graph endpoint surface. GraphURL is overridable so
// tests can point the client at a fake server.
type Settings struct {
	GraphURL   string
	APIVersion string
}

// Client talks to the Meta Graph API. Every operation resolves its own
// credential when no override is supplied, fails fast before any network
// call, and returns typed *Error values instead of letting transport faults
// escape. Calls are single-attempt; retrying is the caller's decision.
type Client struct {
	settings    Settings
	creds       *CredentialResolver
	textClient  *http.Client // text/metadata calls
	mediaClient *http.Client // multipart media uploads
}

// Response is the uniform success result: the created object id plus the raw
// provider payload.
type Response struct {
	ID      string
	Payload map[string]interface{}
	Body    []byte
}

func NewClient(settings Settings, creds *CredentialResolver) *Client {
	if settings.GraphURL == "" {
		settings.GraphURL = DefaultGraphURL
	}
	if settings.APIVersion == "" {
		settings.APIVersion = "v24.0"
	}
	return &Client{
		settings:    settings,
		creds:       creds,
		textClient:  &http.Client{Timeout: textTimeout},
		mediaClient: &http.Client{Timeout: mediaTimeout},
	}
}

// SetHTTPClients swaps the underlying clients; nil arguments keep defaults.
func (c *Client) SetHTTPClients(text, media *http.Client) {
	if text != nil {
		c.textClient = text
	}
	if media != nil {
		c.mediaClient = media
	}
}

func (c *Client) endpoint(parts ...string) string {
	return fmt.Sprintf("%s/%s/%s", c.settings.GraphURL, c.settings.APIVersion, strings.Join(parts, "/"))
}

// PublishFeedPost publishes a text/link/image post to a page feed. When an
// image URL is present and no link is, the photos endpoint is used instead:
// feed posts unfurl links natively, while a photo post cannot carry a link.
func (c *Client) PublishFeedPost(ctx context.Context, pageID, message, imageURL, link, tokenOverride string) (*Response, error) {
	token, err := c.creds.Resolve(ScopePage, tokenOverride)
	if err != nil {
		return nil, err
	}
	if pageID == "" {
		return nil, missingField("page_id")
	}

	if imageURL != "" && link == "" {
		return c.publishPhotoURL(ctx, pageID, imageURL, message, token)
	}

	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", token)
	if link != "" {
		form.Set("link", link)
	}

	return c.postForm(ctx, c.textClient, c.endpoint(pageID, "feed"), form)
}

// PublishPhotoURL publishes a photo post from a public image URL.
func (c *Client) PublishPhotoURL(ctx context.Context, pageID, imageURL, caption, tokenOverride string) (*Response, error) {
	token, err := c.creds.Resolve(ScopePage, tokenOverride)
	if err != nil {
		return nil, err
	}
	if pageID == "" {
		return nil, missingField("page_id")
	}
	return c.publishPhotoURL(ctx, pageID, imageURL, caption, token)
}

func (c *Client) publishPhotoURL(ctx context.Context, pageID, imageURL, caption, token string) (*Response, error) {
	form := url.Values{}
	form.Set("url", imageURL)
	form.Set("caption", caption)
	form.Set("published", "true")
	form.Set("access_token", token)

	return c.postForm(ctx, c.textClient, c.endpoint(pageID, "photos"), form)
}

// PublishPhotoFile uploads a local image file as a page photo post.
func (c *Client) PublishPhotoFile(ctx context.Context, pageID, localPath, caption, tokenOverride string) (*Response, error) {
	token, err := c.creds.Resolve(ScopePage, tokenOverride)
	if err != nil {
		return nil, err
	}
	if pageID == "" {
		return nil, missingField("page_id")
	}
	fields := map[string]string{
		"caption":      caption,
		"published":    "true",
		"access_token": token,
	}
	return c.postMultipartFile(ctx, c.endpoint(pageID, "photos"), localPath, fields)
}

// PublishVideoFile uploads a local video file to the page videos endpoint.
func (c *Client) PublishVideoFile(ctx context.Context, pageID, localPath, description, tokenOverride string) (*Response, error) {
	token, err := c.creds.Resolve(ScopePage, tokenOverride)
	if err != nil {
		return nil, err
	}
	if pageID == "" {
		return nil, missingField("page_id")
	}
	fields := map[string]string{
		"description":  description,
		"published":    "true",
		"access_token": token,
	}
	return c.postMultipartFile(ctx, c.endpoint(pageID, "videos"), localPath, fields)
}

// igPublishState tracks the two-phase Instagram publish so a partial failure
// (container created, publish failed) is a representable, loggable state.
type igPublishState int

const (
	igStart igPublishState = iota
	igContainerCreated
	igPublished
)

func (s igPublishState) String() string {
	switch s {
	case igContainerCreated:
		return "container_created"
	case igPublished:
		return "published"
	default:
		return "start"
	}
}

// PublishInstagramImage runs the container-create-then-publish sequence. If
// the create call yields no container id the operation fails with
// media_container_failed and the publish call is never attempted.
func (c *Client) PublishInstagramImage(ctx context.Context, igUserID, imageURL, caption, tokenOverride string) (*Response, error) {
	token, err := c.creds.Resolve(ScopeInstagram, tokenOverride)
	if err != nil {
		return nil, err
	}
	if igUserID == "" {
		return nil, missingField("ig_user_id")
	}
	if imageURL == "" {
		return nil, missingField("image_url")
	}

	state := igStart

	createPayload := map[string]interface{}{
		"image_url":    imageURL,
		"caption":      caption,
		"media_type":   "IMAGE",
		"access_token": token,
	}
	status, body, terr := c.postJSONRaw(ctx, c.textClient, c.endpoint(igUserID, "media"), createPayload, "")
	if terr != nil {
		return nil, terr
	}
	payload, containerID := decodePayload(body)
	if containerID == "" {
		details := interface{}(string(body))
		if payload != nil {
			details = payload
		}
		return nil, &Error{Kind: ErrMediaContainerFailed, Message: fmt.Sprintf("container create returned %d without an id", status), Details: details}
	}
	state = igContainerCreated

	publishPayload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": token,
	}
	resp, perr := c.postJSON(ctx, c.textClient, c.endpoint(igUserID, "media_publish"), publishPayload, "")
	if perr != nil {
		utils.Warnf("instagram publish left orphaned container %s (state=%s): %v", containerID, state, perr)
		return nil, perr
	}
	state = igPublished
	utils.Debugf("instagram media %s reached state=%s", resp.ID, state)

	return resp, nil
}

// SendWhatsAppMessage sends a text or template message through the WhatsApp
// Cloud API. Any payload shape other than the two known variants is rejected
// before dispatch.
func (c *Client) SendWhatsAppMessage(ctx context.Context, phoneNumberID, to string, payload ChatPayload, tokenOverride string) (*Response, error) {
	token, err := c.creds.Resolve(ScopeWhatsApp, tokenOverride)
	if err != nil {
		return nil, err
	}
	if phoneNumberID == "" {
		return nil, missingField("phone_number_id")
	}

	body := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
	}
	switch payload.Kind {
	case ChatText:
		body["type"] = "text"
		body["text"] = map[string]string{"body": payload.Text}
	case ChatTemplate:
		if payload.Template == nil || payload.Template.Name == "" {
			return nil, &Error{Kind: ErrInvalidPayload, Message: "template must carry a name"}
		}
		body["type"] = "template"
		body["template"] = payload.Template
	default:
		return nil, &Error{Kind: ErrInvalidPayload, Message: "unsupported message payload"}
	}

	return c.postJSON(ctx, c.textClient, c.endpoint(phoneNumberID, "messages"), body, token)
}

// SendMessengerMessage sends a text message to a Messenger recipient via the
// page inbox.
func (c *Client) SendMessengerMessage(ctx context.Context, recipientID, text, tokenOverride string) (*Response, error) {
	token, err := c.creds.Resolve(ScopePage, tokenOverride)
	if err != nil {
		return nil, err
	}

	endpoint := c.endpoint("me", "messages") + "?access_token=" + url.QueryEscape(token)
	payload := map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	}
	return c.postJSON(ctx, c.textClient, endpoint, payload, "")
}

// SendInstagramMessage sends a text message to an Instagram user. Instagram
// messaging is part of the Messenger API and rides the page token.
func (c *Client) SendInstagramMessage(ctx context.Context, igUserID, recipientID, text, tokenOverride string) (*Response, error) {
	token, err := c.creds.Resolve(ScopePage, tokenOverride)
	if err != nil {
		return nil, err
	}
	if igUserID == "" {
		return nil, missingField("ig_user_id")
	}

	payload := map[string]interface{}{
		"recipient":    map[string]string{"id": recipientID},
		"message":      map[string]string{"text": text},
		"access_token": token,
	}
	return c.postJSON(ctx, c.textClient, c.endpoint(igUserID, "messages"), payload, "")
}

func (c *Client) postForm(ctx context.Context, hc *http.Client, endpoint string, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, transportError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, terr := c.send(hc, req)
	if terr != nil {
		return nil, terr
	}
	return classify(status, body)
}

func (c *Client) postJSON(ctx context.Context, hc *http.Client, endpoint string, payload interface{}, bearer string) (*Response, error) {
	status, body, terr := c.postJSONRaw(ctx, hc, endpoint, payload, bearer)
	if terr != nil {
		return nil, terr
	}
	return classify(status, body)
}

// postJSONRaw performs the call and returns the undecoded outcome. Used
// directly by the container-create step, which folds non-2xx bodies into
// media_container_failed instead of upstream_http_error.
func (c *Client) postJSONRaw(ctx context.Context, hc *http.Client, endpoint string, payload interface{}, bearer string) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, &Error{Kind: ErrInvalidPayload, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, nil, transportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	status, body, terr := c.send(hc, req)
	if terr != nil {
		return 0, nil, terr
	}
	return status, body, nil
}

func (c *Client) postMultipartFile(ctx context.Context, endpoint, localPath string, fields map[string]string) (*Response, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, &Error{Kind: ErrMissingRequiredField, Message: "local media file not found"}
	}
	defer file.Close()

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	part, err := writer.CreateFormFile("source", filepath.Base(localPath))
	if err != nil {
		return nil, transportError(err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, transportError(err)
	}
	for key, value := range fields {
		writer.WriteField(key, value)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return nil, transportError(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	status, body, terr := c.send(c.mediaClient, req)
	if terr != nil {
		return nil, terr
	}
	return classify(status, body)
}

func (c *Client) send(hc *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, transportError(err)
	}
	return resp.StatusCode, body, nil
}

func classify(status int, body []byte) (*Response, error) {
	if status < 200 || status >= 300 {
		return nil, upstreamError(status, body)
	}
	payload, id := decodePayload(body)
	if payload == nil {
		return nil, unexpectedResponse(body)
	}
	return &Response{ID: id, Payload: payload, Body: body}, nil
}

func decodePayload(body []byte) (map[string]interface{}, string) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ""
	}
	id, _ := payload["id"].(string)
	return payload, id
}
