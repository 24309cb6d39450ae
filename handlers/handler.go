package handlers

import (
	"context"
	"net/url"

	"MetaGatewayAPI/meta"
	"MetaGatewayAPI/models"
	"MetaGatewayAPI/services"
)

// Publisher is the publish orchestrator surface the HTTP layer consumes.
type Publisher interface {
	PublishFacebook(ctx context.Context, intent *models.PublishIntent) (*models.PublishOutcome, error)
	PublishInstagram(ctx context.Context, intent *models.PublishIntent) (*models.PublishOutcome, error)
}

// ChatSender sends a direct message and returns the raw provider response.
type ChatSender interface {
	Send(ctx context.Context, req *models.ChatSendRequest) (*meta.Response, error)
}

// WebhookAuthenticator verifies handshakes and signed deliveries.
type WebhookAuthenticator interface {
	Verify(query url.Values) (string, bool)
	ValidateSignature(raw []byte, signature string) bool
	Process(payload map[string]interface{})
}

type Handler struct {
	publisher   Publisher
	chat        ChatSender
	webhook     WebhookAuthenticator
	authService *services.AuthService
}

func NewHandler(publisher Publisher, chat ChatSender, webhook WebhookAuthenticator, authService *services.AuthService) *Handler {
	return &Handler{
		publisher:   publisher,
		chat:        chat,
		webhook:     webhook,
		authService: authService,
	}
}
