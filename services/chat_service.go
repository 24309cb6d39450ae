package services

import (
	"context"

	"MetaGatewayAPI/config"
	"MetaGatewayAPI/meta"
	"MetaGatewayAPI/models"
)

// GraphMessenger is the slice of the Graph client the chat service needs.
type GraphMessenger interface {
	SendWhatsAppMessage(ctx context.Context, phoneNumberID, to string, payload meta.ChatPayload, tokenOverride string) (*meta.Response, error)
	SendMessengerMessage(ctx context.Context, recipientID, text, tokenOverride string) (*meta.Response, error)
	SendInstagramMessage(ctx context.Context, igUserID, recipientID, text, tokenOverride string) (*meta.Response, error)
}

// ChatService routes a direct-message send to the right messaging surface,
// filling configured defaults for ids the request omitted. The raw provider
// body is passed through untouched.
type ChatService struct {
	graph GraphMessenger
	cfg   *config.Config
}

func NewChatService(graph GraphMessenger, cfg *config.Config) *ChatService {
	return &ChatService{graph: graph, cfg: cfg}
}

func (s *ChatService) Send(ctx context.Context, req *models.ChatSendRequest) (*meta.Response, error) {
	switch req.Platform {
	case models.WhatsApp:
		payload, err := meta.ParseChatPayload(req.Message, req.Template)
		if err != nil {
			return nil, err
		}
		phoneNumberID := req.PhoneNumberID
		if phoneNumberID == "" {
			phoneNumberID = s.cfg.MetaWhatsAppNumberID
		}
		return s.graph.SendWhatsAppMessage(ctx, phoneNumberID, req.To, payload, req.AccessToken)

	case models.Messenger:
		return s.graph.SendMessengerMessage(ctx, req.To, req.Message, req.AccessToken)

	case models.Instagram:
		igUserID := req.IGUserID
		if igUserID == "" {
			igUserID = s.cfg.MetaIGUserID
		}
		return s.graph.SendInstagramMessage(ctx, igUserID, req.To, req.Message, req.AccessToken)

	default:
		return nil, &meta.Error{Kind: meta.ErrInvalidPayload, Message: "unsupported chat platform"}
	}
}
