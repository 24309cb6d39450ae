package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"net/url"
	"strings"

	"MetaGatewayAPI/utils"
)

// WebhookService implements the two halves of webhook authentication: the
// subscribe handshake and signed-delivery verification. On a valid delivery
// it hands the payload to Process, the notification entry point.
type WebhookService struct {
	verifyToken string
	appSecret   string
}

func NewWebhookService(verifyToken, appSecret string) *WebhookService {
	return &WebhookService{verifyToken: verifyToken, appSecret: appSecret}
}

// Verify checks the subscribe handshake and returns the challenge to echo.
// Query params arrive either flat ("hub.mode") or nested ("hub[mode]"); both
// shapes parse identically. Every mismatch (wrong token, missing token,
// wrong mode) fails the same way so the response reveals nothing.
func (s *WebhookService) Verify(query url.Values) (string, bool) {
	mode := hubParam(query, "mode")
	token := hubParam(query, "verify_token")
	challenge := hubParam(query, "challenge")

	if mode != "subscribe" || token == "" || s.verifyToken == "" {
		return "", false
	}
	if !hmac.Equal([]byte(token), []byte(s.verifyToken)) {
		return "", false
	}
	return challenge, true
}

func hubParam(query url.Values, name string) string {
	if v := query.Get("hub." + name); v != "" {
		return v
	}
	return query.Get("hub[" + name + "]")
}

// ValidateSignature checks the x-hub-signature header against an HMAC over
// the raw, unparsed body. SHA-256 is preferred; SHA-1 is accepted for legacy
// deliveries. The comparison is constant-time.
func (s *WebhookService) ValidateSignature(raw []byte, signature string) bool {
	if signature == "" || s.appSecret == "" {
		return false
	}

	var mac hash.Hash
	var prefix string
	switch {
	case strings.HasPrefix(signature, "sha256="):
		mac = hmac.New(sha256.New, []byte(s.appSecret))
		prefix = "sha256="
	case strings.HasPrefix(signature, "sha1="):
		mac = hmac.New(sha1.New, []byte(s.appSecret))
		prefix = "sha1="
	default:
		return false
	}

	mac.Write(raw)
	expected := prefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Process is the fire-and-forget handoff for an authenticated delivery.
// Entries are logged; no downstream consumers subscribe yet.
func (s *WebhookService) Process(payload map[string]interface{}) {
	if entries, ok := payload["entry"].([]interface{}); ok && len(entries) > 0 {
		for _, entry := range entries {
			utils.Infof("meta webhook entry: %v", entry)
		}
		return
	}
	utils.Infof("meta webhook payload: %v", payload)
}
