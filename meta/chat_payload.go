package meta

import "encoding/json"

// ChatPayloadKind tags the two shapes a WhatsApp message may take.
type ChatPayloadKind string

const (
	ChatText     ChatPayloadKind = "text"
	ChatTemplate ChatPayloadKind = "template"
)

type TemplateLanguage struct {
	Code string `json:"code"`
}

// TemplatePayload is a named WhatsApp template reference.
type TemplatePayload struct {
	Name       string                   `json:"name"`
	Language   TemplateLanguage         `json:"language"`
	Components []map[string]interface{} `json:"components,omitempty"`
}

// ChatPayload is the tagged variant for an outbound message: either plain
// text or a named template. It is decoded once at the HTTP boundary so the
// client and orchestrator never inspect raw shapes.
type ChatPayload struct {
	Kind     ChatPayloadKind
	Text     string
	Template *TemplatePayload
}

// TextPayload builds a plain-text chat payload.
func TextPayload(text string) ChatPayload {
	return ChatPayload{Kind: ChatText, Text: text}
}

// ParseChatPayload turns the boundary fields of a chat request into a typed
// payload. A non-empty message wins over a template; a template must at
// least name itself. Anything else is invalid_payload.
func ParseChatPayload(message string, template map[string]interface{}) (ChatPayload, error) {
	if message != "" {
		return TextPayload(message), nil
	}

	if template != nil {
		raw, err := json.Marshal(template)
		if err != nil {
			return ChatPayload{}, &Error{Kind: ErrInvalidPayload, Message: "template is not serializable"}
		}
		var tpl TemplatePayload
		if err := json.Unmarshal(raw, &tpl); err != nil || tpl.Name == "" {
			return ChatPayload{}, &Error{Kind: ErrInvalidPayload, Message: "template must carry a name"}
		}
		return ChatPayload{Kind: ChatTemplate, Template: &tpl}, nil
	}

	return ChatPayload{}, &Error{Kind: ErrInvalidPayload, Message: "message or template is required"}
}
