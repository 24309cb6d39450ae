package models

import "time"

type Platform string

const (
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	WhatsApp  Platform = "whatsapp"
	Messenger Platform = "messenger"
)

type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
)

// TitleDisplayLimit is the maximum stored title length; longer messages are
// truncated before persisting.
const TitleDisplayLimit = 255

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Campaign struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MarketingPost is the durable content record linking an internal post to the
// object Meta created for it. MetaPostID is unique across all records once
// set; at most one row may hold a given provider id.
type MarketingPost struct {
	ID          int64       `json:"id"`
	MetaPostID  string      `json:"meta_post_id,omitempty"`
	Platform    Platform    `json:"platform"`
	Title       string      `json:"title"`
	ContentType ContentType `json:"content_type"`
	FilePath    string      `json:"file_path,omitempty"`
	Link        string      `json:"link,omitempty"`
	CampaignID  *int64      `json:"campaign_id,omitempty"`
	UserID      string      `json:"user_id,omitempty"`
	Status      PostStatus  `json:"status"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Upload carries the bytes of a file attached to a publish request.
type Upload struct {
	Filename string
	Data     []byte
}

// PublishIntent is the platform-agnostic input to the publish orchestrator.
// It is request-scoped and never persisted as-is.
type PublishIntent struct {
	Platform    Platform
	PostID      int64 // optional reference to an existing draft record
	Message     string
	Link        string
	ImageURL    string
	ImageUpload *Upload
	VideoUpload *Upload
	PageID      string
	IGUserID    string
	AccessToken string // explicit credential override
	CampaignID  *int64
	UserID      string
}

// HasImageSource reports whether the intent carries any usable image input.
func (i *PublishIntent) HasImageSource() bool {
	return i.ImageURL != "" || i.ImageUpload != nil
}

// PublishOutcome is the uniform success result of a publish call.
type PublishOutcome struct {
	MetaPostID string                 `json:"meta_post_id"`
	PostID     int64                  `json:"post_id"`
	Data       map[string]interface{} `json:"data"`
}

type ChatSendRequest struct {
	Platform      Platform               `json:"platform"`
	To            string                 `json:"to"`
	Message       string                 `json:"message,omitempty"`
	Template      map[string]interface{} `json:"template,omitempty"`
	PhoneNumberID string                 `json:"phone_number_id,omitempty"`
	IGUserID      string                 `json:"ig_user_id,omitempty"`
	AccessToken   string                 `json:"access_token,omitempty"`
}

type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
