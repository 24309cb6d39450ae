package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"MetaGatewayAPI/config"
	"MetaGatewayAPI/database"
	"MetaGatewayAPI/meta"
	"MetaGatewayAPI/models"
	"MetaGatewayAPI/utils"

	"github.com/google/uuid"
)

// ContentStore is the content-record store contract. Integrity violations
// must arrive as the distinguishable database sentinel errors.
type ContentStore interface {
	FindPost(id int64) (*models.MarketingPost, error)
	CreatePost(post *models.MarketingPost) error
	UpdatePost(post *models.MarketingPost) error
	FindPostByMetaID(metaPostID string) (*models.MarketingPost, error)
	DeletePost(id int64) error
}

// ObjectStore is the durable object store contract.
type ObjectStore interface {
	Put(relPath string, data []byte) (url string, localPath string, err error)
	URL(relPath string) string
	Exists(relPath string) bool
	Delete(relPath string) error
}

// GraphPublisher is the slice of the Graph client the orchestrator needs.
type GraphPublisher interface {
	PublishFeedPost(ctx context.Context, pageID, message, imageURL, link, tokenOverride string) (*meta.Response, error)
	PublishPhotoFile(ctx context.Context, pageID, localPath, caption, tokenOverride string) (*meta.Response, error)
	PublishVideoFile(ctx context.Context, pageID, localPath, description, tokenOverride string) (*meta.Response, error)
	PublishInstagramImage(ctx context.Context, igUserID, imageURL, caption, tokenOverride string) (*meta.Response, error)
}

// ImageProber verifies an image URL is publicly fetchable as JPEG.
type ImageProber interface {
	ProbePublicJPEG(ctx context.Context, rawURL string) error
}

// PublishError is the typed failure the HTTP layer translates directly into
// a response: status, optional stable code, message, optional details.
type PublishError struct {
	Status  int
	Code    string
	Message string
	Details interface{}
}

func (e *PublishError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("publish failed (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("publish failed (%d): %s", e.Status, e.Message)
}

const (
	CodePostNotFound      = "POST_NOT_FOUND"
	CodeCampaignNotFound  = "CAMPAIGN_NOT_FOUND"
	CodeDuplicateMetaPost = "DUPLICATE_META_POST"
	CodeMetaAlreadyPosted = "META_ALREADY_POSTED"
)

// PublisherService orchestrates a publish call: resolve the target record,
// pick the Graph operation, classify the result, and link the created object
// id to a content record with idempotent create-or-update semantics.
type PublisherService struct {
	store   ContentStore
	objects ObjectStore
	graph   GraphPublisher
	prober  ImageProber
	cfg     *config.Config
	tmpDir  string
}

func NewPublisherService(store ContentStore, objects ObjectStore, graph GraphPublisher, prober ImageProber, cfg *config.Config) *PublisherService {
	return &PublisherService{
		store:   store,
		objects: objects,
		graph:   graph,
		prober:  prober,
		cfg:     cfg,
		tmpDir:  filepath.Join(cfg.UploadDir, "tmp"),
	}
}

// PublishFacebook runs the Facebook workflow: optional record merge, exactly
// one of the image-file / video-file / text-or-URL paths, then persistence
// with duplicate-race recovery.
func (s *PublisherService) PublishFacebook(ctx context.Context, intent *models.PublishIntent) (*models.PublishOutcome, error) {
	existing, err := s.loadExisting(intent)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.mergeFromRecord(intent, existing)
	}

	if intent.Message == "" && !intent.HasImageSource() && intent.VideoUpload == nil {
		return nil, &PublishError{Status: http.StatusBadRequest, Message: "message is required when no image is supplied"}
	}
	if intent.ImageUpload != nil && intent.VideoUpload != nil {
		return nil, &PublishError{Status: http.StatusBadRequest, Message: "supply either an image or a video upload, not both"}
	}

	pageID := intent.PageID
	if pageID == "" {
		pageID = s.cfg.MetaPageID
	}

	var (
		resp       *meta.Response
		storedPath string
		callErr    error
	)
	switch {
	case intent.ImageUpload != nil:
		storedPath, resp, callErr = s.publishLocalMedia(ctx, pageID, intent, intent.ImageUpload, models.ContentImage)
	case intent.VideoUpload != nil:
		storedPath, resp, callErr = s.publishLocalMedia(ctx, pageID, intent, intent.VideoUpload, models.ContentVideo)
	default:
		resp, callErr = s.graph.PublishFeedPost(ctx, pageID, intent.Message, intent.ImageURL, intent.Link, intent.AccessToken)
	}
	if callErr != nil {
		return nil, s.classifyGraphError(models.Facebook, intent, callErr)
	}
	if resp.ID == "" {
		return nil, s.unexpectedResponse(models.Facebook, intent, resp)
	}

	return s.persistOutcome(intent, existing, resp, storedPath, true)
}

// PublishInstagram runs the Instagram workflow. An image source is mandatory,
// a published record cannot be republished, uploads are normalized to JPEG,
// and the image URL must pass the public reachability probe before the
// two-phase Graph sequence starts. Uniqueness races are not recovered here.
func (s *PublisherService) PublishInstagram(ctx context.Context, intent *models.PublishIntent) (*models.PublishOutcome, error) {
	existing, err := s.loadExisting(intent)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.MetaPostID != "" {
			return nil, &PublishError{Status: http.StatusConflict, Code: CodeMetaAlreadyPosted, Message: "post has already been published to Meta"}
		}
		s.mergeFromRecord(intent, existing)
	}

	if !intent.HasImageSource() {
		return nil, &PublishError{Status: http.StatusBadRequest, Message: "image_url or an image upload is required"}
	}

	imageURL := intent.ImageURL
	storedPath := ""
	if intent.ImageUpload != nil {
		normalized, nerr := NormalizeJPEG(intent.ImageUpload.Data)
		if nerr != nil {
			return nil, &PublishError{Status: http.StatusBadRequest, Message: nerr.Error()}
		}
		relPath := fmt.Sprintf("social/%s.jpg", uuid.New().String())
		publicURL, _, perr := s.objects.Put(relPath, normalized)
		if perr != nil {
			return nil, perr
		}
		imageURL = publicURL
		storedPath = relPath
	}

	if perr := s.prober.ProbePublicJPEG(ctx, imageURL); perr != nil {
		return nil, &PublishError{Status: http.StatusBadRequest, Message: perr.Error()}
	}

	igUserID := intent.IGUserID
	if igUserID == "" {
		igUserID = s.cfg.MetaIGUserID
	}

	resp, callErr := s.graph.PublishInstagramImage(ctx, igUserID, imageURL, intent.Message, intent.AccessToken)
	if callErr != nil {
		return nil, s.classifyGraphError(models.Instagram, intent, callErr)
	}
	if resp.ID == "" {
		return nil, s.unexpectedResponse(models.Instagram, intent, resp)
	}

	intent.ImageURL = imageURL
	return s.persistOutcome(intent, existing, resp, storedPath, false)
}

func (s *PublisherService) loadExisting(intent *models.PublishIntent) (*models.MarketingPost, error) {
	if intent.PostID == 0 {
		return nil, nil
	}
	post, err := s.store.FindPost(intent.PostID)
	if err != nil {
		if errors.Is(err, database.ErrPostNotFound) {
			return nil, &PublishError{Status: http.StatusNotFound, Code: CodePostNotFound, Message: "Post not found"}
		}
		return nil, err
	}
	return post, nil
}

// mergeFromRecord fills fields the intent omitted from the stored record.
func (s *PublisherService) mergeFromRecord(intent *models.PublishIntent, post *models.MarketingPost) {
	if intent.Message == "" {
		intent.Message = post.Title
	}
	if intent.Link == "" {
		intent.Link = post.Link
	}
	if intent.CampaignID == nil {
		intent.CampaignID = post.CampaignID
	}
	if !intent.HasImageSource() && post.FilePath != "" && s.objects.Exists(post.FilePath) {
		intent.ImageURL = s.objects.URL(post.FilePath)
	}
}

// publishLocalMedia persists the upload to the object store, writes a
// transient local copy for the multipart call, and removes that copy on
// every exit path.
func (s *PublisherService) publishLocalMedia(ctx context.Context, pageID string, intent *models.PublishIntent, upload *models.Upload, kind models.ContentType) (string, *meta.Response, error) {
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	if ext == "" {
		ext = ".bin"
	}
	relPath := fmt.Sprintf("social/%s%s", uuid.New().String(), ext)
	if _, _, err := s.objects.Put(relPath, upload.Data); err != nil {
		return "", nil, err
	}

	tmpFile, err := os.CreateTemp(s.tmpDir, "social-*"+ext)
	if err != nil {
		return relPath, nil, err
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(upload.Data); err != nil {
		tmpFile.Close()
		return relPath, nil, err
	}
	tmpFile.Close()

	var resp *meta.Response
	var callErr error
	if kind == models.ContentVideo {
		resp, callErr = s.graph.PublishVideoFile(ctx, pageID, tmpPath, intent.Message, intent.AccessToken)
	} else {
		resp, callErr = s.graph.PublishPhotoFile(ctx, pageID, tmpPath, intent.Message, intent.AccessToken)
	}
	return relPath, resp, callErr
}

// persistOutcome links the provider object id to a content record. Updating
// an existing record and creating a fresh one share the campaign and
// duplicate handling; only the Facebook path recovers the create race.
func (s *PublisherService) persistOutcome(intent *models.PublishIntent, existing *models.MarketingPost, resp *meta.Response, storedPath string, recoverRace bool) (*models.PublishOutcome, error) {
	now := time.Now()

	if existing != nil {
		existing.MetaPostID = resp.ID
		existing.Status = models.StatusPublished
		existing.PublishedAt = &now
		existing.UpdatedAt = now
		if storedPath != "" {
			existing.FilePath = storedPath
			existing.ContentType = contentKind(intent)
		}
		if err := s.store.UpdatePost(existing); err != nil {
			return nil, s.classifyStoreError(err)
		}
		return &models.PublishOutcome{MetaPostID: resp.ID, PostID: existing.ID, Data: resp.Payload}, nil
	}

	draft := &models.MarketingPost{
		Platform:    intent.Platform,
		Title:       truncateTitle(intent.Message),
		ContentType: contentKind(intent),
		FilePath:    storedPath,
		Link:        intent.Link,
		CampaignID:  intent.CampaignID,
		UserID:      intent.UserID,
		Status:      models.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreatePost(draft); err != nil {
		return nil, s.classifyStoreError(err)
	}

	draft.MetaPostID = resp.ID
	draft.Status = models.StatusPublished
	draft.PublishedAt = &now
	draft.UpdatedAt = time.Now()
	if err := s.store.UpdatePost(draft); err != nil {
		if errors.Is(err, database.ErrDuplicateMetaPost) && recoverRace {
			if outcome := s.adoptRaceWinner(resp, draft, now); outcome != nil {
				return outcome, nil
			}
		}
		return nil, s.classifyStoreError(err)
	}

	return &models.PublishOutcome{MetaPostID: resp.ID, PostID: draft.ID, Data: resp.Payload}, nil
}

// adoptRaceWinner resolves the concurrent-publish race: the record already
// holding the provider id wins, gets marked published, and the losing draft
// is discarded. Returns nil when the winner cannot be loaded, in which case
// the original violation is surfaced.
func (s *PublisherService) adoptRaceWinner(resp *meta.Response, draft *models.MarketingPost, now time.Time) *models.PublishOutcome {
	winner, err := s.store.FindPostByMetaID(resp.ID)
	if err != nil || winner == nil {
		return nil
	}

	if winner.Status != models.StatusPublished {
		winner.Status = models.StatusPublished
		winner.PublishedAt = &now
		winner.UpdatedAt = now
		if err := s.store.UpdatePost(winner); err != nil {
			return nil
		}
	}
	if winner.ID != draft.ID {
		if err := s.store.DeletePost(draft.ID); err != nil {
			utils.Warnf("could not discard racing draft %d: %v", draft.ID, err)
		}
	}

	utils.Warnf("duplicate meta post id %s: adopted record %d, discarded draft %d", resp.ID, winner.ID, draft.ID)
	return &models.PublishOutcome{MetaPostID: resp.ID, PostID: winner.ID, Data: resp.Payload}
}

func (s *PublisherService) classifyStoreError(err error) error {
	switch {
	case errors.Is(err, database.ErrCampaignNotFound):
		return &PublishError{Status: http.StatusNotFound, Code: CodeCampaignNotFound, Message: "campaign not found"}
	case errors.Is(err, database.ErrDuplicateMetaPost):
		return &PublishError{Status: http.StatusConflict, Code: CodeDuplicateMetaPost, Message: "another record already holds this meta post id"}
	default:
		return err
	}
}

func (s *PublisherService) classifyGraphError(platform models.Platform, intent *models.PublishIntent, err error) error {
	gerr, ok := meta.AsError(err)
	if !ok {
		return err
	}

	utils.Errorf("%s publish failed: kind=%s campaign=%s user=%s: %v",
		platform, gerr.Kind, campaignRef(intent.CampaignID), intent.UserID, gerr)

	pe := &PublishError{Status: gerr.HTTPStatus(), Message: string(gerr.Kind)}
	if gerr.Kind == meta.ErrMissingRequiredField || gerr.Kind == meta.ErrInvalidPayload {
		pe.Message = gerr.Message
	}
	if gerr.Details != nil {
		pe.Details = gerr.Details
	} else if gerr.Body != "" {
		pe.Details = gerr.Body
	}
	return pe
}

func (s *PublisherService) unexpectedResponse(platform models.Platform, intent *models.PublishIntent, resp *meta.Response) error {
	utils.Errorf("%s publish returned no object id: campaign=%s user=%s body=%s",
		platform, campaignRef(intent.CampaignID), intent.UserID, resp.Body)
	return &PublishError{
		Status:  http.StatusBadGateway,
		Message: string(meta.ErrUnexpectedResponse),
		Details: resp.Payload,
	}
}

func contentKind(intent *models.PublishIntent) models.ContentType {
	switch {
	case intent.VideoUpload != nil:
		return models.ContentVideo
	case intent.HasImageSource():
		return models.ContentImage
	default:
		return models.ContentText
	}
}

// truncateTitle caps the stored title at the display limit, counted in runes
// so a multi-byte character is never split into invalid UTF-8.
func truncateTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= models.TitleDisplayLimit {
		return message
	}
	return string(runes[:models.TitleDisplayLimit])
}

func campaignRef(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}
