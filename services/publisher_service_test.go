package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"MetaGatewayAPI/config"
	"MetaGatewayAPI/database"
	"MetaGatewayAPI/meta"
	"MetaGatewayAPI/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	nextID     int64
	posts      map[int64]*models.MarketingPost
	createErr  error
	updateErrs []error
	deleted    []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{posts: map[int64]*models.MarketingPost{}}
}

func (f *fakeStore) seed(post *models.MarketingPost) *models.MarketingPost {
	f.nextID++
	post.ID = f.nextID
	cp := *post
	f.posts[post.ID] = &cp
	return post
}

func (f *fakeStore) FindPost(id int64) (*models.MarketingPost, error) {
	if p, ok := f.posts[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, database.ErrPostNotFound
}

func (f *fakeStore) CreatePost(post *models.MarketingPost) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	post.ID = f.nextID
	cp := *post
	f.posts[post.ID] = &cp
	return nil
}

func (f *fakeStore) UpdatePost(post *models.MarketingPost) error {
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return err
		}
	}
	cp := *post
	f.posts[post.ID] = &cp
	return nil
}

func (f *fakeStore) FindPostByMetaID(metaPostID string) (*models.MarketingPost, error) {
	for _, p := range f.posts {
		if p.MetaPostID == metaPostID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, database.ErrPostNotFound
}

func (f *fakeStore) DeletePost(id int64) error {
	delete(f.posts, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeObjects struct {
	baseURL string
	files   map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{baseURL: "https://media.example.com", files: map[string][]byte{}}
}

func (f *fakeObjects) Put(relPath string, data []byte) (string, string, error) {
	f.files[relPath] = data
	return f.URL(relPath), "", nil
}

func (f *fakeObjects) URL(relPath string) string {
	return f.baseURL + "/uploads/" + relPath
}

func (f *fakeObjects) Exists(relPath string) bool {
	_, ok := f.files[relPath]
	return ok
}

func (f *fakeObjects) Delete(relPath string) error {
	delete(f.files, relPath)
	return nil
}

type graphCall struct {
	op        string
	pageID    string
	message   string
	imageURL  string
	link      string
	localPath string
	fileWas   bool // local file existed at call time
}

type fakePublisherGraph struct {
	resp  *meta.Response
	err   error
	calls []graphCall
}

func graphOK(id string) *fakePublisherGraph {
	return &fakePublisherGraph{resp: &meta.Response{
		ID:      id,
		Payload: map[string]interface{}{"id": id},
		Body:    []byte(`{"id":"` + id + `"}`),
	}}
}

func (f *fakePublisherGraph) result() (*meta.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakePublisherGraph) PublishFeedPost(ctx context.Context, pageID, message, imageURL, link, tokenOverride string) (*meta.Response, error) {
	f.calls = append(f.calls, graphCall{op: "feed", pageID: pageID, message: message, imageURL: imageURL, link: link})
	return f.result()
}

func (f *fakePublisherGraph) PublishPhotoFile(ctx context.Context, pageID, localPath, caption, tokenOverride string) (*meta.Response, error) {
	_, statErr := os.Stat(localPath)
	f.calls = append(f.calls, graphCall{op: "photo_file", pageID: pageID, message: caption, localPath: localPath, fileWas: statErr == nil})
	return f.result()
}

func (f *fakePublisherGraph) PublishVideoFile(ctx context.Context, pageID, localPath, description, tokenOverride string) (*meta.Response, error) {
	_, statErr := os.Stat(localPath)
	f.calls = append(f.calls, graphCall{op: "video_file", pageID: pageID, message: description, localPath: localPath, fileWas: statErr == nil})
	return f.result()
}

func (f *fakePublisherGraph) PublishInstagramImage(ctx context.Context, igUserID, imageURL, caption, tokenOverride string) (*meta.Response, error) {
	f.calls = append(f.calls, graphCall{op: "instagram", pageID: igUserID, message: caption, imageURL: imageURL})
	return f.result()
}

type fakeProber struct {
	err    error
	probed []string
}

func (f *fakeProber) ProbePublicJPEG(ctx context.Context, rawURL string) error {
	f.probed = append(f.probed, rawURL)
	return f.err
}

func testPublisher(t *testing.T, store *fakeStore, objects *fakeObjects, graph *fakePublisherGraph, prober *fakeProber) *PublisherService {
	uploadDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(uploadDir, "tmp"), 0o755))

	cfg := &config.Config{
		UploadDir:    uploadDir,
		MetaPageID:   "page-1",
		MetaIGUserID: "ig-1",
	}
	return NewPublisherService(store, objects, graph, prober, cfg)
}

func pngUpload(t *testing.T) *models.Upload {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return &models.Upload{Filename: "pic.png", Data: buf.Bytes()}
}

func TestPublishFacebookTextCreatesLinkedRecord(t *testing.T) {
	store := newFakeStore()
	graph := graphOK("fb-1234")
	svc := testPublisher(t, store, newFakeObjects(), graph, &fakeProber{})

	outcome, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform: models.Facebook,
		Message:  "hello world",
		UserID:   "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "fb-1234", outcome.MetaPostID)
	require.NotZero(t, outcome.PostID)

	stored := store.posts[outcome.PostID]
	require.NotNil(t, stored)
	assert.Equal(t, "fb-1234", stored.MetaPostID)
	assert.Equal(t, models.StatusPublished, stored.Status)
	assert.Equal(t, "hello world", stored.Title)
	assert.NotNil(t, stored.PublishedAt)

	require.Len(t, graph.calls, 1)
	assert.Equal(t, "feed", graph.calls[0].op)
	assert.Equal(t, "page-1", graph.calls[0].pageID)
}

func TestPublishFacebookMergesFromExistingRecord(t *testing.T) {
	store := newFakeStore()
	campaignID := int64(7)
	existing := store.seed(&models.MarketingPost{
		Platform:   models.Facebook,
		Title:      "stored title",
		Link:       "https://example.com/stored",
		CampaignID: &campaignID,
		Status:     models.StatusDraft,
	})

	graph := graphOK("fb-55")
	svc := testPublisher(t, store, newFakeObjects(), graph, &fakeProber{})

	outcome, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform: models.Facebook,
		PostID:   existing.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, outcome.PostID)

	require.Len(t, graph.calls, 1)
	assert.Equal(t, "stored title", graph.calls[0].message)
	assert.Equal(t, "https://example.com/stored", graph.calls[0].link)

	stored := store.posts[existing.ID]
	assert.Equal(t, "fb-55", stored.MetaPostID)
	assert.Equal(t, models.StatusPublished, stored.Status)
}

func TestPublishFacebookRequiresContent(t *testing.T) {
	svc := testPublisher(t, newFakeStore(), newFakeObjects(), graphOK("x"), &fakeProber{})

	_, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{Platform: models.Facebook})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusBadRequest, pubErr.Status)
}

func TestPublishFacebookUnknownPostIs404(t *testing.T) {
	svc := testPublisher(t, newFakeStore(), newFakeObjects(), graphOK("x"), &fakeProber{})

	_, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform: models.Facebook,
		PostID:   99,
		Message:  "hello",
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusNotFound, pubErr.Status)
	assert.Equal(t, CodePostNotFound, pubErr.Code)
}

func TestPublishFacebookCampaignViolationIs404(t *testing.T) {
	store := newFakeStore()
	store.createErr = database.ErrCampaignNotFound
	svc := testPublisher(t, store, newFakeObjects(), graphOK("fb-1"), &fakeProber{})

	campaignID := int64(404)
	_, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform:   models.Facebook,
		Message:    "hello",
		CampaignID: &campaignID,
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusNotFound, pubErr.Status)
	assert.Equal(t, CodeCampaignNotFound, pubErr.Code)
}

func TestPublishFacebookDuplicateRaceAdoptsWinner(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	winner := store.seed(&models.MarketingPost{
		Platform:    models.Facebook,
		MetaPostID:  "fb-race",
		Title:       "winner",
		Status:      models.StatusPublished,
		PublishedAt: &now,
	})

	// the losing draft is created, then its update hits the unique violation
	store.updateErrs = []error{database.ErrDuplicateMetaPost}

	graph := graphOK("fb-race")
	svc := testPublisher(t, store, newFakeObjects(), graph, &fakeProber{})

	outcome, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform: models.Facebook,
		Message:  "racing publish",
	})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, outcome.PostID)
	assert.Equal(t, "fb-race", outcome.MetaPostID)

	// exactly one record holds the provider id and the draft is gone
	assert.Len(t, store.posts, 1)
	require.Len(t, store.deleted, 1)
	assert.NotEqual(t, winner.ID, store.deleted[0])
}

func TestPublishFacebookDuplicateWithoutWinnerSurfacesConflict(t *testing.T) {
	store := newFakeStore()
	store.updateErrs = []error{database.ErrDuplicateMetaPost}
	svc := testPublisher(t, store, newFakeObjects(), graphOK("fb-1"), &fakeProber{})

	_, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform: models.Facebook,
		Message:  "hello",
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusConflict, pubErr.Status)
	assert.Equal(t, CodeDuplicateMetaPost, pubErr.Code)
}

func TestPublishFacebookUpstreamErrorIs502(t *testing.T) {
	graph := &fakePublisherGraph{err: &meta.Error{Kind: meta.ErrUpstreamHTTP, Status: 400, Body: `{"error":"bad"}`}}
	svc := testPublisher(t, newFakeStore(), newFakeObjects(), graph, &fakeProber{})

	_, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform: models.Facebook,
		Message:  "hello",
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusBadGateway, pubErr.Status)
	assert.Equal(t, string(meta.ErrUpstreamHTTP), pubErr.Message)
	assert.NotNil(t, pubErr.Details)
}

func TestPublishFacebookMissingIDIs502(t *testing.T) {
	graph := &fakePublisherGraph{resp: &meta.Response{Payload: map[string]interface{}{"success": true}}}
	svc := testPublisher(t, newFakeStore(), newFakeObjects(), graph, &fakeProber{})

	_, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform: models.Facebook,
		Message:  "hello",
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusBadGateway, pubErr.Status)
	assert.Equal(t, string(meta.ErrUnexpectedResponse), pubErr.Message)
}

func TestPublishFacebookImageUploadStoresAndCleansUp(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	graph := graphOK("fb-img")
	svc := testPublisher(t, store, objects, graph, &fakeProber{})

	outcome, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform:    models.Facebook,
		Message:     "with picture",
		ImageUpload: pngUpload(t),
	})
	require.NoError(t, err)

	require.Len(t, graph.calls, 1)
	call := graph.calls[0]
	assert.Equal(t, "photo_file", call.op)
	assert.True(t, call.fileWas, "local copy must exist during the upload call")

	// transient copy removed afterwards
	_, statErr := os.Stat(call.localPath)
	assert.True(t, os.IsNotExist(statErr))

	stored := store.posts[outcome.PostID]
	require.NotNil(t, stored)
	assert.Equal(t, models.ContentImage, stored.ContentType)
	assert.True(t, objects.Exists(stored.FilePath))
}

func TestPublishFacebookTruncatesLongTitle(t *testing.T) {
	store := newFakeStore()
	svc := testPublisher(t, store, newFakeObjects(), graphOK("fb-long"), &fakeProber{})

	long := strings.Repeat("a", models.TitleDisplayLimit+50)
	outcome, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform: models.Facebook,
		Message:  long,
	})
	require.NoError(t, err)
	assert.Len(t, store.posts[outcome.PostID].Title, models.TitleDisplayLimit)
}

func TestPublishFacebookTruncatesByRunesNotBytes(t *testing.T) {
	store := newFakeStore()
	svc := testPublisher(t, store, newFakeObjects(), graphOK("fb-utf8"), &fakeProber{})

	// 300 two-byte runes; a byte-offset cut would split one mid-sequence
	long := strings.Repeat("é", models.TitleDisplayLimit+45)
	outcome, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform: models.Facebook,
		Message:  long,
	})
	require.NoError(t, err)

	title := store.posts[outcome.PostID].Title
	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, models.TitleDisplayLimit, utf8.RuneCountInString(title))
}

func TestPublishFacebookShortMultiByteTitleKeptWhole(t *testing.T) {
	store := newFakeStore()
	svc := testPublisher(t, store, newFakeObjects(), graphOK("fb-utf8-short"), &fakeProber{})

	// 200 runes is within the limit even though it is 400 bytes
	msg := strings.Repeat("é", 200)
	outcome, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform: models.Facebook,
		Message:  msg,
	})
	require.NoError(t, err)
	assert.Equal(t, msg, store.posts[outcome.PostID].Title)
}

func TestPublishFacebookRejectsImageAndVideoTogether(t *testing.T) {
	graph := graphOK("fb-both")
	svc := testPublisher(t, newFakeStore(), newFakeObjects(), graph, &fakeProber{})

	_, err := svc.PublishFacebook(context.Background(), &models.PublishIntent{
		Platform:    models.Facebook,
		Message:     "ambiguous",
		ImageUpload: pngUpload(t),
		VideoUpload: &models.Upload{Filename: "clip.mp4", Data: []byte{0x00, 0x00, 0x00, 0x18}},
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusBadRequest, pubErr.Status)
	assert.Empty(t, graph.calls)
}

func TestPublishInstagramRequiresImageSource(t *testing.T) {
	svc := testPublisher(t, newFakeStore(), newFakeObjects(), graphOK("x"), &fakeProber{})

	_, err := svc.PublishInstagram(context.Background(), &models.PublishIntent{
		Platform: models.Instagram,
		Message:  "caption only",
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusBadRequest, pubErr.Status)
}

func TestPublishInstagramRejectsRepublish(t *testing.T) {
	store := newFakeStore()
	existing := store.seed(&models.MarketingPost{
		Platform:   models.Instagram,
		MetaPostID: "ig-old",
		Status:     models.StatusPublished,
	})

	svc := testPublisher(t, store, newFakeObjects(), graphOK("x"), &fakeProber{})

	_, err := svc.PublishInstagram(context.Background(), &models.PublishIntent{
		Platform: models.Instagram,
		PostID:   existing.ID,
		ImageURL: "https://cdn.example.com/a.jpg",
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusConflict, pubErr.Status)
	assert.Equal(t, CodeMetaAlreadyPosted, pubErr.Code)
}

func TestPublishInstagramUploadIsNormalizedAndProbed(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	graph := graphOK("ig-77")
	prober := &fakeProber{}
	svc := testPublisher(t, store, objects, graph, prober)

	outcome, err := svc.PublishInstagram(context.Background(), &models.PublishIntent{
		Platform:    models.Instagram,
		Message:     "caption",
		ImageUpload: pngUpload(t),
	})
	require.NoError(t, err)

	stored := store.posts[outcome.PostID]
	require.NotNil(t, stored)
	assert.True(t, strings.HasSuffix(stored.FilePath, ".jpg"))

	// the stored object is the JPEG conversion, not the PNG original
	data := objects.files[stored.FilePath]
	require.NotEmpty(t, data)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	require.Len(t, prober.probed, 1)
	assert.Equal(t, objects.URL(stored.FilePath), prober.probed[0])

	require.Len(t, graph.calls, 1)
	assert.Equal(t, "instagram", graph.calls[0].op)
	assert.Equal(t, "ig-1", graph.calls[0].pageID)
	assert.Equal(t, objects.URL(stored.FilePath), graph.calls[0].imageURL)
}

func TestPublishInstagramProbeFailureStopsBeforeGraph(t *testing.T) {
	graph := graphOK("ig-1")
	prober := &fakeProber{err: errors.New("image_url returned status 404")}
	svc := testPublisher(t, newFakeStore(), newFakeObjects(), graph, prober)

	_, err := svc.PublishInstagram(context.Background(), &models.PublishIntent{
		Platform: models.Instagram,
		ImageURL: "https://cdn.example.com/missing.jpg",
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusBadRequest, pubErr.Status)
	assert.Empty(t, graph.calls)
}

func TestPublishInstagramBadUploadIs400(t *testing.T) {
	svc := testPublisher(t, newFakeStore(), newFakeObjects(), graphOK("x"), &fakeProber{})

	_, err := svc.PublishInstagram(context.Background(), &models.PublishIntent{
		Platform:    models.Instagram,
		ImageUpload: &models.Upload{Filename: "junk.bin", Data: []byte("not an image")},
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusBadRequest, pubErr.Status)
}

func TestPublishInstagramContainerFailureIs502WithDetails(t *testing.T) {
	graph := &fakePublisherGraph{err: &meta.Error{
		Kind:    meta.ErrMediaContainerFailed,
		Message: "container create returned 200 without an id",
		Details: map[string]interface{}{"status": "error"},
	}}
	svc := testPublisher(t, newFakeStore(), newFakeObjects(), graph, &fakeProber{})

	_, err := svc.PublishInstagram(context.Background(), &models.PublishIntent{
		Platform: models.Instagram,
		ImageURL: "https://cdn.example.com/a.jpg",
	})

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusBadGateway, pubErr.Status)
	assert.Equal(t, string(meta.ErrMediaContainerFailed), pubErr.Message)
	assert.NotNil(t, pubErr.Details)
}
