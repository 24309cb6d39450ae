package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"MetaGatewayAPI/models"

	"github.com/h2non/filetype"
	ftypes "github.com/h2non/filetype/types"
)

// allowedUploadTypes maps accepted MIME values (validated via magic-number
// signatures, not extensions or Content-Type headers) to content kinds.
var allowedUploadTypes = map[string]models.ContentType{
	"image/jpeg": models.ContentImage,
	"image/png":  models.ContentImage,
	"image/gif":  models.ContentImage,
	"video/mp4":  models.ContentVideo,
}

// DetectUploadType matches the upload's magic number and returns its MIME
// value and content kind. Unknown or disallowed signatures are rejected.
func DetectUploadType(data []byte) (string, models.ContentType, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return "", "", fmt.Errorf("file type detection failed: %w", err)
	}
	if kind == ftypes.Unknown {
		return "", "", fmt.Errorf("file content does not match any known type")
	}

	mime := kind.MIME.Value
	contentType, ok := allowedUploadTypes[mime]
	if !ok {
		return "", "", fmt.Errorf("file type %s is not allowed; accepted: image/jpeg, image/png, image/gif, video/mp4", mime)
	}
	return mime, contentType, nil
}

// StorageService is the durable object store backing uploaded media. Objects
// are written under the upload directory and served statically, so the URL
// returned by Put is publicly fetchable, which the Instagram crawler
// requires.
type StorageService struct {
	uploadDir string
	baseURL   string
}

func NewStorageService(uploadDir, baseURL string) (*StorageService, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(uploadDir, "tmp"), 0755); err != nil {
		return nil, err
	}

	return &StorageService{
		uploadDir: uploadDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}, nil
}

// Put writes data under the given relative path and returns the public URL
// together with the local filesystem path.
func (s *StorageService) Put(relPath string, data []byte) (string, string, error) {
	localPath := filepath.Join(s.uploadDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return "", "", err
	}
	return s.URL(relPath), localPath, nil
}

func (s *StorageService) URL(relPath string) string {
	return fmt.Sprintf("%s/uploads/%s", s.baseURL, relPath)
}

func (s *StorageService) Exists(relPath string) bool {
	_, err := os.Stat(filepath.Join(s.uploadDir, filepath.FromSlash(relPath)))
	return err == nil
}

func (s *StorageService) Delete(relPath string) error {
	return os.Remove(filepath.Join(s.uploadDir, filepath.FromSlash(relPath)))
}

// TempDir is where transient local copies for multipart uploads live; the
// janitor sweeps it for leftovers.
func (s *StorageService) TempDir() string {
	return filepath.Join(s.uploadDir, "tmp")
}
