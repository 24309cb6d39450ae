package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/h2non/filetype"
)

// NormalizeJPEG returns the input unchanged when it already is a JPEG, and
// otherwise re-encodes it best-effort. Bytes that decode as no supported
// image are rejected rather than silently forwarded to the provider.
func NormalizeJPEG(data []byte) ([]byte, error) {
	if filetype.IsMIME(data, "image/jpeg") {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image data could not be decoded for JPEG conversion: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("JPEG re-encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// IsLoopbackURL reports whether the URL points at a loopback host. Such URLs
// can never be fetched by the provider's crawler.
func IsLoopbackURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// HTTPImageProber checks that an image URL is publicly resolvable and serves
// a JPEG before the Instagram container is created.
type HTTPImageProber struct {
	client *http.Client
}

func NewHTTPImageProber(client *http.Client) *HTTPImageProber {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPImageProber{client: client}
}

func (p *HTTPImageProber) ProbePublicJPEG(ctx context.Context, rawURL string) error {
	if IsLoopbackURL(rawURL) {
		return fmt.Errorf("image_url %s points at a loopback host and is not publicly reachable", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("image_url is not a valid URL: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("image_url is not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("image_url returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "image/jpeg") {
		return fmt.Errorf("image_url must serve image/jpeg, got %q", ct)
	}
	return nil
}
