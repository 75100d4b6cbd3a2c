// Package upload sends picked images to the asset endpoint and hands back
// the object key that becomes the image field's value.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"wedsite/internal/session"
)

// UploadPath is the asset upload endpoint.
const UploadPath = "/v1/assets/upload"

// MaxSize caps a single image upload.
const MaxSize = 10 << 20

var (
	ErrTooLarge     = errors.New("upload: file too large")
	ErrNotImage     = errors.New("upload: not an image")
	ErrUnauthorized = errors.New("upload: unauthorized")
)

// Uploader stores an image and returns its object key.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// Func adapts a function to Uploader.
type Func func(ctx context.Context, name string, r io.Reader) (string, error)

func (f Func) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	return f(ctx, name, r)
}

var imageExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ContentType returns the image MIME type for name, or ErrNotImage.
func ContentType(name string) (string, error) {
	ct, ok := imageExt[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotImage, name)
	}
	return ct, nil
}

// HTTPUploader posts a multipart form with a single "file" part.
type HTTPUploader struct {
	baseURL  string
	client   *http.Client
	sessions session.Source
	redirect session.Redirector
}

type Option func(*HTTPUploader)

// WithRedirector is told when the session cannot be refreshed.
func WithRedirector(r session.Redirector) Option {
	return func(u *HTTPUploader) { u.redirect = r }
}

// NewHTTPUploader creates an uploader for the API at baseURL.
func NewHTTPUploader(baseURL string, client *http.Client, sessions session.Source, opts ...Option) *HTTPUploader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	u := &HTTPUploader{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:   client,
		sessions: sessions,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *HTTPUploader) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	ct, err := ContentType(name)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > MaxSize {
		return "", ErrTooLarge
	}

	token, err := u.sessions.GetSession(ctx)
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	refreshed := false
	if token == "" {
		refreshed = true
		if token, err = u.refresh(ctx); err != nil {
			return "", err
		}
	}

	key, status, err := u.post(ctx, token, name, ct, data)
	if status != http.StatusUnauthorized {
		return key, err
	}
	if refreshed {
		return "", ErrUnauthorized
	}
	if token, err = u.refresh(ctx); err != nil {
		return "", err
	}
	key, status, err = u.post(ctx, token, name, ct, data)
	if status == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	return key, err
}

// refresh asks for a new token once; failure sends the user to login.
func (u *HTTPUploader) refresh(ctx context.Context) (string, error) {
	token, err := u.sessions.RefreshSession(ctx)
	if err == nil && token != "" {
		return token, nil
	}
	if u.redirect != nil {
		u.redirect.RedirectToLogin("session expired")
	}
	if err != nil {
		return "", fmt.Errorf("%w: refresh session: %v", ErrUnauthorized, err)
	}
	return "", ErrUnauthorized
}

func (u *HTTPUploader) post(ctx context.Context, token, name, contentType string, data []byte) (string, int, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(name))}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", 0, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", 0, fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", 0, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+UploadPath, &body)
	if err != nil {
		return "", 0, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	var out struct {
		ObjectKey string `json:"objectKey"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&out); err != nil && resp.StatusCode < 300 {
		return "", resp.StatusCode, fmt.Errorf("decode upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode, fmt.Errorf("upload status %d: %s", resp.StatusCode, out.Error)
	}
	if out.ObjectKey == "" {
		return "", resp.StatusCode, errors.New("upload response missing objectKey")
	}
	return out.ObjectKey, resp.StatusCode, nil
}
