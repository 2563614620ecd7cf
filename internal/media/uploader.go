package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/memologist/memologist/internal/config"
)

// Folder is where user images are stored under every provider.
const Folder = "user_uploads"

type Uploader interface {
	// Upload stores data under name and returns its public URL.
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// DiskUploader writes files below Dir; the HTTP server exposes Dir at
// BaseURL.
type DiskUploader struct {
	Dir     string
	BaseURL string
}

func (d *DiskUploader) Upload(_ context.Context, name, _ string, data []byte) (string, error) {
	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	dir := filepath.Join(d.Dir, Folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return strings.TrimRight(d.BaseURL, "/") + "/" + path.Join(Folder, name), nil
}

// ImageKitUploader uses the ImageKit upload API, authenticating with the
// private key.
type ImageKitUploader struct {
	UploadURL  string
	PrivateKey string
	HTTP       *http.Client
}

func NewImageKit(uploadURL, privateKey string) *ImageKitUploader {
	return &ImageKitUploader{
		UploadURL:  uploadURL,
		PrivateKey: privateKey,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
}

type imageKitResponse struct {
	FileID string `json:"fileId"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

func (u *ImageKitUploader) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if u.PrivateKey == "" {
		return "", errors.New("imagekit private key is not configured")
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	fields := map[string]string{
		"fileName":          name,
		"folder":            Folder,
		"useUniqueFileName": "false",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.UploadURL, &body)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(u.PrivateKey, "")
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := u.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("imagekit upload failed: status=%d body=%s", resp.StatusCode, string(b))
	}
	var out imageKitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode imagekit response: %w", err)
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", errors.New("imagekit response missing url")
	}
	return out.URL, nil
}

func (u *ImageKitUploader) client() *http.Client {
	if u.HTTP != nil {
		return u.HTTP
	}
	return http.DefaultClient
}

// NewUploader picks the uploader for cfg.Provider.
func NewUploader(cfg config.MediaConfig) (Uploader, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "disk":
		return &DiskUploader{Dir: cfg.Dir, BaseURL: cfg.BaseURL}, nil
	case "imagekit":
		return NewImageKit(cfg.ImageKit.UploadURL, cfg.ImageKit.PrivateKey), nil
	default:
		return nil, fmt.Errorf("unknown media provider %q", cfg.Provider)
	}
}
