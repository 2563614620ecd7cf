package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memologist/memologist/internal/model"
)

// Processor turns submitted content blocks into stored ones: uploaded
// files named by imgName blocks and foreign image URLs are re-hosted.
type Processor struct {
	Uploader Uploader
	// BaseURL prefixes URLs that already point at our storage.
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

func NewProcessor(u Uploader, baseURL string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Uploader: u,
		BaseURL:  baseURL,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
		Logger:   logger,
	}
}

// Validate checks block shapes without touching storage.
func Validate(blocks []model.ContentBlock) error {
	for i, b := range blocks {
		switch b.Type {
		case model.ContentText:
			if strings.TrimSpace(b.Text) == "" {
				return fmt.Errorf("%w: block %d: text is required", ErrInvalidContent, i)
			}
		case model.ContentImgURL:
			if !strings.HasPrefix(b.ImgURL, "http://") && !strings.HasPrefix(b.ImgURL, "https://") && !strings.HasPrefix(b.ImgURL, "/") {
				return fmt.Errorf("%w: block %d: imgUrl must be an absolute URL", ErrInvalidContent, i)
			}
		case model.ContentImgName:
			if strings.TrimSpace(b.ImgName) == "" {
				return fmt.Errorf("%w: block %d: imgName is required", ErrInvalidContent, i)
			}
		default:
			return fmt.Errorf("%w: block %d: unknown type %q", ErrInvalidContent, i, b.Type)
		}
	}
	return nil
}

// Process validates blocks and returns them with every image stored by
// the uploader. files maps the original upload file name to its bytes.
func (p *Processor) Process(ctx context.Context, blocks []model.ContentBlock, files map[string][]byte) ([]model.ContentBlock, error) {
	if err := Validate(blocks); err != nil {
		return nil, err
	}
	out := make([]model.ContentBlock, 0, len(blocks))
	for i, b := range blocks {
		switch b.Type {
		case model.ContentText:
			out = append(out, model.ContentBlock{Type: model.ContentText, Text: b.Text})
		case model.ContentImgURL:
			if p.owned(b.ImgURL) {
				out = append(out, model.ContentBlock{Type: model.ContentImgURL, ImgURL: b.ImgURL})
				continue
			}
			data, err := p.fetch(ctx, b.ImgURL)
			if err != nil {
				return nil, fmt.Errorf("%w: block %d: %v", ErrInvalidContent, i, err)
			}
			url, err := p.store(ctx, data)
			if err != nil {
				return nil, err
			}
			out = append(out, model.ContentBlock{Type: model.ContentImgURL, ImgURL: url})
		case model.ContentImgName:
			data, ok := files[b.ImgName]
			if !ok {
				return nil, fmt.Errorf("%w: block %d: file %q was not uploaded", ErrInvalidContent, i, b.ImgName)
			}
			url, err := p.store(ctx, data)
			if err != nil {
				return nil, err
			}
			out = append(out, model.ContentBlock{Type: model.ContentImgURL, ImgURL: url})
		}
	}
	return out, nil
}

func (p *Processor) owned(url string) bool {
	base := strings.TrimRight(p.BaseURL, "/")
	return base != "" && strings.HasPrefix(url, base+"/")
}

func (p *Processor) store(ctx context.Context, data []byte) (string, error) {
	ct, _, err := Detect(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	name := uuid.NewString() + extension(ct)
	url, err := p.Uploader.Upload(ctx, name, ct, data)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	p.Logger.Info("media: stored image", "name", name, "type", ct, "bytes", len(data))
	return url, nil
}

func (p *Processor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
