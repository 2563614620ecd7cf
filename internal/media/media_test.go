package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chai2010/webp"

	"github.com/memologist/memologist/internal/config"
	"github.com/memologist/memologist/internal/model"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodeWebP(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := webp.Encode(&buf, testImage(), &webp.Options{Lossless: true}); err != nil {
		t.Fatalf("webp: %v", err)
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"png", encodePNG(t), "image/png"},
		{"jpeg", encodeJPEG(t), "image/jpeg"},
		{"webp", encodeWebP(t), "image/webp"},
	}
	for _, tc := range cases {
		ct, cfg, err := Detect(tc.data)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if ct != tc.want || cfg.Width != 4 || cfg.Height != 3 {
			t.Fatalf("%s: got %s %dx%d", tc.name, ct, cfg.Width, cfg.Height)
		}
	}

	if _, _, err := Detect([]byte("GIF89a not really")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected unsupported type, got %v", err)
	}
	truncated := encodePNG(t)[:20]
	if _, _, err := Detect(truncated); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected corrupt png rejected, got %v", err)
	}
	big := make([]byte, MaxFileSize+1)
	if _, _, err := Detect(big); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
}

func TestDiskUploader(t *testing.T) {
	dir := t.TempDir()
	u := &DiskUploader{Dir: dir, BaseURL: "/media/"}
	url, err := u.Upload(context.Background(), "a.png", "image/png", []byte("x"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "/media/user_uploads/a.png" {
		t.Fatalf("unexpected url %s", url)
	}
	if b, err := os.ReadFile(filepath.Join(dir, Folder, "a.png")); err != nil || string(b) != "x" {
		t.Fatalf("file not written: %v", err)
	}
	if _, err := u.Upload(context.Background(), "../evil", "image/png", nil); err == nil {
		t.Fatalf("expected path traversal rejected")
	}
}

func TestImageKitUploader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "private_key" || pass != "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("folder") != Folder || r.FormValue("fileName") != "n.png" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(f)
		if string(b) != "data" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://ik.imagekit.io/demo/user_uploads/n.png", "fileId": "1"})
	}))
	defer srv.Close()

	u := NewImageKit(srv.URL, "private_key")
	url, err := u.Upload(context.Background(), "n.png", "image/png", []byte("data"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://ik.imagekit.io/demo/user_uploads/n.png" {
		t.Fatalf("unexpected url %s", url)
	}

	bad := NewImageKit(srv.URL, "wrong")
	if _, err := bad.Upload(context.Background(), "n.png", "image/png", []byte("data")); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

type memUploader struct {
	names []string
}

func (m *memUploader) Upload(_ context.Context, name, _ string, _ []byte) (string, error) {
	m.names = append(m.names, name)
	return "https://cdn.example/user_uploads/" + name, nil
}

func TestProcessorProcess(t *testing.T) {
	pngData := encodePNG(t)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cat.png" {
			_, _ = w.Write(pngData)
			return
		}
		http.NotFound(w, r)
	}))
	defer remote.Close()

	up := &memUploader{}
	p := NewProcessor(up, "https://cdn.example", nil)
	p.HTTP = remote.Client()

	blocks := []model.ContentBlock{
		{Type: model.ContentText, Text: "caption"},
		{Type: model.ContentImgURL, ImgURL: "https://cdn.example/user_uploads/kept.png"},
		{Type: model.ContentImgURL, ImgURL: remote.URL + "/cat.png"},
		{Type: model.ContentImgName, ImgName: "upload.png"},
	}
	out, err := p.Process(context.Background(), blocks, map[string][]byte{"upload.png": pngData})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(out) != 4 || len(up.names) != 2 {
		t.Fatalf("unexpected result %+v uploads=%v", out, up.names)
	}
	if out[1].ImgURL != "https://cdn.example/user_uploads/kept.png" {
		t.Fatalf("owned url rewritten: %s", out[1].ImgURL)
	}
	for _, i := range []int{2, 3} {
		if out[i].Type != model.ContentImgURL || !strings.HasSuffix(out[i].ImgURL, ".png") || out[i].ImgName != "" {
			t.Fatalf("block %d not re-hosted: %+v", i, out[i])
		}
	}

	_, err = p.Process(context.Background(), []model.ContentBlock{{Type: model.ContentImgName, ImgName: "missing.png"}}, nil)
	if !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected invalid content for missing file, got %v", err)
	}
	_, err = p.Process(context.Background(), []model.ContentBlock{{Type: model.ContentImgURL, ImgURL: remote.URL + "/nope.png"}}, nil)
	if !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected invalid content for 404 image, got %v", err)
	}
	_, err = p.Process(context.Background(), []model.ContentBlock{{Type: model.ContentImgName, ImgName: "t.txt"}}, map[string][]byte{"t.txt": []byte("hello")})
	if !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected invalid content for text file, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	bad := [][]model.ContentBlock{
		{{Type: model.ContentText}},
		{{Type: model.ContentImgURL, ImgURL: "ftp://x"}},
		{{Type: model.ContentImgName}},
		{{Type: "video", Text: "x"}},
	}
	for i, blocks := range bad {
		if err := Validate(blocks); !errors.Is(err, ErrInvalidContent) {
			t.Errorf("case %d: expected invalid content, got %v", i, err)
		}
	}
	if err := Validate(nil); err != nil {
		t.Fatalf("empty content is valid: %v", err)
	}
}

func TestNewUploader(t *testing.T) {
	u, err := NewUploader(config.MediaConfig{Provider: "disk", Dir: "x", BaseURL: "/media"})
	if err != nil {
		t.Fatalf("disk: %v", err)
	}
	if d, ok := u.(*DiskUploader); !ok || d.Dir != "x" {
		t.Fatalf("unexpected uploader %#v", u)
	}
	u, err = NewUploader(config.MediaConfig{Provider: "imagekit", ImageKit: config.ImageKitConfig{PrivateKey: "k", UploadURL: "https://up"}})
	if err != nil {
		t.Fatalf("imagekit: %v", err)
	}
	if ik, ok := u.(*ImageKitUploader); !ok || ik.PrivateKey != "k" {
		t.Fatalf("unexpected uploader %#v", u)
	}
	if _, err := NewUploader(config.MediaConfig{Provider: "s3"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}
