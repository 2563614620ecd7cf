// Package media validates uploaded images and stores them with a
// configured provider.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/chai2010/webp"
)

// MaxFileSize caps a single uploaded or fetched image.
const MaxFileSize = 5 << 20

var (
	ErrTooLarge        = errors.New("file is larger than 5 MiB")
	ErrUnsupportedType = errors.New("only jpeg, png and webp images are accepted")
	ErrInvalidContent  = errors.New("invalid content")
)

// Detect sniffs data and checks that its header decodes. It returns the
// content type and pixel dimensions.
func Detect(data []byte) (string, image.Config, error) {
	if len(data) > MaxFileSize {
		return "", image.Config{}, ErrTooLarge
	}
	ct := http.DetectContentType(data)
	var cfg image.Config
	var err error
	switch ct {
	case "image/jpeg", "image/png":
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
	case "image/webp":
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	default:
		return "", image.Config{}, ErrUnsupportedType
	}
	if err != nil {
		return "", image.Config{}, fmt.Errorf("%w: corrupt %s: %v", ErrUnsupportedType, ct, err)
	}
	return ct, cfg, nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
