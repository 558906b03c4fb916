package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const ThumbnailSize = 128

var ErrEmptyImage = errors.New("empty image")

type Info struct {
	Width     int
	Height    int
	Format    string
	Thumbnail []byte
}

// Inspect decodes raw and renders a PNG thumbnail that fits in ThumbnailSize x ThumbnailSize.
func Inspect(raw []byte) (*Info, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image failed: %w", err)
	}

	bounds := img.Bounds()
	thumb, err := thumbnail(img, ThumbnailSize)
	if err != nil {
		return nil, err
	}
	return &Info{
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Format:    format,
		Thumbnail: thumb,
	}, nil
}

func thumbnail(src image.Image, max int) ([]byte, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > max || h > max {
		if w >= h {
			h = h * max / w
			w = max
		} else {
			w = w * max / h
			h = max
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail failed: %w", err)
	}
	return buf.Bytes(), nil
}

func DataURL(contentType string, raw []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

// ParseDataURL splits a base64 data URL into its MIME type and decoded bytes.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errors.New("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("malformed data url")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, errors.New("data url is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url failed: %w", err)
	}
	return contentType, data, nil
}
