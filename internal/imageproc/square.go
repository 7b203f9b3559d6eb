// Package imageproc normalizes arbitrary images into fixed-size JPEG squares.
package imageproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	DefaultSize    = 500
	DefaultQuality = 85

	ContentTypeJPEG = "image/jpeg"
)

var (
	ErrEmptyImage       = errors.New("image is empty")
	ErrUnsupportedImage = errors.New("unsupported image")
)

// Result is a normalized image ready for upload.
type Result struct {
	Data        []byte
	Width       int
	Height      int
	ContentType string
}

// Transformer turns raw image bytes into a normalized square.
type Transformer interface {
	Square(ctx context.Context, data []byte) (Result, error)
}

// Squarer crops to the center and scales to Size x Size, like CSS object-fit: cover.
type Squarer struct {
	Size    int
	Quality int
}

// NewSquarer returns a Squarer, falling back to defaults for non-positive values.
func NewSquarer(size, quality int) *Squarer {
	if size <= 0 {
		size = DefaultSize
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Squarer{Size: size, Quality: quality}
}

var _ Transformer = (*Squarer)(nil)

func (s *Squarer) Square(ctx context.Context, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	dst := imaging.Fill(src, s.Size, s.Size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(s.Quality)); err != nil {
		return Result{}, fmt.Errorf("encode jpeg: %w", err)
	}

	b := dst.Bounds()
	return Result{
		Data:        buf.Bytes(),
		Width:       b.Dx(),
		Height:      b.Dy(),
		ContentType: ContentTypeJPEG,
	}, nil
}
