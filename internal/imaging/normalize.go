package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxWidth bounds the working resolution of the pipeline.
const DefaultMaxWidth = 1024

var (
	// ErrDecode marks corrupt or unsupported image data. Not recoverable
	// for the given input.
	ErrDecode = errors.New("image decode failed")

	// ErrDimensionMismatch marks a before/after pair whose dimensions still
	// disagree after normalization, i.e. the inputs are not comparable.
	ErrDimensionMismatch = errors.New("image dimensions do not match")
)

// Normalize decodes both payloads and resizes each to width
// min(beforeNativeWidth, maxWidth), preserving aspect ratio, so that the
// pair can be compared pixel by pixel. Both results use an explicit RGBA
// layout. Pairs with different native aspect ratios end up with different
// heights and are rejected with ErrDimensionMismatch.
func Normalize(beforeRaw, afterRaw []byte, maxWidth int) (before, after *image.RGBA, err error) {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}

	beforeSrc, err := decode(beforeRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("before image: %w", err)
	}
	afterSrc, err := decode(afterRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("after image: %w", err)
	}

	width := beforeSrc.Bounds().Dx()
	if width > maxWidth {
		width = maxWidth
	}

	before = scaleToWidth(beforeSrc, width)
	after = scaleToWidth(afterSrc, width)

	if before.Bounds() != after.Bounds() {
		return nil, nil, fmt.Errorf("%w: before %dx%d, after %dx%d",
			ErrDimensionMismatch,
			before.Bounds().Dx(), before.Bounds().Dy(),
			after.Bounds().Dx(), after.Bounds().Dy())
	}
	return before, after, nil
}

func decode(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	return img, nil
}

func scaleToWidth(src image.Image, width int) *image.RGBA {
	sb := src.Bounds()
	height := int(math.Round(float64(width) * float64(sb.Dy()) / float64(sb.Dx())))
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if sb.Dx() == width && sb.Dy() == height {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return dst
}

// EncodePNG renders a pixel buffer to PNG bytes. Encoding a valid in-memory
// buffer cannot fail short of running out of memory.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
