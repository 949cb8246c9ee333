package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeSameSize(t *testing.T) {
	before := encodePNG(t, 100, 50, color.RGBA{10, 10, 10, 255})
	after := encodePNG(t, 100, 50, color.RGBA{200, 200, 200, 255})

	b, a, err := Normalize(before, after, 1024)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if b.Bounds() != a.Bounds() {
		t.Errorf("bounds differ: %v vs %v", b.Bounds(), a.Bounds())
	}
	if b.Bounds().Dx() != 100 || b.Bounds().Dy() != 50 {
		t.Errorf("expected 100x50, got %dx%d", b.Bounds().Dx(), b.Bounds().Dy())
	}
}

func TestNormalizeDownscalesToMaxWidth(t *testing.T) {
	before := encodePNG(t, 2048, 1024, color.RGBA{10, 10, 10, 255})
	after := encodePNG(t, 2048, 1024, color.RGBA{200, 200, 200, 255})

	b, a, err := Normalize(before, after, 512)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if b.Bounds().Dx() != 512 || b.Bounds().Dy() != 256 {
		t.Errorf("expected 512x256, got %dx%d", b.Bounds().Dx(), b.Bounds().Dy())
	}
	if a.Bounds() != b.Bounds() {
		t.Errorf("after bounds %v differ from before %v", a.Bounds(), b.Bounds())
	}
}

// Different native resolutions but the same aspect ratio normalize to a
// common grid sized by the before image.
func TestNormalizeResolutionsAligned(t *testing.T) {
	before := encodePNG(t, 200, 100, color.RGBA{10, 10, 10, 255})
	after := encodePNG(t, 400, 200, color.RGBA{200, 200, 200, 255})

	b, a, err := Normalize(before, after, 1024)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if b.Bounds().Dx() != 200 || b.Bounds().Dy() != 100 {
		t.Errorf("expected 200x100, got %dx%d", b.Bounds().Dx(), b.Bounds().Dy())
	}
	if a.Bounds() != b.Bounds() {
		t.Errorf("after bounds %v differ from before %v", a.Bounds(), b.Bounds())
	}
}

func TestNormalizeAspectMismatch(t *testing.T) {
	before := encodePNG(t, 100, 100, color.RGBA{10, 10, 10, 255})
	after := encodePNG(t, 100, 40, color.RGBA{200, 200, 200, 255})

	_, _, err := Normalize(before, after, 1024)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestNormalizeDecodeError(t *testing.T) {
	valid := encodePNG(t, 10, 10, color.RGBA{0, 0, 0, 255})

	cases := [][]byte{
		nil,
		[]byte("not an image"),
		valid[:8], // truncated header
	}
	for i, corrupt := range cases {
		if _, _, err := Normalize(corrupt, valid, 1024); !errors.Is(err, ErrDecode) {
			t.Errorf("case %d before: expected ErrDecode, got %v", i, err)
		}
		if _, _, err := Normalize(valid, corrupt, 1024); !errors.Is(err, ErrDecode) {
			t.Errorf("case %d after: expected ErrDecode, got %v", i, err)
		}
	}
}

func TestNormalizeMixedFormats(t *testing.T) {
	before := encodePNG(t, 60, 30, color.RGBA{10, 10, 10, 255})

	img := image.NewRGBA(image.Rect(0, 0, 60, 30))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}

	b, a, err := Normalize(before, buf.Bytes(), 1024)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if b.Bounds() != a.Bounds() {
		t.Errorf("bounds differ: %v vs %v", b.Bounds(), a.Bounds())
	}
}

func TestNormalizeZeroMaxWidthUsesDefault(t *testing.T) {
	before := encodePNG(t, 2000, 1000, color.RGBA{0, 0, 0, 255})
	after := encodePNG(t, 2000, 1000, color.RGBA{255, 255, 255, 255})

	b, _, err := Normalize(before, after, 0)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if b.Bounds().Dx() != DefaultMaxWidth {
		t.Errorf("expected default width %d, got %d", DefaultMaxWidth, b.Bounds().Dx())
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 5, 7))
	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode round trip: %v", err)
	}
	if decoded.Bounds().Dx() != 5 || decoded.Bounds().Dy() != 7 {
		t.Errorf("unexpected bounds %v", decoded.Bounds())
	}
}
