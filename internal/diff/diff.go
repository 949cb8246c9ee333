package diff

import (
	"errors"
	"fmt"
	"image"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/imaging"
)

// DefaultThreshold is the baseline per-pixel intensity threshold.
const DefaultThreshold = 30

// Overlay color for changed pixels: red at ~70% opacity, composited over
// the "after" image.
const (
	overlayAlpha = 180
	overlayRed   = 255
)

// ErrThresholdRange marks a threshold outside [0, 255].
var ErrThresholdRange = errors.New("threshold out of range")

// Result summarizes one pixel-difference pass.
type Result struct {
	Overlay       []byte // PNG: after image with changed pixels tinted red
	Width         int
	Height        int
	ChangedPixels int
	TotalPixels   int
}

// ChangeRatio is the changed-area fraction in [0, 1].
func (r *Result) ChangeRatio() float64 {
	if r.TotalPixels == 0 {
		return 0
	}
	return float64(r.ChangedPixels) / float64(r.TotalPixels)
}

// Compute runs the fixed-threshold diff: a pixel is changed when the mean
// absolute difference across R, G and B (alpha ignored) is at least
// threshold. Pure function; identical inputs yield identical results.
func Compute(before, after *image.RGBA, threshold int) (*Result, error) {
	return compute(before, after, threshold, nil)
}

// ComputeAdaptive runs the local-variance variant: the effective threshold
// for each pixel is the base threshold plus a fraction of the 3x3
// neighborhood intensity variance in the before image. Less sensitive in
// textured regions, more sensitive in flat ones. Same contract as Compute.
func ComputeAdaptive(before, after *image.RGBA, threshold int) (*Result, error) {
	return compute(before, after, threshold, adaptiveThresholds)
}

type thresholdFn func(before *image.RGBA, base int) []int

func compute(before, after *image.RGBA, threshold int, local thresholdFn) (*Result, error) {
	if threshold < 0 || threshold > 255 {
		return nil, fmt.Errorf("%w: %d", ErrThresholdRange, threshold)
	}
	if before.Bounds() != after.Bounds() {
		// Unreachable when inputs come from imaging.Normalize.
		return nil, fmt.Errorf("%w: before %v, after %v",
			imaging.ErrDimensionMismatch, before.Bounds(), after.Bounds())
	}

	bounds := before.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	total := width * height

	var thresholds []int
	if local != nil {
		thresholds = local(before, threshold)
	}

	overlay := image.NewRGBA(image.Rect(0, 0, width, height))
	changed := 0

	for y := 0; y < height; y++ {
		bRow := before.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		aRow := after.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		oRow := overlay.PixOffset(0, y)

		for x := 0; x < width; x++ {
			bi := bRow + x*4
			ai := aRow + x*4
			oi := oRow + x*4

			d := absDiff(after.Pix[ai], before.Pix[bi]) +
				absDiff(after.Pix[ai+1], before.Pix[bi+1]) +
				absDiff(after.Pix[ai+2], before.Pix[bi+2])
			mean := d / 3

			thr := threshold
			if thresholds != nil {
				thr = thresholds[y*width+x]
			}

			if mean >= thr {
				changed++
				// Blend red@overlayAlpha over the after pixel.
				inv := 255 - overlayAlpha
				overlay.Pix[oi] = uint8((overlayRed*overlayAlpha + int(after.Pix[ai])*inv) / 255)
				overlay.Pix[oi+1] = uint8(int(after.Pix[ai+1]) * inv / 255)
				overlay.Pix[oi+2] = uint8(int(after.Pix[ai+2]) * inv / 255)
			} else {
				overlay.Pix[oi] = after.Pix[ai]
				overlay.Pix[oi+1] = after.Pix[ai+1]
				overlay.Pix[oi+2] = after.Pix[ai+2]
			}
			overlay.Pix[oi+3] = 255
		}
	}

	encoded, err := imaging.EncodePNG(overlay)
	if err != nil {
		return nil, err
	}

	return &Result{
		Overlay:       encoded,
		Width:         width,
		Height:        height,
		ChangedPixels: changed,
		TotalPixels:   total,
	}, nil
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
