package detection

import (
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/diff"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/imaging"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/severity"
)

// Scoring strategy identifiers stamped into each record.
const (
	modelTagBaseline = "pixel-diff"
	modelTagFused    = "pixel-diff+inference"
	modelVersion     = "1.0"
)

// Metadata carries the request-scoped fields of a record.
type Metadata struct {
	Threshold   int
	Adaptive    bool
	Coordinates *models.Coordinates
	Notes       string
	Prediction  *models.ChangeSignal
}

// BuildRecord assembles a complete, self-consistent detection record:
// fresh id, wall-clock timestamp, normalized images re-encoded as PNG.
// Pure construction; persistence is the caller's concern.
func BuildRecord(before, after *image.RGBA, result *diff.Result,
	score int, level severity.Level, meta Metadata) (*models.Detection, error) {

	beforePNG, err := imaging.EncodePNG(before)
	if err != nil {
		return nil, err
	}
	afterPNG, err := imaging.EncodePNG(after)
	if err != nil {
		return nil, err
	}

	info := models.ModelInfo{Tag: modelTagBaseline, Version: modelVersion}
	if meta.Prediction != nil {
		info.Tag = modelTagFused
	}

	return &models.Detection{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),

		BeforeImage:  beforePNG,
		AfterImage:   afterPNG,
		OverlayImage: result.Overlay,

		Width:         result.Width,
		Height:        result.Height,
		ChangedPixels: result.ChangedPixels,
		TotalPixels:   result.TotalPixels,

		Severity:      score,
		SeverityLevel: string(level),
		Threshold:     meta.Threshold,
		Adaptive:      meta.Adaptive,

		Coordinates: meta.Coordinates,
		Notes:       meta.Notes,
		ModelInfo:   info,
		Prediction:  meta.Prediction,

		Status: models.StatusPending,
	}, nil
}
