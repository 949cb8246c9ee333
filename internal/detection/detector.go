// Package detection runs the change-detection pipeline: normalize both
// images, diff them, score severity, build the record, persist it, and
// publish an alert when severity crosses the configured threshold.
package detection

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/diff"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/imaging"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/services"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/severity"
)

// DefaultAlertThreshold is the numeric severity at or above which an alert
// event is published. Tunable via config, not a protocol requirement.
const DefaultAlertThreshold = 5

// Predictor is the pluggable auxiliary scorer. Implementations may wrap a
// remote inference service; absence or failure never blocks the baseline
// pipeline.
type Predictor interface {
	Predict(ctx context.Context, before, after []byte) (*models.ChangeSignal, error)
}

// Store persists completed detections. The pipeline only needs insert.
type Store interface {
	InsertDetection(ctx context.Context, d *models.Detection) error
}

// Publisher delivers alert events to live subscribers.
type Publisher interface {
	Publish(ev models.AlertEvent) int
}

// Options configures a Detector. Zero values fall back to package defaults.
type Options struct {
	MaxWidth       int
	Threshold      int
	AlertThreshold int

	Predictor Predictor // optional
	Store     Store
	Publisher Publisher
	Metrics   *services.Metrics
}

// Detector is safe for concurrent use; each Run call owns its buffers.
type Detector struct {
	maxWidth       int
	threshold      int
	alertThreshold int

	predictor Predictor
	store     Store
	publisher Publisher
	metrics   *services.Metrics
}

func New(opts Options) *Detector {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = imaging.DefaultMaxWidth
	}
	if opts.Threshold <= 0 {
		opts.Threshold = diff.DefaultThreshold
	}
	if opts.AlertThreshold <= 0 {
		opts.AlertThreshold = DefaultAlertThreshold
	}
	if opts.Metrics == nil {
		opts.Metrics = services.NewMetrics()
	}
	return &Detector{
		maxWidth:       opts.MaxWidth,
		threshold:      opts.Threshold,
		alertThreshold: opts.AlertThreshold,
		predictor:      opts.Predictor,
		store:          opts.Store,
		publisher:      opts.Publisher,
		metrics:        opts.Metrics,
	}
}

// Request is one detection job.
type Request struct {
	Before []byte
	After  []byte

	Threshold   *int // overrides the configured diff threshold
	Adaptive    bool // use the local-variance thresholding variant
	Coordinates *models.Coordinates
	Notes       string
}

// Run executes the full pipeline. On failure no partial record exists
// anywhere: persistence happens only after the record is fully built.
func (d *Detector) Run(ctx context.Context, req Request) (*models.Detection, error) {
	start := time.Now()

	threshold := d.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	before, after, err := imaging.Normalize(req.Before, req.After, d.maxWidth)
	if err != nil {
		d.metrics.IncrementErrors()
		return nil, err
	}

	var result *diff.Result
	if req.Adaptive {
		result, err = diff.ComputeAdaptive(before, after, threshold)
	} else {
		result, err = diff.Compute(before, after, threshold)
	}
	if err != nil {
		d.metrics.IncrementErrors()
		return nil, err
	}

	// Auxiliary prediction is best effort: failures are logged and the
	// pipeline proceeds with baseline-only severity.
	var signal *models.ChangeSignal
	if d.predictor != nil {
		signal, err = d.predictor.Predict(ctx, req.Before, req.After)
		if err != nil {
			log.Printf("auxiliary scorer unavailable, using baseline severity: %v", err)
			signal = nil
		}
	}

	level, score := severity.Fuse(result.ChangedPixels, result.TotalPixels, signal)

	record, err := BuildRecord(before, after, result, score, level, Metadata{
		Threshold:   threshold,
		Adaptive:    req.Adaptive,
		Coordinates: req.Coordinates,
		Notes:       req.Notes,
		Prediction:  signal,
	})
	if err != nil {
		d.metrics.IncrementErrors()
		return nil, err
	}

	if d.store != nil {
		if err := d.store.InsertDetection(ctx, record); err != nil {
			d.metrics.IncrementErrors()
			return nil, fmt.Errorf("persist detection: %w", err)
		}
	}

	d.metrics.IncrementDetections()
	d.metrics.RecordLatency(time.Since(start))

	if record.Severity >= d.alertThreshold && d.publisher != nil {
		n := d.publisher.Publish(models.AlertEvent{
			Kind:        "detection",
			ID:          record.ID,
			Severity:    record.Severity,
			Level:       record.SeverityLevel,
			CreatedAt:   record.CreatedAt,
			Coordinates: record.Coordinates,
			Message: fmt.Sprintf("change detected: %d%% of area affected (%s)",
				record.Severity, record.SeverityLevel),
		})
		d.metrics.IncrementAlerts()
		log.Printf("Alert published for detection %s (severity %d) to %d subscribers",
			record.ID, record.Severity, n)
	}

	return record, nil
}

// AlertThreshold exposes the configured publish threshold.
func (d *Detector) AlertThreshold() int {
	return d.alertThreshold
}
