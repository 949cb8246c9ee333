package detection

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	records []*models.Detection
	fail    bool
}

func (s *memStore) InsertDetection(_ context.Context, d *models.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.records = append(s.records, d)
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []models.AlertEvent
}

func (p *memPublisher) Publish(ev models.AlertEvent) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return 1
}

type stubPredictor struct {
	sig *models.ChangeSignal
	err error
}

func (p *stubPredictor) Predict(context.Context, []byte, []byte) (*models.ChangeSignal, error) {
	return p.sig, p.err
}

func encodePNG(t *testing.T, w, h int, fill color.RGBA, block *color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	if block != nil {
		for y := 0; y < h/2; y++ {
			for x := 0; x < w/2; x++ {
				img.SetRGBA(x, y, *block)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func quarterChangedPair(t *testing.T) (before, after []byte) {
	gray := color.RGBA{100, 100, 100, 255}
	red := color.RGBA{250, 40, 40, 255}
	return encodePNG(t, 8, 8, gray, nil), encodePNG(t, 8, 8, gray, &red)
}

func TestRunPersistsAndAlerts(t *testing.T) {
	store := &memStore{}
	pub := &memPublisher{}
	d := New(Options{Store: store, Publisher: pub})

	before, after := quarterChangedPair(t)
	record, err := d.Run(context.Background(), Request{Before: before, After: after, Notes: "pit expansion"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if record.ID == "" {
		t.Error("record id not generated")
	}
	if record.CreatedAt.IsZero() {
		t.Error("record timestamp not set")
	}
	if record.ChangedPixels != 16 || record.TotalPixels != 64 {
		t.Errorf("expected 16/64 changed, got %d/%d", record.ChangedPixels, record.TotalPixels)
	}
	if record.Severity != 25 {
		t.Errorf("expected severity 25, got %d", record.Severity)
	}
	if record.Status != models.StatusPending {
		t.Errorf("expected pending status, got %s", record.Status)
	}
	if len(record.OverlayImage) == 0 || len(record.BeforeImage) == 0 || len(record.AfterImage) == 0 {
		t.Error("image artifacts missing from record")
	}

	if len(store.records) != 1 || store.records[0].ID != record.ID {
		t.Errorf("record not persisted: %+v", store.records)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Kind != "detection" || ev.ID != record.ID || ev.Severity != 25 {
		t.Errorf("unexpected alert event: %+v", ev)
	}
}

func TestRunBelowAlertThresholdStaysQuiet(t *testing.T) {
	store := &memStore{}
	pub := &memPublisher{}
	d := New(Options{Store: store, Publisher: pub})

	gray := color.RGBA{100, 100, 100, 255}
	identical := encodePNG(t, 8, 8, gray, nil)

	record, err := d.Run(context.Background(), Request{Before: identical, After: identical})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if record.ChangedPixels != 0 || record.Severity != 0 {
		t.Errorf("identical pair should yield zero change, got %d changed severity %d",
			record.ChangedPixels, record.Severity)
	}
	if len(store.records) != 1 {
		t.Error("quiet detections must still be persisted")
	}
	if len(pub.events) != 0 {
		t.Errorf("no alert expected, got %d", len(pub.events))
	}
}

func TestRunPredictorFailureFallsBack(t *testing.T) {
	store := &memStore{}
	pub := &memPublisher{}
	d := New(Options{
		Store:     store,
		Publisher: pub,
		Predictor: &stubPredictor{err: errors.New("sidecar down")},
	})

	before, after := quarterChangedPair(t)
	record, err := d.Run(context.Background(), Request{Before: before, After: after})
	if err != nil {
		t.Fatalf("Run should survive predictor failure: %v", err)
	}
	if record.Prediction != nil {
		t.Error("failed prediction must not appear on the record")
	}
	if record.Severity != 25 {
		t.Errorf("expected baseline severity 25, got %d", record.Severity)
	}
	if record.ModelInfo.Tag != "pixel-diff" {
		t.Errorf("expected baseline model tag, got %s", record.ModelInfo.Tag)
	}
}

func TestRunFusesPredictorSignal(t *testing.T) {
	sig := &models.ChangeSignal{
		ChangedAreas: []models.ChangedArea{
			{Type: "vehicle", Confidence: 0.9},
			{Type: "vehicle", Confidence: 0.8},
			{Type: "equipment", Confidence: 0.7},
		},
		ChangePercentage: 25,
		Confidence:       0.85,
		ErosionRisk:      "high",
	}
	store := &memStore{}
	pub := &memPublisher{}
	d := New(Options{Store: store, Publisher: pub, Predictor: &stubPredictor{sig: sig}})

	before, after := quarterChangedPair(t)
	record, err := d.Run(context.Background(), Request{Before: before, After: after})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// ratio 0.25 -> 2 pts, 3 machinery -> 1 pt, high risk -> 2 pts = 5 -> high.
	if record.SeverityLevel != "high" || record.Severity != 70 {
		t.Errorf("expected fused high/70, got %s/%d", record.SeverityLevel, record.Severity)
	}
	if record.Prediction == nil || len(record.Prediction.ChangedAreas) != 3 {
		t.Error("prediction payload missing from record")
	}
	if record.ModelInfo.Tag != "pixel-diff+inference" {
		t.Errorf("expected fused model tag, got %s", record.ModelInfo.Tag)
	}
}

func TestRunPersistenceFailure(t *testing.T) {
	store := &memStore{fail: true}
	pub := &memPublisher{}
	d := New(Options{Store: store, Publisher: pub})

	before, after := quarterChangedPair(t)
	if _, err := d.Run(context.Background(), Request{Before: before, After: after}); err == nil {
		t.Fatal("expected persistence error")
	}
	if len(pub.events) != 0 {
		t.Error("no alert may be published when persistence fails")
	}
}

func TestRunThresholdOverride(t *testing.T) {
	store := &memStore{}
	d := New(Options{Store: store})

	before, after := quarterChangedPair(t)

	// Delta between gray 100 and red (250,40,40) has mean |150|+|60|+|60| / 3 = 90.
	strict := 200
	record, err := d.Run(context.Background(), Request{Before: before, After: after, Threshold: &strict})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if record.ChangedPixels != 0 {
		t.Errorf("threshold 200 should suppress all changes, got %d", record.ChangedPixels)
	}
	if record.Threshold != strict {
		t.Errorf("record should carry the override threshold, got %d", record.Threshold)
	}
}

func TestRunRejectsCorruptInput(t *testing.T) {
	store := &memStore{}
	pub := &memPublisher{}
	d := New(Options{Store: store, Publisher: pub})

	_, after := quarterChangedPair(t)
	if _, err := d.Run(context.Background(), Request{Before: []byte("garbage"), After: after}); err == nil {
		t.Fatal("expected decode error")
	}
	if len(store.records) != 0 || len(pub.events) != 0 {
		t.Error("failed request must not persist or publish anything")
	}
}
