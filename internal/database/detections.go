package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
)

// ErrNotFound is returned when no row matches the requested id.
var ErrNotFound = errors.New("not found")

// Store wraps the connection pool with the queries the handlers need.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertDetection persists a completed record. The record is immutable;
// only the validation status may change later.
func (s *Store) InsertDetection(ctx context.Context, d *models.Detection) error {
	coords, err := marshalNullable(d.Coordinates)
	if err != nil {
		return fmt.Errorf("encode coordinates: %w", err)
	}
	prediction, err := marshalNullable(d.Prediction)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO detections (
			id, created_at, before_image, after_image, overlay_image,
			width, height, changed_pixels, total_pixels,
			severity, severity_level, threshold, adaptive,
			coordinates, notes, model_tag, model_version, prediction, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		d.ID, d.CreatedAt, d.BeforeImage, d.AfterImage, d.OverlayImage,
		d.Width, d.Height, d.ChangedPixels, d.TotalPixels,
		d.Severity, d.SeverityLevel, d.Threshold, d.Adaptive,
		coords, d.Notes, d.ModelInfo.Tag, d.ModelInfo.Version, prediction, d.Status,
	)
	if err != nil {
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

// ListDetections returns records newest first, without image blobs.
func (s *Store) ListDetections(ctx context.Context, limit int) ([]models.Detection, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, width, height, changed_pixels, total_pixels,
		       severity, severity_level, threshold, adaptive,
		       coordinates, notes, model_tag, model_version, prediction,
		       status, validated_at
		FROM detections
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	var out []models.Detection
	for rows.Next() {
		d, err := scanDetection(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// GetDetection fetches one record including its image blobs.
func (s *Store) GetDetection(ctx context.Context, id string) (*models.Detection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, width, height, changed_pixels, total_pixels,
		       severity, severity_level, threshold, adaptive,
		       coordinates, notes, model_tag, model_version, prediction,
		       status, validated_at,
		       before_image, after_image, overlay_image
		FROM detections WHERE id = $1`, id)

	var before, after, overlay []byte
	d, err := scanDetection(func(dest ...interface{}) error {
		return row.Scan(append(dest, &before, &after, &overlay)...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.BeforeImage = before
	d.AfterImage = after
	d.OverlayImage = overlay
	return d, nil
}

// SetDetectionStatus records the operator's verdict.
func (s *Store) SetDetectionStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE detections SET status = $1, validated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update detection status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDetection(scan func(dest ...interface{}) error) (*models.Detection, error) {
	var d models.Detection
	var coords, prediction []byte
	var validatedAt sql.NullTime

	err := scan(
		&d.ID, &d.CreatedAt, &d.Width, &d.Height, &d.ChangedPixels, &d.TotalPixels,
		&d.Severity, &d.SeverityLevel, &d.Threshold, &d.Adaptive,
		&coords, &d.Notes, &d.ModelInfo.Tag, &d.ModelInfo.Version, &prediction,
		&d.Status, &validatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(coords) > 0 {
		d.Coordinates = &models.Coordinates{}
		if err := json.Unmarshal(coords, d.Coordinates); err != nil {
			return nil, fmt.Errorf("decode coordinates: %w", err)
		}
	}
	if len(prediction) > 0 {
		d.Prediction = &models.ChangeSignal{}
		if err := json.Unmarshal(prediction, d.Prediction); err != nil {
			return nil, fmt.Errorf("decode prediction: %w", err)
		}
	}
	if validatedAt.Valid {
		d.ValidatedAt = &validatedAt.Time
	}
	return &d, nil
}

func marshalNullable(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *models.Coordinates:
		if t == nil {
			return nil, nil
		}
	case *models.ChangeSignal:
		if t == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
