package models

import "time"

// Detection statuses set by operator validation.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
)

// ModelInfo identifies which scoring strategy produced a detection.
type ModelInfo struct {
	Tag     string `json:"tag"`
	Version string `json:"version"`
}

// Coordinates carries either a center point or a bounding box
// [minLng, minLat, maxLng, maxLat]. Both optional.
type Coordinates struct {
	Lat  *float64  `json:"lat,omitempty"`
	Lng  *float64  `json:"lng,omitempty"`
	BBox []float64 `json:"bbox,omitempty"`
}

// Detection is the immutable record produced for one before/after pair.
// Image blobs are excluded from JSON; clients fetch them via the image
// endpoint.
type Detection struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	BeforeImage  []byte `json:"-"`
	AfterImage   []byte `json:"-"`
	OverlayImage []byte `json:"-"`

	Width         int `json:"width"`
	Height        int `json:"height"`
	ChangedPixels int `json:"changed_pixels"`
	TotalPixels   int `json:"total_pixels"`

	Severity      int    `json:"severity"`
	SeverityLevel string `json:"severity_level"`
	Threshold     int    `json:"threshold"`
	Adaptive      bool   `json:"adaptive"`

	Coordinates *Coordinates  `json:"coordinates,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	ModelInfo   ModelInfo     `json:"model_info"`
	Prediction  *ChangeSignal `json:"prediction,omitempty"`

	Status      string     `json:"status"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
}

// AlertEvent is published on the fanout hub when a detection crosses the
// alert threshold, or when an operator validates one. Transient, never
// persisted.
type AlertEvent struct {
	Kind        string       `json:"kind"` // "detection" or "validation"
	ID          string       `json:"id"`
	Severity    int          `json:"severity"`
	Level       string       `json:"level"`
	CreatedAt   time.Time    `json:"created_at"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Message     string       `json:"message"`
}

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ValidateRequest struct {
	Status string `json:"status"` // "confirmed" or "rejected"
	Notes  string `json:"notes,omitempty"`
}
