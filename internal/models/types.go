package models

// ChangedArea is one region flagged by the external inference service.
type ChangedArea struct {
	BBox       [4]int  `json:"bbox"` // x1, y1, x2, y2 in overlay pixel space
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type"` // e.g. "excavation", "vehicle", "equipment"
}

// ChangeSignal is the auxiliary prediction payload returned by a pluggable
// scorer. Opaque to the diff pipeline; the severity scorer folds it in when
// present.
type ChangeSignal struct {
	ChangedAreas     []ChangedArea `json:"changed_areas"`
	ChangePercentage float64       `json:"change_percentage"`
	Confidence       float64       `json:"confidence"`
	ErosionRisk      string        `json:"erosion_risk,omitempty"` // "low", "medium" or "high"
}

// ObjectCount reports how many flagged regions look like machinery on site.
func (s *ChangeSignal) ObjectCount() int {
	n := 0
	for _, a := range s.ChangedAreas {
		if a.Type == "vehicle" || a.Type == "equipment" {
			n++
		}
	}
	return n
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

type HealthStatus struct {
	Status           string `json:"status"`
	InferenceService bool   `json:"inference_service"`
	ActiveClients    int    `json:"active_clients"`
	Uptime           string `json:"uptime"`
	Version          string `json:"version,omitempty"`
}
