package analysis

import (
	"time"

	"github.com/google/uuid"
)

// TaskType selects the interpretation narrative for a backend result.
type TaskType string

const (
	TaskEarlyPrediction TaskType = "early_prediction"
	TaskAFDetection     TaskType = "af_detection"
)

// RecordType is the persisted record's partition key on the dashboard.
type RecordType string

const (
	TypePrediction RecordType = "prediction"
	TypeDetection  RecordType = "detection"
)

// Risk tier labels. Risky/Safe is the current two-tier scheme;
// High/Moderate/Low is the legacy three-tier scheme kept for old records.
const (
	RiskRisky    = "Risky"
	RiskSafe     = "Safe"
	RiskHigh     = "High"
	RiskModerate = "Moderate"
	RiskLow      = "Low"
)

// Decision is the detection verdict as shown to the user.
type Decision string

const (
	DecisionYes Decision = "Yes"
	DecisionNo  Decision = "No"
)

// RRFeatures holds the per-record feature map returned by the inference
// backend. Keys vary by model revision (mean_rr, estimated_hr_bpm, sdnn,
// rmssd, cvrr, ...); the map round-trips verbatim into report requests.
type RRFeatures map[string]float64

// MeanRR returns the mean RR interval in milliseconds, if present.
func (rr RRFeatures) MeanRR() (float64, bool) {
	v, ok := rr["mean_rr"]
	return v, ok
}

// EstimatedHR returns the estimated heart rate in bpm, if present.
func (rr RRFeatures) EstimatedHR() (float64, bool) {
	v, ok := rr["estimated_hr_bpm"]
	return v, ok
}

// Record is one completed analysis as persisted to the records store.
// Rows are immutable once saved; re-analysis inserts a new row.
type Record struct {
	ID               uuid.UUID  `json:"id"`
	UserID           string     `json:"user_id"`
	Type             RecordType `json:"type"`
	Date             string     `json:"date"`
	CreatedAt        time.Time  `json:"created_at"`
	RecordID         *string    `json:"record_id"`
	FileName         string     `json:"file_name"`
	MetadataFileName string     `json:"metadata_file_name,omitempty"`
	ZipName          string     `json:"zip_name"`

	// Nil when the backend returned no per-segment probabilities for a
	// detection; renders as a placeholder, never as 0%.
	Probability *int `json:"probability"`

	// Prediction only.
	Risk string `json:"risk,omitempty"`

	// Detection only.
	AFDetected    *bool `json:"af_detected,omitempty"`
	Probabilities []int `json:"probabilities,omitempty"`
}

// Alerting reports whether this record counts toward the dashboard's
// high-risk summary.
func (r Record) Alerting() bool {
	switch r.Type {
	case TypePrediction:
		return r.Risk == RiskRisky || r.Risk == RiskHigh
	case TypeDetection:
		return r.AFDetected != nil && *r.AFDetected
	}
	return false
}
