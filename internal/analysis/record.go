package analysis

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Validation failures returned by the record builders. These block the save
// without touching the store.
var (
	ErrMissingZip         = errors.New("records zip is required before saving")
	ErrUnresolvedRisk     = errors.New("risk is not resolved; run the analysis first")
	ErrMissingProbability = errors.New("probability is not resolved; run the analysis first")
	ErrUnresolvedDecision = errors.New("detection decision is not resolved; run the detection first")
)

// recordIDKeys is the priority order of backend field names historically
// used for the record identifier.
var recordIDKeys = []string{"record_ids", "recordIds", "record_id", "recordId"}

// ResolveRecordID extracts the backend record id from a decoded response
// document. It tries each historical key in priority order; an array value
// yields its first element, a scalar is used directly, and absence of all
// keys yields nil.
func ResolveRecordID(doc map[string]any) *string {
	for _, key := range recordIDKeys {
		raw, ok := doc[key]
		if !ok || raw == nil {
			continue
		}
		if arr, isArr := raw.([]any); isArr {
			if len(arr) == 0 {
				return nil
			}
			raw = arr[0]
		}
		if s := scalarID(raw); s != "" {
			return &s
		}
		return nil
	}
	return nil
}

func scalarID(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}

// resolveUserID prefers the live session's user id, then the caller-supplied
// fallback. The empty string stands for null; the literal "undefined" is
// never stored.
func resolveUserID(session, fallback string) string {
	if session != "" && session != "undefined" {
		return session
	}
	if fallback != "" && fallback != "undefined" {
		return fallback
	}
	return ""
}

// PredictionInputs carries everything the prediction record builder needs.
type PredictionInputs struct {
	MetadataFileName string
	ZipFileName      string
	Risk             string
	Probability      *int
	RecordID         *string
	SessionUserID    string
	FallbackUserID   string
	Now              time.Time
}

// BuildPredictionRecord assembles the persisted record for an early
// prediction. It fails with a validation error when the zip, resolved risk,
// or probability is missing.
func BuildPredictionRecord(in PredictionInputs) (*Record, error) {
	if in.ZipFileName == "" {
		return nil, ErrMissingZip
	}
	if in.Risk == "" {
		return nil, ErrUnresolvedRisk
	}
	if in.Probability == nil {
		return nil, ErrMissingProbability
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	return &Record{
		ID:               uuid.New(),
		UserID:           resolveUserID(in.SessionUserID, in.FallbackUserID),
		Type:             TypePrediction,
		Date:             now.Format("1/2/2006, 3:04:05 PM"),
		CreatedAt:        now,
		RecordID:         in.RecordID,
		FileName:         in.MetadataFileName,
		MetadataFileName: in.MetadataFileName,
		ZipName:          in.ZipFileName,
		Probability:      in.Probability,
		Risk:             in.Risk,
	}, nil
}

// DetectionInputs carries everything the detection record builder needs.
type DetectionInputs struct {
	ZipFileName    string
	Decision       Decision
	Probabilities  []int // per-segment percents
	RecordID       *string
	SessionUserID  string
	FallbackUserID string
	Now            time.Time
}

// BuildDetectionRecord assembles the persisted record for a detection run.
// The headline probability is the rounded mean of the per-segment percents;
// an empty segment list leaves it nil rather than 0.
func BuildDetectionRecord(in DetectionInputs) (*Record, error) {
	if in.ZipFileName == "" {
		return nil, ErrMissingZip
	}
	if in.Decision == "" {
		return nil, ErrUnresolvedDecision
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	detected := in.Decision == DecisionYes

	return &Record{
		ID:            uuid.New(),
		UserID:        resolveUserID(in.SessionUserID, in.FallbackUserID),
		Type:          TypeDetection,
		Date:          now.Format("1/2/2006, 3:04:05 PM"),
		CreatedAt:     now,
		RecordID:      in.RecordID,
		FileName:      in.ZipFileName,
		ZipName:       in.ZipFileName,
		Probability:   MeanPercent(in.Probabilities),
		AFDetected:    &detected,
		Probabilities: in.Probabilities,
	}, nil
}

// MeanPercent returns the rounded mean of per-segment percents, or nil for
// an empty list.
func MeanPercent(percents []int) *int {
	if len(percents) == 0 {
		return nil
	}
	sum := 0
	for _, p := range percents {
		sum += p
	}
	mean := int(math.Round(float64(sum) / float64(len(percents))))
	return &mean
}
