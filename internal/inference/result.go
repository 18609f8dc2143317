package inference

import (
	"encoding/json"
	"sort"

	"github.com/cardiolab/afdash/internal/analysis"
)

// Result is the decoded JSON body of an analyze response. The typed fields
// cover both endpoints; raw keeps the full document so the record-id adapter
// can try the historically-used key variants.
type Result struct {
	ProbDanger []float64                      `json:"prob_danger"`
	ProbAF     []float64                      `json:"prob_af"`
	RRFeatures map[string]analysis.RRFeatures `json:"rr_features"`

	// Only /predict/ responses carry this.
	MeanPredictedTimeHorizon *float64 `json:"mean_predicted_time_horizon"`

	raw map[string]any
}

// UnmarshalJSON decodes the typed fields and retains the raw document.
func (r *Result) UnmarshalJSON(data []byte) error {
	type alias Result
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Result(a)
	return json.Unmarshal(data, &r.raw)
}

// RecordID resolves the backend record id from whichever field name this
// backend revision used.
func (r *Result) RecordID() *string {
	return analysis.ResolveRecordID(r.raw)
}

// Probabilities returns the per-segment fractions for the given task.
func (r *Result) Probabilities(task analysis.TaskType) []float64 {
	if task == analysis.TaskAFDetection {
		return r.ProbAF
	}
	return r.ProbDanger
}

// FeaturesFor picks the RR feature set to surface: the resolved record's
// entry when present, otherwise the first entry by key so the choice stays
// deterministic. Returns the chosen record id alongside the features.
func (r *Result) FeaturesFor(recordID *string) (string, analysis.RRFeatures) {
	if len(r.RRFeatures) == 0 {
		return "", nil
	}
	if recordID != nil {
		if rr, ok := r.RRFeatures[*recordID]; ok {
			return *recordID, rr
		}
	}
	keys := make([]string, 0, len(r.RRFeatures))
	for k := range r.RRFeatures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], r.RRFeatures[keys[0]]
}
