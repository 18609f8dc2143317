package analysis

import "fmt"

// Interpretation is the set of plain-language fragments rendered under an
// analysis result. Probability narration depends on the task; the RR and
// heart-rate lines are context only and never drive the decision.
type Interpretation struct {
	ProbabilityText string `json:"probability_text"`
	MeanRRText      string `json:"mean_rr_text"`
	HeartRateText   string `json:"heart_rate_text"`
}

// Interpretation thresholds on the percent scale.
const (
	predictionNarrativePercent = 53
	detectionNarrativePercent  = 65
)

// Interpret turns RR features plus a headline probability (percent scale)
// into display text. A nil feature map yields an empty Interpretation so
// callers can skip the feature card without a nil check on every field.
func Interpret(rr RRFeatures, probabilityPercent float64, task TaskType) Interpretation {
	if rr == nil {
		return Interpretation{}
	}

	var out Interpretation

	switch task {
	case TaskEarlyPrediction:
		if probabilityPercent >= predictionNarrativePercent {
			out.ProbabilityText = "The model flags this segment as higher risk based on RR patterns."
		} else {
			out.ProbabilityText = "The model flags this segment as lower risk based on RR patterns."
		}
	case TaskAFDetection:
		if probabilityPercent >= detectionNarrativePercent {
			out.ProbabilityText = "AF Detected."
		} else {
			out.ProbabilityText = "No AF Detected."
		}
	}

	if meanRR, ok := rr.MeanRR(); ok {
		out.MeanRRText = fmt.Sprintf("Average RR interval for the analysed segment is %.1f ms.", meanRR)
	} else {
		out.MeanRRText = "Average RR interval could not be computed."
	}

	if hr, ok := rr.EstimatedHR(); ok {
		switch {
		case hr < 60:
			out.HeartRateText = fmt.Sprintf("Estimated heart rate is %.1f bpm (context: slower heartbeat).", hr)
		case hr <= 100:
			out.HeartRateText = fmt.Sprintf("Estimated heart rate is %.1f bpm (context: typical resting range).", hr)
		default:
			out.HeartRateText = fmt.Sprintf("Estimated heart rate is %.1f bpm (context: faster heartbeat).", hr)
		}
	} else {
		out.HeartRateText = "Heart rate could not be estimated from RR intervals."
	}

	return out
}
