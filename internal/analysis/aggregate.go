package analysis

import "sort"

// TrendPoint is one chart point; every record contributes exactly one so the
// x-axis stays aligned with the record list.
type TrendPoint struct {
	Label       string `json:"label"`
	Probability int    `json:"probability"`
	Risk        string `json:"risk,omitempty"`
}

// Summary holds the per-partition headline counts.
type Summary struct {
	Total    int `json:"total"`
	Alerting int `json:"alerting"`
}

// DashboardData is everything the dashboard view needs, recomputed from the
// full record collection on every snapshot.
type DashboardData struct {
	PredictionRecords []Record `json:"prediction_records"`
	DetectionRecords  []Record `json:"detection_records"`

	PredictionSummary Summary `json:"prediction_summary"`
	DetectionSummary  Summary `json:"detection_summary"`

	PredictionTrend []TrendPoint `json:"prediction_trend"`
	DetectionTrend  []TrendPoint `json:"detection_trend"`
}

// Aggregate partitions records by type, orders each partition by creation
// time, and derives summaries and trend series. Records with an unknown type
// are dropped from both partitions.
func Aggregate(records []Record) DashboardData {
	var out DashboardData

	for _, r := range records {
		switch r.Type {
		case TypePrediction:
			out.PredictionRecords = append(out.PredictionRecords, r)
		case TypeDetection:
			out.DetectionRecords = append(out.DetectionRecords, r)
		}
	}

	// Stable keeps store order for equal timestamps.
	byCreated := func(rs []Record) {
		sort.SliceStable(rs, func(i, j int) bool {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		})
	}
	byCreated(out.PredictionRecords)
	byCreated(out.DetectionRecords)

	out.PredictionSummary = summarize(out.PredictionRecords)
	out.DetectionSummary = summarize(out.DetectionRecords)

	out.PredictionTrend = make([]TrendPoint, 0, len(out.PredictionRecords))
	for _, r := range out.PredictionRecords {
		out.PredictionTrend = append(out.PredictionTrend, TrendPoint{
			Label:       r.Date,
			Probability: neutralProbability(r),
			Risk:        r.Risk,
		})
	}

	out.DetectionTrend = make([]TrendPoint, 0, len(out.DetectionRecords))
	for _, r := range out.DetectionRecords {
		out.DetectionTrend = append(out.DetectionTrend, TrendPoint{
			Label:       r.Date,
			Probability: neutralProbability(r),
		})
	}

	return out
}

func summarize(rs []Record) Summary {
	s := Summary{Total: len(rs)}
	for _, r := range rs {
		if r.Alerting() {
			s.Alerting++
		}
	}
	return s
}

// neutralProbability substitutes 0 for a missing probability so the point is
// kept rather than omitted and the x-axis stays complete.
func neutralProbability(r Record) int {
	if r.Probability != nil {
		return *r.Probability
	}
	return 0
}
