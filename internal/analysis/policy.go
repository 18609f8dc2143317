package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// Mode names an analysis page. Each mode binds one backend endpoint, one
// file set, and one risk policy.
type Mode string

const (
	ModePrediction Mode = "prediction"
	ModeDetection  Mode = "detection"
)

// FileKind identifies an upload slot within a mode's required file set.
type FileKind string

const (
	FileMetadataCSV FileKind = "metadata_csv"
	FileRecordsZip  FileKind = "records_zip"
)

// extensions maps each file kind to its accepted filename suffix. Files are
// validated by suffix only; content is never parsed locally.
var extensions = map[FileKind]string{
	FileMetadataCSV: ".csv",
	FileRecordsZip:  ".zip",
}

// ValidFileName reports whether name carries the suffix required for kind.
func ValidFileName(kind FileKind, name string) bool {
	ext, ok := extensions[kind]
	if !ok {
		return false
	}
	return strings.HasSuffix(strings.ToLower(name), ext)
}

// AggregationStatistic names the summary computed over the per-segment
// probability array to produce the headline number.
type AggregationStatistic string

const (
	StatMean AggregationStatistic = "mean"
	StatP75  AggregationStatistic = "p75"
	StatP95  AggregationStatistic = "p95"
)

// Headline reduces per-segment fractions to one value per stat. Returns
// false when probs is empty. Percentiles use the nearest-rank index on the
// ascending-sorted copy, matching how earlier revisions picked p95/p75.
func Headline(probs []float64, stat AggregationStatistic) (float64, bool) {
	if len(probs) == 0 {
		return 0, false
	}
	switch stat {
	case StatMean:
		var sum float64
		for _, p := range probs {
			sum += p
		}
		return sum / float64(len(probs)), true
	case StatP75, StatP95:
		q := 0.95
		if stat == StatP75 {
			q = 0.75
		}
		sorted := append([]float64(nil), probs...)
		sort.Float64s(sorted)
		idx := int(q * float64(len(sorted)-1))
		return sorted[idx], true
	}
	return 0, false
}

// RiskScheme selects between the two coexisting tiering schemes.
type RiskScheme string

const (
	SchemeTwoTier   RiskScheme = "two_tier"   // Risky / Safe
	SchemeThreeTier RiskScheme = "three_tier" // High / Moderate / Low
)

// RiskPolicy classifies a headline fraction into a tier label. Thresholds
// are on the fraction scale used during raw backend processing.
type RiskPolicy struct {
	Scheme     RiskScheme `yaml:"scheme"`
	RiskyAbove float64    `yaml:"risky_above"`    // two-tier
	HighAbove  float64    `yaml:"high_above"`     // three-tier
	ModerateAt float64    `yaml:"moderate_at_or_above"` // three-tier
}

// Classify maps a headline fraction to its tier label.
func (p RiskPolicy) Classify(frac float64) string {
	switch p.Scheme {
	case SchemeThreeTier:
		switch {
		case frac > p.HighAbove:
			return RiskHigh
		case frac >= p.ModerateAt:
			return RiskModerate
		default:
			return RiskLow
		}
	default:
		if frac > p.RiskyAbove {
			return RiskRisky
		}
		return RiskSafe
	}
}

// AlertTier reports whether label is the tier that triggers the high-risk
// notification for this policy.
func (p RiskPolicy) AlertTier(label string) bool {
	if p.Scheme == SchemeThreeTier {
		return label == RiskHigh
	}
	return label == RiskRisky
}

// ModeConfig parameterizes the shared analyze flow for one mode. The page
// variants of earlier revisions differed only in these fields.
type ModeConfig struct {
	Mode          Mode
	Task          TaskType
	RequiredFiles []FileKind
	Aggregation   AggregationStatistic
	Risk          RiskPolicy

	// AlertThreshold is the per-segment fraction at or above which a
	// detection counts as AF. Unused for prediction, where the alert
	// follows the risk tier instead.
	AlertThreshold float64

	// Endpoint is the backend path, e.g. "/predict/".
	Endpoint string

	// Steps are the rotating processing labels shown while analyzing.
	// Cosmetic only.
	Steps []string
}

// Validate checks a mode config for the fields the flow depends on.
func (c ModeConfig) Validate() error {
	if c.Mode == "" || c.Task == "" {
		return fmt.Errorf("mode and task are required")
	}
	if len(c.RequiredFiles) == 0 {
		return fmt.Errorf("mode %s: at least one required file", c.Mode)
	}
	if c.Endpoint == "" {
		return fmt.Errorf("mode %s: endpoint is required", c.Mode)
	}
	switch c.Aggregation {
	case StatMean, StatP75, StatP95:
	default:
		return fmt.Errorf("mode %s: unknown aggregation statistic %q", c.Mode, c.Aggregation)
	}
	return nil
}

// DefaultModes returns the shipped mode set: two-tier prediction on the p95
// statistic, and detection with the 0.65 per-segment threshold.
func DefaultModes() map[Mode]ModeConfig {
	return map[Mode]ModeConfig{
		ModePrediction: {
			Mode:          ModePrediction,
			Task:          TaskEarlyPrediction,
			RequiredFiles: []FileKind{FileMetadataCSV, FileRecordsZip},
			Aggregation:   StatP95,
			Risk:          RiskPolicy{Scheme: SchemeTwoTier, RiskyAbove: 0.53},
			Endpoint:      "/predict/",
			Steps: []string{
				"Extracting RR intervals…",
				"Processing metadata…",
				"Segmenting heartbeat windows…",
				"Applying phase-space reconstruction…",
				"Running Neural ODE model…",
				"Finalizing risk score…",
			},
		},
		ModeDetection: {
			Mode:           ModeDetection,
			Task:           TaskAFDetection,
			RequiredFiles:  []FileKind{FileRecordsZip},
			Aggregation:    StatMean,
			AlertThreshold: 0.65,
			Endpoint:       "/detect/",
			Steps: []string{
				"Extracting RR intervals…",
				"Segmenting heartbeat windows…",
				"Applying phase-space reconstruction…",
				"Running Neural ODE model…",
				"Computing AF probability…",
			},
		},
	}
}

// LegacyThreeTierPolicy is the earlier High/Moderate/Low scheme, selectable
// through configuration for deployments that kept the old model.
func LegacyThreeTierPolicy() RiskPolicy {
	return RiskPolicy{Scheme: SchemeThreeTier, HighAbove: 0.52, ModerateAt: 0.45}
}
