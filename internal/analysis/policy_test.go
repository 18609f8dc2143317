package analysis

import (
	"math"
	"testing"
)

// TestHeadlineStatistics checks mean and the nearest-rank percentiles over
// the sorted per-segment array.
func TestHeadlineStatistics(t *testing.T) {
	probs := []float64{0.10, 0.90, 0.50, 0.30, 0.70}

	tests := []struct {
		stat AggregationStatistic
		want float64
	}{
		{StatMean, 0.50},
		{StatP75, 0.70}, // idx floor(0.75*4)=3 of sorted
		{StatP95, 0.70}, // idx floor(0.95*4)=3 of sorted
	}

	for _, tt := range tests {
		got, ok := Headline(probs, tt.stat)
		if !ok {
			t.Fatalf("Headline(%s) not ok", tt.stat)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Headline(%s) = %v, want %v", tt.stat, got, tt.want)
		}
	}

	if _, ok := Headline(nil, StatMean); ok {
		t.Error("Headline(empty) should report not ok")
	}
}

// TestHeadlineDoesNotMutateInput verifies percentile sorting works on a copy.
func TestHeadlineDoesNotMutateInput(t *testing.T) {
	probs := []float64{0.9, 0.1, 0.5}
	if _, ok := Headline(probs, StatP95); !ok {
		t.Fatal("not ok")
	}
	if probs[0] != 0.9 || probs[1] != 0.1 || probs[2] != 0.5 {
		t.Errorf("input mutated: %v", probs)
	}
}

// TestRiskPolicyClassify covers both tiering schemes around their
// thresholds.
func TestRiskPolicyClassify(t *testing.T) {
	two := RiskPolicy{Scheme: SchemeTwoTier, RiskyAbove: 0.53}
	three := LegacyThreeTierPolicy()

	tests := []struct {
		name   string
		policy RiskPolicy
		frac   float64
		want   string
	}{
		{"two below", two, 0.52, RiskSafe},
		{"two at threshold", two, 0.53, RiskSafe},
		{"two above", two, 0.531, RiskRisky},
		{"three high", three, 0.53, RiskHigh},
		{"three at high edge", three, 0.52, RiskModerate},
		{"three moderate floor", three, 0.45, RiskModerate},
		{"three low", three, 0.449, RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Classify(tt.frac); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.frac, got, tt.want)
			}
		})
	}

	if !two.AlertTier(RiskRisky) || two.AlertTier(RiskSafe) {
		t.Error("two-tier alert should fire on Risky only")
	}
	if !three.AlertTier(RiskHigh) || three.AlertTier(RiskModerate) {
		t.Error("three-tier alert should fire on High only")
	}
}

// TestValidFileName checks suffix-only validation, case-insensitively.
func TestValidFileName(t *testing.T) {
	tests := []struct {
		kind FileKind
		name string
		want bool
	}{
		{FileMetadataCSV, "metadata.csv", true},
		{FileMetadataCSV, "METADATA.CSV", true},
		{FileMetadataCSV, "metadata.txt", false},
		{FileRecordsZip, "records.zip", true},
		{FileRecordsZip, "records.tar.gz", false},
		{FileKind("unknown"), "x.csv", false},
	}

	for _, tt := range tests {
		if got := ValidFileName(tt.kind, tt.name); got != tt.want {
			t.Errorf("ValidFileName(%s, %q) = %v, want %v", tt.kind, tt.name, got, tt.want)
		}
	}
}

// TestDefaultModesValid ensures the shipped mode set passes its own
// validation.
func TestDefaultModesValid(t *testing.T) {
	for mode, cfg := range DefaultModes() {
		if err := cfg.Validate(); err != nil {
			t.Errorf("mode %s: %v", mode, err)
		}
	}
}
