package analysis

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func intPtr(v int) *int { return &v }

// TestResolveRecordIDPriority verifies the four historical field names are
// tried in the documented order.
func TestResolveRecordIDPriority(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string // "" means nil
	}{
		{"record_ids array wins", `{"record_ids":["r1","r2"],"record_id":"r9"}`, "r1"},
		{"recordIds second", `{"recordIds":["r2"],"recordId":"r9"}`, "r2"},
		{"record_id scalar", `{"record_id":"r3"}`, "r3"},
		{"recordId last", `{"recordId":"r4"}`, "r4"},
		{"numeric scalar", `{"record_id":32}`, "32"},
		{"empty array", `{"record_ids":[]}`, ""},
		{"all absent", `{"prob_af":[0.1]}`, ""},
		{"null value skipped", `{"record_ids":null,"record_id":"r5"}`, "r5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc map[string]any
			if err := json.Unmarshal([]byte(tt.doc), &doc); err != nil {
				t.Fatal(err)
			}
			got := ResolveRecordID(doc)
			if tt.want == "" {
				if got != nil {
					t.Errorf("ResolveRecordID = %q, want nil", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("ResolveRecordID = %v, want %q", got, tt.want)
			}
		})
	}
}

// TestBuildPredictionRecordValidation verifies each missing required input
// blocks the build with its own error.
func TestBuildPredictionRecordValidation(t *testing.T) {
	base := PredictionInputs{
		MetadataFileName: "metadata.csv",
		ZipFileName:      "records.zip",
		Risk:             RiskRisky,
		Probability:      intPtr(67),
		SessionUserID:    "u1",
	}

	tests := []struct {
		name    string
		mutate  func(*PredictionInputs)
		wantErr error
	}{
		{"missing zip", func(in *PredictionInputs) { in.ZipFileName = "" }, ErrMissingZip},
		{"unresolved risk", func(in *PredictionInputs) { in.Risk = "" }, ErrUnresolvedRisk},
		{"nil probability", func(in *PredictionInputs) { in.Probability = nil }, ErrMissingProbability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			if _, err := BuildPredictionRecord(in); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	rec, err := BuildPredictionRecord(base)
	if err != nil {
		t.Fatalf("valid inputs rejected: %v", err)
	}
	if rec.Type != TypePrediction || rec.Risk != RiskRisky || *rec.Probability != 67 {
		t.Errorf("record = %+v", rec)
	}
}

// TestBuildDetectionRecordMeanProbability verifies the headline is the
// rounded mean of per-segment percents and nil for an empty list.
func TestBuildDetectionRecordMeanProbability(t *testing.T) {
	rec, err := BuildDetectionRecord(DetectionInputs{
		ZipFileName:   "records.zip",
		Decision:      DecisionYes,
		Probabilities: []int{95, 70, 60},
		SessionUserID: "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Probability == nil || *rec.Probability != 75 {
		t.Errorf("probability = %v, want 75", rec.Probability)
	}
	if rec.AFDetected == nil || !*rec.AFDetected {
		t.Error("af_detected should be true for DecisionYes")
	}

	rec, err = BuildDetectionRecord(DetectionInputs{
		ZipFileName:   "records.zip",
		Decision:      DecisionNo,
		SessionUserID: "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Probability != nil {
		t.Errorf("empty segment list: probability = %d, want nil", *rec.Probability)
	}
}

// TestBuildDetectionRecordValidation covers the detection builder's guards.
func TestBuildDetectionRecordValidation(t *testing.T) {
	if _, err := BuildDetectionRecord(DetectionInputs{Decision: DecisionNo}); !errors.Is(err, ErrMissingZip) {
		t.Errorf("err = %v, want ErrMissingZip", err)
	}
	if _, err := BuildDetectionRecord(DetectionInputs{ZipFileName: "r.zip"}); !errors.Is(err, ErrUnresolvedDecision) {
		t.Errorf("err = %v, want ErrUnresolvedDecision", err)
	}
}

// TestUserIDResolution verifies session id wins, fallback applies, and the
// literal "undefined" is never stored.
func TestUserIDResolution(t *testing.T) {
	tests := []struct {
		name     string
		session  string
		fallback string
		want     string
	}{
		{"session wins", "sess-1", "prop-1", "sess-1"},
		{"fallback when no session", "", "prop-1", "prop-1"},
		{"both absent", "", "", ""},
		{"undefined session skipped", "undefined", "prop-1", "prop-1"},
		{"undefined fallback dropped", "", "undefined", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := BuildDetectionRecord(DetectionInputs{
				ZipFileName:    "r.zip",
				Decision:       DecisionNo,
				SessionUserID:  tt.session,
				FallbackUserID: tt.fallback,
			})
			if err != nil {
				t.Fatal(err)
			}
			if rec.UserID != tt.want {
				t.Errorf("user_id = %q, want %q", rec.UserID, tt.want)
			}
		})
	}
}

// TestRecordDateFields verifies the display date and sortable timestamp come
// from the same clock reading.
func TestRecordDateFields(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	rec, err := BuildPredictionRecord(PredictionInputs{
		MetadataFileName: "metadata.csv",
		ZipFileName:      "records.zip",
		Risk:             RiskSafe,
		Probability:      intPtr(12),
		SessionUserID:    "u1",
		Now:              now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !rec.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", rec.CreatedAt, now)
	}
	if rec.Date == "" {
		t.Error("display date should be set")
	}
}

// TestBuildersAssignRowIDs verifies each built record carries its own
// generated primary key, so repeated saves insert as distinct rows.
func TestBuildersAssignRowIDs(t *testing.T) {
	build := func() *Record {
		rec, err := BuildDetectionRecord(DetectionInputs{
			ZipFileName:   "records.zip",
			Decision:      DecisionYes,
			Probabilities: []int{80},
			SessionUserID: "u1",
		})
		if err != nil {
			t.Fatal(err)
		}
		return rec
	}

	first, second := build(), build()
	if first.ID == uuid.Nil || second.ID == uuid.Nil {
		t.Fatal("built record has a nil row id")
	}
	if first.ID == second.ID {
		t.Errorf("both records carry row id %s, want distinct ids", first.ID)
	}

	pred, err := BuildPredictionRecord(PredictionInputs{
		MetadataFileName: "metadata.csv",
		ZipFileName:      "records.zip",
		Risk:             RiskSafe,
		Probability:      intPtr(12),
		SessionUserID:    "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if pred.ID == uuid.Nil {
		t.Error("prediction record has a nil row id")
	}
}
