// Package flow implements the per-session analyze state machine: file
// validation, the backend call, result interpretation, the edge-triggered
// high-risk alert, and the save/report actions hanging off a result.
package flow

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cardiolab/afdash/internal/analysis"
	"github.com/cardiolab/afdash/internal/inference"
)

// State is the controller's position in the analyze lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateFilesSelected State = "files_selected"
	StateAnalyzing     State = "analyzing"
	StateResultReady   State = "result_ready"
	StateSaved         State = "saved"
)

// Backend is the slice of the inference client the controller uses.
type Backend interface {
	Analyze(ctx context.Context, endpoint string, files []inference.FilePart) (*inference.Result, error)
	Report(ctx context.Context, req inference.ReportRequest) ([]byte, error)
}

// RecordStore persists completed analyses.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec *analysis.Record) error
}

// Notifier delivers the one-shot high-risk notification.
type Notifier interface {
	Notify(userID, title, body string)
}

// NamedFile is an uploaded file held in memory until the analysis completes.
type NamedFile struct {
	Name    string
	Content []byte
}

// fieldNames maps upload slots to the backend's multipart field names.
var fieldNames = map[analysis.FileKind]string{
	analysis.FileMetadataCSV: "metadata_file",
	analysis.FileRecordsZip:  "records_zip",
}

// ResultView is the outcome of one successful analysis, kept until the next
// run or a reset so save and report can act on it.
type ResultView struct {
	Task       analysis.TaskType       `json:"task"`
	RecordID   *string                 `json:"record_id"`
	RRFeatures analysis.RRFeatures     `json:"rr_features,omitempty"`
	Summary    analysis.Interpretation `json:"summary"`

	// Headline probability on the percent scale; nil when the backend
	// returned no per-segment probabilities.
	Probability *int `json:"probability"`

	// Prediction only.
	Risk                     string   `json:"risk,omitempty"`
	MeanPredictedTimeHorizon *float64 `json:"mean_predicted_time_horizon,omitempty"`

	// Detection only.
	Decision      analysis.Decision `json:"decision,omitempty"`
	Probabilities []int             `json:"probabilities,omitempty"`

	// Alert is set when this result crossed the alert threshold; the
	// paired notification has already fired exactly once.
	Alert bool `json:"alert"`
}

// Controller runs one user's analyze flow for one mode. All methods are safe
// for concurrent use; the backend call itself happens outside the lock so a
// status poll never blocks behind a slow model.
type Controller struct {
	cfg     analysis.ModeConfig
	backend Backend
	store   RecordStore
	notify  Notifier
	log     *slog.Logger
	userID  string
	now     func() time.Time

	mu       sync.Mutex
	state    State
	files    map[analysis.FileKind]NamedFile
	result   *ResultView
	lastErr  string
	alerting bool // previous-state comparison for the edge-triggered alert
}

// NewController creates an idle controller bound to one user and mode.
func NewController(cfg analysis.ModeConfig, backend Backend, store RecordStore, notify Notifier, userID string, log *slog.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		backend: backend,
		store:   store,
		notify:  notify,
		log:     log,
		userID:  userID,
		now:     time.Now,
		state:   StateIdle,
	}
}

// Status is a point-in-time snapshot for the client's polling loop.
type Status struct {
	Mode   analysis.Mode `json:"mode"`
	State  State         `json:"state"`
	Steps  []string      `json:"steps"`
	Error  string        `json:"error,omitempty"`
	Result *ResultView   `json:"result,omitempty"`
}

// Status reports the current state, the rotating step labels for the
// processing modal, and the last result or error.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Mode:   c.cfg.Mode,
		State:  c.state,
		Steps:  c.cfg.Steps,
		Error:  c.lastErr,
		Result: c.result,
	}
}

// Reset discards files, result, and error, returning to Idle.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateAnalyzing {
		return
	}
	c.state = StateIdle
	c.files = nil
	c.result = nil
	c.lastErr = ""
	c.alerting = false
}

// Analyze validates the uploaded files, posts them to the backend, and moves
// to ResultReady. A validation failure performs zero backend calls; a backend
// failure lands back in FilesSelected with a dismissable error.
func (c *Controller) Analyze(ctx context.Context, files map[analysis.FileKind]NamedFile) (*ResultView, error) {
	c.mu.Lock()
	if c.state == StateAnalyzing {
		c.mu.Unlock()
		return nil, ErrBusy
	}

	if err := c.validateFiles(files); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.files = files
	c.state = StateAnalyzing
	c.result = nil
	c.lastErr = ""
	c.alerting = false
	c.mu.Unlock()

	parts := make([]inference.FilePart, 0, len(c.cfg.RequiredFiles))
	for _, kind := range c.cfg.RequiredFiles {
		f := files[kind]
		parts = append(parts, inference.FilePart{
			Field:   fieldNames[kind],
			Name:    f.Name,
			Content: bytes.NewReader(f.Content),
		})
	}

	result, err := c.backend.Analyze(ctx, c.cfg.Endpoint, parts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = StateFilesSelected
		c.lastErr = "Analysis failed. Please check the file format and try again."
		c.log.Error("analyze failed", "mode", c.cfg.Mode, "user", c.userID, "error", err)
		return nil, &BackendError{err: err}
	}

	view := c.buildResult(result)
	c.result = view
	c.state = StateResultReady

	if view.Alert && !c.alerting {
		c.alerting = true
		c.fireAlert(view)
	}

	return view, nil
}

// validateFiles enforces presence and suffix for every required slot.
// Called with c.mu held.
func (c *Controller) validateFiles(files map[analysis.FileKind]NamedFile) error {
	for _, kind := range c.cfg.RequiredFiles {
		f, ok := files[kind]
		if !ok || f.Name == "" {
			return &ValidationError{Message: c.selectMessage()}
		}
		if !analysis.ValidFileName(kind, f.Name) {
			return &ValidationError{Message: fmt.Sprintf("Please upload a valid %s file!", wantedName(kind))}
		}
	}
	return nil
}

func (c *Controller) selectMessage() string {
	if len(c.cfg.RequiredFiles) > 1 {
		return "Please select both metadata.csv and record ZIP file!"
	}
	return "Please select record ZIP file!"
}

func wantedName(kind analysis.FileKind) string {
	if kind == analysis.FileMetadataCSV {
		return "metadata.csv"
	}
	return "records ZIP"
}

// buildResult turns the backend response into a ResultView per this mode's
// policy. Missing rr_features or probabilities never abort the transition.
func (c *Controller) buildResult(result *inference.Result) *ResultView {
	view := &ResultView{Task: c.cfg.Task}
	view.RecordID = result.RecordID()

	featureID, rr := result.FeaturesFor(view.RecordID)
	view.RRFeatures = rr
	if view.RecordID == nil && featureID != "" {
		view.RecordID = &featureID
	}

	probs := result.Probabilities(c.cfg.Task)

	switch c.cfg.Task {
	case analysis.TaskEarlyPrediction:
		view.MeanPredictedTimeHorizon = result.MeanPredictedTimeHorizon
		if headline, ok := analysis.Headline(probs, c.cfg.Aggregation); ok {
			percent := int(math.Round(headline * 100))
			view.Probability = &percent
			view.Risk = c.cfg.Risk.Classify(headline)
			view.Alert = c.cfg.Risk.AlertTier(view.Risk)
		}
	case analysis.TaskAFDetection:
		view.Probabilities = make([]int, 0, len(probs))
		anyHigh := false
		for _, p := range probs {
			view.Probabilities = append(view.Probabilities, int(math.Round(p*100)))
			if p >= c.cfg.AlertThreshold {
				anyHigh = true
			}
		}
		view.Probability = analysis.MeanPercent(view.Probabilities)
		if anyHigh {
			view.Decision = analysis.DecisionYes
		} else {
			view.Decision = analysis.DecisionNo
		}
		view.Alert = anyHigh
	}

	if rr != nil && view.Probability != nil {
		view.Summary = analysis.Interpret(rr, float64(*view.Probability), c.cfg.Task)
	} else if rr != nil {
		view.Summary = analysis.Interpret(rr, 0, c.cfg.Task)
	}

	return view
}

func (c *Controller) fireAlert(view *ResultView) {
	if c.notify == nil {
		return
	}
	switch c.cfg.Task {
	case analysis.TaskEarlyPrediction:
		c.notify.Notify(c.userID, "High AFib Risk Detected!",
			"Probability of danger is high. Please consult a clinician immediately.")
	case analysis.TaskAFDetection:
		c.notify.Notify(c.userID, "AF Detected", "AF detected in uploaded records.")
	}
}

// Save builds the persisted record from the held result and issues exactly
// one insert. A persistence failure leaves the controller in ResultReady so
// save can be retried without re-running the analysis. A second save after
// success inserts a second, distinct record.
func (c *Controller) Save(ctx context.Context) (*analysis.Record, error) {
	c.mu.Lock()

	if c.result == nil || (c.state != StateResultReady && c.state != StateSaved) {
		c.mu.Unlock()
		return nil, &ValidationError{Message: c.completeFirstMessage()}
	}

	rec, err := c.buildRecord()
	if err != nil {
		c.mu.Unlock()
		return nil, &ValidationError{Message: err.Error()}
	}
	c.mu.Unlock()

	if err := c.store.InsertRecord(ctx, rec); err != nil {
		c.log.Error("save failed", "mode", c.cfg.Mode, "user", c.userID, "error", err)
		return nil, &PersistenceError{err: err}
	}

	c.mu.Lock()
	c.state = StateSaved
	c.mu.Unlock()

	return rec, nil
}

func (c *Controller) completeFirstMessage() string {
	if c.cfg.Task == analysis.TaskAFDetection {
		return "Please complete detection before saving!"
	}
	return "Please complete all steps before saving!"
}

// buildRecord delegates to the mode's normalizer. Called with c.mu held.
func (c *Controller) buildRecord() (*analysis.Record, error) {
	zip := c.files[analysis.FileRecordsZip]

	switch c.cfg.Task {
	case analysis.TaskAFDetection:
		return analysis.BuildDetectionRecord(analysis.DetectionInputs{
			ZipFileName:   zip.Name,
			Decision:      c.result.Decision,
			Probabilities: c.result.Probabilities,
			RecordID:      c.result.RecordID,
			SessionUserID: c.userID,
			Now:           c.now(),
		})
	default:
		meta := c.files[analysis.FileMetadataCSV]
		return analysis.BuildPredictionRecord(analysis.PredictionInputs{
			MetadataFileName: meta.Name,
			ZipFileName:      zip.Name,
			Risk:             c.result.Risk,
			Probability:      c.result.Probability,
			RecordID:         c.result.RecordID,
			SessionUserID:    c.userID,
			Now:              c.now(),
		})
	}
}

// Report requests a PDF from the backend for the held result. It is rejected
// locally, with zero network calls, until a record id, RR features, and a
// resolved decision exist. Failure here never disturbs the analysis result.
func (c *Controller) Report(ctx context.Context) ([]byte, string, error) {
	c.mu.Lock()

	r := c.result
	if r == nil || r.RecordID == nil || r.RRFeatures == nil || (r.Risk == "" && r.Decision == "") {
		c.mu.Unlock()
		return nil, "", &ValidationError{Message: "You must run the analysis before generating a report."}
	}

	decision := r.Risk
	if c.cfg.Task == analysis.TaskAFDetection {
		decision = string(r.Decision)
	}
	probability := 0
	if r.Probability != nil {
		probability = *r.Probability
	}

	req := inference.ReportRequest{
		RecordID:   *r.RecordID,
		TaskType:   c.cfg.Task,
		Decision:   decision,
		ProbAF:     probability,
		RRFeatures: r.RRFeatures,
		Timestamp:  c.now().Format("1/2/2006, 3:04:05 PM"),
	}
	filename := fmt.Sprintf("AF_Report_%s_%s.pdf", *r.RecordID, c.cfg.Task)
	c.mu.Unlock()

	pdf, err := c.backend.Report(ctx, req)
	if err != nil {
		c.log.Error("report failed", "mode", c.cfg.Mode, "user", c.userID, "error", err)
		return nil, "", &ReportError{err: err}
	}
	return pdf, filename, nil
}
