// Package inference is the HTTP client for the external model backend. The
// backend is an opaque black box: it takes uploaded RR files and returns
// per-segment probabilities, RR features, and on request a PDF report.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cardiolab/afdash/internal/analysis"
)

// Client calls the inference backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given base URL. The timeout is generous
// because model inference on a full records archive takes tens of seconds.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FilePart is one file in a multipart analyze request.
type FilePart struct {
	Field   string
	Name    string
	Content io.Reader
}

// Analyze POSTs the uploaded files to the given backend endpoint
// ("/predict/" or "/detect/") and decodes the JSON result. Any network
// failure or non-2xx status is a single uniform error branch.
func (c *Client) Analyze(ctx context.Context, endpoint string, files []FilePart) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return nil, fmt.Errorf("inference: create form file %s: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("inference: write form file %s: %w", f.Field, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("inference: close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("inference: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference: %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("inference: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inference: %s returned %d: %s", endpoint, resp.StatusCode, respBody)
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("inference: decode response: %w", err)
	}
	return &result, nil
}

// ReportRequest is the body of POST /report. RRFeatures round-trips the
// backend's feature map verbatim.
type ReportRequest struct {
	RecordID   string              `json:"record_id"`
	TaskType   analysis.TaskType   `json:"task_type,omitempty"`
	Decision   string              `json:"decision"`
	ProbAF     int                 `json:"prob_af"`
	RRFeatures analysis.RRFeatures `json:"rr_features"`
	Timestamp  string              `json:"timestamp"`
}

// Report asks the backend to render a PDF report and returns the binary
// stream. Report failures are independent of any prior analyze result.
func (c *Client) Report(ctx context.Context, reportReq ReportRequest) ([]byte, error) {
	payload, err := json.Marshal(reportReq)
	if err != nil {
		return nil, fmt.Errorf("inference: marshal report request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/report", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("inference: create report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference: report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("inference: read report: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inference: report returned %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
