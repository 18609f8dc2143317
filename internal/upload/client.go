package upload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client drives the dashboard API: login once, then analyze and save record
// archives on behalf of the account.
type Client struct {
	serverURL  string
	token      string
	httpClient *http.Client
}

// NewClient creates a new HTTP client for the dashboard server.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Login authenticates and stores the session token for later calls.
func (c *Client) Login(email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return fmt.Errorf("marshaling login request: %w", err)
	}

	resp, err := c.httpClient.Post(c.serverURL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed (status %d): %s", resp.StatusCode, msg)
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if auth.Token == "" {
		return fmt.Errorf("login response contained no token")
	}
	c.token = auth.Token
	return nil
}

// Analyze uploads an archive (and metadata file, when the mode needs one) to
// the analyze endpoint and waits for the result.
func (c *Client) Analyze(mode, metadataPath, zipPath string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if metadataPath != "" {
		if err := addFormFile(mw, "metadata_file", metadataPath); err != nil {
			return err
		}
	}
	if err := addFormFile(mw, "records_zip", zipPath); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.serverURL+"/api/v1/analyze/"+mode+"/", &buf)
	if err != nil {
		return fmt.Errorf("building analyze request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("analyze failed (status %d): %s", resp.StatusCode, msg)
	}
	return nil
}

// Save persists the held result as a record. Retries up to 3 times with
// exponential backoff on server errors; a rejected save is not retried.
func (c *Client) Save(mode string) error {
	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<uint(attempt-1)) * time.Second)
		}

		req, err := http.NewRequest(http.MethodPost, c.serverURL+"/api/v1/analyze/"+mode+"/save", nil)
		if err != nil {
			return fmt.Errorf("building save request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("save request: %w", err)
			continue
		}
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusCreated:
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("save failed (status %d): %s", resp.StatusCode, msg)
		default:
			return fmt.Errorf("save rejected (status %d): %s", resp.StatusCode, msg)
		}
	}
	return lastErr
}

func addFormFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fw, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("copying %s: %w", path, err)
	}
	return nil
}
