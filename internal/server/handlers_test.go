package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cardiolab/afdash/internal/analysis"
	"github.com/cardiolab/afdash/internal/auth"
	"github.com/cardiolab/afdash/internal/flow"
	"github.com/cardiolab/afdash/internal/inference"
	"github.com/cardiolab/afdash/internal/storage"
	"github.com/google/uuid"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*storage.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*storage.User)}
}

func (f *fakeUsers) CreateUser(_ context.Context, u storage.User) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return uuid.Nil, storage.ErrDuplicateEmail
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	f.users[u.ID.String()] = &u
	return u.ID, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id, username string, age int, gender string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Username, u.Age, u.Gender = username, age, gender
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

// fakeRecords backs both the flow save path and the read API.
type fakeRecords struct {
	mu      sync.Mutex
	records []analysis.Record
}

func (f *fakeRecords) InsertRecord(_ context.Context, rec *analysis.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeRecords) ListRecordsByUser(_ context.Context, userID string) ([]analysis.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []analysis.Record
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecords) GetRecord(_ context.Context, userID, recordID string) (*analysis.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UserID == userID && r.ID.String() == recordID {
			cp := r
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

type fakeResets struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newFakeResets() *fakeResets { return &fakeResets{tokens: make(map[string]string)} }

func (f *fakeResets) Issue(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok := uuid.NewString()
	f.tokens[tok] = userID
	return tok, nil
}

func (f *fakeResets) Consume(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.tokens[token]
	if !ok {
		return "", auth.ErrResetTokenInvalid
	}
	delete(f.tokens, token)
	return userID, nil
}

type fakeBackend struct {
	analyzeBody []byte
	reportBody  []byte
}

func (f *fakeBackend) Analyze(_ context.Context, _ string, _ []inference.FilePart) (*inference.Result, error) {
	var result inference.Result
	if err := json.Unmarshal(f.analyzeBody, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *fakeBackend) Report(_ context.Context, _ inference.ReportRequest) ([]byte, error) {
	return f.reportBody, nil
}

const detectionResponse = `{
	"record_id": "rec_01",
	"prob_af": [0.95, 0.80],
	"rr_features": {"rec_01": {"mean_rr": 800, "sdnn": 41.2}}
}`

func newTestServer(t *testing.T) (*Server, *fakeUsers, *fakeRecords) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := newFakeUsers()
	records := &fakeRecords{}
	backend := &fakeBackend{
		analyzeBody: []byte(detectionResponse),
		reportBody:  []byte("%PDF-1.4 fake"),
	}
	hub := NewHub(log)
	flows := flow.NewManager(analysis.DefaultModes(), backend, records, hub, log)
	tokens := auth.NewTokens("test-secret", time.Hour)
	return New(users, records, flows, tokens, newFakeResets(), hub, log), users, records
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, s *Server, email string) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Username: "casey",
		Email:    email,
		Password: "Abcdef1!",
		Age:      34,
		Gender:   "female",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body)
	}
	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding register response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("register returned empty token")
	}
	return resp.Token
}

func analyzeDetection(t *testing.T, s *Server, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("records_zip", "rec_01.zip")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	fw.Write([]byte("PK zip bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze/detection/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestRegisterValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	tests := []struct {
		name    string
		mutate  func(*registerRequest)
		wantMsg string
	}{
		{"short username", func(r *registerRequest) { r.Username = "a" }, "Username"},
		{"bad email", func(r *registerRequest) { r.Email = "nope" }, "email"},
		{"weak password", func(r *registerRequest) { r.Password = "abc" }, "password"},
		{"bad age", func(r *registerRequest) { r.Age = 0 }, "age"},
		{"no gender", func(r *registerRequest) { r.Gender = "" }, "gender"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := registerRequest{Username: "casey", Email: "c@example.com", Password: "Abcdef1!", Age: 34, Gender: "female"}
			tt.mutate(&req)
			rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", "", req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(strings.ToLower(rec.Body.String()), strings.ToLower(tt.wantMsg)) {
				t.Errorf("body %q does not mention %q", rec.Body, tt.wantMsg)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s, _, _ := newTestServer(t)
	registerUser(t, s, "dup@example.com")

	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Username: "other", Email: "dup@example.com", Password: "Abcdef1!", Age: 40, Gender: "male",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	s, _, _ := newTestServer(t)
	registerUser(t, s, "casey@example.com")

	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email: "casey@example.com", Password: "Abcdef1!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email: "casey@example.com", Password: "WrongPass1!",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid email or password") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestAuthRequired(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/records", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/records", "garbage", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}
}

func TestAnalyzeSaveAndHistory(t *testing.T) {
	s, _, records := newTestServer(t)
	token := registerUser(t, s, "casey@example.com")

	rec := analyzeDetection(t, s, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d, body %s", rec.Code, rec.Body)
	}
	var result flow.ResultView
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.Decision != analysis.DecisionYes {
		t.Errorf("decision = %q, want Yes", result.Decision)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/analyze/detection/save", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/records", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("records status = %d", rec.Code)
	}
	var listed []analysis.Record
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decoding records: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("records = %d, want 1", len(listed))
	}
	if listed[0].Type != analysis.TypeDetection {
		t.Errorf("record type = %q, want detection", listed[0].Type)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/dashboard", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	var dash analysis.DashboardData
	if err := json.NewDecoder(rec.Body).Decode(&dash); err != nil {
		t.Fatalf("decoding dashboard: %v", err)
	}
	if dash.DetectionSummary.Total != 1 || dash.DetectionSummary.Alerting != 1 {
		t.Errorf("detection summary = %+v, want 1 total 1 alerting", dash.DetectionSummary)
	}

	records.mu.Lock()
	saved := len(records.records)
	records.mu.Unlock()
	if saved != 1 {
		t.Errorf("stored records = %d, want 1", saved)
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := registerUser(t, s, "casey@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze/detection/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Please select record ZIP file!") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestAnalyzeUnknownMode(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := registerUser(t, s, "casey@example.com")

	rec := doJSON(t, s, http.MethodGet, "/api/v1/analyze/screening/status", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestReportDownload(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := registerUser(t, s, "casey@example.com")

	if rec := analyzeDetection(t, s, token); rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d", rec.Code)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/analyze/detection/report", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "AF_Report_rec_01_af_detection.pdf") {
		t.Errorf("content disposition = %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("body does not look like a PDF: %q", rec.Body.Bytes()[:10])
	}
}

func TestReportBeforeAnalyze(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := registerUser(t, s, "casey@example.com")

	rec := doJSON(t, s, http.MethodGet, "/api/v1/analyze/detection/report", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestProfileUpdate(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := registerUser(t, s, "casey@example.com")

	rec := doJSON(t, s, http.MethodPut, "/api/v1/profile", token, map[string]any{
		"username": "x", "age": 34, "gender": "female",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short username status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPut, "/api/v1/profile", token, map[string]any{
		"username": "casey-updated", "age": 35, "gender": "female",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body)
	}
	var profile userProfile
	if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
		t.Fatalf("decoding profile: %v", err)
	}
	if profile.Username != "casey-updated" || profile.Age != 35 {
		t.Errorf("profile = %+v", profile)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	s, _, _ := newTestServer(t)
	registerUser(t, s, "casey@example.com")

	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{
		"email": "casey@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot status = %d", rec.Code)
	}
	var forgot map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&forgot); err != nil {
		t.Fatalf("decoding forgot response: %v", err)
	}
	resetToken := forgot["reset_token"]
	if resetToken == "" {
		t.Fatal("no reset token issued")
	}

	// Unknown emails get the same message and no token.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{
		"email": "stranger@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot unknown status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "reset_token") {
		t.Error("reset token issued for unknown email")
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"token": resetToken, "password": "NewPass1!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email: "casey@example.com", Password: "NewPass1!",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("login with new password status = %d", rec.Code)
	}

	// Tokens are single use.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"token": resetToken, "password": "OtherPass1!",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("reused token status = %d, want 400", rec.Code)
	}
}

func TestJWTAuthQueryParam(t *testing.T) {
	s, _, _ := newTestServer(t)
	token := registerUser(t, s, "casey@example.com")

	rec := doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/records?token=%s", token), "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("query token status = %d, want 200", rec.Code)
	}
}

func TestRecordsScopedToUser(t *testing.T) {
	s, _, _ := newTestServer(t)
	tokenA := registerUser(t, s, "a@example.com")
	tokenB := registerUser(t, s, "b@example.com")

	if rec := analyzeDetection(t, s, tokenA); rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodPost, "/api/v1/analyze/detection/save", tokenA, nil); rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d", rec.Code)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/records", tokenB, nil)
	var listed []analysis.Record
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decoding records: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("user B sees %d records, want 0", len(listed))
	}
}
