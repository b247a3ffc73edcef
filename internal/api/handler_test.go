package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hmori/go-civic-response/internal/auth"
	"github.com/hmori/go-civic-response/internal/broadcast"
	"github.com/hmori/go-civic-response/internal/models"
	"github.com/hmori/go-civic-response/internal/repository"
)

// mockStore implements repository.Store for testing
type mockStore struct {
	mu        sync.Mutex
	users     map[string]*models.User
	alerts    []models.Alert
	responses []models.AlertResponse
	shelters  []models.Shelter
	reports   []models.Report
	activity  []models.ActivityEntry
}

func newMockStore() *mockStore {
	return &mockStore{
		users: make(map[string]*models.User),
	}
}

func (m *mockStore) AddUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *mockStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockStore) AddAlert(ctx context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append([]models.Alert{*a}, m.alerts...)
	return nil
}

func (m *mockStore) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockStore) ListAlerts(ctx context.Context, opts repository.AlertFilter) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := m.alerts
	if opts.Severity != nil {
		var filtered []models.Alert
		for _, a := range results {
			if a.Severity == *opts.Severity {
				filtered = append(filtered, a)
			}
		}
		results = filtered
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (m *mockStore) AddResponse(ctx context.Context, r *models.AlertResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.responses {
		if existing.AlertID == r.AlertID && existing.UserID == r.UserID {
			return repository.ErrDuplicateResponse
		}
	}
	m.responses = append(m.responses, *r)
	return nil
}

func (m *mockStore) ListResponsesByUser(ctx context.Context, userID string) ([]models.AlertResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []models.AlertResponse
	for _, r := range m.responses {
		if r.UserID == userID {
			results = append(results, r)
		}
	}
	return results, nil
}

func (m *mockStore) UpsertShelter(ctx context.Context, s *models.Shelter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.shelters {
		if existing.ID == s.ID {
			m.shelters[i] = *s
			return nil
		}
	}
	m.shelters = append(m.shelters, *s)
	return nil
}

func (m *mockStore) ListShelters(ctx context.Context) ([]models.Shelter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shelters, nil
}

func (m *mockStore) AddReport(ctx context.Context, r *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append([]models.Report{*r}, m.reports...)
	return nil
}

func (m *mockStore) GetReportByID(ctx context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockStore) ListReports(ctx context.Context, opts repository.ReportFilter) ([]models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := m.reports
	if opts.UserID != "" {
		var filtered []models.Report
		for _, r := range results {
			if r.UserID == opts.UserID {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	return results, nil
}

func (m *mockStore) AddActivity(ctx context.Context, e *models.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append([]models.ActivityEntry{*e}, m.activity...)
	return nil
}

func (m *mockStore) ListActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := m.activity
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

type testEnv struct {
	router   *gin.Engine
	store    *mockStore
	sessions *auth.Manager
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMockStore()
	sessions := auth.NewManager("test-secret", time.Hour)

	router := gin.New()
	handler := NewHandler(store, broadcast.NewBroadcaster(), nil, nil, sessions)
	handler.RegisterRoutes(router)

	return &testEnv{
		router:   router,
		store:    store,
		sessions: sessions,
	}
}

func (e *testEnv) addUser(t *testing.T, id string, role models.Role) string {
	t.Helper()
	user := &models.User{
		ID:        id,
		Email:     id + "@example.com",
		Name:      "Test " + id,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := e.store.AddUser(context.Background(), user); err != nil {
		t.Fatalf("failed to add user: %v", err)
	}
	token, _, err := e.sessions.Issue(user)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestRegister_ThenDuplicateEmail(t *testing.T) {
	env := setupTestRouter(t)

	body := map[string]string{
		"email":    "amira@example.com",
		"password": "correct-horse",
		"name":     "Amira",
	}
	w := env.do("POST", "/api/auth/register", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a session token")
	}
	if resp.User.Role != models.RoleCitizen {
		t.Errorf("expected citizen role, got %s", resp.User.Role)
	}

	w = env.do("POST", "/api/auth/register", "", body)
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for duplicate email, got %d", w.Code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("POST", "/api/auth/register", "", map[string]string{
		"email":    "amira@example.com",
		"password": "correct-horse",
		"name":     "Amira",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", w.Code)
	}

	w = env.do("POST", "/api/auth/login", "", map[string]string{
		"email":    "amira@example.com",
		"password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}

	w = env.do("POST", "/api/auth/login", "", map[string]string{
		"email":    "amira@example.com",
		"password": "correct-horse",
	})
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListAlerts_RequiresSession(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("GET", "/api/alerts", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 without token, got %d", w.Code)
	}

	token := env.addUser(t, "u1", models.RoleCitizen)
	env.store.AddAlert(context.Background(), &models.Alert{
		ID: "a1", Title: "Flood warning", Severity: models.AlertSeverityHigh, CreatedAt: time.Now(),
	})

	w = env.do("GET", "/api/alerts", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Alerts []models.Alert `json:"alerts"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Alerts) != 1 || resp.Alerts[0].ID != "a1" {
		t.Errorf("expected 1 alert, got %+v", resp.Alerts)
	}
}

func TestCreateAlert_AuthorityOnly(t *testing.T) {
	env := setupTestRouter(t)
	citizen := env.addUser(t, "cit", models.RoleCitizen)
	authority := env.addUser(t, "auth", models.RoleAuthority)

	body := map[string]any{
		"title":    "Evacuate riverside",
		"message":  "Dam overflow expected",
		"severity": "critical",
		"location": "Riverside",
	}

	w := env.do("POST", "/api/alerts", citizen, body)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for citizen, got %d", w.Code)
	}

	w = env.do("POST", "/api/alerts", authority, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201 for authority, got %d: %s", w.Code, w.Body.String())
	}

	var alert models.Alert
	json.Unmarshal(w.Body.Bytes(), &alert)
	if alert.ID == "" || alert.Severity != models.AlertSeverityCritical {
		t.Errorf("unexpected alert payload: %+v", alert)
	}

	w = env.do("POST", "/api/alerts", authority, map[string]any{
		"title":    "Bad severity",
		"severity": "apocalyptic",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for invalid severity, got %d", w.Code)
	}
}

func TestSubmitResponse_OnceOnly(t *testing.T) {
	env := setupTestRouter(t)
	token := env.addUser(t, "u1", models.RoleCitizen)

	env.store.AddAlert(context.Background(), &models.Alert{
		ID: "a1", Title: "Flood warning", Severity: models.AlertSeverityHigh, CreatedAt: time.Now(),
	})

	w := env.do("POST", "/api/alerts/a1/responses", token, map[string]string{"response": "yes"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.AlertResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.AlertID != "a1" || resp.UserID != "u1" || resp.Response != models.ResponseYes {
		t.Errorf("unexpected response payload: %+v", resp)
	}

	// Second response conflicts, regardless of value.
	w = env.do("POST", "/api/alerts/a1/responses", token, map[string]string{"response": "no"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for duplicate, got %d", w.Code)
	}

	w = env.do("POST", "/api/alerts/missing/responses", token, map[string]string{"response": "yes"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown alert, got %d", w.Code)
	}

	w = env.do("POST", "/api/alerts/a1/responses", token, map[string]string{"response": "maybe"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for invalid value, got %d", w.Code)
	}
}

func TestListMyResponses_ScopedToUser(t *testing.T) {
	env := setupTestRouter(t)
	token1 := env.addUser(t, "u1", models.RoleCitizen)
	token2 := env.addUser(t, "u2", models.RoleCitizen)

	env.store.AddAlert(context.Background(), &models.Alert{
		ID: "a1", Title: "Flood warning", Severity: models.AlertSeverityHigh, CreatedAt: time.Now(),
	})

	if w := env.do("POST", "/api/alerts/a1/responses", token1, map[string]string{"response": "yes"}); w.Code != http.StatusCreated {
		t.Fatalf("submit failed: %d", w.Code)
	}

	w := env.do("GET", "/api/responses", token2, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp struct {
		Responses []models.AlertResponse `json:"responses"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Responses) != 0 {
		t.Errorf("expected no responses for u2, got %+v", resp.Responses)
	}

	w = env.do("GET", "/api/responses", token1, nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Responses) != 1 {
		t.Errorf("expected 1 response for u1, got %+v", resp.Responses)
	}
}

func TestListShelters(t *testing.T) {
	env := setupTestRouter(t)
	token := env.addUser(t, "u1", models.RoleCitizen)

	env.store.UpsertShelter(context.Background(), &models.Shelter{
		ID: "s1", Name: "Community Center", Capacity: 200, CurrentOccupancy: 40,
	})

	w := env.do("GET", "/api/shelters", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Shelters []models.Shelter `json:"shelters"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Shelters) != 1 || resp.Shelters[0].Name != "Community Center" {
		t.Errorf("unexpected shelters: %+v", resp.Shelters)
	}
}

func TestMapFeatures_ReturnsGeoJSON(t *testing.T) {
	env := setupTestRouter(t)
	token := env.addUser(t, "u1", models.RoleCitizen)

	env.store.AddAlert(context.Background(), &models.Alert{
		ID: "a1", Title: "Flood warning", Severity: models.AlertSeverityHigh,
		Latitude: 35.0, Longitude: 139.0, CreatedAt: time.Now(),
	})
	env.store.UpsertShelter(context.Background(), &models.Shelter{
		ID: "s1", Name: "Community Center", Latitude: 35.1, Longitude: 139.1,
	})

	w := env.do("GET", "/api/map", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected content-type application/geo+json, got %s", ct)
	}

	var fc FeatureCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("expected type FeatureCollection, got %s", fc.Type)
	}
	if len(fc.Features) != 2 {
		t.Errorf("expected 2 features, got %d", len(fc.Features))
	}
}

func TestCreateReport_MultipartForm(t *testing.T) {
	env := setupTestRouter(t)
	token := env.addUser(t, "u1", models.RoleCitizen)

	form := "title=Flooded underpass&description=Water rising fast&category=flood&latitude=35.5&longitude=139.5"
	req := httptest.NewRequest("POST", "/api/reports", bytes.NewReader([]byte(form)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var report models.Report
	json.Unmarshal(w.Body.Bytes(), &report)
	if report.UserID != "u1" || report.Title != "Flooded underpass" || report.Latitude != 35.5 {
		t.Errorf("unexpected report payload: %+v", report)
	}
	if report.Status != models.ReportStatusOpen {
		t.Errorf("expected open status, got %s", report.Status)
	}
}

func TestListReports_CitizenSeesOwnOnly(t *testing.T) {
	env := setupTestRouter(t)
	citizen := env.addUser(t, "u1", models.RoleCitizen)
	authority := env.addUser(t, "auth", models.RoleAuthority)

	env.store.AddReport(context.Background(), &models.Report{ID: "rp1", UserID: "u1", Title: "Mine", CreatedAt: time.Now()})
	env.store.AddReport(context.Background(), &models.Report{ID: "rp2", UserID: "other", Title: "Theirs", CreatedAt: time.Now()})

	var resp struct {
		Reports []models.Report `json:"reports"`
	}

	w := env.do("GET", "/api/reports", citizen, nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Reports) != 1 || resp.Reports[0].ID != "rp1" {
		t.Errorf("expected citizen to see own report only, got %+v", resp.Reports)
	}

	w = env.do("GET", "/api/reports", authority, nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Reports) != 2 {
		t.Errorf("expected authority to see all reports, got %+v", resp.Reports)
	}
}
