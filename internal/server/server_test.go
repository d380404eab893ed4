package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/upkeepqr/maintcue/internal/auth"
	"github.com/upkeepqr/maintcue/internal/config"
	"github.com/upkeepqr/maintcue/internal/database"
	"github.com/upkeepqr/maintcue/internal/email"
	"github.com/upkeepqr/maintcue/internal/metrics"
	"github.com/upkeepqr/maintcue/internal/sms"
	websocket "github.com/upkeepqr/maintcue/internal/websocket"
)

type testServer struct {
	*httptest.Server
	srv    *Server
	issuer *auth.Issuer
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Config{
		BaseURL:          "http://localhost:8080",
		JobTimezone:      "America/New_York",
		JobSchedule:      "0 9 * * *",
		SendTimeout:      time.Second,
		ReminderLeadDays: 7,
		JWTSecret:        "server-test-secret",
		SessionTTL:       time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, cfg, email.NewClient("", "", cfg.BaseURL), sms.NewClient("", "", ""), metrics.New(), logger)

	hs := httptest.NewServer(srv.Router())
	t.Cleanup(hs.Close)
	return &testServer{Server: hs, srv: srv, issuer: auth.NewIssuer(cfg.JWTSecret, time.Hour)}
}

func (ts *testServer) token(t *testing.T, ac auth.AuthContext) string {
	t.Helper()
	tok, _, err := ts.issuer.Issue(ac)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts := setupServer(t)
	resp := ts.do(t, http.MethodGet, "/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupServer(t)
	admin := ts.token(t, auth.AuthContext{Email: "ops@maintcue.com", Role: auth.RoleAdmin})
	ts.do(t, http.MethodPost, "/api/admin/jobs/overdue/run", admin, "")

	resp := ts.do(t, http.MethodGet, "/metrics", "", "")
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `maintcue_job_runs_total{job="overdue",outcome="completed",trigger="manual"} 1`) {
		t.Errorf("metrics missing overdue run:\n%s", data)
	}
}

func TestRouteAuthorization(t *testing.T) {
	ts := setupServer(t)
	homeowner := ts.token(t, auth.AuthContext{HouseholdID: 1, Role: auth.RoleHomeowner})
	admin := ts.token(t, auth.AuthContext{Email: "ops@maintcue.com", Role: auth.RoleAdmin})

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"tasks without token", "/api/tasks", "", http.StatusUnauthorized},
		{"tasks with garbage token", "/api/tasks", "garbage", http.StatusUnauthorized},
		{"tasks as homeowner", "/api/tasks", homeowner, http.StatusOK},
		{"tasks as admin", "/api/tasks", admin, http.StatusForbidden},
		{"admin without token", "/api/admin/households", "", http.StatusUnauthorized},
		{"admin as homeowner", "/api/admin/households", homeowner, http.StatusForbidden},
		{"admin as admin", "/api/admin/households", admin, http.StatusOK},
		{"job status as admin", "/api/admin/jobs/status", admin, http.StatusOK},
		{"backups as homeowner", "/api/admin/backups", homeowner, http.StatusForbidden},
		{"backups as admin", "/api/admin/backups", admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodGet, tt.path, tt.token, "")
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestBackupRunDisabled(t *testing.T) {
	ts := setupServer(t)
	admin := ts.token(t, auth.AuthContext{Email: "ops@maintcue.com", Role: auth.RoleAdmin})

	resp := ts.do(t, http.MethodPost, "/api/admin/backups/run", admin, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without storage configured", resp.StatusCode)
	}
	if ts.srv.Backups().Enabled() {
		t.Error("backups should be disabled")
	}
}

func TestAuthRateLimit(t *testing.T) {
	ts := setupServer(t)
	body := `{"email":"ops@maintcue.com","password":"nope"}`

	for i := 0; i < authRateLimit; i++ {
		resp := ts.do(t, http.MethodPost, "/admin/login", "", body)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, resp.StatusCode)
		}
	}
	resp := ts.do(t, http.MethodPost, "/admin/login", "", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestAdminCreatesHouseholdAndTask(t *testing.T) {
	ts := setupServer(t)
	admin := ts.token(t, auth.AuthContext{Email: "ops@maintcue.com", Role: auth.RoleAdmin})

	resp := ts.do(t, http.MethodPost, "/api/admin/households", admin, `{"name":"Dana Smith","email":"dana@example.com"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create household status = %d", resp.StatusCode)
	}
	var household struct {
		ID int64 `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&household)

	due := time.Now().AddDate(0, 0, 3).Format("2006-01-02")
	resp = ts.do(t, http.MethodPost, "/api/admin/households/"+itoa(household.ID)+"/tasks", admin,
		`{"title":"Test smoke detectors","due_date":"`+due+`"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task status = %d", resp.StatusCode)
	}

	// The reminder is due now because the lead time has already passed.
	// Email is not configured, so delivery fails with a channel reason.
	resp = ts.do(t, http.MethodPost, "/api/admin/jobs/reminders/run", admin, "")
	var run struct {
		Status struct {
			Processed int `json:"processed"`
			Failed    int `json:"failed"`
		} `json:"status"`
		Skipped bool `json:"skipped"`
	}
	json.NewDecoder(resp.Body).Decode(&run)
	if run.Skipped || run.Status.Processed != 1 || run.Status.Failed != 1 {
		t.Fatalf("run = %+v", run)
	}

	resp = ts.do(t, http.MethodGet, "/api/admin/reminders?status=failed", admin, "")
	var failed []struct {
		FailureReason string `json:"failure_reason"`
	}
	json.NewDecoder(resp.Body).Decode(&failed)
	if len(failed) != 1 || !strings.HasPrefix(failed[0].FailureReason, "email failed") {
		t.Errorf("failed reminders = %+v", failed)
	}
}

func TestJobStatusFeed(t *testing.T) {
	ts := setupServer(t)
	admin := ts.token(t, auth.AuthContext{Email: "ops@maintcue.com", Role: auth.RoleAdmin})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/admin/ws?access_token=" + admin
	conn, _, err := ws.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// wait until the hub has registered the client
	deadline := time.Now().Add(2 * time.Second)
	for ts.srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	ts.do(t, http.MethodPost, "/api/admin/jobs/overdue/run", admin, "")

	var states []string
	for len(states) < 2 {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Entity != "job" {
			t.Errorf("entity = %q", msg.Entity)
		}
		states = append(states, msg.Action)
	}
	if states[0] != "running" || states[1] != "idle" {
		t.Errorf("states = %v, want [running idle]", states)
	}
}

func TestJobStatusFeedRequiresAdmin(t *testing.T) {
	ts := setupServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/admin/ws"
	_, resp, err := ws.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestOriginPatterns(t *testing.T) {
	if got := originPatterns("https://app.maintcue.com"); len(got) != 1 || got[0] != "app.maintcue.com" {
		t.Errorf("originPatterns = %v", got)
	}
	if got := originPatterns("::"); got != nil {
		t.Errorf("originPatterns(bad) = %v, want nil", got)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
