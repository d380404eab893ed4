package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/upkeepqr/maintcue/internal/backup"
	"github.com/upkeepqr/maintcue/internal/jobs"
	"github.com/upkeepqr/maintcue/internal/model"
)

// Client talks to the MaintCue admin API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type JobRun struct {
	Status  jobs.Status `json:"status"`
	Skipped bool        `json:"skipped"`
}

type JobsStatus struct {
	Jobs    []jobs.Status                `json:"jobs"`
	NextRun *time.Time                   `json:"next_run"`
	Queue   map[model.ReminderStatus]int `json:"queue"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var res LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/admin/login", body, &res); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &res, nil
}

// RunJob triggers a job ("reminders" or "overdue") and waits for its result.
func (c *Client) RunJob(ctx context.Context, job string) (*JobRun, error) {
	var res JobRun
	if err := c.do(ctx, http.MethodPost, "/api/admin/jobs/"+url.PathEscape(job)+"/run", nil, &res); err != nil {
		return nil, fmt.Errorf("run %s job: %w", job, err)
	}
	return &res, nil
}

func (c *Client) Status(ctx context.Context) (*JobsStatus, error) {
	var res JobsStatus
	if err := c.do(ctx, http.MethodGet, "/api/admin/jobs/status", nil, &res); err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	return &res, nil
}

type BackupList struct {
	Status  backup.Status  `json:"status"`
	Backups []model.Backup `json:"backups"`
}

// RunBackup takes a snapshot now and waits for the upload to finish.
func (c *Client) RunBackup(ctx context.Context) (*model.Backup, error) {
	var res model.Backup
	if err := c.do(ctx, http.MethodPost, "/api/admin/backups/run", nil, &res); err != nil {
		return nil, fmt.Errorf("run backup: %w", err)
	}
	return &res, nil
}

func (c *Client) Backups(ctx context.Context) (*BackupList, error) {
	var res BackupList
	if err := c.do(ctx, http.MethodGet, "/api/admin/backups", nil, &res); err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return &res, nil
}

func (c *Client) Reminders(ctx context.Context, status string, limit int) ([]model.Reminder, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/admin/reminders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res []model.Reminder
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return res, nil
}

// DownloadBackup copies the encrypted snapshot with the given id into w.
func (c *Client) DownloadBackup(ctx context.Context, id int64, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/admin/backups/"+strconv.FormatInt(id, 10)+"/download", nil)
	if err != nil {
		return 0, fmt.Errorf("download backup %d: %w", id, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download backup %d: %w", id, err)
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send issues the request and turns non-2xx responses into an *APIError.
// The caller closes the body of a successful response.
func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Message = e.Error
		}
		return nil, apiErr
	}
	return resp, nil
}
