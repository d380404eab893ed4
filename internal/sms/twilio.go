package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultBaseURL = "https://api.twilio.com"

var ErrNotConfigured = errors.New("sms client not configured: missing twilio credentials")

// Client sends text messages through the Twilio Messages API.
type Client struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
	maxRetries uint64
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(u, "/")
	}
}

// WithBackoff sets the first retry delay. Later delays double.
func WithBackoff(d time.Duration) Option {
	return func(cl *Client) {
		cl.backoff = d
	}
}

func NewClient(accountSID, authToken, fromNumber string, opts ...Option) *Client {
	c := &Client{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		backoff:    500 * time.Millisecond,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configured() bool {
	return c.accountSID != "" && c.authToken != "" && c.fromNumber != ""
}

// ReminderBody is the text sent for a task reminder.
func ReminderBody(taskName string, dueDate time.Time) string {
	return fmt.Sprintf("MaintCue reminder: %s is due %s. Reply STOP to opt out.", taskName, dueDate.Format("Mon Jan 2"))
}

// SendReminder texts a task reminder to phone.
func (c *Client) SendReminder(ctx context.Context, phone, taskName string, dueDate time.Time) error {
	return c.Send(ctx, phone, ReminderBody(taskName, dueDate))
}

// APIError is a non-2xx response from Twilio.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("twilio API error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("twilio API error: status %d", e.StatusCode)
}

// Send posts one message. Throttling responses (429, 503) are retried with
// exponential backoff until the retry limit or ctx ends.
func (c *Client) Send(ctx context.Context, to, body string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if to == "" {
		return errors.New("send sms: missing recipient")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))

	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.post(ctx, endpoint, form)
		var apiErr *APIError
		if errors.As(err, &apiErr) && retryable(apiErr.StatusCode) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(data, apiErr)
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}
	return nil
}
