package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"
)

const postmarkURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email client not configured: missing server token")

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkAttachment struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
}

type postmarkEmail struct {
	From          string               `json:"From"`
	To            string               `json:"To"`
	Subject       string               `json:"Subject"`
	HtmlBody      string               `json:"HtmlBody"`
	TextBody      string               `json:"TextBody"`
	MessageStream string               `json:"MessageStream,omitempty"`
	Attachments   []postmarkAttachment `json:"Attachments,omitempty"`
}

// ReminderEmail is the content of one task reminder.
type ReminderEmail struct {
	To          string
	FirstName   string
	TaskTitle   string
	Description string
	DueDate     time.Time
	// ICS is attached as task.ics when non-empty.
	ICS []byte
}

// SendReminder emails a task reminder with the calendar invite attached.
func (c *Client) SendReminder(ctx context.Context, r ReminderEmail) error {
	if r.To == "" {
		return errors.New("send reminder: missing recipient")
	}

	due := r.DueDate.Format("Monday, January 2")
	subject := fmt.Sprintf("Reminder: %s is due %s", r.TaskTitle, r.DueDate.Format("Jan 2"))

	textBody := fmt.Sprintf("Hi %s,\n\nThis is a reminder that \"%s\" is due on %s.\n", r.FirstName, r.TaskTitle, due)
	if r.Description != "" {
		textBody += "\n" + r.Description + "\n"
	}
	textBody += fmt.Sprintf("\nView your tasks: %s/dashboard\n", c.baseURL)

	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>This is a reminder that <strong>%s</strong> is due on %s.</p>`,
		html.EscapeString(r.FirstName), html.EscapeString(r.TaskTitle), due,
	)
	if r.Description != "" {
		htmlBody += fmt.Sprintf(`<p>%s</p>`, html.EscapeString(r.Description))
	}
	htmlBody += fmt.Sprintf(`<p><a href="%s/dashboard">View your tasks</a></p>`, c.baseURL)

	msg := postmarkEmail{
		From:          c.fromEmail,
		To:            r.To,
		Subject:       subject,
		HtmlBody:      htmlBody,
		TextBody:      textBody,
		MessageStream: "outbound",
	}
	if len(r.ICS) > 0 {
		msg.Attachments = []postmarkAttachment{{
			Name:        "task.ics",
			Content:     base64.StdEncoding.EncodeToString(r.ICS),
			ContentType: "text/calendar",
		}}
	}
	return c.send(ctx, msg)
}

// SendMagicLink emails a sign-in link.
func (c *Client) SendMagicLink(ctx context.Context, toEmail, link string) error {
	textBody := fmt.Sprintf("Click the link below to sign in to MaintCue:\n\n%s\n\nThis link expires in 15 minutes.", link)
	htmlBody := fmt.Sprintf(
		`<p>Click the link below to sign in to MaintCue:</p><p><a href="%s">Sign in</a></p><p>This link expires in 15 minutes.</p>`,
		link,
	)

	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  "Sign in to MaintCue",
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			ErrorCode int    `json:"ErrorCode"`
			Message   string `json:"Message"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("postmark API error: status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
