package sms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestReminderBody(t *testing.T) {
	due := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
	got := ReminderBody("Replace HVAC filter", due)
	want := "MaintCue reminder: Replace HVAC filter is due Tue Nov 3. Reply STOP to opt out."
	if got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestSendReminder(t *testing.T) {
	var gotPath, gotUser, gotPass, gotTo, gotFrom, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotTo = r.PostForm.Get("To")
		gotFrom = r.PostForm.Get("From")
		gotBody = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid": "SM123", "status": "queued"}`))
	}))
	defer server.Close()

	client := NewClient("AC123", "secret", "+15550000000", WithBaseURL(server.URL))
	err := client.SendReminder(context.Background(), "+15551234567", "Clean gutters", time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("send reminder: %v", err)
	}

	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotTo != "+15551234567" || gotFrom != "+15550000000" {
		t.Errorf("to/from = %q/%q", gotTo, gotFrom)
	}
	if gotBody != "MaintCue reminder: Clean gutters is due Tue Nov 3. Reply STOP to opt out." {
		t.Errorf("body = %q", gotBody)
	}
}

func TestSendRetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code": 20429, "message": "Too Many Requests"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient("AC123", "secret", "+15550000000", WithBaseURL(server.URL), WithBackoff(time.Millisecond))
	if err := client.Send(context.Background(), "+15551234567", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestSendGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("AC123", "secret", "+15550000000", WithBaseURL(server.URL), WithBackoff(time.Millisecond))
	err := client.Send(context.Background(), "+15551234567", "hi")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", apiErr.StatusCode)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", got)
	}
}

func TestSendNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": 21211, "message": "The 'To' number is not a valid phone number."}`))
	}))
	defer server.Close()

	client := NewClient("AC123", "secret", "+15550000000", WithBaseURL(server.URL), WithBackoff(time.Millisecond))
	err := client.Send(context.Background(), "bogus", "hi")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != 21211 {
		t.Errorf("code = %d, want 21211", apiErr.Code)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestSendNotConfigured(t *testing.T) {
	client := NewClient("", "", "")
	if err := client.Send(context.Background(), "+15551234567", "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}
