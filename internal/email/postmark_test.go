package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendNotification(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", "https://hearth.test/",
		WithHTTPClient(&http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}))

	err := client.SendNotification(context.Background(), "alice@example.com", "New task", "You were assigned <Dishes>", "task_assigned")
	if err != nil {
		t.Fatalf("send notification: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", received.To, "alice@example.com")
	}
	if received.From != "noreply@example.com" {
		t.Errorf("From = %q, want %q", received.From, "noreply@example.com")
	}
	if received.Subject != "New task" {
		t.Errorf("Subject = %q, want %q", received.Subject, "New task")
	}
	if received.Tag != "task_assigned" {
		t.Errorf("Tag = %q, want task_assigned", received.Tag)
	}
	if !strings.Contains(received.HtmlBody, "&lt;Dishes&gt;") {
		t.Errorf("HtmlBody = %q, want escaped content", received.HtmlBody)
	}
	if !strings.Contains(received.TextBody, "https://hearth.test/notifications") {
		t.Errorf("TextBody = %q, want notifications link", received.TextBody)
	}
}

func TestSendNotificationAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", "https://hearth.test")
	client.httpClient = &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}

	err := client.SendNotification(context.Background(), "alice@example.com", "s", "b", "")
	if err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestSendNotificationNotConfigured(t *testing.T) {
	client := NewClient("", "noreply@example.com", "https://hearth.test")

	err := client.SendNotification(context.Background(), "alice@example.com", "s", "b", "")
	if err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}

func TestConfigured(t *testing.T) {
	c1 := NewClient("token", "from@test.com", "https://test.com")
	if !c1.Configured() {
		t.Error("expected Configured() = true")
	}

	c2 := NewClient("", "from@test.com", "https://test.com")
	if c2.Configured() {
		t.Error("expected Configured() = false")
	}
}

// rewriteTransport redirects all requests to a test server URL.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.target[len("http://"):]
	return t.base.RoundTrip(req)
}
