package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clientportal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.MailerConfig{
		BaseURL:     srv.URL,
		APIKey:      "key-123",
		FromAddress: "no-reply@example.com",
	})
}

func TestSendForwardsTemplatePayload(t *testing.T) {
	var got sendRequest
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/send" {
			t.Errorf("path = %q, want /v1/send", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	data := json.RawMessage(`{"client_name":"Ada","amount":"500.00"}`)
	err := client.Send(context.Background(), []string{"ada@example.com"}, "Invoice INV-1", "payment-invoice", data)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotAuth != "Bearer key-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got.From != "no-reply@example.com" {
		t.Errorf("from = %q", got.From)
	}
	if len(got.To) != 1 || got.To[0] != "ada@example.com" {
		t.Errorf("to = %v", got.To)
	}
	if got.TemplateName != "payment-invoice" {
		t.Errorf("template = %q", got.TemplateName)
	}
}

func TestSendClassifies5xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.Send(context.Background(), []string{"ada@example.com"}, "s", "t", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("Send succeeded, want error")
	}
	if !strings.Contains(err.Error(), "mailer 5xx") {
		t.Errorf("err = %v, want mailer 5xx classification", err)
	}
}

func TestSendRejects4xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	err := client.Send(context.Background(), []string{"ada@example.com"}, "s", "t", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("Send succeeded, want error")
	}
	if strings.Contains(err.Error(), "mailer 5xx") {
		t.Errorf("4xx misclassified as retryable: %v", err)
	}
}
