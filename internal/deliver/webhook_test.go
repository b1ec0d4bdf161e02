package deliver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onetwotrip/punk/internal/render"
)

func TestSendRich(t *testing.T) {
	var captured []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhook(server.URL)
	msg := render.Message{
		Title:  "staging - web",
		Color:  render.MessageColor,
		Footer: render.MessageFooter,
		Fields: []render.Field{{Title: "Branch", Value: "main", Short: true}},
	}
	if err := sink.SendRich(context.Background(), "#deploys", msg); err != nil {
		t.Fatalf("SendRich failed: %v", err)
	}

	var payload struct {
		Channel     string           `json:"channel"`
		Attachments []render.Message `json:"attachments"`
	}
	if err := json.Unmarshal(captured, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Channel != "#deploys" {
		t.Errorf("channel: got %q", payload.Channel)
	}
	if len(payload.Attachments) != 1 || payload.Attachments[0].Title != "staging - web" {
		t.Errorf("unexpected attachments: %+v", payload.Attachments)
	}
}

func TestSendPlainText(t *testing.T) {
	var captured []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhook(server.URL)
	if err := sink.SendPlainText(context.Background(), "#deploys", "Environment: staging"); err != nil {
		t.Fatalf("SendPlainText failed: %v", err)
	}

	var payload struct {
		Channel string `json:"channel"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(captured, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Text != "Environment: staging" {
		t.Errorf("text: got %q", payload.Text)
	}
}

func TestSendRichReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel_not_found", http.StatusNotFound)
	}))
	defer server.Close()

	sink := NewWebhook(server.URL)
	err := sink.SendRich(context.Background(), "#gone", render.Message{})
	if err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestUnconfiguredWebhook(t *testing.T) {
	sink := NewWebhook("")
	if sink.IsConfigured() {
		t.Errorf("empty URL should report unconfigured")
	}
	if err := sink.SendPlainText(context.Background(), "#deploys", "hi"); err == nil {
		t.Errorf("expected error when webhook not configured")
	}
}
