package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/onetwotrip/punk/internal/render"
)

func postCommand(t *testing.T, handler http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(New(&fakeFetcher{}, &fakeSink{}), "")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

type unhealthyFetcher struct {
	fakeFetcher
}

func (f *unhealthyFetcher) Healthy() bool { return false }

func TestReadyEndpointReportsStoreHealth(t *testing.T) {
	server := NewHTTPServer(New(&unhealthyFetcher{}, &fakeSink{}), "")

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the store is unreachable, got %d", rr.Code)
	}
	var response struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Status != "not_ready" {
		t.Errorf("expected not_ready, got %q", response.Status)
	}
}

func TestCommandEndpoint(t *testing.T) {
	sink := &fakeSink{}
	server := NewHTTPServer(stagingService(t, sink), "")

	rr := postCommand(t, server.Handler(), url.Values{
		"text":       {"staging"},
		"user_name":  {"alice"},
		"channel_id": {"#deploys"},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var response struct {
		OK      bool   `json:"ok"`
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !response.OK || response.Outcome != "ok" {
		t.Errorf("unexpected ack: %+v", response)
	}
	if len(sink.rich) != 1 {
		t.Errorf("expected the reply to be delivered, got %+v", sink.rich)
	}
}

func TestCommandEndpointWrongArgumentsIncludesUsage(t *testing.T) {
	sink := &fakeSink{}
	server := NewHTTPServer(stagingService(t, sink), "")

	rr := postCommand(t, server.Handler(), url.Values{
		"text":       {"one two three four"},
		"user_name":  {"alice"},
		"channel_id": {"#deploys"},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("parse errors are replies, not HTTP failures; got %d", rr.Code)
	}
	var response struct {
		Outcome string `json:"outcome"`
		Usage   string `json:"usage"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Outcome != "wrong_arguments" || response.Usage == "" {
		t.Errorf("expected wrong_arguments ack with usage, got %+v", response)
	}
	if len(sink.plain) != 1 || sink.plain[0].text != "wrong arguments" {
		t.Errorf("user still gets the verbatim reply, got %+v", sink.plain)
	}
}

func TestCommandEndpointTokenCheck(t *testing.T) {
	server := NewHTTPServer(stagingService(t, &fakeSink{}), "sekret")

	rr := postCommand(t, server.Handler(), url.Values{
		"token":      {"wrong"},
		"text":       {"staging"},
		"channel_id": {"#deploys"},
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a bad token, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body["code"] != string(codeBadToken) {
		t.Errorf("expected code %s, got %v", codeBadToken, body["code"])
	}

	rr = postCommand(t, server.Handler(), url.Values{
		"token":      {"sekret"},
		"text":       {"staging"},
		"channel_id": {"#deploys"},
	})
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 for the right token, got %d", rr.Code)
	}
}

func TestCommandEndpointRequiresChannel(t *testing.T) {
	server := NewHTTPServer(stagingService(t, &fakeSink{}), "")

	rr := postCommand(t, server.Handler(), url.Values{
		"text": {"staging"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without channel_id, got %d", rr.Code)
	}
}

func TestCommandEndpointDeliveryFailure(t *testing.T) {
	sink := &fakeSink{
		richFn: func(context.Context, string, render.Message) error {
			return errors.New("webhook down")
		},
		plainFn: func(context.Context, string, string) error {
			return errors.New("webhook down")
		},
	}
	server := NewHTTPServer(stagingService(t, sink), "")

	rr := postCommand(t, server.Handler(), url.Values{
		"text":       {"staging"},
		"channel_id": {"#deploys"},
	})
	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502 when even the fallback fails, got %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	server := NewHTTPServer(New(&fakeFetcher{}, &fakeSink{}), "")

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}
