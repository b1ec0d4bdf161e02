package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/onetwotrip/punk/internal/audit"
	"github.com/onetwotrip/punk/internal/command"
)

// errorCode identifies a rejected command request in the webhook acknowledgement.
type errorCode string

const (
	codeInvalidForm    errorCode = "INVALID_FORM"
	codeBadToken       errorCode = "BAD_TOKEN"
	codeMissingChannel errorCode = "MISSING_CHANNEL"
	codeDeliveryFailed errorCode = "DELIVERY_FAILED"
	codeNotFound       errorCode = "NOT_FOUND"
)

// commandError is a request rejection carried from form parsing to the
// acknowledgement body.
type commandError struct {
	status  int
	code    errorCode
	message string
}

func (e *commandError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func rejectCommand(status int, code errorCode, message string) *commandError {
	return &commandError{status: status, code: code, message: message}
}

// HTTPServer exposes the command webhook and the health endpoints.
type HTTPServer struct {
	service *Service
	token   string
}

// NewHTTPServer creates the HTTP surface. token, when non-empty, must match
// the token field of every inbound command.
func NewHTTPServer(service *Service, token string) *HTTPServer {
	return &HTTPServer{service: service, token: token}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.Ready(ctx)
		statusCode := http.StatusOK
		status := "ready"
		if !ready {
			statusCode = http.StatusServiceUnavailable
			status = "not_ready"
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/command" {
		s.handleCommand(w, r)
		return
	}

	writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
}

type commandInput struct {
	Text    string
	User    string
	Channel string
}

func (s *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	input, cerr := s.parseCommandForm(r)
	if cerr != nil {
		writeError(w, cerr.status, cerr.code, cerr.message, nil)
		return
	}

	outcome, err := s.service.HandleCommand(r.Context(), input.Text, input.User, input.Channel)
	if err != nil {
		log.Printf("app: reply delivery failed: %v", err)
		writeError(w, http.StatusBadGateway, codeDeliveryFailed, "Reply could not be delivered", map[string]any{
			"outcome": outcome,
		})
		return
	}

	response := map[string]any{"ok": true, "outcome": outcome}
	if outcome == audit.OutcomeWrongArguments {
		response["usage"] = command.Usage
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) parseCommandForm(r *http.Request) (commandInput, *commandError) {
	if err := r.ParseForm(); err != nil {
		return commandInput{}, rejectCommand(http.StatusBadRequest, codeInvalidForm, "Malformed form body")
	}

	if s.token != "" {
		supplied := r.PostFormValue("token")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.token)) != 1 {
			return commandInput{}, rejectCommand(http.StatusUnauthorized, codeBadToken, "Invalid command token")
		}
	}

	input := commandInput{
		Text:    r.PostFormValue("text"),
		User:    r.PostFormValue("user_name"),
		Channel: r.PostFormValue("channel_id"),
	}
	if strings.TrimSpace(input.Channel) == "" {
		return commandInput{}, rejectCommand(http.StatusBadRequest, codeMissingChannel, "channel_id is required")
	}
	return input, nil
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}
