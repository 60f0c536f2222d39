package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/stream"
	"github.com/google/uuid"
)

// HTTPTransport talks to an ellen server over its REST + streaming API. It
// implements both Transport and SessionStore.
type HTTPTransport struct {
	baseURL string
	token   string
	framing stream.Framing
	client  *http.Client
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) TransportOption {
	return func(t *HTTPTransport) { t.token = token }
}

// WithFraming requests a specific stream framing from the server. The server
// default is NDJSON; SSE is negotiated via the Accept header.
func WithFraming(framing stream.Framing) TransportOption {
	return func(t *HTTPTransport) { t.framing = framing }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) { t.client = client }
}

// NewHTTPTransport creates a transport for the server at baseURL,
// e.g. "http://localhost:8080".
func NewHTTPTransport(baseURL string, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		framing: stream.FramingNDJSON,
		// No overall timeout: streamed responses stay open as long as the
		// model is producing tokens. Cancellation comes from the context.
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type streamRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
}

// OpenStream starts a chat completion and returns the raw response body
// together with the framing the server actually chose.
func (t *HTTPTransport) OpenStream(ctx context.Context, sessionID uuid.UUID, message string) (io.ReadCloser, stream.Framing, error) {
	payload, err := json.Marshal(streamRequest{SessionID: sessionID, Message: message})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.framing == stream.FramingSSE {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/x-ndjson")
	}
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, 0, apiError(resp)
	}

	framing := stream.FramingNDJSON
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		framing = stream.FramingSSE
	}
	return resp.Body, framing, nil
}

type createSessionRequest struct {
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	Title     string     `json:"title,omitempty"`
}

// CreateSession registers a new session on the server.
func (t *HTTPTransport) CreateSession(ctx context.Context, projectID *uuid.UUID, title string) (*domain.Session, error) {
	var session domain.Session
	if err := t.doJSON(ctx, http.MethodPost, "/api/v1/sessions", createSessionRequest{ProjectID: projectID, Title: title}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// LoadSession fetches the authoritative session, threads included.
func (t *HTTPTransport) LoadSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var session domain.Session
	if err := t.doJSON(ctx, http.MethodGet, "/api/v1/sessions/"+id.String(), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns the session index, most recent first.
func (t *HTTPTransport) ListSessions(ctx context.Context) ([]domain.Session, error) {
	var sessions []domain.Session
	if err := t.doJSON(ctx, http.MethodGet, "/api/v1/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes a session and its threads.
func (t *HTTPTransport) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return t.doJSON(ctx, http.MethodDelete, "/api/v1/sessions/"+id.String(), nil, nil)
}

// apiEnvelope matches the server's uniform response shape.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func (t *HTTPTransport) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func (t *HTTPTransport) authorize(req *http.Request) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
}

// apiError extracts the server's error message from a non-2xx response.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var message string
		if json.Unmarshal(envelope.Error, &message) == nil && message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, envelope.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
