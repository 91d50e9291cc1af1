// Package client talks to an ema-voice server over HTTP and server-sent
// events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/retry"
	"github.com/koscakluka/ema-voice/core/stream"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Event is one frame of a turn as received from the server.
type Event struct {
	Kind events.Kind
	Data json.RawMessage
}

func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", e.Kind, err)
	}
	return nil
}

// Failure converts an error event into a retry failure.
func (e Event) Failure() *retry.Failure {
	var payload events.ErrorPayload
	if err := e.Decode(&payload); err != nil {
		return &retry.Failure{Kind: events.ErrorKindUnknown, Details: err.Error()}
	}
	return &retry.Failure{Kind: payload.ErrorKind, Message: payload.Message, Details: payload.Details}
}

// StatusError is a request the server rejected before starting a turn.
type StatusError struct {
	StatusCode int
	Payload    events.ErrorPayload
}

func (e *StatusError) Error() string {
	if e.Payload.Details != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Payload.Details)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// RetryAllowed is false for requests the server will reject again.
func (e *StatusError) RetryAllowed() bool {
	return e.StatusCode >= http.StatusInternalServerError && e.Payload.RetryAllowed
}

func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversation/start", nil, &body); err != nil {
		return "", err
	}
	return body.SessionID, nil
}

// Start streams the turn in which the agent speaks first.
func (c *Client) Start(ctx context.Context, sessionID string) iter.Seq2[Event, error] {
	return c.streamTurn(ctx, http.MethodGet, "/api/conversation/stream", url.Values{
		"session_id": {sessionID},
		"action":     {"start"},
	}, nil, "")
}

// Process submits a finished utterance and streams the resulting turn.
func (c *Client) Process(ctx context.Context, sessionID string, audio []byte, format string) iter.Seq2[Event, error] {
	query := url.Values{"session_id": {sessionID}}
	if format != "" {
		query.Set("format", format)
	}
	return c.streamTurn(ctx, http.MethodPost, "/api/conversation/process", query, audio, "application/octet-stream")
}

func (c *Client) History(ctx context.Context, sessionID string) ([]llms.Message, error) {
	var body struct {
		Messages []llms.Message `json:"messages"`
	}
	path := "/api/conversation/history?" + url.Values{"session_id": {sessionID}}.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

func (c *Client) Stop(ctx context.Context, sessionID string) error {
	path := "/api/conversation/stop?" + url.Values{"session_id": {sessionID}}.Encode()
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	path := "/api/conversation/session?" + url.Values{"session_id": {sessionID}}.Encode()
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) streamTurn(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query.Encode(), bytes.NewReader(body))
		if err != nil {
			yield(Event{}, fmt.Errorf("failed to create request: %w", err))
			return
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			yield(Event{}, fmt.Errorf("failed to send request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield(Event{}, statusError(resp))
			return
		}

		for message, err := range stream.ScanSSE(resp.Body) {
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(Event{Kind: events.Kind(message.Event), Data: json.RawMessage(message.Data)}, nil) {
				return
			}
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&statusErr.Payload); err != nil {
		statusErr.Payload.Details = http.StatusText(resp.StatusCode)
	}
	return statusErr
}
