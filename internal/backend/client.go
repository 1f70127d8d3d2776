// Package backend is the HTTP client for the container backend: sensor
// readings, chat history, AI replies and notifications.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/freshness"
	"github.com/kalambet/resqfreeze/internal/notify"
)

const (
	defaultTimeout = 30 * time.Second
	aiTimeout      = 90 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// Client talks to the backend REST API. A zero token sends no Authorization
// header; read endpoints then treat 401/403 as an empty result.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL (for example
// "http://127.0.0.1:8000/api").
func NewClient(baseURL, token string) *Client {
	return NewClientWithHTTPClient(baseURL, token, &http.Client{Timeout: aiTimeout})
}

// NewClientWithHTTPClient is NewClient with a caller-supplied transport.
func NewClientWithHTTPClient(baseURL, token string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: hc,
	}
}

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response. Detail carries the server's message when
// it sent one.
type StatusError struct {
	Op     string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}

// IsUnauthorized reports whether err is a 401 or 403 StatusError.
func IsUnauthorized(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden
}

// SensorPoint is one entry of the sensor history series.
type SensorPoint struct {
	Time       string   `json:"time"`
	Suhu       *float64 `json:"suhu"`
	Kelembapan *float64 `json:"kelembapan"`
	VOC        *float64 `json:"voc"`
	Status     string   `json:"status,omitempty"`
}

// Reading is a raw sensor sample submitted by the container hardware.
type Reading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	VOC         float64 `json:"voc"`
}

// ReadingResult is the backend's acknowledgement of a stored reading.
type ReadingResult struct {
	ID        chat.ID   `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// LatestSensor fetches the most recent reading. Missing or non-numeric fields
// decode to nil.
func (c *Client) LatestSensor(ctx context.Context) (freshness.Snapshot, error) {
	var raw map[string]any
	if err := c.get(ctx, "latest sensor", "/sensors/latest", &raw); err != nil {
		if c.anonymousDenied(err) {
			return freshness.Snapshot{}, nil
		}
		return freshness.Snapshot{}, err
	}
	return snapshotFromMap(raw), nil
}

func snapshotFromMap(raw map[string]any) freshness.Snapshot {
	s := freshness.Snapshot{
		Temperature: numberOrNil(raw["temperature"]),
		Humidity:    numberOrNil(raw["humidity"]),
		VOC:         numberOrNil(raw["voc"]),
	}
	if status, ok := raw["status"].(string); ok {
		s.Status = status
	}
	if ts, ok := raw["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			s.CapturedAt = t
		}
	}
	return s
}

// numberOrNil accepts JSON numbers only; strings, even numeric ones, are nil.
func numberOrNil(v any) *float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return &n
	default:
		return nil
	}
}

// SensorHistory fetches up to limit points, oldest first.
func (c *Client) SensorHistory(ctx context.Context, limit int) ([]SensorPoint, error) {
	path := "/sensors/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var points []SensorPoint
	if err := c.get(ctx, "sensor history", path, &points); err != nil {
		if c.anonymousDenied(err) {
			return []SensorPoint{}, nil
		}
		return nil, err
	}
	if points == nil {
		points = []SensorPoint{}
	}
	return points, nil
}

// PostReading submits a raw sensor sample.
func (c *Client) PostReading(ctx context.Context, r Reading) (ReadingResult, error) {
	var res ReadingResult
	err := c.send(ctx, "post reading", http.MethodPost, "/sensors", r, &res, defaultTimeout)
	return res, err
}

// ChatHistory fetches the persisted transcript, oldest first.
func (c *Client) ChatHistory(ctx context.Context) ([]chat.Message, error) {
	var msgs []chat.Message
	if err := c.get(ctx, "chat history", "/chat-history", &msgs); err != nil {
		if c.anonymousDenied(err) {
			return []chat.Message{}, nil
		}
		return nil, err
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return msgs, nil
}

// SaveChatMessage persists m and returns it with the server-assigned id and,
// when the server reports one, its canonical timestamp.
func (c *Client) SaveChatMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	var res struct {
		ID        chat.ID   `json:"id"`
		CreatedAt time.Time `json:"created_at"`
	}
	payload := m
	payload.ID = ""
	payload.Composing = false
	if err := c.send(ctx, "save chat message", http.MethodPost, "/chat-history", payload, &res, defaultTimeout); err != nil {
		return m, err
	}
	if res.ID == "" {
		return m, &StatusError{Op: "save chat message", Status: http.StatusOK, Detail: "response carried no id"}
	}
	m.ID = res.ID
	if !res.CreatedAt.IsZero() {
		m.CreatedAt = res.CreatedAt
	}
	return m, nil
}

// ClearChatHistory deletes every persisted message.
func (c *Client) ClearChatHistory(ctx context.Context) error {
	return c.send(ctx, "clear chat history", http.MethodDelete, "/chat-history", nil, nil, defaultTimeout)
}

// GenerateRecipe asks the backend for a structured recipe.
func (c *Client) GenerateRecipe(ctx context.Context, req chat.RecipeRequest) (chat.Recipe, error) {
	var r chat.Recipe
	err := c.send(ctx, "generate recipe", http.MethodPost, "/ai/generate-recipe", req, &r, aiTimeout)
	return r, err
}

// Chat asks the backend for a freeform reply.
func (c *Client) Chat(ctx context.Context, message, timeContext string) (string, error) {
	var r chat.ChatReply
	req := chat.ChatRequest{Message: message, TimeContext: timeContext}
	if err := c.send(ctx, "chat", http.MethodPost, "/ai/chat", req, &r, aiTimeout); err != nil {
		return "", err
	}
	return r.Reply, nil
}

// Notifications fetches the automatic notification events, newest first.
func (c *Client) Notifications(ctx context.Context) ([]notify.Event, error) {
	var events []notify.Event
	if err := c.get(ctx, "notifications", "/notifications/auto", &events); err != nil {
		if c.anonymousDenied(err) {
			return []notify.Event{}, nil
		}
		return nil, err
	}
	if events == nil {
		events = []notify.Event{}
	}
	return events, nil
}

// MarkNotificationRead flags one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.send(ctx, "mark notification read", http.MethodPost, "/notifications/"+url.PathEscape(id)+"/read", nil, nil, defaultTimeout)
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "health", "/health", nil)
}

func (c *Client) anonymousDenied(err error) bool {
	return c.token == "" && IsUnauthorized(err)
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	return c.send(ctx, op, http.MethodGet, path, nil, out, defaultTimeout)
}

// send performs the request, retrying on 429 with exponential backoff.
func (c *Client) send(ctx context.Context, op, method, path string, in, out any, timeout time.Duration) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		body = b
	}

	var lastErr error
	for attempt := range maxRetries {
		err := c.do(ctx, op, method, path, body, out, timeout)
		if err == nil {
			return nil
		}
		if !isRateLimit(err) {
			return err
		}
		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return &TransportError{Op: op, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

func isRateLimit(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusTooManyRequests
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any, timeout time.Duration) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Op: op, Status: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

// errorDetail extracts a human-readable message from an error body. Both the
// {"detail": "..."} and {"error": {"message": "..."}} envelopes are understood.
func errorDetail(body []byte) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error != nil && env.Error.Message != "" {
			return env.Error.Message
		}
		var s string
		if len(env.Detail) > 0 && json.Unmarshal(env.Detail, &s) == nil && s != "" {
			return s
		}
		if len(env.Detail) > 0 {
			return string(env.Detail)
		}
	}
	return strings.TrimSpace(string(body))
}
