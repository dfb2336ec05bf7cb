package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/varsilias/siap-chat/internal/metrics"
	"github.com/varsilias/siap-chat/pkg/types"
)

// DefaultPath is the chat endpoint on the backend.
const DefaultPath = "/api/chat"

// maxBodySize caps how much of a reply is read into memory.
var maxBodySize int64 = 10 << 20

var (
	// ErrMissingSummary is returned when a 2xx reply has no summary_string.
	ErrMissingSummary = errors.New("response has no summary_string")
	// ErrResponseTooLarge is returned when a reply exceeds maxBodySize.
	ErrResponseTooLarge = errors.New("response too large")
)

// Client posts chat turns to the external backend.
type Client struct {
	url    string
	log    *slog.Logger
	client *http.Client
}

// Request is the JSON body sent for one user turn.
type Request struct {
	UsersID string               `json:"users_id"`
	Query   string               `json:"query"`
	History []types.HistoryEntry `json:"history"`
}

// Reply is a successful backend answer.
type Reply struct {
	Summary string
	Latency time.Duration
}

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Code   int
	Status string
	Detail string
}

// Error prefers the backend's own detail and falls back to the status line.
func (e *StatusError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("Server error: %d %s", e.Code, e.Status)
}

// NewClient builds a client for baseURL+path. A zero timeout means the call
// waits as long as the backend takes.
func NewClient(baseURL, path string, timeout time.Duration, log *slog.Logger) *Client {
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Client{
		url:    trimSlash(baseURL) + path,
		log:    log,
		client: &http.Client{Timeout: timeout},
	}
}

// URL is the full endpoint the client posts to.
func (c *Client) URL() string { return c.url }

// Chat sends one turn. History is sent as an empty array, never null.
func (c *Client) Chat(ctx context.Context, token string, in Request) (Reply, error) {
	if in.History == nil {
		in.History = []types.HistoryEntry{}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return Reply{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveBackend(metrics.OutcomeNetworkError, time.Since(start))
		return Reply{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize+1))
	took := time.Since(start)
	if err != nil {
		metrics.ObserveBackend(metrics.OutcomeNetworkError, took)
		return Reply{}, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > maxBodySize {
		metrics.ObserveBackend(metrics.OutcomeDecodeError, took)
		return Reply{}, fmt.Errorf("%w (over %d bytes)", ErrResponseTooLarge, maxBodySize)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		metrics.ObserveBackend(metrics.OutcomeHTTPError, took)
		c.log.Debug("backend error response", "status", res.StatusCode, "body", string(body))
		return Reply{}, &StatusError{
			Code:   res.StatusCode,
			Status: statusText(res),
			Detail: errorDetail(body),
		}
	}

	var out struct {
		Summary *string `json:"summary_string"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		metrics.ObserveBackend(metrics.OutcomeDecodeError, took)
		return Reply{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Summary == nil {
		metrics.ObserveBackend(metrics.OutcomeDecodeError, took)
		return Reply{}, ErrMissingSummary
	}

	metrics.ObserveBackend(metrics.OutcomeOK, took)
	return Reply{Summary: *out.Summary, Latency: took}, nil
}

// errorDetail pulls "detail" out of a JSON error body. FastAPI style list
// details are returned as compact JSON.
func errorDetail(body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil || len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	if string(e.Detail) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, e.Detail); err != nil {
		return string(e.Detail)
	}
	return buf.String()
}

// statusText is the reason phrase of the status line, e.g. "Bad Gateway".
func statusText(res *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode)))
	if text == "" {
		text = http.StatusText(res.StatusCode)
	}
	return text
}

func trimSlash(s string) string {
	if len(s) > 0 && s[len(s)-1] == '/' {
		return s[:len(s)-1]
	}
	return s
}
