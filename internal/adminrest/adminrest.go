// Package adminrest is the client for the backend's administrative
// REST API (§6 of spec.md) — a black-box collaborator this gateway
// drives but does not implement. Request/response shapes and timeouts
// follow spec.md verbatim; the HTTP client pattern (json marshal,
// pkg/errors wrapping, explicit status-code check) is grounded on the
// teacher's plugin/webhook/webhook.go.
package adminrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	callbackAnswerTimeout = 10 * time.Second
	sendMessageTimeout    = 30 * time.Second
	createUserTimeout     = 30 * time.Second
)

// StatusError is returned when the backend responds with a non-2xx
// status. Body is the raw response body verbatim, per spec.md §7
// ("backend REST non-200 responses are surfaced as 400 carrying the
// backend's response body as description") — callers that need to
// forward that body to an HTTP caller should unwrap for this type
// rather than use Error(), which also carries the path and status.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("admin rest %s: status %d: %s", e.Path, e.Status, e.Body)
}

// Client calls the backend admin REST surface, rate-limited so a
// burst of HTTP requests against this gateway cannot overrun the
// backend.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a Client against baseURL, allowing rps requests per
// second with a burst capacity of burst.
func New(baseURL string, rps float64, burst int) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// SendVerificationCodeResult is the `/send-verification-code` response.
type SendVerificationCodeResult struct {
	PhoneCodeHash string `json:"phoneCodeHash"`
}

func (c *Client) SendVerificationCode(ctx context.Context, userID int64, phoneNumber, code string) (*SendVerificationCodeResult, error) {
	q := url.Values{}
	q.Set("userId", fmt.Sprintf("%d", userID))
	q.Set("phoneNumber", phoneNumber)
	q.Set("code", code)

	var out SendVerificationCodeResult
	if err := c.postQuery(ctx, "/send-verification-code", q, createUserTimeout, &out); err != nil {
		return nil, errors.Wrap(err, "send-verification-code")
	}
	return &out, nil
}

type CreateUserRequest struct {
	PhoneNumber   string `json:"phoneNumber"`
	PhoneCodeHash string `json:"phoneCodeHash"`
	Code          string `json:"code"`
	FirstName     string `json:"firstName"`
}

func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) error {
	if err := c.postJSON(ctx, "/create-user", req, createUserTimeout, nil); err != nil {
		return errors.Wrap(err, "create-user")
	}
	return nil
}

func (c *Client) SetVerified(ctx context.Context, userID int64, verified bool) error {
	q := url.Values{}
	q.Set("userId", fmt.Sprintf("%d", userID))
	q.Set("verified", fmt.Sprintf("%t", verified))
	if err := c.postQuery(ctx, "/set-verified", q, createUserTimeout, nil); err != nil {
		return errors.Wrap(err, "set-verified")
	}
	return nil
}

// Button mirrors the inline-keyboard translation from spec.md §4.7.
type Button struct {
	Text         string  `json:"text"`
	URL          *string `json:"url,omitempty"`
	CallbackData *string `json:"callbackData,omitempty"`
}

type SendMessageRequest struct {
	FromUserID int64      `json:"fromUserId"`
	ToUserID   int64      `json:"toUserId"`
	Message    string     `json:"message"`
	Silent     bool       `json:"silent"`
	Buttons    [][]Button `json:"buttons,omitempty"`
}

type SendMessageResult struct {
	MessageID int `json:"messageId"`
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	var out SendMessageResult
	if err := c.postJSON(ctx, "/send-message", req, sendMessageTimeout, &out); err != nil {
		return nil, errors.Wrap(err, "send-message")
	}
	return &out, nil
}

type AnswerCallbackRequest struct {
	QueryID   string `json:"queryId"`
	PeerID    int64  `json:"peerId"`
	MsgID     int    `json:"msgId"`
	Alert     bool   `json:"alert"`
	Message   string `json:"message,omitempty"`
	URL       string `json:"url,omitempty"`
	CacheTime int    `json:"cacheTime"`
}

func (c *Client) AnswerCallback(ctx context.Context, req AnswerCallbackRequest) error {
	if err := c.postJSON(ctx, "/answer-callback", req, callbackAnswerTimeout, nil); err != nil {
		return errors.Wrap(err, "answer-callback")
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}, timeout time.Duration, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "marshal request to %s", path)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", timeout, out)
}

func (c *Client) postQuery(ctx context.Context, path string, q url.Values, timeout time.Duration, out interface{}) error {
	full := path + "?" + q.Encode()
	return c.do(ctx, http.MethodPost, full, nil, "", timeout, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, timeout time.Duration, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "construct request to %s", path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request to %s", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read response from %s", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Path: path, Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "unmarshal response from %s", path)
		}
	}
	return nil
}
